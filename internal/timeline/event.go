// Package timeline holds the materialized trace model the grouping engine
// operates on: planes of lines of timestamped events, each event carrying an
// ordered list of typed stats. The raw trace container format is decoded
// elsewhere; by the time data reaches this package it is fully in memory.
package timeline

// StatValueKind discriminates the value stored in a StatValue.
type StatValueKind int

const (
	StatValueNone StatValueKind = iota
	StatValueInt64
	StatValueUint64
	StatValueString
)

// StatValue is a tagged union over the three value types a stat can carry.
type StatValue struct {
	kind StatValueKind
	i    int64
	u    uint64
	s    string
}

// IntValue returns a signed integer stat value.
func IntValue(v int64) StatValue { return StatValue{kind: StatValueInt64, i: v} }

// UintValue returns an unsigned integer stat value.
func UintValue(v uint64) StatValue { return StatValue{kind: StatValueUint64, u: v} }

// StrValue returns a string stat value.
func StrValue(v string) StatValue { return StatValue{kind: StatValueString, s: v} }

func (v StatValue) Kind() StatValueKind { return v.kind }
func (v StatValue) Int64() int64        { return v.i }
func (v StatValue) Uint64() uint64      { return v.u }
func (v StatValue) Str() string         { return v.s }

// AsInt64 collapses integer-valued stats to a signed integer. String and
// empty values report false; correlation keys only accept integers.
func (v StatValue) AsInt64() (int64, bool) {
	switch v.kind {
	case StatValueInt64:
		return v.i, true
	case StatValueUint64:
		return int64(v.u), true
	default:
		return 0, false
	}
}

// Stat is one attribute record on an event. MetadataID refers to the
// owning plane's stat metadata table.
type Stat struct {
	MetadataID int64
	Value      StatValue
}

// Event is one timed interval on a line. MetadataID refers to the owning
// plane's event metadata table.
type Event struct {
	MetadataID int64
	StartNs    int64
	DurationNs int64
	Stats      []Stat
}

// EndNs returns the exclusive end of the event's interval.
func (e *Event) EndNs() int64 { return e.StartNs + e.DurationNs }

// Nested reports whether e falls entirely within parent's interval.
// Matching bounds count as contained.
func (e *Event) Nested(parent *Event) bool {
	return e.StartNs >= parent.StartNs && e.EndNs() <= parent.EndNs()
}

// FindStat returns a pointer to the event's stat with the given metadata id,
// or nil if the event does not carry it.
func (e *Event) FindStat(metadataID int64) *Stat {
	for i := range e.Stats {
		if e.Stats[i].MetadataID == metadataID {
			return &e.Stats[i]
		}
	}
	return nil
}

// AddOrUpdateIntStat writes a signed integer stat, replacing any existing
// stat with the same metadata id.
func AddOrUpdateIntStat(metadataID int64, value int64, e *Event) {
	addOrUpdateStat(metadataID, IntValue(value), e)
}

// AddOrUpdateStrStat writes a string stat, replacing any existing stat with
// the same metadata id.
func AddOrUpdateStrStat(metadataID int64, value string, e *Event) {
	addOrUpdateStat(metadataID, StrValue(value), e)
}

func addOrUpdateStat(metadataID int64, value StatValue, e *Event) {
	if s := e.FindStat(metadataID); s != nil {
		s.Value = value
		return
	}
	e.Stats = append(e.Stats, Stat{MetadataID: metadataID, Value: value})
}

// Line is one thread or stream: an ordered run of events. Events are
// expected to be sorted by start time before linking runs over them.
type Line struct {
	ID     int64
	Name   string
	Events []*Event
}

// Plane is one timeline collection (the host, or a single device) together
// with the metadata tables its events and stats refer into.
type Plane struct {
	Name  string
	Lines []*Line

	eventMeta metaTable
	statMeta  metaTable
	nextMeta  int64
}

// NewPlane creates an empty plane with empty metadata tables.
func NewPlane(name string) *Plane {
	return &Plane{
		Name:      name,
		eventMeta: newMetaTable(),
		statMeta:  newMetaTable(),
		nextMeta:  1,
	}
}

// AddLine appends a new empty line and returns it.
func (p *Plane) AddLine(id int64, name string) *Line {
	line := &Line{ID: id, Name: name}
	p.Lines = append(p.Lines, line)
	return line
}

// EventMetadataID returns the metadata id for the given event name,
// registering it if unseen.
func (p *Plane) EventMetadataID(name string) int64 {
	return p.eventMeta.id(name, &p.nextMeta)
}

// StatMetadataID returns the metadata id for the given stat name,
// registering it if unseen.
func (p *Plane) StatMetadataID(name string) int64 {
	return p.statMeta.id(name, &p.nextMeta)
}

// LookupStatMetadataID finds the metadata id for a stat name without
// registering it.
func (p *Plane) LookupStatMetadataID(name string) (int64, bool) {
	id, ok := p.statMeta.byName[name]
	return id, ok
}

// EventMetadataName resolves an event metadata id back to its name.
func (p *Plane) EventMetadataName(id int64) string { return p.eventMeta.byID[id] }

// StatMetadataName resolves a stat metadata id back to its name.
func (p *Plane) StatMetadataName(id int64) string { return p.statMeta.byID[id] }

type metaTable struct {
	byID   map[int64]string
	byName map[string]int64
}

func newMetaTable() metaTable {
	return metaTable{byID: make(map[int64]string), byName: make(map[string]int64)}
}

func (t metaTable) id(name string, next *int64) int64 {
	if id, ok := t.byName[name]; ok {
		return id
	}
	id := *next
	*next++
	t.byID[id] = name
	t.byName[name] = id
	return id
}
