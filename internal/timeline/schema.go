package timeline

// EventType identifies a recognized event kind. Events whose metadata name
// is not in the catalog resolve to EventUnknown.
type EventType int64

const (
	EventUnknown EventType = iota
	EventTraceContext
	EventSessionRun
	EventFunctionRun
	EventExecutorStep
	EventKernelLaunch
	EventKernelExecute
)

// StatType identifies a recognized stat kind.
type StatType int64

const (
	StatUnknown StatType = iota
	StatStepID
	StatCorrelationID
	StatDeviceID
	StatGraphType
	StatStepNum
	StatIterNum
	StatGroupID
	StatStepName
)

var eventTypeNames = map[EventType]string{
	EventTraceContext:  "TraceContext",
	EventSessionRun:    "SessionRun",
	EventFunctionRun:   "FunctionRun",
	EventExecutorStep:  "ExecutorStep",
	EventKernelLaunch:  "KernelLaunch",
	EventKernelExecute: "KernelExecute",
}

var statTypeNames = map[StatType]string{
	StatStepID:        "step_id",
	StatCorrelationID: "correlation_id",
	StatDeviceID:      "device_id",
	StatGraphType:     "graph_type",
	StatStepNum:       "step_num",
	StatIterNum:       "iter_num",
	StatGroupID:       "group_id",
	StatStepName:      "step_name",
}

var eventTypesByName = invert(eventTypeNames)
var statTypesByName = invert(statTypeNames)

func invert[K comparable, V comparable](m map[K]V) map[V]K {
	out := make(map[V]K, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// EventTypeByName resolves a catalog event name, e.g. "SessionRun".
func EventTypeByName(name string) (EventType, bool) {
	t, ok := eventTypesByName[name]
	return t, ok
}

// StatTypeByName resolves a catalog stat name, e.g. "step_id".
func StatTypeByName(name string) (StatType, bool) {
	t, ok := statTypesByName[name]
	return t, ok
}

func (t EventType) String() string {
	if n, ok := eventTypeNames[t]; ok {
		return n
	}
	return "Unknown"
}

func (t StatType) String() string {
	if n, ok := statTypeNames[t]; ok {
		return n
	}
	return "unknown"
}

// Visitor resolves a plane's metadata ids against the well-known catalogs
// and locates metadata slots for writing stats back. One visitor serves all
// lines of its plane.
type Visitor struct {
	plane *Plane
}

// NewVisitor builds a visitor for the given plane.
func NewVisitor(p *Plane) *Visitor { return &Visitor{plane: p} }

// Plane returns the plane this visitor reads.
func (v *Visitor) Plane() *Plane { return v.plane }

// EventType resolves an event to its catalog type, or EventUnknown.
func (v *Visitor) EventType(e *Event) EventType {
	if t, ok := eventTypesByName[v.plane.EventMetadataName(e.MetadataID)]; ok {
		return t
	}
	return EventUnknown
}

// StatType resolves a stat to its catalog type, or StatUnknown.
func (v *Visitor) StatType(s Stat) StatType {
	if t, ok := statTypesByName[v.plane.StatMetadataName(s.MetadataID)]; ok {
		return t
	}
	return StatUnknown
}

// StatMetadataID locates the plane's metadata id for a catalog stat type.
// It reports false if the plane has no slot for that stat; callers treat
// writes through a missing slot as best-effort and skip them.
func (v *Visitor) StatMetadataID(t StatType) (int64, bool) {
	name, ok := statTypeNames[t]
	if !ok {
		return 0, false
	}
	return v.plane.LookupStatMetadataID(name)
}

// FindStatByType returns the event's own stat of the given catalog type, or
// nil. It does not search ancestors; context lookup lives with the grouping
// engine.
func (v *Visitor) FindStatByType(e *Event, t StatType) *Stat {
	for i := range e.Stats {
		if v.StatType(e.Stats[i]) == t {
			return &e.Stats[i]
		}
	}
	return nil
}
