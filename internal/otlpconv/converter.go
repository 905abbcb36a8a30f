// Package otlpconv materializes OTLP trace data into timeline planes so the
// grouping engine can run over it: one plane per service resource, one line
// per instrumentation scope, spans become events and span attributes become
// stats. Only integer and string attribute values survive the conversion;
// the grouping engine has no use for the other kinds.
package otlpconv

import (
	"context"
	"sort"
	"sync"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/tobert/trace-grouper/internal/timeline"
)

// DefaultHostService is the service name treated as the host plane when the
// caller does not pick one.
const DefaultHostService = "host"

// Converter accumulates resource spans into planes. It implements the
// receiver SpanReceiver interface so it can sit directly behind the gRPC
// endpoint or the file loader; Export may be called concurrently.
type Converter struct {
	hostService string

	mu     sync.Mutex
	planes map[string]*timeline.Plane
	order  []string
	lines  map[string]map[string]*timeline.Line
}

// NewConverter creates a converter that treats hostService as the host
// plane. Pass "" for DefaultHostService.
func NewConverter(hostService string) *Converter {
	if hostService == "" {
		hostService = DefaultHostService
	}
	return &Converter{
		hostService: hostService,
		planes:      make(map[string]*timeline.Plane),
		lines:       make(map[string]map[string]*timeline.Line),
	}
}

// ReceiveSpans folds a batch of resource spans into the accumulated planes.
func (c *Converter) ReceiveSpans(ctx context.Context, resourceSpans []*tracepb.ResourceSpans) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, rs := range resourceSpans {
		service := serviceName(rs)
		plane := c.plane(service)
		for _, ss := range rs.ScopeSpans {
			line := c.line(plane, service, scopeName(ss))
			for _, span := range ss.Spans {
				line.Events = append(line.Events, c.convertSpan(plane, span))
			}
		}
	}
	return nil
}

// Planes returns the accumulated host plane and device planes, with each
// line's events ordered by start time as the linker requires. The host is
// the plane whose service matches the configured host service, falling back
// to the first service seen; nil host means no data arrived.
func (c *Converter) Planes() (*timeline.Plane, []*timeline.Plane) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.order) == 0 {
		return nil, nil
	}
	hostKey := c.order[0]
	if _, ok := c.planes[c.hostService]; ok {
		hostKey = c.hostService
	}

	var host *timeline.Plane
	var devices []*timeline.Plane
	for _, key := range c.order {
		p := c.planes[key]
		for _, line := range p.Lines {
			sortEventsByStart(line.Events)
		}
		if key == hostKey {
			host = p
		} else {
			devices = append(devices, p)
		}
	}
	return host, devices
}

func (c *Converter) plane(service string) *timeline.Plane {
	if p, ok := c.planes[service]; ok {
		return p
	}
	p := timeline.NewPlane(service)
	// Make sure the write-back slots exist so grouping can annotate events.
	p.StatMetadataID(timeline.StatGroupID.String())
	p.StatMetadataID(timeline.StatStepName.String())
	c.planes[service] = p
	c.order = append(c.order, service)
	c.lines[service] = make(map[string]*timeline.Line)
	return p
}

func (c *Converter) line(plane *timeline.Plane, service, scope string) *timeline.Line {
	if l, ok := c.lines[service][scope]; ok {
		return l
	}
	l := plane.AddLine(int64(len(plane.Lines)), scope)
	c.lines[service][scope] = l
	return l
}

func (c *Converter) convertSpan(plane *timeline.Plane, span *tracepb.Span) *timeline.Event {
	start := int64(span.StartTimeUnixNano)
	dur := int64(span.EndTimeUnixNano) - start
	if dur < 0 {
		dur = 0
	}
	e := &timeline.Event{
		MetadataID: plane.EventMetadataID(span.Name),
		StartNs:    start,
		DurationNs: dur,
	}
	for _, attr := range span.Attributes {
		if v, ok := statValue(attr.Value); ok {
			e.Stats = append(e.Stats, timeline.Stat{
				MetadataID: plane.StatMetadataID(attr.Key),
				Value:      v,
			})
		}
	}
	return e
}

func statValue(v *commonpb.AnyValue) (timeline.StatValue, bool) {
	switch val := v.GetValue().(type) {
	case *commonpb.AnyValue_IntValue:
		return timeline.IntValue(val.IntValue), true
	case *commonpb.AnyValue_StringValue:
		return timeline.StrValue(val.StringValue), true
	default:
		return timeline.StatValue{}, false
	}
}

func serviceName(rs *tracepb.ResourceSpans) string {
	if rs.Resource != nil {
		for _, attr := range rs.Resource.Attributes {
			if attr.Key == "service.name" {
				if sv := attr.Value.GetStringValue(); sv != "" {
					return sv
				}
			}
		}
	}
	return "unknown"
}

func scopeName(ss *tracepb.ScopeSpans) string {
	if ss.Scope != nil && ss.Scope.Name != "" {
		return ss.Scope.Name
	}
	return "default"
}

func sortEventsByStart(events []*timeline.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartNs < events[j].StartNs
	})
}
