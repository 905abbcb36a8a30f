package otlpconv

import (
	"context"
	"testing"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/tobert/trace-grouper/internal/timeline"
)

func makeResourceSpans(service, scope string, spans ...*tracepb.Span) *tracepb.ResourceSpans {
	return &tracepb.ResourceSpans{
		Resource: &resourcepb.Resource{
			Attributes: []*commonpb.KeyValue{
				{Key: "service.name", Value: &commonpb.AnyValue{
					Value: &commonpb.AnyValue_StringValue{StringValue: service},
				}},
			},
		},
		ScopeSpans: []*tracepb.ScopeSpans{
			{
				Scope: &commonpb.InstrumentationScope{Name: scope},
				Spans: spans,
			},
		},
	}
}

func intAttr(key string, v int64) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: key, Value: &commonpb.AnyValue{
		Value: &commonpb.AnyValue_IntValue{IntValue: v},
	}}
}

func strAttr(key, v string) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: key, Value: &commonpb.AnyValue{
		Value: &commonpb.AnyValue_StringValue{StringValue: v},
	}}
}

func TestConverter_Empty(t *testing.T) {
	c := NewConverter("")
	host, devices := c.Planes()
	if host != nil || devices != nil {
		t.Fatalf("expected no planes before any data, got host=%v devices=%v", host, devices)
	}
}

func TestConverter_SpanToEvent(t *testing.T) {
	c := NewConverter("host")
	err := c.ReceiveSpans(context.Background(), []*tracepb.ResourceSpans{
		makeResourceSpans("host", "runtime", &tracepb.Span{
			Name:              "SessionRun",
			StartTimeUnixNano: 1000,
			EndTimeUnixNano:   5000,
			Attributes: []*commonpb.KeyValue{
				intAttr("step_id", 7),
				strAttr("graph_type", "train"),
			},
		}),
	})
	if err != nil {
		t.Fatalf("ReceiveSpans failed: %v", err)
	}

	host, devices := c.Planes()
	if host == nil {
		t.Fatal("expected a host plane")
	}
	if len(devices) != 0 {
		t.Fatalf("expected no device planes, got %d", len(devices))
	}
	if len(host.Lines) != 1 || len(host.Lines[0].Events) != 1 {
		t.Fatalf("expected one line with one event, got %+v", host.Lines)
	}

	e := host.Lines[0].Events[0]
	if e.StartNs != 1000 || e.DurationNs != 4000 {
		t.Errorf("wrong interval: start=%d dur=%d", e.StartNs, e.DurationNs)
	}

	v := timeline.NewVisitor(host)
	if got := v.EventType(e); got != timeline.EventSessionRun {
		t.Errorf("expected SessionRun event type, got %v", got)
	}
	step := v.FindStatByType(e, timeline.StatStepID)
	if step == nil {
		t.Fatal("step_id stat missing")
	}
	if got, _ := step.Value.AsInt64(); got != 7 {
		t.Errorf("step_id = %d, want 7", got)
	}
	graph := v.FindStatByType(e, timeline.StatGraphType)
	if graph == nil || graph.Value.Str() != "train" {
		t.Errorf("graph_type stat wrong: %+v", graph)
	}
}

func TestConverter_HostAndDevicePlanes(t *testing.T) {
	c := NewConverter("host")
	err := c.ReceiveSpans(context.Background(), []*tracepb.ResourceSpans{
		makeResourceSpans("device:0", "stream 1", &tracepb.Span{
			Name: "kernel", StartTimeUnixNano: 30, EndTimeUnixNano: 40,
		}),
		makeResourceSpans("host", "main", &tracepb.Span{
			Name: "launch", StartTimeUnixNano: 10, EndTimeUnixNano: 20,
		}),
	})
	if err != nil {
		t.Fatalf("ReceiveSpans failed: %v", err)
	}

	host, devices := c.Planes()
	if host == nil || host.Name != "host" {
		t.Fatalf("expected host plane named host, got %v", host)
	}
	if len(devices) != 1 || devices[0].Name != "device:0" {
		t.Fatalf("expected one device plane, got %v", devices)
	}
}

func TestConverter_FirstServiceIsHostFallback(t *testing.T) {
	c := NewConverter("")
	err := c.ReceiveSpans(context.Background(), []*tracepb.ResourceSpans{
		makeResourceSpans("trainer", "main", &tracepb.Span{
			Name: "step", StartTimeUnixNano: 1, EndTimeUnixNano: 2,
		}),
	})
	if err != nil {
		t.Fatalf("ReceiveSpans failed: %v", err)
	}
	host, _ := c.Planes()
	if host == nil || host.Name != "trainer" {
		t.Fatalf("expected first-seen service as host, got %v", host)
	}
}

func TestConverter_EventsSortedByStart(t *testing.T) {
	c := NewConverter("host")
	err := c.ReceiveSpans(context.Background(), []*tracepb.ResourceSpans{
		makeResourceSpans("host", "main",
			&tracepb.Span{Name: "b", StartTimeUnixNano: 200, EndTimeUnixNano: 300},
			&tracepb.Span{Name: "a", StartTimeUnixNano: 100, EndTimeUnixNano: 400},
		),
	})
	if err != nil {
		t.Fatalf("ReceiveSpans failed: %v", err)
	}
	host, _ := c.Planes()
	events := host.Lines[0].Events
	if len(events) != 2 || events[0].StartNs != 100 || events[1].StartNs != 200 {
		t.Fatalf("events not sorted by start: %+v", events)
	}
}
