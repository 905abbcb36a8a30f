package test

import (
	"context"
	"strings"
	"testing"
	"time"

	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/tobert/trace-grouper/internal/grouper"
	"github.com/tobert/trace-grouper/internal/otlpconv"
	"github.com/tobert/trace-grouper/internal/otlpreceiver"
	"github.com/tobert/trace-grouper/internal/render"
)

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

func resourceSpans(service, scope string, spans ...*tracepb.Span) *tracepb.ResourceSpans {
	return &tracepb.ResourceSpans{
		Resource: &resourcepb.Resource{
			Attributes: []*commonpb.KeyValue{strAttr("service.name", service)},
		},
		ScopeSpans: []*tracepb.ScopeSpans{
			{Scope: &commonpb.InstrumentationScope{Name: scope}, Spans: spans},
		},
	}
}

// TestEndToEnd drives the whole pipeline: spans arrive over OTLP gRPC, the
// converter materializes timeline planes, the grouper correlates host and
// device events into one group, and the renderer reports it.
func TestEndToEnd(t *testing.T) {
	conv := otlpconv.NewConverter("host")

	server, err := otlpreceiver.NewServer(
		otlpreceiver.Config{Host: "127.0.0.1", Port: 0}, conv)
	if err != nil {
		t.Fatalf("failed to create OTLP server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := server.Start(ctx); err != nil {
			t.Logf("OTLP server stopped: %v", err)
		}
	}()
	defer server.Stop()

	conn, err := grpc.NewClient(server.Endpoint(),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("failed to create grpc client: %v", err)
	}
	defer conn.Close()
	client := collectortrace.NewTraceServiceClient(conn)

	base := uint64(time.Now().UnixNano())
	req := &collectortrace.ExportTraceServiceRequest{
		ResourceSpans: []*tracepb.ResourceSpans{
			resourceSpans("host", "python",
				&tracepb.Span{
					Name:              "FunctionRun",
					StartTimeUnixNano: base,
					EndTimeUnixNano:   base + 1_000_000,
					Attributes: []*commonpb.KeyValue{
						intAttr("step_id", 3),
						strAttr("graph_type", "train"),
						intAttr("step_num", 3),
					},
				},
				&tracepb.Span{
					Name:              "cudaLaunchKernel",
					StartTimeUnixNano: base + 100,
					EndTimeUnixNano:   base + 200,
					Attributes: []*commonpb.KeyValue{
						intAttr("correlation_id", 9),
						intAttr("device_id", 0),
					},
				},
			),
			resourceSpans("device:0", "stream 7",
				&tracepb.Span{
					Name:              "sgemm",
					StartTimeUnixNano: base + 5000,
					EndTimeUnixNano:   base + 9000,
					Attributes: []*commonpb.KeyValue{
						intAttr("correlation_id", 9),
					},
				},
			),
		},
	}
	if _, err := client.Export(context.Background(), req); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	host, devices := conv.Planes()
	if host == nil || len(devices) != 1 {
		t.Fatalf("expected host plus one device plane, got host=%v devices=%d", host, len(devices))
	}

	names := grouper.GroupDefaultEvents(host, devices)
	if len(names) != 1 {
		t.Fatalf("expected one group, got %v", names)
	}
	if names[0] != "train 3" {
		t.Errorf("group name = %q, want %q", names[0], "train 3")
	}

	rows := render.CollectRows(host, devices[0])
	if len(rows) != 3 {
		t.Fatalf("expected 3 grouped events across planes, got %d", len(rows))
	}

	report := render.Report(names, rows, 100)
	if !strings.Contains(report, `Group 0 "train 3"`) {
		t.Errorf("report missing group header:\n%s", report)
	}
	if !strings.Contains(report, "device:0/stream 7 sgemm") {
		t.Errorf("report missing device kernel row:\n%s", report)
	}
}
