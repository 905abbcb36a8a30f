package otlpreceiver

import (
	"context"
	"sync"
	"testing"
	"time"

	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// recordingSink records received resource spans for assertions.
type recordingSink struct {
	mu    sync.Mutex
	spans []*tracepb.ResourceSpans
}

func (r *recordingSink) ReceiveSpans(ctx context.Context, spans []*tracepb.ResourceSpans) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spans = append(r.spans, spans...)
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.spans)
}

func TestNewServer_NilSink(t *testing.T) {
	if _, err := NewServer(Config{Host: "127.0.0.1"}, nil); err == nil {
		t.Fatal("expected error for nil sink")
	}
}

func TestServer_Export(t *testing.T) {
	sink := &recordingSink{}
	server, err := NewServer(Config{Host: "127.0.0.1", Port: 0}, sink)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() { errChan <- server.Start(ctx) }()
	defer server.Stop()

	conn, err := grpc.NewClient(server.Endpoint(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("failed to create grpc client: %v", err)
	}
	defer conn.Close()

	client := collectortrace.NewTraceServiceClient(conn)
	req := &collectortrace.ExportTraceServiceRequest{
		ResourceSpans: []*tracepb.ResourceSpans{
			{
				Resource: &resourcepb.Resource{
					Attributes: []*commonpb.KeyValue{
						{Key: "service.name", Value: &commonpb.AnyValue{
							Value: &commonpb.AnyValue_StringValue{StringValue: "host"},
						}},
					},
				},
				ScopeSpans: []*tracepb.ScopeSpans{
					{Spans: []*tracepb.Span{{
						Name:              "SessionRun",
						StartTimeUnixNano: uint64(time.Now().UnixNano()),
						EndTimeUnixNano:   uint64(time.Now().UnixNano()),
					}}},
				},
			},
		},
	}
	if _, err := client.Export(context.Background(), req); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	if got := sink.count(); got != 1 {
		t.Fatalf("expected 1 resource span, got %d", got)
	}

	server.Stop()
	select {
	case <-errChan:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop in time")
	}
}
