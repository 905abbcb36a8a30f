// Package otlpreceiver runs a gRPC OTLP trace endpoint that feeds received
// resource spans into a sink, normally the otlpconv converter. It exists so
// instrumented programs can export straight into the grouper without going
// through files.
package otlpreceiver

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"

	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/grpc"
)

// SpanReceiver consumes exported resource spans. Export may be called
// concurrently, so implementations must be thread-safe.
type SpanReceiver interface {
	ReceiveSpans(ctx context.Context, spans []*tracepb.ResourceSpans) error
}

// Config holds the receiver's listen address. Port 0 picks an ephemeral
// port; read it back with Endpoint.
type Config struct {
	Host    string
	Port    int
	Verbose bool
}

// Server is the OTLP gRPC trace endpoint.
type Server struct {
	listener net.Listener
	grpc     *grpc.Server
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewServer binds the listener and registers the trace service. The server
// does not accept connections until Start runs.
func NewServer(cfg Config, sink SpanReceiver) (*Server, error) {
	if sink == nil {
		return nil, fmt.Errorf("span sink cannot be nil")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := &Server{
		listener: listener,
		grpc:     grpc.NewServer(),
		stopped:  make(chan struct{}),
	}
	collectortrace.RegisterTraceServiceServer(s.grpc, &traceService{
		sink:    sink,
		verbose: cfg.Verbose,
	})
	return s, nil
}

// Start serves until Stop is called or ctx is cancelled. It blocks, so run
// it in a goroutine.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stopped:
		}
	}()
	return s.grpc.Serve(s.listener)
}

// Stop drains in-flight exports and shuts the server down. Safe to call
// more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.grpc.GracefulStop()
		close(s.stopped)
	})
}

// Endpoint returns the bound address, e.g. "127.0.0.1:54321". Needed when
// the configured port was 0.
func (s *Server) Endpoint() string {
	return s.listener.Addr().String()
}

type traceService struct {
	collectortrace.UnimplementedTraceServiceServer
	sink    SpanReceiver
	verbose bool
}

func (t *traceService) Export(ctx context.Context, req *collectortrace.ExportTraceServiceRequest) (*collectortrace.ExportTraceServiceResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}
	if t.verbose {
		spans := 0
		for _, rs := range req.ResourceSpans {
			for _, ss := range rs.ScopeSpans {
				spans += len(ss.Spans)
			}
		}
		log.Printf("received %d resource spans (%d spans)", len(req.ResourceSpans), spans)
	}
	if err := t.sink.ReceiveSpans(ctx, req.ResourceSpans); err != nil {
		return nil, fmt.Errorf("failed to receive spans: %w", err)
	}
	return &collectortrace.ExportTraceServiceResponse{}, nil
}
