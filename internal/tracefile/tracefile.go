// Package tracefile reads OTLP trace dumps from JSONL files, the format the
// OpenTelemetry Collector's file exporter writes: one TracesData document
// per line. It feeds spans into the same sink the gRPC receiver uses, and
// can keep watching a directory so a growing dump regroups incrementally.
package tracefile

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"google.golang.org/protobuf/encoding/protojson"

	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/tobert/trace-grouper/internal/otlpreceiver"
)

const (
	// OTLP JSON lines can be large for batched spans with many attributes.
	scanBufferInitial = 1 * 1024 * 1024
	scanBufferMax     = 10 * 1024 * 1024
)

// LoadFile reads one JSONL trace file into the sink and returns the number
// of lines ingested. A malformed line is logged and skipped, not fatal.
func LoadFile(ctx context.Context, path string, sink otlpreceiver.SpanReceiver) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()
	return readLines(ctx, file, path, sink)
}

// LoadPath loads a single JSONL file, or every .jsonl file under a
// directory in lexical order.
func LoadPath(ctx context.Context, path string, sink otlpreceiver.SpanReceiver) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("cannot access %s: %w", path, err)
	}
	if !info.IsDir() {
		return LoadFile(ctx, path, sink)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		n, err := LoadFile(ctx, filepath.Join(path, entry.Name()), sink)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func readLines(ctx context.Context, r io.Reader, name string, sink otlpreceiver.SpanReceiver) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, scanBufferInitial), scanBufferMax)

	count := 0
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return count, ctx.Err()
		default:
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		spans, err := parseLine(line)
		if err != nil {
			// One bad line must not stop the load.
			log.Printf("tracefile: skipping bad line in %s: %v", filepath.Base(name), err)
			continue
		}
		if len(spans) > 0 {
			if err := sink.ReceiveSpans(ctx, spans); err != nil {
				return count, err
			}
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("reading %s: %w", name, err)
	}
	return count, nil
}

// parseLine accepts either a TracesData document or a bare
// ExportTraceServiceRequest; both shapes appear in the wild.
func parseLine(line []byte) ([]*tracepb.ResourceSpans, error) {
	var data tracepb.TracesData
	if err := protojson.Unmarshal(line, &data); err == nil {
		return data.ResourceSpans, nil
	}
	var req collectortrace.ExportTraceServiceRequest
	if err := protojson.Unmarshal(line, &req); err != nil {
		return nil, fmt.Errorf("parse trace JSON: %w", err)
	}
	return req.ResourceSpans, nil
}

// Watcher tails a directory of JSONL trace files: existing data loads
// immediately, and appended data flows to the sink as files grow. After
// each batch it invokes onUpdate, which the CLI uses to regroup.
type Watcher struct {
	dir      string
	sink     otlpreceiver.SpanReceiver
	onUpdate func()

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	offsets map[string]int64
}

// NewWatcher creates a watcher over dir. onUpdate may be nil.
func NewWatcher(dir string, sink otlpreceiver.SpanReceiver, onUpdate func()) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot access directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Watcher{
		dir:      dir,
		sink:     sink,
		onUpdate: onUpdate,
		watcher:  fsw,
		offsets:  make(map[string]int64),
	}, nil
}

// Start loads existing files and begins watching. It returns once the
// initial load is done; watching continues in the background until Stop.
func (w *Watcher) Start(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)

	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("could not watch %s: %w", w.dir, err)
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		n, err := w.loadNew(ctx, filepath.Join(w.dir, entry.Name()))
		if err != nil {
			log.Printf("tracefile: error loading %s: %v", entry.Name(), err)
			continue
		}
		loaded += n
	}
	if loaded > 0 && w.onUpdate != nil {
		w.onUpdate()
	}

	w.wg.Add(1)
	go w.watchLoop(ctx)
	return nil
}

// Stop ends watching and waits for the event loop to exit.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.watcher.Close()
	w.wg.Wait()
}

// loadNew reads a file from its last known offset so appended lines are
// ingested exactly once.
func (w *Watcher) loadNew(ctx context.Context, path string) (int, error) {
	w.mu.Lock()
	offset := w.offsets[path]
	w.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	if offset > 0 {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			offset = 0
		}
	}

	count, err := readLines(ctx, file, path, w.sink)
	if err != nil {
		return count, err
	}

	newOffset, _ := file.Seek(0, io.SeekCurrent)
	w.mu.Lock()
	w.offsets[path] = newOffset
	w.mu.Unlock()
	return count, nil
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".jsonl") {
				continue
			}
			n, err := w.loadNew(ctx, event.Name)
			if err != nil {
				log.Printf("tracefile: error reading %s: %v", event.Name, err)
				continue
			}
			if n > 0 && w.onUpdate != nil {
				w.onUpdate()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("tracefile: watcher error: %v", err)
		}
	}
}
