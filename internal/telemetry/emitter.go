// Package telemetry buffers and ships Events from the Orchestrator to
// the Monitor, with a bounded in-memory queue, a background flusher,
// and a JSONL spool so events survive a Monitor outage.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"chief/pkg/telemetry"
)

var meter = otel.Meter("chief/telemetry")

const (
	defaultBatchSize     = 100
	defaultFlushInterval = time.Second
	defaultBufferSize    = 4096
)

// EmitterConfig configures the Emitter.
type EmitterConfig struct {
	MonitorURL    string
	APIKey        string
	BatchSize     int
	FlushInterval time.Duration
	SpoolPath     string // JSONL file events are appended to before a flush attempt
	HTTPTimeout   time.Duration

	// BufferMaxEvents bounds the in-memory queue (spec.md §4.4's
	// buffer.max_events). Emit drops the newest event once it's full.
	BufferMaxEvents int
}

// Emitter buffers Events and ships them to the Monitor's ingest
// endpoint in batches. It never blocks a caller: Emit drops the event
// (logging the drop) when the buffer is full, following the "drop
// newest" overflow policy.
type Emitter struct {
	cfg     EmitterConfig
	client  *http.Client
	log     *slog.Logger
	breaker *gobreaker.CircuitBreaker

	mu      sync.Mutex
	queue   []telemetry.Event
	spool   *spoolFile
	dropped int

	flushNow chan struct{}
	done     chan struct{}
	stopped  chan struct{}
}

// NewEmitter constructs an Emitter with defaults filled in.
func NewEmitter(cfg EmitterConfig, log *slog.Logger) (*Emitter, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 5 * time.Second
	}
	if cfg.BufferMaxEvents <= 0 {
		cfg.BufferMaxEvents = defaultBufferSize
	}

	var sf *spoolFile
	if cfg.SpoolPath != "" {
		var err error
		sf, err = openSpoolFile(cfg.SpoolPath)
		if err != nil {
			return nil, fmt.Errorf("open telemetry spool: %w", err)
		}
	}

	breakerSettings := gobreaker.Settings{
		Name:        "monitor-emit",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	e := &Emitter{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.HTTPTimeout},
		log:      log,
		breaker:  gobreaker.NewCircuitBreaker(breakerSettings),
		queue:    make([]telemetry.Event, 0, cfg.BatchSize),
		spool:    sf,
		flushNow: make(chan struct{}, 1),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	gauge, err := meter.Int64ObservableGauge("chief.telemetry.buffer_depth",
		metric.WithDescription("number of events currently queued in the telemetry emitter's in-memory buffer"))
	if err != nil {
		return nil, fmt.Errorf("register buffer depth gauge: %w", err)
	}
	if _, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(gauge, int64(e.BufferDepth()))
		return nil
	}, gauge); err != nil {
		return nil, fmt.Errorf("register buffer depth callback: %w", err)
	}

	return e, nil
}

// BufferDepth returns the number of events currently queued, for the
// "chief.telemetry.buffer_depth" gauge and diagnostics.
func (e *Emitter) BufferDepth() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Emit enqueues an event for shipping. It is safe for concurrent use.
func (e *Emitter) Emit(ev telemetry.Event) {
	ev.Normalize(time.Now())

	e.mu.Lock()
	if len(e.queue) >= e.cfg.BufferMaxEvents {
		e.dropped++
		e.mu.Unlock()
		return
	}
	e.queue = append(e.queue, ev)
	full := len(e.queue) >= e.cfg.BatchSize
	e.mu.Unlock()

	if full {
		e.triggerFlush()
	}
}

func (e *Emitter) triggerFlush() {
	select {
	case e.flushNow <- struct{}{}:
	default:
	}
}

// Run is the background flush loop. It blocks until ctx is cancelled,
// flushing the remaining queue before returning.
func (e *Emitter) Run(ctx context.Context) {
	e.replaySpool(ctx)

	ticker := time.NewTicker(e.cfg.FlushInterval)
	defer ticker.Stop()
	defer close(e.stopped)

	for {
		select {
		case <-ctx.Done():
			e.flush(context.Background())
			return
		case <-ticker.C:
			e.flush(ctx)
		case <-e.flushNow:
			e.flush(ctx)
		}
	}
}

// Stopped returns a channel closed once Run has finished its final
// flush and exited.
func (e *Emitter) Stopped() <-chan struct{} {
	return e.stopped
}

func (e *Emitter) flush(ctx context.Context) {
	e.replaySpool(ctx)

	e.mu.Lock()
	if len(e.queue) == 0 {
		e.mu.Unlock()
		return
	}
	batch := e.queue
	e.queue = make([]telemetry.Event, 0, e.cfg.BatchSize)
	dropped := e.dropped
	e.dropped = 0
	e.mu.Unlock()

	if dropped > 0 {
		e.log.Warn("telemetry buffer overflowed, dropped newest events", "dropped", dropped)
	}

	if e.spool != nil {
		if err := e.spool.appendBatch(batch); err != nil {
			e.log.Error("failed to append telemetry spool", "error", err)
		}
	}

	if err := e.postBatch(ctx, batch); err != nil {
		e.log.Warn("failed to ship telemetry batch, will retry from spool", "error", err, "count", len(batch))
		return
	}

	if e.spool != nil {
		if err := e.spool.markSent(len(batch)); err != nil {
			e.log.Error("failed to truncate telemetry spool", "error", err)
		}
	}
}

// replaySpool re-sends any events left in the spool: once at startup
// to recover from a prior crash mid-flush, and again at the top of
// every flush (ticker tick, flushNow signal, or the final shutdown
// flush) so a backlog left behind by an extended Monitor outage
// drains as soon as the Monitor comes back, rather than only on the
// next process restart.
func (e *Emitter) replaySpool(ctx context.Context) {
	if e.spool == nil {
		return
	}
	pending, err := e.spool.readAll()
	if err != nil {
		e.log.Error("failed to read telemetry spool for replay", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}
	if err := e.postBatch(ctx, pending); err != nil {
		e.log.Warn("failed to replay spooled telemetry, leaving spool intact", "error", err)
		return
	}
	e.spool.markSent(len(pending))
}

func (e *Emitter) postBatch(ctx context.Context, batch []telemetry.Event) error {
	// The wire format's /v1/events/batch body is a bare JSON array, not
	// an object wrapping one — matching what the Monitor's ingest
	// handler decodes.
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	_, err = e.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.MonitorURL+"/v1/events/batch", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", e.cfg.APIKey)

		resp, err := e.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("monitor returned status %d", resp.StatusCode)
		}
		return nil, nil
	})
	return err
}
