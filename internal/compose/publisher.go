package compose

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"padbridge/internal/filter"
	"padbridge/internal/mapping"
	"padbridge/internal/pad"
	"padbridge/internal/sched"
)

// maxPending bounds the intake queue when the publisher is not draining it.
// Past this the queue is folded into the value table, latest value winning.
const maxPending = 4096

// DefaultPublishHz is the stock publish rate.
const DefaultPublishHz = 250.0

type namedSample struct {
	id string
	v  float64
}

// PublisherConfig configures a Publisher. Table and Sink are required.
type PublisherConfig struct {
	Table    *mapping.Table
	Filters  *filter.Keyed // optional per-id filtering at intake
	Sink     ReportSink
	Emitter  Emitter  // optional keyboard/mouse output
	Observer Observer // optional
	// Monitor, if set, receives every sent report as a normalized state.
	Monitor  func(t float64, s pad.State)
	Clock    sched.Clock
	Epoch    time.Time
	TargetHz float64
	Logger   *slog.Logger
}

// Publisher runs the mapped output loop: drain pending samples, resolve
// every mapped action, compose a report and send it.
type Publisher struct {
	table    *mapping.Table
	filters  *filter.Keyed
	sink     ReportSink
	emitter  Emitter
	observer Observer
	monitor  func(t float64, s pad.State)
	epoch    time.Time
	loop     *sched.Loop
	logger   *slog.Logger
	status   sinkStatus

	mu      sync.Mutex
	pending []namedSample
	values  map[string]float64

	testPulse atomic.Bool
	last      atomic.Pointer[Report]
	accepted  atomic.Uint64

	// Loop-owned edge state for keys and mouse buttons.
	keysDown  map[uint16]bool
	mouseDown map[mapping.MouseButton]bool

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPublisher constructs a stopped publisher.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if cfg.Table == nil {
		return nil, errors.New("publisher: nil mapping table")
	}
	if cfg.Sink == nil {
		return nil, errors.New("publisher: nil report sink")
	}
	if cfg.Clock == nil {
		cfg.Clock = sched.RealClock{}
	}
	if cfg.Epoch.IsZero() {
		cfg.Epoch = cfg.Clock.Now()
	}
	if cfg.TargetHz == 0 {
		cfg.TargetHz = DefaultPublishHz
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Publisher{
		table:     cfg.Table,
		filters:   cfg.Filters,
		sink:      cfg.Sink,
		emitter:   cfg.Emitter,
		observer:  cfg.Observer,
		monitor:   cfg.Monitor,
		epoch:     cfg.Epoch,
		loop:      sched.NewLoop(sched.LoopConfig{Clock: cfg.Clock, TargetHz: cfg.TargetHz}),
		logger:    cfg.Logger,
		status:    sinkStatus{path: PathMapped, logger: cfg.Logger},
		values:    make(map[string]float64),
		keysDown:  make(map[uint16]bool),
		mouseDown: make(map[mapping.MouseButton]bool),
	}, nil
}

// AcceptSample queues the latest value of a named signal, sampled at t
// seconds. Filters configured for id are applied here, before resolution.
// Safe for concurrent use by any number of producers.
func (p *Publisher) AcceptSample(id string, v, t float64) {
	if p.filters != nil {
		v = p.filters.Apply(id, t, v)
	}
	p.accepted.Add(1)

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) >= maxPending {
		p.foldPendingLocked()
	}
	p.pending = append(p.pending, namedSample{id: id, v: v})
}

func (p *Publisher) foldPendingLocked() {
	for _, s := range p.pending {
		p.values[s.id] = s.v
	}
	p.pending = p.pending[:0]
}

// Value returns the latest drained value of a signal id.
func (p *Publisher) Value(id string) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.values[id]
	return v, ok
}

// Values returns a copy of the value table.
func (p *Publisher) Values() map[string]float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]float64, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// Accepted counts samples passed to AcceptSample.
func (p *Publisher) Accepted() uint64 { return p.accepted.Load() }

// Cycle runs one publish step at now. It reports false only when there was
// nothing to publish because the mapping table is empty.
func (p *Publisher) Cycle(now time.Time) bool {
	var out mapping.Outcome
	var mapped bool

	p.mu.Lock()
	p.foldPendingLocked()
	p.table.View(func(entries []mapping.Entry) {
		if len(entries) == 0 {
			return
		}
		mapped = true
		out = mapping.Resolve(entries, func(id string) (float64, bool) {
			v, ok := p.values[id]
			return v, ok
		})
	})
	p.mu.Unlock()

	pulse := p.testPulse.Swap(false)
	if !mapped && !pulse {
		return false
	}

	state := out.State
	if pulse {
		state = pad.TestPulse(state)
	}
	rep := FromState(state)
	err := p.sink.SendReport(rep)
	p.status.record(err)
	if p.observer != nil {
		p.observer.ObserveReport(PathMapped, err)
	}
	p.last.Store(&rep)

	p.emitEdges(out)

	if p.monitor != nil {
		p.monitor(now.Sub(p.epoch).Seconds(), rep.State())
	}
	return true
}

// emitEdges sends key and mouse transitions. Keys no longer referenced by
// any entry are released.
func (p *Publisher) emitEdges(out mapping.Outcome) {
	if p.emitter == nil {
		return
	}
	for code, down := range p.keysDown {
		if _, still := out.Keys[code]; !still && down {
			p.sendKey(code, false)
			delete(p.keysDown, code)
		}
	}
	for code, down := range out.Keys {
		if p.keysDown[code] != down {
			p.sendKey(code, down)
			p.keysDown[code] = down
		}
	}
	for b, down := range p.mouseDown {
		if _, still := out.Mouse[b]; !still && down {
			p.sendMouse(b, false)
			delete(p.mouseDown, b)
		}
	}
	for b, down := range out.Mouse {
		if p.mouseDown[b] != down {
			p.sendMouse(b, down)
			p.mouseDown[b] = down
		}
	}
}

func (p *Publisher) sendKey(code uint16, down bool) {
	if err := p.emitter.Key(code, down); err != nil {
		p.logger.Warn("key emit failed", "code", code, "down", down, "error", err)
	}
}

func (p *Publisher) sendMouse(b mapping.MouseButton, down bool) {
	if err := p.emitter.Mouse(b, down); err != nil {
		p.logger.Warn("mouse emit failed", "button", b.String(), "down", down, "error", err)
	}
}

// Start launches the publish loop. Calling Start while running is a no-op.
func (p *Publisher) Start(ctx context.Context) {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel, p.done = cancel, done

	p.logger.Info("publisher starting", "target_hz", p.loop.TargetHz())
	go func() {
		defer close(done)
		p.loop.Run(ctx, func(now time.Time) bool {
			p.Cycle(now)
			return true
		})
		p.releaseAll()
		p.logger.Info("publisher stopped")
	}()
}

// Stop cancels the loop and waits for it to exit. Held keys are released.
func (p *Publisher) Stop() {
	p.runMu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is active.
func (p *Publisher) Running() bool {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.cancel != nil
}

func (p *Publisher) releaseAll() {
	p.emitEdges(mapping.Outcome{})
}

// Reset drops every pending sample and value along with per-id filter state.
// A cycle already in progress may still publish the old values.
func (p *Publisher) Reset() {
	p.mu.Lock()
	p.pending = p.pending[:0]
	p.values = make(map[string]float64)
	p.mu.Unlock()
	if p.filters != nil {
		p.filters.Reset()
	}
}

// TriggerTestPulse makes the next cycle send the diagnostic pattern once.
func (p *Publisher) TriggerTestPulse() { p.testPulse.Store(true) }

// SetTargetHz changes the publish rate, clamped to [10, 8000] Hz.
func (p *Publisher) SetTargetHz(hz float64) { p.loop.SetTargetHz(hz) }

// TargetHz returns the publish rate.
func (p *Publisher) TargetHz() float64 { return p.loop.TargetHz() }

// Stats returns loop statistics.
func (p *Publisher) Stats() sched.PollStats { return p.loop.Stats() }

// LastReport returns the most recently sent report.
func (p *Publisher) LastReport() (Report, bool) {
	r := p.last.Load()
	if r == nil {
		return Report{}, false
	}
	return *r, true
}

// Status returns the last sink error, or "" when the last send succeeded.
func (p *Publisher) Status() string {
	msg, _, _ := p.status.get()
	return msg
}

// Counts returns how many sends succeeded and failed.
func (p *Publisher) Counts() (sent, failed uint64) {
	_, sent, failed = p.status.get()
	return sent, failed
}
