// Package poller runs the input sampling loop: one Source read per cycle at
// the target rate, recorded into per-signal rings and forwarded to a Sink.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"padbridge/internal/pad"
	"padbridge/internal/ring"
	"padbridge/internal/sched"
)

// Source is the raw input adapter. Poll must not block for long; ok=false
// means no data this cycle (device absent).
type Source interface {
	Poll() (pad.State, bool)
}

// SourceFunc adapts a function to Source.
type SourceFunc func() (pad.State, bool)

func (f SourceFunc) Poll() (pad.State, bool) { return f() }

// Sink receives every successfully polled raw state.
type Sink interface {
	Process(t float64, s pad.State)
}

// Rolling window limits in seconds.
const (
	MinWindow       = 1.0
	MaxWindow       = 60.0
	DefaultWindow   = 30.0
	DefaultCapacity = 1 << 16
	DefaultHz       = 1000.0
)

// ClampWindow forces a window length into [MinWindow, MaxWindow].
func ClampWindow(sec float64) float64 {
	if !(sec >= MinWindow) {
		return MinWindow
	}
	if sec > MaxWindow {
		return MaxWindow
	}
	return sec
}

// Config configures a Poller. Zero values pick defaults.
type Config struct {
	Clock    sched.Clock
	Epoch    time.Time // time zero for sample timestamps
	TargetHz float64
	Window   float64 // seconds
	Capacity int     // per-signal ring capacity, power of two
	Logger   *slog.Logger
}

// Poller owns the raw rings and the sampling loop.
type Poller struct {
	src    Source
	loop   *sched.Loop
	rings  *pad.Rings
	epoch  time.Time
	logger *slog.Logger

	window    atomic.Uint64 // float64 bits, seconds
	latest    atomic.Uint64 // float64 bits, seconds since epoch
	connected atomic.Bool
	sink      atomic.Pointer[sinkHolder]
	samples   atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type sinkHolder struct{ s Sink }

// New constructs a poller reading from src.
func New(src Source, cfg Config) (*Poller, error) {
	if src == nil {
		return nil, errors.New("poller: nil source")
	}
	if cfg.Clock == nil {
		cfg.Clock = sched.RealClock{}
	}
	if cfg.Epoch.IsZero() {
		cfg.Epoch = cfg.Clock.Now()
	}
	if cfg.TargetHz == 0 {
		cfg.TargetHz = DefaultHz
	}
	if cfg.Window == 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Capacity == 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	rings, err := pad.NewRings(cfg.Capacity)
	if err != nil {
		return nil, err
	}

	p := &Poller{
		src:    src,
		loop:   sched.NewLoop(sched.LoopConfig{Clock: cfg.Clock, TargetHz: cfg.TargetHz}),
		rings:  rings,
		epoch:  cfg.Epoch,
		logger: cfg.Logger,
	}
	p.SetWindow(cfg.Window)
	return p, nil
}

// Start launches the sampling goroutine. Calling Start on a running poller
// is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel, p.done = cancel, done

	p.logger.Info("poller starting", "target_hz", p.loop.TargetHz())
	go func() {
		defer close(done)
		p.loop.Run(ctx, p.step)
		p.logger.Info("poller stopped")
	}()
}

// Stop cancels the loop and waits for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Poller) step(now time.Time) bool {
	s, ok := p.src.Poll()
	if !ok {
		if p.connected.Swap(false) {
			p.logger.Warn("input source disconnected")
		}
		return false
	}
	if !p.connected.Swap(true) {
		p.logger.Info("input source connected")
	}

	t := now.Sub(p.epoch).Seconds()
	p.rings.Push(t, s)
	p.latest.Store(math.Float64bits(t))
	p.samples.Add(1)

	if h := p.sink.Load(); h != nil {
		h.s.Process(t, s)
	}
	return true
}

// SetSink installs the sink receiving raw states; nil removes it.
func (p *Poller) SetSink(s Sink) {
	if s == nil {
		p.sink.Store(nil)
		return
	}
	p.sink.Store(&sinkHolder{s: s})
}

// SetTargetHz changes the rate, clamped to [10, 8000] Hz.
func (p *Poller) SetTargetHz(hz float64) { p.loop.SetTargetHz(hz) }

// TargetHz returns the clamped rate.
func (p *Poller) TargetHz() float64 { return p.loop.TargetHz() }

// SetWindow changes the rolling window, clamped to [1, 60] seconds.
func (p *Poller) SetWindow(sec float64) {
	p.window.Store(math.Float64bits(ClampWindow(sec)))
}

// Window returns the rolling window in seconds.
func (p *Poller) Window() float64 { return math.Float64frombits(p.window.Load()) }

// Stats returns the latest loop statistics.
func (p *Poller) Stats() sched.PollStats { return p.loop.Stats() }

// Connected reports whether the last poll returned data.
func (p *Poller) Connected() bool { return p.connected.Load() }

// LatestTime is the timestamp of the newest sample, in seconds since Epoch.
func (p *Poller) LatestTime() float64 { return math.Float64frombits(p.latest.Load()) }

// Epoch is time zero for sample timestamps.
func (p *Poller) Epoch() time.Time { return p.epoch }

// Samples counts successful polls.
func (p *Poller) Samples() uint64 { return p.samples.Load() }

// Snapshot returns the rolling window of one signal.
func (p *Poller) Snapshot(sig pad.Signal) []ring.Sample {
	return p.rings.Snapshot(sig, p.LatestTime(), p.Window())
}

// SnapshotWithBaseline returns the rolling window of one signal plus its
// level just before the window.
func (p *Poller) SnapshotWithBaseline(sig pad.Signal) []ring.Sample {
	return p.rings.SnapshotWithBaseline(sig, p.LatestTime(), p.Window())
}

// Rings exposes the raw rings for readers.
func (p *Poller) Rings() *pad.Rings { return p.rings }

// Clear empties the rings.
func (p *Poller) Clear() {
	p.rings.Clear()
	p.latest.Store(0)
}
