package poller

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"padbridge/internal/pad"
	"padbridge/internal/sched"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedSource returns states from a function of the call index.
type scriptedSource struct {
	calls atomic.Int64
	next  func(i int64) (pad.State, bool)
}

func (s *scriptedSource) Poll() (pad.State, bool) {
	i := s.calls.Add(1) - 1
	return s.next(i)
}

type recordingSink struct {
	mu     sync.Mutex
	times  []float64
	states []pad.State
}

func (r *recordingSink) Process(t float64, s pad.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.times = append(r.times, t)
	r.states = append(r.states, s)
}

func waitUntil(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestPoller_RecordsAndForwards(t *testing.T) {
	clk := sched.NewFakeClock(epoch)
	src := &scriptedSource{next: func(i int64) (pad.State, bool) {
		return pad.State{LX: float64(i) / 100, Buttons: pad.BitA}, true
	}}
	p, err := New(src, Config{Clock: clk, Epoch: epoch, TargetHz: 1000, Capacity: 1024, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	sink := &recordingSink{}
	p.SetSink(sink)

	p.Start(context.Background())
	waitUntil(t, 2*time.Second, func() bool { return p.Samples() >= 50 }, "poller produced no samples")
	p.Stop()

	if !p.Connected() {
		t.Fatalf("expected connected")
	}
	got := p.Snapshot(pad.LeftX)
	want := p.Samples()
	if want > 1024 {
		want = 1024
	}
	if len(got) == 0 || uint64(len(got)) != want {
		t.Fatalf("snapshot has %d samples, want %d", len(got), want)
	}
	for i := 1; i < len(got); i++ {
		if got[i].T <= got[i-1].T {
			t.Fatalf("timestamps not increasing at %d: %v", i, got[i-1:i+1])
		}
		if got[i].T-got[i-1].T < 0.0009 {
			t.Fatalf("samples closer than one interval: %v", got[i-1:i+1])
		}
	}
	if btn := p.Snapshot(pad.ButtonA); btn[0].V != 1 {
		t.Fatalf("button_a not recorded: %v", btn[0])
	}

	sink.mu.Lock()
	n := len(sink.states)
	sink.mu.Unlock()
	if uint64(n) != p.Samples() {
		t.Fatalf("sink saw %d states, want %d", n, p.Samples())
	}
}

func TestPoller_DisconnectedSkipsRings(t *testing.T) {
	clk := sched.NewFakeClock(epoch)
	var online atomic.Bool
	src := &scriptedSource{next: func(int64) (pad.State, bool) {
		return pad.State{LY: 0.5}, online.Load()
	}}
	p, err := New(src, Config{Clock: clk, Epoch: epoch, Capacity: 64, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	sink := &recordingSink{}
	p.SetSink(sink)

	p.Start(context.Background())
	waitUntil(t, 2*time.Second, func() bool { return src.calls.Load() >= 3 }, "source not polled")
	if p.Connected() || p.Samples() != 0 || p.Rings().Len() != 0 {
		t.Fatalf("disconnected cycles touched the rings")
	}

	online.Store(true)
	waitUntil(t, 2*time.Second, func() bool { return p.Connected() && p.Samples() > 0 }, "poller did not recover")
	p.Stop()

	if p.Running() {
		t.Fatalf("still running after Stop")
	}
}

func TestPoller_ParameterClamping(t *testing.T) {
	p, err := New(SourceFunc(func() (pad.State, bool) { return pad.State{}, true }), Config{Capacity: 8, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	p.SetTargetHz(5)
	if p.TargetHz() != sched.MinHz {
		t.Fatalf("TargetHz = %v", p.TargetHz())
	}
	p.SetTargetHz(1e5)
	if p.TargetHz() != sched.MaxHz {
		t.Fatalf("TargetHz = %v", p.TargetHz())
	}
	p.SetWindow(0.1)
	if p.Window() != MinWindow {
		t.Fatalf("Window = %v", p.Window())
	}
	p.SetWindow(600)
	if p.Window() != MaxWindow {
		t.Fatalf("Window = %v", p.Window())
	}
}

func TestPoller_ClearAndBaseline(t *testing.T) {
	clk := sched.NewFakeClock(epoch)
	p, err := New(SourceFunc(func() (pad.State, bool) { return pad.State{Buttons: pad.BitStart}, true }),
		Config{Clock: clk, Epoch: epoch, TargetHz: 100, Window: 1, Capacity: 256, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	p.Start(context.Background())
	// 100 Hz on the fake clock: wait for more than one window of samples.
	waitUntil(t, 2*time.Second, func() bool { return p.Samples() > 150 }, "not enough samples")
	p.Stop()

	plain := p.Snapshot(pad.Start)
	base := p.SnapshotWithBaseline(pad.Start)
	if len(base) != len(plain)+1 {
		t.Fatalf("baseline snapshot has %d samples, plain %d", len(base), len(plain))
	}
	if base[0].T >= p.LatestTime()-p.Window() {
		t.Fatalf("baseline sample %v is inside the window", base[0])
	}

	p.Clear()
	if len(p.Snapshot(pad.Start)) != 0 || p.LatestTime() != 0 {
		t.Fatalf("Clear left data behind")
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(nil, Config{}); err == nil {
		t.Fatalf("expected error for nil source")
	}
	if _, err := New(SourceFunc(func() (pad.State, bool) { return pad.State{}, true }), Config{Capacity: 100}); err == nil {
		t.Fatalf("expected error for non power of two capacity")
	}
}
