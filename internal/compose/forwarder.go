package compose

import (
	"log/slog"
	"math"
	"sync/atomic"

	"padbridge/internal/filter"
	"padbridge/internal/pad"
	"padbridge/internal/ring"
)

// Forwarder is the direct path: every polled state is filtered, recorded
// into the filtered rings and sent to the sink within the poll cycle.
// It implements poller.Sink.
type Forwarder struct {
	bank     *filter.Bank
	sink     ReportSink
	observer Observer
	filtered *pad.Rings
	status   sinkStatus

	enabled   atomic.Bool
	testPulse atomic.Bool
	latest    atomic.Uint64 // float64 bits
	last      atomic.Pointer[Report]
	lastState atomic.Pointer[pad.State]
}

// ForwarderConfig configures a Forwarder. Bank and Sink are required.
type ForwarderConfig struct {
	Bank     *filter.Bank
	Sink     ReportSink
	Observer Observer
	Capacity int // filtered ring capacity, power of two
	Logger   *slog.Logger
}

// NewForwarder builds an enabled forwarder.
func NewForwarder(cfg ForwarderConfig) (*Forwarder, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Capacity == 0 {
		cfg.Capacity = 1 << 16
	}
	rings, err := pad.NewRings(cfg.Capacity)
	if err != nil {
		return nil, err
	}
	f := &Forwarder{
		bank:     cfg.Bank,
		sink:     cfg.Sink,
		observer: cfg.Observer,
		filtered: rings,
		status:   sinkStatus{path: PathForward, logger: cfg.Logger},
	}
	f.enabled.Store(true)
	return f, nil
}

// Process filters s, records it and sends the composed report. Nothing
// happens while output is disabled.
func (f *Forwarder) Process(t float64, s pad.State) {
	if !f.enabled.Load() {
		return
	}
	out := s
	if f.bank != nil {
		out = f.bank.Apply(t, s)
	}
	if f.testPulse.Swap(false) {
		out = pad.TestPulse(out)
	}

	f.filtered.Push(t, out)
	f.latest.Store(math.Float64bits(t))
	f.lastState.Store(&out)

	rep := FromState(out)
	if f.sink != nil {
		err := f.sink.SendReport(rep)
		f.status.record(err)
		if f.observer != nil {
			f.observer.ObserveReport(PathForward, err)
		}
	}
	f.last.Store(&rep)
}

// SetEnabled turns the output on or off. Filter state is reset on enable so
// stale gates do not carry over.
func (f *Forwarder) SetEnabled(on bool) {
	if f.enabled.Swap(on) != on && on && f.bank != nil {
		f.bank.Reset()
	}
}

// Enabled reports whether output is on.
func (f *Forwarder) Enabled() bool { return f.enabled.Load() }

// TriggerTestPulse overrides the next forwarded report with the diagnostic
// pattern.
func (f *Forwarder) TriggerTestPulse() { f.testPulse.Store(true) }

// LatestTime is the timestamp of the newest filtered sample.
func (f *Forwarder) LatestTime() float64 { return math.Float64frombits(f.latest.Load()) }

// Snapshot returns the filtered window of one signal.
func (f *Forwarder) Snapshot(sig pad.Signal, window float64) []ring.Sample {
	return f.filtered.Snapshot(sig, f.LatestTime(), window)
}

// SnapshotWithBaseline returns the filtered window plus its preceding level.
func (f *Forwarder) SnapshotWithBaseline(sig pad.Signal, window float64) []ring.Sample {
	return f.filtered.SnapshotWithBaseline(sig, f.LatestTime(), window)
}

// Clear empties the filtered rings and resets filter state.
func (f *Forwarder) Clear() {
	f.filtered.Clear()
	f.latest.Store(0)
	if f.bank != nil {
		f.bank.Reset()
	}
}

// LastReport returns the most recently composed report.
func (f *Forwarder) LastReport() (Report, bool) {
	r := f.last.Load()
	if r == nil {
		return Report{}, false
	}
	return *r, true
}

// LastState returns the most recent filtered state.
func (f *Forwarder) LastState() (pad.State, bool) {
	s := f.lastState.Load()
	if s == nil {
		return pad.State{}, false
	}
	return *s, true
}

// Status returns the last sink error, or "" when the last send succeeded.
func (f *Forwarder) Status() string {
	msg, _, _ := f.status.get()
	return msg
}

// Counts returns how many sends succeeded and failed.
func (f *Forwarder) Counts() (sent, failed uint64) {
	_, sent, failed = f.status.get()
	return sent, failed
}
