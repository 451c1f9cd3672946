// Package bridge owns one running pipeline: the input poller with its
// direct forwarding path, the mapped publisher with its table and intake
// filters, the background sample producers and the metrics registry.
//
// Every runtime mutator used by the control socket lives here so callers
// never reach into the components directly.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"padbridge/internal/compose"
	"padbridge/internal/filter"
	"padbridge/internal/gpio"
	"padbridge/internal/hotas"
	"padbridge/internal/mapping"
	"padbridge/internal/metrics"
	"padbridge/internal/pad"
	"padbridge/internal/poller"
	"padbridge/internal/ring"
	"padbridge/internal/sched"
	"padbridge/internal/telemetry"
)

// View selects which ring set a snapshot reads.
type View string

const (
	ViewRaw      View = "raw"
	ViewFiltered View = "filtered"
	ViewMapped   View = "mapped"
)

// ParseView accepts "" as ViewRaw.
func ParseView(s string) (View, error) {
	switch View(s) {
	case "", ViewRaw:
		return ViewRaw, nil
	case ViewFiltered, ViewMapped:
		return View(s), nil
	}
	return "", fmt.Errorf("unknown view %q (must be raw, filtered or mapped)", s)
}

// Test pulse targets.
const (
	PulseForward = "forward"
	PulseMapped  = "mapped"
	PulseBoth    = "both"
)

// Runner is a background sample producer such as a HOTAS pump or a GPIO
// sampler.
type Runner interface {
	Run(ctx context.Context)
}

// Config configures a Bridge. Source is required; a nil Sink discards
// every report.
type Config struct {
	Source  poller.Source
	Sink    compose.ReportSink
	Emitter compose.Emitter

	Clock    sched.Clock
	TargetHz float64
	Window   float64
	Capacity int

	PublishHz float64
	// MonitorMapped records every mapped report into the mapped rings.
	MonitorMapped bool

	Filter         filter.Params
	FilterEnabled  bool
	OutputEnabled  bool
	Modes          map[pad.Signal]filter.Mode
	KeyedModes     map[string]filter.Mode
	TriggerDigital map[pad.Signal]bool

	Logger *slog.Logger
}

// Bridge is the pipeline context. Build it with New, then Start it.
type Bridge struct {
	clock  sched.Clock
	epoch  time.Time
	logger *slog.Logger

	poller    *poller.Poller
	bank      *filter.Bank
	forwarder *compose.Forwarder
	keyed     *filter.Keyed
	table     *mapping.Table
	publisher *compose.Publisher
	metrics   *metrics.Metrics

	mapped       *pad.Rings
	mappedLatest atomic.Uint64 // float64 bits

	mu      sync.Mutex
	shapes  map[string]filter.Shape
	runners []namedRunner
	hotas   *hotas.Pump
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started time.Time
}

type namedRunner struct {
	name string
	r    Runner
}

type discardSink struct{}

func (discardSink) SendReport(compose.Report) error { return nil }

// New builds every component. Nothing runs until Start.
func New(cfg Config) (*Bridge, error) {
	if cfg.Source == nil {
		return nil, errors.New("bridge: nil source")
	}
	if cfg.Sink == nil {
		cfg.Sink = discardSink{}
	}
	if cfg.Clock == nil {
		cfg.Clock = sched.RealClock{}
	}
	if cfg.Capacity == 0 {
		cfg.Capacity = poller.DefaultCapacity
	}
	if cfg.Filter == (filter.Params{}) {
		cfg.Filter = filter.DefaultParams()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	b := &Bridge{
		clock:  cfg.Clock,
		epoch:  cfg.Clock.Now(),
		logger: cfg.Logger,
		shapes: make(map[string]filter.Shape),
	}

	var err error
	b.poller, err = poller.New(cfg.Source, poller.Config{
		Clock:    cfg.Clock,
		Epoch:    b.epoch,
		TargetHz: cfg.TargetHz,
		Window:   cfg.Window,
		Capacity: cfg.Capacity,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("poller: %w", err)
	}
	b.mapped, err = pad.NewRings(cfg.Capacity)
	if err != nil {
		return nil, fmt.Errorf("mapped rings: %w", err)
	}

	// Gauges read through b; they are only scraped after New returns.
	b.metrics, err = metrics.New(b)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	b.bank = filter.NewBank(cfg.Filter)
	b.bank.SetEnabled(cfg.FilterEnabled)
	for sig, m := range cfg.Modes {
		b.bank.SetMode(sig, m)
	}
	for sig, on := range cfg.TriggerDigital {
		b.bank.SetTriggerDigital(sig, on)
	}

	b.forwarder, err = compose.NewForwarder(compose.ForwarderConfig{
		Bank:     b.bank,
		Sink:     cfg.Sink,
		Observer: b.metrics,
		Capacity: cfg.Capacity,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("forwarder: %w", err)
	}
	b.forwarder.SetEnabled(cfg.OutputEnabled)
	b.poller.SetSink(b.forwarder)

	b.keyed = filter.NewKeyed(cfg.Filter)
	for id, m := range cfg.KeyedModes {
		b.keyed.SetMode(id, m, filter.Shape{})
	}

	b.table = mapping.NewTable()
	pcfg := compose.PublisherConfig{
		Table:    b.table,
		Filters:  b.keyed,
		Sink:     cfg.Sink,
		Emitter:  cfg.Emitter,
		Observer: b.metrics,
		Clock:    cfg.Clock,
		Epoch:    b.epoch,
		TargetHz: cfg.PublishHz,
		Logger:   cfg.Logger,
	}
	if cfg.MonitorMapped {
		pcfg.Monitor = b.recordMapped
	}
	b.publisher, err = compose.NewPublisher(pcfg)
	if err != nil {
		return nil, fmt.Errorf("publisher: %w", err)
	}
	return b, nil
}

func (b *Bridge) recordMapped(t float64, s pad.State) {
	b.mapped.Push(t, s)
	b.mappedLatest.Store(math.Float64bits(t))
}

// Epoch is time zero for every sample timestamp in the pipeline.
func (b *Bridge) Epoch() time.Time { return b.epoch }

// Publisher is the intake for named samples.
func (b *Bridge) Publisher() *compose.Publisher { return b.publisher }

// Metrics returns the registry holder for the HTTP handler.
func (b *Bridge) Metrics() *metrics.Metrics { return b.metrics }

// Table returns the mapping table.
func (b *Bridge) Table() *mapping.Table { return b.table }

// AttachHotas registers a HOTAS pump as a producer and records the filter
// shape of each of its keys. Keys already given a mode keep it.
func (b *Bridge) AttachHotas(p *hotas.Pump) {
	l := p.Layout()
	b.mu.Lock()
	for _, d := range l.Signals {
		b.shapes[l.Key(d)] = d.Shape()
	}
	b.hotas = p
	b.mu.Unlock()
	for _, d := range l.Signals {
		b.reshape(l.Key(d), d.Shape())
	}
	b.AddRunner("hotas", p)
}

// AttachGPIO registers a GPIO sampler as a producer for lines.
func (b *Bridge) AttachGPIO(s *gpio.Sampler, lines []gpio.Line) {
	b.mu.Lock()
	for _, l := range lines {
		b.shapes[l.Key()] = filter.Shape{}
	}
	b.mu.Unlock()
	b.AddRunner("gpio", s)
}

// reshape reapplies an existing keyed mode with the right shape.
func (b *Bridge) reshape(id string, shape filter.Shape) {
	if m, ok := b.keyed.Modes()[id]; ok {
		b.keyed.SetMode(id, m, shape)
	}
}

// AddRunner registers a producer. Producers added after Start run
// immediately.
func (b *Bridge) AddRunner(name string, r Runner) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.runners = append(b.runners, namedRunner{name: name, r: r})
	if b.cancel != nil {
		b.spawnLocked(name, r)
	}
}

// Start launches the poller, the publisher and every producer. Calling
// Start while running is a no-op.
func (b *Bridge) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return
	}
	b.runCtx, b.cancel = context.WithCancel(ctx)
	b.started = b.clock.Now()

	b.poller.Start(b.runCtx)
	b.publisher.Start(b.runCtx)
	for _, nr := range b.runners {
		b.spawnLocked(nr.name, nr.r)
	}
	b.logger.Info("pipeline started",
		"target_hz", b.poller.TargetHz(),
		"publish_hz", b.publisher.TargetHz(),
		"producers", len(b.runners))
}

func (b *Bridge) spawnLocked(name string, r Runner) {
	ctx := b.runCtx
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		r.Run(ctx)
		b.logger.Debug("producer exited", "producer", name)
	}()
}

// Stop halts every loop and waits for them. The publisher releases any
// keys it holds.
func (b *Bridge) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	b.cancel, b.runCtx = nil, nil
	b.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	b.poller.Stop()
	b.publisher.Stop()
	b.wg.Wait()
	b.logger.Info("pipeline stopped")
}

// Running reports whether Start has been called without a matching Stop.
func (b *Bridge) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancel != nil
}

// ============================================================================
// Runtime mutators
// ============================================================================
// Numeric parameters are clamped by the components, never rejected. Errors
// are only returned for names that do not exist.
// ============================================================================

// SetTargetHz changes the input sampling rate.
func (b *Bridge) SetTargetHz(hz float64) { b.poller.SetTargetHz(hz) }

// SetPublishHz changes the mapped publish rate.
func (b *Bridge) SetPublishHz(hz float64) { b.publisher.SetTargetHz(hz) }

// SetWindow changes the rolling window in seconds.
func (b *Bridge) SetWindow(sec float64) { b.poller.SetWindow(sec) }

// SetFilterMode sets the mode of a gamepad signal ("left_x", "button_a") or
// of a named producer key ("stick:trigger", "gpio:gear").
func (b *Bridge) SetFilterMode(id string, m filter.Mode) error {
	if sig, err := pad.ParseSignal(id); err == nil {
		b.bank.SetMode(sig, m)
		return nil
	}
	b.mu.Lock()
	shape, ok := b.shapes[id]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown signal %q", id)
	}
	b.keyed.SetMode(id, m, shape)
	return nil
}

// FilterMode returns the mode of id, as accepted by SetFilterMode.
func (b *Bridge) FilterMode(id string) (filter.Mode, error) {
	if sig, err := pad.ParseSignal(id); err == nil {
		return b.bank.Mode(sig), nil
	}
	b.mu.Lock()
	_, ok := b.shapes[id]
	b.mu.Unlock()
	if !ok {
		return filter.Mode{}, fmt.Errorf("unknown signal %q", id)
	}
	return b.keyed.Mode(id), nil
}

// SetFilterParams replaces the global filter settings on both paths.
func (b *Bridge) SetFilterParams(p filter.Params) {
	b.bank.SetParams(p)
	b.keyed.SetParams(p)
}

// FilterParams returns the clamped global settings.
func (b *Bridge) FilterParams() filter.Params { return b.bank.Params() }

// SetTriggerDigital switches a trigger between analog and digital handling.
func (b *Bridge) SetTriggerDigital(sig pad.Signal, on bool) error {
	if sig != pad.LeftTrigger && sig != pad.RightTrigger {
		return fmt.Errorf("%s is not a trigger", sig)
	}
	b.bank.SetTriggerDigital(sig, on)
	return nil
}

// EnableFilter turns the direct path filters on or off.
func (b *Bridge) EnableFilter(on bool) { b.bank.SetEnabled(on) }

// EnableOutput turns direct forwarding on or off.
func (b *Bridge) EnableOutput(on bool) { b.forwarder.SetEnabled(on) }

// TestPulse requests the diagnostic report on one or both paths.
func (b *Bridge) TestPulse(target string) error {
	switch target {
	case "", PulseBoth:
		b.forwarder.TriggerTestPulse()
		b.publisher.TriggerTestPulse()
	case PulseForward:
		b.forwarder.TriggerTestPulse()
	case PulseMapped:
		b.publisher.TriggerTestPulse()
	default:
		return fmt.Errorf("unknown test pulse target %q", target)
	}
	return nil
}

// Clear empties every ring and resets all filter and intake state.
func (b *Bridge) Clear() {
	b.poller.Clear()
	b.forwarder.Clear()
	b.mapped.Clear()
	b.mappedLatest.Store(0)
	b.bank.Reset()
	b.publisher.Reset()
	b.logger.Info("pipeline cleared")
}

// AddMapping appends one entry; an empty id is generated.
func (b *Bridge) AddMapping(e mapping.Entry) (mapping.Entry, error) {
	return b.table.Add(e)
}

// RemoveMapping deletes the entry with id.
func (b *Bridge) RemoveMapping(id string) error { return b.table.Remove(id) }

// ListMappings returns a copy of the table.
func (b *Bridge) ListMappings() []mapping.Entry { return b.table.List() }

// LoadProfile replaces the table from a profile file. On error the table
// is unchanged.
func (b *Bridge) LoadProfile(path string) error {
	if err := b.table.LoadFile(path); err != nil {
		return err
	}
	b.logger.Info("mapping profile loaded", "path", path, "mappings", b.table.Len())
	return nil
}

// SaveProfile writes the table to path.
func (b *Bridge) SaveProfile(path string) error {
	if err := b.table.SaveFile(path); err != nil {
		return err
	}
	b.logger.Info("mapping profile saved", "path", path, "mappings", b.table.Len())
	return nil
}

// ============================================================================
// Queries
// ============================================================================

// Snapshot returns the rolling window of one signal from view. With
// baseline set the sample just before the window is prepended.
func (b *Bridge) Snapshot(view View, sig pad.Signal, baseline bool) []ring.Sample {
	return b.SnapshotWindow(view, sig, b.poller.Window(), baseline)
}

// SnapshotWindow is Snapshot with an explicit window in seconds, counted
// back from the newest sample of view.
func (b *Bridge) SnapshotWindow(view View, sig pad.Signal, window float64, baseline bool) []ring.Sample {
	if view == ViewFiltered {
		if baseline {
			return b.forwarder.SnapshotWithBaseline(sig, window)
		}
		return b.forwarder.Snapshot(sig, window)
	}
	rs, latest := b.poller.Rings(), b.poller.LatestTime()
	if view == ViewMapped {
		rs, latest = b.mapped, b.LatestTime(ViewMapped)
	}
	if baseline {
		return rs.SnapshotWithBaseline(sig, latest, window)
	}
	return rs.Snapshot(sig, latest, window)
}

// LatestTime is the timestamp of the newest sample in view.
func (b *Bridge) LatestTime(view View) float64 {
	switch view {
	case ViewFiltered:
		return b.forwarder.LatestTime()
	case ViewMapped:
		return math.Float64frombits(b.mappedLatest.Load())
	}
	return b.poller.LatestTime()
}

// Window returns the rolling window in seconds.
func (b *Bridge) Window() float64 { return b.poller.Window() }

// Values returns the current named values on the mapped path.
func (b *Bridge) Values() map[string]float64 { return b.publisher.Values() }

// Signals lists every id SetFilterMode accepts, gamepad signals first.
func (b *Bridge) Signals() []string {
	out := make([]string, 0, pad.Count)
	for _, sig := range pad.All() {
		out = append(out, sig.String())
	}
	b.mu.Lock()
	named := make([]string, 0, len(b.shapes))
	for id := range b.shapes {
		named = append(named, id)
	}
	b.mu.Unlock()
	sort.Strings(named)
	return append(out, named...)
}

// Status is a point-in-time view of the whole pipeline.
type Status struct {
	UptimeSeconds      float64         `json:"uptime_s"`
	Running            bool            `json:"running"`
	InputConnected     bool            `json:"input_connected"`
	TargetHz           float64         `json:"target_hz"`
	EffectiveHz        float64         `json:"effective_hz"`
	AvgLoopUS          float64         `json:"avg_loop_us"`
	Samples            uint64          `json:"samples"`
	WindowSeconds      float64         `json:"window_sec"`
	FilterEnabled      bool            `json:"filter_enabled"`
	FilterParams       filter.Params   `json:"filter_params"`
	OutputEnabled      bool            `json:"output_enabled"`
	OutputStatus       string          `json:"output_status,omitempty"`
	OutputSent         uint64          `json:"output_sent"`
	OutputFailed       uint64          `json:"output_failed"`
	PublishHz          float64         `json:"publish_hz"`
	PublishEffectiveHz float64         `json:"publish_effective_hz"`
	MappedStatus       string          `json:"mapped_status,omitempty"`
	MappedSent         uint64          `json:"mapped_sent"`
	MappedFailed       uint64          `json:"mapped_failed"`
	Mappings           int             `json:"mappings"`
	MappingVersion     uint64          `json:"mapping_version"`
	HotasConnected     bool            `json:"hotas_connected"`
	LastReport         *compose.Report `json:"last_report,omitempty"`
	LastMappedReport   *compose.Report `json:"last_mapped_report,omitempty"`
}

// Status collects a Status.
func (b *Bridge) Status() Status {
	ps := b.poller.Stats()
	fs, ff := b.forwarder.Counts()
	ms, mf := b.publisher.Counts()
	st := Status{
		Running:            b.Running(),
		InputConnected:     b.poller.Connected(),
		TargetHz:           b.poller.TargetHz(),
		EffectiveHz:        ps.EffectiveHz,
		AvgLoopUS:          ps.AvgLoopUS,
		Samples:            b.poller.Samples(),
		WindowSeconds:      b.poller.Window(),
		FilterEnabled:      b.bank.Enabled(),
		FilterParams:       b.bank.Params(),
		OutputEnabled:      b.forwarder.Enabled(),
		OutputStatus:       b.forwarder.Status(),
		OutputSent:         fs,
		OutputFailed:       ff,
		PublishHz:          b.publisher.TargetHz(),
		PublishEffectiveHz: b.publisher.Stats().EffectiveHz,
		MappedStatus:       b.publisher.Status(),
		MappedSent:         ms,
		MappedFailed:       mf,
		Mappings:           b.table.Len(),
		MappingVersion:     b.table.Version(),
		HotasConnected:     b.HotasConnected(),
	}
	b.mu.Lock()
	if !b.started.IsZero() && b.cancel != nil {
		st.UptimeSeconds = b.clock.Now().Sub(b.started).Seconds()
	}
	b.mu.Unlock()
	if r, ok := b.forwarder.LastReport(); ok {
		st.LastReport = &r
	}
	if r, ok := b.publisher.LastReport(); ok {
		st.LastMappedReport = &r
	}
	return st
}

// Telemetry condenses Status into the MQTT heartbeat shape.
func (b *Bridge) Telemetry() telemetry.Snapshot {
	st := b.Status()
	return telemetry.Snapshot{
		UptimeSeconds:  int64(st.UptimeSeconds),
		InputConnected: st.InputConnected,
		TargetHz:       st.TargetHz,
		EffectiveHz:    st.EffectiveHz,
		AvgLoopUS:      st.AvgLoopUS,
		PublishHz:      st.PublishEffectiveHz,
		OutputEnabled:  st.OutputEnabled,
		OutputStatus:   st.OutputStatus,
		MappedStatus:   st.MappedStatus,
		Mappings:       st.Mappings,
		HotasConnected: st.HotasConnected,
	}
}

// HotasConnected reports whether an attached HOTAS device is open.
func (b *Bridge) HotasConnected() bool {
	b.mu.Lock()
	p := b.hotas
	b.mu.Unlock()
	return p != nil && p.Connected()
}

// The methods below implement metrics.Source.

func (b *Bridge) TargetHz() float64           { return b.poller.TargetHz() }
func (b *Bridge) EffectiveHz() float64        { return b.poller.Stats().EffectiveHz }
func (b *Bridge) AvgLoopUS() float64          { return b.poller.Stats().AvgLoopUS }
func (b *Bridge) PublishEffectiveHz() float64 { return b.publisher.Stats().EffectiveHz }
func (b *Bridge) InputConnected() bool        { return b.poller.Connected() }
func (b *Bridge) Samples() uint64             { return b.poller.Samples() }
func (b *Bridge) Mappings() int               { return b.table.Len() }
