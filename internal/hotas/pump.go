package hotas

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Sink receives decoded samples. compose.Publisher implements it.
type Sink interface {
	AcceptSample(id string, v, t float64)
}

// OpenFunc opens the report stream of a device.
type OpenFunc func() (io.ReadCloser, error)

// Pump defaults.
const (
	DefaultPumpHz    = 50.0
	DefaultStale     = 500 * time.Millisecond
	DefaultReconnect = time.Second
)

// PumpConfig configures a Pump. Layout, Open and Sink are required.
type PumpConfig struct {
	Layout    Layout
	Open      OpenFunc
	Sink      Sink
	Epoch     time.Time
	Hz        float64       // decode cadence
	Stale     time.Duration // reports older than this are ignored
	Reconnect time.Duration // delay between open attempts
	Logger    *slog.Logger
}

// Pump reads raw reports in the background and, at a coarse cadence,
// decodes the newest one into samples for the sink. It never blocks the
// sink's owner; missing or stale data simply produces no samples.
type Pump struct {
	cfg PumpConfig

	mu       sync.Mutex
	latest   []byte
	latestAt time.Time
	values   map[string]float64

	reports   atomic.Uint64
	shorts    atomic.Uint64
	connected atomic.Bool
}

// NewPump validates cfg and fills defaults.
func NewPump(cfg PumpConfig) (*Pump, error) {
	if err := cfg.Layout.Validate(); err != nil {
		return nil, err
	}
	if cfg.Open == nil || cfg.Sink == nil {
		return nil, errors.New("hotas pump: Open and Sink are required")
	}
	if cfg.Epoch.IsZero() {
		cfg.Epoch = time.Now()
	}
	if cfg.Hz <= 0 {
		cfg.Hz = DefaultPumpHz
	}
	if cfg.Stale <= 0 {
		cfg.Stale = DefaultStale
	}
	if cfg.Reconnect <= 0 {
		cfg.Reconnect = DefaultReconnect
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pump{cfg: cfg, values: make(map[string]float64)}, nil
}

// Layout returns the decoded layout.
func (p *Pump) Layout() Layout { return p.cfg.Layout }

// Feed records a raw report received at.
func (p *Pump) Feed(report []byte, at time.Time) {
	p.mu.Lock()
	p.latest = append(p.latest[:0], report...)
	p.latestAt = at
	p.mu.Unlock()
	p.reports.Add(1)
}

// Tick decodes the newest report if it is fresh and pushes its fields to
// the sink, stamped with now. It returns how many samples were pushed.
func (p *Pump) Tick(now time.Time) int {
	p.mu.Lock()
	if len(p.latest) == 0 || now.Sub(p.latestAt) > p.cfg.Stale {
		p.mu.Unlock()
		return 0
	}
	report := append([]byte(nil), p.latest...)
	at := p.latestAt
	p.mu.Unlock()

	vals, err := Decode(p.cfg.Layout, report)
	if err != nil {
		p.shorts.Add(1)
	}
	// Devices that only report on change leave a held field on one report;
	// stamping with the tick time lets downstream gates see the hold.
	if now.After(at) {
		at = now
	}
	t := at.Sub(p.cfg.Epoch).Seconds()
	for _, v := range vals {
		p.cfg.Sink.AcceptSample(v.Key, v.V, t)
	}

	p.mu.Lock()
	for _, v := range vals {
		p.values[v.Key] = v.V
	}
	p.mu.Unlock()
	return len(vals)
}

// Values returns the last decoded value of every field.
func (p *Pump) Values() map[string]float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]float64, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// Connected reports whether the device is open.
func (p *Pump) Connected() bool { return p.connected.Load() }

// Reports counts raw reports received.
func (p *Pump) Reports() uint64 { return p.reports.Load() }

// ShortReports counts decode passes that hit a truncated report.
func (p *Pump) ShortReports() uint64 { return p.shorts.Load() }

// Run reads and decodes until ctx is canceled. The device is reopened after
// read errors.
func (p *Pump) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.readLoop(ctx)
	}()

	ticker := time.NewTicker(time.Duration(float64(time.Second) / p.cfg.Hz))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case now := <-ticker.C:
			p.Tick(now)
		}
	}
}

func (p *Pump) readLoop(ctx context.Context) {
	log := p.cfg.Logger.With("device", p.cfg.Layout.Device)
	buf := make([]byte, 256)
	for ctx.Err() == nil {
		dev, err := p.cfg.Open()
		if err != nil {
			log.Debug("hid device unavailable", "error", err)
			if !sleepCtx(ctx, p.cfg.Reconnect) {
				return
			}
			continue
		}

		p.connected.Store(true)
		log.Info("hid device opened")

		// Closing the device unblocks a pending read on cancel.
		stop := context.AfterFunc(ctx, func() { dev.Close() })
		for {
			n, err := dev.Read(buf)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn("hid read failed", "error", err)
				}
				break
			}
			if n > 0 {
				p.Feed(buf[:n], time.Now())
			}
		}
		if stop() {
			dev.Close()
		}
		p.connected.Store(false)

		if !sleepCtx(ctx, p.cfg.Reconnect) {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
