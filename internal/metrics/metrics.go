// Package metrics exposes pipeline health to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "padbridge"

// Source supplies the live values behind the gauges. Every method is called
// at scrape time and must be safe for concurrent use.
type Source interface {
	TargetHz() float64
	EffectiveHz() float64
	AvgLoopUS() float64
	PublishEffectiveHz() float64
	InputConnected() bool
	Samples() uint64
	Mappings() int
}

// Metrics holds the registry and the event-driven collectors. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	reports  *prometheus.CounterVec // by path and result (ok/error)
	commands *prometheus.CounterVec // by command and result
}

// New registers every collector on a fresh registry.
func New(src Source) (*Metrics, error) {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "output",
			Name:      "reports_total",
			Help:      "Output reports sent, by path and result",
		}, []string{"path", "result"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ipc",
			Name:      "commands_total",
			Help:      "Control commands handled, by command and result",
		}, []string{"command", "result"}),
	}

	cs := []prometheus.Collector{
		m.reports,
		m.commands,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "input",
			Name:      "target_hz",
			Help:      "Configured input sampling rate",
		}, src.TargetHz),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "input",
			Name:      "effective_hz",
			Help:      "Measured input sampling rate (EMA)",
		}, src.EffectiveHz),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "input",
			Name:      "loop_cost_microseconds",
			Help:      "Average work time per input cycle (EMA)",
		}, src.AvgLoopUS),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "output",
			Name:      "publish_effective_hz",
			Help:      "Measured mapped publish rate (EMA)",
		}, src.PublishEffectiveHz),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "input",
			Name:      "connected",
			Help:      "1 when the input device returned data on the last poll",
		}, func() float64 {
			if src.InputConnected() {
				return 1
			}
			return 0
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "input",
			Name:      "samples_total",
			Help:      "Successful input polls",
		}, func() float64 { return float64(src.Samples()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mapping",
			Name:      "entries",
			Help:      "Number of mapping entries",
		}, func() float64 { return float64(src.Mappings()) }),
	}
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveReport implements compose.Observer.
func (m *Metrics) ObserveReport(path string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.reports.WithLabelValues(path, result).Inc()
}

// ObserveCommand counts one handled control command.
func (m *Metrics) ObserveCommand(command string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.commands.WithLabelValues(command, result).Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
