// Package telemetry publishes bridge lifecycle and health events to MQTT.
package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// DefaultPrefix is the topic prefix when none is configured.
const DefaultPrefix = "padbridge"

// EventsTopic carries every lifecycle event.
func EventsTopic(prefix string) string { return prefix + "/events" }

// StatusTopic holds the latest event, retained, and the OFFLINE will.
func StatusTopic(prefix string) string { return prefix + "/status" }

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends an event to the broker. Errors must not stop the caller.
	Publish(event Event) error

	// IsConnected reports whether the broker connection is up.
	IsConnected() bool

	// Close disconnects from the broker.
	Close() error
}

// Event is a lifecycle event: STARTUP, HEARTBEAT or SHUTDOWN.
type Event struct {
	Timestamp time.Time
	Event     string
	Reason    string    // shutdown only
	Status    *Snapshot // optional health snapshot
}

// Event names.
const (
	EventStartup   = "STARTUP"
	EventHeartbeat = "HEARTBEAT"
	EventShutdown  = "SHUTDOWN"
	EventOffline   = "OFFLINE"
)

// Snapshot is the health summary carried by heartbeats.
type Snapshot struct {
	UptimeSeconds  int64   `json:"uptime_s"`
	InputConnected bool    `json:"input_connected"`
	TargetHz       float64 `json:"target_hz"`
	EffectiveHz    float64 `json:"effective_hz"`
	AvgLoopUS      float64 `json:"avg_loop_us"`
	PublishHz      float64 `json:"publish_hz"`
	OutputEnabled  bool    `json:"output_enabled"`
	OutputStatus   string  `json:"output_status,omitempty"`
	MappedStatus   string  `json:"mapped_status,omitempty"`
	Mappings       int     `json:"mappings"`
	HotasConnected bool    `json:"hotas_connected"`
}

// Payload is the JSON body of every message.
type Payload struct {
	Bridge PayloadInner `json:"padbridge"`
}

// PayloadInner contains the event details.
type PayloadInner struct {
	Timestamp string    `json:"timestamp"`
	Event     string    `json:"event"`
	Reason    string    `json:"reason,omitempty"`
	Status    *Snapshot `json:"status,omitempty"`
}

// FormatPayload creates the JSON payload for an event.
func FormatPayload(event Event) ([]byte, error) {
	return json.Marshal(Payload{Bridge: PayloadInner{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     event.Event,
		Reason:    event.Reason,
		Status:    event.Status,
	}})
}

// Heartbeat publishes STARTUP immediately, a HEARTBEAT with a fresh
// snapshot every interval, and SHUTDOWN when ctx is canceled. An interval of
// zero disables heartbeats but keeps the lifecycle events.
type Heartbeat struct {
	Publisher Publisher
	Interval  time.Duration
	Snapshot  func() Snapshot
	Logger    *slog.Logger

	// Reason is reported with SHUTDOWN; read after ctx is canceled.
	Reason func() string
}

// Run blocks until ctx is canceled.
func (h *Heartbeat) Run(ctx context.Context) {
	log := h.Logger
	if log == nil {
		log = slog.Default()
	}
	publish := func(ev Event) {
		if h.Snapshot != nil {
			s := h.Snapshot()
			ev.Status = &s
		}
		if err := h.Publisher.Publish(ev); err != nil {
			log.Warn("telemetry publish failed", "event", ev.Event, "error", err)
		}
	}

	publish(Event{Timestamp: time.Now(), Event: EventStartup})

	var tick <-chan time.Time
	if h.Interval > 0 {
		t := time.NewTicker(h.Interval)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			ev := Event{Timestamp: time.Now(), Event: EventShutdown}
			if h.Reason != nil {
				ev.Reason = h.Reason()
			}
			publish(ev)
			return
		case now := <-tick:
			publish(Event{Timestamp: now, Event: EventHeartbeat})
		}
	}
}
