package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestFormatPayload(t *testing.T) {
	ev := Event{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Event:     EventHeartbeat,
		Status:    &Snapshot{UptimeSeconds: 42, EffectiveHz: 999.5, Mappings: 3},
	}
	b, err := FormatPayload(ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var parsed Payload
	if err := json.Unmarshal(b, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Bridge.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("unexpected timestamp: %s", parsed.Bridge.Timestamp)
	}
	if parsed.Bridge.Event != "HEARTBEAT" {
		t.Errorf("unexpected event: %s", parsed.Bridge.Event)
	}
	if parsed.Bridge.Status == nil || parsed.Bridge.Status.UptimeSeconds != 42 || parsed.Bridge.Status.Mappings != 3 {
		t.Errorf("unexpected status: %+v", parsed.Bridge.Status)
	}
}

func TestFormatPayloadOmitsEmpty(t *testing.T) {
	b, err := FormatPayload(Event{Timestamp: time.Now(), Event: EventOffline})
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatal(err)
	}
	if _, ok := raw["padbridge"]["status"]; ok {
		t.Error("status present on OFFLINE payload")
	}
	if _, ok := raw["padbridge"]["reason"]; ok {
		t.Error("empty reason serialized")
	}
}

func TestTopics(t *testing.T) {
	if EventsTopic("sim/pad") != "sim/pad/events" || StatusTopic("sim/pad") != "sim/pad/status" {
		t.Fatal("unexpected topic names")
	}
}

func TestHeartbeatLifecycle(t *testing.T) {
	pub := NewFakePublisher()
	calls := 0
	hb := &Heartbeat{
		Publisher: pub,
		Interval:  10 * time.Millisecond,
		Snapshot: func() Snapshot {
			calls++
			return Snapshot{UptimeSeconds: int64(calls)}
		},
		Reason: func() string { return "SIGTERM" },
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hb.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(pub.Recorded()) < 3 {
		if time.Now().After(deadline) {
			t.Fatal("no heartbeats")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	evs := pub.Recorded()
	if evs[0].Event != EventStartup {
		t.Fatalf("first event = %s", evs[0].Event)
	}
	last := evs[len(evs)-1]
	if last.Event != EventShutdown || last.Reason != "SIGTERM" {
		t.Fatalf("last event = %+v", last)
	}
	for _, ev := range evs[1 : len(evs)-1] {
		if ev.Event != EventHeartbeat || ev.Status == nil {
			t.Fatalf("middle event = %+v", ev)
		}
	}
}

func TestHeartbeatPublishErrorIsNonFatal(t *testing.T) {
	pub := NewFakePublisher()
	pub.PublishError = errors.New("broker down")
	hb := &Heartbeat{Publisher: pub, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hb.Run(ctx) // must return despite failures and no interval
	if len(pub.Recorded()) != 0 {
		t.Fatal("events recorded despite error")
	}
}
