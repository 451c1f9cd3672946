package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// frame mirrors the daemon's /ws/state envelope.
type frame struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type samplesData struct {
	View    string  `json:"view"`
	Latest  float64 `json:"latest"`
	Signals map[string][]struct {
		T float64 `json:"t"`
		V float64 `json:"v"`
	} `json:"signals"`
}

type statsData struct {
	InputConnected     bool    `json:"input_connected"`
	TargetHz           float64 `json:"target_hz"`
	EffectiveHz        float64 `json:"effective_hz"`
	AvgLoopUS          float64 `json:"avg_loop_us"`
	PublishEffectiveHz float64 `json:"publish_effective_hz"`
	OutputSent         uint64  `json:"output_sent"`
	OutputFailed       uint64  `json:"output_failed"`
	MappedSent         uint64  `json:"mapped_sent"`
	Mappings           int     `json:"mappings"`
}

func main() {
	var (
		wsURL   = flag.String("ws", "ws://127.0.0.1:3020/ws/state", "padbridge state websocket URL")
		types   = flag.String("types", "state_init,stats,samples", "Comma-separated frame types to print")
		view    = flag.String("view", "", "Only print samples of this view (raw|filtered|mapped)")
		signals = flag.String("signals", "", "Comma-separated signal ids to print from samples frames")
		raw     = flag.Bool("raw", false, "Print frames as received")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	f := frameFilter{
		types:   splitSet(*types),
		view:    *view,
		signals: splitSet(*signals),
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()
	log.Printf("connected! (press Ctrl+C to exit)")

	var writeMu sync.Mutex

	// The daemon pings every 20s.
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if messageType != websocket.TextMessage {
				fmt.Printf("[BINARY] %d bytes\n", len(message))
				continue
			}
			if *raw {
				fmt.Println(string(message))
				continue
			}
			for _, line := range f.describe(message) {
				fmt.Println(line)
			}
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

type frameFilter struct {
	types   map[string]bool
	view    string
	signals map[string]bool
}

func splitSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out[p] = true
		}
	}
	return out
}

// describe renders one frame as printable lines. Frames the filter
// excludes produce nothing.
func (f frameFilter) describe(message []byte) []string {
	var fr frame
	if err := json.Unmarshal(message, &fr); err != nil {
		return []string{"[TEXT] " + string(message)}
	}
	if len(f.types) > 0 && !f.types[fr.Type] {
		return nil
	}

	switch fr.Type {
	case "stats":
		var s statsData
		if err := json.Unmarshal(fr.Data, &s); err != nil {
			break
		}
		return []string{fmt.Sprintf("[STATS] input=%v hz=%.0f/%.0f loop=%.1fus publish=%.0fHz sent=%d failed=%d mapped=%d mappings=%d",
			s.InputConnected, s.EffectiveHz, s.TargetHz, s.AvgLoopUS, s.PublishEffectiveHz,
			s.OutputSent, s.OutputFailed, s.MappedSent, s.Mappings)}

	case "samples":
		var s samplesData
		if err := json.Unmarshal(fr.Data, &s); err != nil {
			break
		}
		if f.view != "" && s.View != f.view {
			return nil
		}
		names := make([]string, 0, len(s.Signals))
		for name := range s.Signals {
			if len(f.signals) == 0 || f.signals[name] {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		var out []string
		for _, name := range names {
			smp := s.Signals[name]
			if len(smp) == 0 {
				continue
			}
			last := smp[len(smp)-1]
			out = append(out, fmt.Sprintf("[SAMPLES] %-8s %-16s n=%-4d t=%.3f v=%+.4f", s.View, name, len(smp), last.T, last.V))
		}
		return out
	}

	pretty, err := json.MarshalIndent(json.RawMessage(fr.Data), "", "  ")
	if err != nil {
		pretty = fr.Data
	}
	return []string{fmt.Sprintf("[%s]\n%s", strings.ToUpper(fr.Type), pretty)}
}
