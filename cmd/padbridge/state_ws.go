package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"padbridge/internal/bridge"
	"padbridge/internal/pad"
	"padbridge/internal/ring"
)

// ============================================================================
// State WebSocket: hub + per-client pumps + periodic broadcaster
// ============================================================================
//
// Frames are JSON text messages with an envelope {type, ts, data}:
//   - "state_init" once on connect: full status, signal list and window
//   - "stats" every wsStatsInterval: the pipeline status
//   - "samples" every wsSamplesInterval: samples recorded since the previous
//     frame, per view and signal
//
// Each client has its own send queue. A client whose queue is full is
// disconnected so one slow viewer never stalls the others.
// ============================================================================

type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

// wsInitData is the payload of "state_init".
type wsInitData struct {
	Status  bridge.Status `json:"status"`
	Signals []string      `json:"signals"`
	Window  float64       `json:"window_sec"`
}

// wsSamplesData is the payload of "samples".
type wsSamplesData struct {
	View    bridge.View              `json:"view"`
	Latest  float64                  `json:"latest"`
	Signals map[string][]ring.Sample `json:"signals"`
}

func marshalFrame(typ string, data any) ([]byte, error) {
	now := time.Now().UTC()
	return json.Marshal(envelope{Type: typ, Ts: &now, Data: data})
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size (default 64).
	SendBuf int
	// BroadcastBuf is the hub inbound queue size (default 128).
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	if cfg.SendBuf <= 0 {
		cfg.SendBuf = 64
	}
	if cfg.BroadcastBuf <= 0 {
		cfg.BroadcastBuf = 128
	}
	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, cfg.BroadcastBuf),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		clients:    make(map[*Client]struct{}),
		sendBuf:    cfg.SendBuf,
	}
}

// Run processes hub events until ctx is canceled, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")
	defer h.logger.Info("ws hub stopped")

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			all := make([]*Client, 0, len(h.clients))
			for c := range h.clients {
				all = append(all, c)
			}
			h.mu.Unlock()
			for _, c := range all {
				h.drop(c, "shutdown")
			}
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.drop(c, "unregister")

		case msg := <-h.broadcast:
			var slow []*Client
			h.mu.Lock()
			for c := range h.clients {
				if !c.enqueue(msg) {
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()
			for _, c := range slow {
				h.drop(c, "slow_client")
			}
		}
	}
}

// drop removes c and closes its queue and connection. Dropping a client
// twice is harmless.
func (h *Hub) drop(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	c.close()
	if ok {
		h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// BroadcastBytes enqueues a serialized frame for every client. It never
// blocks; when the hub queue is full the frame is dropped.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	closeOnce  sync.Once
	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client sized by the hub's send buffer.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	n := 64
	if hub != nil {
		n = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, n),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

// enqueue queues msg without blocking and reports whether it fit.
func (c *Client) enqueue(msg []byte) (ok bool) {
	defer func() {
		// A send on a queue closed by a concurrent drop counts as full.
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(pump string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Info("ws "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Info("ws "+pump+" exiting", "remote_addr", c.remoteAddr, "error", err)
}

// writePump drains the send queue into the connection and keeps it alive
// with pings. It exits when the queue is closed or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", err)
				return
			}
		}
	}
}

// readPump discards inbound frames so control frames are processed, and
// unregisters the client when the connection ends.
func (c *Client) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("readPump", err)
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
	}
}

// ============================================================================
// HTTP handler
// ============================================================================

type StateServer struct {
	logger *slog.Logger
	hub    *Hub
	bridge *bridge.Bridge
}

// NewStateServer wires a hub to the pipeline. Start Hub().Run and
// RunBroadcaster alongside the HTTP server.
func NewStateServer(logger *slog.Logger, b *bridge.Bridge, cfg HubConfig) *StateServer {
	return &StateServer{logger: logger, hub: NewHub(logger, cfg), bridge: b}
}

func (s *StateServer) Hub() *Hub { return s.hub }

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades the request, registers the client and queues
// state_init ahead of any broadcast.
func (s *StateServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)

	init, err := marshalFrame("state_init", wsInitData{
		Status:  s.bridge.Status(),
		Signals: s.bridge.Signals(),
		Window:  s.bridge.Window(),
	})
	if err != nil {
		s.logger.Warn("ws state_init marshal failed", "error", err)
		client.close()
		return
	}
	client.enqueue(init)

	s.hub.register <- client

	// The pumps outlive the request; the hub and connection errors end them.
	go client.writePump()
	go client.readPump()
}

// ============================================================================
// Broadcaster
// ============================================================================

// sampleCursor remembers the newest timestamp already sent per view and
// signal.
type sampleCursor map[bridge.View]*[pad.Count]float64

// collectSamples returns the samples of view newer than the cursor, capped
// to the newest max per signal, and advances the cursor. It returns nil if
// nothing is new.
func collectSamples(b *bridge.Bridge, view bridge.View, cur *[pad.Count]float64, max int) *wsSamplesData {
	latest := b.LatestTime(view)
	var out map[string][]ring.Sample
	for _, sig := range pad.All() {
		since := cur[sig]
		if latest <= since {
			continue
		}
		window := min(latest-since, b.Window())
		var fresh []ring.Sample
		for _, smp := range b.SnapshotWindow(view, sig, window, false) {
			if smp.T > since {
				fresh = append(fresh, smp)
			}
		}
		if len(fresh) == 0 {
			continue
		}
		cur[sig] = fresh[len(fresh)-1].T
		if len(fresh) > max {
			fresh = fresh[len(fresh)-max:]
		}
		if out == nil {
			out = make(map[string][]ring.Sample)
		}
		out[sig.String()] = fresh
	}
	if out == nil {
		return nil
	}
	return &wsSamplesData{View: view, Latest: latest, Signals: out}
}

// skipSamples moves every cursor of view to its newest sample without
// reading the rings.
func skipSamples(b *bridge.Bridge, view bridge.View, cur *[pad.Count]float64) {
	latest := b.LatestTime(view)
	for i := range cur {
		cur[i] = max(cur[i], latest)
	}
}

// RunBroadcaster pushes periodic stats and sample frames to the hub until
// ctx is canceled.
func RunBroadcaster(ctx context.Context, hub *Hub, b *bridge.Bridge, logger *slog.Logger) {
	statsTick := time.NewTicker(wsStatsInterval * time.Millisecond)
	defer statsTick.Stop()
	samplesTick := time.NewTicker(wsSamplesInterval * time.Millisecond)
	defer samplesTick.Stop()

	cursors := sampleCursor{
		bridge.ViewRaw:      new([pad.Count]float64),
		bridge.ViewFiltered: new([pad.Count]float64),
		bridge.ViewMapped:   new([pad.Count]float64),
	}
	views := []bridge.View{bridge.ViewRaw, bridge.ViewFiltered, bridge.ViewMapped}

	for {
		select {
		case <-ctx.Done():
			return

		case <-statsTick.C:
			if hub.Clients() == 0 {
				continue
			}
			msg, err := marshalFrame("stats", b.Status())
			if err != nil {
				logger.Warn("ws broadcaster marshal failed", "error", err, "type", "stats")
				continue
			}
			hub.BroadcastBytes(msg)

		case <-samplesTick.C:
			idle := hub.Clients() == 0
			for _, v := range views {
				// Cursors advance while idle so a new viewer starts at "now".
				if idle {
					skipSamples(b, v, cursors[v])
					continue
				}
				data := collectSamples(b, v, cursors[v], wsSamplesMax)
				if data == nil {
					continue
				}
				msg, err := marshalFrame("samples", data)
				if err != nil {
					logger.Warn("ws broadcaster marshal failed", "error", err, "type", "samples")
					continue
				}
				hub.BroadcastBytes(msg)
			}
		}
	}
}
