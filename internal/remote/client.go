// Package remote sends composed reports to a receiver over a WebSocket, for
// setups where the virtual pad lives on another machine.
package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"padbridge/internal/compose"
	"padbridge/internal/mapping"
)

// ErrNotConnected is returned while the connection is down. A reconnect is
// already in progress when it is returned.
var ErrNotConnected = errors.New("remote: not connected")

// Message is the wire envelope, one JSON object per WebSocket text frame.
type Message struct {
	Type string          `json:"type"`
	Seq  uint64          `json:"seq,omitempty"`
	TS   int64           `json:"ts"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Message types.
const (
	TypeHello  = "hello"
	TypeReport = "report"
	TypeKey    = "key"
	TypeMouse  = "mouse"
)

// Hello is sent once per connection.
type Hello struct {
	Session string `json:"session"`
	Device  string `json:"device"`
}

// KeyEvent is the payload of a key message.
type KeyEvent struct {
	Code uint16 `json:"code"`
	Down bool   `json:"down"`
}

// MouseEvent is the payload of a mouse message.
type MouseEvent struct {
	Button string `json:"button"`
	Down   bool   `json:"down"`
}

// Config configures a Client.
type Config struct {
	URL          string
	Device       string        // name announced in the hello message
	WriteTimeout time.Duration // per message
	RetryDelay   time.Duration // minimum gap between dial attempts
	Logger       *slog.Logger
}

// Client is a compose.ReportSink and compose.Emitter backed by a WebSocket.
// Sends never block on reconnection: while down they fail fast with
// ErrNotConnected and a single background dial is started.
type Client struct {
	cfg     Config
	session string

	mu   sync.Mutex
	conn *websocket.Conn

	dialing  atomic.Bool
	lastDial atomic.Int64 // unix nanos
	seq      atomic.Uint64
	closed   atomic.Bool
	wg       sync.WaitGroup
}

// NewClient validates cfg. No connection is made until the first send or
// Connect.
func NewClient(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid websocket URL scheme %q", u.Scheme)
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 20 * time.Millisecond
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Device == "" {
		cfg.Device = "padbridge"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{cfg: cfg, session: uuid.NewString()}, nil
}

// Session is the id announced to the receiver.
func (c *Client) Session() string { return c.session }

// Connect dials synchronously.
func (c *Client) Connect() error {
	d := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := d.Dial(c.cfg.URL, nil)
	if err != nil {
		return err
	}
	hello, _ := json.Marshal(Hello{Session: c.session, Device: c.cfg.Device})
	if err := writeMessage(conn, c.cfg.WriteTimeout, Message{Type: TypeHello, TS: time.Now().UnixMilli(), Data: hello}); err != nil {
		conn.Close()
		return fmt.Errorf("send hello: %w", err)
	}

	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		conn.Close()
		return errors.New("remote: client closed")
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.mu.Unlock()

	c.wg.Add(1)
	go c.drain(conn)
	c.cfg.Logger.Info("connected to remote receiver", "url", c.cfg.URL, "session", c.session)
	return nil
}

// drain discards inbound frames so control messages are processed, and
// notices when the peer goes away.
func (c *Client) drain(conn *websocket.Conn) {
	defer c.wg.Done()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			c.dropConn(conn)
			return
		}
	}
}

func (c *Client) dropConn(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
}

// Connected reports whether a connection is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) redial() {
	if c.closed.Load() {
		return
	}
	now := time.Now().UnixNano()
	if now-c.lastDial.Load() < int64(c.cfg.RetryDelay) {
		return
	}
	if !c.dialing.CompareAndSwap(false, true) {
		return
	}
	c.lastDial.Store(now)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.dialing.Store(false)
		if err := c.Connect(); err != nil {
			c.cfg.Logger.Debug("remote dial failed", "url", c.cfg.URL, "error", err)
		}
	}()
}

func (c *Client) send(typ string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		c.redial()
		return ErrNotConnected
	}
	msg := Message{Type: typ, Seq: c.seq.Add(1), TS: time.Now().UnixMilli(), Data: data}
	err = writeMessage(conn, c.cfg.WriteTimeout, msg)
	if err != nil {
		c.conn = nil
	}
	c.mu.Unlock()

	if err != nil {
		conn.Close()
		c.redial()
		return fmt.Errorf("remote write: %w", err)
	}
	return nil
}

func writeMessage(conn *websocket.Conn, timeout time.Duration, m Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(timeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}

// SendReport implements compose.ReportSink.
func (c *Client) SendReport(r compose.Report) error {
	return c.send(TypeReport, r)
}

// Key implements compose.Emitter.
func (c *Client) Key(code uint16, down bool) error {
	return c.send(TypeKey, KeyEvent{Code: code, Down: down})
}

// Mouse implements compose.Emitter.
func (c *Client) Mouse(b mapping.MouseButton, down bool) error {
	return c.send(TypeMouse, MouseEvent{Button: b.String(), Down: down})
}

// Close drops the connection and waits for background goroutines.
func (c *Client) Close() error {
	c.closed.Store(true)
	c.mu.Lock()
	if c.conn != nil {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.cfg.WriteTimeout))
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
	c.wg.Wait()
	return nil
}
