package remote

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"padbridge/internal/compose"
	"padbridge/internal/mapping"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// receiver is a test WebSocket endpoint that forwards every message.
func receiver(t *testing.T) (*httptest.Server, <-chan Message) {
	t.Helper()
	msgs := make(chan Message, 64)
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var m Message
			if err := conn.ReadJSON(&m); err != nil {
				return
			}
			msgs <- m
		}
	}))
	t.Cleanup(srv.Close)
	return srv, msgs
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func next(t *testing.T, msgs <-chan Message) Message {
	t.Helper()
	select {
	case m := <-msgs:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func TestNewClientValidatesURL(t *testing.T) {
	if _, err := NewClient(Config{URL: "http://example.com"}); err == nil {
		t.Fatal("http scheme accepted")
	}
	c, err := NewClient(Config{URL: "ws://127.0.0.1:1/pad"})
	if err != nil {
		t.Fatal(err)
	}
	if c.Session() == "" {
		t.Fatal("empty session id")
	}
}

func TestClientSendsReportsAndEvents(t *testing.T) {
	srv, msgs := receiver(t)
	c, err := NewClient(Config{URL: wsURL(srv), Device: "bench", Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.Connect(); err != nil {
		t.Fatal(err)
	}
	hello := next(t, msgs)
	if hello.Type != TypeHello {
		t.Fatalf("first message = %q", hello.Type)
	}
	var h Hello
	if err := json.Unmarshal(hello.Data, &h); err != nil {
		t.Fatal(err)
	}
	if h.Session != c.Session() || h.Device != "bench" {
		t.Fatalf("hello = %+v", h)
	}

	want := compose.Report{LX: -32768, RT: 200, Buttons: 0x1000}
	if err := c.SendReport(want); err != nil {
		t.Fatal(err)
	}
	m := next(t, msgs)
	var got compose.Report
	if err := json.Unmarshal(m.Data, &got); err != nil {
		t.Fatal(err)
	}
	if m.Type != TypeReport || m.Seq != 1 || got != want {
		t.Fatalf("report message = %+v (%v)", m, got)
	}

	if err := c.Key(30, true); err != nil {
		t.Fatal(err)
	}
	if err := c.Mouse(mapping.MouseRight, false); err != nil {
		t.Fatal(err)
	}
	var k KeyEvent
	m = next(t, msgs)
	if err := json.Unmarshal(m.Data, &k); err != nil || m.Type != TypeKey || k != (KeyEvent{Code: 30, Down: true}) {
		t.Fatalf("key message = %+v, %v", m, err)
	}
	var me MouseEvent
	m = next(t, msgs)
	if err := json.Unmarshal(m.Data, &me); err != nil || m.Type != TypeMouse || me.Button != "right_click" {
		t.Fatalf("mouse message = %+v, %v", m, err)
	}
}

func TestClientReconnectsInBackground(t *testing.T) {
	srv, msgs := receiver(t)
	c, err := NewClient(Config{URL: wsURL(srv), RetryDelay: 10 * time.Millisecond, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.SendReport(compose.Report{}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("first send = %v, want ErrNotConnected", err)
	}
	if m := next(t, msgs); m.Type != TypeHello {
		t.Fatalf("background dial sent %q", m.Type)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !c.Connected() {
		if time.Now().After(deadline) {
			t.Fatal("client never connected")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := c.SendReport(compose.Report{LY: 1}); err != nil {
		t.Fatal(err)
	}
	if m := next(t, msgs); m.Type != TypeReport {
		t.Fatalf("got %q", m.Type)
	}
}

func TestClientUnreachable(t *testing.T) {
	c, err := NewClient(Config{URL: "ws://127.0.0.1:1/pad", RetryDelay: time.Hour, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := c.SendReport(compose.Report{}); !errors.Is(err, ErrNotConnected) {
			t.Fatalf("send %d = %v", i, err)
		}
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
}
