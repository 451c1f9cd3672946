package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTP_Routes(t *testing.T) {
	b := newTestBridge(t, &fixedSource{})
	srv := httptest.NewServer(newHTTPMux(b, nil, quietLogger()))
	defer srv.Close()

	get := func(path string) (int, string) {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatal(err)
		}
		return resp.StatusCode, string(body)
	}

	if code, body := get("/health"); code != http.StatusOK || body != "ok\n" {
		t.Fatalf("/health = %d %q", code, body)
	}

	code, body := get("/status")
	if code != http.StatusOK {
		t.Fatalf("/status = %d", code)
	}
	var st map[string]any
	if err := json.Unmarshal([]byte(body), &st); err != nil {
		t.Fatal(err)
	}
	if st["target_hz"] != 1000.0 {
		t.Fatalf("/status target_hz = %v", st["target_hz"])
	}

	code, body = get("/api/snapshot?signal=left_x&view=mapped&baseline=true")
	if code != http.StatusOK || !strings.Contains(body, `"signal":"left_x"`) {
		t.Fatalf("/api/snapshot = %d %s", code, body)
	}
	for _, q := range []string{"signal=wheel", "signal=left_x&view=upside", "signal=left_x&baseline=maybe"} {
		if code, _ := get("/api/snapshot?" + q); code != http.StatusBadRequest {
			t.Fatalf("/api/snapshot?%s = %d, want 400", q, code)
		}
	}

	code, body = get("/metrics")
	if code != http.StatusOK || !strings.Contains(body, "padbridge_input_target_hz 1000") {
		t.Fatalf("/metrics = %d, missing target gauge", code)
	}
}
