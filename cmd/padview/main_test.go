package main

import (
	"strings"
	"testing"
)

func TestDescribe(t *testing.T) {
	f := frameFilter{types: splitSet("stats,samples"), view: "raw", signals: splitSet("left_x")}

	lines := f.describe([]byte(`{"type":"samples","data":{"view":"raw","latest":1.5,"signals":{"left_x":[{"t":1.4,"v":0.1},{"t":1.5,"v":-0.25}],"button_a":[{"t":1.5,"v":1}]}}}`))
	if len(lines) != 1 || !strings.Contains(lines[0], "left_x") || !strings.Contains(lines[0], "v=-0.2500") || !strings.Contains(lines[0], "n=2") {
		t.Fatalf("samples lines = %q", lines)
	}

	if lines := f.describe([]byte(`{"type":"samples","data":{"view":"mapped","signals":{"left_x":[{"t":1,"v":1}]}}}`)); lines != nil {
		t.Fatalf("other view printed: %q", lines)
	}
	if lines := f.describe([]byte(`{"type":"state_init","data":{}}`)); lines != nil {
		t.Fatalf("filtered type printed: %q", lines)
	}

	lines = f.describe([]byte(`{"type":"stats","data":{"input_connected":true,"target_hz":1000,"effective_hz":998}}`))
	if len(lines) != 1 || !strings.HasPrefix(lines[0], "[STATS] input=true hz=998/1000") {
		t.Fatalf("stats lines = %q", lines)
	}

	if lines := f.describe([]byte(`garbage`)); len(lines) != 1 || lines[0] != "[TEXT] garbage" {
		t.Fatalf("garbage lines = %q", lines)
	}

	all := frameFilter{types: splitSet("")}
	lines = all.describe([]byte(`{"type":"state_init","data":{"window_sec":30}}`))
	if len(lines) != 1 || !strings.HasPrefix(lines[0], "[STATE_INIT]\n{") {
		t.Fatalf("state_init lines = %q", lines)
	}
}
