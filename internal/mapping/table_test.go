package mapping

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestParseAction(t *testing.T) {
	cases := map[string]string{
		"x360:left_x":        "x360:left_x",
		"X360:Right_Trigger": "x360:right_trigger",
		"x360:button_y":      "x360:button_y",
		"x360:dpad_left":     "x360:dpad_left",
		"keyboard:57":        "keyboard:57",
		"keyboard:0x1e":      "keyboard:30",
		"mouse:right_click":  "mouse:right_click",
	}
	for in, want := range cases {
		a, err := ParseAction(in)
		if err != nil {
			t.Fatalf("ParseAction(%q): %v", in, err)
		}
		if a.String() != want {
			t.Errorf("ParseAction(%q).String() = %q, want %q", in, a.String(), want)
		}
	}

	for _, bad := range []string{"", "x360", "x360:left_z", "keyboard:VK_SPACE", "keyboard:0", "mouse:wheel", "midi:c4"} {
		if _, err := ParseAction(bad); err == nil {
			t.Errorf("ParseAction(%q): expected error", bad)
		}
	}

	if _, ok := mustAction(t, "x360:left_trigger").(AxisAction); !ok {
		t.Errorf("triggers should parse as axis actions")
	}
	if _, ok := mustAction(t, "x360:start").(ButtonAction); !ok {
		t.Errorf("start should parse as a button action")
	}
}

func TestTable_AddRemove(t *testing.T) {
	tb := NewTable()
	e, err := tb.Add(Entry{SignalID: "stick:joy_x", Action: AxisAction{}})
	if err != nil {
		t.Fatal(err)
	}
	if e.ID == "" {
		t.Fatalf("expected generated id")
	}
	if _, err := tb.Add(Entry{ID: e.ID, SignalID: "x", Action: KeyAction{Code: 1}}); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if _, err := tb.Add(Entry{SignalID: "", Action: KeyAction{Code: 1}}); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := tb.Add(Entry{SignalID: "a", Action: KeyAction{Code: 1}, Deadband: 2}); err == nil {
		t.Fatalf("expected deadband error")
	}
	if err := tb.Remove("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	v := tb.Version()
	if err := tb.Remove(e.ID); err != nil {
		t.Fatal(err)
	}
	if tb.Len() != 0 || tb.Version() == v {
		t.Fatalf("remove did not take effect")
	}
}

func TestTable_ReplaceIsAllOrNothing(t *testing.T) {
	tb := NewTable()
	if _, err := tb.Add(Entry{ID: "keep", SignalID: "s", Action: KeyAction{Code: 2}}); err != nil {
		t.Fatal(err)
	}
	err := tb.Replace([]Entry{
		{ID: "a", SignalID: "s1", Action: KeyAction{Code: 3}},
		{ID: "a", SignalID: "s2", Action: KeyAction{Code: 4}},
	})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if l := tb.List(); len(l) != 1 || l[0].ID != "keep" {
		t.Fatalf("failed replace changed the table: %v", l)
	}
}

func TestTable_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")

	tb := NewTable()
	for _, e := range []Entry{
		{ID: "m1", SignalID: "stick:joy_x", Action: mustAction(t, "x360:left_x"), Priority: 10, Deadband: 0.1},
		{ID: "m2", SignalID: "stick:joy_y", Action: mustAction(t, "x360:left_y"), Priority: 10, Deadband: 0.1, Invert: true},
		{ID: "m3", SignalID: "stick:trigger", Action: mustAction(t, "keyboard:57")},
	} {
		if _, err := tb.Add(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := tb.SaveFile(path); err != nil {
		t.Fatal(err)
	}

	loaded := NewTable()
	if err := loaded.LoadFile(path); err != nil {
		t.Fatal(err)
	}
	got, want := loaded.List(), tb.List()
	if len(got) != len(want) {
		t.Fatalf("loaded %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].Action.String() != want[i].Action.String() ||
			got[i].Priority != want[i].Priority || got[i].Invert != want[i].Invert {
			t.Fatalf("entry %d: got %+v, want %+v", i, got[i], want[i])
		}
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestTable_LoadJSONProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.json")
	doc := `{"mappings":[` +
		`{"id":"a","signal_id":"stick:joy_x","action":"x360:left_x","param":0.0},` +
		`{"id":"b","signal_id":"stick:trigger","action":"x360:button_a","priority":2,"deadband":0.2}]}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	tb := NewTable()
	if err := tb.LoadFile(path); err != nil {
		t.Fatal(err)
	}
	if l := tb.List(); len(l) != 2 || l[1].Priority != 2 || l[1].Deadband != 0.2 {
		t.Fatalf("unexpected entries: %+v", l)
	}
}

func TestDecodeProfile_BareList(t *testing.T) {
	doc := `[{"id":"a","signal_id":"gpio:gear","action":"key:34","priority":1}]`
	entries, err := DecodeProfile([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].ID != "a" || entries[0].Priority != 1 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if _, ok := entries[0].Action.(KeyAction); !ok {
		t.Fatalf("action = %T, want KeyAction", entries[0].Action)
	}
}

func TestDecodeProfile_UnknownEntryField(t *testing.T) {
	docs := []string{
		"mappings:\n  - id: a\n    signal_id: s\n    action: key:5\n    priorty: 10\n",
		`[{"id":"a","signal_id":"s","action":"key:5","dead_band":0.1}]`,
	}
	for _, doc := range docs {
		_, err := DecodeProfile([]byte(doc))
		if err == nil || !strings.Contains(err.Error(), "unknown mapping field") {
			t.Fatalf("%q: err = %v, want unknown field error", doc, err)
		}
	}
}

func TestTable_LoadMalformedKeepsOld(t *testing.T) {
	dir := t.TempDir()
	tb := NewTable()
	if _, err := tb.Add(Entry{ID: "old", SignalID: "s", Action: KeyAction{Code: 5}}); err != nil {
		t.Fatal(err)
	}

	bad := map[string]string{
		"syntax.yaml":  "mappings: [",
		"action.yaml":  "mappings:\n  - id: x\n    signal_id: s\n    action: x360:nope\n",
		"unknown.yaml": "mappings: []\nextra: 1\n",
	}
	for name, body := range bad {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := tb.LoadFile(p); err == nil {
			t.Fatalf("%s: expected load error", name)
		}
		if l := tb.List(); len(l) != 1 || l[0].ID != "old" {
			t.Fatalf("%s: table changed after failed load: %v", name, l)
		}
	}
	if err := tb.LoadFile(filepath.Join(dir, "missing.yaml")); err == nil || !strings.Contains(err.Error(), "read profile") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestTable_ConcurrentReplaceAndView(t *testing.T) {
	tb := NewTable()
	a := []Entry{{ID: "a1", SignalID: "s", Action: KeyAction{Code: 1}}, {ID: "a2", SignalID: "s", Action: KeyAction{Code: 2}}}
	b := []Entry{{ID: "b1", SignalID: "s", Action: KeyAction{Code: 1}}, {ID: "b2", SignalID: "s", Action: KeyAction{Code: 2}}}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if i%2 == 0 {
				_ = tb.Replace(a)
			} else {
				_ = tb.Replace(b)
			}
		}
	}()
	for i := 0; i < 500; i++ {
		tb.View(func(entries []Entry) {
			if len(entries) == 0 {
				return
			}
			if len(entries) != 2 || entries[0].ID[0] != entries[1].ID[0] {
				t.Errorf("observed a mixed list: %v", entries)
			}
		})
	}
	wg.Wait()
}
