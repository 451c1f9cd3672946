package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct{}

func (fakeSource) TargetHz() float64           { return 1000 }
func (fakeSource) EffectiveHz() float64        { return 998.5 }
func (fakeSource) AvgLoopUS() float64          { return 12.5 }
func (fakeSource) PublishEffectiveHz() float64 { return 250 }
func (fakeSource) InputConnected() bool        { return true }
func (fakeSource) Samples() uint64             { return 4242 }
func (fakeSource) Mappings() int               { return 3 }

func TestObserveReport(t *testing.T) {
	m, err := New(fakeSource{})
	if err != nil {
		t.Fatal(err)
	}
	m.ObserveReport("forward", nil)
	m.ObserveReport("forward", nil)
	m.ObserveReport("mapped", errors.New("gone"))

	if got := testutil.ToFloat64(m.reports.WithLabelValues("forward", "ok")); got != 2 {
		t.Errorf("forward ok = %v", got)
	}
	if got := testutil.ToFloat64(m.reports.WithLabelValues("mapped", "error")); got != 1 {
		t.Errorf("mapped error = %v", got)
	}

	m.ObserveCommand("set_target_hz", nil)
	if got := testutil.ToFloat64(m.commands.WithLabelValues("set_target_hz", "ok")); got != 1 {
		t.Errorf("command ok = %v", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveReport("forward", nil)
	m.ObserveCommand("x", errors.New("y"))
}

func TestHandlerExposesGauges(t *testing.T) {
	m, err := New(fakeSource{})
	if err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		"padbridge_input_target_hz 1000",
		"padbridge_input_effective_hz 998.5",
		"padbridge_input_samples_total 4242",
		"padbridge_mapping_entries 3",
		"padbridge_input_connected 1",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
