package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/54b3r/tdsqa-go/internal/qa"
)

// findMetric returns the first metric in family name whose labels include all
// of want, or nil.
func findMetric(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) *dto.Metric {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := 0
			for _, lp := range m.GetLabel() {
				if v, ok := want[lp.GetName()]; ok && v == lp.GetValue() {
					matched++
				}
			}
			if matched == len(want) {
				return m
			}
		}
	}
	return nil
}

func newMetricsTestServer(t *testing.T, asker Asker) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s := newTestServer(t, asker, func(c *Config) {
		c.MetricsRegistry = reg
		c.MetricsGatherer = reg
	})
	return s, reg
}

func Test_Metrics_EndpointServesRegistry(t *testing.T) {
	t.Parallel()
	s, _ := newMetricsTestServer(t, &fakeAsker{resp: &qa.Response{Answer: "a"}})

	post(t, s, `{"question":"q"}`, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), "tdsqa_ask_requests_total") {
		t.Error("tdsqa_ask_requests_total missing from /metrics output")
	}
}

func Test_Metrics_AskOutcomeCounted(t *testing.T) {
	t.Parallel()
	asker := &fakeAsker{resp: &qa.Response{Answer: "a"}}
	s, reg := newMetricsTestServer(t, asker)

	post(t, s, `{"question":"q"}`, nil)
	asker.err = qa.ErrNoContext
	post(t, s, `{"question":"q"}`, nil)
	post(t, s, `{"question":"q"}`, nil)

	if m := findMetric(t, reg, "tdsqa_ask_requests_total", map[string]string{"outcome": "ok"}); m == nil || m.GetCounter().GetValue() != 1 {
		t.Errorf("ok counter: %v", m)
	}
	if m := findMetric(t, reg, "tdsqa_ask_requests_total", map[string]string{"outcome": "no_context"}); m == nil || m.GetCounter().GetValue() != 2 {
		t.Errorf("no_context counter: %v", m)
	}
}

func Test_Metrics_HTTPRequestsLabelled(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t, &fakeAsker{err: qa.ErrBadInput})

	post(t, s, `{"question":""}`, nil)

	m := findMetric(t, reg, "tdsqa_http_requests_total", map[string]string{
		"method": "POST", labelHandler: "ask", "code": "400",
	})
	if m == nil || m.GetCounter().GetValue() != 1 {
		t.Errorf("http counter for POST ask 400: %v", m)
	}
}

func Test_Metrics_InFlightReturnsToZero(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t, &fakeAsker{resp: &qa.Response{Answer: "a"}})

	post(t, s, `{"question":"q"}`, nil)

	m := findMetric(t, reg, "tdsqa_ask_in_flight", map[string]string{})
	if m == nil {
		t.Fatal("tdsqa_ask_in_flight not found")
	}
	if v := m.GetGauge().GetValue(); v != 0 {
		t.Errorf("want in_flight=0, got %v", v)
	}
}
