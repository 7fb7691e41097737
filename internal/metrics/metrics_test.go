package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"spotter/internal/config"
	"spotter/internal/pipeline"
)

func testCollector() *Collector {
	return NewCollector(&config.Config{ModelID: "acme/test-ner", UseCase: "test"})
}

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}

func TestCollector_CountsRequestsAndFailures(t *testing.T) {
	c := testCollector()
	c.Observe(pipeline.Event{Outcome: pipeline.OutcomeOK, Backend: "native", Duration: 120 * time.Millisecond})
	c.Observe(pipeline.Event{Outcome: pipeline.OutcomeInference, Backend: "native", Duration: time.Second})
	c.AuthFailed()

	body := scrape(t, c)
	for _, want := range []string{
		`spotter_requests_total{backend="native",outcome="ok"} 1`,
		`spotter_requests_total{backend="native",outcome="inference_error"} 1`,
		`spotter_failed_inference_total{backend="native"} 1`,
		`spotter_failed_auth_total 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("scrape missing %q:\n%s", want, body)
		}
	}
}

func TestCollector_StateIsOneHot(t *testing.T) {
	c := testCollector()
	c.SetState(StateRunning)
	body := scrape(t, c)
	if !strings.Contains(body, `spotter_app_state{state="running"} 1`) {
		t.Fatalf("scrape:\n%s", body)
	}
	if !strings.Contains(body, `spotter_app_state{state="starting"} 0`) {
		t.Fatalf("scrape:\n%s", body)
	}
}

func TestCollector_AppInfo(t *testing.T) {
	body := scrape(t, testCollector())
	if !strings.Contains(body, `model_id="acme/test-ner"`) {
		t.Fatalf("scrape:\n%s", body)
	}
}
