package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCollectorRecordsHTTPMetrics(t *testing.T) {
	collector, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector returned error: %v", err)
	}

	handlerInvoked := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerInvoked = true
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	})

	instrumented := collector.InstrumentHandler(handler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()

	instrumented.ServeHTTP(rr, req)

	if !handlerInvoked {
		t.Fatal("expected handler to be invoked")
	}

	if rr.Code != http.StatusAccepted {
		t.Fatalf("unexpected status code: %d", rr.Code)
	}

	body := scrape(t, collector)
	if !strings.Contains(body, `kolwatch_http_requests_total{method="GET",path="/test",status="202"} 1`) {
		t.Fatalf("requests_total metric not recorded, body=%q", body)
	}

	if !strings.Contains(body, `kolwatch_http_request_duration_seconds_count{method="GET",path="/test",status="202"} 1`) {
		t.Fatalf("request_duration_seconds_count metric not recorded, body=%q", body)
	}
}

func TestCollectorRecordsPipelineMetrics(t *testing.T) {
	collector, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector returned error: %v", err)
	}

	collector.ObserveNotification("processed")
	collector.ObserveSuppressed(2)
	collector.ObserveTweetsFetched(5)
	collector.ObserveFetchError()
	collector.ObserveDelivery("ok")
	collector.ObserveDelivery("timeout")
	collector.ObserveReceipt("written")

	body := scrape(t, collector)

	expected := []string{
		`kolwatch_pipeline_notifications_total{result="processed"} 1`,
		`kolwatch_pipeline_suppressed_accounts_total 2`,
		`kolwatch_pipeline_tweets_fetched_total 5`,
		`kolwatch_pipeline_fetch_errors_total 1`,
		`kolwatch_webhook_deliveries_total{outcome="ok"} 1`,
		`kolwatch_webhook_deliveries_total{outcome="timeout"} 1`,
		`kolwatch_webhook_receipts_total{result="written"} 1`,
	}
	for _, want := range expected {
		if !strings.Contains(body, want) {
			t.Errorf("metric %q not found in scrape output", want)
		}
	}
}

func scrape(t *testing.T, collector *Collector) string {
	t.Helper()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected metrics handler to return 200, got %d", rr.Code)
	}

	return rr.Body.String()
}
