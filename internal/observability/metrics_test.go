package observability

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics(testLogger)

	m.FetchAttempt("success")
	m.FetchAttempt("retryable_status")
	m.FetchAttempt("retryable_status")
	m.RecordBuilt("feed")
	m.RecordsWritten("json", 3)
	m.RecordDropped("require_items")

	if got := testutil.ToFloat64(m.FetchAttempts.WithLabelValues("retryable_status")); got != 2 {
		t.Errorf("expected 2 retryable attempts, got %v", got)
	}
	if got := testutil.ToFloat64(m.RecordsStored.WithLabelValues("json")); got != 3 {
		t.Errorf("expected 3 stored records, got %v", got)
	}
	if got := testutil.ToFloat64(m.RecordsBuilt.WithLabelValues("feed")); got != 1 {
		t.Errorf("expected 1 built record, got %v", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.FetchAttempt("success")
	m.RecordBuilt("page")
	m.ItemFailed("fetch")
	m.InFlight(1)
	if m.Registry() != nil {
		t.Error("nil metrics should have a nil registry")
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics(testLogger)
	m.TranslationAttempt("google", "success")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), "itemreviewed_translation_attempts_total") {
		t.Errorf("expected translation counter in exposition output")
	}
}
