package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesCounters(t *testing.T) {
	MirrorRequests.WithLabelValues("https://mirror.example", OutcomeHTTPError).Inc()
	NewPosts.WithLabelValues("alice").Add(2)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`feedwatch_mirror_requests_total{mirror="https://mirror.example",outcome="http_error"}`,
		`feedwatch_new_posts_total{handle="alice"}`,
		"feedwatch_check_duration_seconds_bucket",
		"feedwatch_last_run_timestamp_seconds",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}
