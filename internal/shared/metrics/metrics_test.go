package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestHandlerExposesCounters(t *testing.T) {
	gin.SetMode(gin.TestMode)

	IncIngestionStarted()
	IncIngestionRejected("unsupported_type")
	IncExtractionCompleted("pdf")
	ObserveExtractionDurationMs(-5)
	done := TrackInflight()
	done()

	r := gin.New()
	r.GET("/metrics", Handler())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		"paper_ingestion_started_total",
		`paper_ingestion_rejected_total{reason="unsupported_type"}`,
		`paper_extraction_completed_total{file_type="pdf"}`,
		"paper_extraction_duration_ms_bucket",
		"paper_extractions_in_flight 0",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output", want)
		}
	}
}

func TestRegistryGathers(t *testing.T) {
	IncJobsReceived("asynq")
	families, err := Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "paper_jobs_received_total" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected paper_jobs_received_total family")
	}
}
