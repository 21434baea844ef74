package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-forwarder/internal/runs"
	"github.com/dvloznov/bank-forwarder/internal/runs/inmemory"
)

func newTestHandler(t *testing.T) (http.Handler, *inmemory.Store, *bytes.Buffer) {
	t.Helper()
	store := inmemory.NewStore(0)
	ctx := context.Background()
	finished := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for _, r := range []runs.Run{
		{RunID: "1", Stream: "itau", Status: runs.StatusSucceeded, FinishedAt: finished},
		{RunID: "2", Stream: "sis", Status: runs.StatusFailed, ErrorClass: "authentication", FinishedAt: finished},
		{RunID: "3", Stream: "itau", Status: runs.StatusSucceeded, Additions: 2, FinishedAt: finished},
	} {
		r := r
		if err := store.RecordRun(ctx, &r); err != nil {
			t.Fatal(err)
		}
	}

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	var logs bytes.Buffer
	return NewHandler(store, reg, zerolog.New(&logs)), store, &logs
}

func TestHealthz(t *testing.T) {
	h, _, _ := newTestHandler(t)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Status  string `json:"status"`
		Streams map[string]struct {
			Status     string `json:"status"`
			ErrorClass string `json:"error_class"`
		} `json:"streams"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "degraded" {
		t.Errorf("status = %q, want degraded", body.Status)
	}
	if body.Streams["sis"].ErrorClass != "authentication" || body.Streams["itau"].Status != "succeeded" {
		t.Errorf("streams = %+v", body.Streams)
	}
}

func TestListRuns(t *testing.T) {
	h, _, _ := newTestHandler(t)

	tests := []struct {
		name      string
		url       string
		wantCode  int
		wantCount int
	}{
		{name: "all", url: "/api/runs", wantCode: http.StatusOK, wantCount: 3},
		{name: "by stream", url: "/api/runs?stream=itau", wantCode: http.StatusOK, wantCount: 2},
		{name: "by status", url: "/api/runs?status=failed", wantCode: http.StatusOK, wantCount: 1},
		{name: "limit", url: "/api/runs?limit=1", wantCode: http.StatusOK, wantCount: 1},
		{name: "bad limit", url: "/api/runs?limit=abc", wantCode: http.StatusBadRequest},
		{name: "zero limit", url: "/api/runs?limit=0", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var body struct {
				Runs  []runs.Run `json:"runs"`
				Count int        `json:"count"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Count != tt.wantCount || len(body.Runs) != tt.wantCount {
				t.Errorf("count = %d (%d runs), want %d", body.Count, len(body.Runs), tt.wantCount)
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _, _ := newTestHandler(t)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/runs", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	h, _, _ := newTestHandler(t)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "test_total 1") {
		t.Errorf("metrics = %d %q", rec.Code, rec.Body.String())
	}
}

func TestRequestLogging(t *testing.T) {
	h, _, logs := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("X-Request-ID = %q", got)
	}
	for _, want := range []string{`"path":"/healthz"`, `"status":200`, `"request_id":"req-42"`} {
		if !strings.Contains(logs.String(), want) {
			t.Errorf("log %q missing %s", logs.String(), want)
		}
	}
}
