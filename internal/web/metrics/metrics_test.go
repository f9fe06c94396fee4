package metrics

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservers(t *testing.T) {
	m := New()

	m.ObserveBackendCall("list_jobs", "ok", 120*time.Millisecond)
	m.ObserveBackendCall("list_jobs", "ok", 80*time.Millisecond)
	m.ObserveBackendCall("list_jobs", "auth", time.Millisecond)
	m.ObservePoll("jobs", "ok")
	m.ObservePoll("jobs", "error")
	m.ObserveResolution("DUPLICATE_EMAIL", "ok")
	m.ObserveUpload("rejected")
	m.SetActiveViews(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BackendCallsTotal.WithLabelValues("list_jobs", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackendCallsTotal.WithLabelValues("list_jobs", "auth")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.BackendCallDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PollsTotal.WithLabelValues("jobs", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResolutionsTotal.WithLabelValues("DUPLICATE_EMAIL", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UploadsTotal.WithLabelValues("rejected")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ActiveViews))
}

func TestHTTPMiddleware_UsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.HTTPMiddleware)
	r.Get("/views/{id}/table", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/views/"+id+"/table", nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/views/{id}/table", "202")))
}

func TestServer_IPFilter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := New()
	m.ObservePoll("jobs", "ok")

	tests := []struct {
		name       string
		allowed    []string
		remoteAddr string
		wantStatus int
	}{
		{"no filter", nil, "203.0.113.9:5000", http.StatusOK},
		{"allowed ip", []string{"10.0.0.1"}, "10.0.0.1:5000", http.StatusOK},
		{"allowed cidr", []string{"invalid", "10.0.0.0/8"}, "10.1.2.3:5000", http.StatusOK},
		{"denied", []string{"10.0.0.0/8"}, "192.168.1.1:5000", http.StatusForbidden},
		{"ipv6", []string{"::1"}, "[::1]:5000", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(m, ":0", "/metrics", tt.allowed, logger)
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			req.RemoteAddr = tt.remoteAddr
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.True(t, strings.Contains(rec.Body.String(), "ingestdesk_polls_total"))
			}
		})
	}
}

func TestServer_HealthUnfiltered(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewServer(New(), "", "", []string{"10.0.0.1"}, logger)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "192.168.1.1:1234"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}
