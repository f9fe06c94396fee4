package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/foxzi/ingestdesk/internal/web/auth"
	"github.com/foxzi/ingestdesk/internal/web/config"
	"github.com/foxzi/ingestdesk/internal/web/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	dir := t.TempDir()
	cfg, err := config.Parse([]byte(`
database:
  path: "` + filepath.Join(dir, "app.db") + `"
auth:
  local_enabled: true
  session_secret: "0123456789abcdef0123456789abcdef"
  roles:
    editor_group: editors
    uploader_group: uploaders
backend:
  base_url: "http://127.0.0.1:1"
  service_token: "svc"
`))
	require.NoError(t, err)

	s, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func (s *Server) login(t *testing.T, groups ...string) *http.Cookie {
	t.Helper()
	u, err := s.users.CreateLocal("ops@example.com", "Ops", "s3cret-pass", groups)
	require.NoError(t, err)
	sess, err := s.sessions.Create(u.ID, time.Hour, repository.Tokens{})
	require.NoError(t, err)
	return &http.Cookie{Name: auth.SessionCookie, Value: sess.ID}
}

func TestNew_JournalBesideDatabase(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, filepath.Join(filepath.Dir(s.cfg.Database.Path), "journal.db"), s.cfg.Journal.Path)
	assert.Nil(t, s.probe)
}

func TestHandler_PublicRoutes(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	tests := []struct {
		name string
		path string
		want int
	}{
		{name: "health", path: "/health", want: http.StatusOK},
		{name: "login page", path: "/auth/login", want: http.StatusOK},
		{name: "stylesheet", path: "/static/css/app.css", want: http.StatusOK},
		{name: "script", path: "/static/js/app.js", want: http.StatusOK},
		{name: "missing asset", path: "/static/js/nope.js", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHandler_RequiresSession(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login", rec.Header().Get("Location"))

	req := httptest.NewRequest(http.MethodGet, "/views/abc/table", nil)
	req.Header.Set("HX-Request", "true")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "/auth/login", rec.Header().Get("HX-Redirect"))

	req = httptest.NewRequest(http.MethodGet, "/settings/audit", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: "unknown"})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestHandler_RoleGroups(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	cookie := s.login(t, "viewers")

	req := httptest.NewRequest(http.MethodGet, "/settings/audit", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Audit log")

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{name: "upload", method: http.MethodPost, path: "/jobs/upload"},
		{name: "cancel", method: http.MethodPost, path: "/jobs/2/cancel"},
		{name: "reprocess", method: http.MethodPost, path: "/jobs/reprocess-all"},
		{name: "resolve", method: http.MethodGet, path: "/issues/7/resolve"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.AddCookie(cookie)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusForbidden, rec.Code)
		})
	}
}

func TestHandler_LoginRateLimited(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	codes := make([]int, 0, s.cfg.Auth.LoginLimit.Burst+1)
	for i := 0; i <= s.cfg.Auth.LoginLimit.Burst; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "203.0.113.9:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.NotContains(t, codes[:len(codes)-1], http.StatusTooManyRequests)
	assert.Equal(t, http.StatusTooManyRequests, codes[len(codes)-1])
}
