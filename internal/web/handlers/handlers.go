package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/foxzi/ingestdesk/internal/web/audit"
	"github.com/foxzi/ingestdesk/internal/web/auth"
	"github.com/foxzi/ingestdesk/internal/web/backend"
	"github.com/foxzi/ingestdesk/internal/web/config"
	"github.com/foxzi/ingestdesk/internal/web/metrics"
	"github.com/foxzi/ingestdesk/internal/web/models"
	"github.com/foxzi/ingestdesk/internal/web/poller"
	"github.com/foxzi/ingestdesk/internal/web/repository"
	"github.com/foxzi/ingestdesk/internal/web/views"
	"github.com/go-chi/chi/v5"
	"github.com/patrickmn/go-cache"
)

// Deps are the collaborators of the handlers.
type Deps struct {
	Config   *config.Config
	Backend  *backend.Client
	Users    *repository.UserRepository
	Sessions *repository.SessionRepository
	OIDC     *auth.OIDCProvider
	Journal  *audit.Journal
	Metrics  *metrics.Metrics
	Views    *views.Engine
	Logger   *slog.Logger

	// Scheduler drives view pollers; nil uses real timers.
	Scheduler poller.Scheduler
}

type Handlers struct {
	cfg       *config.Config
	backend   *backend.Client
	users     *repository.UserRepository
	sessions  *repository.SessionRepository
	oidc      *auth.OIDCProvider
	journal   *audit.Journal
	metrics   *metrics.Metrics
	views     *views.Engine
	scheduler poller.Scheduler
	logger    *slog.Logger

	store     *ViewStore
	resolvers *cache.Cache
	now       func() time.Time
}

func New(d Deps) *Handlers {
	h := &Handlers{
		cfg:       d.Config,
		backend:   d.Backend,
		users:     d.Users,
		sessions:  d.Sessions,
		oidc:      d.OIDC,
		journal:   d.Journal,
		metrics:   d.Metrics,
		views:     d.Views,
		scheduler: d.Scheduler,
		logger:    d.Logger,
		now:       time.Now,
	}
	var onCount func(int)
	if h.metrics != nil {
		onCount = h.metrics.SetActiveViews
	}
	h.store = NewViewStore(d.Config.Views.IdleTTL, d.Logger, onCount)
	h.resolvers = cache.New(d.Config.Views.IdleTTL, d.Config.Views.IdleTTL/2)
	return h
}

// Close unmounts every open view.
func (h *Handlers) Close() {
	h.store.Close()
}

// Store exposes the live views.
func (h *Handlers) Store() *ViewStore {
	return h.store
}

// Health check
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Index sends the browser to the jobs page.
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/jobs", http.StatusSeeOther)
}

// pageData is common to every full page.
type pageData struct {
	Title     string
	Active    string
	User      *models.User
	CanUpload bool
	CanEdit   bool
}

func (h *Handlers) page(r *http.Request, title, active string) pageData {
	u := auth.UserFrom(r.Context())
	return pageData{
		Title:     title,
		Active:    active,
		User:      u,
		CanUpload: u.HasGroup(h.cfg.Auth.Roles.UploaderGroup),
		CanEdit:   u.HasGroup(h.cfg.Auth.Roles.EditorGroup),
	}
}

// render writes a full page. The page is rendered into a buffer so a
// template error still produces a clean 500.
func (h *Handlers) render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := h.views.Render(&buf, name, data); err != nil {
		h.logger.Error("failed to render template", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

// renderPartial writes an htmx fragment with the given status.
func (h *Handlers) renderPartial(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := h.views.RenderPartial(&buf, name, data); err != nil {
		h.logger.Error("failed to render partial", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// Helper for JSON responses
func (h *Handlers) json(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}

// Helper for errors
func (h *Handlers) error(w http.ResponseWriter, status int, message string) {
	h.logger.Warn("request error", "status", status, "message", message)
	http.Error(w, message, status)
}

// toast is a notification rendered by the toasts partial.
type toast struct {
	Level       string
	Title       string
	Description string
}

func toastsFrom(notes []poller.Notification) []toast {
	out := make([]toast, 0, len(notes))
	for _, n := range notes {
		level := "info"
		if n.Level == poller.LevelError {
			level = "error"
		}
		out = append(out, toast{Level: level, Title: n.Title, Description: n.Description})
	}
	return out
}

func errorToast(title string, err error) toast {
	return toast{Level: "error", Title: title, Description: backend.Message(err)}
}

// backendFailure answers an htmx action whose backend call failed. An
// authentication failure sends the browser to the login page.
func (h *Handlers) backendFailure(w http.ResponseWriter, title string, err error) {
	if backend.IsAuth(err) {
		w.Header().Set("HX-Redirect", "/auth/login")
	}
	h.renderPartial(w, http.StatusOK, "toasts", []toast{errorToast(title, err)})
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func sessionID(r *http.Request) string {
	if s := auth.SessionFrom(r.Context()); s != nil {
		return s.ID
	}
	return ""
}

func actor(r *http.Request) string {
	if u := auth.UserFrom(r.Context()); u != nil {
		return u.Email
	}
	return "unknown"
}
