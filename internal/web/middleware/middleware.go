package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/foxzi/ingestdesk/internal/web/auth"
	"github.com/foxzi/ingestdesk/internal/web/models"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// LoginPath is where unauthenticated browsers are sent.
const LoginPath = "/auth/login"

// Logger middleware logs HTTP requests
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration", time.Since(start),
				"bytes", ww.BytesWritten(),
				"ip", r.RemoteAddr,
				"request_id", chimw.GetReqID(r.Context()),
			)
		})
	}
}

// Recovery middleware recovers from panics
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("panic recovered",
						"error", err,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// SessionStore looks sessions up by id.
type SessionStore interface {
	Get(id string) (*models.Session, error)
}

// Auth requires a live session and stores it in the request context.
func Auth(sessions SessionStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(auth.SessionCookie)
			if err != nil || cookie.Value == "" {
				toLogin(w, r)
				return
			}

			s, err := sessions.Get(cookie.Value)
			if err != nil {
				logger.Error("failed to load session", "error", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			if s == nil {
				toLogin(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), s)))
		})
	}
}

// toLogin redirects the browser. htmx requests get an HX-Redirect so the
// whole page navigates instead of swapping the login form into a fragment.
func toLogin(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", LoginPath)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	http.Redirect(w, r, LoginPath, http.StatusSeeOther)
}

// RequireGroup rejects users outside group. An empty group allows everyone.
func RequireGroup(group string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := auth.UserFrom(r.Context())
			if u == nil {
				toLogin(w, r)
				return
			}
			if !u.HasGroup(group) {
				logger.Warn("forbidden", "user", u.Email, "group", group, "path", r.URL.Path)
				http.Error(w, "You do not have permission to perform this action.", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoginLimiter throttles login attempts per client IP.
type LoginLimiter struct {
	limiters *cache.Cache
	limit    rate.Limit
	burst    int
}

// NewLoginLimiter allows perMinute attempts per IP with the given burst.
// Idle limiters are dropped after ten minutes.
func NewLoginLimiter(perMinute, burst int) *LoginLimiter {
	return &LoginLimiter{
		limiters: cache.New(10*time.Minute, 5*time.Minute),
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
	}
}

// Allow reports whether ip may attempt a login now.
func (l *LoginLimiter) Allow(ip string) bool {
	return l.limiter(ip).Allow()
}

func (l *LoginLimiter) limiter(ip string) *rate.Limiter {
	if v, ok := l.limiters.Get(ip); ok {
		l.limiters.SetDefault(ip, v)
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	if err := l.limiters.Add(ip, lim, cache.DefaultExpiration); err != nil {
		// another request created it first
		if v, ok := l.limiters.Get(ip); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

// Middleware applies the limit to POST requests.
func (l *LoginLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && !l.Allow(ClientIP(r)) {
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Too many login attempts. Try again later.", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the request address without port. Forwarding headers
// are ignored so clients cannot pick their own limiter bucket.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// MethodOverride lets url-encoded forms send DELETE or PUT via a _method
// field. Multipart bodies are left for the handler to parse.
func MethodOverride(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
			if method := r.FormValue("_method"); method == http.MethodDelete || method == http.MethodPut {
				r.Method = method
			}
		}
		next.ServeHTTP(w, r)
	})
}
