package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/foxzi/ingestdesk/internal/web/auth"
	"github.com/foxzi/ingestdesk/internal/web/models"
	"github.com/foxzi/ingestdesk/internal/web/repository"
)

const stateCookie = "oidc_state"

type loginPage struct {
	LocalEnabled bool
	OIDCEnabled  bool
	OIDCProvider string
	Email        string
	Error        string
}

func (h *Handlers) loginData() loginPage {
	return loginPage{
		LocalEnabled: h.cfg.Auth.LocalEnabled,
		OIDCEnabled:  h.cfg.Auth.OIDC.Enabled,
		OIDCProvider: h.cfg.Auth.OIDC.Provider,
	}
}

// LoginPage renders the login page
func (h *Handlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, "login", h.loginData())
}

// Login handles login form submission
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.Auth.LocalEnabled {
		h.renderLoginError(w, http.StatusForbidden, "", "Password login is disabled")
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderLoginError(w, http.StatusBadRequest, "", "Invalid form data")
		return
	}

	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")

	user, err := h.users.Authenticate(email, password)
	if err != nil {
		h.logger.Error("failed to authenticate", "error", err)
		h.renderLoginError(w, http.StatusInternalServerError, email, "Login failed, please try again")
		return
	}
	if user == nil {
		h.observeLogin(models.ProviderLocal, "rejected")
		h.logger.Warn("login rejected", "email", email, "ip", r.RemoteAddr)
		h.renderLoginError(w, http.StatusUnauthorized, email, "Invalid email or password")
		return
	}

	if !h.startSession(w, user, repository.Tokens{}) {
		h.renderLoginError(w, http.StatusInternalServerError, email, "Login failed, please try again")
		return
	}
	h.observeLogin(models.ProviderLocal, "ok")
	h.logger.Info("user logged in", "email", user.Email, "provider", models.ProviderLocal)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout handles user logout
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.SessionCookie); err == nil {
		if err := h.sessions.Delete(cookie.Value); err != nil {
			h.logger.Warn("failed to delete session", "error", err)
		}
		h.store.CloseSession(cookie.Value)
		h.dropResolvers(cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
	})

	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

// OIDCLogin initiates OIDC login flow
func (h *Handlers) OIDCLogin(w http.ResponseWriter, r *http.Request) {
	if h.oidc == nil {
		h.renderLoginError(w, http.StatusNotFound, "", "OIDC is not configured")
		return
	}

	url, state, err := h.oidc.AuthCodeURL()
	if err != nil {
		h.logger.Error("failed to generate auth URL", "error", err)
		h.renderLoginError(w, http.StatusInternalServerError, "", "Failed to initiate login")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
		Secure:   h.cfg.Server.TLS.Enabled,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// OIDCCallback completes the authorization code flow and opens a session
// carrying the provider tokens.
func (h *Handlers) OIDCCallback(w http.ResponseWriter, r *http.Request) {
	if h.oidc == nil {
		h.renderLoginError(w, http.StatusNotFound, "", "OIDC is not configured")
		return
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil {
		h.renderLoginError(w, http.StatusBadRequest, "", "Invalid state")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	q := r.URL.Query()
	state := q.Get("state")
	if state != cookie.Value {
		h.renderLoginError(w, http.StatusBadRequest, "", "Invalid state")
		return
	}

	code := q.Get("code")
	if code == "" {
		desc := q.Get("error_description")
		if desc == "" {
			desc = q.Get("error")
		}
		if desc == "" {
			desc = "Authorization failed"
		}
		h.observeLogin(models.ProviderOIDC, "rejected")
		h.renderLoginError(w, http.StatusUnauthorized, "", desc)
		return
	}

	login, err := h.oidc.Exchange(r.Context(), state, code)
	if err != nil {
		h.observeLogin(models.ProviderOIDC, "rejected")
		h.logger.Error("OIDC exchange failed", "error", err)
		msg := "Authentication failed"
		switch {
		case errors.Is(err, auth.ErrGroupForbidden):
			msg = "Your account is not allowed to use this console"
		case errors.Is(err, auth.ErrInvalidState):
			msg = "Login expired, please try again"
		}
		h.renderLoginError(w, http.StatusUnauthorized, "", msg)
		return
	}

	user, err := h.users.UpsertOIDC(login.User.Email, login.User.Name, login.User.Groups)
	if err != nil {
		h.logger.Error("failed to store OIDC user", "error", err)
		h.renderLoginError(w, http.StatusInternalServerError, "", "Failed to create user")
		return
	}

	tok := repository.Tokens{
		AccessToken:  login.Token.AccessToken,
		RefreshToken: login.Token.RefreshToken,
		Expiry:       login.Token.Expiry,
	}
	if !h.startSession(w, user, tok) {
		h.renderLoginError(w, http.StatusInternalServerError, "", "Login failed, please try again")
		return
	}
	h.observeLogin(models.ProviderOIDC, "ok")
	h.logger.Info("user logged in", "email", user.Email, "provider", models.ProviderOIDC)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handlers) startSession(w http.ResponseWriter, user *models.User, tok repository.Tokens) bool {
	sess, err := h.sessions.Create(user.ID, h.cfg.Auth.SessionTTL, tok)
	if err != nil {
		h.logger.Error("failed to create session", "error", err, "email", user.Email)
		return false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cfg.Server.TLS.Enabled,
		SameSite: http.SameSiteLaxMode,
	})
	return true
}

func (h *Handlers) renderLoginError(w http.ResponseWriter, status int, email, message string) {
	data := h.loginData()
	data.Email = email
	data.Error = message

	var buf strings.Builder
	if err := h.views.Render(&buf, "login", data); err != nil {
		h.logger.Error("failed to render template", "template", "login", "error", err)
		http.Error(w, message, status)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(buf.String()))
}

func (h *Handlers) observeLogin(provider, outcome string) {
	if h.metrics != nil {
		h.metrics.ObserveLogin(provider, outcome)
	}
}
