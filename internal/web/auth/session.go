package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foxzi/ingestdesk/internal/web/models"
	"github.com/foxzi/ingestdesk/internal/web/repository"
	"golang.org/x/oauth2"
)

// SessionCookie names the cookie holding the session id.
const SessionCookie = "session"

type sessionKey struct{}

// WithSession returns a context carrying the signed-in session.
func WithSession(ctx context.Context, s *models.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom returns the session stored by WithSession, or nil.
func SessionFrom(ctx context.Context) *models.Session {
	s, _ := ctx.Value(sessionKey{}).(*models.Session)
	return s
}

// UserFrom returns the signed-in user, or nil.
func UserFrom(ctx context.Context) *models.User {
	if s := SessionFrom(ctx); s != nil {
		return s.User
	}
	return nil
}

// ErrNoSession is returned when a request carries no signed-in session.
var ErrNoSession = errors.New("no session")

// Refresher renews provider tokens.
type Refresher interface {
	Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error)
}

// TokenStore persists renewed tokens.
type TokenStore interface {
	UpdateTokens(id string, tok repository.Tokens) error
}

// expiryLeeway renews access tokens slightly before they expire.
const expiryLeeway = 30 * time.Second

// SessionTokens supplies the backend bearer token for the session in the
// request context. OIDC sessions use their access token, refreshed when it
// is about to expire. Local sessions use the service token.
type SessionTokens struct {
	refresher    Refresher
	store        TokenStore
	serviceToken string
	logger       *slog.Logger
	now          func() time.Time

	// guards session token fields; one refresh at a time
	mu sync.Mutex
}

func NewSessionTokens(refresher Refresher, store TokenStore, serviceToken string, logger *slog.Logger) *SessionTokens {
	return &SessionTokens{
		refresher:    refresher,
		store:        store,
		serviceToken: serviceToken,
		logger:       logger.With("component", "tokens"),
		now:          time.Now,
	}
}

// Token implements backend.TokenSource.
func (t *SessionTokens) Token(ctx context.Context) (string, error) {
	s := SessionFrom(ctx)
	if s == nil {
		return "", ErrNoSession
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if s.AccessToken == "" {
		if s.User != nil && s.User.Provider == models.ProviderLocal {
			return t.serviceToken, nil
		}
		return "", nil
	}
	if s.TokenExpiry.IsZero() || t.now().Add(expiryLeeway).Before(s.TokenExpiry) {
		return s.AccessToken, nil
	}
	return t.refresh(ctx, s)
}

func (t *SessionTokens) refresh(ctx context.Context, s *models.Session) (string, error) {
	if s.RefreshToken == "" || t.refresher == nil {
		// expired without a way to renew; the backend answers 401
		return s.AccessToken, nil
	}

	fresh, err := t.refresher.Refresh(ctx, &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		Expiry:       s.TokenExpiry,
	})
	if err != nil {
		t.logger.Warn("token refresh failed", "session", s.ID, "error", err)
		return "", fmt.Errorf("refresh session %s: %w", s.ID, err)
	}

	refreshToken := fresh.RefreshToken
	if refreshToken == "" {
		refreshToken = s.RefreshToken
	}
	tok := repository.Tokens{AccessToken: fresh.AccessToken, RefreshToken: refreshToken, Expiry: fresh.Expiry}
	if err := t.store.UpdateTokens(s.ID, tok); err != nil {
		t.logger.Warn("failed to store refreshed token", "session", s.ID, "error", err)
	}

	s.AccessToken = tok.AccessToken
	s.RefreshToken = tok.RefreshToken
	s.TokenExpiry = tok.Expiry
	return s.AccessToken, nil
}

// Identity implements the resolver's operator lookup from the request context.
type Identity struct{}

func (Identity) CurrentEmail(ctx context.Context) (string, error) {
	u := UserFrom(ctx)
	if u == nil {
		return "", ErrNoSession
	}
	return u.Email, nil
}
