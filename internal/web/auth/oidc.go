// Package auth signs operators in and supplies the bearer token used for
// backend calls on their behalf.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/foxzi/ingestdesk/internal/web/config"
	"golang.org/x/oauth2"
)

// stateTTL bounds how long a login may take at the identity provider.
const stateTTL = 10 * time.Minute

var (
	ErrInvalidState   = errors.New("invalid state")
	ErrGroupForbidden = errors.New("user not in allowed groups")
)

// OIDCProvider signs users in with an OpenID Connect identity provider.
type OIDCProvider struct {
	config   *config.OIDCConfig
	provider *oidc.Provider
	oauth2   oauth2.Config
	verifier *oidc.IDTokenVerifier
	now      func() time.Time

	mu     sync.Mutex
	states map[string]time.Time
}

// NewOIDCProvider discovers the issuer. It returns nil, nil when OIDC is disabled.
func NewOIDCProvider(ctx context.Context, cfg *config.OIDCConfig) (*OIDCProvider, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	return &OIDCProvider{
		config:   cfg,
		provider: provider,
		oauth2: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       cfg.Scopes,
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		now:      time.Now,
		states:   make(map[string]time.Time),
	}, nil
}

// AuthCodeURL returns the authorization URL and the state it carries.
func (p *OIDCProvider) AuthCodeURL() (string, string, error) {
	state, err := generateState()
	if err != nil {
		return "", "", err
	}
	p.rememberState(state)
	return p.oauth2.AuthCodeURL(state, oauth2.AccessTypeOffline), state, nil
}

func (p *OIDCProvider) rememberState(state string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for s, issued := range p.states {
		if now.Sub(issued) > stateTTL {
			delete(p.states, s)
		}
	}
	p.states[state] = now
}

// consumeState reports whether state was issued recently and forgets it.
func (p *OIDCProvider) consumeState(state string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	issued, ok := p.states[state]
	delete(p.states, state)
	return ok && p.now().Sub(issued) <= stateTTL
}

// Login is the outcome of a completed authorization code flow.
type Login struct {
	User  UserInfo
	Token *oauth2.Token
}

// Exchange trades the authorization code for tokens and verifies the ID token.
func (p *OIDCProvider) Exchange(ctx context.Context, state, code string) (*Login, error) {
	if !p.consumeState(state) {
		return nil, ErrInvalidState
	}

	token, err := p.oauth2.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("no id_token in response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify id_token: %w", err)
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	info := userInfoFromClaims(claims, p.config.GroupsClaim)
	if !allowed(info.Groups, p.config.AllowedGroups) {
		return nil, ErrGroupForbidden
	}
	return &Login{User: info, Token: token}, nil
}

// Refresh obtains a new access token using the refresh token in tok.
func (p *OIDCProvider) Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	fresh, err := p.oauth2.TokenSource(ctx, tok).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	return fresh, nil
}

// UserInfo is the identity carried by the ID token.
type UserInfo struct {
	Email  string
	Name   string
	Groups []string
}

func userInfoFromClaims(claims map[string]any, groupsClaim string) UserInfo {
	info := UserInfo{}
	info.Email, _ = claims["email"].(string)
	info.Name, _ = claims["name"].(string)
	if info.Name == "" {
		info.Name, _ = claims["preferred_username"].(string)
	}

	switch v := claims[groupsClaim].(type) {
	case []any:
		for _, g := range v {
			if s, ok := g.(string); ok && s != "" {
				info.Groups = append(info.Groups, s)
			}
		}
	case string:
		if v != "" {
			info.Groups = []string{v}
		}
	}
	return info
}

func allowed(groups, allowedGroups []string) bool {
	if len(allowedGroups) == 0 {
		return true
	}
	for _, g := range allowedGroups {
		if slices.Contains(groups, g) {
			return true
		}
	}
	return false
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
