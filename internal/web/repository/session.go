package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/foxzi/ingestdesk/internal/web/models"
	"github.com/google/uuid"
)

type SessionRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db, now: time.Now}
}

// Tokens are the identity provider credentials kept with a session.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Create starts a session for userID valid for ttl.
func (r *SessionRepository) Create(userID string, ttl time.Duration, tok Tokens) (*models.Session, error) {
	now := r.now()
	s := &models.Session{
		ID:           uuid.New().String(),
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenExpiry:  tok.Expiry,
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
	}
	_, err := r.db.Exec(`
		INSERT INTO sessions (id, user_id, access_token, refresh_token, token_expiry, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.AccessToken, s.RefreshToken, nullTime(s.TokenExpiry), s.ExpiresAt, s.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s, nil
}

// Get returns the live session with its user, or nil, nil when the id is
// unknown or the session has expired.
func (r *SessionRepository) Get(id string) (*models.Session, error) {
	s := &models.Session{}
	var expiry sql.NullTime
	var groups string
	u := &models.User{}
	err := r.db.QueryRow(`
		SELECT s.id, s.user_id, s.access_token, s.refresh_token, s.token_expiry, s.expires_at, s.created_at,
		       u.id, u.email, COALESCE(u.name, ''), u.groups_list, u.provider, u.created_at, u.updated_at
		FROM sessions s JOIN users u ON u.id = s.user_id
		WHERE s.id = ?`, id,
	).Scan(&s.ID, &s.UserID, &s.AccessToken, &s.RefreshToken, &expiry, &s.ExpiresAt, &s.CreatedAt,
		&u.ID, &u.Email, &u.Name, &groups, &u.Provider, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if s.Expired(r.now()) {
		return nil, nil
	}
	if expiry.Valid {
		s.TokenExpiry = expiry.Time
	}
	u.Groups = splitGroups(groups)
	s.User = u
	return s, nil
}

// UpdateTokens stores refreshed provider tokens.
func (r *SessionRepository) UpdateTokens(id string, tok Tokens) error {
	_, err := r.db.Exec(`
		UPDATE sessions SET access_token = ?, refresh_token = ?, token_expiry = ? WHERE id = ?`,
		tok.AccessToken, tok.RefreshToken, nullTime(tok.Expiry), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update session tokens: %w", err)
	}
	return nil
}

func (r *SessionRepository) Delete(id string) error {
	if _, err := r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired removes sessions past their expiry and returns how many.
func (r *SessionRepository) DeleteExpired() (int64, error) {
	res, err := r.db.Exec(`DELETE FROM sessions WHERE expires_at <= ?`, r.now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
