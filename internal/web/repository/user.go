package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/foxzi/ingestdesk/internal/web/models"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrUserExists is returned when creating a user whose email is taken.
var ErrUserExists = errors.New("user already exists")

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, password_hash, COALESCE(name, ''), groups_list, provider, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	u := &models.User{}
	var groups string
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &groups, &u.Provider, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Groups = splitGroups(groups)
	return u, nil
}

func joinGroups(groups []string) string {
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return strings.Join(out, ",")
}

func splitGroups(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// CreateLocal stores a local user with a bcrypt hash of password.
func (r *UserRepository) CreateLocal(email, name, password string, groups []string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	existing, err := r.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrUserExists, email)
	}

	now := time.Now()
	u := &models.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		Name:         name,
		Groups:       splitGroups(joinGroups(groups)),
		Provider:     models.ProviderLocal,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err = r.db.Exec(`
		INSERT INTO users (id, email, password_hash, name, groups_list, provider, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.Name, joinGroups(u.Groups), u.Provider, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

// UpsertOIDC creates or refreshes a user signed in through the identity
// provider. Name and groups follow the latest ID token.
func (r *UserRepository) UpsertOIDC(email, name string, groups []string) (*models.User, error) {
	now := time.Now()
	_, err := r.db.Exec(`
		INSERT INTO users (id, email, password_hash, name, groups_list, provider, created_at, updated_at)
		VALUES (?, ?, '', ?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			name = excluded.name,
			groups_list = excluded.groups_list,
			updated_at = excluded.updated_at`,
		uuid.New().String(), email, name, joinGroups(groups), models.ProviderOIDC, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return r.GetByEmail(email)
}

// Authenticate checks a local password. It returns nil, nil for an unknown
// user or a wrong password.
func (r *UserRepository) Authenticate(email, password string) (*models.User, error) {
	u, err := r.GetByEmail(email)
	if err != nil || u == nil {
		return nil, err
	}
	if u.PasswordHash == "" {
		return nil, nil
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, nil
	}
	return u, nil
}

// GetByEmail returns nil, nil when no user has the address.
func (r *UserRepository) GetByEmail(email string) (*models.User, error) {
	u, err := scanUser(r.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (r *UserRepository) GetByID(id string) (*models.User, error) {
	u, err := scanUser(r.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// List returns all users ordered by email.
func (r *UserRepository) List() ([]models.User, error) {
	rows, err := r.db.Query(`SELECT ` + userColumns + ` FROM users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// Delete removes the user and, through the foreign key, its sessions.
// It reports whether a user was removed.
func (r *UserRepository) Delete(email string) (bool, error) {
	res, err := r.db.Exec(`DELETE FROM users WHERE email = ?`, email)
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SetPassword replaces the password of a local user. It reports whether a
// local user with the address exists.
func (r *UserRepository) SetPassword(email, password string) (bool, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("failed to hash password: %w", err)
	}
	res, err := r.db.Exec(`
		UPDATE users SET password_hash = ?, updated_at = ?
		WHERE email = ? AND provider = ?`,
		string(hash), time.Now(), email, models.ProviderLocal,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update password: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
