package models

import (
	"strings"
	"time"

	"github.com/foxzi/ingestdesk/internal/datatable"
)

// Contact is a committed record. It is read-only here.
type Contact struct {
	ID        int64     `json:"contact_id"`
	StagingID int64     `json:"staging_id"`
	UserID    string    `json:"contacts_user_id"`
	Email     string    `json:"contact_email"`
	FirstName *string   `json:"contact_first_name"`
	LastName  *string   `json:"contact_last_name"`
	Company   *string   `json:"contact_company"`
	CreatedAt Timestamp `json:"contact_created_at"`
}

// FullName joins the available name parts.
func (c Contact) FullName() string {
	return strings.TrimSpace(Str(c.FirstName) + " " + Str(c.LastName))
}

// Row projects the contact onto table fields.
func (c Contact) Row(loc *time.Location) datatable.Row {
	return datatable.Row{
		"contact_id":         c.ID,
		"staging_id":         c.StagingID,
		"contacts_user_id":   c.UserID,
		"contact_email":      c.Email,
		"contact_first_name": cell(c.FirstName),
		"contact_last_name":  cell(c.LastName),
		"contact_company":    cell(c.Company),
		"contact_created_at": c.CreatedAt.Cell(loc),
	}
}

// ContactList is the GET /contacts envelope.
type ContactList struct {
	Contacts []Contact `json:"contacts"`
	Total    int       `json:"total"`
}

func (l *ContactList) Rows(loc *time.Location) []datatable.Row {
	if l == nil {
		return nil
	}
	rows := make([]datatable.Row, len(l.Contacts))
	for i, c := range l.Contacts {
		rows[i] = c.Row(loc)
	}
	return rows
}

// Str dereferences a nullable string.
func Str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// NullIfEmpty returns nil for "" and a pointer to s otherwise.
func NullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

func cell(p *string) any {
	if p == nil || *p == "" {
		return nil
	}
	return *p
}
