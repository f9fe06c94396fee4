package resolve

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/foxzi/ingestdesk/internal/web/models"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether s looks like local@domain.tld.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

const (
	ReasonIncomplete   = "Please fill all required fields"
	ReasonInvalidEmail = "Please enter a valid email address"
	ReasonSameEmail    = "Please change the email address to a different one before resolving this issue."
	ReasonNoSelection  = "Please select the row to keep"
	ReasonNoRows       = "No staging ID found"
)

// ValidationError is a form that cannot be submitted yet.
type ValidationError struct {
	StagingID int64
	Reason    string
}

func (e *ValidationError) Error() string {
	if e.StagingID != 0 {
		return fmt.Sprintf("staging %d: %s", e.StagingID, e.Reason)
	}
	return e.Reason
}

// Form is the operator input for one issue.
type Form struct {
	// Fields holds the values per staging row for MISSING_REQUIRED_FIELD.
	Fields map[int64]map[string]string
	// Emails holds new addresses for INVALID_EMAIL and EXISTING_EMAIL.
	// A row absent from the map has not been edited.
	Emails map[int64]string
	// Keep is the staging row kept for DUPLICATE_EMAIL.
	Keep int64
}

// NewForm returns the initial form for issue. Missing-field rows start with
// their current values, invalid emails start with the current address, the
// existing-email input starts empty and the first duplicate row is kept.
func NewForm(issue *models.Issue) Form {
	f := Form{
		Fields: make(map[int64]map[string]string),
		Emails: make(map[int64]string),
	}
	if issue == nil {
		return f
	}
	for _, row := range issue.AffectedRows {
		vals := make(map[string]string, len(models.StagingFields))
		for _, field := range models.StagingFields {
			vals[field] = models.Str(row.Get(field))
		}
		f.Fields[row.ID] = vals
	}
	switch issue.Type {
	case models.IssueInvalidEmail:
		for _, row := range issue.AffectedRows {
			f.Emails[row.ID] = models.Str(row.Email)
		}
	case models.IssueDuplicateEmail:
		if len(issue.AffectedRows) > 0 {
			f.Keep = issue.AffectedRows[0].ID
		}
	}
	return f
}

func (f Form) field(id int64, field string) string {
	return strings.TrimSpace(f.Fields[id][field])
}

func (f Form) email(id int64) string {
	return strings.TrimSpace(f.Emails[id])
}

// Validate checks the form without touching the network.
func Validate(issue *models.Issue, f Form) error {
	if issue == nil {
		return &ValidationError{Reason: ReasonIncomplete}
	}

	switch issue.Type {
	case models.IssueMissingRequiredField:
		for _, row := range issue.AffectedRows {
			for _, field := range row.Missing() {
				if f.field(row.ID, field) == "" {
					return &ValidationError{StagingID: row.ID, Reason: ReasonIncomplete}
				}
			}
		}

	case models.IssueInvalidEmail:
		for _, row := range issue.AffectedRows {
			email := f.email(row.ID)
			if email == "" {
				return &ValidationError{StagingID: row.ID, Reason: ReasonIncomplete}
			}
			if !ValidEmail(email) {
				return &ValidationError{StagingID: row.ID, Reason: ReasonInvalidEmail}
			}
		}

	case models.IssueDuplicateEmail:
		if !affected(issue, f.Keep) {
			return &ValidationError{Reason: ReasonNoSelection}
		}

	case models.IssueExistingEmail:
		if len(issue.AffectedRows) == 0 {
			return &ValidationError{Reason: ReasonNoRows}
		}
		row := issue.AffectedRows[0]
		if !EmailChanged(issue, f) {
			return &ValidationError{StagingID: row.ID, Reason: ReasonSameEmail}
		}
		if !ValidEmail(f.email(row.ID)) {
			return &ValidationError{StagingID: row.ID, Reason: ReasonInvalidEmail}
		}
	}
	return nil
}

// EmailChanged reports whether an EXISTING_EMAIL form carries an address
// different from the original, ignoring case. It is always true for other
// issue types.
func EmailChanged(issue *models.Issue, f Form) bool {
	if issue == nil || issue.Type != models.IssueExistingEmail {
		return true
	}
	if len(issue.AffectedRows) == 0 {
		return false
	}
	row := issue.AffectedRows[0]
	if _, ok := f.Emails[row.ID]; !ok {
		return false
	}
	original := strings.ToLower(strings.TrimSpace(models.Str(row.Email)))
	return strings.ToLower(f.email(row.ID)) != original
}

func affected(issue *models.Issue, id int64) bool {
	for _, row := range issue.AffectedRows {
		if row.ID == id {
			return true
		}
	}
	return false
}

// Mutation is one staging row update.
type Mutation struct {
	StagingID int64
	Update    models.StagingUpdate
}

// Plan returns the staging updates for a valid form, in the order they are sent.
// For duplicates the kept row goes first, then the discarded rows in list order.
func Plan(issue *models.Issue, f Form) []Mutation {
	ready := models.Ptr(models.StagingReady)
	var out []Mutation

	switch issue.Type {
	case models.IssueMissingRequiredField:
		for _, row := range issue.AffectedRows {
			out = append(out, Mutation{StagingID: row.ID, Update: models.StagingUpdate{
				Email:     models.NullIfEmpty(f.field(row.ID, models.FieldEmail)),
				FirstName: models.NullIfEmpty(f.field(row.ID, models.FieldFirstName)),
				LastName:  models.NullIfEmpty(f.field(row.ID, models.FieldLastName)),
				Company:   models.NullIfEmpty(f.field(row.ID, models.FieldCompany)),
				Status:    ready,
			}})
		}

	case models.IssueInvalidEmail:
		for _, row := range issue.AffectedRows {
			email := f.email(row.ID)
			if email == "" {
				continue
			}
			out = append(out, Mutation{StagingID: row.ID, Update: models.StagingUpdate{
				Email:  models.Ptr(email),
				Status: ready,
			}})
		}

	case models.IssueDuplicateEmail:
		out = append(out, Mutation{StagingID: f.Keep, Update: models.StagingUpdate{Status: ready}})
		for _, row := range issue.AffectedRows {
			if row.ID == f.Keep {
				continue
			}
			out = append(out, Mutation{StagingID: row.ID, Update: models.StagingUpdate{
				Status: models.Ptr(models.StagingDiscard),
			}})
		}

	case models.IssueExistingEmail:
		if len(issue.AffectedRows) == 0 {
			return nil
		}
		row := issue.AffectedRows[0]
		out = append(out, Mutation{StagingID: row.ID, Update: models.StagingUpdate{
			Email:  models.Ptr(f.email(row.ID)),
			Status: ready,
		}})
	}
	return out
}

// Comment describes the resolution for the audit trail.
func Comment(issue *models.Issue, f Form) string {
	switch issue.Type {
	case models.IssueMissingRequiredField:
		var filled []string
		for _, row := range issue.AffectedRows {
			for _, field := range row.Missing() {
				if v := f.field(row.ID, field); v != "" {
					filled = append(filled, field+": "+v)
				}
			}
		}
		return fmt.Sprintf("Filled missing required fields: %s. All affected staging rows set to READY.", strings.Join(filled, ", "))

	case models.IssueInvalidEmail:
		var changes []string
		for _, row := range issue.AffectedRows {
			if email := f.email(row.ID); email != "" {
				changes = append(changes, orNA(models.Str(row.Email))+" → "+email)
			}
		}
		return fmt.Sprintf("Corrected invalid email addresses: %s. All affected staging rows set to READY.", strings.Join(changes, "; "))

	case models.IssueDuplicateEmail:
		kept := "N/A"
		for _, row := range issue.AffectedRows {
			if row.ID == f.Keep {
				kept = orNA(models.Str(row.Email))
			}
		}
		return fmt.Sprintf("Selected staging ID %d (email: %s) to keep. Discarded %d duplicate row(s). Selected row set to READY, others to DISCARD.",
			f.Keep, kept, len(issue.AffectedRows)-1)

	case models.IssueExistingEmail:
		var oldEmail, newEmail string
		if len(issue.AffectedRows) > 0 {
			row := issue.AffectedRows[0]
			oldEmail = models.Str(row.Email)
			newEmail = f.email(row.ID)
		}
		return fmt.Sprintf("Updated email address from %s to %s to avoid conflict with existing contact. Staging row set to READY.",
			orNA(oldEmail), orNA(newEmail))

	default:
		return "Issue resolved manually."
	}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
