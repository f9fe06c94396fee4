package models

import (
	"time"

	"github.com/foxzi/ingestdesk/internal/datatable"
)

// IssueType is the kind of data-quality defect the backend detected.
type IssueType string

const (
	IssueDuplicateEmail       IssueType = "DUPLICATE_EMAIL"
	IssueInvalidEmail         IssueType = "INVALID_EMAIL"
	IssueExistingEmail        IssueType = "EXISTING_EMAIL"
	IssueMissingRequiredField IssueType = "MISSING_REQUIRED_FIELD"
)

var IssueTypes = []IssueType{IssueDuplicateEmail, IssueInvalidEmail, IssueExistingEmail, IssueMissingRequiredField}

func (t IssueType) Label() string {
	switch t {
	case IssueDuplicateEmail:
		return "Duplicate Email"
	case IssueInvalidEmail:
		return "Invalid Email"
	case IssueExistingEmail:
		return "Existing Email"
	case IssueMissingRequiredField:
		return "Missing Field"
	default:
		return string(t)
	}
}

// StagingStatus is the state of a parsed CSV row awaiting commit.
type StagingStatus string

const (
	StagingReady   StagingStatus = "READY"
	StagingSuccess StagingStatus = "SUCCESS"
	StagingDiscard StagingStatus = "DISCARD"
	StagingIssue   StagingStatus = "ISSUE"
)

// StagingRow is one parsed CSV row. Nullable fields are nil when absent.
type StagingRow struct {
	ID        int64          `json:"staging_id"`
	JobID     int64          `json:"staging_job_id,omitempty"`
	Email     *string        `json:"staging_email"`
	FirstName *string        `json:"staging_first_name"`
	LastName  *string        `json:"staging_last_name"`
	Company   *string        `json:"staging_company"`
	CreatedAt Timestamp      `json:"staging_created_at"`
	Status    *StagingStatus `json:"staging_status"`
}

// Field names of the editable staging columns.
const (
	FieldEmail     = "email"
	FieldFirstName = "first name"
	FieldLastName  = "last name"
	FieldCompany   = "company"
)

// StagingFields lists the editable fields in form order.
var StagingFields = []string{FieldEmail, FieldFirstName, FieldLastName, FieldCompany}

// Get returns the value of an editable field by name.
func (r StagingRow) Get(field string) *string {
	switch field {
	case FieldEmail:
		return r.Email
	case FieldFirstName:
		return r.FirstName
	case FieldLastName:
		return r.LastName
	case FieldCompany:
		return r.Company
	}
	return nil
}

// Missing lists the editable fields that are null or empty.
func (r StagingRow) Missing() []string {
	var out []string
	for _, f := range StagingFields {
		if Str(r.Get(f)) == "" {
			out = append(out, f)
		}
	}
	return out
}

// StagingUpdate is the PUT /staging/{id} body. Nil fields are left untouched.
type StagingUpdate struct {
	Email     *string        `json:"staging_email,omitempty"`
	FirstName *string        `json:"staging_first_name,omitempty"`
	LastName  *string        `json:"staging_last_name,omitempty"`
	Company   *string        `json:"staging_company,omitempty"`
	Status    *StagingStatus `json:"staging_status,omitempty"`
}

// Issue is a detected defect tied to one or more staging rows.
type Issue struct {
	ID                int64        `json:"issue_id"`
	JobID             int64        `json:"issues_job_id"`
	Type              IssueType    `json:"issue_type"`
	Resolved          bool         `json:"issue_resolved"`
	Description       *string      `json:"issue_description"`
	ResolvedAt        Timestamp    `json:"issue_resolved_at"`
	ResolvedBy        *string      `json:"issue_resolved_by"`
	ResolutionComment *string      `json:"issue_resolution_comment"`
	CreatedAt         Timestamp    `json:"issue_created_at"`
	AffectedRows      []StagingRow `json:"affected_rows"`
}

// ResolvedLabel is the status badge text.
func (i Issue) ResolvedLabel() string {
	if i.Resolved {
		return "Resolved"
	}
	return "Unresolved"
}

// Row projects the issue onto table fields.
func (i Issue) Row(loc *time.Location) datatable.Row {
	return datatable.Row{
		"issue_id":                 i.ID,
		"issues_job_id":            i.JobID,
		"issue_type":               string(i.Type),
		"issue_resolved":           i.Resolved,
		"issue_description":        cell(i.Description),
		"issue_resolved_at":        i.ResolvedAt.Cell(loc),
		"issue_resolved_by":        cell(i.ResolvedBy),
		"issue_resolution_comment": cell(i.ResolutionComment),
		"issue_created_at":         i.CreatedAt.Cell(loc),
		"affected_rows_count":      len(i.AffectedRows),
	}
}

// IssueUpdate is the PUT /issues/{id} body.
type IssueUpdate struct {
	Resolved          *bool   `json:"issue_resolved,omitempty"`
	Description       *string `json:"issue_description,omitempty"`
	ResolvedBy        *string `json:"issue_resolved_by,omitempty"`
	ResolutionComment *string `json:"issue_resolution_comment,omitempty"`
}

// IssueList is the GET /issues envelope.
type IssueList struct {
	Issues          []Issue `json:"issues"`
	Total           int     `json:"total"`
	ResolvedCount   int     `json:"resolved_count"`
	UnresolvedCount int     `json:"unresolved_count"`
}

// Rows projects every issue.
func (l *IssueList) Rows(loc *time.Location) []datatable.Row {
	if l == nil {
		return nil
	}
	rows := make([]datatable.Row, len(l.Issues))
	for i, issue := range l.Issues {
		rows[i] = issue.Row(loc)
	}
	return rows
}

// AnyUnresolved reports whether the backend counts unresolved issues.
func (l *IssueList) AnyUnresolved() bool {
	return l != nil && l.UnresolvedCount > 0
}

// ForJob returns the issues belonging to one job.
func (l *IssueList) ForJob(jobID int64) []Issue {
	if l == nil {
		return nil
	}
	var out []Issue
	for _, i := range l.Issues {
		if i.JobID == jobID {
			out = append(out, i)
		}
	}
	return out
}
