package backend

import (
	"fmt"
	"net/http"
)

// Operation names one backend call. Every operation owns a message table.
type Operation string

const (
	OpListJobs       Operation = "list_jobs"
	OpUploadCSV      Operation = "upload_csv"
	OpCancelJob      Operation = "cancel_job"
	OpReprocessJob   Operation = "reprocess_job"
	OpListIssues     Operation = "list_issues"
	OpListJobIssues  Operation = "list_job_issues"
	OpGetIssue       Operation = "get_issue"
	OpUpdateIssue    Operation = "update_issue"
	OpUpdateStaging  Operation = "update_staging"
	OpContactByEmail Operation = "contact_by_email"
	OpListContacts   Operation = "list_contacts"
)

// Operations lists every backend call.
var Operations = []Operation{
	OpListJobs, OpUploadCSV, OpCancelJob, OpReprocessJob,
	OpListIssues, OpListJobIssues, OpGetIssue, OpUpdateIssue,
	OpUpdateStaging, OpContactByEmail, OpListContacts,
}

const (
	authFailedMessage  = "Authentication failed. Please log in again."
	serverErrorMessage = "Server error. Please try again later or contact support."
	unexpectedMessage  = "An unexpected error occurred. Please try again."
	tooLargeMessage    = "File is too large. Maximum size is 5MB."
	unsupportedMessage = "Invalid file type. Please upload a CSV file."

	defaultForbidden = "You don't have permission to access this resource. Please contact an administrator."
	defaultNotFound  = "Resource not found. Please contact support."
)

// messageTable holds the operation-specific parts of the status mapping.
// Empty fields fall back to the shared defaults.
type messageTable struct {
	action    string
	forbidden string
	notFound  string
	conflict  string
}

var messageTables = map[Operation]messageTable{
	OpListJobs: {
		action: "fetch jobs",
	},
	OpUploadCSV: {
		action:    "upload file",
		forbidden: "You don't have permission to upload files. Please contact an administrator.",
		notFound:  "Upload endpoint not found. Please contact support.",
		conflict:  "This file has already been uploaded.",
	},
	OpCancelJob: {
		action:    "cancel job",
		forbidden: "You don't have permission to cancel jobs. Please contact an administrator.",
		notFound:  "Job not found. It may have already been canceled.",
	},
	OpReprocessJob: {
		action:    "reprocess job",
		forbidden: "You don't have permission to reprocess jobs. Please contact an administrator.",
		notFound:  "Job not found. Please contact support.",
	},
	OpListIssues: {
		action: "fetch issues",
	},
	OpListJobIssues: {
		action:   "fetch issues",
		notFound: "Job not found. Please contact support.",
	},
	OpGetIssue: {
		action:   "fetch issue",
		notFound: "Issue not found. Please contact support.",
	},
	OpUpdateIssue: {
		action:    "update issue",
		forbidden: "You don't have permission to update issues. You need to be in the 'editor' group.",
		notFound:  "Issue not found. Please contact support.",
	},
	OpUpdateStaging: {
		action:    "update staging record",
		forbidden: "You don't have permission to update staging records. You need to be in the 'editor' group.",
		notFound:  "Staging record not found. Please contact support.",
	},
	OpContactByEmail: {
		action:   "fetch contact",
		notFound: "Contact not found.",
	},
	OpListContacts: {
		action:   "fetch contacts",
		notFound: "Contact not found.",
	},
}

func (op Operation) table() messageTable {
	t, ok := messageTables[op]
	if !ok {
		t.action = "complete request"
	}
	return t
}

// message maps a failed status to operator-facing text. detail is the
// reason the backend gave, possibly empty.
func (op Operation) message(status int, detail string) string {
	t := op.table()
	if status >= 500 {
		return serverErrorMessage
	}
	switch status {
	case http.StatusBadRequest:
		return "Invalid request: " + orDefault(detail, op.fallback(status))
	case http.StatusUnauthorized:
		return authFailedMessage
	case http.StatusForbidden:
		return orDefault(t.forbidden, defaultForbidden)
	case http.StatusNotFound:
		return orDefault(t.notFound, defaultNotFound)
	case http.StatusConflict:
		return orDefault(detail, orDefault(t.conflict, unexpectedMessage))
	case http.StatusRequestEntityTooLarge:
		return tooLargeMessage
	case http.StatusUnsupportedMediaType:
		return unsupportedMessage
	default:
		return orDefault(detail, unexpectedMessage)
	}
}

// fallback is the detail used when the backend gave none.
func (op Operation) fallback(status int) string {
	return fmt.Sprintf("Failed to %s: %d %s", op.table().action, status, http.StatusText(status))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
