package models

import (
	"fmt"
	"math"
	"time"

	"github.com/foxzi/ingestdesk/internal/datatable"
)

// JobStatus is the backend processing state of an uploaded file.
type JobStatus string

const (
	JobPending     JobStatus = "PENDING"
	JobProcessing  JobStatus = "PROCESSING"
	JobNeedsReview JobStatus = "NEEDS_REVIEW"
	JobCompleted   JobStatus = "COMPLETED"
	JobFailed      JobStatus = "FAILED"
)

// JobStatuses in lifecycle order.
var JobStatuses = []JobStatus{JobPending, JobProcessing, JobNeedsReview, JobCompleted, JobFailed}

// Active reports whether the backend is still working on the job.
func (s JobStatus) Active() bool {
	return s == JobPending || s == JobProcessing
}

// Cancelable reports whether the job may be canceled from the console.
func (s JobStatus) Cancelable() bool {
	switch s {
	case JobPending, JobNeedsReview, JobFailed:
		return true
	}
	return false
}

func (s JobStatus) Label() string {
	switch s {
	case JobPending:
		return "Pending"
	case JobProcessing:
		return "Processing"
	case JobNeedsReview:
		return "Needs Review"
	case JobCompleted:
		return "Completed"
	case JobFailed:
		return "Failed"
	default:
		return string(s)
	}
}

// Job is one uploaded CSV file
type Job struct {
	ID               int64     `json:"job_id"`
	CreatedAt        Timestamp `json:"job_created_at"`
	UserID           string    `json:"job_user_id"`
	OriginalFilename string    `json:"job_original_filename"`
	S3ObjectKey      string    `json:"job_s3_object_key"`
	Status           JobStatus `json:"job_status"`
	TotalRows        int       `json:"job_total_rows"`
	ProcessedRows    int       `json:"job_processed_rows"`
	IssueCount       int       `json:"job_issue_count"`
	ProcessStart     Timestamp `json:"job_process_start"`
	ProcessEnd       Timestamp `json:"job_process_end"`
}

// Progress is the processed share of rows as a whole percentage.
func (j Job) Progress() int {
	if j.TotalRows <= 0 {
		return 0
	}
	return int(math.Round(float64(j.ProcessedRows) / float64(j.TotalRows) * 100))
}

// Duration renders how long processing took, or has taken so far.
func (j Job) Duration(now time.Time) string {
	if j.ProcessStart.IsZero() {
		return "-"
	}
	end := now
	if !j.ProcessEnd.IsZero() {
		end = j.ProcessEnd.Time
	}
	return FormatDuration(end.Sub(j.ProcessStart.Time))
}

// FormatDuration renders d as "1h 5m", "3m 20s" or "42s".
func FormatDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	mins := secs / 60
	hours := mins / 60
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins%60)
	case mins > 0:
		return fmt.Sprintf("%dm %ds", mins, secs%60)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

// Row projects the job onto table fields.
func (j Job) Row(loc *time.Location, now time.Time) datatable.Row {
	return datatable.Row{
		"job_id":                j.ID,
		"job_created_at":        j.CreatedAt.Cell(loc),
		"job_user_id":           j.UserID,
		"job_original_filename": j.OriginalFilename,
		"job_s3_object_key":     j.S3ObjectKey,
		"job_status":            string(j.Status),
		"job_total_rows":        j.TotalRows,
		"job_processed_rows":    j.ProcessedRows,
		"job_issue_count":       j.IssueCount,
		"job_process_start":     j.ProcessStart.Cell(loc),
		"job_process_end":       j.ProcessEnd.Cell(loc),
		"duration":              j.Duration(now),
		"progress":              j.Progress(),
	}
}

// JobList is the GET /jobs envelope.
type JobList struct {
	Jobs  []Job `json:"jobs"`
	Total int   `json:"total"`
}

// AnyActive reports whether any job is pending or processing.
func (l *JobList) AnyActive() bool {
	if l == nil {
		return false
	}
	for _, j := range l.Jobs {
		if j.Status.Active() {
			return true
		}
	}
	return false
}

// Rows projects every job.
func (l *JobList) Rows(loc *time.Location, now time.Time) []datatable.Row {
	if l == nil {
		return nil
	}
	rows := make([]datatable.Row, len(l.Jobs))
	for i, j := range l.Jobs {
		rows[i] = j.Row(loc, now)
	}
	return rows
}

// Find returns the job with the given id.
func (l *JobList) Find(id int64) (Job, bool) {
	if l == nil {
		return Job{}, false
	}
	for _, j := range l.Jobs {
		if j.ID == id {
			return j, true
		}
	}
	return Job{}, false
}

// UploadResult is the POST /jobs/upload response.
type UploadResult struct {
	JobID     int64  `json:"job_id"`
	Message   string `json:"message"`
	Filename  string `json:"filename"`
	TotalRows int    `json:"total_rows"`
}
