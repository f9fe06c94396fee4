package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/foxzi/ingestdesk/internal/web/models"
	"github.com/tidwall/gjson"
)

// ListJobs lists every ingestion job.
func (c *Client) ListJobs(ctx context.Context) (*models.JobList, error) {
	data, err := c.do(ctx, OpListJobs, http.MethodGet, "/jobs", "", nil)
	if err != nil {
		return nil, err
	}
	var resp models.JobList
	if err := decodeList(OpListJobs, data, "jobs", &resp); err != nil {
		return nil, err
	}
	if !gjson.GetBytes(data, "total").Exists() {
		resp.Total = len(resp.Jobs)
	}
	return &resp, nil
}

// UploadCSV sends a CSV file as the multipart "file" field.
func (c *Client) UploadCSV(ctx context.Context, filename string, r io.Reader) (*models.UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("copy upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	data, err := c.do(ctx, OpUploadCSV, http.MethodPost, "/jobs/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	var resp models.UploadResult
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, invalidResponse(OpUploadCSV, err)
	}
	return &resp, nil
}

// CancelJob cancels a job that has not completed.
func (c *Client) CancelJob(ctx context.Context, jobID int64) error {
	return c.request(ctx, OpCancelJob, http.MethodDelete, fmt.Sprintf("/jobs/%d", jobID), nil, nil)
}

// ReprocessJob asks the backend to re-run a job after its issues were resolved.
func (c *Client) ReprocessJob(ctx context.Context, jobID int64) error {
	return c.request(ctx, OpReprocessJob, http.MethodPost, fmt.Sprintf("/jobs/%d/reprocess", jobID), nil, nil)
}

// ListIssues lists issues across all jobs.
func (c *Client) ListIssues(ctx context.Context) (*models.IssueList, error) {
	return c.listIssues(ctx, OpListIssues, "/issues")
}

// ListJobIssues lists the issues of one job.
func (c *Client) ListJobIssues(ctx context.Context, jobID int64) (*models.IssueList, error) {
	return c.listIssues(ctx, OpListJobIssues, fmt.Sprintf("/issues/job/%d", jobID))
}

func (c *Client) listIssues(ctx context.Context, op Operation, path string) (*models.IssueList, error) {
	data, err := c.do(ctx, op, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}
	var resp models.IssueList
	if err := decodeList(op, data, "issues", &resp); err != nil {
		return nil, err
	}
	if !gjson.GetBytes(data, "total").Exists() {
		resp.Total = len(resp.Issues)
	}
	if !gjson.GetBytes(data, "resolved_count").Exists() && !gjson.GetBytes(data, "unresolved_count").Exists() {
		for _, i := range resp.Issues {
			if i.Resolved {
				resp.ResolvedCount++
			} else {
				resp.UnresolvedCount++
			}
		}
	}
	return &resp, nil
}

// GetIssue returns one issue with its affected staging rows.
func (c *Client) GetIssue(ctx context.Context, issueID int64) (*models.Issue, error) {
	var resp models.Issue
	if err := c.request(ctx, OpGetIssue, http.MethodGet, fmt.Sprintf("/issues/%d", issueID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateIssue changes the resolution fields of an issue.
func (c *Client) UpdateIssue(ctx context.Context, issueID int64, upd models.IssueUpdate) (*models.Issue, error) {
	var resp models.Issue
	if err := c.request(ctx, OpUpdateIssue, http.MethodPut, fmt.Sprintf("/issues/%d", issueID), upd, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateStaging changes the given fields of one staging row.
func (c *Client) UpdateStaging(ctx context.Context, stagingID int64, upd models.StagingUpdate) (*models.StagingRow, error) {
	var resp models.StagingRow
	if err := c.request(ctx, OpUpdateStaging, http.MethodPut, fmt.Sprintf("/staging/%d", stagingID), upd, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ContactByEmail returns the committed contact with the given email, or nil
// when there is none. A 404 is not an error here.
func (c *Client) ContactByEmail(ctx context.Context, email string) (*models.Contact, error) {
	path := "/contacts?email=" + url.QueryEscape(email)
	data, err := c.do(ctx, OpContactByEmail, http.MethodGet, path, "", nil)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	var resp models.ContactList
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, invalidResponse(OpContactByEmail, err)
	}
	if len(resp.Contacts) == 0 {
		return nil, nil
	}
	return &resp.Contacts[0], nil
}

// ListContacts lists committed contacts.
func (c *Client) ListContacts(ctx context.Context) (*models.ContactList, error) {
	data, err := c.do(ctx, OpListContacts, http.MethodGet, "/contacts", "", nil)
	if err != nil {
		return nil, err
	}
	var resp models.ContactList
	if err := decodeList(OpListContacts, data, "contacts", &resp); err != nil {
		return nil, err
	}
	if !gjson.GetBytes(data, "total").Exists() {
		resp.Total = len(resp.Contacts)
	}
	return &resp, nil
}

// decodeList checks that field holds an array before decoding the envelope.
func decodeList(op Operation, data []byte, field string, v any) error {
	if !gjson.ValidBytes(data) {
		return invalidResponse(op, fmt.Errorf("malformed JSON body"))
	}
	if !gjson.GetBytes(data, field).IsArray() {
		return missingArray(op, field)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return invalidResponse(op, err)
	}
	return nil
}
