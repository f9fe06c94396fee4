package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/foxzi/ingestdesk/internal/web/models"
	"github.com/stretchr/testify/assert"
)

type fakeReprocessor struct {
	calls []int64
	errs  map[int64]error
}

func (f *fakeReprocessor) ReprocessJob(_ context.Context, id int64) error {
	f.calls = append(f.calls, id)
	return f.errs[id]
}

func TestReadyForReprocess(t *testing.T) {
	jobs := &models.JobList{Jobs: []models.Job{
		{ID: 1, Status: models.JobNeedsReview},
		{ID: 2, Status: models.JobNeedsReview},
		{ID: 3, Status: models.JobNeedsReview},
		{ID: 4, Status: models.JobCompleted},
	}}
	issues := &models.IssueList{Issues: []models.Issue{
		{ID: 10, JobID: 1, Resolved: true},
		{ID: 11, JobID: 1, Resolved: true},
		{ID: 12, JobID: 2, Resolved: true},
		{ID: 13, JobID: 2, Resolved: false},
		{ID: 14, JobID: 4, Resolved: true},
	}}

	ready := ReadyForReprocess(jobs, issues)
	if assert.Len(t, ready, 1) {
		assert.Equal(t, int64(1), ready[0].ID)
	}
	assert.Nil(t, ReadyForReprocess(nil, issues))
}

func TestReprocessAll(t *testing.T) {
	authErr := &Error{Kind: KindAuth, Message: authFailedMessage}
	otherErr := &Error{Kind: KindNotFound, Message: "Job not found. Please contact support."}

	tests := []struct {
		name      string
		errs      map[int64]error
		wantCalls []int64
		aborted   bool
		skipped   []int64
		succeeded int
	}{
		{"all succeed", nil, []int64{1, 2, 3}, false, nil, 3},
		{"failure continues", map[int64]error{2: otherErr}, []int64{1, 2, 3}, false, nil, 2},
		{"auth aborts", map[int64]error{2: authErr}, []int64{1, 2}, true, []int64{3}, 1},
		{"plain error continues", map[int64]error{1: errors.New("boom")}, []int64{1, 2, 3}, false, nil, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rp := &fakeReprocessor{errs: tt.errs}
			report := ReprocessAll(context.Background(), rp, []int64{1, 2, 3})

			assert.Equal(t, tt.wantCalls, rp.calls)
			assert.Equal(t, tt.aborted, report.Aborted)
			assert.Equal(t, tt.skipped, report.Skipped)
			assert.Equal(t, tt.succeeded, report.Succeeded())
			assert.Equal(t, len(tt.wantCalls)-tt.succeeded, report.Failed())
		})
	}
}

func TestReprocessAll_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rp := &fakeReprocessor{}
	report := ReprocessAll(ctx, rp, []int64{1, 2})
	assert.Empty(t, rp.calls)
	assert.True(t, report.Aborted)
	assert.Equal(t, []int64{1, 2}, report.Skipped)
}

func TestValidateUpload(t *testing.T) {
	limits := DefaultUploadLimits()

	tests := []struct {
		name  string
		file  string
		size  int64
		title string
	}{
		{"ok", "contacts.csv", 1024, ""},
		{"upper case extension", "CONTACTS.CSV", 1024, ""},
		{"exactly 5MB", "a.csv", 5 << 20, ""},
		{"6MB", "a.csv", 6 << 20, "File too large"},
		{"wrong extension", "a.xlsx", 10, "Invalid file type"},
		{"no extension", "csv", 10, "Invalid file type"},
		{"empty", "a.csv", 0, "Empty file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUpload(tt.file, tt.size, limits)
			if tt.title == "" {
				assert.NoError(t, err)
				return
			}
			var ue *UploadError
			if assert.ErrorAs(t, err, &ue) {
				assert.Equal(t, tt.title, ue.Title)
			}
		})
	}

	err := ValidateUpload("a.csv", 6<<20, limits)
	assert.EqualError(t, err, "File too large: File size must be less than 5MB")
}
