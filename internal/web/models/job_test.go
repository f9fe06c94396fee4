package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatus_Predicates(t *testing.T) {
	tests := []struct {
		status     JobStatus
		active     bool
		cancelable bool
		label      string
	}{
		{JobPending, true, true, "Pending"},
		{JobProcessing, true, false, "Processing"},
		{JobNeedsReview, false, true, "Needs Review"},
		{JobCompleted, false, false, "Completed"},
		{JobFailed, false, true, "Failed"},
		{JobStatus("ARCHIVED"), false, false, "ARCHIVED"},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.active, tt.status.Active())
			assert.Equal(t, tt.cancelable, tt.status.Cancelable())
			assert.Equal(t, tt.label, tt.status.Label())
		})
	}
}

func TestJob_Progress(t *testing.T) {
	tests := []struct {
		processed, total, want int
	}{
		{0, 0, 0},
		{5, 10, 50},
		{1, 3, 33},
		{2, 3, 67},
		{10, 10, 100},
	}

	for _, tt := range tests {
		j := Job{ProcessedRows: tt.processed, TotalRows: tt.total}
		assert.Equal(t, tt.want, j.Progress(), "%d/%d", tt.processed, tt.total)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{42 * time.Second, "42s"},
		{3*time.Minute + 20*time.Second, "3m 20s"},
		{time.Hour + 5*time.Minute + 59*time.Second, "1h 5m"},
		{1500 * time.Millisecond, "1s"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.d))
	}
}

func TestJob_Duration(t *testing.T) {
	start := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	now := start.Add(90 * time.Second)

	assert.Equal(t, "-", Job{}.Duration(now))
	assert.Equal(t, "1m 30s", Job{ProcessStart: Timestamp{start}}.Duration(now), "running jobs measure up to now")
	assert.Equal(t, "10s", Job{ProcessStart: Timestamp{start}, ProcessEnd: Timestamp{start.Add(10 * time.Second)}}.Duration(now))
}

func TestJobList_Decode(t *testing.T) {
	body := `{
		"jobs": [{
			"job_id": 12,
			"job_created_at": "2024-03-10T08:00:00.123456",
			"job_user_id": "u-1",
			"job_original_filename": "leads.csv",
			"job_s3_object_key": "uploads/leads.csv",
			"job_status": "PROCESSING",
			"job_total_rows": 10,
			"job_processed_rows": 4,
			"job_issue_count": 0,
			"job_process_start": "2024-03-10T08:00:05Z",
			"job_process_end": null
		}],
		"total": 1
	}`

	var list JobList
	require.NoError(t, json.Unmarshal([]byte(body), &list))
	require.Len(t, list.Jobs, 1)

	j := list.Jobs[0]
	assert.Equal(t, int64(12), j.ID)
	assert.Equal(t, JobProcessing, j.Status)
	assert.Equal(t, time.Date(2024, 3, 10, 8, 0, 0, 123456000, time.UTC), j.CreatedAt.Time)
	assert.True(t, j.ProcessEnd.IsZero())
	assert.True(t, list.AnyActive())

	_, ok := list.Find(12)
	assert.True(t, ok)
	_, ok = list.Find(13)
	assert.False(t, ok)
}

func TestJob_Row(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	created := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	j := Job{
		ID:            7,
		CreatedAt:     Timestamp{created},
		Status:        JobCompleted,
		TotalRows:     4,
		ProcessedRows: 4,
	}

	row := j.Row(loc, created)
	assert.Equal(t, int64(7), row["job_id"])
	assert.Equal(t, "10/03/2024 09:00:00", row["job_created_at"])
	assert.Nil(t, row["job_process_start"])
	assert.Equal(t, "COMPLETED", row["job_status"])
	assert.Equal(t, 100, row["progress"])
	assert.Equal(t, "-", row["duration"])
}

func TestTimestamp_RoundTrip(t *testing.T) {
	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`"2024-03-10 08:00:00"`), &ts))
	assert.Equal(t, time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC), ts.Time)

	out, err := json.Marshal(Timestamp{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))

	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
	assert.Equal(t, "-", Timestamp{}.Display(nil))
}
