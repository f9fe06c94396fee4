package backend

import (
	"context"

	"github.com/foxzi/ingestdesk/internal/web/models"
)

// ReadyForReprocess returns the NEEDS_REVIEW jobs whose issues in the given
// snapshot are all resolved. Jobs without any issue in the snapshot are left
// out. The two lists are fetched independently, so the answer is best effort.
func ReadyForReprocess(jobs *models.JobList, issues *models.IssueList) []models.Job {
	if jobs == nil || issues == nil {
		return nil
	}

	type tally struct{ total, resolved int }
	byJob := make(map[int64]*tally)
	for _, i := range issues.Issues {
		t := byJob[i.JobID]
		if t == nil {
			t = &tally{}
			byJob[i.JobID] = t
		}
		t.total++
		if i.Resolved {
			t.resolved++
		}
	}

	var ready []models.Job
	for _, j := range jobs.Jobs {
		if j.Status != models.JobNeedsReview {
			continue
		}
		t := byJob[j.ID]
		if t == nil || t.total == 0 || t.resolved != t.total {
			continue
		}
		ready = append(ready, j)
	}
	return ready
}

// Reprocessor reprocesses one job.
type Reprocessor interface {
	ReprocessJob(ctx context.Context, jobID int64) error
}

// ReprocessOutcome is the result for one job of a batch.
type ReprocessOutcome struct {
	JobID int64
	Err   error
}

// ReprocessReport summarises a batch.
type ReprocessReport struct {
	Outcomes []ReprocessOutcome
	// Aborted is set when an authentication failure stopped the batch.
	Aborted bool
	// Skipped lists jobs never attempted because the batch was aborted.
	Skipped []int64
}

// Succeeded counts jobs reprocessed without error.
func (r ReprocessReport) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err == nil {
			n++
		}
	}
	return n
}

// Failed counts attempted jobs that returned an error.
func (r ReprocessReport) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

// ReprocessAll reprocesses jobs one at a time, waiting for each call before
// starting the next. An authentication failure aborts the rest of the batch.
func ReprocessAll(ctx context.Context, rp Reprocessor, jobIDs []int64) ReprocessReport {
	var report ReprocessReport
	for i, id := range jobIDs {
		if err := ctx.Err(); err != nil {
			report.Aborted = true
			report.Skipped = append(report.Skipped, jobIDs[i:]...)
			return report
		}
		err := rp.ReprocessJob(ctx, id)
		report.Outcomes = append(report.Outcomes, ReprocessOutcome{JobID: id, Err: err})
		if IsAuth(err) {
			report.Aborted = true
			report.Skipped = append(report.Skipped, jobIDs[i+1:]...)
			return report
		}
	}
	return report
}
