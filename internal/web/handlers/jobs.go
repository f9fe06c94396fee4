package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/foxzi/ingestdesk/internal/web/audit"
	"github.com/foxzi/ingestdesk/internal/web/backend"
	"github.com/foxzi/ingestdesk/internal/web/models"
	"golang.org/x/sync/errgroup"
)

// multipartOverhead is the allowance for form boundaries and headers on
// top of the file size limit.
const multipartOverhead = 64 << 10

func (h *Handlers) uploadLimits() backend.UploadLimits {
	return backend.UploadLimits{MaxBytes: h.cfg.Upload.MaxBytes, Extension: h.cfg.Upload.Extension}
}

// Upload sends a CSV file to the ingestion API.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	limits := h.uploadLimits()
	r.Body = http.MaxBytesReader(w, r.Body, limits.MaxBytes+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.uploadRejected(w, &backend.UploadError{Title: "File too large", Message: fmt.Sprintf("File size must be less than %s", formatLimit(limits.MaxBytes))})
			return
		}
		h.uploadRejected(w, &backend.UploadError{Title: "No file selected", Message: "Please select a CSV file to upload"})
		return
	}
	defer file.Close()

	if err := backend.ValidateUpload(header.Filename, header.Size, limits); err != nil {
		var ue *backend.UploadError
		if errors.As(err, &ue) {
			h.uploadRejected(w, ue)
			return
		}
		h.uploadRejected(w, &backend.UploadError{Title: "Upload failed", Message: err.Error()})
		return
	}

	result, err := h.backend.UploadCSV(r.Context(), header.Filename, file)
	entry := &audit.Entry{Action: audit.ActionUpload, Actor: actor(r), Detail: header.Filename}
	if err != nil {
		entry.Outcome = audit.OutcomeFailed
		entry.Detail = header.Filename + ": " + backend.Message(err)
		h.record(r.Context(), entry)
		h.observe("upload", "failed")
		h.backendFailure(w, "Upload failed", err)
		return
	}

	entry.JobID = result.JobID
	h.record(r.Context(), entry)
	h.observe("upload", "ok")
	h.store.RefreshSession(sessionID(r), KindJobs)

	msg := result.Message
	if msg == "" {
		msg = fmt.Sprintf("%s uploaded as job %d", header.Filename, result.JobID)
	}
	h.renderPartial(w, http.StatusOK, "toasts", []toast{{Level: "info", Title: "File uploaded successfully", Description: msg}})
}

func (h *Handlers) uploadRejected(w http.ResponseWriter, ue *backend.UploadError) {
	h.observe("upload", "rejected")
	h.renderPartial(w, http.StatusOK, "toasts", []toast{{Level: "error", Title: ue.Title, Description: ue.Message}})
}

func formatLimit(n int64) string {
	return fmt.Sprintf("%dMB", n>>20)
}

// CancelJob cancels a job. The jobs view, if named, is released from its
// hold and refreshed.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathID(r, "id")
	if err != nil {
		h.error(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	var v *View
	if id := r.FormValue("view"); id != "" {
		if found, ok := h.store.Get(id); ok && found.SessionID == sessionID(r) {
			v = found
		}
	}
	if v != nil {
		defer v.poll.Release()
	}

	if v != nil {
		if job, ok := v.Jobs().Find(jobID); ok && !job.Status.Cancelable() {
			h.renderPartial(w, http.StatusOK, "toasts", []toast{{
				Level: "error", Title: "Cannot cancel job",
				Description: fmt.Sprintf("Jobs in status %s cannot be canceled.", job.Status.Label()),
			}})
			return
		}
	}

	err = h.backend.CancelJob(r.Context(), jobID)
	entry := &audit.Entry{Action: audit.ActionCancel, Actor: actor(r), JobID: jobID}
	if err != nil {
		entry.Outcome = audit.OutcomeFailed
		entry.Detail = backend.Message(err)
		h.record(r.Context(), entry)
		h.observe("cancel", "failed")
		h.backendFailure(w, "Failed to cancel job", err)
		return
	}
	h.record(r.Context(), entry)
	h.observe("cancel", "ok")
	h.store.RefreshSession(sessionID(r), KindJobs)

	h.renderPartial(w, http.StatusOK, "toasts", []toast{{
		Level: "info", Title: "Job canceled", Description: fmt.Sprintf("Job %d was canceled.", jobID),
	}})
}

// reprocessResult summarises a reprocess-all request.
type reprocessResult struct {
	Ready     int
	Succeeded []int64
	Failed    []reprocessFailure
	Skipped   []int64
	Aborted   bool
}

type reprocessFailure struct {
	JobID   int64
	Message string
}

// readyJobs fetches jobs and issues together and returns the jobs that can
// be sent back for processing.
func (h *Handlers) readyJobs(ctx context.Context) ([]models.Job, error) {
	var jobs *models.JobList
	var issues *models.IssueList
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		jobs, err = h.backend.ListJobs(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		issues, err = h.backend.ListIssues(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return backend.ReadyForReprocess(jobs, issues), nil
}

// ReprocessAll sends every job whose issues are all resolved back for
// processing.
func (h *Handlers) ReprocessAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ready, err := h.readyJobs(ctx)
	if err != nil {
		h.backendFailure(w, "Failed to load jobs", err)
		return
	}
	if len(ready) == 0 {
		h.renderPartial(w, http.StatusOK, "toasts", []toast{{
			Level: "info", Title: "Nothing to reprocess",
			Description: "No job under review has all of its issues resolved.",
		}})
		return
	}

	ids := make([]int64, len(ready))
	for i, j := range ready {
		ids[i] = j.ID
	}
	report := backend.ReprocessAll(ctx, h.backend, ids)

	res := reprocessResult{Ready: len(ids), Skipped: report.Skipped, Aborted: report.Aborted}
	who := actor(r)
	for _, o := range report.Outcomes {
		entry := &audit.Entry{Action: audit.ActionReprocess, Actor: who, JobID: o.JobID}
		if o.Err != nil {
			entry.Outcome = audit.OutcomeFailed
			entry.Detail = backend.Message(o.Err)
			res.Failed = append(res.Failed, reprocessFailure{JobID: o.JobID, Message: backend.Message(o.Err)})
			h.observe("reprocess", "failed")
		} else {
			res.Succeeded = append(res.Succeeded, o.JobID)
			h.observe("reprocess", "ok")
		}
		h.record(ctx, entry)
	}
	h.logger.Info("reprocess batch finished",
		"ready", len(ids), "succeeded", len(res.Succeeded), "failed", len(res.Failed), "aborted", report.Aborted)

	h.store.RefreshSession(sessionID(r), KindJobs, KindIssues, KindJobIssues)
	if n := len(report.Outcomes); report.Aborted && n > 0 && backend.IsAuth(report.Outcomes[n-1].Err) {
		w.Header().Set("HX-Redirect", "/auth/login")
	}
	h.renderPartial(w, http.StatusOK, "toasts", reprocessToasts(res))
}

func reprocessToasts(res reprocessResult) []toast {
	var out []toast
	if n := len(res.Succeeded); n > 0 {
		out = append(out, toast{Level: "info", Title: "Reprocessing started",
			Description: fmt.Sprintf("%d job(s) sent for reprocessing: %s", n, joinIDs(res.Succeeded))})
	}
	for _, f := range res.Failed {
		out = append(out, toast{Level: "error", Title: fmt.Sprintf("Failed to reprocess job %d", f.JobID), Description: f.Message})
	}
	if len(res.Skipped) > 0 {
		out = append(out, toast{Level: "error", Title: "Reprocessing stopped",
			Description: fmt.Sprintf("Not attempted: %s", joinIDs(res.Skipped))})
	}
	return out
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ", ")
}

// record journals e; a journal failure is logged and does not fail the request.
func (h *Handlers) record(ctx context.Context, e *audit.Entry) {
	if h.journal == nil {
		return
	}
	if err := h.journal.Record(context.WithoutCancel(ctx), e); err != nil {
		h.logger.Error("failed to journal action", "action", e.Action, "error", err)
	}
}

func (h *Handlers) observe(action, outcome string) {
	if h.metrics == nil {
		return
	}
	switch action {
	case "upload":
		h.metrics.ObserveUpload(outcome)
	case "cancel":
		h.metrics.ObserveCancel(outcome)
	case "reprocess":
		h.metrics.ObserveReprocess(outcome)
	}
}
