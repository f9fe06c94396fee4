package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/foxzi/ingestdesk/internal/web/audit"
	"github.com/foxzi/ingestdesk/internal/web/auth"
	"github.com/foxzi/ingestdesk/internal/web/backend"
	"github.com/foxzi/ingestdesk/internal/web/models"
	"github.com/foxzi/ingestdesk/internal/web/resolve"
)

// Form keys of the resolution panel.
const (
	fieldPrefix = "field:"
	emailPrefix = "email:"
	keepKey     = "keep"
)

func resolverKey(sid string, issueID int64) string {
	return sid + ":" + strconv.FormatInt(issueID, 10)
}

// resolver returns the open panel of the session for the issue, creating
// and loading a new one when none is open or the previous one has
// finished.
func (h *Handlers) resolver(r *http.Request, issueID int64) (*resolve.Resolver, bool) {
	key := resolverKey(sessionID(r), issueID)
	if item, ok := h.resolvers.Get(key); ok {
		res := item.(*resolve.Resolver)
		if !res.State().Terminal() {
			h.resolvers.SetDefault(key, res)
			return res, false
		}
	}

	sid, who := sessionID(r), actor(r)
	res := resolve.New(issueID, h.backend, auth.Identity{}, h.logger,
		resolve.OnResolved(func(issue *models.Issue) {
			h.store.RefreshSession(sid, KindIssues, KindJobIssues, KindJobs)
			h.logger.Info("issue resolved", "issue_id", issue.ID, "by", who)
		}))
	h.resolvers.SetDefault(key, res)
	return res, true
}

// ResolvePanel opens the resolution panel of an issue.
func (h *Handlers) ResolvePanel(w http.ResponseWriter, r *http.Request) {
	issueID, err := pathID(r, "id")
	if err != nil {
		h.error(w, http.StatusBadRequest, "Invalid issue ID")
		return
	}

	res, fresh := h.resolver(r, issueID)
	var toasts []toast
	if fresh {
		if err := res.Load(r.Context()); err != nil {
			h.resolvers.Delete(resolverKey(sessionID(r), issueID))
			if backend.IsAuth(err) {
				w.Header().Set("HX-Redirect", "/auth/login")
			}
			toasts = append(toasts, errorToast(resolve.TitleLoadFailed, err))
		}
	}
	h.renderPartial(w, http.StatusOK, "resolve", newResolvePanel(res, toasts))
}

// ResolveUpdate applies the panel form and, for action=submit, resolves
// the issue.
func (h *Handlers) ResolveUpdate(w http.ResponseWriter, r *http.Request) {
	issueID, err := pathID(r, "id")
	if err != nil {
		h.error(w, http.StatusBadRequest, "Invalid issue ID")
		return
	}
	item, ok := h.resolvers.Get(resolverKey(sessionID(r), issueID))
	if !ok {
		w.Header().Set("HX-Refresh", "true")
		http.Error(w, "Panel expired", http.StatusGone)
		return
	}
	res := item.(*resolve.Resolver)

	if err := r.ParseForm(); err != nil {
		h.error(w, http.StatusBadRequest, "Invalid form data")
		return
	}
	if err := applyResolveForm(res, r.PostForm); err != nil {
		h.error(w, http.StatusBadRequest, err.Error())
		return
	}

	if r.PostForm.Get("action") != "submit" {
		h.renderPartial(w, http.StatusOK, "resolve", newResolvePanel(res, nil))
		return
	}

	issueType := ""
	if issue := res.View().Issue; issue != nil {
		issueType = string(issue.Type)
	}
	entry := &audit.Entry{Action: audit.ActionResolve, Actor: actor(r), IssueID: issueID}
	if v := res.View(); v.Issue != nil {
		entry.JobID = v.Issue.JobID
	}

	resolved, err := res.Submit(r.Context())
	if err != nil {
		var ve *resolve.ValidationError
		if errors.As(err, &ve) {
			h.observeResolution(issueType, "invalid")
			h.renderPartial(w, http.StatusOK, "resolve",
				newResolvePanel(res, []toast{{Level: "error", Title: resolve.TitleValidationFailed, Description: ve.Reason}}))
			return
		}
		entry.Outcome = audit.OutcomeFailed
		entry.Detail = backend.Message(err)
		h.record(r.Context(), entry)
		h.observeResolution(issueType, "failed")
		if backend.IsAuth(err) {
			w.Header().Set("HX-Redirect", "/auth/login")
		}
		h.renderPartial(w, http.StatusOK, "resolve", newResolvePanel(res, []toast{errorToast(resolve.TitleSubmitFailed, err)}))
		return
	}

	entry.Detail = models.Str(resolved.ResolutionComment)
	h.record(r.Context(), entry)
	h.observeResolution(issueType, "ok")
	h.resolvers.Delete(resolverKey(sessionID(r), issueID))

	h.renderPartial(w, http.StatusOK, "resolve", resolvePanel{
		IssueID: issueID,
		Closed:  true,
		Toasts:  []toast{{Level: "info", Title: resolve.TitleResolved, Description: resolve.ResolvedDescription}},
	})
}

// CloseResolve discards the panel. Nothing already sent is undone.
func (h *Handlers) CloseResolve(w http.ResponseWriter, r *http.Request) {
	issueID, err := pathID(r, "id")
	if err != nil {
		h.error(w, http.StatusBadRequest, "Invalid issue ID")
		return
	}
	h.resolvers.Delete(resolverKey(sessionID(r), issueID))
	h.renderPartial(w, http.StatusOK, "resolve", resolvePanel{IssueID: issueID, Closed: true})
}

// dropResolvers discards every panel of a session.
func (h *Handlers) dropResolvers(sid string) {
	for key := range h.resolvers.Items() {
		if strings.HasPrefix(key, sid+":") {
			h.resolvers.Delete(key)
		}
	}
}

func (h *Handlers) observeResolution(issueType, outcome string) {
	if h.metrics != nil {
		h.metrics.ObserveResolution(issueType, outcome)
	}
}

// applyResolveForm copies posted inputs into the resolver. Keys are
// field:<staging id>:<field>, email:<staging id> and keep. Unchanged
// values are skipped.
func applyResolveForm(res *resolve.Resolver, form map[string][]string) error {
	if res.State() != resolve.StateEditing {
		return nil
	}
	current := res.View().Form

	for key, vals := range form {
		if len(vals) == 0 {
			continue
		}
		val := vals[0]
		switch {
		case strings.HasPrefix(key, fieldPrefix):
			idPart, field, ok := strings.Cut(strings.TrimPrefix(key, fieldPrefix), ":")
			if !ok {
				return fmt.Errorf("invalid form key %q", key)
			}
			id, err := strconv.ParseInt(idPart, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid form key %q", key)
			}
			if current.Fields[id][field] == val {
				continue
			}
			if err := res.SetField(id, field, val); err != nil {
				return err
			}

		case strings.HasPrefix(key, emailPrefix):
			id, err := strconv.ParseInt(strings.TrimPrefix(key, emailPrefix), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid form key %q", key)
			}
			if prev, ok := current.Emails[id]; ok && prev == val {
				continue
			}
			if err := res.SetEmail(id, val); err != nil {
				return err
			}

		case key == keepKey:
			id, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid row to keep %q", val)
			}
			if id == current.Keep {
				continue
			}
			if err := res.Keep(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolvePanel is what the resolve partial renders.
type resolvePanel struct {
	IssueID     int64
	JobID       int64
	State       string
	Type        string
	TypeLabel   string
	Description string
	Rows        []resolveRow
	Contact     *contactCard
	CanSubmit   bool
	Blocked     string
	Error       string
	Toasts      []toast
	// Closed renders an empty panel.
	Closed bool
}

type resolveRow struct {
	ID       int64
	Email    string
	Name     string
	Company  string
	Inputs   []resolveInput
	NewEmail string
	Kept     bool
}

type resolveInput struct {
	Name    string
	Label   string
	Value   string
	Missing bool
}

type contactCard struct {
	Email   string
	Name    string
	Company string
}

func newResolvePanel(res *resolve.Resolver, toasts []toast) resolvePanel {
	v := res.View()
	p := resolvePanel{
		IssueID:   res.IssueID(),
		State:     v.State.String(),
		CanSubmit: v.CanSubmit,
		Blocked:   v.Blocked,
		Error:     v.Error,
		Toasts:    toasts,
	}
	if v.State == resolve.StateFailed {
		p.Closed = true
	}
	if v.Issue == nil {
		return p
	}

	p.JobID = v.Issue.JobID
	p.Type = string(v.Issue.Type)
	p.TypeLabel = v.Issue.Type.Label()
	p.Description = models.Str(v.Issue.Description)

	for _, row := range v.Issue.AffectedRows {
		rr := resolveRow{
			ID:       row.ID,
			Email:    orNA(models.Str(row.Email)),
			Name:     strings.TrimSpace(models.Str(row.FirstName) + " " + models.Str(row.LastName)),
			Company:  models.Str(row.Company),
			NewEmail: v.Form.Emails[row.ID],
			Kept:     v.Form.Keep == row.ID,
		}
		missing := make(map[string]bool)
		for _, f := range row.Missing() {
			missing[f] = true
		}
		for _, f := range models.StagingFields {
			rr.Inputs = append(rr.Inputs, resolveInput{
				Name:    fmt.Sprintf("%s%d:%s", fieldPrefix, row.ID, f),
				Label:   fieldLabel(f),
				Value:   v.Form.Fields[row.ID][f],
				Missing: missing[f],
			})
		}
		p.Rows = append(p.Rows, rr)
	}

	if c := v.Contact; c != nil {
		p.Contact = &contactCard{Email: c.Email, Name: c.FullName(), Company: models.Str(c.Company)}
	}
	return p
}

func fieldLabel(f string) string {
	if f == "" {
		return f
	}
	return strings.ToUpper(f[:1]) + f[1:]
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
