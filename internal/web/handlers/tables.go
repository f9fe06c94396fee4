package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/foxzi/ingestdesk/internal/datatable"
	"github.com/foxzi/ingestdesk/internal/web/auth"
	"github.com/foxzi/ingestdesk/internal/web/backend"
	"github.com/foxzi/ingestdesk/internal/web/config"
	"github.com/foxzi/ingestdesk/internal/web/middleware"
	"github.com/foxzi/ingestdesk/internal/web/models"
	"github.com/foxzi/ingestdesk/internal/web/poller"
	"github.com/go-chi/chi/v5"
)

// selectAllLabel heads every select filter.
const selectAllLabel = "All"

// viewSpec describes how to build one kind of view.
type viewSpec[T any] struct {
	kind     Kind
	title    string
	table    datatable.Config
	poll     config.PollConfig
	fetch    func(ctx context.Context) (T, error)
	rows     func(T) []datatable.Row
	keep     func(v *View, data T)
	escalate func(T) bool
}

// mountView creates the view, starts its poller and registers it. The
// poller fetches with the signed-in session of the request that opened
// the page, so backend calls carry that operator's token.
func mountView[T any](h *Handlers, r *http.Request, spec viewSpec[T]) *View {
	sess := auth.SessionFrom(r.Context())
	sid := ""
	if sess != nil {
		sid = sess.ID
	}

	spec.table.PageSize = h.cfg.Display.PageSize
	v := newView(spec.kind, spec.title, sid, datatable.New(spec.table))

	pcfg := poller.DefaultConfig(string(spec.kind), spec.poll.Interval)
	pcfg.Enabled = spec.poll.On()
	pcfg.NotifyEvery = h.cfg.Polling.NotifyEvery
	pcfg.RedirectDelay = h.cfg.Polling.AuthRedirectDelay

	hooks := poller.Hooks[T]{
		Fetch: func(ctx context.Context) (T, error) {
			return spec.fetch(auth.WithSession(ctx, sess))
		},
		Apply: func(data T) {
			v.Table.SetData(spec.rows(data))
			if spec.keep != nil {
				spec.keep(v, data)
			} else {
				v.setLoaded()
			}
		},
		Escalate:      spec.escalate,
		OnAuthFailure: func() { v.setRedirect(middleware.LoginPath) },
		Notifier:      v,
		Scheduler:     h.scheduler,
	}
	if h.metrics != nil {
		hooks.Observer = h.metrics
	}

	v.poll = poller.New(pcfg, hooks, h.logger.With("view", v.ID))
	h.store.Add(v)
	return v
}

func (h *Handlers) mountJobs(r *http.Request) *View {
	loc := h.cfg.Location()
	return mountView(h, r, viewSpec[*models.JobList]{
		kind:  KindJobs,
		title: "Jobs",
		table: models.JobsTable(loc),
		poll:  h.cfg.Polling.Jobs,
		fetch: h.backend.ListJobs,
		rows: func(l *models.JobList) []datatable.Row {
			return l.Rows(loc, h.now())
		},
		keep:     (*View).setJobs,
		escalate: (*models.JobList).AnyActive,
	})
}

func (h *Handlers) mountIssues(r *http.Request) *View {
	loc := h.cfg.Location()
	cfg := models.IssuesTable(loc, false)
	cfg.RowLinkPrefix = "/issues"
	return mountView(h, r, viewSpec[*models.IssueList]{
		kind:  KindIssues,
		title: "Issues",
		table: cfg,
		poll:  h.cfg.Polling.Issues,
		fetch: h.backend.ListIssues,
		rows: func(l *models.IssueList) []datatable.Row {
			return l.Rows(loc)
		},
		keep:     (*View).setIssues,
		escalate: (*models.IssueList).AnyUnresolved,
	})
}

func (h *Handlers) mountJobIssues(r *http.Request, jobID int64) *View {
	loc := h.cfg.Location()
	cfg := models.IssuesTable(loc, true)
	cfg.RowLinkPrefix = "/issues"
	v := mountView(h, r, viewSpec[*models.IssueList]{
		kind:  KindJobIssues,
		title: fmt.Sprintf("Issues of job %d", jobID),
		table: cfg,
		poll:  h.cfg.Polling.Issues,
		fetch: func(ctx context.Context) (*models.IssueList, error) {
			return h.backend.ListJobIssues(ctx, jobID)
		},
		rows: func(l *models.IssueList) []datatable.Row {
			return l.Rows(loc)
		},
		keep:     (*View).setIssues,
		escalate: (*models.IssueList).AnyUnresolved,
	})
	v.JobID = jobID
	return v
}

func (h *Handlers) mountContacts(r *http.Request) *View {
	loc := h.cfg.Location()
	return mountView(h, r, viewSpec[*models.ContactList]{
		kind:  KindContacts,
		title: "Contacts",
		table: models.ContactsTable(loc),
		poll:  h.cfg.Polling.Contacts,
		fetch: h.backend.ListContacts,
		rows: func(l *models.ContactList) []datatable.Row {
			return l.Rows(loc)
		},
	})
}

// tablePage is the data of a full list page.
type tablePage struct {
	pageData
	Table tableData
	// ReadyJobs counts the jobs the reprocess button would send.
	ReadyJobs int
}

// JobsPage shows the jobs list.
func (h *Handlers) JobsPage(w http.ResponseWriter, r *http.Request) {
	h.renderTablePage(w, r, h.mountJobs(r), "jobs")
}

// IssuesPage shows every issue.
func (h *Handlers) IssuesPage(w http.ResponseWriter, r *http.Request) {
	h.renderTablePage(w, r, h.mountIssues(r), "issues")
}

// JobIssuesPage shows the issues of one job.
func (h *Handlers) JobIssuesPage(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathID(r, "id")
	if err != nil {
		h.error(w, http.StatusBadRequest, "Invalid job ID")
		return
	}
	h.renderTablePage(w, r, h.mountJobIssues(r, jobID), "issues")
}

// ContactsPage shows the contacts list.
func (h *Handlers) ContactsPage(w http.ResponseWriter, r *http.Request) {
	h.renderTablePage(w, r, h.mountContacts(r), "contacts")
}

func (h *Handlers) renderTablePage(w http.ResponseWriter, r *http.Request, v *View, active string) {
	pd := h.page(r, v.Title, active)
	page := tablePage{pageData: pd, Table: h.tableData(v, pd, nil)}
	if pd.CanEdit && (v.Kind == KindJobs || v.Kind == KindIssues) {
		ready, err := h.readyJobs(r.Context())
		if err != nil {
			h.logger.Warn("failed to check jobs ready for reprocessing", "error", err)
		}
		page.ReadyJobs = len(ready)
	}
	h.render(w, "list", page)
}

// view resolves the {view} parameter to a view of the current session.
func (h *Handlers) view(w http.ResponseWriter, r *http.Request) (*View, bool) {
	v, ok := h.store.Get(chi.URLParam(r, "view"))
	if !ok || v.SessionID != sessionID(r) {
		// the page is stale; a reload mounts a new view
		w.Header().Set("HX-Refresh", "true")
		http.Error(w, "View expired", http.StatusGone)
		return nil, false
	}
	return v, true
}

// TableFragment renders the table and drains pending notifications. After
// an authentication failure the browser is sent to the login page.
func (h *Handlers) TableFragment(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	h.writeTable(w, r, v)
}

func (h *Handlers) writeTable(w http.ResponseWriter, r *http.Request, v *View) {
	notes, redirect := v.Drain()
	if redirect != "" {
		h.store.Remove(v.ID)
		w.Header().Set("HX-Redirect", redirect)
	}
	pd := h.page(r, v.Title, "")
	h.renderPartial(w, http.StatusOK, "table", h.tableData(v, pd, toastsFrom(notes)))
}

// TableAction applies one table interaction and re-renders the table.
func (h *Handlers) TableAction(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.error(w, http.StatusBadRequest, "Invalid form data")
		return
	}

	if err := applyAction(v, chi.URLParam(r, "action"), r.Form); err != nil {
		if errors.Is(err, errUnknownAction) {
			h.error(w, http.StatusNotFound, err.Error())
			return
		}
		h.error(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeTable(w, r, v)
}

var errUnknownAction = errors.New("unknown table action")

type formValues interface {
	Get(key string) string
}

func applyAction(v *View, action string, form formValues) error {
	t := v.Table
	switch action {
	case "sort":
		return t.ToggleSort(form.Get("field"))
	case "filter":
		return t.SetFilter(form.Get("key"), form.Get("value"))
	case "clear":
		t.ClearFilters()
	case "search":
		t.SetSearch(form.Get("q"))
	case "page":
		return applyPage(t, form.Get("page"))
	case "page-size":
		n, err := strconv.Atoi(form.Get("size"))
		if err != nil {
			return fmt.Errorf("invalid page size %q", form.Get("size"))
		}
		return t.SetPageSize(n)
	case "columns":
		return t.ToggleColumn(form.Get("field"))
	case "move":
		from, err1 := strconv.Atoi(form.Get("from"))
		to, err2 := strconv.Atoi(form.Get("to"))
		if err1 != nil || err2 != nil {
			return errors.New("invalid row index")
		}
		return t.MoveRow(from, to)
	case "polling":
		v.poll.SetPolling(form.Get("on") == "true")
	case "hold":
		v.poll.Hold()
	case "release":
		v.poll.Release()
	case "refresh":
		v.poll.Refresh()
	default:
		return fmt.Errorf("%w: %s", errUnknownAction, action)
	}
	return nil
}

func applyPage(t *datatable.Table, page string) error {
	switch page {
	case "first":
		t.FirstPage()
	case "prev":
		t.PreviousPage()
	case "next":
		t.NextPage()
	case "last":
		t.LastPage()
	default:
		i, err := strconv.Atoi(page)
		if err != nil {
			return fmt.Errorf("invalid page %q", page)
		}
		t.SetPage(i)
	}
	return nil
}

// ExportCSV downloads the filtered rows as CSV.
func (h *Handlers) ExportCSV(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	name := string(v.Kind) + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := v.Table.ExportCSV(w); err != nil {
		h.logger.Warn("csv export failed", "view", v.ID, "error", err)
	}
}

// CloseView unmounts the view when the page is left.
func (h *Handlers) CloseView(w http.ResponseWriter, r *http.Request) {
	v, ok := h.store.Get(chi.URLParam(r, "view"))
	if ok && v.SessionID == sessionID(r) {
		h.store.Remove(v.ID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// tableData is everything the table partial renders.
type tableData struct {
	ViewID    string
	Kind      Kind
	Title     string
	JobID     int64
	Snap      datatable.Snapshot
	Filters   []filterData
	Header    []headerCell
	Rows      []rowData
	PageSizes []int
	Polling   bool
	Fetching  bool
	Loaded    bool
	Error     string
	Toasts    []toast
	Counters  *models.IssueList
	CanUpload bool
	CanEdit   bool
	HasPrev   bool
	HasNext   bool
	PageLabel string
}

type filterData struct {
	Key         string
	Label       string
	Kind        string
	Placeholder string
	Value       string
	StartKey    string
	Start       string
	EndKey      string
	End         string
	Options     []datatable.Option
}

type headerCell struct {
	ID       string
	Label    string
	Sortable bool
	Sorted   string
}

type rowData struct {
	Index int
	Link  string
	Cells []cellData
}

type cellData struct {
	Text     string
	Href     string
	External bool
	Badge    string
	// Cancel is the job id offering a cancel button.
	Cancel int64
	// Resolve is the issue id offering the resolution panel.
	Resolve int64
	// IssuesLink points at the issues of a job.
	IssuesLink string
}

func (h *Handlers) tableData(v *View, pd pageData, toasts []toast) tableData {
	snap := v.Table.Snapshot()
	td := tableData{
		ViewID:    v.ID,
		Kind:      v.Kind,
		Title:     v.Title,
		JobID:     v.JobID,
		Snap:      snap,
		PageSizes: datatable.PageSizes,
		Polling:   v.poll.Polling(),
		Fetching:  v.poll.State() == poller.StateFetching,
		Loaded:    v.Loaded(),
		Toasts:    toasts,
		CanUpload: pd.CanUpload,
		CanEdit:   pd.CanEdit,
		HasPrev:   snap.PageIndex > 0,
		HasNext:   snap.PageIndex < snap.PageCount-1,
		PageLabel: fmt.Sprintf("Page %d of %d", snap.PageIndex+1, max(snap.PageCount, 1)),
	}
	if err := v.poll.Err(); err != nil && !td.Loaded {
		td.Error = backend.Message(err)
	}
	if v.Kind == KindIssues || v.Kind == KindJobIssues {
		td.Counters = v.Issues()
	}

	for _, spec := range v.Table.Config().Filters {
		fd := filterData{
			Key:         spec.Field,
			Label:       spec.Label,
			Kind:        spec.Kind.String(),
			Placeholder: spec.Placeholder,
			Value:       snap.FilterValues[spec.Field],
		}
		if spec.Range != nil {
			fd.StartKey, fd.EndKey = spec.Range.Start, spec.Range.End
			fd.Start, fd.End = snap.FilterValues[spec.Range.Start], snap.FilterValues[spec.Range.End]
		}
		if spec.Kind == datatable.FilterSelect {
			fd.Options = v.Table.FilterOptions(spec.Field, selectAllLabel)
		}
		td.Filters = append(td.Filters, fd)
	}

	for _, c := range snap.Columns {
		hc := headerCell{ID: c.ID, Label: c.Label, Sortable: c.Sortable}
		if snap.Sort.Field == c.ID {
			hc.Sorted = snap.Sort.Direction.String()
		}
		td.Header = append(td.Header, hc)
	}

	for i, row := range snap.Rows {
		rd := rowData{Index: i}
		if link, ok := v.Table.RowLink(row); ok {
			rd.Link = link + "/resolve"
		}
		for _, c := range snap.Columns {
			rd.Cells = append(rd.Cells, formatCell(v.Kind, c.ID, row, pd.CanEdit))
		}
		td.Rows = append(td.Rows, rd)
	}
	return td
}

// formatCell renders one cell for display.
func formatCell(kind Kind, field string, row datatable.Row, canEdit bool) cellData {
	switch {
	case field == "job_status":
		s := models.JobStatus(row.Text(field))
		return cellData{Text: s.Label(), Badge: strings.ToLower(string(s))}

	case field == "issue_type":
		return cellData{Text: models.IssueType(row.Text(field)).Label()}

	case field == "issue_resolved":
		if row.Text(field) == "true" {
			return cellData{Text: "Resolved", Badge: "resolved"}
		}
		return cellData{Text: "Unresolved", Badge: "unresolved"}

	case field == "actions" && kind == KindJobs:
		c := cellData{}
		id, _ := row["job_id"].(int64)
		if canEdit && models.JobStatus(row.Text("job_status")).Cancelable() {
			c.Cancel = id
		}
		if n, _ := row["job_issue_count"].(int); n > 0 {
			c.IssuesLink = fmt.Sprintf("/jobs/%d/issues", id)
		}
		return c

	case field == "actions":
		c := cellData{}
		if canEdit && row.Text("issue_resolved") != "true" {
			c.Resolve, _ = row["issue_id"].(int64)
		}
		return c
	}

	val := row[field]
	text := datatable.Stringify(val)
	if text == "" {
		text = "-"
	}
	c := cellData{Text: text}
	if datatable.IsLink(val) {
		c.Href = text
		if strings.HasPrefix(strings.ToLower(text), "www.") {
			c.Href = "https://" + text
		}
		c.External = true
	}
	return c
}
