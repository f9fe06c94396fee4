package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/foxzi/ingestdesk/internal/web/audit"
	"github.com/foxzi/ingestdesk/internal/web/auth"
	"github.com/foxzi/ingestdesk/internal/web/backend"
	"github.com/foxzi/ingestdesk/internal/web/config"
	"github.com/foxzi/ingestdesk/internal/web/db"
	"github.com/foxzi/ingestdesk/internal/web/metrics"
	"github.com/foxzi/ingestdesk/internal/web/models"
	"github.com/foxzi/ingestdesk/internal/web/repository"
	"github.com/foxzi/ingestdesk/internal/web/views"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI is an in-memory ingestion API.
type fakeAPI struct {
	mu          sync.Mutex
	jobs        []models.Job
	issues      []models.Issue
	uploads     []string
	canceled    []int64
	reprocessed []int64
	staging     map[int64]models.StagingUpdate
	resolved    map[int64]models.IssueUpdate
	cancelCode  int
}

func newFakeAPI() *fakeAPI {
	created := models.Timestamp{Time: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	return &fakeAPI{
		jobs: []models.Job{
			{ID: 1, OriginalFilename: "contacts.csv", Status: models.JobProcessing, TotalRows: 10, ProcessedRows: 4, CreatedAt: created},
			{ID: 2, OriginalFilename: "leads.csv", Status: models.JobNeedsReview, TotalRows: 5, ProcessedRows: 5, IssueCount: 1, CreatedAt: created},
			{ID: 3, OriginalFilename: "archive.csv", Status: models.JobCompleted, TotalRows: 3, ProcessedRows: 3, CreatedAt: created},
		},
		issues: []models.Issue{{
			ID:        7,
			JobID:     2,
			Type:      models.IssueInvalidEmail,
			CreatedAt: created,
			AffectedRows: []models.StagingRow{
				{ID: 11, Email: models.Ptr("ana@@example"), FirstName: models.Ptr("Ana")},
			},
		}},
		staging:  make(map[int64]models.StagingUpdate),
		resolved: make(map[int64]models.IssueUpdate),
	}
}

func (f *fakeAPI) handler() http.Handler {
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	id := func(r *http.Request) int64 {
		n, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		return n
	}

	r := chi.NewRouter()
	r.Get("/jobs", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, map[string]any{"jobs": f.jobs, "total": len(f.jobs)})
	})
	r.Post("/jobs/upload", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, `{"detail":"no file"}`, http.StatusBadRequest)
			return
		}
		defer file.Close()
		f.mu.Lock()
		f.uploads = append(f.uploads, header.Filename)
		f.mu.Unlock()
		writeJSON(w, models.UploadResult{JobID: 42, Filename: header.Filename})
	})
	r.Delete("/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.cancelCode != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.cancelCode)
			_, _ = io.WriteString(w, `{"detail":"Job already completed"}`)
			return
		}
		f.canceled = append(f.canceled, id(r))
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/jobs/{id}/reprocess", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.reprocessed = append(f.reprocessed, id(r))
		writeJSON(w, map[string]string{"status": "ok"})
	})
	r.Get("/issues", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		unresolved := 0
		for _, i := range f.issues {
			if !i.Resolved {
				unresolved++
			}
		}
		writeJSON(w, map[string]any{"issues": f.issues, "total": len(f.issues), "unresolved_count": unresolved})
	})
	r.Get("/issues/job/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		out := []models.Issue{}
		for _, i := range f.issues {
			if i.JobID == id(r) {
				out = append(out, i)
			}
		}
		writeJSON(w, map[string]any{"issues": out})
	})
	r.Get("/issues/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		for _, i := range f.issues {
			if i.ID == id(r) {
				writeJSON(w, i)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"Issue not found"}`)
	})
	r.Put("/issues/{id}", func(w http.ResponseWriter, r *http.Request) {
		var upd models.IssueUpdate
		_ = json.NewDecoder(r.Body).Decode(&upd)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.resolved[id(r)] = upd
		for n, i := range f.issues {
			if i.ID == id(r) {
				f.issues[n].Resolved = true
				f.issues[n].ResolutionComment = upd.ResolutionComment
				f.issues[n].ResolvedBy = upd.ResolvedBy
				writeJSON(w, f.issues[n])
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	})
	r.Put("/staging/{id}", func(w http.ResponseWriter, r *http.Request) {
		var upd models.StagingUpdate
		_ = json.NewDecoder(r.Body).Decode(&upd)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.staging[id(r)] = upd
		writeJSON(w, models.StagingRow{ID: id(r), Email: upd.Email})
	})
	r.Get("/contacts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"contacts": []models.Contact{}})
	})
	return r
}

type harness struct {
	t       *testing.T
	h       *Handlers
	api     *fakeAPI
	router  http.Handler
	journal *audit.Journal
	session *models.Session
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	api := newFakeAPI()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	cfg, err := config.Parse([]byte(`
auth:
  local_enabled: true
  session_secret: "0123456789abcdef0123456789abcdef"
  roles:
    editor_group: editors
    uploader_group: uploaders
backend:
  base_url: "` + srv.URL + `"
  service_token: "svc"
`))
	require.NoError(t, err)

	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.Migrate())

	journal, err := audit.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	engine, err := views.New()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := repository.NewUserRepository(database.DB)
	sessions := repository.NewSessionRepository(database.DB)

	h := New(Deps{
		Config:   cfg,
		Backend:  backend.NewClient(cfg.Backend.BaseURL, backend.StaticToken("svc")),
		Users:    users,
		Sessions: sessions,
		Journal:  journal,
		Metrics:  metrics.New(),
		Views:    engine,
		Logger:   logger,
	})
	t.Cleanup(h.Close)

	hs := &harness{t: t, h: h, api: api, journal: journal}
	hs.session = hs.newSession("ops@example.com", []string{"editors", "uploaders"})
	hs.router = hs.routes()
	return hs
}

func (hs *harness) newSession(email string, groups []string) *models.Session {
	hs.t.Helper()
	u, err := hs.h.users.CreateLocal(email, "Ops", "correct-horse", groups)
	require.NoError(hs.t, err)
	s, err := hs.h.sessions.Create(u.ID, time.Hour, repository.Tokens{})
	require.NoError(hs.t, err)
	s, err = hs.h.sessions.Get(s.ID)
	require.NoError(hs.t, err)
	return s
}

// routes mounts the handlers with the session taken from the X-Test-Session
// header, falling back to the harness session.
func (hs *harness) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := hs.session
			if id := r.Header.Get("X-Test-Session"); id != "" {
				s, err := hs.h.sessions.Get(id)
				require.NoError(hs.t, err)
				sess = s
			}
			next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), sess)))
		})
	})
	h := hs.h
	r.Get("/jobs", h.JobsPage)
	r.Get("/issues", h.IssuesPage)
	r.Get("/jobs/{id}/issues", h.JobIssuesPage)
	r.Post("/jobs/upload", h.Upload)
	r.Post("/jobs/{id}/cancel", h.CancelJob)
	r.Post("/jobs/reprocess-all", h.ReprocessAll)
	r.Get("/issues/{id}/resolve", h.ResolvePanel)
	r.Post("/issues/{id}/resolve", h.ResolveUpdate)
	r.Delete("/issues/{id}/resolve", h.CloseResolve)
	r.Get("/views/{view}/table", h.TableFragment)
	r.Get("/views/{view}/export.csv", h.ExportCSV)
	r.Post("/views/{view}/{action}", h.TableAction)
	r.Delete("/views/{view}", h.CloseView)
	r.Get("/settings/audit", h.AuditLog)
	return r
}

func (hs *harness) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	hs.router.ServeHTTP(rec, req)
	return rec
}

func (hs *harness) get(path string) *httptest.ResponseRecorder {
	return hs.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (hs *harness) post(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return hs.do(req)
}

// open renders a list page and waits for its first fetch.
func (hs *harness) open(path string, kind Kind) *View {
	hs.t.Helper()
	rec := hs.get(path)
	require.Equal(hs.t, http.StatusOK, rec.Code, rec.Body.String())

	var found *View
	hs.h.Store().Each(func(v *View) {
		if v.Kind == kind && v.SessionID == hs.session.ID {
			found = v
		}
	})
	require.NotNil(hs.t, found)
	found.Poller().Wait()
	return found
}

func TestJobsPage_MountsViewAndRendersRows(t *testing.T) {
	hs := newHarness(t)
	v := hs.open("/jobs", KindJobs)

	assert.True(t, v.Loaded())
	require.NotNil(t, v.Jobs())
	assert.Len(t, v.Jobs().Jobs, 3)

	rec := hs.get("/views/" + v.ID + "/table")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "contacts.csv")
	assert.Contains(t, body, "Needs Review")
	assert.Contains(t, body, `data-cancel-job="2"`)
	assert.NotContains(t, body, `data-cancel-job="1"`)
	assert.NotContains(t, body, `data-cancel-job="3"`)
	assert.Contains(t, body, `href="/jobs/2/issues"`)
}

func TestJobsPage_UploaderOnlyCannotCancel(t *testing.T) {
	hs := newHarness(t)
	hs.session = hs.newSession("viewer@example.com", []string{"uploaders"})
	v := hs.open("/jobs", KindJobs)

	body := hs.get("/views/" + v.ID + "/table").Body.String()
	assert.NotContains(t, body, "data-cancel-job")
}

func TestTableAction(t *testing.T) {
	tests := []struct {
		name     string
		action   string
		form     url.Values
		wantCode int
		check    func(t *testing.T, v *View, body string)
	}{
		{
			name:     "search narrows rows",
			action:   "search",
			form:     url.Values{"q": {"leads"}},
			wantCode: http.StatusOK,
			check: func(t *testing.T, v *View, body string) {
				assert.Contains(t, body, "leads.csv")
				assert.NotContains(t, body, "contacts.csv")
			},
		},
		{
			name:     "status filter",
			action:   "filter",
			form:     url.Values{"key": {"job_status"}, "value": {"COMPLETED"}},
			wantCode: http.StatusOK,
			check: func(t *testing.T, v *View, body string) {
				assert.Contains(t, body, "archive.csv")
				assert.NotContains(t, body, "leads.csv")
				assert.Contains(t, body, "Clear filters")
			},
		},
		{
			name:     "sort toggles direction",
			action:   "sort",
			form:     url.Values{"field": {"job_id"}},
			wantCode: http.StatusOK,
			check: func(t *testing.T, v *View, body string) {
				assert.Equal(t, "job_id", v.Table.Sorting().Field)
			},
		},
		{
			name:     "hide column",
			action:   "columns",
			form:     url.Values{"field": {"job_total_rows"}},
			wantCode: http.StatusOK,
			check: func(t *testing.T, v *View, body string) {
				for _, c := range v.Table.VisibleColumns() {
					assert.NotEqual(t, "job_total_rows", c.ID)
				}
			},
		},
		{
			name:     "polling stays on while a job is processing",
			action:   "polling",
			form:     url.Values{"on": {"false"}},
			wantCode: http.StatusOK,
			check: func(t *testing.T, v *View, body string) {
				assert.True(t, v.Poller().Polling())
				assert.Contains(t, body, "Auto-refresh on")
			},
		},
		{
			name:     "invalid page size",
			action:   "page-size",
			form:     url.Values{"size": {"15"}},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown action",
			action:   "explode",
			wantCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := newHarness(t)
			v := hs.open("/jobs", KindJobs)

			rec := hs.post("/views/"+v.ID+"/"+tt.action, tt.form)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.check != nil {
				tt.check(t, v, rec.Body.String())
			}
		})
	}
}

func TestTableAction_PollingOffOnceSettled(t *testing.T) {
	hs := newHarness(t)
	hs.api.mu.Lock()
	hs.api.jobs = hs.api.jobs[1:]
	hs.api.mu.Unlock()
	v := hs.open("/jobs", KindJobs)

	rec := hs.post("/views/"+v.ID+"/polling", url.Values{"on": {"false"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, v.Poller().Polling())
	assert.Contains(t, rec.Body.String(), "Auto-refresh off")
}

func TestIssuesPage_UnresolvedKeepsPolling(t *testing.T) {
	hs := newHarness(t)
	v := hs.open("/issues", KindIssues)
	require.NotNil(t, v.Issues())
	assert.Equal(t, 1, v.Issues().UnresolvedCount)

	rec := hs.post("/views/"+v.ID+"/polling", url.Values{"on": {"false"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, v.Poller().Polling())

	hs.api.mu.Lock()
	hs.api.issues[0].Resolved = true
	hs.api.mu.Unlock()
	require.Equal(t, http.StatusOK, hs.post("/views/"+v.ID+"/refresh", nil).Code)
	v.Poller().Wait()

	rec = hs.post("/views/"+v.ID+"/polling", url.Values{"on": {"false"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, v.Poller().Polling())
}

func TestView_OtherSessionIsGone(t *testing.T) {
	hs := newHarness(t)
	v := hs.open("/jobs", KindJobs)
	other := hs.newSession("other@example.com", nil)

	req := httptest.NewRequest(http.MethodGet, "/views/"+v.ID+"/table", nil)
	req.Header.Set("X-Test-Session", other.ID)
	rec := hs.do(req)

	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("HX-Refresh"))
}

func TestCloseView_Unmounts(t *testing.T) {
	hs := newHarness(t)
	v := hs.open("/jobs", KindJobs)

	rec := hs.do(httptest.NewRequest(http.MethodDelete, "/views/"+v.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, ok := hs.h.Store().Get(v.ID)
	assert.False(t, ok)
	assert.Equal(t, http.StatusGone, hs.get("/views/"+v.ID+"/table").Code)
}

func TestExportCSV(t *testing.T) {
	hs := newHarness(t)
	v := hs.open("/jobs", KindJobs)

	rec := hs.get("/views/" + v.ID + "/export.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="jobs.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Contains(t, rec.Body.String(), "leads.csv")
}

func uploadRequest(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/jobs/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	tests := []struct {
		name      string
		filename  string
		content   []byte
		wantToast string
		wantSent  bool
	}{
		{name: "accepted", filename: "people.csv", content: []byte("email\na@b.co\n"), wantToast: "File uploaded successfully", wantSent: true},
		{name: "wrong extension", filename: "people.txt", content: []byte("x"), wantToast: "Invalid file type"},
		{name: "empty file", filename: "people.csv", content: nil, wantToast: "Empty file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := newHarness(t)
			rec := hs.do(uploadRequest(t, tt.filename, tt.content))

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantToast)
			if tt.wantSent {
				assert.Equal(t, []string{tt.filename}, hs.api.uploads)
				entries, err := hs.journal.List(t.Context(), audit.Filter{Action: audit.ActionUpload})
				require.NoError(t, err)
				require.Len(t, entries, 1)
				assert.Equal(t, int64(42), entries[0].JobID)
				assert.Equal(t, "ops@example.com", entries[0].Actor)
			} else {
				assert.Empty(t, hs.api.uploads)
			}
		})
	}
}

func TestCancelJob(t *testing.T) {
	hs := newHarness(t)
	v := hs.open("/jobs", KindJobs)
	v.Poller().Hold()

	rec := hs.post("/jobs/2/cancel", url.Values{"view": {v.ID}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Job canceled")
	assert.Equal(t, []int64{2}, hs.api.canceled)

	// processing and completed jobs are refused without calling the API
	for _, id := range []string{"1", "3"} {
		rec = hs.post("/jobs/"+id+"/cancel", url.Values{"view": {v.ID}})
		assert.Contains(t, rec.Body.String(), "Cannot cancel job")
	}
	assert.Equal(t, []int64{2}, hs.api.canceled)
}

func TestCancelJob_BackendMessage(t *testing.T) {
	hs := newHarness(t)
	hs.api.cancelCode = http.StatusConflict

	rec := hs.post("/jobs/1/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to cancel job")
	assert.Contains(t, rec.Body.String(), "Job already completed")

	entries, err := hs.journal.List(t.Context(), audit.Filter{Action: audit.ActionCancel})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.OutcomeFailed, entries[0].Outcome)
}

func TestReprocessAll(t *testing.T) {
	hs := newHarness(t)

	rec := hs.post("/jobs/reprocess-all", nil)
	assert.Contains(t, rec.Body.String(), "Nothing to reprocess")
	assert.Empty(t, hs.api.reprocessed)

	hs.api.mu.Lock()
	hs.api.issues[0].Resolved = true
	hs.api.mu.Unlock()

	rec = hs.post("/jobs/reprocess-all", nil)
	assert.Contains(t, rec.Body.String(), "Reprocessing started")
	assert.Equal(t, []int64{2}, hs.api.reprocessed)
}

func TestListPage_ReprocessButton(t *testing.T) {
	hs := newHarness(t)

	// Job 2 still has an unresolved issue.
	for _, path := range []string{"/jobs", "/issues"} {
		rec := hs.get(path)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "Reprocess ready jobs", path)
	}

	hs.api.mu.Lock()
	hs.api.issues[0].Resolved = true
	hs.api.mu.Unlock()

	rec := hs.get("/issues")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Reprocess ready jobs (1)")

	hs.session = hs.newSession("uploader@example.com", []string{"uploaders"})
	assert.NotContains(t, hs.get("/issues").Body.String(), "Reprocess ready jobs")
}

func TestResolveFlow_InvalidEmail(t *testing.T) {
	hs := newHarness(t)

	rec := hs.get("/issues/7/resolve")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Resolve issue #7")
	assert.Contains(t, body, `name="email:11"`)
	assert.Contains(t, body, "Please enter a valid email address")

	rec = hs.post("/issues/7/resolve", url.Values{"email:11": {"not-an-email"}, "action": {"submit"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Validation failed")
	assert.Empty(t, hs.api.resolved)

	rec = hs.post("/issues/7/resolve", url.Values{"email:11": {" ana@example.com "}, "action": {"submit"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Issue resolved successfully")

	require.Contains(t, hs.api.staging, int64(11))
	assert.Equal(t, "ana@example.com", models.Str(hs.api.staging[11].Email))
	upd := hs.api.resolved[7]
	require.NotNil(t, upd.Resolved)
	assert.True(t, *upd.Resolved)
	assert.Equal(t, "ops@example.com", models.Str(upd.ResolvedBy))

	entries, err := hs.journal.List(t.Context(), audit.Filter{Action: audit.ActionResolve})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].JobID)

	// the panel is gone once resolved
	rec = hs.post("/issues/7/resolve", url.Values{"action": {"submit"}})
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestResolvePanel_LoadFailure(t *testing.T) {
	hs := newHarness(t)

	rec := hs.get("/issues/99/resolve")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Error loading issue")
	assert.Contains(t, body, "Issue not found")
	assert.NotContains(t, body, "Resolve issue #99")
}

func TestAuditLog(t *testing.T) {
	hs := newHarness(t)
	require.NoError(t, hs.journal.Record(t.Context(), &audit.Entry{Action: audit.ActionCancel, Actor: "ops@example.com", JobID: 5}))

	rec := hs.get("/settings/audit?action=cancel")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `href="/jobs/5/issues"`)
}

func TestFormatCell(t *testing.T) {
	tests := []struct {
		name  string
		kind  Kind
		field string
		row   map[string]any
		edit  bool
		want  cellData
	}{
		{
			name: "status badge", kind: KindJobs, field: "job_status",
			row:  map[string]any{"job_status": "NEEDS_REVIEW"},
			want: cellData{Text: "Needs Review", Badge: "needs_review"},
		},
		{
			name: "cancel offered to editors", kind: KindJobs, field: "actions",
			row:  map[string]any{"job_id": int64(4), "job_status": "PENDING", "job_issue_count": 0},
			edit: true,
			want: cellData{Cancel: 4},
		},
		{
			name: "resolve hidden when resolved", kind: KindIssues, field: "actions",
			row:  map[string]any{"issue_id": int64(9), "issue_resolved": true},
			edit: true,
			want: cellData{},
		},
		{
			name: "bare www link", kind: KindContacts, field: "contact_company",
			row:  map[string]any{"contact_company": "www.example.com"},
			want: cellData{Text: "www.example.com", Href: "https://www.example.com", External: true},
		},
		{
			name: "null shows dash", kind: KindContacts, field: "contact_company",
			row:  map[string]any{"contact_company": nil},
			want: cellData{Text: "-"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatCell(tt.kind, tt.field, tt.row, tt.edit))
		})
	}
}
