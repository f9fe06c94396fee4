package handlers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/foxzi/ingestdesk/internal/datatable"
	"github.com/foxzi/ingestdesk/internal/web/models"
	"github.com/foxzi/ingestdesk/internal/web/poller"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// Kind is the list a view shows.
type Kind string

const (
	KindJobs      Kind = "jobs"
	KindIssues    Kind = "issues"
	KindJobIssues Kind = "job-issues"
	KindContacts  Kind = "contacts"
)

// Poll is the part of a poller a view drives.
type Poll interface {
	Mount()
	Unmount()
	Wait()
	SetPolling(on bool)
	Polling() bool
	Hold()
	Release()
	Refresh()
	State() poller.State
	Err() error
}

// View is one mounted list page: a table, the poller feeding it and the
// notifications waiting for the browser.
type View struct {
	ID        string
	Kind      Kind
	Title     string
	JobID     int64
	SessionID string
	Table     *datatable.Table

	poll Poll

	mu       sync.Mutex
	notes    []poller.Notification
	redirect string
	jobs     *models.JobList
	issues   *models.IssueList
	loaded   bool
}

func newView(kind Kind, title, sessionID string, table *datatable.Table) *View {
	return &View{
		ID:        uuid.New().String(),
		Kind:      kind,
		Title:     title,
		SessionID: sessionID,
		Table:     table,
	}
}

// Notify implements poller.Notifier.
func (v *View) Notify(n poller.Notification) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notes = append(v.notes, n)
}

// Drain returns and clears pending notifications and the redirect target.
func (v *View) Drain() ([]poller.Notification, string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	notes := v.notes
	v.notes = nil
	return notes, v.redirect
}

func (v *View) setRedirect(path string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.redirect = path
}

func (v *View) setJobs(l *models.JobList) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.jobs = l
	v.loaded = true
}

func (v *View) setIssues(l *models.IssueList) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.issues = l
	v.loaded = true
}

func (v *View) setLoaded() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.loaded = true
}

// Jobs returns the last jobs list, if the view shows jobs.
func (v *View) Jobs() *models.JobList {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.jobs
}

// Issues returns the last issues envelope, if the view shows issues.
func (v *View) Issues() *models.IssueList {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.issues
}

// Loaded reports whether the first fetch has succeeded.
func (v *View) Loaded() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loaded
}

// Poller returns the poller feeding the view.
func (v *View) Poller() Poll {
	return v.poll
}

// ViewStore keeps mounted views until they are closed or sit idle for the
// configured TTL. Dropping a view unmounts its poller.
type ViewStore struct {
	cache   *cache.Cache
	logger  *slog.Logger
	onCount func(int)
}

// NewViewStore creates a store. onCount, if set, receives the number of
// live views after every change.
func NewViewStore(idleTTL time.Duration, logger *slog.Logger, onCount func(int)) *ViewStore {
	s := &ViewStore{
		cache:   cache.New(idleTTL, idleTTL/2),
		logger:  logger.With("component", "views"),
		onCount: onCount,
	}
	s.cache.OnEvicted(func(id string, item any) {
		v := item.(*View)
		v.poll.Unmount()
		s.logger.Debug("view closed", "view", id, "kind", v.Kind)
		s.count()
	})
	return s
}

func (s *ViewStore) count() {
	if s.onCount != nil {
		s.onCount(s.cache.ItemCount())
	}
}

// Add stores v and mounts its poller.
func (s *ViewStore) Add(v *View) {
	s.cache.SetDefault(v.ID, v)
	s.count()
	v.poll.Mount()
	s.logger.Debug("view mounted", "view", v.ID, "kind", v.Kind)
}

// Get returns the view and extends its idle deadline.
func (s *ViewStore) Get(id string) (*View, bool) {
	item, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	s.cache.SetDefault(id, item)
	return item.(*View), true
}

// Remove closes the view.
func (s *ViewStore) Remove(id string) {
	s.cache.Delete(id)
}

// Each calls f for every live view.
func (s *ViewStore) Each(f func(*View)) {
	for _, item := range s.cache.Items() {
		f(item.Object.(*View))
	}
}

// RefreshSession asks every view of the session showing one of kinds to
// refetch now.
func (s *ViewStore) RefreshSession(sessionID string, kinds ...Kind) {
	s.Each(func(v *View) {
		if v.SessionID != sessionID {
			return
		}
		for _, k := range kinds {
			if v.Kind == k {
				v.poll.Refresh()
				return
			}
		}
	})
}

// CloseSession drops every view of a signed-out session.
func (s *ViewStore) CloseSession(sessionID string) {
	s.Each(func(v *View) {
		if v.SessionID == sessionID {
			s.Remove(v.ID)
		}
	})
}

// Close unmounts every view.
func (s *ViewStore) Close() {
	for id := range s.cache.Items() {
		s.cache.Delete(id)
	}
}

// Len returns the number of live views.
func (s *ViewStore) Len() int {
	return s.cache.ItemCount()
}
