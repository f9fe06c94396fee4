package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/foxzi/ingestdesk/internal/web/backend"
	"github.com/foxzi/ingestdesk/internal/web/models"
)

// UnknownIdentity is recorded as resolved_by when the operator cannot be identified.
const UnknownIdentity = "unknown"

// Notification titles shown by the resolution panel.
const (
	TitleLoadFailed       = "Error loading issue"
	TitleValidationFailed = "Validation failed"
	TitleSubmitFailed     = "Error resolving issue"
	TitleResolved         = "Issue resolved successfully"
	ResolvedDescription   = "All affected rows and issue have been updated"
)

// ErrBusy is returned when the form is changed while it cannot be edited.
var ErrBusy = errors.New("resolution is not editable")

// ErrUnknownRow is returned for a staging id that is not affected by the issue.
var ErrUnknownRow = errors.New("staging row is not affected by this issue")

// Backend is the subset of the API client used to resolve issues.
type Backend interface {
	GetIssue(ctx context.Context, issueID int64) (*models.Issue, error)
	UpdateStaging(ctx context.Context, stagingID int64, upd models.StagingUpdate) (*models.StagingRow, error)
	UpdateIssue(ctx context.Context, issueID int64, upd models.IssueUpdate) (*models.Issue, error)
	ContactByEmail(ctx context.Context, email string) (*models.Contact, error)
}

// Identity returns the email of the current operator.
type Identity interface {
	CurrentEmail(ctx context.Context) (string, error)
}

// IdentityFunc adapts a function to Identity.
type IdentityFunc func(ctx context.Context) (string, error)

func (f IdentityFunc) CurrentEmail(ctx context.Context) (string, error) { return f(ctx) }

// Resolver is one open resolution panel.
type Resolver struct {
	backend    Backend
	identity   Identity
	logger     *slog.Logger
	onResolved func(*models.Issue)

	mu       sync.Mutex
	issueID  int64
	state    State
	issue    *models.Issue
	contact  *models.Contact
	form     Form
	err      error
	resolved *models.Issue
}

// Option configures a Resolver.
type Option func(*Resolver)

// OnResolved runs after the issue has been marked resolved.
func OnResolved(f func(*models.Issue)) Option {
	return func(r *Resolver) { r.onResolved = f }
}

// New creates a resolver for issueID in the Loading state.
func New(issueID int64, b Backend, id Identity, logger *slog.Logger, opts ...Option) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		backend:  b,
		identity: id,
		logger:   logger.With("component", "resolver", "issue_id", issueID),
		issueID:  issueID,
		state:    StateLoading,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// transition applies e. The caller holds r.mu.
func (r *Resolver) transition(e Event) error {
	to, err := Next(r.state, e)
	if err != nil {
		return err
	}
	r.logger.Debug("resolver transition", "from", r.state, "to", to, "event", e)
	r.state = to
	return nil
}

// Load fetches the issue and prepares the form. For EXISTING_EMAIL it also
// looks up the conflicting contact; a failed lookup is ignored.
func (r *Resolver) Load(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateLoading {
		r.mu.Unlock()
		return fmt.Errorf("load: %w", ErrInvalidTransition)
	}
	r.mu.Unlock()

	issue, err := r.backend.GetIssue(ctx, r.issueID)
	if err != nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.err = err
		_ = r.transition(EventLoadFailed)
		r.logger.Warn("failed to load issue", "error", err)
		return err
	}

	var contact *models.Contact
	if issue.Type == models.IssueExistingEmail && len(issue.AffectedRows) > 0 {
		if email := models.Str(issue.AffectedRows[0].Email); email != "" {
			contact, err = r.backend.ContactByEmail(ctx, email)
			if err != nil {
				r.logger.Debug("contact lookup failed", "email", email, "error", err)
				contact = nil
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.issue = issue
	r.contact = contact
	r.form = NewForm(issue)
	return r.transition(EventLoaded)
}

func (r *Resolver) editable() error {
	if r.state != StateEditing {
		return fmt.Errorf("%w: %s", ErrBusy, r.state)
	}
	return nil
}

func (r *Resolver) checkRow(id int64) error {
	if !affected(r.issue, id) {
		return fmt.Errorf("%w: %d", ErrUnknownRow, id)
	}
	return nil
}

// SetField sets a missing-field value of one staging row.
func (r *Resolver) SetField(stagingID int64, field, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.editable(); err != nil {
		return err
	}
	if err := r.checkRow(stagingID); err != nil {
		return err
	}
	known := false
	for _, f := range models.StagingFields {
		known = known || f == field
	}
	if !known {
		return fmt.Errorf("unknown field %q", field)
	}
	r.form.Fields[stagingID][field] = value
	return r.transition(EventEdit)
}

// SetEmail sets the new address of one staging row.
func (r *Resolver) SetEmail(stagingID int64, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.editable(); err != nil {
		return err
	}
	if err := r.checkRow(stagingID); err != nil {
		return err
	}
	r.form.Emails[stagingID] = value
	r.form.Fields[stagingID][models.FieldEmail] = value
	return r.transition(EventEdit)
}

// Keep selects the duplicate row to keep.
func (r *Resolver) Keep(stagingID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.editable(); err != nil {
		return err
	}
	if err := r.checkRow(stagingID); err != nil {
		return err
	}
	r.form.Keep = stagingID
	return r.transition(EventEdit)
}

// CanSubmit reports whether the form is valid, and why not.
func (r *Resolver) CanSubmit() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateEditing {
		return false, ""
	}
	if err := Validate(r.issue, r.form); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return false, ve.Reason
		}
		return false, err.Error()
	}
	return true, ""
}

// Submit validates the form and applies it: staging rows first, then the
// issue. Any failure returns the resolver to Editing. Updates already sent
// are not rolled back.
func (r *Resolver) Submit(ctx context.Context) (*models.Issue, error) {
	r.mu.Lock()
	if err := r.transition(EventSubmit); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	if err := Validate(r.issue, r.form); err != nil {
		_ = r.transition(EventInvalid)
		r.err = err
		r.mu.Unlock()
		return nil, err
	}
	_ = r.transition(EventValid)
	issue := r.issue
	form := cloneForm(r.form)
	r.err = nil
	r.mu.Unlock()

	resolved, err := r.apply(ctx, issue, form)

	r.mu.Lock()
	if err != nil {
		r.err = err
		_ = r.transition(EventSubmitFailed)
		r.mu.Unlock()
		r.logger.Warn("failed to resolve issue", "error", err)
		return nil, err
	}
	r.resolved = resolved
	_ = r.transition(EventSubmitted)
	r.mu.Unlock()

	r.logger.Info("issue resolved", "type", issue.Type, "rows", len(issue.AffectedRows))
	if r.onResolved != nil {
		r.onResolved(resolved)
	}
	return resolved, nil
}

func (r *Resolver) apply(ctx context.Context, issue *models.Issue, form Form) (*models.Issue, error) {
	who := r.currentIdentity(ctx)

	for _, m := range Plan(issue, form) {
		if _, err := r.backend.UpdateStaging(ctx, m.StagingID, m.Update); err != nil {
			return nil, fmt.Errorf("update staging %d: %w", m.StagingID, err)
		}
	}

	upd := models.IssueUpdate{
		Resolved:          models.Ptr(true),
		ResolvedBy:        models.Ptr(who),
		ResolutionComment: models.Ptr(Comment(issue, form)),
	}
	resolved, err := r.backend.UpdateIssue(ctx, issue.ID, upd)
	if err != nil {
		return nil, fmt.Errorf("update issue %d: %w", issue.ID, err)
	}
	return resolved, nil
}

func (r *Resolver) currentIdentity(ctx context.Context) string {
	if r.identity == nil {
		return UnknownIdentity
	}
	email, err := r.identity.CurrentEmail(ctx)
	if err != nil || email == "" {
		if err != nil {
			r.logger.Debug("operator identity unavailable", "error", err)
		}
		return UnknownIdentity
	}
	return email
}

func cloneForm(f Form) Form {
	out := Form{
		Fields: make(map[int64]map[string]string, len(f.Fields)),
		Emails: make(map[int64]string, len(f.Emails)),
		Keep:   f.Keep,
	}
	for id, vals := range f.Fields {
		cp := make(map[string]string, len(vals))
		for k, v := range vals {
			cp[k] = v
		}
		out.Fields[id] = cp
	}
	for id, v := range f.Emails {
		out.Emails[id] = v
	}
	return out
}

// View is a consistent copy of the resolver for rendering.
type View struct {
	State     State
	Issue     *models.Issue
	Contact   *models.Contact
	Form      Form
	CanSubmit bool
	// Blocked explains why submission is disabled.
	Blocked string
	// Error is the operator-facing text of the last failure.
	Error string
}

// View returns the current state for rendering.
func (r *Resolver) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := View{
		State:   r.state,
		Issue:   r.issue,
		Contact: r.contact,
		Form:    cloneForm(r.form),
	}
	if r.err != nil {
		v.Error = backend.Message(r.err)
	}
	if r.state == StateEditing {
		if err := Validate(r.issue, r.form); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				v.Blocked = ve.Reason
			}
		} else {
			v.CanSubmit = true
		}
	}
	return v
}

// State returns the current state.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// IssueID returns the issue being resolved.
func (r *Resolver) IssueID() int64 {
	return r.issueID
}
