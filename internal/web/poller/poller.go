// Package poller refetches one entity collection on a fixed cadence.
//
// A Poller moves between Idle, Scheduled, Fetching and Stopped. The next
// timer is armed only after the previous fetch has completed, so results are
// always applied in order. Results that arrive after Unmount are dropped.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/foxzi/ingestdesk/internal/web/backend"
)

// State is the lifecycle position of a Poller.
type State int

const (
	StateIdle State = iota
	StateScheduled
	StateFetching
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateFetching:
		return "fetching"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Timer is a pending scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler arms one-shot timers.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type clock struct{}

func (clock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealScheduler uses the runtime timers.
var RealScheduler Scheduler = clock{}

// Level is the severity of a notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notification is a toast shown to the operator.
type Notification struct {
	Level       Level
	Title       string
	Description string
}

// Notifier receives notifications raised by a poller.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// Observer is told about every fetch outcome.
type Observer interface {
	ObservePoll(name, outcome string)
}

const (
	SessionExpiredTitle       = "Session expired"
	SessionExpiredDescription = "Please log in again to continue."
	RetryDescription          = "The table will continue trying to refresh automatically."
)

// Config configures a Poller.
type Config struct {
	// Name identifies the poller in logs and metrics, e.g. "jobs".
	Name     string
	Interval time.Duration
	// Enabled is the initial polling flag. Escalation may turn it on.
	Enabled bool
	// NotifyEvery raises a notification on the first failure and on every
	// NotifyEvery-th consecutive failure.
	NotifyEvery int
	// RedirectDelay is how long an auth failure waits before OnAuthFailure.
	RedirectDelay time.Duration
	// FailureTitle heads failure notifications, e.g. "Failed to refresh jobs".
	FailureTitle string
}

// DefaultConfig returns the defaults for a named poller.
func DefaultConfig(name string, interval time.Duration) Config {
	return Config{
		Name:          name,
		Interval:      interval,
		Enabled:       true,
		NotifyEvery:   5,
		RedirectDelay: 2 * time.Second,
		FailureTitle:  "Failed to refresh " + name,
	}
}

// Hooks are the collaborators of a Poller. Fetch is required.
type Hooks[T any] struct {
	Fetch func(ctx context.Context) (T, error)
	// Apply receives every successful result, in fetch order.
	Apply func(T)
	// Escalate forces polling on when it returns true for a result.
	Escalate func(T) bool
	// OnAuthFailure runs RedirectDelay after an authentication failure.
	OnAuthFailure func()
	Notifier      Notifier
	Observer      Observer
	Scheduler     Scheduler
}

// Poller periodically refetches one collection.
type Poller[T any] struct {
	cfg    Config
	hooks  Hooks[T]
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	polling    bool
	held       bool
	failures   int
	generation uint64
	timer      Timer
	redirect   Timer
	again      bool
	mounted    bool
	data       T
	loaded     bool
	escalated  bool
	lastErr    error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a poller in the Idle state.
func New[T any](cfg Config, hooks Hooks[T], logger *slog.Logger) *Poller[T] {
	if cfg.NotifyEvery <= 0 {
		cfg.NotifyEvery = 5
	}
	if cfg.FailureTitle == "" {
		cfg.FailureTitle = "Failed to refresh " + cfg.Name
	}
	if hooks.Scheduler == nil {
		hooks.Scheduler = RealScheduler
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Poller[T]{
		cfg:     cfg,
		hooks:   hooks,
		logger:  logger.With("component", "poller", "poller", cfg.Name),
		state:   StateIdle,
		polling: cfg.Enabled,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Mount fetches immediately. Polling starts after the first fetch completes
// if it is enabled.
func (p *Poller[T]) Mount() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mounted || p.state == StateStopped {
		return
	}
	p.mounted = true
	p.logger.Debug("poller mounted", "interval", p.cfg.Interval, "polling", p.polling)
	p.startFetchLocked()
}

// Unmount stops the poller for good. No timer stays armed and any fetch
// still in flight is canceled and its result discarded.
func (p *Poller[T]) Unmount() {
	p.mu.Lock()
	if p.state == StateStopped && p.timer == nil && p.redirect == nil {
		p.mu.Unlock()
		return
	}
	p.stopTimerLocked()
	if p.redirect != nil {
		p.redirect.Stop()
		p.redirect = nil
	}
	p.state = StateStopped
	p.generation++
	p.mu.Unlock()

	p.cancel()
	p.logger.Debug("poller unmounted")
}

// Wait blocks until no fetch is in flight.
func (p *Poller[T]) Wait() {
	p.wg.Wait()
}

// SetPolling turns periodic refetching on or off. Turning it off is ignored
// while the last result requires escalation.
func (p *Poller[T]) SetPolling(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateStopped {
		return
	}
	if !on && p.escalated {
		p.logger.Debug("polling kept on by data state")
		return
	}
	p.polling = on
	switch {
	case !on && p.state == StateScheduled:
		p.stopTimerLocked()
		p.state = StateIdle
	case on && p.state == StateIdle && p.mounted && !p.held:
		p.armLocked()
	}
}

// Polling reports whether periodic refetching is on.
func (p *Poller[T]) Polling() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polling
}

// Hold pauses the timer without changing the polling flag, e.g. while a
// confirmation dialog is open.
func (p *Poller[T]) Hold() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.held = true
	if p.state == StateScheduled {
		p.stopTimerLocked()
		p.state = StateIdle
	}
}

// Release resumes after Hold.
func (p *Poller[T]) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.held {
		return
	}
	p.held = false
	if p.state == StateIdle && p.mounted && p.polling {
		p.armLocked()
	}
}

// Refresh fetches now. A refresh requested during a fetch runs right after it.
func (p *Poller[T]) Refresh() {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateStopped:
		return
	case StateFetching:
		p.again = true
	default:
		p.stopTimerLocked()
		p.startFetchLocked()
	}
}

// State returns the current lifecycle state.
func (p *Poller[T]) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Failures returns the number of consecutive failed fetches.
func (p *Poller[T]) Failures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

// Data returns the last successfully fetched result.
func (p *Poller[T]) Data() (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data, p.loaded
}

// Err returns the error of the last fetch, or nil after a success.
func (p *Poller[T]) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

func (p *Poller[T]) startFetchLocked() {
	p.state = StateFetching
	p.again = false
	gen := p.generation
	p.wg.Add(1)
	go p.fetch(gen)
}

func (p *Poller[T]) fetch(gen uint64) {
	defer p.wg.Done()

	result, err := p.hooks.Fetch(p.ctx)
	p.complete(gen, result, err)
}

// complete applies one fetch result and decides the next state.
func (p *Poller[T]) complete(gen uint64, result T, err error) {
	p.mu.Lock()
	if gen != p.generation || p.state == StateStopped {
		p.mu.Unlock()
		p.logger.Debug("discarding late fetch result")
		return
	}

	var notify *Notification
	var apply func(T)
	outcome := "ok"

	switch {
	case err == nil:
		p.failures = 0
		p.lastErr = nil
		p.data = result
		p.loaded = true
		p.escalated = p.hooks.Escalate != nil && p.hooks.Escalate(result)
		if p.escalated && !p.polling {
			p.polling = true
			p.logger.Debug("polling escalated by data state")
		}
		apply = p.hooks.Apply

	case backend.IsAuth(err):
		outcome = "auth"
		p.lastErr = err
		p.state = StateStopped
		p.generation++
		p.stopTimerLocked()
		if p.hooks.OnAuthFailure != nil {
			p.redirect = p.hooks.Scheduler.AfterFunc(p.cfg.RedirectDelay, p.authRedirect)
		}
		notify = &Notification{Level: LevelError, Title: SessionExpiredTitle, Description: SessionExpiredDescription}
		p.logger.Warn("polling stopped after authentication failure", "error", err)

	default:
		outcome = "error"
		if errors.Is(err, context.Canceled) {
			outcome = "canceled"
		}
		p.lastErr = err
		p.failures++
		if p.failures == 1 || p.failures%p.cfg.NotifyEvery == 0 {
			notify = &Notification{Level: LevelError, Title: p.cfg.FailureTitle, Description: RetryDescription}
		}
		p.logger.Warn("fetch failed", "error", err, "failures", p.failures)
	}

	p.mu.Unlock()

	// Callbacks run outside the lock so they may call back into the poller.
	// The state stays Fetching until they return, which keeps applies ordered.
	if apply != nil {
		apply(result)
	}
	if notify != nil && p.hooks.Notifier != nil {
		p.hooks.Notifier.Notify(*notify)
	}
	if p.hooks.Observer != nil {
		p.hooks.Observer.ObservePoll(p.cfg.Name, outcome)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation || p.state != StateFetching {
		return
	}
	p.state = StateIdle
	if p.again {
		p.startFetchLocked()
	} else if p.polling && !p.held {
		p.armLocked()
	}
}

func (p *Poller[T]) armLocked() {
	p.state = StateScheduled
	gen := p.generation
	p.timer = p.hooks.Scheduler.AfterFunc(p.cfg.Interval, func() { p.tick(gen) })
}

func (p *Poller[T]) tick(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.generation || p.state != StateScheduled {
		return
	}
	p.timer = nil
	p.startFetchLocked()
}

func (p *Poller[T]) stopTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Poller[T]) authRedirect() {
	p.mu.Lock()
	p.redirect = nil
	p.mu.Unlock()
	p.hooks.OnAuthFailure()
}
