package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/foxzi/ingestdesk/internal/web/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	s       *fakeScheduler
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{s: s, d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) pending() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fire runs the oldest pending timer and reports whether there was one.
func (s *fakeScheduler) fire() bool {
	p := s.pending()
	if len(p) == 0 {
		return false
	}
	s.mu.Lock()
	p[0].fired = true
	s.mu.Unlock()
	p[0].f()
	return true
}

type script struct {
	mu      sync.Mutex
	results []error
	calls   int
}

func (s *script) fetch(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= len(s.results) {
		return s.calls, s.results[s.calls-1]
	}
	return s.calls, nil
}

func (s *script) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type notes struct {
	mu  sync.Mutex
	got []Notification
}

func (n *notes) Notify(x Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, x)
}

func (n *notes) len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.got)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPoller(cfg Config, hooks Hooks[int]) (*Poller[int], *fakeScheduler) {
	sched := &fakeScheduler{}
	hooks.Scheduler = sched
	return New(cfg, hooks, testLogger()), sched
}

var errTransient = &backend.Error{Kind: backend.KindTransient, Message: "Server error"}

func TestPoller_MountFetchesThenSchedules(t *testing.T) {
	sc := &script{}
	var applied []int
	p, sched := newTestPoller(DefaultConfig("jobs", 5*time.Second), Hooks[int]{
		Fetch: sc.fetch,
		Apply: func(v int) { applied = append(applied, v) },
	})

	p.Mount()
	p.Wait()

	assert.Equal(t, 1, sc.count())
	assert.Equal(t, StateScheduled, p.State())
	require.Len(t, sched.pending(), 1)
	assert.Equal(t, 5*time.Second, sched.pending()[0].d)

	require.True(t, sched.fire())
	p.Wait()
	assert.Equal(t, 2, sc.count())
	assert.Equal(t, []int{1, 2}, applied)

	// Mounting twice does not fetch again.
	p.Mount()
	p.Wait()
	assert.Equal(t, 2, sc.count())
}

func TestPoller_DisabledFetchesOnce(t *testing.T) {
	sc := &script{}
	cfg := DefaultConfig("contacts", 30*time.Second)
	cfg.Enabled = false
	p, sched := newTestPoller(cfg, Hooks[int]{Fetch: sc.fetch})

	p.Mount()
	p.Wait()

	assert.Equal(t, 1, sc.count())
	assert.Equal(t, StateIdle, p.State())
	assert.Empty(t, sched.pending())

	p.SetPolling(true)
	assert.Equal(t, StateScheduled, p.State())
	assert.Len(t, sched.pending(), 1)

	p.SetPolling(false)
	assert.Equal(t, StateIdle, p.State())
	assert.Empty(t, sched.pending())
}

func TestPoller_UnmountLeavesNoTimers(t *testing.T) {
	sc := &script{}
	p, sched := newTestPoller(DefaultConfig("issues", 10*time.Second), Hooks[int]{Fetch: sc.fetch})

	p.Mount()
	p.Wait()
	require.Len(t, sched.pending(), 1)
	stale := sched.pending()[0]

	p.Unmount()
	assert.Equal(t, StateStopped, p.State())
	assert.Empty(t, sched.pending())

	// A timer callback that raced the unmount must not fetch.
	stale.f()
	p.Wait()
	assert.Equal(t, 1, sc.count())

	p.Refresh()
	p.SetPolling(true)
	p.Wait()
	assert.Equal(t, 1, sc.count())
	assert.Empty(t, sched.pending())
}

func TestPoller_LateResultDiscarded(t *testing.T) {
	release := make(chan struct{})
	applied := false
	p, _ := newTestPoller(DefaultConfig("jobs", time.Second), Hooks[int]{
		Fetch: func(ctx context.Context) (int, error) {
			<-release
			return 1, nil
		},
		Apply: func(int) { applied = true },
	})

	p.Mount()
	p.Unmount()
	close(release)
	p.Wait()

	assert.False(t, applied)
	_, loaded := p.Data()
	assert.False(t, loaded)
}

func TestPoller_NotificationThrottling(t *testing.T) {
	tests := []struct {
		name    string
		results []error
		want    []int
	}{
		{
			name:    "seven failures notify on 1 and 5",
			results: []error{errTransient, errTransient, errTransient, errTransient, errTransient, errTransient, errTransient},
			want:    []int{1, 5},
		},
		{
			name:    "success resets the counter",
			results: []error{errTransient, errTransient, nil, errTransient, errTransient, errTransient},
			want:    []int{1, 4},
		},
		{
			name:    "plain errors are transient",
			results: []error{errors.New("dial tcp: refused"), nil},
			want:    []int{1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := &script{results: tt.results}
			var at []int
			p, sched := newTestPoller(DefaultConfig("issues", 10*time.Second), Hooks[int]{
				Fetch: sc.fetch,
				Notifier: NotifierFunc(func(n Notification) {
					assert.Equal(t, "Failed to refresh issues", n.Title)
					assert.Equal(t, RetryDescription, n.Description)
					at = append(at, sc.count())
				}),
			})

			p.Mount()
			p.Wait()
			for i := 1; i < len(tt.results); i++ {
				require.True(t, sched.fire(), "polling must continue after failure %d", i)
				p.Wait()
			}

			assert.Equal(t, tt.want, at)
			assert.Equal(t, StateScheduled, p.State())
		})
	}
}

func TestPoller_AuthFailureStopsAndRedirects(t *testing.T) {
	sc := &script{results: []error{nil, &backend.Error{Kind: backend.KindAuth, Message: "Authentication failed. Please log in again."}}}
	n := &notes{}
	redirected := 0
	p, sched := newTestPoller(DefaultConfig("contacts", 30*time.Second), Hooks[int]{
		Fetch:         sc.fetch,
		Notifier:      n,
		OnAuthFailure: func() { redirected++ },
	})

	p.Mount()
	p.Wait()
	require.True(t, sched.fire())
	p.Wait()

	assert.Equal(t, StateStopped, p.State())
	require.Equal(t, 1, n.len())
	assert.Equal(t, SessionExpiredTitle, n.got[0].Title)

	pending := sched.pending()
	require.Len(t, pending, 1)
	assert.Equal(t, 2*time.Second, pending[0].d)
	assert.Equal(t, 0, redirected)

	require.True(t, sched.fire())
	assert.Equal(t, 1, redirected)
	assert.Empty(t, sched.pending())

	// Polling never resumes.
	p.Refresh()
	p.SetPolling(true)
	p.Wait()
	assert.Equal(t, 2, sc.count())
}

func TestPoller_EscalationNeverDisables(t *testing.T) {
	active := []bool{true, false}
	var mu sync.Mutex
	call := 0
	cfg := DefaultConfig("jobs", 5*time.Second)
	cfg.Enabled = false

	p, sched := newTestPoller(cfg, Hooks[int]{
		Fetch: func(context.Context) (int, error) {
			mu.Lock()
			defer mu.Unlock()
			call++
			return call, nil
		},
		Escalate: func(v int) bool { return v <= len(active) && active[v-1] },
	})

	// The first result holds a PROCESSING job.
	p.Mount()
	p.Wait()
	assert.True(t, p.Polling())
	assert.Equal(t, StateScheduled, p.State())

	// The job completed; polling stays on.
	require.True(t, sched.fire())
	p.Wait()
	assert.True(t, p.Polling())
	assert.Equal(t, StateScheduled, p.State())

	// Only the caller turns it off.
	p.SetPolling(false)
	assert.False(t, p.Polling())
	assert.Empty(t, sched.pending())
}

func TestPoller_ActiveDataOverridesDisable(t *testing.T) {
	var mu sync.Mutex
	active := true
	sc := &script{}
	p, sched := newTestPoller(DefaultConfig("jobs", 5*time.Second), Hooks[int]{
		Fetch: sc.fetch,
		Escalate: func(int) bool {
			mu.Lock()
			defer mu.Unlock()
			return active
		},
	})

	p.Mount()
	p.Wait()

	p.SetPolling(false)
	assert.True(t, p.Polling())
	assert.Equal(t, StateScheduled, p.State())
	require.Len(t, sched.pending(), 1)

	// Once the data settles the caller may turn it off.
	mu.Lock()
	active = false
	mu.Unlock()
	require.True(t, sched.fire())
	p.Wait()

	p.SetPolling(false)
	assert.False(t, p.Polling())
	assert.Equal(t, StateIdle, p.State())
	assert.Empty(t, sched.pending())
}

func TestPoller_HoldAndRelease(t *testing.T) {
	sc := &script{}
	p, sched := newTestPoller(DefaultConfig("jobs", 5*time.Second), Hooks[int]{Fetch: sc.fetch})

	p.Mount()
	p.Wait()
	require.Len(t, sched.pending(), 1)

	p.Hold()
	assert.Empty(t, sched.pending())
	assert.True(t, p.Polling())

	p.Release()
	assert.Len(t, sched.pending(), 1)
	assert.Equal(t, StateScheduled, p.State())
}

func TestPoller_RefreshDuringFetchRunsAfter(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	calls := 0
	p, _ := newTestPoller(DefaultConfig("issues", 10*time.Second), Hooks[int]{
		Fetch: func(context.Context) (int, error) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n == 1 {
				<-release
			}
			return n, nil
		},
	})

	p.Mount()
	p.Refresh()
	assert.Equal(t, StateFetching, p.State())
	close(release)
	p.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls)
	v, ok := p.Data()
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}
