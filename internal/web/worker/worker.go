package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SessionPruner deletes expired sessions.
type SessionPruner interface {
	DeleteExpired() (int64, error)
}

// JournalPruner deletes journal entries older than a cutoff.
type JournalPruner interface {
	Prune(ctx context.Context, maxAge time.Duration) (int, error)
}

// Worker runs periodic housekeeping in the background
type Worker struct {
	sessions SessionPruner
	journal  JournalPruner
	logger   *slog.Logger

	interval  time.Duration
	retention time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds worker configuration
type Config struct {
	Interval  time.Duration
	Retention time.Duration
}

// DefaultConfig returns default worker configuration
func DefaultConfig() Config {
	return Config{
		Interval:  time.Hour,
		Retention: 90 * 24 * time.Hour,
	}
}

// New creates a new worker. A nil journal skips journal pruning.
func New(sessions SessionPruner, journal JournalPruner, logger *slog.Logger, cfg Config) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}

	return &Worker{
		sessions:  sessions,
		journal:   journal,
		logger:    logger.With("component", "worker"),
		interval:  cfg.Interval,
		retention: cfg.Retention,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start starts the worker
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.run()
	w.logger.Info("worker started", "interval", w.interval, "retention", w.retention)
}

// Stop stops the worker gracefully
func (w *Worker) Stop() {
	w.logger.Info("stopping worker...")
	w.cancel()
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

func (w *Worker) run() {
	defer w.wg.Done()

	w.sweep()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

// sweep removes expired sessions and old journal entries.
func (w *Worker) sweep() {
	if w.sessions != nil {
		n, err := w.sessions.DeleteExpired()
		if err != nil {
			w.logger.Error("failed to delete expired sessions", "error", err)
		} else if n > 0 {
			w.logger.Info("deleted expired sessions", "count", n)
		}
	}

	if w.journal != nil && w.retention > 0 {
		n, err := w.journal.Prune(w.ctx, w.retention)
		if err != nil {
			w.logger.Error("failed to prune journal", "error", err)
		} else if n > 0 {
			w.logger.Info("pruned journal", "count", n)
		}
	}
}
