package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fclairamb/ghsync/internal/mirror"
	"github.com/fclairamb/ghsync/internal/store"
)

// SyncWorker runs mirror syncs in the background when notified.
type SyncWorker struct {
	mirror       *mirror.Mirror
	store        store.Store
	remoteConfig *store.RemoteConfig
	logger       *slog.Logger
	syncDelay    time.Duration
	notify       chan struct{}
}

// SyncWorkerOption configures the SyncWorker.
type SyncWorkerOption func(*SyncWorker)

// WithSyncDelay sets the debounce delay before syncing.
// This allows multiple rapid notifications to coalesce into a single sync.
func WithSyncDelay(d time.Duration) SyncWorkerOption {
	return func(w *SyncWorker) {
		w.syncDelay = d
	}
}

// NewSyncWorker creates a new sync worker.
func NewSyncWorker(
	m *mirror.Mirror,
	st store.Store,
	remoteConfig *store.RemoteConfig,
	logger *slog.Logger,
	opts ...SyncWorkerOption,
) *SyncWorker {
	worker := &SyncWorker{
		mirror:       m,
		store:        st,
		remoteConfig: remoteConfig,
		logger:       logger,
		notify:       make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(worker)
	}

	return worker
}

// Notify signals that there is new work to process.
// This is non-blocking - if a notification is already pending, it's a no-op.
func (w *SyncWorker) Notify() {
	select {
	case w.notify <- struct{}{}:
		w.logger.Debug("sync worker notified")
	default:
		w.logger.Debug("sync worker notification skipped (already pending)")
	}
}

// Start runs the sync worker until the context is canceled.
// This method blocks and should be called in a goroutine.
func (w *SyncWorker) Start(ctx context.Context) {
	w.logger.InfoContext(ctx, "sync worker started", "sync_delay", w.syncDelay)

	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "sync worker stopping")
			return
		case <-w.notify:
			if err := w.processWithDelay(ctx); err != nil {
				// A failed sync is retried on the next push event.
				w.logger.ErrorContext(ctx, "sync failed", "error", err)
			}
		}
	}
}

// processWithDelay waits for the sync delay (if configured) then runs the sync.
func (w *SyncWorker) processWithDelay(ctx context.Context) error {
	if w.syncDelay > 0 {
		w.logger.DebugContext(ctx, "waiting for sync delay", "delay", w.syncDelay)

		timer := time.NewTimer(w.syncDelay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			// Continue to process
		}
	}

	return w.runSync(ctx)
}

// runSync mirrors the remote tree into the local store and pushes the
// resulting commit when a remote is configured.
func (w *SyncWorker) runSync(ctx context.Context) error {
	result, err := w.mirror.Sync(ctx)
	if err != nil {
		return fmt.Errorf("mirror sync: %w", err)
	}

	if result.Written == 0 && result.Deleted == 0 {
		return nil
	}

	if w.remoteConfig.IsPushEnabled() {
		if err := w.pushWithRetry(ctx); err != nil {
			return fmt.Errorf("push to remote: %w", err)
		}
	}

	return nil
}

// pushWithRetry attempts to push to remote with exponential backoff retry logic.
func (w *SyncWorker) pushWithRetry(ctx context.Context) error {
	const (
		maxRetries    = 3
		initialDelay  = 5 * time.Second
		backoffFactor = 2.0
	)

	var lastErr error
	delay := initialDelay

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			w.logger.InfoContext(ctx, "retrying push after delay",
				"attempt", attempt,
				"max_attempts", maxRetries,
				"delay", delay,
				"previous_error", lastErr)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
				// Continue to retry
			}
		}

		if err := w.store.Push(ctx); err != nil {
			lastErr = err
			w.logger.WarnContext(ctx, "push failed",
				"attempt", attempt+1,
				"max_attempts", maxRetries+1,
				"error", err)

			if attempt < maxRetries {
				delay = time.Duration(float64(delay) * backoffFactor)
			}
			continue
		}

		if attempt > 0 {
			w.logger.InfoContext(ctx, "push succeeded after retry", "attempt", attempt+1)
		}
		return nil
	}

	return fmt.Errorf("push failed after %d attempts: %w", maxRetries+1, lastErr)
}
