package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Notifier sends a text to one chat.
type Notifier interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// Committer persists the delivery cursor.
type Committer interface {
	Commit(ctx context.Context, indexID int64) (bool, error)
}

// Config tunes the worker.
type Config struct {
	// Concurrency bounds parallel sends within one item.
	Concurrency int
	// RateLimit is the maximum sends per second; zero disables limiting.
	RateLimit int
}

// Stats counts what the worker did so far.
type Stats struct {
	Items  int64
	Sent   int64
	Failed int64
}

// Worker is the single consumer of a Queue. Items are handled strictly in
// queue order; the sends of one item fan out over a pond pool and the cursor
// is committed once all of them were attempted.
type Worker struct {
	queue    *Queue
	notifier Notifier
	cursor   Committer
	limiter  *rate.Limiter
	pool     pond.Pool
	logger   *zap.Logger

	items  atomic.Int64
	sent   atomic.Int64
	failed atomic.Int64
}

// NewWorker builds a worker over queue.
func NewWorker(queue *Queue, notifier Notifier, cursor Committer, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	limit := rate.Inf
	burst := 1
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		burst = cfg.RateLimit
	}

	return &Worker{
		queue:    queue,
		notifier: notifier,
		cursor:   cursor,
		limiter:  rate.NewLimiter(limit, burst),
		pool:     pond.NewPool(cfg.Concurrency),
		logger:   logger,
	}
}

// Run consumes items until the queue is closed and drained, or ctx is done.
// A cursor commit failure is returned and stops the worker.
func (w *Worker) Run(ctx context.Context) error {
	defer w.pool.StopAndWait()

	for {
		select {
		case <-ctx.Done():
			w.logger.Warn("Delivery worker stopped before the queue drained", zap.Int("pending", w.queue.Len()))
			return ctx.Err()
		case item, ok := <-w.queue.items:
			if !ok {
				w.logger.Info("Delivery queue drained")
				return nil
			}
			if err := w.deliver(ctx, item); err != nil {
				return err
			}
		}
	}
}

// Stats returns the running counters.
func (w *Worker) Stats() Stats {
	return Stats{Items: w.items.Load(), Sent: w.sent.Load(), Failed: w.failed.Load()}
}

func (w *Worker) deliver(ctx context.Context, item Item) error {
	if len(item.Recipients) > 0 {
		group := w.pool.NewGroupContext(ctx)
		groupCtx := group.Context()

		for _, chatID := range item.Recipients {
			group.Submit(func() {
				if err := w.limiter.Wait(groupCtx); err != nil {
					return
				}
				if err := w.notifier.SendText(groupCtx, chatID, item.Text); err != nil {
					w.failed.Add(1)
					w.logger.Warn("Failed to deliver notification",
						zap.Int64("index_id", item.IndexID),
						zap.Int64("chat_id", chatID),
						zap.Error(err))
					return
				}
				w.sent.Add(1)
			})
		}

		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
			w.logger.Warn("Delivery group encountered error", zap.Int64("index_id", item.IndexID), zap.Error(err))
		}
	}

	// Sends that never started must be retried by the next catch-up.
	if err := ctx.Err(); err != nil {
		return err
	}

	moved, err := w.cursor.Commit(ctx, item.IndexID)
	if err != nil {
		return fmt.Errorf("commit cursor %d: %w", item.IndexID, err)
	}
	w.items.Add(1)
	w.logger.Debug("Delivered account update",
		zap.Int64("index_id", item.IndexID),
		zap.Int("recipients", len(item.Recipients)),
		zap.Bool("cursor_moved", moved))
	return nil
}
