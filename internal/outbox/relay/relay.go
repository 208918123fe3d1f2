// Package relay moves committed outbox events to the message broker.
// Delivery is at-least-once: a crash between publish and commit republishes
// the batch, so consumers deduplicate on the event_id header.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"geoscore/internal/outbox/metrics"
	"geoscore/internal/outbox/models"
	"geoscore/pkg/platform/tx"
)

// Store is the outbox persistence port used by the relay.
type Store interface {
	FetchUnpublished(ctx context.Context, limit int) ([]*models.Event, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
	CountUnpublished(ctx context.Context) (int, error)
}

const (
	defaultInterval  = 2 * time.Second
	defaultBatchSize = 100
)

type Relay struct {
	store     Store
	tx        tx.Runner
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Option func(*Relay)

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		r.now = now
	}
}

func New(store Store, runner tx.Runner, publisher Publisher, opts ...Option) *Relay {
	r := &Relay{
		store:     store,
		tx:        runner,
		publisher: publisher,
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drains the outbox every interval until ctx is cancelled. Publish
// failures are logged and retried on the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := r.Drain(ctx); err != nil && ctx.Err() == nil {
				r.logger.WarnContext(ctx, "outbox relay tick failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Drain relays batches until the outbox is empty or a batch fails.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.RelayOnce(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if n < r.batchSize {
			break
		}
	}
	if backlog, err := r.store.CountUnpublished(ctx); err == nil {
		r.metrics.SetBacklog(backlog)
	}
	return total, nil
}

// RelayOnce publishes one batch and marks it published in the same
// transaction that locked it.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	published := 0
	err := r.tx.RunInTx(ctx, func(ctx context.Context) error {
		events, err := r.store.FetchUnpublished(ctx, r.batchSize)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		if err := r.publisher.Publish(ctx, events); err != nil {
			r.metrics.IncrementPublishError()
			return errors.Join(errPublish, err)
		}
		ids := make([]uuid.UUID, len(events))
		for i, evt := range events {
			ids[i] = evt.ID
		}
		if err := r.store.MarkPublished(ctx, ids, r.now()); err != nil {
			return err
		}
		published = len(events)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if published > 0 {
		r.metrics.AddPublished(published)
		r.logger.DebugContext(ctx, "outbox batch relayed", "count", published)
	}
	return published, nil
}

var errPublish = errors.New("outbox publish failed")
