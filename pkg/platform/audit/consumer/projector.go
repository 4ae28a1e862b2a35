// Package consumer projects audit events published to Kafka into a queryable
// store so the per-event audit trail survives the broker's retention window.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "roster/pkg/platform/audit"
)

// Fetcher is the subset of *kgo.Client the projector needs. The client must be
// created with a consumer group and auto-commit disabled.
type Fetcher interface {
	PollFetches(ctx context.Context) kgo.Fetches
	CommitUncommittedOffsets(ctx context.Context) error
}

// Projector appends every consumed audit event to a store. Delivery is
// at-least-once: offsets are committed only after a batch is stored.
type Projector struct {
	fetcher    Fetcher
	store      audit.Store
	logger     *slog.Logger
	maxRetries int
	backoff    time.Duration
}

type Option func(*Projector)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Projector) {
		p.logger = logger
	}
}

// WithRetry bounds how often a failed append is retried before the record is
// skipped.
func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(p *Projector) {
		p.maxRetries = maxRetries
		p.backoff = backoff
	}
}

func NewProjector(fetcher Fetcher, store audit.Store, opts ...Option) *Projector {
	p := &Projector{
		fetcher:    fetcher,
		store:      store,
		logger:     slog.Default(),
		maxRetries: 3,
		backoff:    200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls until ctx is cancelled or the client is closed.
func (p *Projector) Run(ctx context.Context) error {
	for {
		fetches := p.fetcher.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.logger.ErrorContext(ctx, "audit fetch failed",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})
		p.Project(ctx, fetches.Records())
	}
}

// Project stores one batch and commits its offsets. Undecodable or
// unstorable records are logged and skipped.
func (p *Projector) Project(ctx context.Context, records []*kgo.Record) {
	if len(records) == 0 {
		return
	}
	for _, rec := range records {
		var event audit.Event
		if err := json.Unmarshal(rec.Value, &event); err != nil {
			p.logger.ErrorContext(ctx, "skipping malformed audit record",
				"topic", rec.Topic,
				"partition", rec.Partition,
				"offset", rec.Offset,
				"error", err,
			)
			continue
		}
		if err := p.appendWithRetry(ctx, event); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.ErrorContext(ctx, "dropping audit record after retries",
				"offset", rec.Offset,
				"action", event.Action,
				"event_id", event.EventID.String(),
				"error", err,
			)
		}
	}
	if err := p.fetcher.CommitUncommittedOffsets(ctx); err != nil && ctx.Err() == nil {
		p.logger.WarnContext(ctx, "audit offset commit failed", "error", err)
	}
}

func (p *Projector) appendWithRetry(ctx context.Context, event audit.Event) error {
	var err error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * p.backoff):
			}
		}
		if err = p.store.Append(ctx, event); err == nil {
			return nil
		}
	}
	return err
}
