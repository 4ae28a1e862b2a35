// Package failover routes audit events to a primary sink and falls back to a
// secondary one while the primary is failing.
package failover

import (
	"context"
	"log/slog"

	id "roster/pkg/domain"
	audit "roster/pkg/platform/audit"
	"roster/pkg/platform/circuit"
)

// Store writes every event exactly once: to the primary when the breaker
// allows it and the write succeeds, otherwise to the fallback.
type Store struct {
	primary  audit.Store
	fallback audit.Store
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Store) {
		s.breaker = b
	}
}

func New(primary, fallback audit.Store, opts ...Option) *Store {
	s := &Store{
		primary:  primary,
		fallback: fallback,
		breaker:  circuit.New("audit-sink"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if s.breaker.Allow() {
		err := s.primary.Append(ctx, event)
		if err == nil {
			if _, change := s.breaker.RecordSuccess(); change.Closed {
				s.logger.InfoContext(ctx, "primary audit sink recovered", "breaker", s.breaker.Name())
			}
			return nil
		}
		if _, change := s.breaker.RecordFailure(); change.Opened {
			s.logger.WarnContext(ctx, "primary audit sink unavailable, diverting to fallback",
				"breaker", s.breaker.Name(),
				"error", err,
			)
		} else {
			s.logger.WarnContext(ctx, "primary audit sink append failed",
				"error", err,
				"action", event.Action,
				"event_id", event.EventID.String(),
			)
		}
	}
	return s.fallback.Append(ctx, event)
}

// ListByEvent reads from the fallback, which is the durable, queryable side.
func (s *Store) ListByEvent(ctx context.Context, eventID id.EventID) ([]audit.Event, error) {
	reader, ok := s.fallback.(audit.Reader)
	if !ok {
		return nil, errNoReader
	}
	return reader.ListByEvent(ctx, eventID)
}

// Degraded reports whether events are currently diverted.
func (s *Store) Degraded() bool {
	return s.breaker.IsOpen()
}
