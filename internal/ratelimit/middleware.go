package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	dErrors "roster/pkg/domain-errors"
	"roster/pkg/platform/circuit"
	"roster/pkg/platform/httputil"
	"roster/pkg/requestcontext"
)

// Middleware limits POST, PUT, PATCH and DELETE requests per caller. Reads
// pass through. When the primary store keeps failing, checks move to the
// fallback and responses carry X-RateLimit-Status: degraded.
type Middleware struct {
	primary  Store
	fallback Store
	breaker  *circuit.Breaker
	limit    int
	window   time.Duration
	logger   *slog.Logger
}

type Option func(*Middleware)

func WithFallback(store Store) Option {
	return func(m *Middleware) {
		m.fallback = store
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(m *Middleware) {
		m.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) {
		m.logger = logger
	}
}

func New(primary Store, limit int, window time.Duration, opts ...Option) *Middleware {
	m := &Middleware{
		primary: primary,
		limit:   limit,
		window:  window,
		breaker: circuit.New("ratelimit"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Middleware) Mutations(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		key := callerKey(r)
		result, degraded, err := m.check(ctx, key)
		if err != nil {
			// Fail open: an unavailable limiter must not block registrations.
			m.logger.ErrorContext(ctx, "rate limit check failed",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			next.ServeHTTP(w, r)
			return
		}

		setHeaders(w, result)
		if degraded {
			w.Header().Set("X-RateLimit-Status", "degraded")
		}
		if !result.Allowed {
			m.logger.WarnContext(ctx, "rate limit exceeded",
				"caller", key,
				"request_id", requestcontext.RequestID(ctx),
			)
			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
			httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many requests, try again later"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) check(ctx context.Context, key string) (*Result, bool, error) {
	if m.fallback == nil {
		result, err := m.primary.Allow(ctx, key, m.limit, m.window)
		return result, false, err
	}
	if m.breaker.Allow() {
		result, err := m.primary.Allow(ctx, key, m.limit, m.window)
		if err == nil {
			if _, change := m.breaker.RecordSuccess(); change.Closed {
				m.logger.InfoContext(ctx, "rate limit store recovered")
			}
			return result, false, nil
		}
		if _, change := m.breaker.RecordFailure(); change.Opened {
			m.logger.WarnContext(ctx, "rate limit store unavailable, using in-memory fallback", "error", err)
		}
	}
	result, err := m.fallback.Allow(ctx, key, m.limit, m.window)
	return result, true, err
}

func callerKey(r *http.Request) string {
	if user := requestcontext.UserID(r.Context()); !user.IsNil() {
		return "user:" + user.String()
	}
	return "addr:" + r.RemoteAddr
}

func setHeaders(w http.ResponseWriter, result *Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
