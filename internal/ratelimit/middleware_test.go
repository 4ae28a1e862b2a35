package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "roster/pkg/domain"
	"roster/pkg/platform/circuit"
	"roster/pkg/requestcontext"
)

type brokenStore struct{ calls int }

func (b *brokenStore) Allow(context.Context, string, int, time.Duration) (*Result, error) {
	b.calls++
	return nil, errors.New("redis: connection refused")
}

type MiddlewareSuite struct {
	suite.Suite
	user   id.UserID
	served int
}

func TestMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(MiddlewareSuite))
}

func (s *MiddlewareSuite) SetupTest() {
	s.user = id.UserID(uuid.New())
	s.served = 0
}

func (s *MiddlewareSuite) handler(m *Middleware) http.Handler {
	return m.Mutations(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.served++
		w.WriteHeader(http.StatusCreated)
	}))
}

func (s *MiddlewareSuite) do(h http.Handler, method string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/events/x/registrations", nil)
	req = req.WithContext(requestcontext.WithUserID(req.Context(), s.user))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func (s *MiddlewareSuite) TestDeniesPastTheLimit() {
	h := s.handler(New(NewInMemory(), 2, time.Minute))

	s.Equal(http.StatusCreated, s.do(h, http.MethodPost).Code)
	rec := s.do(h, http.MethodDelete)
	s.Equal(http.StatusCreated, rec.Code)
	s.Equal("2", rec.Header().Get("X-RateLimit-Limit"))
	s.Equal("0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = s.do(h, http.MethodPost)
	s.Equal(http.StatusTooManyRequests, rec.Code)
	s.NotEmpty(rec.Header().Get("Retry-After"))
	s.Contains(rec.Body.String(), "rate_limited")
	s.Equal(2, s.served)
}

func (s *MiddlewareSuite) TestReadsAreNotCounted() {
	h := s.handler(New(NewInMemory(), 1, time.Minute))
	for range 3 {
		s.do(h, http.MethodGet)
	}
	s.Equal(http.StatusCreated, s.do(h, http.MethodPost).Code)
	s.Empty(s.do(h, http.MethodGet).Header().Get("X-RateLimit-Limit"))
}

func (s *MiddlewareSuite) TestFailsOpenWithoutFallback() {
	h := s.handler(New(&brokenStore{}, 1, time.Minute))
	s.Equal(http.StatusCreated, s.do(h, http.MethodPost).Code)
	s.Equal(http.StatusCreated, s.do(h, http.MethodPost).Code)
}

func (s *MiddlewareSuite) TestFallsBackWhilePrimaryIsDown() {
	primary := &brokenStore{}
	m := New(primary, 1, time.Minute,
		WithFallback(NewInMemory()),
		WithBreaker(circuit.New("test", circuit.WithFailureThreshold(1), circuit.WithCooldown(time.Hour))),
	)
	h := s.handler(m)

	rec := s.do(h, http.MethodPost)
	s.Equal(http.StatusCreated, rec.Code)
	s.Equal("degraded", rec.Header().Get("X-RateLimit-Status"))

	rec = s.do(h, http.MethodPost)
	s.Equal(http.StatusTooManyRequests, rec.Code, "fallback still enforces the limit")
	s.Equal(1, primary.calls, "open breaker skips the primary")
}
