package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type InMemorySuite struct {
	suite.Suite
	ctx   context.Context
	clock time.Time
	store *InMemory
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	s.store = NewInMemory()
	s.store.now = func() time.Time { return s.clock }
}

func (s *InMemorySuite) TestCountsDownToTheLimit() {
	for want := 2; want >= 0; want-- {
		res, err := s.store.Allow(s.ctx, "user:a", 3, time.Minute)
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.Equal(want, res.Remaining)
		s.Equal(3, res.Limit)
	}

	res, err := s.store.Allow(s.ctx, "user:a", 3, time.Minute)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Equal(60, res.RetryAfter)
}

func (s *InMemorySuite) TestKeysAreIndependent() {
	_, _ = s.store.Allow(s.ctx, "user:a", 1, time.Minute)
	res, err := s.store.Allow(s.ctx, "user:b", 1, time.Minute)
	s.Require().NoError(err)
	s.True(res.Allowed)
}

func (s *InMemorySuite) TestWindowSlides() {
	_, _ = s.store.Allow(s.ctx, "user:a", 2, time.Minute)
	s.clock = s.clock.Add(30 * time.Second)
	_, _ = s.store.Allow(s.ctx, "user:a", 2, time.Minute)

	res, _ := s.store.Allow(s.ctx, "user:a", 2, time.Minute)
	s.False(res.Allowed)
	s.Equal(30, res.RetryAfter, "oldest hit leaves the window in 30s")

	s.clock = s.clock.Add(30 * time.Second)
	res, _ = s.store.Allow(s.ctx, "user:a", 2, time.Minute)
	s.True(res.Allowed)
	s.Equal(0, res.Remaining)
}
