package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type windowCounter interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimitService enforces fixed-window request quotas backed by redis.
// Counter failures fail open.
type RateLimitService struct {
	counter windowCounter
	limit   int64
	window  time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewRateLimitService builds a limiter allowing limit calls per window. A non-positive limit disables it.
func NewRateLimitService(counter windowCounter, limit int, window time.Duration, logger *zap.Logger) *RateLimitService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimitService{counter: counter, limit: int64(limit), window: window, logger: logger, now: time.Now}
}

// Allow reports whether subject may make another call in scope, and how long until the window resets.
func (s *RateLimitService) Allow(ctx context.Context, scope, subject string) (bool, time.Duration) {
	if s == nil || s.counter == nil || s.limit <= 0 {
		return true, 0
	}
	now := s.now()
	bucket := now.Truncate(s.window)
	key := fmt.Sprintf("ratelimit:%s:%s:%d", scope, subject, bucket.Unix())
	count, err := s.counter.IncrementWindow(ctx, key, s.window)
	if err != nil {
		s.logger.Warn("rate limit counter unavailable", zap.String("scope", scope), zap.Error(err))
		return true, 0
	}
	return count <= s.limit, bucket.Add(s.window).Sub(now)
}
