package cache

import (
	"context"
	"fmt"
	"time"
)

// LoginLimiter throttles password attempts per email address with a
// fixed window counter. When Redis is disabled the counter always reads
// zero and the limiter admits everything.
type LoginLimiter struct {
	cache  *Service
	limit  int64
	window time.Duration
}

func NewLoginLimiter(cache *Service) *LoginLimiter {
	return &LoginLimiter{
		cache:  cache,
		limit:  10,
		window: 15 * time.Minute,
	}
}

// Allow records one attempt and reports whether it may proceed. A
// limiter backed by an unreachable Redis fails open; the password check
// itself is the real gate.
func (l *LoginLimiter) Allow(ctx context.Context, email string) bool {
	count, err := l.cache.Increment(ctx, fmt.Sprintf("login_attempts:%s", email), l.window)
	if err != nil {
		l.cache.logger.Warn("login limiter unavailable", "error", err)
		return true
	}
	return count <= l.limit
}

// Reset clears the counter after a successful login.
func (l *LoginLimiter) Reset(ctx context.Context, email string) {
	if err := l.cache.Delete(ctx, fmt.Sprintf("login_attempts:%s", email)); err != nil {
		l.cache.logger.Warn("login limiter reset failed", "error", err)
	}
}
