package storage

import (
	"context"
	"time"
)

const rateKeyPrefix = "ratelimit:"

// AllowEvent counts one event under key and reports whether the count is
// still within limit for the current window. Without Redis everything is allowed.
func (s *Service) AllowEvent(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if s.Redis == nil || limit <= 0 || window <= 0 {
		return true, nil
	}

	pipe := s.Redis.Pipeline()
	incr := pipe.Incr(ctx, rateKeyPrefix+key)
	pipe.ExpireNX(ctx, rateKeyPrefix+key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, err
	}

	return incr.Val() <= int64(limit), nil
}
