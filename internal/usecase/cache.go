package usecase

import (
	"context"
	"time"
)

// Cache is the subset of the Redis wrapper the usecases rely on. Every
// method must degrade to a miss when the backend is unavailable.
type Cache interface {
	GetJSON(ctx context.Context, key string, out any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

const (
	StatusCacheKey   = "jobpulse:status"
	RecheckKeyPrefix = "jobpulse:validated:"
)

func recheckKey(naturalID string) string {
	return RecheckKeyPrefix + naturalID
}
