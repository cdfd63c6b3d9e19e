package ports

import (
	"context"
	"errors"

	"github.com/samirrijal/ndvigrid/internal/core/domain"
)

// EventPublisher publishes view changes to a message broker.
type EventPublisher interface {
	PublishViewChange(ctx context.Context, change *domain.ViewChange) error
}

// EventSubscriber subscribes to view changes from a message broker.
type EventSubscriber interface {
	SubscribeViewChanges(ctx context.Context, gridID string, handler func(ctx context.Context, change *domain.ViewChange) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// ErrCacheMiss is returned by CacheService.Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// PrewarmScheduler starts background tile prewarming runs.
type PrewarmScheduler interface {
	StartPrewarm(ctx context.Context, req domain.PrewarmRequest) (runID string, err error)
}
