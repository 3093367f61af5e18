// Package cache holds the listing cache in front of catalog and dropdown
// reads. Mutating a catalog entity invalidates its prefix so every admin
// screen re-renders against fresh data.
package cache

import (
	"context"
	"time"
)

type ListingCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, prefix string) error
}

type NoopListingCache struct{}

func (NoopListingCache) Get(_ context.Context, _ string) ([]byte, bool, error) {
	return nil, false, nil
}

func (NoopListingCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return nil
}

func (NoopListingCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
