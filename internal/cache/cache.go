package cache

import (
	"context"
	"time"

	"gudangku/backend/internal/domain"
)

// CatalogCache holds barcode lookup results so batch scans do not hit the
// primary store for every repeated scan of the same label.
type CatalogCache interface {
	Get(ctx context.Context, barcode string) (*domain.SKU, bool, error)
	Set(ctx context.Context, barcode string, sku *domain.SKU, ttl time.Duration) error
}

type NoopCatalogCache struct{}

func (NoopCatalogCache) Get(_ context.Context, _ string) (*domain.SKU, bool, error) {
	return nil, false, nil
}

func (NoopCatalogCache) Set(_ context.Context, _ string, _ *domain.SKU, _ time.Duration) error {
	return nil
}
