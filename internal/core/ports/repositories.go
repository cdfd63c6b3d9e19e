package ports

import (
	"context"

	"github.com/samirrijal/ndvigrid/internal/core/domain"
)

// ViewStateRepository persists the last settled view state of a grid.
type ViewStateRepository interface {
	Save(ctx context.Context, gridID string, vs domain.ViewState) error
	Load(ctx context.Context, gridID string) (*domain.ViewState, error)
}

// TileSourceRepository stores the catalog of yearly tile sources.
type TileSourceRepository interface {
	Upsert(ctx context.Context, src *domain.TileSource) error
	List(ctx context.Context) ([]domain.TileSource, error)
}
