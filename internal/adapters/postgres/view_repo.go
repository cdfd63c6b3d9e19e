package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/ndvigrid/internal/core/domain"
	"github.com/samirrijal/ndvigrid/internal/core/ports"
)

// ViewStateRepo implements ports.ViewStateRepository.
type ViewStateRepo struct {
	db *DB
}

var _ ports.ViewStateRepository = (*ViewStateRepo)(nil)

func NewViewStateRepo(db *DB) *ViewStateRepo {
	return &ViewStateRepo{db: db}
}

func (r *ViewStateRepo) Save(ctx context.Context, gridID string, vs domain.ViewState) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO grid_views (grid_id, lat, lng, zoom, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (grid_id) DO UPDATE
		SET lat = EXCLUDED.lat, lng = EXCLUDED.lng, zoom = EXCLUDED.zoom, updated_at = now()
	`, gridID, vs.Center.Lat, vs.Center.Lng, vs.Zoom)
	return err
}

// Load returns nil when the grid has no saved view.
func (r *ViewStateRepo) Load(ctx context.Context, gridID string) (*domain.ViewState, error) {
	vs := &domain.ViewState{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT lat, lng, zoom FROM grid_views WHERE grid_id = $1
	`, gridID).Scan(&vs.Center.Lat, &vs.Center.Lng, &vs.Zoom)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return vs, nil
}
