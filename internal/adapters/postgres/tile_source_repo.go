package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/ndvigrid/internal/core/domain"
	"github.com/samirrijal/ndvigrid/internal/core/ports"
)

// TileSourceRepo implements ports.TileSourceRepository.
type TileSourceRepo struct {
	db *DB
}

var _ ports.TileSourceRepository = (*TileSourceRepo)(nil)

func NewTileSourceRepo(db *DB) *TileSourceRepo {
	return &TileSourceRepo{db: db}
}

func (r *TileSourceRepo) Upsert(ctx context.Context, src *domain.TileSource) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO tile_sources (id, title, year, url_template)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title, year = EXCLUDED.year,
		    url_template = EXCLUDED.url_template, updated_at = now()
	`, src.ID, src.Title, src.Year, src.URLTemplate)
	return err
}

// UpsertBatch seeds sources with pgx.Batch. Existing rows are kept so
// catalog edits survive restarts.
func (r *TileSourceRepo) UpsertBatch(ctx context.Context, sources []domain.TileSource) error {
	batch := &pgx.Batch{}
	for _, src := range sources {
		batch.Queue(`
			INSERT INTO tile_sources (id, title, year, url_template)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING
		`, src.ID, src.Title, src.Year, src.URLTemplate)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range sources {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}

// List returns sources ordered by year, then id.
func (r *TileSourceRepo) List(ctx context.Context) ([]domain.TileSource, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, title, year, url_template
		FROM tile_sources ORDER BY year, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []domain.TileSource
	for rows.Next() {
		var s domain.TileSource
		if err := rows.Scan(&s.ID, &s.Title, &s.Year, &s.URLTemplate); err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}
