package postgres

import (
	"context"
	"fmt"
)

// Observe records a (link, area, genre) observation, ignoring repeats.
func (s *Store) Observe(ctx context.Context, link, areaCode, genreCode string) (bool, error) {
	query := `
		INSERT INTO shop_catlog (link, area, genre, create_time, update_time)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (link, area, genre) DO NOTHING;
	`
	tag, err := s.pool.Exec(ctx, query, link, areaCode, genreCode, s.clock.Now())
	if err != nil {
		return false, fmt.Errorf("failed to insert catalog entry: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
