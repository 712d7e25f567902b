package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/catalog-harvester/internal/crawler"
)

const selectAreasSQL = `
		SELECT code, name, level, COALESCE(parent_code, ''), COALESCE(href, ''), priority
		FROM area
		WHERE is_deleted = FALSE
		AND level >= 3
		AND priority >= $1
		ORDER BY priority DESC, id ASC;
	`

const selectLeafGenresSQL = `
		SELECT g.code, g.name, g.level, COALESCE(g.parent_code, '')
		FROM genre AS g
		WHERE NOT EXISTS (
			SELECT 1 FROM genre AS child WHERE child.parent_code = g.code
		)
		AND g.is_deleted = FALSE
		ORDER BY g.code ASC;
	`

// EligibleAreas returns leaf areas at or above minPriority.
func (s *Store) EligibleAreas(ctx context.Context, minPriority int) ([]crawler.AreaNode, error) {
	rows, err := s.pool.Query(ctx, selectAreasSQL, minPriority)
	if err != nil {
		return nil, fmt.Errorf("failed to select areas: %w", err)
	}
	defer rows.Close()

	var areas []crawler.AreaNode
	for rows.Next() {
		var area crawler.AreaNode
		if err := rows.Scan(&area.Code, &area.Name, &area.Level, &area.ParentCode, &area.Href, &area.Priority); err != nil {
			return nil, fmt.Errorf("failed to scan area row: %w", err)
		}
		areas = append(areas, area)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate areas: %w", err)
	}
	return areas, nil
}

// LeafGenres returns the genres no other genre references as parent.
func (s *Store) LeafGenres(ctx context.Context) ([]crawler.GenreNode, error) {
	rows, err := s.pool.Query(ctx, selectLeafGenresSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to select genres: %w", err)
	}
	defer rows.Close()

	var genres []crawler.GenreNode
	for rows.Next() {
		var genre crawler.GenreNode
		if err := rows.Scan(&genre.Code, &genre.Name, &genre.Level, &genre.ParentCode); err != nil {
			return nil, fmt.Errorf("failed to scan genre row: %w", err)
		}
		genres = append(genres, genre)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate genres: %w", err)
	}
	return genres, nil
}
