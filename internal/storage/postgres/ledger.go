package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/catalog-harvester/internal/crawler"
)

// NeedsWork reports whether the target still has uncollected items. A
// soft-deleted row is retired and never needs work.
func (s *Store) NeedsWork(ctx context.Context, url string) (crawler.Progress, error) {
	query := `
		SELECT get_count, skip_count, total_count, is_deleted
		FROM shop_list_summary
		WHERE url = $1;
	`
	var getCount, skipCount, totalCount int
	var deleted bool
	err := s.pool.QueryRow(ctx, query, url).Scan(&getCount, &skipCount, &totalCount, &deleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.Progress{NeedsWork: true}, nil
		}
		return crawler.Progress{}, fmt.Errorf("failed to read progress: %w", err)
	}
	if deleted {
		return crawler.RetiredProgress(getCount, skipCount, totalCount), nil
	}
	return crawler.EvaluateProgress(getCount, skipCount, totalCount), nil
}

// RecordMeasuredTotal inserts the target or refreshes its total in one statement.
func (s *Store) RecordMeasuredTotal(ctx context.Context, target crawler.CrawlTarget, total int) error {
	query := `
		INSERT INTO shop_list_summary (url, parent_area_code, area, genre, total_count, create_time, update_time)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (url) DO UPDATE
		SET total_count = EXCLUDED.total_count, update_time = EXCLUDED.update_time
		WHERE shop_list_summary.is_deleted = FALSE;
	`
	_, err := s.pool.Exec(ctx, query,
		target.URL,
		target.ParentAreaCode,
		target.AreaCode,
		target.GenreCode,
		total,
		s.clock.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to record measured total: %w", err)
	}
	return nil
}

// IncrementGet counts one newly stored item.
func (s *Store) IncrementGet(ctx context.Context, url string) error {
	query := `
		UPDATE shop_list_summary
		SET get_count = get_count + 1, update_time = $1
		WHERE url = $2 AND is_deleted = FALSE;
	`
	if _, err := s.pool.Exec(ctx, query, s.clock.Now(), url); err != nil {
		return fmt.Errorf("failed to increment get count: %w", err)
	}
	return nil
}

// IncrementSkip counts one item that was already stored.
func (s *Store) IncrementSkip(ctx context.Context, url string) error {
	query := `
		UPDATE shop_list_summary
		SET skip_count = skip_count + 1, update_time = $1
		WHERE url = $2 AND is_deleted = FALSE;
	`
	if _, err := s.pool.Exec(ctx, query, s.clock.Now(), url); err != nil {
		return fmt.Errorf("failed to increment skip count: %w", err)
	}
	return nil
}
