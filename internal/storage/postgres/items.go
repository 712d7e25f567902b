package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/catalog-harvester/internal/crawler"
)

// Exists reports whether a live record for url is stored.
func (s *Store) Exists(ctx context.Context, url string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM shops WHERE url = $1 AND is_deleted = FALSE);`
	var exists bool
	if err := s.pool.QueryRow(ctx, query, url).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check shop: %w", err)
	}
	return exists, nil
}

// Upsert writes the record in one atomic statement; the latest fetch wins.
// xmax is zero only for a freshly inserted tuple.
func (s *Store) Upsert(ctx context.Context, record crawler.ItemRecord) (crawler.UpsertOutcome, error) {
	if record.URL == "" {
		return "", fmt.Errorf("record url is required")
	}
	query := `
		INSERT INTO shops (
			name, url, score, reviews, prefecture, city, town, detail, full_address, phone,
			category, budget, payment, seats, open_date, area, genre,
			is_deleted, create_time, update_time
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,FALSE,$18,$18
		)
		ON CONFLICT (url) DO UPDATE SET
			name = EXCLUDED.name,
			score = EXCLUDED.score,
			reviews = EXCLUDED.reviews,
			prefecture = EXCLUDED.prefecture,
			city = EXCLUDED.city,
			town = EXCLUDED.town,
			detail = EXCLUDED.detail,
			full_address = EXCLUDED.full_address,
			phone = EXCLUDED.phone,
			category = EXCLUDED.category,
			budget = EXCLUDED.budget,
			payment = EXCLUDED.payment,
			seats = EXCLUDED.seats,
			open_date = EXCLUDED.open_date,
			area = EXCLUDED.area,
			genre = EXCLUDED.genre,
			is_deleted = FALSE,
			update_time = EXCLUDED.update_time
		RETURNING (xmax = 0) AS inserted;
	`
	args := []any{
		record.Name,
		record.URL,
		record.Score,
		record.Reviews,
		record.Prefecture,
		record.City,
		record.Town,
		record.AddressDetail,
		record.FullAddress,
		record.Phone,
		record.Category,
		record.Budget,
		record.Payment,
		record.Seats,
		record.OpenDate,
		record.AreaCode,
		record.GenreCode,
		s.clock.Now(),
	}
	var inserted bool
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&inserted); err != nil {
		return "", fmt.Errorf("failed to upsert shop: %w", err)
	}
	if inserted {
		return crawler.UpsertInserted, nil
	}
	return crawler.UpsertUpdated, nil
}
