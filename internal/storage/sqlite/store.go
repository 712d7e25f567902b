// Package sqlite provides a single-file SQLite implementation of crawler.Store
// using the pure-Go modernc driver. Its tables match the Postgres schema.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/catalog-harvester/internal/crawler"
)

// TimeLayout is how timestamps are written to TEXT columns. The fixed-width
// fraction keeps values sortable as text.
const TimeLayout = "2006-01-02 15:04:05.000000000"

// Store implements crawler.Store on SQLite.
type Store struct {
	db    *sql.DB
	clock crawler.Clock
	// upsertMu makes the existence check and the upsert one step.
	upsertMu sync.Mutex
}

var _ crawler.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path, applies pragmas and
// ensures the schema exists. ":memory:" yields a private in-memory database.
func Open(ctx context.Context, path string, clock crawler.Clock) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store.sqlite_path is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One connection: every ":memory:" connection is a separate database, and
	// SQLite has a single writer anyway.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: exec schema: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &Store{db: db, clock: clock}, nil
}

// DB exposes the handle for seeding and inspection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping checks that the database file is usable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) now() string {
	return s.clock.Now().UTC().Format(TimeLayout)
}

// EligibleAreas returns leaf areas at or above minPriority.
func (s *Store) EligibleAreas(ctx context.Context, minPriority int) ([]crawler.AreaNode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, name, level, COALESCE(parent_code, ''), COALESCE(href, ''), priority
		FROM area
		WHERE is_deleted = 0 AND level >= 3 AND priority >= ?
		ORDER BY priority DESC, id ASC`, minPriority)
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
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.code, g.name, g.level, COALESCE(g.parent_code, '')
		FROM genre AS g
		WHERE NOT EXISTS (SELECT 1 FROM genre AS child WHERE child.parent_code = g.code)
		AND g.is_deleted = 0
		ORDER BY g.code ASC`)
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

// NeedsWork reports whether the target still has uncollected items. A
// soft-deleted row is retired and never needs work.
func (s *Store) NeedsWork(ctx context.Context, url string) (crawler.Progress, error) {
	var getCount, skipCount, totalCount int
	var deleted bool
	err := s.db.QueryRowContext(ctx, `
		SELECT get_count, skip_count, total_count, is_deleted != 0
		FROM shop_list_summary
		WHERE url = ?`, url).Scan(&getCount, &skipCount, &totalCount, &deleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shop_list_summary (url, parent_area_code, area, genre, total_count, create_time, update_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (url) DO UPDATE
		SET total_count = excluded.total_count, update_time = excluded.update_time
		WHERE shop_list_summary.is_deleted = 0`,
		target.URL, target.ParentAreaCode, target.AreaCode, target.GenreCode, total, now, now)
	if err != nil {
		return fmt.Errorf("failed to record measured total: %w", err)
	}
	return nil
}

// IncrementGet counts one newly stored item.
func (s *Store) IncrementGet(ctx context.Context, url string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE shop_list_summary SET get_count = get_count + 1, update_time = ?
		WHERE url = ? AND is_deleted = 0`, s.now(), url)
	if err != nil {
		return fmt.Errorf("failed to increment get count: %w", err)
	}
	return nil
}

// IncrementSkip counts one item that was already stored.
func (s *Store) IncrementSkip(ctx context.Context, url string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE shop_list_summary SET skip_count = skip_count + 1, update_time = ?
		WHERE url = ? AND is_deleted = 0`, s.now(), url)
	if err != nil {
		return fmt.Errorf("failed to increment skip count: %w", err)
	}
	return nil
}

// Observe records a (link, area, genre) observation, ignoring repeats.
func (s *Store) Observe(ctx context.Context, link, areaCode, genreCode string) (bool, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO shop_catlog (link, area, genre, create_time, update_time)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (link, area, genre) DO NOTHING`, link, areaCode, genreCode, now, now)
	if err != nil {
		return false, fmt.Errorf("failed to insert catalog entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read catalog insert result: %w", err)
	}
	return n == 1, nil
}

// Exists reports whether a live record for url is stored.
func (s *Store) Exists(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM shops WHERE url = ? AND is_deleted = 0)`, url).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check shop: %w", err)
	}
	return exists, nil
}

// Upsert writes the record; the latest fetch wins and a soft-deleted row is revived.
func (s *Store) Upsert(ctx context.Context, record crawler.ItemRecord) (crawler.UpsertOutcome, error) {
	if record.URL == "" {
		return "", fmt.Errorf("record url is required")
	}
	s.upsertMu.Lock()
	defer s.upsertMu.Unlock()

	var present bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM shops WHERE url = ?)`, record.URL).Scan(&present)
	if err != nil {
		return "", fmt.Errorf("failed to check shop: %w", err)
	}

	now := s.now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO shops (
			name, url, score, reviews, prefecture, city, town, detail, full_address, phone,
			category, budget, payment, seats, open_date, area, genre,
			is_deleted, create_time, update_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT (url) DO UPDATE SET
			name = excluded.name,
			score = excluded.score,
			reviews = excluded.reviews,
			prefecture = excluded.prefecture,
			city = excluded.city,
			town = excluded.town,
			detail = excluded.detail,
			full_address = excluded.full_address,
			phone = excluded.phone,
			category = excluded.category,
			budget = excluded.budget,
			payment = excluded.payment,
			seats = excluded.seats,
			open_date = excluded.open_date,
			area = excluded.area,
			genre = excluded.genre,
			is_deleted = 0,
			update_time = excluded.update_time`,
		record.Name, record.URL, record.Score, record.Reviews,
		record.Prefecture, record.City, record.Town, record.AddressDetail, record.FullAddress,
		record.Phone, record.Category, record.Budget, record.Payment, record.Seats, record.OpenDate,
		record.AreaCode, record.GenreCode, now, now)
	if err != nil {
		return "", fmt.Errorf("failed to upsert shop: %w", err)
	}
	if present {
		return crawler.UpsertUpdated, nil
	}
	return crawler.UpsertInserted, nil
}

// Get loads the stored record for url, including soft-deleted rows.
func (s *Store) Get(ctx context.Context, url string) (crawler.ItemRecord, error) {
	var (
		rec              crawler.ItemRecord
		created, updated string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT name, url, score, reviews, prefecture, city, town, detail, full_address, phone,
			category, budget, payment, seats, open_date, area, genre,
			is_deleted, create_time, update_time
		FROM shops WHERE url = ?`, url).Scan(
		&rec.Name, &rec.URL, &rec.Score, &rec.Reviews,
		&rec.Prefecture, &rec.City, &rec.Town, &rec.AddressDetail, &rec.FullAddress,
		&rec.Phone, &rec.Category, &rec.Budget, &rec.Payment, &rec.Seats, &rec.OpenDate,
		&rec.AreaCode, &rec.GenreCode, &rec.IsDeleted, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return crawler.ItemRecord{}, crawler.ErrNotFound
		}
		return crawler.ItemRecord{}, fmt.Errorf("failed to load shop: %w", err)
	}
	if rec.CreateTime, err = time.Parse(TimeLayout, created); err != nil {
		return crawler.ItemRecord{}, fmt.Errorf("failed to parse create_time: %w", err)
	}
	if rec.UpdateTime, err = time.Parse(TimeLayout, updated); err != nil {
		return crawler.ItemRecord{}, fmt.Errorf("failed to parse update_time: %w", err)
	}
	return rec, nil
}
