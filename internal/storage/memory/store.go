// Package memory provides in-memory store and blob implementations for
// development runs and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/catalog-harvester/internal/crawler"
)

type ledgerRow struct {
	target    crawler.CrawlTarget
	getCount  int
	skipCount int
	total     int
	deleted   bool
	updated   time.Time
}

type catalogKey struct {
	link, area, genre string
}

// Store implements crawler.Store in memory. Nothing survives the process.
type Store struct {
	mu      sync.RWMutex
	clock   crawler.Clock
	areas   []crawler.AreaNode
	genres  []crawler.GenreNode
	ledger  map[string]*ledgerRow
	catalog map[catalogKey]time.Time
	items   map[string]crawler.ItemRecord
}

var _ crawler.Store = (*Store)(nil)

// NewStore constructs an empty Store. A nil clock uses time.Now.
func NewStore(clock crawler.Clock) *Store {
	return &Store{
		clock:   clock,
		ledger:  make(map[string]*ledgerRow),
		catalog: make(map[catalogKey]time.Time),
		items:   make(map[string]crawler.ItemRecord),
	}
}

func (s *Store) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}

// RetireTarget soft-deletes the ledger row for url, creating it if needed.
func (s *Store) RetireTarget(target crawler.CrawlTarget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.ledger[target.URL]
	if !ok {
		row = &ledgerRow{target: target}
		s.ledger[target.URL] = row
	}
	row.deleted = true
	row.updated = s.now()
}

// AddArea appends an area to the taxonomy in insertion order.
func (s *Store) AddArea(area crawler.AreaNode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.areas = append(s.areas, area)
}

// AddGenre appends a genre to the taxonomy.
func (s *Store) AddGenre(genre crawler.GenreNode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.genres = append(s.genres, genre)
}

// EligibleAreas returns leaf areas at or above minPriority, by priority then insertion order.
func (s *Store) EligibleAreas(_ context.Context, minPriority int) ([]crawler.AreaNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []crawler.AreaNode
	for _, area := range s.areas {
		if area.IsDeleted || area.Level < 3 || area.Priority < minPriority {
			continue
		}
		out = append(out, area)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

// LeafGenres returns the genres no other genre references as parent, by code.
func (s *Store) LeafGenres(_ context.Context) ([]crawler.GenreNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	parents := make(map[string]struct{}, len(s.genres))
	for _, genre := range s.genres {
		if genre.ParentCode != "" {
			parents[genre.ParentCode] = struct{}{}
		}
	}
	var out []crawler.GenreNode
	for _, genre := range s.genres {
		if _, isParent := parents[genre.Code]; isParent || genre.IsDeleted {
			continue
		}
		out = append(out, genre)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// NeedsWork reports whether the target still has uncollected items.
func (s *Store) NeedsWork(_ context.Context, url string) (crawler.Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.ledger[url]
	if !ok {
		return crawler.Progress{NeedsWork: true}, nil
	}
	if row.deleted {
		return crawler.RetiredProgress(row.getCount, row.skipCount, row.total), nil
	}
	return crawler.EvaluateProgress(row.getCount, row.skipCount, row.total), nil
}

// RecordMeasuredTotal inserts the target or refreshes its total, keeping counters.
func (s *Store) RecordMeasuredTotal(_ context.Context, target crawler.CrawlTarget, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.ledger[target.URL]
	if !ok {
		s.ledger[target.URL] = &ledgerRow{target: target, total: total, updated: s.now()}
		return nil
	}
	if row.deleted {
		return nil
	}
	row.total = total
	row.updated = s.now()
	return nil
}

// IncrementGet counts one newly stored item. Missing rows are ignored.
func (s *Store) IncrementGet(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.ledger[url]; ok && !row.deleted {
		row.getCount++
		row.updated = s.now()
	}
	return nil
}

// IncrementSkip counts one already-known item. Missing rows are ignored.
func (s *Store) IncrementSkip(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.ledger[url]; ok && !row.deleted {
		row.skipCount++
		row.updated = s.now()
	}
	return nil
}

// Observe records a (link, area, genre) observation, ignoring repeats.
func (s *Store) Observe(_ context.Context, link, areaCode, genreCode string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := catalogKey{link: link, area: areaCode, genre: genreCode}
	if _, seen := s.catalog[key]; seen {
		return false, nil
	}
	s.catalog[key] = s.now()
	return true, nil
}

// CatalogSize returns how many distinct observations were recorded.
func (s *Store) CatalogSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.catalog)
}

// Exists reports whether a live record for url is stored.
func (s *Store) Exists(_ context.Context, url string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.items[url]
	return ok && !rec.IsDeleted, nil
}

// Upsert writes the record; the latest fetch wins.
func (s *Store) Upsert(_ context.Context, record crawler.ItemRecord) (crawler.UpsertOutcome, error) {
	if record.URL == "" {
		return "", errors.New("record url is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	record.IsDeleted = false
	record.UpdateTime = now
	if prev, ok := s.items[record.URL]; ok {
		record.CreateTime = prev.CreateTime
		s.items[record.URL] = record
		return crawler.UpsertUpdated, nil
	}
	record.CreateTime = now
	s.items[record.URL] = record
	return crawler.UpsertInserted, nil
}

// Get returns the stored record for url.
func (s *Store) Get(_ context.Context, url string) (crawler.ItemRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.items[url]
	if !ok {
		return crawler.ItemRecord{}, crawler.ErrNotFound
	}
	return rec, nil
}

// ItemCount returns how many item records are stored.
func (s *Store) ItemCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
