package crawler

import (
	"context"
	"io"
	"time"
)

// TaxonomyReader reads the area and genre taxonomy. The core never writes it.
type TaxonomyReader interface {
	// EligibleAreas returns non-deleted leaf areas with priority >= minPriority,
	// ordered by priority descending then insertion order.
	EligibleAreas(ctx context.Context, minPriority int) ([]AreaNode, error)
	// LeafGenres returns non-deleted genres no other genre names as parent, ordered by code.
	LeafGenres(ctx context.Context) ([]GenreNode, error)
}

// ProgressLedger tracks per-target counters across runs.
type ProgressLedger interface {
	// NeedsWork reports the counters for url; a missing row is {true,0,0,0}.
	NeedsWork(ctx context.Context, url string) (Progress, error)
	// RecordMeasuredTotal inserts the target or refreshes its total, keeping counters.
	RecordMeasuredTotal(ctx context.Context, target CrawlTarget, total int) error
	// IncrementGet adds one newly stored item. Missing rows are ignored.
	IncrementGet(ctx context.Context, url string) error
	// IncrementSkip adds one already-known item. Missing rows are ignored.
	IncrementSkip(ctx context.Context, url string) error
}

// CatalogLog records every (link, area, genre) observation exactly once.
type CatalogLog interface {
	// Observe returns true when the triple was recorded for the first time.
	Observe(ctx context.Context, link, areaCode, genreCode string) (bool, error)
}

// ItemStore holds one canonical record per item URL.
type ItemStore interface {
	Exists(ctx context.Context, url string) (bool, error)
	Upsert(ctx context.Context, record ItemRecord) (UpsertOutcome, error)
}

// Store bundles every persistence contract behind one handle.
type Store interface {
	TaxonomyReader
	ProgressLedger
	CatalogLog
	ItemStore
	Close() error
}

// Renderer turns live pages into structured values.
type Renderer interface {
	// FetchListingPage returns page N of a target's listing. An empty page is
	// not an error; a failed fetch is.
	FetchListingPage(ctx context.Context, url string, page int) (ListingPage, error)
	// FetchItemDetail returns the detail fields of one item, best effort per field.
	FetchItemDetail(ctx context.Context, link string) (ItemDetail, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Pacer blocks until the next request to url may be issued.
type Pacer interface {
	Wait(ctx context.Context, url string) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes run events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests used for artifact names.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
