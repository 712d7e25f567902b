// Package crawler defines core types shared across subsystems.
package crawler

import (
	"net/http"
	"time"
)

// AreaNode is one entry of the area taxonomy. Only leaves (Level >= 3) are crawled.
type AreaNode struct {
	Code       string
	Name       string
	Level      int
	ParentCode string
	Href       string
	Priority   int
	IsDeleted  bool
}

// GenreNode is one entry of the genre taxonomy.
type GenreNode struct {
	Code       string
	Name       string
	Level      int
	ParentCode string
	IsDeleted  bool
}

// CrawlTarget is one (area, genre) slice of the catalog. URL is the ledger key.
type CrawlTarget struct {
	URL            string `json:"url"`
	ParentAreaCode string `json:"parent_area_code"`
	AreaCode       string `json:"area_code"`
	GenreCode      string `json:"genre_code"`
}

// Progress is the ledger's view of one target. Retired marks a soft-deleted
// ledger row; a retired target never needs work.
type Progress struct {
	NeedsWork  bool `json:"needs_work"`
	Retired    bool `json:"retired,omitempty"`
	GetCount   int  `json:"get_count"`
	SkipCount  int  `json:"skip_count"`
	TotalCount int  `json:"total_count"`
}

// Collected returns how many items the ledger has accounted for so far.
func (p Progress) Collected() int {
	return p.GetCount + p.SkipCount
}

// EvaluateProgress applies the needs-work rule to raw ledger counters.
func EvaluateProgress(getCount, skipCount, totalCount int) Progress {
	return Progress{
		NeedsWork:  getCount+skipCount < totalCount,
		GetCount:   getCount,
		SkipCount:  skipCount,
		TotalCount: totalCount,
	}
}

// RetiredProgress reports a soft-deleted ledger row with its frozen counters.
func RetiredProgress(getCount, skipCount, totalCount int) Progress {
	return Progress{
		Retired:    true,
		GetCount:   getCount,
		SkipCount:  skipCount,
		TotalCount: totalCount,
	}
}

// ItemRecord is the canonical profile of one listed shop, keyed by URL.
type ItemRecord struct {
	Name          string
	URL           string
	Score         string
	Reviews       string
	Prefecture    string
	City          string
	Town          string
	AddressDetail string
	FullAddress   string
	Phone         string
	Category      string
	Budget        string
	Payment       string
	Seats         string
	OpenDate      string
	AreaCode      string
	GenreCode     string
	IsDeleted     bool
	CreateTime    time.Time
	UpdateTime    time.Time
}

// UpsertOutcome reports whether an upsert created or replaced a row.
type UpsertOutcome string

// Upsert outcomes.
const (
	UpsertInserted UpsertOutcome = "inserted"
	UpsertUpdated  UpsertOutcome = "updated"
)

// ListingItem is one entry of a listing page.
type ListingItem struct {
	Name    string
	Link    string
	Score   string
	Reviews string
}

// ListingPage is the structured content of one listing page. HasTotal is
// false when the page did not carry a readable item count.
type ListingPage struct {
	Items    []ListingItem
	Total    int
	HasTotal bool
}

// ItemDetail holds the fields read from an item's detail page. Any field the
// page did not yield is left empty.
type ItemDetail struct {
	Prefecture    string
	City          string
	Town          string
	AddressDetail string
	FullAddress   string
	Phone         string
	Category      string
	Budget        string
	Payment       string
	Seats         string
	OpenDate      string
}

// BuildItemRecord merges a listing entry, its detail page and the owning target.
func BuildItemRecord(item ListingItem, detail ItemDetail, target CrawlTarget) ItemRecord {
	return ItemRecord{
		Name:          item.Name,
		URL:           item.Link,
		Score:         item.Score,
		Reviews:       item.Reviews,
		Prefecture:    detail.Prefecture,
		City:          detail.City,
		Town:          detail.Town,
		AddressDetail: detail.AddressDetail,
		FullAddress:   detail.FullAddress,
		Phone:         detail.Phone,
		Category:      detail.Category,
		Budget:        detail.Budget,
		Payment:       detail.Payment,
		Seats:         detail.Seats,
		OpenDate:      detail.OpenDate,
		AreaCode:      target.AreaCode,
		GenreCode:     target.GenreCode,
	}
}

// TargetState is the pagination state of one target.
type TargetState string

// Target states. Exhausted, Capped and Aborted are terminal for collection;
// Skipped means the ledger decided no collection was needed.
const (
	StateMeasuring  TargetState = "measuring"
	StateCollecting TargetState = "collecting"
	StateExhausted  TargetState = "exhausted"
	StateCapped     TargetState = "capped"
	StateAborted    TargetState = "aborted"
	StateSkipped    TargetState = "skipped"
)

// TargetResult summarizes what happened to one target in one run.
type TargetResult struct {
	Target   CrawlTarget
	State    TargetState
	Stage    string
	Progress Progress
	Measured int
	Pages    int
	Observed int
	Stored   int
	Skipped  int
	Failed   int
	Err      error
}

// RunSummary aggregates a whole run.
type RunSummary struct {
	RunID        string              `json:"run_id"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
	Targets      int                 `json:"targets"`
	States       map[TargetState]int `json:"states"`
	ItemsStored  int                 `json:"items_stored"`
	ItemsSkipped int                 `json:"items_skipped"`
	ItemsFailed  int                 `json:"items_failed"`
	Interrupted  bool                `json:"interrupted"`
}

// Decision pairs a target with the ledger's current view of it.
type Decision struct {
	Target   CrawlTarget
	Progress Progress
}

// TargetEvent is published when a target finishes.
type TargetEvent struct {
	RunID    string      `json:"run_id"`
	Target   CrawlTarget `json:"target"`
	State    TargetState `json:"state"`
	Stage    string      `json:"stage,omitempty"`
	Measured int         `json:"measured"`
	Pages    int         `json:"pages"`
	Stored   int         `json:"stored"`
	Skipped  int         `json:"skipped"`
	Failed   int         `json:"failed"`
	Error    string      `json:"error,omitempty"`
	At       time.Time   `json:"at"`
}

// FetchRequest captures everything needed to fetch a page. Transient asks the
// fetcher to use a short-lived view that is released after the fetch.
type FetchRequest struct {
	URL       string
	Transient bool
	Headers   http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}
