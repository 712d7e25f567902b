package pagination

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/catalog-harvester/internal/clock/system"
	"github.com/JakeFAU/catalog-harvester/internal/crawler"
	"github.com/JakeFAU/catalog-harvester/internal/storage/memory"
	"github.com/JakeFAU/catalog-harvester/internal/storage/sqlite"
)

type fakeRenderer struct {
	mu          sync.Mutex
	pages       map[int]crawler.ListingPage
	pageErrs    map[int]error
	detailErrs  map[string]error
	panicOn     string
	onDetail    func(link string)
	pageCalls   []int
	detailCalls []string
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{
		pages:      make(map[int]crawler.ListingPage),
		pageErrs:   make(map[int]error),
		detailErrs: make(map[string]error),
	}
}

func (r *fakeRenderer) FetchListingPage(_ context.Context, _ string, page int) (crawler.ListingPage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pageCalls = append(r.pageCalls, page)
	if err := r.pageErrs[page]; err != nil {
		return crawler.ListingPage{}, err
	}
	return r.pages[page], nil
}

func (r *fakeRenderer) FetchItemDetail(_ context.Context, link string) (crawler.ItemDetail, error) {
	r.mu.Lock()
	r.detailCalls = append(r.detailCalls, link)
	hook := r.onDetail
	err := r.detailErrs[link]
	r.mu.Unlock()
	if hook != nil {
		hook(link)
	}
	if link == r.panicOn {
		panic("selector exploded")
	}
	if err != nil {
		return crawler.ItemDetail{}, err
	}
	return crawler.ItemDetail{Prefecture: "Tokyo", Phone: "03-" + link[len(link)-1:]}, nil
}

// paginate lays out total items over pages of size per, with links item-1..item-N.
func (r *fakeRenderer) paginate(total, per int) {
	page := 1
	for start := 0; start < total; start += per {
		end := min(start+per, total)
		var items []crawler.ListingItem
		for i := start; i < end; i++ {
			items = append(items, item(i+1))
		}
		r.pages[page] = crawler.ListingPage{Items: items, Total: total, HasTotal: true}
		page++
	}
}

func item(n int) crawler.ListingItem {
	return crawler.ListingItem{
		Name:    fmt.Sprintf("Shop %d", n),
		Link:    fmt.Sprintf("https://example.com/shop/%d", n),
		Score:   "3.5",
		Reviews: "10",
	}
}

type countingPacer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *countingPacer) Wait(context.Context, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.err
}

var testTarget = crawler.CrawlTarget{
	URL:            "https://example.com/tokyo/A1301/rstLst/RC0101/",
	ParentAreaCode: "A13",
	AreaCode:       "A1301",
	GenreCode:      "RC0101",
}

func newController(store *memory.Store, renderer crawler.Renderer, cfg Config) *Controller {
	return New(store, store, store, renderer, nil, nil, cfg, zap.NewNop())
}

func seedItems(t *testing.T, store *memory.Store, numbers ...int) {
	t.Helper()
	for _, n := range numbers {
		_, err := store.Upsert(context.Background(), crawler.ItemRecord{URL: item(n).Link, Name: "old"})
		require.NoError(t, err)
	}
}

func TestRunStoresNewItemsAndSkipsKnown(t *testing.T) {
	t.Parallel()

	store := memory.NewStore(nil)
	seedItems(t, store, 2, 4)
	renderer := newFakeRenderer()
	renderer.paginate(5, 20)

	result := newController(store, renderer, Config{}).Run(context.Background(), testTarget)

	assert.Equal(t, crawler.StateExhausted, result.State)
	assert.Equal(t, 5, result.Measured)
	assert.Equal(t, 1, result.Pages)
	assert.Equal(t, 5, result.Observed)
	assert.Equal(t, 3, result.Stored)
	assert.Equal(t, 2, result.Skipped)
	assert.Zero(t, result.Failed)
	require.NoError(t, result.Err)

	assert.ElementsMatch(t, []string{item(1).Link, item(3).Link, item(5).Link}, renderer.detailCalls)
	assert.Equal(t, []int{1}, renderer.pageCalls)

	progress, err := store.NeedsWork(context.Background(), testTarget.URL)
	require.NoError(t, err)
	assert.Equal(t, crawler.Progress{NeedsWork: false, GetCount: 3, SkipCount: 2, TotalCount: 5}, progress)

	rec, err := store.Get(context.Background(), item(3).Link)
	require.NoError(t, err)
	assert.Equal(t, "Shop 3", rec.Name)
	assert.Equal(t, "Tokyo", rec.Prefecture)
	assert.Equal(t, "A1301", rec.AreaCode)
	assert.Equal(t, "RC0101", rec.GenreCode)
	assert.Equal(t, 5, store.CatalogSize())
}

func TestRunAbortsOnPageErrorKeepingProgress(t *testing.T) {
	t.Parallel()

	store := memory.NewStore(nil)
	renderer := newFakeRenderer()
	renderer.paginate(12, 5)
	renderer.pageErrs[2] = errors.New("timeout")

	result := newController(store, renderer, Config{}).Run(context.Background(), testTarget)

	assert.Equal(t, crawler.StateAborted, result.State)
	assert.Equal(t, StagePage, result.Stage)
	require.Error(t, result.Err)
	assert.Equal(t, 5, result.Stored)
	assert.Equal(t, 1, result.Pages)
	assert.Equal(t, 5, store.ItemCount())

	progress, err := store.NeedsWork(context.Background(), testTarget.URL)
	require.NoError(t, err)
	assert.True(t, progress.NeedsWork)
	assert.Equal(t, 5, progress.GetCount)
	assert.Equal(t, 12, progress.TotalCount)
}

func TestRunResumesWithoutRefetchingStoredItems(t *testing.T) {
	t.Parallel()

	store := memory.NewStore(nil)
	renderer := newFakeRenderer()
	renderer.paginate(12, 5)
	renderer.pageErrs[2] = errors.New("timeout")
	controller := newController(store, renderer, Config{})

	first := controller.Run(context.Background(), testTarget)
	require.Equal(t, crawler.StateAborted, first.State)

	renderer.mu.Lock()
	delete(renderer.pageErrs, 2)
	renderer.detailCalls = nil
	renderer.mu.Unlock()

	second := controller.Run(context.Background(), testTarget)
	assert.Equal(t, crawler.StateExhausted, second.State)
	assert.Equal(t, 7, second.Stored)
	assert.Equal(t, 5, second.Skipped)
	assert.Equal(t, 3, second.Pages)
	assert.Len(t, renderer.detailCalls, 7)
	assert.NotContains(t, renderer.detailCalls, item(1).Link)
	assert.Equal(t, 12, store.ItemCount())

	progress, err := store.NeedsWork(context.Background(), testTarget.URL)
	require.NoError(t, err)
	assert.False(t, progress.NeedsWork)
	assert.Equal(t, 12, progress.GetCount)
	assert.Equal(t, 5, progress.SkipCount)
}

func TestRunCapsAtMaxPages(t *testing.T) {
	t.Parallel()

	store := memory.NewStore(nil)
	renderer := newFakeRenderer()
	renderer.paginate(10, 1)

	result := newController(store, renderer, Config{MaxPages: 3}).Run(context.Background(), testTarget)

	assert.Equal(t, crawler.StateCapped, result.State)
	assert.Equal(t, 3, result.Pages)
	assert.Equal(t, []int{1, 2, 3}, renderer.pageCalls)
	assert.Equal(t, 3, result.Stored)
}

func TestRunDefaultCeilingIsSixty(t *testing.T) {
	t.Parallel()

	store := memory.NewStore(nil)
	renderer := newFakeRenderer()
	renderer.paginate(100, 1)

	result := newController(store, renderer, Config{}).Run(context.Background(), testTarget)

	assert.Equal(t, crawler.StateCapped, result.State)
	assert.Equal(t, DefaultMaxPages, result.Pages)
	assert.Len(t, renderer.pageCalls, DefaultMaxPages)
}

func TestRunAllSkipPageStillAccounts(t *testing.T) {
	t.Parallel()

	store := memory.NewStore(nil)
	seedItems(t, store, 1, 2, 3)
	renderer := newFakeRenderer()
	renderer.paginate(3, 10)

	result := newController(store, renderer, Config{}).Run(context.Background(), testTarget)

	assert.Equal(t, crawler.StateExhausted, result.State)
	assert.Equal(t, 3, result.Skipped)
	assert.Zero(t, result.Stored)
	assert.Empty(t, renderer.detailCalls)

	progress, err := store.NeedsWork(context.Background(), testTarget.URL)
	require.NoError(t, err)
	assert.Equal(t, 3, progress.SkipCount)
	assert.False(t, progress.NeedsWork)
}

func TestRunSkipsCompletedTarget(t *testing.T) {
	t.Parallel()

	store := memory.NewStore(nil)
	ctx := context.Background()
	require.NoError(t, store.RecordMeasuredTotal(ctx, testTarget, 2))
	require.NoError(t, store.IncrementGet(ctx, testTarget.URL))
	require.NoError(t, store.IncrementGet(ctx, testTarget.URL))

	renderer := newFakeRenderer()
	renderer.paginate(2, 10)

	core, logs := observer.New(zapcore.InfoLevel)
	controller := New(store, store, store, renderer, nil, nil, Config{}, zap.New(core))
	result := controller.Run(ctx, testTarget)

	assert.Equal(t, crawler.StateSkipped, result.State)
	assert.Equal(t, []int{1}, renderer.pageCalls)
	assert.Empty(t, renderer.detailCalls)

	decisions := logs.FilterMessage("target decision").All()
	require.Len(t, decisions, 1)
	fields := decisions[0].ContextMap()
	assert.Equal(t, false, fields["needs_work"])
	assert.EqualValues(t, 2, fields["get_count"])
	assert.EqualValues(t, 2, fields["total_count"])
	assert.Equal(t, testTarget.URL, fields["target"])
}

func TestRunSkipsRetiredTarget(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := sqlite.Open(ctx, ":memory:", system.New())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.RecordMeasuredTotal(ctx, testTarget, 3))
	for i := 0; i < 3; i++ {
		require.NoError(t, store.IncrementGet(ctx, testTarget.URL))
	}
	_, err = store.DB().Exec(`UPDATE shop_list_summary SET is_deleted = 1 WHERE url = ?`, testTarget.URL)
	require.NoError(t, err)

	renderer := newFakeRenderer()
	renderer.paginate(3, 10)
	core, logs := observer.New(zapcore.InfoLevel)
	controller := New(store, store, store, renderer, nil, nil, Config{}, zap.New(core))

	for run := 0; run < 3; run++ {
		result := controller.Run(ctx, testTarget)
		assert.Equal(t, crawler.StateSkipped, result.State, "run %d", run)
		assert.Zero(t, result.Pages)
		assert.Zero(t, result.Stored+result.Skipped+result.Failed)
		assert.True(t, result.Progress.Retired)
	}
	assert.Empty(t, renderer.detailCalls)

	progress, err := store.NeedsWork(ctx, testTarget.URL)
	require.NoError(t, err)
	assert.Equal(t, crawler.Progress{Retired: true, GetCount: 3, TotalCount: 3}, progress)

	exists, err := store.Exists(ctx, item(1).Link)
	require.NoError(t, err)
	assert.False(t, exists)

	decisions := logs.FilterMessage("target decision").All()
	require.Len(t, decisions, 3)
	assert.Equal(t, true, decisions[0].ContextMap()["retired"])
}

func TestRunSkipsRetiredTargetInMemory(t *testing.T) {
	t.Parallel()

	store := memory.NewStore(nil)
	store.RetireTarget(testTarget)
	renderer := newFakeRenderer()
	renderer.paginate(2, 10)

	result := newController(store, renderer, Config{}).Run(context.Background(), testTarget)

	assert.Equal(t, crawler.StateSkipped, result.State)
	assert.Empty(t, renderer.detailCalls)
	assert.Zero(t, store.ItemCount())
}

func TestRunSkipsZeroTotal(t *testing.T) {
	t.Parallel()

	store := memory.NewStore(nil)
	renderer := newFakeRenderer()
	renderer.pages[1] = crawler.ListingPage{Total: 0, HasTotal: true}

	result := newController(store, renderer, Config{}).Run(context.Background(), testTarget)

	assert.Equal(t, crawler.StateSkipped, result.State)
	assert.Zero(t, result.Pages)
	progress, err := store.NeedsWork(context.Background(), testTarget.URL)
	require.NoError(t, err)
	assert.False(t, progress.NeedsWork)
}

func TestRunMeasureFailureLeavesTargetPending(t *testing.T) {
	t.Parallel()

	for name, renderer := range map[string]*fakeRenderer{
		"fetch error": func() *fakeRenderer {
			r := newFakeRenderer()
			r.pageErrs[1] = errors.New("navigation failed")
			return r
		}(),
		"no total": func() *fakeRenderer {
			r := newFakeRenderer()
			r.pages[1] = crawler.ListingPage{Items: []crawler.ListingItem{item(1)}}
			return r
		}(),
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			store := memory.NewStore(nil)

			result := newController(store, renderer, Config{}).Run(context.Background(), testTarget)

			assert.Equal(t, crawler.StateAborted, result.State)
			assert.Equal(t, StageMeasure, result.Stage)
			require.Error(t, result.Err)
			assert.Empty(t, renderer.detailCalls)

			progress, err := store.NeedsWork(context.Background(), testTarget.URL)
			require.NoError(t, err)
			assert.True(t, progress.NeedsWork)
		})
	}
}

func TestRunNoTotalIsSentinel(t *testing.T) {
	t.Parallel()

	store := memory.NewStore(nil)
	renderer := newFakeRenderer()
	renderer.pages[1] = crawler.ListingPage{Items: []crawler.ListingItem{item(1)}}

	result := newController(store, renderer, Config{}).Run(context.Background(), testTarget)
	require.ErrorIs(t, result.Err, crawler.ErrNoTotal)
}

func TestRunEmptyPageAborts(t *testing.T) {
	t.Parallel()

	store := memory.NewStore(nil)
	renderer := newFakeRenderer()
	renderer.paginate(10, 4)
	delete(renderer.pages, 2)

	result := newController(store, renderer, Config{}).Run(context.Background(), testTarget)

	assert.Equal(t, crawler.StateAborted, result.State)
	require.ErrorIs(t, result.Err, crawler.ErrEmptyPage)
	assert.Equal(t, 4, result.Stored)
	assert.Equal(t, 1, result.Pages)
}

func TestRunIsolatesItemFailures(t *testing.T) {
	t.Parallel()

	store := memory.NewStore(nil)
	renderer := newFakeRenderer()
	renderer.paginate(4, 10)
	renderer.detailErrs[item(2).Link] = errors.New("detail timeout")
	renderer.panicOn = item(3).Link

	core, logs := observer.New(zapcore.WarnLevel)
	controller := New(store, store, store, renderer, nil, nil, Config{}, zap.New(core))
	result := controller.Run(context.Background(), testTarget)

	assert.Equal(t, crawler.StateExhausted, result.State)
	assert.Equal(t, 2, result.Stored)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 2, store.ItemCount())

	_, err := store.Get(context.Background(), item(2).Link)
	require.ErrorIs(t, err, crawler.ErrNotFound)

	failures := logs.FilterMessage("item failed").All()
	require.Len(t, failures, 2)
	assert.Equal(t, item(2).Link, failures[0].ContextMap()["link"])
	assert.Equal(t, item(3).Link, failures[1].ContextMap()["link"])

	progress, err := store.NeedsWork(context.Background(), testTarget.URL)
	require.NoError(t, err)
	assert.True(t, progress.NeedsWork)
	assert.Equal(t, 2, progress.GetCount)
}

func TestRunIgnoresItemsWithoutLink(t *testing.T) {
	t.Parallel()

	store := memory.NewStore(nil)
	renderer := newFakeRenderer()
	renderer.pages[1] = crawler.ListingPage{
		Items:    []crawler.ListingItem{{Name: "ad slot"}, item(1)},
		Total:    2,
		HasTotal: true,
	}

	result := newController(store, renderer, Config{}).Run(context.Background(), testTarget)

	assert.Equal(t, crawler.StateExhausted, result.State)
	assert.Equal(t, 1, result.Observed)
	assert.Equal(t, 1, result.Stored)
	assert.Equal(t, 1, store.CatalogSize())
}

func TestRunPacesPagesAndDetails(t *testing.T) {
	t.Parallel()

	store := memory.NewStore(nil)
	seedItems(t, store, 1)
	renderer := newFakeRenderer()
	renderer.paginate(6, 3)
	pagePacer := &countingPacer{}
	itemPacer := &countingPacer{}

	controller := New(store, store, store, renderer, pagePacer, itemPacer, Config{}, nil)
	result := controller.Run(context.Background(), testTarget)

	assert.Equal(t, crawler.StateExhausted, result.State)
	assert.Equal(t, 1, pagePacer.calls)
	assert.Equal(t, 5, itemPacer.calls)
}

func TestRunStopsOnCancellation(t *testing.T) {
	t.Parallel()

	store := memory.NewStore(nil)
	renderer := newFakeRenderer()
	renderer.paginate(6, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	renderer.onDetail = func(link string) {
		if link == item(2).Link {
			cancel()
		}
	}

	result := newController(store, renderer, Config{}).Run(ctx, testTarget)

	assert.Equal(t, crawler.StateAborted, result.State)
	require.ErrorIs(t, result.Err, context.Canceled)
	assert.Equal(t, 2, result.Stored)
	assert.Len(t, renderer.detailCalls, 2)
}

func TestCatalogAndItemsAreIndependentAcrossTargets(t *testing.T) {
	t.Parallel()

	store := memory.NewStore(nil)
	renderer := newFakeRenderer()
	renderer.paginate(2, 10)
	controller := newController(store, renderer, Config{})

	other := testTarget
	other.URL = "https://example.com/tokyo/A1301/rstLst/RC0201/"
	other.GenreCode = "RC0201"

	first := controller.Run(context.Background(), testTarget)
	second := controller.Run(context.Background(), other)

	assert.Equal(t, 2, first.Stored)
	assert.Equal(t, 2, second.Skipped)
	assert.Zero(t, second.Stored)
	assert.Equal(t, 4, store.CatalogSize())
	assert.Equal(t, 2, store.ItemCount())
}
