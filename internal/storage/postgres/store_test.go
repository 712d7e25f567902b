package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-harvester/internal/crawler"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Unix(1700000000, 0).UTC()

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock, fixedClock{now: testNow})
	require.NoError(t, err)
	return store, mock
}

func TestNewWithPoolValidates(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil, fixedClock{})
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewWithPool(mock, nil)
	require.Error(t, err)
}

func TestPing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store, err := NewWithPool(mock, fixedClock{now: testNow})
	require.NoError(t, err)

	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("down"))

	require.NoError(t, store.Ping(context.Background()))
	err = store.Ping(context.Background())
	require.ErrorContains(t, err, "ping postgres")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{}, fixedClock{})
	require.Error(t, err)
}

func TestEligibleAreas(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{"code", "name", "level", "parent_code", "href", "priority"}).
		AddRow("A1301", "Ginza", 3, "A13", "https://example.com/tokyo/A1301/list/", 120).
		AddRow("A1302", "Shinjuku", 3, "A13", "https://example.com/tokyo/A1302/list/", 101)
	mock.ExpectQuery("FROM area").WithArgs(101).WillReturnRows(rows)

	areas, err := store.EligibleAreas(context.Background(), 101)
	require.NoError(t, err)
	require.Len(t, areas, 2)
	assert.Equal(t, "A1301", areas[0].Code)
	assert.Equal(t, "A13", areas[0].ParentCode)
	assert.Equal(t, 120, areas[0].Priority)
	assert.Equal(t, "Shinjuku", areas[1].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEligibleAreasQueryError(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM area").WithArgs(100).WillReturnError(errors.New("boom"))

	_, err := store.EligibleAreas(context.Background(), 100)
	require.ErrorContains(t, err, "select areas")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLeafGenres(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{"code", "name", "level", "parent_code"}).
		AddRow("RC0101", "Kaiseki", 3, "RC01").
		AddRow("RC0102", "Kappo", 3, "RC01")
	mock.ExpectQuery("FROM genre").WillReturnRows(rows)

	genres, err := store.LeafGenres(context.Background())
	require.NoError(t, err)
	require.Len(t, genres, 2)
	assert.Equal(t, "RC0101", genres[0].Code)
	assert.Equal(t, "RC01", genres[1].ParentCode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNeedsWorkMissingRow(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM shop_list_summary").
		WithArgs("https://example.com/list/RC0101/").
		WillReturnError(pgx.ErrNoRows)

	progress, err := store.NeedsWork(context.Background(), "https://example.com/list/RC0101/")
	require.NoError(t, err)
	assert.Equal(t, crawler.Progress{NeedsWork: true}, progress)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNeedsWorkEvaluatesCounters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		get, skip, tot  int
		expectNeedsWork bool
	}{
		{name: "partial", get: 3, skip: 1, tot: 10, expectNeedsWork: true},
		{name: "complete", get: 8, skip: 2, tot: 10, expectNeedsWork: false},
		{name: "zero total", get: 0, skip: 0, tot: 0, expectNeedsWork: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			store, mock := newMockStore(t)

			rows := pgxmock.NewRows([]string{"get_count", "skip_count", "total_count", "is_deleted"}).
				AddRow(tc.get, tc.skip, tc.tot, false)
			mock.ExpectQuery("FROM shop_list_summary").WithArgs("u").WillReturnRows(rows)

			progress, err := store.NeedsWork(context.Background(), "u")
			require.NoError(t, err)
			assert.Equal(t, tc.expectNeedsWork, progress.NeedsWork)
			assert.Equal(t, tc.get, progress.GetCount)
			assert.Equal(t, tc.skip, progress.SkipCount)
			assert.Equal(t, tc.tot, progress.TotalCount)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestNeedsWorkRetiredRow(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{"get_count", "skip_count", "total_count", "is_deleted"}).
		AddRow(0, 0, 0, true)
	mock.ExpectQuery("FROM shop_list_summary").WithArgs("u").WillReturnRows(rows)

	progress, err := store.NeedsWork(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, crawler.Progress{Retired: true}, progress)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordMeasuredTotalUpserts(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	target := crawler.CrawlTarget{
		URL:            "https://example.com/tokyo/A1301/rstLst/RC0101/",
		ParentAreaCode: "A13",
		AreaCode:       "A1301",
		GenreCode:      "RC0101",
	}
	mock.ExpectExec("ON CONFLICT \\(url\\) DO UPDATE").
		WithArgs(target.URL, "A13", "A1301", "RC0101", 42, testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.RecordMeasuredTotal(context.Background(), target, 42))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementCounters(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectExec("SET get_count = get_count \\+ 1").
		WithArgs(testNow, "u").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("SET skip_count = skip_count \\+ 1").
		WithArgs(testNow, "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, store.IncrementGet(context.Background(), "u"))
	require.NoError(t, store.IncrementSkip(context.Background(), "missing"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementGetError(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectExec("SET get_count").WithArgs(testNow, "u").WillReturnError(errors.New("down"))

	err := store.IncrementGet(context.Background(), "u")
	require.ErrorContains(t, err, "increment get count")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestObserveReportsFirstSighting(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO shop_catlog").
		WithArgs("https://example.com/shop/1/", "A1301", "RC0101", testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO shop_catlog").
		WithArgs("https://example.com/shop/1/", "A1301", "RC0101", testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	first, err := store.Observe(context.Background(), "https://example.com/shop/1/", "A1301", "RC0101")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := store.Observe(context.Background(), "https://example.com/shop/1/", "A1301", "RC0101")
	require.NoError(t, err)
	assert.False(t, again)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExists(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM shops").WithArgs("u").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := store.Exists(context.Background(), "u")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertReportsOutcome(t *testing.T) {
	t.Parallel()

	record := crawler.ItemRecord{
		Name:      "Sushi Place",
		URL:       "https://example.com/shop/1/",
		Score:     "3.58",
		Reviews:   "120",
		Phone:     "03-0000-0000",
		AreaCode:  "A1301",
		GenreCode: "RC0101",
	}

	for _, tc := range []struct {
		inserted bool
		expected crawler.UpsertOutcome
	}{
		{inserted: true, expected: crawler.UpsertInserted},
		{inserted: false, expected: crawler.UpsertUpdated},
	} {
		store, mock := newMockStore(t)
		mock.ExpectQuery("INSERT INTO shops").
			WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(tc.inserted))

		outcome, err := store.Upsert(context.Background(), record)
		require.NoError(t, err)
		assert.Equal(t, tc.expected, outcome)
		require.NoError(t, mock.ExpectationsWereMet())
	}
}

func TestUpsertRequiresURL(t *testing.T) {
	t.Parallel()
	store, _ := newMockStore(t)

	_, err := store.Upsert(context.Background(), crawler.ItemRecord{Name: "x"})
	require.Error(t, err)
}

func TestMigrationURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "pgx5://u:p@localhost:5432/db", MigrationURL("postgres://u:p@localhost:5432/db"))
	assert.Equal(t, "pgx5://localhost/db", MigrationURL("postgresql://localhost/db"))
	assert.Equal(t, "pgx5://localhost/db", MigrationURL("pgx5://localhost/db"))
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	t.Parallel()

	up, err := migrationsFS.ReadFile("migrations/000001_init.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), "CREATE TABLE IF NOT EXISTS shop_list_summary")
	for _, table := range []string{"area", "genre", "shop_list_summary", "shop_catlog", "shops"} {
		body := tableDefinition(t, string(up), table)
		assert.Contains(t, body, "is_deleted", "table %s", table)
		assert.Contains(t, body, "update_time", "table %s", table)
	}

	down, err := migrationsFS.ReadFile("migrations/000001_init.down.sql")
	require.NoError(t, err)
	assert.Contains(t, string(down), "DROP TABLE IF EXISTS shops")
}

func tableDefinition(t *testing.T, ddl, table string) string {
	t.Helper()
	start := strings.Index(ddl, "CREATE TABLE IF NOT EXISTS "+table+" (")
	require.GreaterOrEqual(t, start, 0, "table %s", table)
	end := strings.Index(ddl[start:], ");")
	require.Greater(t, end, 0, "table %s", table)
	return ddl[start : start+end]
}
