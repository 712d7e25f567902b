package target

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-harvester/internal/crawler"
)

type fakeTaxonomy struct {
	areas       []crawler.AreaNode
	genres      []crawler.GenreNode
	areaErr     error
	genreErr    error
	minPriority int
}

func (f *fakeTaxonomy) EligibleAreas(_ context.Context, minPriority int) ([]crawler.AreaNode, error) {
	f.minPriority = minPriority
	return f.areas, f.areaErr
}

func (f *fakeTaxonomy) LeafGenres(context.Context) ([]crawler.GenreNode, error) {
	return f.genres, f.genreErr
}

func TestListingBase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		href string
		want string
	}{
		{"trailing slash", "https://tabelog.com/matome/fukushima/A0701/list/", "https://tabelog.com/fukushima/A0701/rstLst/"},
		{"no trailing slash", "https://tabelog.com/matome/tokyo/A1301/A130101/list", "https://tabelog.com/tokyo/A1301/A130101/rstLst/"},
		{"already listing", "https://tabelog.com/osaka/A2701/rstLst/", "https://tabelog.com/osaka/A2701/rstLst/"},
		{"malformed passes through", "not-a-url", "not-a-url"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ListingBase(tt.href))
		})
	}
}

func TestListingURLAndPageURL(t *testing.T) {
	t.Parallel()

	url := ListingURL("https://tabelog.com/matome/fukushima/A0701/list/", "ramen")
	assert.Equal(t, "https://tabelog.com/fukushima/A0701/rstLst/ramen", url)
	assert.Equal(t, url, PageURL(url, 1))
	assert.Equal(t, url+"/2", PageURL(url, 2))
	assert.Equal(t, url+"/60", PageURL(url+"/", 60))
}

func TestGeneratorTargetsCrossProduct(t *testing.T) {
	t.Parallel()

	tax := &fakeTaxonomy{
		areas: []crawler.AreaNode{
			{Code: "A0701", ParentCode: "fukushima", Href: "https://tabelog.com/matome/fukushima/A0701/list/", Priority: 200},
			{Code: "A130101", ParentCode: "A1301", Href: "https://tabelog.com/matome/tokyo/A1301/A130101/list/", Priority: 150},
		},
		genres: []crawler.GenreNode{{Code: "RC0101"}, {Code: "ramen"}},
	}

	targets, err := NewGenerator(tax).Targets(context.Background(), 101)
	require.NoError(t, err)
	require.Equal(t, 101, tax.minPriority)
	require.Len(t, targets, 4)

	assert.Equal(t, crawler.CrawlTarget{
		URL:            "https://tabelog.com/fukushima/A0701/rstLst/RC0101",
		ParentAreaCode: "fukushima",
		AreaCode:       "A0701",
		GenreCode:      "RC0101",
	}, targets[0])
	assert.Equal(t, "https://tabelog.com/fukushima/A0701/rstLst/ramen", targets[1].URL)
	assert.Equal(t, "A130101", targets[2].AreaCode)
	assert.Equal(t, "https://tabelog.com/tokyo/A1301/A130101/rstLst/ramen", targets[3].URL)

	for i, target := range targets {
		area := tax.areas[i/len(tax.genres)]
		assert.Equal(t, ListingURL(area.Href, target.GenreCode), target.URL)
	}
}

func TestGeneratorTargetsErrors(t *testing.T) {
	t.Parallel()

	_, err := NewGenerator(&fakeTaxonomy{areaErr: errors.New("boom")}).Targets(context.Background(), 0)
	require.ErrorContains(t, err, "select areas")

	_, err = NewGenerator(&fakeTaxonomy{genreErr: errors.New("boom")}).Targets(context.Background(), 0)
	require.ErrorContains(t, err, "select genres")
}

func TestGeneratorNoGenres(t *testing.T) {
	t.Parallel()

	tax := &fakeTaxonomy{areas: []crawler.AreaNode{{Code: "A0701", Href: "x/list/"}}}
	targets, err := NewGenerator(tax).Targets(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, targets)
}
