// Package target forms crawl targets from the area and genre taxonomy.
package target

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/JakeFAU/catalog-harvester/internal/crawler"
)

// Generator builds the (area, genre) cross product.
type Generator struct {
	taxonomy crawler.TaxonomyReader
}

// NewGenerator creates a Generator over the given taxonomy.
func NewGenerator(taxonomy crawler.TaxonomyReader) *Generator {
	return &Generator{taxonomy: taxonomy}
}

// Targets returns one target per eligible (area, genre) pair, area-major, in
// the order the taxonomy returns them.
func (g *Generator) Targets(ctx context.Context, minPriority int) ([]crawler.CrawlTarget, error) {
	areas, err := g.taxonomy.EligibleAreas(ctx, minPriority)
	if err != nil {
		return nil, fmt.Errorf("select areas: %w", err)
	}
	genres, err := g.taxonomy.LeafGenres(ctx)
	if err != nil {
		return nil, fmt.Errorf("select genres: %w", err)
	}

	targets := make([]crawler.CrawlTarget, 0, len(areas)*len(genres))
	for _, area := range areas {
		for _, genre := range genres {
			targets = append(targets, crawler.CrawlTarget{
				URL:            ListingURL(area.Href, genre.Code),
				ParentAreaCode: area.ParentCode,
				AreaCode:       area.Code,
				GenreCode:      genre.Code,
			})
		}
	}
	return targets, nil
}

// ListingBase rewrites a published catalog href into the listing endpoint:
//
//	https://tabelog.com/matome/fukushima/A0701/list/ -> https://tabelog.com/fukushima/A0701/rstLst/
//
// Hrefs of any other shape pass through unchanged.
func ListingBase(href string) string {
	if strings.Contains(href, "/matome/") {
		href = strings.Replace(href, "/matome/", "/", 1)
	}
	switch {
	case strings.HasSuffix(href, "/list/"):
		href = strings.TrimSuffix(href, "/list/") + "/rstLst/"
	case strings.HasSuffix(href, "/list"):
		href = strings.TrimSuffix(href, "/list") + "/rstLst/"
	}
	return href
}

// ListingURL is the canonical listing URL of one (area href, genre) pair.
func ListingURL(href, genreCode string) string {
	return ListingBase(href) + genreCode
}

// PageURL returns the URL of page n of a target's listing.
func PageURL(targetURL string, page int) string {
	if page <= 1 {
		return targetURL
	}
	return strings.TrimSuffix(targetURL, "/") + "/" + strconv.Itoa(page)
}
