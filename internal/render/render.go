// Package render turns fetched catalog pages into listing and detail values.
package render

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-harvester/internal/crawler"
	"github.com/JakeFAU/catalog-harvester/internal/hash/sha256"
	"github.com/JakeFAU/catalog-harvester/internal/target"
)

// DefaultDetailAnchor selects the info section of an item page.
const DefaultDetailAnchor = "#title-rstdata"

// Config controls Renderer behavior.
type Config struct {
	DetailAnchor  string
	ArchivePrefix string
	ContentType   string
}

// Renderer implements crawler.Renderer over a Fetcher. Detail pages are
// fetched in a transient view and optionally archived.
type Renderer struct {
	fetcher crawler.Fetcher
	archive crawler.BlobStore
	hasher  crawler.Hasher
	cfg     Config
	logger  *zap.Logger
}

var _ crawler.Renderer = (*Renderer)(nil)

// New constructs a Renderer. A nil archive disables snapshots.
func New(
	fetcher crawler.Fetcher,
	archive crawler.BlobStore,
	hasher crawler.Hasher,
	cfg Config,
	logger *zap.Logger,
) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DetailAnchor == "" {
		cfg.DetailAnchor = DefaultDetailAnchor
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	if hasher == nil {
		hasher = sha256.New()
	}
	return &Renderer{
		fetcher: fetcher,
		archive: archive,
		hasher:  hasher,
		cfg:     cfg,
		logger:  logger,
	}
}

// FetchListingPage fetches and parses page n of the listing at targetURL.
func (r *Renderer) FetchListingPage(ctx context.Context, targetURL string, page int) (crawler.ListingPage, error) {
	pageURL := target.PageURL(targetURL, page)
	resp, err := r.fetch(ctx, crawler.FetchRequest{URL: pageURL})
	if err != nil {
		return crawler.ListingPage{}, err
	}
	base, err := url.Parse(firstNonEmpty(resp.URL, pageURL))
	if err != nil {
		return crawler.ListingPage{}, fmt.Errorf("parse page url: %w", err)
	}
	return ParseListing(resp.Body, base)
}

// FetchItemDetail fetches and parses one item page.
func (r *Renderer) FetchItemDetail(ctx context.Context, link string) (crawler.ItemDetail, error) {
	if link == "" {
		return crawler.ItemDetail{}, crawler.ErrEmptyLink
	}
	resp, err := r.fetch(ctx, crawler.FetchRequest{URL: link + r.cfg.DetailAnchor, Transient: true})
	if err != nil {
		return crawler.ItemDetail{}, err
	}
	detail, err := ParseDetail(resp.Body)
	if err != nil {
		return crawler.ItemDetail{}, err
	}
	r.snapshot(ctx, link, resp.Body)
	return detail, nil
}

func (r *Renderer) fetch(ctx context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	resp, err := r.fetcher.Fetch(ctx, req)
	if err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return crawler.FetchResponse{}, fmt.Errorf("fetch %s: unexpected status %d", req.URL, resp.StatusCode)
	}
	return resp, nil
}

// snapshot archives the raw page; failures are logged only.
func (r *Renderer) snapshot(ctx context.Context, link string, body []byte) {
	if r.archive == nil {
		return
	}
	digest, err := r.hasher.Hash([]byte(link))
	if err != nil {
		r.logger.Warn("snapshot hash failed", zap.String("link", link), zap.Error(err))
		return
	}
	path := sha256.ObjectPath(r.cfg.ArchivePrefix, digest, ".html")
	uri, err := r.archive.PutObject(ctx, path, r.cfg.ContentType, bytes.NewReader(body))
	if err != nil {
		r.logger.Warn("snapshot write failed", zap.String("link", link), zap.String("path", path), zap.Error(err))
		return
	}
	r.logger.Debug("snapshot stored", zap.String("link", link), zap.String("uri", uri))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
