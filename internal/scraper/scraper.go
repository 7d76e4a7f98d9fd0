// Package scraper walks every listing page of the catalog and collects the
// extracted product records.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
	"github.com/JakeFAU/catalog-scraper/internal/extract"
)

// Config controls which URLs the scraper requests.
type Config struct {
	CatalogURL    string
	PageSize      int
	PageParam     string
	SizeParam     string
	ArchivePrefix string
}

const (
	defaultPageSize  = 30
	defaultPageParam = "PAGEN_2"
	defaultSizeParam = "amount"
	defaultPrefix    = "pages"
)

// Limiter paces requests to a site.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Scraper fetches the catalog index, then every listing page in order.
type Scraper struct {
	cfg       Config
	fetcher   catalog.PageFetcher
	extractor *extract.Extractor
	archive   catalog.PageArchive
	limiter   Limiter
	logger    *zap.Logger
}

// Option customizes a Scraper.
type Option func(*Scraper)

// WithArchive stores a raw copy of every fetched listing page.
func WithArchive(a catalog.PageArchive) Option {
	return func(s *Scraper) {
		s.archive = a
	}
}

// WithLimiter waits on l before every page request.
func WithLimiter(l Limiter) Option {
	return func(s *Scraper) {
		s.limiter = l
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scraper) {
		if l != nil {
			s.logger = l.Named("scraper")
		}
	}
}

// New wires a Scraper.
func New(cfg Config, fetcher catalog.PageFetcher, extractor *extract.Extractor, opts ...Option) (*Scraper, error) {
	if cfg.CatalogURL == "" {
		return nil, fmt.Errorf("catalog url is required")
	}
	if _, err := url.Parse(cfg.CatalogURL); err != nil {
		return nil, fmt.Errorf("parse catalog url: %w", err)
	}
	if fetcher == nil || extractor == nil {
		return nil, fmt.Errorf("fetcher and extractor are required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.PageParam == "" {
		cfg.PageParam = defaultPageParam
	}
	if cfg.SizeParam == "" {
		cfg.SizeParam = defaultSizeParam
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = defaultPrefix
	}
	s := &Scraper{
		cfg:       cfg,
		fetcher:   fetcher,
		extractor: extractor,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// FetchAll returns the records of every listing page concatenated in page
// order. The first network or extraction failure aborts the whole call.
func (s *Scraper) FetchAll(ctx context.Context, runID string) ([]catalog.ProductRecord, error) {
	index, err := s.fetch(ctx, s.cfg.CatalogURL)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog index: %w", err)
	}
	pages, err := s.extractor.PageCount(index)
	if err != nil {
		return nil, fmt.Errorf("read page count: %w", err)
	}
	s.logger.Debug("catalog index fetched", zap.String("run_id", runID), zap.Int("pages", pages))

	var records []catalog.ProductRecord
	for n := 1; n <= pages; n++ {
		pageURL, err := s.PageURL(n)
		if err != nil {
			return nil, err
		}
		markup, err := s.fetch(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", n, err)
		}
		s.archivePage(ctx, runID, n, markup)
		got, err := s.extractor.Extract(markup)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", n, err)
		}
		s.logger.Debug("page extracted", zap.String("run_id", runID), zap.Int("page", n), zap.Int("records", len(got)))
		records = append(records, got...)
	}
	return records, nil
}

func (s *Scraper) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, pageURL); err != nil {
			return nil, err
		}
	}
	return s.fetcher.FetchPage(ctx, pageURL)
}

// PageURL builds the listing URL for page n with the configured page size.
func (s *Scraper) PageURL(n int) (string, error) {
	u, err := url.Parse(s.cfg.CatalogURL)
	if err != nil {
		return "", fmt.Errorf("parse catalog url: %w", err)
	}
	q := u.Query()
	q.Set(s.cfg.SizeParam, strconv.Itoa(s.cfg.PageSize))
	q.Set(s.cfg.PageParam, strconv.Itoa(n))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Scraper) archivePage(ctx context.Context, runID string, n int, markup []byte) {
	if s.archive == nil {
		return
	}
	objectPath := path.Join(s.cfg.ArchivePrefix, runID, fmt.Sprintf("page-%d.html", n))
	uri, err := s.archive.PutObject(ctx, objectPath, "text/html; charset=utf-8", bytes.NewReader(markup))
	if err != nil {
		s.logger.Warn("failed to archive page", zap.String("path", objectPath), zap.Error(err))
		return
	}
	s.logger.Debug("page archived", zap.String("uri", uri))
}
