package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/catalog-scraper/internal/config"
	"github.com/JakeFAU/catalog-scraper/internal/extract"
	"github.com/JakeFAU/catalog-scraper/internal/notify/memory"
)

const (
	indexPage = `<html><body><div class="lvl2__content-nav-numbers-number"><a>1</a></div></body></html>`
	listPage  = `<html><body>
<div class="l-product__name"><a>лейка</a><div class="lvl1__product-body-info-code">Код: 501</div></div>
<div class="l-product__buy"><div class="l-product__price-base">250 руб.</div></div>
<div class="l-product__name"><a>шланг</a><div class="lvl1__product-body-info-code">Код: 502</div></div>
<div class="l-product__buy"><div class="l-product__price-base">990 руб.</div></div>
</body></html>`
)

func newCatalogServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.URL.Query().Get("PAGEN_2") == "" {
			_, _ = w.Write([]byte(indexPage))
			return
		}
		_, _ = w.Write([]byte(listPage))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(catalogURL string) config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 8080, RequestTimeoutSeconds: 5, ShutdownSeconds: 1},
		Scraper: config.ScraperConfig{
			CatalogURL: catalogURL,
			PageSize:   30,
			PageParam:  "PAGEN_2",
			SizeParam:  "amount",
			Interval:   time.Hour,
			Selectors:  extract.DefaultSelectors(),
		},
		HTTP:    config.HTTPConfig{UserAgent: "catalog-test", TimeoutSeconds: 5},
		Archive: config.ArchiveConfig{Backend: config.ArchiveNone, Prefix: "pages"},
	}
}

func TestBuildInMemoryAndScrape(t *testing.T) {
	t.Parallel()

	catalogSrv := newCatalogServer(t)
	app, err := Build(context.Background(), testConfig(catalogSrv.URL+"/catalog/"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(app.Close)

	rec := memory.New()
	app.Hub().Subscribe(rec)

	n, err := app.RunScrapeOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)

	kinds, err := rec.Events()
	require.NoError(t, err)
	require.Equal(t, []string{"scrape_completed"}, kinds)

	api := httptest.NewServer(app.Handler())
	t.Cleanup(api.Close)

	resp, err := http.Get(api.URL + "/api/products")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var products []struct {
		Code  int64  `json:"code"`
		Name  string `json:"name"`
		Price int64  `json:"price"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&products))
	require.Len(t, products, 2)
	require.Equal(t, int64(501), products[0].Code)
	require.Equal(t, "Лейка", products[0].Name)
	require.Equal(t, int64(990), products[1].Price)
}

func TestBuildWithLocalArchive(t *testing.T) {
	t.Parallel()

	catalogSrv := newCatalogServer(t)
	cfg := testConfig(catalogSrv.URL + "/catalog/")
	cfg.Archive = config.ArchiveConfig{Backend: config.ArchiveLocal, LocalDir: t.TempDir(), Prefix: "pages"}

	app, err := Build(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(app.Close)

	_, err = app.RunScrapeOnce(context.Background())
	require.NoError(t, err)

	var archived []string
	err = filepath.WalkDir(cfg.Archive.LocalDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			archived = append(archived, filepath.Base(path))
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"page-1.html"}, archived)
}

func TestBuildRejectsBadDatabaseDSN(t *testing.T) {
	t.Parallel()

	cfg := testConfig("https://catalog.example/")
	cfg.Database.DSN = "postgres://user@localhost:notaport/catalog"
	_, err := Build(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "product store")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	cfg := testConfig("https://catalog.example/")
	cfg.Server.Port = freePort(t)
	app, err := Build(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

// newBlockingCatalog serves the index at once and holds listing pages until
// release is closed.
func newBlockingCatalog(t *testing.T) (url string, pageRequested, release chan struct{}) {
	t.Helper()
	pageRequested = make(chan struct{}, 1)
	release = make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.URL.Query().Get("PAGEN_2") == "" {
			_, _ = w.Write([]byte(indexPage))
			return
		}
		select {
		case pageRequested <- struct{}{}:
		default:
		}
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		_, _ = w.Write([]byte(listPage))
	}))
	t.Cleanup(srv.Close)
	return srv.URL + "/catalog/", pageRequested, release
}

func TestDrainRunsWaitsForActiveRun(t *testing.T) {
	t.Parallel()

	catalogURL, requested, release := newBlockingCatalog(t)
	app, err := Build(context.Background(), testConfig(catalogURL), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(app.Close)

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := app.RunScrapeOnce(context.Background())
		done <- result{n, err}
	}()
	<-requested

	time.AfterFunc(50*time.Millisecond, func() { close(release) })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	app.drainRuns(ctx)

	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, 2, res.n)
}

func TestDrainRunsCancelsRunAfterDeadline(t *testing.T) {
	t.Parallel()

	catalogURL, requested, release := newBlockingCatalog(t)
	t.Cleanup(func() { close(release) })
	app, err := Build(context.Background(), testConfig(catalogURL), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(app.Close)

	done := make(chan error, 1)
	go func() {
		// Detached from the caller like an HTTP-triggered run.
		_, err := app.RunScrapeOnce(context.WithoutCancel(context.Background()))
		done <- err
	}()
	<-requested

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	app.drainRuns(ctx)

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("run was not cancelled by shutdown")
	}
	products, err := app.Store().List(context.Background())
	require.NoError(t, err)
	require.Empty(t, products)
}
