package cmd

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	indexPage = `<html><body><div class="lvl2__content-nav-numbers-number"><a>1</a></div></body></html>`
	listPage  = `<html><body>
<div class="l-product__name"><a>грабли</a><div class="lvl1__product-body-info-code">Код: 77</div></div>
<div class="l-product__buy"><div class="l-product__price-base">480 руб.</div></div>
</body></html>`
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestScrapeCommandPrintsEvents(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.URL.Query().Get("PAGEN_2") == "" {
			_, _ = w.Write([]byte(indexPage))
			return
		}
		_, _ = w.Write([]byte(listPage))
	}))
	defer srv.Close()

	cfgPath := writeConfig(t, "logging:\n  development: false\n  level: error\nscraper:\n  catalog_url: "+srv.URL+"/catalog/\n")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"scrape", "--config", cfgPath, "--env-file", ""})
	require.NoError(t, root.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], `"event":"scrape_completed"`)
	require.Equal(t, "1 products have been added.", lines[1])
}

func TestScrapeCommandQuiet(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfgPath := writeConfig(t, "logging:\n  development: false\n  level: error\nscraper:\n  catalog_url: "+srv.URL+"/\n")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"scrape", "-q", "--config", cfgPath, "--env-file", ""})
	err := root.Execute()
	require.ErrorContains(t, err, "scrape failed")
	require.NotContains(t, out.String(), "scrape_failed")
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfig(t, "scraper:\n  page_size: 0\n")
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"scrape", "--config", cfgPath, "--env-file", ""})
	require.ErrorContains(t, root.Execute(), "page_size")
}

func TestLoadDotEnv(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "missing.env")
	require.NoError(t, loadDotEnv(missing, false))
	require.Error(t, loadDotEnv(missing, true))
	require.NoError(t, loadDotEnv("", true))
}
