// Package metrics exposes Prometheus collectors for the catalog service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scrapePagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_scrape_pages_total",
			Help: "Total number of listing pages fetched, labeled by site and outcome.",
		},
		[]string{"site", "status"},
	)

	scrapeRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_scrape_runs_total",
			Help: "Total number of scrape runs, labeled by outcome.",
		},
		[]string{"status"},
	)

	scrapeRecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_scrape_records_total",
			Help: "Total number of scraped records reconciled into the store.",
		},
	)

	scrapeRunDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_scrape_run_duration_seconds",
			Help:    "Histogram of scrape run durations.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	notifySubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_notify_subscribers",
			Help: "Number of live notification subscribers.",
		},
	)

	notifyBroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_notify_broadcasts_total",
			Help: "Total number of broadcast calls.",
		},
	)

	notifyDeliveryFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_notify_delivery_failures_total",
			Help: "Total number of failed deliveries; each one drops its subscriber.",
		},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_rate_limit_delay_seconds",
			Help:    "Time spent waiting on the per-site request limiter.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"site"},
	)
)

// SanitizeSite extracts a lowercase hostname for use as a label.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePageFetch counts a listing page fetch.
func ObservePageFetch(pageURL string, status string) {
	scrapePagesTotal.WithLabelValues(SanitizeSite(pageURL), status).Inc()
}

// ObserveScrapeRun records the outcome of one scrape run.
func ObserveScrapeRun(status string, records int, duration time.Duration) {
	scrapeRunsTotal.WithLabelValues(status).Inc()
	scrapeRunDurationSeconds.Observe(duration.Seconds())
	if records > 0 {
		scrapeRecordsTotal.Add(float64(records))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// SetSubscribers reports the current subscriber count.
func SetSubscribers(n int) {
	notifySubscribers.Set(float64(n))
}

// ObserveBroadcast counts a broadcast and its failed deliveries.
func ObserveBroadcast(failures int) {
	notifyBroadcastsTotal.Inc()
	if failures > 0 {
		notifyDeliveryFailuresTotal.Add(float64(failures))
	}
}

// ObserveRateLimitDelay records time a fetch waited for its site's limiter.
func ObserveRateLimitDelay(site string, d time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(site).Observe(d.Seconds())
}
