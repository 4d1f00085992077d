// Package metrics exposes Prometheus collectors for the crawler.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerPagesTotal              prometheus.Counter
	crawlerListingsTotal           *prometheus.CounterVec
	crawlerExtractionFailuresTotal prometheus.Counter
	crawlerBlocksTotal             prometheus.Counter
	crawlerIdentityRotationsTotal  prometheus.Counter
	crawlerDelaySeconds            prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of results pages processed.",
			},
		)

		crawlerListingsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_listings_total",
				Help: "Total number of listings processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlerExtractionFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_extraction_failures_total",
				Help: "Total detail pages that were missing required content.",
			},
		)

		crawlerBlocksTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_blocks_total",
				Help: "Total anti-bot interstitials encountered.",
			},
		)

		crawlerIdentityRotationsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_identity_rotations_total",
				Help: "Total Tor identity rotations performed.",
			},
		)

		crawlerDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_delay_seconds",
				Help:    "Histogram of politeness delays between requests.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30},
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage counts one processed results page.
func ObservePage() {
	crawlerPagesTotal.Inc()
}

// ObserveListing counts one processed listing by outcome
// ("saved", "duplicate", "failed", "skipped").
func ObserveListing(outcome string) {
	crawlerListingsTotal.WithLabelValues(outcome).Inc()
}

// ObserveExtractionFailure counts one detail page missing required content.
func ObserveExtractionFailure() {
	crawlerExtractionFailuresTotal.Inc()
}

// ObserveBlock counts one anti-bot interstitial.
func ObserveBlock() {
	crawlerBlocksTotal.Inc()
}

// ObserveIdentityRotation counts one Tor identity rotation.
func ObserveIdentityRotation() {
	crawlerIdentityRotationsTotal.Inc()
}

// ObserveDelay records the duration of one politeness pause.
func ObserveDelay(seconds float64) {
	crawlerDelaySeconds.Observe(seconds)
}
