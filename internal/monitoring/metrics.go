package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DownloadsTotal tracks completed and failed downloads
	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunecache_downloads_total",
			Help: "Total number of downloads",
		},
		[]string{"status"},
	)

	// DownloadDuration tracks download duration in seconds
	DownloadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tunecache_download_duration_seconds",
			Help:    "Download duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17min
		},
	)

	// ActiveDownloads tracks the size of the in-flight set
	ActiveDownloads = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tunecache_active_downloads",
			Help: "Number of downloads currently in flight",
		},
	)

	// DownloadBytesTotal tracks total payload bytes downloaded
	DownloadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tunecache_download_bytes_total",
			Help: "Total bytes downloaded",
		},
	)

	// CachedItems tracks the reconciled item count per owner aggregate
	CachedItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tunecache_cached_items",
			Help: "Number of items in the local cache",
		},
	)

	// CachedBytes tracks the reconciled byte total
	CachedBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tunecache_cached_bytes",
			Help: "Total bytes held in the local cache",
		},
	)

	// ConnectivityState reports the resolved connectivity state (one-hot)
	ConnectivityState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tunecache_connectivity_state",
			Help: "Current connectivity state (1 for the active state)",
		},
		[]string{"state"},
	)

	// ProbeDuration tracks reachability probe duration by outcome
	ProbeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tunecache_probe_duration_seconds",
			Help:    "Reachability probe duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	// CatalogRequestsTotal tracks catalog API requests by endpoint and status
	CatalogRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunecache_catalog_requests_total",
			Help: "Total number of catalog API requests",
		},
		[]string{"endpoint", "status"},
	)

	// CatalogRequestDuration tracks catalog API request duration
	CatalogRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tunecache_catalog_request_duration_seconds",
			Help:    "Catalog API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// ErrorsTotal tracks errors by type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunecache_errors_total",
			Help: "Total number of errors",
		},
		[]string{"type"},
	)
)

// RecordDownloadStart records the start of a download
func RecordDownloadStart() {
	ActiveDownloads.Inc()
}

// RecordDownloadComplete records a completed download
func RecordDownloadComplete(duration time.Duration, bytes int64) {
	DownloadsTotal.WithLabelValues("completed").Inc()
	DownloadDuration.Observe(duration.Seconds())
	DownloadBytesTotal.Add(float64(bytes))
	ActiveDownloads.Dec()
}

// RecordDownloadFailed records a failed download
func RecordDownloadFailed(errorType string) {
	DownloadsTotal.WithLabelValues("failed").Inc()
	ErrorsTotal.WithLabelValues(errorType).Inc()
	ActiveDownloads.Dec()
}

// UpdateCacheStats updates the reconciled cache gauges
func UpdateCacheStats(count int, totalBytes int64) {
	CachedItems.Set(float64(count))
	CachedBytes.Set(float64(totalBytes))
}

// SetConnectivityState sets the one-hot connectivity state gauge
func SetConnectivityState(state string) {
	for _, s := range []string{"checking", "online", "offline"} {
		value := 0.0
		if s == state {
			value = 1.0
		}
		ConnectivityState.WithLabelValues(s).Set(value)
	}
}

// RecordProbe records one reachability probe
func RecordProbe(duration time.Duration, ok bool) {
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	ProbeDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordCatalogRequest records a catalog API request
func RecordCatalogRequest(endpoint, status string, duration time.Duration) {
	CatalogRequestsTotal.WithLabelValues(endpoint, status).Inc()
	CatalogRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordError records an error by type
func RecordError(errorType string) {
	ErrorsTotal.WithLabelValues(errorType).Inc()
}
