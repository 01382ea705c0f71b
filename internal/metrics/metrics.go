package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the rawdata collectors. It implements the metrics hooks of
// eventlog, listing and the Pebble metadata store.
type Metrics struct {
	registry *prometheus.Registry

	PublishedMessages *prometheus.CounterVec
	PublishedBytes    *prometheus.CounterVec
	PublishDuration   *prometheus.HistogramVec
	SealedSegments    *prometheus.CounterVec
	SegmentBytes      *prometheus.HistogramVec
	SegmentAge        *prometheus.HistogramVec
	DeliveredMessages *prometheus.CounterVec
	CorruptSegments   *prometheus.CounterVec
	Listings          *prometheus.CounterVec
	ListingDuration   *prometheus.HistogramVec
	ListedSegments    *prometheus.GaugeVec
	MetadataOps       *prometheus.CounterVec
	MetadataDuration  *prometheus.HistogramVec
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		PublishedMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rawdata_published_messages_total",
			Help: "Messages published by producers.",
		}, []string{"topic"}),
		PublishedBytes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rawdata_published_bytes_total",
			Help: "Encoded record bytes published by producers.",
		}, []string{"topic"}),
		PublishDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rawdata_publish_duration_seconds",
			Help:    "Duration of one publish call including sync.",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
		SealedSegments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rawdata_sealed_segments_total",
			Help: "Segments sealed and published.",
		}, []string{"topic"}),
		SegmentBytes: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rawdata_segment_bytes",
			Help:    "Record bytes per sealed segment.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		}, []string{"topic"}),
		SegmentAge: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rawdata_segment_age_seconds",
			Help:    "Time a segment stayed open.",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 10),
		}, []string{"topic"}),
		DeliveredMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rawdata_delivered_messages_total",
			Help: "Messages delivered to consumers.",
		}, []string{"topic"}),
		CorruptSegments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rawdata_corrupt_segments_total",
			Help: "Segments skipped because they could not be decoded.",
		}, []string{"topic"}),
		Listings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rawdata_backend_listings_total",
			Help: "Backend segment listings by result.",
		}, []string{"topic", "result"}),
		ListingDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rawdata_backend_listing_duration_seconds",
			Help:    "Duration of backend segment listings.",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
		ListedSegments: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rawdata_listed_segments",
			Help: "Segments returned by the last successful listing.",
		}, []string{"topic"}),
		MetadataOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rawdata_metadata_operations_total",
			Help: "Operations on the filesystem metadata store.",
		}, []string{"op"}),
		MetadataDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rawdata_metadata_operation_duration_seconds",
			Help:    "Duration of filesystem metadata store operations.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"op"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rawdata_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rawdata_http_request_duration_seconds",
			Help:    "HTTP request duration. Tail streams are excluded.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObservePublish implements eventlog.MetricsHook.
func (m *Metrics) ObservePublish(topic string, messages int, bytes int64, elapsed time.Duration) {
	m.PublishedMessages.WithLabelValues(topic).Add(float64(messages))
	m.PublishedBytes.WithLabelValues(topic).Add(float64(bytes))
	m.PublishDuration.WithLabelValues(topic).Observe(elapsed.Seconds())
}

// ObserveSeal implements eventlog.MetricsHook.
func (m *Metrics) ObserveSeal(topic string, messages int, bytes int64, age time.Duration) {
	m.SealedSegments.WithLabelValues(topic).Inc()
	m.SegmentBytes.WithLabelValues(topic).Observe(float64(bytes))
	m.SegmentAge.WithLabelValues(topic).Observe(age.Seconds())
}

// ObserveDelivery implements eventlog.MetricsHook.
func (m *Metrics) ObserveDelivery(topic string) {
	m.DeliveredMessages.WithLabelValues(topic).Inc()
}

// ObserveCorruptSegment implements eventlog.MetricsHook.
func (m *Metrics) ObserveCorruptSegment(topic string) {
	m.CorruptSegments.WithLabelValues(topic).Inc()
}

// ObserveListing implements listing.MetricsHook.
func (m *Metrics) ObserveListing(topic string, elapsed time.Duration, keys int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	} else {
		m.ListedSegments.WithLabelValues(topic).Set(float64(keys))
	}
	m.Listings.WithLabelValues(topic, result).Inc()
	m.ListingDuration.WithLabelValues(topic).Observe(elapsed.Seconds())
}

// ObserveMetadata implements pebblestore.MetricsHook.
func (m *Metrics) ObserveMetadata(op string, elapsed time.Duration, _ int) {
	m.MetadataOps.WithLabelValues(op).Inc()
	m.MetadataDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}
