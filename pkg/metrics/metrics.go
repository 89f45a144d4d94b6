package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Invocation lifecycle metrics
	InvocationsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auditingest_invocations_started_total",
		Help: "Total number of ingestion invocations started",
	})
	InvocationsSucceeded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auditingest_invocations_succeeded_total",
		Help: "Total number of ingestion invocations that completed successfully",
	})
	InvocationsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auditingest_invocations_failed_total",
		Help: "Total number of ingestion invocations that failed, grouped by stage",
	}, []string{"stage"})
	InvocationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "auditingest_invocation_duration_seconds",
		Help:    "Duration of ingestion invocations",
		Buckets: prometheus.DefBuckets,
	})

	// Token metrics
	TokenExchanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auditingest_token_exchanges_total",
		Help: "Total number of client-credential token exchanges performed",
	}, []string{"outcome"})
	TokenCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auditingest_token_cache_hits_total",
		Help: "Total number of token requests served from the in-memory cache",
	})

	// Source API metrics
	StageDegraded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auditingest_stage_degraded_total",
		Help: "Total number of non-fatal stage failures that were degraded and skipped",
	}, []string{"stage"})
	ContentBlobsListed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auditingest_content_blobs_listed_total",
		Help: "Total number of content blob references returned by the listing endpoint",
	})
	RecordsFetched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auditingest_records_fetched_total",
		Help: "Total number of raw audit records fetched from content blobs",
	})
	RecordsRelevant = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auditingest_records_relevant_total",
		Help: "Total number of records classified as relevant, grouped by the matching predicate",
	}, []string{"predicate"})

	// Sink metrics
	SinkWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auditingest_sink_writes_total",
		Help: "Total number of batch writes per sink and outcome",
	}, []string{"sink", "outcome"})
	SinkRecordsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auditingest_sink_records_written_total",
		Help: "Total number of records delivered per sink",
	}, []string{"sink"})

	// Notification metrics
	NotificationsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auditingest_notifications_sent_total",
		Help: "Total number of failure notification mails, grouped by outcome",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(InvocationsStarted)
	prometheus.MustRegister(InvocationsSucceeded)
	prometheus.MustRegister(InvocationsFailed)
	prometheus.MustRegister(InvocationDuration)
	prometheus.MustRegister(TokenExchanges)
	prometheus.MustRegister(TokenCacheHits)
	prometheus.MustRegister(StageDegraded)
	prometheus.MustRegister(ContentBlobsListed)
	prometheus.MustRegister(RecordsFetched)
	prometheus.MustRegister(RecordsRelevant)
	prometheus.MustRegister(SinkWrites)
	prometheus.MustRegister(SinkRecordsWritten)
	prometheus.MustRegister(NotificationsSent)
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
