// Package metrics defines Prometheus metrics for the ingestion worker,
// covering invocations, token exchanges, content listing, record filtering,
// sink deliveries, and notification mails.
package metrics
