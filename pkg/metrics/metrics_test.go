package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInvocationMetricsExistAndIncrement(t *testing.T) {
	InvocationsStarted.Inc()
	if v := testutil.ToFloat64(InvocationsStarted); v < 1 {
		t.Fatalf("expected InvocationsStarted >= 1, got %v", v)
	}

	InvocationsFailed.WithLabelValues("token").Inc()
	if v := testutil.ToFloat64(InvocationsFailed.WithLabelValues("token")); v < 1 {
		t.Fatalf("expected InvocationsFailed >= 1, got %v", v)
	}

	StageDegraded.WithLabelValues("list").Add(2)
	if v := testutil.ToFloat64(StageDegraded.WithLabelValues("list")); v < 2 {
		t.Fatalf("expected StageDegraded >= 2, got %v", v)
	}
}

func TestSinkMetricsLabelCardinality(t *testing.T) {
	SinkWrites.Reset()
	defer SinkWrites.Reset()
	labels := []string{"loganalytics", "success"}
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("SinkWrites panicked with labels %v: %v", labels, r)
		}
	}()

	SinkWrites.WithLabelValues(labels...).Inc()
	if v := testutil.ToFloat64(SinkWrites.WithLabelValues(labels...)); v != 1 {
		t.Fatalf("expected metric value 1 after increment, got %v", v)
	}
}

func TestRecordMetrics(t *testing.T) {
	RecordsRelevant.Reset()
	defer RecordsRelevant.Reset()

	RecordsRelevant.WithLabelValues("record_type").Inc()
	if v := testutil.ToFloat64(RecordsRelevant.WithLabelValues("record_type")); v != 1 {
		t.Fatalf("expected RecordsRelevant == 1, got %v", v)
	}
}
