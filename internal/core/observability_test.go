package core

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if rec.Name() == "" {
		t.Fatalf("expected generated export name")
	}
	ctx := context.Background()
	rec.Observe(ctx, "record_collection", true, 20*time.Millisecond)
	rec.Observe(ctx, "record_collection", true, 30*time.Millisecond)
	rec.Observe(ctx, "record_collection", false, 5*time.Millisecond)

	snap := rec.Snapshot()
	if snap.DurationsMS["record_collection"] != 55 {
		t.Fatalf("expected 55ms total, got %v", snap.DurationsMS["record_collection"])
	}
	if snap.Results["record_collection"]["success"] != 2 {
		t.Fatalf("expected 2 successes, got %v", snap.Results["record_collection"])
	}
	if snap.Results["record_collection"]["error"] != 1 {
		t.Fatalf("expected 1 error, got %v", snap.Results["record_collection"])
	}

	// Snapshot must be a copy, not a live view.
	snap.Results["record_collection"]["success"] = 99
	if rec.Snapshot().Results["record_collection"]["success"] != 2 {
		t.Fatalf("snapshot aliased internal state")
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusMetricsRecorder(reg)
	ctx := context.Background()
	rec.Observe(ctx, "record_collection", true, 20*time.Millisecond)
	rec.Observe(ctx, "record_collection", false, 10*time.Millisecond)
	rec.Observe(ctx, "attest_quality", true, 5*time.Millisecond)

	if got := testutil.ToFloat64(rec.results.WithLabelValues("record_collection", "success")); got != 1 {
		t.Fatalf("expected 1 success, got %v", got)
	}
	if got := testutil.ToFloat64(rec.results.WithLabelValues("record_collection", "error")); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
	if got := testutil.ToFloat64(rec.results.WithLabelValues("attest_quality", "success")); got != 1 {
		t.Fatalf("expected 1 success, got %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	if !names["herbtrace_service_operation_duration_seconds"] || !names["herbtrace_service_operation_results_total"] {
		t.Fatalf("expected herbtrace collectors, got %v", names)
	}
}

func TestServiceObservesMetrics(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	svc, _ := newTestService(t, WithMetrics(rec))
	ctx := context.Background()

	if _, err := svc.RecordCollection(ctx, collector, rajasthanCollection()); err != nil {
		t.Fatalf("record collection: %v", err)
	}
	if _, err := svc.RecordCollection(ctx, lab, rajasthanCollection()); err == nil {
		t.Fatalf("expected authorization failure")
	}

	snap := rec.Snapshot()
	if snap.Results[string(OpRecordCollection)]["success"] != 1 {
		t.Fatalf("success not observed: %v", snap.Results)
	}
	if snap.Results[string(OpRecordCollection)]["error"] != 1 {
		t.Fatalf("denial not observed: %v", snap.Results)
	}
}
