package core

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecorderObserve(t *testing.T) {
	rec := NewPrometheusMetricsRecorder()
	ctx := context.Background()

	rec.Observe(ctx, "ingest_study", true, 120*time.Millisecond)
	rec.Observe(ctx, "ingest_study", true, 80*time.Millisecond)
	rec.Observe(ctx, "ingest_study", false, 5*time.Millisecond)
	rec.Observe(ctx, "", true, time.Millisecond) // ignored

	if got := testutil.ToFloat64(rec.results.WithLabelValues("ingest_study", "success")); got != 2 {
		t.Fatalf("success = %v", got)
	}
	if got := testutil.ToFloat64(rec.results.WithLabelValues("ingest_study", "error")); got != 1 {
		t.Fatalf("error = %v", got)
	}
	if n := testutil.CollectAndCount(rec.durations); n != 1 {
		t.Fatalf("duration series = %d", n)
	}
}

func TestPrometheusRecorderRegistryIsSelfContained(t *testing.T) {
	rec := NewPrometheusMetricsRecorder()
	rec.Observe(context.Background(), "load_study", true, time.Millisecond)
	families, err := rec.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) != 2 {
		t.Fatalf("families = %d", len(families))
	}
}
