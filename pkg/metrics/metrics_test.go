package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCollector_RecordOperation(t *testing.T) {
	collector := NewCollector()
	ctx := context.Background()

	collector.RecordOperation(ctx, "apply_evidence", "success", 1000)
	collector.RecordOperation(ctx, "apply_evidence", "success", 1500)
	collector.RecordOperation(ctx, "apply_evidence", "error", 500)
	collector.RecordOperation(ctx, "recommend", "success", 200)

	if got := testutil.CollectAndCount(collector.operationsTotal); got != 3 {
		t.Errorf("expected 3 metric series, got %d", got)
	}

	success := testutil.ToFloat64(collector.operationsTotal.WithLabelValues("apply_evidence", "success"))
	if success != 2 {
		t.Errorf("expected 2 apply_evidence/success operations, got %f", success)
	}
}

func TestMetricsCollector_RecordError(t *testing.T) {
	collector := NewCollector()
	ctx := context.Background()

	collector.RecordError(ctx, "apply_evidence", "store")
	collector.RecordError(ctx, "apply_evidence", "store")
	collector.RecordError(ctx, "analyze", "llm")

	storeErrors := testutil.ToFloat64(collector.errorsTotal.WithLabelValues("apply_evidence", "store"))
	if storeErrors != 2 {
		t.Errorf("expected 2 store errors, got %f", storeErrors)
	}
}

func TestMetricsCollector_SetGraphCount(t *testing.T) {
	collector := NewCollector()
	ctx := context.Background()

	collector.SetGraphCount(ctx, "concepts", 42)
	collector.SetGraphCount(ctx, "concepts", 43)

	if got := testutil.ToFloat64(collector.graphCount.WithLabelValues("concepts")); got != 43 {
		t.Errorf("expected gauge 43, got %f", got)
	}
}
