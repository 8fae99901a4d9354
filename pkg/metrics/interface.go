package metrics

import "context"

// Collector is the interface for metrics collection. Implementations include
// the Prometheus-backed collector and the no-op collector (the default when
// the 'metrics' build tag is absent).
type Collector interface {
	RecordOperation(ctx context.Context, operation string, status string, durationMs int64)
	RecordError(ctx context.Context, operation string, errorType string)
	SetGraphCount(ctx context.Context, kind string, count int64)
}
