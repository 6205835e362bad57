package ports

import (
	"context"

	"github.com/olivierlemasle/cloud-init/internal/core/domain"
)

// EventSink receives per-stage and per-module telemetry events. Sink
// failures are logged, never allowed to affect module execution.
type EventSink interface {
	Record(ctx context.Context, event domain.Event) error
}

// Reporter renders stage results for an operator.
type Reporter interface {
	Report(ctx context.Context, results []domain.StageResult) error
}
