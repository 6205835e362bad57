package ports

import (
	"context"

	"github.com/olivierlemasle/cloud-init/internal/core/domain"
)

type ApplyStatus string

const (
	ApplySuccess     ApplyStatus = "success"
	ApplyRecoverable ApplyStatus = "recoverable-failure"
	ApplyFatal       ApplyStatus = "fatal-failure"
)

type ApplyResult struct {
	Status ApplyStatus
	Detail string
}

// ModuleApplier performs the side effects of one named module. The
// recoverable/fatal boundary is the applier's policy; the orchestrator
// only interprets the returned classification.
type ModuleApplier interface {
	Name() string
	Apply(ctx context.Context, metadata *domain.InstanceMetadata, settings map[string]any) ApplyResult
}
