package service

import (
	"context"
	"fmt"
	"time"

	"github.com/olivierlemasle/cloud-init/internal/core/domain"
	"github.com/olivierlemasle/cloud-init/internal/core/ports"
	"github.com/olivierlemasle/cloud-init/internal/errors"
)

// StageOrchestrator runs the modules of one stage in dependency order,
// gating each on its persisted frequency semaphore. Modules never run
// concurrently within a stage.
type StageOrchestrator struct {
	registry   *ComponentRegistry
	semaphores ports.SemaphoreStore
	events     ports.EventSink
	logger     ports.Logger
	specs      []domain.ModuleSpec
	bootID     string
}

func NewStageOrchestrator(
	registry *ComponentRegistry,
	semaphores ports.SemaphoreStore,
	events ports.EventSink,
	logger ports.Logger,
	specs []domain.ModuleSpec,
	bootID string,
) (*StageOrchestrator, error) {
	if registry == nil {
		return nil, errors.New(errors.CodeConfigValidation, "component registry cannot be nil")
	}
	if semaphores == nil {
		return nil, errors.New(errors.CodeConfigValidation, "semaphore store cannot be nil")
	}
	if bootID == "" {
		bootID = CurrentBootID()
	}
	return &StageOrchestrator{
		registry:   registry,
		semaphores: semaphores,
		events:     events,
		logger:     logger,
		specs:      specs,
		bootID:     bootID,
	}, nil
}

// RunStage executes every module declared for the stage. A StageResult is
// always produced, even under partial failure; the returned error is
// non-nil only for configuration errors (the stage aborts before any
// module runs) and for a fatal failure of a boot-critical module.
func (o *StageOrchestrator) RunStage(ctx context.Context, stage domain.Stage, metadata *domain.InstanceMetadata) (domain.StageResult, error) {
	result := domain.StageResult{Stage: stage}
	if metadata == nil {
		return result, errors.New(errors.CodeInternal, "stage invoked without resolved metadata")
	}

	stageSpecs := o.stageSpecs(stage)
	ordered, err := topoOrder(stageSpecs, o.earlierModules(stage))
	if err != nil {
		result.Aborted = true
		result.AbortReason = err.Error()
		return result, err
	}

	o.emit(ctx, domain.Event{Timestamp: time.Now().UTC(), Stage: stage, Outcome: domain.EventStart})
	stageStart := time.Now()

	// Names whose fatal failure (or transitively skipped state) blocks
	// dependents declared later in the order.
	blocked := make(map[string]string)

	var bootFatal error
	for _, spec := range ordered {
		if bootFatal != nil {
			result.Skipped = append(result.Skipped, domain.ModuleOutcome{
				Name:   spec.Name,
				Status: domain.ModuleSkipped,
				Detail: "stage aborted by boot-critical failure",
			})
			continue
		}

		if blocker := o.blockedBy(spec, blocked); blocker != "" {
			detail := fmt.Sprintf("dependency '%s' did not complete", blocker)
			blocked[spec.Name] = detail
			result.Skipped = append(result.Skipped, domain.ModuleOutcome{Name: spec.Name, Status: domain.ModuleSkipped, Detail: detail})
			o.emit(ctx, domain.Event{Timestamp: time.Now().UTC(), Stage: stage, Module: spec.Name, Outcome: domain.EventSkip, Detail: detail})
			continue
		}

		outcome, fatal := o.runModule(ctx, stage, spec, metadata)
		switch outcome.Status {
		case domain.ModuleRan:
			result.Ran = append(result.Ran, outcome)
		case domain.ModuleSkipped:
			result.Skipped = append(result.Skipped, outcome)
		case domain.ModuleFailed:
			result.Failed = append(result.Failed, outcome)
			if fatal {
				blocked[spec.Name] = outcome.Detail
				if spec.BootCritical {
					result.Aborted = true
					result.AbortReason = fmt.Sprintf("boot-critical module '%s' failed: %s", spec.Name, outcome.Detail)
					bootFatal = errors.New(errors.CodeModuleFatal, result.AbortReason)
				}
			}
		}
	}

	o.emit(ctx, domain.Event{
		Timestamp:  time.Now().UTC(),
		Stage:      stage,
		Outcome:    stageOutcome(&result),
		DurationMs: time.Since(stageStart).Milliseconds(),
	})
	return result, bootFatal
}

func (o *StageOrchestrator) stageSpecs(stage domain.Stage) []domain.ModuleSpec {
	var specs []domain.ModuleSpec
	for _, spec := range o.specs {
		if spec.Stage == stage {
			specs = append(specs, spec)
		}
	}
	return specs
}

// earlierModules collects module names declared for stages that run
// before the given one; dependencies on them are satisfied externally.
func (o *StageOrchestrator) earlierModules(stage domain.Stage) map[string]struct{} {
	earlier := make(map[string]struct{})
	for _, s := range domain.Stages() {
		if s == stage {
			break
		}
		for _, spec := range o.specs {
			if spec.Stage == s {
				earlier[spec.Name] = struct{}{}
			}
		}
	}
	return earlier
}

func (o *StageOrchestrator) blockedBy(spec domain.ModuleSpec, blocked map[string]string) string {
	for _, dep := range spec.DependsOn {
		if _, ok := blocked[dep]; ok {
			return dep
		}
	}
	return ""
}

func (o *StageOrchestrator) runModule(ctx context.Context, stage domain.Stage, spec domain.ModuleSpec, metadata *domain.InstanceMetadata) (domain.ModuleOutcome, bool) {
	key := domain.SemaphoreKey(spec.Name, spec.Frequency, metadata.InstanceID, o.bootID)

	if spec.Frequency != domain.FrequencyAlways {
		_, exists, err := o.semaphores.Get(key)
		if err != nil {
			detail := fmt.Sprintf("semaphore read failed: %v", err)
			o.logger.Errorf(ctx, err, "module %s: %s", spec.Name, detail)
			o.emit(ctx, domain.Event{Timestamp: time.Now().UTC(), Stage: stage, Module: spec.Name, Outcome: domain.EventFailure, Detail: detail})
			return domain.ModuleOutcome{Name: spec.Name, Status: domain.ModuleFailed, Detail: detail}, false
		}
		if exists {
			detail := fmt.Sprintf("frequency %s already satisfied", spec.Frequency)
			o.logger.Debugf(ctx, "module %s skipped: %s", spec.Name, detail)
			o.emit(ctx, domain.Event{Timestamp: time.Now().UTC(), Stage: stage, Module: spec.Name, Outcome: domain.EventSkip, Detail: detail})
			return domain.ModuleOutcome{Name: spec.Name, Status: domain.ModuleSkipped, Detail: detail}, false
		}
	}

	applier, err := o.registry.GetApplier(spec.Name)
	if err != nil {
		detail := err.Error()
		o.logger.Errorf(ctx, err, "module %s has no applier", spec.Name)
		o.emit(ctx, domain.Event{Timestamp: time.Now().UTC(), Stage: stage, Module: spec.Name, Outcome: domain.EventFailure, Detail: detail})
		return domain.ModuleOutcome{Name: spec.Name, Status: domain.ModuleFailed, Detail: detail}, true
	}

	o.emit(ctx, domain.Event{Timestamp: time.Now().UTC(), Stage: stage, Module: spec.Name, Outcome: domain.EventStart})
	start := time.Now()
	res := o.apply(ctx, applier, metadata, spec.Settings)
	duration := time.Since(start)

	outcome := domain.ModuleOutcome{Name: spec.Name, Detail: res.Detail, Duration: duration}
	switch res.Status {
	case ports.ApplySuccess:
		outcome.Status = domain.ModuleRan
	case ports.ApplyRecoverable:
		outcome.Status = domain.ModuleFailed
		o.logger.Warnf(ctx, "module %s reported recoverable failure: %s", spec.Name, res.Detail)
	default:
		outcome.Status = domain.ModuleFailed
		o.logger.Errorf(ctx, nil, "module %s failed fatally: %s", spec.Name, res.Detail)
		o.emit(ctx, domain.Event{Timestamp: time.Now().UTC(), Stage: stage, Module: spec.Name, Outcome: domain.EventFailure, DurationMs: duration.Milliseconds(), Detail: res.Detail})
		return outcome, true
	}

	// The semaphore is written strictly after completion so that a crash
	// mid-module leaves no record and the module re-runs on restart.
	rec := domain.SemaphoreRecord{
		Module:  spec.Name,
		Scope:   key,
		RanAt:   time.Now().UTC(),
		Outcome: outcome.Status,
	}
	if err := o.semaphores.Put(key, rec); err != nil {
		outcome.Status = domain.ModuleFailed
		outcome.Detail = fmt.Sprintf("semaphore write failed: %v", err)
		o.logger.Errorf(ctx, err, "module %s: semaphore write failed", spec.Name)
		o.emit(ctx, domain.Event{Timestamp: time.Now().UTC(), Stage: stage, Module: spec.Name, Outcome: domain.EventFailure, DurationMs: duration.Milliseconds(), Detail: outcome.Detail})
		return outcome, false
	}

	eventOutcome := domain.EventSuccess
	if outcome.Status == domain.ModuleFailed {
		eventOutcome = domain.EventFailure
	}
	o.emit(ctx, domain.Event{Timestamp: time.Now().UTC(), Stage: stage, Module: spec.Name, Outcome: eventOutcome, DurationMs: duration.Milliseconds(), Detail: res.Detail})
	return outcome, false
}

// apply invokes the applier under a boundary that turns a panic into a
// fatal module failure instead of taking down the boot process.
func (o *StageOrchestrator) apply(ctx context.Context, applier ports.ModuleApplier, metadata *domain.InstanceMetadata, settings map[string]any) (res ports.ApplyResult) {
	defer func() {
		if r := recover(); r != nil {
			res = ports.ApplyResult{
				Status: ports.ApplyFatal,
				Detail: fmt.Sprintf("module panicked: %v", r),
			}
		}
	}()
	return applier.Apply(ctx, metadata, settings)
}

func (o *StageOrchestrator) emit(ctx context.Context, event domain.Event) {
	if o.events == nil {
		return
	}
	if err := o.events.Record(ctx, event); err != nil {
		o.logger.Warnf(ctx, "event sink rejected event for %s/%s: %v", event.Stage, event.Module, err)
	}
}

func stageOutcome(result *domain.StageResult) domain.EventOutcome {
	if result.Aborted || len(result.Failed) > 0 {
		return domain.EventFailure
	}
	return domain.EventSuccess
}
