package app

import (
	"context"

	"github.com/olivierlemasle/cloud-init/internal/config"
	"github.com/olivierlemasle/cloud-init/internal/core/domain"
	"github.com/olivierlemasle/cloud-init/internal/core/ports"
	"github.com/olivierlemasle/cloud-init/internal/core/service"
)

// Application ties the resolver and orchestrator to the boot sequence's
// four stage call points.
type Application struct {
	Resolver     *service.Resolver
	Orchestrator *service.StageOrchestrator
	Reporter     ports.Reporter
	Semaphores   ports.SemaphoreStore
	Cache        ports.MetadataCache
	Logger       ports.Logger
	Config       *config.Config
}

// RunStages resolves the datasource once and executes the given stages in
// order. Results are always reported, even under partial failure; the
// returned error is boot-fatal (no datasource, or a boot-critical module
// failed).
func (a *Application) RunStages(ctx context.Context, stages []domain.Stage) ([]domain.StageResult, error) {
	metadata, err := a.Resolver.Resolve(ctx)
	if err != nil {
		a.Logger.Errorf(ctx, err, "datasource resolution failed")
		return nil, err
	}
	a.Logger.Infof(ctx, "resolved instance %s on platform %s", metadata.InstanceID, metadata.Platform)

	var results []domain.StageResult
	var bootFatal error
	for _, stage := range stages {
		result, err := a.Orchestrator.RunStage(ctx, stage, metadata)
		results = append(results, result)
		if err != nil {
			bootFatal = err
			break
		}
	}

	if a.Reporter != nil {
		if err := a.Reporter.Report(ctx, results); err != nil {
			a.Logger.Warnf(ctx, "could not render stage report: %v", err)
		}
	}
	return results, bootFatal
}

// Status returns the persisted semaphore records for operator tooling.
func (a *Application) Status(ctx context.Context) ([]domain.SemaphoreRecord, error) {
	return a.Semaphores.List()
}

// Clean resets the persisted state so the next boot behaves like a fresh
// instance; this is the external "re-provisioned to clean" operation.
func (a *Application) Clean(ctx context.Context) error {
	if err := a.Cache.Clear(); err != nil {
		return err
	}
	records, err := a.Semaphores.List()
	if err != nil {
		return err
	}
	a.Logger.Infof(ctx, "clearing %d semaphore records", len(records))
	return a.Semaphores.Reset()
}
