package service

import (
	"context"
	"sync"

	"github.com/olivierlemasle/cloud-init/internal/core/domain"
	"github.com/olivierlemasle/cloud-init/internal/core/ports"
)

// Resolver decides on each boot whether the cached metadata is still
// valid or a fresh probe is required, and memoizes the answer so repeated
// calls within one boot never re-probe.
type Resolver struct {
	prober     *Prober
	registry   *ComponentRegistry
	cache      ports.MetadataCache
	candidates []string
	opts       ProbeOptions
	logger     ports.Logger

	mu       sync.Mutex
	resolved *domain.InstanceMetadata
	err      error
	done     bool
}

func NewResolver(prober *Prober, registry *ComponentRegistry, cache ports.MetadataCache, candidates []string, opts ProbeOptions, logger ports.Logger) *Resolver {
	return &Resolver{
		prober:     prober,
		registry:   registry,
		cache:      cache,
		candidates: candidates,
		opts:       opts,
		logger:     logger,
	}
}

// Resolve returns this boot's instance metadata. The first call probes or
// revalidates the cache; subsequent calls return the same result.
func (r *Resolver) Resolve(ctx context.Context) (*domain.InstanceMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return r.resolved, r.err
	}
	r.resolved, r.err = r.resolve(ctx)
	r.done = true
	return r.resolved, r.err
}

func (r *Resolver) resolve(ctx context.Context) (*domain.InstanceMetadata, error) {
	if md, ok := r.fromCache(ctx); ok {
		return md, nil
	}

	candidates, err := r.registry.Candidates(r.candidates)
	if err != nil {
		return nil, err
	}

	md, ds, err := r.prober.Probe(ctx, candidates, r.opts)
	if err != nil {
		return nil, err
	}

	rec := domain.CacheRecord{
		Metadata:          *md,
		PlatformSignature: domain.PlatformSignature(ds.Type(), ds.DetectionFingerprint()),
		DatasourceType:    ds.Type(),
		SavedAt:           md.FetchedAt,
	}
	if err := r.cache.Save(rec); err != nil {
		// Failing to cache costs a re-probe next boot, nothing more.
		r.logger.Warnf(ctx, "could not persist metadata cache: %v", err)
	}
	return md, nil
}

// fromCache revalidates a cached record by re-running only the winning
// datasource's cheap local detection. A missing datasource, failed
// detect, or changed signature forces a full probe; the network fetch is
// skipped entirely on the happy path.
func (r *Resolver) fromCache(ctx context.Context) (*domain.InstanceMetadata, bool) {
	rec, ok, err := r.cache.Load()
	if err != nil {
		r.logger.Warnf(ctx, "metadata cache unreadable, forcing probe: %v", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	ds, err := r.registry.GetDatasource(rec.DatasourceType)
	if err != nil {
		r.logger.Warnf(ctx, "cached datasource %s no longer registered, forcing probe", rec.DatasourceType)
		return nil, false
	}

	detected, err := ds.Detect(ctx)
	if err != nil || !detected {
		r.logger.Infof(ctx, "cached platform %s no longer detected, forcing probe", rec.DatasourceType)
		r.discardCache(ctx)
		return nil, false
	}

	sig := domain.PlatformSignature(ds.Type(), ds.DetectionFingerprint())
	if sig != rec.PlatformSignature {
		r.logger.Infof(ctx, "platform signature changed for %s, forcing probe", rec.DatasourceType)
		r.discardCache(ctx)
		return nil, false
	}

	if checker, ok := ds.(InstanceIDChecker); ok {
		if id, known := checker.LocalInstanceID(ctx); known && id != rec.Metadata.InstanceID {
			r.logger.Infof(ctx, "instance id changed (%s -> %s), forcing probe", rec.Metadata.InstanceID, id)
			r.discardCache(ctx)
			return nil, false
		}
	}

	r.logger.Debugf(ctx, "reusing cached metadata from %s (instance-id %s)", rec.DatasourceType, rec.Metadata.InstanceID)
	md := rec.Metadata
	return &md, true
}

func (r *Resolver) discardCache(ctx context.Context) {
	if err := r.cache.Clear(); err != nil {
		r.logger.Warnf(ctx, "could not clear stale metadata cache: %v", err)
	}
}

// InstanceIDChecker is implemented by datasources that can read the
// instance id through a lightweight local check, letting the resolver
// notice a cloned disk without a network round-trip.
type InstanceIDChecker interface {
	LocalInstanceID(ctx context.Context) (string, bool)
}
