package service

import (
	"fmt"
	"sync"

	"github.com/olivierlemasle/cloud-init/internal/core/ports"
	"github.com/olivierlemasle/cloud-init/internal/errors"
)

type ComponentRegistry struct {
	mu          sync.RWMutex
	datasources map[string]ports.Datasource
	appliers    map[string]ports.ModuleApplier
}

func NewComponentRegistry() *ComponentRegistry {
	return &ComponentRegistry{
		datasources: make(map[string]ports.Datasource),
		appliers:    make(map[string]ports.ModuleApplier),
	}
}

func (r *ComponentRegistry) RegisterDatasource(ds ports.Datasource) error {
	if ds == nil {
		return errors.New(errors.CodeInternal, "attempted to register nil datasource")
	}
	dsType := ds.Type()
	if dsType == "" {
		return errors.New(errors.CodeInternal, "datasource type cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.datasources[dsType]; exists {
		return errors.New(errors.CodeInternal, fmt.Sprintf("datasource type '%s' already registered", dsType))
	}
	r.datasources[dsType] = ds
	return nil
}

func (r *ComponentRegistry) GetDatasource(dsType string) (ports.Datasource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ds, exists := r.datasources[dsType]
	if !exists {
		return nil, errors.New(errors.CodeConfigValidation, fmt.Sprintf("datasource type '%s' not found", dsType))
	}
	return ds, nil
}

// Candidates resolves the configured datasource list into probe order.
// The list order is the priority order: index 0 is probed first.
func (r *ComponentRegistry) Candidates(list []string) ([]ports.Datasource, error) {
	candidates := make([]ports.Datasource, 0, len(list))
	for _, dsType := range list {
		ds, err := r.GetDatasource(dsType)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, ds)
	}
	return candidates, nil
}

func (r *ComponentRegistry) RegisterApplier(applier ports.ModuleApplier) error {
	if applier == nil {
		return errors.New(errors.CodeInternal, "attempted to register nil module applier")
	}
	name := applier.Name()
	if name == "" {
		return errors.New(errors.CodeInternal, "module applier name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.appliers[name]; exists {
		return errors.New(errors.CodeInternal, fmt.Sprintf("module applier '%s' already registered", name))
	}
	r.appliers[name] = applier
	return nil
}

func (r *ComponentRegistry) GetApplier(name string) (ports.ModuleApplier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	applier, exists := r.appliers[name]
	if !exists {
		return nil, errors.New(errors.CodeModuleNotFound, fmt.Sprintf("no applier registered for module '%s'", name))
	}
	return applier, nil
}
