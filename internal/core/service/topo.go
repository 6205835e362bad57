package service

import (
	"fmt"

	"github.com/olivierlemasle/cloud-init/internal/core/domain"
	"github.com/olivierlemasle/cloud-init/internal/errors"
)

// topoOrder sorts a stage's modules so every module runs after the
// modules it depends on. Ties are broken by declaration order, which
// keeps runs reproducible. Dependencies on modules from earlier stages
// (present in external) are treated as already satisfied; a dependency
// that exists nowhere is a configuration error, as is a cycle.
func topoOrder(specs []domain.ModuleSpec, external map[string]struct{}) ([]domain.ModuleSpec, error) {
	inStage := make(map[string]int, len(specs))
	for i, spec := range specs {
		if _, dup := inStage[spec.Name]; dup {
			return nil, errors.New(errors.CodeConfigValidation,
				fmt.Sprintf("module '%s' declared twice in stage %s", spec.Name, spec.Stage))
		}
		inStage[spec.Name] = i
	}

	indegree := make([]int, len(specs))
	dependents := make([][]int, len(specs))
	for i, spec := range specs {
		for _, dep := range spec.DependsOn {
			if dep == spec.Name {
				return nil, errors.New(errors.CodeDependencyCycle,
					fmt.Sprintf("module '%s' depends on itself", spec.Name))
			}
			j, ok := inStage[dep]
			if !ok {
				if _, earlier := external[dep]; earlier {
					continue
				}
				return nil, errors.New(errors.CodeConfigValidation,
					fmt.Sprintf("module '%s' depends on unknown module '%s'", spec.Name, dep))
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	ordered := make([]domain.ModuleSpec, 0, len(specs))
	placed := make([]bool, len(specs))
	for len(ordered) < len(specs) {
		next := -1
		for i := range specs {
			if !placed[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next == -1 {
			return nil, errors.New(errors.CodeDependencyCycle,
				fmt.Sprintf("dependency cycle among modules in stage %s", specs[0].Stage))
		}
		placed[next] = true
		ordered = append(ordered, specs[next])
		for _, dep := range dependents[next] {
			indegree[dep]--
		}
	}
	return ordered, nil
}
