package domain

import "time"

type Stage string

const (
	StageLocal   Stage = "local"
	StageNetwork Stage = "network"
	StageConfig  Stage = "config"
	StageFinal   Stage = "final"
)

func (s Stage) String() string {
	return string(s)
}

// Stages returns all stages in boot order.
func Stages() []Stage {
	return []Stage{StageLocal, StageNetwork, StageConfig, StageFinal}
}

type Frequency string

const (
	FrequencyAlways      Frequency = "always"
	FrequencyPerInstance Frequency = "per-instance"
	FrequencyOnce        Frequency = "once"
)

func (f Frequency) String() string {
	return string(f)
}

// ModuleSpec declares one configuration module. Specs are configuration
// data, not behavior: the applier bound to Name does the work.
type ModuleSpec struct {
	Name         string         `yaml:"name" mapstructure:"name" validate:"required"`
	Stage        Stage          `yaml:"stage" mapstructure:"stage" validate:"required,oneof=local network config final"`
	Frequency    Frequency      `yaml:"frequency" mapstructure:"frequency" validate:"required,oneof=always per-instance once"`
	DependsOn    []string       `yaml:"depends_on" mapstructure:"depends_on"`
	BootCritical bool           `yaml:"boot_critical" mapstructure:"boot_critical"`
	Settings     map[string]any `yaml:"settings" mapstructure:"settings"`
}

type ModuleStatus string

const (
	ModuleRan     ModuleStatus = "ran"
	ModuleSkipped ModuleStatus = "skipped"
	ModuleFailed  ModuleStatus = "failed"
)

type ModuleOutcome struct {
	Name     string
	Status   ModuleStatus
	Detail   string
	Duration time.Duration
}

// StageResult enumerates what happened to every module of a stage, even
// under partial failure, so the boot controller can decide continue/halt.
type StageResult struct {
	Stage       Stage
	Ran         []ModuleOutcome
	Skipped     []ModuleOutcome
	Failed      []ModuleOutcome
	Aborted     bool
	AbortReason string
}

func (r *StageResult) Outcome(name string) (ModuleOutcome, bool) {
	for _, set := range [][]ModuleOutcome{r.Ran, r.Skipped, r.Failed} {
		for _, o := range set {
			if o.Name == name {
				return o, true
			}
		}
	}
	return ModuleOutcome{}, false
}
