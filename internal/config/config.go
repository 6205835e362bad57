package config

import (
	"time"

	"github.com/olivierlemasle/cloud-init/internal/core/domain"
	"github.com/olivierlemasle/cloud-init/internal/log"
)

type Config struct {
	Settings    SettingsConfig      `yaml:"settings" mapstructure:"settings"`
	Probe       ProbeConfig         `yaml:"probe" mapstructure:"probe"`
	Datasources DatasourceConfig    `yaml:"datasources" mapstructure:"datasources"`
	Modules     []domain.ModuleSpec `yaml:"modules" mapstructure:"modules" validate:"dive"`
	ManifestDir string              `yaml:"manifest_dir" mapstructure:"manifest_dir"`
}

type SettingsConfig struct {
	LogLevel     log.Level  `yaml:"log_level" mapstructure:"log_level"`
	LogFormat    log.Format `yaml:"log_format" mapstructure:"log_format"`
	StateDir     string     `yaml:"state_dir" mapstructure:"state_dir" validate:"required"`
	EventLogPath string     `yaml:"event_log_path" mapstructure:"event_log_path"`
	NoColor      bool       `yaml:"no_color" mapstructure:"no_color"`
}

type ProbeConfig struct {
	// PerCandidateTimeout bounds a single fetch attempt; a candidate is
	// abandoned after PerCandidateTimeout x (MaxRetries+1) aggregate time.
	PerCandidateTimeout time.Duration `yaml:"per_candidate_timeout" mapstructure:"per_candidate_timeout" validate:"gt=0"`
	MaxRetries          int           `yaml:"max_retries" mapstructure:"max_retries" validate:"gte=0"`
	// Concurrency > 1 probes candidates in parallel; priority order still
	// decides the winner.
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency" validate:"gte=1"`
}

type DatasourceConfig struct {
	// List is the candidate order; index 0 has the highest priority.
	List    []string       `yaml:"list" mapstructure:"list" validate:"required,min=1,dive,oneof=inmem nocloud ec2"`
	EC2     *EC2Config     `yaml:"ec2,omitempty" mapstructure:"ec2"`
	NoCloud *NoCloudConfig `yaml:"nocloud,omitempty" mapstructure:"nocloud"`
	InMem   *InMemConfig   `yaml:"inmem,omitempty" mapstructure:"inmem"`
}

type EC2Config struct {
	// Endpoint overrides the IMDS base URL, used by tests and proxies.
	Endpoint   string `yaml:"endpoint" mapstructure:"endpoint"`
	MaxRPS     int    `yaml:"max_rps" mapstructure:"max_rps"`
	DMIProduct string `yaml:"dmi_product_path" mapstructure:"dmi_product_path"`
}

type NoCloudConfig struct {
	SeedDir string `yaml:"seed_dir" mapstructure:"seed_dir"`
	SeedISO string `yaml:"seed_iso" mapstructure:"seed_iso"`
}

type InMemConfig struct {
	Metadata map[string]any `yaml:"metadata" mapstructure:"metadata"`
}

func (c *Config) ModulesForStage(stage domain.Stage) []domain.ModuleSpec {
	var specs []domain.ModuleSpec
	for _, m := range c.Modules {
		if m.Stage == stage {
			specs = append(specs, m)
		}
	}
	return specs
}

func (c *Config) ModuleNames() []string {
	names := make([]string, 0, len(c.Modules))
	for _, m := range c.Modules {
		names = append(names, m.Name)
	}
	return names
}

func DefaultConfig() *Config {
	return &Config{
		Settings: SettingsConfig{
			LogLevel:     log.LevelInfo,
			LogFormat:    log.FormatText,
			StateDir:     "/var/lib/cloud-init",
			EventLogPath: "/var/log/cloud-init-events.json",
		},
		Probe: ProbeConfig{
			PerCandidateTimeout: 10 * time.Second,
			MaxRetries:          3,
			Concurrency:         1,
		},
		Datasources: DatasourceConfig{
			List:    []string{"inmem", "nocloud", "ec2"},
			NoCloud: &NoCloudConfig{SeedDir: "/var/lib/cloud-init/seed/nocloud"},
			EC2:     &EC2Config{MaxRPS: 10},
		},
		Modules: []domain.ModuleSpec{
			{Name: "hostname", Stage: domain.StageLocal, Frequency: domain.FrequencyPerInstance},
			{Name: "write-files", Stage: domain.StageConfig, Frequency: domain.FrequencyPerInstance},
			{Name: "puppet", Stage: domain.StageConfig, Frequency: domain.FrequencyPerInstance, DependsOn: []string{"write-files"}},
			{Name: "mounts", Stage: domain.StageFinal, Frequency: domain.FrequencyAlways},
		},
	}
}
