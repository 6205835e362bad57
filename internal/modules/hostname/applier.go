package hostname

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-viper/mapstructure/v2"

	"github.com/olivierlemasle/cloud-init/internal/core/domain"
	"github.com/olivierlemasle/cloud-init/internal/core/ports"
)

const ModuleName = "hostname"

type settings struct {
	// Hostname overrides the metadata-provided name.
	Hostname string `mapstructure:"hostname"`
	// Path defaults to /etc/hostname.
	Path string `mapstructure:"path"`
}

// Applier writes the instance hostname file during the local stage.
type Applier struct {
	logger ports.Logger
}

func NewApplier(logger ports.Logger) *Applier {
	return &Applier{logger: logger}
}

func (a *Applier) Name() string {
	return ModuleName
}

func (a *Applier) Apply(ctx context.Context, metadata *domain.InstanceMetadata, raw map[string]any) ports.ApplyResult {
	var cfg settings
	if err := mapstructure.Decode(raw, &cfg); err != nil {
		return ports.ApplyResult{Status: ports.ApplyFatal, Detail: fmt.Sprintf("invalid hostname settings: %v", err)}
	}
	if cfg.Path == "" {
		cfg.Path = "/etc/hostname"
	}

	name := cfg.Hostname
	if name == "" {
		name = metadata.Hostname
	}
	if name == "" {
		name = metadata.LocalHostname
	}
	if name == "" {
		// Nothing to set is a degraded boot, not a broken one.
		return ports.ApplyResult{Status: ports.ApplyRecoverable, Detail: "no hostname available from settings or metadata"}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return ports.ApplyResult{Status: ports.ApplyFatal, Detail: fmt.Sprintf("cannot create %s: %v", filepath.Dir(cfg.Path), err)}
	}
	if err := os.WriteFile(cfg.Path, []byte(name+"\n"), 0o644); err != nil {
		return ports.ApplyResult{Status: ports.ApplyFatal, Detail: fmt.Sprintf("cannot write %s: %v", cfg.Path, err)}
	}
	a.logger.Infof(ctx, "hostname set to %s", name)
	return ports.ApplyResult{Status: ports.ApplySuccess, Detail: "hostname " + name}
}
