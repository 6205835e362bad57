package writefiles

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/olivierlemasle/cloud-init/internal/core/domain"
	"github.com/olivierlemasle/cloud-init/internal/core/ports"
)

const ModuleName = "write-files"

type fileEntry struct {
	Path        string `mapstructure:"path"`
	Content     string `mapstructure:"content"`
	Permissions string `mapstructure:"permissions"`
}

type settings struct {
	Files []fileEntry `mapstructure:"files"`
	// Root prefixes every path; tests point it at a scratch directory.
	Root string `mapstructure:"root"`
}

// Applier materializes user-supplied files during the config stage.
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
		return ports.ApplyResult{Status: ports.ApplyFatal, Detail: fmt.Sprintf("invalid write-files settings: %v", err)}
	}
	if len(cfg.Files) == 0 {
		return ports.ApplyResult{Status: ports.ApplySuccess, Detail: "no files declared"}
	}

	var failures []string
	for _, entry := range cfg.Files {
		if entry.Path == "" {
			return ports.ApplyResult{Status: ports.ApplyFatal, Detail: "file entry without path"}
		}
		if err := a.writeOne(cfg.Root, entry); err != nil {
			a.logger.Warnf(ctx, "write-files: %v", err)
			failures = append(failures, entry.Path)
		}
	}

	if len(failures) > 0 {
		return ports.ApplyResult{
			Status: ports.ApplyRecoverable,
			Detail: fmt.Sprintf("%d of %d files not written: %s", len(failures), len(cfg.Files), strings.Join(failures, ", ")),
		}
	}
	return ports.ApplyResult{Status: ports.ApplySuccess, Detail: fmt.Sprintf("wrote %d files", len(cfg.Files))}
}

func (a *Applier) writeOne(root string, entry fileEntry) error {
	perm := os.FileMode(0o644)
	if entry.Permissions != "" {
		parsed, err := strconv.ParseUint(entry.Permissions, 8, 32)
		if err != nil {
			return fmt.Errorf("bad permissions %q for %s: %w", entry.Permissions, entry.Path, err)
		}
		perm = os.FileMode(parsed)
	}

	target := entry.Path
	if root != "" {
		target = filepath.Join(root, entry.Path)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("cannot create directory for %s: %w", entry.Path, err)
	}
	if err := os.WriteFile(target, []byte(entry.Content), perm); err != nil {
		return fmt.Errorf("cannot write %s: %w", entry.Path, err)
	}
	return nil
}
