package mounts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/olivierlemasle/cloud-init/internal/core/domain"
	"github.com/olivierlemasle/cloud-init/internal/core/ports"
	"github.com/olivierlemasle/cloud-init/pkg/convert"
)

const ModuleName = "mounts"

const defaultFstabPath = "/etc/fstab.cloud-init"

// Applier renders ephemeral mount entries every boot. It is the
// canonical always-frequency module: ephemeral devices reappear empty
// after each stop/start, so the entries must be re-derived each time.
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
	fstabPath := defaultFstabPath
	if p, ok := raw["fstab_path"].(string); ok && p != "" {
		fstabPath = p
	}

	entries, err := mountEntries(raw["mounts"])
	if err != nil {
		return ports.ApplyResult{Status: ports.ApplyFatal, Detail: fmt.Sprintf("invalid mounts settings: %v", err)}
	}
	if len(entries) == 0 {
		return ports.ApplyResult{Status: ports.ApplySuccess, Detail: "no mounts declared"}
	}

	var b strings.Builder
	for _, fields := range entries {
		b.WriteString(strings.Join(fields, "\t"))
		b.WriteByte('\n')
	}

	if err := os.MkdirAll(filepath.Dir(fstabPath), 0o755); err != nil {
		return ports.ApplyResult{Status: ports.ApplyRecoverable, Detail: fmt.Sprintf("cannot create %s: %v", filepath.Dir(fstabPath), err)}
	}
	if err := os.WriteFile(fstabPath, []byte(b.String()), 0o644); err != nil {
		return ports.ApplyResult{Status: ports.ApplyRecoverable, Detail: fmt.Sprintf("cannot write %s: %v", fstabPath, err)}
	}
	a.logger.Infof(ctx, "rendered %d mount entries to %s", len(entries), fstabPath)
	return ports.ApplyResult{Status: ports.ApplySuccess, Detail: fmt.Sprintf("%d mount entries", len(entries))}
}

// mountEntries normalizes the declared mounts into fstab field rows.
// Each entry is [device, mountpoint, fstype, options]; missing trailing
// fields get defaults.
func mountEntries(raw any) ([][]string, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("mounts must be a list, got %T", raw)
	}
	entries := make([][]string, 0, len(list))
	for i, item := range list {
		fields, err := convert.ToSliceOfString(item)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("entry %d: need at least device and mountpoint", i)
		}
		for len(fields) < 4 {
			switch len(fields) {
			case 2:
				fields = append(fields, "auto")
			case 3:
				fields = append(fields, "defaults,nofail")
			}
		}
		entries = append(entries, fields)
	}
	return entries, nil
}
