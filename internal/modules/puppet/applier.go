package puppet

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"

	"github.com/olivierlemasle/cloud-init/internal/core/domain"
	"github.com/olivierlemasle/cloud-init/internal/core/ports"
	"github.com/olivierlemasle/cloud-init/pkg/convert"
)

const ModuleName = "puppet"

const (
	defaultConfPath          = "/etc/puppet/puppet.conf"
	defaultSSLDir            = "/var/lib/puppet/ssl"
	defaultCSRAttributesPath = "/etc/puppet/csr_attributes.yaml"
)

type settings struct {
	ConfFile          string         `mapstructure:"conf_file"`
	SSLDir            string         `mapstructure:"ssl_dir"`
	CSRAttributesPath string         `mapstructure:"csr_attributes_path"`
	Exec              bool           `mapstructure:"exec"`
	ExecArgs          []string       `mapstructure:"exec_args"`
	Conf              map[string]any `mapstructure:"conf"`
	CSRAttributes     map[string]any `mapstructure:"csr_attributes"`
}

// Applier configures the puppet agent from the instance's `puppet`
// settings: conf sections are written verbatim to puppet.conf, a ca_cert
// entry goes to the SSL dir instead, csr_attributes become a YAML file,
// and the agent can optionally be kicked once. Package installation is
// delegated to the external package applier.
type Applier struct {
	logger ports.Logger
	// runCommand is replaced by tests.
	runCommand func(ctx context.Context, name string, args ...string) error
}

func NewApplier(logger ports.Logger) *Applier {
	return &Applier{
		logger: logger,
		runCommand: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

func (a *Applier) Name() string {
	return ModuleName
}

func (a *Applier) Apply(ctx context.Context, metadata *domain.InstanceMetadata, raw map[string]any) ports.ApplyResult {
	if len(raw) == 0 {
		return ports.ApplyResult{Status: ports.ApplySuccess, Detail: "no puppet configuration present"}
	}

	var cfg settings
	if err := mapstructure.Decode(raw, &cfg); err != nil {
		return ports.ApplyResult{Status: ports.ApplyFatal, Detail: fmt.Sprintf("invalid puppet settings: %v", err)}
	}
	if cfg.ConfFile == "" {
		cfg.ConfFile = defaultConfPath
	}
	if cfg.SSLDir == "" {
		cfg.SSLDir = defaultSSLDir
	}
	if cfg.CSRAttributesPath == "" {
		cfg.CSRAttributesPath = defaultCSRAttributesPath
	}

	if len(cfg.Conf) > 0 {
		sections, err := a.renderSections(cfg, metadata)
		if err != nil {
			return ports.ApplyResult{Status: ports.ApplyFatal, Detail: err.Error()}
		}
		if err := writeFile(cfg.ConfFile, sections, 0o644); err != nil {
			return ports.ApplyResult{Status: ports.ApplyFatal, Detail: fmt.Sprintf("cannot write %s: %v", cfg.ConfFile, err)}
		}
		a.logger.Infof(ctx, "wrote puppet configuration to %s", cfg.ConfFile)
	}

	if len(cfg.CSRAttributes) > 0 {
		raw, err := yaml.Marshal(cfg.CSRAttributes)
		if err != nil {
			return ports.ApplyResult{Status: ports.ApplyFatal, Detail: fmt.Sprintf("cannot encode csr_attributes: %v", err)}
		}
		if err := writeFile(cfg.CSRAttributesPath, string(raw), 0o644); err != nil {
			return ports.ApplyResult{Status: ports.ApplyFatal, Detail: fmt.Sprintf("cannot write %s: %v", cfg.CSRAttributesPath, err)}
		}
	}

	if cfg.Exec {
		args := cfg.ExecArgs
		if len(args) == 0 {
			args = []string{"--test"}
		}
		if err := a.runCommand(ctx, "puppet", append([]string{"agent"}, args...)...); err != nil {
			return ports.ApplyResult{Status: ports.ApplyRecoverable, Detail: fmt.Sprintf("puppet agent run failed: %v", err)}
		}
	}

	return ports.ApplyResult{Status: ports.ApplySuccess, Detail: "puppet configured"}
}

// renderSections turns the conf document into INI text. The certname key
// supports %i (instance id) and %f (fqdn) substitution and is lowercased;
// a ca_cert key is diverted to the SSL directory instead of puppet.conf.
func (a *Applier) renderSections(cfg settings, metadata *domain.InstanceMetadata) (string, error) {
	sections, err := convert.ToSectionMap(cfg.Conf)
	if err != nil {
		return "", fmt.Errorf("malformed puppet conf document: %w", err)
	}

	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		body := sections[name]
		b.WriteString("[" + name + "]\n")

		keys := make([]string, 0, len(body))
		for k := range body {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			v := body[k]
			switch k {
			case "ca_cert":
				caPath := filepath.Join(cfg.SSLDir, "certs", "ca.pem")
				if err := writeFile(caPath, v, 0o644); err != nil {
					return "", fmt.Errorf("cannot write CA certificate to %s: %w", caPath, err)
				}
				continue
			case "certname":
				v = strings.ReplaceAll(v, "%i", metadata.InstanceID)
				v = strings.ReplaceAll(v, "%f", fqdn(metadata))
				v = strings.ToLower(v)
			}
			b.WriteString(k + " = " + v + "\n")
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func fqdn(metadata *domain.InstanceMetadata) string {
	if metadata.Hostname != "" {
		return metadata.Hostname
	}
	if metadata.LocalHostname != "" {
		return metadata.LocalHostname
	}
	host, _ := os.Hostname()
	return host
}

func writeFile(path, content string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), perm)
}
