package nocloud

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/olivierlemasle/cloud-init/internal/core/domain"
	"github.com/olivierlemasle/cloud-init/internal/core/ports"
	"github.com/olivierlemasle/cloud-init/internal/errors"
)

const DatasourceTypeNoCloud = "nocloud"

const (
	metaDataFile      = "meta-data"
	userDataFile      = "user-data"
	vendorDataFile    = "vendor-data"
	networkConfigFile = "network-config"
)

type Config struct {
	SeedDir string
	SeedISO string
}

// metaData is the YAML document at the root of a seed.
type metaData struct {
	InstanceID       string   `yaml:"instance-id"`
	Hostname         string   `yaml:"hostname"`
	LocalHostname    string   `yaml:"local-hostname"`
	AvailabilityZone string   `yaml:"availability-zone"`
	Region           string   `yaml:"region"`
	PublicKeys       []string `yaml:"public-keys"`
	// SeedFrom points at an HTTP base URL holding the real seed pair;
	// the local seed then only bootstraps the location.
	SeedFrom string `yaml:"seedfrom"`
}

// Datasource reads instance metadata from a local seed: either a plain
// directory or an ISO9660 volume (conventionally labeled "cidata")
// holding meta-data, user-data and friends at its root.
type Datasource struct {
	cfg       Config
	transport ports.Transport
	logger    ports.Logger
}

func New(cfg Config, transport ports.Transport, logger ports.Logger) (*Datasource, error) {
	if cfg.SeedDir == "" && cfg.SeedISO == "" {
		return nil, errors.New(errors.CodeConfigValidation, "nocloud requires seed_dir or seed_iso")
	}
	return &Datasource{cfg: cfg, transport: transport, logger: logger}, nil
}

func (d *Datasource) Type() string {
	return DatasourceTypeNoCloud
}

// Detect checks for a readable seed without parsing it.
func (d *Datasource) Detect(ctx context.Context) (bool, error) {
	return d.seedLocation() != "", nil
}

func (d *Datasource) DetectionFingerprint() string {
	return d.seedLocation()
}

// seedLocation returns the seed path that exists, directory first.
func (d *Datasource) seedLocation() string {
	if d.cfg.SeedDir != "" {
		if _, err := os.Stat(filepath.Join(d.cfg.SeedDir, metaDataFile)); err == nil {
			return d.cfg.SeedDir
		}
	}
	if d.cfg.SeedISO != "" {
		if _, err := os.Stat(d.cfg.SeedISO); err == nil {
			return d.cfg.SeedISO
		}
	}
	return ""
}

// LocalInstanceID reads only the seed's meta-data document, giving the
// resolver a cheap identity check against the cache.
func (d *Datasource) LocalInstanceID(ctx context.Context) (string, bool) {
	seed, err := d.openSeed()
	if err != nil {
		return "", false
	}
	raw, err := seed.readFile(metaDataFile)
	if err != nil {
		return "", false
	}
	var md metaData
	if err := yaml.Unmarshal(raw, &md); err != nil {
		return "", false
	}
	return md.InstanceID, md.InstanceID != ""
}

func (d *Datasource) Fetch(ctx context.Context) (*domain.InstanceMetadata, error) {
	seed, err := d.openSeed()
	if err != nil {
		return nil, err
	}

	rawMeta, err := seed.readFile(metaDataFile)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeFetchError, "seed has no readable meta-data")
	}
	var md metaData
	if err := yaml.Unmarshal(rawMeta, &md); err != nil {
		return nil, errors.Wrap(err, errors.CodeFetchError, "seed meta-data is not valid YAML")
	}

	userData, _ := seed.readFile(userDataFile)
	vendorData, _ := seed.readFile(vendorDataFile)
	networkRaw, _ := seed.readFile(networkConfigFile)

	if md.SeedFrom != "" {
		if d.transport == nil {
			return nil, errors.New(errors.CodeConfigValidation,
				fmt.Sprintf("seedfrom %s requires a transport", md.SeedFrom))
		}
		base := strings.TrimSuffix(md.SeedFrom, "/") + "/"
		remoteMeta, err := d.transport.Fetch(ctx, base+metaDataFile, 0)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(remoteMeta, &md); err != nil {
			return nil, errors.Wrap(err, errors.CodeFetchError, "remote meta-data is not valid YAML")
		}
		if remoteUser, err := d.transport.Fetch(ctx, base+userDataFile, 0); err == nil {
			userData = remoteUser
		}
	}

	if md.InstanceID == "" {
		return nil, errors.New(errors.CodeFetchError, "seed meta-data lacks instance-id")
	}

	var networkConfig map[string]any
	if len(networkRaw) > 0 {
		if err := yaml.Unmarshal(networkRaw, &networkConfig); err != nil {
			d.logger.Warnf(ctx, "seed network-config is not valid YAML, ignoring: %v", err)
			networkConfig = nil
		}
	}

	return &domain.InstanceMetadata{
		InstanceID:       md.InstanceID,
		Hostname:         md.Hostname,
		LocalHostname:    md.LocalHostname,
		AvailabilityZone: md.AvailabilityZone,
		Region:           md.Region,
		PublicSSHKeys:    md.PublicKeys,
		NetworkConfig:    networkConfig,
		UserData:         userData,
		VendorData:       vendorData,
		FetchedAt:        time.Now().UTC(),
	}, nil
}

// seedReader abstracts where seed files come from.
type seedReader interface {
	readFile(name string) ([]byte, error)
}

func (d *Datasource) openSeed() (seedReader, error) {
	location := d.seedLocation()
	if location == "" {
		return nil, errors.New(errors.CodeDetectionFailure, "no nocloud seed present")
	}
	if location == d.cfg.SeedISO {
		return &isoSeed{path: location}, nil
	}
	return &dirSeed{dir: location}, nil
}

type dirSeed struct {
	dir string
}

func (s *dirSeed) readFile(name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.dir, name))
}
