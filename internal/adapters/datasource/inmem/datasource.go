package inmem

import (
	"context"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/olivierlemasle/cloud-init/internal/core/domain"
	"github.com/olivierlemasle/cloud-init/internal/errors"
)

const DatasourceTypeInMem = "inmem"

// document is the shape of the metadata block embedded in the app
// configuration. Opaque payloads arrive as strings.
type document struct {
	InstanceID       string         `mapstructure:"instance_id"`
	Hostname         string         `mapstructure:"hostname"`
	LocalHostname    string         `mapstructure:"local_hostname"`
	AvailabilityZone string         `mapstructure:"availability_zone"`
	Region           string         `mapstructure:"region"`
	NetworkConfig    map[string]any `mapstructure:"network_config"`
	UserData         string         `mapstructure:"user_data"`
	VendorData       string         `mapstructure:"vendor_data"`
	PublicSSHKeys    []string       `mapstructure:"public_ssh_keys"`
}

// Datasource serves metadata supplied directly in the configuration.
// Useful for appliance images and tests; it is the cheapest candidate and
// sits first in the default probe order.
type Datasource struct {
	doc *document
}

func New(raw map[string]any) (*Datasource, error) {
	if len(raw) == 0 {
		return &Datasource{}, nil
	}
	var doc document
	if err := mapstructure.Decode(raw, &doc); err != nil {
		return nil, errors.Wrap(err, errors.CodeConfigParseError, "invalid inmem metadata document")
	}
	if doc.InstanceID == "" {
		return nil, errors.New(errors.CodeConfigValidation, "inmem metadata requires instance_id")
	}
	return &Datasource{doc: &doc}, nil
}

func (d *Datasource) Type() string {
	return DatasourceTypeInMem
}

func (d *Datasource) Detect(ctx context.Context) (bool, error) {
	return d.doc != nil, nil
}

func (d *Datasource) DetectionFingerprint() string {
	if d.doc == nil {
		return ""
	}
	return "embedded:" + d.doc.InstanceID
}

func (d *Datasource) LocalInstanceID(ctx context.Context) (string, bool) {
	if d.doc == nil {
		return "", false
	}
	return d.doc.InstanceID, true
}

func (d *Datasource) Fetch(ctx context.Context) (*domain.InstanceMetadata, error) {
	if d.doc == nil {
		return nil, errors.New(errors.CodeDetectionFailure, "no embedded metadata configured")
	}
	md := &domain.InstanceMetadata{
		InstanceID:       d.doc.InstanceID,
		Hostname:         d.doc.Hostname,
		LocalHostname:    d.doc.LocalHostname,
		AvailabilityZone: d.doc.AvailabilityZone,
		Region:           d.doc.Region,
		NetworkConfig:    d.doc.NetworkConfig,
		PublicSSHKeys:    d.doc.PublicSSHKeys,
		FetchedAt:        time.Now().UTC(),
	}
	if d.doc.UserData != "" {
		md.UserData = []byte(d.doc.UserData)
	}
	if d.doc.VendorData != "" {
		md.VendorData = []byte(d.doc.VendorData)
	}
	return md, nil
}
