package domain

import "time"

// InstanceMetadata is the resolved view of one launched instance, produced
// once per boot by the resolver and read-only to everything downstream.
type InstanceMetadata struct {
	InstanceID       string         `json:"instance_id"`
	Platform         string         `json:"platform"`
	Hostname         string         `json:"hostname,omitempty"`
	LocalHostname    string         `json:"local_hostname,omitempty"`
	AvailabilityZone string         `json:"availability_zone,omitempty"`
	Region           string         `json:"region,omitempty"`
	NetworkConfig    map[string]any `json:"network_config,omitempty"`
	UserData         []byte         `json:"user_data,omitempty"`
	VendorData       []byte         `json:"vendor_data,omitempty"`
	PublicSSHKeys    []string       `json:"public_ssh_keys,omitempty"`
	FetchedAt        time.Time      `json:"fetched_at"`
}

// CacheRecord is the persisted form of a successful probe. It is valid for
// reuse only while the winning datasource's cheap re-detection still yields
// the same platform signature.
type CacheRecord struct {
	Metadata          InstanceMetadata `json:"metadata"`
	PlatformSignature string           `json:"platform_signature"`
	DatasourceType    string           `json:"datasource_type"`
	SavedAt           time.Time        `json:"saved_at"`
}
