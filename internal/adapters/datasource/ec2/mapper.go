package ec2

import (
	"context"
	"fmt"
	"strings"
)

// fetchPublicKeys walks the public-keys listing ("0=my-key" per line) and
// pulls each key's openssh material.
func (d *Datasource) fetchPublicKeys(ctx context.Context) ([]string, error) {
	listing, err := d.metadataString(ctx, "public-keys")
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	var keys []string
	for _, line := range strings.Split(listing, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idx, _, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key, err := d.metadataString(ctx, fmt.Sprintf("public-keys/%s/openssh-key", idx))
		if err != nil {
			d.logger.Debugf(ctx, "public key %s unavailable: %v", idx, err)
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// fetchNetworkConfig shapes the per-MAC interface listing into the opaque
// network document consumers receive. Only addressing facts are
// collected; rendering them into OS config is someone else's job.
func (d *Datasource) fetchNetworkConfig(ctx context.Context) (map[string]any, error) {
	listing, err := d.metadataString(ctx, "network/interfaces/macs")
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	interfaces := make(map[string]any)
	for _, line := range strings.Split(listing, "\n") {
		mac := strings.TrimSuffix(strings.TrimSpace(line), "/")
		if mac == "" {
			continue
		}
		iface := make(map[string]any)
		for _, attr := range []string{"local-ipv4s", "subnet-ipv4-cidr-block", "device-number"} {
			value, err := d.metadataString(ctx, fmt.Sprintf("network/interfaces/macs/%s/%s", mac, attr))
			if err != nil {
				continue
			}
			iface[attr] = value
		}
		interfaces[mac] = iface
	}
	if len(interfaces) == 0 {
		return nil, nil
	}
	return map[string]any{"version": 1, "macs": interfaces}, nil
}
