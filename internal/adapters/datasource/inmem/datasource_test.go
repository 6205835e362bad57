package inmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("empty document yields inert datasource", func(t *testing.T) {
		ds, err := New(nil)
		require.NoError(t, err)

		detected, err := ds.Detect(context.Background())
		require.NoError(t, err)
		assert.False(t, detected)

		_, err = ds.Fetch(context.Background())
		require.Error(t, err)
	})

	t.Run("instance_id required", func(t *testing.T) {
		_, err := New(map[string]any{"hostname": "nameless"})
		require.Error(t, err)
	})

	t.Run("malformed document rejected", func(t *testing.T) {
		_, err := New(map[string]any{"instance_id": "i-1", "public_ssh_keys": 42})
		require.Error(t, err)
	})
}

func TestFetch(t *testing.T) {
	ds, err := New(map[string]any{
		"instance_id":       "i-embedded",
		"hostname":          "appliance.local",
		"availability_zone": "zone-a",
		"region":            "region-1",
		"user_data":         "#cloud-config\n",
		"public_ssh_keys":   []string{"ssh-ed25519 AAAA test"},
		"network_config":    map[string]any{"version": 2},
	})
	require.NoError(t, err)

	detected, err := ds.Detect(context.Background())
	require.NoError(t, err)
	assert.True(t, detected)
	assert.Equal(t, "embedded:i-embedded", ds.DetectionFingerprint())

	md, err := ds.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "i-embedded", md.InstanceID)
	assert.Equal(t, "appliance.local", md.Hostname)
	assert.Equal(t, "zone-a", md.AvailabilityZone)
	assert.Equal(t, "region-1", md.Region)
	assert.Equal(t, "#cloud-config\n", string(md.UserData))
	assert.Equal(t, []string{"ssh-ed25519 AAAA test"}, md.PublicSSHKeys)
	assert.Equal(t, map[string]any{"version": 2}, md.NetworkConfig)
	assert.False(t, md.FetchedAt.IsZero())

	id, ok := ds.LocalInstanceID(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "i-embedded", id)
}
