package devicegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFabricateSetsDeviceUID(t *testing.T) {
	f := New()
	d, err := f.Fabricate()
	require.NoError(t, err)
	require.NotEmpty(t, d.DeviceUID, "expected DeviceUID to be set")
	assert.Equal(t, d.CDID, d.DeviceUID, "expected DeviceUID to fall back to CDID")
}

func TestFabricateBatchDedupsOnDeviceUID(t *testing.T) {
	f := New()
	devices, err := FabricateBatch(f, 50)
	require.NoError(t, err)
	require.Len(t, devices, 50)

	seen := make(map[string]bool)
	for _, d := range devices {
		require.False(t, seen[d.DeviceUID], "duplicate device_uid %q in batch", d.DeviceUID)
		seen[d.DeviceUID] = true
	}
}

func TestFabricateProducesConsistentHardwareProfile(t *testing.T) {
	f := New()
	for i := 0; i < 20; i++ {
		d, err := f.Fabricate()
		require.NoError(t, err)
		assert.NotEmpty(t, d.DeviceType)
		assert.NotEmpty(t, d.DeviceBrand)
		assert.NotEmpty(t, d.Resolution)
	}
}
