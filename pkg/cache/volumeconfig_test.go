package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tscache/cachetool/pkg/units"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "volume.config")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadVolumeConfigParsesAbsoluteAndPercent(t *testing.T) {
	path := writeTempConfig(t, "volume=1 size=100\nvolume=2 size=50%\n")

	cfg, ec := LoadVolumeConfig(path)
	require.True(t, ec.OK(), ec.String())
	require.Len(t, cfg.Volumes, 2)

	assert.Equal(t, 1, cfg.Volumes[0].Idx)
	assert.Equal(t, units.Megabytes(100), cfg.Volumes[0].Size)
	assert.Equal(t, 2, cfg.Volumes[1].Idx)
	assert.Equal(t, 50, cfg.Volumes[1].Percent)
}

func TestLoadVolumeConfigRejectsMissingFields(t *testing.T) {
	path := writeTempConfig(t, "volume=1\nsize=100\n")

	cfg, ec := LoadVolumeConfig(path)
	assert.Empty(t, cfg.Volumes)
	assert.False(t, ec.Empty())
}

func TestLoadVolumeConfigRejectsDuplicateSizeField(t *testing.T) {
	path := writeTempConfig(t, "volume=1 size=100 size=200\n")

	cfg, ec := LoadVolumeConfig(path)
	require.Len(t, cfg.Volumes, 1)
	assert.Equal(t, units.Megabytes(100), cfg.Volumes[0].Size)
	assert.False(t, ec.Empty())
}

func TestValidatePercentAllocationRejectsOver100(t *testing.T) {
	cfg := &VolumeConfig{Volumes: []VolumeConfigEntry{
		{Idx: 1, Percent: 60},
		{Idx: 2, Percent: 60},
	}}

	ec := cfg.ValidatePercentAllocation()
	assert.False(t, ec.OK())
}

func TestValidatePercentAllocationAllowsExactly100(t *testing.T) {
	cfg := &VolumeConfig{Volumes: []VolumeConfigEntry{
		{Idx: 1, Percent: 40},
		{Idx: 2, Percent: 60},
	}}

	ec := cfg.ValidatePercentAllocation()
	assert.True(t, ec.OK())
}

func TestConvertToAbsolutePercentAndSize(t *testing.T) {
	cfg := &VolumeConfig{Volumes: []VolumeConfigEntry{
		{Idx: 1, Percent: 50},
		{Idx: 2, Size: units.Megabytes(300)},
	}}

	cfg.ConvertToAbsolute(units.StripeBlocks(10))
	assert.Equal(t, units.StripeBlocks(5), cfg.Volumes[0].Alloc)
	assert.Equal(t, units.Megabytes(300).RoundUpStripeBlocks(), cfg.Volumes[1].Alloc)
}
