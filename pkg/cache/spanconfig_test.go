package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSpanConfigFileParsesTags(t *testing.T) {
	path := writeTempConfig(t, "/dev/sda id=foo volume=3\n/dev/sdb\n")

	entries, ec := LoadSpanConfigFile(path)
	require.True(t, ec.OK(), ec.String())
	require.Len(t, entries, 2)

	assert.Equal(t, "/dev/sda", entries[0].Path)
	assert.Equal(t, "foo", entries[0].ID)
	assert.Equal(t, 3, entries[0].VolIdx)

	assert.Equal(t, "/dev/sdb", entries[1].Path)
	assert.Equal(t, 0, entries[1].VolIdx)
}

func TestLoadSpanConfigFileRejectsOutOfRangeVolume(t *testing.T) {
	path := writeTempConfig(t, "/dev/sda volume=999\n")

	entries, ec := LoadSpanConfigFile(path)
	require.Len(t, entries, 1)
	assert.Equal(t, 0, entries[0].VolIdx)
	assert.False(t, ec.Empty())
}
