package cache

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVolumeAllocatorFillEmptySpansDistributesByDeficit(t *testing.T) {
	spanPath := createTestSpanFile(t, 300*1024*1024)
	spanConfigPath := writeTempConfig(t, spanPath+"\n")
	volumePath := writeTempConfig(t, "volume=1 size=30%\nvolume=2 size=70%\n")

	va, ec := NewVolumeAllocator(spanConfigPath, volumePath, true)
	require.True(t, ec.OK(), ec.String())

	var out bytes.Buffer
	fillErr := va.FillEmptySpans(&out)
	require.True(t, fillErr.OK(), fillErr.String())

	assert.Contains(t, out.String(), "Allocating")
	assert.Contains(t, out.String(), "Updating Header ... Done")

	span := va.Store.Spans[0]
	var vol1, vol2 int64
	for _, st := range span.Stripes {
		switch st.VolIdx {
		case 1:
			vol1 += int64(st.Len)
		case 2:
			vol2 += int64(st.Len)
		}
	}
	assert.Greater(t, vol1, int64(0))
	assert.Greater(t, vol2, int64(0))
	assert.Greater(t, vol2, vol1) // volume 2 carries the larger percentage share
}

func TestVolumeAllocatorSkipsForcedSpans(t *testing.T) {
	spanPath := createTestSpanFile(t, 300*1024*1024)
	configPath := writeTempConfig(t, spanPath+" volume=9\n")
	volumePath := writeTempConfig(t, "volume=1 size=100%\n")

	va, ec := NewVolumeAllocator(configPath, volumePath, true)
	require.True(t, ec.OK(), ec.String())

	var out bytes.Buffer
	fillErr := va.FillEmptySpans(&out)
	require.True(t, fillErr.OK())
	assert.Empty(t, strings.TrimSpace(out.String()))

	span := va.Store.Spans[0]
	assert.Len(t, span.Stripes, 1)
	assert.True(t, span.Stripes[0].IsFree())
}

func TestNewVolumeAllocatorRequiresBothPaths(t *testing.T) {
	_, ec := NewVolumeAllocator("", "", true)
	assert.False(t, ec.OK())
}

func TestNewVolumeAllocatorRejectsOverAllocatedPercent(t *testing.T) {
	spanPath := createTestSpanFile(t, 300*1024*1024)
	spanConfigPath := writeTempConfig(t, spanPath+"\n")
	volumePath := writeTempConfig(t, "volume=1 size=60%\nvolume=2 size=60%\n")

	va, ec := NewVolumeAllocator(spanConfigPath, volumePath, true)
	assert.False(t, ec.OK())
	assert.Nil(t, va)
}
