package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStripeMeta() *StripeMeta {
	return &StripeMeta{
		Magic:        StripeMetaMagic,
		Version:      VersionNumber{Major: CacheDBMajorVersion, Minor: CacheDBMinorVersion},
		CreateTime:   1700000000,
		WritePos:     8192,
		LastWritePos: 4096,
		AggPos:       8192,
		Generation:   1,
		Phase:        0,
		Cycle:        0,
		SyncSerial:   7,
		WriteSerial:  7,
		Dirty:        0,
		SectorSize:   512,
		Freelist:     []uint16{1, 2, FreelistEmptySentinel},
	}
}

func TestStripeMetaEncodeDecodeRoundTrip(t *testing.T) {
	m := sampleStripeMeta()

	buf, err := m.Encode()
	require.NoError(t, err)

	decoded, err := DecodeStripeMeta(buf, len(m.Freelist))
	require.NoError(t, err)

	assert.Equal(t, m.Magic, decoded.Magic)
	assert.Equal(t, m.Version, decoded.Version)
	assert.Equal(t, m.CreateTime, decoded.CreateTime)
	assert.Equal(t, m.WritePos, decoded.WritePos)
	assert.Equal(t, m.SyncSerial, decoded.SyncSerial)
	assert.Equal(t, m.Freelist, decoded.Freelist)
}

func TestValidateMetaRejectsBadMagic(t *testing.T) {
	m := sampleStripeMeta()
	m.Magic = 0xDEADBEEF
	assert.False(t, ValidateMeta(m, nil))
}

func TestValidateMetaRejectsFutureVersion(t *testing.T) {
	m := sampleStripeMeta()
	m.Version.Major = CacheDBMajorVersion + 1
	assert.False(t, ValidateMeta(m, nil))

	m2 := sampleStripeMeta()
	m2.Version.Minor = CacheDBMinorVersion + 1
	assert.False(t, ValidateMeta(m2, nil))
}

func TestValidateMetaCrossChecksBase(t *testing.T) {
	base := sampleStripeMeta()
	match := sampleStripeMeta()
	assert.True(t, ValidateMeta(match, base))

	mismatch := sampleStripeMeta()
	mismatch.Version.Minor = 0
	assert.False(t, ValidateMeta(mismatch, base))
}

func TestDecodeStripeMetaTooSmall(t *testing.T) {
	_, err := DecodeStripeMeta([]byte{1, 2, 3}, 0)
	assert.Error(t, err)
}
