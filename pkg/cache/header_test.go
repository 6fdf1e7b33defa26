package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tscache/cachetool/pkg/units"
)

func sampleHeader() *SpanHeader {
	return &SpanHeader{
		Magic:          SpanHeaderMagic,
		NumVolumes:     2,
		NumFree:        1,
		NumUsed:        1,
		NumDiskVolBlks: 2,
		NumBlocks:      units.StoreBlocks(1000),
		Stripes: []StripeDescriptor{
			{Offset: units.Bytes(8192), Len: units.StoreBlocks(100), VolIdx: 1, Flags: NewFlags(1, false)},
			{Offset: units.Bytes(8192 + 100*units.StoreBlockScale), Len: units.StoreBlocks(900), VolIdx: 0, Flags: NewFlags(0, true)},
		},
	}
}

func TestSpanHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := sampleHeader()

	buf, err := h.Encode()
	require.NoError(t, err)
	assert.Len(t, buf, int(h.OnDiskSize()))

	decoded, err := DecodeSpanHeader(buf)
	require.NoError(t, err)

	assert.Equal(t, h.Magic, decoded.Magic)
	assert.Equal(t, h.NumVolumes, decoded.NumVolumes)
	assert.Equal(t, h.NumFree, decoded.NumFree)
	assert.Equal(t, h.NumUsed, decoded.NumUsed)
	assert.Equal(t, h.NumDiskVolBlks, decoded.NumDiskVolBlks)
	assert.Equal(t, h.NumBlocks, decoded.NumBlocks)
	require.Len(t, decoded.Stripes, len(h.Stripes))
	for i := range h.Stripes {
		assert.Equal(t, h.Stripes[i].Offset, decoded.Stripes[i].Offset)
		assert.Equal(t, h.Stripes[i].Len, decoded.Stripes[i].Len)
		assert.Equal(t, h.Stripes[i].VolIdx, decoded.Stripes[i].VolIdx)
		assert.Equal(t, h.Stripes[i].Flags, decoded.Stripes[i].Flags)
	}
}

func TestSpanHeaderDecodeTruncated(t *testing.T) {
	h := sampleHeader()
	buf, err := h.Encode()
	require.NoError(t, err)

	short := buf[:spanHeaderFixedSize+stripeDescriptorSize]
	_, err = DecodeSpanHeader(short)
	assert.Equal(t, ErrHeaderTruncated, err)
}

func TestSpanHeaderValid(t *testing.T) {
	h := sampleHeader()
	assert.True(t, h.Valid())

	h.NumDiskVolBlks = 99
	assert.False(t, h.Valid())

	h.NumDiskVolBlks = h.NumUsed + h.NumFree
	h.Magic = 0
	assert.False(t, h.Valid())
}

func TestStripeDescriptorTypeAndFree(t *testing.T) {
	d := StripeDescriptor{Flags: NewFlags(5, true)}
	assert.EqualValues(t, 5, d.Type())
	assert.True(t, d.Free())

	d2 := StripeDescriptor{Flags: NewFlags(3, false)}
	assert.EqualValues(t, 3, d2.Type())
	assert.False(t, d2.Free())
}
