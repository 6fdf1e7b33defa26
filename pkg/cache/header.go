// Package cache implements the on-disk data engine for cachetool: spans,
// stripes, their serialized headers/footers, the directory geometry
// derivation, and the volume allocator. It is grounded on the teacher's
// pkg/vimg (bit-exact header/footer writers, binary.Write into a
// byte buffer before a single positional write) and pkg/vdecompiler
// (probe a raw image for a magic-tagged structure, validate it, derive
// further layout from what was found).
package cache

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/tscache/cachetool/pkg/units"
)

// SpanHeaderMagic identifies a serialized SpanHeader.
const SpanHeaderMagic uint32 = 0xABCD1237

// StripeMetaMagic identifies a serialized StripeMeta (header or footer copy).
const StripeMetaMagic uint32 = 0xF1D0F00D

// Cache format version limits this tool will accept.
const (
	CacheDBMajorVersion uint8 = 24
	CacheDBMinorVersion uint8 = 2
)

// CacheDBMinorVersionInit is the minor version InitializeMeta stamps into
// freshly written metadata, distinct from CacheDBMinorVersion's role as
// validateMeta's acceptance ceiling (spec §4.3: the original writes
// minor = 1 at init time but still accepts minor <= 2 on load).
const CacheDBMinorVersionInit uint8 = 1

// Directory geometry constants (spec §3).
const (
	EntriesPerBucket     = 4
	MaxBucketsPerSegment = (1 << 16) / EntriesPerBucket
	SizeofDirEntry       = 10
	MaxVolumeIdx         = 255
)

// stripeDescriptorSize is the on-disk size, in bytes, of one
// CacheStripeDescriptor: offset(8) + len(8) + vol_idx(4) + flags(4).
const stripeDescriptorSize = 24

// spanHeaderFixedSize is the on-disk size of SpanHeader excluding the
// trailing stripe descriptor array: magic(4)+num_volumes(4)+num_free(4)+
// num_used(4)+num_diskvol_blks(4)+num_blocks(8).
const spanHeaderFixedSize = 28

// StripeDescriptor is the serialized per-stripe record stored in a
// SpanHeader. Flags packs a 3-bit type in its low bits followed by a
// 1-bit free flag, matching the original's `type : 3; free : 1` bitfield.
type StripeDescriptor struct {
	Offset units.Bytes       // offset of stripe start from span start
	Len    units.StoreBlocks // length of the stripe, in store-blocks
	VolIdx uint32            // volume index; 0 together with Free()==true means unallocated
	Flags  uint32
}

// Type extracts the 3-bit stripe type code from Flags.
func (d StripeDescriptor) Type() uint8 {
	return uint8(d.Flags & 0x7)
}

// Free reports whether the descriptor's free bit is set.
func (d StripeDescriptor) Free() bool {
	return d.Flags&0x8 != 0
}

// NewFlags packs a type code and free flag into a Flags value.
func NewFlags(typ uint8, free bool) uint32 {
	f := uint32(typ & 0x7)
	if free {
		f |= 0x8
	}
	return f
}

func (d StripeDescriptor) encode(w *bytes.Buffer) error {
	for _, v := range []interface{}{
		int64(d.Offset), int64(d.Len), d.VolIdx, d.Flags,
	} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

func decodeStripeDescriptor(r *bytes.Reader) (StripeDescriptor, error) {
	var d StripeDescriptor
	var offset, length int64
	if err := binary.Read(r, binary.LittleEndian, &offset); err != nil {
		return d, err
	}
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return d, err
	}
	if err := binary.Read(r, binary.LittleEndian, &d.VolIdx); err != nil {
		return d, err
	}
	if err := binary.Read(r, binary.LittleEndian, &d.Flags); err != nil {
		return d, err
	}
	d.Offset = units.Bytes(offset)
	d.Len = units.StoreBlocks(length)
	return d, nil
}

// SpanHeader is the serialized descriptor block stored at offset one
// store-block into a span (spec §3/§6).
type SpanHeader struct {
	Magic          uint32
	NumVolumes     uint32
	NumFree        uint32
	NumUsed        uint32
	NumDiskVolBlks uint32
	NumBlocks      units.StoreBlocks
	Stripes        []StripeDescriptor
}

// OnDiskSize returns the exact serialized size of h, before rounding up
// to a whole store block.
func (h *SpanHeader) OnDiskSize() units.Bytes {
	return units.Bytes(spanHeaderFixedSize + len(h.Stripes)*stripeDescriptorSize)
}

// Encode serializes h into a little-endian byte slice of exactly
// h.OnDiskSize() bytes.
func (h *SpanHeader) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(int(h.OnDiskSize()))

	fields := []interface{}{h.Magic, h.NumVolumes, h.NumFree, h.NumUsed, h.NumDiskVolBlks, int64(h.NumBlocks)}
	for _, f := range fields {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return nil, errors.Wrap(err, "encode span header fields")
		}
	}

	for i, d := range h.Stripes {
		if err := d.encode(buf); err != nil {
			return nil, errors.Wrapf(err, "encode stripe descriptor %d", i)
		}
	}

	return buf.Bytes(), nil
}

// DecodeSpanHeader parses a SpanHeader out of buf. buf must contain at
// least the fixed-size prefix; if the descriptor array extends past the
// end of buf, DecodeSpanHeader returns ErrHeaderTruncated so the caller
// can perform a second, larger read (spec §4.2: "doing a second read if
// the descriptor array pushes the header past the initial read").
var ErrHeaderTruncated = errors.New("span header descriptor array extends past buffer")

func DecodeSpanHeader(buf []byte) (*SpanHeader, error) {
	if len(buf) < spanHeaderFixedSize {
		return nil, errors.New("buffer too small for span header fixed fields")
	}

	r := bytes.NewReader(buf)
	h := new(SpanHeader)

	if err := binary.Read(r, binary.LittleEndian, &h.Magic); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.NumVolumes); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.NumFree); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.NumUsed); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.NumDiskVolBlks); err != nil {
		return nil, err
	}
	var numBlocks int64
	if err := binary.Read(r, binary.LittleEndian, &numBlocks); err != nil {
		return nil, err
	}
	h.NumBlocks = units.StoreBlocks(numBlocks)

	need := int(h.NumDiskVolBlks) * stripeDescriptorSize
	if r.Len() < need {
		return h, ErrHeaderTruncated
	}

	h.Stripes = make([]StripeDescriptor, h.NumDiskVolBlks)
	for i := range h.Stripes {
		d, err := decodeStripeDescriptor(r)
		if err != nil {
			return nil, errors.Wrapf(err, "decode stripe descriptor %d", i)
		}
		h.Stripes[i] = d
	}

	return h, nil
}

// Valid reports whether h passes the magic/count-consistency check
// spec §4.2 requires before a span is considered initialized.
func (h *SpanHeader) Valid() bool {
	return h.Magic == SpanHeaderMagic && h.NumDiskVolBlks == h.NumUsed+h.NumFree
}
