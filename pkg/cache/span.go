package cache

import (
	"github.com/pkg/errors"
	"github.com/tscache/cachetool/pkg/blockio"
	"github.com/tscache/cachetool/pkg/errata"
	"github.com/tscache/cachetool/pkg/units"
)

// SpanOffset is the byte offset, relative to the start of a span's backing
// store, at which the SpanHeader is read and written: one store block in.
const SpanOffset = units.Bytes(units.StoreBlockScale)

// spanHeaderSizeofCpp is sizeof(SpanHeader) as the C layout computes it: the
// struct's fixed fields plus its trailing one-element stripe array, which
// every size computation below implicitly includes and then subtracts back
// out via "(n-1)*sizeof(descriptor)". Keeping the same off-by-one here is
// required to reproduce the original's on-disk layout bit for bit.
const spanHeaderSizeofCpp = spanHeaderFixedSize + stripeDescriptorSize

// Span is a raw storage container carved into stripes (spec §3/§4.2).
// Span does not check what kind of file backs it: it operates on whatever
// blockio.BulkFile it is given, a character or block device or a plain
// regular file standing in for one. Store.LoadSpan treats a regular file
// named directly as a span list, but a regular file named inside a span
// list is opened and loaded as a span like a device.
type Span struct {
	Path string
	File *blockio.BulkFile

	VolIdx int // forced volume index for this span; 0 means unconstrained

	Base          units.Bytes // offset of the first byte past the reserved leading store block; the header starts here
	ContentOffset units.Bytes // offset of the first content byte (after header + descriptors)
	Len           units.StoreBlocks
	FreeSpace     units.StoreBlocks

	Geometry blockio.Geometry
	Header   *SpanHeader
	Stripes  []*Stripe
}

// OpenSpan wraps the already opened bf as a Span, without touching
// any of its content. Callers proceed with Load to read or initialize the
// header.
func OpenSpan(bf *blockio.BulkFile, volIdx int) *Span {
	return &Span{Path: bf.Path, File: bf, VolIdx: volIdx}
}

// Load reads the span header from the backing store, constructing live
// Stripe objects from whatever stripe descriptors it finds. If no valid
// header is present the span is left with a nil Header; the caller
// (typically Store.loadSpanDirect) then clears it to a single free stripe.
func (s *Span) Load() errata.Chain {
	var ec errata.Chain

	geom := s.File.Geometry
	s.Geometry = geom

	buf := blockio.AlignedBuffer(int(units.StoreBlockScale), geom.BlockSize)
	n, err := s.File.ReadAt(buf, int64(SpanOffset))
	if err != nil && n < len(buf) {
		return ec.PushErr(errata.Error, errata.CodeIoRead, err, "read span header from %s", s.Path)
	}

	s.Base = SpanOffset.RoundUpStoreBlocks().Bytes()

	hdr, decErr := DecodeSpanHeader(buf)
	if decErr == ErrHeaderTruncated {
		nspb := hdr.NumDiskVolBlks
		hdrSize := units.Bytes(spanHeaderSizeofCpp + int(nspb-1)*stripeDescriptorSize).RoundUpStoreBlocks()
		full := blockio.AlignedBuffer(int(hdrSize.Bytes()), geom.BlockSize)
		if _, err := s.File.ReadAt(full, int64(SpanOffset)); err != nil {
			return ec.PushErr(errata.Error, errata.CodeIoRead, err, "re-read span header from %s", s.Path)
		}
		hdr, decErr = DecodeSpanHeader(full)
	}

	var hdrSize units.StoreBlocks = units.StoreBlocks(1) // default, matches the C++ optimistic guess
	if decErr == nil && hdr.Valid() {
		hdrSize = units.Bytes(spanHeaderSizeofCpp + int(hdr.NumDiskVolBlks-1)*stripeDescriptorSize).RoundUpStoreBlocks()
		s.Header = hdr
		s.Len = hdr.NumBlocks
	} else {
		ec = ec.Push(errata.Warn, errata.CodeHeaderANotFound, "span header for %s is invalid", s.Path)
		s.Len = units.Bytes(geom.TotalSize).RoundDownStoreBlocks().Sub(s.Base.RoundDownStoreBlocks())
	}
	s.ContentOffset = s.Base.Add(hdrSize.Bytes())

	if s.Header != nil {
		s.seedStripesFromHeader()
	}

	return ec
}

func (s *Span) seedStripesFromHeader() {
	for i, d := range s.Header.Stripes {
		st := &Stripe{Span: s, Start: d.Offset, Len: d.Len, Idx: uint8(i), AuthoritativeCopy: -1}
		if !d.Free() {
			st.VolIdx = uint8(d.VolIdx)
			st.Type = d.Type()
		} else {
			s.FreeSpace = s.FreeSpace.Add(st.Len)
		}
		s.Stripes = append(s.Stripes, st)
	}
}

// IsEmpty reports whether every stripe on the span is unallocated.
func (s *Span) IsEmpty() bool {
	for _, st := range s.Stripes {
		if st.VolIdx != 0 {
			return false
		}
	}
	return true
}

// Clear discards all stripes and replaces them with a single free stripe
// spanning the span's entire usable region, recomputing ContentOffset from
// scratch the same way the on-disk tool does when formatting a fresh span.
func (s *Span) Clear() errata.Chain {
	var ec errata.Chain

	s.Stripes = nil
	s.FreeSpace = 0

	eff := s.Len.Sub(s.Base.RoundDownStoreBlocks()) // starting usable block count
	effBytes := int64(eff.Bytes())

	n := (effBytes - spanHeaderSizeofCpp) / (units.StripeBlockScale + stripeDescriptorSize)
	if n < 1 {
		return ec.Push(errata.Error, errata.CodeNoSpace, "span %s too small to hold even one stripe descriptor", s.Path)
	}

	hdrBytes := units.Bytes(spanHeaderSizeofCpp + int(n-1)*stripeDescriptorSize)
	s.ContentOffset = s.Base.Add(hdrBytes.RoundUpStoreBlocks().Bytes())

	stripe := &Stripe{Span: s, Start: s.ContentOffset, Len: s.Len.Sub(s.ContentOffset.RoundDownStoreBlocks()), AuthoritativeCopy: -1}
	s.Stripes = append(s.Stripes, stripe)
	s.FreeSpace = stripe.Len

	return ec
}

// AllocStripe carves len store-blocks for volume volIdx out of the first
// free stripe large enough to hold it (spec §4.2). If the remainder after
// carving would be smaller than one stripe block it is given away whole,
// matching the original's "don't leave slivers" rule.
func (s *Span) AllocStripe(volIdx int, length units.StoreBlocks) (*Stripe, error) {
	oneStripeBlock := units.StripeBlocks(1).RoundUpStoreBlocks()

	for i, stripe := range s.Stripes {
		if stripe.VolIdx != 0 {
			continue
		}
		if length > stripe.Len {
			continue
		}
		if stripe.Len < length.Add(oneStripeBlock) {
			stripe.VolIdx = uint8(volIdx)
			stripe.Type = 1
			return stripe, nil
		}

		ns := &Stripe{Span: s, Start: stripe.Start, Len: length, VolIdx: uint8(volIdx), Type: 1, AuthoritativeCopy: -1}
		stripe.Start = stripe.Start.Add(length.Bytes())
		stripe.Len = stripe.Len.Sub(length)

		s.Stripes = append(s.Stripes, nil)
		copy(s.Stripes[i+1:], s.Stripes[i:])
		s.Stripes[i] = ns
		return ns, nil
	}
	return nil, errors.Errorf("failed to allocate stripe of size %s on span %s - no free block large enough", length, s.Path)
}

// UpdateHeader rebuilds the in-memory SpanHeader from the current stripe
// list and writes it back to the backing store at SpanOffset. On a span
// opened read-only nothing is written: the in-memory header is still
// rebuilt and the returned chain holds one Info entry saying so.
func (s *Span) UpdateHeader() errata.Chain {
	var ec errata.Chain

	hdr := &SpanHeader{
		Magic:     SpanHeaderMagic,
		NumBlocks: s.Len,
	}

	volumeSeen := make(map[uint32]bool)
	for _, stripe := range s.Stripes {
		d := StripeDescriptor{
			Offset: stripe.Start,
			Len:    stripe.Len,
			VolIdx: uint32(stripe.VolIdx),
			Flags:  NewFlags(stripe.Type, stripe.VolIdx == 0),
		}
		volumeSeen[d.VolIdx] = true
		if d.Free() {
			hdr.NumFree++
		} else {
			hdr.NumUsed++
		}
		hdr.Stripes = append(hdr.Stripes, d)
	}
	hdr.NumDiskVolBlks = uint32(len(hdr.Stripes))
	delete(volumeSeen, 0)
	hdr.NumVolumes = uint32(len(volumeSeen))

	s.Header = hdr

	if s.File.ReadOnly {
		return ec.Push(errata.Info, errata.CodeNone, "header update for %s not written, write not enabled", s.Path)
	}

	buf, err := hdr.Encode()
	if err != nil {
		return ec.PushErr(errata.Error, errata.CodeIoWrite, err, "encode span header for %s", s.Path)
	}
	if _, err := s.File.WriteAt(buf, int64(SpanOffset)); err != nil {
		return ec.PushErr(errata.Error, errata.CodeIoWrite, err, "write span header for %s", s.Path)
	}
	return ec
}

// ClearPermanently zeroes the header store-block on disk, the same
// best-effort wipe the original tool performs (it does not zero stripe
// content, only the span header).
func (s *Span) ClearPermanently() errata.Chain {
	var ec errata.Chain
	if s.File.ReadOnly {
		ec = ec.Push(errata.Info, errata.CodeNone, "clearing %s not performed, write not enabled", s.Path)
		return ec
	}
	zero := make([]byte, units.StoreBlockScale)
	n, err := s.File.WriteAt(zero, int64(SpanOffset))
	if err != nil || n != len(zero) {
		return ec.PushErr(errata.Error, errata.CodeIoWrite, err, "clear %s permanently", s.Path)
	}
	return ec
}
