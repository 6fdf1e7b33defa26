package cache

import (
	"time"

	"github.com/tscache/cachetool/pkg/blockio"
	"github.com/tscache/cachetool/pkg/errata"
	"github.com/tscache/cachetool/pkg/units"
)

// Meta copy indices: metadata is stored in 4 copies, A/B crossed with
// Head/Foot (spec §3/§4.3).
const (
	CopyA = 0
	CopyB = 1
)
const (
	Head = 0
	Foot = 1
)

// bulkReadSize is the chunk size used when scanning for a stripe's footer
// copy: 16 MiB, matching the original's N = 1<<24.
const bulkReadSize = 1 << 24

// Stripe is a carved, contiguous region of a Span (spec §3/§4.3).
type Stripe struct {
	Span *Span

	Start units.Bytes // offset of the first byte of the stripe
	Len   units.StoreBlocks

	VolIdx uint8
	Type   uint8
	Idx    uint8

	Buckets  int64
	Segments int64
	// HeaderLen is the size, in bytes, of the fixed fields plus freelist
	// array at the front of each head/foot copy; the directory for that
	// copy begins immediately after it.
	HeaderLen units.Bytes

	// Meta holds the four on-disk copies, indexed by [CopyA|CopyB][Head|Foot].
	Meta [2][2]*StripeMeta
	// MetaPos is the on-disk store-block-rounded offset of each copy.
	MetaPos [2][2]units.Bytes

	// AuthoritativeCopy is CopyA or CopyB once ProbeAndLoadMeta has picked
	// a winner, or -1 if no load has succeeded yet.
	AuthoritativeCopy int
}

// IsFree reports whether the stripe is unallocated.
func (s *Stripe) IsFree() bool {
	return s.VolIdx == 0
}

// ProbeMeta scans mem (byte-aligned to a store block) for the next valid
// StripeMeta candidate, matching the original's skip-by-store-block probe
// (spec §4.3 probeMeta). It returns the byte offset within mem of the
// match, or -1 if none was found.
func ProbeMeta(mem []byte, base *StripeMeta) (offset int, meta *StripeMeta, found bool) {
	for off := 0; off+stripeMetaFixedSize <= len(mem); off += int(units.StoreBlockScale) {
		m, ok := peekStripeMetaHeader(mem[off:])
		if ok && ValidateMeta(m, base) {
			return off, m, true
		}
	}
	return -1, nil, false
}

// UpdateLiveData derives the segment/bucket geometry for the stripe from
// the gap between a header and footer copy, iterating the header_len
// guess upward until the free-list array actually fits (spec §4.3
// updateLiveData). This mirrors the original's comment that a 2TB stripe
// at the default estimated object size needs only a handful of
// iterations even on very large drives.
func (s *Stripe) UpdateLiveData(copy int) {
	delta := s.MetaPos[copy][Foot].Sub(s.MetaPos[copy][Head])

	var headerLen units.Bytes
	var nBuckets, nSegments int64

	// header_len grows by one whole store-block per iteration starting
	// from zero, matching the original loop exactly (CacheTool.cc:226,
	// 235,241 - CacheStoreBlocks header_len; ++header_len) since the
	// convergence point depends on it.
	for {
		headerLen += units.Bytes(units.StoreBlockScale)
		nBuckets = int64(delta-headerLen) / int64(SizeofDirEntry*EntriesPerBucket)
		if nBuckets <= 0 {
			nSegments = 1
			break
		}
		nSegments = nBuckets / MaxBucketsPerSegment
		if nSegments < 1 {
			nSegments = 1
		}
		for nBuckets/nSegments > MaxBucketsPerSegment {
			nSegments++
		}
		if int64(headerLen) >= int64(stripeMetaFixedSize+2*int(nSegments)) {
			break
		}
	}

	s.Buckets = nBuckets / nSegments
	s.Segments = nSegments
	s.HeaderLen = headerLen
}

// ProbeAndLoadMeta reads and cross-validates all four meta copies for the
// stripe, deriving live directory geometry from whichever A/B pair has
// matching, newer sync_serial values (spec §4.3 loadMeta). It stops
// searching for the footer once it has scanned 1/16th of the stripe,
// since at a realistic estimated-object-size the header/directory region
// never needs more than that.
func (s *Stripe) ProbeAndLoadMeta() errata.Chain {
	var ec errata.Chain

	geom := s.Span.Geometry
	if geom.BlockSize > int64(units.StoreBlockScale) {
		return ec.Push(errata.Error, errata.CodeAlignmentTooLarge,
			"cannot load stripe %d on span %s: I/O block alignment %d exceeds buffer alignment %d",
			s.Idx, s.Span.Path, geom.BlockSize, units.StoreBlockScale)
	}

	pos := s.Start
	limit := pos.Add(s.Len.Bytes() / 16)

	stripeBuf := make([]byte, units.StoreBlockScale)
	if _, err := s.Span.File.ReadAt(stripeBuf, int64(pos)); err != nil {
		return ec.PushErr(errata.Error, errata.CodeIoRead, err, "read stripe %d header A", s.Idx)
	}

	headA, ok := peekStripeMetaHeader(stripeBuf)
	if !ok || !ValidateMeta(headA, nil) {
		return ec.Push(errata.Error, errata.CodeHeaderANotFound, "header A not found for stripe %d on span %s", s.Idx, s.Span.Path)
	}
	s.Meta[CopyA][Head] = headA
	s.MetaPos[CopyA][Head] = pos
	pos = pos.Add(units.StoreBlockScale)

	var footAOffsetFound bool
	for pos < limit {
		n := bulkReadSize
		buf := make([]byte, n)
		read, _ := s.Span.File.ReadAt(buf, int64(pos))
		if read <= 0 {
			break
		}
		buf = buf[:read]
		if off, meta, found := ProbeMeta(buf, headA); found {
			s.Meta[CopyA][Foot] = meta
			s.MetaPos[CopyA][Foot] = pos.Add(units.Bytes(off))
			footAOffsetFound = true
			break
		}
		pos = pos.Add(units.Bytes(read))
	}

	if footAOffsetFound {
		delta := s.MetaPos[CopyA][Foot].Sub(s.MetaPos[CopyA][Head])

		posB := s.MetaPos[CopyA][Foot].Add(units.StoreBlockScale)
		bufB := make([]byte, units.StoreBlockScale)
		if _, err := s.Span.File.ReadAt(bufB, int64(posB)); err == nil {
			if headB, ok := peekStripeMetaHeader(bufB); ok && ValidateMeta(headB, nil) {
				s.Meta[CopyB][Head] = headB
				s.MetaPos[CopyB][Head] = posB

				posFootB := posB.Add(delta)
				bufFootB := make([]byte, units.StoreBlockScale)
				if _, err := s.Span.File.ReadAt(bufFootB, int64(posFootB)); err == nil {
					if footB, ok := peekStripeMetaHeader(bufFootB); ok && ValidateMeta(footB, nil) {
						s.Meta[CopyB][Foot] = footB
						s.MetaPos[CopyB][Foot] = posFootB
					}
				}
			}
		}
	}

	if !footAOffsetFound {
		return ec.Push(errata.Error, errata.CodeFooterANotFound,
			"footer A not found for stripe %d on span %s within %d bytes", s.Idx, s.Span.Path, int64(limit-s.Start))
	}

	switch {
	case s.metaAuthoritative(CopyA):
		s.UpdateLiveData(CopyA)
		s.AuthoritativeCopy = CopyA
	case s.metaAuthoritative(CopyB):
		s.UpdateLiveData(CopyB)
		s.AuthoritativeCopy = CopyB
	default:
		return ec.Push(errata.Error, errata.CodeStripeSyncInvalid,
			"invalid stripe data for stripe %d on span %s - candidates found but sync serial data not valid", s.Idx, s.Span.Path)
	}

	return ec
}

// metaAuthoritative implements the sync_serial comparison that decides
// which copy (A or B) of a stripe's metadata is the live one (spec §4.3).
func (s *Stripe) metaAuthoritative(copy int) bool {
	head := s.Meta[copy][Head]
	foot := s.Meta[copy][Foot]
	if head == nil || foot == nil {
		return false
	}
	if head.SyncSerial != foot.SyncSerial {
		return false
	}
	if copy == CopyA {
		other := s.Meta[CopyB][Head]
		otherFoot := s.Meta[CopyB][Foot]
		if other == nil || otherFoot == nil || other.SyncSerial != otherFoot.SyncSerial {
			return true
		}
		return head.SyncSerial > other.SyncSerial
	}
	return true
}

// dirAssumedFraction bounds the metadata area at 1/16th of the stripe, the
// same average-object-size assumption ProbeAndLoadMeta's footer search
// relies on (spec §4.3 loadMeta step 2).
const dirAssumedFraction = 16

// InitializeMeta synthesizes fresh header/footer metadata for a stripe that
// has none yet - a newly carved, empty stripe - and writes all four copies
// to disk (spec §4.3 InitializeMeta/updateHeaderFooter). Each of the A and
// B copy-pairs spans the same 1/16-of-stripe the footer probe searches,
// rounded down to whole store blocks so every copy lands on a store-block
// boundary; Header-B occupies the store block right after Footer-A.
func (s *Stripe) InitializeMeta() errata.Chain {
	var ec errata.Chain

	if s.Span.File.ReadOnly {
		return ec.Push(errata.Info, errata.CodeNone, "stripe %d on %s not initialized, write not enabled", s.Idx, s.Span.Path)
	}

	delta := (s.Len / dirAssumedFraction).Bytes()
	s.MetaPos[CopyA][Head] = s.Start
	s.MetaPos[CopyA][Foot] = s.Start.Add(delta)
	s.MetaPos[CopyB][Head] = s.MetaPos[CopyA][Foot].Add(units.StoreBlockScale)
	s.MetaPos[CopyB][Foot] = s.MetaPos[CopyB][Head].Add(delta)

	s.UpdateLiveData(CopyA)

	freelist := make([]uint16, s.Segments)
	for i := range freelist {
		freelist[i] = FreelistEmptySentinel
	}

	meta := &StripeMeta{
		Magic:      StripeMetaMagic,
		Version:    VersionNumber{Major: CacheDBMajorVersion, Minor: CacheDBMinorVersionInit},
		CreateTime: time.Now().Unix(),
		Generation: uint32(time.Now().Unix()) | 1, // non-zero; wall clock at init time is fine
		SectorSize: uint32(s.Span.Geometry.BlockSize),
		Freelist:   freelist,
	}

	buf, err := meta.Encode()
	if err != nil {
		return ec.PushErr(errata.Error, errata.CodeIoWrite, err, "encode stripe %d metadata on %s", s.Idx, s.Span.Path)
	}

	for _, copy := range []int{CopyA, CopyB} {
		for _, half := range []int{Head, Foot} {
			s.Meta[copy][half] = meta
			if _, err := s.Span.File.WriteAt(buf, int64(s.MetaPos[copy][half])); err != nil {
				return ec.PushErr(errata.Error, errata.CodeIoWrite, err, "write stripe %d metadata copy on %s", s.Idx, s.Span.Path)
			}
		}
	}

	s.AuthoritativeCopy = CopyA
	return ec
}

// Clear zeroes the four on-disk metadata copy regions for the stripe,
// leaving its content region untouched (spec §4.3 clear()). It is a no-op,
// reported at Info severity, when the span was opened read-only.
func (s *Stripe) Clear() errata.Chain {
	var ec errata.Chain

	if s.Span.File.ReadOnly {
		return ec.Push(errata.Info, errata.CodeNone, "stripe %d meta on %s not cleared, write not enabled", s.Idx, s.Span.Path)
	}

	zero := make([]byte, units.StoreBlockScale)
	for _, copy := range []int{CopyA, CopyB} {
		for _, half := range []int{Head, Foot} {
			off := s.MetaPos[copy][half]
			if off == 0 {
				continue
			}
			if _, err := s.Span.File.WriteAt(zero, int64(off)); err != nil {
				return ec.PushErr(errata.Error, errata.CodeIoWrite, err, "clear stripe %d meta on %s", s.Idx, s.Span.Path)
			}
		}
	}

	s.Meta = [2][2]*StripeMeta{}
	return ec
}

// ReadDirectory reads and decodes the full directory entry array that
// follows copy's header/freelist region, between its Head and Foot
// positions (spec §4.3 dir_probe/dir_valid).
func (s *Stripe) ReadDirectory(copy int) ([]DirEntry, error) {
	total := s.Buckets * s.Segments * EntriesPerBucket
	if total <= 0 {
		return nil, nil
	}

	start := s.MetaPos[copy][Head].Add(s.HeaderLen)
	byteLen := total * int64(SizeofDirEntry)

	buf := blockio.AlignedBuffer(int(byteLen), s.Span.Geometry.BlockSize)
	if _, err := s.Span.File.ReadAt(buf, int64(start)); err != nil {
		return nil, err
	}

	entries := make([]DirEntry, total)
	for i := range entries {
		entries[i] = DecodeDirEntry(buf[i*SizeofDirEntry:])
	}
	return entries, nil
}

// ValidateDirectory walks every bucket's overflow chain in copy's directory,
// counting chains that cycle back on themselves or run past the segment's
// entry count (spec §4.3 dir_probe/dir_valid). This is a structural check
// only; entry contents are not interpreted.
func (s *Stripe) ValidateDirectory(copy int) (cycles, overruns int, err error) {
	entries, err := s.ReadDirectory(copy)
	if err != nil || len(entries) == 0 {
		return 0, 0, err
	}

	bucketsPerSegment := int(s.Buckets)
	for seg := int64(0); seg < s.Segments; seg++ {
		base := seg * s.Buckets * EntriesPerBucket
		for b := int64(0); b < s.Buckets; b++ {
			start := uint16(base + b*EntriesPerBucket)
			if _, werr := BucketWalk(entries, start, bucketsPerSegment); werr != nil {
				we, ok := werr.(*walkError)
				if !ok {
					continue
				}
				switch we.kind {
				case walkKindCycle:
					cycles++
				case walkKindOverrun:
					overruns++
				}
			}
		}
	}
	return cycles, overruns, nil
}
