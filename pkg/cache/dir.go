package cache

import (
	"bytes"
	"encoding/binary"
)

// DirEntry is one 10-byte directory slot: a bucket holds EntriesPerBucket
// of these chained by Next into an overflow list (spec §3/§4.3). The
// original packs five uint16 words with bitfields carved out of the first
// three (w[0]/w[1] low/high offset plus big/size, w[2] tag/phase/head/
// pinned/token, w[3] next) and reserves w[4] to extend the offset field
// for volumes too large for 24 bits; this representation keeps the
// decoded fields directly and only reconstructs the packing in Encode.
type DirEntry struct {
	Offset     uint64 // approximate data location
	Big        uint8  // 2 bits: additional block-size multiplier
	Size       uint8  // 6 bits: size within the big-block, in fixed units
	Tag        uint16 // 12 bits: partial key tag for collision screening
	Phase      bool
	Head       bool
	Pinned     bool
	Token      bool
	Next       uint16 // index of next entry in the bucket's overflow chain
	OffsetHigh uint16 // bits 24+ of Offset for large spans
}

// DecodeDirEntry unpacks a 10-byte on-disk directory entry.
func DecodeDirEntry(buf []byte) DirEntry {
	w := make([]uint16, 5)
	for i := range w {
		w[i] = binary.LittleEndian.Uint16(buf[i*2:])
	}

	var e DirEntry
	e.Offset = uint64(w[0]) | uint64(w[1]&0xFF)<<16
	e.Big = uint8((w[1] >> 8) & 0x3)
	e.Size = uint8((w[1] >> 10) & 0x3F)
	e.Tag = w[2] & 0x0FFF
	e.Phase = w[2]&0x1000 != 0
	e.Head = w[2]&0x2000 != 0
	e.Pinned = w[2]&0x4000 != 0
	e.Token = w[2]&0x8000 != 0
	e.Next = w[3]
	e.OffsetHigh = w[4]
	e.Offset |= uint64(e.OffsetHigh) << 24
	return e
}

// Encode packs e back into its 10-byte on-disk form.
func (e DirEntry) Encode() []byte {
	w := make([]uint16, 5)
	w[0] = uint16(e.Offset & 0xFFFF)
	w[1] = uint16((e.Offset>>16)&0xFF) | uint16(e.Big&0x3)<<8 | uint16(e.Size&0x3F)<<10
	w[2] = e.Tag & 0x0FFF
	if e.Phase {
		w[2] |= 0x1000
	}
	if e.Head {
		w[2] |= 0x2000
	}
	if e.Pinned {
		w[2] |= 0x4000
	}
	if e.Token {
		w[2] |= 0x8000
	}
	w[3] = e.Next
	w[4] = uint16((e.Offset >> 24) & 0xFFFF)

	buf := new(bytes.Buffer)
	buf.Grow(SizeofDirEntry)
	for _, v := range w {
		binary.Write(buf, binary.LittleEndian, v)
	}
	return buf.Bytes()
}

// IsEmpty reports whether e is an unused directory slot.
func (e DirEntry) IsEmpty() bool {
	return e.Offset == 0
}

// BucketWalk walks one bucket's overflow chain starting at entries[start],
// visiting each linked slot exactly once. It stops at the first empty
// Next, and also stops - reporting an error - if it would either revisit
// an index already seen (a cycle) or chase more links than the segment
// has entries for, bucketsInSegment*EntriesPerBucket (an overrun), matching the diagnostic posture spec §4.3
// and §9 call for when dumping directory statistics.
func BucketWalk(entries []DirEntry, start uint16, bucketsInSegment int) (visited []uint16, err error) {
	seen := make(map[uint16]bool)
	idx := start
	for {
		if seen[idx] {
			return visited, errCycle(idx)
		}
		seen[idx] = true
		visited = append(visited, idx)
		if len(visited) > bucketsInSegment*EntriesPerBucket {
			return visited, errOverrun(idx)
		}
		if int(idx) >= len(entries) {
			return visited, errOverrun(idx)
		}
		e := entries[idx]
		if e.IsEmpty() || e.Next == 0 {
			return visited, nil
		}
		idx = e.Next
	}
}

const (
	walkKindCycle   = "directory bucket chain cycle detected"
	walkKindOverrun = "directory bucket chain overrun"
)

type walkError struct {
	kind string
	idx  uint16
}

func (e *walkError) Error() string {
	return e.kind
}

func errCycle(idx uint16) error {
	return &walkError{kind: walkKindCycle, idx: idx}
}

func errOverrun(idx uint16) error {
	return &walkError{kind: walkKindOverrun, idx: idx}
}
