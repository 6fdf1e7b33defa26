package cache

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// VersionNumber is the major/minor version stamped into every StripeMeta copy.
type VersionNumber struct {
	Major uint8
	Minor uint8
}

// stripeMetaFixedSize is sizeof(StripeMeta) excluding the trailing
// freelist array: magic(4) + version(4, incl. 2 bytes padding) +
// create_time(8) + write_pos(8) + last_write_pos(8) + agg_pos(8) +
// generation(4) + phase(4) + cycle(4) + sync_serial(4) + write_serial(4)
// + dirty(4) + sector_size(4) + unused(4) = 72.
const stripeMetaFixedSize = 72

// FreelistEmptySentinel marks an empty free-list head.
const FreelistEmptySentinel uint16 = 0xFFFF

// StripeMeta is the serialized header/footer metadata block for one
// copy (A or B) of one stripe (spec §3/§6).
type StripeMeta struct {
	Magic        uint32
	Version      VersionNumber
	CreateTime   int64
	WritePos     int64
	LastWritePos int64
	AggPos       int64
	Generation   uint32
	Phase        uint32
	Cycle        uint32
	SyncSerial   uint32
	WriteSerial  uint32
	Dirty        uint32
	SectorSize   uint32
	Freelist     []uint16
}

// Encode serializes m into a little-endian byte slice.
func (m *StripeMeta) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(stripeMetaFixedSize + 2*len(m.Freelist))

	if err := binary.Write(buf, binary.LittleEndian, m.Magic); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, m.Version.Major); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, m.Version.Minor); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(0)); err != nil { // padding
		return nil, err
	}

	fields := []interface{}{
		m.CreateTime, m.WritePos, m.LastWritePos, m.AggPos,
		m.Generation, m.Phase, m.Cycle, m.SyncSerial, m.WriteSerial,
		m.Dirty, m.SectorSize, uint32(0), // unused pad field
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return nil, err
		}
	}

	for _, head := range m.Freelist {
		if err := binary.Write(buf, binary.LittleEndian, head); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// DecodeStripeMeta parses the fixed-size portion of a StripeMeta out of
// buf, then reads exactly segments freelist entries. buf must contain
// at least stripeMetaFixedSize + 2*segments bytes.
func DecodeStripeMeta(buf []byte, segments int) (*StripeMeta, error) {
	if len(buf) < stripeMetaFixedSize {
		return nil, errors.New("buffer too small for stripe meta fixed fields")
	}

	r := bytes.NewReader(buf)
	m := new(StripeMeta)

	if err := binary.Read(r, binary.LittleEndian, &m.Magic); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &m.Version.Major); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &m.Version.Minor); err != nil {
		return nil, err
	}
	var pad uint16
	if err := binary.Read(r, binary.LittleEndian, &pad); err != nil {
		return nil, err
	}

	for _, f := range []interface{}{
		&m.CreateTime, &m.WritePos, &m.LastWritePos, &m.AggPos,
		&m.Generation, &m.Phase, &m.Cycle, &m.SyncSerial, &m.WriteSerial,
		&m.Dirty, &m.SectorSize,
	} {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return nil, err
		}
	}
	var unused uint32
	if err := binary.Read(r, binary.LittleEndian, &unused); err != nil {
		return nil, err
	}

	if segments > 0 {
		if r.Len() < segments*2 {
			return m, errors.New("buffer too small for requested freelist length")
		}
		m.Freelist = make([]uint16, segments)
		for i := range m.Freelist {
			if err := binary.Read(r, binary.LittleEndian, &m.Freelist[i]); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

// ValidateMeta reports whether meta's magic and version are within
// range, optionally cross-checked against base's
// version (spec §4.3 validateMeta/probeMeta).
func ValidateMeta(meta *StripeMeta, base *StripeMeta) bool {
	if meta.Magic != StripeMetaMagic {
		return false
	}
	if meta.Version.Major > CacheDBMajorVersion {
		return false
	}
	if meta.Version.Minor > CacheDBMinorVersion {
		return false
	}
	if base != nil && meta.Version != base.Version {
		return false
	}
	return true
}

// peekStripeMetaHeader decodes only the fixed-size prefix of buf (no
// freelist), enough to run ValidateMeta during a scan.
func peekStripeMetaHeader(buf []byte) (*StripeMeta, bool) {
	if len(buf) < stripeMetaFixedSize {
		return nil, false
	}
	m, err := DecodeStripeMeta(buf[:stripeMetaFixedSize], 0)
	if err != nil {
		return nil, false
	}
	return m, true
}
