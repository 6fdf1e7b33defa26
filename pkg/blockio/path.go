// Package blockio classifies filesystem paths (regular file, directory,
// character/block device), opens them for span I/O, queries device
// geometry, and slurps small text configuration files. It is the Go
// analogue of the original tool's File.h / ats_scoped_fd helpers: a
// thin, synchronous layer over positional I/O with no buffering, since
// span and stripe metadata I/O must land on exact aligned offsets.
package blockio

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Kind classifies what a path resolves to.
type Kind int

// Path kinds.
const (
	KindUnknown Kind = iota
	KindRegularFile
	KindDirectory
	KindCharDevice
	KindBlockDevice
)

func (k Kind) String() string {
	switch k {
	case KindRegularFile:
		return "regular-file"
	case KindDirectory:
		return "directory"
	case KindCharDevice:
		return "char-device"
	case KindBlockDevice:
		return "block-device"
	default:
		return "unknown"
	}
}

// Classify reports what kind of filesystem object path is.
func Classify(path string) (Kind, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return KindUnknown, errors.Wrapf(err, "stat %s", path)
	}

	mode := fi.Mode()
	switch {
	case mode.IsDir():
		return KindDirectory, nil
	case mode&os.ModeCharDevice != 0:
		return KindCharDevice, nil
	case mode&os.ModeDevice != 0:
		return KindBlockDevice, nil
	case mode.IsRegular():
		return KindRegularFile, nil
	default:
		return KindUnknown, nil
	}
}

// Geometry describes the physical layout of the storage backing a span.
type Geometry struct {
	TotalSize int64 // total addressable size in bytes
	BlockSize int64 // hardware sector / logical block size in bytes
	Alignment int64 // required alignment for direct I/O, in bytes
}

// BulkFile is an open span backing store: a regular file or a raw
// character/block device, opened for synchronous positional I/O.
type BulkFile struct {
	Path     string
	Kind     Kind
	File     *os.File
	Geometry Geometry
	// ReadOnly reflects the flags the file was actually opened with.
	ReadOnly bool
}

// OpenFlags controls how a BulkFile is opened.
type OpenFlags struct {
	// Write requests read-write access. Without it the file is opened
	// strictly read-only, which is the tool's default posture.
	Write bool
	// Direct requests O_SYNC, so each write reaches the device before
	// WriteAt returns. O_DIRECT is not set; I/O still goes through the
	// page cache.
	Direct bool
}

// Open classifies path, opens it with the requested flags, and queries
// its geometry. Directories are rejected: spans may only be raw
// devices or regular files.
func Open(path string, flags OpenFlags) (*BulkFile, error) {
	kind, err := Classify(path)
	if err != nil {
		return nil, err
	}

	if kind == KindDirectory || kind == KindUnknown {
		return nil, errors.Errorf("unsupported path kind for span %s: %s", path, kind)
	}

	osFlags := os.O_RDONLY
	if flags.Write {
		osFlags = os.O_RDWR
	}

	var sysFlags int
	if flags.Direct {
		sysFlags |= unix.O_SYNC
	}

	f, err := os.OpenFile(path, osFlags|sysFlags, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}

	bf := &BulkFile{
		Path:     path,
		Kind:     kind,
		File:     f,
		ReadOnly: !flags.Write,
	}

	geom, err := queryGeometry(f, kind)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "query geometry for %s", path)
	}
	bf.Geometry = geom

	return bf, nil
}

// Close closes the underlying file descriptor.
func (bf *BulkFile) Close() error {
	return bf.File.Close()
}

// ReadAt performs a synchronous positional read, matching io.ReaderAt.
func (bf *BulkFile) ReadAt(p []byte, off int64) (int, error) {
	return bf.File.ReadAt(p, off)
}

// WriteAt performs a synchronous positional write, matching io.WriterAt.
// It fails loudly if the file was opened read-only, since the caller is
// expected to have already checked ReadOnly and substituted a no-op.
func (bf *BulkFile) WriteAt(p []byte, off int64) (int, error) {
	if bf.ReadOnly {
		return 0, errors.New("write attempted on read-only span")
	}
	return bf.File.WriteAt(p, off)
}

func queryGeometry(f *os.File, kind Kind) (Geometry, error) {
	if kind == KindRegularFile {
		fi, err := f.Stat()
		if err != nil {
			return Geometry{}, err
		}
		return Geometry{
			TotalSize: fi.Size(),
			BlockSize: 512,
			Alignment: 512,
		}, nil
	}

	fd := int(f.Fd())

	size, err := unix.IoctlGetInt(fd, unix.BLKGETSIZE64)
	if err != nil {
		return Geometry{}, errors.Wrap(err, "BLKGETSIZE64")
	}

	sectorSize, err := unix.IoctlGetInt(fd, unix.BLKSSZGET)
	if err != nil {
		return Geometry{}, errors.Wrap(err, "BLKSSZGET")
	}

	return Geometry{
		TotalSize: int64(size),
		BlockSize: int64(sectorSize),
		Alignment: int64(sectorSize),
	}, nil
}

// AlignedBuffer allocates a buffer of n bytes rounded up to a whole
// multiple of blockSize (512 when blockSize is not positive). Only the
// length is aligned: Go's allocator does not guarantee the buffer's
// address is page aligned, which the O_SYNC opens this tool uses do not
// need (O_DIRECT is never set).
func AlignedBuffer(n int, blockSize int64) []byte {
	if blockSize <= 0 {
		blockSize = 512
	}
	rounded := ((int64(n) + blockSize - 1) / blockSize) * blockSize
	return make([]byte, rounded)
}

// SlurpText reads a small text configuration file (span or volume
// config) fully into memory and splits it into non-blank,
// non-comment-prefixed lines, trimmed of surrounding whitespace. Lines
// beginning with '#' are treated as comments, per spec.
func SlurpText(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}

	return lines, nil
}

// String implements fmt.Stringer for Geometry for log/debug output.
func (g Geometry) String() string {
	return fmt.Sprintf("size=%d block=%d align=%d", g.TotalSize, g.BlockSize, g.Alignment)
}
