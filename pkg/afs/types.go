// Package afs unpacks, repacks and rebuilds AFS archives. All integer
// fields of the archive structures are little-endian.
package afs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/hansbonini/gotchatools/pkg/common"
)

// Archive layout constants
const (
	HeaderSize    = 8
	TOCEntrySize  = 8
	FDPointerSize = 8
	FDEntrySize   = 0x30
	FDNameSize    = 32
	fdTimeOffset  = 32
	fdAttrOffset  = 44
)

// Names of the files written to the sys/ directory
const (
	SysDir            = "sys"
	RootDir           = "root"
	TOCFile           = "tableofcontent.bin"
	FDFile            = "filenamedirectory.bin"
	ResolverFile      = "filename_resolver.csv"
	RebuildConfigFile = "afs_rebuild.conf"
	ManifestFile      = "afs_rebuild.csv"
)

// Accepted archive magics
var (
	MagicAFS00 = [4]byte{'A', 'F', 'S', 0x00}
	MagicAFS20 = [4]byte{'A', 'F', 'S', 0x20}
)

// IsValidMagic reports whether magic is one of the two AFS magics
func IsValidMagic(magic []byte) bool {
	return bytes.Equal(magic, MagicAFS00[:]) || bytes.Equal(magic, MagicAFS20[:])
}

// Index holds the header/TOC bytes of an archive and its optional
// filename directory. When the archive has a filename directory, TOC runs
// up to and including the FD pointer pair.
type Index struct {
	TOC             []byte
	FileCount       int
	FDPointerOffset int64 // 0 when there is no filename directory
	FD              []byte
}

// tocLength is the size of the header plus the TOC entries
func tocLength(fileCount int) int64 {
	return HeaderSize + TOCEntrySize*int64(fileCount)
}

// NewIndex rebuilds an Index from the sys/ artifacts written by Unpack
func NewIndex(toc, fd []byte) (*Index, error) {
	if len(toc) < HeaderSize {
		return nil, common.CategoryError(ErrInvalidAfsFolder, "%s holds only %d bytes", TOCFile, len(toc))
	}
	if !IsValidMagic(toc[:4]) {
		return nil, common.CategoryError(ErrInvalidMagicNumber, "%q", toc[:4])
	}
	idx := &Index{TOC: toc, FileCount: int(binary.LittleEndian.Uint32(toc[4:8]))}
	base := tocLength(idx.FileCount)
	if int64(len(toc)) < base {
		return nil, common.CategoryError(ErrInvalidAfsFolder, "%s holds 0x%X bytes, %d entries need 0x%X", TOCFile, len(toc), idx.FileCount, base)
	}

	hasPointer := int64(len(toc)) >= base+FDPointerSize
	switch {
	case hasPointer && fd == nil:
		return nil, common.CategoryError(ErrInvalidFilenameDirectoryLength, "%s declares a filename directory but %s is missing", TOCFile, FDFile)
	case !hasPointer && fd != nil:
		return nil, common.CategoryError(ErrInvalidFilenameDirectoryLength, "%s found but %s has no FD pointer", FDFile, TOCFile)
	case hasPointer:
		idx.FDPointerOffset = int64(len(toc)) - FDPointerSize
		idx.FD = fd
		if int64(len(fd)) != idx.FDLength() {
			return nil, common.CategoryError(ErrInvalidFilenameDirectoryLength, "%s holds 0x%X bytes, TOC declares 0x%X", FDFile, len(fd), idx.FDLength())
		}
	}
	return idx, nil
}

// Magic returns the 4 magic bytes
func (x *Index) Magic() []byte { return x.TOC[:4] }

// HasFD reports whether the archive carries a filename directory
func (x *Index) HasFD() bool { return x.FD != nil }

func (x *Index) FileOffset(i int) int64 {
	return int64(binary.LittleEndian.Uint32(x.TOC[HeaderSize+TOCEntrySize*i:]))
}

func (x *Index) FileLength(i int) int64 {
	return int64(binary.LittleEndian.Uint32(x.TOC[HeaderSize+TOCEntrySize*i+4:]))
}

// SetFileLength patches the TOC length field of file i
func (x *Index) SetFileLength(i int, length uint32) {
	binary.LittleEndian.PutUint32(x.TOC[HeaderSize+TOCEntrySize*i+4:], length)
}

// TOCWord returns the j-th 32-bit word after the header, the value that
// offset-length archives mirror into FD entry j.
func (x *Index) TOCWord(j int) uint32 {
	return binary.LittleEndian.Uint32(x.TOC[HeaderSize+4*j:])
}

func (x *Index) FDOffset() int64 {
	return int64(binary.LittleEndian.Uint32(x.TOC[x.FDPointerOffset:]))
}

func (x *Index) FDLength() int64 {
	return int64(binary.LittleEndian.Uint32(x.TOC[x.FDPointerOffset+4:]))
}

// StoredName returns the name of file i as stored in the archive, or its
// 8-digit index when there is no filename directory.
func (x *Index) StoredName(i int) string {
	if !x.HasFD() {
		return fmt.Sprintf("%08d", i)
	}
	slot := x.fdEntry(i)[:FDNameSize]
	return string(slot[:bytes.IndexByte(slot, 0)])
}

// FDAttribute returns the trailing 4-byte attribute of FD entry i
func (x *Index) FDAttribute(i int) uint32 {
	return binary.LittleEndian.Uint32(x.fdEntry(i)[fdAttrOffset:])
}

// SetFDAttribute patches the trailing attribute of FD entry i
func (x *Index) SetFDAttribute(i int, value uint32) {
	binary.LittleEndian.PutUint32(x.fdEntry(i)[fdAttrOffset:], value)
}

// FDTime returns the timestamp of FD entry i in local time. The second
// result is false when the six fields do not form a valid date.
func (x *Index) FDTime(i int) (time.Time, bool) {
	fields := x.fdTimeFields(i)
	year, month, day := int(fields[0]), int(fields[1]), int(fields[2])
	hour, minute, second := int(fields[3]), int(fields[4]), int(fields[5])
	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.Local)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day ||
		t.Hour() != hour || t.Minute() != minute || t.Second() != second {
		return time.Time{}, false
	}
	return t, true
}

// SetFDTime stores t, in local time, into the six timestamp fields of FD entry i
func (x *Index) SetFDTime(i int, t time.Time) error {
	t = t.Local()
	year, err := common.SafeIntToUint16(t.Year())
	if err != nil {
		return err
	}
	entry := x.fdEntry(i)
	fields := []uint16{year, uint16(t.Month()), uint16(t.Day()), uint16(t.Hour()), uint16(t.Minute()), uint16(t.Second())}
	for k, value := range fields {
		binary.LittleEndian.PutUint16(entry[fdTimeOffset+2*k:], value)
	}
	return nil
}

// FDTimeString renders the raw timestamp fields of FD entry i
func (x *Index) FDTimeString(i int) string {
	f := x.fdTimeFields(i)
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", f[0], f[1], f[2], f[3], f[4], f[5])
}

func (x *Index) fdTimeFields(i int) [6]uint16 {
	var fields [6]uint16
	entry := x.fdEntry(i)
	for k := range fields {
		fields[k] = binary.LittleEndian.Uint16(entry[fdTimeOffset+2*k:])
	}
	return fields
}

func (x *Index) fdEntry(i int) []byte {
	return x.FD[FDEntrySize*i : FDEntrySize*(i+1)]
}

// isValidFDName checks a 32-byte name slot: 1 to 31 non-NUL bytes
// followed by NUL padding up to the end of the slot.
func isValidFDName(slot []byte) bool {
	end := bytes.IndexByte(slot, 0)
	if end < 1 {
		return false
	}
	for _, b := range slot[end:] {
		if b != 0 {
			return false
		}
	}
	return true
}

// isValidStoredName reports whether name fits an FD name slot
func isValidStoredName(name string) bool {
	return len(name) >= 1 && len(name) < FDNameSize && bytes.IndexByte([]byte(name), 0) < 0
}
