// Package gcm unpacks, repacks and rebuilds GameCube GCM/ISO disc images.
// All integer fields of the disc structures are big-endian.
package gcm

import (
	"encoding/binary"
	"fmt"
	"path"

	"github.com/hansbonini/gotchatools/pkg/common"
)

// Fixed layout of the disc system area
const (
	DVDMagic = 0xC2339F3D

	BootOffset          = 0x0
	BootSize            = 0x440
	Bi2Offset           = 0x440
	Bi2Size             = 0x2000
	ApploaderOffset     = 0x2440
	ApploaderHeaderSize = 0x20
	DolHeaderSize       = 0x100
	DolSectionCount     = 18
	FSTEntrySize        = 12
)

// Byte offsets of the boot record fields
const (
	bootGameCodeOffset     = 0x0
	bootDiscNumberOffset   = 0x6
	bootMagicOffset        = 0x1C
	bootDolOffsetOffset    = 0x420
	bootFSTOffsetOffset    = 0x424
	bootFSTLengthOffset    = 0x428
	bootFSTMaxLengthOffset = 0x42C
	dolSectionSizesOffset  = 0x90
	apploaderSizeOffset    = 0x14
	apploaderTrailerOffset = 0x18
)

// Names of the files written to the sys/ directory
const (
	SysDir        = "sys"
	RootDir       = "root"
	BootFile      = "boot.bin"
	Bi2File       = "bi2.bin"
	ApploaderFile = "apploader.img"
	FSTFile       = "fst.bin"
	DolFile       = "boot.dol"
)

// BootRecord wraps the 0x440-byte disc header (boot.bin)
type BootRecord struct {
	data []byte
}

// ParseBootRecord wraps raw boot.bin bytes without checking the DVD magic
func ParseBootRecord(data []byte) (*BootRecord, error) {
	if len(data) != BootSize {
		return nil, fmt.Errorf("boot record must be 0x%X bytes, got 0x%X", BootSize, len(data))
	}
	return &BootRecord{data: data}, nil
}

// Bytes returns the raw boot record
func (b *BootRecord) Bytes() []byte { return b.data }

// GameCode returns the 4-character game code
func (b *BootRecord) GameCode() string {
	return string(b.data[bootGameCodeOffset : bootGameCodeOffset+4])
}

// DiscNumber returns the zero-based disc number
func (b *BootRecord) DiscNumber() int { return int(b.data[bootDiscNumberOffset]) }

// Magic returns the DVD magic word
func (b *BootRecord) Magic() uint32 { return b.word(bootMagicOffset) }

// HasValidMagic reports whether the DVD magic word matches
func (b *BootRecord) HasValidMagic() bool { return b.Magic() == DVDMagic }

func (b *BootRecord) DolOffset() uint32    { return b.word(bootDolOffsetOffset) }
func (b *BootRecord) FSTOffset() uint32    { return b.word(bootFSTOffsetOffset) }
func (b *BootRecord) FSTLength() uint32    { return b.word(bootFSTLengthOffset) }
func (b *BootRecord) FSTMaxLength() uint32 { return b.word(bootFSTMaxLengthOffset) }

// SetLayout patches the DOL and FST location fields
func (b *BootRecord) SetLayout(dolOffset, fstOffset, fstLength, fstMaxLength uint32) {
	binary.BigEndian.PutUint32(b.data[bootDolOffsetOffset:], dolOffset)
	binary.BigEndian.PutUint32(b.data[bootFSTOffsetOffset:], fstOffset)
	binary.BigEndian.PutUint32(b.data[bootFSTLengthOffset:], fstLength)
	binary.BigEndian.PutUint32(b.data[bootFSTMaxLengthOffset:], fstMaxLength)
}

func (b *BootRecord) word(offset int) uint32 {
	return binary.BigEndian.Uint32(b.data[offset : offset+4])
}

// ApploaderLength returns the total apploader length from its 0x20-byte header
func ApploaderLength(header []byte) int64 {
	size := binary.BigEndian.Uint32(header[apploaderSizeOffset:])
	trailer := binary.BigEndian.Uint32(header[apploaderTrailerOffset:])
	return ApploaderHeaderSize + int64(size) + int64(trailer)
}

// DolLength returns the total executable length from its 0x100-byte header
func DolLength(header []byte) int64 {
	total := int64(DolHeaderSize)
	for i := 0; i < DolSectionCount; i++ {
		offset := dolSectionSizesOffset + 4*i
		total += int64(binary.BigEndian.Uint32(header[offset : offset+4]))
	}
	return total
}

// FSTEntry is one 12-byte record of the file-system table
type FSTEntry struct {
	IsDir      bool
	NameOffset uint32 // 24-bit offset into the string block
	Word1      uint32 // parent index (directory) or image offset (file)
	Word2      uint32 // next index past the subtree (directory) or length (file)
}

func (e FSTEntry) Parent() uint32 { return e.Word1 }
func (e FSTEntry) Next() uint32   { return e.Word2 }
func (e FSTEntry) Offset() uint32 { return e.Word1 }
func (e FSTEntry) Length() uint32 { return e.Word2 }

// FST is a parsed file-system table
type FST struct {
	Entries []FSTEntry
	Names   []byte // string block
}

// ParseFST decodes the entry array and string block of fst.bin
func ParseFST(data []byte) (*FST, error) {
	if len(data) < FSTEntrySize {
		return nil, common.CategoryError(ErrInvalidFSTSize, "FST holds 0x%X bytes, less than one entry", len(data))
	}
	if data[0] != 1 {
		return nil, common.CategoryError(ErrInvalidFSTSize, "FST root entry is not a directory")
	}
	count := int64(binary.BigEndian.Uint32(data[8:12]))
	if count < 1 || count*FSTEntrySize > int64(len(data)) {
		return nil, common.CategoryError(ErrInvalidFSTSize, "FST declares %d entries but holds 0x%X bytes", count, len(data))
	}

	fst := &FST{
		Entries: make([]FSTEntry, count),
		Names:   data[count*FSTEntrySize:],
	}
	for i := range fst.Entries {
		raw := data[i*FSTEntrySize : (i+1)*FSTEntrySize]
		fst.Entries[i] = FSTEntry{
			IsDir:      raw[0] != 0,
			NameOffset: binary.BigEndian.Uint32(raw[0:4]) & 0xFFFFFF,
			Word1:      binary.BigEndian.Uint32(raw[4:8]),
			Word2:      binary.BigEndian.Uint32(raw[8:12]),
		}
	}
	return fst, nil
}

// Name returns the NUL-terminated name of entry id from the string block
func (f *FST) Name(id int) (string, error) {
	start := int(f.Entries[id].NameOffset)
	if start >= len(f.Names) {
		return "", common.CategoryError(ErrInvalidFSTSize, "name offset 0x%X of entry %d is outside the string block", start, id)
	}
	for end := start; end < len(f.Names); end++ {
		if f.Names[end] == 0 {
			return string(f.Names[start:end]), nil
		}
	}
	return "", common.CategoryError(ErrInvalidFSTSize, "name of entry %d is not NUL-terminated", id)
}

// Walk visits every non-root entry in id order with its slash-separated
// path relative to root/. Directories are tracked by a stack of next-dir
// boundaries: when the id reaches the boundary on top, that directory ends.
func (f *FST) Walk(visit func(id int, entry FSTEntry, relPath string) error) error {
	type frame struct {
		next uint32
		path string
	}
	count := uint32(len(f.Entries))
	dirs := map[uint32]string{0: ""}
	stack := []frame{{next: count, path: ""}}

	for id := uint32(1); id < count; id++ {
		for len(stack) > 1 && id == stack[len(stack)-1].next {
			stack = stack[:len(stack)-1]
		}

		entry := f.Entries[id]
		name, err := f.Name(int(id))
		if err != nil {
			return err
		}
		if !common.IsSafeFileName(name) {
			return common.CategoryError(ErrInvalidFSTSize, "entry %d has unusable name %q", id, name)
		}

		if entry.IsDir {
			parent, ok := dirs[entry.Parent()]
			if !ok {
				return common.CategoryError(ErrFSTDirNotFound, "parent %d of directory entry %d is not a known directory", entry.Parent(), id)
			}
			if entry.Next() <= id || entry.Next() > count {
				return common.CategoryError(ErrInvalidFSTSize, "directory entry %d ends at %d, outside (%d, %d]", id, entry.Next(), id, count)
			}
			relPath := path.Join(parent, name)
			dirs[id] = relPath
			stack = append(stack, frame{next: entry.Next(), path: relPath})
			if err := visit(int(id), entry, relPath); err != nil {
				return err
			}
			continue
		}

		relPath := path.Join(stack[len(stack)-1].path, name)
		if err := visit(int(id), entry, relPath); err != nil {
			return err
		}
	}
	return nil
}
