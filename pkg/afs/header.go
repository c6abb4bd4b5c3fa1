package afs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hansbonini/gotchatools/pkg/common"
)

// ReadIndex parses the header, the TOC and, when it passes validation, the
// filename directory of an open archive. A malformed filename directory is
// not an error: the index is returned without one.
func ReadIndex(file *os.File, size int64) (*Index, error) {
	header := make([]byte, HeaderSize)
	if _, err := file.ReadAt(header, 0); err != nil {
		return nil, fmt.Errorf("failed to read AFS header: %w", err)
	}
	if !IsValidMagic(header[:4]) {
		return nil, common.CategoryError(ErrInvalidMagicNumber, "%q", header[:4])
	}
	fileCount := int(binary.LittleEndian.Uint32(header[4:8]))
	base := tocLength(fileCount)
	if base > size {
		return nil, fmt.Errorf("TOC of %d entries does not fit in a 0x%X-byte archive", fileCount, size)
	}

	toc := make([]byte, base)
	if _, err := file.ReadAt(toc, 0); err != nil {
		return nil, fmt.Errorf("failed to read TOC: %w", err)
	}
	idx := &Index{TOC: toc, FileCount: fileCount}

	pointerOffset, fdOffset, err := findFDPointer(file, base)
	if err != nil {
		return nil, err
	}

	fdLength, reason := checkFD(file, size, pointerOffset, fdOffset, fileCount)
	if reason != "" {
		common.LogWarn(common.WarnFDDiscarded, reason)
		return idx, nil
	}

	fd := make([]byte, fdLength)
	if _, err := file.ReadAt(fd, fdOffset); err != nil {
		return nil, fmt.Errorf("failed to read filename directory: %w", err)
	}
	for i := 0; i < fileCount; i++ {
		if !isValidFDName(fd[FDEntrySize*i : FDEntrySize*i+FDNameSize]) {
			common.LogWarn(common.WarnFDDiscarded, fmt.Sprintf("entry %d has a malformed name", i))
			return idx, nil
		}
	}

	full := make([]byte, pointerOffset+FDPointerSize)
	if _, err := file.ReadAt(full, 0); err != nil {
		return nil, fmt.Errorf("failed to read TOC: %w", err)
	}
	idx.TOC = full
	idx.FDPointerOffset = pointerOffset
	idx.FD = fd
	common.LogDebug(common.DebugFDPointer, pointerOffset, fdOffset, fdLength)
	return idx, nil
}

// findFDPointer locates the first non-zero 32-bit word at or after start.
// Its position is the FD-pointer offset and its value the FD offset.
func findFDPointer(file *os.File, start int64) (int64, int64, error) {
	chunk := make([]byte, common.SectorSize)
	for pos := start; ; pos += common.SectorSize {
		n, err := file.ReadAt(chunk, pos)
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, 0, fmt.Errorf("failed to scan for FD pointer: %w", err)
		}
		for k := 0; k+4 <= n; k += 4 {
			if word := binary.LittleEndian.Uint32(chunk[k:]); word != 0 {
				return pos + int64(k), int64(word), nil
			}
		}
		if n < len(chunk) {
			return 0, 0, common.CategoryError(ErrEmptyAfs, "no non-zero word after the TOC at 0x%X", start)
		}
	}
}

// checkFD reads the FD length and returns a non-empty reason when the
// candidate pointer does not describe a usable filename directory.
func checkFD(file *os.File, size, pointerOffset, fdOffset int64, fileCount int) (int64, string) {
	raw := make([]byte, 4)
	if _, err := file.ReadAt(raw, pointerOffset+4); err != nil {
		return 0, "FD length lies past the end of the archive"
	}
	fdLength := int64(binary.LittleEndian.Uint32(raw))

	switch {
	case fdOffset+fdLength > size:
		return 0, fmt.Sprintf("FD [0x%X, 0x%X) lies past the end of the archive", fdOffset, fdOffset+fdLength)
	case fdOffset < pointerOffset:
		return 0, fmt.Sprintf("FD offset 0x%X precedes its pointer at 0x%X", fdOffset, pointerOffset)
	case (pointerOffset-HeaderSize)/TOCEntrySize != fdLength/FDEntrySize:
		return 0, fmt.Sprintf("FD length 0x%X does not match the pointer position 0x%X", fdLength, pointerOffset)
	case fdLength != int64(fileCount)*FDEntrySize:
		return 0, fmt.Sprintf("FD length 0x%X does not hold %d entries", fdLength, fileCount)
	}
	return fdLength, ""
}
