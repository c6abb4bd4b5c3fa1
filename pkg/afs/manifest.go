package afs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/hansbonini/gotchatools/pkg/common"
)

// ManifestEntry is a file line of afs_rebuild.csv:
// unpacked_filename/index/offset/stored_filename
type ManifestEntry struct {
	Unpacked string
	Index    int   // -1 for auto
	Offset   int64 // -1 for auto
	Stored   string
}

// EmptyBlock is a reserved range of afs_rebuild.csv: 0x<offset>/0x<length>
type EmptyBlock struct {
	Offset int64
	Length int64
}

// Manifest is the content of sys/afs_rebuild.csv
type Manifest struct {
	Files       []ManifestEntry
	EmptyBlocks []EmptyBlock
}

// LoadManifest reads afs_rebuild.csv. A missing file yields an empty manifest.
func LoadManifest(path string) (*Manifest, error) {
	manifest := &Manifest{}
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return manifest, nil
	}
	if err != nil {
		return nil, common.FormatError(common.ErrFailedToOpenInput, err)
	}
	defer file.Close()

	reader := newSlashReader(file)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return manifest, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", ManifestFile, err)
		}
		line := strings.Join(record, "/")

		switch len(record) {
		case 4:
			entry, err := parseManifestEntry(record, line)
			if err != nil {
				return nil, err
			}
			manifest.Files = append(manifest.Files, entry)
		case 2:
			block, err := parseEmptyBlock(record, line)
			if err != nil {
				return nil, err
			}
			manifest.EmptyBlocks = append(manifest.EmptyBlocks, block)
		default:
			return nil, common.CategoryError(ErrInvalidFieldsCount, "%d fields in %q", len(record), line)
		}
	}
}

func parseManifestEntry(record []string, line string) (ManifestEntry, error) {
	entry := ManifestEntry{Unpacked: record[0], Index: -1, Offset: -1, Stored: record[3]}
	if entry.Stored == "" {
		entry.Stored = entry.Unpacked
	}

	if record[1] != Auto {
		index, err := common.ParseHex(record[1])
		if err != nil {
			return entry, common.CategoryError(ErrIndexValue, "%q", line)
		}
		entry.Index = int(index)
	}
	if record[2] != Auto {
		offset, err := common.ParseHex(record[2])
		if err != nil {
			return entry, common.CategoryError(ErrOffsetValue, "%q", line)
		}
		if !common.IsAligned(int64(offset), common.SectorSize) {
			return entry, common.CategoryError(ErrOffsetAlign, "0x%X is not a multiple of 0x%X in %q", offset, common.SectorSize, line)
		}
		entry.Offset = int64(offset)
	}
	return entry, nil
}

func parseEmptyBlock(record []string, line string) (EmptyBlock, error) {
	offset, err := common.ParseHex(record[0])
	if err != nil {
		return EmptyBlock{}, common.CategoryError(ErrEmptyBlockValue, "%q", line)
	}
	length, err := common.ParseHex(record[1])
	if err != nil || length == 0 {
		return EmptyBlock{}, common.CategoryError(ErrEmptyBlockValue, "%q", line)
	}
	if !common.IsAligned(int64(offset), common.SectorSize) || !common.IsAligned(int64(length), common.SectorSize) {
		return EmptyBlock{}, common.CategoryError(ErrEmptyBlockAlign, "%q", line)
	}
	return EmptyBlock{Offset: int64(offset), Length: int64(length)}, nil
}

// Save writes the manifest in afs_rebuild.csv format
func (m *Manifest) Save(path string) error {
	records := make([][]string, 0, len(m.Files)+len(m.EmptyBlocks))
	for _, f := range m.Files {
		index, offset := Auto, Auto
		if f.Index >= 0 {
			index = common.FormatHex(int64(f.Index))
		}
		if f.Offset >= 0 {
			offset = common.FormatHex(f.Offset)
		}
		records = append(records, []string{f.Unpacked, index, offset, f.Stored})
	}
	for _, b := range m.EmptyBlocks {
		records = append(records, []string{common.FormatHex(b.Offset), common.FormatHex(b.Length)})
	}
	return writeSlashFile(path, records)
}
