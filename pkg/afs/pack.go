package afs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/hansbonini/gotchatools/pkg/common"
)

// Pack writes an archive from a folder produced by Unpack or Rebuild.
// Files keep their TOC offsets; a file may shrink or grow as long as it
// still ends before the next placed region.
func (p *AFSProcessor) Pack(inputDir, afsPath string) (err error) {
	sysDir := filepath.Join(inputDir, SysDir)
	rootDir := filepath.Join(inputDir, RootDir)

	idx, err := loadSysIndex(sysDir)
	if err != nil {
		return err
	}
	if info, statErr := os.Stat(rootDir); statErr != nil || !info.IsDir() {
		return common.CategoryError(ErrInvalidAfsFolder, "%s is not a directory", rootDir)
	}

	attribute := DetectFDAttribute(idx)
	regions := indexRegions(idx)
	common.SortRegions(regions)
	if i, j := common.FindCollision(regions); i >= 0 {
		return common.CategoryError(ErrOffsetCollision, "%s [0x%X, 0x%X) overlaps %s [0x%X, 0x%X)",
			regions[i].Name, regions[i].Begin, regions[i].End, regions[j].Name, regions[j].Begin, regions[j].End)
	}
	offsets := make([]int64, 0, len(regions))
	for _, region := range regions {
		offsets = append(offsets, region.Begin)
	}

	resolver, err := LoadFilenameResolver(sysDir)
	if err != nil {
		return err
	}

	paths := make([]string, idx.FileCount)
	for i := 0; i < idx.FileCount; i++ {
		name := resolver.Resolve(i, idx.StoredName(i))
		paths[i] = filepath.Join(rootDir, name)
		info, err := os.Stat(paths[i])
		if err != nil || info.IsDir() {
			return common.CategoryError(ErrInvalidFilePath, "%s (index %d) not found in %s", name, i, RootDir)
		}

		offset, length := idx.FileOffset(i), info.Size()
		if length != idx.FileLength(i) {
			if next, ok := nextOffset(offsets, offset); ok && offset+length > next {
				return common.CategoryError(ErrInvalidFileLen, "%s grew to 0x%X bytes and would overrun the region at 0x%X, rebuild the archive instead", name, length, next)
			}
			size, err := common.SafeInt64ToUint32(length)
			if err != nil {
				return common.CategoryError(ErrInvalidFileLen, "%s: %v", name, err)
			}
			common.LogWarn(common.WarnFileResized, name, idx.FileLength(i), length)
			idx.SetFileLength(i, size)
		}

		if !idx.HasFD() {
			continue
		}
		switch attribute.Kind {
		case AttributeLength:
			idx.SetFDAttribute(i, uint32(length))
		case AttributeOffsetLength:
			// FD entry 2i+1 mirrors TOC word 2i+1, the length of file i,
			// for every i and not only the even ones
			if 2*i+1 < idx.FileCount {
				idx.SetFDAttribute(2*i+1, uint32(length))
			}
		}
		if err := idx.SetFDTime(i, info.ModTime()); err != nil {
			return common.FormatError("invalid modification time of "+name, err)
		}
	}

	out, err := os.Create(afsPath)
	if err != nil {
		return common.FormatError(common.ErrFailedToCreateOutputFile, err)
	}
	defer func() {
		closeErr := out.Close()
		if err == nil {
			err = closeErr
		}
		if err != nil {
			os.Remove(afsPath)
			common.LogInfo(common.InfoPartialRemoved, afsPath)
		}
	}()

	for i, path := range paths {
		if err := writePaddedFile(out, path, idx.FileOffset(i)); err != nil {
			return err
		}
	}
	if idx.HasFD() {
		if _, err := out.WriteAt(idx.FD, idx.FDOffset()); err != nil {
			return common.FormatError(common.ErrFailedToWriteFile, err)
		}
		if err := common.PadToSector(out, idx.FDOffset()+int64(len(idx.FD))); err != nil {
			return common.FormatError(common.ErrFailedToWriteFile, err)
		}
	}
	if _, err := out.WriteAt(idx.TOC, 0); err != nil {
		return common.FormatError(common.ErrFailedToWriteFile, err)
	}

	common.LogInfo(common.InfoAFSPacked, inputDir, afsPath, idx.FileCount)
	return nil
}

// loadSysIndex reads tableofcontent.bin and the optional filenamedirectory.bin
func loadSysIndex(sysDir string) (*Index, error) {
	toc, err := os.ReadFile(filepath.Join(sysDir, TOCFile))
	if err != nil {
		return nil, common.CategoryError(ErrInvalidAfsFolder, "%v", err)
	}
	fd, err := os.ReadFile(filepath.Join(sysDir, FDFile))
	if errors.Is(err, fs.ErrNotExist) {
		fd = nil
	} else if err != nil {
		return nil, common.FormatError(common.ErrFailedToReadFile, err)
	}
	return NewIndex(toc, fd)
}

// indexRegions lists the placed regions of an index: the TOC, every file
// and the filename directory
func indexRegions(idx *Index) []common.Region {
	regions := []common.Region{{Begin: 0, End: int64(len(idx.TOC)), Name: "<TOC>"}}
	for i := 0; i < idx.FileCount; i++ {
		regions = append(regions, common.Region{
			Begin: idx.FileOffset(i),
			End:   idx.FileOffset(i) + idx.FileLength(i),
			Name:  idx.StoredName(i),
		})
	}
	if idx.HasFD() {
		regions = append(regions, common.Region{
			Begin: idx.FDOffset(),
			End:   idx.FDOffset() + idx.FDLength(),
			Name:  "<FD>",
		})
	}
	return regions
}

// nextOffset returns the first sorted offset strictly above offset
func nextOffset(sorted []int64, offset int64) (int64, bool) {
	i := sort.Search(len(sorted), func(i int) bool { return sorted[i] > offset })
	if i == len(sorted) {
		return 0, false
	}
	return sorted[i], true
}

// writePaddedFile streams the file at path into out at offset and pads it
// with zeros up to the next sector boundary
func writePaddedFile(out *os.File, path string, offset int64) error {
	in, err := os.Open(path)
	if err != nil {
		return common.FormatError(common.ErrFailedToOpenInput, err)
	}
	defer in.Close()

	n, err := common.CopyToOffset(out, in, offset)
	if err != nil {
		return common.FormatError(common.ErrFailedToWriteFile, err)
	}
	if err := common.PadToSector(out, offset+n); err != nil {
		return common.FormatError(common.ErrFailedToWriteFile, err)
	}
	return nil
}
