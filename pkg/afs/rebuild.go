package afs

import (
	"encoding/binary"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/hansbonini/gotchatools/pkg/common"
)

// rebuildFile is one file of the rebuild worklist
type rebuildFile struct {
	unpacked string
	stored   string
	size     int64
	index    int   // -1 until assigned
	offset   int64 // -1 until assigned
}

// freeGap is a placement hole [begin, end) left below the floor
type freeGap struct {
	begin int64
	end   int64
}

// Rebuild regenerates sys/tableofcontent.bin, sys/filenamedirectory.bin
// and the filename resolver from sys/afs_rebuild.conf, the optional
// sys/afs_rebuild.csv manifest and the files under root/. Pack then emits
// the archive bytes.
func (p *AFSProcessor) Rebuild(inputDir string) error {
	sysDir := filepath.Join(inputDir, SysDir)
	rootDir := filepath.Join(inputDir, RootDir)

	conf, err := LoadRebuildConfig(filepath.Join(sysDir, RebuildConfigFile))
	if err != nil {
		return err
	}
	manifest, err := LoadManifest(filepath.Join(sysDir, ManifestFile))
	if err != nil {
		return err
	}
	sizes, names, err := listRootFiles(rootDir)
	if err != nil {
		return err
	}
	fileCount := len(names)
	if fileCount == 0 {
		common.LogWarn(common.WarnEmptyAfsFolder, rootDir)
	}

	worklist, err := buildWorklist(conf, manifest, sizes, names)
	if err != nil {
		return err
	}

	base := tocLength(fileCount)
	pointerOffset := int64(-1)
	floor := common.AlignUp(base, common.SectorSize)
	if conf.FilenameDirectory {
		pointerOffset = base
		if conf.FDPointerOffset >= 0 {
			if conf.FDPointerOffset < base || !common.IsAligned(conf.FDPointerOffset, 4) {
				return common.CategoryError(ErrFdOffsetOffsetValue, "0x%X must be 4-aligned and at least 0x%X", conf.FDPointerOffset, base)
			}
			pointerOffset = conf.FDPointerOffset
		}
		floor = common.AlignUp(pointerOffset+FDPointerSize, common.SectorSize)
	}

	gaps, floor, err := reserveRegions(manifest.EmptyBlocks, worklist, floor)
	if err != nil {
		return err
	}

	assignIndices(worklist)
	floor = assignOffsets(worklist, gaps, floor)

	tocSize := base
	if conf.FilenameDirectory {
		tocSize = pointerOffset + FDPointerSize
	}
	idx := &Index{TOC: make([]byte, tocSize), FileCount: fileCount}
	copy(idx.TOC[:4], conf.Magic[:])
	binary.LittleEndian.PutUint32(idx.TOC[4:8], uint32(fileCount))
	for _, f := range worklist {
		offset, err := common.SafeInt64ToUint32(f.offset)
		if err != nil {
			return common.CategoryError(ErrOffsetValue, "%s: %v", f.unpacked, err)
		}
		size, err := common.SafeInt64ToUint32(f.size)
		if err != nil {
			return common.CategoryError(ErrInvalidFileLen, "%s: %v", f.unpacked, err)
		}
		binary.LittleEndian.PutUint32(idx.TOC[HeaderSize+TOCEntrySize*f.index:], offset)
		idx.SetFileLength(f.index, size)
		common.LogDebug(common.DebugPlacement, f.unpacked, f.index, f.offset)
	}

	if conf.FilenameDirectory {
		if err := buildFD(idx, conf, worklist, pointerOffset, floor); err != nil {
			return err
		}
	}

	resolver := NewFilenameResolver(sysDir)
	for _, f := range worklist {
		if f.unpacked != idx.StoredName(f.index) {
			resolver.Add(f.index, f.unpacked)
		}
	}

	if err := os.WriteFile(filepath.Join(sysDir, TOCFile), idx.TOC, 0644); err != nil {
		return common.FormatError(common.ErrFailedToWriteFile, err)
	}
	fdPath := filepath.Join(sysDir, FDFile)
	if idx.HasFD() {
		if err := os.WriteFile(fdPath, idx.FD, 0644); err != nil {
			return common.FormatError(common.ErrFailedToWriteFile, err)
		}
	} else if err := os.Remove(fdPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return common.FormatError(common.ErrFailedToWriteFile, err)
	}
	if err := resolver.Save(); err != nil {
		return err
	}

	common.LogInfo(common.InfoAFSRebuilt, inputDir, fileCount, conf.Strategy)
	return nil
}

// listRootFiles returns the size of every file under root/ and their names
// in directory order
func listRootFiles(rootDir string) (map[string]int64, []string, error) {
	entries, err := os.ReadDir(rootDir)
	if err != nil {
		return nil, nil, common.CategoryError(ErrInvalidAfsFolder, "%v", err)
	}
	sizes := make(map[string]int64, len(entries))
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, nil, common.FormatError(common.ErrFailedToStatFile, err)
		}
		sizes[entry.Name()] = info.Size()
		names = append(names, entry.Name())
	}
	return sizes, names, nil
}

// buildWorklist validates the manifest file lines against root/ and the
// strategy, then appends every unlisted file with an automatic placement
func buildWorklist(conf *RebuildConfig, manifest *Manifest, sizes map[string]int64, names []string) ([]*rebuildFile, error) {
	fileCount := len(names)
	listed := make(map[string]bool, len(manifest.Files))
	indices := make(map[int]string)
	var worklist []*rebuildFile

	for _, entry := range manifest.Files {
		size, ok := sizes[entry.Unpacked]
		if !ok {
			return nil, common.CategoryError(ErrInvalidFilePath, "%s not found in %s", entry.Unpacked, RootDir)
		}
		if listed[entry.Unpacked] {
			return nil, common.CategoryError(ErrInvalidFilePath, "%s listed twice", entry.Unpacked)
		}
		listed[entry.Unpacked] = true
		if conf.FilenameDirectory && !isValidStoredName(entry.Stored) {
			return nil, common.CategoryError(ErrInvalidFilePath, "stored name %q must be 1 to %d bytes", entry.Stored, FDNameSize-1)
		}

		f := &rebuildFile{unpacked: entry.Unpacked, stored: entry.Stored, size: size, index: -1, offset: -1}
		if conf.Strategy.HonorsIndex() && entry.Index >= 0 {
			if entry.Index >= fileCount {
				return nil, common.CategoryError(ErrIndexOverflow, "%s: index 0x%X, archive holds %d files", entry.Unpacked, entry.Index, fileCount)
			}
			if other, taken := indices[entry.Index]; taken {
				return nil, common.CategoryError(ErrIndexCollision, "%s and %s both use index 0x%X", other, entry.Unpacked, entry.Index)
			}
			indices[entry.Index] = entry.Unpacked
			f.index = entry.Index
		}
		if conf.Strategy.HonorsOffset() && entry.Offset >= 0 {
			f.offset = entry.Offset
		}
		worklist = append(worklist, f)
	}

	for _, name := range names {
		if listed[name] {
			continue
		}
		if conf.FilenameDirectory && !isValidStoredName(name) {
			return nil, common.CategoryError(ErrInvalidFilePath, "file name %q must be 1 to %d bytes", name, FDNameSize-1)
		}
		worklist = append(worklist, &rebuildFile{unpacked: name, stored: name, size: sizes[name], index: -1, offset: -1})
	}
	return worklist, nil
}

// reserveRegions walks the empty blocks and the files with a requested
// offset in ascending order, recording the holes left below each of them
// and raising the floor past them.
func reserveRegions(blocks []EmptyBlock, worklist []*rebuildFile, floor int64) ([]*freeGap, int64, error) {
	type reserved struct {
		name   string
		offset int64
		length int64
	}
	var regions []reserved
	for _, b := range blocks {
		regions = append(regions, reserved{name: "empty block", offset: b.Offset, length: b.Length})
	}
	for _, f := range worklist {
		if f.offset >= 0 {
			regions = append(regions, reserved{name: f.unpacked, offset: f.offset, length: f.size})
		}
	}
	sort.SliceStable(regions, func(i, j int) bool { return regions[i].offset < regions[j].offset })

	var gaps []*freeGap
	for _, r := range regions {
		if r.offset < floor {
			return nil, 0, common.CategoryError(ErrOffsetCollision, "%s at 0x%X lies below 0x%X", r.name, r.offset, floor)
		}
		if r.offset > floor {
			gaps = append(gaps, &freeGap{begin: floor, end: r.offset})
			common.LogDebug(common.DebugFreeGap, floor, r.offset)
		}
		floor = common.AlignUp(r.offset+r.length, common.SectorSize)
	}
	return gaps, floor, nil
}

// assignIndices gives every file without an index the smallest free one,
// in stored-name order, then sorts the worklist by index
func assignIndices(worklist []*rebuildFile) {
	sort.SliceStable(worklist, func(i, j int) bool {
		if worklist[i].stored != worklist[j].stored {
			return worklist[i].stored < worklist[j].stored
		}
		return worklist[i].unpacked < worklist[j].unpacked
	})

	taken := make(map[int]bool)
	for _, f := range worklist {
		if f.index >= 0 {
			taken[f.index] = true
		}
	}
	next := 0
	for _, f := range worklist {
		if f.index >= 0 {
			continue
		}
		for taken[next] {
			next++
		}
		f.index = next
		taken[next] = true
	}

	sort.SliceStable(worklist, func(i, j int) bool { return worklist[i].index < worklist[j].index })
}

// assignOffsets places every file without an offset, in index order, in
// the first gap large enough for its sector-aligned size, else at the
// floor. It returns the final floor.
func assignOffsets(worklist []*rebuildFile, gaps []*freeGap, floor int64) int64 {
	for _, f := range worklist {
		if f.offset >= 0 {
			continue
		}
		need := common.GetSizeInSectors(f.size) * common.SectorSize
		placed := false
		for i, gap := range gaps {
			if gap.end-gap.begin < need {
				continue
			}
			f.offset = gap.begin
			gap.begin += need
			if gap.begin >= gap.end {
				gaps = append(gaps[:i], gaps[i+1:]...)
			}
			placed = true
			break
		}
		if !placed {
			f.offset = floor
			floor += need
		}
	}
	return floor
}

// buildFD creates the filename directory entries in index order and
// writes the FD pointer pair at pointerOffset
func buildFD(idx *Index, conf *RebuildConfig, worklist []*rebuildFile, pointerOffset, floor int64) error {
	idx.FD = make([]byte, FDEntrySize*idx.FileCount)
	for _, f := range worklist {
		entry := idx.fdEntry(f.index)
		copy(entry[:FDNameSize], f.stored)
		size := uint32(f.size)
		idx.SetFDAttribute(f.index, conf.FDAttribute.attributeValue(idx, f.index, size))
	}

	fdOffset := floor
	if conf.FDOffset >= 0 {
		if conf.FDOffset < floor {
			return common.CategoryError(ErrFdOffsetCollision, "FD offset 0x%X lies below 0x%X", conf.FDOffset, floor)
		}
		fdOffset = conf.FDOffset
	}
	fdOffset32, err := common.SafeInt64ToUint32(fdOffset)
	if err != nil {
		return common.CategoryError(ErrFdOffsetValue, "%v", err)
	}
	fdLength, err := common.SafeIntToUint32(len(idx.FD))
	if err != nil {
		return common.CategoryError(ErrInvalidFilenameDirectoryLength, "%v", err)
	}

	idx.FDPointerOffset = pointerOffset
	binary.LittleEndian.PutUint32(idx.TOC[pointerOffset:], fdOffset32)
	binary.LittleEndian.PutUint32(idx.TOC[pointerOffset+4:], fdLength)
	return nil
}
