package afs

import (
	"os"
	"path/filepath"

	"github.com/hansbonini/gotchatools/pkg/common"
)

// AFSProcessor handles AFS archive operations (unpack/pack/rebuild/stats)
type AFSProcessor struct{}

// NewAFSProcessor creates a new AFS processor instance
func NewAFSProcessor() *AFSProcessor {
	return &AFSProcessor{}
}

// Unpack extracts the index artifacts to sys/ and every file to root/,
// then writes the rebuild configuration and manifest describing the
// original layout.
func (p *AFSProcessor) Unpack(afsPath, outputDir string) error {
	file, err := os.Open(afsPath)
	if err != nil {
		return common.FormatError(common.ErrFailedToOpenInput, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return common.FormatError(common.ErrFailedToStatFile, err)
	}
	idx, err := ReadIndex(file, info.Size())
	if err != nil {
		return err
	}

	sysDir := filepath.Join(outputDir, SysDir)
	rootDir := filepath.Join(outputDir, RootDir)
	for _, dir := range []string{sysDir, rootDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return common.FormatError(common.ErrFailedToCreateDirectory, err)
		}
	}

	resolver := NewFilenameResolver(sysDir)
	if idx.HasFD() {
		if err := os.WriteFile(filepath.Join(sysDir, FDFile), idx.FD, 0644); err != nil {
			return common.FormatError(common.ErrFailedToWriteFile, err)
		}
	} else {
		common.LogInfo(common.InfoNoFDInArchive)
	}
	if err := os.WriteFile(filepath.Join(sysDir, TOCFile), idx.TOC, 0644); err != nil {
		return common.FormatError(common.ErrFailedToWriteFile, err)
	}

	unpacked := make([]string, idx.FileCount)
	for i := 0; i < idx.FileCount; i++ {
		stored := idx.StoredName(i)
		name := resolver.Unique(i, stored)
		if !common.IsSafeFileName(name) {
			return common.CategoryError(ErrInvalidFilePath, "file %d has unusable name %q", i, name)
		}
		unpacked[i] = name

		offset, length := idx.FileOffset(i), idx.FileLength(i)
		common.LogDebug(common.DebugAFSFile, i, name, offset, length)
		target := filepath.Join(rootDir, name)
		if err := extractFile(file, target, offset, length); err != nil {
			return err
		}

		if !idx.HasFD() {
			continue
		}
		if mtime, ok := idx.FDTime(i); ok {
			if err := os.Chtimes(target, mtime, mtime); err != nil {
				return common.FormatError(common.ErrFailedToWriteFile, err)
			}
		} else {
			common.LogWarn(common.WarnInvalidFDDate, name)
		}
	}

	if err := resolver.Save(); err != nil {
		return err
	}
	if err := writeRebuildFiles(sysDir, idx, unpacked); err != nil {
		return err
	}

	common.LogInfo(common.InfoAFSUnpacked, afsPath, outputDir, idx.FileCount)
	return nil
}

// writeRebuildFiles writes an afs_rebuild.conf and afs_rebuild.csv that
// make Rebuild reproduce the index of the unpacked archive
func writeRebuildFiles(sysDir string, idx *Index, unpacked []string) error {
	conf := &RebuildConfig{
		Strategy:          StrategyMixed,
		FilenameDirectory: idx.HasFD(),
		FDPointerOffset:   -1,
		FDOffset:          -1,
		FDAttribute:       DetectFDAttribute(idx),
	}
	copy(conf.Magic[:], idx.Magic())
	if idx.HasFD() {
		conf.FDPointerOffset = idx.FDPointerOffset
		conf.FDOffset = idx.FDOffset()
		common.LogDebug(common.DebugFDAttribute, conf.FDAttribute)
	}

	floor := common.AlignUp(int64(len(idx.TOC)), common.SectorSize)
	shared := hasSharedOffsets(idx)
	if shared {
		common.LogWarn(common.WarnSharedOffsets)
		conf.Strategy = StrategyIndex
	}

	manifest := &Manifest{}
	for i := 0; i < idx.FileCount; i++ {
		entry := ManifestEntry{Unpacked: unpacked[i], Index: i, Offset: idx.FileOffset(i), Stored: idx.StoredName(i)}
		if shared || entry.Offset < floor || !common.IsAligned(entry.Offset, common.SectorSize) {
			entry.Offset = -1
		}
		manifest.Files = append(manifest.Files, entry)
	}

	if err := conf.Save(filepath.Join(sysDir, RebuildConfigFile)); err != nil {
		return err
	}
	return manifest.Save(filepath.Join(sysDir, ManifestFile))
}

// hasSharedOffsets reports whether two non-empty files start at the same offset
func hasSharedOffsets(idx *Index) bool {
	seen := make(map[int64]bool, idx.FileCount)
	for i := 0; i < idx.FileCount; i++ {
		if idx.FileLength(i) == 0 {
			continue
		}
		offset := idx.FileOffset(i)
		if seen[offset] {
			return true
		}
		seen[offset] = true
	}
	return false
}

// extractFile copies length bytes at offset of src into a new file
func extractFile(src *os.File, target string, offset, length int64) error {
	out, err := os.Create(target)
	if err != nil {
		return common.FormatError(common.ErrFailedToCreateOutputFile, err)
	}
	if err := common.CopyRange(out, src, offset, length); err != nil {
		out.Close()
		return common.FormatError(common.ErrFailedToWriteFile, err)
	}
	return out.Close()
}
