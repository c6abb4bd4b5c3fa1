package gcm

import (
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/hansbonini/gotchatools/pkg/common"
)

// packedFile is a root/ file scheduled for writing at its FST offset
type packedFile struct {
	path   string
	offset int64
	length int64
}

// Pack writes a disc image from a folder produced by Unpack. The FST in
// sys/fst.bin decides where every file goes; the tree under root/ must
// match it entry for entry.
func (p *GCMProcessor) Pack(inputDir, isoPath string) (err error) {
	if common.PathExists(isoPath) {
		return common.CategoryError(ErrInvalidPackIso, "%s already exists", isoPath)
	}

	sysDir := filepath.Join(inputDir, SysDir)
	rootDir := filepath.Join(inputDir, RootDir)

	bootData, err := os.ReadFile(filepath.Join(sysDir, BootFile))
	if err != nil {
		return common.FormatError(common.ErrFailedToReadFile, err)
	}
	boot, err := ParseBootRecord(bootData)
	if err != nil {
		return err
	}
	dolOffset := int64(boot.DolOffset())
	fstOffset := int64(boot.FSTOffset())
	fstLength := int64(boot.FSTLength())

	fstData, err := os.ReadFile(filepath.Join(sysDir, FSTFile))
	if err != nil {
		return common.FormatError(common.ErrFailedToReadFile, err)
	}
	if int64(len(fstData)) != fstLength {
		return common.CategoryError(ErrInvalidFSTSize, "fst.bin holds 0x%X bytes, boot.bin declares 0x%X", len(fstData), fstLength)
	}
	fst, err := ParseFST(fstData)
	if err != nil {
		return err
	}

	files, err := p.checkRootTree(fst, rootDir)
	if err != nil {
		return err
	}

	dolPath := filepath.Join(sysDir, DolFile)
	dolSize, err := common.FileSize(dolPath)
	if err != nil {
		return common.FormatError(common.ErrFailedToStatFile, err)
	}
	if err := checkDolPlacement(dolOffset, dolSize, fstOffset, fstLength, files); err != nil {
		return err
	}

	bi2, err := os.ReadFile(filepath.Join(sysDir, Bi2File))
	if err != nil {
		return common.FormatError(common.ErrFailedToReadFile, err)
	}
	apploader, err := os.ReadFile(filepath.Join(sysDir, ApploaderFile))
	if err != nil {
		return common.FormatError(common.ErrFailedToReadFile, err)
	}

	out, err := os.OpenFile(isoPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return common.FormatError(common.ErrFailedToCreateOutputFile, err)
	}
	defer func() {
		closeErr := out.Close()
		if err == nil {
			err = closeErr
		}
		if err != nil {
			os.Remove(isoPath)
			common.LogInfo(common.InfoPartialRemoved, isoPath)
		}
	}()

	writes := []struct {
		offset int64
		data   []byte
	}{
		{BootOffset, boot.Bytes()},
		{Bi2Offset, bi2},
		{ApploaderOffset, apploader},
		{fstOffset, fstData},
	}
	for _, w := range writes {
		if _, err := out.WriteAt(w.data, w.offset); err != nil {
			return common.FormatError(common.ErrFailedToWriteFile, err)
		}
	}

	if err := writeFileAt(out, dolPath, dolOffset); err != nil {
		return err
	}
	for _, f := range files {
		if err := writeFileAt(out, f.path, f.offset); err != nil {
			return err
		}
	}

	common.LogInfo(common.InfoGCMPacked, inputDir, isoPath, len(files))
	return nil
}

// checkRootTree verifies that root/ holds exactly the entries of the FST
// with the recorded file sizes and returns the files to write.
func (p *GCMProcessor) checkRootTree(fst *FST, rootDir string) ([]packedFile, error) {
	count := 0
	err := filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != rootDir {
			count++
		}
		return nil
	})
	if err != nil {
		return nil, common.FormatError(common.ErrFailedToListDirectory, err)
	}
	if count != len(fst.Entries)-1 {
		return nil, common.CategoryError(ErrInvalidRootFileFolderCount, "root/ holds %d entries, FST lists %d", count, len(fst.Entries)-1)
	}

	var files []packedFile
	err = fst.Walk(func(id int, entry FSTEntry, relPath string) error {
		target := filepath.Join(rootDir, filepath.FromSlash(relPath))
		info, err := os.Stat(target)
		if entry.IsDir {
			if err != nil || !info.IsDir() {
				return common.CategoryError(ErrFSTDirNotFound, "%s", relPath)
			}
			return nil
		}
		if err != nil || info.IsDir() {
			return common.CategoryError(ErrFSTFileNotFound, "%s", relPath)
		}
		if info.Size() != int64(entry.Length()) {
			return common.CategoryError(ErrInvalidFSTFileSize, "%s is 0x%X bytes, FST records 0x%X", relPath, info.Size(), entry.Length())
		}
		files = append(files, packedFile{
			path:   target,
			offset: int64(entry.Offset()),
			length: int64(entry.Length()),
		})
		return nil
	})
	return files, err
}

// checkDolPlacement rejects an executable that would run into the FST or
// into the first file placed after it.
func checkDolPlacement(dolOffset, dolSize, fstOffset, fstLength int64, files []packedFile) error {
	dol := common.Region{Begin: dolOffset, End: dolOffset + dolSize}
	fstRegion := common.Region{Begin: fstOffset, End: fstOffset + fstLength}
	if dol.Overlaps(fstRegion) {
		return common.CategoryError(ErrDolSizeOverflow, "boot.dol [0x%X, 0x%X) overlaps the FST [0x%X, 0x%X)", dol.Begin, dol.End, fstRegion.Begin, fstRegion.End)
	}

	// empty files may carry any offset and never occupy space
	firstFile := int64(math.MaxInt64)
	for _, f := range files {
		if f.length > 0 && f.offset < firstFile {
			firstFile = f.offset
		}
	}
	if dolOffset < firstFile && dol.End > firstFile {
		return common.CategoryError(ErrDolSizeOverflow, "boot.dol ends at 0x%X, past the first file at 0x%X", dol.End, firstFile)
	}
	return nil
}

// writeFileAt streams the file at path into out at offset
func writeFileAt(out *os.File, path string, offset int64) error {
	in, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return common.CategoryError(ErrFSTFileNotFound, "%s", path)
		}
		return common.FormatError(common.ErrFailedToOpenInput, err)
	}
	defer in.Close()

	if _, err := common.CopyToOffset(out, in, offset); err != nil {
		return common.FormatError(common.ErrFailedToWriteFile, err)
	}
	return nil
}
