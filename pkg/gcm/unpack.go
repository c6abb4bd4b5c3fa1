package gcm

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hansbonini/gotchatools/pkg/common"
)

// GCMProcessor handles GCM disc image operations (unpack/pack/rebuild-fst/stats)
type GCMProcessor struct{}

// NewGCMProcessor creates a new GCM processor instance
func NewGCMProcessor() *GCMProcessor {
	return &GCMProcessor{}
}

// systemArea holds the five system files of a disc image
type systemArea struct {
	boot      *BootRecord
	bi2       []byte
	apploader []byte
	fst       []byte
	dolOffset int64
	dolLength int64
}

// Unpack extracts the system files to sys/ and the FST tree to root/
func (p *GCMProcessor) Unpack(isoPath, outputDir string) error {
	file, err := os.Open(isoPath)
	if err != nil {
		return common.FormatError(common.ErrFailedToOpenInput, err)
	}
	defer file.Close()

	image, err := openImage(file)
	if err != nil {
		return err
	}
	boot, err := image.readBootRecord()
	if err != nil {
		return err
	}
	if common.PathExists(outputDir) {
		return common.CategoryError(ErrInvalidUnpackFolder, "%s already exists", outputDir)
	}
	area, err := image.readSystemArea(boot)
	if err != nil {
		return err
	}

	fst, err := ParseFST(area.fst)
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

	if err := p.writeSystemFiles(file, area, sysDir); err != nil {
		return err
	}

	err = fst.Walk(func(id int, entry FSTEntry, relPath string) error {
		target := filepath.Join(rootDir, filepath.FromSlash(relPath))
		if entry.IsDir {
			common.LogDebug(common.DebugFSTDirectory, id, relPath, entry.Parent(), entry.Next())
			if err := os.Mkdir(target, 0755); err != nil {
				return common.FormatError(common.ErrFailedToCreateDirectory, err)
			}
			return nil
		}
		common.LogDebug(common.DebugFSTFile, id, relPath, entry.Offset(), entry.Length())
		return extractRange(file, target, int64(entry.Offset()), int64(entry.Length()))
	})
	if err != nil {
		return err
	}

	common.LogInfo(common.InfoGCMUnpacked, isoPath, outputDir, len(fst.Entries))
	return nil
}

// imageReader reads ranges of a disc image that lie within its size
type imageReader struct {
	file *os.File
	size int64
}

func openImage(file *os.File) (*imageReader, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, common.FormatError(common.ErrFailedToStatFile, err)
	}
	return &imageReader{file: file, size: info.Size()}, nil
}

// readAt reads exactly size bytes at offset
func (r *imageReader) readAt(offset, size int64) ([]byte, error) {
	if offset < 0 || size < 0 || offset > r.size || size > r.size-offset {
		return nil, fmt.Errorf("0x%X bytes at 0x%X lie past the end of the 0x%X-byte image", size, offset, r.size)
	}
	data := make([]byte, size)
	if _, err := r.file.ReadAt(data, offset); err != nil {
		return nil, err
	}
	return data, nil
}

// readBootRecord reads boot.bin and checks the DVD magic
func (r *imageReader) readBootRecord() (*BootRecord, error) {
	bootData, err := r.readAt(BootOffset, BootSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read boot record: %w", err)
	}
	boot, err := ParseBootRecord(bootData)
	if err != nil {
		return nil, err
	}
	if !boot.HasValidMagic() {
		return nil, common.CategoryError(ErrInvalidDVDMagic, "got 0x%08X, want 0x%08X", boot.Magic(), uint32(DVDMagic))
	}
	return boot, nil
}

// readSystemArea reads bi2.bin, the apploader, the FST and the location
// of the main executable
func (r *imageReader) readSystemArea(boot *BootRecord) (*systemArea, error) {
	bi2, err := r.readAt(Bi2Offset, Bi2Size)
	if err != nil {
		return nil, fmt.Errorf("failed to read bi2: %w", err)
	}

	apploaderHeader, err := r.readAt(ApploaderOffset, ApploaderHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read apploader header: %w", err)
	}
	apploader, err := r.readAt(ApploaderOffset, ApploaderLength(apploaderHeader))
	if err != nil {
		return nil, fmt.Errorf("failed to read apploader: %w", err)
	}

	dolHeader, err := r.readAt(int64(boot.DolOffset()), DolHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read executable header: %w", err)
	}

	fst, err := r.readAt(int64(boot.FSTOffset()), int64(boot.FSTLength()))
	if err != nil {
		return nil, fmt.Errorf("failed to read FST: %w", err)
	}

	return &systemArea{
		boot:      boot,
		bi2:       bi2,
		apploader: apploader,
		fst:       fst,
		dolOffset: int64(boot.DolOffset()),
		dolLength: DolLength(dolHeader),
	}, nil
}

func (p *GCMProcessor) writeSystemFiles(file *os.File, area *systemArea, sysDir string) error {
	files := []struct {
		name string
		data []byte
	}{
		{BootFile, area.boot.Bytes()},
		{Bi2File, area.bi2},
		{ApploaderFile, area.apploader},
		{FSTFile, area.fst},
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(sysDir, f.name), f.data, 0644); err != nil {
			return common.FormatError(common.ErrFailedToWriteFile, err)
		}
		common.LogDebug(common.DebugSysFileWritten, f.name, len(f.data))
	}

	if err := extractRange(file, filepath.Join(sysDir, DolFile), area.dolOffset, area.dolLength); err != nil {
		return err
	}
	common.LogDebug(common.DebugSysFileWritten, DolFile, area.dolLength)
	return nil
}

// extractRange copies length bytes at offset of src into a new file
func extractRange(src *os.File, target string, offset, length int64) error {
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
