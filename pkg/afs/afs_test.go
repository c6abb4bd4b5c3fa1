package afs

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// rebuildConf renders an afs_rebuild.conf with automatic FD placement
func rebuildConf(strategy string, filenameDirectory bool) string {
	conf := fmt.Sprintf(`[Default]
AFS_MAGIC = 0x41465300
files_rebuild_strategy = %s
filename_directory = %s
`, strategy, pythonBool(filenameDirectory))
	if filenameDirectory {
		conf += `
[FilenameDirectory]
toc_offset_of_fd_offset = auto
fd_offset = auto
fd_last_attribute_type = length
`
	}
	return conf
}

// writeAfsFolder creates an unpacked folder holding the given files, each
// filled with the first byte of its name, plus the rebuild sidecars
func writeAfsFolder(t *testing.T, sizes map[string]int, conf, manifest string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "afs")
	for _, sub := range []string{SysDir, RootDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
	}
	for name, size := range sizes {
		data := bytes.Repeat([]byte{name[0]}, size)
		writeTestFile(t, filepath.Join(dir, RootDir, name), data)
	}
	writeTestFile(t, filepath.Join(dir, SysDir, RebuildConfigFile), []byte(conf))
	if manifest != "" {
		writeTestFile(t, filepath.Join(dir, SysDir, ManifestFile), []byte(manifest))
	}
	return dir
}

func writeTestFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func readSys(t *testing.T, dir, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, SysDir, name))
	if err != nil {
		t.Fatalf("Failed to read %s: %v", name, err)
	}
	return data
}

// checkTOC compares the TOC entries and FD pointer pair of a rebuilt folder
func checkTOC(t *testing.T, dir string, entries [][2]uint32, fdPointer [2]uint32) {
	t.Helper()
	toc := readSys(t, dir, TOCFile)
	if string(toc[:4]) != "AFS\x00" {
		t.Errorf("magic = %q, want \"AFS\\x00\"", toc[:4])
	}
	if count := binary.LittleEndian.Uint32(toc[4:8]); count != uint32(len(entries)) {
		t.Fatalf("file count = %d, want %d", count, len(entries))
	}
	for i, want := range entries {
		got := [2]uint32{
			binary.LittleEndian.Uint32(toc[8+8*i:]),
			binary.LittleEndian.Uint32(toc[12+8*i:]),
		}
		if got != want {
			t.Errorf("TOC entry %d = (0x%X, 0x%X), want (0x%X, 0x%X)", i, got[0], got[1], want[0], want[1])
		}
	}
	pointer := len(toc) - FDPointerSize
	got := [2]uint32{binary.LittleEndian.Uint32(toc[pointer:]), binary.LittleEndian.Uint32(toc[pointer+4:])}
	if got != fdPointer {
		t.Errorf("FD pointer = (0x%X, 0x%X), want (0x%X, 0x%X)", got[0], got[1], fdPointer[0], fdPointer[1])
	}
}

func fdNames(t *testing.T, dir string) []string {
	t.Helper()
	fd := readSys(t, dir, FDFile)
	var names []string
	for i := 0; i+FDEntrySize <= len(fd); i += FDEntrySize {
		slot := fd[i : i+FDNameSize]
		names = append(names, string(slot[:bytes.IndexByte(slot, 0)]))
	}
	return names
}

var bacSizes = map[string]int{"a.bin": 0x500, "b.bin": 0x600, "c.bin": 0x700}

func TestRebuild_ForcedIndex(t *testing.T) {
	for _, strategy := range []string{"index", "mixed"} {
		t.Run(strategy, func(t *testing.T) {
			dir := writeAfsFolder(t, bacSizes, rebuildConf(strategy, true), "b.bin/0x0/auto/\n")
			if err := NewAFSProcessor().Rebuild(dir); err != nil {
				t.Fatalf("Rebuild() failed: %v", err)
			}

			checkTOC(t, dir, [][2]uint32{{0x800, 0x600}, {0x1000, 0x500}, {0x1800, 0x700}}, [2]uint32{0x2000, 0x90})
			if got := strings.Join(fdNames(t, dir), ","); got != "b.bin,a.bin,c.bin" {
				t.Errorf("FD names = %s, want b.bin,a.bin,c.bin", got)
			}
			fd := readSys(t, dir, FDFile)
			if attr := binary.LittleEndian.Uint32(fd[fdAttrOffset:]); attr != 0x600 {
				t.Errorf("FD attribute of entry 0 = 0x%X, want 0x600", attr)
			}
		})
	}
}

func TestRebuild_StrategyIgnoresIndex(t *testing.T) {
	dir := writeAfsFolder(t, bacSizes, rebuildConf("offset", true), "b.bin/0x0/auto/\n")
	if err := NewAFSProcessor().Rebuild(dir); err != nil {
		t.Fatalf("Rebuild() failed: %v", err)
	}
	if got := strings.Join(fdNames(t, dir), ","); got != "a.bin,b.bin,c.bin" {
		t.Errorf("FD names = %s, want a.bin,b.bin,c.bin", got)
	}
}

func TestRebuild_ForcedOffset(t *testing.T) {
	dir := writeAfsFolder(t, bacSizes, rebuildConf("offset", true), "b.bin/auto/0x8000/\n")
	if err := NewAFSProcessor().Rebuild(dir); err != nil {
		t.Fatalf("Rebuild() failed: %v", err)
	}
	checkTOC(t, dir, [][2]uint32{{0x800, 0x500}, {0x8000, 0x600}, {0x1000, 0x700}}, [2]uint32{0x8800, 0x90})
}

func TestRebuild_EmptyBlocks(t *testing.T) {
	sizes := map[string]int{"a": 0x601, "b": 0x702, "c": 0x803}
	manifest := "0x800/0x2000\n0x3000/0x3000\n0x7000/0x1800\n"
	dir := writeAfsFolder(t, sizes, rebuildConf("auto", true), manifest)
	if err := NewAFSProcessor().Rebuild(dir); err != nil {
		t.Fatalf("Rebuild() failed: %v", err)
	}
	checkTOC(t, dir, [][2]uint32{{0x2800, 0x601}, {0x6000, 0x702}, {0x8800, 0x803}}, [2]uint32{0x9800, 0x90})
}

func TestRebuild_ExplicitFDPlacement(t *testing.T) {
	conf := strings.NewReplacer(
		"toc_offset_of_fd_offset = auto", "toc_offset_of_fd_offset = 0x7F8",
		"\nfd_offset = auto", "\nfd_offset = 0x4000",
	).Replace(rebuildConf("auto", true))
	dir := writeAfsFolder(t, bacSizes, conf, "")
	if err := NewAFSProcessor().Rebuild(dir); err != nil {
		t.Fatalf("Rebuild() failed: %v", err)
	}

	toc := readSys(t, dir, TOCFile)
	if len(toc) != 0x800 {
		t.Fatalf("TOC holds 0x%X bytes, want 0x800", len(toc))
	}
	// the pointer pair ends at 0x800, so files start at the next sector
	checkTOC(t, dir, [][2]uint32{{0x800, 0x500}, {0x1000, 0x600}, {0x1800, 0x700}}, [2]uint32{0x4000, 0x90})
}

func TestRebuild_WithoutFD(t *testing.T) {
	dir := writeAfsFolder(t, bacSizes, rebuildConf("auto", false), "")
	stale := filepath.Join(dir, SysDir, FDFile)
	writeTestFile(t, stale, make([]byte, 0x90))

	if err := NewAFSProcessor().Rebuild(dir); err != nil {
		t.Fatalf("Rebuild() failed: %v", err)
	}
	toc := readSys(t, dir, TOCFile)
	if len(toc) != 0x20 {
		t.Errorf("TOC holds 0x%X bytes, want 0x20", len(toc))
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("Rebuild() should remove a stale filename directory")
	}
}

func TestRebuild_Errors(t *testing.T) {
	fdConf := rebuildConf("index", true)
	longName := strings.Repeat("n", FDNameSize)

	testCases := []struct {
		name     string
		conf     string
		manifest string
		expected error
	}{
		{"bad magic", strings.Replace(fdConf, "0x41465300", "0x41465301", 1), "", ErrInvalidMagicNumber},
		{"bad strategy", strings.Replace(fdConf, "= index", "= random", 1), "", ErrInvalidFilesRebuildStrategy},
		{"bad filename_directory", strings.Replace(fdConf, "= True", "= yes", 1), "", ErrFilenameDirectoryValue},
		{"bad fd attribute", strings.Replace(fdConf, "= length", "= size", 1), "", ErrFdLastAttributeTypeValue},
		{"bad fd offset", strings.Replace(fdConf, "\nfd_offset = auto", "\nfd_offset = 2048", 1), "", ErrFdOffsetValue},
		{"fd pointer inside TOC", strings.Replace(fdConf, "toc_offset_of_fd_offset = auto", "toc_offset_of_fd_offset = 0x10", 1), "", ErrFdOffsetOffsetValue},
		{"fd pointer unaligned", strings.Replace(fdConf, "toc_offset_of_fd_offset = auto", "toc_offset_of_fd_offset = 0x22", 1), "", ErrFdOffsetOffsetValue},
		{"fd below files", strings.Replace(fdConf, "\nfd_offset = auto", "\nfd_offset = 0x800", 1), "", ErrFdOffsetCollision},
		{"missing file", fdConf, "missing.bin/auto/auto/\n", ErrInvalidFilePath},
		{"file listed twice", fdConf, "a.bin/auto/auto/\na.bin/auto/auto/\n", ErrInvalidFilePath},
		{"stored name too long", fdConf, "a.bin/auto/auto/" + longName + "\n", ErrInvalidFilePath},
		{"index overflow", fdConf, "a.bin/0x3/auto/\n", ErrIndexOverflow},
		{"index collision", fdConf, "a.bin/0x1/auto/\nb.bin/0x1/auto/\n", ErrIndexCollision},
		{"bad index", fdConf, "a.bin/one/auto/\n", ErrIndexValue},
		{"bad offset", fdConf, "a.bin/auto/0xZZ/\n", ErrOffsetValue},
		{"unaligned offset", fdConf, "a.bin/auto/0x801/\n", ErrOffsetAlign},
		{"three fields", fdConf, "a.bin/auto/auto\n", ErrInvalidFieldsCount},
		{"bad block", fdConf, "0x800/big\n", ErrEmptyBlockValue},
		{"empty block", fdConf, "0x800/0x0\n", ErrEmptyBlockValue},
		{"unaligned block", fdConf, "0x800/0x100\n", ErrEmptyBlockAlign},
		{"block over TOC", fdConf, "0x0/0x800\n", ErrOffsetCollision},
		{
			"offsets overlap",
			rebuildConf("offset", true),
			"a.bin/auto/0x800/\nb.bin/auto/0x800/\n",
			ErrOffsetCollision,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := writeAfsFolder(t, bacSizes, tc.conf, tc.manifest)
			err := NewAFSProcessor().Rebuild(dir)
			if !errors.Is(err, tc.expected) {
				t.Errorf("Rebuild() error = %v, want %v", err, tc.expected)
			}
		})
	}
}

func TestRebuild_MissingConfig(t *testing.T) {
	dir := writeAfsFolder(t, bacSizes, "", "")
	if err := os.Remove(filepath.Join(dir, SysDir, RebuildConfigFile)); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	if err := NewAFSProcessor().Rebuild(dir); !errors.Is(err, ErrInvalidAfsFolder) {
		t.Errorf("Rebuild() error = %v, want %v", err, ErrInvalidAfsFolder)
	}
}

func TestRebuild_UnhonoredIndexNotValidated(t *testing.T) {
	dir := writeAfsFolder(t, bacSizes, rebuildConf("auto", true), "a.bin/0x7/auto/\nb.bin/0x7/auto/\n")
	if err := NewAFSProcessor().Rebuild(dir); err != nil {
		t.Errorf("Rebuild() with strategy auto should ignore indices, got %v", err)
	}
}

// buildArchive rebuilds and packs a folder with fixed file times
func buildArchive(t *testing.T, sizes map[string]int, conf, manifest string) (string, string, time.Time) {
	t.Helper()
	dir := writeAfsFolder(t, sizes, conf, manifest)
	mtime := time.Date(2004, time.March, 15, 12, 30, 45, 0, time.Local)
	for name := range sizes {
		if err := os.Chtimes(filepath.Join(dir, RootDir, name), mtime, mtime); err != nil {
			t.Fatalf("Chtimes() failed: %v", err)
		}
	}

	processor := NewAFSProcessor()
	if err := processor.Rebuild(dir); err != nil {
		t.Fatalf("Rebuild() failed: %v", err)
	}
	archive := filepath.Join(t.TempDir(), "out.afs")
	if err := processor.Pack(dir, archive); err != nil {
		t.Fatalf("Pack() failed: %v", err)
	}
	return dir, archive, mtime
}

func TestPackUnpack_RoundTrip(t *testing.T) {
	_, archive, mtime := buildArchive(t, bacSizes, rebuildConf("auto", true), "")

	original, err := os.ReadFile(archive)
	if err != nil {
		t.Fatalf("Failed to read archive: %v", err)
	}
	if len(original) != 0x2800 {
		t.Errorf("archive holds 0x%X bytes, want 0x2800", len(original))
	}
	if !bytes.Equal(original[0x800:0x805], []byte("aaaaa")) || original[0xD00] != 0 {
		t.Error("a.bin should sit at 0x800 padded with zeros")
	}

	unpacked := filepath.Join(t.TempDir(), "unpacked")
	processor := NewAFSProcessor()
	if err := processor.Unpack(archive, unpacked); err != nil {
		t.Fatalf("Unpack() failed: %v", err)
	}

	for name, size := range bacSizes {
		path := filepath.Join(unpacked, RootDir, name)
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("%s missing after unpack: %v", name, err)
		}
		if info.Size() != int64(size) {
			t.Errorf("%s holds 0x%X bytes, want 0x%X", name, info.Size(), size)
		}
		if !info.ModTime().Equal(mtime) {
			t.Errorf("%s mtime = %v, want %v", name, info.ModTime(), mtime)
		}
	}
	if _, err := os.Stat(filepath.Join(unpacked, SysDir, ResolverFile)); !os.IsNotExist(err) {
		t.Error("Unpack() should not write a resolver when names are unique")
	}

	conf, err := LoadRebuildConfig(filepath.Join(unpacked, SysDir, RebuildConfigFile))
	if err != nil {
		t.Fatalf("LoadRebuildConfig() failed: %v", err)
	}
	if conf.Strategy != StrategyMixed || !conf.FilenameDirectory || conf.FDPointerOffset != 0x20 ||
		conf.FDOffset != 0x2000 || conf.FDAttribute.Kind != AttributeLength || conf.Magic != MagicAFS00 {
		t.Errorf("generated config = %+v", conf)
	}
	manifest, err := LoadManifest(filepath.Join(unpacked, SysDir, ManifestFile))
	if err != nil {
		t.Fatalf("LoadManifest() failed: %v", err)
	}
	expected := []ManifestEntry{
		{Unpacked: "a.bin", Index: 0, Offset: 0x800, Stored: "a.bin"},
		{Unpacked: "b.bin", Index: 1, Offset: 0x1000, Stored: "b.bin"},
		{Unpacked: "c.bin", Index: 2, Offset: 0x1800, Stored: "c.bin"},
	}
	if len(manifest.Files) != len(expected) {
		t.Fatalf("manifest lists %d files, want %d", len(manifest.Files), len(expected))
	}
	for i, want := range expected {
		if manifest.Files[i] != want {
			t.Errorf("manifest entry %d = %+v, want %+v", i, manifest.Files[i], want)
		}
	}

	repacked := filepath.Join(t.TempDir(), "repacked.afs")
	if err := processor.Pack(unpacked, repacked); err != nil {
		t.Fatalf("Pack() failed: %v", err)
	}
	if again, _ := os.ReadFile(repacked); !bytes.Equal(again, original) {
		t.Error("unpack followed by pack should reproduce the archive")
	}

	// the generated sidecars make rebuild reproduce the same layout
	if err := processor.Rebuild(unpacked); err != nil {
		t.Fatalf("Rebuild() failed: %v", err)
	}
	rebuilt := filepath.Join(t.TempDir(), "rebuilt.afs")
	if err := processor.Pack(unpacked, rebuilt); err != nil {
		t.Fatalf("Pack() failed: %v", err)
	}
	if again, _ := os.ReadFile(rebuilt); !bytes.Equal(again, original) {
		t.Error("unpack, rebuild and pack should reproduce the archive")
	}
}

func TestPackUnpack_WithoutFD(t *testing.T) {
	_, archive, _ := buildArchive(t, bacSizes, rebuildConf("auto", false), "")

	unpacked := filepath.Join(t.TempDir(), "unpacked")
	if err := NewAFSProcessor().Unpack(archive, unpacked); err != nil {
		t.Fatalf("Unpack() failed: %v", err)
	}
	for i, size := range []int64{0x500, 0x600, 0x700} {
		info, err := os.Stat(filepath.Join(unpacked, RootDir, fmt.Sprintf("%08d", i)))
		if err != nil {
			t.Fatalf("file %d missing after unpack: %v", i, err)
		}
		if info.Size() != size {
			t.Errorf("file %d holds 0x%X bytes, want 0x%X", i, info.Size(), size)
		}
	}
	if _, err := os.Stat(filepath.Join(unpacked, SysDir, FDFile)); !os.IsNotExist(err) {
		t.Error("Unpack() should not write a filename directory for an archive without one")
	}

	repacked := filepath.Join(t.TempDir(), "repacked.afs")
	if err := NewAFSProcessor().Pack(unpacked, repacked); err != nil {
		t.Fatalf("Pack() failed: %v", err)
	}
	original, _ := os.ReadFile(archive)
	if again, _ := os.ReadFile(repacked); !bytes.Equal(again, original) {
		t.Error("unpack followed by pack should reproduce the archive")
	}
}

func TestPack_SingleFileWithoutFD(t *testing.T) {
	for _, magic := range []string{"AFS\x20", "AFS\x00"} {
		t.Run(fmt.Sprintf("%q", magic), func(t *testing.T) {
			conf := rebuildConf("auto", false)
			if magic == "AFS\x20" {
				conf = strings.Replace(conf, "0x41465300", "0x41465320", 1)
			}
			_, archive, _ := buildArchive(t, map[string]int{"00000000": 0x800}, conf, "")

			data, err := os.ReadFile(archive)
			if err != nil {
				t.Fatalf("Failed to read archive: %v", err)
			}
			expected := make([]byte, 0x1000)
			copy(expected, magic)
			binary.LittleEndian.PutUint32(expected[4:], 1)
			binary.LittleEndian.PutUint32(expected[8:], 0x800)
			binary.LittleEndian.PutUint32(expected[12:], 0x800)
			copy(expected[0x800:], bytes.Repeat([]byte{'0'}, 0x800))
			if !bytes.Equal(data, expected) {
				t.Errorf("archive = % X..., want % X...", data[:0x10], expected[:0x10])
			}
		})
	}
}

func TestRebuild_WithoutFDRecordsNames(t *testing.T) {
	dir, archive, _ := buildArchive(t, map[string]int{"new.bin": 0x10}, rebuildConf("auto", false), "")

	resolver, err := LoadFilenameResolver(filepath.Join(dir, SysDir))
	if err != nil {
		t.Fatalf("LoadFilenameResolver() failed: %v", err)
	}
	if resolver.Len() != 1 || resolver.Resolve(0, "00000000") != "new.bin" {
		t.Errorf("resolver should map index 0 to new.bin, got %q", resolver.Resolve(0, "00000000"))
	}
	data, err := os.ReadFile(archive)
	if err != nil {
		t.Fatalf("Failed to read archive: %v", err)
	}
	if !bytes.Equal(data[0x800:0x810], bytes.Repeat([]byte{'n'}, 0x10)) {
		t.Error("new.bin should sit at 0x800")
	}

	kept := writeAfsFolder(t, map[string]int{"00000000": 0x10}, rebuildConf("auto", false), "")
	if err := NewAFSProcessor().Rebuild(kept); err != nil {
		t.Fatalf("Rebuild() failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(kept, SysDir, ResolverFile)); !os.IsNotExist(err) {
		t.Error("Rebuild() should not write a resolver when files carry their index names")
	}
}

func TestPack_OffsetLengthAttribute(t *testing.T) {
	conf := strings.Replace(rebuildConf("auto", true), "= length", "= offset-length", 1)
	dir, _, _ := buildArchive(t, bacSizes, conf, "")

	fd := readSys(t, dir, FDFile)
	for i, want := range []uint32{0x800, 0x500, 0x1000} {
		if attr := binary.LittleEndian.Uint32(fd[FDEntrySize*i+fdAttrOffset:]); attr != want {
			t.Errorf("FD attribute %d = 0x%X, want 0x%X", i, attr, want)
		}
	}

	writeTestFile(t, filepath.Join(dir, RootDir, "a.bin"), bytes.Repeat([]byte{'A'}, 0x800))
	archive := filepath.Join(t.TempDir(), "grown.afs")
	if err := NewAFSProcessor().Pack(dir, archive); err != nil {
		t.Fatalf("Pack() failed: %v", err)
	}
	data, err := os.ReadFile(archive)
	if err != nil {
		t.Fatalf("Failed to read archive: %v", err)
	}
	for i, want := range []uint32{0x800, 0x800, 0x1000} {
		if attr := binary.LittleEndian.Uint32(data[0x2000+FDEntrySize*i+fdAttrOffset:]); attr != want {
			t.Errorf("packed FD attribute %d = 0x%X, want 0x%X", i, attr, want)
		}
	}

	unpacked := filepath.Join(t.TempDir(), "unpacked")
	if err := NewAFSProcessor().Unpack(archive, unpacked); err != nil {
		t.Fatalf("Unpack() failed: %v", err)
	}
	loaded, err := LoadRebuildConfig(filepath.Join(unpacked, SysDir, RebuildConfigFile))
	if err != nil {
		t.Fatalf("LoadRebuildConfig() failed: %v", err)
	}
	if loaded.FDAttribute.Kind != AttributeOffsetLength {
		t.Errorf("detected attribute = %s, want %s", loaded.FDAttribute, AttributeOffsetLength)
	}
}

func TestPack_ConstantAttribute(t *testing.T) {
	conf := strings.Replace(rebuildConf("auto", true), "= length", "= 0x12345678", 1)
	dir, _, _ := buildArchive(t, bacSizes, conf, "")

	writeTestFile(t, filepath.Join(dir, RootDir, "b.bin"), bytes.Repeat([]byte{'B'}, 0x10))
	archive := filepath.Join(t.TempDir(), "shrunk.afs")
	if err := NewAFSProcessor().Pack(dir, archive); err != nil {
		t.Fatalf("Pack() failed: %v", err)
	}
	data, err := os.ReadFile(archive)
	if err != nil {
		t.Fatalf("Failed to read archive: %v", err)
	}
	if length := binary.LittleEndian.Uint32(data[20:]); length != 0x10 {
		t.Errorf("TOC length of b.bin = 0x%X, want 0x10", length)
	}
	for i := 0; i < 3; i++ {
		if attr := binary.LittleEndian.Uint32(data[0x2000+FDEntrySize*i+fdAttrOffset:]); attr != 0x12345678 {
			t.Errorf("FD attribute %d = 0x%X, want 0x12345678", i, attr)
		}
	}

	unpacked := filepath.Join(t.TempDir(), "unpacked")
	if err := NewAFSProcessor().Unpack(archive, unpacked); err != nil {
		t.Fatalf("Unpack() failed: %v", err)
	}
	loaded, err := LoadRebuildConfig(filepath.Join(unpacked, SysDir, RebuildConfigFile))
	if err != nil {
		t.Fatalf("LoadRebuildConfig() failed: %v", err)
	}
	if loaded.FDAttribute != (FDAttribute{Kind: AttributeConstant, Constant: 0x12345678}) {
		t.Errorf("detected attribute = %s, want 0x12345678", loaded.FDAttribute)
	}
}

func TestUnpack_MalformedFD(t *testing.T) {
	_, archive, _ := buildArchive(t, bacSizes, rebuildConf("auto", true), "")
	data, err := os.ReadFile(archive)
	if err != nil {
		t.Fatalf("Failed to read archive: %v", err)
	}
	// garbage after the NUL terminator of the first name slot
	data[0x2000+20] = 'x'
	writeTestFile(t, archive, data)

	unpacked := filepath.Join(t.TempDir(), "unpacked")
	if err := NewAFSProcessor().Unpack(archive, unpacked); err != nil {
		t.Fatalf("Unpack() failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(unpacked, RootDir, "00000000")); err != nil {
		t.Errorf("files should be named by index when the FD is malformed: %v", err)
	}
	conf, err := LoadRebuildConfig(filepath.Join(unpacked, SysDir, RebuildConfigFile))
	if err != nil {
		t.Fatalf("LoadRebuildConfig() failed: %v", err)
	}
	if conf.FilenameDirectory {
		t.Error("generated config should disable the filename directory")
	}
}

func TestUnpack_DuplicateNames(t *testing.T) {
	sizes := map[string]int{"x1.bin": 0x10, "x2.bin": 0x20}
	manifest := "x1.bin/auto/auto/dup.bin\nx2.bin/auto/auto/dup.bin\n"
	dir, archive, _ := buildArchive(t, sizes, rebuildConf("auto", true), manifest)

	resolver, err := LoadFilenameResolver(filepath.Join(dir, SysDir))
	if err != nil {
		t.Fatalf("LoadFilenameResolver() failed: %v", err)
	}
	if resolver.Len() != 2 || resolver.Resolve(0, "dup.bin") != "x1.bin" || resolver.Resolve(1, "dup.bin") != "x2.bin" {
		t.Errorf("rebuild resolver maps 0 -> %s, 1 -> %s", resolver.Resolve(0, "dup.bin"), resolver.Resolve(1, "dup.bin"))
	}

	unpacked := filepath.Join(t.TempDir(), "unpacked")
	if err := NewAFSProcessor().Unpack(archive, unpacked); err != nil {
		t.Fatalf("Unpack() failed: %v", err)
	}
	for name, size := range map[string]int64{"dup.bin": 0x10, "dup (1).bin": 0x20} {
		info, err := os.Stat(filepath.Join(unpacked, RootDir, name))
		if err != nil {
			t.Fatalf("%s missing after unpack: %v", name, err)
		}
		if info.Size() != size {
			t.Errorf("%s holds 0x%X bytes, want 0x%X", name, info.Size(), size)
		}
	}
	if got := string(readSys(t, unpacked, ResolverFile)); got != "1/dup (1).bin\n" {
		t.Errorf("resolver = %q, want %q", got, "1/dup (1).bin\n")
	}

	report, err := NewAFSProcessor().Stats(archive)
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	if !report.SharedNames {
		t.Error("Stats() should report shared names")
	}

	repacked := filepath.Join(t.TempDir(), "repacked.afs")
	if err := NewAFSProcessor().Pack(unpacked, repacked); err != nil {
		t.Fatalf("Pack() failed: %v", err)
	}
}

func TestPack_Resize(t *testing.T) {
	dir, _, _ := buildArchive(t, bacSizes, rebuildConf("auto", true), "")
	root := filepath.Join(dir, RootDir)

	writeTestFile(t, filepath.Join(root, "a.bin"), bytes.Repeat([]byte{'A'}, 0x800))
	archive := filepath.Join(t.TempDir(), "grown.afs")
	if err := NewAFSProcessor().Pack(dir, archive); err != nil {
		t.Fatalf("Pack() within the slot failed: %v", err)
	}
	data, err := os.ReadFile(archive)
	if err != nil {
		t.Fatalf("Failed to read archive: %v", err)
	}
	if length := binary.LittleEndian.Uint32(data[12:]); length != 0x800 {
		t.Errorf("TOC length of a.bin = 0x%X, want 0x800", length)
	}
	if attr := binary.LittleEndian.Uint32(data[0x2000+fdAttrOffset:]); attr != 0x800 {
		t.Errorf("FD attribute of a.bin = 0x%X, want 0x800", attr)
	}

	writeTestFile(t, filepath.Join(root, "a.bin"), bytes.Repeat([]byte{'A'}, 0x801))
	overflow := filepath.Join(t.TempDir(), "overflow.afs")
	if err := NewAFSProcessor().Pack(dir, overflow); !errors.Is(err, ErrInvalidFileLen) {
		t.Errorf("Pack() error = %v, want %v", err, ErrInvalidFileLen)
	}
	if _, err := os.Stat(overflow); !os.IsNotExist(err) {
		t.Error("Pack() should not create the archive when a file overflows")
	}
}

func TestPack_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		dir, _, _ := buildArchive(t, bacSizes, rebuildConf("auto", true), "")
		if err := os.Remove(filepath.Join(dir, RootDir, "b.bin")); err != nil {
			t.Fatalf("Remove() failed: %v", err)
		}
		err := NewAFSProcessor().Pack(dir, filepath.Join(t.TempDir(), "out.afs"))
		if !errors.Is(err, ErrInvalidFilePath) {
			t.Errorf("Pack() error = %v, want %v", err, ErrInvalidFilePath)
		}
	})

	t.Run("missing filename directory", func(t *testing.T) {
		dir, _, _ := buildArchive(t, bacSizes, rebuildConf("auto", true), "")
		if err := os.Remove(filepath.Join(dir, SysDir, FDFile)); err != nil {
			t.Fatalf("Remove() failed: %v", err)
		}
		err := NewAFSProcessor().Pack(dir, filepath.Join(t.TempDir(), "out.afs"))
		if !errors.Is(err, ErrInvalidFilenameDirectoryLength) {
			t.Errorf("Pack() error = %v, want %v", err, ErrInvalidFilenameDirectoryLength)
		}
	})

	t.Run("missing TOC", func(t *testing.T) {
		dir := writeAfsFolder(t, bacSizes, rebuildConf("auto", true), "")
		err := NewAFSProcessor().Pack(dir, filepath.Join(t.TempDir(), "out.afs"))
		if !errors.Is(err, ErrInvalidAfsFolder) {
			t.Errorf("Pack() error = %v, want %v", err, ErrInvalidAfsFolder)
		}
	})
}

func TestReadIndex_Errors(t *testing.T) {
	testCases := []struct {
		name     string
		data     []byte
		expected error
	}{
		{"bad magic", append([]byte("ABCD"), make([]byte, 0x1000)...), ErrInvalidMagicNumber},
		{"no non-zero word", append([]byte{'A', 'F', 'S', 0, 1, 0, 0, 0}, make([]byte, 0x1000)...), ErrEmptyAfs},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.afs")
			writeTestFile(t, path, tc.data)
			err := NewAFSProcessor().Unpack(path, filepath.Join(t.TempDir(), "out"))
			if !errors.Is(err, tc.expected) {
				t.Errorf("Unpack() error = %v, want %v", err, tc.expected)
			}
		})
	}
}

func TestStats(t *testing.T) {
	sizes := map[string]int{"a": 0x601, "b": 0x702, "c": 0x803}
	_, archive, _ := buildArchive(t, sizes, rebuildConf("auto", true), "0x800/0x2000\n0x3000/0x3000\n0x7000/0x1800\n")

	report, err := NewAFSProcessor().Stats(archive)
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	if report.Magic != `"AFS\x00"` || report.FileCount != 3 || !report.HasFD || report.FDPointerOffset != 0x20 {
		t.Errorf("report facts = %+v", report)
	}
	if report.FDAttribute != AttributeLength || report.SharedOffsets || report.SharedNames || !report.EmptyBlocks {
		t.Errorf("report flags = %+v", report)
	}

	var names []string
	for _, entry := range report.Entries {
		names = append(names, entry.Name)
	}
	if got := strings.Join(names, ","); got != "<TOC>,a,b,c,<FD>" {
		t.Errorf("entries = %s, want <TOC>,a,b,c,<FD>", got)
	}
	if report.Entries[1].Timestamp != "2004-03-15 12:30:45" || report.Entries[1].FDLast != "0x601" {
		t.Errorf("entry a = %+v", report.Entries[1])
	}

	expectedGaps := [][2]int64{{0x28, 0x2800}, {0x2E01, 0x6000}, {0x6702, 0x8800}}
	if len(report.Gaps) != len(expectedGaps) {
		t.Fatalf("gaps = %v, want %v", report.Gaps, expectedGaps)
	}
	for i, want := range expectedGaps {
		if report.Gaps[i].Begin != want[0] || report.Gaps[i].End != want[1] {
			t.Errorf("gap %d = 0x%X-0x%X, want 0x%X-0x%X", i, report.Gaps[i].Begin, report.Gaps[i].End, want[0], want[1])
		}
	}

	var buf bytes.Buffer
	if err := report.Print(&buf); err != nil {
		t.Fatalf("Print() failed: %v", err)
	}
	for _, want := range []string{"FD pointer offset:      0x20", "timestamp", "fd-last", "00000002"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("Print() output misses %q:\n%s", want, buf.String())
		}
	}
}
