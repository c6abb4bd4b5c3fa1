package gcm

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"

	"github.com/hansbonini/gotchatools/pkg/common"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// fstNode is one entry of the tree collected from root/, in pre-order
type fstNode struct {
	name   string
	isDir  bool
	size   int64
	parent int
	next   int // id of the first entry past this directory's subtree
	offset int64
}

// RebuildFST regenerates sys/fst.bin from the root/ tree and patches the
// DOL and FST location fields of sys/boot.bin. The executable is placed
// right after the apploader, the FST after the executable and the files
// after the FST, each start aligned to align.
func (p *GCMProcessor) RebuildFST(inputDir string, align int64) error {
	if align < 1 {
		return common.CategoryError(ErrBadAlign, "alignment must be at least 1, got %d", align)
	}
	sysDir := filepath.Join(inputDir, SysDir)
	rootDir := filepath.Join(inputDir, RootDir)

	bootPath := filepath.Join(sysDir, BootFile)
	bootData, err := os.ReadFile(bootPath)
	if err != nil {
		return common.FormatError(common.ErrFailedToReadFile, err)
	}
	boot, err := ParseBootRecord(bootData)
	if err != nil {
		return err
	}
	apploaderSize, err := common.FileSize(filepath.Join(sysDir, ApploaderFile))
	if err != nil {
		return common.FormatError(common.ErrFailedToStatFile, err)
	}
	dolSize, err := common.FileSize(filepath.Join(sysDir, DolFile))
	if err != nil {
		return common.FormatError(common.ErrFailedToStatFile, err)
	}

	dolOffset := common.AlignUp(ApploaderOffset+apploaderSize, align)
	fstOffset := common.AlignUp(dolOffset+dolSize, align)

	common.LogWarn(common.WarnSiblingOrdering)
	nodes := []fstNode{{isDir: true}}
	if err := collectTree(rootDir, 0, &nodes, cases.Upper(language.Und)); err != nil {
		return err
	}
	nodes[0].next = len(nodes)

	names, nameOffsets, err := buildNameBlock(nodes)
	if err != nil {
		return err
	}

	fstLength := int64(len(nodes))*FSTEntrySize + int64(len(names))
	current := fstOffset + common.AlignUp(fstLength, align)
	for i := range nodes {
		if nodes[i].isDir {
			continue
		}
		nodes[i].offset = current
		current = common.AlignUp(current+nodes[i].size, align)
	}

	fstData, err := encodeFST(nodes, nameOffsets, names)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(sysDir, FSTFile), fstData, 0644); err != nil {
		return common.FormatError(common.ErrFailedToWriteFile, err)
	}

	fields := make([]uint32, 3)
	for i, value := range []int64{dolOffset, fstOffset, fstLength} {
		if fields[i], err = common.SafeInt64ToUint32(value); err != nil {
			return err
		}
	}
	boot.SetLayout(fields[0], fields[1], fields[2], fields[2])
	if err := os.WriteFile(bootPath, boot.Bytes(), 0644); err != nil {
		return common.FormatError(common.ErrFailedToWriteFile, err)
	}

	common.LogInfo(common.InfoFSTRebuilt, len(nodes), dolOffset, fstOffset, fstLength)
	return nil
}

// collectTree appends the entries of dir in pre-order, siblings sorted by
// their uppercased name. A directory's next id is known once its subtree
// has been appended.
func collectTree(dir string, parent int, nodes *[]fstNode, upper cases.Caser) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return common.FormatError(common.ErrFailedToListDirectory, err)
	}
	keys := make(map[string]string, len(entries))
	for _, entry := range entries {
		keys[entry.Name()] = upper.String(entry.Name())
	}
	sort.SliceStable(entries, func(i, j int) bool {
		ki, kj := keys[entries[i].Name()], keys[entries[j].Name()]
		if ki != kj {
			return ki < kj
		}
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		id := len(*nodes)
		node := fstNode{name: entry.Name(), isDir: entry.IsDir(), parent: parent}
		if !node.isDir {
			info, err := entry.Info()
			if err != nil {
				return common.FormatError(common.ErrFailedToStatFile, err)
			}
			node.size = info.Size()
		}
		*nodes = append(*nodes, node)

		if node.isDir {
			if err := collectTree(filepath.Join(dir, entry.Name()), id, nodes, upper); err != nil {
				return err
			}
			(*nodes)[id].next = len(*nodes)
		}
	}
	return nil
}

// buildNameBlock concatenates the NUL-terminated names of all non-root
// entries in id order
func buildNameBlock(nodes []fstNode) ([]byte, []uint32, error) {
	var names []byte
	offsets := make([]uint32, len(nodes))
	for i := 1; i < len(nodes); i++ {
		offset, err := common.SafeInt64ToUint24(int64(len(names)))
		if err != nil {
			return nil, nil, common.FormatError("FST string block too large", err)
		}
		offsets[i] = offset
		names = append(names, nodes[i].name...)
		names = append(names, 0)
	}
	return names, offsets, nil
}

func encodeFST(nodes []fstNode, nameOffsets []uint32, names []byte) ([]byte, error) {
	data := make([]byte, 0, len(nodes)*FSTEntrySize+len(names))
	entry := make([]byte, FSTEntrySize)

	for i, node := range nodes {
		var word1, word2 uint32
		var err error
		if node.isDir {
			word1 = uint32(node.parent)
			word2, err = common.SafeIntToUint32(node.next)
		} else {
			if word1, err = common.SafeInt64ToUint32(node.offset); err == nil {
				word2, err = common.SafeInt64ToUint32(node.size)
			}
		}
		if err != nil {
			return nil, common.FormatError("FST entry "+node.name, err)
		}

		ident := nameOffsets[i]
		if node.isDir {
			ident |= 1 << 24
		}
		binary.BigEndian.PutUint32(entry[0:4], ident)
		binary.BigEndian.PutUint32(entry[4:8], word1)
		binary.BigEndian.PutUint32(entry[8:12], word2)
		data = append(data, entry...)
	}
	return append(data, names...), nil
}
