package afs

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hansbonini/gotchatools/pkg/common"
)

// FilenameResolver maps archive indices to the names their files carry on
// disk. Stored names may repeat inside an archive, so duplicates are
// unpacked as "stem (k).ext" and remembered in sys/filename_resolver.csv.
type FilenameResolver struct {
	path  string
	names map[int]string
	used  map[string]bool
}

// NewFilenameResolver creates an empty resolver persisted under sysDir
func NewFilenameResolver(sysDir string) *FilenameResolver {
	return &FilenameResolver{
		path:  filepath.Join(sysDir, ResolverFile),
		names: make(map[int]string),
		used:  make(map[string]bool),
	}
}

// LoadFilenameResolver reads the resolver sidecar of sysDir if present
func LoadFilenameResolver(sysDir string) (*FilenameResolver, error) {
	r := NewFilenameResolver(sysDir)
	file, err := os.Open(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, common.FormatError(common.ErrFailedToOpenInput, err)
	}
	defer file.Close()

	reader := newSlashReader(file)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", ResolverFile, err)
		}
		if len(record) != 2 {
			return nil, common.CategoryError(ErrInvalidFieldsCount, "%s: %q", ResolverFile, strings.Join(record, "/"))
		}
		index, err := strconv.Atoi(record[0])
		if err != nil || index < 0 {
			return nil, common.CategoryError(ErrIndexValue, "%s: %q", ResolverFile, record[0])
		}
		r.Add(index, record[1])
	}
	return r, nil
}

// Unique returns the on-disk name for file index, renaming stored names
// that are already taken.
func (r *FilenameResolver) Unique(index int, stored string) string {
	name := stored
	if r.used[name] {
		ext := filepath.Ext(stored)
		if ext == stored {
			ext = ""
		}
		stem := strings.TrimSuffix(stored, ext)
		for k := 1; r.used[name]; k++ {
			name = fmt.Sprintf("%s (%d)%s", stem, k, ext)
		}
		r.names[index] = name
		common.LogDebug(common.DebugResolved, index, stored, name)
	}
	r.used[name] = true
	return name
}

// Resolve returns the on-disk name of file index, falling back to stored
func (r *FilenameResolver) Resolve(index int, stored string) string {
	if name, ok := r.names[index]; ok {
		return name
	}
	return stored
}

// Add records that file index is unpacked under name
func (r *FilenameResolver) Add(index int, name string) {
	r.names[index] = name
	r.used[name] = true
}

// Len returns the number of renamed entries
func (r *FilenameResolver) Len() int {
	return len(r.names)
}

// Save writes the sidecar, or removes it when no entry was renamed
func (r *FilenameResolver) Save() error {
	if len(r.names) == 0 {
		if err := os.Remove(r.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return common.FormatError(common.ErrFailedToWriteFile, err)
		}
		return nil
	}

	indices := make([]int, 0, len(r.names))
	for index := range r.names {
		indices = append(indices, index)
	}
	sort.Ints(indices)

	records := make([][]string, 0, len(indices))
	for _, index := range indices {
		records = append(records, []string{strconv.Itoa(index), r.names[index]})
	}
	if err := writeSlashFile(r.path, records); err != nil {
		return err
	}
	common.LogInfo(common.InfoResolverEntries, len(r.names))
	return nil
}

// newSlashReader reads the "/"-separated records of the sys/ sidecars
func newSlashReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.Comma = '/'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	return reader
}

func writeSlashFile(path string, records [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return common.FormatError(common.ErrFailedToCreateOutputFile, err)
	}
	writer := csv.NewWriter(file)
	writer.Comma = '/'
	if err := writer.WriteAll(records); err != nil {
		file.Close()
		return common.FormatError(common.ErrFailedToWriteFile, err)
	}
	return file.Close()
}
