package afs

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/hansbonini/gotchatools/pkg/common"
)

// ReportEntry is one row of the archive memory map
type ReportEntry struct {
	Index     int    `yaml:"index"` // -1 for the TOC and FD rows
	Begin     int64  `yaml:"begin"`
	End       int64  `yaml:"end"`
	Timestamp string `yaml:"timestamp,omitempty"`
	FDLast    string `yaml:"fd_last,omitempty"`
	Name      string `yaml:"name"`
}

// Report is the memory map of an AFS archive
type Report struct {
	Magic           string          `yaml:"magic"`
	FileCount       int             `yaml:"file_count"`
	FDPointerOffset int64           `yaml:"fd_pointer_offset,omitempty"`
	HasFD           bool            `yaml:"filename_directory"`
	FDAttribute     string          `yaml:"fd_last_attribute_type,omitempty"`
	SharedOffsets   bool            `yaml:"shared_offsets"`
	SharedNames     bool            `yaml:"shared_names"`
	EmptyBlocks     bool            `yaml:"empty_blocks"`
	Entries         []ReportEntry   `yaml:"entries"`
	Gaps            []common.Region `yaml:"gaps"`
}

// Stats builds the memory map of an archive
func (p *AFSProcessor) Stats(afsPath string) (*Report, error) {
	file, err := os.Open(afsPath)
	if err != nil {
		return nil, common.FormatError(common.ErrFailedToOpenInput, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, common.FormatError(common.ErrFailedToStatFile, err)
	}
	idx, err := ReadIndex(file, info.Size())
	if err != nil {
		return nil, err
	}

	report := &Report{
		Magic:         fmt.Sprintf("%q", idx.Magic()),
		FileCount:     idx.FileCount,
		HasFD:         idx.HasFD(),
		SharedOffsets: hasSharedOffsets(idx),
	}
	if idx.HasFD() {
		report.FDPointerOffset = idx.FDPointerOffset
		report.FDAttribute = DetectFDAttribute(idx).String()
		report.SharedNames = hasSharedNames(idx)
	}

	regions := indexRegions(idx)
	report.Entries = append(report.Entries, ReportEntry{Index: -1, Begin: regions[0].Begin, End: regions[0].End, Name: regions[0].Name})
	for i := 0; i < idx.FileCount; i++ {
		entry := ReportEntry{
			Index: i,
			Begin: idx.FileOffset(i),
			End:   idx.FileOffset(i) + idx.FileLength(i),
			Name:  idx.StoredName(i),
		}
		if idx.HasFD() {
			entry.Timestamp = idx.FDTimeString(i)
			entry.FDLast = common.FormatHex(int64(idx.FDAttribute(i)))
		}
		report.Entries = append(report.Entries, entry)
	}
	if idx.HasFD() {
		fd := regions[len(regions)-1]
		report.Entries = append(report.Entries, ReportEntry{Index: -1, Begin: fd.Begin, End: fd.End, Name: fd.Name})
	}

	common.SortRegions(regions)
	report.Gaps = common.FindGaps(regions, common.SectorSize)
	report.EmptyBlocks = len(report.Gaps) > 0

	sortEntries(report.Entries)
	return report, nil
}

func hasSharedNames(idx *Index) bool {
	seen := make(map[string]bool, idx.FileCount)
	for i := 0; i < idx.FileCount; i++ {
		name := idx.StoredName(i)
		if seen[name] {
			return true
		}
		seen[name] = true
	}
	return false
}

// sortEntries orders rows by begin offset, then by end offset
func sortEntries(entries []ReportEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Begin != entries[j].Begin {
			return entries[i].Begin < entries[j].Begin
		}
		return entries[i].End < entries[j].End
	})
}

// Print writes the archive facts and the memory map tables
func (r *Report) Print(w io.Writer) error {
	fmt.Fprintf(w, "AFS magic:              %s\n", r.Magic)
	fmt.Fprintf(w, "Files:                  %d\n", r.FileCount)
	fmt.Fprintf(w, "Filename directory:     %t\n", r.HasFD)
	if r.HasFD {
		fmt.Fprintf(w, "FD pointer offset:      0x%X\n", r.FDPointerOffset)
		fmt.Fprintf(w, "FD last attribute type: %s\n", r.FDAttribute)
	}
	fmt.Fprintf(w, "Shared offsets:         %t\n", r.SharedOffsets)
	if r.HasFD {
		fmt.Fprintf(w, "Shared filenames:       %t\n", r.SharedNames)
	}
	fmt.Fprintf(w, "Empty blocks:           %t\n\n", r.EmptyBlocks)

	columns := []string{"index", "begin-offset", "end-offset", "length"}
	if r.HasFD {
		columns = append(columns, "timestamp", "fd-last")
	}
	columns = append(columns, "filename")
	table := common.NewTable(columns...)
	for _, e := range r.Entries {
		index := "-"
		if e.Index >= 0 {
			index = fmt.Sprintf("%08d", e.Index)
		}
		cells := []string{index, common.HexCell(e.Begin), common.HexCell(e.End), common.HexCell(e.End - e.Begin)}
		if r.HasFD {
			cells = append(cells, e.Timestamp, e.FDLast)
		}
		table.AddRow(append(cells, e.Name)...)
	}
	if err := table.Render(w); err != nil {
		return err
	}
	if len(r.Gaps) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	gaps := common.NewTable("begin-offset", "end-offset", "length")
	for _, gap := range r.Gaps {
		gaps.AddRow(common.HexCell(gap.Begin), common.HexCell(gap.End), common.HexCell(gap.Length()))
	}
	return gaps.Render(w)
}
