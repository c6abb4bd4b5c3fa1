package gcm

import (
	"fmt"
	"io"
	"os"

	"github.com/hansbonini/gotchatools/pkg/common"
)

// DefaultAlign is the file alignment used by rebuild-fst and stats when
// none is given
const DefaultAlign = 4

// Report is the memory map of a disc image
type Report struct {
	GameCode     string          `yaml:"game_code"`
	DiscNumber   int             `yaml:"disc_number"`
	DolOffset    uint32          `yaml:"dol_offset"`
	FSTOffset    uint32          `yaml:"fst_offset"`
	FSTLength    uint32          `yaml:"fst_length"`
	FSTMaxLength uint32          `yaml:"fst_max_length"`
	Alignment    int64           `yaml:"alignment"`
	Regions      []common.Region `yaml:"regions"`
	Gaps         []common.Region `yaml:"gaps"`
	EmptyFiles   []string        `yaml:"empty_files,omitempty"`
}

// Stats builds the memory map of a disc image: every named region sorted
// by offset and the empty gaps between them. Regions that overlap once the
// previous end is aligned fail with ErrBadAlign.
func (p *GCMProcessor) Stats(isoPath string, align int64) (*Report, error) {
	if align < 1 {
		return nil, common.CategoryError(ErrBadAlign, "alignment must be at least 1, got %d", align)
	}
	file, err := os.Open(isoPath)
	if err != nil {
		return nil, common.FormatError(common.ErrFailedToOpenInput, err)
	}
	defer file.Close()

	image, err := openImage(file)
	if err != nil {
		return nil, err
	}
	boot, err := image.readBootRecord()
	if err != nil {
		return nil, err
	}
	area, err := image.readSystemArea(boot)
	if err != nil {
		return nil, err
	}
	fst, err := ParseFST(area.fst)
	if err != nil {
		return nil, err
	}

	report := &Report{
		GameCode:     boot.GameCode(),
		DiscNumber:   boot.DiscNumber(),
		DolOffset:    boot.DolOffset(),
		FSTOffset:    boot.FSTOffset(),
		FSTLength:    boot.FSTLength(),
		FSTMaxLength: boot.FSTMaxLength(),
		Alignment:    align,
		Regions: []common.Region{
			{Begin: BootOffset, End: BootOffset + BootSize, Name: BootFile},
			{Begin: Bi2Offset, End: Bi2Offset + Bi2Size, Name: Bi2File},
			{Begin: ApploaderOffset, End: ApploaderOffset + int64(len(area.apploader)), Name: ApploaderFile},
			{Begin: int64(boot.FSTOffset()), End: int64(boot.FSTOffset()) + int64(len(area.fst)), Name: FSTFile},
			{Begin: area.dolOffset, End: area.dolOffset + area.dolLength, Name: DolFile},
		},
	}

	err = fst.Walk(func(id int, entry FSTEntry, relPath string) error {
		if entry.IsDir {
			return nil
		}
		if entry.Length() == 0 {
			report.EmptyFiles = append(report.EmptyFiles, relPath)
			return nil
		}
		report.Regions = append(report.Regions, common.Region{
			Begin: int64(entry.Offset()),
			End:   int64(entry.Offset()) + int64(entry.Length()),
			Name:  relPath,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	common.SortRegions(report.Regions)
	if i := common.FindMisaligned(report.Regions, align); i >= 0 {
		prev, next := report.Regions[i-1], report.Regions[i]
		return nil, common.CategoryError(ErrBadAlign, "%s ends at 0x%X, %s begins at 0x%X (alignment 0x%X)", prev.Name, prev.End, next.Name, next.Begin, align)
	}
	report.Gaps = common.FindGaps(report.Regions, align)
	return report, nil
}

// Print writes the disc facts, the region table and the gap table
func (r *Report) Print(w io.Writer) error {
	fmt.Fprintf(w, "Game code:      %s\n", r.GameCode)
	fmt.Fprintf(w, "Disc number:    %d\n", r.DiscNumber)
	fmt.Fprintf(w, "DOL offset:     0x%X\n", r.DolOffset)
	fmt.Fprintf(w, "FST offset:     0x%X\n", r.FSTOffset)
	fmt.Fprintf(w, "FST length:     0x%X (max 0x%X)\n", r.FSTLength, r.FSTMaxLength)
	fmt.Fprintf(w, "Alignment:      0x%X\n", r.Alignment)
	fmt.Fprintf(w, "Empty blocks:   %t\n", len(r.Gaps) > 0)
	fmt.Fprintf(w, "Empty files:    %d\n\n", len(r.EmptyFiles))

	regions := common.NewTable("begin-offset", "end-offset", "length", "filename")
	for _, region := range r.Regions {
		regions.AddRow(common.HexCell(region.Begin), common.HexCell(region.End), common.HexCell(region.Length()), region.Name)
	}
	if err := regions.Render(w); err != nil {
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
