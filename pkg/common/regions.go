// Package common provides shared utilities for the GameCube container tools.
// This file contains the memory map model shared by the stats commands.
package common

import "sort"

// Region is a named byte range [Begin, End) inside a disc image or archive
type Region struct {
	Begin int64  `yaml:"begin"`
	End   int64  `yaml:"end"`
	Name  string `yaml:"name"`
}

// Length returns the number of bytes covered by the region
func (r Region) Length() int64 {
	return r.End - r.Begin
}

// Overlaps reports whether two regions share at least one byte
func (r Region) Overlaps(other Region) bool {
	return r.Begin < other.End && other.Begin < r.End
}

// SortRegions orders regions by begin offset, then by end offset
func SortRegions(regions []Region) {
	sort.SliceStable(regions, func(i, j int) bool {
		if regions[i].Begin != regions[j].Begin {
			return regions[i].Begin < regions[j].Begin
		}
		return regions[i].End < regions[j].End
	})
}

// FindGaps returns the empty ranges between sorted regions. A gap is
// reported when the previous end, aligned up to align, is still below the
// next begin offset.
func FindGaps(sorted []Region, align int64) []Region {
	var gaps []Region
	if len(sorted) == 0 {
		return gaps
	}
	end := sorted[0].End
	for _, region := range sorted[1:] {
		if AlignUp(end, align) < region.Begin {
			gaps = append(gaps, Region{Begin: end, End: region.Begin, Name: "<empty>"})
		}
		if region.End > end {
			end = region.End
		}
	}
	return gaps
}

// FindMisaligned returns the index of the first sorted region whose begin
// offset lies below the aligned end of the regions before it, or -1.
func FindMisaligned(sorted []Region, align int64) int {
	if len(sorted) == 0 {
		return -1
	}
	end := sorted[0].End
	for i := 1; i < len(sorted); i++ {
		if AlignUp(end, align) > sorted[i].Begin {
			return i
		}
		if sorted[i].End > end {
			end = sorted[i].End
		}
	}
	return -1
}

// FindCollision returns the indexes of the first pair of sorted regions
// that overlap, or (-1, -1). Empty regions never collide.
func FindCollision(sorted []Region) (int, int) {
	last := -1
	for i, region := range sorted {
		if region.Length() == 0 {
			continue
		}
		if last >= 0 && sorted[last].End > region.Begin {
			return last, i
		}
		if last < 0 || region.End > sorted[last].End {
			last = i
		}
	}
	return -1, -1
}
