package afs

import (
	"fmt"

	"github.com/hansbonini/gotchatools/pkg/common"
)

// Kinds of FD trailing attribute
const (
	AttributeLength       = "length"
	AttributeOffsetLength = "offset-length"
	AttributeConstant     = "constant"
	AttributeUnknown      = "unknown"
)

// FDAttribute describes what the last 4 bytes of every FD entry hold.
// The kind is uniform across one archive.
type FDAttribute struct {
	Kind     string
	Constant uint32 // only meaningful for AttributeConstant
}

// String renders the attribute the way afs_rebuild.conf stores it
func (a FDAttribute) String() string {
	if a.Kind == AttributeConstant {
		return fmt.Sprintf("0x%08X", a.Constant)
	}
	return a.Kind
}

// ParseFDAttribute parses fd_last_attribute_type
func ParseFDAttribute(value string) (FDAttribute, error) {
	switch value {
	case AttributeLength, AttributeOffsetLength, AttributeUnknown:
		return FDAttribute{Kind: value}, nil
	}
	constant, err := common.ParseHex(value)
	if err != nil {
		return FDAttribute{}, common.CategoryError(ErrFdLastAttributeTypeValue, "%q", value)
	}
	return FDAttribute{Kind: AttributeConstant, Constant: constant}, nil
}

// DetectFDAttribute finds which attribute kind the filename directory of
// idx uses. Kinds are tried in order: length, offset-length, constant.
func DetectFDAttribute(idx *Index) FDAttribute {
	if !idx.HasFD() || idx.FileCount == 0 {
		return FDAttribute{Kind: AttributeUnknown}
	}

	length, offsetLength, constant := true, true, true
	first := idx.FDAttribute(0)
	for i := 0; i < idx.FileCount; i++ {
		attr := idx.FDAttribute(i)
		if int64(attr) != idx.FileLength(i) {
			length = false
		}
		if attr != idx.TOCWord(i) {
			offsetLength = false
		}
		if attr != first {
			constant = false
		}
	}

	switch {
	case length:
		return FDAttribute{Kind: AttributeLength}
	case offsetLength:
		return FDAttribute{Kind: AttributeOffsetLength}
	case constant:
		return FDAttribute{Kind: AttributeConstant, Constant: first}
	}
	return FDAttribute{Kind: AttributeUnknown}
}

// attributeValue computes the attribute of a freshly built FD entry for
// the file at index with the given length
func (a FDAttribute) attributeValue(idx *Index, index int, length uint32) uint32 {
	switch a.Kind {
	case AttributeLength:
		return length
	case AttributeOffsetLength:
		return idx.TOCWord(index)
	case AttributeConstant:
		return a.Constant
	}
	return 0
}
