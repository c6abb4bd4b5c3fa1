package afs

import "errors"

// Error categories reported by the AFS engine. Each error returned by an
// operation wraps exactly one of them.
var (
	ErrInvalidMagicNumber             = errors.New("InvalidMagicNumber")
	ErrEmptyAfs                       = errors.New("EmptyAfs")
	ErrInvalidFilenameDirectoryLength = errors.New("InvalidFilenameDirectoryLength")
	ErrInvalidFileLen                 = errors.New("InvalidFileLen")
	ErrInvalidFilesRebuildStrategy    = errors.New("InvalidFilesRebuildStrategy")
	ErrFilenameDirectoryValue         = errors.New("FilenameDirectoryValue")
	ErrInvalidFilePath                = errors.New("InvalidFilePath")
	ErrInvalidFieldsCount             = errors.New("InvalidFieldsCount")
	ErrIndexValue                     = errors.New("IndexValue")
	ErrIndexOverflow                  = errors.New("IndexOverflow")
	ErrIndexCollision                 = errors.New("IndexCollision")
	ErrOffsetValue                    = errors.New("OffsetValue")
	ErrOffsetAlign                    = errors.New("OffsetAlign")
	ErrOffsetCollision                = errors.New("OffsetCollision")
	ErrFdOffsetOffsetValue            = errors.New("FdOffsetOffsetValue")
	ErrFdOffsetValue                  = errors.New("FdOffsetValue")
	ErrFdLastAttributeTypeValue       = errors.New("FdLastAttributeTypeValue")
	ErrFdOffsetCollision              = errors.New("FdOffsetCollision")
	ErrEmptyBlockValue                = errors.New("EmptyBlockValue")
	ErrEmptyBlockAlign                = errors.New("EmptyBlockAlign")
	ErrInvalidAfsFolder               = errors.New("InvalidAfsFolder")
)
