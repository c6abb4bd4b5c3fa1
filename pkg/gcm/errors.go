package gcm

import "errors"

// Error categories reported by the GCM engine. Each error returned by an
// operation wraps exactly one of them.
var (
	ErrInvalidDVDMagic            = errors.New("InvalidDVDMagic")
	ErrInvalidUnpackFolder        = errors.New("InvalidUnpackFolder")
	ErrInvalidPackIso             = errors.New("InvalidPackIso")
	ErrInvalidFSTSize             = errors.New("InvalidFSTSize")
	ErrDolSizeOverflow            = errors.New("DolSizeOverflow")
	ErrInvalidRootFileFolderCount = errors.New("InvalidRootFileFolderCount")
	ErrInvalidFSTFileSize         = errors.New("InvalidFSTFileSize")
	ErrFSTDirNotFound             = errors.New("FSTDirNotFound")
	ErrFSTFileNotFound            = errors.New("FSTFileNotFound")
	ErrBadAlign                   = errors.New("BadAlign")
)
