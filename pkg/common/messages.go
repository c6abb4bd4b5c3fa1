package common

import (
	"fmt"
	"log"
)

// Global variable to control debug output
var VerboseMode bool = false

// SetVerboseMode enables or disables verbose/debug output
func SetVerboseMode(verbose bool) {
	VerboseMode = verbose
}

// Error messages
const (
	ErrFailedToOpenInput        = "failed to open input file"
	ErrFailedToCreateOutputFile = "failed to create output file"
	ErrFailedToCreateDirectory  = "failed to create directory"
	ErrFailedToReadFile         = "failed to read file"
	ErrFailedToWriteFile        = "failed to write file"
	ErrFailedToStatFile         = "failed to get file info"
	ErrFailedToListDirectory    = "failed to list directory"
	ErrFailedToWriteReport      = "failed to write report"
)

// Info messages
const (
	InfoGCMUnpacked     = "Unpacked GCM %s -> %s (%d FST entries)"
	InfoGCMPacked       = "Packed GCM %s -> %s (%d files)"
	InfoFSTRebuilt      = "Rebuilt FST: %d entries, DOL at 0x%X, FST at 0x%X (0x%X bytes)"
	InfoAFSUnpacked     = "Unpacked AFS %s -> %s (%d files)"
	InfoAFSPacked       = "Packed AFS %s -> %s (%d files)"
	InfoAFSRebuilt      = "Rebuilt AFS index in %s: %d files, strategy %s"
	InfoRebuildConfig   = "Rebuild configuration written: %s"
	InfoReportExported  = "Exported report to YAML: %s"
	InfoPartialRemoved  = "Removed incomplete output file: %s"
	InfoNoFDInArchive   = "No filename directory: files are named by index"
	InfoResolverEntries = "Filename resolver holds %d renamed entries"
)

// Debug messages
const (
	DebugSysFileWritten = "Wrote %s (0x%X bytes)"
	DebugFSTDirectory   = "FST dir  %d: %s (parent %d, next %d)"
	DebugFSTFile        = "FST file %d: %s at 0x%X (0x%X bytes)"
	DebugAFSFile        = "AFS file %d: %s at 0x%X (0x%X bytes)"
	DebugFDPointer      = "FD pointer at 0x%X: offset 0x%X, length 0x%X"
	DebugFDAttribute    = "FD last attribute type: %s"
	DebugPlacement      = "Placed %s (index %d) at 0x%X"
	DebugFreeGap        = "Free gap 0x%X-0x%X"
	DebugResolved       = "Index %d stored as %q unpacked as %q"
)

// Warning messages
const (
	WarnFDDiscarded     = "Filename directory ignored: %s"
	WarnInvalidFDDate   = "FD timestamp of %s is not a valid date, mtime left unchanged"
	WarnFileResized     = "File %s resized from 0x%X to 0x%X bytes"
	WarnSharedOffsets   = "Several TOC entries share an offset, manifest offsets left on auto"
	WarnEmptyAfsFolder  = "No files found in %s"
	WarnSiblingOrdering = "FST sibling order uses uppercased names and may differ from original media"
)

// LogInfo logs an informational message
func LogInfo(message string, args ...interface{}) {
	if len(args) > 0 {
		log.Printf("[INFO] "+message, args...)
	} else {
		log.Printf("[INFO] %s", message)
	}
}

// LogWarn logs a warning message
func LogWarn(message string, args ...interface{}) {
	if len(args) > 0 {
		log.Printf("[WARN] "+message, args...)
	} else {
		log.Printf("[WARN] %s", message)
	}
}

// LogError logs an error message
func LogError(message string, args ...interface{}) {
	if len(args) > 0 {
		log.Printf("[ERROR] "+message, args...)
	} else {
		log.Printf("[ERROR] %s", message)
	}
}

// LogDebug logs a debug message (only if VerboseMode is enabled)
func LogDebug(message string, args ...interface{}) {
	if !VerboseMode {
		return
	}
	if len(args) > 0 {
		log.Printf("[DEBUG] "+message, args...)
	} else {
		log.Printf("[DEBUG] %s", message)
	}
}

// FormatError creates a formatted error with additional context
func FormatError(baseMessage string, details interface{}) error {
	if err, ok := details.(error); ok {
		return fmt.Errorf("%s: %w", baseMessage, err)
	}
	return fmt.Errorf("%s: %v", baseMessage, details)
}

// CategoryError wraps an error category sentinel with a formatted detail,
// producing "<Category>: <detail>" while keeping errors.Is working.
func CategoryError(category error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{category}, args...)...)
}
