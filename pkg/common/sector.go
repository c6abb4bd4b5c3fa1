// Package common provides shared utilities for the GameCube container tools.
// This file contains sector alignment arithmetic and chunked copy helpers.
package common

import (
	"fmt"
	"io"
)

// Sector and streaming constants shared by the GCM and AFS engines
const (
	SectorSize = 0x800   // Alignment unit for placed files
	ChunkSize  = 0x20000 // Buffer size used when streaming file contents
)

// AlignUp rounds x up to the next multiple of a.
// An alignment of 0 or 1 returns x unchanged.
func AlignUp(x, a int64) int64 {
	if a <= 1 {
		return x
	}
	return x + (a-x%a)%a
}

// IsAligned reports whether x is a multiple of a.
func IsAligned(x, a int64) bool {
	if a <= 1 {
		return true
	}
	return x%a == 0
}

// GetSizeInSectors calculates the number of sectors needed for a given size in bytes
func GetSizeInSectors(sizeBytes int64) int64 {
	return (sizeBytes + SectorSize - 1) / SectorSize
}

// CopyRange streams length bytes from src starting at offset into dst
// using a ChunkSize buffer.
func CopyRange(dst io.Writer, src io.ReaderAt, offset, length int64) error {
	buf := make([]byte, ChunkSize)
	n, err := io.CopyBuffer(dst, io.NewSectionReader(src, offset, length), buf)
	if err != nil {
		return err
	}
	if n != length {
		return fmt.Errorf("short copy at 0x%X: got %d bytes, want %d", offset, n, length)
	}
	return nil
}

// CopyToOffset streams all of src into dst starting at offset and returns
// the number of bytes written.
func CopyToOffset(dst io.WriterAt, src io.Reader, offset int64) (int64, error) {
	buf := make([]byte, ChunkSize)
	return io.CopyBuffer(io.NewOffsetWriter(dst, offset), src, buf)
}

// PadToSector writes zero bytes into dst from end up to the next sector boundary.
func PadToSector(dst io.WriterAt, end int64) error {
	padding := AlignUp(end, SectorSize) - end
	if padding == 0 {
		return nil
	}
	_, err := dst.WriteAt(make([]byte, padding), end)
	return err
}
