// Package common provides shared utilities for the GameCube container tools.
// This file contains parsing and file name helpers used by both engines.
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ParseHex parses a "0x"-prefixed hexadecimal value that must fit in 32 bits
func ParseHex(value string) (uint32, error) {
	if len(value) < 3 || (value[:2] != "0x" && value[:2] != "0X") {
		return 0, fmt.Errorf("%q is not a 0x-prefixed hexadecimal value", value)
	}
	parsed, err := strconv.ParseUint(value[2:], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%q is not a valid 32-bit hexadecimal value", value)
	}
	return uint32(parsed), nil
}

// ParseNumber parses a decimal or "0x"-prefixed hexadecimal value
func ParseNumber(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		parsed, err := ParseHex(value)
		return int64(parsed), err
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a valid number", value)
	}
	return parsed, nil
}

// FormatHex renders a value the way sidecar files store offsets
func FormatHex(value int64) string {
	return fmt.Sprintf("0x%X", value)
}

// IsSafeFileName reports whether name can be joined to a directory
// without escaping it.
func IsSafeFileName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\\x00")
}

// PathExists reports whether something exists at path
func PathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// FileSize returns the size in bytes of the regular file at path
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%s is a directory", path)
	}
	return info.Size(), nil
}
