package afs

import (
	"fmt"
	"strings"

	"github.com/hansbonini/gotchatools/pkg/common"
	"gopkg.in/ini.v1"
)

// Strategy selects which manifest fields a rebuild honors
type Strategy string

// Rebuild strategies
const (
	StrategyAuto   Strategy = "auto"
	StrategyIndex  Strategy = "index"
	StrategyOffset Strategy = "offset"
	StrategyMixed  Strategy = "mixed"
)

// HonorsIndex reports whether manifest indices are used
func (s Strategy) HonorsIndex() bool { return s == StrategyIndex || s == StrategyMixed }

// HonorsOffset reports whether manifest offsets are used
func (s Strategy) HonorsOffset() bool { return s == StrategyOffset || s == StrategyMixed }

// Auto marks a config or manifest value left for the rebuild to choose
const Auto = "auto"

// Configuration sections and keys of afs_rebuild.conf
const (
	sectionDefault       = "Default"
	sectionFD            = "FilenameDirectory"
	keyMagic             = "AFS_MAGIC"
	keyStrategy          = "files_rebuild_strategy"
	keyFilenameDirectory = "filename_directory"
	keyFDPointerOffset   = "toc_offset_of_fd_offset"
	keyFDOffset          = "fd_offset"
	keyFDAttribute       = "fd_last_attribute_type"
)

// RebuildConfig is the content of sys/afs_rebuild.conf
type RebuildConfig struct {
	Magic             [4]byte
	Strategy          Strategy
	FilenameDirectory bool
	FDPointerOffset   int64 // -1 for auto
	FDOffset          int64 // -1 for auto
	FDAttribute       FDAttribute
}

// LoadRebuildConfig reads and validates an afs_rebuild.conf file
func LoadRebuildConfig(path string) (*RebuildConfig, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{InsensitiveKeys: true}, path)
	if err != nil {
		return nil, common.CategoryError(ErrInvalidAfsFolder, "failed to load %s: %v", RebuildConfigFile, err)
	}
	conf := &RebuildConfig{FDPointerOffset: -1, FDOffset: -1}

	defaults := cfg.Section(sectionDefault)
	magic := defaults.Key(keyMagic).String()
	switch strings.ToLower(magic) {
	case "0x41465300":
		conf.Magic = MagicAFS00
	case "0x41465320":
		conf.Magic = MagicAFS20
	default:
		return nil, common.CategoryError(ErrInvalidMagicNumber, "%s = %q", keyMagic, magic)
	}

	strategy := Strategy(defaults.Key(keyStrategy).String())
	switch strategy {
	case StrategyAuto, StrategyIndex, StrategyOffset, StrategyMixed:
		conf.Strategy = strategy
	default:
		return nil, common.CategoryError(ErrInvalidFilesRebuildStrategy, "%s = %q", keyStrategy, strategy)
	}

	switch value := defaults.Key(keyFilenameDirectory).String(); value {
	case "True":
		conf.FilenameDirectory = true
	case "False":
		conf.FilenameDirectory = false
	default:
		return nil, common.CategoryError(ErrFilenameDirectoryValue, "%s = %q", keyFilenameDirectory, value)
	}
	if !conf.FilenameDirectory {
		return conf, nil
	}

	fd := cfg.Section(sectionFD)
	if conf.FDPointerOffset, err = parseAutoHex(fd.Key(keyFDPointerOffset).String()); err != nil {
		return nil, common.CategoryError(ErrFdOffsetOffsetValue, "%s: %v", keyFDPointerOffset, err)
	}
	if conf.FDOffset, err = parseAutoHex(fd.Key(keyFDOffset).String()); err != nil {
		return nil, common.CategoryError(ErrFdOffsetValue, "%s: %v", keyFDOffset, err)
	}
	if conf.FDAttribute, err = ParseFDAttribute(fd.Key(keyFDAttribute).String()); err != nil {
		return nil, err
	}
	return conf, nil
}

// Save writes the configuration in afs_rebuild.conf format
func (c *RebuildConfig) Save(path string) error {
	cfg := ini.Empty()
	defaults, err := cfg.NewSection(sectionDefault)
	if err != nil {
		return err
	}
	defaults.Key(keyMagic).SetValue(fmt.Sprintf("0x%08X", magicValue(c.Magic)))
	defaults.Key(keyStrategy).SetValue(string(c.Strategy))
	defaults.Key(keyFilenameDirectory).SetValue(pythonBool(c.FilenameDirectory))

	if c.FilenameDirectory {
		fd, err := cfg.NewSection(sectionFD)
		if err != nil {
			return err
		}
		fd.Key(keyFDPointerOffset).SetValue(formatAutoHex(c.FDPointerOffset))
		fd.Key(keyFDOffset).SetValue(formatAutoHex(c.FDOffset))
		fd.Key(keyFDAttribute).SetValue(c.FDAttribute.String())
	}

	if err := cfg.SaveTo(path); err != nil {
		return common.FormatError(common.ErrFailedToWriteFile, err)
	}
	common.LogInfo(common.InfoRebuildConfig, path)
	return nil
}

// magicValue reads the 4 magic bytes as a big-endian number, so that
// "AFS\0" is written as 0x41465300
func magicValue(magic [4]byte) uint32 {
	return uint32(magic[0])<<24 | uint32(magic[1])<<16 | uint32(magic[2])<<8 | uint32(magic[3])
}

func pythonBool(value bool) string {
	if value {
		return "True"
	}
	return "False"
}

// parseAutoHex parses "auto" as -1 or a 0x-prefixed value
func parseAutoHex(value string) (int64, error) {
	if value == Auto {
		return -1, nil
	}
	parsed, err := common.ParseHex(value)
	if err != nil {
		return 0, err
	}
	return int64(parsed), nil
}

func formatAutoHex(value int64) string {
	if value < 0 {
		return Auto
	}
	return common.FormatHex(value)
}
