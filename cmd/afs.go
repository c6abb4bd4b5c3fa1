// Package cmd provides command-line interface for AFS archive processing.
// This file contains commands for unpacking, packing and rebuilding
// AFS archives.
package cmd

import (
	"fmt"

	"github.com/hansbonini/gotchatools/pkg/afs"
	"github.com/spf13/cobra"
)

// afsCmd represents the parent command for all AFS archive operations.
var afsCmd = &cobra.Command{
	Use:   "afs",
	Short: "Process AFS archives",
	Long: `Process AFS archives.

Commands:
  unpack    Extract the files and index of an archive
  pack      Create an archive from an unpacked folder
  rebuild   Regenerate the TOC and filename directory of an unpacked folder
  stats     Print the memory map of an archive

Examples:
  gotchatools afs unpack voice.afs ./voice/
  gotchatools afs pack ./voice/ voice_modified.afs`,
}

// afsUnpackCmd extracts an archive into sys/ and root/.
var afsUnpackCmd = &cobra.Command{
	Use:   "unpack [input_afs] [output_directory]",
	Short: "Extract the files and index of an archive",
	Long: `Extract an AFS archive.

Output:
  - sys/tableofcontent.bin, sys/filenamedirectory.bin (when present)
  - sys/filename_resolver.csv when stored filenames repeat
  - sys/afs_rebuild.conf and sys/afs_rebuild.csv describing the layout
  - root/ holding every file, with modification times from the archive

Example:
  gotchatools afs unpack voice.afs ./voice/`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyVerboseFlag(cmd); err != nil {
			return err
		}
		fmt.Printf("Processing AFS archive: %s\n", args[0])
		fmt.Printf("Output directory: %s\n", args[1])

		if err := afs.NewAFSProcessor().Unpack(args[0], args[1]); err != nil {
			return err
		}
		fmt.Println("AFS archive unpacked successfully!")
		return nil
	},
}

// afsPackCmd creates an archive from an unpacked folder.
var afsPackCmd = &cobra.Command{
	Use:   "pack [input_directory] [output_afs]",
	Short: "Create an archive from an unpacked folder",
	Long: `Create an AFS archive from a folder produced by unpack or rebuild.

Files keep their recorded offsets. A file may change size as long as it
still ends before the next file; otherwise run rebuild first.

Example:
  gotchatools afs pack ./voice/ voice_modified.afs`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyVerboseFlag(cmd); err != nil {
			return err
		}
		fmt.Printf("Input directory: %s\n", args[0])
		fmt.Printf("Output AFS archive: %s\n", args[1])

		if err := afs.NewAFSProcessor().Pack(args[0], args[1]); err != nil {
			return err
		}
		fmt.Println("AFS archive packed successfully!")
		return nil
	},
}

// afsRebuildCmd regenerates the TOC and filename directory.
var afsRebuildCmd = &cobra.Command{
	Use:   "rebuild [input_directory]",
	Short: "Regenerate the TOC and filename directory of an unpacked folder",
	Long: `Regenerate sys/tableofcontent.bin and sys/filenamedirectory.bin from
sys/afs_rebuild.conf, the optional sys/afs_rebuild.csv manifest and the
files in root/. Run pack afterwards to write the archive.

Manifest lines:
  unpacked_filename/index/offset/stored_filename   (index, offset: auto or 0x...)
  0xOFFSET/0xLENGTH                                (reserved empty block)

Example:
  gotchatools afs rebuild ./voice/`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyVerboseFlag(cmd); err != nil {
			return err
		}
		if err := afs.NewAFSProcessor().Rebuild(args[0]); err != nil {
			return err
		}
		fmt.Println("AFS index rebuilt successfully!")
		return nil
	},
}

// afsStatsCmd prints the memory map of an archive.
var afsStatsCmd = &cobra.Command{
	Use:   "stats [input_afs]",
	Short: "Print the memory map of an archive",
	Long: `Print the archive facts and every region sorted by offset, followed
by the empty gaps between them.

Example:
  gotchatools afs stats voice.afs
  gotchatools afs stats --yaml map.yaml voice.afs`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyVerboseFlag(cmd); err != nil {
			return err
		}
		report, err := afs.NewAFSProcessor().Stats(args[0])
		if err != nil {
			return err
		}
		if err := report.Print(cmd.OutOrStdout()); err != nil {
			return err
		}
		return exportReport(cmd, report)
	},
}

// init initializes the AFS command and its subcommands with appropriate flags.
func init() {
	rootCmd.AddCommand(afsCmd)

	afsCmd.AddCommand(afsUnpackCmd)
	afsCmd.AddCommand(afsPackCmd)
	afsCmd.AddCommand(afsRebuildCmd)
	afsCmd.AddCommand(afsStatsCmd)

	for _, c := range []*cobra.Command{afsUnpackCmd, afsPackCmd, afsRebuildCmd, afsStatsCmd} {
		addVerboseFlag(c.Flags())
	}
	afsStatsCmd.Flags().StringP("yaml", "y", "", "Also export the memory map to a YAML file")
}
