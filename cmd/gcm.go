// Package cmd provides command-line interface for GCM disc image processing.
// This file contains commands for unpacking, packing and rebuilding
// GameCube disc images.
package cmd

import (
	"fmt"

	"github.com/hansbonini/gotchatools/pkg/common"
	"github.com/hansbonini/gotchatools/pkg/gcm"
	"github.com/spf13/cobra"
)

// gcmCmd represents the parent command for all GCM disc image operations.
var gcmCmd = &cobra.Command{
	Use:   "gcm",
	Short: "Process GameCube GCM/ISO disc images",
	Long: `Process GameCube GCM/ISO disc images.

Commands:
  unpack       Extract system files and the file tree of a disc image
  pack         Create a disc image from an unpacked folder
  rebuild-fst  Regenerate the FST of an unpacked folder
  stats        Print the memory map of a disc image

Examples:
  gotchatools gcm unpack GotchaForce.iso ./disc/
  gotchatools gcm pack ./disc/ GotchaForce_modified.iso`,
}

// gcmUnpackCmd extracts a disc image into sys/ and root/.
var gcmUnpackCmd = &cobra.Command{
	Use:   "unpack [input_iso] [output_directory]",
	Short: "Extract system files and the file tree of a disc image",
	Long: `Extract a GameCube disc image.

Output:
  - sys/boot.bin, sys/bi2.bin, sys/apploader.img, sys/fst.bin, sys/boot.dol
  - root/ holding every file and directory listed in the FST

The output directory must not exist.

Example:
  gotchatools gcm unpack GotchaForce.iso ./disc/`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyVerboseFlag(cmd); err != nil {
			return err
		}
		fmt.Printf("Processing disc image: %s\n", args[0])
		fmt.Printf("Output directory: %s\n", args[1])

		if err := gcm.NewGCMProcessor().Unpack(args[0], args[1]); err != nil {
			return err
		}
		fmt.Println("Disc image unpacked successfully!")
		return nil
	},
}

// gcmPackCmd rebuilds a disc image from an unpacked folder.
var gcmPackCmd = &cobra.Command{
	Use:   "pack [input_directory] [output_iso]",
	Short: "Create a disc image from an unpacked folder",
	Long: `Create a GameCube disc image from a folder produced by unpack.

Every file is written at the offset recorded in sys/fst.bin, so files in
root/ must keep their recorded sizes. Run rebuild-fst first after resizing,
adding or removing files. The output file must not exist.

Example:
  gotchatools gcm pack ./disc/ GotchaForce_modified.iso`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyVerboseFlag(cmd); err != nil {
			return err
		}
		fmt.Printf("Input directory: %s\n", args[0])
		fmt.Printf("Output disc image: %s\n", args[1])

		if err := gcm.NewGCMProcessor().Pack(args[0], args[1]); err != nil {
			return err
		}
		fmt.Println("Disc image packed successfully!")
		return nil
	},
}

// gcmRebuildFSTCmd regenerates sys/fst.bin and patches sys/boot.bin.
var gcmRebuildFSTCmd = &cobra.Command{
	Use:   "rebuild-fst [input_directory] [align]",
	Short: "Regenerate the FST of an unpacked folder",
	Long: `Regenerate sys/fst.bin from the root/ tree and patch sys/boot.bin.

The executable is placed after the apploader, the FST after the executable
and the files after the FST, every start aligned to align (decimal or 0x
hexadecimal, default 4).

Examples:
  gotchatools gcm rebuild-fst ./disc/
  gotchatools gcm rebuild-fst ./disc/ 0x8000`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyVerboseFlag(cmd); err != nil {
			return err
		}
		align := int64(gcm.DefaultAlign)
		if len(args) == 2 {
			parsed, err := common.ParseNumber(args[1])
			if err != nil {
				return fmt.Errorf("invalid alignment: %w", err)
			}
			align = parsed
		}

		if err := gcm.NewGCMProcessor().RebuildFST(args[0], align); err != nil {
			return err
		}
		fmt.Println("FST rebuilt successfully!")
		return nil
	},
}

// gcmStatsCmd prints the memory map of a disc image.
var gcmStatsCmd = &cobra.Command{
	Use:   "stats [input_iso]",
	Short: "Print the memory map of a disc image",
	Long: `Print every region of a disc image sorted by offset, followed by
the empty gaps between them.

Example:
  gotchatools gcm stats GotchaForce.iso
  gotchatools gcm stats --align 0x8000 --yaml map.yaml GotchaForce.iso`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyVerboseFlag(cmd); err != nil {
			return err
		}
		alignValue, err := cmd.Flags().GetString("align")
		if err != nil {
			return fmt.Errorf("error getting align flag: %w", err)
		}
		align, err := common.ParseNumber(alignValue)
		if err != nil {
			return fmt.Errorf("invalid alignment: %w", err)
		}

		report, err := gcm.NewGCMProcessor().Stats(args[0], align)
		if err != nil {
			return err
		}
		if err := report.Print(cmd.OutOrStdout()); err != nil {
			return err
		}
		return exportReport(cmd, report)
	},
}

// init initializes the GCM command and its subcommands with appropriate flags.
func init() {
	rootCmd.AddCommand(gcmCmd)

	gcmCmd.AddCommand(gcmUnpackCmd)
	gcmCmd.AddCommand(gcmPackCmd)
	gcmCmd.AddCommand(gcmRebuildFSTCmd)
	gcmCmd.AddCommand(gcmStatsCmd)

	for _, c := range []*cobra.Command{gcmUnpackCmd, gcmPackCmd, gcmRebuildFSTCmd, gcmStatsCmd} {
		addVerboseFlag(c.Flags())
	}
	gcmStatsCmd.Flags().StringP("align", "a", fmt.Sprint(gcm.DefaultAlign), "Alignment used to detect gaps and misplaced regions")
	gcmStatsCmd.Flags().StringP("yaml", "y", "", "Also export the memory map to a YAML file")
}
