// Package cmd provides command-line interface functionality for GotchaTools.
// GotchaTools is a collection of utilities for unpacking, repacking and
// rebuilding the containers of Gotcha Force for GameCube.
package cmd

import (
	"fmt"
	"os"

	"github.com/hansbonini/gotchatools/pkg/common"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// rootCmd represents the base command when called without any subcommands.
// It provides the main entry point for the GotchaTools application.
var rootCmd = &cobra.Command{
	Use:   "gotchatools",
	Short: "Tools for modding Gotcha Force GameCube files",
	Long: `GotchaTools - A collection of utilities for unpacking, repacking and
rebuilding the containers of Gotcha Force for GameCube.

Currently supports:
  - GCM disc images (unpack/pack/rebuild-fst/stats)
  - AFS archives (unpack/pack/rebuild/stats)

Examples:
  gotchatools gcm unpack GotchaForce.iso ./disc/
  gotchatools gcm rebuild-fst ./disc/ 0x800
  gotchatools gcm pack ./disc/ GotchaForce_modified.iso
  gotchatools afs unpack voice.afs ./voice/
  gotchatools afs rebuild ./voice/
  gotchatools afs pack ./voice/ voice_modified.afs
  gotchatools afs stats voice.afs

Use 'gotchatools [command] --help' for more information about a command.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main() and serves as the entry point for command execution.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// addVerboseFlag registers the -v/--verbose flag shared by every subcommand
func addVerboseFlag(flags *pflag.FlagSet) {
	flags.BoolP("verbose", "v", false, "Enable verbose output (show debug messages)")
}

// applyVerboseFlag enables debug logging when -v was given
func applyVerboseFlag(cmd *cobra.Command) error {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return fmt.Errorf("error getting verbose flag: %w", err)
	}
	common.SetVerboseMode(verbose)
	return nil
}

// exportReport writes a stats report to YAML when --yaml was given
func exportReport(cmd *cobra.Command, report interface{}) error {
	yamlFile, err := cmd.Flags().GetString("yaml")
	if err != nil {
		return fmt.Errorf("error getting yaml flag: %w", err)
	}
	if yamlFile == "" {
		return nil
	}
	if err := common.WriteYAMLReport(yamlFile, report); err != nil {
		return common.FormatError(common.ErrFailedToWriteReport, err)
	}
	return nil
}
