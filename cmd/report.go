package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/brendan-ward/rastertiler/manifest"
)

var reportCmd = &cobra.Command{
	Use:   "report [MANIFEST]",
	Short: "Summarize a tile manifest by region, zoom and status",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) < 1 {
			return errors.New("manifest filename is required")
		}
		if _, err := os.Stat(args[0]); errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("manifest '%s' does not exist", args[0])
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := manifest.Read(args[0])
		if err != nil {
			return err
		}
		return manifest.WriteReport(cmd.OutOrStdout(), entries)
	},
	SilenceUsage: true,
}
