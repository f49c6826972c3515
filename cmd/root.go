package cmd

import (
	"log/slog"
	"os"

	"github.com/gogpu/gg"
	"github.com/spf13/cobra"
)

var verbose bool

var logger = slog.Default()

var rootCmd = &cobra.Command{
	Use:   "rastertiler",
	Short: "A raster tile pyramid renderer for geographic bounding boxes",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
		if verbose {
			gg.SetLogger(logger.With("component", "gg"))
		}
	},
}

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every tile and engine diagnostics")

	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scrubCmd)
	rootCmd.AddCommand(packageCmd)
	rootCmd.AddCommand(reportCmd)
}
