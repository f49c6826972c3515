package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/brendan-ward/rastertiler/mbtiles"
	"github.com/brendan-ward/rastertiler/pipeline"
	"github.com/brendan-ward/rastertiler/tiles"
)

var scrubSize int64
var dryRun bool

var scrubCmd = &cobra.Command{
	Use:   "scrub [TILE_DIR]",
	Short: "Delete empty tiles from a directory of rendered tiles",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) < 1 {
			return errors.New("tile directory is required")
		}
		if info, err := os.Stat(args[0]); err != nil || !info.IsDir() {
			return fmt.Errorf("tile directory '%s' does not exist", args[0])
		}
		if scrubSize < 1 {
			return errors.New("--empty-size must be > 0")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		found, err := mbtiles.TreeTiles(args[0], false)
		if err != nil {
			return err
		}

		gate := &pipeline.CacheGate{EmptySize: scrubSize}
		bar := newBar(len(found), "scrubbing")
		removed := 0
		for tile, path := range found {
			bar.Add(1)
			if dryRun {
				if info, err := os.Stat(path); err == nil && info.Size() == scrubSize {
					removed++
					logger.Debug("empty tile", "path", path)
				}
				continue
			}
			_, empty, err := gate.Scrub(path)
			if err != nil {
				bar.Clear()
				return fmt.Errorf("could not scrub %v: %w", tile, err)
			}
			if empty {
				removed++
				logger.Debug("removed empty tile", "path", path)
			}
		}
		bar.Clear()

		logger.Info("scrubbed tiles", "tiles", len(found), "empty", removed, "dry_run", dryRun)
		return nil
	},
	SilenceUsage: true,
}

func init() {
	scrubCmd.Flags().Int64Var(&scrubSize, "empty-size", tiles.DefaultEmptyTileSize, "byte size of an empty tile")
	scrubCmd.Flags().BoolVar(&dryRun, "dry-run", false, "only count empty tiles")
}
