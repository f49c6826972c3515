package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"

	"github.com/brendan-ward/rastertiler/mbtiles"
	"github.com/brendan-ward/rastertiler/tiles"
)

var tilesetName string
var description string
var packageTMS bool
var packageBounds string

var packageCmd = &cobra.Command{
	Use:   "package [TILE_DIR] [OUT.mbtiles]",
	Short: "Pack a directory of rendered tiles into an mbtiles file",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) < 2 {
			return errors.New("tile directory and mbtiles filenames are required")
		}
		if info, err := os.Stat(args[0]); err != nil || !info.IsDir() {
			return fmt.Errorf("tile directory '%s' does not exist", args[0])
		}
		outDir := filepath.Dir(args[1])
		if _, err := os.Stat(outDir); errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("output directory '%s' does not exist", outDir)
		}
		if filepath.Ext(args[1]) != ".mbtiles" {
			return errors.New("mbtiles filename must end in '.mbtiles'")
		}
		if packageBounds != "" {
			if _, err := tiles.ParseBounds(packageBounds); err != nil {
				return err
			}
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if tilesetName == "" {
			tilesetName = filepath.Base(filepath.Clean(args[0]))
		}

		found, err := mbtiles.TreeTiles(args[0], packageTMS)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return fmt.Errorf("no tiles found in '%s'", args[0])
		}

		meta := mbtiles.Metadata{
			Name:        tilesetName,
			Description: description,
			MinZoom:     tiles.MaxLevels,
			MaxZoom:     0,
		}
		for tile := range found {
			meta.MinZoom = min(meta.MinZoom, tile.Zoom)
			meta.MaxZoom = max(meta.MaxZoom, tile.Zoom)
		}
		if packageBounds != "" {
			meta.Bounds, _ = tiles.ParseBounds(packageBounds)
		} else {
			meta.Bounds = treeBounds(found)
		}

		ctx, stop := interruptContext(cmd.Context())
		defer stop()

		return packTree(ctx, args[0], args[1], packageTMS, meta)
	},
	SilenceUsage: true,
}

func init() {
	packageCmd.Flags().StringVarP(&tilesetName, "name", "n", "", "tileset name (default: tile directory name)")
	packageCmd.Flags().StringVar(&description, "description", "", "tileset description")
	packageCmd.Flags().BoolVar(&packageTMS, "tms", false, "tile rows in the directory are TMS rows")
	packageCmd.Flags().StringVarP(&packageBounds, "bbox", "b", "", "tileset bounds: west,south,east,north (default: extent of the tiles at max zoom)")
}

// treeBounds is the geographic extent of the tiles at the highest zoom
func treeBounds(found map[tiles.TileID]string) tiles.Bounds {
	maxZoom := 0
	for tile := range found {
		maxZoom = max(maxZoom, tile.Zoom)
	}

	var b orb.Bound
	first := true
	for tile := range found {
		if tile.Zoom != maxZoom {
			continue
		}
		if first {
			b = tile.Bound()
			first = false
			continue
		}
		b = b.Union(tile.Bound())
	}
	return tiles.Bounds{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
}

func packTree(ctx context.Context, root string, path string, tms bool, meta mbtiles.Metadata) error {
	found, err := mbtiles.TreeTiles(root, tms)
	if err != nil {
		return err
	}

	db, err := mbtiles.NewMBtilesWriter(path, 1)
	if err != nil {
		return err
	}

	if err := db.WriteMetadata(meta); err != nil {
		db.Close()
		return err
	}

	fmt.Printf("Packing tiles into %v\n", path)
	bar := newBar(len(found), "packing")
	count, err := db.Pack(ctx, found, func(tiles.TileID) { bar.Add(1) })
	bar.Clear()
	if err != nil {
		db.Close()
		return err
	}

	logger.Info("packed tiles", "path", path, "tiles", count)
	return db.Close()
}
