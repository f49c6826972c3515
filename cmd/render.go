package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/brendan-ward/rastertiler/manifest"
	"github.com/brendan-ward/rastertiler/mbtiles"
	"github.com/brendan-ward/rastertiler/pipeline"
	"github.com/brendan-ward/rastertiler/render"
	"github.com/brendan-ward/rastertiler/tiles"
)

var bbox string
var regionName string
var minzoom int
var maxzoom int
var numWorkers int
var queueSize int
var tms bool
var engineName string
var emptySize int64
var buffer int
var manifestPath string
var mbtilesPath string

var renderCmd = &cobra.Command{
	Use:   "render [STYLE] [OUTPUT_DIR]",
	Short: "Render a tile pyramid for a bounding box",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) < 2 {
			return errors.New("style and output directory are required")
		}
		if _, err := os.Stat(args[0]); errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("style '%s' does not exist", args[0])
		}
		if info, err := os.Stat(args[1]); err == nil && !info.IsDir() {
			return fmt.Errorf("output '%s' is not a directory", args[1])
		}
		if bbox == "" {
			return errors.New("--bbox is required")
		}
		if _, err := tiles.ParseBounds(bbox); err != nil {
			return err
		}
		if mbtilesPath != "" && filepath.Ext(mbtilesPath) != ".mbtiles" {
			return errors.New("mbtiles filename must end in '.mbtiles'")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// validate flags
		if numWorkers < 1 {
			numWorkers = 1
		}
		if maxzoom < minzoom {
			return errors.New("maxzoom must be no smaller than minzoom")
		}
		if regionName == "" {
			regionName = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		}

		bounds, _ := tiles.ParseBounds(bbox)
		return renderBounds(cmd.Context(), bounds, args[0], args[1])
	},
	SilenceUsage: true,
}

func init() {
	renderCmd.Flags().StringVarP(&bbox, "bbox", "b", "", "bounding box: west,south,east,north in degrees")
	renderCmd.Flags().StringVarP(&regionName, "name", "n", "", "region name, used as the output subdirectory (default: style name)")
	renderCmd.Flags().IntVarP(&minzoom, "minzoom", "Z", 0, "minimum zoom level")
	renderCmd.Flags().IntVarP(&maxzoom, "maxzoom", "z", 0, "maximum zoom level")
	renderCmd.Flags().IntVarP(&numWorkers, "workers", "w", 4, "number of workers to render tiles")
	renderCmd.Flags().IntVar(&queueSize, "queue", pipeline.DefaultQueueSize, "maximum number of queued tiles")
	renderCmd.Flags().BoolVar(&tms, "tms", false, "write TMS tile rows instead of XYZ")
	renderCmd.Flags().StringVarP(&engineName, "engine", "e", "vector", fmt.Sprintf("render engine, one of %v", render.Engines()))
	renderCmd.Flags().Int64Var(&emptySize, "empty-size", -1, "byte size of an empty tile; 0 keeps all tiles (default: probed from the engine)")
	renderCmd.Flags().IntVar(&buffer, "buffer", tiles.MinBuffer, "number of pixels rendered around each tile")
	renderCmd.Flags().StringVar(&manifestPath, "manifest", "", "write an Arrow manifest of tile results to this file")
	renderCmd.Flags().StringVar(&mbtilesPath, "mbtiles", "", "also pack the rendered tiles into this mbtiles file")
}

// interruptContext is cancelled on SIGINT or SIGTERM
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func renderBounds(ctx context.Context, bounds tiles.Bounds, stylePath string, outputRoot string) error {
	factory, size, err := lookupEngine(engineName, stylePath, emptySize)
	if err != nil {
		return err
	}

	ctx, stop := interruptContext(ctx)
	defer stop()

	var recorder *manifest.Recorder
	if manifestPath != "" {
		recorder = manifest.NewRecorder()
	}

	_, err = renderRegion(ctx, pipeline.Options{
		Bounds:     bounds,
		StylePath:  stylePath,
		OutputRoot: outputRoot,
		Region:     regionName,
		MinZoom:    minzoom,
		MaxZoom:    maxzoom,
		Workers:    numWorkers,
		QueueSize:  queueSize,
		Config:     tiles.NewRenderConfig(buffer, size, tms),
		Engine:     factory,
	}, recorder)

	// the manifest is written for interrupted runs too
	if recorder != nil {
		if werr := recorder.WriteFile(manifestPath); werr != nil {
			return errors.Join(err, fmt.Errorf("could not write manifest: %w", werr))
		}
	}
	if err != nil {
		return err
	}

	if mbtilesPath != "" {
		return packTree(ctx, filepath.Join(outputRoot, regionName), mbtilesPath, tms, mbtiles.Metadata{
			Name:    regionName,
			MinZoom: minzoom,
			MaxZoom: maxzoom,
			Bounds:  bounds,
		})
	}
	return nil
}
