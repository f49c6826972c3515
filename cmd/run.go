package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/brendan-ward/rastertiler/config"
	"github.com/brendan-ward/rastertiler/manifest"
	"github.com/brendan-ward/rastertiler/mbtiles"
	"github.com/brendan-ward/rastertiler/pipeline"
)

var onlyRegions []string
var packRegions bool

var runCmd = &cobra.Command{
	Use:   "run [JOB.hcl]",
	Short: "Render every region of a job file",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) < 1 {
			return errors.New("job filename is required")
		}
		if _, err := os.Stat(args[0]); errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("job file '%s' does not exist", args[0])
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(args[0])
		if err != nil {
			return err
		}
		return runJob(cmd, cfg)
	},
	SilenceUsage: true,
}

func init() {
	runCmd.Flags().StringSliceVarP(&onlyRegions, "region", "r", nil, "only render these regions")
	runCmd.Flags().BoolVar(&packRegions, "mbtiles", false, "pack each region into <output>/<region>.mbtiles")
}

func runJob(cmd *cobra.Command, cfg *config.Config) error {
	regions := cfg.Regions
	if len(onlyRegions) > 0 {
		regions = nil
		for _, name := range onlyRegions {
			r := cfg.Region(name)
			if r == nil {
				return fmt.Errorf("region %q is not defined in job file", name)
			}
			regions = append(regions, r)
		}
	}

	var size int64 = -1
	if cfg.EmptyTileSize != nil {
		size = *cfg.EmptyTileSize
	}
	factory, size, err := lookupEngine(cfg.Engine, cfg.Style, size)
	if err != nil {
		return err
	}

	ctx, stop := interruptContext(cmd.Context())
	defer stop()

	var recorder *manifest.Recorder
	if cfg.Manifest != "" {
		recorder = manifest.NewRecorder()
		defer func() {
			if err := recorder.WriteFile(cfg.Manifest); err != nil {
				logger.Error("could not write manifest", "path", cfg.Manifest, "err", err)
			}
		}()
	}

	for _, r := range regions {
		_, err := renderRegion(ctx, pipeline.Options{
			Bounds:     r.Bounds(),
			StylePath:  cfg.Style,
			OutputRoot: cfg.Output,
			Region:     r.Name,
			MinZoom:    r.MinZoom,
			MaxZoom:    r.MaxZoom,
			Workers:    cfg.Workers,
			QueueSize:  cfg.QueueSize,
			Config:     cfg.RenderConfig(size),
			Engine:     factory,
		}, recorder)
		if err != nil {
			return err
		}

		if packRegions {
			err = packTree(ctx, filepath.Join(cfg.Output, r.Name), filepath.Join(cfg.Output, r.Name+".mbtiles"), cfg.TMS, mbtiles.Metadata{
				Name:    r.Name,
				MinZoom: r.MinZoom,
				MaxZoom: r.MaxZoom,
				Bounds:  r.Bounds(),
			})
			if err != nil {
				return err
			}
		}
	}

	return nil
}
