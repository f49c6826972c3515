// Package pipeline renders a pyramid of tiles for a bounding box with a fixed
// pool of workers fed from a bounded job queue.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brendan-ward/rastertiler/render"
	"github.com/brendan-ward/rastertiler/tiles"
)

var (
	// ErrInvalidOptions is returned before any work starts
	ErrInvalidOptions = errors.New("invalid options")
	// ErrInterrupted is returned when the context is done while jobs are
	// still being queued
	ErrInterrupted = errors.New("rendering interrupted")
)

// Options for a single rendering run
type Options struct {
	Bounds     tiles.Bounds
	StylePath  string
	OutputRoot string
	Region     string
	MinZoom    int
	MaxZoom    int
	Workers    int
	QueueSize  int
	Config     *tiles.RenderConfig
	Engine     render.Factory
	Logger     *slog.Logger

	// OnZoom is called before the jobs of a zoom level are queued, with the
	// number of tiles at that level.
	OnZoom func(zoom int, count int)
	// OnResult is called from worker goroutines once per job; it must be safe
	// for concurrent use.
	OnResult func(TileResult)
}

func (o *Options) validate() error {
	if o.Engine == nil {
		return fmt.Errorf("%w: render engine is required", ErrInvalidOptions)
	}
	if o.Region == "" {
		return fmt.Errorf("%w: region name is required", ErrInvalidOptions)
	}
	if filepath.Base(o.Region) != o.Region || o.Region == "." || o.Region == ".." {
		return fmt.Errorf("%w: region name %q must be a single path element", ErrInvalidOptions, o.Region)
	}
	if o.MinZoom < 0 {
		return fmt.Errorf("%w: minzoom must be >= 0", ErrInvalidOptions)
	}
	if o.MaxZoom < o.MinZoom {
		return fmt.Errorf("%w: maxzoom must be no smaller than minzoom", ErrInvalidOptions)
	}
	if o.MaxZoom >= tiles.MaxLevels {
		return fmt.Errorf("%w: maxzoom must be < %d", ErrInvalidOptions, tiles.MaxLevels)
	}
	if o.StylePath == "" {
		return fmt.Errorf("%w: style is required", ErrInvalidOptions)
	}
	if _, err := os.Stat(o.StylePath); err != nil {
		return fmt.Errorf("%w: style %q: %v", ErrInvalidOptions, o.StylePath, err)
	}
	if o.OutputRoot == "" {
		return fmt.Errorf("%w: output directory is required", ErrInvalidOptions)
	}
	if info, err := os.Stat(o.OutputRoot); err == nil && !info.IsDir() {
		return fmt.Errorf("%w: output %q is not a directory", ErrInvalidOptions, o.OutputRoot)
	}
	return nil
}

func (o *Options) setDefaults() {
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.QueueSize < 1 {
		o.QueueSize = DefaultQueueSize
	}
	if o.Config == nil {
		o.Config = tiles.NewDefaultRenderConfig()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// ensureDirectory creates path and any missing parents. Workers and
// concurrent runs may race to create the same directory, which is fine.
func ensureDirectory(path string) error {
	err := os.MkdirAll(path, os.ModePerm)
	if err != nil && !os.IsExist(err) {
		return err
	}
	return nil
}

// openMaps creates one map per worker; if any fails, the ones already
// created are closed.
func openMaps(factory render.Factory, stylePath string, n int) ([]render.Map, error) {
	maps := make([]render.Map, 0, n)
	for i := 0; i < n; i++ {
		m, err := factory(stylePath)
		if err != nil {
			for _, opened := range maps {
				opened.Close()
			}
			return nil, fmt.Errorf("could not load style %q: %w", stylePath, err)
		}
		maps = append(maps, m)
	}
	return maps, nil
}

// RenderTiles renders every tile intersecting opts.Bounds for zoom levels
// opts.MinZoom through opts.MaxZoom into
// <OutputRoot>/<Region>/<zoom>/<x>/<y>.png.
//
// Tiles that already exist are not rendered again. Failures of individual
// tiles are logged and counted in the returned Summary but do not stop the
// run. If ctx is done before every job has been processed, RenderTiles waits
// for the workers to exit and returns ErrInterrupted along with a partial
// Summary.
func RenderTiles(ctx context.Context, opts Options) (*Summary, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts.setDefaults()

	start := time.Now()
	logger := opts.Logger.With("region", opts.Region)

	regionRoot := filepath.Join(opts.OutputRoot, opts.Region)
	if err := ensureDirectory(regionRoot); err != nil {
		return nil, fmt.Errorf("%w: could not create output directory: %v", ErrInvalidOptions, err)
	}

	maps, err := openMaps(opts.Engine, opts.StylePath, opts.Workers)
	if err != nil {
		return nil, err
	}

	projector := tiles.NewProjector(opts.MaxZoom + 1)
	queue := NewJobQueue(opts.QueueSize)
	gate := &CacheGate{EmptySize: opts.Config.EmptyTileSize}
	summary := &Summary{Region: opts.Region}

	report := func(r TileResult) {
		summary.add(r)
		logResult(logger, r)
		if opts.OnResult != nil {
			opts.OnResult(r)
		}
	}

	logger.Info("starting", "bounds", opts.Bounds.String(), "minzoom", opts.MinZoom, "maxzoom", opts.MaxZoom, "workers", opts.Workers)

	var g errgroup.Group
	for i, m := range maps {
		w := &worker{
			id:        i,
			ctx:       ctx,
			m:         m,
			projector: projector,
			gate:      gate,
			buffer:    max(opts.Config.Buffer, tiles.MinBuffer),
			queue:     queue,
			logger:    logger,
			report:    report,
		}
		g.Go(w.run)
	}

	enqueued, produceErr := produce(ctx, queue, projector, &opts, regionRoot)
	summary.Enqueued = enqueued

	for range maps {
		queue.Stop()
	}
	queue.Join()
	if err := g.Wait(); err != nil {
		return summary, err
	}

	summary.Completed = queue.Completed()
	summary.Elapsed = time.Since(start)

	if produceErr != nil && ctx.Err() == nil {
		return summary, produceErr
	}
	// also covers a cancel after the last job was queued
	if ctx.Err() != nil || summary.Canceled > 0 {
		logger.Error("interrupted", "queued", enqueued, "canceled", summary.Canceled)
		return summary, fmt.Errorf("%w: %v", ErrInterrupted, context.Cause(ctx))
	}

	logger.Info("finished", "tiles", enqueued, "rendered", summary.Rendered, "existing", summary.Existing,
		"empty", summary.Empty, "failed", summary.Failed, "elapsed", summary.Elapsed.Round(time.Millisecond))

	return summary, nil
}

// produce queues a job for every tile, creating the <zoom>/<x> directories
// ahead of the workers. It returns the number of jobs queued.
func produce(ctx context.Context, queue *JobQueue, projector *tiles.Projector, opts *Options, regionRoot string) (int, error) {
	enqueued := 0
	lastDir := ""

	for zoom := opts.MinZoom; zoom <= opts.MaxZoom; zoom++ {
		if opts.OnZoom != nil {
			opts.OnZoom(zoom, tiles.Count(projector, zoom, opts.Bounds))
		}

		err := tiles.Enumerate(projector, opts.Bounds, zoom, zoom, func(tile tiles.TileID) error {
			pathTile := tile
			if opts.Config.TMS {
				pathTile = tile.FlipY()
			}
			path := pathTile.Path(regionRoot)

			if dir := filepath.Dir(path); dir != lastDir {
				if err := ensureDirectory(dir); err != nil {
					return err
				}
				lastDir = dir
			}

			if err := queue.Put(ctx, &TileJob{Region: opts.Region, Path: path, Tile: tile}); err != nil {
				return err
			}
			enqueued++
			return nil
		})
		if err != nil {
			return enqueued, err
		}
	}

	return enqueued, nil
}

func logResult(logger *slog.Logger, r TileResult) {
	attrs := []any{"zoom", r.Tile.Zoom, "x", r.Tile.X, "y", r.Tile.Y}

	switch {
	case r.Status == StatusFailed:
		logger.Error("tile failed", append(attrs, "err", r.Err)...)
	case r.Empty:
		logger.Info("empty tile removed", append(attrs, "status", r.Status.String())...)
	default:
		logger.Debug("tile", append(attrs, "status", r.Status.String(), "bytes", r.Size, "duration", r.Duration)...)
	}
}
