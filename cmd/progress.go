package cmd

import (
	"context"
	"fmt"
	"sync"

	"github.com/gosuri/uiprogress"
	"github.com/schollz/progressbar/v3"

	"github.com/brendan-ward/rastertiler/manifest"
	"github.com/brendan-ward/rastertiler/pipeline"
	"github.com/brendan-ward/rastertiler/render"
	"github.com/brendan-ward/rastertiler/tiles"

	// render engines
	_ "github.com/brendan-ward/rastertiler/render/mapnik"
	_ "github.com/brendan-ward/rastertiler/render/vector"
)

// zoomBars shows one progress bar per zoom level, advanced as workers report
// results
type zoomBars struct {
	progress *uiprogress.Progress

	mu   sync.Mutex
	bars map[int]*uiprogress.Bar
}

func newZoomBars() *zoomBars {
	return &zoomBars{
		progress: uiprogress.New(),
		bars:     make(map[int]*uiprogress.Bar),
	}
}

func (z *zoomBars) onZoom(zoom int, count int) {
	bar := z.progress.AddBar(count).AppendCompleted().PrependElapsed()
	bar.PrependFunc(func(b *uiprogress.Bar) string {
		return fmt.Sprintf("zoom %2v (%8v/%8v)", zoom, b.Current(), count)
	})

	z.mu.Lock()
	z.bars[zoom] = bar
	z.mu.Unlock()
}

func (z *zoomBars) onResult(r pipeline.TileResult) {
	z.mu.Lock()
	bar := z.bars[r.Tile.Zoom]
	z.mu.Unlock()

	if bar != nil {
		bar.Incr()
	}
}

// lookupEngine returns the named engine and the empty tile size to use with
// it. A negative emptySize means the engine is probed, falling back to
// tiles.DefaultEmptyTileSize.
func lookupEngine(name string, stylePath string, emptySize int64) (render.Factory, int64, error) {
	factory, err := render.Lookup(name)
	if err != nil {
		return nil, 0, err
	}
	if emptySize >= 0 {
		return factory, emptySize, nil
	}

	size, ok, err := render.ProbeEmptyTileSize(factory, stylePath)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		size = tiles.DefaultEmptyTileSize
	}
	logger.Debug("empty tile size", "engine", name, "bytes", size, "probed", ok)
	return factory, size, nil
}

// renderRegion runs the pipeline for one region with progress bars, adding
// every result to recorder if it is not nil
func renderRegion(ctx context.Context, opts pipeline.Options, recorder *manifest.Recorder) (*pipeline.Summary, error) {
	bars := newZoomBars()
	opts.OnZoom = bars.onZoom
	opts.OnResult = func(r pipeline.TileResult) {
		bars.onResult(r)
		if recorder != nil {
			recorder.Record(r)
		}
	}
	opts.Logger = logger

	fmt.Printf("Creating tiles for %s\n", opts.Region)
	bars.progress.Start()
	summary, err := pipeline.RenderTiles(ctx, opts)
	bars.progress.Stop()

	if summary != nil {
		fmt.Println(summary)
	}
	return summary, err
}

func newBar(count int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(count, progressbar.OptionSetWidth(25), progressbar.OptionSetDescription(description))
}
