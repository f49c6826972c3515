package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brendan-ward/rastertiler/render"
	"github.com/brendan-ward/rastertiler/tiles"
)

// worker owns one render.Map for its whole life; the Map never leaves the
// goroutine running run.
type worker struct {
	id        int
	ctx       context.Context
	m         render.Map
	projector *tiles.Projector
	gate      *CacheGate
	buffer    int
	queue     *JobQueue
	logger    *slog.Logger
	report    func(TileResult)
}

func (w *worker) run() error {
	defer func() {
		if err := w.m.Close(); err != nil {
			w.logger.Warn("could not close map", "worker", w.id, "err", err)
		}
	}()

	for {
		job := w.queue.Get()
		if job == nil {
			w.queue.TaskDone()
			return nil
		}

		w.report(w.process(job))
		w.queue.TaskDone()
	}
}

// process never panics; engine failures are returned in the result
func (w *worker) process(job *TileJob) (result TileResult) {
	start := time.Now()
	result = TileResult{
		Region: job.Region,
		Tile:   job.Tile,
		Path:   job.Path,
		Worker: w.id,
	}

	defer func() {
		if r := recover(); r != nil {
			result.Status = StatusFailed
			result.Err = fmt.Errorf("panic rendering %v: %v", job.Tile, r)
		}
		result.Duration = time.Since(start)
	}()

	if w.ctx.Err() != nil {
		result.Status = StatusCanceled
		return result
	}

	if w.gate.Exists(job.Path) {
		result.Status = StatusExists
	} else {
		if err := w.render(job); err != nil {
			result.Status = StatusFailed
			result.Err = fmt.Errorf("could not render %v: %w", job.Tile, err)
			return result
		}
		result.Status = StatusRendered
	}

	size, empty, err := w.gate.Scrub(job.Path)
	if err != nil {
		result.Status = StatusFailed
		result.Err = fmt.Errorf("could not check output of %v: %w", job.Tile, err)
		return result
	}
	result.Size = size
	result.Empty = empty

	return result
}

func (w *worker) render(job *TileJob) error {
	minx, miny, maxx, maxy := tileExtent(w.projector, w.m.Projection(), job.Tile)

	w.m.Resize(tiles.TileSize, tiles.TileSize)
	w.m.ZoomToBox(minx, miny, maxx, maxy)
	if w.m.BufferSize() < w.buffer {
		w.m.SetBufferSize(w.buffer)
	}

	return w.m.RenderToFile(job.Path)
}

// tileExtent returns the extent of tile in the engine's projected units
func tileExtent(p *tiles.Projector, prj render.Projection, tile tiles.TileID) (float64, float64, float64, float64) {
	// bottom left and top right pixel corners
	x0 := float64(tile.X * tiles.TileSize)
	y0 := float64((tile.Y + 1) * tiles.TileSize)
	x1 := float64((tile.X + 1) * tiles.TileSize)
	y1 := float64(tile.Y * tiles.TileSize)

	lon0, lat0 := p.PixelToGeo(x0, y0, tile.Zoom)
	lon1, lat1 := p.PixelToGeo(x1, y1, tile.Zoom)

	minx, miny := prj.Forward(lon0, lat0)
	maxx, maxy := prj.Forward(lon1, lat1)
	return minx, miny, maxx, maxy
}
