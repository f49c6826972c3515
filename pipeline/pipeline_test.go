package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brendan-ward/rastertiler/render"
	"github.com/brendan-ward/rastertiler/tiles"
)

var colorado = tiles.Bounds{-106.87, 36.99, -102.04, 41.00}
var world = tiles.Bounds{-180, -tiles.MaxLatitude, 180, tiles.MaxLatitude}

// stubEngine writes tiles of a configurable size instead of rendering
type stubEngine struct {
	mu      sync.Mutex
	renders map[string]int
	buffers []int
	extents map[string][4]float64
	opened  atomic.Int32
	closed  atomic.Int32

	failOpenAfter int32                   // 0 never fails
	size          func(path string) int   // bytes to write, default 500
	fail          func(path string) error // per-tile error
	onRender      func(path string)       // called before writing
}

func newStubEngine() *stubEngine {
	return &stubEngine{
		renders: make(map[string]int),
		extents: make(map[string][4]float64),
	}
}

func (e *stubEngine) factory(stylePath string) (render.Map, error) {
	n := e.opened.Add(1)
	if e.failOpenAfter > 0 && n > e.failOpenAfter {
		return nil, errors.New("style could not be parsed")
	}
	return &stubMap{engine: e}, nil
}

func (e *stubEngine) renderCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := 0
	for _, n := range e.renders {
		total += n
	}
	return total
}

type stubMap struct {
	engine *stubEngine
	width  int
	height int
	buffer int
	extent [4]float64
}

func (m *stubMap) Projection() render.Projection { return render.WebMercator{} }
func (m *stubMap) Resize(width, height int)      { m.width, m.height = width, height }
func (m *stubMap) BufferSize() int               { return m.buffer }
func (m *stubMap) SetBufferSize(pixels int)      { m.buffer = pixels }
func (m *stubMap) ZoomToBox(minx, miny, maxx, maxy float64) {
	m.extent = [4]float64{minx, miny, maxx, maxy}
}

func (m *stubMap) Close() error {
	m.engine.closed.Add(1)
	return nil
}

func (m *stubMap) RenderToFile(path string) error {
	e := m.engine
	if e.onRender != nil {
		e.onRender(path)
	}

	e.mu.Lock()
	e.renders[path]++
	e.buffers = append(e.buffers, m.buffer)
	e.extents[path] = m.extent
	e.mu.Unlock()

	if e.fail != nil {
		if err := e.fail(path); err != nil {
			return err
		}
	}
	size := 500
	if e.size != nil {
		size = e.size(path)
	}
	return os.WriteFile(path, bytes.Repeat([]byte{'t'}, size), 0644)
}

func testOptions(t *testing.T, engine *stubEngine) Options {
	t.Helper()
	style := filepath.Join(t.TempDir(), "style.xml")
	if err := os.WriteFile(style, []byte("<Map/>"), 0644); err != nil {
		t.Fatal(err)
	}
	return Options{
		Bounds:     colorado,
		StylePath:  style,
		OutputRoot: t.TempDir(),
		Region:     "colorado",
		MinZoom:    0,
		MaxZoom:    3,
		Workers:    2,
		Engine:     engine.factory,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// listTree returns relative file paths and contents under root
func listTree(t *testing.T, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func Test_RenderTiles_Colorado(t *testing.T) {
	engine := newStubEngine()
	opts := testOptions(t, engine)

	var mu sync.Mutex
	var results []TileResult
	zooms := make(map[int]int)
	opts.OnResult = func(r TileResult) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}
	opts.OnZoom = func(zoom, count int) {
		zooms[zoom] = count
	}

	summary, err := RenderTiles(context.Background(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{
		"colorado/0/0/0.png",
		"colorado/1/0/0.png",
		"colorado/2/0/1.png",
		"colorado/3/1/3.png",
	}
	if got := keys(listTree(t, opts.OutputRoot)); !equalStrings(got, expected) {
		t.Errorf("tiles %v, expected %v", got, expected)
	}

	if summary.Enqueued != 4 || summary.Rendered != 4 || summary.Failed != 0 || summary.Existing != 0 {
		t.Errorf("unexpected summary %v", summary)
	}
	if summary.Completed != int64(summary.Enqueued+opts.Workers) {
		t.Errorf("completed %v, expected %v", summary.Completed, summary.Enqueued+opts.Workers)
	}
	if len(results) != 4 {
		t.Errorf("expected 4 results, got %v", len(results))
	}
	for zoom := 0; zoom <= 3; zoom++ {
		if zooms[zoom] != 1 {
			t.Errorf("zoom: %v | OnZoom count %v, expected 1", zoom, zooms[zoom])
		}
	}
	if engine.opened.Load() != 2 || engine.closed.Load() != 2 {
		t.Errorf("expected 2 maps opened and closed, got %v and %v", engine.opened.Load(), engine.closed.Load())
	}
	for _, b := range engine.buffers {
		if b < tiles.MinBuffer {
			t.Errorf("buffer %v smaller than %v", b, tiles.MinBuffer)
		}
	}
}

func Test_RenderTiles_Idempotent(t *testing.T) {
	engine := newStubEngine()
	opts := testOptions(t, engine)
	opts.Bounds = world
	opts.MaxZoom = 2

	first, err := RenderTiles(context.Background(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := listTree(t, opts.OutputRoot)
	rendered := engine.renderCount()
	if rendered != 21 || first.Rendered != 21 {
		t.Fatalf("expected 21 tiles rendered, got %v (%v)", rendered, first.Rendered)
	}

	second, err := RenderTiles(context.Background(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if engine.renderCount() != rendered {
		t.Errorf("second run rendered %v tiles", engine.renderCount()-rendered)
	}
	if second.Rendered != 0 || second.Existing != 21 {
		t.Errorf("unexpected summary for second run: %v", second)
	}

	after := listTree(t, opts.OutputRoot)
	if len(before) != len(after) {
		t.Fatalf("tree changed: %v files before, %v after", len(before), len(after))
	}
	for path, data := range before {
		if after[path] != data {
			t.Errorf("%v changed between runs", path)
		}
	}
}

func Test_RenderTiles_TMS(t *testing.T) {
	xyz := testOptions(t, newStubEngine())
	xyz.Bounds = tiles.Bounds{-100, -20, -20, 20}
	xyz.MinZoom = 4
	xyz.MaxZoom = 4

	tms := xyz
	tms.Engine = newStubEngine().factory
	tms.OutputRoot = t.TempDir()
	tms.Config = tiles.NewRenderConfig(tiles.MinBuffer, tiles.DefaultEmptyTileSize, true)

	if _, err := RenderTiles(context.Background(), xyz); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := RenderTiles(context.Background(), tms); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	xyzTree := listTree(t, xyz.OutputRoot)
	tmsTree := listTree(t, tms.OutputRoot)
	if len(xyzTree) != 10 || len(tmsTree) != len(xyzTree) {
		t.Fatalf("expected 10 tiles in both trees, got %v and %v", len(xyzTree), len(tmsTree))
	}

	for x := 3; x <= 7; x++ {
		for y := 7; y <= 8; y++ {
			tile := tiles.NewTileID(4, x, y)
			rel := func(root string, tile tiles.TileID) string {
				r, _ := filepath.Rel(root, tile.Path(filepath.Join(root, "colorado")))
				return filepath.ToSlash(r)
			}
			if _, ok := xyzTree[rel(xyz.OutputRoot, tile)]; !ok {
				t.Errorf("%v missing from XYZ tree", tile)
			}
			flipped := tiles.NewTileID(4, x, 15-y)
			if _, ok := tmsTree[rel(tms.OutputRoot, flipped)]; !ok {
				t.Errorf("%v missing from TMS tree as %v", tile, flipped)
			}
		}
	}
}

func Test_RenderTiles_EmptyTiles(t *testing.T) {
	engine := newStubEngine()
	emptyPath := ""
	engine.size = func(path string) int {
		if filepath.Base(filepath.Dir(filepath.Dir(path))) == "2" {
			emptyPath = path
			return int(tiles.DefaultEmptyTileSize)
		}
		return int(tiles.DefaultEmptyTileSize) + 1
	}
	opts := testOptions(t, engine)

	var mu sync.Mutex
	empties := 0
	opts.OnResult = func(r TileResult) {
		mu.Lock()
		defer mu.Unlock()
		if r.Empty {
			empties++
			if r.Status != StatusRendered || r.Size != tiles.DefaultEmptyTileSize {
				t.Errorf("unexpected empty result %+v", r)
			}
		}
	}

	summary, err := RenderTiles(context.Background(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Empty != 1 || empties != 1 {
		t.Errorf("expected one empty tile, got %v (%v)", summary.Empty, empties)
	}
	if _, err := os.Stat(emptyPath); !os.IsNotExist(err) {
		t.Errorf("empty tile %v should have been deleted", emptyPath)
	}
	if n := len(listTree(t, opts.OutputRoot)); n != 3 {
		t.Errorf("expected 3 remaining tiles, got %v", n)
	}
}

func Test_RenderTiles_FailuresIsolated(t *testing.T) {
	engine := newStubEngine()
	engine.fail = func(path string) error {
		switch filepath.Base(filepath.Dir(filepath.Dir(path))) {
		case "1":
			return errors.New("bad geometry")
		case "2":
			panic("engine crashed")
		}
		return nil
	}
	opts := testOptions(t, engine)

	summary, err := RenderTiles(context.Background(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Failed != 2 || summary.Rendered != 2 {
		t.Errorf("expected 2 failed and 2 rendered tiles, got %v", summary)
	}
	if summary.Completed != int64(summary.Enqueued+opts.Workers) {
		t.Errorf("completed %v, expected %v", summary.Completed, summary.Enqueued+opts.Workers)
	}
}

func Test_RenderTiles_CompletionBarrier(t *testing.T) {
	for _, workers := range []int{1, 3, 8} {
		for _, queueSize := range []int{1, 4, 32} {
			engine := newStubEngine()
			opts := testOptions(t, engine)
			opts.Bounds = world
			opts.Workers = workers
			opts.QueueSize = queueSize

			summary, err := RenderTiles(context.Background(), opts)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			// 1 + 4 + 16 + 64
			if summary.Enqueued != 85 || engine.renderCount() != 85 {
				t.Errorf("workers: %v queue: %v | expected 85 tiles, got %v enqueued, %v rendered", workers, queueSize, summary.Enqueued, engine.renderCount())
			}
			if summary.Completed != int64(85+workers) {
				t.Errorf("workers: %v queue: %v | completed %v, expected %v", workers, queueSize, summary.Completed, 85+workers)
			}
			if engine.closed.Load() != int32(workers) {
				t.Errorf("workers: %v | %v maps closed", workers, engine.closed.Load())
			}
		}
	}
}

func Test_RenderTiles_Interrupted(t *testing.T) {
	engine := newStubEngine()
	opts := testOptions(t, engine)
	opts.Bounds = world
	opts.MaxZoom = 4
	opts.QueueSize = 1

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var once sync.Once
	engine.onRender = func(string) {
		once.Do(cancel)
	}

	summary, err := RenderTiles(ctx, opts)
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}
	if summary.Enqueued >= 341 {
		t.Errorf("expected run to stop early, %v jobs queued", summary.Enqueued)
	}
	if summary.Rendered+summary.Canceled+summary.Failed+summary.Existing != summary.Enqueued {
		t.Errorf("every queued job should have a result: %v", summary)
	}
	if summary.Completed != int64(summary.Enqueued+opts.Workers) {
		t.Errorf("completed %v, expected %v", summary.Completed, summary.Enqueued+opts.Workers)
	}
	if engine.closed.Load() != int32(opts.Workers) {
		t.Errorf("expected all maps closed, got %v", engine.closed.Load())
	}
}

func Test_RenderTiles_InterruptedAfterQueued(t *testing.T) {
	engine := newStubEngine()
	opts := testOptions(t, engine)
	opts.Bounds = world
	opts.MaxZoom = 1
	opts.Workers = 1

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var once sync.Once
	engine.onRender = func(string) {
		once.Do(func() {
			// let the producer queue all 5 jobs first
			time.Sleep(50 * time.Millisecond)
			cancel()
		})
	}

	summary, err := RenderTiles(ctx, opts)
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v (%v)", err, summary)
	}
	if summary.Enqueued != 5 {
		t.Errorf("expected all 5 jobs queued, got %v", summary.Enqueued)
	}
	if summary.Rendered != 1 || summary.Canceled != 4 {
		t.Errorf("expected 1 rendered and 4 canceled, got %v", summary)
	}
}

func Test_RenderTiles_InvalidOptions(t *testing.T) {
	engine := newStubEngine()
	base := testOptions(t, engine)

	notDir := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(notDir, nil, 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		modify func(o *Options)
	}{
		{name: "missing style", modify: func(o *Options) { o.StylePath = filepath.Join(t.TempDir(), "missing.xml") }},
		{name: "no output", modify: func(o *Options) { o.OutputRoot = "" }},
		{name: "output is a file", modify: func(o *Options) { o.OutputRoot = notDir }},
		{name: "zoom range", modify: func(o *Options) { o.MinZoom, o.MaxZoom = 4, 3 }},
		{name: "negative zoom", modify: func(o *Options) { o.MinZoom = -1 }},
		{name: "zoom too large", modify: func(o *Options) { o.MaxZoom = tiles.MaxLevels }},
		{name: "no region", modify: func(o *Options) { o.Region = "" }},
		{name: "nested region", modify: func(o *Options) { o.Region = "a/b" }},
		{name: "no engine", modify: func(o *Options) { o.Engine = nil }},
	}

	for _, tc := range tests {
		opts := base
		tc.modify(&opts)
		if _, err := RenderTiles(context.Background(), opts); !errors.Is(err, ErrInvalidOptions) {
			t.Errorf("%v | expected ErrInvalidOptions, got %v", tc.name, err)
		}
	}
	if engine.opened.Load() != 0 {
		t.Errorf("no map should be opened for invalid options")
	}
}

func Test_RenderTiles_EngineSetupFails(t *testing.T) {
	engine := newStubEngine()
	engine.failOpenAfter = 2
	opts := testOptions(t, engine)
	opts.Workers = 4

	if _, err := RenderTiles(context.Background(), opts); err == nil {
		t.Fatal("expected error when a map cannot be created")
	}
	if engine.closed.Load() != 2 {
		t.Errorf("expected the 2 created maps to be closed, got %v", engine.closed.Load())
	}
	if engine.renderCount() != 0 {
		t.Errorf("nothing should be rendered")
	}
}

func Test_RenderTiles_WorkersDefault(t *testing.T) {
	engine := newStubEngine()
	opts := testOptions(t, engine)
	opts.Workers = 0

	summary, err := RenderTiles(context.Background(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if engine.opened.Load() != 1 || summary.Completed != int64(summary.Enqueued+1) {
		t.Errorf("expected a single worker, got %v maps", engine.opened.Load())
	}
}

func Test_TileExtent(t *testing.T) {
	p := tiles.NewProjector(11)

	for _, tile := range []tiles.TileID{{Zoom: 0, X: 0, Y: 0}, {Zoom: 1, X: 1, Y: 0}, {Zoom: 10, X: 20, Y: 30}} {
		minx, miny, maxx, maxy := tileExtent(p, render.WebMercator{}, tile)
		xmin, ymin, xmax, ymax := tile.MercatorBounds()
		for i, pair := range [][2]float64{{minx, xmin}, {miny, ymin}, {maxx, xmax}, {maxy, ymax}} {
			if math.Abs(pair[0]-pair[1]) > 1e-3 {
				t.Errorf("%v | extent[%d] %f, expected %f", tile, i, pair[0], pair[1])
			}
		}
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
