//go:build mapnik

package mapnik

import (
	"fmt"
	"os"
	"sync"

	mapnik "github.com/omniscale/go-mapnik/v2"

	"github.com/brendan-ward/rastertiler/render"
	"github.com/brendan-ward/rastertiler/tiles"
)

const defaultPluginDir = "/usr/lib/mapnik/3.1/input"

var (
	setupOnce sync.Once
	setupErr  error
)

func setup() error {
	setupOnce.Do(func() {
		dir := os.Getenv("MAPNIK_INPUT_PLUGINS")
		if dir == "" {
			dir = defaultPluginDir
		}
		if err := mapnik.RegisterDatasources(dir); err != nil {
			setupErr = fmt.Errorf("could not register mapnik datasources from %s: %w", dir, err)
			return
		}
		if fonts := os.Getenv("MAPNIK_FONTS"); fonts != "" {
			if err := mapnik.RegisterFonts(fonts); err != nil {
				setupErr = fmt.Errorf("could not register fonts from %s: %w", fonts, err)
			}
		}
	})
	return setupErr
}

func init() {
	render.Register("mapnik", func(stylePath string) (render.Map, error) {
		return New(stylePath)
	})
}

// Map wraps one mapnik map object
type Map struct {
	m      *mapnik.Map
	prj    render.Projection
	buffer int
}

// New loads the mapnik XML style at stylePath
func New(stylePath string) (*Map, error) {
	if err := setup(); err != nil {
		return nil, err
	}

	m := mapnik.NewSized(tiles.TileSize, tiles.TileSize)
	if err := m.Load(stylePath); err != nil {
		m.Free()
		return nil, fmt.Errorf("failed to load mapnik style: %w", err)
	}

	prj, err := projectionForSRS(m.SRS())
	if err != nil {
		m.Free()
		return nil, err
	}

	return &Map{m: m, prj: prj}, nil
}

func (m *Map) Projection() render.Projection {
	return m.prj
}

func (m *Map) Resize(width, height int) {
	m.m.Resize(width, height)
}

func (m *Map) BufferSize() int {
	return m.buffer
}

func (m *Map) SetBufferSize(pixels int) {
	m.buffer = pixels
	m.m.SetBufferSize(pixels)
}

func (m *Map) ZoomToBox(minx, miny, maxx, maxy float64) {
	m.m.ZoomTo(minx, miny, maxx, maxy)
}

func (m *Map) RenderToFile(path string) error {
	if err := m.m.RenderToFile(mapnik.RenderOpts{Format: "png256"}, path); err != nil {
		return fmt.Errorf("failed to render to file: %w", err)
	}
	return nil
}

func (m *Map) Close() error {
	if m.m != nil {
		m.m.Free()
		m.m = nil
	}
	return nil
}
