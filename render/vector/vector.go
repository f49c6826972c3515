// Package vector is a pure-Go rendering engine that draws GeoJSON layers
// with gg. It registers itself as the "vector" engine.
package vector

import (
	"bytes"

	"github.com/gogpu/gg"
	"github.com/paulmach/orb"

	"github.com/brendan-ward/rastertiler/render"
	"github.com/brendan-ward/rastertiler/tiles"
)

func init() {
	render.Register("vector", func(stylePath string) (render.Map, error) {
		return New(stylePath)
	})
}

// Map renders a Style in Web Mercator. Not safe for concurrent use.
type Map struct {
	style  *Style
	layers []*layer
	width  int
	height int
	buffer int
	extent orb.Bound
}

// New loads the style at stylePath
func New(stylePath string) (*Map, error) {
	style, layers, err := LoadStyle(stylePath)
	if err != nil {
		return nil, err
	}
	// the world until ZoomToBox is called
	xmin, ymin, xmax, ymax := tiles.NewTileID(0, 0, 0).MercatorBounds()
	return &Map{
		style:  style,
		layers: layers,
		width:  tiles.TileSize,
		height: tiles.TileSize,
		extent: orb.Bound{Min: orb.Point{xmin, ymin}, Max: orb.Point{xmax, ymax}},
	}, nil
}

func (m *Map) Projection() render.Projection {
	return render.WebMercator{}
}

func (m *Map) Resize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Map) BufferSize() int {
	return m.buffer
}

func (m *Map) SetBufferSize(pixels int) {
	m.buffer = pixels
}

func (m *Map) ZoomToBox(minx, miny, maxx, maxy float64) {
	m.extent = orb.Bound{Min: orb.Point{minx, miny}, Max: orb.Point{maxx, maxy}}
}

func (m *Map) Close() error {
	m.layers = nil
	return nil
}

// RenderToFile draws every feature that intersects the buffered extent
func (m *Map) RenderToFile(path string) error {
	dc := m.draw()
	defer dc.Close()

	for _, l := range m.layers {
		if err := m.drawLayer(dc, l); err != nil {
			return err
		}
	}
	return dc.SavePNG(path)
}

// EmptyTileSize returns the size of a tile with nothing but the background,
// as written by RenderToFile.
func (m *Map) EmptyTileSize() (int64, error) {
	dc := m.draw()
	defer dc.Close()

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return 0, err
	}
	return int64(buf.Len()), nil
}

func (m *Map) draw() *gg.Context {
	dc := gg.NewContext(m.width, m.height)
	if m.style.Background != "" {
		dc.ClearWithColor(gg.Hex(m.style.Background))
	}
	dc.SetFillRule(gg.FillRuleEvenOdd)
	return dc
}

// query returns the extent grown by the buffer, in projected units
func (m *Map) query() orb.Bound {
	if m.width == 0 || m.height == 0 {
		return m.extent
	}
	dx := m.extent.Max[0] - m.extent.Min[0]
	dy := m.extent.Max[1] - m.extent.Min[1]
	bx := dx * float64(m.buffer) / float64(m.width)
	by := dy * float64(m.buffer) / float64(m.height)
	return orb.Bound{
		Min: orb.Point{m.extent.Min[0] - bx, m.extent.Min[1] - by},
		Max: orb.Point{m.extent.Max[0] + bx, m.extent.Max[1] + by},
	}
}

// toPixel maps projected coordinates to image pixels, y down
func (m *Map) toPixel(p orb.Point) (float64, float64) {
	dx := m.extent.Max[0] - m.extent.Min[0]
	dy := m.extent.Max[1] - m.extent.Min[1]
	x := (p[0] - m.extent.Min[0]) / dx * float64(m.width)
	y := (m.extent.Max[1] - p[1]) / dy * float64(m.height)
	return x, y
}

func (m *Map) drawLayer(dc *gg.Context, l *layer) error {
	query := m.query()
	for _, f := range l.features {
		if !f.bound.Intersects(query) {
			continue
		}
		if err := m.drawGeometry(dc, l, f.geometry); err != nil {
			return err
		}
	}
	return nil
}

func (m *Map) drawGeometry(dc *gg.Context, l *layer, g orb.Geometry) error {
	switch g := g.(type) {
	case orb.Point:
		x, y := m.toPixel(g)
		dc.DrawCircle(x, y, l.PointRadius)
		return m.paint(dc, l, true)
	case orb.MultiPoint:
		for _, p := range g {
			if err := m.drawGeometry(dc, l, p); err != nil {
				return err
			}
		}
	case orb.LineString:
		m.addLine(dc, g)
		return m.paint(dc, l, false)
	case orb.MultiLineString:
		for _, ls := range g {
			m.addLine(dc, ls)
		}
		return m.paint(dc, l, false)
	case orb.Ring:
		m.addRing(dc, g)
		return m.paint(dc, l, true)
	case orb.Polygon:
		for _, r := range g {
			m.addRing(dc, r)
		}
		return m.paint(dc, l, true)
	case orb.MultiPolygon:
		for _, p := range g {
			for _, r := range p {
				m.addRing(dc, r)
			}
		}
		return m.paint(dc, l, true)
	case orb.Collection:
		for _, c := range g {
			if err := m.drawGeometry(dc, l, c); err != nil {
				return err
			}
		}
	case orb.Bound:
		return m.drawGeometry(dc, l, g.ToPolygon())
	}
	return nil
}

func (m *Map) addLine(dc *gg.Context, ls orb.LineString) {
	for i, p := range ls {
		x, y := m.toPixel(p)
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
}

func (m *Map) addRing(dc *gg.Context, r orb.Ring) {
	if len(r) < 3 {
		return
	}
	m.addLine(dc, orb.LineString(r))
	dc.ClosePath()
}

// paint fills (areas only) and strokes the current path, then clears it
func (m *Map) paint(dc *gg.Context, l *layer, area bool) error {
	defer dc.ClearPath()

	if area && l.Fill != "" {
		dc.SetHexColor(l.Fill)
		if err := dc.FillPreserve(); err != nil {
			return err
		}
	}
	if l.Stroke != "" {
		dc.SetHexColor(l.Stroke)
		dc.SetLineWidth(l.StrokeWidth)
		if err := dc.StrokePreserve(); err != nil {
			return err
		}
	}
	return nil
}
