package tiles

import (
	"fmt"
	"math"
)

// TileSize is the width and height of a tile, in pixels
const TileSize = 256

// MaxLevels bounds the projector table; 256 * 2^30 pixels still fits
// comfortably in a float64 mantissa.
const MaxLevels = 31

type level struct {
	width    float64 // total plane width (and height) in pixels
	pxPerDeg float64
	pxPerRad float64
	origin   float64 // pixel coordinate of lon 0 / lat 0 on both axes
}

// Projector converts between geographic coordinates and global pixel
// coordinates using spherical Mercator, for zoom levels 0..Levels()-1.
// It is immutable after construction and safe for concurrent use.
type Projector struct {
	levels []level
}

// NewProjector precomputes the per-zoom tables for zoom 0..levels-1
func NewProjector(levels int) *Projector {
	if levels < 1 || levels > MaxLevels {
		panic(fmt.Sprintf("projector levels must be in [1, %d], got %d", MaxLevels, levels))
	}

	p := &Projector{levels: make([]level, levels)}
	c := float64(TileSize)
	for z := 0; z < levels; z++ {
		p.levels[z] = level{
			width:    c,
			pxPerDeg: c / 360.0,
			pxPerRad: c / (2 * math.Pi),
			origin:   c / 2,
		}
		c *= 2
	}
	return p
}

// Levels returns the number of zoom levels in the table
func (p *Projector) Levels() int {
	return len(p.levels)
}

func (p *Projector) level(zoom int) level {
	if zoom < 0 || zoom >= len(p.levels) {
		panic(fmt.Sprintf("zoom %d outside projector range [0, %d)", zoom, len(p.levels)))
	}
	return p.levels[zoom]
}

// Width returns the plane width in pixels at zoom (256 * 2^zoom)
func (p *Projector) Width(zoom int) float64 {
	return p.level(zoom).width
}

// GeoToPixel projects lon, lat to global pixel coordinates at zoom, rounded
// to the nearest pixel (halves away from zero).
func (p *Projector) GeoToPixel(lon, lat float64, zoom int) (float64, float64) {
	l := p.level(zoom)
	px := math.Round(l.origin + lon*l.pxPerDeg)
	f := clamp(math.Sin(lat*DEG2RAD), -0.9999, 0.9999)
	py := math.Round(l.origin - 0.5*math.Log((1+f)/(1-f))*l.pxPerRad)
	return px, py
}

// PixelToGeo is the inverse of GeoToPixel, without rounding
func (p *Projector) PixelToGeo(px, py float64, zoom int) (float64, float64) {
	l := p.level(zoom)
	lon := (px - l.origin) / l.pxPerDeg
	g := (py - l.origin) / -l.pxPerRad
	lat := RAD2DEG * (2*math.Atan(math.Exp(g)) - 0.5*math.Pi)
	return lon, lat
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
