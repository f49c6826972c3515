package vector

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/brendan-ward/rastertiler/tiles"
)

// Style is the minimal style document understood by this engine:
//
//	background = "#f2efe9"
//
//	layer "water" {
//	  source       = "water.geojson"
//	  fill         = "#aad3df"
//	  stroke       = "#6f9fb0"
//	  stroke_width = 1
//	}
//
// Layers are drawn in order. Source paths are relative to the style file.
type Style struct {
	Background string        `hcl:"background,optional"`
	Layers     []*LayerBlock `hcl:"layer,block"`
}

type LayerBlock struct {
	Name        string  `hcl:"name,label"`
	Source      string  `hcl:"source"`
	Fill        string  `hcl:"fill,optional"`
	Stroke      string  `hcl:"stroke,optional"`
	StrokeWidth float64 `hcl:"stroke_width,optional"`
	PointRadius float64 `hcl:"point_radius,optional"`
}

// layer is a LayerBlock with its features projected to Web Mercator
type layer struct {
	*LayerBlock
	features []feature
}

type feature struct {
	geometry orb.Geometry
	bound    orb.Bound
}

func toMercator(p orb.Point) orb.Point {
	x, y := tiles.GeoToMercator(p[0], p[1])
	return orb.Point{x, y}
}

// LoadStyle decodes the style at path and loads every layer source
func LoadStyle(path string) (*Style, []*layer, error) {
	var style Style
	if err := hclsimple.DecodeFile(path, nil, &style); err != nil {
		return nil, nil, err
	}

	if style.Background != "" && !validColor(style.Background) {
		return nil, nil, fmt.Errorf("invalid background color %q", style.Background)
	}

	dir := filepath.Dir(path)
	layers := make([]*layer, 0, len(style.Layers))
	for _, block := range style.Layers {
		l, err := loadLayer(dir, block)
		if err != nil {
			return nil, nil, fmt.Errorf("layer %q: %w", block.Name, err)
		}
		layers = append(layers, l)
	}

	return &style, layers, nil
}

func loadLayer(dir string, block *LayerBlock) (*layer, error) {
	for _, c := range []string{block.Fill, block.Stroke} {
		if c != "" && !validColor(c) {
			return nil, fmt.Errorf("invalid color %q", c)
		}
	}
	if block.StrokeWidth <= 0 {
		block.StrokeWidth = 1
	}
	if block.PointRadius <= 0 {
		block.PointRadius = 2
	}

	source := block.Source
	if !filepath.IsAbs(source) {
		source = filepath.Join(dir, source)
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, err
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("could not parse %s: %w", source, err)
	}

	l := &layer{
		LayerBlock: block,
		features:   make([]feature, 0, len(fc.Features)),
	}
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		g := project(f.Geometry)
		l.features = append(l.features, feature{geometry: g, bound: g.Bound()})
	}
	return l, nil
}

// project returns a copy of g in Web Mercator
func project(g orb.Geometry) orb.Geometry {
	switch g := g.(type) {
	case orb.Point:
		return toMercator(g)
	case orb.MultiPoint:
		out := make(orb.MultiPoint, len(g))
		for i, p := range g {
			out[i] = toMercator(p)
		}
		return out
	case orb.LineString:
		return orb.LineString(project(orb.MultiPoint(g)).(orb.MultiPoint))
	case orb.Ring:
		return orb.Ring(project(orb.MultiPoint(g)).(orb.MultiPoint))
	case orb.MultiLineString:
		out := make(orb.MultiLineString, len(g))
		for i, ls := range g {
			out[i] = project(ls).(orb.LineString)
		}
		return out
	case orb.Polygon:
		out := make(orb.Polygon, len(g))
		for i, r := range g {
			out[i] = project(r).(orb.Ring)
		}
		return out
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(g))
		for i, p := range g {
			out[i] = project(p).(orb.Polygon)
		}
		return out
	case orb.Collection:
		out := make(orb.Collection, len(g))
		for i, c := range g {
			out[i] = project(c)
		}
		return out
	case orb.Bound:
		return orb.Bound{Min: toMercator(g.Min), Max: toMercator(g.Max)}
	}
	return g
}

func validColor(s string) bool {
	s = strings.TrimPrefix(s, "#")
	switch len(s) {
	case 3, 4, 6, 8:
	default:
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}
