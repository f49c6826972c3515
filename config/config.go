// Package config loads HCL job files that describe one or more regions to
// render with a shared style and output directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/brendan-ward/rastertiler/tiles"
)

type Config struct {
	Style         string         `hcl:"style"`
	Output        string         `hcl:"output"`
	Engine        string         `hcl:"engine,optional"`
	Workers       int            `hcl:"workers,optional"`
	QueueSize     int            `hcl:"queue_size,optional"`
	TMS           bool           `hcl:"tms,optional"`
	Buffer        int            `hcl:"buffer,optional"`
	EmptyTileSize *int64         `hcl:"empty_tile_size,optional"`
	Manifest      string         `hcl:"manifest,optional"`
	Regions       []*RegionBlock `hcl:"region,block"`
}

type RegionBlock struct {
	Name    string    `hcl:"name,label"`
	BBox    []float64 `hcl:"bbox"`
	MinZoom int       `hcl:"min_zoom,optional"`
	MaxZoom int       `hcl:"max_zoom"`
}

// Bounds returns the region bbox as west, south, east, north
func (r *RegionBlock) Bounds() tiles.Bounds {
	var b tiles.Bounds
	copy(b[:], r.BBox)
	return b
}

func newHCLEvalContext() *hcl.EvalContext {
	world := cty.TupleVal([]cty.Value{
		cty.NumberFloatVal(-180),
		cty.NumberFloatVal(-tiles.MaxLatitude),
		cty.NumberFloatVal(180),
		cty.NumberFloatVal(tiles.MaxLatitude),
	})
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"max_latitude": cty.NumberFloatVal(tiles.MaxLatitude),
			"world":        world,
		},
		Functions: map[string]function.Function{
			"min": stdlib.MinFunc,
			"max": stdlib.MaxFunc,
			"abs": stdlib.AbsoluteFunc,
		},
	}
}

// LoadConfig decodes and validates the job file at path. Relative style,
// output and manifest paths are resolved against the directory of the file.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	evalCtx := newHCLEvalContext()
	err := hclsimple.DecodeFile(path, evalCtx, &cfg)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	cfg.Style = resolve(dir, cfg.Style)
	cfg.Output = resolve(dir, cfg.Output)
	cfg.Manifest = resolve(dir, cfg.Manifest)

	if cfg.Engine == "" {
		cfg.Engine = "vector"
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func (cfg *Config) validate() error {
	if _, err := os.Stat(cfg.Style); err != nil {
		return fmt.Errorf("style: %w", err)
	}
	if len(cfg.Regions) == 0 {
		return fmt.Errorf("at least one region block is required")
	}
	if cfg.EmptyTileSize != nil && *cfg.EmptyTileSize < 0 {
		return fmt.Errorf("empty_tile_size must be >= 0")
	}

	seen := make(map[string]bool)
	for _, r := range cfg.Regions {
		if seen[r.Name] {
			return fmt.Errorf("region %q is defined more than once", r.Name)
		}
		seen[r.Name] = true

		if len(r.BBox) != 4 {
			return fmt.Errorf("region %q: bbox must have 4 values, got %d", r.Name, len(r.BBox))
		}
		if r.MinZoom < 0 || r.MaxZoom < r.MinZoom || r.MaxZoom >= tiles.MaxLevels {
			return fmt.Errorf("region %q: invalid zoom range %d-%d", r.Name, r.MinZoom, r.MaxZoom)
		}
	}
	return nil
}

// Region returns the region with name, or nil
func (cfg *Config) Region(name string) *RegionBlock {
	for _, r := range cfg.Regions {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// RenderConfig returns the render settings shared by all regions. If the
// file does not set empty_tile_size, emptyTileSize is used.
func (cfg *Config) RenderConfig(emptyTileSize int64) *tiles.RenderConfig {
	if cfg.EmptyTileSize != nil {
		emptyTileSize = *cfg.EmptyTileSize
	}
	return tiles.NewRenderConfig(cfg.Buffer, emptyTileSize, cfg.TMS)
}
