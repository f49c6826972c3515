// Package render defines the narrow interface between the tile pipeline and a
// map rendering engine, plus a registry of engine implementations.
//
// A Map is bound to one style document and is not safe for concurrent use;
// the pipeline creates one Map per worker.
package render

import (
	"fmt"
	"sort"
	"sync"

	"github.com/brendan-ward/rastertiler/tiles"
)

// Projection converts geographic coordinates into the engine's native
// projected coordinates.
type Projection interface {
	Forward(lon, lat float64) (x, y float64)
}

// Map is a handle on one instance of a rendering engine's map object
type Map interface {
	// Projection returns the map's native projection
	Projection() Projection
	Resize(width, height int)
	BufferSize() int
	SetBufferSize(pixels int)
	// ZoomToBox sets the rendered extent, in projected units
	ZoomToBox(minx, miny, maxx, maxy float64)
	// RenderToFile renders the current extent and saves it as PNG to path
	RenderToFile(path string) error
	Close() error
}

// Factory creates a Map bound to the style document at stylePath
type Factory func(stylePath string) (Map, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes an engine available by name. It panics if name is
// registered twice.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if factory == nil {
		panic("render: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("render: Register called twice for engine " + name)
	}
	registry[name] = factory
}

// Lookup returns the factory registered under name
func Lookup(name string) (Factory, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown render engine %q (available: %v)", name, engines())
	}
	return factory, nil
}

// Engines returns the sorted names of registered engines
func Engines() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return engines()
}

func engines() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WebMercator is the EPSG:3857 projection, in meters
type WebMercator struct{}

func (WebMercator) Forward(lon, lat float64) (float64, float64) {
	return tiles.GeoToMercator(lon, lat)
}

// EmptySizer is implemented by maps that can report the byte size of a tile
// with no features, for the encoder they write with.
type EmptySizer interface {
	EmptyTileSize() (int64, error)
}

// ProbeEmptyTileSize opens a map for stylePath and asks it for its empty tile
// size. ok is false if the engine cannot tell.
func ProbeEmptyTileSize(factory Factory, stylePath string) (size int64, ok bool, err error) {
	m, err := factory(stylePath)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	sizer, ok := m.(EmptySizer)
	if !ok {
		return 0, false, nil
	}
	size, err = sizer.EmptyTileSize()
	if err != nil {
		return 0, false, err
	}
	return size, true, nil
}
