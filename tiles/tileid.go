package tiles

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// CE is the circumference of the spherical Mercator world, in meters
var CE float64 = 2 * 6378137.0 * math.Pi

// WebMercator tile, numbered starting from upper left
type TileID struct {
	Zoom int
	X    int
	Y    int
}

func NewTileID(zoom, x, y int) TileID {
	return TileID{zoom, x, y}
}

// Valid returns true if X and Y are within [0, 2^Zoom)
func (t TileID) Valid() bool {
	if t.Zoom < 0 {
		return false
	}
	n := 1 << t.Zoom
	return t.X >= 0 && t.X < n && t.Y >= 0 && t.Y < n
}

// FlipY converts between XYZ (row 0 at north) and TMS (row 0 at south)
// numbering. Applying it twice returns the original tile.
func (t TileID) FlipY() TileID {
	return TileID{t.Zoom, t.X, (1 << t.Zoom) - 1 - t.Y}
}

// Path returns <root>/<zoom>/<x>/<y>.png
func (t TileID) Path(root string) string {
	return filepath.Join(root, strconv.Itoa(t.Zoom), strconv.Itoa(t.X), strconv.Itoa(t.Y)+".png")
}

func (t TileID) String() string {
	return fmt.Sprintf("Tile(zoom: %v, x: %v, y: %v)", t.Zoom, t.X, t.Y)
}

// Bound returns the geographic extent of the tile
func (t TileID) Bound() orb.Bound {
	return maptile.New(uint32(t.X), uint32(t.Y), maptile.Zoom(t.Zoom)).Bound()
}

// MercatorBounds returns the extent of the tile in spherical Mercator meters
func (t TileID) MercatorBounds() (float64, float64, float64, float64) {
	z2 := 1 << t.Zoom
	tileSize := CE / (float64)(z2)
	xmin := (float64)(t.X)*tileSize - CE/2.0
	xmax := xmin + tileSize
	ymax := CE/2 - (float64)(t.Y)*tileSize
	ymin := ymax - tileSize

	return xmin, ymin, xmax, ymax
}
