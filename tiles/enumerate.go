package tiles

import "math"

// TileRange calculates the unclipped min and max tile indices covered by
// bounds at zoom. Corners are projected as (west, north) and (east, south);
// since the range is ordered afterwards, reversed boxes produce the same tiles.
func TileRange(p *Projector, zoom int, bounds Bounds) (TileID, TileID) {
	x0, y0 := p.GeoToPixel(bounds[0], bounds[3], zoom)
	x1, y1 := p.GeoToPixel(bounds[2], bounds[1], zoom)

	tx0, ty0 := tileIndex(x0), tileIndex(y0)
	tx1, ty1 := tileIndex(x1), tileIndex(y1)

	minTile := TileID{Zoom: zoom, X: min(tx0, tx1), Y: min(ty0, ty1)}
	maxTile := TileID{Zoom: zoom, X: max(tx0, tx1), Y: max(ty0, ty1)}
	return minTile, maxTile
}

func tileIndex(px float64) int {
	return int(math.Floor(px / TileSize))
}

// clippedRange returns the tile range at zoom intersected with [0, 2^zoom).
// ok is false if nothing is left.
func clippedRange(p *Projector, zoom int, bounds Bounds) (minTile TileID, maxTile TileID, ok bool) {
	minTile, maxTile = TileRange(p, zoom, bounds)
	n := 1 << zoom
	minTile.X = max(minTile.X, 0)
	minTile.Y = max(minTile.Y, 0)
	maxTile.X = min(maxTile.X, n-1)
	maxTile.Y = min(maxTile.Y, n-1)
	ok = minTile.X <= maxTile.X && minTile.Y <= maxTile.Y
	return minTile, maxTile, ok
}

// Count returns the number of tiles Enumerate yields for bounds at zoom
func Count(p *Projector, zoom int, bounds Bounds) int {
	minTile, maxTile, ok := clippedRange(p, zoom, bounds)
	if !ok {
		return 0
	}
	return (maxTile.X - minTile.X + 1) * (maxTile.Y - minTile.Y + 1)
}

// Enumerate calls fn for every XYZ tile intersecting bounds for zoom levels
// minZoom through maxZoom, column by column. Tiles outside [0, 2^zoom) are
// never passed to fn. Enumeration stops at the first error returned by fn.
func Enumerate(p *Projector, bounds Bounds, minZoom int, maxZoom int, fn func(TileID) error) error {
	for zoom := minZoom; zoom <= maxZoom; zoom++ {
		minTile, maxTile, ok := clippedRange(p, zoom, bounds)
		if !ok {
			continue
		}
		for x := minTile.X; x <= maxTile.X; x++ {
			for y := minTile.Y; y <= maxTile.Y; y++ {
				if err := fn(TileID{Zoom: zoom, X: x, Y: y}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
