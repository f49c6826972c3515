package mbtiles

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"crawshaw.io/sqlite/sqlitex"

	"github.com/brendan-ward/rastertiler/tiles"
)

// TreeTiles lists the tiles stored under root as <zoom>/<x>/<y>.png. Other
// files are ignored. If tms is true the rows in the tree are TMS rows; the
// returned tiles are always XYZ.
func TreeTiles(root string, tms bool) (map[tiles.TileID]string, error) {
	out := make(map[tiles.TileID]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".png" {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		tile, ok := parseTilePath(rel)
		if !ok {
			return nil
		}
		if tms {
			tile = tile.FlipY()
		}
		out[tile] = path
		return nil
	})
	return out, err
}

func parseTilePath(rel string) (tiles.TileID, bool) {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 3 {
		return tiles.TileID{}, false
	}
	var v [3]int
	for i, p := range parts {
		if i == 2 {
			p = strings.TrimSuffix(p, ".png")
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return tiles.TileID{}, false
		}
		v[i] = n
	}
	tile := tiles.NewTileID(v[0], v[1], v[2])
	return tile, tile.Valid()
}

// Pack writes the tile files found by TreeTiles into db in a single
// transaction. onTile, if not nil, is called after each tile is written.
func (db *MBtilesWriter) Pack(ctx context.Context, found map[tiles.TileID]string, onTile func(tiles.TileID)) (count int, err error) {
	con, err := db.GetConnection()
	if err != nil {
		return 0, err
	}
	defer db.CloseConnection(con)

	defer sqlitex.Save(con)(&err)

	for tile, path := range found {
		if err = ctx.Err(); err != nil {
			return count, err
		}
		data, e := os.ReadFile(path)
		if e != nil {
			err = e
			return count, err
		}
		if err = WriteTile(con, tile, data); err != nil {
			return count, err
		}
		count++
		if onTile != nil {
			onTile(tile)
		}
	}

	return count, nil
}
