package mbtiles

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"

	"github.com/brendan-ward/rastertiler/tiles"
)

type MBtilesWriter struct {
	pool *sqlitex.Pool
}

// Metadata describes the tileset in the metadata table
type Metadata struct {
	Name        string
	Description string
	MinZoom     int
	MaxZoom     int
	Bounds      tiles.Bounds
}

const init_sql = `
CREATE TABLE metadata (name text, value text);
CREATE TABLE tiles (zoom_level integer, tile_column integer, tile_row integer, tile_data blob);
CREATE UNIQUE INDEX name on metadata (name);
CREATE UNIQUE INDEX tile_index on tiles (zoom_level, tile_column, tile_row);
`

func NewMBtilesWriter(path string, poolsize int) (*MBtilesWriter, error) {
	ext := filepath.Ext(path)
	if ext != ".mbtiles" {
		return nil, fmt.Errorf("path must end in .mbtiles")
	}
	if poolsize < 1 {
		poolsize = 1
	}

	// always overwrite
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("could not replace %s: %w", path, err)
		}
	}

	// one write per connection at a time; connections are not shared between goroutines
	pool, err := sqlitex.Open(path, sqlite.SQLITE_OPEN_CREATE|sqlite.SQLITE_OPEN_READWRITE|sqlite.SQLITE_OPEN_NOMUTEX|sqlite.SQLITE_OPEN_WAL, poolsize)
	if err != nil {
		return nil, err
	}

	db := &MBtilesWriter{
		pool: pool,
	}

	con, err := db.GetConnection()
	if err != nil {
		pool.Close()
		return nil, err
	}
	defer db.CloseConnection(con)

	// create tables
	err = sqlitex.ExecScript(con, init_sql)
	if err != nil {
		return nil, fmt.Errorf("could not initialize database: %w", err)
	}

	return db, nil
}

func (db *MBtilesWriter) Close() error {
	if db.pool == nil {
		return nil
	}

	// make sure that anything pending is written
	con, err := db.GetConnection()
	if err != nil {
		return err
	}
	err = sqlitex.Exec(con, `PRAGMA wal_checkpoint;`, nil)
	db.CloseConnection(con)
	if err != nil {
		return err
	}

	err = db.pool.Close()
	db.pool = nil
	return err
}

// GetConnection gets a sqlite.Conn from an open connection pool.
// CloseConnection(con) must be called to release the connection.
func (db *MBtilesWriter) GetConnection() (*sqlite.Conn, error) {
	if db.pool == nil {
		return nil, fmt.Errorf("cannot use closed mbtiles database")
	}
	con := db.pool.Get(context.Background())
	if con == nil {
		return nil, fmt.Errorf("connection could not be opened")
	}
	return con, nil
}

// CloseConnection closes an open sqlite.Conn and returns it to the pool.
func (db *MBtilesWriter) CloseConnection(con *sqlite.Conn) {
	if con != nil {
		db.pool.Put(con)
	}
}

func writeMetadataItem(con *sqlite.Conn, key string, value interface{}) error {
	return sqlitex.Exec(con, "INSERT OR REPLACE INTO metadata (name,value) VALUES (?, ?)", nil, key, value)
}

func (db *MBtilesWriter) WriteMetadata(meta Metadata) (err error) {
	con, e := db.GetConnection()
	if e != nil {
		return e
	}
	defer db.CloseConnection(con)

	// create savepoint
	defer sqlitex.Save(con)(&err)

	lon, lat := meta.Bounds.Center()
	b := meta.Bounds.Normalize()

	items := []struct {
		key   string
		value interface{}
	}{
		{"name", meta.Name},
		{"description", meta.Description},
		{"minzoom", meta.MinZoom},
		{"maxzoom", meta.MaxZoom},
		{"center", fmt.Sprintf("%.5f,%.5f,%v", lon, lat, meta.MinZoom)},
		{"bounds", b.String()},
		{"type", "baselayer"},
		{"format", "png"},
		{"version", 1},
	}
	for _, item := range items {
		if err = writeMetadataItem(con, item.key, item.value); err != nil {
			return err
		}
	}

	return nil
}

func (db *MBtilesWriter) WriteTile(tile tiles.TileID, data []byte) error {
	con, err := db.GetConnection()
	if err != nil {
		return err
	}
	defer db.CloseConnection(con)

	return WriteTile(con, tile, data)
}

// WriteTile writes the PNG data of an XYZ tile to the open connection
func WriteTile(con *sqlite.Conn, tile tiles.TileID, data []byte) error {
	// mbtiles stores TMS rows
	row := tile.FlipY()

	err := sqlitex.Exec(con, "INSERT OR REPLACE INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)", nil, row.Zoom, row.X, row.Y, data)
	if err != nil {
		return fmt.Errorf("could not write tile %v to mbtiles: %w", tile, err)
	}

	return nil
}

// ReadTile returns the data of an XYZ tile, or nil if it is not present
func ReadTile(con *sqlite.Conn, tile tiles.TileID) ([]byte, error) {
	row := tile.FlipY()

	var data []byte
	err := sqlitex.Exec(con, "SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?", func(stmt *sqlite.Stmt) error {
		data = make([]byte, stmt.ColumnLen(0))
		stmt.ColumnBytes(0, data)
		return nil
	}, row.Zoom, row.X, row.Y)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// ReadMetadata returns all metadata items
func ReadMetadata(con *sqlite.Conn) (map[string]string, error) {
	out := make(map[string]string)
	err := sqlitex.Exec(con, "SELECT name, value FROM metadata", func(stmt *sqlite.Stmt) error {
		out[stmt.ColumnText(0)] = stmt.ColumnText(1)
		return nil
	})
	return out, err
}

// CountTiles returns the number of tiles stored
func CountTiles(con *sqlite.Conn) (int, error) {
	stmt := con.Prep("SELECT count(*) FROM tiles")
	return sqlitex.ResultInt(stmt)
}
