package pipeline

import (
	"errors"
	"os"
)

// CacheGate decides whether a tile needs rendering and removes empty output.
//
// Empty tiles are recognized by file size only: an engine writes a blank
// tile as the same byte sequence every time, so EmptySize must match the
// engine and encoder in use. EmptySize <= 0 disables scrubbing.
type CacheGate struct {
	EmptySize int64
}

// Exists returns true if a regular file is already at path
func (g *CacheGate) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Scrub checks the file at path and deletes it if it is an empty tile. The
// returned size is the size before deletion.
func (g *CacheGate) Scrub(path string) (size int64, empty bool, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, false, err
	}
	size = info.Size()
	if g.EmptySize <= 0 || size != g.EmptySize {
		return size, false, nil
	}

	// another run may have removed it already
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return size, true, err
	}
	return size, true, nil
}
