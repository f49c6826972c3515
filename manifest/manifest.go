// Package manifest records the outcome of every tile job of a run in an
// Arrow IPC (Feather v2) file.
package manifest

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/apache/arrow/go/arrow"
	"github.com/apache/arrow/go/arrow/array"
	"github.com/apache/arrow/go/arrow/ipc"
	"github.com/apache/arrow/go/arrow/memory"

	"github.com/brendan-ward/rastertiler/pipeline"
	"github.com/brendan-ward/rastertiler/tiles"
)

var schema = arrow.NewSchema([]arrow.Field{
	{Name: "region", Type: arrow.BinaryTypes.String},
	{Name: "zoom", Type: arrow.PrimitiveTypes.Int32},
	{Name: "x", Type: arrow.PrimitiveTypes.Int32},
	{Name: "y", Type: arrow.PrimitiveTypes.Int32},
	{Name: "status", Type: arrow.BinaryTypes.String},
	{Name: "empty", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "bytes", Type: arrow.PrimitiveTypes.Int64},
	{Name: "duration_ms", Type: arrow.PrimitiveTypes.Float64},
	{Name: "error", Type: arrow.BinaryTypes.String, Nullable: true},
}, nil)

// Entry is one row of a manifest
type Entry struct {
	Region     string
	Tile       tiles.TileID
	Status     string
	Empty      bool
	Bytes      int64
	DurationMs float64
	Error      string
}

func entryFromResult(r pipeline.TileResult) Entry {
	e := Entry{
		Region:     r.Region,
		Tile:       r.Tile,
		Status:     r.Status.String(),
		Empty:      r.Empty,
		Bytes:      r.Size,
		DurationMs: float64(r.Duration.Microseconds()) / 1000.0,
	}
	if r.Err != nil {
		e.Error = r.Err.Error()
	}
	return e
}

// Recorder collects tile results from concurrent workers. Use Record as
// pipeline.Options.OnResult.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Record(result pipeline.TileResult) {
	e := entryFromResult(result)
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

// Len returns the number of results recorded so far
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Entries returns recorded entries ordered by region, zoom, x, y
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Region != b.Region {
			return a.Region < b.Region
		}
		if a.Tile.Zoom != b.Tile.Zoom {
			return a.Tile.Zoom < b.Tile.Zoom
		}
		if a.Tile.X != b.Tile.X {
			return a.Tile.X < b.Tile.X
		}
		return a.Tile.Y < b.Tile.Y
	})
	return out
}

// WriteFile writes all recorded entries to path as a single record batch
func (r *Recorder) WriteFile(path string) error {
	return Write(path, r.Entries())
}

// Write writes entries to a new Arrow IPC file at path
func Write(path string, entries []Entry) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	mem := memory.NewGoAllocator()
	w, err := ipc.NewFileWriter(f, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("could not create manifest writer: %w", err)
	}

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	for _, e := range entries {
		b.Field(0).(*array.StringBuilder).Append(e.Region)
		b.Field(1).(*array.Int32Builder).Append(int32(e.Tile.Zoom))
		b.Field(2).(*array.Int32Builder).Append(int32(e.Tile.X))
		b.Field(3).(*array.Int32Builder).Append(int32(e.Tile.Y))
		b.Field(4).(*array.StringBuilder).Append(e.Status)
		b.Field(5).(*array.BooleanBuilder).Append(e.Empty)
		b.Field(6).(*array.Int64Builder).Append(e.Bytes)
		b.Field(7).(*array.Float64Builder).Append(e.DurationMs)
		if e.Error == "" {
			b.Field(8).(*array.StringBuilder).AppendNull()
		} else {
			b.Field(8).(*array.StringBuilder).Append(e.Error)
		}
	}

	rec := b.NewRecord()
	defer rec.Release()

	if err := w.Write(rec); err != nil {
		w.Close()
		return fmt.Errorf("could not write manifest: %w", err)
	}
	return w.Close()
}

func isManifest(s *arrow.Schema) bool {
	if len(s.Fields()) != len(schema.Fields()) {
		return false
	}
	for i, f := range s.Fields() {
		expected := schema.Field(i)
		if f.Name != expected.Name || !arrow.TypeEqual(f.Type, expected.Type) {
			return false
		}
	}
	return true
}

// Read reads all entries from a manifest file
func Read(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := ipc.NewFileReader(f)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if !isManifest(r.Schema()) {
		return nil, fmt.Errorf("%s is not a tile manifest", path)
	}

	var entries []Entry
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.RecordAt(i)
		if err != nil {
			return nil, err
		}

		region := rec.Column(0).(*array.String)
		zoom := rec.Column(1).(*array.Int32)
		x := rec.Column(2).(*array.Int32)
		y := rec.Column(3).(*array.Int32)
		status := rec.Column(4).(*array.String)
		empty := rec.Column(5).(*array.Boolean)
		size := rec.Column(6).(*array.Int64)
		duration := rec.Column(7).(*array.Float64)
		errs := rec.Column(8).(*array.String)

		for j := 0; j < int(rec.NumRows()); j++ {
			e := Entry{
				Region:     region.Value(j),
				Tile:       tiles.NewTileID(int(zoom.Value(j)), int(x.Value(j)), int(y.Value(j))),
				Status:     status.Value(j),
				Empty:      empty.Value(j),
				Bytes:      size.Value(j),
				DurationMs: duration.Value(j),
			}
			if errs.IsValid(j) {
				e.Error = errs.Value(j)
			}
			entries = append(entries, e)
		}
	}

	return entries, nil
}
