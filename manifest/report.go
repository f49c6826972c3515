package manifest

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
)

// ZoomStats aggregates the entries of one region and zoom level
type ZoomStats struct {
	Region     string
	Zoom       int
	Total      int
	ByStatus   map[string]int
	Empty      int
	Bytes      int64
	DurationMs float64
}

// Summarize groups entries by region and zoom, ordered by both
func Summarize(entries []Entry) []*ZoomStats {
	type key struct {
		region string
		zoom   int
	}
	groups := make(map[key]*ZoomStats)
	for _, e := range entries {
		k := key{e.Region, e.Tile.Zoom}
		s, ok := groups[k]
		if !ok {
			s = &ZoomStats{Region: e.Region, Zoom: e.Tile.Zoom, ByStatus: make(map[string]int)}
			groups[k] = s
		}
		s.Total++
		s.ByStatus[e.Status]++
		if e.Empty {
			s.Empty++
		} else {
			s.Bytes += e.Bytes
		}
		s.DurationMs += e.DurationMs
	}

	out := make([]*ZoomStats, 0, len(groups))
	for _, s := range groups {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Region != out[j].Region {
			return out[i].Region < out[j].Region
		}
		return out[i].Zoom < out[j].Zoom
	})
	return out
}

// Failures returns the entries that failed to render
func Failures(entries []Entry) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.Status == "failed" {
			out = append(out, e)
		}
	}
	return out
}

// WriteReport writes a table of per zoom statistics to w
func WriteReport(w io.Writer, entries []Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "region\tzoom\ttiles\trendered\texisting\tempty\tfailed\tcanceled\tbytes\tms/tile\t")
	for _, s := range Summarize(entries) {
		avg := 0.0
		if s.Total > 0 {
			avg = s.DurationMs / float64(s.Total)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%.1f\t\n",
			s.Region, s.Zoom, s.Total,
			s.ByStatus["rendered"], s.ByStatus["exists"], s.Empty,
			s.ByStatus["failed"], s.ByStatus["canceled"], s.Bytes, avg)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, e := range Failures(entries) {
		if _, err := fmt.Fprintf(w, "failed %s %v: %s\n", e.Region, e.Tile, e.Error); err != nil {
			return err
		}
	}
	return nil
}
