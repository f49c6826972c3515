package tiles

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Bounds is west, south, east, north in degrees.
//
// Upstream region lists contain boxes with swapped corners, so nothing here
// assumes west < east or south < north; use Normalize when ordered values are
// needed.
type Bounds [4]float64

// Normalize returns the box with min/max derived per axis
func (b Bounds) Normalize() Bounds {
	return Bounds{
		math.Min(b[0], b[2]),
		math.Min(b[1], b[3]),
		math.Max(b[0], b[2]),
		math.Max(b[1], b[3]),
	}
}

// Center returns the midpoint of the box
func (b Bounds) Center() (float64, float64) {
	n := b.Normalize()
	return (n[0] + n[2]) / 2.0, (n[1] + n[3]) / 2.0
}

func (b Bounds) String() string {
	return fmt.Sprintf("%.5f,%.5f,%.5f,%.5f", b[0], b[1], b[2], b[3])
}

// ParseBounds parses "west,south,east,north"
func ParseBounds(s string) (Bounds, error) {
	var b Bounds
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return b, fmt.Errorf("bounds must have 4 comma separated values, got %q", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return b, fmt.Errorf("invalid bounds value %q: %w", p, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return b, fmt.Errorf("invalid bounds value %q", p)
		}
		b[i] = v
	}
	return b, nil
}
