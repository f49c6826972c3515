package tiles

import "math"

var RAD2DEG float64 = 180 / math.Pi
var DEG2RAD float64 = math.Pi / 180
var EARTH_RADIUS float64 = 6378137.0

// MaxLatitude is the latitude at which spherical Mercator becomes square
const MaxLatitude = 85.0511287798066

// GeoToMercator projects longitude, latitude (EPSG:4326) to spherical
// Mercator meters (EPSG:3857). Latitude is clamped to MaxLatitude.
func GeoToMercator(lon float64, lat float64) (float64, float64) {
	lat = math.Min(math.Max(lat, -MaxLatitude), MaxLatitude)
	x := lon * DEG2RAD * EARTH_RADIUS
	y := math.Log(math.Tan(math.Pi*0.25+lat*DEG2RAD*0.5)) * EARTH_RADIUS
	return x, y
}
