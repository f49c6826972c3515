package tiles

import (
	"math"
	"testing"
)

func Test_GeoToPixel(t *testing.T) {
	p := NewProjector(19)

	tests := []struct {
		zoom int
		lon  float64
		lat  float64
		px   float64
		py   float64
	}{
		{zoom: 0, lon: 0, lat: 0, px: 128, py: 128},
		{zoom: 0, lon: -180, lat: MaxLatitude, px: 0, py: 0},
		{zoom: 0, lon: 180, lat: -MaxLatitude, px: 256, py: 256},
		{zoom: 1, lon: 0, lat: 0, px: 256, py: 256},
		{zoom: 1, lon: 90, lat: 0, px: 384, py: 256},
		{zoom: 2, lon: -106.87, lat: 41.0, px: 208, py: 384},
		{zoom: 2, lon: -102.04, lat: 36.99, px: 222, py: 399},
		{zoom: 18, lon: 0, lat: 0, px: 33554432, py: 33554432},
	}

	for _, tc := range tests {
		px, py := p.GeoToPixel(tc.lon, tc.lat, tc.zoom)
		if px != tc.px || py != tc.py {
			t.Errorf("zoom: %v (%f, %f) => (%v, %v), expected (%v, %v)\n", tc.zoom, tc.lon, tc.lat, px, py, tc.px, tc.py)
		}
	}
}

func Test_GeoToPixel_Poles(t *testing.T) {
	p := NewProjector(1)

	// sin(lat) is clamped, so poles project to finite pixels beyond the plane
	_, north := p.GeoToPixel(0, 90, 0)
	_, south := p.GeoToPixel(0, -90, 0)
	if math.IsInf(north, 0) || math.IsNaN(north) || north >= 0 {
		t.Errorf("north pole projected to %v, expected finite value < 0\n", north)
	}
	if math.IsInf(south, 0) || math.IsNaN(south) || south <= 256 {
		t.Errorf("south pole projected to %v, expected finite value > 256\n", south)
	}
	if north != 256-south {
		t.Errorf("poles should be symmetric: %v, %v\n", north, south)
	}
}

func Test_PixelToGeo(t *testing.T) {
	p := NewProjector(11)

	tests := []struct {
		zoom int
		px   float64
		py   float64
		lon  float64
		lat  float64
	}{
		{zoom: 0, px: 128, py: 128, lon: 0, lat: 0},
		{zoom: 0, px: 0, py: 0, lon: -180, lat: MaxLatitude},
		{zoom: 0, px: 256, py: 256, lon: 180, lat: -MaxLatitude},
		{zoom: 1, px: 256, py: 0, lon: 0, lat: MaxLatitude},
		{zoom: 10, px: 20 * 256, py: 30 * 256, lon: -172.968750, lat: 84.052561},
	}

	for _, tc := range tests {
		lon, lat := p.PixelToGeo(tc.px, tc.py, tc.zoom)
		if !closeEnough(lon, tc.lon, 1e-6) || !closeEnough(lat, tc.lat, 1e-6) {
			t.Errorf("zoom: %v (%v, %v) => (%f, %f), expected (%f, %f)\n", tc.zoom, tc.px, tc.py, lon, lat, tc.lon, tc.lat)
		}
	}
}

func Test_RoundTrip(t *testing.T) {
	p := NewProjector(19)

	for zoom := 0; zoom < p.Levels(); zoom++ {
		degPerPixel := 360.0 / p.Width(zoom)

		for lon := -180.0; lon <= 180.0; lon += 7.3 {
			for lat := -85.0; lat <= 85.0; lat += 4.9 {
				px, py := p.GeoToPixel(lon, lat, zoom)
				lon2, lat2 := p.PixelToGeo(px, py, zoom)

				if math.Abs(lon2-lon) > degPerPixel {
					t.Fatalf("zoom: %v (%f, %f) longitude %f off by more than one pixel\n", zoom, lon, lat, lon2)
				}

				// latitude spacing of a pixel varies, so bracket by the neighboring rows
				_, upper := p.PixelToGeo(px, py-1, zoom)
				_, lower := p.PixelToGeo(px, py+1, zoom)
				if lat2 > upper || lat2 < lower || lat > upper || lat < lower {
					t.Fatalf("zoom: %v (%f, %f) latitude %f outside one pixel [%f, %f]\n", zoom, lon, lat, lat2, lower, upper)
				}

				px2, py2 := p.GeoToPixel(lon2, lat2, zoom)
				if px2 != px || py2 != py {
					t.Fatalf("zoom: %v (%v, %v) reprojected to (%v, %v)\n", zoom, px, py, px2, py2)
				}
			}
		}
	}
}

func Test_ProjectorOutOfRange(t *testing.T) {
	p := NewProjector(4)

	for _, zoom := range []int{-1, 4, 20} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("zoom %v should panic for a projector with %v levels\n", zoom, p.Levels())
				}
			}()
			p.GeoToPixel(0, 0, zoom)
		}()
	}
}

func Test_Width(t *testing.T) {
	p := NewProjector(5)
	for zoom := 0; zoom < 5; zoom++ {
		if w := p.Width(zoom); w != float64(int(TileSize)<<zoom) {
			t.Errorf("zoom: %v | width %v\n", zoom, w)
		}
	}
}
