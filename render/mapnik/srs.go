package mapnik

import (
	"fmt"
	"strings"

	"github.com/brendan-ward/rastertiler/render"
)

// Geographic passes longitude and latitude through unchanged
type Geographic struct{}

func (Geographic) Forward(lon, lat float64) (float64, float64) {
	return lon, lat
}

// projectionForSRS supports the two SRS a tile style realistically uses
func projectionForSRS(srs string) (render.Projection, error) {
	s := strings.ToLower(srs)
	switch {
	case strings.Contains(s, "epsg:3857"), strings.Contains(s, "epsg:900913"), strings.Contains(s, "+proj=merc"):
		return render.WebMercator{}, nil
	case strings.Contains(s, "epsg:4326"), strings.Contains(s, "+proj=longlat"):
		return Geographic{}, nil
	}
	return nil, fmt.Errorf("unsupported map srs %q", srs)
}
