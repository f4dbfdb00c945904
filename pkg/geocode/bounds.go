package geocode

import (
	"fmt"

	"github.com/twpayne/go-geom"
)

// jurisdictionBounds are lon/lat bounding boxes used to constrain searches.
// Boxes are generous: they exist to exclude other continents, not to draw
// exact borders.
var jurisdictionBounds = map[string]*geom.Bounds{
	"BC": geom.NewBounds(geom.XY).Set(-139.1, 48.2, -114.0, 60.0),
	"AB": geom.NewBounds(geom.XY).Set(-120.0, 48.9, -110.0, 60.0),
	"WA": geom.NewBounds(geom.XY).Set(-124.9, 45.5, -116.9, 49.1),
}

// Viewbox renders bounds in Nominatim order: left,top,right,bottom.
func Viewbox(b *geom.Bounds) string {
	return fmt.Sprintf("%g,%g,%g,%g", b.Min(0), b.Max(1), b.Max(0), b.Min(1))
}

// Centroid returns the box center as (lon, lat).
func Centroid(b *geom.Bounds) (lon, lat float64) {
	return (b.Min(0) + b.Max(0)) / 2, (b.Min(1) + b.Max(1)) / 2
}

// Contains reports whether the point lies inside the jurisdiction's box.
// Unknown jurisdictions contain nothing.
func Contains(jurisdiction string, lon, lat float64) bool {
	b, ok := jurisdictionBounds[jurisdiction]
	if !ok {
		return false
	}
	return b.OverlapsPoint(geom.XY, geom.Coord{lon, lat})
}
