package spatial

import (
	"math"

	"github.com/go-spatial/geom"
)

// earthCircumference is the circumference of the Web Mercator (EPSG:3857)
// projection of the earth, in meters, used to convert a z/x/y tile
// address into a bounding box for ST_AsMVTGeom's bounds argument.
const earthCircumference = 2 * math.Pi * 6378137.0

// tileExtent returns the web-mercator bounding box of tile z/x/y in
// EPSG:3857 meters: [minx, miny, maxx, maxy].
func tileExtent(z, x, y int) geom.Extent {
	tiles := math.Exp2(float64(z))
	tileSize := earthCircumference / tiles
	originShift := earthCircumference / 2

	minx := float64(x)*tileSize - originShift
	maxx := float64(x+1)*tileSize - originShift
	// Tile row 0 is the northernmost row: y grows downward on the tile
	// grid but upward in projected coordinates, so the row must be flipped.
	maxy := originShift - float64(y)*tileSize
	miny := originShift - float64(y+1)*tileSize

	return geom.Extent{minx, miny, maxx, maxy}
}

// validTile reports whether z/x/y is a well-formed tile address (x and y
// within the grid for zoom z).
func validTile(z, x, y int) bool {
	if z < 0 || z > 24 {
		return false
	}
	n := int(math.Exp2(float64(z)))
	return x >= 0 && x < n && y >= 0 && y < n
}
