package spatial

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTileExtentCoversWholeWorldAtZoomZero(t *testing.T) {
	ext := tileExtent(0, 0, 0)
	assert.InDelta(t, -earthCircumference/2, ext[0], 1e-6)
	assert.InDelta(t, -earthCircumference/2, ext[1], 1e-6)
	assert.InDelta(t, earthCircumference/2, ext[2], 1e-6)
	assert.InDelta(t, earthCircumference/2, ext[3], 1e-6)
}

func TestTileExtentQuadrantsAtZoomOne(t *testing.T) {
	nw := tileExtent(1, 0, 0)
	se := tileExtent(1, 1, 1)

	assert.InDelta(t, 0, nw[2], 1e-6, "NW tile's east edge should meet the origin")
	assert.InDelta(t, 0, nw[1], 1e-6, "NW tile's south edge should meet the origin")
	assert.InDelta(t, 0, se[0], 1e-6, "SE tile's west edge should meet the origin")
	assert.InDelta(t, 0, se[3], 1e-6, "SE tile's north edge should meet the origin")
}

func TestValidTile(t *testing.T) {
	assert.True(t, validTile(0, 0, 0))
	assert.True(t, validTile(3, 7, 7))
	assert.False(t, validTile(3, 8, 0))
	assert.False(t, validTile(-1, 0, 0))
	assert.False(t, validTile(3, -1, 0))
}
