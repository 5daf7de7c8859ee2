package ingest

import (
	"testing"

	shp "github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cwSquare returns the points of a clockwise square, closed.
func cwSquare(minX, minY, side float64) []shp.Point {
	return []shp.Point{
		{X: minX, Y: minY},
		{X: minX, Y: minY + side},
		{X: minX + side, Y: minY + side},
		{X: minX + side, Y: minY},
		{X: minX, Y: minY},
	}
}

// ccwSquare returns the points of a counter-clockwise square, closed.
func ccwSquare(minX, minY, side float64) []shp.Point {
	return []shp.Point{
		{X: minX, Y: minY},
		{X: minX + side, Y: minY},
		{X: minX + side, Y: minY + side},
		{X: minX, Y: minY + side},
		{X: minX, Y: minY},
	}
}

func shpPolygon(parts ...[]shp.Point) *shp.Polygon {
	p := &shp.Polygon{}
	for _, part := range parts {
		p.Parts = append(p.Parts, int32(len(p.Points)))
		p.Points = append(p.Points, part...)
	}
	p.NumParts = int32(len(p.Parts))
	p.NumPoints = int32(len(p.Points))
	return p
}

func TestMultiPolygonFromParts(t *testing.T) {
	t.Run("single shell", func(t *testing.T) {
		mp := multiPolygonFromParts(shpPolygon(cwSquare(0, 0, 10)))
		require.Len(t, mp, 1)
		require.Len(t, mp[0], 1)
		assert.Len(t, mp[0][0], 5)
	})

	t.Run("shell with hole", func(t *testing.T) {
		mp := multiPolygonFromParts(shpPolygon(cwSquare(0, 0, 10), ccwSquare(4, 4, 2)))
		require.Len(t, mp, 1)
		require.Len(t, mp[0], 2, "hole attached to containing shell")
	})

	t.Run("hole attaches to the shell containing it", func(t *testing.T) {
		mp := multiPolygonFromParts(shpPolygon(
			cwSquare(0, 0, 10),
			cwSquare(100, 100, 10),
			ccwSquare(104, 104, 2),
		))
		require.Len(t, mp, 2)
		assert.Len(t, mp[0], 1)
		assert.Len(t, mp[1], 2)
	})

	t.Run("reversed winding layer keeps every ring as shell", func(t *testing.T) {
		mp := multiPolygonFromParts(shpPolygon(ccwSquare(0, 0, 10), ccwSquare(100, 100, 10)))
		require.Len(t, mp, 2)
	})

	t.Run("degenerate part is dropped", func(t *testing.T) {
		line := []shp.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 0}}
		mp := multiPolygonFromParts(shpPolygon(cwSquare(0, 0, 10), line))
		require.Len(t, mp, 1)
	})

	t.Run("no usable rings", func(t *testing.T) {
		mp := multiPolygonFromParts(shpPolygon([]shp.Point{{X: 0, Y: 0}}))
		assert.Empty(t, mp)
	})
}
