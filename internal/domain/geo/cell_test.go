package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCellOfAndKey(t *testing.T) {
	c := CellOf(Point{Latitude: 6.5244, Longitude: 3.3792})
	assert.Equal(t, Cell{LatIdx: 130, LngIdx: 67}, c)
	assert.Equal(t, "130:67", c.Key())

	// negative coordinates floor toward the next lower index
	c = CellOf(Point{Latitude: -0.01, Longitude: -0.01})
	assert.Equal(t, Cell{LatIdx: -1, LngIdx: -1}, c)
}

func TestNeighborhoodCoversRadius(t *testing.T) {
	center := CellOf(Point{Latitude: 6.5244, Longitude: 3.3792})

	// a 5km radius needs one ring of ~5.5km cells plus the safety ring
	cells := cellSet(center.Neighborhood(5000))
	assert.Contains(t, cells, center)
	assert.Contains(t, cells, Cell{LatIdx: center.LatIdx + 1, LngIdx: center.LngIdx + 1})
	assert.Contains(t, cells, Cell{LatIdx: center.LatIdx - 1, LngIdx: center.LngIdx - 1})

	// a tiny radius still returns at least the center and one ring
	small := center.Neighborhood(10)
	assert.GreaterOrEqual(t, len(small), 9)
}

func TestNeighborhoodWidensAtHighLatitude(t *testing.T) {
	// at 78N a longitude cell is only ~1.2km wide, so a 5km radius spans
	// several more columns than it does rows
	center := CellOf(Point{Latitude: 78.01, Longitude: 0.21})
	cells := cellSet(center.Neighborhood(5000))

	// (78.01, 0.001) is ~4.8km west of the center point
	assert.Contains(t, cells, CellOf(Point{Latitude: 78.01, Longitude: 0.001}))
	assert.Contains(t, cells, Cell{LatIdx: center.LatIdx, LngIdx: center.LngIdx - 4})
	assert.Contains(t, cells, Cell{LatIdx: center.LatIdx, LngIdx: center.LngIdx + 4})

	// near the pole the neighborhood wraps every longitude column
	polar := CellOf(Point{Latitude: 89.99, Longitude: 0})
	assert.Contains(t, cellSet(polar.Neighborhood(5000)), Cell{LatIdx: polar.LatIdx, LngIdx: polar.LngIdx + 3000})
}

// cellSet converts a cell slice into a set for containment checks.
func cellSet(cells []Cell) map[Cell]struct{} {
	set := make(map[Cell]struct{}, len(cells))
	for _, c := range cells {
		set[c] = struct{}{}
	}
	return set
}
