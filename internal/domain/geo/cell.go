package geo

import (
	"fmt"
	"math"
)

// CellSizeDegrees is the side length of a grid cell. At ~0.05 degrees a cell
// is roughly 5.5km tall, which comfortably covers the largest trigger radius
// (5000m) with a one-cell neighborhood scan.
const CellSizeDegrees = 0.05

// Cell identifies a fixed grid bucket on the lat/lng plane.
type Cell struct {
	LatIdx int
	LngIdx int
}

// CellOf returns the grid cell containing p.
func CellOf(p Point) Cell {
	return Cell{
		LatIdx: int(math.Floor(p.Latitude / CellSizeDegrees)),
		LngIdx: int(math.Floor(p.Longitude / CellSizeDegrees)),
	}
}

// Key renders the cell as an opaque channel-key fragment, e.g. "130:67".
func (c Cell) Key() string {
	return fmt.Sprintf("%d:%d", c.LatIdx, c.LngIdx)
}

// Neighborhood returns the cells whose contents can lie within radiusMeters of
// a point inside c: the center cell plus enough rings to cover the radius.
func (c Cell) Neighborhood(radiusMeters float64) []Cell {
	// cell height is constant in latitude
	cellMeters := CellSizeDegrees * (math.Pi / 180) * EarthRadiusMeters
	latRings := int(math.Ceil(radiusMeters/cellMeters)) + 1

	// longitude cells narrow by cos(lat), so the same radius spans more of
	// them; size off the widest-latitude edge of the cell and wrap fully
	// where the pole collapses longitude
	edgeDeg := math.Max(math.Abs(float64(c.LatIdx)), math.Abs(float64(c.LatIdx+1))) * CellSizeDegrees
	maxLngRings := int(180 / CellSizeDegrees)
	lngRings := maxLngRings
	if cosLat := math.Cos(edgeDeg * math.Pi / 180); cosLat > 1e-3 {
		lngRings = int(math.Ceil(radiusMeters/(cellMeters*cosLat))) + 1
		if lngRings > maxLngRings {
			lngRings = maxLngRings
		}
	}

	cells := make([]Cell, 0, (2*latRings+1)*(2*lngRings+1))
	for di := -latRings; di <= latRings; di++ {
		for dj := -lngRings; dj <= lngRings; dj++ {
			cells = append(cells, Cell{LatIdx: c.LatIdx + di, LngIdx: c.LngIdx + dj})
		}
	}
	return cells
}
