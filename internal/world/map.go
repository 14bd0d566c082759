package world

import (
	"fmt"
	"iter"
)

// Map holds a generated hexagonal region in triangular storage: 2R+1 rows
// whose widths grow from R+1 to 2R+1 and shrink back. Row i, column j holds
// the hex at axial (j + max(0, R-i), i). The map centre is axial (R, R).
type Map struct {
	Radius int     `json:"radius"`
	Hexes  [][]Hex `json:"hexes"`
}

// NewMap allocates zeroed rows for a map of the given radius.
func NewMap(radius int) *Map {
	if radius < 0 {
		panic(fmt.Sprintf("world: negative map radius %d", radius))
	}
	rows := make([][]Hex, 2*radius+1)
	for i := range rows {
		rows[i] = make([]Hex, RowWidth(i, radius))
	}
	return &Map{Radius: radius, Hexes: rows}
}

// RowWidth returns the number of hexes in row i of a map with the given radius.
func RowWidth(row, radius int) int {
	return 2*radius + 1 - abs(radius-row)
}

// HexCountForRadius returns 1 + 3R(R+1), the number of hexes within distance R.
func HexCountForRadius(radius int) int {
	return 1 + 3*radius*(radius+1)
}

// Center returns the cube coordinate of the map centre.
func (m *Map) Center() CubeCoord {
	return CenterFor(m.Radius)
}

// CenterFor returns the centre cube coordinate of a map with the given radius.
func CenterFor(radius int) CubeCoord {
	return AxialCoord{Q: radius, R: radius}.ToCube()
}

// InBounds reports whether the coordinate is within the map radius.
func (m *Map) InBounds(c CubeCoord) bool {
	return Distance(c, m.Center()) <= m.Radius
}

// Get returns the hex at the given coordinate, or false if out of bounds.
func (m *Map) Get(c CubeCoord) (Hex, bool) {
	if !m.InBounds(c) {
		return Hex{}, false
	}
	row, col := ToRowCol(c.ToAxial(), m.Radius)
	return m.Hexes[row][col], true
}

// At returns the hex stored at a row and column.
func (m *Map) At(row, col int) Hex {
	return m.Hexes[row][col]
}

// All yields every hex in triangular order (row by row) with its coordinate.
func (m *Map) All() iter.Seq2[CubeCoord, Hex] {
	return func(yield func(CubeCoord, Hex) bool) {
		for row, hexes := range m.Hexes {
			for col, h := range hexes {
				if !yield(FromRowCol(row, col, m.Radius).ToCube(), h) {
					return
				}
			}
		}
	}
}

// HexCount returns the total number of hexes in the map.
func (m *Map) HexCount() int {
	n := 0
	for _, row := range m.Hexes {
		n += len(row)
	}
	return n
}

// HeightRange returns the lowest and highest hex heights.
func (m *Map) HeightRange() (lo, hi float32) {
	first := true
	for _, row := range m.Hexes {
		for _, h := range row {
			if first {
				lo, hi = h.Height, h.Height
				first = false
				continue
			}
			lo = min(lo, h.Height)
			hi = max(hi, h.Height)
		}
	}
	return lo, hi
}

// String returns a summary of the map.
func (m *Map) String() string {
	return fmt.Sprintf("Map(radius=%d, hexes=%d)", m.Radius, m.HexCount())
}
