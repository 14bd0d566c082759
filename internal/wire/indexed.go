package wire

import (
	"iter"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/talgya/hexterrain/internal/world"
)

// Cell is a hex together with its planar position.
type Cell struct {
	Hex world.Hex
	Pos mgl32.Vec2
}

// World returns the cell's 3D position with y up.
func (c Cell) World() mgl32.Vec3 {
	return world.WorldPosition(c.Pos, c.Hex.Height)
}

// IndexedMap is the render/physics form of a map: the triangular rows with
// precomputed positions, addressable by cube coordinate. It is read-only once
// built; a new map load builds a new IndexedMap.
type IndexedMap struct {
	Radius       int
	Cells        [][]Cell
	LightSources []LightSource
}

// EmptyMap returns the map a client shows before the first load.
func EmptyMap() *IndexedMap {
	return &IndexedMap{}
}

// Reshape computes the position of every hex of d and indexes it.
func Reshape(d MapData) *IndexedMap {
	cells := make([][]Cell, len(d.Hexes))
	for row, hexes := range d.Hexes {
		out := make([]Cell, len(hexes))
		for col, h := range hexes {
			a := world.FromRowCol(row, col, d.Radius)
			out[col] = Cell{Hex: h, Pos: world.AxialToCartesian(a)}
		}
		cells[row] = out
	}
	return &IndexedMap{
		Radius:       d.Radius,
		Cells:        cells,
		LightSources: d.LightSources,
	}
}

// Center returns the cube coordinate of the map centre.
func (m *IndexedMap) Center() world.CubeCoord {
	return world.CenterFor(m.Radius)
}

// Empty reports whether the map holds no hexes.
func (m *IndexedMap) Empty() bool {
	return len(m.Cells) == 0
}

// IndexByCube returns the cell at c. Coordinates outside the populated
// region are an ordinary miss.
func (m *IndexedMap) IndexByCube(c world.CubeCoord) (Cell, bool) {
	if c.X+c.Y+c.Z != 0 {
		return Cell{}, false
	}
	row, col := world.ToRowCol(c.ToAxial(), m.Radius)
	if row < 0 || row >= len(m.Cells) || col < 0 || col >= len(m.Cells[row]) {
		return Cell{}, false
	}
	return m.Cells[row][col], true
}

// All yields every cell in triangular order, the order colliders are built in.
func (m *IndexedMap) All() iter.Seq2[world.CubeCoord, Cell] {
	return func(yield func(world.CubeCoord, Cell) bool) {
		for row, cells := range m.Cells {
			for col, cell := range cells {
				if !yield(world.FromRowCol(row, col, m.Radius).ToCube(), cell) {
					return
				}
			}
		}
	}
}

// Radial yields the cells within maxRing of center, nearest rings first,
// skipping coordinates that fall outside the map.
func (m *IndexedMap) Radial(center world.CubeCoord, maxRing int) iter.Seq2[world.CubeCoord, Cell] {
	return func(yield func(world.CubeCoord, Cell) bool) {
		for c := range world.Spiral(center, maxRing) {
			cell, ok := m.IndexByCube(c)
			if !ok {
				continue
			}
			if !yield(c, cell) {
				return
			}
		}
	}
}

// HexCount returns the number of cells.
func (m *IndexedMap) HexCount() int {
	n := 0
	for _, row := range m.Cells {
		n += len(row)
	}
	return n
}
