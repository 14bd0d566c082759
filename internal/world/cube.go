package world

// CubeCoord is a hex position on the cube lattice. X+Y+Z == 0 holds for every
// coordinate produced by the operations in this file.
type CubeCoord struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// AxialCoord is the two-axis reduction of a cube coordinate: Q = X, R = Z.
type AxialCoord struct {
	Q int `json:"q"`
	R int `json:"r"`
}

// CubeDirections are the six unit steps in cyclic order. Ring iteration starts
// from direction 4 and walks 0..5, and the generator's parent lookup relies on
// that walk, so the order must not change.
var CubeDirections = [6]CubeCoord{
	{X: 1, Y: -1, Z: 0},
	{X: 1, Y: 0, Z: -1},
	{X: 0, Y: 1, Z: -1},
	{X: -1, Y: 1, Z: 0},
	{X: -1, Y: 0, Z: 1},
	{X: 0, Y: -1, Z: 1},
}

// RingStartDirection is the direction of the corner every ring starts from.
const RingStartDirection = 4

// Add returns the component-wise sum a+b.
func (c CubeCoord) Add(b CubeCoord) CubeCoord {
	return CubeCoord{X: c.X + b.X, Y: c.Y + b.Y, Z: c.Z + b.Z}
}

// Scale multiplies every component by k.
func (c CubeCoord) Scale(k int) CubeCoord {
	return CubeCoord{X: c.X * k, Y: c.Y * k, Z: c.Z * k}
}

// Direction returns the unit step for direction index 0..5.
func Direction(dir int) CubeCoord {
	return CubeDirections[dir]
}

// Neighbor returns the adjacent coordinate in the given direction.
func (c CubeCoord) Neighbor(dir int) CubeCoord {
	return c.Add(Direction(dir))
}

// Neighbors returns the six adjacent coordinates in direction order.
func (c CubeCoord) Neighbors() [6]CubeCoord {
	var result [6]CubeCoord
	for i, dir := range CubeDirections {
		result[i] = c.Add(dir)
	}
	return result
}

// ToAxial drops the Y component.
func (c CubeCoord) ToAxial() AxialCoord {
	return AxialCoord{Q: c.X, R: c.Z}
}

// ToCube restores the implicit Y component.
func (a AxialCoord) ToCube() CubeCoord {
	return CubeCoord{X: a.Q, Y: -(a.Q + a.R), Z: a.R}
}

// FromAxial is the free-function form of AxialCoord.ToCube.
func FromAxial(a AxialCoord) CubeCoord {
	return a.ToCube()
}

// ToRowCol maps an axial coordinate onto the triangular storage of a map with
// the given radius. The result is only meaningful for coordinates inside the
// map; callers bounds-check.
func ToRowCol(a AxialCoord, radius int) (row, col int) {
	return a.R, a.Q - max(0, radius-a.R)
}

// FromRowCol is the inverse of ToRowCol.
func FromRowCol(row, col, radius int) AxialCoord {
	return AxialCoord{Q: col + max(0, radius-row), R: row}
}

// Distance returns the hex distance between two cube coordinates.
func Distance(a, b CubeCoord) int {
	return max(abs(a.X-b.X), abs(a.Y-b.Y), abs(a.Z-b.Z))
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
