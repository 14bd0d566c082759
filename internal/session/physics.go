package session

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/talgya/hexterrain/internal/wire"
)

// Physics constants for the client world.
const (
	ColliderMargin  float32 = 0.01
	StandardGravity float32 = 9.80665 // m/s²
	ControlForce    float32 = 20.0
	SpawnHeight     float32 = 4.0
	PrismDepth      float32 = 12.0 // hex columns extend this far below their top face
)

// Gravity is the world acceleration, y up.
var Gravity = mgl32.Vec3{0, -StandardGravity, 0}

const sqrt3On2 = float32(0.8660254037844386)

// HexPrismVerts is a unit hexagonal column in model space: the top face at
// z=0 (centre first, then six corners) and the bottom ring at z=-PrismDepth.
// Colliders rotate it so that z maps to world y.
var HexPrismVerts = []mgl32.Vec3{
	{0, 0, 0},
	{1, 0, 0}, {0.5, sqrt3On2, 0}, {-0.5, sqrt3On2, 0},
	{-1, 0, 0}, {-0.5, -sqrt3On2, 0}, {0.5, -sqrt3On2, 0},
	{1, 0, -PrismDepth}, {0.5, sqrt3On2, -PrismDepth}, {-0.5, sqrt3On2, -PrismDepth},
	{-1, 0, -PrismDepth}, {-0.5, -sqrt3On2, -PrismDepth}, {0.5, -sqrt3On2, -PrismDepth},
}

// HexPrismIndices triangulates HexPrismVerts: six top triangles, then two per side.
var HexPrismIndices = []uint16{
	0, 1, 2,
	0, 2, 3,
	0, 3, 4,
	0, 4, 5,
	0, 5, 6,
	0, 6, 1,

	1, 7, 2,
	2, 7, 8,
	2, 8, 3,
	3, 8, 9,
	3, 9, 4,
	4, 9, 10,
	4, 10, 5,
	5, 10, 11,
	5, 11, 6,
	6, 11, 12,
	6, 12, 1,
	1, 12, 7,
}

// Collider is a static hex column placed in the world.
type Collider struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Margin   float32
}

// Transform returns the model matrix placing HexPrismVerts in the world.
func (c Collider) Transform() mgl32.Mat4 {
	return mgl32.Translate3D(c.Position.X(), c.Position.Y(), c.Position.Z()).Mul4(c.Rotation.Mat4())
}

// columnRotation turns the prism's z axis into world y.
var columnRotation = mgl32.QuatRotate(-math.Pi/2, mgl32.Vec3{1, 0, 0})

// Colliders builds one column per hex in triangular order, each with its top
// face at the hex height.
func Colliders(m *wire.IndexedMap) []Collider {
	out := make([]Collider, 0, m.HexCount())
	for _, cell := range m.All() {
		out = append(out, Collider{
			Position: cell.World(),
			Rotation: columnRotation,
			Margin:   ColliderMargin,
		})
	}
	return out
}

// SpawnPoint is where the player starts: above the map centre at SpawnHeight.
func SpawnPoint(m *wire.IndexedMap) (mgl32.Vec3, bool) {
	cell, ok := m.IndexByCube(m.Center())
	if !ok {
		return mgl32.Vec3{}, false
	}
	return mgl32.Vec3{cell.Pos.X(), SpawnHeight, -cell.Pos.Y()}, true
}
