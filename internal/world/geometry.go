package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// HexSize is the centre-to-corner distance of a rendered hex.
const HexSize float32 = 1.0

var sqrt3 = float32(math.Sqrt(3))

// AxialToCartesian projects a flat-top hex onto the plane:
// x = 3/2·q, y = √3/2·q + √3·r, scaled by HexSize.
func AxialToCartesian(a AxialCoord) mgl32.Vec2 {
	q, r := float32(a.Q), float32(a.R)
	return mgl32.Vec2{
		HexSize * 1.5 * q,
		HexSize * (sqrt3/2*q + sqrt3*r),
	}
}

// WorldPosition lifts a planar hex position into 3D with y up: the plane's y
// axis becomes -z, as the renderer and the physics world expect.
func WorldPosition(p mgl32.Vec2, height float32) mgl32.Vec3 {
	return mgl32.Vec3{p.X(), height, -p.Y()}
}
