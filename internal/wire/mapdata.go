// Package wire defines the map message exchanged between server and client,
// its binary codec, and the reshape of a decoded map into a cube-addressable
// form for rendering and physics.
package wire

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/talgya/hexterrain/internal/world"
)

// MapData is the serializable map: triangular hex rows plus the scene
// decorations the server attaches after generation.
type MapData struct {
	Radius       int           `json:"radius"`
	Hexes        [][]world.Hex `json:"hexes"`
	LightSources []LightSource `json:"light_sources"`
	Skybox       Skybox        `json:"-"`
}

// FromMap wraps a generated map for transmission.
func FromMap(m *world.Map, lights []LightSource, sky Skybox) MapData {
	return MapData{
		Radius:       m.Radius,
		Hexes:        m.Hexes,
		LightSources: lights,
		Skybox:       sky,
	}
}

// Map returns the hex rows as a world.Map sharing the same storage.
func (d MapData) Map() *world.Map {
	return &world.Map{Radius: d.Radius, Hexes: d.Hexes}
}

// HexCount returns the number of hexes carried.
func (d MapData) HexCount() int {
	n := 0
	for _, row := range d.Hexes {
		n += len(row)
	}
	return n
}

// checkShape verifies the rows match the triangular layout for the radius.
func (d MapData) checkShape() error {
	if want := 2*d.Radius + 1; len(d.Hexes) != want {
		return fmt.Errorf("%d rows for radius %d, want %d", len(d.Hexes), d.Radius, want)
	}
	for i, row := range d.Hexes {
		if want := world.RowWidth(i, d.Radius); len(row) != want {
			return fmt.Errorf("row %d has %d hexes, want %d", i, len(row), want)
		}
	}
	return nil
}

// LightKind tags a LightSource variant.
type LightKind uint32

// Light source variants, in wire tag order.
const (
	LightDirectional LightKind = iota
)

func (k LightKind) String() string {
	switch k {
	case LightDirectional:
		return "directional"
	default:
		return fmt.Sprintf("LightKind(%d)", uint32(k))
	}
}

// LightSource is a tagged light. Directional lights carry the direction the
// light travels in.
type LightSource struct {
	Kind   LightKind  `json:"kind"`
	Vector mgl32.Vec3 `json:"vector"`
}

// Directional returns a directional light along v.
func Directional(v mgl32.Vec3) LightSource {
	return LightSource{Kind: LightDirectional, Vector: v}
}

// Codec tags the compression of a skybox face.
type Codec uint32

// Skybox codecs, in wire tag order.
const (
	CodecNone Codec = iota
	CodecPNG
	CodecJPEG
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecPNG:
		return "png"
	case CodecJPEG:
		return "jpeg"
	default:
		return fmt.Sprintf("Codec(%d)", uint32(c))
	}
}

// CompressedImage is one skybox face: absent, or encoded image bytes.
type CompressedImage struct {
	Codec Codec
	Data  []byte
}

// Present reports whether the face carries image data.
func (c CompressedImage) Present() bool {
	return c.Codec != CodecNone
}

// SkyboxFaces is the number of cube-map faces.
const SkyboxFaces = 6

// FaceNames labels the skybox slots in cube-map order.
var FaceNames = [SkyboxFaces]string{"+x", "-x", "+y", "-y", "+z", "-z"}

// Skybox holds the six compressed faces of the background cube map.
type Skybox struct {
	Faces [SkyboxFaces]CompressedImage
}

// Size returns the total compressed size of all faces.
func (s Skybox) Size() int {
	n := 0
	for _, f := range s.Faces {
		n += len(f.Data)
	}
	return n
}
