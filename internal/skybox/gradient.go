package skybox

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/talgya/hexterrain/internal/wire"
)

// Palette colours a generated sky.
type Palette struct {
	Zenith  color.RGBA
	Horizon color.RGBA
	Ground  color.RGBA
}

// DefaultPalette is a clear daytime sky.
var DefaultPalette = Palette{
	Zenith:  color.RGBA{R: 40, G: 90, B: 180, A: 255},
	Horizon: color.RGBA{R: 190, G: 215, B: 240, A: 255},
	Ground:  color.RGBA{R: 70, G: 65, B: 60, A: 255},
}

// Gradient renders a size×size PNG skybox: side faces fade from horizon to
// zenith, +y is the zenith and -y the ground.
func Gradient(size int, p Palette) (wire.Skybox, error) {
	if size <= 0 {
		return wire.Skybox{}, fmt.Errorf("skybox size %d", size)
	}
	var sky wire.Skybox
	for slot := range sky.Faces {
		img := image.NewRGBA(image.Rect(0, 0, size, size))
		for y := 0; y < size; y++ {
			var c color.RGBA
			switch wire.FaceNames[slot] {
			case "+y":
				c = p.Zenith
			case "-y":
				c = p.Ground
			default:
				// Row 0 is the top of the face.
				c = lerp(p.Zenith, p.Horizon, float32(y)/float32(max(size-1, 1)))
			}
			for x := 0; x < size; x++ {
				img.SetRGBA(x, y, c)
			}
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return wire.Skybox{}, fmt.Errorf("encode face %s: %w", wire.FaceNames[slot], err)
		}
		sky.Faces[slot] = wire.CompressedImage{Codec: wire.CodecPNG, Data: buf.Bytes()}
	}
	return sky, nil
}

func lerp(a, b color.RGBA, t float32) color.RGBA {
	mix := func(x, y uint8) uint8 {
		return uint8(float32(x) + (float32(y)-float32(x))*t + 0.5)
	}
	return color.RGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: mix(a.A, b.A)}
}
