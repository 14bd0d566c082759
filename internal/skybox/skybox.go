// Package skybox loads the six background faces on the server and decodes
// them into pixel buffers on the client.
package skybox

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/talgya/hexterrain/internal/wire"
)

// ImageDecoder turns compressed face bytes into an image.
type ImageDecoder interface {
	Decode(r io.Reader) (image.Image, error)
}

// DecoderFunc adapts a decode function such as png.Decode.
type DecoderFunc func(io.Reader) (image.Image, error)

func (f DecoderFunc) Decode(r io.Reader) (image.Image, error) { return f(r) }

// Decoders maps a face codec to its decoder.
type Decoders map[wire.Codec]ImageDecoder

// DefaultDecoders returns the standard PNG and JPEG decoders.
func DefaultDecoders() Decoders {
	return Decoders{
		wire.CodecPNG:  DecoderFunc(png.Decode),
		wire.CodecJPEG: DecoderFunc(jpeg.Decode),
	}
}

// Skybox is a decoded cube map. Every face is Size×Size.
type Skybox struct {
	Size  int
	Faces [wire.SkyboxFaces]*image.RGBA
}

// Face returns the face for a cube-map name such as "+x".
func (s *Skybox) Face(name string) (*image.RGBA, bool) {
	for i, n := range wire.FaceNames {
		if n == name {
			return s.Faces[i], true
		}
	}
	return nil, false
}

// Decode decompresses all six faces. Every slot must hold image data.
func Decode(sky wire.Skybox, decoders Decoders) (*Skybox, error) {
	if decoders == nil {
		decoders = DefaultDecoders()
	}
	out := &Skybox{}
	for slot, face := range sky.Faces {
		if !face.Present() {
			return nil, wire.SlotError(wire.ErrMissingImageData, slot, face.Codec, "slot holds no image", nil)
		}
		dec, ok := decoders[face.Codec]
		if !ok {
			return nil, wire.SlotError(wire.ErrUnsupportedFormat, slot, face.Codec, "no decoder for codec", nil)
		}
		img, err := dec.Decode(bytes.NewReader(face.Data))
		if err != nil {
			return nil, wire.SlotError(classify(err), slot, face.Codec, "decoding face", err)
		}

		b := img.Bounds()
		if b.Dx() != b.Dy() || b.Dx() == 0 {
			return nil, wire.SlotError(wire.ErrUnsupportedFormat, slot, face.Codec,
				fmt.Sprintf("face is %dx%d, want a non-empty square", b.Dx(), b.Dy()), nil)
		}
		if slot == 0 {
			out.Size = b.Dx()
		} else if b.Dx() != out.Size {
			return nil, wire.SlotError(wire.ErrUnsupportedFormat, slot, face.Codec,
				fmt.Sprintf("face is %dx%d, want %dx%d like slot 0", b.Dx(), b.Dy(), out.Size, out.Size), nil)
		}
		out.Faces[slot] = toRGBA(img)
	}
	return out, nil
}

// classify maps a decoder error onto a decode failure kind.
func classify(err error) error {
	var (
		pngFormat  png.FormatError
		pngUnsup   png.UnsupportedError
		jpegFormat jpeg.FormatError
		jpegUnsup  jpeg.UnsupportedError
	)
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return wire.ErrTruncated
	case errors.As(err, &pngFormat), errors.As(err, &pngUnsup),
		errors.As(err, &jpegFormat), errors.As(err, &jpegUnsup),
		errors.Is(err, image.ErrFormat):
		return wire.ErrUnsupportedFormat
	default:
		return wire.ErrIO
	}
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// LoadFiles reads the six face files in cube-map order. An empty path leaves
// that slot without data.
func LoadFiles(paths [wire.SkyboxFaces]string) (wire.Skybox, error) {
	var sky wire.Skybox
	for i, p := range paths {
		if p == "" {
			continue
		}
		codec, err := CodecForPath(p)
		if err != nil {
			return wire.Skybox{}, fmt.Errorf("skybox face %s: %w", wire.FaceNames[i], err)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return wire.Skybox{}, fmt.Errorf("skybox face %s: %w", wire.FaceNames[i], err)
		}
		sky.Faces[i] = wire.CompressedImage{Codec: codec, Data: data}
	}
	return sky, nil
}

// CodecForPath picks the codec from a file extension.
func CodecForPath(path string) (wire.Codec, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return wire.CodecPNG, nil
	case ".jpg", ".jpeg":
		return wire.CodecJPEG, nil
	default:
		return wire.CodecNone, fmt.Errorf("unsupported image extension %q", filepath.Ext(path))
	}
}
