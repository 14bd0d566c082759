// Binary map codec.
// Layout (little-endian, bincode-1 compatible):
//
//	radius          u64
//	hexes           u64 row count, then per row: u64 width, width × (f32 height, [3]u8 rgb)
//	light_sources   u64 count, then per light: u32 tag, payload (directional: 3 × f32)
//	skybox          6 × (u32 tag, payload (png/jpeg: u64 length, bytes))
package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/talgya/hexterrain/internal/world"
)

const (
	hexWireSize   = 4 + 3
	lightWireSize = 4 + 3*4
)

// Encode serializes a map. It fails only when the hex rows do not match the
// triangular layout for the radius.
func Encode(d MapData) ([]byte, error) {
	if d.Radius < 0 {
		return nil, fmt.Errorf("encode: negative radius %d", d.Radius)
	}
	if err := d.checkShape(); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	size := 8 + 8 + len(d.Hexes)*8 + d.HexCount()*hexWireSize +
		8 + len(d.LightSources)*lightWireSize +
		SkyboxFaces*(4+8) + d.Skybox.Size()
	buf := make([]byte, 0, size)

	buf = binary.LittleEndian.AppendUint64(buf, uint64(d.Radius))

	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(d.Hexes)))
	for _, row := range d.Hexes {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(len(row)))
		for _, h := range row {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(h.Height))
			buf = append(buf, h.Color[:]...)
		}
	}

	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(d.LightSources)))
	for _, l := range d.LightSources {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(l.Kind))
		switch l.Kind {
		case LightDirectional:
			for _, v := range l.Vector {
				buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
			}
		default:
			return nil, fmt.Errorf("encode: light source kind %v", l.Kind)
		}
	}

	for i, f := range d.Skybox.Faces {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(f.Codec))
		switch f.Codec {
		case CodecNone:
		case CodecPNG, CodecJPEG:
			buf = binary.LittleEndian.AppendUint64(buf, uint64(len(f.Data)))
			buf = append(buf, f.Data...)
		default:
			return nil, fmt.Errorf("encode: skybox slot %d codec %v", i, f.Codec)
		}
	}

	return buf, nil
}

// Decode parses a map produced by Encode. Failures are *DecodeError.
func Decode(b []byte) (MapData, error) {
	r := &reader{buf: b}
	var d MapData

	radius, err := r.u64("radius")
	if err != nil {
		return MapData{}, err
	}
	if radius > math.MaxInt32 {
		return MapData{}, mapError(ErrMalformed, fmt.Sprintf("radius %d", radius))
	}
	d.Radius = int(radius)

	rows, err := r.length("hex rows", 8)
	if err != nil {
		return MapData{}, err
	}
	if want := 2*d.Radius + 1; rows != want {
		return MapData{}, mapError(ErrMalformed, fmt.Sprintf("%d rows for radius %d, want %d", rows, d.Radius, want))
	}
	d.Hexes = make([][]world.Hex, rows)
	for i := range d.Hexes {
		width, err := r.length(fmt.Sprintf("row %d", i), hexWireSize)
		if err != nil {
			return MapData{}, err
		}
		if want := world.RowWidth(i, d.Radius); width != want {
			return MapData{}, mapError(ErrMalformed, fmt.Sprintf("row %d has %d hexes, want %d", i, width, want))
		}
		row := make([]world.Hex, width)
		for j := range row {
			if row[j], err = r.hex(); err != nil {
				return MapData{}, err
			}
		}
		d.Hexes[i] = row
	}

	lights, err := r.length("light sources", lightWireSize)
	if err != nil {
		return MapData{}, err
	}
	d.LightSources = make([]LightSource, lights)
	for i := range d.LightSources {
		tag, err := r.u32("light tag")
		if err != nil {
			return MapData{}, err
		}
		switch LightKind(tag) {
		case LightDirectional:
			var v [3]float32
			for k := range v {
				bits, err := r.u32("light vector")
				if err != nil {
					return MapData{}, err
				}
				v[k] = math.Float32frombits(bits)
			}
			d.LightSources[i] = Directional(v)
		default:
			return MapData{}, mapError(ErrUnsupportedFormat, fmt.Sprintf("light source %d has tag %d", i, tag))
		}
	}

	for i := range d.Skybox.Faces {
		tag, err := r.u32("skybox tag")
		if err != nil {
			return MapData{}, err
		}
		codec := Codec(tag)
		switch codec {
		case CodecNone:
		case CodecPNG, CodecJPEG:
			n, err := r.length("skybox image", 1)
			if err != nil {
				return MapData{}, err
			}
			data := make([]byte, n)
			copy(data, r.take(n))
			d.Skybox.Faces[i] = CompressedImage{Codec: codec, Data: data}
		default:
			return MapData{}, SlotError(ErrUnsupportedFormat, i, CodecNone, fmt.Sprintf("codec tag %d", tag), nil)
		}
	}

	if rest := len(r.buf) - r.off; rest != 0 {
		return MapData{}, mapError(ErrMalformed, fmt.Sprintf("%d trailing bytes", rest))
	}
	return d, nil
}

// reader walks a byte slice, failing with ErrTruncated when it runs short.
type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func (r *reader) take(n int) []byte {
	p := r.buf[r.off : r.off+n]
	r.off += n
	return p
}

func (r *reader) u32(what string) (uint32, error) {
	if r.remaining() < 4 {
		return 0, r.short(what, 4)
	}
	return binary.LittleEndian.Uint32(r.take(4)), nil
}

func (r *reader) u64(what string) (uint64, error) {
	if r.remaining() < 8 {
		return 0, r.short(what, 8)
	}
	return binary.LittleEndian.Uint64(r.take(8)), nil
}

func (r *reader) hex() (world.Hex, error) {
	var h world.Hex
	if r.remaining() < hexWireSize {
		return h, r.short("hex", hexWireSize)
	}
	h.Height = math.Float32frombits(binary.LittleEndian.Uint32(r.take(4)))
	copy(h.Color[:], r.take(3))
	return h, nil
}

// length reads a u64 element count and checks that count elements of at
// least elemSize bytes each can still follow.
func (r *reader) length(what string, elemSize int) (int, error) {
	n, err := r.u64(what + " length")
	if err != nil {
		return 0, err
	}
	if n > uint64(r.remaining()/elemSize) {
		return 0, mapError(ErrTruncated, fmt.Sprintf("%s: %d elements of %d bytes, %d bytes left", what, n, elemSize, r.remaining()))
	}
	return int(n), nil
}

func (r *reader) short(what string, need int) error {
	return mapError(ErrTruncated, fmt.Sprintf("%s: need %d bytes at offset %d, have %d", what, need, r.off, r.remaining()))
}
