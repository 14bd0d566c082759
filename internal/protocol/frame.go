package protocol

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Opcode is the first byte of every binary frame.
type Opcode byte

// Binary frame opcodes.
const (
	OpMapData     Opcode = 0x01 // wire-encoded map
	OpMapDataZstd Opcode = 0x02 // zstd-compressed wire-encoded map
)

func (op Opcode) String() string {
	switch op {
	case OpMapData:
		return "MAP_DATA"
	case OpMapDataZstd:
		return "MAP_DATA_ZSTD"
	default:
		return fmt.Sprintf("Opcode(%#02x)", byte(op))
	}
}

// MaxPayload bounds a decompressed map payload.
const MaxPayload = 256 << 20

var (
	ErrEmptyFrame    = errors.New("protocol: empty frame")
	ErrUnknownOpcode = errors.New("protocol: unknown opcode")
)

// Frame prefixes payload with op.
func Frame(op Opcode, payload []byte) []byte {
	out := make([]byte, 1+len(payload))
	out[0] = byte(op)
	copy(out[1:], payload)
	return out
}

// Unframe splits a frame into its opcode and body. The body aliases b.
func Unframe(b []byte) (Opcode, []byte, error) {
	if len(b) == 0 {
		return 0, nil, ErrEmptyFrame
	}
	op := Opcode(b[0])
	switch op {
	case OpMapData, OpMapDataZstd:
		return op, b[1:], nil
	default:
		return op, nil, fmt.Errorf("%w %v", ErrUnknownOpcode, op)
	}
}

// MapFrame frames a wire-encoded map, compressing it when asked.
func MapFrame(payload []byte, compress bool) []byte {
	if !compress {
		return Frame(OpMapData, payload)
	}
	return Frame(OpMapDataZstd, Compress(payload))
}

// MapPayload returns the wire-encoded map carried by a map frame.
func MapPayload(frame []byte) ([]byte, error) {
	op, body, err := Unframe(frame)
	if err != nil {
		return nil, err
	}
	if op == OpMapDataZstd {
		return Decompress(body)
	}
	return body, nil
}

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func zstdCodec() (*zstd.Encoder, *zstd.Decoder) {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxPayload))
	})
	if codecErr != nil {
		panic(fmt.Sprintf("protocol: zstd init: %v", codecErr))
	}
	return encoder, decoder
}

// Compress zstd-compresses b.
func Compress(b []byte) []byte {
	enc, _ := zstdCodec()
	return enc.EncodeAll(b, make([]byte, 0, len(b)/2))
}

// Decompress reverses Compress.
func Decompress(b []byte) ([]byte, error) {
	_, dec := zstdCodec()
	out, err := dec.DecodeAll(b, nil)
	if err != nil {
		return nil, fmt.Errorf("protocol: zstd: %w", err)
	}
	return out, nil
}
