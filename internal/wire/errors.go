package wire

import (
	"errors"
	"fmt"
	"strings"
)

// Decode failure kinds. Match with errors.Is.
var (
	ErrTruncated         = errors.New("truncated")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrIO                = errors.New("i/o failure")
	ErrMissingImageData  = errors.New("missing image data")
	ErrMalformed         = errors.New("malformed map")
)

// NoSlot marks a DecodeError that is not tied to a skybox face.
const NoSlot = -1

// DecodeError reports why a map or skybox could not be loaded.
type DecodeError struct {
	Kind   error  // one of the Err* kinds above
	Slot   int    // skybox face, or NoSlot
	Codec  Codec  // codec of the failing face, if any
	Detail string // what was expected
	Err    error  // underlying cause, may be nil
}

func (e *DecodeError) Error() string {
	var b strings.Builder
	b.WriteString("decode: ")
	b.WriteString(e.Kind.Error())
	if e.Slot != NoSlot {
		fmt.Fprintf(&b, " (skybox slot %d %s", e.Slot, slotName(e.Slot))
		if e.Codec != CodecNone {
			fmt.Fprintf(&b, ", %s", e.Codec)
		}
		b.WriteString(")")
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// SlotError builds a DecodeError for a skybox face.
func SlotError(kind error, slot int, codec Codec, detail string, err error) *DecodeError {
	return &DecodeError{Kind: kind, Slot: slot, Codec: codec, Detail: detail, Err: err}
}

func mapError(kind error, detail string) *DecodeError {
	return &DecodeError{Kind: kind, Slot: NoSlot, Detail: detail}
}

func slotName(slot int) string {
	if slot >= 0 && slot < SkyboxFaces {
		return FaceNames[slot]
	}
	return "?"
}
