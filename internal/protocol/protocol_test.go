package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte{1, 2, 3, 4, 5, 6, 7}, 500)
	for _, compress := range []bool{false, true} {
		f := MapFrame(payload, compress)
		op, _, err := Unframe(f)
		if err != nil {
			t.Fatalf("Unframe: %v", err)
		}
		if want := map[bool]Opcode{false: OpMapData, true: OpMapDataZstd}[compress]; op != want {
			t.Fatalf("compress=%v: op = %v, want %v", compress, op, want)
		}
		if compress && len(f) >= len(payload) {
			t.Fatalf("compressed frame is %d bytes for a %d byte payload", len(f), len(payload))
		}
		got, err := MapPayload(f)
		if err != nil {
			t.Fatalf("MapPayload: %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("compress=%v: payload mismatch", compress)
		}
	}
}

func TestUnframeErrors(t *testing.T) {
	if _, _, err := Unframe(nil); !errors.Is(err, ErrEmptyFrame) {
		t.Fatalf("empty: err = %v", err)
	}
	if _, _, err := Unframe([]byte{0x7F, 1}); !errors.Is(err, ErrUnknownOpcode) {
		t.Fatalf("unknown: err = %v", err)
	}
	if _, err := MapPayload([]byte{byte(OpMapDataZstd), 1, 2, 3}); err == nil {
		t.Fatal("garbage zstd body accepted")
	}
}

func TestFrameCopiesPayload(t *testing.T) {
	p := []byte{9, 9}
	f := Frame(OpMapData, p)
	p[0] = 0
	if f[1] != 9 {
		t.Fatal("Frame aliases its input")
	}
}

func parseErr(t *testing.T, msg string, maxRadius int) *Error {
	t.Helper()
	_, err := ParseControl([]byte(msg), maxRadius)
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("%s: err = %v, want *Error", msg, err)
	}
	if !IsKnownCode(pe.Code) {
		t.Fatalf("unknown code %q", pe.Code)
	}
	return pe
}

func TestParseControl(t *testing.T) {
	v, err := ParseControl([]byte(`{"type":"HELLO","protocol_version":"1.0","compress":true}`), 64)
	if err != nil {
		t.Fatalf("HELLO: %v", err)
	}
	if h, ok := v.(*HelloMsg); !ok || !h.Compress {
		t.Fatalf("HELLO parsed as %#v", v)
	}

	v, err = ParseControl([]byte(`{"type":"GENERATE","radius":12,"seed":99,"mode":"simplex"}`), 64)
	if err != nil {
		t.Fatalf("GENERATE: %v", err)
	}
	g, ok := v.(*GenerateMsg)
	if !ok || g.Radius == nil || *g.Radius != 12 || g.Seed != 99 || g.Mode != "simplex" {
		t.Fatalf("GENERATE parsed as %#v", v)
	}

	v, err = ParseControl([]byte(`{"type":"FETCH","map_id":"0b6c2f4e-8a1d-4c1e-9f57-2d7d5b0e3a11"}`), 64)
	if err != nil {
		t.Fatalf("FETCH: %v", err)
	}
	if f, ok := v.(*FetchMsg); !ok || f.MapID == "" {
		t.Fatalf("FETCH parsed as %#v", v)
	}

	if _, err := ParseControl([]byte(`{"type":"FETCH"}`), 64); err != nil {
		t.Fatalf("FETCH without id: %v", err)
	}
}

func TestGenerateRadiusZeroOnWire(t *testing.T) {
	zero := 0
	b, err := json.Marshal(GenerateMsg{Type: TypeGenerate, Radius: &zero})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"type":"GENERATE","radius":0}` {
		t.Fatalf("marshalled %s", b)
	}
	v, err := ParseControl(b, 64)
	if err != nil {
		t.Fatalf("ParseControl: %v", err)
	}
	if g := v.(*GenerateMsg); g.Radius == nil || *g.Radius != 0 {
		t.Fatalf("radius 0 parsed as %#v", g.Radius)
	}

	v, _ = ParseControl([]byte(`{"type":"GENERATE"}`), 64)
	if g := v.(*GenerateMsg); g.Radius != nil {
		t.Fatalf("omitted radius parsed as %d", *g.Radius)
	}
}

func TestParseControlRejects(t *testing.T) {
	cases := []struct {
		msg  string
		code string
	}{
		{`not json`, ErrProtoBadRequest},
		{`{"type":"DANCE"}`, ErrProtoBadRequest},
		{`{"type":"HELLO","protocol_version":"0.1"}`, ErrProtoVersion},
		{`{"type":"HELLO"}`, ErrBadRequest},
		{`{"type":"GENERATE","radius":-1}`, ErrBadRequest},
		{`{"type":"GENERATE","radius":1.5}`, ErrBadRequest},
		{`{"type":"GENERATE","mode":"fractal"}`, ErrBadRequest},
		{`{"type":"GENERATE","radius":65}`, ErrBadRequest},
		{`{"type":"GENERATE","colour":"red"}`, ErrBadRequest},
		{`{"type":"FETCH","map_id":"latest"}`, ErrBadRequest},
	}
	for _, tc := range cases {
		if pe := parseErr(t, tc.msg, 64); pe.Code != tc.code {
			t.Fatalf("%s: code = %s, want %s (%v)", tc.msg, pe.Code, tc.code, pe)
		}
	}
}

func TestErrorMsg(t *testing.T) {
	e := errorf(ErrNotFound, "map %s", "abc")
	m := e.Msg()
	if m.Type != TypeError || m.Code != ErrNotFound || m.Message != "map abc" {
		t.Fatalf("Msg() = %#v", m)
	}
	if IsKnownCode("E_NOPE") {
		t.Fatal("E_NOPE reported as known")
	}
}
