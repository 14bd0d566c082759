package session

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/talgya/hexterrain/internal/entropy"
	"github.com/talgya/hexterrain/internal/skybox"
	"github.com/talgya/hexterrain/internal/wire"
	"github.com/talgya/hexterrain/internal/world"
)

type recordingRenderer struct {
	calls int
	last  *wire.IndexedMap
}

func (r *recordingRenderer) SetMap(m *wire.IndexedMap, _ *skybox.Skybox) {
	r.calls++
	r.last = m
}

type recordingPhysics struct {
	colliders []Collider
	spawn     mgl32.Vec3
	gravity   mgl32.Vec3
}

func (p *recordingPhysics) Reset(c []Collider, spawn, gravity mgl32.Vec3) {
	p.colliders, p.spawn, p.gravity = c, spawn, gravity
}

func mapData(t *testing.T, radius int, seed int64) wire.MapData {
	t.Helper()
	m := world.NewGenerator(entropy.NewSeeded(entropy.SeedFromInt64(seed))).Generate(radius)
	sky, err := skybox.Gradient(4, skybox.DefaultPalette)
	if err != nil {
		t.Fatal(err)
	}
	return wire.FromMap(m, []wire.LightSource{wire.Directional(mgl32.Vec3{0, -1, 0})}, sky)
}

func encode(t *testing.T, d wire.MapData) []byte {
	t.Helper()
	b, err := wire.Encode(d)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestLoadMapInstalls(t *testing.T) {
	s := New()
	if !s.Current().Map.Empty() {
		t.Fatal("new session is not empty")
	}
	r := &recordingRenderer{}
	p := &recordingPhysics{}
	s.Renderer, s.Physics = r, p

	if err := s.LoadMap(encode(t, mapData(t, 3, 1))); err != nil {
		t.Fatalf("LoadMap: %v", err)
	}
	cur := s.Current()
	if cur.Map.Radius != 3 || cur.Skybox.Size != 4 || len(cur.Map.LightSources) != 1 {
		t.Fatalf("loaded radius %d skybox %d", cur.Map.Radius, cur.Skybox.Size)
	}
	if r.calls != 1 || r.last != cur.Map {
		t.Fatal("renderer not given the new map")
	}
	if len(p.colliders) != world.HexCountForRadius(3) || p.gravity != Gravity {
		t.Fatalf("physics got %d colliders", len(p.colliders))
	}

	centre := world.AxialToCartesian(world.AxialCoord{Q: 3, R: 3})
	if want := (mgl32.Vec3{centre.X(), SpawnHeight, -centre.Y()}); p.spawn != want || cur.Spawn != want {
		t.Fatalf("spawn = %v, want %v", p.spawn, want)
	}
	if loads, failures := s.Counts(); loads != 1 || failures != 0 {
		t.Fatalf("counts = %d/%d", loads, failures)
	}
}

func TestLoadMapMissingSkyboxKeepsPrevious(t *testing.T) {
	s := New()
	if err := s.LoadMap(encode(t, mapData(t, 2, 1))); err != nil {
		t.Fatal(err)
	}
	prev := s.Current()

	for slot := 0; slot < wire.SkyboxFaces; slot++ {
		d := mapData(t, 4, 2)
		d.Skybox.Faces[slot] = wire.CompressedImage{}
		err := s.LoadMap(encode(t, d))
		if !errors.Is(err, wire.ErrMissingImageData) {
			t.Fatalf("slot %d: err = %v", slot, err)
		}
		var de *wire.DecodeError
		if !errors.As(err, &de) || de.Slot != slot {
			t.Fatalf("slot %d: error does not name the slot: %v", slot, err)
		}
		if s.Current() != prev {
			t.Fatalf("slot %d: failed load replaced the map", slot)
		}
	}
	if _, failures := s.Counts(); failures != wire.SkyboxFaces {
		t.Fatalf("failures = %d", failures)
	}
}

func TestLoadMapTruncatedKeepsPrevious(t *testing.T) {
	s := New()
	prev := s.Current()
	b := encode(t, mapData(t, 2, 3))
	if err := s.LoadMap(b[:len(b)/2]); !errors.Is(err, wire.ErrTruncated) {
		t.Fatalf("err = %v", err)
	}
	if s.Current() != prev || !s.Current().Map.Empty() {
		t.Fatal("truncated load replaced the empty map")
	}
}

func TestColliderPlacement(t *testing.T) {
	m := wire.Reshape(mapData(t, 2, 4))
	cs := Colliders(m)
	i := 0
	for c, cell := range m.All() {
		col := cs[i]
		i++
		if col.Position != cell.World() || col.Margin != ColliderMargin {
			t.Fatalf("%v: collider at %v, cell at %v", c, col.Position, cell.World())
		}
		tr := col.Transform()
		corner := tr.Mul4x1(HexPrismVerts[1].Vec4(1)).Vec3()
		bottom := tr.Mul4x1(HexPrismVerts[7].Vec4(1)).Vec3()
		wantCorner := cell.World().Add(mgl32.Vec3{1, 0, 0})
		wantBottom := cell.World().Add(mgl32.Vec3{1, -PrismDepth, 0})
		if !corner.ApproxEqualThreshold(wantCorner, 1e-4) || !bottom.ApproxEqualThreshold(wantBottom, 1e-4) {
			t.Fatalf("%v: corner %v bottom %v, want %v %v", c, corner, bottom, wantCorner, wantBottom)
		}
	}
	if i != len(cs) {
		t.Fatalf("%d colliders for %d cells", len(cs), i)
	}
	if len(HexPrismIndices)%3 != 0 || len(HexPrismIndices) != 18*3 {
		t.Fatalf("%d prism indices", len(HexPrismIndices))
	}
	for _, idx := range HexPrismIndices {
		if int(idx) >= len(HexPrismVerts) {
			t.Fatalf("index %d out of range", idx)
		}
	}
}

func TestSessionRadial(t *testing.T) {
	s := New()
	if err := s.LoadMap(encode(t, mapData(t, 3, 5))); err != nil {
		t.Fatal(err)
	}
	centre := s.Current().Map.Center()
	n := 0
	for c := range s.Radial(centre, 1) {
		if world.Distance(c, centre) > 1 {
			t.Fatalf("%v beyond ring 1", c)
		}
		n++
	}
	if n != 7 {
		t.Fatalf("radial yielded %d cells", n)
	}
}
