// Package session holds the client's loaded map. A load decodes the wire
// payload and the skybox, reshapes the hexes for rendering and physics, and
// swaps the result in only when every step succeeded.
package session

import (
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/talgya/hexterrain/internal/skybox"
	"github.com/talgya/hexterrain/internal/wire"
	"github.com/talgya/hexterrain/internal/world"
)

// Renderer draws the loaded map.
type Renderer interface {
	SetMap(m *wire.IndexedMap, sky *skybox.Skybox)
}

// PhysicsBackend simulates the player against the map's columns.
type PhysicsBackend interface {
	Reset(colliders []Collider, spawn mgl32.Vec3, gravity mgl32.Vec3)
}

// Loaded is an installed map.
type Loaded struct {
	Map      *wire.IndexedMap
	Skybox   *skybox.Skybox
	Spawn    mgl32.Vec3
	LoadedAt time.Time
}

// Session owns the current map. Readers see either the previous or the new
// map, never a partial one.
type Session struct {
	Decoders skybox.Decoders // nil uses the PNG/JPEG defaults
	Renderer Renderer
	Physics  PhysicsBackend

	mu      sync.RWMutex
	current *Loaded

	loads    int
	failures int
}

// New returns a session showing the empty map.
func New() *Session {
	return &Session{
		current: &Loaded{Map: wire.EmptyMap(), Skybox: &skybox.Skybox{}},
	}
}

// LoadMap installs the map encoded in payload. On failure the previous map
// stays current and the error is returned.
func (s *Session) LoadMap(payload []byte) error {
	start := time.Now()
	loaded, err := s.build(payload)
	if err != nil {
		s.mu.Lock()
		s.failures++
		s.mu.Unlock()
		slog.Error("map load failed", "size", humanize.Bytes(uint64(len(payload))), "error", err)
		return err
	}

	s.mu.Lock()
	s.current = loaded
	s.loads++
	s.mu.Unlock()

	if s.Renderer != nil {
		s.Renderer.SetMap(loaded.Map, loaded.Skybox)
	}
	if s.Physics != nil {
		s.Physics.Reset(Colliders(loaded.Map), loaded.Spawn, Gravity)
	}

	slog.Info("map loaded",
		"radius", loaded.Map.Radius,
		"hexes", humanize.Comma(int64(loaded.Map.HexCount())),
		"skybox", fmt.Sprintf("%dx%d", loaded.Skybox.Size, loaded.Skybox.Size),
		"took", time.Since(start).Round(time.Microsecond),
	)
	return nil
}

func (s *Session) build(payload []byte) (*Loaded, error) {
	data, err := wire.Decode(payload)
	if err != nil {
		return nil, err
	}
	sky, err := skybox.Decode(data.Skybox, s.Decoders)
	if err != nil {
		return nil, err
	}
	m := wire.Reshape(data)
	spawn, ok := SpawnPoint(m)
	if !ok {
		return nil, fmt.Errorf("map of radius %d has no centre hex", m.Radius)
	}
	return &Loaded{Map: m, Skybox: sky, Spawn: spawn, LoadedAt: time.Now()}, nil
}

// Current returns the installed map.
func (s *Session) Current() *Loaded {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Radial yields the cells of the current map within maxRing of center,
// nearest first.
func (s *Session) Radial(center world.CubeCoord, maxRing int) iter.Seq2[world.CubeCoord, wire.Cell] {
	return s.Current().Map.Radial(center, maxRing)
}

// Counts returns successful and failed loads.
func (s *Session) Counts() (loads, failures int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loads, s.failures
}
