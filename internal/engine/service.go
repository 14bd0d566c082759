// Package engine turns generation requests into served maps: it seeds and
// runs the generator, decorates and encodes the result, archives it, and
// hands the current map to subscribers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/talgya/hexterrain/internal/config"
	"github.com/talgya/hexterrain/internal/entropy"
	"github.com/talgya/hexterrain/internal/persistence"
	"github.com/talgya/hexterrain/internal/wire"
	"github.com/talgya/hexterrain/internal/world"
)

// MetaCurrentMap is the world_meta key holding the current map ID.
const MetaCurrentMap = "current_map"

var (
	ErrRadius = errors.New("radius out of range")
	ErrMode   = errors.New("unknown generation mode")
	ErrNoMap  = errors.New("no map generated yet")
)

// Archive stores encoded maps. *persistence.DB implements it.
type Archive interface {
	SaveMap(rec persistence.MapRecord, payload []byte) error
	LoadMap(id string) (persistence.MapRecord, []byte, error)
	LatestMap() (persistence.MapRecord, []byte, error)
	ListMaps(limit int) ([]persistence.MapRecord, error)
	PruneMaps(keep int) (int64, error)
	CountMaps() (int, error)
	SaveMeta(key, value string) error
	GetMeta(key string) (string, error)
}

// Snapshot is one generated map in both decoded and wire form.
type Snapshot struct {
	Record  persistence.MapRecord
	Data    wire.MapData
	Payload []byte
}

// Request selects generation parameters. A nil Radius or empty Mode uses
// the configured default; a zero seed draws a fresh one.
type Request struct {
	Radius *int
	Seed   int64
	Mode   string
}

// Service owns the current map.
type Service struct {
	cfg     config.Config
	archive Archive
	rng     *entropy.Source // draws fresh map seeds
	lights  []wire.LightSource
	sky     wire.Skybox

	genMu sync.Mutex // serializes generation and guards rng

	mu      sync.RWMutex
	current *Snapshot

	subMu   sync.Mutex
	subs    map[int]chan *Snapshot
	nextSub int

	generated atomic.Uint64
	started   time.Time
}

// NewService creates a service. archive may be nil to skip archiving.
// Fresh seeds come from random.org when a key is configured, crypto/rand
// otherwise.
func NewService(cfg config.Config, archive Archive, sky wire.Skybox) *Service {
	var seeder entropy.SeedProvider = entropy.CryptoSeeder{}
	if org := entropy.NewOrgSeeder(cfg.RandomOrgKey); org != nil {
		seeder = org
	}
	return NewServiceWithSeeder(cfg, archive, sky, seeder)
}

// NewServiceWithSeeder creates a service whose seed source is seeded once
// from seeder, on the first unseeded request.
func NewServiceWithSeeder(cfg config.Config, archive Archive, sky wire.Skybox, seeder entropy.SeedProvider) *Service {
	return &Service{
		cfg:     cfg,
		archive: archive,
		rng:     entropy.New(seeder),
		lights:  cfg.LightSources(),
		sky:     sky,
		subs:    make(map[int]chan *Snapshot),
		started: time.Now(),
	}
}

// Generate builds a new map, archives it and makes it current.
func (s *Service) Generate(ctx context.Context, req Request) (*Snapshot, error) {
	gen, err := s.resolve(req)
	if err != nil {
		return nil, err
	}

	s.genMu.Lock()
	defer s.genMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if gen.Seed == 0 {
		gen.Seed = s.freshSeed()
	}

	start := time.Now()
	m := world.Generate(gen, entropy.NewSeeded(entropy.SeedFromInt64(gen.Seed)))
	data := wire.FromMap(m, s.lights, s.sky)
	payload, err := wire.Encode(data)
	if err != nil {
		return nil, fmt.Errorf("encode map: %w", err)
	}

	snap := &Snapshot{
		Record: persistence.MapRecord{
			ID:        uuid.NewString(),
			Radius:    gen.Radius,
			Seed:      gen.Seed,
			Mode:      gen.Mode,
			HexCount:  m.HexCount(),
			Size:      len(payload),
			CreatedAt: time.Now().UTC(),
		},
		Data:    data,
		Payload: payload,
	}

	if s.archive != nil {
		if err := s.archiveSnapshot(snap); err != nil {
			return nil, err
		}
	}

	lo, hi := m.HeightRange()
	slog.Info("map generated",
		"id", snap.Record.ID,
		"radius", gen.Radius,
		"mode", gen.Mode,
		"seed", gen.Seed,
		"hexes", humanize.Comma(int64(snap.Record.HexCount)),
		"size", humanize.Bytes(uint64(len(payload))),
		"heights", fmt.Sprintf("%.1f..%.1f", lo, hi),
		"took", time.Since(start).Round(time.Millisecond),
	)

	s.generated.Add(1)
	s.install(snap)
	return snap, nil
}

func (s *Service) resolve(req Request) (world.GenConfig, error) {
	gen := s.cfg.Generation
	if req.Radius != nil {
		gen.Radius = *req.Radius
	}
	if req.Mode != "" {
		gen.Mode = req.Mode
	}
	if req.Seed != 0 {
		gen.Seed = req.Seed
	}
	if gen.Radius < 0 || gen.Radius > s.cfg.MaxRadius {
		return gen, fmt.Errorf("%w: %d not in [0, %d]", ErrRadius, gen.Radius, s.cfg.MaxRadius)
	}
	switch gen.Mode {
	case world.ModeDiffusion, world.ModeSimplex:
	default:
		return gen, fmt.Errorf("%w %q", ErrMode, gen.Mode)
	}
	return gen, nil
}

// freshSeed draws a non-zero seed so every map can be regenerated exactly.
// Callers hold genMu.
func (s *Service) freshSeed() int64 {
	for {
		if v := int64(s.rng.Uint64() >> 1); v != 0 {
			return v
		}
	}
}

func (s *Service) archiveSnapshot(snap *Snapshot) error {
	if err := s.archive.SaveMap(snap.Record, snap.Payload); err != nil {
		return fmt.Errorf("archive map: %w", err)
	}
	if err := s.archive.SaveMeta(MetaCurrentMap, snap.Record.ID); err != nil {
		slog.Warn("failed to record current map", "error", err)
	}
	if s.cfg.KeepMaps > 0 {
		if n, err := s.archive.PruneMaps(s.cfg.KeepMaps); err != nil {
			slog.Warn("map prune failed", "error", err)
		} else if n > 0 {
			slog.Debug("pruned archived maps", "count", n)
		}
	}
	return nil
}

// Restore makes the archived current map current again, falling back to the
// newest archived map. It reports false when the archive is empty.
func (s *Service) Restore() (bool, error) {
	if s.archive == nil {
		return false, nil
	}
	rec, payload, err := s.restoreCandidate()
	if errors.Is(err, persistence.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	snap, err := snapshotFrom(rec, payload)
	if err != nil {
		return false, err
	}
	s.install(snap)
	slog.Info("map restored", "id", rec.ID, "radius", rec.Radius, "created", humanize.Time(rec.CreatedAt))
	return true, nil
}

func (s *Service) restoreCandidate() (persistence.MapRecord, []byte, error) {
	if id, err := s.archive.GetMeta(MetaCurrentMap); err == nil && id != "" {
		rec, payload, err := s.archive.LoadMap(id)
		if err == nil {
			return rec, payload, nil
		}
		slog.Warn("current map missing from archive", "id", id, "error", err)
	}
	return s.archive.LatestMap()
}

// Current returns the current map, or nil before the first one.
func (s *Service) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Fetch returns the map with the given ID. An empty ID means the current map.
func (s *Service) Fetch(id string) (*Snapshot, error) {
	cur := s.Current()
	if id == "" {
		if cur == nil {
			return nil, ErrNoMap
		}
		return cur, nil
	}
	if cur != nil && cur.Record.ID == id {
		return cur, nil
	}
	if s.archive == nil {
		return nil, persistence.ErrNotFound
	}
	rec, payload, err := s.archive.LoadMap(id)
	if err != nil {
		return nil, err
	}
	return snapshotFrom(rec, payload)
}

// List returns up to limit archived maps, newest first.
func (s *Service) List(limit int) ([]persistence.MapRecord, error) {
	if s.archive == nil {
		if cur := s.Current(); cur != nil {
			return []persistence.MapRecord{cur.Record}, nil
		}
		return nil, nil
	}
	return s.archive.ListMaps(limit)
}

func snapshotFrom(rec persistence.MapRecord, payload []byte) (*Snapshot, error) {
	data, err := wire.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("archived map %s: %w", rec.ID, err)
	}
	return &Snapshot{Record: rec, Data: data, Payload: payload}, nil
}

func (s *Service) install(snap *Snapshot) {
	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()
	s.publish(snap)
}

// Subscribe returns a channel receiving every new current map. Slow
// subscribers only see the latest one.
func (s *Service) Subscribe() (int, <-chan *Snapshot) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan *Snapshot, 1)
	s.subs[id] = ch
	return id, ch
}

// Unsubscribe closes the subscription's channel.
func (s *Service) Unsubscribe(id int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Service) publish(snap *Snapshot) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// Stats summarizes service activity.
type Stats struct {
	Generated uint64
	Uptime    time.Duration
	Archived  int
	Current   *persistence.MapRecord
}

func (s *Service) Stats() Stats {
	st := Stats{
		Generated: s.generated.Load(),
		Uptime:    time.Since(s.started),
	}
	if s.archive != nil {
		if n, err := s.archive.CountMaps(); err == nil {
			st.Archived = n
		}
	}
	if cur := s.Current(); cur != nil {
		rec := cur.Record
		st.Current = &rec
	}
	return st
}
