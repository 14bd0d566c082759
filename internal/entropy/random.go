// Package entropy provides the seeded random source used by map generation.
// A Source is seeded once, lazily, from a SeedProvider: crypto/rand by
// default, or true randomness from random.org when an API key is configured.
package entropy

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	mrand "math/rand/v2"
	"sync"
	"time"
)

// SeedSize is the number of seed bytes a PCG generator consumes.
const SeedSize = 16

// SeedProvider supplies high-entropy seed material.
type SeedProvider interface {
	Seed(ctx context.Context) ([SeedSize]byte, error)
}

// CryptoSeeder reads seeds from crypto/rand.
type CryptoSeeder struct{}

// Seed implements SeedProvider.
func (CryptoSeeder) Seed(context.Context) ([SeedSize]byte, error) {
	var seed [SeedSize]byte
	_, err := rand.Read(seed[:])
	return seed, err
}

// Source is a PCG generator behind a mutex. It is seeded on the first draw
// and never reseeded.
type Source struct {
	seeder SeedProvider

	mu  sync.Mutex
	rng *mrand.Rand
}

// New returns a Source that seeds itself from seeder on first use.
// A nil seeder means crypto/rand.
func New(seeder SeedProvider) *Source {
	if seeder == nil {
		seeder = CryptoSeeder{}
	}
	return &Source{seeder: seeder}
}

// NewSeeded returns a Source with a fixed seed, for reproducible maps.
func NewSeeded(seed [SeedSize]byte) *Source {
	s := &Source{}
	s.rng = newPCG(seed)
	return s
}

// SeedFromInt64 expands a configured integer seed into PCG seed material.
func SeedFromInt64(v int64) [SeedSize]byte {
	var seed [SeedSize]byte
	x := uint64(v)
	binary.LittleEndian.PutUint64(seed[:8], splitmix(&x))
	binary.LittleEndian.PutUint64(seed[8:], splitmix(&x))
	return seed
}

// Float32 returns a uniform float32 in [0, 1).
func (s *Source) Float32() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine().Float32()
}

// Bool returns a fair coin flip.
func (s *Source) Bool() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine().Uint64()&1 == 1
}

// Uint64 returns a uniform 64-bit value.
func (s *Source) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine().Uint64()
}

// Fill overwrites p with uniform random bytes.
func (s *Source) Fill(p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rng := s.engine()
	for i := 0; i < len(p); i += 8 {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], rng.Uint64())
		copy(p[i:], buf[:])
	}
}

// Read implements io.Reader. It never fails.
func (s *Source) Read(p []byte) (int, error) {
	s.Fill(p)
	return len(p), nil
}

// engine returns the generator, seeding it on first use. Callers hold s.mu.
func (s *Source) engine() *mrand.Rand {
	if s.rng != nil {
		return s.rng
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	seed, err := s.seeder.Seed(ctx)
	if err != nil {
		slog.Warn("seed provider failed, falling back to crypto/rand", "error", err)
		seed, err = CryptoSeeder{}.Seed(ctx)
		if err != nil {
			// crypto/rand does not fail on supported platforms.
			panic("entropy: no seed available: " + err.Error())
		}
	}
	s.rng = newPCG(seed)
	return s.rng
}

func newPCG(seed [SeedSize]byte) *mrand.Rand {
	return mrand.New(mrand.NewPCG(
		binary.LittleEndian.Uint64(seed[:8]),
		binary.LittleEndian.Uint64(seed[8:]),
	))
}

func splitmix(x *uint64) uint64 {
	*x += 0x9e3779b97f4a7c15
	z := *x
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
