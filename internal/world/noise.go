// Alternate generation using layered simplex noise.
// Produces the same triangular Map shape as the diffusion generator, with
// heights sampled from fractal noise and snapped to StepSize increments.
package world

import (
	opensimplex "github.com/ojrac/opensimplex-go"
)

// Simplex shaping parameters.
const (
	simplexOctaves     = 4
	simplexFrequency   = 0.08
	simplexPersistence = 0.5
)

// GenerateSimplex creates a map whose heights come from octave noise seeded
// by seed. Heights are relative to the centre hex, so the centre stays at 0
// and every hex stays within Radius*StepSize of it. Colours are drawn from
// rng in triangular order.
func GenerateSimplex(radius int, seed int64, rng Source) *Map {
	noise := opensimplex.NewNormalized(seed)
	m := NewMap(radius)

	amplitude := float64(radius) * float64(StepSize)
	sample := func(a AxialCoord) float64 {
		p := AxialToCartesian(a)
		return (octaveNoise(noise, float64(p.X()), float64(p.Y()), simplexOctaves, simplexFrequency, simplexPersistence)*2 - 1) * amplitude
	}

	center := m.Center()
	base := sample(center.ToAxial())

	for row, hexes := range m.Hexes {
		for col := range hexes {
			a := FromRowCol(row, col, radius)
			h := quantize(sample(a)-base, StepSize)
			// Clamp to the same envelope the diffusion generator guarantees.
			limit := float32(Distance(a.ToCube(), center)) * StepSize
			h = min(max(h, -limit), limit)
			hexes[col] = Hex{Height: h}
		}
	}
	// Colours are drawn in a second pass so that heights never depend on rng.
	for _, hexes := range m.Hexes {
		for col := range hexes {
			rng.Fill(hexes[col].Color[:])
		}
	}

	return m
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

func quantize(v float64, step float32) float32 {
	s := float64(step)
	n := v / s
	if n < 0 {
		n -= 0.5
	} else {
		n += 0.5
	}
	return float32(int(n)) * step
}
