// Terrain generation by height diffusion.
// The centre hex sits at height 0. Every later hex copies the height and
// drift direction of its parent (the neighbour one ring closer to the centre),
// keeps the direction with probability StayProb or turns, and steps the
// height by StepSize in that direction.
package world

import "fmt"

// Diffusion parameters.
const (
	StayProb float32 = 0.75
	StepSize float32 = 0.5
)

// Generation modes.
const (
	ModeDiffusion = "diffusion"
	ModeSimplex   = "simplex"
)

// Source supplies the randomness consumed by the generators.
type Source interface {
	Float32() float32 // uniform in [0, 1)
	Bool() bool
	Fill(p []byte)
}

// GenConfig holds world generation parameters.
type GenConfig struct {
	Radius int    `yaml:"radius"` // Hex grid radius (1+3R(R+1) hexes)
	Seed   int64  `yaml:"seed"`   // Random seed (0 = fresh entropy per map)
	Mode   string `yaml:"mode"`   // ModeDiffusion or ModeSimplex
}

// DefaultGenConfig returns a reasonable starting configuration.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Radius: 24,
		Seed:   0,
		Mode:   ModeDiffusion,
	}
}

// SmallTestConfig returns a tiny world for rapid iteration.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Radius: 4,
		Seed:   42,
		Mode:   ModeDiffusion,
	}
}

// Generate creates a map with the configured mode, drawing from rng.
func Generate(cfg GenConfig, rng Source) *Map {
	switch cfg.Mode {
	case ModeSimplex:
		return GenerateSimplex(cfg.Radius, cfg.Seed, rng)
	default:
		return NewGenerator(rng).Generate(cfg.Radius)
	}
}

// parentInfo is what a hex hands down to the hexes of the next ring.
type parentInfo struct {
	height float32
	dir    int // -1, 0 or 1
}

// Generator runs the diffusion algorithm against a random source.
type Generator struct {
	rng Source
}

// NewGenerator returns a Generator drawing from rng.
func NewGenerator(rng Source) *Generator {
	return &Generator{rng: rng}
}

// Generate fills a map of the given radius ring by ring from the centre.
// Randomness is drawn per hex in a fixed order: the parent coin (ties only),
// the stay draw, the turn coin (turns only), then three colour bytes.
func (g *Generator) Generate(radius int) *Map {
	m := NewMap(radius)
	parents := make([][]parentInfo, len(m.Hexes))
	for i, row := range m.Hexes {
		parents[i] = make([]parentInfo, len(row))
	}

	m.Hexes[radius][radius] = Hex{Height: 0, Color: g.color()}
	parents[radius][radius] = parentInfo{}

	center := m.Center()
	dist := centerDistance(radius)
	for ring := 1; ring <= radius; ring++ {
		cubes := NewCubeRing(center, ring)
		for c, ok := cubes.Next(); ok; c, ok = cubes.Next() {
			p0, p1, tied := selectParents(c, dist)
			parent := p0
			if tied && !g.rng.Bool() {
				parent = p1
			}
			info := lookupParent(parents, parent, radius)

			dir := info.dir
			if !(StayProb > g.rng.Float32()) {
				dir = g.turn(dir)
			}
			height := info.height + float32(dir)*StepSize

			row, col := ToRowCol(c.ToAxial(), radius)
			m.Hexes[row][col] = Hex{Height: height, Color: g.color()}
			parents[row][col] = parentInfo{height: height, dir: dir}
		}
	}

	return m
}

// turn picks between two fixed alternatives for the parent's direction:
// 0 → {-1, 1}, 1 → {-1, 0}, -1 → {0, 1}.
func (g *Generator) turn(dir int) int {
	var a, b int
	switch dir {
	case 0:
		a, b = -1, 1
	case 1:
		a, b = -1, 0
	default:
		a, b = 0, 1
	}
	if g.rng.Bool() {
		return a
	}
	return b
}

func (g *Generator) color() RGB {
	var c RGB
	g.rng.Fill(c[:])
	return c
}

// centerDistance measures distance from the centre of a map with the given
// radius, cube (R, -2R, R).
func centerDistance(radius int) func(CubeCoord) int {
	return func(p CubeCoord) int {
		return max(abs(p.X-radius), abs(p.Y+2*radius), abs(p.Z-radius))
	}
}

// selectParents scans the neighbours of c in ring order for the one closest
// to the centre. A strictly closer neighbour replaces p0 and clears p1; a
// neighbour at the same distance as p0 overwrites p1, so with three or more
// ties only the first and the last survive.
func selectParents(c CubeCoord, dist func(CubeCoord) int) (p0, p1 CubeCoord, tied bool) {
	best := -1
	for p := range Ring(c, 1) {
		d := dist(p)
		switch {
		case best < 0:
			p0, best = p, d
		case d < best:
			p0, best = p, d
			tied = false
		case d == best:
			p1 = p
			tied = true
		}
	}
	return p0, p1, tied
}

func lookupParent(parents [][]parentInfo, c CubeCoord, radius int) parentInfo {
	row, col := ToRowCol(c.ToAxial(), radius)
	if row < 0 || row >= len(parents) || col < 0 || col >= len(parents[row]) {
		panic(fmt.Sprintf("world: parent %v of radius %d map maps to row %d col %d", c, radius, row, col))
	}
	return parents[row][col]
}
