// Package world provides the hex lattice algebra and the terrain generator.
// Positions use cube coordinates (x, y, z) with x+y+z = 0; axial (q, r)
// coordinates bridge to the triangular row/column storage of a Map.
package world

import "fmt"

// RGB is a byte colour triple.
type RGB [3]byte

// Hex returns the colour as a #rrggbb string.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}

// Hex is a single terrain cell. It is written once during generation.
type Hex struct {
	Height float32 `json:"height"`
	Color  RGB     `json:"color"`
}
