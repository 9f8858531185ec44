// Resource map generation using layered simplex noise.
package world

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds map generation parameters.
type GenConfig struct {
	Radius       int     // Hex grid radius
	Seed         int64   // Noise seed; the same seed always yields the same map
	BaseResource float64 // Mean endowment per cell
	Variation    float64 // 0 = uniform endowments, 1 = from 0 to 2x base
	Frequency    float64 // Noise frequency (features per cell)
	Octaves      int
	Regen        float64 // Fraction of the gap to capacity recovered per step
}

// DefaultGenConfig returns a reasonable starting configuration.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Radius:       10,
		Seed:         42,
		BaseResource: 100,
		Variation:    0.8,
		Frequency:    0.12,
		Octaves:      3,
		Regen:        0.05,
	}
}

// Generate creates a map with resource endowments. Cells are created in
// (q ascending, r ascending) order, which fixes their ids.
func Generate(cfg GenConfig) *Map {
	m := NewMap(cfg.Radius)
	m.SetRegen(cfg.Regen)
	if cfg.Radius < 0 {
		return m
	}

	noise := opensimplex.NewNormalized(cfg.Seed)
	variation := clamp01(cfg.Variation)
	octaves := cfg.Octaves
	if octaves < 1 {
		octaves = 1
	}
	base := cfg.BaseResource
	if base < 0 || math.IsNaN(base) {
		base = 0
	}

	for q := -cfg.Radius; q <= cfg.Radius; q++ {
		for r := -cfg.Radius; r <= cfg.Radius; r++ {
			coord := HexCoord{Q: q, R: r}
			if coord.Ring() > cfg.Radius {
				continue
			}

			// Hex axial → cartesian: x = q + r*0.5, y = r * sqrt(3)/2
			x := float64(q) + float64(r)*0.5
			y := float64(r) * math.Sqrt(3.0) / 2.0

			n := octaveNoise(noise, x, y, octaves, cfg.Frequency, 0.5)
			capacity := base * (1 - variation + 2*variation*n)
			m.add(coord, capacity)
		}
	}
	// Built up front so concurrent readers never trigger the lazy path.
	m.buildNeighbors()
	return m
}

// octaveNoise sums octaves of normalized noise; the result stays in [0, 1].
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

	return clamp01(total / maxVal)
}
