package experiment

import (
	"math/rand/v2"

	"consensus/pkg/geom"
)

// planarAnchors are the corners of the triangle 2D agents start around.
//
//nolint:gochecknoglobals
var planarAnchors = []geom.Vec2{geom.V(20, 20), geom.V(80, 20), geom.V(50, 80)}

// ScalarLayouts draws integer start positions in [0, 100) for every agent of every instance.
func ScalarLayouts(rng *rand.Rand, instances, agents int) [][]float64 {
	layouts := make([][]float64, instances)
	for i := range layouts {
		layout := make([]float64, agents)
		for j := range layout {
			layout[j] = float64(rng.IntN(100))
		}
		layouts[i] = layout
	}
	return layouts
}

// PlanarLayouts places the first three agents of every instance around the
// triangle anchors with integer jitter in [-10, 10). Further agents start at
// uniform integer points in [10, 90].
func PlanarLayouts(rng *rand.Rand, instances, agents int) [][]geom.Vec2 {
	layouts := make([][]geom.Vec2, instances)
	for i := range layouts {
		layout := make([]geom.Vec2, agents)
		for j := range layout {
			if j < len(planarAnchors) {
				jitter := geom.V(float64(rng.IntN(20)-10), float64(rng.IntN(20)-10))
				layout[j] = planarAnchors[j].Add(jitter)
				continue
			}
			layout[j] = geom.V(float64(rng.IntN(81)+10), float64(rng.IntN(81)+10))
		}
		layouts[i] = layout
	}
	return layouts
}

// NewRand returns the placement RNG for seed.
func NewRand(seed int64) *rand.Rand {
	s := uint64(seed) //nolint:gosec // seed bits are reinterpreted, not truncated
	return rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))
}
