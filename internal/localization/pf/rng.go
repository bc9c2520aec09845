package pf

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/localizer/internal/localization/geom"
)

// streams owns every random source used by a filter. Slot i draws only from
// slots[i], which is seeded from (root, i); resampling draws from its own
// stream seeded from (root, n). Nothing is shared between goroutines.
type streams struct {
	slots    []*rand.PCG
	resample *rand.PCG
}

func newStreams(root uint64, n int) *streams {
	s := &streams{
		slots:    make([]*rand.PCG, n),
		resample: rand.NewPCG(root, uint64(n)),
	}
	for i := range s.slots {
		s.slots[i] = rand.NewPCG(root, uint64(i))
	}
	return s
}

// samplePose draws each pose component independently from a normal centred
// on mean. A zero standard deviation returns the mean exactly.
func samplePose(src rand.Source, mean geom.Pose, std geom.StdDev) geom.Pose {
	return geom.Pose{
		X:     distuv.Normal{Mu: mean.X, Sigma: std.X, Src: src}.Rand(),
		Y:     distuv.Normal{Mu: mean.Y, Sigma: std.Y, Src: src}.Rand(),
		Theta: distuv.Normal{Mu: mean.Theta, Sigma: std.Theta, Src: src}.Rand(),
	}
}
