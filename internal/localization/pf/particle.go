package pf

import "github.com/banshee-data/localizer/internal/localization/geom"

// Particle is one weighted pose hypothesis.
type Particle struct {
	ID     int
	Pose   geom.Pose
	Weight float64

	// Diagnostics from the latest weighting pass: matched landmark ids and
	// the map-frame coordinates of the observations that matched them.
	Associations []int
	SenseX       []float64
	SenseY       []float64
}

// SetAssociations replaces the diagnostic association record of p.
// It has no effect on the filter math.
func SetAssociations(p *Particle, associations []int, senseX, senseY []float64) {
	p.Associations = append(p.Associations[:0], associations...)
	p.SenseX = append(p.SenseX[:0], senseX...)
	p.SenseY = append(p.SenseY[:0], senseY...)
}

func (p *Particle) clearAssociations() {
	p.Associations = p.Associations[:0]
	p.SenseX = p.SenseX[:0]
	p.SenseY = p.SenseY[:0]
}

func (p *Particle) recordAssociation(id int, world geom.Point) {
	p.Associations = append(p.Associations, id)
	p.SenseX = append(p.SenseX, world.X)
	p.SenseY = append(p.SenseY, world.Y)
}

// copyInto makes dst an independent copy of src, reusing dst's buffers.
func copyInto(dst, src *Particle) {
	dst.ID = src.ID
	dst.Pose = src.Pose
	dst.Weight = src.Weight
	SetAssociations(dst, src.Associations, src.SenseX, src.SenseY)
}

// Clone returns a deep copy of p.
func (p Particle) Clone() Particle {
	var out Particle
	copyInto(&out, &p)
	return out
}

// Set is the particle population. It holds two generations: the current one,
// mutated in place by prediction and weighting, and a spare that resampling
// fills before the two are swapped. The size never changes after creation.
type Set struct {
	cur   []Particle
	spare []Particle
}

func newSet(n int) *Set {
	return &Set{
		cur:   make([]Particle, n),
		spare: make([]Particle, n),
	}
}

// Len returns the number of particles.
func (s *Set) Len() int { return len(s.cur) }

// at returns a pointer into the current generation.
func (s *Set) at(i int) *Particle { return &s.cur[i] }

// swap installs the spare generation as current.
func (s *Set) swap() { s.cur, s.spare = s.spare, s.cur }

// snapshot deep-copies the current generation.
func (s *Set) snapshot() []Particle {
	out := make([]Particle, len(s.cur))
	for i := range s.cur {
		copyInto(&out[i], &s.cur[i])
	}
	return out
}
