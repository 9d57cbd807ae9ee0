package metrics

import (
	"math"

	"github.com/san-kum/pendlab/internal/sim"
)

// Settling records the last time the tracked state left the band around
// the target, i.e. the settling time once the run is over. The band is a
// fraction of the target magnitude (absolute when the target is zero).
type Settling struct {
	name   string
	index  int
	target float64
	band   float64

	last     float64
	observed bool
}

// NewSettling uses the conventional 2% band.
func NewSettling(index int, target float64) *Settling {
	return NewSettlingBand(index, target, 0.02)
}

func NewSettlingBand(index int, target, band float64) *Settling {
	return &Settling{
		name:   "settling_time",
		index:  index,
		target: target,
		band:   band,
	}
}

func (s *Settling) Name() string {
	return s.name
}

func (s *Settling) Observe(x sim.State, u sim.Control, t float64) {
	if s.index >= len(x) {
		return
	}
	width := s.band * math.Abs(s.target)
	if width == 0 {
		width = s.band
	}
	if math.Abs(x[s.index]-s.target) > width {
		s.last = t
	}
	s.observed = true
}

// Value returns the settling time, or NaN before any observation.
func (s *Settling) Value() float64 {
	if !s.observed {
		return math.NaN()
	}
	return s.last
}

func (s *Settling) Reset() {
	s.last = 0
	s.observed = false
}
