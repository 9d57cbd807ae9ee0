package metrics

import (
	"math"

	"github.com/san-kum/pendlab/internal/sim"
)

// Tracking accumulates the RMS error of one state against its target.
type Tracking struct {
	name    string
	index   int
	target  float64
	sumSq   float64
	samples int
}

func NewTracking(index int, target float64) *Tracking {
	return &Tracking{
		name:   "tracking_rms",
		index:  index,
		target: target,
	}
}

func (tr *Tracking) Name() string {
	return tr.name
}

func (tr *Tracking) Observe(x sim.State, u sim.Control, t float64) {
	if tr.index >= len(x) {
		return
	}
	e := x[tr.index] - tr.target
	tr.sumSq += e * e
	tr.samples++
}

func (tr *Tracking) Value() float64 {
	if tr.samples == 0 {
		return 0
	}
	return math.Sqrt(tr.sumSq / float64(tr.samples))
}

func (tr *Tracking) Reset() {
	tr.sumSq = 0
	tr.samples = 0
}
