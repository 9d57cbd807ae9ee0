package rl

import (
	"math"
	"math/rand"
)

// Noise perturbs actions during training. Episode marks an episode
// boundary so decaying schedules can advance.
type Noise interface {
	Sample(rng *rand.Rand) float64
	Episode()
}

// OUNoise is an Ornstein-Uhlenbeck process: temporally correlated
// exploration that a physical actuator can follow.
type OUNoise struct {
	Theta, Sigma, Mu, Dt float64

	state float64
}

func NewOUNoise(sigma float64) *OUNoise {
	return &OUNoise{Theta: 0.15, Sigma: sigma, Dt: 0.05}
}

func (o *OUNoise) Sample(rng *rand.Rand) float64 {
	o.state += o.Theta*(o.Mu-o.state)*o.Dt + o.Sigma*math.Sqrt(o.Dt)*rng.NormFloat64()
	return o.state
}

func (o *OUNoise) Episode() {
	o.state = 0
}

// GaussianNoise is white noise whose scale decays geometrically each
// episode toward a floor.
type GaussianNoise struct {
	Sigma    float64
	SigmaMin float64
	Decay    float64
}

func NewGaussianNoise(sigma, sigmaMin, decay float64) *GaussianNoise {
	return &GaussianNoise{Sigma: sigma, SigmaMin: sigmaMin, Decay: decay}
}

func (g *GaussianNoise) Sample(rng *rand.Rand) float64 {
	return g.Sigma * rng.NormFloat64()
}

func (g *GaussianNoise) Episode() {
	g.Sigma *= g.Decay
	if g.Sigma < g.SigmaMin {
		g.Sigma = g.SigmaMin
	}
}
