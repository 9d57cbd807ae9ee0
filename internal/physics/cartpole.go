package physics

import (
	"fmt"
	"math"

	"github.com/san-kum/pendlab/internal/sim"
)

// CartPole models a pendulum mounted on a driven cart. State is
// [x, xdot, theta, thetadot] with theta measured from the upright
// position, input is the horizontal force on the cart.
type CartPole struct {
	CartMass    float64 // M
	PoleMass    float64 // m
	PoleLength  float64 // l, pivot to pole center of mass
	PoleInertia float64 // I, about the center of mass
	Friction    float64 // b, viscous cart friction
	Gravity     float64
}

func NewCartPole() *CartPole {
	return &CartPole{
		CartMass:    0.5,
		PoleMass:    0.2,
		PoleLength:  0.3,
		PoleInertia: 0.006,
		Friction:    0.1,
		Gravity:     9.8,
	}
}

func (c *CartPole) StateDim() int   { return 4 }
func (c *CartPole) ControlDim() int { return 1 }

func (c *CartPole) Derivative(x sim.State, u sim.Control, t float64) sim.State {
	vel := x[1]
	theta := x[2]
	omega := x[3]

	force := 0.0
	if len(u) > 0 {
		force = u[0]
	}

	mc := c.CartMass
	mp := c.PoleMass
	l := c.PoleLength
	ip := c.PoleInertia
	b := c.Friction
	g := c.Gravity

	sint := math.Sin(theta)
	cost := math.Cos(theta)

	// From the Lagrangian of the cart-pole:
	//   (M+m) x'' + b x' + m l cos(th) th'' - m l th'^2 sin(th) = F
	//   (I+m l^2) th'' - m g l sin(th) + m l cos(th) x''        = 0
	iml := ip + mp*l*l
	denom := (mc+mp)*iml - (mp*l*cost)*(mp*l*cost)

	xacc := (iml*(force-b*vel+mp*l*omega*omega*sint) - mp*mp*g*l*l*sint*cost) / denom
	thetaacc := (mp*g*l*sint - mp*l*xacc*cost) / iml

	return sim.State{vel, xacc, omega, thetaacc}
}

func (c *CartPole) Energy(x sim.State) float64 {
	vel := x[1]
	theta := x[2]
	omega := x[3]

	l := c.PoleLength
	// pole center of mass velocity
	vx := vel + l*omega*math.Cos(theta)
	vy := -l * omega * math.Sin(theta)

	ke := 0.5*c.CartMass*vel*vel +
		0.5*c.PoleMass*(vx*vx+vy*vy) +
		0.5*c.PoleInertia*omega*omega
	pe := c.PoleMass * c.Gravity * l * math.Cos(theta)
	return ke + pe
}

func (c *CartPole) GetParams() map[string]float64 {
	return map[string]float64{
		"cart_mass":    c.CartMass,
		"pole_mass":    c.PoleMass,
		"pole_length":  c.PoleLength,
		"pole_inertia": c.PoleInertia,
		"friction":     c.Friction,
		"gravity":      c.Gravity,
	}
}

func (c *CartPole) SetParam(name string, value float64) error {
	switch name {
	case "cart_mass":
		c.CartMass = value
	case "pole_mass":
		c.PoleMass = value
	case "pole_length":
		c.PoleLength = value
	case "pole_inertia":
		c.PoleInertia = value
	case "friction":
		c.Friction = value
	case "gravity":
		c.Gravity = value
	default:
		return fmt.Errorf("unknown param: %s", name)
	}
	return nil
}
