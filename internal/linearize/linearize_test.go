package linearize

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/pendlab/internal/physics"
	"github.com/san-kum/pendlab/internal/sim"
)

// analyticCartPole returns the hand-derived linearization of the cart-pole
// about the upright equilibrium, for comparison with finite differences.
func analyticCartPole(c *physics.CartPole) (a, b *mat.Dense) {
	mc := c.CartMass
	mp := c.PoleMass
	l := c.PoleLength
	ip := c.PoleInertia
	fr := c.Friction
	g := c.Gravity

	iml := ip + mp*l*l
	p := iml*(mc+mp) - mp*mp*l*l

	a = mat.NewDense(4, 4, []float64{
		0, 1, 0, 0,
		0, -iml * fr / p, -mp * mp * g * l * l / p, 0,
		0, 0, 0, 1,
		0, mp * l * fr / p, mp * g * l * (mc + mp) / p, 0,
	})
	b = mat.NewDense(4, 1, []float64{
		0,
		iml / p,
		0,
		-mp * l / p,
	})
	return a, b
}

func TestCartPoleLinearizationMatchesAnalytic(t *testing.T) {
	plant := physics.NewCartPole()
	op := Equilibrium(plant.StateDim(), plant.ControlDim())

	model, err := Linearize(plant, op, DefaultEps)
	if err != nil {
		t.Fatalf("linearize failed: %v", err)
	}

	wantA, wantB := analyticCartPole(plant)

	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if diff := math.Abs(model.A.At(i, j) - wantA.At(i, j)); diff > 1e-6 {
				t.Errorf("A(%d,%d) = %g, want %g (diff %g)", i, j, model.A.At(i, j), wantA.At(i, j), diff)
			}
		}
		if diff := math.Abs(model.B.At(i, 0) - wantB.At(i, 0)); diff > 1e-6 {
			t.Errorf("B(%d,0) = %g, want %g (diff %g)", i, model.B.At(i, 0), wantB.At(i, 0), diff)
		}
	}
}

func TestLinearizeDeterministic(t *testing.T) {
	plant := physics.NewCartPole()
	op := OperatingPoint{X: sim.State{0.1, 0, 0.05, 0}, U: sim.Control{1.0}}

	m1, err := Linearize(plant, op, 1e-5)
	if err != nil {
		t.Fatalf("linearize failed: %v", err)
	}
	m2, err := Linearize(plant, op, 1e-5)
	if err != nil {
		t.Fatalf("linearize failed: %v", err)
	}

	if !mat.Equal(m1.A, m2.A) || !mat.Equal(m1.B, m2.B) {
		t.Error("linearization not deterministic for a fixed perturbation size")
	}
}

type nastyPlant struct{}

func (n *nastyPlant) Derivative(x sim.State, u sim.Control, t float64) sim.State {
	// sqrt is undefined on one side of x=0, so the central difference
	// straddles a domain boundary
	return sim.State{math.Sqrt(x[0])}
}
func (n *nastyPlant) StateDim() int   { return 1 }
func (n *nastyPlant) ControlDim() int { return 0 }

func TestLinearizeRejectsDiscontinuity(t *testing.T) {
	op := Equilibrium(1, 0)
	if _, err := Linearize(&nastyPlant{}, op, 1e-6); err == nil {
		t.Error("expected error when linearizing across a singularity")
	}
}

func TestDiscretizeDoubleIntegrator(t *testing.T) {
	// x'' = u has the exact ZOH discretization
	//   Ad = [1 ts; 0 1], Bd = [ts^2/2; ts]
	m := &Model{
		A: mat.NewDense(2, 2, []float64{0, 1, 0, 0}),
		B: mat.NewDense(2, 1, []float64{0, 1}),
		C: mat.NewDense(2, 2, []float64{1, 0, 0, 1}),
		D: mat.NewDense(2, 1, nil),
	}

	ts := 0.1
	d, err := m.Discretize(ts)
	if err != nil {
		t.Fatalf("discretize failed: %v", err)
	}

	wantA := [][]float64{{1, ts}, {0, 1}}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if math.Abs(d.A.At(i, j)-wantA[i][j]) > 1e-12 {
				t.Errorf("Ad(%d,%d) = %g, want %g", i, j, d.A.At(i, j), wantA[i][j])
			}
		}
	}
	if math.Abs(d.B.At(0, 0)-ts*ts/2) > 1e-12 {
		t.Errorf("Bd(0,0) = %g, want %g", d.B.At(0, 0), ts*ts/2)
	}
	if math.Abs(d.B.At(1, 0)-ts) > 1e-12 {
		t.Errorf("Bd(1,0) = %g, want %g", d.B.At(1, 0), ts)
	}
}

func TestDiscretizeRejectsBadSampleTime(t *testing.T) {
	m := &Model{
		A: mat.NewDense(1, 1, []float64{0}),
		B: mat.NewDense(1, 1, []float64{1}),
		C: mat.NewDense(1, 1, []float64{1}),
		D: mat.NewDense(1, 1, nil),
	}
	if _, err := m.Discretize(0); err == nil {
		t.Error("expected error for zero sample time")
	}
}
