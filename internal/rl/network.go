package rl

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// OutputActivation selects the map applied to the final layer.
type OutputActivation int

const (
	// Linear leaves the final pre-activation untouched (critic).
	Linear OutputActivation = iota
	// TanhScaled squashes into ±Bound (actor).
	TanhScaled
)

type layer struct {
	w *mat.Dense // out x in
	b []float64

	// Adam moments
	mw, vw *mat.Dense
	mb, vb []float64

	// caches from the last Forward, consumed by Backward
	in  *mat.Dense // batch x in
	pre *mat.Dense // batch x out

	// gradients from the last Backward, consumed by Adam
	gw *mat.Dense
	gb []float64
}

// MLP is a dense network with ReLU hidden layers, trained by manual
// backprop with Adam. Batches are row-major: one sample per row.
type MLP struct {
	layers []*layer
	sizes  []int
	outAct OutputActivation
	bound  float64

	adamStep int
}

// NewMLP builds a network with the given layer sizes, e.g.
// [3, 64, 64, 1]. Hidden weights use He initialization, the final layer
// starts near zero so the initial policy/value is small.
func NewMLP(sizes []int, outAct OutputActivation, bound float64, rng *rand.Rand) (*MLP, error) {
	if len(sizes) < 2 {
		return nil, fmt.Errorf("need at least input and output sizes, got %v", sizes)
	}
	for _, s := range sizes {
		if s <= 0 {
			return nil, fmt.Errorf("layer sizes must be positive, got %v", sizes)
		}
	}
	if outAct == TanhScaled && bound <= 0 {
		return nil, fmt.Errorf("tanh output needs a positive bound")
	}

	n := &MLP{sizes: append([]int(nil), sizes...), outAct: outAct, bound: bound}
	for l := 0; l+1 < len(sizes); l++ {
		in, out := sizes[l], sizes[l+1]
		scale := math.Sqrt(2.0 / float64(in))
		if l == len(sizes)-2 {
			scale = 3e-3
		}
		w := mat.NewDense(out, in, nil)
		for i := 0; i < out; i++ {
			for j := 0; j < in; j++ {
				w.Set(i, j, (2*rng.Float64()-1)*scale)
			}
		}
		n.layers = append(n.layers, &layer{
			w:  w,
			b:  make([]float64, out),
			mw: mat.NewDense(out, in, nil),
			vw: mat.NewDense(out, in, nil),
			mb: make([]float64, out),
			vb: make([]float64, out),
		})
	}
	return n, nil
}

// Forward runs a batch (rows are samples) and caches intermediates for
// Backward.
func (n *MLP) Forward(x *mat.Dense) *mat.Dense {
	cur := x
	for li, l := range n.layers {
		batch, _ := cur.Dims()
		out, _ := l.w.Dims()

		pre := mat.NewDense(batch, out, nil)
		pre.Mul(cur, l.w.T())
		for i := 0; i < batch; i++ {
			for j := 0; j < out; j++ {
				pre.Set(i, j, pre.At(i, j)+l.b[j])
			}
		}

		l.in = cur
		l.pre = pre

		if li == len(n.layers)-1 {
			switch n.outAct {
			case TanhScaled:
				act := mat.NewDense(batch, out, nil)
				for i := 0; i < batch; i++ {
					for j := 0; j < out; j++ {
						act.Set(i, j, n.bound*math.Tanh(pre.At(i, j)))
					}
				}
				cur = act
			default:
				cur = pre
			}
		} else {
			act := mat.NewDense(batch, out, nil)
			for i := 0; i < batch; i++ {
				for j := 0; j < out; j++ {
					if v := pre.At(i, j); v > 0 {
						act.Set(i, j, v)
					}
				}
			}
			cur = act
		}
	}
	return cur
}

// Backward propagates dL/dy from the last Forward call, accumulates the
// parameter gradients, and returns dL/dx for chaining into an upstream
// network.
func (n *MLP) Backward(gradOut *mat.Dense) *mat.Dense {
	grad := mat.DenseCopyOf(gradOut)

	last := len(n.layers) - 1
	if n.outAct == TanhScaled {
		l := n.layers[last]
		batch, out := grad.Dims()
		for i := 0; i < batch; i++ {
			for j := 0; j < out; j++ {
				th := math.Tanh(l.pre.At(i, j))
				grad.Set(i, j, grad.At(i, j)*n.bound*(1-th*th))
			}
		}
	}

	var gradIn *mat.Dense
	for li := last; li >= 0; li-- {
		l := n.layers[li]

		if li != last {
			// ReLU gate
			batch, out := grad.Dims()
			for i := 0; i < batch; i++ {
				for j := 0; j < out; j++ {
					if l.pre.At(i, j) <= 0 {
						grad.Set(i, j, 0)
					}
				}
			}
		}

		outDim, inDim := l.w.Dims()
		gw := mat.NewDense(outDim, inDim, nil)
		gw.Mul(grad.T(), l.in)

		batch, _ := grad.Dims()
		gb := make([]float64, outDim)
		for i := 0; i < batch; i++ {
			for j := 0; j < outDim; j++ {
				gb[j] += grad.At(i, j)
			}
		}

		gradIn = mat.NewDense(batch, inDim, nil)
		gradIn.Mul(grad, l.w)

		l.gw = gw
		l.gb = gb
		grad = gradIn
	}
	return gradIn
}

// Adam applies one optimizer step with the gradients accumulated by the
// last Backward.
func (n *MLP) Adam(lr float64) {
	const (
		beta1 = 0.9
		beta2 = 0.999
		eps   = 1e-8
	)
	n.adamStep++
	bc1 := 1 - math.Pow(beta1, float64(n.adamStep))
	bc2 := 1 - math.Pow(beta2, float64(n.adamStep))

	for _, l := range n.layers {
		if l.gw == nil {
			continue
		}
		out, in := l.w.Dims()
		for i := 0; i < out; i++ {
			for j := 0; j < in; j++ {
				g := l.gw.At(i, j)
				m := beta1*l.mw.At(i, j) + (1-beta1)*g
				v := beta2*l.vw.At(i, j) + (1-beta2)*g*g
				l.mw.Set(i, j, m)
				l.vw.Set(i, j, v)
				l.w.Set(i, j, l.w.At(i, j)-lr*(m/bc1)/(math.Sqrt(v/bc2)+eps))
			}
			g := l.gb[i]
			m := beta1*l.mb[i] + (1-beta1)*g
			v := beta2*l.vb[i] + (1-beta2)*g*g
			l.mb[i] = m
			l.vb[i] = v
			l.b[i] -= lr * (m / bc1) / (math.Sqrt(v/bc2) + eps)
		}
		l.gw = nil
		l.gb = nil
	}
}

// Clone copies the parameters into a fresh network (used for targets).
func (n *MLP) Clone() *MLP {
	out := &MLP{
		sizes:  append([]int(nil), n.sizes...),
		outAct: n.outAct,
		bound:  n.bound,
	}
	for _, l := range n.layers {
		r, c := l.w.Dims()
		out.layers = append(out.layers, &layer{
			w:  mat.DenseCopyOf(l.w),
			b:  append([]float64(nil), l.b...),
			mw: mat.NewDense(r, c, nil),
			vw: mat.NewDense(r, c, nil),
			mb: make([]float64, r),
			vb: make([]float64, r),
		})
	}
	return out
}

// SoftUpdate moves this network toward src: p ← τ·src + (1−τ)·p.
func (n *MLP) SoftUpdate(src *MLP, tau float64) error {
	if len(n.layers) != len(src.layers) {
		return fmt.Errorf("layer count mismatch: %d vs %d", len(n.layers), len(src.layers))
	}
	for li, l := range n.layers {
		s := src.layers[li]
		out, in := l.w.Dims()
		so, si := s.w.Dims()
		if out != so || in != si {
			return fmt.Errorf("layer %d shape mismatch", li)
		}
		for i := 0; i < out; i++ {
			for j := 0; j < in; j++ {
				l.w.Set(i, j, tau*s.w.At(i, j)+(1-tau)*l.w.At(i, j))
			}
			l.b[i] = tau*s.b[i] + (1-tau)*l.b[i]
		}
	}
	return nil
}

type mlpParams struct {
	Sizes   []int       `json:"sizes"`
	OutAct  int         `json:"out_act"`
	Bound   float64     `json:"bound"`
	Weights [][]float64 `json:"weights"` // row-major per layer
	Biases  [][]float64 `json:"biases"`
}

func (n *MLP) MarshalJSON() ([]byte, error) {
	p := mlpParams{
		Sizes:  n.sizes,
		OutAct: int(n.outAct),
		Bound:  n.bound,
	}
	for _, l := range n.layers {
		out, in := l.w.Dims()
		row := make([]float64, 0, out*in)
		for i := 0; i < out; i++ {
			for j := 0; j < in; j++ {
				row = append(row, l.w.At(i, j))
			}
		}
		p.Weights = append(p.Weights, row)
		p.Biases = append(p.Biases, append([]float64(nil), l.b...))
	}
	return json.Marshal(p)
}

func (n *MLP) UnmarshalJSON(data []byte) error {
	var p mlpParams
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if len(p.Sizes) < 2 || len(p.Weights) != len(p.Sizes)-1 || len(p.Biases) != len(p.Sizes)-1 {
		return fmt.Errorf("malformed network parameters")
	}

	n.sizes = p.Sizes
	n.outAct = OutputActivation(p.OutAct)
	n.bound = p.Bound
	n.layers = nil
	n.adamStep = 0

	for li := 0; li+1 < len(p.Sizes); li++ {
		in, out := p.Sizes[li], p.Sizes[li+1]
		if len(p.Weights[li]) != out*in || len(p.Biases[li]) != out {
			return fmt.Errorf("layer %d has wrong parameter count", li)
		}
		n.layers = append(n.layers, &layer{
			w:  mat.NewDense(out, in, append([]float64(nil), p.Weights[li]...)),
			b:  append([]float64(nil), p.Biases[li]...),
			mw: mat.NewDense(out, in, nil),
			vw: mat.NewDense(out, in, nil),
			mb: make([]float64, out),
			vb: make([]float64, out),
		})
	}
	return nil
}
