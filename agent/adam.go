package agent

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Adam applies the Adam update rule to an MLP's accumulated gradients.
// One Adam instance is bound to one network; moment estimates live here
// rather than in the layers so checkpoints stay parameter-only.
type Adam struct {
	net *MLP

	lr    float64
	beta1 float64
	beta2 float64
	eps   float64

	t  int
	mw []*mat.Dense
	vw []*mat.Dense
	mb []*mat.VecDense
	vb []*mat.VecDense
}

// NewAdam creates an Adam optimizer for the network with the standard
// moment decay rates.
func NewAdam(net *MLP, lr float64) *Adam {
	a := &Adam{net: net, lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-8}
	for _, l := range net.layers {
		out, in := l.w.Dims()
		a.mw = append(a.mw, mat.NewDense(out, in, nil))
		a.vw = append(a.vw, mat.NewDense(out, in, nil))
		a.mb = append(a.mb, mat.NewVecDense(out, nil))
		a.vb = append(a.vb, mat.NewVecDense(out, nil))
	}
	return a
}

// Step applies one bias-corrected Adam update from the gradients
// currently accumulated on the network. The caller zeroes gradients
// between minibatches.
func (a *Adam) Step() {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))
	for i, l := range a.net.layers {
		out, in := l.w.Dims()
		for r := 0; r < out; r++ {
			for c := 0; c < in; c++ {
				g := l.gw.At(r, c)
				m := a.beta1*a.mw[i].At(r, c) + (1-a.beta1)*g
				v := a.beta2*a.vw[i].At(r, c) + (1-a.beta2)*g*g
				a.mw[i].Set(r, c, m)
				a.vw[i].Set(r, c, v)
				l.w.Set(r, c, l.w.At(r, c)-a.lr*(m/c1)/(math.Sqrt(v/c2)+a.eps))
			}
			g := l.gb.AtVec(r)
			m := a.beta1*a.mb[i].AtVec(r) + (1-a.beta1)*g
			v := a.beta2*a.vb[i].AtVec(r) + (1-a.beta2)*g*g
			a.mb[i].SetVec(r, m)
			a.vb[i].SetVec(r, v)
			l.b.SetVec(r, l.b.AtVec(r)-a.lr*(m/c1)/(math.Sqrt(v/c2)+a.eps))
		}
	}
}
