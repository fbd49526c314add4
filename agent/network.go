package agent

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// NetworkConfig groups the function-approximator hyperparameters. Exact
// widths are tunable, not contracts; the input and output widths are
// fixed by ObservationDim and NumActions.
type NetworkConfig struct {
	HiddenSizes []int   `yaml:"hidden_sizes"`
	Dropout     float64 `yaml:"dropout"`
}

// DefaultNetworkConfig returns two 64-wide hidden layers with light
// dropout between them.
func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{HiddenSizes: []int{64, 64}, Dropout: 0.1}
}

// LayerParams is the persisted form of one dense layer: row-major
// weights of shape Out×In plus biases.
type LayerParams struct {
	In      int       `json:"in"`
	Out     int       `json:"out"`
	Weights []float64 `json:"weights"`
	Biases  []float64 `json:"biases"`
}

// denseLayer is one fully connected layer with gradient accumulators
// and forward-pass caches for backprop.
type denseLayer struct {
	w *mat.Dense    // Out×In
	b *mat.VecDense // Out

	gw *mat.Dense
	gb *mat.VecDense

	// caches written by the training-mode forward pass
	in   []float64
	pre  []float64
	mask []float64 // dropout keep mask over this layer's activation, nil when inactive
}

func newDenseLayer(in, out int, rng *rand.Rand) *denseLayer {
	// He initialization: suited to the ReLU hidden activations.
	std := math.Sqrt(2.0 / float64(in))
	weights := make([]float64, in*out)
	for i := range weights {
		weights[i] = rng.NormFloat64() * std
	}
	return &denseLayer{
		w:  mat.NewDense(out, in, weights),
		b:  mat.NewVecDense(out, nil),
		gw: mat.NewDense(out, in, nil),
		gb: mat.NewVecDense(out, nil),
	}
}

// apply computes W·x + b into a fresh slice.
func (l *denseLayer) apply(x []float64) []float64 {
	out, in := l.w.Dims()
	y := make([]float64, out)
	for i := 0; i < out; i++ {
		s := l.b.AtVec(i)
		for j := 0; j < in; j++ {
			s += l.w.At(i, j) * x[j]
		}
		y[i] = s
	}
	return y
}

// MLP is a feed-forward network over the observation vector. The
// training-mode Forward caches activations for Backward and applies
// dropout; Infer is a pure, cache-free pass safe for concurrent use
// against frozen parameters.
type MLP struct {
	layers   []*denseLayer
	sizes    []int
	dropout  float64
	training bool
	rng      *rand.Rand // dropout masks
}

// NewMLP builds an MLP with the given layer sizes (input first, output
// last). rng seeds weight initialization and dropout masks.
func NewMLP(sizes []int, dropout float64, rng *rand.Rand) *MLP {
	if len(sizes) < 2 {
		panic("agent: MLP needs at least input and output sizes")
	}
	m := &MLP{sizes: append([]int(nil), sizes...), dropout: dropout, rng: rng}
	for i := 0; i < len(sizes)-1; i++ {
		m.layers = append(m.layers, newDenseLayer(sizes[i], sizes[i+1], rng))
	}
	return m
}

// SetTraining toggles training mode. Dropout is active only while
// training; inference stays deterministic.
func (m *MLP) SetTraining(training bool) { m.training = training }

// InputDim returns the expected input width.
func (m *MLP) InputDim() int { return m.sizes[0] }

// OutputDim returns the output width.
func (m *MLP) OutputDim() int { return m.sizes[len(m.sizes)-1] }

// Infer runs a pure forward pass: no caches, no dropout. Safe to call
// concurrently as long as no optimizer step runs at the same time.
func (m *MLP) Infer(x []float64) []float64 {
	h := x
	for i, l := range m.layers {
		h = l.apply(h)
		if i < len(m.layers)-1 {
			relu(h)
		}
	}
	return h
}

// Forward runs a training-mode pass, caching activations for Backward
// and applying dropout between hidden layers when training mode is on.
func (m *MLP) Forward(x []float64) []float64 {
	h := x
	for i, l := range m.layers {
		l.in = append(l.in[:0], h...)
		pre := l.apply(h)
		l.pre = append(l.pre[:0], pre...)
		l.mask = nil
		if i < len(m.layers)-1 {
			relu(pre)
			if m.training && m.dropout > 0 {
				keep := 1 - m.dropout
				l.mask = make([]float64, len(pre))
				for j := range pre {
					if m.rng.Float64() < keep {
						l.mask[j] = 1 / keep
					}
					pre[j] *= l.mask[j]
				}
			}
		}
		h = pre
	}
	return h
}

// Backward accumulates parameter gradients for the most recent Forward
// call, scaled by the given factor (typically 1/minibatch size).
func (m *MLP) Backward(dout []float64, scale float64) {
	d := append([]float64(nil), dout...)
	for i := len(m.layers) - 1; i >= 0; i-- {
		l := m.layers[i]
		if i < len(m.layers)-1 {
			// back through dropout and ReLU
			for j := range d {
				if l.mask != nil {
					d[j] *= l.mask[j]
				}
				if l.pre[j] <= 0 {
					d[j] = 0
				}
			}
		}
		out, in := l.w.Dims()
		din := make([]float64, in)
		for r := 0; r < out; r++ {
			l.gb.SetVec(r, l.gb.AtVec(r)+d[r]*scale)
			for c := 0; c < in; c++ {
				l.gw.Set(r, c, l.gw.At(r, c)+d[r]*l.in[c]*scale)
				din[c] += l.w.At(r, c) * d[r]
			}
		}
		d = din
	}
}

// ZeroGrad clears the accumulated gradients.
func (m *MLP) ZeroGrad() {
	for _, l := range m.layers {
		l.gw.Zero()
		l.gb.Zero()
	}
}

// GradNorm returns the global L2 norm of all accumulated gradients.
func (m *MLP) GradNorm() float64 {
	var sum float64
	for _, l := range m.layers {
		out, in := l.gw.Dims()
		for r := 0; r < out; r++ {
			for c := 0; c < in; c++ {
				g := l.gw.At(r, c)
				sum += g * g
			}
			g := l.gb.AtVec(r)
			sum += g * g
		}
	}
	return math.Sqrt(sum)
}

// ClipGradNorm rescales gradients so their global norm does not exceed
// maxNorm. Returns the pre-clip norm.
func (m *MLP) ClipGradNorm(maxNorm float64) float64 {
	norm := m.GradNorm()
	if maxNorm <= 0 || norm <= maxNorm || norm == 0 {
		return norm
	}
	s := maxNorm / norm
	for _, l := range m.layers {
		out, in := l.gw.Dims()
		for r := 0; r < out; r++ {
			for c := 0; c < in; c++ {
				l.gw.Set(r, c, l.gw.At(r, c)*s)
			}
			l.gb.SetVec(r, l.gb.AtVec(r)*s)
		}
	}
	return norm
}

// GradsFinite reports whether every accumulated gradient is finite.
func (m *MLP) GradsFinite() bool {
	for _, l := range m.layers {
		out, in := l.gw.Dims()
		for r := 0; r < out; r++ {
			for c := 0; c < in; c++ {
				if !isFinite(l.gw.At(r, c)) {
					return false
				}
			}
			if !isFinite(l.gb.AtVec(r)) {
				return false
			}
		}
	}
	return true
}

// Params exports a deep copy of all layer parameters.
func (m *MLP) Params() []LayerParams {
	params := make([]LayerParams, len(m.layers))
	for i, l := range m.layers {
		out, in := l.w.Dims()
		p := LayerParams{In: in, Out: out, Weights: make([]float64, in*out), Biases: make([]float64, out)}
		for r := 0; r < out; r++ {
			for c := 0; c < in; c++ {
				p.Weights[r*in+c] = l.w.At(r, c)
			}
			p.Biases[r] = l.b.AtVec(r)
		}
		params[i] = p
	}
	return params
}

// SetParams loads layer parameters, verifying the shapes match the
// configured architecture exactly. Mismatches fail rather than silently
// truncating or padding.
func (m *MLP) SetParams(params []LayerParams) error {
	if len(params) != len(m.layers) {
		return fmt.Errorf("layer count mismatch: have %d, checkpoint has %d", len(m.layers), len(params))
	}
	for i, p := range params {
		out, in := m.layers[i].w.Dims()
		if p.In != in || p.Out != out {
			return fmt.Errorf("layer %d shape mismatch: have %dx%d, checkpoint has %dx%d", i, out, in, p.Out, p.In)
		}
		if len(p.Weights) != in*out || len(p.Biases) != out {
			return fmt.Errorf("layer %d parameter length mismatch", i)
		}
	}
	for i, p := range params {
		l := m.layers[i]
		out, in := l.w.Dims()
		for r := 0; r < out; r++ {
			for c := 0; c < in; c++ {
				l.w.Set(r, c, p.Weights[r*in+c])
			}
			l.b.SetVec(r, p.Biases[r])
		}
	}
	return nil
}

// Clone returns an independent copy of the network's architecture and
// parameters. Gradient state and caches are not copied; the clone is in
// inference mode.
func (m *MLP) Clone() *MLP {
	c := &MLP{sizes: append([]int(nil), m.sizes...), dropout: m.dropout, rng: m.rng}
	for _, l := range m.layers {
		out, in := l.w.Dims()
		nl := &denseLayer{
			w:  mat.DenseCopyOf(l.w),
			b:  mat.VecDenseCopyOf(l.b),
			gw: mat.NewDense(out, in, nil),
			gb: mat.NewVecDense(out, nil),
		}
		c.layers = append(c.layers, nl)
	}
	return c
}

func relu(xs []float64) {
	for i, v := range xs {
		if v < 0 {
			xs[i] = 0
		}
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
