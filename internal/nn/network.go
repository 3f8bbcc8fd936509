package nn

import (
	"errors"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrTooFewLayers = errors.New("network needs at least two layers")
	ErrLayerShape   = errors.New("layer shapes do not chain")
	ErrInputWidth   = errors.New("input width mismatch")
)

// Layer maps FanIn inputs to FanOut outputs as act(W*x + b).
type Layer struct {
	Weights    *mat.Dense
	Biases     *mat.VecDense
	Activation string

	fn ActivationFunc
}

func NewLayer(weights *mat.Dense, biases *mat.VecDense, activation string) (Layer, error) {
	fn, err := GetActivation(activation)
	if err != nil {
		return Layer{}, err
	}
	rows, _ := weights.Dims()
	if biases.Len() != rows {
		return Layer{}, fmt.Errorf("%w: %d biases for %d neurons", ErrLayerShape, biases.Len(), rows)
	}
	return Layer{Weights: weights, Biases: biases, Activation: activation, fn: fn}, nil
}

func (l Layer) FanIn() int {
	_, c := l.Weights.Dims()
	return c
}

func (l Layer) FanOut() int {
	r, _ := l.Weights.Dims()
	return r
}

func (l Layer) clone() Layer {
	return Layer{
		Weights:    mat.DenseCopyOf(l.Weights),
		Biases:     mat.VecDenseCopyOf(l.Biases),
		Activation: l.Activation,
		fn:         l.fn,
	}
}

// Network is a fixed-topology feed-forward network. Each network owns its
// matrices; Clone is the only way to share values between networks.
type Network struct {
	layers []Layer
}

func New(layers ...Layer) (*Network, error) {
	if len(layers) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewLayers, len(layers))
	}
	for i := 1; i < len(layers); i++ {
		if layers[i].FanIn() != layers[i-1].FanOut() {
			return nil, fmt.Errorf("%w: layer %d takes %d inputs, layer %d gives %d",
				ErrLayerShape, i, layers[i].FanIn(), i-1, layers[i-1].FanOut())
		}
	}
	for i := range layers {
		if layers[i].fn == nil {
			fn, err := GetActivation(layers[i].Activation)
			if err != nil {
				return nil, fmt.Errorf("layer %d: %w", i, err)
			}
			layers[i].fn = fn
		}
	}
	return &Network{layers: layers}, nil
}

// Layers exposes the network's own layers for in-place edits.
func (n *Network) Layers() []Layer {
	return n.layers
}

func (n *Network) InputWidth() int {
	return n.layers[0].FanIn()
}

func (n *Network) OutputWidth() int {
	return n.layers[len(n.layers)-1].FanOut()
}

// Shape describes one layer's dimensions.
type Shape struct {
	FanIn      int
	FanOut     int
	Activation string
}

func (n *Network) Topology() []Shape {
	out := make([]Shape, len(n.layers))
	for i, l := range n.layers {
		out[i] = Shape{FanIn: l.FanIn(), FanOut: l.FanOut(), Activation: l.Activation}
	}
	return out
}

func (n *Network) Predict(input []float64) ([]float64, error) {
	if len(input) != n.InputWidth() {
		return nil, fmt.Errorf("%w: got %d want %d", ErrInputWidth, len(input), n.InputWidth())
	}
	x := mat.NewVecDense(len(input), append([]float64(nil), input...))
	for _, l := range n.layers {
		y := mat.NewVecDense(l.FanOut(), nil)
		y.MulVec(l.Weights, x)
		y.AddVec(y, l.Biases)
		for i := 0; i < y.Len(); i++ {
			y.SetVec(i, l.fn(y.AtVec(i)))
		}
		x = y
	}
	out := make([]float64, x.Len())
	for i := range out {
		out[i] = x.AtVec(i)
	}
	return out, nil
}

func (n *Network) Clone() *Network {
	layers := make([]Layer, len(n.layers))
	for i, l := range n.layers {
		layers[i] = l.clone()
	}
	return &Network{layers: layers}
}

// SwapLayer exchanges layer i between n and o. Each layer stays owned by
// exactly one network.
func (n *Network) SwapLayer(o *Network, i int) {
	n.layers[i], o.layers[i] = o.layers[i], n.layers[i]
}

// Equal reports whether both networks have the same topology and values.
func (n *Network) Equal(o *Network) bool {
	if len(n.layers) != len(o.layers) {
		return false
	}
	for i := range n.layers {
		a, b := n.layers[i], o.layers[i]
		if a.Activation != b.Activation || !mat.Equal(a.Weights, b.Weights) || !mat.Equal(a.Biases, b.Biases) {
			return false
		}
	}
	return true
}

// LayerSpec names the width and activation of one layer's input side.
type LayerSpec struct {
	Neurons    int
	Activation string
}

// NewRandom builds one layer per spec. Layer i maps specs[i].Neurons inputs to
// specs[i+1].Neurons outputs (outputs for the last layer) and uses
// specs[i].Activation. Values are drawn uniformly from [-1, 1).
func NewRandom(rng *rand.Rand, specs []LayerSpec, outputs int) (*Network, error) {
	if len(specs) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewLayers, len(specs))
	}
	if outputs <= 0 {
		return nil, fmt.Errorf("%w: output width %d", ErrLayerShape, outputs)
	}
	layers := make([]Layer, len(specs))
	for i, spec := range specs {
		if spec.Neurons <= 0 {
			return nil, fmt.Errorf("%w: layer %d has %d neurons", ErrLayerShape, i, spec.Neurons)
		}
		fanOut := outputs
		if i+1 < len(specs) {
			fanOut = specs[i+1].Neurons
		}
		weights := mat.NewDense(fanOut, spec.Neurons, uniform(rng, fanOut*spec.Neurons))
		biases := mat.NewVecDense(fanOut, uniform(rng, fanOut))
		layer, err := NewLayer(weights, biases, spec.Activation)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		layers[i] = layer
	}
	return New(layers...)
}

// Uniform draws from [-1, 1).
func Uniform(rng *rand.Rand) float64 {
	return rng.Float64()*2 - 1
}

func uniform(rng *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = Uniform(rng)
	}
	return out
}
