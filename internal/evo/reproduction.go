package evo

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"

	"neurodrive/internal/nn"
)

var ErrTopologyMismatch = errors.New("genomes have different topologies")

// Reproduction combines two parent genomes into two children. Parents are
// never modified; both children are fresh deep copies.
type Reproduction interface {
	Name() string
	Reproduce(rng *rand.Rand, a, b *nn.Network) (*nn.Network, *nn.Network, error)
}

func siblings(a, b *nn.Network) (*nn.Network, *nn.Network, error) {
	if !slices.Equal(a.Topology(), b.Topology()) {
		return nil, nil, ErrTopologyMismatch
	}
	return a.Clone(), b.Clone(), nil
}

// WeightSwap exchanges one weight at the same position of a random layer.
type WeightSwap struct{}

func (WeightSwap) Name() string {
	return "weight_swap"
}

func (WeightSwap) Reproduce(rng *rand.Rand, a, b *nn.Network) (*nn.Network, *nn.Network, error) {
	x, y, err := siblings(a, b)
	if err != nil {
		return nil, nil, err
	}
	i := rng.Intn(len(x.Layers()))
	lx, ly := x.Layers()[i], y.Layers()[i]
	r, c := rng.Intn(lx.FanOut()), rng.Intn(lx.FanIn())
	vx, vy := lx.Weights.At(r, c), ly.Weights.At(r, c)
	lx.Weights.Set(r, c, vy)
	ly.Weights.Set(r, c, vx)
	return x, y, nil
}

// BiasSwap exchanges one bias of a random layer.
type BiasSwap struct{}

func (BiasSwap) Name() string {
	return "bias_swap"
}

func (BiasSwap) Reproduce(rng *rand.Rand, a, b *nn.Network) (*nn.Network, *nn.Network, error) {
	x, y, err := siblings(a, b)
	if err != nil {
		return nil, nil, err
	}
	i := rng.Intn(len(x.Layers()))
	lx, ly := x.Layers()[i], y.Layers()[i]
	k := rng.Intn(lx.FanOut())
	vx, vy := lx.Biases.AtVec(k), ly.Biases.AtVec(k)
	lx.Biases.SetVec(k, vy)
	ly.Biases.SetVec(k, vx)
	return x, y, nil
}

// NeuronSwap exchanges every incoming weight of one neuron.
type NeuronSwap struct{}

func (NeuronSwap) Name() string {
	return "neuron_swap"
}

func (NeuronSwap) Reproduce(rng *rand.Rand, a, b *nn.Network) (*nn.Network, *nn.Network, error) {
	x, y, err := siblings(a, b)
	if err != nil {
		return nil, nil, err
	}
	i := rng.Intn(len(x.Layers()))
	lx, ly := x.Layers()[i], y.Layers()[i]
	r := rng.Intn(lx.FanOut())
	rowX := append([]float64(nil), lx.Weights.RawRowView(r)...)
	lx.Weights.SetRow(r, ly.Weights.RawRowView(r))
	ly.Weights.SetRow(r, rowX)
	return x, y, nil
}

// LayerSwap exchanges a whole layer, weights and biases.
type LayerSwap struct{}

func (LayerSwap) Name() string {
	return "layer_swap"
}

func (LayerSwap) Reproduce(rng *rand.Rand, a, b *nn.Network) (*nn.Network, *nn.Network, error) {
	x, y, err := siblings(a, b)
	if err != nil {
		return nil, nil, err
	}
	x.SwapLayer(y, rng.Intn(len(x.Layers())))
	return x, y, nil
}

// DefaultReproductions favours small exchanges over whole layers.
func DefaultReproductions() []Weighted[Reproduction] {
	return []Weighted[Reproduction]{
		{Operator: WeightSwap{}, Weight: 5},
		{Operator: BiasSwap{}, Weight: 3},
		{Operator: NeuronSwap{}, Weight: 3},
		{Operator: LayerSwap{}, Weight: 1},
	}
}

// ReproductionByName resolves the operators DefaultReproductions knows.
func ReproductionByName(name string) (Reproduction, error) {
	for _, item := range DefaultReproductions() {
		if item.Operator.Name() == name {
			return item.Operator, nil
		}
	}
	return nil, fmt.Errorf("unknown reproduction operator %q", name)
}
