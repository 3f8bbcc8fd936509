package evo

import (
	"fmt"
	"math/rand"

	"neurodrive/internal/nn"
)

// Mutation edits one genome in place.
type Mutation interface {
	Name() string
	Mutate(rng *rand.Rand, genome *nn.Network)
}

func randomLayer(rng *rand.Rand, genome *nn.Network) nn.Layer {
	layers := genome.Layers()
	return layers[rng.Intn(len(layers))]
}

// RandomWeight replaces one weight with a value from [-1, 1).
type RandomWeight struct{}

func (RandomWeight) Name() string {
	return "random_weight"
}

func (RandomWeight) Mutate(rng *rand.Rand, genome *nn.Network) {
	l := randomLayer(rng, genome)
	l.Weights.Set(rng.Intn(l.FanOut()), rng.Intn(l.FanIn()), nn.Uniform(rng))
}

// RandomBias replaces one bias with a value from [-1, 1).
type RandomBias struct{}

func (RandomBias) Name() string {
	return "random_bias"
}

func (RandomBias) Mutate(rng *rand.Rand, genome *nn.Network) {
	l := randomLayer(rng, genome)
	l.Biases.SetVec(rng.Intn(l.FanOut()), nn.Uniform(rng))
}

type FlipSign struct{}

func (FlipSign) Name() string {
	return "flip_sign"
}

func (FlipSign) Mutate(rng *rand.Rand, genome *nn.Network) {
	l := randomLayer(rng, genome)
	r, c := rng.Intn(l.FanOut()), rng.Intn(l.FanIn())
	l.Weights.Set(r, c, -l.Weights.At(r, c))
}

// MultiplyNeuron scales each incoming weight of one neuron by its own factor
// drawn from [Min, Max).
type MultiplyNeuron struct {
	Min float64
	Max float64
}

func (MultiplyNeuron) Name() string {
	return "multiply_neuron"
}

func (o MultiplyNeuron) Mutate(rng *rand.Rand, genome *nn.Network) {
	l := randomLayer(rng, genome)
	row := l.Weights.RawRowView(rng.Intn(l.FanOut()))
	for i := range row {
		row[i] *= o.Min + rng.Float64()*(o.Max-o.Min)
	}
}

// RandomizeNeuron redraws every incoming weight of one neuron from [-1, 1).
type RandomizeNeuron struct{}

func (RandomizeNeuron) Name() string {
	return "randomize_neuron"
}

func (RandomizeNeuron) Mutate(rng *rand.Rand, genome *nn.Network) {
	l := randomLayer(rng, genome)
	row := l.Weights.RawRowView(rng.Intn(l.FanOut()))
	for i := range row {
		row[i] = nn.Uniform(rng)
	}
}

// ShuffleNeuron permutes the incoming weights of one neuron.
type ShuffleNeuron struct{}

func (ShuffleNeuron) Name() string {
	return "shuffle_neuron"
}

func (ShuffleNeuron) Mutate(rng *rand.Rand, genome *nn.Network) {
	l := randomLayer(rng, genome)
	row := l.Weights.RawRowView(rng.Intn(l.FanOut()))
	rng.Shuffle(len(row), func(i, j int) {
		row[i], row[j] = row[j], row[i]
	})
}

// ShuffleBiases permutes all biases of one layer.
type ShuffleBiases struct{}

func (ShuffleBiases) Name() string {
	return "shuffle_biases"
}

func (ShuffleBiases) Mutate(rng *rand.Rand, genome *nn.Network) {
	b := randomLayer(rng, genome).Biases
	rng.Shuffle(b.Len(), func(i, j int) {
		vi, vj := b.AtVec(i), b.AtVec(j)
		b.SetVec(i, vj)
		b.SetVec(j, vi)
	})
}

func DefaultMutations() []Weighted[Mutation] {
	return []Weighted[Mutation]{
		{Operator: RandomWeight{}, Weight: 10},
		{Operator: RandomBias{}, Weight: 10},
		{Operator: FlipSign{}, Weight: 5},
		{Operator: MultiplyNeuron{Min: 0.5, Max: 1.5}, Weight: 5},
		{Operator: RandomizeNeuron{}, Weight: 1},
		{Operator: ShuffleNeuron{}, Weight: 2},
		{Operator: ShuffleBiases{}, Weight: 2},
	}
}

// MutationByName resolves the operators DefaultMutations knows.
func MutationByName(name string) (Mutation, error) {
	for _, item := range DefaultMutations() {
		if item.Operator.Name() == name {
			return item.Operator, nil
		}
	}
	return nil, fmt.Errorf("unknown mutation operator %q", name)
}
