package config

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/fs"

	"neurodrive/internal/nn"
)

const sample = `
[evolution]
population_size = 40
golden_tickets = 4
max_parents = 12
mutation_chance = 0.3
seed = 99
reproduction_weights = layer_swap=0 weight_swap=2
mutation_weights = shuffle_biases=0

[vehicle]
traction = 6.5
max_forward_speed = 150

[simulation]
dt = 0.05
stall_ticks = 50

[network]
hidden = 4 3
activation = relu
feed_speed = false

[training]
generations = 12
save_every = 5
`

func TestLoadOverridesDefaults(t *testing.T) {
	dir := fs.NewDir(t, "hyperparams", fs.WithFile("train.ini", sample))
	h, err := Load(dir.Join("train.ini"))
	assert.NilError(t, err)

	assert.Equal(t, h.Evolution.PopulationSize, 40)
	assert.Equal(t, h.Evolution.GoldenTickets, 4)
	assert.Equal(t, h.Evolution.Seed, int64(99))
	assert.Equal(t, h.Vehicle.Traction, 6.5)
	assert.Equal(t, h.Vehicle.MaxForwardSpeed, 150.0)
	assert.Equal(t, h.Vehicle.MinForwardSpeed, Default().Vehicle.MinForwardSpeed)
	assert.Equal(t, h.Simulation.DT, 0.05)
	assert.Equal(t, h.Simulation.MaxTicks, Default().Simulation.MaxTicks)
	assert.DeepEqual(t, h.Network.Hidden, []int{4, 3})
	assert.Equal(t, h.Network.Activation, "relu")
	assert.Equal(t, h.Network.Inputs(), 5)
	assert.Equal(t, h.Training.SaveEvery, 5)

	cfg, err := h.EvolutionConfig()
	assert.NilError(t, err)
	weights := map[string]float64{}
	for _, r := range cfg.Reproductions {
		weights[r.Operator.Name()] = r.Weight
	}
	assert.Equal(t, weights["layer_swap"], 0.0)
	assert.Equal(t, weights["weight_swap"], 2.0)
	assert.Equal(t, weights["bias_swap"], 3.0)
	for _, m := range cfg.Mutations {
		if m.Operator.Name() == "shuffle_biases" {
			assert.Equal(t, m.Weight, 0.0)
		}
	}
}

func TestParseSingleSection(t *testing.T) {
	h, err := Parse([]byte("[evolution]\nmutation_chance = 0.25\n"))
	assert.NilError(t, err)
	assert.Equal(t, h.Evolution.MutationChance, 0.25)
}

func TestLayerSpecs(t *testing.T) {
	specs := Default().Network.LayerSpecs()
	assert.DeepEqual(t, specs, []nn.LayerSpec{
		{Neurons: 6, Activation: "tanh"},
		{Neurons: 8, Activation: "tanh"},
		{Neurons: 12, Activation: "tanh"},
		{Neurons: 18, Activation: "tanh"},
		{Neurons: 9, Activation: "tanh"},
	})
}

func TestDefaultsAreValid(t *testing.T) {
	assert.NilError(t, Default().Validate())
}

func TestValidationErrors(t *testing.T) {
	cases := map[string]string{
		"population":    "[evolution]\npopulation_size = 2\n",
		"operator":      "[evolution]\nmutation_weights = teleport=3\n",
		"pair":          "[evolution]\nmutation_weights = flip_sign\n",
		"weight":        "[evolution]\nmutation_weights = flip_sign=lots\n",
		"vehicle":       "[vehicle]\nmin_forward_speed = 500\n",
		"dt":            "[simulation]\ndt = 0\n",
		"hidden":        "[network]\nhidden = 4 0\n",
		"activation":    "[network]\nactivation = softsign\n",
		"training":      "[training]\nsave_every = -1\n",
		"no operators":  "[evolution]\nreproduction_weights = weight_swap=0 bias_swap=0 neuron_swap=0 layer_swap=0\n",
		"bad int value": "[evolution]\npopulation_size = many\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(content))
			assert.Assert(t, err != nil)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := fs.NewDir(t, "hyperparams")
	path := filepath.Join(dir.Path(), "out.ini")

	h := Default()
	h.Evolution.PopulationSize = 77
	h.Evolution.MaxParents = 25
	h.Evolution.MutationWeights = []string{"flip_sign=7"}
	h.Network.Hidden = []int{5, 5}
	assert.NilError(t, h.Save(path))

	got, err := Load(path)
	assert.NilError(t, err)
	assert.Equal(t, got.Evolution.PopulationSize, 77)
	assert.Equal(t, got.Evolution.MaxParents, 25)
	assert.DeepEqual(t, got.Evolution.MutationWeights, []string{"flip_sign=7"})
	assert.DeepEqual(t, got.Network.Hidden, []int{5, 5})
	assert.Check(t, is.Equal(got.Vehicle, h.Vehicle))
	assert.Check(t, is.Equal(got.Simulation, h.Simulation))
	assert.Check(t, is.Equal(got.Training, h.Training))
}

func TestSaveRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ini")

	h := Default()
	h.Evolution.PopulationSize = 77
	assert.ErrorContains(t, h.Save(path), "max parents")

	_, err := os.Stat(path)
	assert.Assert(t, os.IsNotExist(err), "invalid hyperparameters must not be written")
}

func TestUnknownOperatorWeight(t *testing.T) {
	_, err := Parse([]byte("[evolution]\nreproduction_weights = teleport=1\n"))
	assert.ErrorContains(t, err, "unknown reproduction operator")

	_, err = Parse([]byte("[evolution]\nmutation_weights = teleport=1\n"))
	assert.ErrorContains(t, err, "unknown mutation operator")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.ini"))
	assert.ErrorContains(t, err, "missing.ini")
}
