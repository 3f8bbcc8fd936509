// Package config loads training hyperparameters from INI files.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"neurodrive/internal/evo"
	"neurodrive/internal/nn"
	"neurodrive/internal/sim"
	"neurodrive/internal/vehicle"
)

type Hyperparameters struct {
	Evolution  EvolutionConfig
	Vehicle    vehicle.Params
	Simulation sim.Config
	Network    NetworkConfig
	Training   TrainingConfig
}

type EvolutionConfig struct {
	PopulationSize    int     `ini:"population_size"`
	GoldenTickets     int     `ini:"golden_tickets"`
	MaxParents        int     `ini:"max_parents"`
	MutationChance    float64 `ini:"mutation_chance"`
	ReevaluateParents bool    `ini:"reevaluate_parents"`
	Seed              int64   `ini:"seed"`
	// Operator weights as space separated name=weight pairs. Operators not
	// listed keep their default weight.
	ReproductionWeights []string `ini:"reproduction_weights" delim:" "`
	MutationWeights     []string `ini:"mutation_weights" delim:" "`
}

type NetworkConfig struct {
	// Hidden lists the neuron count of every hidden layer.
	Hidden     []int  `ini:"hidden" delim:" "`
	Activation string `ini:"activation"`
	FeedSpeed  bool   `ini:"feed_speed"`
}

type TrainingConfig struct {
	Generations int `ini:"generations"`
	// SaveEvery checkpoints genomes every this many generations. Zero only
	// saves at the end.
	SaveEvery int `ini:"save_every"`
	// TopGenomes is how many ranked genomes a checkpoint keeps. Zero keeps
	// the whole population.
	TopGenomes int `ini:"top_genomes"`
}

func Default() Hyperparameters {
	e := evo.DefaultConfig()
	return Hyperparameters{
		Evolution: EvolutionConfig{
			PopulationSize: e.PopulationSize,
			GoldenTickets:  e.GoldenTickets,
			MaxParents:     e.MaxParents,
			MutationChance: e.MutationChance,
			Seed:           e.Seed,
		},
		Vehicle:    vehicle.DefaultParams(),
		Simulation: sim.DefaultConfig(),
		Network: NetworkConfig{
			Hidden:     []int{8, 12, 18, 9},
			Activation: "tanh",
			FeedSpeed:  true,
		},
		Training: TrainingConfig{Generations: 100, SaveEvery: 100},
	}
}

// Load reads an INI file over the defaults. Missing sections and keys keep
// their default values.
func Load(path string) (Hyperparameters, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:         true,
		UnescapeValueCommentSymbols: true,
	}, path)
	if err != nil {
		return Hyperparameters{}, fmt.Errorf("failed to load config file '%s': %w", path, err)
	}
	return fromFile(f)
}

// Parse is Load for in-memory content.
func Parse(data []byte) (Hyperparameters, error) {
	f, err := ini.Load(data)
	if err != nil {
		return Hyperparameters{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return fromFile(f)
}

func fromFile(f *ini.File) (Hyperparameters, error) {
	h := Default()
	sections := []struct {
		name   string
		target any
	}{
		{"evolution", &h.Evolution},
		{"vehicle", &h.Vehicle},
		{"simulation", &h.Simulation},
		{"network", &h.Network},
		{"training", &h.Training},
	}
	for _, s := range sections {
		if !f.HasSection(s.name) {
			continue
		}
		if err := f.Section(s.name).StrictMapTo(s.target); err != nil {
			return Hyperparameters{}, fmt.Errorf("failed to map [%s] section: %w", s.name, err)
		}
	}
	h.Network.Activation = strings.TrimSpace(h.Network.Activation)
	if err := h.Validate(); err != nil {
		return Hyperparameters{}, err
	}
	return h, nil
}

// Save writes h as an INI file, the format Load reads. Invalid values are
// rejected before anything is written.
func (h Hyperparameters) Save(path string) error {
	if err := h.Validate(); err != nil {
		return err
	}
	f := ini.Empty()
	sections := []struct {
		name   string
		source any
	}{
		{"evolution", &h.Evolution},
		{"vehicle", &h.Vehicle},
		{"simulation", &h.Simulation},
		{"network", &h.Network},
		{"training", &h.Training},
	}
	for _, s := range sections {
		if err := f.Section(s.name).ReflectFrom(s.source); err != nil {
			return fmt.Errorf("failed to write [%s] section: %w", s.name, err)
		}
	}
	return f.SaveTo(path)
}

// Validate reports the first invalid value.
func (h Hyperparameters) Validate() error {
	if _, err := h.EvolutionConfig(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := h.Vehicle.Validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := h.Simulation.Validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if len(h.Network.Hidden) == 0 {
		return fmt.Errorf("config error: network needs at least one hidden layer")
	}
	for _, n := range h.Network.Hidden {
		if n <= 0 {
			return fmt.Errorf("config error: hidden layer sizes must be positive")
		}
	}
	if _, err := nn.GetActivation(h.Network.Activation); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if h.Training.Generations < 0 || h.Training.SaveEvery < 0 || h.Training.TopGenomes < 0 {
		return fmt.Errorf("config error: training values must be >= 0")
	}
	return nil
}

// Inputs is the network input width implied by the sensor layout.
func (n NetworkConfig) Inputs() int {
	if n.FeedSpeed {
		return vehicle.SurroundingRayCount + 1
	}
	return vehicle.SurroundingRayCount
}

// LayerSpecs describes the input layer followed by the hidden layers, all
// with the configured activation. The output width is vehicle.ControlOutputs.
func (n NetworkConfig) LayerSpecs() []nn.LayerSpec {
	specs := []nn.LayerSpec{{Neurons: n.Inputs(), Activation: n.Activation}}
	for _, h := range n.Hidden {
		specs = append(specs, nn.LayerSpec{Neurons: h, Activation: n.Activation})
	}
	return specs
}

// EvolutionConfig converts the [evolution] section into an evo.Config.
func (h Hyperparameters) EvolutionConfig() (evo.Config, error) {
	e := h.Evolution
	cfg := evo.Config{
		PopulationSize:    e.PopulationSize,
		GoldenTickets:     e.GoldenTickets,
		MaxParents:        e.MaxParents,
		MutationChance:    e.MutationChance,
		ReevaluateParents: e.ReevaluateParents,
		Seed:              e.Seed,
	}
	var err error
	if cfg.Reproductions, err = applyWeights(evo.DefaultReproductions(), e.ReproductionWeights, evo.ReproductionByName); err != nil {
		return evo.Config{}, fmt.Errorf("reproduction_weights: %w", err)
	}
	if cfg.Mutations, err = applyWeights(evo.DefaultMutations(), e.MutationWeights, evo.MutationByName); err != nil {
		return evo.Config{}, fmt.Errorf("mutation_weights: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return evo.Config{}, err
	}
	return cfg, nil
}

type namedOperator interface{ Name() string }

func applyWeights[T namedOperator](items []evo.Weighted[T], pairs []string, byName func(string) (T, error)) ([]evo.Weighted[T], error) {
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("expected name=weight, got %q", pair)
		}
		w, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("weight of %s: %w", key, err)
		}
		op, err := byName(key)
		if err != nil {
			return nil, err
		}
		for i := range items {
			if items[i].Operator.Name() == op.Name() {
				items[i].Weight = w
			}
		}
	}
	return items, nil
}
