package evo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"sort"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"neurodrive/internal/log"
	"neurodrive/internal/model"
	"neurodrive/internal/nn"
)

// Group names used when handing genomes to an Environment.
const (
	GroupChildren = "children"
	GroupParents  = "parents"
)

var (
	ErrNoParents       = errors.New("fewer than two parents selected")
	ErrFitnessCount    = errors.New("environment returned wrong number of fitness values")
	ErrInvalidFitness  = errors.New("fitness is NaN")
	ErrTooFewGenomes   = errors.New("at least two genomes are required")
	ErrPopulationEmpty = errors.New("population has not been evaluated")
)

// Environment scores genomes. Every group in the request must be present in
// the response with one fitness per genome, in the same order.
type Environment interface {
	Evaluate(ctx context.Context, groups map[string][]*nn.Network) (map[string][]float64, error)
}

// EnvironmentFunc adapts a plain function to Environment.
type EnvironmentFunc func(ctx context.Context, groups map[string][]*nn.Network) (map[string][]float64, error)

func (f EnvironmentFunc) Evaluate(ctx context.Context, groups map[string][]*nn.Network) (map[string][]float64, error) {
	return f(ctx, groups)
}

type Config struct {
	PopulationSize int
	// GoldenTickets top-ranked adults always become parents.
	GoldenTickets int
	// MaxParents caps the parent set, golden tickets included.
	MaxParents        int
	MutationChance    float64
	Reproductions     []Weighted[Reproduction]
	Mutations         []Weighted[Mutation]
	ReevaluateParents bool
	Seed              int64
}

func DefaultConfig() Config {
	return Config{
		PopulationSize: 300,
		GoldenTickets:  20,
		MaxParents:     100,
		MutationChance: 0.15,
		Reproductions:  DefaultReproductions(),
		Mutations:      DefaultMutations(),
		Seed:           1,
	}
}

func (c Config) Validate() error {
	if c.PopulationSize < 3 {
		return fmt.Errorf("population size must be >= 3")
	}
	if c.GoldenTickets < 2 || c.GoldenTickets >= c.PopulationSize {
		return fmt.Errorf("golden tickets must be in [2, population size)")
	}
	if c.MaxParents < c.GoldenTickets || c.MaxParents >= c.PopulationSize {
		return fmt.Errorf("max parents must be in [golden tickets, population size)")
	}
	if c.MutationChance < 0 || c.MutationChance > 1 {
		return fmt.Errorf("mutation chance must be in [0, 1]")
	}
	if err := validateWeighted("reproduction", c.Reproductions); err != nil {
		return err
	}
	return validateWeighted("mutation", c.Mutations)
}

// Neuroevolution runs the generational loop: evaluate the pending children,
// rank them together with the retained parents, select new parents,
// reproduce and mutate.
type Neuroevolution struct {
	cfg Config
	rng *rand.Rand
	log *log.Logger

	generation int
	adults     []Adult
	parents    []Adult
	children   []*Child
	lineage    []model.LineageRecord
}

// NewRandom seeds the population with uniformly random genomes.
func NewRandom(cfg Config, specs []nn.LayerSpec, outputs int) (*Neuroevolution, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	children := make([]*Child, 0, cfg.PopulationSize)
	for range cfg.PopulationSize {
		genome, err := nn.NewRandom(rng, specs, outputs)
		if err != nil {
			return nil, err
		}
		children = append(children, adopt(genome, OriginRandom))
	}
	return &Neuroevolution{cfg: cfg, rng: rng, log: log.Default().Named("evo"), children: children}, nil
}

// FromGenomes seeds the population with copies of previously trained genomes.
// The first step evaluates them, later steps refill to the population size.
func FromGenomes(cfg Config, genomes []*nn.Network, generation int) (*Neuroevolution, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(genomes) < 2 {
		return nil, ErrTooFewGenomes
	}
	if len(genomes) > cfg.PopulationSize {
		genomes = genomes[:cfg.PopulationSize]
	}
	topology := genomes[0].Topology()
	children := make([]*Child, 0, len(genomes))
	for i, g := range genomes {
		if !slices.Equal(g.Topology(), topology) {
			return nil, fmt.Errorf("genome %d: %w", i, ErrTopologyMismatch)
		}
		children = append(children, NewChild(g, OriginSeeded))
	}
	return &Neuroevolution{
		cfg:        cfg,
		rng:        rand.New(rand.NewSource(cfg.Seed)),
		log:        log.Default().Named("evo"),
		generation: generation,
		children:   children,
	}, nil
}

// WithLogger replaces the logger selection and operator counts are reported to.
func (e *Neuroevolution) WithLogger(l *log.Logger) *Neuroevolution {
	e.log = l
	return e
}

// Step runs one full generation and reports its statistics. It returns only
// after the environment has scored every pending genome.
func (e *Neuroevolution) Step(ctx context.Context, env Environment) (model.GenerationDiagnostics, error) {
	if err := ctx.Err(); err != nil {
		return model.GenerationDiagnostics{}, err
	}
	evaluated, err := e.evaluate(ctx, env)
	if err != nil {
		return model.GenerationDiagnostics{}, fmt.Errorf("generation %d: %w", e.generation, err)
	}
	e.rank(evaluated)
	diag := e.summarize(len(evaluated))

	parents, err := e.selectParents()
	if err != nil {
		return model.GenerationDiagnostics{}, fmt.Errorf("generation %d: %w", e.generation, err)
	}
	e.parents = parents
	e.generation++
	e.log.Debug("parents selected",
		log.Int("generation", e.generation),
		log.Int("golden_tickets", min(e.cfg.GoldenTickets, len(e.adults))),
		log.Int("parents", len(parents)),
		log.Float64("top_fitness", e.adults[0].Fitness),
	)

	children, reproductions, err := e.reproduce(parents)
	if err != nil {
		return model.GenerationDiagnostics{}, fmt.Errorf("generation %d: %w", e.generation, err)
	}
	mutations := e.mutate(children)
	e.log.Debug("offspring bred",
		log.Int("generation", e.generation),
		log.Int("children", len(children)),
		log.Any("reproductions", reproductions),
		log.Any("mutations", mutations),
	)
	e.children = children
	e.lineage = append(e.lineage, e.lineageOf(children)...)

	diag.Parents = len(parents)
	diag.Children = len(children)
	diag.Mutated = lo.Sum(lo.Values(mutations))
	diag.Reproductions = reproductions
	diag.Mutations = mutations
	return diag, nil
}

func (e *Neuroevolution) evaluate(ctx context.Context, env Environment) ([]Adult, error) {
	groups := map[string][]*nn.Network{
		GroupChildren: lo.Map(e.children, func(c *Child, _ int) *nn.Network { return c.Genome }),
	}
	reevaluate := e.cfg.ReevaluateParents && len(e.parents) > 0
	if reevaluate {
		groups[GroupParents] = lo.Map(e.parents, func(a Adult, _ int) *nn.Network { return a.Genome })
	}

	scores, err := env.Evaluate(ctx, groups)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	for name, genomes := range groups {
		if got := len(scores[name]); got != len(genomes) {
			return nil, fmt.Errorf("%w: group %s got %d want %d", ErrFitnessCount, name, got, len(genomes))
		}
		if slices.ContainsFunc(scores[name], math.IsNaN) {
			return nil, fmt.Errorf("%w: group %s", ErrInvalidFitness, name)
		}
	}

	evaluated := make([]Adult, 0, len(e.children)+len(e.parents))
	for i, c := range e.children {
		evaluated = append(evaluated, c.grow(scores[GroupChildren][i], e.generation))
	}
	for i, p := range e.parents {
		if reevaluate {
			p.Fitness = scores[GroupParents][i]
		}
		evaluated = append(evaluated, p)
	}
	return evaluated, nil
}

// rank replaces the population with the evaluated adults sorted by
// descending fitness, truncated to the population size. Ties keep the
// retained parents ahead of newcomers.
func (e *Neuroevolution) rank(evaluated []Adult) {
	sort.SliceStable(evaluated, func(i, j int) bool {
		if evaluated[i].Fitness != evaluated[j].Fitness {
			return evaluated[i].Fitness > evaluated[j].Fitness
		}
		return evaluated[i].Born < evaluated[j].Born
	})
	if len(evaluated) > e.cfg.PopulationSize {
		evaluated = evaluated[:e.cfg.PopulationSize]
	}
	e.adults = evaluated
}

// selectParents keeps the golden tickets and admits every other adult with
// probability (fitness/top)^3 until MaxParents is reached.
func (e *Neuroevolution) selectParents() ([]Adult, error) {
	golden := min(e.cfg.GoldenTickets, len(e.adults))
	parents := slices.Clone(e.adults[:golden])
	top := e.adults[0].Fitness
	if top > 0 {
		for _, a := range e.adults[golden:] {
			if len(parents) >= e.cfg.MaxParents {
				break
			}
			if e.rng.Float64() < admission(a.Fitness, top) {
				parents = append(parents, a)
			}
		}
	}
	if len(parents) < 2 {
		return nil, ErrNoParents
	}
	return parents, nil
}

func admission(fitness, top float64) float64 {
	if fitness <= 0 {
		return 0
	}
	return math.Pow(fitness/top, 3)
}

func (e *Neuroevolution) reproduce(parents []Adult) ([]*Child, map[string]int, error) {
	remaining := e.cfg.PopulationSize - len(parents)
	children := make([]*Child, 0, remaining)
	counts := map[string]int{}
	for remaining > 0 {
		i := e.rng.Intn(len(parents))
		j := e.rng.Intn(len(parents) - 1)
		if j >= i {
			j++
		}
		a, b := parents[i], parents[j]
		op := choose(e.rng, e.cfg.Reproductions)
		x, y, err := op.Reproduce(e.rng, a.Genome, b.Genome)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op.Name(), err)
		}
		counts[op.Name()]++
		children = append(children, adopt(x, op.Name(), a.ID, b.ID))
		remaining--
		if remaining > 0 {
			children = append(children, adopt(y, op.Name(), b.ID, a.ID))
			remaining--
		}
	}
	return children, counts, nil
}

func (e *Neuroevolution) mutate(children []*Child) map[string]int {
	counts := map[string]int{}
	for _, c := range children {
		if e.rng.Float64() >= e.cfg.MutationChance {
			continue
		}
		op := choose(e.rng, e.cfg.Mutations)
		op.Mutate(e.rng, c.Genome)
		c.Mutation = op.Name()
		counts[op.Name()]++
	}
	return counts
}

func (e *Neuroevolution) summarize(evaluated int) model.GenerationDiagnostics {
	fitness := lo.Map(e.adults, func(a Adult, _ int) float64 { return a.Fitness })
	mean, std := stat.MeanStdDev(fitness, nil)
	if len(fitness) < 2 {
		std = 0
	}
	return model.GenerationDiagnostics{
		Generation:  e.generation,
		BestFitness: floats.Max(fitness),
		MeanFitness: mean,
		MinFitness:  floats.Min(fitness),
		StdFitness:  std,
		Evaluated:   evaluated,
	}
}

func (e *Neuroevolution) lineageOf(children []*Child) []model.LineageRecord {
	return lo.Map(children, func(c *Child, _ int) model.LineageRecord {
		return model.LineageRecord{
			VersionedRecord: model.VersionedRecord{SchemaVersion: nn.SupportedSchemaVersion, CodecVersion: nn.SupportedCodecVersion},
			GenomeID:        c.ID,
			ParentIDs:       c.ParentIDs,
			Generation:      e.generation,
			Reproduction:    c.Reproduction,
			Mutation:        c.Mutation,
		}
	})
}

// Generation counts completed steps, offset by the generation a seeded
// population started from.
func (e *Neuroevolution) Generation() int {
	return e.generation
}

func (e *Neuroevolution) Config() Config {
	return e.cfg
}

// Adults returns the ranked population of the last step, best first.
func (e *Neuroevolution) Adults() []Adult {
	return slices.Clone(e.adults)
}

// Parents returns the parents selected in the last step, golden tickets first.
func (e *Neuroevolution) Parents() []Adult {
	return slices.Clone(e.parents)
}

// Children returns the genomes awaiting evaluation in the next step.
func (e *Neuroevolution) Children() []*Child {
	return slices.Clone(e.children)
}

func (e *Neuroevolution) Best() (Adult, error) {
	if len(e.adults) == 0 {
		return Adult{}, ErrPopulationEmpty
	}
	return e.adults[0], nil
}

// Top returns up to n best genomes of the last ranking.
func (e *Neuroevolution) Top(n int) []*nn.Network {
	n = min(n, len(e.adults))
	return lo.Map(e.adults[:n], func(a Adult, _ int) *nn.Network { return a.Genome })
}

// Lineage returns every child record produced so far.
func (e *Neuroevolution) Lineage() []model.LineageRecord {
	return slices.Clone(e.lineage)
}
