package evo

import (
	"github.com/google/uuid"

	"neurodrive/internal/nn"
)

// OriginRandom and OriginSeeded name children that have no parents.
const (
	OriginRandom = "random"
	OriginSeeded = "seeded"
)

// Child is an unscored individual. Its genome is never shared with another
// individual.
type Child struct {
	ID           string
	ParentIDs    []string
	Reproduction string
	Mutation     string
	Genome       *nn.Network
}

// NewChild deep copies genome into a fresh child.
func NewChild(genome *nn.Network, origin string) *Child {
	return adopt(genome.Clone(), origin)
}

// adopt wraps a genome the caller already owns exclusively.
func adopt(genome *nn.Network, origin string, parents ...string) *Child {
	return &Child{
		ID:           uuid.NewString(),
		ParentIDs:    parents,
		Reproduction: origin,
		Genome:       genome,
	}
}

// Adult is an evaluated individual.
type Adult struct {
	ID      string
	Genome  *nn.Network
	Fitness float64
	// Born is the generation the individual was evaluated first.
	Born int
}

func (c *Child) grow(fitness float64, generation int) Adult {
	return Adult{ID: c.ID, Genome: c.Genome, Fitness: fitness, Born: generation}
}
