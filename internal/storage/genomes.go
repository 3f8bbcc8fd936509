package storage

import (
	"context"
	"fmt"

	"neurodrive/internal/model"
	"neurodrive/internal/nn"
)

// SaveGenomes stores networks under name, replacing any previous set.
func SaveGenomes(ctx context.Context, store Store, name string, generation int, networks []*nn.Network) error {
	set := model.GenomeSet{
		VersionedRecord: currentVersion(),
		Name:            name,
		Generation:      generation,
		Genomes:         make([]model.GenomeRecord, len(networks)),
	}
	for i, n := range networks {
		set.Genomes[i] = nn.ToRecord(n, fmt.Sprintf("%s-%d", name, i))
	}
	return store.SaveGenomeSet(ctx, set)
}

// LoadGenomes restores up to limit networks of a stored set, all of them when
// limit is zero or negative.
func LoadGenomes(ctx context.Context, store Store, name string, limit int) ([]*nn.Network, int, error) {
	set, ok, err := store.GetGenomeSet(ctx, name)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrGenomesNotFound, name)
	}
	records := set.Genomes
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	out := make([]*nn.Network, len(records))
	for i, rec := range records {
		n, err := nn.FromRecord(rec)
		if err != nil {
			return nil, 0, fmt.Errorf("genome %d of %s: %w", i, name, err)
		}
		out[i] = n
	}
	return out, set.Generation, nil
}
