package storage

import (
	"context"
	"maps"
	"sort"
	"sync"

	"neurodrive/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	genomeSets  map[string]model.GenomeSet
	history     map[string][]float64
	diagnostics map[string][]model.GenerationDiagnostics
	lineage     map[string][]model.LineageRecord
}

// NewMemoryStore returns a store that is ready to use; Init is a no-op.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		genomeSets:  make(map[string]model.GenomeSet),
		history:     make(map[string][]float64),
		diagnostics: make(map[string][]model.GenerationDiagnostics),
		lineage:     make(map[string][]model.LineageRecord),
	}
}

func (s *MemoryStore) Init(_ context.Context) error {
	return nil
}

func (s *MemoryStore) SaveGenomeSet(_ context.Context, set model.GenomeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.genomeSets[set.Name] = copyGenomeSet(set)
	return nil
}

func (s *MemoryStore) GetGenomeSet(_ context.Context, name string) (model.GenomeSet, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.genomeSets[name]
	if !ok {
		return model.GenomeSet{}, false, nil
	}
	return copyGenomeSet(set), true, nil
}

func (s *MemoryStore) ListGenomeSets(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.genomeSets))
	for name := range s.genomeSets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) SaveFitnessHistory(_ context.Context, runID string, history []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[runID] = append([]float64(nil), history...)
	return nil
}

func (s *MemoryStore) GetFitnessHistory(_ context.Context, runID string) ([]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]float64(nil), history...), true, nil
}

func (s *MemoryStore) SaveGenerationDiagnostics(_ context.Context, runID string, diagnostics []model.GenerationDiagnostics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.diagnostics[runID] = copyDiagnostics(diagnostics)
	return nil
}

func (s *MemoryStore) GetGenerationDiagnostics(_ context.Context, runID string) ([]model.GenerationDiagnostics, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	diagnostics, ok := s.diagnostics[runID]
	if !ok {
		return nil, false, nil
	}
	return copyDiagnostics(diagnostics), true, nil
}

func (s *MemoryStore) SaveLineage(_ context.Context, runID string, lineage []model.LineageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]model.LineageRecord, len(lineage))
	copy(copied, lineage)
	s.lineage[runID] = copied
	return nil
}

func (s *MemoryStore) GetLineage(_ context.Context, runID string) ([]model.LineageRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lineage, ok := s.lineage[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.LineageRecord, len(lineage))
	copy(copied, lineage)
	return copied, true, nil
}

func copyGenomeSet(set model.GenomeSet) model.GenomeSet {
	out := set
	out.Genomes = make([]model.GenomeRecord, len(set.Genomes))
	for i, g := range set.Genomes {
		layers := make([]model.LayerRecord, len(g.Layers))
		for j, l := range g.Layers {
			l.Weights = append([]float64(nil), l.Weights...)
			l.Biases = append([]float64(nil), l.Biases...)
			layers[j] = l
		}
		g.Layers = layers
		out.Genomes[i] = g
	}
	return out
}

func copyDiagnostics(in []model.GenerationDiagnostics) []model.GenerationDiagnostics {
	out := make([]model.GenerationDiagnostics, len(in))
	for i, d := range in {
		d.Reproductions = maps.Clone(d.Reproductions)
		d.Mutations = maps.Clone(d.Mutations)
		out[i] = d
	}
	return out
}
