package storage

import (
	"context"
	"errors"

	"neurodrive/internal/model"
)

var ErrGenomesNotFound = errors.New("genome set not found")

// Store persists genome sets and per-run training records.
type Store interface {
	Init(ctx context.Context) error
	SaveGenomeSet(ctx context.Context, set model.GenomeSet) error
	GetGenomeSet(ctx context.Context, name string) (model.GenomeSet, bool, error)
	ListGenomeSets(ctx context.Context) ([]string, error)
	SaveFitnessHistory(ctx context.Context, runID string, history []float64) error
	GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error)
	SaveGenerationDiagnostics(ctx context.Context, runID string, diagnostics []model.GenerationDiagnostics) error
	GetGenerationDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error)
	SaveLineage(ctx context.Context, runID string, lineage []model.LineageRecord) error
	GetLineage(ctx context.Context, runID string) ([]model.LineageRecord, bool, error)
}
