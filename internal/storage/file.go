package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"neurodrive/internal/model"
)

const genomeSetExt = ".nn"

// FileStore keeps each genome set in its own gzip-compressed gob file and run
// records as JSON under runs/<run id>/.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) Init(_ context.Context) error {
	if s.dir == "" {
		return errors.New("file store directory is required")
	}
	return os.MkdirAll(filepath.Join(s.dir, "runs"), 0o755)
}

func (s *FileStore) SaveGenomeSet(_ context.Context, set model.GenomeSet) error {
	path, err := s.genomeSetPath(set.Name)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".genomes-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := WriteGenomeSet(tmp, set); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *FileStore) GetGenomeSet(_ context.Context, name string) (model.GenomeSet, bool, error) {
	path, err := s.genomeSetPath(name)
	if err != nil {
		return model.GenomeSet{}, false, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.GenomeSet{}, false, nil
		}
		return model.GenomeSet{}, false, err
	}
	defer f.Close()

	set, err := ReadGenomeSet(f)
	if err != nil {
		return model.GenomeSet{}, false, fmt.Errorf("read %s: %w", path, err)
	}
	return set, true, nil
}

func (s *FileStore) ListGenomeSets(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), genomeSetExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), genomeSetExt))
	}
	sort.Strings(names)
	return names, nil
}

func (s *FileStore) SaveFitnessHistory(_ context.Context, runID string, history []float64) error {
	payload, err := EncodeFitnessHistory(history)
	if err != nil {
		return err
	}
	return s.writeRunFile(runID, "fitness_history.json", payload)
}

func (s *FileStore) GetFitnessHistory(_ context.Context, runID string) ([]float64, bool, error) {
	payload, ok, err := s.readRunFile(runID, "fitness_history.json")
	if err != nil || !ok {
		return nil, ok, err
	}
	history, err := DecodeFitnessHistory(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode fitness history %s: %w", runID, err)
	}
	return history, true, nil
}

func (s *FileStore) SaveGenerationDiagnostics(_ context.Context, runID string, diagnostics []model.GenerationDiagnostics) error {
	payload, err := EncodeGenerationDiagnostics(diagnostics)
	if err != nil {
		return err
	}
	return s.writeRunFile(runID, "generation_diagnostics.json", payload)
}

func (s *FileStore) GetGenerationDiagnostics(_ context.Context, runID string) ([]model.GenerationDiagnostics, bool, error) {
	payload, ok, err := s.readRunFile(runID, "generation_diagnostics.json")
	if err != nil || !ok {
		return nil, ok, err
	}
	diagnostics, err := DecodeGenerationDiagnostics(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode diagnostics %s: %w", runID, err)
	}
	return diagnostics, true, nil
}

func (s *FileStore) SaveLineage(_ context.Context, runID string, lineage []model.LineageRecord) error {
	payload, err := EncodeLineage(lineage)
	if err != nil {
		return err
	}
	return s.writeRunFile(runID, "lineage.json", payload)
}

func (s *FileStore) GetLineage(_ context.Context, runID string) ([]model.LineageRecord, bool, error) {
	payload, ok, err := s.readRunFile(runID, "lineage.json")
	if err != nil || !ok {
		return nil, ok, err
	}
	lineage, err := DecodeLineage(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode lineage %s: %w", runID, err)
	}
	return lineage, true, nil
}

func (s *FileStore) genomeSetPath(name string) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name+genomeSetExt), nil
}

func (s *FileStore) writeRunFile(runID, file string, payload []byte) error {
	if err := validName(runID); err != nil {
		return err
	}
	dir := filepath.Join(s.dir, "runs", runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, file), payload, 0o644)
}

func (s *FileStore) readRunFile(runID, file string) ([]byte, bool, error) {
	if err := validName(runID); err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, "runs", runID, file))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid record name %q", name)
	}
	return nil
}
