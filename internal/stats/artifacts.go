package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"neurodrive/internal/model"
)

const runIndexFile = "runs.json"

// Files written by WriteRunArtifacts, in export order.
const (
	ConfigFile      = "config.json"
	HistoryFile     = "fitness_history.json"
	DiagnosticsFile = "generation_diagnostics.json"
	TopGenomesFile  = "top_genomes.json"
	LineageFile     = "lineage.json"
	SeriesFile      = "fitness_series.csv"
	FitnessPlotFile = "fitness.png"
	TrackPlotFile   = "track.png"
	// HyperparamsFile holds the effective hyperparameters in the INI format
	// the train command reads. The trainer writes it next to the artifacts.
	HyperparamsFile = "hyperparams.ini"
)

type RunConfig struct {
	RunID             string  `json:"run_id"`
	Track             string  `json:"track"`
	TracksFile        string  `json:"tracks_file,omitempty"`
	ResumeFrom        string  `json:"resume_from,omitempty"`
	InitialGeneration int     `json:"initial_generation"`
	Generations       int     `json:"generations"`
	PopulationSize    int     `json:"population_size"`
	GoldenTickets     int     `json:"golden_tickets"`
	MaxParents        int     `json:"max_parents"`
	MutationChance    float64 `json:"mutation_chance"`
	ReevaluateParents bool    `json:"reevaluate_parents"`
	Seed              int64   `json:"seed"`
	Hidden            []int   `json:"hidden"`
	Activation        string  `json:"activation"`
	FeedSpeed         bool    `json:"feed_speed"`
	DT                float64 `json:"dt"`
	MaxTicks          int     `json:"max_ticks"`
	StallTicks        int     `json:"stall_ticks"`
	Store             string  `json:"store,omitempty"`
}

type RunArtifacts struct {
	Config                RunConfig                     `json:"config"`
	BestByGeneration      []float64                     `json:"best_by_generation"`
	GenerationDiagnostics []model.GenerationDiagnostics `json:"generation_diagnostics,omitempty"`
	FinalBestFitness      float64                       `json:"final_best_fitness"`
	TopGenomes            []model.TopGenomeRecord       `json:"top_genomes"`
	Lineage               []model.LineageRecord         `json:"lineage"`
}

type RunIndexEntry struct {
	RunID            string  `json:"run_id"`
	Track            string  `json:"track"`
	PopulationSize   int     `json:"population_size"`
	Generations      int     `json:"generations"`
	Seed             int64   `json:"seed"`
	FinalBestFitness float64 `json:"final_best_fitness"`
	CreatedAtUTC     string  `json:"created_at_utc"`
}

type fitnessHistory struct {
	BestByGeneration []float64 `json:"best_by_generation"`
	FinalBestFitness float64   `json:"final_best_fitness"`
}

// WriteRunArtifacts writes one JSON file per artifact plus the best fitness
// series as CSV into baseDir/<run id> and returns that directory.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	files := []struct {
		name  string
		value any
	}{
		{ConfigFile, artifacts.Config},
		{HistoryFile, fitnessHistory{BestByGeneration: artifacts.BestByGeneration, FinalBestFitness: artifacts.FinalBestFitness}},
		{DiagnosticsFile, artifacts.GenerationDiagnostics},
		{TopGenomesFile, artifacts.TopGenomes},
		{LineageFile, artifacts.Lineage},
	}
	for _, f := range files {
		if err := writeJSON(filepath.Join(runDir, f.name), f.value); err != nil {
			return "", fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	if err := WriteFitnessSeries(runDir, artifacts.BestByGeneration); err != nil {
		return "", err
	}
	return runDir, nil
}

// AppendRunIndex adds entry to the index in baseDir, replacing an entry with
// the same run id.
func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}
	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}
	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the indexed runs newest first. Runs created at the
// same instant are ordered by when they were appended, latest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode run index: %w", err)
	}

	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := entries[order[i]], entries[order[j]]
		if a.CreatedAtUTC == b.CreatedAtUTC {
			return order[i] > order[j]
		}
		return a.CreatedAtUTC > b.CreatedAtUTC
	})
	sorted := make([]RunIndexEntry, 0, len(entries))
	for _, idx := range order {
		sorted = append(sorted, entries[idx])
	}
	return sorted, nil
}

// ExportRunArtifacts copies a run directory's artifacts to outDir/<run id>.
// Plots are copied when present.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}
	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}
	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{ConfigFile, HistoryFile, DiagnosticsFile, TopGenomesFile, LineageFile, SeriesFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	for _, file := range []string{HyperparamsFile, FitnessPlotFile, TrackPlotFile} {
		path := filepath.Join(src, file)
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", err
		}
		if err := copyFile(path, filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, ConfigFile), &cfg)
	return cfg, ok, err
}

func WriteRunConfig(baseDir, runID string, cfg RunConfig) error {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(cfg.RunID) == "" {
		cfg.RunID = runID
	}
	if cfg.RunID != runID {
		return fmt.Errorf("run config run id mismatch: got=%s want=%s", cfg.RunID, runID)
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, ConfigFile), cfg)
}

func ReadFitnessHistory(baseDir, runID string) ([]float64, bool, error) {
	var history fitnessHistory
	ok, err := readJSON(filepath.Join(baseDir, runID, HistoryFile), &history)
	return history.BestByGeneration, ok, err
}

func ReadGenerationDiagnostics(baseDir, runID string) ([]model.GenerationDiagnostics, bool, error) {
	var diagnostics []model.GenerationDiagnostics
	ok, err := readJSON(filepath.Join(baseDir, runID, DiagnosticsFile), &diagnostics)
	return diagnostics, ok, err
}

func ReadTopGenomes(baseDir, runID string) ([]model.TopGenomeRecord, bool, error) {
	var top []model.TopGenomeRecord
	ok, err := readJSON(filepath.Join(baseDir, runID, TopGenomesFile), &top)
	return top, ok, err
}

// WriteFitnessSeries writes one generation,best_fitness row per generation.
func WriteFitnessSeries(runDir string, bestByGeneration []float64) error {
	file, err := os.Create(filepath.Join(runDir, SeriesFile))
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"generation", "best_fitness"}); err != nil {
		return err
	}
	for i, best := range bestByGeneration {
		if err := writer.Write([]string{
			strconv.Itoa(i),
			strconv.FormatFloat(best, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadFitnessSeries(baseDir, runID string) ([]float64, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, SeriesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 2 {
		return nil, false, fmt.Errorf("fitness series header must have at least 2 columns")
	}

	series := make([]float64, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) < 2 {
			return nil, false, fmt.Errorf("fitness series row must have at least 2 columns")
		}
		value, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, false, err
		}
		series = append(series, value)
	}
	return series, true, nil
}

func readJSON(path string, target any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
