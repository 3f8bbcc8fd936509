package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"neurodrive/internal/stats"
	"neurodrive/pkg/neurodrive"
)

const testHyperparams = `
[simulation]
max_ticks = 300
stall_ticks = 40

[network]
hidden = 4
`

type cliEnv struct {
	dir         string
	hyperparams string
}

func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	dir := t.TempDir()
	hyperparams := filepath.Join(dir, "hyperparams.ini")
	if err := os.WriteFile(hyperparams, []byte(testHyperparams), 0o644); err != nil {
		t.Fatalf("write hyperparams: %v", err)
	}
	return cliEnv{dir: dir, hyperparams: hyperparams}
}

// exec runs one command against the environment's file store and returns
// its standard output.
func (e cliEnv) exec(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append(args,
		"--store", "file",
		"--store-path", filepath.Join(e.dir, "store"),
		"--runs-dir", filepath.Join(e.dir, "runs"),
		"--exports-dir", filepath.Join(e.dir, "exports"),
		"--log-format", "json",
		"--log-level", "warn",
	))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func (e cliEnv) train(t *testing.T, extra ...string) neurodrive.TrainSummary {
	t.Helper()
	args := append([]string{
		"train",
		"--hyperparams", e.hyperparams,
		"--track", "sprint",
		"--population", "8",
		"--generations", "2",
		"--seed", "9",
		"--quiet",
		"--json",
	}, extra...)
	out, err := e.exec(t, args...)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	var summary neurodrive.TrainSummary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode train summary %q: %v", out, err)
	}
	return summary
}

func TestTrainCommandWritesArtifacts(t *testing.T) {
	env := newCLIEnv(t)
	summary := env.train(t, "--run-id", "cli-run")

	if summary.RunID != "cli-run" || summary.Track != "sprint" {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(summary.BestByGeneration) != 2 {
		t.Fatalf("expected 2 generations, got %d", len(summary.BestByGeneration))
	}
	for _, file := range []string{stats.ConfigFile, stats.HistoryFile, stats.DiagnosticsFile, stats.TopGenomesFile, stats.LineageFile, stats.SeriesFile, stats.FitnessPlotFile, stats.HyperparamsFile} {
		if _, err := os.Stat(filepath.Join(env.dir, "runs", "cli-run", file)); err != nil {
			t.Fatalf("expected artifact %s: %v", file, err)
		}
	}

	out, err := env.exec(t, "runs")
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.Contains(out, "run_id=cli-run") || !strings.Contains(out, "track=sprint") {
		t.Fatalf("unexpected runs output: %q", out)
	}

	out, err = env.exec(t, "fitness", "--latest")
	if err != nil {
		t.Fatalf("fitness: %v", err)
	}
	if got := strings.Count(out, "best_fitness="); got != 2 {
		t.Fatalf("expected 2 fitness lines, got %d: %q", got, out)
	}

	out, err = env.exec(t, "summary", "--run-id", "cli-run")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !strings.Contains(out, "generations=2") {
		t.Fatalf("unexpected summary output: %q", out)
	}

	out, err = env.exec(t, "top", "--latest", "--limit", "2")
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if !strings.HasPrefix(out, "rank=1 ") || strings.Count(out, "rank=") != 2 {
		t.Fatalf("unexpected top output: %q", out)
	}

	out, err = env.exec(t, "diagnostics", "--latest", "--json")
	if err != nil {
		t.Fatalf("diagnostics: %v", err)
	}
	var diagnostics []map[string]any
	if err := json.Unmarshal([]byte(out), &diagnostics); err != nil || len(diagnostics) != 2 {
		t.Fatalf("expected 2 diagnostics, got %q (%v)", out, err)
	}

	out, err = env.exec(t, "lineage", "--latest", "--limit", "3")
	if err != nil {
		t.Fatalf("lineage: %v", err)
	}
	if strings.Count(out, "genome_id=") != 3 {
		t.Fatalf("expected 3 lineage lines, got %q", out)
	}

	out, err = env.exec(t, "genomes")
	if err != nil {
		t.Fatalf("genomes: %v", err)
	}
	if strings.TrimSpace(out) != "cli-run" {
		t.Fatalf("unexpected genome sets: %q", out)
	}

	exportDir := filepath.Join(env.dir, "out")
	if _, err := env.exec(t, "export", "--latest", "--out", exportDir); err != nil {
		t.Fatalf("export: %v", err)
	}
	for _, file := range []string{stats.ConfigFile, stats.HyperparamsFile} {
		if _, err := os.Stat(filepath.Join(exportDir, "cli-run", file)); err != nil {
			t.Fatalf("expected exported %s: %v", file, err)
		}
	}
}

func TestEvaluateCommand(t *testing.T) {
	env := newCLIEnv(t)
	summary := env.train(t)

	plot := filepath.Join(env.dir, "paths.png")
	out, err := env.exec(t,
		"evaluate",
		"--genomes", summary.Checkpoint,
		"--hyperparams", env.hyperparams,
		"--track", "sprint",
		"--limit", "2",
		"--plot", plot,
	)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if strings.Count(out, "fitness=") != 2 || !strings.Contains(out, "track_plot=") {
		t.Fatalf("unexpected evaluate output: %q", out)
	}
	if _, err := os.Stat(plot); err != nil {
		t.Fatalf("expected track plot: %v", err)
	}
}

func TestTracksCommand(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.exec(t, "tracks")
	if err != nil {
		t.Fatalf("tracks: %v", err)
	}
	for _, name := range []string{"name=sprint", "name=bend", "name=chicane"} {
		if !strings.Contains(out, name) {
			t.Fatalf("expected %s in %q", name, out)
		}
	}
}

func TestCommandErrors(t *testing.T) {
	env := newCLIEnv(t)
	cases := [][]string{
		{"fitness"},
		{"fitness", "--run-id", "a", "--latest"},
		{"summary", "--latest"},
		{"export"},
		{"evaluate"},
		{"train", "--track", "missing"},
		{"train", "--generations", "-1"},
		{"unknown"},
	}
	for _, args := range cases {
		if _, err := env.exec(t, args...); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestFlagsFromEnvironment(t *testing.T) {
	env := newCLIEnv(t)
	t.Setenv("NEURODRIVE_LOG_LEVEL", "bogus")
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"tracks", "--store", "file", "--store-path", filepath.Join(env.dir, "store")})
	if err := cmd.ExecuteContext(context.Background()); err == nil {
		t.Fatal("expected invalid log level from environment to fail")
	}
}

func TestTrainGeneratesRunID(t *testing.T) {
	env := newCLIEnv(t)
	summary := env.train(t)
	if !strings.HasPrefix(summary.RunID, "run-") {
		t.Fatalf("expected generated run id, got %q", summary.RunID)
	}
	if _, err := os.Stat(filepath.Join(env.dir, "runs", summary.RunID, stats.ConfigFile)); err != nil {
		t.Fatalf("expected artifacts under generated run id: %v", err)
	}
}

type interruptRecorder struct {
	stops    int
	stopErr  error
	canceled chan struct{}
}

func newInterruptRecorder(stopErr error) *interruptRecorder {
	return &interruptRecorder{stopErr: stopErr, canceled: make(chan struct{})}
}

func (r *interruptRecorder) stop() error {
	r.stops++
	return r.stopErr
}

func (r *interruptRecorder) cancel() {
	close(r.canceled)
}

func TestFirstInterruptStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 2)
	sigs <- syscall.SIGINT
	rec := newInterruptRecorder(nil)
	var out bytes.Buffer

	done := make(chan struct{})
	go func() {
		watchInterrupts(ctx, sigs, rec.stop, rec.cancel, &out)
		close(done)
	}()

	select {
	case <-rec.canceled:
		t.Fatal("first interrupt must not cancel the run")
	case <-done:
		t.Fatal("watcher returned before the run finished")
	case <-time.After(50 * time.Millisecond):
	}
	cancel()
	<-done
	if rec.stops != 1 {
		t.Fatalf("expected one stop, got %d", rec.stops)
	}
	if !strings.Contains(out.String(), "stopping after the current generation") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestSecondInterruptCancels(t *testing.T) {
	sigs := make(chan os.Signal, 2)
	sigs <- syscall.SIGINT
	sigs <- syscall.SIGTERM
	rec := newInterruptRecorder(nil)
	watchInterrupts(context.Background(), sigs, rec.stop, rec.cancel, &bytes.Buffer{})
	select {
	case <-rec.canceled:
	default:
		t.Fatal("expected second interrupt to cancel")
	}
	if rec.stops != 1 {
		t.Fatalf("expected one stop, got %d", rec.stops)
	}
}

func TestInterruptCancelsWhenStopFails(t *testing.T) {
	sigs := make(chan os.Signal, 1)
	sigs <- syscall.SIGINT
	rec := newInterruptRecorder(errors.New("run not found"))
	watchInterrupts(context.Background(), sigs, rec.stop, rec.cancel, &bytes.Buffer{})
	select {
	case <-rec.canceled:
	default:
		t.Fatal("expected cancel when stop fails")
	}
}
