package storage

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"neurodrive/internal/model"
	"neurodrive/internal/nn"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	sqlite := NewSQLiteStore(filepath.Join(dir, "neurodrive.db"))
	t.Cleanup(func() {
		_ = sqlite.Close()
	})
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
		"file":   NewFileStore(filepath.Join(dir, "genomes")),
	}
}

func randomNetworks(t *testing.T, count int) []*nn.Network {
	t.Helper()
	rng := rand.New(rand.NewSource(21))
	specs := []nn.LayerSpec{{Neurons: 6, Activation: "tanh"}, {Neurons: 4, Activation: "sigmoid"}}
	out := make([]*nn.Network, count)
	for i := range out {
		n, err := nn.NewRandom(rng, specs, 2)
		if err != nil {
			t.Fatalf("new random: %v", err)
		}
		out[i] = n
	}
	return out
}

func TestStoreGenomesRoundTrip(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Init(ctx); err != nil {
				t.Fatalf("init: %v", err)
			}

			input := randomNetworks(t, 4)
			if err := SaveGenomes(ctx, store, "best", 100, input); err != nil {
				t.Fatalf("save genomes: %v", err)
			}

			output, generation, err := LoadGenomes(ctx, store, "best", 0)
			if err != nil {
				t.Fatalf("load genomes: %v", err)
			}
			if generation != 100 {
				t.Fatalf("unexpected generation: %d", generation)
			}
			if len(output) != len(input) {
				t.Fatalf("unexpected genome count: got=%d want=%d", len(output), len(input))
			}
			for i := range input {
				if !output[i].Equal(input[i]) {
					t.Fatalf("genome %d differs after round trip", i)
				}
			}

			limited, _, err := LoadGenomes(ctx, store, "best", 2)
			if err != nil {
				t.Fatalf("load limited genomes: %v", err)
			}
			if len(limited) != 2 || !limited[1].Equal(input[1]) {
				t.Fatalf("unexpected limited load: %d genomes", len(limited))
			}

			if _, _, err := LoadGenomes(ctx, store, "missing", 0); !errors.Is(err, ErrGenomesNotFound) {
				t.Fatalf("expected ErrGenomesNotFound, got %v", err)
			}

			if err := SaveGenomes(ctx, store, "alpha", 1, input[:1]); err != nil {
				t.Fatalf("save second set: %v", err)
			}
			names, err := store.ListGenomeSets(ctx)
			if err != nil {
				t.Fatalf("list genome sets: %v", err)
			}
			if diff := cmp.Diff([]string{"alpha", "best"}, names); diff != "" {
				t.Fatalf("unexpected genome sets (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStoreRunRecordsRoundTrip(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Init(ctx); err != nil {
				t.Fatalf("init: %v", err)
			}

			if _, ok, err := store.GetFitnessHistory(ctx, "run-1"); err != nil || ok {
				t.Fatalf("expected no history yet, ok=%t err=%v", ok, err)
			}

			history := []float64{0.1, 0.2, 0.3}
			if err := store.SaveFitnessHistory(ctx, "run-1", history); err != nil {
				t.Fatalf("save history: %v", err)
			}
			gotHistory, ok, err := store.GetFitnessHistory(ctx, "run-1")
			if err != nil || !ok {
				t.Fatalf("get history: ok=%t err=%v", ok, err)
			}
			if diff := cmp.Diff(history, gotHistory); diff != "" {
				t.Fatalf("unexpected history (-want +got):\n%s", diff)
			}

			diagnostics := []model.GenerationDiagnostics{
				{Generation: 1, BestFitness: 0.8, MeanFitness: 0.6, MinFitness: 0.2, Parents: 20, Children: 280},
				{Generation: 2, BestFitness: 0.9, MeanFitness: 0.7, MinFitness: 0.3, Mutations: map[string]int{"flip_sign": 3}},
			}
			if err := store.SaveGenerationDiagnostics(ctx, "run-1", diagnostics); err != nil {
				t.Fatalf("save diagnostics: %v", err)
			}
			gotDiagnostics, ok, err := store.GetGenerationDiagnostics(ctx, "run-1")
			if err != nil || !ok {
				t.Fatalf("get diagnostics: ok=%t err=%v", ok, err)
			}
			if diff := cmp.Diff(diagnostics, gotDiagnostics); diff != "" {
				t.Fatalf("unexpected diagnostics (-want +got):\n%s", diff)
			}

			lineage := []model.LineageRecord{{
				VersionedRecord: currentVersion(),
				GenomeID:        "g1",
				ParentIDs:       []string{"p1", "p2"},
				Generation:      1,
				Reproduction:    "neuron_swap",
			}}
			if err := store.SaveLineage(ctx, "run-1", lineage); err != nil {
				t.Fatalf("save lineage: %v", err)
			}
			gotLineage, ok, err := store.GetLineage(ctx, "run-1")
			if err != nil || !ok {
				t.Fatalf("get lineage: ok=%t err=%v", ok, err)
			}
			if diff := cmp.Diff(lineage, gotLineage); diff != "" {
				t.Fatalf("unexpected lineage (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMemoryStoreCopiesGenomeSets(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	set := model.GenomeSet{
		VersionedRecord: currentVersion(),
		Name:            "s",
		Genomes:         []model.GenomeRecord{{Layers: []model.LayerRecord{{Weights: []float64{1}, Biases: []float64{2}}}}},
	}
	if err := store.SaveGenomeSet(ctx, set); err != nil {
		t.Fatalf("save: %v", err)
	}
	set.Genomes[0].Layers[0].Weights[0] = 99

	got, ok, err := store.GetGenomeSet(ctx, "s")
	if err != nil || !ok {
		t.Fatalf("get: ok=%t err=%v", ok, err)
	}
	if got.Genomes[0].Layers[0].Weights[0] != 1 {
		t.Fatal("stored set aliases caller slice")
	}
}

func TestDecodeGenomeSetVersionMismatch(t *testing.T) {
	payload, err := EncodeGenomeSet(model.GenomeSet{
		VersionedRecord: model.VersionedRecord{SchemaVersion: 99, CodecVersion: CurrentCodecVersion},
		Name:            "future",
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeGenomeSet(payload); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
	if _, err := DecodeGenomeSet([]byte("not gzip")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestFileStoreRejectsPathNames(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := store.SaveGenomeSet(ctx, model.GenomeSet{Name: "../escape"}); err == nil {
		t.Fatal("expected invalid name error")
	}
	if err := store.SaveFitnessHistory(ctx, "a/b", nil); err == nil {
		t.Fatal("expected invalid run id error")
	}
}

func TestSQLiteStoreRequiresInit(t *testing.T) {
	store := NewSQLiteStore("")
	if err := store.Init(context.Background()); err == nil {
		t.Fatal("expected path required error")
	}
	if _, _, err := store.GetFitnessHistory(context.Background(), "run"); err == nil {
		t.Fatal("expected not initialized error")
	}
}
