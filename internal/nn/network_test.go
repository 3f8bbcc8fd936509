package nn

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/mat"
)

func mustLayer(t *testing.T, rows, cols int, weights, biases []float64, act string) Layer {
	t.Helper()
	l, err := NewLayer(mat.NewDense(rows, cols, weights), mat.NewVecDense(rows, biases), act)
	if err != nil {
		t.Fatalf("new layer: %v", err)
	}
	return l
}

func TestPredictHandComputed(t *testing.T) {
	n, err := New(
		mustLayer(t, 2, 3, []float64{1, 0, -1, 0.5, 0.5, 0.5}, []float64{0, 1}, "identity"),
		mustLayer(t, 2, 2, []float64{1, 1, 2, -1}, []float64{0.5, 0}, "relu"),
	)
	if err != nil {
		t.Fatalf("new network: %v", err)
	}

	out, err := n.Predict([]float64{3, 2, 1})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	// hidden = [3-1, 0.5*6+1] = [2, 4]; out = relu([6.5, 0])
	want := []float64{6.5, 0}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("unexpected output (-want +got):\n%s", diff)
	}
}

func TestPredictRejectsWrongWidth(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	n, err := NewRandom(rng, []LayerSpec{{Neurons: 6, Activation: "tanh"}, {Neurons: 4, Activation: "tanh"}}, 2)
	if err != nil {
		t.Fatalf("new random: %v", err)
	}

	for _, width := range []int{0, 5, 7, 12} {
		if _, err := n.Predict(make([]float64, width)); !errors.Is(err, ErrInputWidth) {
			t.Fatalf("width %d: expected ErrInputWidth, got %v", width, err)
		}
	}
	for i := 0; i < 20; i++ {
		input := make([]float64, 6)
		for j := range input {
			input[j] = rng.NormFloat64() * 10
		}
		out, err := n.Predict(input)
		if err != nil {
			t.Fatalf("predict: %v", err)
		}
		if len(out) != n.OutputWidth() {
			t.Fatalf("unexpected output width: got=%d want=%d", len(out), n.OutputWidth())
		}
		for _, v := range out {
			if v < -1 || v > 1 {
				t.Fatalf("tanh output out of range: %f", v)
			}
		}
	}
}

func TestNewValidatesTopology(t *testing.T) {
	a := mustLayer(t, 2, 3, make([]float64, 6), make([]float64, 2), "tanh")
	b := mustLayer(t, 1, 4, make([]float64, 4), make([]float64, 1), "tanh")

	if _, err := New(a); !errors.Is(err, ErrTooFewLayers) {
		t.Fatalf("expected ErrTooFewLayers, got %v", err)
	}
	if _, err := New(a, b); !errors.Is(err, ErrLayerShape) {
		t.Fatalf("expected ErrLayerShape, got %v", err)
	}
	if _, err := NewLayer(mat.NewDense(2, 2, nil), mat.NewVecDense(3, nil), "tanh"); !errors.Is(err, ErrLayerShape) {
		t.Fatalf("expected bias shape error, got %v", err)
	}
	if _, err := NewLayer(mat.NewDense(2, 2, nil), mat.NewVecDense(2, nil), "swish"); !errors.Is(err, ErrActivationNotFound) {
		t.Fatalf("expected ErrActivationNotFound, got %v", err)
	}
	if _, err := NewRandom(rand.New(rand.NewSource(1)), []LayerSpec{{Neurons: 3, Activation: "tanh"}}, 2); !errors.Is(err, ErrTooFewLayers) {
		t.Fatalf("expected ErrTooFewLayers, got %v", err)
	}
}

func TestNewRandomTopology(t *testing.T) {
	specs := []LayerSpec{
		{Neurons: 6, Activation: "tanh"},
		{Neurons: 8, Activation: "sigmoid"},
		{Neurons: 5, Activation: "relu"},
	}
	n, err := NewRandom(rand.New(rand.NewSource(7)), specs, 2)
	if err != nil {
		t.Fatalf("new random: %v", err)
	}

	want := []Shape{
		{FanIn: 6, FanOut: 8, Activation: "tanh"},
		{FanIn: 8, FanOut: 5, Activation: "sigmoid"},
		{FanIn: 5, FanOut: 2, Activation: "relu"},
	}
	if diff := cmp.Diff(want, n.Topology()); diff != "" {
		t.Fatalf("unexpected topology (-want +got):\n%s", diff)
	}
	for _, l := range n.Layers() {
		r, c := l.Weights.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				if v := l.Weights.At(i, j); v < -1 || v >= 1 {
					t.Fatalf("weight out of range: %f", v)
				}
			}
		}
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	n, err := NewRandom(rand.New(rand.NewSource(3)), []LayerSpec{{Neurons: 3, Activation: "tanh"}, {Neurons: 3, Activation: "tanh"}}, 2)
	if err != nil {
		t.Fatalf("new random: %v", err)
	}
	clone := n.Clone()
	if !clone.Equal(n) {
		t.Fatal("expected clone to equal original")
	}

	before := n.Layers()[0].Weights.At(0, 0)
	clone.Layers()[0].Weights.Set(0, 0, before+5)
	clone.Layers()[1].Biases.SetVec(0, 42)
	if got := n.Layers()[0].Weights.At(0, 0); got != before {
		t.Fatalf("clone edit leaked into original: got=%f want=%f", got, before)
	}
	if n.Layers()[1].Biases.AtVec(0) == 42 {
		t.Fatal("clone bias edit leaked into original")
	}
	if clone.Equal(n) {
		t.Fatal("expected edited clone to differ")
	}
}

func TestSwapLayer(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	specs := []LayerSpec{{Neurons: 3, Activation: "tanh"}, {Neurons: 4, Activation: "tanh"}}
	a, _ := NewRandom(rng, specs, 2)
	b, _ := NewRandom(rng, specs, 2)
	origA, origB := a.Clone(), b.Clone()

	a.SwapLayer(b, 1)
	if !mat.Equal(a.Layers()[1].Weights, origB.Layers()[1].Weights) || !mat.Equal(b.Layers()[1].Weights, origA.Layers()[1].Weights) {
		t.Fatal("expected layer 1 to be exchanged")
	}
	if !mat.Equal(a.Layers()[0].Weights, origA.Layers()[0].Weights) {
		t.Fatal("expected layer 0 to stay")
	}
	if a.Layers()[1].Weights == b.Layers()[1].Weights {
		t.Fatal("swapped layers share storage")
	}
}

func TestRecordRoundTrip(t *testing.T) {
	n, err := NewRandom(rand.New(rand.NewSource(11)), []LayerSpec{{Neurons: 4, Activation: "sigmoid"}, {Neurons: 3, Activation: "relu"}}, 2)
	if err != nil {
		t.Fatalf("new random: %v", err)
	}
	rec := ToRecord(n, "g1")
	if rec.Layers[0].FanIn != 4 || rec.Layers[0].FanOut != 3 || len(rec.Layers[0].Weights) != 12 {
		t.Fatalf("unexpected layer record: %+v", rec.Layers[0])
	}
	if rec.Layers[0].Weights[1] != n.Layers()[0].Weights.At(0, 1) {
		t.Fatal("expected row-major weights")
	}

	back, err := FromRecord(rec)
	if err != nil {
		t.Fatalf("from record: %v", err)
	}
	if !back.Equal(n) {
		t.Fatal("expected equal network after record round trip")
	}

	rec.Layers[1].Biases = rec.Layers[1].Biases[:1]
	if _, err := FromRecord(rec); !errors.Is(err, ErrLayerShape) {
		t.Fatalf("expected ErrLayerShape, got %v", err)
	}
}

func TestUniformRange(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < 10000; i++ {
		v := Uniform(rng)
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	if lo < -1 || hi >= 1 || lo > -0.99 || hi < 0.99 {
		t.Fatalf("unexpected uniform range: [%f, %f]", lo, hi)
	}
}
