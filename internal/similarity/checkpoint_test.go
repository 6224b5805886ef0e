package similarity

import (
	"errors"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/go-simscore/internal/safetensors"
)

func TestSaveAndLoadFunction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scorer.safetensors")

	orig, err := NewMyLinear(3, 3, WithCombination(threeTerms), WithActivation("tanh"), WithSeed(21))
	if err != nil {
		t.Fatal(err)
	}

	setData(t, orig.Bias(), 0.5)

	if err := SaveParameters(path, orig); err != nil {
		t.Fatalf("SaveParameters: %v", err)
	}

	fn, err := LoadFunction(path)
	if err != nil {
		t.Fatalf("LoadFunction: %v", err)
	}

	got, ok := fn.(*MyLinear)
	if !ok {
		t.Fatalf("LoadFunction returned %T; want *MyLinear", fn)
	}

	if !equalF32(got.Weight().Data(), orig.Weight().Data(), 0) {
		t.Fatal("loaded weights differ from saved weights")
	}

	if got.Bias().Data()[0] != 0.5 {
		t.Fatalf("loaded bias = %v; want 0.5", got.Bias().Data()[0])
	}

	if got.Combination().String() != threeTerms || got.Config()["activation"] != "tanh" {
		t.Fatalf("loaded config = %v", got.Config())
	}

	rng := rand.New(rand.NewPCG(1, 1))
	t1 := randTensor(rng, 2, 3, 3)
	t2 := randTensor(rng, 2, 2, 3)

	want, _ := orig.Score(t1, t2)
	have, err := got.Score(t1, t2)
	if err != nil {
		t.Fatal(err)
	}

	if !equalF32(have.Data(), want.Data(), 0) {
		t.Fatal("loaded function scores differently")
	}
}

func TestLoadParametersShapeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "small.safetensors")

	small, err := NewLinear(2, 2, WithSeed(1))
	if err != nil {
		t.Fatal(err)
	}

	if err := SaveParameters(path, small); err != nil {
		t.Fatal(err)
	}

	big, err := NewLinear(4, 4, WithSeed(1))
	if err != nil {
		t.Fatal(err)
	}

	err = LoadParameters(path, big)
	if err == nil || !strings.Contains(err.Error(), "does not match expected") {
		t.Fatalf("LoadParameters error = %v; want shape mismatch", err)
	}
}

func TestSaveParametersWithoutParameters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "none.safetensors")

	if err := SaveParameters(path, Cosine{}); err == nil {
		t.Fatal("SaveParameters(Cosine) = nil; want error")
	}
}

func TestLoadFunctionWithoutType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bare.safetensors")

	err := safetensors.WriteFile(path, []safetensors.Tensor{
		{Name: "weight_vector", Shape: []int64{2}, Data: []float32{1, 2}},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFunction(path); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("LoadFunction error = %v; want ErrConfiguration", err)
	}
}
