package similarity

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/example/go-simscore/internal/runtime/tensor"
)

func mustTensor(t *testing.T, data []float32, shape ...int64) *tensor.Tensor {
	t.Helper()

	out, err := tensor.New(data, shape)
	if err != nil {
		t.Fatalf("tensor.New(%v): %v", shape, err)
	}

	return out
}

func randTensor(rng *rand.Rand, shape ...int64) *tensor.Tensor {
	n := int64(1)
	for _, s := range shape {
		n *= s
	}

	data := make([]float32, n)
	for i := range data {
		data[i] = rng.Float32()*2 - 1
	}

	out, _ := tensor.New(data, shape)

	return out
}

func setData(t *testing.T, dst *tensor.Tensor, values ...float32) {
	t.Helper()

	raw := dst.RawData()
	if len(raw) != len(values) {
		t.Fatalf("setData: tensor has %d elements, got %d values", len(raw), len(values))
	}

	copy(raw, values)
}

func equalI64(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

func equalF32(a, b []float32, tol float64) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if math.Abs(float64(a[i]-b[i])) > tol {
			return false
		}
	}

	return true
}
