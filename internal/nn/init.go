package nn

import (
	"math/rand/v2"

	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/example/go-simscore/internal/runtime/tensor"
)

// FanInUniformBound is the Glorot-style bound sqrt(6/(n+1)) for a weight
// vector of length n projecting to a single output.
func FanInUniformBound(n int) float32 {
	return math32.Sqrt(6 / float32(n+1))
}

// UniformFill overwrites t in place with draws from U[lo, hi]. A nil src
// draws from the process-wide generator.
func UniformFill(t *tensor.Tensor, lo, hi float32, src rand.Source) {
	dist := distuv.Uniform{Min: float64(lo), Max: float64(hi), Src: src}

	data := t.RawData()
	for i := range data {
		data[i] = float32(dist.Rand())
	}
}

// ConstantFill overwrites every element of t with v.
func ConstantFill(t *tensor.Tensor, v float32) {
	data := t.RawData()
	for i := range data {
		data[i] = v
	}
}
