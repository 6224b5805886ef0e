package tensor

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
)

// MatMul performs batched matrix multiplication with broadcasting over batch
// dims. Rows of the output are split across the configured worker count.
func MatMul(a, b *Tensor) (*Tensor, error) {
	if a == nil || b == nil {
		return nil, errors.New("tensor: matmul requires non-nil inputs")
	}

	if a.Rank() < 2 || b.Rank() < 2 {
		return nil, fmt.Errorf("tensor: matmul requires rank >= 2, got %d and %d", a.Rank(), b.Rank())
	}

	aShape := a.shape
	bShape := b.shape
	aRank := len(aShape)
	bRank := len(bShape)

	m := aShape[aRank-2]
	k := aShape[aRank-1]
	k2 := bShape[bRank-2]

	n := bShape[bRank-1]
	if k != k2 {
		return nil, fmt.Errorf("tensor: matmul mismatch: A shape %v and B shape %v (K dims %d vs %d)", aShape, bShape, k, k2)
	}

	batchShape, err := broadcastShape(aShape[:aRank-2], bShape[:bRank-2])
	if err != nil {
		return nil, fmt.Errorf("tensor: matmul batch broadcast: %w", err)
	}

	outShape := make([]int64, 0, len(batchShape)+2)
	outShape = append(outShape, batchShape...)
	outShape = append(outShape, m, n)

	out, err := Zeros(outShape)
	if err != nil {
		return nil, err
	}

	batchCount, err := shapeElemCount(batchShape)
	if err != nil {
		return nil, err
	}

	if m == 0 || n == 0 {
		return out, nil
	}

	aStrides := computeStrides(aShape)
	bStrides := computeStrides(bShape)
	batchStrides := computeStrides(batchShape)
	batchCoords := make([]int64, len(batchShape))

	kk := int(k)
	nn := int(n)
	mm := int(m)
	// bT holds one [n, k] transposed B matrix so both dot operands are
	// contiguous.
	bT := make([]float32, nn*kk)

	for batchIdx := range batchCount {
		linearToCoord(int64(batchIdx), batchShape, batchStrides, batchCoords)
		aOff := int(broadcastBatchOffset(batchCoords, aShape[:aRank-2], aStrides[:aRank-2]))
		bOff := int(broadcastBatchOffset(batchCoords, bShape[:bRank-2], bStrides[:bRank-2]))
		outOff := batchIdx * mm * nn

		for r := range kk {
			row := b.data[bOff+r*nn : bOff+(r+1)*nn]
			for c, v := range row {
				bT[c*kk+r] = v
			}
		}

		parallelFor(mm, Workers(), func(lo, hi int) {
			for i := lo; i < hi; i++ {
				aRow := a.data[aOff+i*kk : aOff+(i+1)*kk]
				dst := out.data[outOff+i*nn : outOff+(i+1)*nn]

				for j := range nn {
					dst[j] = dotF32(aRow, bT[j*kk:(j+1)*kk])
				}
			}
		})
	}

	return out, nil
}

// Map returns a new tensor with fn applied to every element.
func Map(t *Tensor, fn func(float32) float32) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: map on nil tensor")
	}

	if fn == nil {
		return t.Clone(), nil
	}

	outData := make([]float32, len(t.data))
	for i, v := range t.data {
		outData[i] = fn(v)
	}

	return newOwned(outData, append([]int64(nil), t.shape...)), nil
}

// L2NormalizeLast scales every vector along the last dimension to unit
// length. Vectors with norm below eps are divided by eps instead.
func L2NormalizeLast(t *Tensor, eps float32) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: normalize on nil tensor")
	}

	if t.Rank() < 1 {
		return nil, errors.New("tensor: normalize requires rank >= 1")
	}

	d := int(t.shape[len(t.shape)-1])

	out := t.Clone()
	if d == 0 {
		return out, nil
	}

	for start := 0; start < len(out.data); start += d {
		v := out.data[start : start+d]

		norm := math32.Sqrt(dotF32(v, v))
		if norm < eps {
			norm = eps
		}

		inv := 1 / norm
		for i := range v {
			v[i] *= inv
		}
	}

	return out, nil
}

// MinMax returns the smallest and largest element. Empty tensors report
// +Inf and -Inf.
func MinMax(t *Tensor) (lo, hi float32) {
	lo = math32.Inf(1)
	hi = math32.Inf(-1)

	for _, v := range t.RawData() {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	return lo, hi
}
