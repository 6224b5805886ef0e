// Package ops holds the kernels that turn a similarity matrix into attention:
// masking, a masked softmax over the last axis and the weighted sum that
// pools one sequence against the other.
package ops

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"

	"github.com/example/go-simscore/internal/runtime/tensor"
)

// Scorer produces [batch, len_1, len_2] scores from [batch, len_1, d1] and
// [batch, len_2, d2] inputs.
type Scorer interface {
	Score(tensor1, tensor2 *tensor.Tensor) (*tensor.Tensor, error)
}

// MaskScores sets every score whose key position is masked out to fill.
// scores is [..., query, key]; mask is [batch, key] with nonzero meaning
// keep. A nil mask returns a clone.
func MaskScores(scores, mask *tensor.Tensor, fill float32) (*tensor.Tensor, error) {
	if scores == nil {
		return nil, errors.New("ops: mask scores is nil")
	}

	shape := scores.Shape()
	if len(shape) < 2 {
		return nil, fmt.Errorf("ops: mask requires rank >= 2, got %d", len(shape))
	}

	out := scores.Clone()
	if mask == nil {
		return out, nil
	}

	q := int(shape[len(shape)-2])
	k := int(shape[len(shape)-1])

	ms := mask.Shape()
	if len(ms) != 2 || ms[1] != int64(k) || ms[0] != shape[0] {
		return nil, fmt.Errorf("ops: mask shape %v does not fit scores %v", ms, shape)
	}

	data := out.RawData()
	if len(data) == 0 {
		return out, nil
	}

	keep := mask.RawData()
	blocks := len(data) / (q * k)
	perBatch := blocks / int(shape[0])

	for b := range blocks {
		row := keep[(b/perBatch)*k : (b/perBatch+1)*k]
		base := b * q * k

		for qi := range q {
			off := base + qi*k
			for ki, m := range row {
				if m == 0 {
					data[off+ki] = fill
				}
			}
		}
	}

	return out, nil
}

// Softmax normalizes the last axis. Rows whose every entry is masked out
// come back as zeros instead of NaN. mask follows MaskScores.
func Softmax(scores, mask *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := MaskScores(scores, mask, math32.Inf(-1))
	if err != nil {
		return nil, err
	}

	shape := out.Shape()
	k := int(shape[len(shape)-1])

	if k == 0 {
		return out, nil
	}

	data := out.RawData()
	for start := 0; start < len(data); start += k {
		softmaxRow(data[start : start+k])
	}

	return out, nil
}

func softmaxRow(row []float32) {
	hi := math32.Inf(-1)
	for _, v := range row {
		hi = max(hi, v)
	}

	if math32.IsInf(hi, -1) {
		clear(row)
		return
	}

	var sum float32

	for i, v := range row {
		e := math32.Exp(v - hi)
		row[i] = e
		sum += e
	}

	inv := 1 / sum
	for i := range row {
		row[i] *= inv
	}
}

// WeightedSum pools values [batch, len_2, d] with weights
// [batch, len_1, len_2] into [batch, len_1, d].
func WeightedSum(weights, values *tensor.Tensor) (*tensor.Tensor, error) {
	if weights == nil || values == nil {
		return nil, errors.New("ops: weighted sum requires non-nil inputs")
	}

	if weights.Rank() != 3 || values.Rank() != 3 {
		return nil, fmt.Errorf("ops: weighted sum requires rank 3 inputs, got %v and %v", weights.Shape(), values.Shape())
	}

	out, err := tensor.MatMul(weights, values)
	if err != nil {
		return nil, fmt.Errorf("ops: weighted sum: %w", err)
	}

	return out, nil
}

// Attend scores tensor1 against tensor2, normalizes each row over the
// unmasked tensor2 positions and returns the attention weights together
// with tensor2 pooled by them. mask is [batch, len_2] or nil.
func Attend(s Scorer, tensor1, tensor2, mask *tensor.Tensor) (weights, pooled *tensor.Tensor, err error) {
	if s == nil {
		return nil, nil, errors.New("ops: attend requires a scorer")
	}

	scores, err := s.Score(tensor1, tensor2)
	if err != nil {
		return nil, nil, fmt.Errorf("ops: attend score: %w", err)
	}

	weights, err = Softmax(scores, mask)
	if err != nil {
		return nil, nil, fmt.Errorf("ops: attend softmax: %w", err)
	}

	pooled, err = WeightedSum(weights, tensor2)
	if err != nil {
		return nil, nil, err
	}

	return weights, pooled, nil
}
