package similarity

import (
	"fmt"

	"github.com/example/go-simscore/internal/nn"
	"github.com/example/go-simscore/internal/params"
	"github.com/example/go-simscore/internal/runtime/tensor"
)

// LinearType is the registry name of Linear.
const LinearType = "linear"

func init() {
	Register(LinearType, func(p *params.Params, opts ...Option) (Function, error) {
		return LinearFromParams(p, opts...)
	})
}

// Linear scores every pair (x_i, y_j) as activation(w·[t_1; ...; t_n] + b),
// where t_k are the combination terms evaluated on that pair. Unlike
// MyLinear it follows the configured combination exactly and applies bias
// and activation.
type Linear struct {
	projection
}

func NewLinear(dim1, dim2 int, opts ...Option) (*Linear, error) {
	p, err := newProjection(LinearType, dim1, dim2, opts)
	if err != nil {
		return nil, err
	}

	return &Linear{projection: *p}, nil
}

func LinearFromParams(p *params.Params, opts ...Option) (*Linear, error) {
	dim1, dim2, extra, err := projectionFromParams(p, "LinearSimilarity")
	if err != nil {
		return nil, err
	}

	return NewLinear(dim1, dim2, append(extra, opts...)...)
}

func (l *Linear) Score(tensor1, tensor2 *tensor.Tensor) (*tensor.Tensor, error) {
	d1, d2, err := checkPair(tensor1, tensor2)
	if err != nil {
		return nil, err
	}

	if d1 != int64(l.dim1) || d2 != int64(l.dim2) {
		return nil, fmt.Errorf("%w: inputs %v and %v do not match configured dims %d and %d",
			ErrShapeAssertion, tensor1.Shape(), tensor2.Shape(), l.dim1, l.dim2)
	}

	// x: [batch, len_1, 1, dim_1], y: [batch, 1, len_2, dim_2]
	x, err := tensor1.Unsqueeze(2)
	if err != nil {
		return nil, err
	}

	y, err := tensor2.Unsqueeze(1)
	if err != nil {
		return nil, err
	}

	terms, err := l.combination.Evaluate(x, y)
	if err != nil {
		return nil, err
	}

	s1, s2 := tensor1.Shape(), tensor2.Shape()

	acc, err := tensor.Zeros([]int64{s1[0], s1[1], s2[1], 1})
	if err != nil {
		return nil, err
	}

	var offset int64

	for i, term := range terms {
		dim, err := term.Dim(-1)
		if err != nil {
			return nil, err
		}

		w, err := l.weight.Narrow(0, offset, dim)
		if err != nil {
			return nil, fmt.Errorf("similarity: weight slice for term %d: %w", i, err)
		}

		w, err = w.Reshape([]int64{dim, 1})
		if err != nil {
			return nil, err
		}

		contrib, err := tensor.MatMul(term, w)
		if err != nil {
			return nil, fmt.Errorf("similarity: term %q: %w", l.combination.terms[i].String(), err)
		}

		acc, err = tensor.BroadcastAdd(acc, contrib)
		if err != nil {
			return nil, err
		}

		offset += dim
	}

	acc, err = tensor.BroadcastAdd(acc, l.bias)
	if err != nil {
		return nil, err
	}

	acc, err = acc.Reshape([]int64{s1[0], s1[1], s2[1]})
	if err != nil {
		return nil, err
	}

	return nn.Apply(l.activation, acc)
}

// PeakElements accounts for binary terms, which are materialized at
// [batch, len_1, len_2, dim] before projection.
func (l *Linear) PeakElements(shape1, shape2 []int64) int64 {
	b, len1, len2 := shape1[0], shape1[1], shape2[1]
	peak := b * len1 * len2

	for _, t := range l.combination.terms {
		if t.Op == OpNone {
			continue
		}

		d, err := t.Dim(l.dim1, l.dim2)
		if err != nil {
			continue
		}

		peak = max(peak, b*len1*len2*int64(d))
	}

	return peak
}
