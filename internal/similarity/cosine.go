package similarity

import (
	"fmt"

	"github.com/example/go-simscore/internal/params"
	"github.com/example/go-simscore/internal/runtime/tensor"
)

// CosineType is the registry name of Cosine.
const CosineType = "cosine"

// cosineEps keeps zero vectors from dividing by zero; their similarity is 0.
const cosineEps = 1e-13

func init() {
	Register(CosineType, func(p *params.Params, _ ...Option) (Function, error) {
		if err := p.AssertEmpty("CosineSimilarity"); err != nil {
			return nil, err
		}

		return Cosine{}, nil
	})
}

// Cosine scores the cosine of the angle between x_i and y_j.
type Cosine struct{}

func (Cosine) Score(tensor1, tensor2 *tensor.Tensor) (*tensor.Tensor, error) {
	d1, d2, err := checkPair(tensor1, tensor2)
	if err != nil {
		return nil, err
	}

	if d1 != d2 {
		return nil, shapeMismatch(tensor1, tensor2)
	}

	n1, err := tensor.L2NormalizeLast(tensor1, cosineEps)
	if err != nil {
		return nil, err
	}

	n2, err := tensor.L2NormalizeLast(tensor2, cosineEps)
	if err != nil {
		return nil, err
	}

	out, _, err := pairwiseDot(n1, n2)

	return out, err
}

func (Cosine) Parameters() []NamedParameter { return nil }

func (Cosine) Config() map[string]any { return map[string]any{"type": CosineType} }

func shapeMismatch(tensor1, tensor2 *tensor.Tensor) error {
	return fmt.Errorf("%w: feature dims differ: %v vs %v", ErrShapeAssertion, tensor1.Shape(), tensor2.Shape())
}
