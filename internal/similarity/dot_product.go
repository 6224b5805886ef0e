package similarity

import (
	"github.com/chewxy/math32"

	"github.com/example/go-simscore/internal/params"
	"github.com/example/go-simscore/internal/runtime/tensor"
)

// DotProductType is the registry name of DotProduct.
const DotProductType = "dot_product"

func init() {
	Register(DotProductType, func(p *params.Params, _ ...Option) (Function, error) {
		scale, err := p.PopBool("scale_output", false)
		if err != nil {
			return nil, err
		}

		if err := p.AssertEmpty("DotProductSimilarity"); err != nil {
			return nil, err
		}

		return &DotProduct{ScaleOutput: scale}, nil
	})
}

// DotProduct scores x_i·y_j, divided by sqrt(d) when ScaleOutput is set.
type DotProduct struct {
	ScaleOutput bool
}

func (s *DotProduct) Score(tensor1, tensor2 *tensor.Tensor) (*tensor.Tensor, error) {
	out, d, err := pairwiseDot(tensor1, tensor2)
	if err != nil {
		return nil, err
	}

	if !s.ScaleOutput {
		return out, nil
	}

	inv := 1 / math32.Sqrt(float32(d))

	return tensor.Map(out, func(v float32) float32 { return v * inv })
}

func (s *DotProduct) Parameters() []NamedParameter { return nil }

func (s *DotProduct) Config() map[string]any {
	return map[string]any{"type": DotProductType, "scale_output": s.ScaleOutput}
}

// pairwiseDot returns x_i·y_j and the shared feature size.
func pairwiseDot(tensor1, tensor2 *tensor.Tensor) (*tensor.Tensor, int64, error) {
	d1, d2, err := checkPair(tensor1, tensor2)
	if err != nil {
		return nil, 0, err
	}

	if d1 != d2 {
		return nil, 0, shapeMismatch(tensor1, tensor2)
	}

	t2T, err := tensor2.Transpose(1, 2)
	if err != nil {
		return nil, 0, err
	}

	out, err := tensor.MatMul(tensor1, t2T)
	if err != nil {
		return nil, 0, err
	}

	return out, d1, nil
}
