package similarity

import (
	"fmt"
	"log/slog"

	"github.com/example/go-simscore/internal/nn"
	"github.com/example/go-simscore/internal/params"
	"github.com/example/go-simscore/internal/runtime/tensor"
)

// MyLinearType is the registry name of MyLinear.
const MyLinearType = "mylinear"

func init() {
	Register(MyLinearType, func(p *params.Params, opts ...Option) (Function, error) {
		return MyLinearFromParams(p, opts...)
	})
}

// MyLinear scores
//
//	sim[b,i,j] = x_i·w_a + y_j·w_b + Σ_k x_ik·w_c[k]·y_jk
//
// where w_a, w_b and w_c are the first three equal slices of the weight
// vector. The combination only sizes the weight vector and fixes how many
// slices it is cut into; the scoring formula is the same for every
// combination, and Score needs at least three terms. Bias and activation are
// kept as parameters but Score does not apply them.
type MyLinear struct {
	projection
}

// NewMyLinear builds the scorer for inputs with feature sizes dim1 and dim2.
func NewMyLinear(dim1, dim2 int, opts ...Option) (*MyLinear, error) {
	p, err := newProjection(MyLinearType, dim1, dim2, opts)
	if err != nil {
		return nil, err
	}

	return &MyLinear{projection: *p}, nil
}

// MyLinearFromParams reads tensor_1_dim, tensor_2_dim, combination and
// activation and rejects any other key.
func MyLinearFromParams(p *params.Params, opts ...Option) (*MyLinear, error) {
	dim1, dim2, extra, err := projectionFromParams(p, "MyLinearSimilarity")
	if err != nil {
		return nil, err
	}

	return NewMyLinear(dim1, dim2, append(extra, opts...)...)
}

// Score returns [batch, len_1, len_2] similarities for tensor1
// [batch, len_1, d] and tensor2 [batch, len_2, d], where d*Part() must equal
// the weight length.
func (m *MyLinear) Score(tensor1, tensor2 *tensor.Tensor) (*tensor.Tensor, error) {
	d1, d2, err := checkPair(tensor1, tensor2)
	if err != nil {
		return nil, err
	}

	part := int64(m.Part())
	wlen := int64(m.weight.ElemCount())

	if d1*part != wlen {
		return nil, fmt.Errorf("%w: tensor_1 dim %d * part %d != weight length %d (tensor_1 %v, tensor_2 %v)",
			ErrShapeAssertion, d1, part, wlen, tensor1.Shape(), tensor2.Shape())
	}

	if part < 3 {
		return nil, fmt.Errorf("%w: weight vector %v has %d slices, score needs 3 (combination %q)",
			ErrShapeAssertion, m.weight.Shape(), part, m.combination.String())
	}

	d := wlen / part
	if d2 != d {
		return nil, fmt.Errorf("%w: tensor_2 dim %d != slice length %d (tensor_1 %v, tensor_2 %v)",
			ErrShapeAssertion, d2, d, tensor1.Shape(), tensor2.Shape())
	}

	wa, err := m.slice(0, d, []int64{d, 1})
	if err != nil {
		return nil, err
	}

	wb, err := m.slice(d, d, []int64{d, 1})
	if err != nil {
		return nil, err
	}

	wc, err := m.slice(2*d, d, []int64{d})
	if err != nil {
		return nil, err
	}

	// [batch, len_1, 1]
	rowScore, err := tensor.MatMul(tensor1, wa)
	if err != nil {
		return nil, fmt.Errorf("similarity: row projection: %w", err)
	}

	// [batch, len_2, 1] -> [batch, 1, len_2]
	colScore, err := tensor.MatMul(tensor2, wb)
	if err != nil {
		return nil, fmt.Errorf("similarity: column projection: %w", err)
	}

	colScore, err = colScore.Transpose(1, 2)
	if err != nil {
		return nil, err
	}

	scaled, err := tensor.BroadcastMul(tensor1, wc)
	if err != nil {
		return nil, fmt.Errorf("similarity: scale tensor_1: %w", err)
	}

	t2T, err := tensor2.Transpose(1, 2)
	if err != nil {
		return nil, err
	}

	// [batch, len_1, len_2]
	cross, err := tensor.MatMul(scaled, t2T)
	if err != nil {
		return nil, fmt.Errorf("similarity: bilinear term: %w", err)
	}

	outer, err := tensor.BroadcastAdd(rowScore, colScore)
	if err != nil {
		return nil, err
	}

	return tensor.BroadcastAdd(outer, cross)
}

func (m *MyLinear) slice(start, length int64, shape []int64) (*tensor.Tensor, error) {
	w, err := m.weight.Narrow(0, start, length)
	if err != nil {
		return nil, fmt.Errorf("similarity: weight slice: %w", err)
	}

	return w.Reshape(shape)
}

// projection holds what MyLinear and Linear share: a combination-sized
// weight vector, a scalar bias and an activation.
type projection struct {
	typeName       string
	dim1, dim2     int
	combination    Combination
	weight         *tensor.Tensor
	bias           *tensor.Tensor
	activation     nn.Activation
	activationName string
	opts           options
}

func newProjection(typeName string, dim1, dim2 int, optFns []Option) (*projection, error) {
	if dim1 <= 0 || dim2 <= 0 {
		return nil, fmt.Errorf("%w: %s dims must be positive, got tensor_1_dim=%d tensor_2_dim=%d", ErrConfiguration, typeName, dim1, dim2)
	}

	o := defaultOptions()
	for _, fn := range optFns {
		fn(&o)
	}

	comb, err := ParseCombination(o.combination)
	if err != nil {
		return nil, err
	}

	combinedDim, err := comb.CombinedDim(dim1, dim2)
	if err != nil {
		return nil, err
	}

	if err := o.resolve(); err != nil {
		return nil, err
	}

	weight, err := tensor.Zeros([]int64{int64(combinedDim)})
	if err != nil {
		return nil, err
	}

	bias, err := tensor.Zeros([]int64{1})
	if err != nil {
		return nil, err
	}

	p := &projection{
		typeName:       typeName,
		dim1:           dim1,
		dim2:           dim2,
		combination:    comb,
		weight:         weight,
		bias:           bias,
		activation:     o.activation,
		activationName: o.activationName,
		opts:           o,
	}
	p.ResetParameters()

	slog.Debug("similarity function built",
		"type", typeName,
		"combination", comb.String(),
		"combined_dim", combinedDim,
		"activation", o.activationName,
	)

	return p, nil
}

func projectionFromParams(p *params.Params, name string) (int, int, []Option, error) {
	dim1, err := p.PopInt("tensor_1_dim")
	if err != nil {
		return 0, 0, nil, err
	}

	dim2, err := p.PopInt("tensor_2_dim")
	if err != nil {
		return 0, 0, nil, err
	}

	combination, err := p.PopString("combination", "x,y")
	if err != nil {
		return 0, 0, nil, err
	}

	activation, err := p.PopString("activation", "linear")
	if err != nil {
		return 0, 0, nil, err
	}

	if err := p.AssertEmpty(name); err != nil {
		return 0, 0, nil, err
	}

	return dim1, dim2, []Option{WithCombination(combination), WithActivation(activation)}, nil
}

// ResetParameters redraws the weight vector from U[-std, std] with
// std = sqrt(6/(len(w)+1)) and zeroes the bias, in place.
func (p *projection) ResetParameters() {
	std := nn.FanInUniformBound(p.weight.ElemCount())
	nn.UniformFill(p.weight, -std, std, p.opts.src)
	nn.ConstantFill(p.bias, 0)
}

// Weight returns the live weight vector [combined_dim].
func (p *projection) Weight() *tensor.Tensor { return p.weight }

// Bias returns the live scalar bias [1].
func (p *projection) Bias() *tensor.Tensor { return p.bias }

// Activation returns the configured activation.
func (p *projection) Activation() nn.Activation { return p.activation }

// Combination returns the parsed combination.
func (p *projection) Combination() Combination { return p.combination }

// Part is the number of combination terms.
func (p *projection) Part() int { return p.combination.Part() }

func (p *projection) Parameters() []NamedParameter {
	return []NamedParameter{
		{Name: "weight_vector", Tensor: p.weight},
		{Name: "bias", Tensor: p.bias},
	}
}

func (p *projection) Config() map[string]any {
	return map[string]any{
		"type":         p.typeName,
		"tensor_1_dim": p.dim1,
		"tensor_2_dim": p.dim2,
		"combination":  p.combination.String(),
		"activation":   p.activationName,
	}
}
