// Package similarity implements pairwise similarity functions over batches
// of vector sequences. Every function maps tensor_1 [batch, len_1, dim_1] and
// tensor_2 [batch, len_2, dim_2] to a score matrix [batch, len_1, len_2].
//
// Functions are selected by name through a registry so that configuration
// files can pick one with a "type" key.
package similarity

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/example/go-simscore/internal/nn"
	"github.com/example/go-simscore/internal/params"
	"github.com/example/go-simscore/internal/runtime/tensor"
)

var (
	// ErrConfiguration is returned for invalid construction arguments or
	// configuration objects.
	ErrConfiguration = params.ErrConfiguration

	// ErrShapeAssertion is returned when score inputs are inconsistent with
	// the configured dimensions. It signals a wiring bug in the caller.
	ErrShapeAssertion = errors.New("shape assertion failed")
)

// Function scores every position of one sequence batch against every
// position of another.
type Function interface {
	Score(tensor1, tensor2 *tensor.Tensor) (*tensor.Tensor, error)
	// Parameters returns the live learnable tensors; writes through them
	// change the function.
	Parameters() []NamedParameter
	// Config returns the key-value description FromParams rebuilds the
	// function from, including "type".
	Config() map[string]any
}

// elementEstimator is implemented by functions whose intermediates outgrow
// the [batch, len_1, len_2] output.
type elementEstimator interface {
	PeakElements(shape1, shape2 []int64) int64
}

// PeakElements returns the largest tensor, in elements, fn allocates when
// scoring inputs of the given [batch, len, dim] shapes. Functions without
// larger intermediates report the score matrix size.
func PeakElements(fn Function, shape1, shape2 []int64) int64 {
	if len(shape1) != 3 || len(shape2) != 3 {
		return 0
	}

	if e, ok := fn.(elementEstimator); ok {
		return e.PeakElements(shape1, shape2)
	}

	return shape1[0] * shape1[1] * shape2[1]
}

// NamedParameter is a learnable tensor and its checkpoint name.
type NamedParameter struct {
	Name   string
	Tensor *tensor.Tensor
}

// Option customizes construction of parameterized functions. Functions
// without parameters ignore options.
type Option func(*options)

type options struct {
	combination    string
	activationName string
	activation     nn.Activation
	src            rand.Source
}

func defaultOptions() options {
	return options{
		combination:    "x,y",
		activationName: "linear",
		activation:     nn.Identity,
	}
}

// WithCombination sets the combination string (default "x,y").
func WithCombination(s string) Option {
	return func(o *options) { o.combination = s }
}

// WithActivation selects a registered activation by name (default "linear").
func WithActivation(name string) Option {
	return func(o *options) {
		o.activationName = name
		o.activation = nil
	}
}

// WithActivationFunc installs an arbitrary activation. It is recorded as
// "custom" in Config and cannot be restored from a checkpoint.
func WithActivationFunc(act nn.Activation) Option {
	return func(o *options) {
		o.activationName = "custom"
		o.activation = act
	}
}

// WithSource sets the random source used by ResetParameters.
func WithSource(src rand.Source) Option {
	return func(o *options) { o.src = src }
}

// WithSeed is WithSource with a PCG generator seeded from seed.
func WithSeed(seed uint64) Option {
	return WithSource(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func (o *options) resolve() error {
	if o.activation == nil {
		act, err := nn.ActivationByName(o.activationName)
		if err != nil {
			return err
		}

		o.activation = act
	}

	if o.src == nil {
		o.src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}

	return nil
}

// checkPair validates the rank and batch agreement shared by every function
// and returns the two feature sizes.
func checkPair(tensor1, tensor2 *tensor.Tensor) (int64, int64, error) {
	if tensor1 == nil || tensor2 == nil {
		return 0, 0, fmt.Errorf("%w: score requires non-nil tensors", ErrShapeAssertion)
	}

	s1, s2 := tensor1.Shape(), tensor2.Shape()
	if len(s1) != 3 || len(s2) != 3 {
		return 0, 0, fmt.Errorf("%w: expected [batch, len, dim] inputs, got %v and %v", ErrShapeAssertion, s1, s2)
	}

	if s1[0] != s2[0] {
		return 0, 0, fmt.Errorf("%w: batch sizes differ: %v vs %v", ErrShapeAssertion, s1, s2)
	}

	return s1[2], s2[2], nil
}
