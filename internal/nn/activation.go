// Package nn holds the stateless building blocks shared by similarity
// functions: named activations and parameter initializers.
package nn

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chewxy/math32"

	"github.com/example/go-simscore/internal/params"
	"github.com/example/go-simscore/internal/runtime/tensor"
)

// Activation is a pure elementwise function.
type Activation func(float32) float32

const (
	seluAlpha = 1.6732632423543772
	seluScale = 1.0507009873554805
)

var activations = map[string]Activation{
	"linear":     Identity,
	"relu":       func(x float32) float32 { return max(x, 0) },
	"relu6":      func(x float32) float32 { return min(max(x, 0), 6) },
	"elu":        func(x float32) float32 { return elu(x, 1) },
	"leaky_relu": func(x float32) float32 { return leakyReLU(x, 0.01) },
	"selu":       func(x float32) float32 { return seluScale * elu(x, seluAlpha) },
	"sigmoid":    sigmoid,
	"tanh":       math32.Tanh,
	"softplus":   func(x float32) float32 { return math32.Log1p(math32.Exp(x)) },
	"softsign":   func(x float32) float32 { return x / (1 + math32.Abs(x)) },
}

// Identity returns its input unchanged.
func Identity(x float32) float32 { return x }

// ActivationByName looks up a registered activation. Names are matched
// case-insensitively; "" means linear.
func ActivationByName(name string) (Activation, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = "linear"
	}

	act, ok := activations[key]
	if !ok {
		return nil, fmt.Errorf("%w: unknown activation %q (want one of %s)", params.ErrConfiguration, name, strings.Join(ActivationNames(), ", "))
	}

	return act, nil
}

// ActivationNames lists the registered activation names in sorted order.
func ActivationNames() []string {
	names := make([]string, 0, len(activations))
	for name := range activations {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Apply maps act over t. A nil act behaves as Identity.
func Apply(act Activation, t *tensor.Tensor) (*tensor.Tensor, error) {
	if act == nil {
		return t.Clone(), nil
	}

	return tensor.Map(t, act)
}

func sigmoid(x float32) float32 {
	if x >= 0 {
		return 1 / (1 + math32.Exp(-x))
	}

	e := math32.Exp(x)

	return e / (1 + e)
}

func elu(x, alpha float32) float32 {
	if x > 0 {
		return x
	}

	return alpha * (math32.Exp(x) - 1)
}

func leakyReLU(x, slope float32) float32 {
	if x > 0 {
		return x
	}

	return slope * x
}
