package similarity

import (
	"fmt"
	"strings"

	"github.com/example/go-simscore/internal/runtime/tensor"
)

// Operand selects one of the two input tensors.
type Operand byte

const (
	OperandX Operand = 'x'
	OperandY Operand = 'y'
)

// Op is an elementwise binary operator; OpNone marks an identity term.
type Op byte

const (
	OpNone Op = 0
	OpMul  Op = '*'
	OpAdd  Op = '+'
	OpSub  Op = '-'
	OpDiv  Op = '/'
)

// Term is one comma-separated entry of a combination: either a bare operand
// ("x") or "left op right" ("x*y").
type Term struct {
	Left  Operand
	Op    Op
	Right Operand
}

func (t Term) String() string {
	if t.Op == OpNone {
		return string([]byte{byte(t.Left)})
	}

	return string([]byte{byte(t.Left), byte(t.Op), byte(t.Right)})
}

// Dim returns the feature size this term contributes given the two input
// feature sizes. Binary terms need both operands to have the same size.
func (t Term) Dim(dim1, dim2 int) (int, error) {
	left := operandDim(t.Left, dim1, dim2)
	if t.Op == OpNone {
		return left, nil
	}

	right := operandDim(t.Right, dim1, dim2)
	if left != right {
		return 0, fmt.Errorf("%w: tensor dims must match for operation %q (%d vs %d)", ErrConfiguration, t.String(), left, right)
	}

	return left, nil
}

// Combination is a parsed combination string such as "x,y,x*y".
type Combination struct {
	terms []Term
}

// ParseCombination parses a comma-separated list of terms. Each term is "x",
// "y", or "a op b" with a, b in {x, y} and op in {*, +, -, /}; surrounding
// whitespace is ignored.
func ParseCombination(s string) (Combination, error) {
	parts := strings.Split(s, ",")
	terms := make([]Term, 0, len(parts))

	for _, raw := range parts {
		term, err := parseTerm(strings.TrimSpace(raw))
		if err != nil {
			return Combination{}, fmt.Errorf("%w: invalid combination %q: %v", ErrConfiguration, s, err)
		}

		terms = append(terms, term)
	}

	return Combination{terms: terms}, nil
}

func parseTerm(tok string) (Term, error) {
	switch len(tok) {
	case 1:
		op, ok := parseOperand(tok[0])
		if !ok {
			return Term{}, fmt.Errorf("unknown operand %q", tok)
		}

		return Term{Left: op}, nil
	case 3:
		left, okL := parseOperand(tok[0])
		right, okR := parseOperand(tok[2])

		if !okL || !okR {
			return Term{}, fmt.Errorf("unknown operand in %q", tok)
		}

		switch op := Op(tok[1]); op {
		case OpMul, OpAdd, OpSub, OpDiv:
			return Term{Left: left, Op: op, Right: right}, nil
		default:
			return Term{}, fmt.Errorf("unknown operator %q in %q", tok[1], tok)
		}
	case 0:
		return Term{}, fmt.Errorf("empty term")
	default:
		return Term{}, fmt.Errorf("unrecognized term %q", tok)
	}
}

func parseOperand(c byte) (Operand, bool) {
	switch Operand(c) {
	case OperandX, OperandY:
		return Operand(c), true
	default:
		return 0, false
	}
}

// Part is the number of terms.
func (c Combination) Part() int { return len(c.terms) }

// Terms returns a copy of the parsed terms.
func (c Combination) Terms() []Term { return append([]Term(nil), c.terms...) }

func (c Combination) String() string {
	parts := make([]string, len(c.terms))
	for i, t := range c.terms {
		parts[i] = t.String()
	}

	return strings.Join(parts, ",")
}

// CombinedDim sums the per-term feature sizes.
func (c Combination) CombinedDim(dim1, dim2 int) (int, error) {
	total := 0

	for _, t := range c.terms {
		d, err := t.Dim(dim1, dim2)
		if err != nil {
			return 0, err
		}

		total += d
	}

	return total, nil
}

// Evaluate computes each term over x and y. x and y must broadcast against
// each other on every axis but the last; each result keeps its own
// broadcast shape.
func (c Combination) Evaluate(x, y *tensor.Tensor) ([]*tensor.Tensor, error) {
	if x.Rank() < 1 || y.Rank() < 1 {
		return nil, fmt.Errorf("%w: combination inputs need rank >= 1, got %v and %v", ErrShapeAssertion, x.Shape(), y.Shape())
	}

	out := make([]*tensor.Tensor, len(c.terms))

	for i, t := range c.terms {
		left := pick(t.Left, x, y)
		if t.Op == OpNone {
			out[i] = left
			continue
		}

		right := pick(t.Right, x, y)

		var (
			v   *tensor.Tensor
			err error
		)

		switch t.Op {
		case OpMul:
			v, err = tensor.BroadcastMul(left, right)
		case OpAdd:
			v, err = tensor.BroadcastAdd(left, right)
		case OpSub:
			v, err = tensor.BroadcastSub(left, right)
		case OpDiv:
			v, err = tensor.BroadcastDiv(left, right)
		}

		if err != nil {
			return nil, fmt.Errorf("similarity: term %q: %w", t.String(), err)
		}

		out[i] = v
	}

	return out, nil
}

// Combine evaluates every term, broadcasts the results to a common shape
// (ignoring the last axis) and concatenates them along the last axis.
func (c Combination) Combine(x, y *tensor.Tensor) (*tensor.Tensor, error) {
	terms, err := c.Evaluate(x, y)
	if err != nil {
		return nil, err
	}

	lead := make([][]int64, len(terms))
	for i, t := range terms {
		s := t.Shape()
		lead[i] = s[:len(s)-1]
	}

	common, err := tensor.BroadcastShapes(lead...)
	if err != nil {
		return nil, fmt.Errorf("similarity: combine: %w", err)
	}

	expanded := make([]*tensor.Tensor, len(terms))
	for i, t := range terms {
		s := t.Shape()
		target := append(append([]int64(nil), common...), s[len(s)-1])

		expanded[i], err = tensor.BroadcastTo(t, target)
		if err != nil {
			return nil, fmt.Errorf("similarity: combine term %q: %w", c.terms[i].String(), err)
		}
	}

	return tensor.Concat(expanded, -1)
}

func operandDim(o Operand, dim1, dim2 int) int {
	if o == OperandX {
		return dim1
	}

	return dim2
}

func pick(o Operand, x, y *tensor.Tensor) *tensor.Tensor {
	if o == OperandX {
		return x
	}

	return y
}
