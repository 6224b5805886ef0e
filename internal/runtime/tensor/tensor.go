// Package tensor is the dense float32 runtime the similarity functions are
// built on. Shapes are int64 and storage is row-major.
package tensor

import (
	"errors"
	"fmt"
)

// Tensor is a dense, row-major float32 tensor.
type Tensor struct {
	shape []int64
	data  []float32
}

// New creates a tensor from data and shape. Both slices are copied.
func New(data []float32, shape []int64) (*Tensor, error) {
	total, err := shapeElemCount(shape)
	if err != nil {
		return nil, err
	}

	if len(data) != total {
		return nil, fmt.Errorf("tensor: data length %d does not match shape %v (%d elements)", len(data), shape, total)
	}

	s := append([]int64(nil), shape...)
	d := append([]float32(nil), data...)

	return &Tensor{shape: s, data: d}, nil
}

// newOwned wraps data and shape without copying. len(data) must match the
// shape; the caller gives up both slices.
func newOwned(data []float32, shape []int64) *Tensor {
	return &Tensor{shape: shape, data: data}
}

// Zeros creates a zero-initialized tensor.
func Zeros(shape []int64) (*Tensor, error) {
	total, err := shapeElemCount(shape)
	if err != nil {
		return nil, err
	}

	return &Tensor{
		shape: append([]int64(nil), shape...),
		data:  make([]float32, total),
	}, nil
}

// Full creates a tensor filled with value.
func Full(shape []int64, value float32) (*Tensor, error) {
	t, err := Zeros(shape)
	if err != nil {
		return nil, err
	}

	for i := range t.data {
		t.data[i] = value
	}

	return t, nil
}

func (t *Tensor) Shape() []int64 {
	if t == nil {
		return nil
	}

	return append([]int64(nil), t.shape...)
}

// Dim returns the size of dimension dim; negative values count from the end.
func (t *Tensor) Dim(dim int) (int64, error) {
	if t == nil {
		return 0, errors.New("tensor: dim on nil tensor")
	}

	d, err := normalizeDim(dim, len(t.shape))
	if err != nil {
		return 0, fmt.Errorf("tensor: %w", err)
	}

	return t.shape[d], nil
}

// Data returns a copy of the underlying tensor data.
func (t *Tensor) Data() []float32 {
	if t == nil {
		return nil
	}

	return append([]float32(nil), t.data...)
}

// RawData returns the underlying data slice. Writes through it are visible
// to every holder of t.
func (t *Tensor) RawData() []float32 {
	if t == nil {
		return nil
	}

	return t.data
}

func (t *Tensor) ElemCount() int {
	if t == nil {
		return 0
	}

	return len(t.data)
}

func (t *Tensor) Rank() int {
	if t == nil {
		return 0
	}

	return len(t.shape)
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	if t == nil {
		return nil
	}

	return &Tensor{
		shape: append([]int64(nil), t.shape...),
		data:  append([]float32(nil), t.data...),
	}
}

// CopyFrom overwrites t's values with src's. Shapes must match exactly.
func (t *Tensor) CopyFrom(src *Tensor) error {
	if t == nil || src == nil {
		return errors.New("tensor: copy requires non-nil tensors")
	}

	if !EqualShape(t.shape, src.shape) {
		return fmt.Errorf("tensor: copy shape mismatch: dst %v, src %v", t.shape, src.shape)
	}

	copy(t.data, src.data)

	return nil
}

// Reshape returns a copy of t with a new shape.
func (t *Tensor) Reshape(shape []int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: reshape on nil tensor")
	}

	total, err := shapeElemCount(shape)
	if err != nil {
		return nil, err
	}

	if total != len(t.data) {
		return nil, fmt.Errorf("tensor: cannot reshape %v (%d elements) to %v (%d elements)", t.shape, len(t.data), shape, total)
	}

	return &Tensor{shape: append([]int64(nil), shape...), data: append([]float32(nil), t.data...)}, nil
}

// Unsqueeze inserts a size-1 dimension at dim. dim may equal Rank() to
// append a trailing axis; negative values count from Rank()+1.
func (t *Tensor) Unsqueeze(dim int) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: unsqueeze on nil tensor")
	}

	d, err := normalizeDim(dim, len(t.shape)+1)
	if err != nil {
		return nil, fmt.Errorf("tensor: unsqueeze: %w", err)
	}

	shape := make([]int64, 0, len(t.shape)+1)
	shape = append(shape, t.shape[:d]...)
	shape = append(shape, 1)
	shape = append(shape, t.shape[d:]...)

	return t.Reshape(shape)
}

// EqualShape reports whether two shapes are identical.
func EqualShape(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
