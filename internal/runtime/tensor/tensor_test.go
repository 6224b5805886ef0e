package tensor

import (
	"strings"
	"testing"
)

func TestNewRejectsLengthMismatch(t *testing.T) {
	_, err := New([]float32{1, 2, 3}, []int64{2, 2})
	if err == nil || !strings.Contains(err.Error(), "does not match shape") {
		t.Fatalf("expected length mismatch error, got %v", err)
	}
}

func TestNewCopiesInputs(t *testing.T) {
	data := []float32{1, 2}
	shape := []int64{2}

	x, err := New(data, shape)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	data[0] = 99
	shape[0] = 7

	if got := x.Data(); got[0] != 1 {
		t.Fatalf("data aliased caller slice: %v", got)
	}

	if got := x.Shape(); got[0] != 2 {
		t.Fatalf("shape aliased caller slice: %v", got)
	}
}

func TestFull(t *testing.T) {
	x, err := Full([]int64{2, 2}, 3)
	if err != nil {
		t.Fatalf("full: %v", err)
	}

	if got := x.Data(); !equalF32(got, []float32{3, 3, 3, 3}, 0) {
		t.Fatalf("data = %v", got)
	}
}

func TestRawDataSharesStorage(t *testing.T) {
	x, _ := New([]float32{1, 2, 3}, []int64{3})
	x.RawData()[1] = 20

	if got := x.Data(); got[1] != 20 {
		t.Fatalf("raw write not visible: %v", got)
	}

	if x.ElemCount() != 3 || x.Rank() != 1 {
		t.Fatalf("ElemCount/Rank = %d/%d", x.ElemCount(), x.Rank())
	}
}

func TestNilTensorAccessors(t *testing.T) {
	var x *Tensor
	if x.Shape() != nil || x.Data() != nil || x.RawData() != nil || x.Clone() != nil {
		t.Fatal("nil tensor accessors should return nil")
	}

	if x.ElemCount() != 0 || x.Rank() != 0 {
		t.Fatal("nil tensor counts should be zero")
	}
}

func TestReshapePreservesValues(t *testing.T) {
	x, err := New([]float32{1, 2, 3, 4, 5, 6}, []int64{2, 3})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	y, err := x.Reshape([]int64{3, 2})
	if err != nil {
		t.Fatalf("reshape: %v", err)
	}

	if got := y.Shape(); !equalI64(got, []int64{3, 2}) {
		t.Fatalf("shape = %v, want [3 2]", got)
	}

	if got := y.Data(); !equalF32(got, []float32{1, 2, 3, 4, 5, 6}, 0) {
		t.Fatalf("data = %v", got)
	}

	if _, err := x.Reshape([]int64{4}); err == nil {
		t.Fatal("expected reshape element-count error")
	}
}

func TestUnsqueeze(t *testing.T) {
	x, _ := New([]float32{1, 2, 3, 4, 5, 6}, []int64{2, 3})

	tests := []struct {
		dim  int
		want []int64
	}{
		{0, []int64{1, 2, 3}},
		{1, []int64{2, 1, 3}},
		{2, []int64{2, 3, 1}},
		{-1, []int64{2, 3, 1}},
	}

	for _, tt := range tests {
		y, err := x.Unsqueeze(tt.dim)
		if err != nil {
			t.Fatalf("unsqueeze(%d): %v", tt.dim, err)
		}

		if got := y.Shape(); !equalI64(got, tt.want) {
			t.Errorf("unsqueeze(%d) shape = %v, want %v", tt.dim, got, tt.want)
		}
	}

	if _, err := x.Unsqueeze(4); err == nil {
		t.Fatal("expected out-of-range unsqueeze error")
	}
}

func TestDim(t *testing.T) {
	x, _ := Zeros([]int64{2, 5, 7})

	got, err := x.Dim(-1)
	if err != nil || got != 7 {
		t.Fatalf("Dim(-1) = %d, %v; want 7", got, err)
	}

	if _, err := x.Dim(3); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestCopyFrom(t *testing.T) {
	dst, _ := Zeros([]int64{2})
	src, _ := New([]float32{4, 5}, []int64{2})

	if err := dst.CopyFrom(src); err != nil {
		t.Fatalf("copy: %v", err)
	}

	if got := dst.Data(); !equalF32(got, []float32{4, 5}, 0) {
		t.Fatalf("data = %v", got)
	}

	bad, _ := Zeros([]int64{1, 2})
	if err := dst.CopyFrom(bad); err == nil {
		t.Fatal("expected shape mismatch error")
	}
}
