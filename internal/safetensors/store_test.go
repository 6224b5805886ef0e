package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"io/fs"
	"math"
	"path/filepath"
	"strings"
	"testing"
)

type rawTensor struct {
	dtype string
	shape []int64
	data  []byte
}

// buildSafetensors constructs a payload by hand so the reader is tested
// independently of EncodeTensors.
func buildSafetensors(t *testing.T, tensors map[string]rawTensor) []byte {
	t.Helper()

	header := make(map[string]any, len(tensors))
	var payload []byte

	for name, tt := range tensors {
		start := len(payload)
		payload = append(payload, tt.data...)
		header[name] = map[string]any{
			"dtype":        tt.dtype,
			"shape":        tt.shape,
			"data_offsets": []int{start, len(payload)},
		}
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}

	out := binary.LittleEndian.AppendUint64(nil, uint64(len(headerJSON)))
	out = append(out, headerJSON...)

	return append(out, payload...)
}

func float32Bytes(vals []float32) []byte {
	buf := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}

	return buf
}

func float16Bytes(bits []uint16) []byte {
	buf := make([]byte, len(bits)*2)
	for i, b := range bits {
		binary.LittleEndian.PutUint16(buf[i*2:], b)
	}

	return buf
}

func bfloat16BytesFromFloat32(vals []float32) []byte {
	buf := make([]byte, len(vals)*2)
	for i, v := range vals {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(math.Float32bits(v)>>16))
	}

	return buf
}

func assertFloatSliceNear(t *testing.T, got, want []float32, tol float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d want %d", len(got), len(want))
	}

	for i := range got {
		if diff := math.Abs(float64(got[i] - want[i])); diff > tol {
			t.Fatalf("value[%d]=%v want=%v diff=%v tol=%v", i, got[i], want[i], diff, tol)
		}
	}
}

func TestStore_TensorByName_F32(t *testing.T) {
	blob := buildSafetensors(t, map[string]rawTensor{
		"alpha": {dtype: "F32", shape: []int64{2}, data: float32Bytes([]float32{1, 2})},
		"beta":  {dtype: "F32", shape: []int64{1, 3}, data: float32Bytes([]float32{3, 4, 5})},
	})

	store, err := OpenStoreFromBytes(blob, StoreOptions{})
	if err != nil {
		t.Fatalf("OpenStoreFromBytes: %v", err)
	}
	defer store.Close()

	if names := store.Names(); strings.Join(names, "|") != "alpha|beta" {
		t.Fatalf("Names() = %v; want [alpha beta]", names)
	}

	beta, err := store.Tensor("beta")
	if err != nil {
		t.Fatalf("Tensor(beta): %v", err)
	}

	if !equalShape(beta.Shape, []int64{1, 3}) {
		t.Fatalf("beta shape = %v; want [1 3]", beta.Shape)
	}

	assertFloatSliceNear(t, beta.Data, []float32{3, 4, 5}, 0)
}

func TestStore_DTypeConversion_F16AndBF16(t *testing.T) {
	blob := buildSafetensors(t, map[string]rawTensor{
		"half":  {dtype: "F16", shape: []int64{3}, data: float16Bytes([]uint16{0x3c00, 0xc000, 0x3800})},
		"bhalf": {dtype: "BF16", shape: []int64{3}, data: bfloat16BytesFromFloat32([]float32{1.0, -2.0, 0.5})},
	})

	store, err := OpenStoreFromBytes(blob, StoreOptions{})
	if err != nil {
		t.Fatalf("OpenStoreFromBytes: %v", err)
	}
	defer store.Close()

	half, err := store.Tensor("half")
	if err != nil {
		t.Fatalf("Tensor(half): %v", err)
	}

	assertFloatSliceNear(t, half.Data, []float32{1.0, -2.0, 0.5}, 1e-4)

	bhalf, err := store.Tensor("bhalf")
	if err != nil {
		t.Fatalf("Tensor(bhalf): %v", err)
	}

	assertFloatSliceNear(t, bhalf.Data, []float32{1.0, -2.0, 0.5}, 1e-4)
}

func TestStore_Prefix(t *testing.T) {
	blob := buildSafetensors(t, map[string]rawTensor{
		"matcher.similarity.weight_vector": {dtype: "F32", shape: []int64{1}, data: float32Bytes([]float32{1})},
		"encoder.weight":                   {dtype: "F32", shape: []int64{1}, data: float32Bytes([]float32{2})},
	})

	store, err := OpenStoreFromBytes(blob, StoreOptions{Prefix: "matcher.similarity"})
	if err != nil {
		t.Fatalf("OpenStoreFromBytes: %v", err)
	}
	defer store.Close()

	if !store.Has("weight_vector") || store.Has("encoder.weight") {
		t.Fatalf("prefixed names = %v; want [weight_vector]", store.Names())
	}

	_, err = OpenStoreFromBytes(blob, StoreOptions{Prefix: "decoder"})
	if err == nil || !strings.Contains(err.Error(), `prefix "decoder"`) {
		t.Fatalf("expected missing-prefix error, got %v", err)
	}
}

func TestStore_TensorWithShapeAndMissingDiagnostics(t *testing.T) {
	blob := buildSafetensors(t, map[string]rawTensor{
		"alpha": {dtype: "F32", shape: []int64{2}, data: float32Bytes([]float32{1, 2})},
	})

	store, err := OpenStoreFromBytes(blob, StoreOptions{})
	if err != nil {
		t.Fatalf("OpenStoreFromBytes: %v", err)
	}
	defer store.Close()

	if _, err := store.TensorWithShape("alpha", []int64{1, 2}); err == nil {
		t.Fatal("TensorWithShape should fail on shape mismatch")
	}

	_, err = store.Tensor("missing")
	if err == nil || !strings.Contains(err.Error(), "available: alpha") {
		t.Fatalf("missing tensor error should include available names, got: %v", err)
	}
}

func TestStore_CorruptionErrors(t *testing.T) {
	tests := []struct {
		name string
		data func() []byte
	}{
		{"empty", func() []byte { return nil }},
		{"header too long", func() []byte {
			return binary.LittleEndian.AppendUint64(nil, 1<<20)
		}},
		{"invalid json", func() []byte {
			header := "{not json"
			out := binary.LittleEndian.AppendUint64(nil, uint64(len(header)))
			return append(out, header...)
		}},
		{"unsupported dtype", func() []byte {
			return buildSafetensors(t, map[string]rawTensor{
				"x": {dtype: "I64", shape: []int64{1}, data: make([]byte, 8)},
			})
		}},
		{"offsets reversed", func() []byte {
			header := `{"bad":{"dtype":"F32","shape":[1],"data_offsets":[4,2]}}`
			out := binary.LittleEndian.AppendUint64(nil, uint64(len(header)))
			out = append(out, header...)
			return append(out, make([]byte, 4)...)
		}},
		{"data truncated", func() []byte {
			return buildSafetensors(t, map[string]rawTensor{
				"x": {dtype: "F32", shape: []int64{4}, data: float32Bytes([]float32{1})},
			})
		}},
		{"metadata only", func() []byte {
			header := `{"__metadata__":{"k":"v"}}`
			out := binary.LittleEndian.AppendUint64(nil, uint64(len(header)))
			return append(out, header...)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := OpenStoreFromBytes(tt.data(), StoreOptions{}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestOpenStore_FileNotFound(t *testing.T) {
	_, err := OpenStore(filepath.Join(t.TempDir(), "missing.safetensors"), StoreOptions{})
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestFloat16ToFloat32(t *testing.T) {
	tests := []struct {
		bits uint16
		want float32
	}{
		{0x0000, 0},
		{0x3c00, 1},
		{0xc000, -2},
		{0x7bff, 65504},
		{0x0001, 5.9604645e-08},
	}

	for _, tt := range tests {
		if got := float16ToFloat32(tt.bits); got != tt.want {
			t.Errorf("float16ToFloat32(%#04x) = %v; want %v", tt.bits, got, tt.want)
		}
	}

	if got := float16ToFloat32(0x7c00); !math.IsInf(float64(got), 1) {
		t.Errorf("float16ToFloat32(+Inf) = %v", got)
	}
}
