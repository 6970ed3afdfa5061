package tensor

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataType(t *testing.T) {
	tests := []struct {
		dtype   DataType
		size    int
		isFloat bool
		name    string
	}{
		{Float32, 4, true, "float32"},
		{Float64, 8, true, "float64"},
		{Int32, 4, false, "int32"},
		{Int64, 8, false, "int64"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.size, tt.dtype.Size())
			assert.Equal(t, tt.isFloat, tt.dtype.IsFloat())
			assert.Equal(t, !tt.isFloat, tt.dtype.IsInt())
			assert.Equal(t, tt.name, tt.dtype.String())
		})
	}
}

func TestParseDevice(t *testing.T) {
	d, err := ParseDevice("gpu")
	require.NoError(t, err)
	assert.Equal(t, WebGPU, d)

	d, err = ParseDevice("cpu")
	require.NoError(t, err)
	assert.Equal(t, CPU, d)
	assert.Equal(t, "CPU", d.String())

	_, err = ParseDevice("tpu")
	assert.Error(t, err)
}

func TestShape(t *testing.T) {
	s := Shape{50, 16, 20}
	assert.Equal(t, 16000, s.NumElements())
	assert.Equal(t, []int{320, 20, 1}, s.ComputeStrides())
	assert.True(t, s.Equal(s.Clone()))
	assert.False(t, s.Equal(Shape{50, 16}))

	assert.Equal(t, 0, Shape{4, 0}.NumElements(), "empty target dimension is allowed")
	assert.NoError(t, Shape{4, 0}.Validate())
	assert.Error(t, Shape{4, -1}.Validate())
	assert.Equal(t, 1, Shape{}.NumElements())
}

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		name      string
		a, b      Shape
		want      Shape
		broadcast bool
		wantErr   bool
	}{
		{"same", Shape{16}, Shape{16}, Shape{16}, false, false},
		{"scalar", Shape{16}, Shape{}, Shape{16}, true, false},
		{"trailing", Shape{50, 16}, Shape{16}, Shape{50, 16}, true, false},
		{"ones", Shape{3, 1}, Shape{1, 4}, Shape{3, 4}, true, false},
		{"incompatible", Shape{3}, Shape{4}, nil, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, broadcast, err := BroadcastShapes(tt.a, tt.b)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.broadcast, broadcast)
		})
	}
}

func TestBroadcastIndex(t *testing.T) {
	out := Shape{2, 3}
	// [2, 3] + [3]: every row reads the same source row.
	assert.Equal(t, 1, BroadcastIndex(4, out, Shape{3}))
	// [2, 3] + [2, 1]: every column reads the same source column.
	assert.Equal(t, 1, BroadcastIndex(4, out, Shape{2, 1}))
	assert.Equal(t, 0, BroadcastIndex(5, out, Shape{}))
}

func TestRawTensor_Views(t *testing.T) {
	raw, err := NewRaw(Shape{2, 2}, Int32, CPU)
	require.NoError(t, err)

	data := raw.AsInt32()
	data[3] = 7
	assert.Equal(t, int32(7), raw.AsInt32()[3], "views are zero-copy")
	assert.Equal(t, []int64{0, 0, 0, 7}, raw.Ints())
	assert.Equal(t, 16, raw.ByteSize())

	assert.Panics(t, func() { raw.AsFloat32() })
	assert.Panics(t, func() { raw.Floats() })
}

func TestRawTensor_Empty(t *testing.T) {
	raw, err := NewRaw(Shape{3, 0}, Int64, CPU)
	require.NoError(t, err)
	assert.Empty(t, raw.AsInt64())
	assert.Empty(t, raw.Ints())
}

func TestRawTensor_Sharing(t *testing.T) {
	raw, err := NewRaw(Shape{3}, Float64, CPU)
	require.NoError(t, err)
	assert.True(t, raw.IsUnique())

	clone := raw.Clone()
	assert.False(t, raw.IsUnique())
	clone.AsFloat64()[0] = 1
	assert.InDelta(t, 1.0, raw.AsFloat64()[0], 0, "clones share the buffer")
	clone.Release()
	assert.True(t, raw.IsUnique())

	deep := raw.Copy()
	deep.AsFloat64()[0] = 2
	assert.InDelta(t, 1.0, raw.AsFloat64()[0], 0, "copies own their buffer")

	restore := raw.ForceNonUnique()
	assert.False(t, raw.IsUnique())
	restore()
	assert.True(t, raw.IsUnique())
}

func TestTensor_Accessors(t *testing.T) {
	backend := NewMockBackend()
	x, err := FromSlice([]float32{1, 2, 3, 4, 5, 6}, Shape{2, 3}, backend)
	require.NoError(t, err)

	assert.InDelta(t, 6.0, float64(x.At(1, 2)), 0)
	x.Set(10, 0, 1)
	assert.Equal(t, []float32{1, 10, 3, 4, 5, 6}, x.Data())
	assert.Equal(t, Float32, x.DType())
	assert.Equal(t, CPU, x.Device())
	assert.Contains(t, x.String(), "float32")

	assert.Panics(t, func() { x.At(2, 0) })
	assert.Panics(t, func() { x.At(0) })
	assert.Panics(t, func() { x.Item() })

	_, err = FromSlice([]float32{1, 2}, Shape{3}, backend)
	assert.Error(t, err)
}

func TestTensor_Ops(t *testing.T) {
	backend := NewMockBackend()
	a, err := FromSlice([]float64{1, 2, 3, 4}, Shape{2, 2}, backend)
	require.NoError(t, err)
	b, err := FromSlice([]float64{2, 4}, Shape{2}, backend)
	require.NoError(t, err)

	assert.Equal(t, []float64{3, 6, 5, 8}, a.Add(b).Data())
	assert.Equal(t, []float64{-1, -2, 1, 0}, a.Sub(b).Data())
	assert.Equal(t, []float64{2, 8, 6, 16}, a.Mul(b).Data())
	assert.Equal(t, []float64{0.5, 0.5, 1.5, 1}, a.Div(b).Data())
	assert.Equal(t, []float64{2, 3, 4, 5}, a.AddScalar(1).Data())
	assert.Equal(t, []float64{3, 6, 9, 12}, a.MulScalar(3).Data())
	assert.Equal(t, []float64{0.5, 1, 1.5, 2}, a.DivScalar(2).Data())
	assert.InDelta(t, 10.0, a.Sum().Item(), 1e-12)
	assert.InDelta(t, 2.5, a.Mean().Item(), 1e-12)
	assert.InDelta(t, math.E, a.Exp().At(0, 0), 1e-12)
	assert.InDelta(t, math.Log(4), a.Log().At(1, 1), 1e-12)
}

func TestTensor_LogSoftmax(t *testing.T) {
	backend := NewMockBackend()
	x, err := FromSlice([]float64{1, 2, 3, 0, 0, 0}, Shape{2, 3}, backend)
	require.NoError(t, err)

	lp := x.LogSoftmax(-1)
	for row := 0; row < 2; row++ {
		var total float64
		for c := 0; c < 3; c++ {
			total += math.Exp(lp.At(row, c))
		}
		assert.InDelta(t, 1.0, total, 1e-12)
	}
	assert.InDelta(t, -math.Log(3), lp.At(1, 0), 1e-12)
	assert.InDelta(t, 1.0, lp.At(0, 2)-lp.At(0, 1), 1e-12, "log-softmax preserves differences")
}

func TestCast(t *testing.T) {
	backend := NewMockBackend()
	lengths, err := FromSlice([]int32{3, 5}, Shape{2}, backend)
	require.NoError(t, err)

	f := Cast[float32](lengths)
	assert.Equal(t, Float32, f.DType())
	assert.Equal(t, []float32{3, 5}, f.Data())
}

func TestCreation(t *testing.T) {
	backend := NewMockBackend()

	assert.Equal(t, []float64{0, 0, 0}, Zeros[float64](Shape{3}, backend).Data())
	assert.Equal(t, []int32{1, 1}, Ones[int32](Shape{2}, backend).Data())
	assert.Equal(t, []int64{7, 7}, Full[int64](Shape{2}, 7, backend).Data())

	rng := rand.New(rand.NewPCG(42, 0))
	x := Randn[float64](Shape{1000}, rng, backend)
	mean := x.Mean().Item()
	assert.InDelta(t, 0.0, mean, 0.15)

	again := Randn[float64](Shape{1000}, rand.New(rand.NewPCG(42, 0)), backend)
	assert.Equal(t, x.Data(), again.Data(), "same seed, same values")

	labels := RandInt[int32](Shape{500}, 1, 5, rng, backend)
	for _, v := range labels.Data() {
		assert.GreaterOrEqual(t, v, int32(1))
		assert.Less(t, v, int32(5))
	}
	assert.Panics(t, func() { RandInt[int32](Shape{1}, 3, 3, rng, backend) })
}
