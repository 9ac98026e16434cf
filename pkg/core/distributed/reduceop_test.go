package distributed_test

import (
	"testing"

	"github.com/gomlx/collectives/pkg/core/distributed"
	"github.com/gomlx/collectives/pkg/core/dtypes"
	"github.com/gomlx/collectives/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestReduceInto(t *testing.T) {
	tests := []struct {
		op   distributed.ReduceOp
		a, b []int32
		want []int32
	}{
		{distributed.ReduceSum, []int32{1, 2, 3}, []int32{4, 5, 6}, []int32{5, 7, 9}},
		{distributed.ReduceProduct, []int32{1, 2, 3}, []int32{4, 5, 6}, []int32{4, 10, 18}},
		{distributed.ReduceMin, []int32{1, 7, 3}, []int32{4, 5, -6}, []int32{1, 5, -6}},
		{distributed.ReduceMax, []int32{1, 7, 3}, []int32{4, 5, -6}, []int32{4, 7, 3}},
		{distributed.ReduceBAnd, []int32{0b1100}, []int32{0b1010}, []int32{0b1000}},
		{distributed.ReduceBOr, []int32{0b1100}, []int32{0b1010}, []int32{0b1110}},
		{distributed.ReduceBXor, []int32{0b1100}, []int32{0b1010}, []int32{0b0110}},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			dst := tensors.FromFlatDataAndDimensions(tt.a)
			require.NoError(t, distributed.ReduceInto(tt.op, dst, tensors.FromFlatDataAndDimensions(tt.b)))
			assert.Equal(t, tt.want, tensors.Flat[int32](dst))
		})
	}
}

func TestReduceAvg(t *testing.T) {
	dst := tensors.FromFlatDataAndDimensions([]float64{1, 2})
	require.NoError(t, distributed.ReduceInto(distributed.ReduceAvg, dst, tensors.FromFlatDataAndDimensions([]float64{3, 4})))
	require.NoError(t, distributed.ReduceInto(distributed.ReduceAvg, dst, tensors.FromFlatDataAndDimensions([]float64{5, 9})))
	distributed.FinalizeReduce(distributed.ReduceAvg, dst, 3)
	assert.Equal(t, []float64{3, 5}, tensors.Flat[float64](dst))

	// Other ops are not changed by FinalizeReduce.
	distributed.FinalizeReduce(distributed.ReduceSum, dst, 3)
	assert.Equal(t, []float64{3, 5}, tensors.Flat[float64](dst))
}

func TestReduceAvgAccumulator(t *testing.T) {
	assert.Equal(t, dtypes.Int64, distributed.AccumulatorDType(distributed.ReduceAvg, dtypes.Int8))
	assert.Equal(t, dtypes.Uint64, distributed.AccumulatorDType(distributed.ReduceAvg, dtypes.Uint16))
	assert.Equal(t, dtypes.Float32, distributed.AccumulatorDType(distributed.ReduceAvg, dtypes.Float16))
	assert.Equal(t, dtypes.Float64, distributed.AccumulatorDType(distributed.ReduceAvg, dtypes.Float64))
	assert.Equal(t, dtypes.Int8, distributed.AccumulatorDType(distributed.ReduceSum, dtypes.Int8))

	// Averaging int8 values whose sum doesn't fit in an int8.
	inputs := [][]int8{{100, -128, 127}, {100, -128, 126}}
	acc := distributed.NewAccumulator(distributed.ReduceAvg, tensors.FromFlatDataAndDimensions(inputs[0]))
	require.Equal(t, dtypes.Int64, acc.DType())
	src := distributed.NewAccumulator(distributed.ReduceAvg, tensors.FromFlatDataAndDimensions(inputs[1]))
	require.NoError(t, distributed.ReduceInto(distributed.ReduceAvg, acc, src))
	distributed.FinalizeReduce(distributed.ReduceAvg, acc, 2)
	output := tensors.FromFlatDataAndDimensions([]int8{0, 0, 0})
	require.NoError(t, distributed.CastInto(output, acc))
	assert.Equal(t, []int8{100, -128, 126}, tensors.Flat[int8](output))

	// The accumulator is a copy even when no conversion is needed.
	floats := tensors.FromFlatDataAndDimensions([]float32{1})
	assert.NotSame(t, floats, distributed.NewAccumulator(distributed.ReduceAvg, floats))

	err := distributed.CastInto(tensors.FromFlatDataAndDimensions([]int8{0}), tensors.FromFlatDataAndDimensions([]int64{1, 2}))
	require.ErrorIs(t, err, distributed.ErrInvalidArgument)
	err = distributed.CastInto(tensors.FromFlatDataAndDimensions([]bool{false}), tensors.FromFlatDataAndDimensions([]int64{1}))
	require.ErrorIs(t, err, distributed.ErrInvalidArgument)
}

func TestReduceFloat16AndBool(t *testing.T) {
	dst := tensors.FromFlatDataAndDimensions([]float16.Float16{float16.Fromfloat32(1.5), float16.Fromfloat32(-2)})
	src := tensors.FromFlatDataAndDimensions([]float16.Float16{float16.Fromfloat32(2), float16.Fromfloat32(4)})
	require.NoError(t, distributed.ReduceInto(distributed.ReduceProduct, dst, src))
	got := tensors.Flat[float16.Float16](dst)
	assert.Equal(t, float32(3), got[0].Float32())
	assert.Equal(t, float32(-8), got[1].Float32())

	bools := tensors.FromFlatDataAndDimensions([]bool{true, false, true})
	require.NoError(t, distributed.ReduceInto(distributed.ReduceMin, bools, tensors.FromFlatDataAndDimensions([]bool{true, true, false})))
	assert.Equal(t, []bool{true, false, false}, tensors.Flat[bool](bools))
	require.NoError(t, distributed.ReduceInto(distributed.ReduceSum, bools, tensors.FromFlatDataAndDimensions([]bool{false, true, false})))
	assert.Equal(t, []bool{true, true, false}, tensors.Flat[bool](bools))

	// Reducing a tensor into itself.
	self := tensors.FromFlatDataAndDimensions([]uint8{3, 4})
	require.NoError(t, distributed.ReduceInto(distributed.ReduceSum, self, self))
	assert.Equal(t, []uint8{6, 8}, tensors.Flat[uint8](self))
}

func TestReduceErrors(t *testing.T) {
	floats := tensors.FromFlatDataAndDimensions([]float32{1, 2})
	err := distributed.ReduceInto(distributed.ReduceBXor, floats, floats.Clone())
	require.ErrorIs(t, err, distributed.ErrInvalidArgument)

	err = distributed.ReduceInto(distributed.ReduceSum, floats, tensors.FromFlatDataAndDimensions([]float64{1, 2}))
	require.ErrorIs(t, err, distributed.ErrInvalidArgument)

	err = distributed.ValidateReduceOp(distributed.ReduceAvg, dtypes.Bool)
	require.ErrorIs(t, err, distributed.ErrInvalidArgument)
	require.NoError(t, distributed.ValidateReduceOp(distributed.ReduceBAnd, dtypes.Uint64))
	require.Error(t, distributed.ValidateReduceOp(distributed.ReduceOp(42), dtypes.Float32))

	op, err := distributed.ReduceOpString("bxor")
	require.NoError(t, err)
	assert.Equal(t, distributed.ReduceBXor, op)
	assert.Equal(t, "BXOR", op.String())
}
