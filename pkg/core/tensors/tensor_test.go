/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package tensors

import (
	"strconv"
	"testing"

	"github.com/gomlx/collectives/pkg/core/devices"
	"github.com/gomlx/collectives/pkg/core/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestFromFlatDataAndDimensions(t *testing.T) {
	tensor := FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	assert.Equal(t, dtypes.Float32, tensor.DType())
	assert.Equal(t, []int{2, 3}, tensor.Dimensions())
	assert.Equal(t, 2, tensor.Rank())
	assert.Equal(t, 6, tensor.Size())
	assert.Equal(t, uintptr(24), tensor.Memory())
	assert.Equal(t, devices.New(devices.CPU), tensor.Device())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, Flat[float32](tensor))
	assert.Equal(t, "Tensor(Float32[2 3] on cpu)", tensor.String())

	// No dimensions: 1D.
	tensor = FromFlatDataAndDimensions([]int8{1, 2, 3})
	assert.Equal(t, []int{3}, tensor.Dimensions())

	// Go int is stored with the platform size.
	tensor = FromFlatDataAndDimensions([]int{7, 8})
	if strconv.IntSize == 64 {
		assert.Equal(t, []int64{7, 8}, Flat[int64](tensor))
	} else {
		assert.Equal(t, []int32{7, 8}, Flat[int32](tensor))
	}

	require.Panics(t, func() { FromFlatDataAndDimensions([]float32{1, 2, 3}, 2, 2) })
	require.Panics(t, func() { Flat[float64](FromScalarAndDimensions(float32(1), 2)) })
}

func TestEmptyAndClone(t *testing.T) {
	device := devices.WithIndex(devices.CUDA, 1)
	tensor := Empty(dtypes.Float16, device, 3)
	assert.Equal(t, []float16.Float16{0, 0, 0}, Flat[float16.Float16](tensor))
	assert.Equal(t, device, tensor.Device())

	tensor = FromFlatDataOnDevice(device, []uint8{1, 2, 3})
	clone := tensor.Clone()
	tensor.MutableFlatData(func(flat any) {
		flat.([]uint8)[0] = 100
	})
	assert.Equal(t, []uint8{1, 2, 3}, Flat[uint8](clone))
	assert.Equal(t, device, clone.Device())

	empty := tensor.Empty()
	assert.True(t, SameShape(empty, tensor))
	assert.False(t, SameShape(tensor.Empty(1, 3), tensor))
	require.Panics(t, func() { Empty(dtypes.InvalidDType, device, 1) })
}

func TestCopyFrom(t *testing.T) {
	dst := Empty(dtypes.Int32, devices.New(devices.CPU), 2, 2)
	require.NoError(t, dst.CopyFrom(FromFlatDataAndDimensions([]int32{1, 2, 3, 4})))
	assert.Equal(t, []int32{1, 2, 3, 4}, Flat[int32](dst))
	require.NoError(t, dst.CopyFrom(dst))
	require.Error(t, dst.CopyFrom(FromFlatDataAndDimensions([]int64{1, 2, 3, 4})))
	require.Error(t, dst.CopyFrom(FromFlatDataAndDimensions([]int32{1, 2, 3})))
}

func TestSplitAndConcatenate(t *testing.T) {
	tensor := FromFlatDataAndDimensions([]float64{0, 1, 2, 3, 4, 5}, 6)
	parts, err := Split(tensor, 3)
	require.NoError(t, err)
	require.Len(t, parts, 3)
	assert.Equal(t, []float64{2, 3}, Flat[float64](parts[1]))

	parts, err = Split(tensor, 2, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1}, parts[0].Dimensions())

	_, err = Split(tensor, 4)
	require.Error(t, err)
	_, err = Split(tensor, 2, 2)
	require.Error(t, err)

	dst := Empty(dtypes.Float64, devices.New(devices.CPU), 2, 3)
	require.NoError(t, Concatenate(dst, []*Tensor{parts[1], parts[0]}))
	assert.Equal(t, []float64{3, 4, 5, 0, 1, 2}, Flat[float64](dst))
	require.Error(t, Concatenate(dst, parts[:1]))

	slice, err := SliceFlat(tensor, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 5}, Flat[float64](slice))
	_, err = SliceFlat(tensor, 5, 2)
	require.Error(t, err)
}
