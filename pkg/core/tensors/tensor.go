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

// Package tensors implement a `Tensor`, a host-memory multidimensional array tagged with the device it
// belongs to.
//
// Tensors here are the payload of collectives: the process groups never look inside them, and the
// transports (backends) only need to copy, split, concatenate and reduce their flat content.
// The content is always stored as a flat Go slice of the DType's Go type (e.g.: []float32).
//
// There are various ways to construct a Tensor:
//
//   - FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int): a CPU tensor with the given
//     dimensions and the flattened values. Example:
//
//     t := FromFlatDataAndDimensions([]int8{1, 2, 3, 4}, 2, 2}) // Tensor with [[1,2], [3,4]]
//
//   - FromScalarAndDimensions[T](value T, dimensions ...int): filled with value.
//
//   - Empty(dtype, device, dimensions...): zero-initialized tensor on the given device.
//
// Access to the flat data goes through ConstFlatData and MutableFlatData, which hold the tensor's lock
// while the callback runs.
package tensors

import (
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/gomlx/collectives/pkg/core/devices"
	"github.com/gomlx/collectives/pkg/core/dtypes"
	"github.com/pkg/errors"
)

// Tensor represents a multidimensional array stored as a flat slice, with a dtype, dimensions and the
// device it is associated with.
//
// The dtype, dimensions and device are immutable. The content is protected by a mutex.
type Tensor struct {
	dtype      dtypes.DType
	dimensions []int
	device     devices.Device

	// mu protects flat.
	mu   sync.Mutex
	flat any
}

func numElements(dimensions []int) int {
	size := 1
	for _, dim := range dimensions {
		size *= dim
	}
	return size
}

// Empty returns a zero-initialized Tensor with the given dtype and dimensions, associated with device.
//
// It panics if dtype is not supported or a dimension is negative.
func Empty(dtype dtypes.DType, device devices.Device, dimensions ...int) *Tensor {
	if !dtype.IsSupported() {
		panic(errors.Errorf("tensors.Empty: invalid dtype %s", dtype))
	}
	for _, dim := range dimensions {
		if dim < 0 {
			panic(errors.Errorf("tensors.Empty: negative dimension in %v", dimensions))
		}
	}
	size := numElements(dimensions)
	return &Tensor{
		dtype:      dtype,
		dimensions: slices.Clone(dimensions),
		device:     device,
		flat:       reflect.MakeSlice(reflect.SliceOf(dtype.GoType()), size, size).Interface(),
	}
}

// FromFlatDataAndDimensions creates a CPU tensor with the given dimensions, filled with the flattened
// values given in data. The data is copied.
//
// It panics if the number of elements in data doesn't match the dimensions.
func FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int) *Tensor {
	return FromFlatDataOnDevice(devices.New(devices.CPU), data, dimensions...)
}

// FromFlatDataOnDevice is like FromFlatDataAndDimensions, but the tensor is associated with device.
func FromFlatDataOnDevice[T dtypes.Supported](device devices.Device, data []T, dimensions ...int) *Tensor {
	if len(dimensions) == 0 && len(data) != 1 {
		dimensions = []int{len(data)}
	}
	if numElements(dimensions) != len(data) {
		panic(errors.Errorf("FromFlatDataAndDimensions: dimensions %v require %d elements, got %d",
			dimensions, numElements(dimensions), len(data)))
	}
	dtype := dtypes.FromGenericsType[T]()
	t := Empty(dtype, device, dimensions...)
	if ints, ok := any(data).([]int); ok {
		// Go's int is stored as the sized integer of the platform.
		flatV := reflect.ValueOf(t.flat)
		for i, v := range ints {
			flatV.Index(i).SetInt(int64(v))
		}
		return t
	}
	t.flat = slices.Clone(data)
	return t
}

// FromScalarAndDimensions creates a CPU tensor with the given dimensions, filled with value.
func FromScalarAndDimensions[T dtypes.Supported](value T, dimensions ...int) *Tensor {
	data := make([]T, numElements(dimensions))
	for i := range data {
		data[i] = value
	}
	return FromFlatDataAndDimensions(data, dimensions...)
}

// DType of the tensor elements.
func (t *Tensor) DType() dtypes.DType {
	if t == nil {
		return dtypes.InvalidDType
	}
	return t.dtype
}

// Dimensions returns a copy of the tensor's dimensions.
func (t *Tensor) Dimensions() []int { return slices.Clone(t.dimensions) }

// Rank returns the number of axes.
func (t *Tensor) Rank() int { return len(t.dimensions) }

// Size returns the number of elements in the tensor.
func (t *Tensor) Size() int { return numElements(t.dimensions) }

// Memory returns the number of bytes used to store the tensor.
func (t *Tensor) Memory() uintptr { return uintptr(t.dtype.SizeForDimensions(t.dimensions...)) }

// Device the tensor is associated with.
func (t *Tensor) Device() devices.Device { return t.device }

// String implements fmt.Stringer with a short description, without the content.
func (t *Tensor) String() string {
	if t == nil {
		return "Tensor(nil)"
	}
	return fmt.Sprintf("Tensor(%s%v on %s)", t.dtype, t.dimensions, t.device)
}

// ConstFlatData calls accessFn with the flat data, a slice of the dtype's Go type (e.g.: []float32).
// The tensor is locked while accessFn runs, and accessFn must not change the data.
func (t *Tensor) ConstFlatData(accessFn func(flat any)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	accessFn(t.flat)
}

// MutableFlatData calls accessFn with the flat data, a slice of the dtype's Go type (e.g.: []float32).
// The tensor is locked while accessFn runs, and accessFn may change its contents (but not its length).
func (t *Tensor) MutableFlatData(accessFn func(flat any)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	accessFn(t.flat)
}

// Flat returns a copy of the flat data of the tensor as a []T.
//
// It panics if T doesn't match the tensor's dtype.
func Flat[T dtypes.Supported](t *Tensor) []T {
	var out []T
	t.ConstFlatData(func(flat any) {
		typed, ok := flat.([]T)
		if !ok {
			panic(errors.Errorf("tensors.Flat: tensor has dtype %s, requested %T", t.dtype, out))
		}
		out = slices.Clone(typed)
	})
	return out
}

// Clone returns a deep copy of the tensor, on the same device.
func (t *Tensor) Clone() *Tensor {
	clone := &Tensor{
		dtype:      t.dtype,
		dimensions: slices.Clone(t.dimensions),
		device:     t.device,
	}
	t.ConstFlatData(func(flat any) {
		flatV := reflect.ValueOf(flat)
		cloneV := reflect.MakeSlice(flatV.Type(), flatV.Len(), flatV.Len())
		reflect.Copy(cloneV, flatV)
		clone.flat = cloneV.Interface()
	})
	return clone
}

// Empty returns a zero-initialized tensor with the same dtype and device, and the given dimensions.
// If no dimensions are given, it uses t's dimensions.
func (t *Tensor) Empty(dimensions ...int) *Tensor {
	if len(dimensions) == 0 {
		dimensions = t.dimensions
	}
	return Empty(t.dtype, t.device, dimensions...)
}

// CopyFrom copies the contents of src into t. They must have the same dtype and number of elements
// (dimensions may differ).
func (t *Tensor) CopyFrom(src *Tensor) error {
	if t == src {
		return nil
	}
	if src.dtype != t.dtype || src.Size() != t.Size() {
		return errors.Errorf("cannot copy %s into %s: dtype or size mismatch", src, t)
	}
	return CopyRange(t, 0, src, 0, t.Size())
}
