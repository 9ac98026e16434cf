// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dtypes defines DType, the element types a Tensor can hold and the collectives know how to move and
// reduce, with converters to and from Go types and the constraints used by the generic kernels.
package dtypes

import (
	"maps"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// panicf panics with an error, for calls that break an API contract.
func panicf(format string, args ...any) {
	panic(errors.Errorf(format, args...))
}

func init() {
	// Lower-case versions of the names.
	keys := slices.Collect(maps.Keys(MapOfNames))
	for _, key := range keys {
		lowerKey := strings.ToLower(key)
		if lowerKey == key {
			continue
		}
		if _, found := MapOfNames[lowerKey]; found {
			continue
		}
		MapOfNames[lowerKey] = MapOfNames[key]
	}
}

// Supported lists the Go types that have a corresponding DType.
type Supported interface {
	bool | float16.Float16 | float32 | float64 | int | int8 | int16 | int32 | int64 |
		uint8 | uint16 | uint32 | uint64
}

// Number represents the Go numeric types that can be reduced arithmetically.
// Float16 is not included: it is reduced by converting to float32.
type Number interface {
	float32 | float64 | int | int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64
}

// FromName returns the DType for the given name (case-insensitive, aliases included), or an error.
func FromName(name string) (DType, error) {
	dtype, found := MapOfNames[name]
	if !found {
		dtype, found = MapOfNames[strings.ToLower(name)]
	}
	if !found {
		return InvalidDType, errors.Errorf("unknown dtype %q", name)
	}
	return dtype, nil
}

// intDType is the DType of Go's int, which depends on the platform.
var intDType = func() DType {
	if strconv.IntSize == 32 {
		return Int32
	}
	return Int64
}()

var float16Type = reflect.TypeOf(float16.Float16(0))

// goTypes maps each supported DType to the Go type of its elements.
var goTypes = map[DType]reflect.Type{
	Bool:    reflect.TypeFor[bool](),
	Int8:    reflect.TypeFor[int8](),
	Int16:   reflect.TypeFor[int16](),
	Int32:   reflect.TypeFor[int32](),
	Int64:   reflect.TypeFor[int64](),
	Uint8:   reflect.TypeFor[uint8](),
	Uint16:  reflect.TypeFor[uint16](),
	Uint32:  reflect.TypeFor[uint32](),
	Uint64:  reflect.TypeFor[uint64](),
	Float16: float16Type,
	Float32: reflect.TypeFor[float32](),
	Float64: reflect.TypeFor[float64](),
}

// kindToDType maps the reflect.Kind of the Go types (including named ones, like `type Counter int32`) to their
// DType. Float16 is matched by type, since its kind is uint16.
var kindToDType = map[reflect.Kind]DType{
	reflect.Bool:    Bool,
	reflect.Int:     intDType,
	reflect.Int8:    Int8,
	reflect.Int16:   Int16,
	reflect.Int32:   Int32,
	reflect.Int64:   Int64,
	reflect.Uint8:   Uint8,
	reflect.Uint16:  Uint16,
	reflect.Uint32:  Uint32,
	reflect.Uint64:  Uint64,
	reflect.Float32: Float32,
	reflect.Float64: Float64,
}

// FromGenericsType returns the DType of T.
func FromGenericsType[T Supported]() DType {
	return FromGoType(reflect.TypeFor[T]())
}

// FromGoType returns the DType for the given reflect.Type, or InvalidDType if not supported.
func FromGoType(t reflect.Type) DType {
	if t == nil {
		return InvalidDType
	}
	if t == float16Type {
		return Float16
	}
	if dtype, found := kindToDType[t.Kind()]; found {
		return dtype
	}
	return InvalidDType
}

// FromAny introspects the underlying type of any and returns the corresponding DType.
// Non-scalar types, or unsupported types return an InvalidType.
func FromAny(value any) DType {
	return FromGoType(reflect.TypeOf(value))
}

// Size returns the number of bytes for the given DType.
func (dtype DType) Size() int {
	return int(dtype.GoType().Size())
}

// SizeForDimensions returns the size in bytes of a tensor with the given dimensions. An empty list of
// dimensions is a scalar.
func (dtype DType) SizeForDimensions(dimensions ...int) int {
	numElements := 1
	for _, dim := range dimensions {
		if dim < 0 {
			panicf("negative dimension in %v", dimensions)
		}
		numElements *= dim
	}
	return numElements * dtype.Size()
}

// GoType returns the Go type of the elements of dtype. It panics for unsupported dtypes.
func (dtype DType) GoType() reflect.Type {
	goType, found := goTypes[dtype]
	if !found {
		panicf("unknown dtype %q (%d) in DType.GoType", dtype, int(dtype))
	}
	return goType
}

// IsFloat returns whether dtype is a float type.
func (dtype DType) IsFloat() bool {
	return dtype == Float16 || dtype == Float32 || dtype == Float64
}

// IsInt returns whether dtype is a signed or unsigned integer.
func (dtype DType) IsInt() bool {
	return dtype == Int8 || dtype == Int16 || dtype == Int32 || dtype == Int64 || dtype.IsUnsigned()
}

// IsUnsigned returns whether dtype is one of the unsigned integer types.
func (dtype DType) IsUnsigned() bool {
	return dtype == Uint8 || dtype == Uint16 || dtype == Uint32 || dtype == Uint64
}

// IsSupported returns whether dtype is a valid DType, other than InvalidDType.
func (dtype DType) IsSupported() bool {
	return dtype != InvalidDType && dtype.IsADType()
}
