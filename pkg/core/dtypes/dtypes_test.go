// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestFromGenericsType(t *testing.T) {
	assert.Equal(t, Float32, FromGenericsType[float32]())
	assert.Equal(t, Float16, FromGenericsType[float16.Float16]())
	assert.Equal(t, Bool, FromGenericsType[bool]())
	assert.Equal(t, Uint8, FromGenericsType[uint8]())
	assert.Equal(t, FromGoType(reflect.TypeOf(int(0))), FromGenericsType[int]())

	type counter int32
	assert.Equal(t, Int32, FromGoType(reflect.TypeFor[counter]()))
	assert.Equal(t, InvalidDType, FromAny(nil))
	assert.Equal(t, InvalidDType, FromAny("float32"))
	assert.Equal(t, Float16, FromAny(float16.Fromfloat32(1)))
	for _, dtype := range DTypeValues() {
		if dtype.IsSupported() {
			assert.Equal(t, dtype, FromGoType(dtype.GoType()), "dtype=%s", dtype)
		}
	}
}

func TestSizes(t *testing.T) {
	assert.Equal(t, 2, Float16.Size())
	assert.Equal(t, 8, Float64.Size())
	assert.Equal(t, 1, Bool.Size())
	assert.Equal(t, 24, Int32.SizeForDimensions(2, 3))
	assert.Equal(t, 4, Float32.SizeForDimensions())
}

func TestFromName(t *testing.T) {
	for name, want := range map[string]DType{
		"float32": Float32,
		"Float16": Float16,
		"half":    Float16,
		"BYTE":    Uint8,
		"long":    Int64,
	} {
		got, err := FromName(name)
		require.NoError(t, err, "name=%q", name)
		assert.Equal(t, want, got, "name=%q", name)
	}
	_, err := FromName("complex64")
	require.Error(t, err)
}

func TestPredicates(t *testing.T) {
	assert.True(t, Float16.IsFloat())
	assert.False(t, Int32.IsFloat())
	assert.True(t, Uint16.IsInt())
	assert.True(t, Uint16.IsUnsigned())
	assert.False(t, Int16.IsUnsigned())
	assert.False(t, InvalidDType.IsSupported())
	assert.False(t, DType(42).IsSupported())
	assert.Equal(t, "Float64", Float64.String())
}
