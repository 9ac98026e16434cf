package distributed

import (
	"github.com/gomlx/collectives/pkg/core/dtypes"
	"github.com/gomlx/collectives/pkg/core/tensors"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

// ReduceOp is the reduction applied by Allreduce, Reduce and ReduceScatter.
type ReduceOp int

//go:generate go tool enumer -type=ReduceOp -trimprefix=Reduce -transform=upper -output=gen_reduceop_enumer.go reduceop.go

const (
	ReduceSum ReduceOp = iota

	// ReduceAvg sums and then divides by the number of ranks. Integers are truncated.
	// The sum is accumulated in AccumulatorDType, so narrow dtypes don't overflow before the division.
	ReduceAvg

	ReduceProduct
	ReduceMin
	ReduceMax

	// ReduceBAnd is the bitwise-and. Only defined for integer and bool dtypes, as are ReduceBOr and ReduceBXor.
	ReduceBAnd
	ReduceBOr
	ReduceBXor
)

// IsBitwise returns whether the op is one of the bitwise reductions.
func (op ReduceOp) IsBitwise() bool {
	return op == ReduceBAnd || op == ReduceBOr || op == ReduceBXor
}

// ValidateReduceOp checks that op is valid for dtype.
func ValidateReduceOp(op ReduceOp, dtype dtypes.DType) error {
	if !op.IsAReduceOp() {
		return errors.Wrapf(ErrInvalidArgument, "unknown reduce op %s", op)
	}
	if !dtype.IsSupported() {
		return errors.Wrapf(ErrInvalidArgument, "reduce op %s: unsupported dtype %s", op, dtype)
	}
	if op.IsBitwise() && dtype.IsFloat() {
		return errors.Wrapf(ErrInvalidArgument, "bitwise reduce op %s not defined for dtype %s", op, dtype)
	}
	if op == ReduceAvg && dtype == dtypes.Bool {
		return errors.Wrapf(ErrInvalidArgument, "reduce op %s not defined for dtype %s", op, dtype)
	}
	return nil
}

// ReduceInto accumulates src into dst element-wise: dst = op(dst, src).
// ReduceAvg accumulates as ReduceSum: the division happens in FinalizeReduce.
func ReduceInto(op ReduceOp, dst, src *tensors.Tensor) error {
	if dst.DType() != src.DType() || dst.Size() != src.Size() {
		return errors.Wrapf(ErrInvalidArgument, "reduce %s: cannot reduce %s into %s", op, src, dst)
	}
	if err := ValidateReduceOp(op, dst.DType()); err != nil {
		return err
	}
	if dst == src {
		src = src.Clone()
	}
	var err error
	src.ConstFlatData(func(srcFlat any) {
		dst.MutableFlatData(func(dstFlat any) {
			err = reduceFlat(op, dstFlat, srcFlat)
		})
	})
	return err
}

// AccumulatorDType returns the dtype in which op accumulates values of dtype.
// ReduceAvg sums integers in 64 bits and Float16 in Float32. Other ops accumulate in dtype itself.
func AccumulatorDType(op ReduceOp, dtype dtypes.DType) dtypes.DType {
	if op != ReduceAvg {
		return dtype
	}
	switch dtype {
	case dtypes.Int8, dtypes.Int16, dtypes.Int32:
		return dtypes.Int64
	case dtypes.Uint8, dtypes.Uint16, dtypes.Uint32:
		return dtypes.Uint64
	case dtypes.Float16:
		return dtypes.Float32
	}
	return dtype
}

// NewAccumulator returns a copy of t converted to AccumulatorDType(op, t.DType()).
// The result is always a new tensor, even if no conversion is needed.
func NewAccumulator(op ReduceOp, t *tensors.Tensor) *tensors.Tensor {
	dtype := AccumulatorDType(op, t.DType())
	if dtype == t.DType() {
		return t.Clone()
	}
	acc := tensors.Empty(dtype, t.Device(), t.Dimensions()...)
	t.ConstFlatData(func(flat any) {
		acc.MutableFlatData(func(accFlat any) {
			// Widening between the dtypes of AccumulatorDType never fails.
			_ = convertFlat(accFlat, flat)
		})
	})
	return acc
}

// CastInto copies src into dst, converting the values to the dtype of dst.
// They must have the same number of elements.
func CastInto(dst, src *tensors.Tensor) error {
	if dst.DType() == src.DType() {
		return dst.CopyFrom(src)
	}
	if dst.Size() != src.Size() {
		return errors.Wrapf(ErrInvalidArgument, "cannot cast %s into %s", src, dst)
	}
	var err error
	src.ConstFlatData(func(srcFlat any) {
		dst.MutableFlatData(func(dstFlat any) {
			err = convertFlat(dstFlat, srcFlat)
		})
	})
	return err
}

// FinalizeReduce applies the final step of a reduction over worldSize ranks to t.
// It only changes t for ReduceAvg.
func FinalizeReduce(op ReduceOp, t *tensors.Tensor, worldSize int) {
	if op != ReduceAvg || worldSize <= 1 {
		return
	}
	t.MutableFlatData(func(flat any) {
		switch typed := flat.(type) {
		case []float16.Float16:
			for i, v := range typed {
				typed[i] = float16.Fromfloat32(v.Float32() / float32(worldSize))
			}
		case []float32:
			divide(typed, worldSize)
		case []float64:
			divide(typed, worldSize)
		case []int8:
			divide(typed, worldSize)
		case []int16:
			divide(typed, worldSize)
		case []int32:
			divide(typed, worldSize)
		case []int64:
			divide(typed, worldSize)
		case []uint8:
			divide(typed, worldSize)
		case []uint16:
			divide(typed, worldSize)
		case []uint32:
			divide(typed, worldSize)
		case []uint64:
			divide(typed, worldSize)
		}
	})
}

type arithmetic interface {
	constraints.Integer | constraints.Float
}

func divide[T arithmetic](flat []T, n int) {
	for i := range flat {
		flat[i] /= T(n)
	}
}

func convert[From, To arithmetic](dst []To, src []From) {
	for i, v := range src {
		dst[i] = To(v)
	}
}

// convertTo converts src, a flat slice of any numeric dtype, into dst.
func convertTo[T arithmetic](dst []T, src any) bool {
	switch typed := src.(type) {
	case []float16.Float16:
		for i, v := range typed {
			dst[i] = T(v.Float32())
		}
	case []float32:
		convert(dst, typed)
	case []float64:
		convert(dst, typed)
	case []int8:
		convert(dst, typed)
	case []int16:
		convert(dst, typed)
	case []int32:
		convert(dst, typed)
	case []int64:
		convert(dst, typed)
	case []uint8:
		convert(dst, typed)
	case []uint16:
		convert(dst, typed)
	case []uint32:
		convert(dst, typed)
	case []uint64:
		convert(dst, typed)
	default:
		return false
	}
	return true
}

func convertFlat(dst, src any) error {
	var ok bool
	switch typed := dst.(type) {
	case []float16.Float16:
		wide := make([]float32, len(typed))
		if ok = convertTo(wide, src); ok {
			for i, v := range wide {
				typed[i] = float16.Fromfloat32(v)
			}
		}
	case []float32:
		ok = convertTo(typed, src)
	case []float64:
		ok = convertTo(typed, src)
	case []int8:
		ok = convertTo(typed, src)
	case []int16:
		ok = convertTo(typed, src)
	case []int32:
		ok = convertTo(typed, src)
	case []int64:
		ok = convertTo(typed, src)
	case []uint8:
		ok = convertTo(typed, src)
	case []uint16:
		ok = convertTo(typed, src)
	case []uint32:
		ok = convertTo(typed, src)
	case []uint64:
		ok = convertTo(typed, src)
	}
	if !ok {
		return errors.Wrapf(ErrInvalidArgument, "cannot convert %T to %T", src, dst)
	}
	return nil
}

func reduceFlat(op ReduceOp, dst, src any) error {
	switch typed := dst.(type) {
	case []bool:
		reduceBools(op, typed, src.([]bool))
	case []float16.Float16:
		reduceFloat16(op, typed, src.([]float16.Float16))
	case []float32:
		reduceArithmetic(op, typed, src.([]float32))
	case []float64:
		reduceArithmetic(op, typed, src.([]float64))
	case []int8:
		reduceIntegers(op, typed, src.([]int8))
	case []int16:
		reduceIntegers(op, typed, src.([]int16))
	case []int32:
		reduceIntegers(op, typed, src.([]int32))
	case []int64:
		reduceIntegers(op, typed, src.([]int64))
	case []uint8:
		reduceIntegers(op, typed, src.([]uint8))
	case []uint16:
		reduceIntegers(op, typed, src.([]uint16))
	case []uint32:
		reduceIntegers(op, typed, src.([]uint32))
	case []uint64:
		reduceIntegers(op, typed, src.([]uint64))
	default:
		return errors.Wrapf(ErrInvalidArgument, "reduce %s: unsupported flat data type %T", op, dst)
	}
	return nil
}

func reduceArithmetic[T arithmetic](op ReduceOp, dst, src []T) {
	switch op {
	case ReduceSum, ReduceAvg:
		for i, v := range src {
			dst[i] += v
		}
	case ReduceProduct:
		for i, v := range src {
			dst[i] *= v
		}
	case ReduceMin:
		for i, v := range src {
			dst[i] = min(dst[i], v)
		}
	case ReduceMax:
		for i, v := range src {
			dst[i] = max(dst[i], v)
		}
	}
}

func reduceIntegers[T constraints.Integer](op ReduceOp, dst, src []T) {
	switch op {
	case ReduceBAnd:
		for i, v := range src {
			dst[i] &= v
		}
	case ReduceBOr:
		for i, v := range src {
			dst[i] |= v
		}
	case ReduceBXor:
		for i, v := range src {
			dst[i] ^= v
		}
	default:
		reduceArithmetic(op, dst, src)
	}
}

func reduceFloat16(op ReduceOp, dst, src []float16.Float16) {
	for i, v := range src {
		a, b := dst[i].Float32(), v.Float32()
		var r float32
		switch op {
		case ReduceSum, ReduceAvg:
			r = a + b
		case ReduceProduct:
			r = a * b
		case ReduceMin:
			r = min(a, b)
		case ReduceMax:
			r = max(a, b)
		}
		dst[i] = float16.Fromfloat32(r)
	}
}

// reduceBools treats Sum and Max as a logical-or, Product and Min as a logical-and.
func reduceBools(op ReduceOp, dst, src []bool) {
	for i, v := range src {
		switch op {
		case ReduceSum, ReduceMax, ReduceBOr:
			dst[i] = dst[i] || v
		case ReduceProduct, ReduceMin, ReduceBAnd:
			dst[i] = dst[i] && v
		case ReduceBXor:
			dst[i] = dst[i] != v
		}
	}
}
