package tensors

import (
	"reflect"

	"github.com/pkg/errors"
)

// CopyRange copies n elements from src (starting at srcOffset) into dst (starting at dstOffset).
// Both tensors must have the same dtype. Offsets are in number of elements of the flat data.
func CopyRange(dst *Tensor, dstOffset int, src *Tensor, srcOffset int, n int) error {
	if dst.dtype != src.dtype {
		return errors.Errorf("CopyRange: dtype mismatch, dst is %s, src is %s", dst.dtype, src.dtype)
	}
	if n < 0 || dstOffset < 0 || srcOffset < 0 || dstOffset+n > dst.Size() || srcOffset+n > src.Size() {
		return errors.Errorf("CopyRange: range out of bounds (copy %d elements from %s[%d:] to %s[%d:])",
			n, src, srcOffset, dst, dstOffset)
	}
	if n == 0 {
		return nil
	}
	if dst == src {
		dst.MutableFlatData(func(flat any) {
			flatV := reflect.ValueOf(flat)
			reflect.Copy(flatV.Slice(dstOffset, dstOffset+n), flatV.Slice(srcOffset, srcOffset+n))
		})
		return nil
	}
	src.ConstFlatData(func(srcFlat any) {
		dst.MutableFlatData(func(dstFlat any) {
			reflect.Copy(
				reflect.ValueOf(dstFlat).Slice(dstOffset, dstOffset+n),
				reflect.ValueOf(srcFlat).Slice(srcOffset, srcOffset+n))
		})
	})
	return nil
}

// SliceFlat returns a new tensor (on the same device) with a copy of the n elements of t starting at
// offset. The result is 1D.
func SliceFlat(t *Tensor, offset, n int) (*Tensor, error) {
	out := t.Empty(n)
	if err := CopyRange(out, 0, t, offset, n); err != nil {
		return nil, err
	}
	return out, nil
}

// Split t's flat data in numParts tensors of equal size, each with the dimensions given in partDims
// (or 1D if none are given).
// The size of t must be divisible by numParts.
func Split(t *Tensor, numParts int, partDims ...int) ([]*Tensor, error) {
	if numParts <= 0 {
		return nil, errors.Errorf("Split: numParts must be > 0, got %d", numParts)
	}
	if t.Size()%numParts != 0 {
		return nil, errors.Errorf("Split: %s with %d elements is not divisible in %d parts", t, t.Size(), numParts)
	}
	partSize := t.Size() / numParts
	if len(partDims) == 0 {
		partDims = []int{partSize}
	} else if numElements(partDims) != partSize {
		return nil, errors.Errorf("Split: part dimensions %v don't match part size %d", partDims, partSize)
	}
	parts := make([]*Tensor, numParts)
	for ii := range parts {
		parts[ii] = t.Empty(partDims...)
		if err := CopyRange(parts[ii], 0, t, ii*partSize, partSize); err != nil {
			return nil, err
		}
	}
	return parts, nil
}

// Concatenate copies the flat contents of parts, in order, into dst.
// All parts must have dst's dtype, and their total size must match dst's size.
func Concatenate(dst *Tensor, parts []*Tensor) error {
	total := 0
	for _, part := range parts {
		if part.dtype != dst.dtype {
			return errors.Errorf("Concatenate: part %s doesn't match destination dtype %s", part, dst.dtype)
		}
		total += part.Size()
	}
	if total != dst.Size() {
		return errors.Errorf("Concatenate: parts have %d elements in total, destination %s has %d",
			total, dst, dst.Size())
	}
	offset := 0
	for _, part := range parts {
		if err := CopyRange(dst, offset, part, 0, part.Size()); err != nil {
			return err
		}
		offset += part.Size()
	}
	return nil
}

// SameShape returns whether a and b have the same dtype and dimensions.
func SameShape(a, b *Tensor) bool {
	if a.dtype != b.dtype || len(a.dimensions) != len(b.dimensions) {
		return false
	}
	for ii, dim := range a.dimensions {
		if b.dimensions[ii] != dim {
			return false
		}
	}
	return true
}
