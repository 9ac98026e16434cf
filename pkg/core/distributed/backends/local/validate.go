package local

import (
	"github.com/gomlx/collectives/pkg/core/distributed"
	"github.com/gomlx/collectives/pkg/core/tensors"
	"github.com/pkg/errors"
)

func invalidf(format string, args ...any) error {
	return errors.Wrapf(distributed.ErrInvalidArgument, format, args...)
}

// checkTensors checks that list is not empty and has no nil tensors.
func checkTensors(opType distributed.OpType, what string, list []*tensors.Tensor) error {
	if len(list) == 0 {
		return invalidf("%s: no %s tensors given", opType, what)
	}
	for i, t := range list {
		if t == nil {
			return invalidf("%s: %s tensor #%d is nil", opType, what, i)
		}
	}
	return nil
}

// checkReplicas checks that all tensors in list have the same shape.
func checkReplicas(opType distributed.OpType, list []*tensors.Tensor) error {
	if err := checkTensors(opType, "input", list); err != nil {
		return err
	}
	for _, t := range list[1:] {
		if !tensors.SameShape(list[0], t) {
			return invalidf("%s: all tensors must have the same shape, got %s and %s", opType, list[0], t)
		}
	}
	return nil
}

// checkSameDType checks that all tensors in list have the same dtype.
func checkSameDType(opType distributed.OpType, list []*tensors.Tensor) error {
	for _, t := range list[1:] {
		if t.DType() != list[0].DType() {
			return invalidf("%s: all tensors must have the same dtype, got %s and %s", opType, list[0], t)
		}
	}
	return nil
}

// checkCompatible checks that dst can receive the contents of src: same dtype and number of elements.
func checkCompatible(opType distributed.OpType, dst, src *tensors.Tensor) error {
	if dst == nil || src == nil {
		return invalidf("%s: nil tensor", opType)
	}
	if dst.DType() != src.DType() || dst.Size() != src.Size() {
		return invalidf("%s: output %s doesn't match input %s", opType, dst, src)
	}
	return nil
}

func (b *Backend) checkRank(opType distributed.OpType, what string, rank int) error {
	if rank < 0 || rank >= b.Size() {
		return invalidf("%s: %s %d out of range for world size %d", opType, what, rank, b.Size())
	}
	return nil
}

// checkPeer checks that rank is a valid peer for a point-to-point operation.
func (b *Backend) checkPeer(opType distributed.OpType, rank int) error {
	if err := b.checkRank(opType, "peer rank", rank); err != nil {
		return err
	}
	if rank == b.Rank() {
		return invalidf("%s: rank %d cannot be its own peer", opType, rank)
	}
	return nil
}

func checkReduceOp(op distributed.ReduceOp, list []*tensors.Tensor) error {
	for _, t := range list {
		if err := distributed.ValidateReduceOp(op, t.DType()); err != nil {
			return err
		}
	}
	return nil
}

// copyPayload copies a received payload into dsts.
func copyPayload(opType distributed.OpType, dsts, payload []*tensors.Tensor) error {
	if len(payload) != len(dsts) {
		return invalidf("%s: expected %d tensors, received %d", opType, len(dsts), len(payload))
	}
	for i, dst := range dsts {
		if err := dst.CopyFrom(payload[i]); err != nil {
			return errors.Wrapf(distributed.ErrInvalidArgument, "%s: %v", opType, err)
		}
	}
	return nil
}
