package local

import (
	"context"
	"slices"

	"github.com/gomlx/collectives/pkg/core/distributed"
	"github.com/gomlx/collectives/pkg/core/tensors"
	"github.com/pkg/errors"
)

// treePosition returns the parent (-1 for the root) and children of rank in a binary tree of size ranks
// rooted at root. Ranks are placed in the tree in heap order, counting from root.
func treePosition(rank, root, size int) (parent int, children []int) {
	virtual := (rank - root + size) % size
	toRank := func(v int) int { return (v + root) % size }
	parent = -1
	if virtual > 0 {
		parent = toRank((virtual - 1) / 2)
	}
	for _, child := range []int{2*virtual + 1, 2*virtual + 2} {
		if child < size {
			children = append(children, toRank(child))
		}
	}
	return
}

// reduceUp reduces into acc the values of this rank's subtree, in the tree rooted at root, and sends the
// result to the parent. At the root acc ends up with the reduction over all ranks.
func (b *Backend) reduceUp(ctx context.Context, channel string, op distributed.ReduceOp, root int,
	acc []*tensors.Tensor) (parent int, children []int, err error) {
	parent, children = treePosition(b.Rank(), root, b.Size())
	payloads, err := b.receiveFrom(ctx, channel, children)
	if err != nil {
		return
	}
	for childIdx, payload := range payloads {
		if len(payload) != len(acc) {
			err = invalidf("reduce: rank %d sent %d tensors, expected %d", children[childIdx], len(payload), len(acc))
			return
		}
		for i := range acc {
			if err = distributed.ReduceInto(op, acc[i], payload[i]); err != nil {
				return
			}
		}
	}
	if parent >= 0 {
		err = b.post(parent, channel, acc...)
	}
	return
}

// allreduce reduces acc over all ranks, up a tree rooted at rank 0 and then back down.
// contributions is the number of values each rank reduced locally into acc, used by ReduceAvg.
func (b *Backend) allreduce(ctx context.Context, channel string, op distributed.ReduceOp, acc []*tensors.Tensor,
	contributions int) ([]*tensors.Tensor, error) {
	parent, children, err := b.reduceUp(ctx, channel, op, 0, acc)
	if err != nil {
		return nil, err
	}
	if parent < 0 {
		for _, t := range acc {
			distributed.FinalizeReduce(op, t, b.Size()*contributions)
		}
	} else {
		numTensors := len(acc)
		acc, err = b.receive(ctx, parent, channel)
		if err != nil {
			return nil, err
		}
		if len(acc) != numTensors {
			return nil, invalidf("allreduce: rank %d sent %d tensors, expected %d", parent, len(acc), numTensors)
		}
	}
	for _, child := range children {
		if err := b.post(child, channel, acc...); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// reduceLocal returns the reduction of the replicas of one value held by this rank, in the accumulator dtype.
func reduceLocal(op distributed.ReduceOp, replicas []*tensors.Tensor) (*tensors.Tensor, error) {
	acc := distributed.NewAccumulator(op, replicas[0])
	for _, t := range replicas[1:] {
		if err := accumulate(op, acc, t); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// accumulate reduces t into acc, converting t to the dtype of acc if needed.
func accumulate(op distributed.ReduceOp, acc, t *tensors.Tensor) error {
	if t.DType() != acc.DType() {
		t = distributed.NewAccumulator(op, t)
	}
	return distributed.ReduceInto(op, acc, t)
}

// newAccumulators returns the accumulators of op for ts.
func newAccumulators(op distributed.ReduceOp, ts []*tensors.Tensor) []*tensors.Tensor {
	accs := make([]*tensors.Tensor, len(ts))
	for i, t := range ts {
		accs[i] = distributed.NewAccumulator(op, t)
	}
	return accs
}

// reduceRanks reduces, in rank order, the i-th tensor received from every rank.
func (b *Backend) reduceRanks(op distributed.ReduceOp, all [][]*tensors.Tensor, i int) (*tensors.Tensor, error) {
	for rank, payload := range all {
		if len(payload) <= i {
			return nil, invalidf("reduce: rank %d sent %d tensors, expected at least %d", rank, len(payload), i+1)
		}
	}
	acc := distributed.NewAccumulator(op, all[0][i])
	for _, payload := range all[1:] {
		if err := accumulate(op, acc, payload[i]); err != nil {
			return nil, err
		}
	}
	distributed.FinalizeReduce(op, acc, b.Size())
	return acc, nil
}

func copyInto(opType distributed.OpType, dst, src *tensors.Tensor) error {
	if err := dst.CopyFrom(src); err != nil {
		return errors.Wrapf(distributed.ErrInvalidArgument, "%s: %v", opType, err)
	}
	return nil
}

// copyReduced copies the result of a reduction, in the accumulator dtype, into dst.
func copyReduced(opType distributed.OpType, dst, acc *tensors.Tensor) error {
	if err := distributed.CastInto(dst, acc); err != nil {
		return errors.Wrapf(distributed.ErrInvalidArgument, "%s: %v", opType, err)
	}
	return nil
}

// Broadcast implements distributed.Backend. tensors are replicas of one value: the root's
// tensors[opts.RootTensor] is copied to all tensors of every rank.
func (b *Backend) Broadcast(ts []*tensors.Tensor, opts distributed.BroadcastOptions) (*distributed.Work, error) {
	const opType = distributed.OpBroadcast
	if err := checkReplicas(opType, ts); err != nil {
		return nil, err
	}
	if err := b.checkRank(opType, "root rank", opts.RootRank); err != nil {
		return nil, err
	}
	if opts.RootTensor < 0 || opts.RootTensor >= len(ts) {
		return nil, invalidf("%s: root tensor %d out of range for %d tensors", opType, opts.RootTensor, len(ts))
	}
	root, rootTensor := opts.RootRank, opts.RootTensor
	return b.issue(opType, opts.Timeout, true, func(ctx context.Context, channel string, _ *distributed.Work) ([]*tensors.Tensor, error) {
		source := ts[rootTensor]
		if b.Rank() == root {
			for _, dst := range b.peers() {
				if err := b.post(dst, channel, source); err != nil {
					return nil, err
				}
			}
		} else {
			payload, err := b.receive(ctx, root, channel)
			if err != nil {
				return nil, err
			}
			if len(payload) != 1 {
				return nil, invalidf("%s: root sent %d tensors, expected 1", opType, len(payload))
			}
			source = payload[0]
		}
		for _, t := range ts {
			if t != source {
				if err := copyInto(opType, t, source); err != nil {
					return nil, err
				}
			}
		}
		return ts, nil
	}), nil
}

// Allreduce implements distributed.Backend. tensors are replicas of one value: all tensors of every rank
// end up with the reduction of all of them. ReduceAvg divides by the total number of tensors reduced.
func (b *Backend) Allreduce(ts []*tensors.Tensor, opts distributed.AllreduceOptions) (*distributed.Work, error) {
	const opType = distributed.OpAllreduce
	if err := checkReplicas(opType, ts); err != nil {
		return nil, err
	}
	if err := checkReduceOp(opts.ReduceOp, ts[:1]); err != nil {
		return nil, err
	}
	if opts.SparseIndices != nil {
		return nil, errors.WithMessage(b.Unsupported(opType), "sparse tensors")
	}
	op := opts.ReduceOp
	return b.issue(opType, opts.Timeout, true, func(ctx context.Context, channel string, _ *distributed.Work) ([]*tensors.Tensor, error) {
		acc, err := reduceLocal(op, ts)
		if err != nil {
			return nil, err
		}
		result, err := b.allreduce(ctx, channel, op, []*tensors.Tensor{acc}, len(ts))
		if err != nil {
			return nil, err
		}
		for _, t := range ts {
			if err := copyReduced(opType, t, result[0]); err != nil {
				return nil, err
			}
		}
		return ts, nil
	}), nil
}

// AllreduceCoalesced implements distributed.Backend: each tensor is reduced across ranks independently, in
// one operation. All tensors must have the same dtype.
func (b *Backend) AllreduceCoalesced(ts []*tensors.Tensor, opts distributed.AllreduceCoalescedOptions) (*distributed.Work, error) {
	const opType = distributed.OpAllreduceCoalesced
	if err := checkTensors(opType, "input", ts); err != nil {
		return nil, err
	}
	if err := checkSameDType(opType, ts); err != nil {
		return nil, err
	}
	if err := checkReduceOp(opts.ReduceOp, ts[:1]); err != nil {
		return nil, err
	}
	op := opts.ReduceOp
	return b.issue(opType, opts.Timeout, true, func(ctx context.Context, channel string, _ *distributed.Work) ([]*tensors.Tensor, error) {
		result, err := b.allreduce(ctx, channel, op, newAccumulators(op, ts), 1)
		if err != nil {
			return nil, err
		}
		if len(result) != len(ts) {
			return nil, invalidf("%s: expected %d tensors, received %d", opType, len(ts), len(result))
		}
		for i, t := range ts {
			if err := copyReduced(opType, t, result[i]); err != nil {
				return nil, err
			}
		}
		return ts, nil
	}), nil
}

// Reduce implements distributed.Backend. tensors are replicas of one value: the reduction over all tensors
// of every rank is stored in the root's tensors[opts.RootTensor]. Other tensors are not changed.
func (b *Backend) Reduce(ts []*tensors.Tensor, opts distributed.ReduceOptions) (*distributed.Work, error) {
	const opType = distributed.OpReduce
	if err := checkReplicas(opType, ts); err != nil {
		return nil, err
	}
	if err := checkReduceOp(opts.ReduceOp, ts[:1]); err != nil {
		return nil, err
	}
	if err := b.checkRank(opType, "root rank", opts.RootRank); err != nil {
		return nil, err
	}
	if opts.RootTensor < 0 || opts.RootTensor >= len(ts) {
		return nil, invalidf("%s: root tensor %d out of range for %d tensors", opType, opts.RootTensor, len(ts))
	}
	op, root, rootTensor := opts.ReduceOp, opts.RootRank, opts.RootTensor
	return b.issue(opType, opts.Timeout, true, func(ctx context.Context, channel string, _ *distributed.Work) ([]*tensors.Tensor, error) {
		acc, err := reduceLocal(op, ts)
		if err != nil {
			return nil, err
		}
		if _, _, err = b.reduceUp(ctx, channel, op, root, []*tensors.Tensor{acc}); err != nil {
			return nil, err
		}
		if b.Rank() != root {
			return nil, nil
		}
		distributed.FinalizeReduce(op, acc, b.Size()*len(ts))
		if err := copyReduced(opType, ts[rootTensor], acc); err != nil {
			return nil, err
		}
		return ts[rootTensor : rootTensor+1], nil
	}), nil
}

// Allgather implements distributed.Backend: outputs[i][r] receives inputs[i] of rank r.
func (b *Backend) Allgather(outputs [][]*tensors.Tensor, inputs []*tensors.Tensor, opts distributed.AllgatherOptions) (*distributed.Work, error) {
	const opType = distributed.OpAllgather
	if err := checkTensors(opType, "input", inputs); err != nil {
		return nil, err
	}
	if len(outputs) != len(inputs) {
		return nil, invalidf("%s: %d output lists for %d inputs", opType, len(outputs), len(inputs))
	}
	for i, list := range outputs {
		if len(list) != b.Size() {
			return nil, invalidf("%s: output list #%d has %d tensors, expected world size %d", opType, i, len(list), b.Size())
		}
		for _, output := range list {
			if err := checkCompatible(opType, output, inputs[i]); err != nil {
				return nil, err
			}
		}
	}
	return b.issue(opType, opts.Timeout, true, func(ctx context.Context, channel string, _ *distributed.Work) ([]*tensors.Tensor, error) {
		all, err := b.exchange(ctx, channel, func(int) []*tensors.Tensor { return inputs })
		if err != nil {
			return nil, err
		}
		for rank, payload := range all {
			for i, list := range outputs {
				if len(payload) != len(inputs) {
					return nil, invalidf("%s: rank %d sent %d tensors, expected %d", opType, rank, len(payload), len(inputs))
				}
				if err := copyInto(opType, list[rank], payload[i]); err != nil {
					return nil, err
				}
			}
		}
		return slices.Concat(outputs...), nil
	}), nil
}

// checkFlatOutput checks that output can hold the concatenation of one input per rank.
func (b *Backend) checkFlatOutput(opType distributed.OpType, output, input *tensors.Tensor) error {
	if output == nil || input == nil {
		return invalidf("%s: nil tensor", opType)
	}
	if output.DType() != input.DType() || output.Size() != b.Size()*input.Size() {
		return invalidf("%s: output %s must have world size (%d) times the elements of input %s",
			opType, output, b.Size(), input)
	}
	return nil
}

// concatenateRanks copies the i-th tensor received from every rank, in rank order, into output.
func concatenateRanks(opType distributed.OpType, output *tensors.Tensor, all [][]*tensors.Tensor, i int) error {
	parts := make([]*tensors.Tensor, len(all))
	for rank, payload := range all {
		if len(payload) <= i {
			return invalidf("%s: rank %d sent %d tensors, expected at least %d", opType, rank, len(payload), i+1)
		}
		parts[rank] = payload[i]
	}
	if err := tensors.Concatenate(output, parts); err != nil {
		return errors.Wrapf(distributed.ErrInvalidArgument, "%s: %v", opType, err)
	}
	return nil
}

// AllgatherBase implements distributed.Backend: the inputs of all ranks are concatenated, in rank order,
// in output.
func (b *Backend) AllgatherBase(output, input *tensors.Tensor, opts distributed.AllgatherOptions) (*distributed.Work, error) {
	const opType = distributed.OpAllgatherBase
	if err := b.checkFlatOutput(opType, output, input); err != nil {
		return nil, err
	}
	return b.issue(opType, opts.Timeout, true, func(ctx context.Context, channel string, _ *distributed.Work) ([]*tensors.Tensor, error) {
		all, err := b.exchange(ctx, channel, func(int) []*tensors.Tensor { return []*tensors.Tensor{input} })
		if err != nil {
			return nil, err
		}
		if err := concatenateRanks(opType, output, all, 0); err != nil {
			return nil, err
		}
		return []*tensors.Tensor{output}, nil
	}), nil
}

// AllgatherCoalesced implements distributed.Backend: outputLists[r][i] receives inputs[i] of rank r.
func (b *Backend) AllgatherCoalesced(outputLists [][]*tensors.Tensor, inputs []*tensors.Tensor, opts distributed.AllgatherOptions) (*distributed.Work, error) {
	const opType = distributed.OpAllgatherCoalesced
	if err := checkTensors(opType, "input", inputs); err != nil {
		return nil, err
	}
	if len(outputLists) != b.Size() {
		return nil, invalidf("%s: %d output lists, expected world size %d", opType, len(outputLists), b.Size())
	}
	for rank, list := range outputLists {
		if len(list) != len(inputs) {
			return nil, invalidf("%s: output list of rank %d has %d tensors, expected %d", opType, rank, len(list), len(inputs))
		}
		for i, output := range list {
			if err := checkCompatible(opType, output, inputs[i]); err != nil {
				return nil, err
			}
		}
	}
	return b.issue(opType, opts.Timeout, true, func(ctx context.Context, channel string, _ *distributed.Work) ([]*tensors.Tensor, error) {
		all, err := b.exchange(ctx, channel, func(int) []*tensors.Tensor { return inputs })
		if err != nil {
			return nil, err
		}
		for rank, payload := range all {
			if err := copyPayload(opType, outputLists[rank], payload); err != nil {
				return nil, err
			}
		}
		return slices.Concat(outputLists...), nil
	}), nil
}

// AllgatherIntoTensorCoalesced implements distributed.Backend: one AllgatherBase per (outputs[i], inputs[i])
// pair, in one operation.
func (b *Backend) AllgatherIntoTensorCoalesced(outputs, inputs []*tensors.Tensor, opts distributed.AllgatherOptions) (*distributed.Work, error) {
	const opType = distributed.OpAllgatherIntoTensorCoalesced
	if err := checkTensors(opType, "input", inputs); err != nil {
		return nil, err
	}
	if len(outputs) != len(inputs) {
		return nil, invalidf("%s: %d outputs for %d inputs", opType, len(outputs), len(inputs))
	}
	for i := range inputs {
		if err := b.checkFlatOutput(opType, outputs[i], inputs[i]); err != nil {
			return nil, err
		}
	}
	return b.issue(opType, opts.Timeout, true, func(ctx context.Context, channel string, _ *distributed.Work) ([]*tensors.Tensor, error) {
		all, err := b.exchange(ctx, channel, func(int) []*tensors.Tensor { return inputs })
		if err != nil {
			return nil, err
		}
		for i, output := range outputs {
			if err := concatenateRanks(opType, output, all, i); err != nil {
				return nil, err
			}
		}
		return outputs, nil
	}), nil
}

// Gather implements distributed.Backend: outputs[0][r] of the root receives inputs[0] of rank r.
// Only the root passes outputs.
func (b *Backend) Gather(outputs [][]*tensors.Tensor, inputs []*tensors.Tensor, opts distributed.GatherOptions) (*distributed.Work, error) {
	const opType = distributed.OpGather
	if err := b.checkRank(opType, "root rank", opts.RootRank); err != nil {
		return nil, err
	}
	if len(inputs) != 1 || inputs[0] == nil {
		return nil, invalidf("%s: requires exactly one input tensor, got %d", opType, len(inputs))
	}
	root := opts.RootRank
	if b.Rank() == root {
		if len(outputs) != 1 || len(outputs[0]) != b.Size() {
			return nil, invalidf("%s: the root requires one output list with world size (%d) tensors", opType, b.Size())
		}
		for _, output := range outputs[0] {
			if err := checkCompatible(opType, output, inputs[0]); err != nil {
				return nil, err
			}
		}
	} else if len(outputs) != 0 {
		return nil, invalidf("%s: only the root rank %d may pass outputs", opType, root)
	}
	return b.issue(opType, opts.Timeout, true, func(ctx context.Context, channel string, _ *distributed.Work) ([]*tensors.Tensor, error) {
		if b.Rank() != root {
			return nil, b.post(root, channel, inputs[0])
		}
		peers := b.peers()
		payloads, err := b.receiveFrom(ctx, channel, peers)
		if err != nil {
			return nil, err
		}
		for i, src := range peers {
			if err := copyPayload(opType, outputs[0][src:src+1], payloads[i]); err != nil {
				return nil, err
			}
		}
		if err := copyInto(opType, outputs[0][root], inputs[0]); err != nil {
			return nil, err
		}
		return outputs[0], nil
	}), nil
}

// Scatter implements distributed.Backend: outputs[0] of rank r receives inputs[0][r] of the root.
// Only the root passes inputs.
func (b *Backend) Scatter(outputs []*tensors.Tensor, inputs [][]*tensors.Tensor, opts distributed.ScatterOptions) (*distributed.Work, error) {
	const opType = distributed.OpScatter
	if err := b.checkRank(opType, "root rank", opts.RootRank); err != nil {
		return nil, err
	}
	if len(outputs) != 1 || outputs[0] == nil {
		return nil, invalidf("%s: requires exactly one output tensor, got %d", opType, len(outputs))
	}
	root := opts.RootRank
	if b.Rank() == root {
		if len(inputs) != 1 || len(inputs[0]) != b.Size() {
			return nil, invalidf("%s: the root requires one input list with world size (%d) tensors", opType, b.Size())
		}
		for _, input := range inputs[0] {
			if err := checkCompatible(opType, outputs[0], input); err != nil {
				return nil, err
			}
		}
	} else if len(inputs) != 0 {
		return nil, invalidf("%s: only the root rank %d may pass inputs", opType, root)
	}
	return b.issue(opType, opts.Timeout, true, func(ctx context.Context, channel string, _ *distributed.Work) ([]*tensors.Tensor, error) {
		if b.Rank() == root {
			for _, dst := range b.peers() {
				if err := b.post(dst, channel, inputs[0][dst]); err != nil {
					return nil, err
				}
			}
			if err := copyInto(opType, outputs[0], inputs[0][root]); err != nil {
				return nil, err
			}
			return outputs, nil
		}
		payload, err := b.receive(ctx, root, channel)
		if err != nil {
			return nil, err
		}
		if err := copyPayload(opType, outputs, payload); err != nil {
			return nil, err
		}
		return outputs, nil
	}), nil
}

// ReduceScatter implements distributed.Backend: outputs[0] of rank r receives the reduction of
// inputs[0][r] over all ranks.
func (b *Backend) ReduceScatter(outputs []*tensors.Tensor, inputs [][]*tensors.Tensor, opts distributed.ReduceScatterOptions) (*distributed.Work, error) {
	const opType = distributed.OpReduceScatter
	if len(outputs) != 1 || outputs[0] == nil {
		return nil, invalidf("%s: requires exactly one output tensor, got %d", opType, len(outputs))
	}
	if len(inputs) != 1 || len(inputs[0]) != b.Size() {
		return nil, invalidf("%s: requires one input list with world size (%d) tensors", opType, b.Size())
	}
	for _, input := range inputs[0] {
		if err := checkCompatible(opType, outputs[0], input); err != nil {
			return nil, err
		}
	}
	if err := checkReduceOp(opts.ReduceOp, outputs); err != nil {
		return nil, err
	}
	op := opts.ReduceOp
	return b.issue(opType, opts.Timeout, true, func(ctx context.Context, channel string, _ *distributed.Work) ([]*tensors.Tensor, error) {
		all, err := b.exchange(ctx, channel, func(dst int) []*tensors.Tensor { return inputs[0][dst : dst+1] })
		if err != nil {
			return nil, err
		}
		acc, err := b.reduceRanks(op, all, 0)
		if err != nil {
			return nil, err
		}
		if err := copyReduced(opType, outputs[0], acc); err != nil {
			return nil, err
		}
		return outputs, nil
	}), nil
}

// checkFlatInput checks that input can be split in one chunk per rank with the size of output.
func (b *Backend) checkFlatInput(opType distributed.OpType, output, input *tensors.Tensor) error {
	if output == nil || input == nil {
		return invalidf("%s: nil tensor", opType)
	}
	if output.DType() != input.DType() || input.Size() != b.Size()*output.Size() {
		return invalidf("%s: input %s must have world size (%d) times the elements of output %s",
			opType, input, b.Size(), output)
	}
	return nil
}

// ReduceScatterBase implements distributed.Backend: input is split in one chunk per rank, and rank r
// receives in output the reduction of the r-th chunks of all ranks.
func (b *Backend) ReduceScatterBase(output, input *tensors.Tensor, opts distributed.ReduceScatterOptions) (*distributed.Work, error) {
	const opType = distributed.OpReduceScatterBase
	if err := b.checkFlatInput(opType, output, input); err != nil {
		return nil, err
	}
	if err := checkReduceOp(opts.ReduceOp, []*tensors.Tensor{output}); err != nil {
		return nil, err
	}
	op := opts.ReduceOp
	return b.issue(opType, opts.Timeout, true, func(ctx context.Context, channel string, _ *distributed.Work) ([]*tensors.Tensor, error) {
		chunks, err := tensors.Split(input, b.Size())
		if err != nil {
			return nil, errors.Wrapf(distributed.ErrInvalidArgument, "%s: %v", opType, err)
		}
		all, err := b.exchange(ctx, channel, func(dst int) []*tensors.Tensor { return chunks[dst : dst+1] })
		if err != nil {
			return nil, err
		}
		acc, err := b.reduceRanks(op, all, 0)
		if err != nil {
			return nil, err
		}
		if err := copyReduced(opType, output, acc); err != nil {
			return nil, err
		}
		return []*tensors.Tensor{output}, nil
	}), nil
}

// ReduceScatterTensorCoalesced implements distributed.Backend: one ReduceScatterBase per
// (outputs[i], inputs[i]) pair, in one operation.
func (b *Backend) ReduceScatterTensorCoalesced(outputs, inputs []*tensors.Tensor, opts distributed.ReduceScatterOptions) (*distributed.Work, error) {
	const opType = distributed.OpReduceScatterTensorCoalesced
	if err := checkTensors(opType, "input", inputs); err != nil {
		return nil, err
	}
	if len(outputs) != len(inputs) {
		return nil, invalidf("%s: %d outputs for %d inputs", opType, len(outputs), len(inputs))
	}
	for i := range inputs {
		if err := b.checkFlatInput(opType, outputs[i], inputs[i]); err != nil {
			return nil, err
		}
	}
	if err := checkReduceOp(opts.ReduceOp, outputs); err != nil {
		return nil, err
	}
	op := opts.ReduceOp
	return b.issue(opType, opts.Timeout, true, func(ctx context.Context, channel string, _ *distributed.Work) ([]*tensors.Tensor, error) {
		chunks := make([][]*tensors.Tensor, len(inputs))
		for i, input := range inputs {
			var err error
			if chunks[i], err = tensors.Split(input, b.Size()); err != nil {
				return nil, errors.Wrapf(distributed.ErrInvalidArgument, "%s: %v", opType, err)
			}
		}
		all, err := b.exchange(ctx, channel, func(dst int) []*tensors.Tensor {
			payload := make([]*tensors.Tensor, len(chunks))
			for i := range chunks {
				payload[i] = chunks[i][dst]
			}
			return payload
		})
		if err != nil {
			return nil, err
		}
		for i, output := range outputs {
			acc, err := b.reduceRanks(op, all, i)
			if err != nil {
				return nil, err
			}
			if err := copyReduced(opType, output, acc); err != nil {
				return nil, err
			}
		}
		return outputs, nil
	}), nil
}

// rowSize returns the number of elements of one row (one index of axis 0) of t.
func rowSize(t *tensors.Tensor) int {
	size := 1
	for _, dim := range t.Dimensions()[1:] {
		size *= dim
	}
	return size
}

// resolveSplits returns the number of rows for each rank: splits if given, otherwise rows divided equally.
func resolveSplits(opType distributed.OpType, what string, splits []int, rows, worldSize int) ([]int, error) {
	if len(splits) == 0 {
		if rows%worldSize != 0 {
			return nil, invalidf("%s: %s with %d rows can't be split equally in %d ranks", opType, what, rows, worldSize)
		}
		splits = make([]int, worldSize)
		for i := range splits {
			splits[i] = rows / worldSize
		}
		return splits, nil
	}
	if len(splits) != worldSize {
		return nil, invalidf("%s: %d %s split sizes given, expected world size %d", opType, len(splits), what, worldSize)
	}
	total := 0
	for _, split := range splits {
		if split < 0 {
			return nil, invalidf("%s: negative %s split size in %v", opType, what, splits)
		}
		total += split
	}
	if total != rows {
		return nil, invalidf("%s: %s split sizes %v add up to %d, but it has %d rows", opType, what, splits, total, rows)
	}
	return slices.Clone(splits), nil
}

// offsets returns the starting row of each split.
func offsets(splits []int) []int {
	offsets := make([]int, len(splits))
	for i := 1; i < len(splits); i++ {
		offsets[i] = offsets[i-1] + splits[i-1]
	}
	return offsets
}

// AlltoallBase implements distributed.Backend: input is split along axis 0 by inputSplitSizes (equal
// splits if empty), split r is sent to rank r, and the splits received are concatenated in output, with
// the sizes in outputSplitSizes (equal splits if empty).
func (b *Backend) AlltoallBase(output, input *tensors.Tensor, outputSplitSizes, inputSplitSizes []int, opts distributed.AllToAllOptions) (*distributed.Work, error) {
	const opType = distributed.OpAlltoallBase
	if output == nil || input == nil {
		return nil, invalidf("%s: nil tensor", opType)
	}
	if output.Rank() == 0 || input.Rank() == 0 {
		return nil, invalidf("%s: tensors must have at least one axis, got %s and %s", opType, output, input)
	}
	if output.DType() != input.DType() || rowSize(output) != rowSize(input) {
		return nil, invalidf("%s: output %s and input %s must have the same dtype and row shape", opType, output, input)
	}
	outSplits, err := resolveSplits(opType, "output", outputSplitSizes, output.Dimensions()[0], b.Size())
	if err != nil {
		return nil, err
	}
	inSplits, err := resolveSplits(opType, "input", inputSplitSizes, input.Dimensions()[0], b.Size())
	if err != nil {
		return nil, err
	}
	if self := b.Rank(); outSplits[self] != inSplits[self] {
		return nil, invalidf("%s: rank %d sends itself %d rows, but expects %d", opType, self, inSplits[self], outSplits[self])
	}
	row := rowSize(input)
	return b.issue(opType, opts.Timeout, true, func(ctx context.Context, channel string, _ *distributed.Work) ([]*tensors.Tensor, error) {
		chunks := make([]*tensors.Tensor, b.Size())
		for dst, offset := range offsets(inSplits) {
			var err error
			if chunks[dst], err = tensors.SliceFlat(input, offset*row, inSplits[dst]*row); err != nil {
				return nil, errors.Wrapf(distributed.ErrInvalidArgument, "%s: %v", opType, err)
			}
		}
		all, err := b.exchange(ctx, channel, func(dst int) []*tensors.Tensor { return chunks[dst : dst+1] })
		if err != nil {
			return nil, err
		}
		for src, offset := range offsets(outSplits) {
			if len(all[src]) != 1 || all[src][0].Size() != outSplits[src]*row {
				return nil, invalidf("%s: rank %d sent a split that doesn't match the %d rows expected", opType, src, outSplits[src])
			}
			if err := tensors.CopyRange(output, offset*row, all[src][0], 0, outSplits[src]*row); err != nil {
				return nil, errors.Wrapf(distributed.ErrInvalidArgument, "%s: %v", opType, err)
			}
		}
		return []*tensors.Tensor{output}, nil
	}), nil
}

// Alltoall implements distributed.Backend: inputs[r] is sent to rank r, and outputs[r] receives what
// rank r sent.
func (b *Backend) Alltoall(outputs, inputs []*tensors.Tensor, opts distributed.AllToAllOptions) (*distributed.Work, error) {
	const opType = distributed.OpAlltoall
	if len(outputs) != b.Size() || len(inputs) != b.Size() {
		return nil, invalidf("%s: requires world size (%d) outputs and inputs, got %d and %d",
			opType, b.Size(), len(outputs), len(inputs))
	}
	if err := checkTensors(opType, "input", inputs); err != nil {
		return nil, err
	}
	if err := checkTensors(opType, "output", outputs); err != nil {
		return nil, err
	}
	if err := checkSameDType(opType, slices.Concat(outputs, inputs)); err != nil {
		return nil, err
	}
	// Only this rank's own slot is known before the exchange: the sizes sent by peers are checked on arrival.
	if err := checkCompatible(opType, outputs[b.Rank()], inputs[b.Rank()]); err != nil {
		return nil, err
	}
	return b.issue(opType, opts.Timeout, true, func(ctx context.Context, channel string, _ *distributed.Work) ([]*tensors.Tensor, error) {
		all, err := b.exchange(ctx, channel, func(dst int) []*tensors.Tensor { return inputs[dst : dst+1] })
		if err != nil {
			return nil, err
		}
		for src, payload := range all {
			if err := copyPayload(opType, outputs[src:src+1], payload); err != nil {
				return nil, err
			}
		}
		return outputs, nil
	}), nil
}
