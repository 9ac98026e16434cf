package local

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gomlx/collectives/pkg/core/distributed"
	"github.com/gomlx/collectives/pkg/core/tensors"
	"github.com/pkg/errors"
)

// p2pChannel is the fabric channel of the point-to-point messages with tag. Messages between two ranks
// with the same tag are received in the order they were sent.
func p2pChannel(tag int) string {
	return fmt.Sprintf("p2p/%d", tag)
}

// Send implements distributed.Backend. The tensors are posted before Send returns, without waiting for the
// matching Recv or for the collectives queued before it.
func (b *Backend) Send(ts []*tensors.Tensor, dstRank, tag int) (*distributed.Work, error) {
	const opType = distributed.OpSend
	if err := checkTensors(opType, "input", ts); err != nil {
		return nil, err
	}
	if err := b.checkPeer(opType, dstRank); err != nil {
		return nil, err
	}
	return b.issue(opType, 0, false, func(context.Context, string, *distributed.Work) ([]*tensors.Tensor, error) {
		return nil, b.post(dstRank, p2pChannel(tag), ts...)
	}), nil
}

// Recv implements distributed.Backend. It doesn't wait for the collectives queued before it, and receives
// from the same rank with the same tag are matched to the messages in issue order.
func (b *Backend) Recv(ts []*tensors.Tensor, srcRank, tag int) (*distributed.Work, error) {
	const opType = distributed.OpRecv
	if err := checkTensors(opType, "output", ts); err != nil {
		return nil, err
	}
	if err := b.checkPeer(opType, srcRank); err != nil {
		return nil, err
	}
	lane := fmt.Sprintf("%d/%s", srcRank, p2pChannel(tag))
	return b.issueReceive(opType, lane, func(ctx context.Context, _ string, w *distributed.Work) ([]*tensors.Tensor, error) {
		payload, err := b.receive(ctx, srcRank, p2pChannel(tag))
		if err != nil {
			return nil, err
		}
		w.SetSourceRank(srcRank)
		if err := copyPayload(opType, ts, payload); err != nil {
			return nil, err
		}
		return ts, nil
	}), nil
}

// RecvAnysource implements distributed.Backend. The rank the tensors came from is given by Work.SourceRank.
// Receives from any source with the same tag are matched to the messages in issue order.
func (b *Backend) RecvAnysource(ts []*tensors.Tensor, tag int) (*distributed.Work, error) {
	const opType = distributed.OpRecvAnysource
	if err := checkTensors(opType, "output", ts); err != nil {
		return nil, err
	}
	return b.issueReceive(opType, "any/"+p2pChannel(tag), func(ctx context.Context, _ string, w *distributed.Work) ([]*tensors.Tensor, error) {
		src, payload, err := b.fabric.ReceiveAny(ctx, b.Rank(), p2pChannel(tag))
		if err != nil {
			return nil, err
		}
		w.SetSourceRank(src)
		if err := copyPayload(opType, ts, payload); err != nil {
			return nil, err
		}
		return ts, nil
	}), nil
}

// Barrier implements distributed.Backend: every rank reports to rank 0, which then releases them all.
func (b *Backend) Barrier(opts distributed.BarrierOptions) (*distributed.Work, error) {
	return b.issue(distributed.OpBarrier, opts.Timeout, true, func(ctx context.Context, channel string, _ *distributed.Work) ([]*tensors.Tensor, error) {
		if b.Rank() != 0 {
			if err := b.post(0, channel); err != nil {
				return nil, err
			}
			_, err := b.receive(ctx, 0, channel)
			return nil, err
		}
		peers := b.peers()
		if _, err := b.receiveFrom(ctx, channel, peers); err != nil {
			return nil, err
		}
		for _, dst := range peers {
			if err := b.post(dst, channel); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}), nil
}

// monitoredBarrierGrace is added to the timeout of the monitored barrier's Work, so the barrier reports the
// missing ranks before the Work itself times out.
const monitoredBarrierGrace = time.Second

// MonitoredBarrier implements distributed.Backend. It blocks until the barrier completes.
//
// Rank 0 waits for every other rank to report within the timeout, and then releases them. If some rank
// doesn't report, rank 0 fails with distributed.ErrTimedOut naming it: the first one missing, or all of
// them if waitAllRanks. The other ranks then time out waiting to be released.
func (b *Backend) MonitoredBarrier(opts distributed.BarrierOptions, waitAllRanks bool) error {
	if b.IsCoalescing() {
		return invalidf("%s: not allowed inside a coalescing window", distributed.OpMonitoredBarrier)
	}
	timeout := b.Timeout(opts.Timeout)
	w := b.issue(distributed.OpMonitoredBarrier, timeout+monitoredBarrierGrace, true,
		func(ctx context.Context, channel string, _ *distributed.Work) ([]*tensors.Tensor, error) {
			return nil, b.monitoredBarrier(ctx, channel, timeout, waitAllRanks)
		})
	return w.Wait(0)
}

func (b *Backend) monitoredBarrier(ctx context.Context, channel string, timeout time.Duration, waitAllRanks bool) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if b.Rank() != 0 {
		if err := b.post(0, channel); err != nil {
			return err
		}
		if _, err := b.receive(ctx, 0, channel); err != nil {
			return errors.Wrapf(distributed.ErrTimedOut, "rank %d was not released from monitoredBarrier by rank 0 in %d ms: %v",
				b.Rank(), timeout.Milliseconds(), err)
		}
		return nil
	}

	// Ranks are waited for in order: once the deadline passed, the ones that already reported still pass.
	var missing []string
	for src := 1; src < b.Size(); src++ {
		if _, err := b.receive(ctx, src, channel); err != nil {
			if !waitAllRanks {
				return errors.Wrapf(distributed.ErrTimedOut, "Rank %d failed to pass monitoredBarrier in %d ms",
					src, timeout.Milliseconds())
			}
			missing = append(missing, fmt.Sprint(src))
		}
	}
	if len(missing) > 0 {
		return errors.Wrapf(distributed.ErrTimedOut, "Ranks %s failed to pass monitoredBarrier in %d ms",
			strings.Join(missing, ", "), timeout.Milliseconds())
	}
	for _, dst := range b.peers() {
		if err := b.post(dst, channel); err != nil {
			return err
		}
	}
	return nil
}
