package local

import (
	"context"
	"sync"

	"github.com/gomlx/collectives/pkg/core/distributed"
	"github.com/gomlx/collectives/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Fabric connects the ranks of one world living in the same process: each rank has a mailbox per
// (source rank, channel), and messages in a mailbox are delivered in the order they were posted.
//
// Posting never blocks. Receiving blocks until a message is available, the context is done, or the
// source rank is disconnected.
//
// A Fabric is used by one backend per rank: create one Fabric per backend type of a world.
type Fabric struct {
	size int

	mu           sync.Mutex
	mailboxes    map[mailboxKey][]message
	changed      chan struct{}
	disconnected []bool
	closed       bool
}

type mailboxKey struct {
	dst, src int
	channel  string
}

type message struct {
	src     int
	payload []*tensors.Tensor
}

// NewFabric creates a Fabric connecting size ranks.
func NewFabric(size int) *Fabric {
	if size <= 0 {
		panic(errors.Errorf("local.NewFabric: size must be > 0, got %d", size))
	}
	return &Fabric{
		size:         size,
		mailboxes:    make(map[mailboxKey][]message),
		changed:      make(chan struct{}),
		disconnected: make([]bool, size),
	}
}

// Size returns the number of ranks connected by the fabric.
func (f *Fabric) Size() int { return f.size }

// lockedNotify wakes up every receiver waiting for a change.
func (f *Fabric) lockedNotify() {
	close(f.changed)
	f.changed = make(chan struct{})
}

func (f *Fabric) lockedCheckRank(rank int, role string) error {
	if f.closed {
		return errors.Wrap(distributed.ErrTransportFailure, "fabric closed")
	}
	if rank < 0 || rank >= f.size {
		return errors.Wrapf(distributed.ErrInvalidArgument, "%s rank %d out of range [0, %d)", role, rank, f.size)
	}
	if f.disconnected[rank] {
		return errors.Wrapf(distributed.ErrTransportFailure, "%s rank %d is disconnected", role, rank)
	}
	return nil
}

// Post a copy of payload from src to dst's mailbox for channel.
func (f *Fabric) Post(src, dst int, channel string, payload []*tensors.Tensor) error {
	clones := make([]*tensors.Tensor, len(payload))
	for i, t := range payload {
		clones[i] = t.Clone()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.lockedCheckRank(src, "source"); err != nil {
		return err
	}
	if err := f.lockedCheckRank(dst, "destination"); err != nil {
		return err
	}
	key := mailboxKey{dst: dst, src: src, channel: channel}
	f.mailboxes[key] = append(f.mailboxes[key], message{src: src, payload: clones})
	f.lockedNotify()
	return nil
}

// lockedPop removes and returns the first message of the mailbox, if any.
func (f *Fabric) lockedPop(key mailboxKey) (message, bool) {
	box := f.mailboxes[key]
	if len(box) == 0 {
		return message{}, false
	}
	msg := box[0]
	if len(box) == 1 {
		delete(f.mailboxes, key)
	} else {
		f.mailboxes[key] = box[1:]
	}
	return msg, true
}

// Receive the next message posted by src to dst on channel.
//
// Messages already posted are delivered even if ctx is done or src was disconnected afterward.
func (f *Fabric) Receive(ctx context.Context, dst, src int, channel string) ([]*tensors.Tensor, error) {
	key := mailboxKey{dst: dst, src: src, channel: channel}
	for {
		f.mu.Lock()
		msg, found := f.lockedPop(key)
		if found {
			f.mu.Unlock()
			return msg.payload, nil
		}
		err := f.lockedCheckRank(src, "source")
		if err == nil {
			err = f.lockedCheckRank(dst, "destination")
		}
		changed := f.changed
		f.mu.Unlock()
		if err != nil {
			return nil, errors.WithMessagef(err, "rank %d receiving from rank %d on %q", dst, src, channel)
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "rank %d receiving from rank %d on %q", dst, src, channel)
		}
	}
}

// ReceiveAny receives the next message posted to dst on channel by any rank, and returns the source rank.
// If more than one rank posted, the lowest source rank is delivered first.
func (f *Fabric) ReceiveAny(ctx context.Context, dst int, channel string) (int, []*tensors.Tensor, error) {
	for {
		f.mu.Lock()
		for src := range f.size {
			if src == dst {
				continue
			}
			if msg, found := f.lockedPop(mailboxKey{dst: dst, src: src, channel: channel}); found {
				f.mu.Unlock()
				return msg.src, msg.payload, nil
			}
		}
		err := f.lockedCheckRank(dst, "destination")
		changed := f.changed
		f.mu.Unlock()
		if err != nil {
			return -1, nil, errors.WithMessagef(err, "rank %d receiving from any rank on %q", dst, channel)
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return -1, nil, errors.Wrapf(ctx.Err(), "rank %d receiving from any rank on %q", dst, channel)
		}
	}
}

// Disconnect rank: posting to or from it fails, and so does waiting for its messages.
// It is used to simulate the failure of a rank.
func (f *Fabric) Disconnect(rank int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rank < 0 || rank >= f.size {
		return
	}
	f.disconnected[rank] = true
	f.lockedNotify()
}

// NumPending returns the number of messages posted and not yet received.
func (f *Fabric) NumPending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, box := range f.mailboxes {
		n += len(box)
	}
	return n
}

// Close the fabric: pending messages are dropped and every operation fails with ErrTransportFailure.
func (f *Fabric) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.mailboxes = make(map[mailboxKey][]message)
	f.lockedNotify()
}
