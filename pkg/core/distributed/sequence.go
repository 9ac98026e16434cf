package distributed

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// errSequenceNumbersNotSupported is the error for the groups whose backend type doesn't support sequence numbers.
func (pg *ProcessGroup) errSequenceNumbersNotSupported() error {
	return errors.Wrapf(ErrUnsupportedOperation, "ProcessGroup %s does not yet support sequence numbers", pg.BackendName())
}

// SetSequenceNumberForGroup makes all ranks agree on a new sequence number: rank 0 generates it and publishes
// it in the store, the other ranks read it. Every rank must call it.
//
// Only groups whose BackendType is BackendGloo, BackendNCCL or BackendUCC support sequence numbers,
// others fail with ErrUnsupportedOperation.
func (pg *ProcessGroup) SetSequenceNumberForGroup() error {
	if !pg.backendType.SupportsSequenceNumbers() {
		return pg.errSequenceNumbersNotSupported()
	}
	backend, err := pg.GetDefaultBackend()
	if err != nil {
		return err
	}
	if err := backend.SetSequenceNumberForGroup(); err != nil {
		return err
	}
	if pg.debugLevel >= DebugInfo {
		klog.Infof("process group %s (rank %d): sequence number set to %d", pg, pg.rank, backend.GetSequenceNumberForGroup())
	}
	return nil
}

// GetSequenceNumberForGroup returns the current sequence number of the default backend.
// See SetSequenceNumberForGroup for the supported backend types.
func (pg *ProcessGroup) GetSequenceNumberForGroup() (uint64, error) {
	if !pg.backendType.SupportsSequenceNumbers() {
		return 0, pg.errSequenceNumbersNotSupported()
	}
	backend, err := pg.GetDefaultBackend()
	if err != nil {
		return 0, err
	}
	return backend.GetSequenceNumberForGroup(), nil
}

// seqCheckKey is the store key where rank publishes its sequence number in the given check round.
func seqCheckKey(round uint64, rank int) string {
	return fmt.Sprintf("seq_check/%d/%d", round, rank)
}

// seqCheckDoneKey is set by rank once it has read every other rank's sequence number in the check round.
func seqCheckDoneKey(round uint64, rank int) string {
	return fmt.Sprintf("seq_check/%d/done/%d", round, rank)
}

// CheckSequenceNumbers verifies that all ranks have the same sequence number: each rank publishes its own in
// the store and compares it with every other rank's. Every rank must call it.
//
// Ranks that diverge from rank 0 are logged and reported with ErrCollectiveDesync.
// Rank 0 returns only after every rank has read the values, and it deletes the keys of the check.
func (pg *ProcessGroup) CheckSequenceNumbers(ctx context.Context) error {
	seq, err := pg.GetSequenceNumberForGroup()
	if err != nil {
		return err
	}
	if pg.store == nil {
		return errors.Wrapf(ErrConfiguration, "process group %s has no store to check sequence numbers", pg)
	}
	round := pg.seqCheckRound.Add(1)
	if err := pg.store.Set(ctx, seqCheckKey(round, pg.rank), []byte(strconv.FormatUint(seq, 10))); err != nil {
		return errors.WithMessagef(err, "process group %s: failed to publish sequence number", pg)
	}
	all := make([]uint64, pg.size)
	for rank := range pg.size {
		if rank == pg.rank {
			all[rank] = seq
			continue
		}
		value, err := pg.store.Get(ctx, seqCheckKey(round, rank))
		if err != nil {
			return errors.WithMessagef(err, "process group %s: failed to read sequence number of rank %d", pg, rank)
		}
		all[rank], err = strconv.ParseUint(string(value), 10, 64)
		if err != nil {
			return errors.Wrapf(err, "process group %s: invalid sequence number %q of rank %d", pg, value, rank)
		}
	}
	if err := pg.cleanupSeqCheck(ctx, round); err != nil {
		return err
	}

	var diverging []string
	for rank, other := range all {
		if other != all[0] {
			diverging = append(diverging, fmt.Sprintf("rank %d at %d", rank, other))
		}
	}
	if len(diverging) == 0 {
		klog.V(1).Infof("process group %s (rank %d): all ranks at sequence number %d", pg, pg.rank, seq)
		return nil
	}
	err = errors.Wrapf(ErrCollectiveDesync, "process group %s: rank 0 at sequence number %d, but %s",
		pg, all[0], strings.Join(diverging, ", "))
	klog.Errorf("%+v", err)
	return err
}

// cleanupSeqCheck signals that this rank is done reading the check round's values. Rank 0 waits for all
// the other ranks to be done, and then deletes the round's keys.
func (pg *ProcessGroup) cleanupSeqCheck(ctx context.Context, round uint64) error {
	if pg.rank != 0 {
		if err := pg.store.Set(ctx, seqCheckDoneKey(round, pg.rank), []byte{1}); err != nil {
			return errors.WithMessagef(err, "process group %s: failed to publish end of sequence number check", pg)
		}
		return nil
	}
	for rank := 1; rank < pg.size; rank++ {
		if _, err := pg.store.Get(ctx, seqCheckDoneKey(round, rank)); err != nil {
			return errors.WithMessagef(err, "process group %s: rank %d didn't finish the sequence number check", pg, rank)
		}
	}
	for rank := range pg.size {
		for _, key := range []string{seqCheckKey(round, rank), seqCheckDoneKey(round, rank)} {
			if _, err := pg.store.DeleteKey(ctx, key); err != nil {
				klog.Warningf("process group %s: failed to delete %q: %+v", pg, key, err)
			}
		}
	}
	return nil
}
