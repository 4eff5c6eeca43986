package forwarder

import (
	"context"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-address"

	"github.com/badgerdao/harvest-forwarder/metrics"
)

const (
	opSetTree           = "set_tree"
	opTransferOwnership = "transfer_ownership"
	opDistribute        = "distribute"
	opSweep             = "sweep"
)

// enter acquires the single in-flight slot shared by distribute and sweep.
// It never waits: a re-entrant call made from a ledger hook, or a concurrent
// call, is rejected.
func (f *Forwarder) enter(ctx context.Context, op string) error {
	if f.entered.CompareAndSwap(false, true) {
		return nil
	}

	log.Warnw("rejecting re-entrant call", "operation", op)
	_ = stats.RecordWithTags(ctx, []tag.Mutator{tag.Upsert(metrics.Operation, op)}, metrics.ForwarderReentrancyBlocked.M(1))
	return ErrReentrancyBlocked
}

func (f *Forwarder) exit() {
	f.entered.Store(false)
}

func (f *Forwarder) observe(ctx context.Context, op string, token address.Address, start time.Time, err error) {
	mutators := []tag.Mutator{
		tag.Upsert(metrics.Operation, op),
		tag.Upsert(metrics.Outcome, outcome(err)),
	}
	if token != address.Undef {
		mutators = append(mutators, tag.Upsert(metrics.Token, token.String()))
	}

	_ = stats.RecordWithTags(ctx, mutators,
		metrics.ForwarderOperations.M(1),
		metrics.ForwarderOperationDuration.M(metrics.SinceInMilliseconds(start)),
	)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case xerrors.Is(err, ErrUnauthorized):
		return metrics.OutcomeUnauthorized
	case xerrors.Is(err, ErrInvalidAddress), xerrors.Is(err, ErrInvalidAmount):
		return metrics.OutcomeInvalid
	case xerrors.Is(err, ErrTransferRejected):
		return metrics.OutcomeRejected
	case xerrors.Is(err, ErrReentrancyBlocked):
		return metrics.OutcomeReentrancy
	default:
		return metrics.OutcomeError
	}
}
