package forwarder

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"

	"github.com/badgerdao/harvest-forwarder/build"
	"github.com/badgerdao/harvest-forwarder/journal"
	"github.com/badgerdao/harvest-forwarder/metrics"
)

// Distribute pulls amount of token from caller, who must have approved the
// forwarder as operator, and pushes it on to the tree on behalf of
// beneficiary. Both movements happen or neither does: a failed pull or push
// is compensated by refunding the caller whatever the forwarder took in.
func (f *Forwarder) Distribute(ctx context.Context, caller, token address.Address, amount abi.TokenAmount, beneficiary address.Address) (_ *Receipt, err error) {
	start := time.Now()
	defer func() { f.observe(ctx, opDistribute, token, start, err) }()

	if amount.Nil() || amount.Sign() <= 0 {
		return nil, xerrors.Errorf("distributing %s: %w", amount, ErrInvalidAmount)
	}
	if token == address.Undef || beneficiary == address.Undef || caller == address.Undef {
		return nil, xerrors.Errorf("distributing to beneficiary %s: %w", beneficiary, ErrInvalidAddress)
	}
	if caller == f.self {
		return nil, xerrors.Errorf("forwarder cannot distribute its own funds: %w", ErrInvalidAddress)
	}

	if err := f.enter(ctx, opDistribute); err != nil {
		return nil, err
	}
	defer f.exit()

	// captured once, a concurrent SetTree cannot redirect these funds
	tree := f.Tree()

	before, err := f.ledger.BalanceOf(ctx, token, f.self)
	if err != nil {
		return nil, xerrors.Errorf("reading forwarder balance: %w", err)
	}

	if err := f.pull(ctx, token, caller, amount, before); err != nil {
		return nil, err
	}

	if err := f.push(ctx, token, caller, tree, amount, before); err != nil {
		return nil, err
	}

	r := f.recordReceipt(ctx, caller, token, amount, beneficiary, tree)

	log.Infow("funds distributed", "token", token, "amount", amount, "caller", caller, "beneficiary", beneficiary, "tree", tree, "receipt", r.ID)
	journal.MaybeRecordEvent(f.journal, f.evtType.distributed, func() interface{} {
		return &FundsDistributedEvt{
			Receipt:     r.ID,
			Token:       token,
			Amount:      amount,
			Beneficiary: beneficiary,
			Tree:        tree,
		}
	})
	return r, nil
}

// pull moves amount from caller into custody and checks that exactly amount
// arrived. On failure anything that did arrive goes back to caller.
func (f *Forwarder) pull(ctx context.Context, token, caller address.Address, amount, before abi.TokenAmount) error {
	ok, terr := f.ledger.TransferFrom(ctx, token, f.self, caller, f.self, amount)

	after, err := f.ledger.BalanceOf(ctx, token, f.self)
	if err != nil {
		// custody is unknown; whatever arrived stays sweepable
		log.Errorw("reading forwarder balance after pull", "token", token, "caller", caller, "amount", amount, "error", err)
		return xerrors.Errorf("pulling %s of %s from %s: balance check failed (%s): %w", amount, token, caller, err, ErrTransferRejected)
	}
	received := big.Sub(after, before)

	var cause string
	switch {
	case terr != nil:
		cause = terr.Error()
	case !ok:
		cause = "ledger reported failure"
	case !received.Equals(amount):
		cause = "received " + received.String()
	default:
		return nil
	}

	// never refund more than the caller put in
	if rerr := f.refund(ctx, token, caller, big.Min(received, amount)); rerr != nil {
		return xerrors.Errorf("pulling %s of %s from %s: %s; refund failed (%s): %w", amount, token, caller, cause, rerr, ErrTransferRejected)
	}
	return xerrors.Errorf("pulling %s of %s from %s: %s: %w", amount, token, caller, cause, ErrTransferRejected)
}

// push forwards amount to tree. The push succeeded when tree was credited
// exactly amount; anything else that moved into custody meanwhile stays there
// for Sweep. On failure the part that did not reach tree goes back to caller,
// bounded by what custody still holds above its pre-distribution balance.
func (f *Forwarder) push(ctx context.Context, token, caller, tree address.Address, amount, before abi.TokenAmount) error {
	// read after the pull so that tree == caller is accounted for
	treeBefore, err := f.ledger.BalanceOf(ctx, token, tree)
	if err != nil {
		cause := xerrors.Errorf("reading tree balance: %w", err)
		if rerr := f.refund(ctx, token, caller, amount); rerr != nil {
			return xerrors.Errorf("pushing %s of %s to %s: %s; refund failed (%s): %w", amount, token, tree, cause, rerr, ErrTransferRejected)
		}
		return xerrors.Errorf("pushing %s of %s to %s: %s: %w", amount, token, tree, cause, ErrTransferRejected)
	}

	ok, terr := f.ledger.Transfer(ctx, token, f.self, tree, amount)

	after, aerr := f.ledger.BalanceOf(ctx, token, f.self)
	if aerr != nil {
		log.Errorw("reading forwarder balance after push", "token", token, "tree", tree, "amount", amount, "error", aerr)
		return xerrors.Errorf("pushing %s of %s to %s: balance check failed (%s): %w", amount, token, tree, aerr, ErrTransferRejected)
	}
	treeAfter, berr := f.ledger.BalanceOf(ctx, token, tree)

	held := big.Sub(after, before)
	credited := big.Zero()
	if berr == nil {
		credited = big.Sub(treeAfter, treeBefore)
	}

	var cause string
	switch {
	case terr != nil:
		cause = terr.Error()
	case !ok:
		cause = "ledger reported failure"
	case berr != nil:
		cause = "reading tree balance: " + berr.Error()
	case credited.Equals(amount):
		if !held.IsZero() {
			log.Warnw("custody changed during push", "token", token, "tree", tree, "amount", amount, "difference", held)
		}
		return nil
	case held.Sign() > 0:
		cause = "forwarder retained " + held.String()
	default:
		cause = "tree credited " + credited.String()
	}

	owed := big.Min(held, amount)
	if berr == nil {
		owed = big.Min(owed, big.Sub(amount, credited))
	}
	if owed.Sign() <= 0 {
		log.Errorw("forwarded funds left custody but were not credited to the tree", "token", token, "tree", tree, "amount", amount, "cause", cause)
	}
	if rerr := f.refund(ctx, token, caller, owed); rerr != nil {
		return xerrors.Errorf("pushing %s of %s to %s: %s; refund failed (%s): %w", amount, token, tree, cause, rerr, ErrTransferRejected)
	}
	return xerrors.Errorf("pushing %s of %s to %s: %s: %w", amount, token, tree, cause, ErrTransferRejected)
}

// refund returns amt of token held in custody to `to`. Non-positive amounts
// are a no-op.
func (f *Forwarder) refund(ctx context.Context, token, to address.Address, amt abi.TokenAmount) (err error) {
	if amt.Sign() <= 0 {
		return nil
	}

	defer func() {
		res := metrics.OutcomeOK
		if err != nil {
			res = metrics.OutcomeError
			if xerrors.Is(err, errCreditedShort) {
				log.Errorw("refund left custody but recipient was credited short", "token", token, "to", to, "amount", amt, "error", err)
			} else {
				log.Errorw("refund failed, funds remain in custody", "token", token, "to", to, "amount", amt, "error", err)
			}
		}
		_ = stats.RecordWithTags(ctx, []tag.Mutator{
			tag.Upsert(metrics.Token, token.String()),
			tag.Upsert(metrics.Outcome, res),
		}, metrics.ForwarderCompensations.M(1))
	}()

	before, err := f.ledger.BalanceOf(ctx, token, to)
	if err != nil {
		return xerrors.Errorf("reading refund recipient balance: %w", err)
	}

	ok, err := f.ledger.Transfer(ctx, token, f.self, to, amt)
	if err != nil {
		return err
	}
	if !ok {
		return xerrors.New("ledger reported failure")
	}

	after, err := f.ledger.BalanceOf(ctx, token, to)
	if err != nil {
		return xerrors.Errorf("reading refund recipient balance: %w", err)
	}
	if got := big.Sub(after, before); !got.Equals(amt) {
		return xerrors.Errorf("recipient credited %s of %s: %w", got, amt, errCreditedShort)
	}

	log.Warnw("refunded caller after failed distribution", "token", token, "to", to, "amount", amt)
	return nil
}

// recordReceipt persists the receipt of a completed distribution. The funds
// have already moved at this point, so a persistence failure is logged rather
// than reported to the caller.
func (f *Forwarder) recordReceipt(ctx context.Context, caller, token address.Address, amount abi.TokenAmount, beneficiary, tree address.Address) *Receipt {
	f.lk.Lock()
	defer f.lk.Unlock()

	r := &Receipt{
		ID:          uuid.New(),
		Seq:         f.state.NextReceipt,
		Token:       token,
		Caller:      caller,
		Beneficiary: beneficiary,
		Tree:        tree,
		Amount:      amount,
		Timestamp:   build.Clock.Now(),
	}

	next := f.state
	next.NextReceipt++
	if err := f.store.PutReceipt(ctx, &next, r); err != nil {
		log.Errorw("failed to persist distribution receipt", "receipt", r.ID, "token", token, "amount", amount, "beneficiary", beneficiary, "error", err)
		return r
	}
	f.state = next
	return r
}
