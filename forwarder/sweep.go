package forwarder

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"

	"github.com/badgerdao/harvest-forwarder/journal"
)

// Sweep transfers the forwarder's whole balance of token to the owner and
// returns the amount moved. Sweeping an empty balance succeeds and moves
// nothing.
func (f *Forwarder) Sweep(ctx context.Context, caller, token address.Address) (_ abi.TokenAmount, err error) {
	start := time.Now()
	defer func() { f.observe(ctx, opSweep, token, start, err) }()

	// captured once, the recipient is the owner that authorized the sweep
	owner := f.Owner()
	if caller != owner {
		return big.Zero(), ErrUnauthorized
	}
	if token == address.Undef {
		return big.Zero(), xerrors.Errorf("sweeping: %w", ErrInvalidAddress)
	}

	if err := f.enter(ctx, opSweep); err != nil {
		return big.Zero(), err
	}
	defer f.exit()

	bal, err := f.ledger.BalanceOf(ctx, token, f.self)
	if err != nil {
		return big.Zero(), xerrors.Errorf("reading forwarder balance: %w", err)
	}
	if bal.Sign() <= 0 {
		log.Debugw("nothing to sweep", "token", token)
		return big.Zero(), nil
	}

	ownerBefore, err := f.ledger.BalanceOf(ctx, token, owner)
	if err != nil {
		return big.Zero(), xerrors.Errorf("reading owner balance: %w", err)
	}

	ok, terr := f.ledger.Transfer(ctx, token, f.self, owner, bal)

	after, aerr := f.ledger.BalanceOf(ctx, token, f.self)
	ownerAfter, oerr := f.ledger.BalanceOf(ctx, token, owner)

	var cause string
	switch {
	case terr != nil:
		cause = terr.Error()
	case !ok:
		cause = "ledger reported failure"
	case aerr != nil:
		cause = "reading forwarder balance: " + aerr.Error()
	case oerr != nil:
		cause = "reading owner balance: " + oerr.Error()
	case !after.IsZero():
		cause = "forwarder retained " + after.String()
	case !big.Sub(ownerAfter, ownerBefore).Equals(bal):
		cause = "owner credited " + big.Sub(ownerAfter, ownerBefore).String()
	}
	if cause != "" {
		log.Errorw("sweep failed", "token", token, "amount", bal, "owner", owner, "cause", cause)
		if terr == nil && ok && aerr == nil && oerr == nil {
			f.recordPartialSweep(token, owner, big.Sub(bal, after), big.Sub(ownerAfter, ownerBefore))
		}
		return big.Zero(), xerrors.Errorf("sweeping %s of %s to %s: %s: %w", bal, token, owner, cause, ErrTransferRejected)
	}

	log.Infow("funds swept", "token", token, "amount", bal, "recipient", owner)
	journal.MaybeRecordEvent(f.journal, f.evtType.swept, func() interface{} {
		return &FundsSweptEvt{Token: token, Amount: bal, Sent: bal, Recipient: owner}
	})
	return bal, nil
}

// recordPartialSweep journals a sweep that was reported as failed but still
// moved funds out of custody, such as a fee-charging token crediting the owner
// short.
func (f *Forwarder) recordPartialSweep(token, owner address.Address, sent, credited abi.TokenAmount) {
	if sent.Sign() <= 0 {
		return
	}
	log.Warnw("sweep moved funds despite failing", "token", token, "sent", sent, "credited", credited, "recipient", owner)
	journal.MaybeRecordEvent(f.journal, f.evtType.swept, func() interface{} {
		return &FundsSweptEvt{Token: token, Amount: credited, Sent: sent, Recipient: owner}
	})
}

// SweepMany sweeps each distinct token independently. Amounts are reported for
// the tokens that were swept; failures are aggregated into the returned error.
func (f *Forwarder) SweepMany(ctx context.Context, caller address.Address, tokens []address.Address) (map[address.Address]abi.TokenAmount, error) {
	if caller != f.Owner() {
		return nil, ErrUnauthorized
	}

	swept := make(map[address.Address]abi.TokenAmount, len(tokens))
	var merr *multierror.Error
	for _, token := range lo.Uniq(tokens) {
		amt, err := f.Sweep(ctx, caller, token)
		if err != nil {
			merr = multierror.Append(merr, xerrors.Errorf("sweeping %s: %w", token, err))
			continue
		}
		swept[token] = amt
	}
	return swept, merr.ErrorOrNil()
}
