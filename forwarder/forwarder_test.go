package forwarder

import (
	"context"
	"testing"

	ds "github.com/ipfs/go-datastore"
	ds_sync "github.com/ipfs/go-datastore/sync"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"

	"github.com/badgerdao/harvest-forwarder/journal"
	"github.com/badgerdao/harvest-forwarder/ledger"
)

func newIDAddr(t *testing.T, id uint64) address.Address {
	a, err := address.NewIDAddress(id)
	require.NoError(t, err)
	return a
}

type harness struct {
	t   *testing.T
	ctx context.Context

	dstore  ds.Batching
	ledger  *ledger.Ledger
	journal *journal.MemJournal
	fwd     *Forwarder

	self, owner, tree, token, caller, beneficiary, stranger address.Address
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		t:           t,
		ctx:         context.Background(),
		dstore:      ds_sync.MutexWrap(ds.NewMapDatastore()),
		journal:     journal.NewMemJournal(nil),
		self:        newIDAddr(t, 100),
		owner:       newIDAddr(t, 101),
		tree:        newIDAddr(t, 102),
		caller:      newIDAddr(t, 103),
		beneficiary: newIDAddr(t, 104),
		stranger:    newIDAddr(t, 105),
		token:       newIDAddr(t, 1000),
	}
	h.ledger = ledger.New(h.dstore)

	fwd, err := New(h.ctx, h.self, h.owner, h.tree, h.ledger, WithDatastore(h.dstore), WithJournal(h.journal))
	require.NoError(t, err)
	h.fwd = fwd
	return h
}

func (h *harness) mint(to address.Address, amt int64) {
	require.NoError(h.t, h.ledger.Mint(h.ctx, h.token, to, big.NewInt(amt)))
}

func (h *harness) approve(owner address.Address, amt int64) {
	require.NoError(h.t, h.ledger.Approve(h.ctx, h.token, owner, h.self, big.NewInt(amt)))
}

func (h *harness) balance(holder address.Address) string {
	bal, err := h.ledger.BalanceOf(h.ctx, h.token, holder)
	require.NoError(h.t, err)
	return bal.String()
}

func TestConstruction(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, h.owner, h.fwd.Owner())
	require.Equal(t, h.tree, h.fwd.Tree())
	require.Equal(t, h.self, h.fwd.Address())

	for name, tc := range map[string]struct {
		self, owner, tree address.Address
	}{
		"undefined tree":    {h.self, h.owner, address.Undef},
		"undefined owner":   {h.self, address.Undef, h.tree},
		"undefined address": {address.Undef, h.owner, h.tree},
		"self as tree":      {h.self, h.owner, h.self},
		"self as owner":     {h.self, h.self, h.tree},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := New(h.ctx, tc.self, tc.owner, tc.tree, h.ledger)
			require.ErrorIs(t, err, ErrInvalidAddress)
		})
	}

	_, err := New(h.ctx, h.self, h.owner, h.tree, h.ledger, WithDatastore(h.dstore))
	require.ErrorIs(t, err, ErrAlreadyInitialized)

	_, err = Open(h.ctx, h.self, h.ledger)
	require.ErrorIs(t, err, ErrNotInitialized)

	_, err = Open(h.ctx, h.stranger, h.ledger, WithDatastore(h.dstore))
	require.Error(t, err)
}

// Scenario A
func TestSetTree(t *testing.T) {
	h := newHarness(t)
	t2 := newIDAddr(t, 200)

	require.NoError(t, h.fwd.SetTree(h.ctx, h.owner, t2))
	require.Equal(t, t2, h.fwd.Tree())

	err := h.fwd.SetTree(h.ctx, h.stranger, t2)
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Equal(t, t2, h.fwd.Tree())

	require.ErrorIs(t, h.fwd.SetTree(h.ctx, h.owner, address.Undef), ErrInvalidAddress)
	require.ErrorIs(t, h.fwd.SetTree(h.ctx, h.owner, h.self), ErrInvalidAddress)
	require.Equal(t, t2, h.fwd.Tree())

	evts := h.journal.EventsOf(h.fwd.evtType.treeChanged)
	require.Len(t, evts, 1)
	require.Equal(t, &TreeChangedEvt{Old: h.tree, New: t2}, evts[0].Data)
}

// P1
func TestNonOwnerCannotSweepOrConfigure(t *testing.T) {
	h := newHarness(t)
	h.mint(h.self, 50)

	_, err := h.fwd.Sweep(h.ctx, h.stranger, h.token)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = h.fwd.Sweep(h.ctx, h.tree, h.token)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = h.fwd.SweepMany(h.ctx, h.stranger, []address.Address{h.token})
	require.ErrorIs(t, err, ErrUnauthorized)
	require.ErrorIs(t, h.fwd.SetTree(h.ctx, h.stranger, h.stranger), ErrUnauthorized)
	require.ErrorIs(t, h.fwd.TransferOwnership(h.ctx, h.stranger, h.stranger), ErrUnauthorized)

	require.Equal(t, "50", h.balance(h.self))
	require.Equal(t, "0", h.balance(h.stranger))
	require.Equal(t, h.tree, h.fwd.Tree())
	require.Equal(t, h.owner, h.fwd.Owner())
	require.Empty(t, h.journal.Events())
}

// Scenario C and P3
func TestDistribute(t *testing.T) {
	h := newHarness(t)
	h.mint(h.caller, 300_000_000)
	h.approve(h.caller, 100_000_000)

	r, err := h.fwd.Distribute(h.ctx, h.caller, h.token, big.NewInt(100_000_000), h.beneficiary)
	require.NoError(t, err)

	require.Equal(t, "200000000", h.balance(h.caller))
	require.Equal(t, "100000000", h.balance(h.tree))
	require.Equal(t, "0", h.balance(h.self))

	require.Equal(t, uint64(0), r.Seq)
	require.Equal(t, h.beneficiary, r.Beneficiary)
	require.Equal(t, h.tree, r.Tree)
	require.Equal(t, h.caller, r.Caller)
	require.Equal(t, "100000000", r.Amount.String())

	receipts, err := h.fwd.Receipts(h.ctx)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	require.Equal(t, r.ID, receipts[0].ID)

	evts := h.journal.EventsOf(h.fwd.evtType.distributed)
	require.Len(t, evts, 1)
	evt := evts[0].Data.(*FundsDistributedEvt)
	require.Equal(t, r.ID, evt.Receipt)
	require.Equal(t, h.beneficiary, evt.Beneficiary)
	require.Equal(t, h.tree, evt.Tree)
}

func TestDistributeKeepsPreexistingCustody(t *testing.T) {
	h := newHarness(t)
	h.mint(h.self, 7) // stray tokens already in custody
	h.mint(h.caller, 10)
	h.approve(h.caller, 10)

	_, err := h.fwd.Distribute(h.ctx, h.caller, h.token, big.NewInt(10), h.beneficiary)
	require.NoError(t, err)

	require.Equal(t, "7", h.balance(h.self))
	require.Equal(t, "10", h.balance(h.tree))
}

// P2
func TestDistributeFollowsNewTree(t *testing.T) {
	h := newHarness(t)
	t2 := newIDAddr(t, 200)
	h.mint(h.caller, 20)
	h.approve(h.caller, 20)

	_, err := h.fwd.Distribute(h.ctx, h.caller, h.token, big.NewInt(5), h.beneficiary)
	require.NoError(t, err)

	require.NoError(t, h.fwd.SetTree(h.ctx, h.owner, t2))

	r, err := h.fwd.Distribute(h.ctx, h.caller, h.token, big.NewInt(15), h.beneficiary)
	require.NoError(t, err)
	require.Equal(t, t2, r.Tree)
	require.Equal(t, uint64(1), r.Seq)

	require.Equal(t, "5", h.balance(h.tree))
	require.Equal(t, "15", h.balance(t2))
	require.Equal(t, "0", h.balance(h.self))
}

func TestDistributeToCallerTree(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.fwd.SetTree(h.ctx, h.owner, h.caller))
	h.mint(h.caller, 10)
	h.approve(h.caller, 10)

	_, err := h.fwd.Distribute(h.ctx, h.caller, h.token, big.NewInt(10), h.beneficiary)
	require.NoError(t, err)
	require.Equal(t, "10", h.balance(h.caller))
	require.Equal(t, "0", h.balance(h.self))
}

// Scenario D
func TestDistributeWithoutApproval(t *testing.T) {
	h := newHarness(t)
	h.mint(h.caller, 100_000_000)

	_, err := h.fwd.Distribute(h.ctx, h.caller, h.token, big.NewInt(100_000_000), h.beneficiary)
	require.ErrorIs(t, err, ErrTransferRejected)

	require.Equal(t, "100000000", h.balance(h.caller))
	require.Equal(t, "0", h.balance(h.tree))
	require.Equal(t, "0", h.balance(h.self))
	require.Empty(t, h.journal.Events())

	receipts, err := h.fwd.Receipts(h.ctx)
	require.NoError(t, err)
	require.Empty(t, receipts)
}

func TestDistributeInsufficientBalance(t *testing.T) {
	h := newHarness(t)
	h.mint(h.caller, 5)
	h.approve(h.caller, 10)

	_, err := h.fwd.Distribute(h.ctx, h.caller, h.token, big.NewInt(10), h.beneficiary)
	require.ErrorIs(t, err, ErrTransferRejected)
	require.Equal(t, "5", h.balance(h.caller))
	require.Equal(t, "0", h.balance(h.tree))
}

func TestDistributeValidation(t *testing.T) {
	h := newHarness(t)
	h.mint(h.caller, 10)
	h.approve(h.caller, 10)

	_, err := h.fwd.Distribute(h.ctx, h.caller, h.token, big.Zero(), h.beneficiary)
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = h.fwd.Distribute(h.ctx, h.caller, h.token, big.NewInt(-1), h.beneficiary)
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = h.fwd.Distribute(h.ctx, h.caller, h.token, abi.TokenAmount{}, h.beneficiary)
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = h.fwd.Distribute(h.ctx, h.caller, h.token, big.NewInt(1), address.Undef)
	require.ErrorIs(t, err, ErrInvalidAddress)
	_, err = h.fwd.Distribute(h.ctx, h.caller, address.Undef, big.NewInt(1), h.beneficiary)
	require.ErrorIs(t, err, ErrInvalidAddress)
	_, err = h.fwd.Distribute(h.ctx, h.self, h.token, big.NewInt(1), h.beneficiary)
	require.ErrorIs(t, err, ErrInvalidAddress)

	require.Equal(t, "10", h.balance(h.caller))
}

// Scenario B and P4
func TestSweepStrayTokens(t *testing.T) {
	h := newHarness(t)
	h.mint(h.stranger, 100)

	// sent directly, bypassing Distribute
	ok, err := h.ledger.Transfer(h.ctx, h.token, h.stranger, h.self, big.NewInt(100))
	require.NoError(t, err)
	require.True(t, ok)

	amt, err := h.fwd.Sweep(h.ctx, h.owner, h.token)
	require.NoError(t, err)
	require.Equal(t, "100", amt.String())

	require.Equal(t, "0", h.balance(h.self))
	require.Equal(t, "100", h.balance(h.owner))

	evts := h.journal.EventsOf(h.fwd.evtType.swept)
	require.Len(t, evts, 1)
	evt := evts[0].Data.(*FundsSweptEvt)
	require.Equal(t, h.token, evt.Token)
	require.Equal(t, h.owner, evt.Recipient)
	require.Equal(t, "100", evt.Amount.String())
	require.Equal(t, "100", evt.Sent.String())
}

// P5
func TestSweepEmptyIsNoop(t *testing.T) {
	h := newHarness(t)
	h.mint(h.owner, 3)

	amt, err := h.fwd.Sweep(h.ctx, h.owner, h.token)
	require.NoError(t, err)
	require.True(t, amt.IsZero())
	require.Equal(t, "3", h.balance(h.owner))
	require.Empty(t, h.journal.EventsOf(h.fwd.evtType.swept))

	// and again
	amt, err = h.fwd.Sweep(h.ctx, h.owner, h.token)
	require.NoError(t, err)
	require.True(t, amt.IsZero())
}

func TestSweepMany(t *testing.T) {
	h := newHarness(t)
	other := newIDAddr(t, 1001)
	h.mint(h.self, 10)
	require.NoError(t, h.ledger.Mint(h.ctx, other, h.self, big.NewInt(20)))

	swept, err := h.fwd.SweepMany(h.ctx, h.owner, []address.Address{h.token, other, address.Undef, h.token})
	require.ErrorIs(t, err, ErrInvalidAddress)
	require.Len(t, swept, 2)
	require.Equal(t, "10", swept[h.token].String())
	require.Equal(t, "20", swept[other].String())

	bal, err := h.ledger.BalanceOf(h.ctx, other, h.owner)
	require.NoError(t, err)
	require.Equal(t, "20", bal.String())
}

func TestTransferOwnership(t *testing.T) {
	h := newHarness(t)
	newOwner := newIDAddr(t, 300)
	h.mint(h.self, 9)

	require.ErrorIs(t, h.fwd.TransferOwnership(h.ctx, h.owner, address.Undef), ErrInvalidAddress)
	require.ErrorIs(t, h.fwd.TransferOwnership(h.ctx, h.owner, h.self), ErrInvalidAddress)

	require.NoError(t, h.fwd.TransferOwnership(h.ctx, h.owner, newOwner))
	require.Equal(t, newOwner, h.fwd.Owner())

	_, err := h.fwd.Sweep(h.ctx, h.owner, h.token)
	require.ErrorIs(t, err, ErrUnauthorized)
	require.ErrorIs(t, h.fwd.SetTree(h.ctx, h.owner, h.stranger), ErrUnauthorized)

	amt, err := h.fwd.Sweep(h.ctx, newOwner, h.token)
	require.NoError(t, err)
	require.Equal(t, "9", amt.String())
	require.Equal(t, "9", h.balance(newOwner))

	evts := h.journal.EventsOf(h.fwd.evtType.ownerChanged)
	require.Len(t, evts, 1)
	require.Equal(t, &OwnerChangedEvt{Old: h.owner, New: newOwner}, evts[0].Data)
}

func TestOpenRestoresState(t *testing.T) {
	h := newHarness(t)
	t2 := newIDAddr(t, 200)
	h.mint(h.caller, 10)
	h.approve(h.caller, 10)

	_, err := h.fwd.Distribute(h.ctx, h.caller, h.token, big.NewInt(4), h.beneficiary)
	require.NoError(t, err)
	require.NoError(t, h.fwd.SetTree(h.ctx, h.owner, t2))

	reopened, err := Open(h.ctx, h.self, h.ledger, WithDatastore(h.dstore))
	require.NoError(t, err)
	require.Equal(t, h.owner, reopened.Owner())
	require.Equal(t, t2, reopened.Tree())

	r, err := reopened.Distribute(h.ctx, h.caller, h.token, big.NewInt(6), h.beneficiary)
	require.NoError(t, err)
	require.Equal(t, uint64(1), r.Seq)

	receipts, err := reopened.Receipts(h.ctx)
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	require.Equal(t, h.tree, receipts[0].Tree)
	require.Equal(t, t2, receipts[1].Tree)
}
