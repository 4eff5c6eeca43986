// Package forwarder implements a custodial token forwarder. Anyone may
// distribute tokens through it to the configured tree address; the owner may
// reconfigure the tree and sweep tokens left in the forwarder's custody.
package forwarder

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ipfs/go-datastore"
	ds_sync "github.com/ipfs/go-datastore/sync"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-address"

	"github.com/badgerdao/harvest-forwarder/journal"
	"github.com/badgerdao/harvest-forwarder/ledger"
)

var log = logging.Logger("forwarder")

type Forwarder struct {
	self    address.Address
	ledger  ledger.TokenLedger
	store   *Store
	journal journal.Journal
	evtType fwdEvtTypes

	// lk guards state
	lk    sync.RWMutex
	state State

	// entered is set while a distribute or sweep is in flight
	entered atomic.Bool
}

type options struct {
	ds      datastore.Batching
	journal journal.Journal
}

type Option func(*options)

// WithDatastore persists forwarder state to ds. Without it state is kept in
// an in-memory datastore.
func WithDatastore(ds datastore.Batching) Option {
	return func(o *options) {
		o.ds = ds
	}
}

// WithJournal records forwarder events to j.
func WithJournal(j journal.Journal) Option {
	return func(o *options) {
		o.journal = j
	}
}

func buildOptions(opts []Option) *options {
	o := &options{journal: journal.J}
	for _, opt := range opts {
		opt(o)
	}
	if o.ds == nil {
		o.ds = ds_sync.MutexWrap(datastore.NewMapDatastore())
	}
	if o.journal == nil {
		o.journal = journal.NilJournal()
	}
	return o
}

// New creates a forwarder holding funds at self, owned by owner and
// forwarding to tree, and persists its initial state. It fails if the
// datastore already holds forwarder state.
func New(ctx context.Context, self, owner, tree address.Address, tl ledger.TokenLedger, opts ...Option) (*Forwarder, error) {
	if self == address.Undef {
		return nil, xerrors.Errorf("forwarder address: %w", ErrInvalidAddress)
	}
	if owner == address.Undef || owner == self {
		return nil, xerrors.Errorf("owner %s: %w", owner, ErrInvalidAddress)
	}
	if tree == address.Undef || tree == self {
		return nil, xerrors.Errorf("tree %s: %w", tree, ErrInvalidAddress)
	}
	if tl == nil {
		return nil, xerrors.New("token ledger is required")
	}

	o := buildOptions(opts)
	store := NewStore(o.ds)

	_, err := store.Load(ctx)
	switch {
	case err == nil:
		return nil, ErrAlreadyInitialized
	case !xerrors.Is(err, ErrNotInitialized):
		return nil, err
	}

	st := State{Self: self, Owner: owner, Tree: tree}
	if err := store.Save(ctx, &st); err != nil {
		return nil, err
	}

	log.Infow("forwarder initialized", "address", self, "owner", owner, "tree", tree)
	return newForwarder(st, tl, store, o.journal), nil
}

// Open loads a forwarder previously created with New from the datastore.
func Open(ctx context.Context, self address.Address, tl ledger.TokenLedger, opts ...Option) (*Forwarder, error) {
	if tl == nil {
		return nil, xerrors.New("token ledger is required")
	}

	o := buildOptions(opts)
	store := NewStore(o.ds)

	st, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if st.Self != self {
		return nil, xerrors.Errorf("stored forwarder address %s does not match %s", st.Self, self)
	}

	return newForwarder(*st, tl, store, o.journal), nil
}

func newForwarder(st State, tl ledger.TokenLedger, store *Store, j journal.Journal) *Forwarder {
	return &Forwarder{
		self:    st.Self,
		ledger:  tl,
		store:   store,
		journal: j,
		evtType: registerEvtTypes(j),
		state:   st,
	}
}

// Address returns the holder address of the forwarder on the token ledger.
func (f *Forwarder) Address() address.Address {
	return f.self
}

func (f *Forwarder) Owner() address.Address {
	f.lk.RLock()
	defer f.lk.RUnlock()
	return f.state.Owner
}

func (f *Forwarder) Tree() address.Address {
	f.lk.RLock()
	defer f.lk.RUnlock()
	return f.state.Tree
}

// SetTree points all subsequent distributions at newTree. Distributions
// already in flight keep forwarding to the tree they started with.
func (f *Forwarder) SetTree(ctx context.Context, caller, newTree address.Address) (err error) {
	start := time.Now()
	defer func() { f.observe(ctx, opSetTree, address.Undef, start, err) }()

	old, err := f.updateState(ctx, caller, newTree, func(st *State) *address.Address { return &st.Tree })
	if err != nil {
		return xerrors.Errorf("setting tree: %w", err)
	}

	log.Infow("tree changed", "old", old, "new", newTree)
	journal.MaybeRecordEvent(f.journal, f.evtType.treeChanged, func() interface{} {
		return &TreeChangedEvt{Old: old, New: newTree}
	})
	return nil
}

// TransferOwnership hands the owner privileges to newOwner.
func (f *Forwarder) TransferOwnership(ctx context.Context, caller, newOwner address.Address) (err error) {
	start := time.Now()
	defer func() { f.observe(ctx, opTransferOwnership, address.Undef, start, err) }()

	old, err := f.updateState(ctx, caller, newOwner, func(st *State) *address.Address { return &st.Owner })
	if err != nil {
		return xerrors.Errorf("transferring ownership: %w", err)
	}

	log.Infow("owner changed", "old", old, "new", newOwner)
	journal.MaybeRecordEvent(f.journal, f.evtType.ownerChanged, func() interface{} {
		return &OwnerChangedEvt{Old: old, New: newOwner}
	})
	return nil
}

// updateState replaces the address field selected by field with addr on
// behalf of the owner. The new state is persisted before it becomes visible.
func (f *Forwarder) updateState(ctx context.Context, caller, addr address.Address, field func(*State) *address.Address) (address.Address, error) {
	f.lk.Lock()
	defer f.lk.Unlock()

	if caller != f.state.Owner {
		return address.Undef, ErrUnauthorized
	}
	if addr == address.Undef || addr == f.self {
		return address.Undef, xerrors.Errorf("%s: %w", addr, ErrInvalidAddress)
	}

	next := f.state
	old := *field(&next)
	*field(&next) = addr

	if err := f.store.Save(ctx, &next); err != nil {
		return address.Undef, err
	}
	f.state = next
	return old, nil
}

// Receipts lists the receipts of all completed distributions.
func (f *Forwarder) Receipts(ctx context.Context) ([]*Receipt, error) {
	return f.store.Receipts(ctx)
}
