package forwarder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/namespace"
	"github.com/ipfs/go-datastore/query"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
)

var (
	stateKey       = datastore.NewKey("/state")
	receiptsPrefix = datastore.NewKey("/receipts")
)

// State is the persisted configuration of a forwarder.
type State struct {
	Self  address.Address
	Owner address.Address
	Tree  address.Address

	NextReceipt uint64
}

// Receipt records a completed distribution, including the beneficiary the
// funds were forwarded on behalf of.
type Receipt struct {
	ID  uuid.UUID
	Seq uint64

	Token       address.Address
	Caller      address.Address
	Beneficiary address.Address
	Tree        address.Address
	Amount      abi.TokenAmount

	Timestamp time.Time
}

// Store persists forwarder state and distribution receipts.
type Store struct {
	ds datastore.Batching
}

func NewStore(ds datastore.Batching) *Store {
	return &Store{
		ds: namespace.Wrap(ds, datastore.NewKey("/forwarder")),
	}
}

func receiptKey(seq uint64) datastore.Key {
	// zero padded so that key order is sequence order
	return receiptsPrefix.ChildString(fmt.Sprintf("%020d", seq))
}

// Load returns the persisted state, or ErrNotInitialized.
func (s *Store) Load(ctx context.Context) (*State, error) {
	b, err := s.ds.Get(ctx, stateKey)
	if xerrors.Is(err, datastore.ErrNotFound) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, xerrors.Errorf("loading forwarder state: %w", err)
	}

	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, xerrors.Errorf("decoding forwarder state: %w", err)
	}
	return &st, nil
}

func (s *Store) Save(ctx context.Context, st *State) error {
	b, err := json.Marshal(st)
	if err != nil {
		return xerrors.Errorf("encoding forwarder state: %w", err)
	}
	if err := s.ds.Put(ctx, stateKey, b); err != nil {
		return xerrors.Errorf("saving forwarder state: %w", err)
	}
	return nil
}

// PutReceipt stores r together with st, which carries the advanced receipt
// sequence, in a single batch.
func (s *Store) PutReceipt(ctx context.Context, st *State, r *Receipt) error {
	sb, err := json.Marshal(st)
	if err != nil {
		return xerrors.Errorf("encoding forwarder state: %w", err)
	}
	rb, err := json.Marshal(r)
	if err != nil {
		return xerrors.Errorf("encoding receipt: %w", err)
	}

	b, err := s.ds.Batch(ctx)
	if err != nil {
		return err
	}
	if err := b.Put(ctx, receiptKey(r.Seq), rb); err != nil {
		return err
	}
	if err := b.Put(ctx, stateKey, sb); err != nil {
		return err
	}
	if err := b.Commit(ctx); err != nil {
		return xerrors.Errorf("committing receipt %d: %w", r.Seq, err)
	}
	return nil
}

// Receipts lists stored receipts in sequence order.
func (s *Store) Receipts(ctx context.Context) ([]*Receipt, error) {
	res, err := s.ds.Query(ctx, query.Query{
		Prefix: receiptsPrefix.String(),
		Orders: []query.Order{query.OrderByKey{}},
	})
	if err != nil {
		return nil, xerrors.Errorf("querying receipts: %w", err)
	}
	defer res.Close() //nolint:errcheck

	entries, err := res.Rest()
	if err != nil {
		return nil, xerrors.Errorf("reading receipts: %w", err)
	}

	out := make([]*Receipt, 0, len(entries))
	for _, e := range entries {
		var rc Receipt
		if err := json.Unmarshal(e.Value, &rc); err != nil {
			return nil, xerrors.Errorf("decoding receipt %s: %w", e.Key, err)
		}
		out = append(out, &rc)
	}
	return out, nil
}
