package forwarder

import (
	"context"
	"testing"

	"github.com/google/uuid"
	ds "github.com/ipfs/go-datastore"
	ds_sync "github.com/ipfs/go-datastore/sync"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/go-state-types/big"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStore(ds_sync.MutexWrap(ds.NewMapDatastore()))

	_, err := s.Load(ctx)
	require.ErrorIs(t, err, ErrNotInitialized)

	st := &State{Self: newIDAddr(t, 1), Owner: newIDAddr(t, 2), Tree: newIDAddr(t, 3)}
	require.NoError(t, s.Save(ctx, st))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, st, loaded)

	// receipts come back in sequence order, including past the 10th
	for i := uint64(0); i < 12; i++ {
		st.NextReceipt = i + 1
		r := &Receipt{
			ID:          uuid.New(),
			Seq:         i,
			Token:       newIDAddr(t, 1000),
			Caller:      newIDAddr(t, 4),
			Beneficiary: newIDAddr(t, 5),
			Tree:        st.Tree,
			Amount:      big.NewInt(int64(i + 1)),
		}
		require.NoError(t, s.PutReceipt(ctx, st, r))
	}

	receipts, err := s.Receipts(ctx)
	require.NoError(t, err)
	require.Len(t, receipts, 12)
	for i, r := range receipts {
		require.Equal(t, uint64(i), r.Seq)
		require.Equal(t, big.NewInt(int64(i+1)).String(), r.Amount.String())
	}

	loaded, err = s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(12), loaded.NextReceipt)
}
