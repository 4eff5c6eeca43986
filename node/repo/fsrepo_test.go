package repo

import (
	"context"
	"testing"

	"github.com/ipfs/go-datastore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/badgerdao/harvest-forwarder/node/config"
)

func genFsRepo(t *testing.T) *FsRepo {
	repo, err := NewFS(t.TempDir())
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Forwarder.Tree = "f0102"
	require.NoError(t, repo.Init(cfg))
	return repo
}

func TestFsBasic(t *testing.T) {
	repo := genFsRepo(t)

	require.ErrorIs(t, repo.Init(nil), ErrRepoExists)

	lrepo, err := repo.Lock()
	require.NoError(t, err, "should be able to lock once")
	require.NotNil(t, lrepo)

	{
		lrepo2, err := repo.Lock()
		if assert.Error(t, err) {
			assert.Equal(t, ErrRepoAlreadyLocked, err)
		}
		assert.Nil(t, lrepo2, "with error the locked repo should be nil")
	}

	cfg, err := lrepo.Config()
	require.NoError(t, err)
	assert.Equal(t, "f0102", cfg.Forwarder.Tree)

	require.NoError(t, lrepo.SetConfig(func(c *config.Root) {
		c.Forwarder.Owner = "f0101"
	}))
	cfg, err = lrepo.Config()
	require.NoError(t, err)
	assert.Equal(t, "f0101", cfg.Forwarder.Owner)
	assert.Equal(t, "f0102", cfg.Forwarder.Tree)

	err = lrepo.Close()
	assert.NoError(t, err, "should be able to unlock")
	assert.Equal(t, ErrClosedRepo, lrepo.Close())

	lrepo, err = repo.Lock()
	assert.NoError(t, err, "should be able to relock")
	assert.NoError(t, lrepo.Close())
}

func TestDatastorePersists(t *testing.T) {
	ctx := context.Background()
	repo := genFsRepo(t)
	key := datastore.NewKey("/forwarder/state")

	lrepo, err := repo.Lock()
	require.NoError(t, err)

	ds, err := lrepo.Datastore(ctx)
	require.NoError(t, err)
	require.NoError(t, ds.Put(ctx, key, []byte("hello")))

	ds2, err := lrepo.Datastore(ctx)
	require.NoError(t, err)
	require.Equal(t, ds, ds2, "datastore is opened once")
	require.NoError(t, lrepo.Close())

	lrepo, err = repo.Lock()
	require.NoError(t, err)
	defer lrepo.Close() //nolint:errcheck

	ds, err = lrepo.Datastore(ctx)
	require.NoError(t, err)
	v, err := ds.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "hello", string(v))
}

func TestLockUninitialized(t *testing.T) {
	repo, err := NewFS(t.TempDir())
	require.NoError(t, err)

	exists, err := repo.Exists()
	require.NoError(t, err)
	require.False(t, exists)

	_, err = repo.Lock()
	require.ErrorIs(t, err, ErrRepoNotInitialized)
}
