package repo

import (
	"context"

	"github.com/ipfs/go-datastore"
	"golang.org/x/xerrors"

	"github.com/badgerdao/harvest-forwarder/node/config"
)

var (
	ErrRepoExists         = xerrors.New("repo exists")
	ErrRepoNotInitialized = xerrors.New("repo is not initialized")
	ErrRepoAlreadyLocked  = xerrors.New("repo is already locked")
	ErrClosedRepo         = xerrors.New("repo is no longer open")
)

type Repo interface {
	// Lock locks the repo for exclusive use.
	Lock() (LockedRepo, error)
}

type LockedRepo interface {
	// Close closes repo and removes lock.
	Close() error

	// Path returns the repo root.
	Path() string

	// Datastore returns the datastore holding forwarder and ledger state.
	Datastore(ctx context.Context) (datastore.Batching, error)

	// Config returns the repo config with environment overrides applied.
	Config() (*config.Root, error)

	// SetConfig mutates the on-disk config.
	SetConfig(func(*config.Root)) error
}
