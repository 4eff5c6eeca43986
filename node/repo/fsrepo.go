package repo

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/ipfs/go-datastore"
	levelds "github.com/ipfs/go-ds-leveldb"
	measure "github.com/ipfs/go-ds-measure"
	fslock "github.com/ipfs/go-fs-lock"
	logging "github.com/ipfs/go-log/v2"
	"github.com/mitchellh/go-homedir"
	ldbopts "github.com/syndtr/goleveldb/leveldb/opt"
	"golang.org/x/xerrors"

	"github.com/badgerdao/harvest-forwarder/node/config"
)

const (
	fsConfig    = "config.toml"
	fsDatastore = "datastore"
	fsLock      = "repo.lock"
)

var log = logging.Logger("repo")

// FsRepo is struct for repo, use NewFS to create
type FsRepo struct {
	path       string
	configPath string
}

var _ Repo = &FsRepo{}

// NewFS creates a repo instance based on a path on file system
func NewFS(path string) (*FsRepo, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}

	return &FsRepo{
		path:       path,
		configPath: filepath.Join(path, fsConfig),
	}, nil
}

func (fsr *FsRepo) Path() string {
	return fsr.path
}

func (fsr *FsRepo) SetConfigPath(cfgPath string) {
	fsr.configPath = cfgPath
}

// Exists reports whether the repo has been initialized.
func (fsr *FsRepo) Exists() (bool, error) {
	_, err := os.Stat(filepath.Join(fsr.path, fsDatastore))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// Init creates the repo layout and writes cfg as its config. It returns
// ErrRepoExists if the repo is already initialized.
func (fsr *FsRepo) Init(cfg *config.Root) error {
	exist, err := fsr.Exists()
	if err != nil {
		return err
	}
	if exist {
		return ErrRepoExists
	}

	log.Infof("Initializing repo at '%s'", fsr.path)
	if err := os.MkdirAll(fsr.path, 0755); err != nil && !os.IsExist(err) { //nolint: gosec
		return err
	}

	if err := fsr.initConfig(cfg); err != nil {
		return xerrors.Errorf("init config: %w", err)
	}

	return os.Mkdir(filepath.Join(fsr.path, fsDatastore), 0755)
}

func (fsr *FsRepo) initConfig(cfg *config.Root) error {
	_, err := os.Stat(fsr.configPath)
	if err == nil {
		// exists
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	if cfg == nil {
		cfg = config.Default()
	}
	b, err := config.Encode(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(fsr.configPath, b, 0644)
}

// Lock acquires exclusive lock on this repo
func (fsr *FsRepo) Lock() (LockedRepo, error) {
	exist, err := fsr.Exists()
	if err != nil {
		return nil, err
	}
	if !exist {
		return nil, ErrRepoNotInitialized
	}

	locked, err := fslock.Locked(fsr.path, fsLock)
	if err != nil {
		return nil, xerrors.Errorf("could not check lock status: %w", err)
	}
	if locked {
		return nil, ErrRepoAlreadyLocked
	}

	closer, err := fslock.Lock(fsr.path, fsLock)
	if err != nil {
		return nil, xerrors.Errorf("could not lock the repo: %w", err)
	}
	return &fsLockedRepo{
		path:       fsr.path,
		configPath: fsr.configPath,
		closer:     closer,
	}, nil
}

type fsLockedRepo struct {
	path       string
	configPath string
	closer     io.Closer

	ds     datastore.Batching
	dsErr  error
	dsOnce sync.Once

	configLk sync.Mutex
}

func (fsr *fsLockedRepo) Path() string {
	return fsr.path
}

func (fsr *fsLockedRepo) Close() error {
	if err := fsr.stillValid(); err != nil {
		return err
	}

	if fsr.ds != nil {
		if err := fsr.ds.Close(); err != nil {
			return xerrors.Errorf("could not close datastore: %w", err)
		}
	}

	err := fsr.closer.Close()
	fsr.closer = nil
	return err
}

// Datastore opens the leveldb datastore on first use.
func (fsr *fsLockedRepo) Datastore(_ context.Context) (datastore.Batching, error) {
	if err := fsr.stillValid(); err != nil {
		return nil, err
	}

	fsr.dsOnce.Do(func() {
		cfg, err := fsr.Config()
		if err != nil {
			fsr.dsErr = err
			return
		}

		ds, err := levelds.NewDatastore(fsr.join(fsDatastore), &levelds.Options{
			Compression: ldbopts.NoCompression,
			NoSync:      cfg.Datastore.NoSync,
			Strict:      ldbopts.StrictAll,
		})
		if err != nil {
			fsr.dsErr = xerrors.Errorf("open leveldb: %w", err)
			return
		}
		fsr.ds = measure.New("fsrepo."+fsDatastore+".", ds)
	})

	return fsr.ds, fsr.dsErr
}

func (fsr *fsLockedRepo) join(paths ...string) string {
	return filepath.Join(append([]string{fsr.path}, paths...)...)
}

func (fsr *fsLockedRepo) stillValid() error {
	if fsr.closer == nil {
		return ErrClosedRepo
	}
	return nil
}

func (fsr *fsLockedRepo) Config() (*config.Root, error) {
	fsr.configLk.Lock()
	defer fsr.configLk.Unlock()

	return config.Load(fsr.configPath)
}

func (fsr *fsLockedRepo) SetConfig(c func(*config.Root)) error {
	if err := fsr.stillValid(); err != nil {
		return err
	}

	fsr.configLk.Lock()
	defer fsr.configLk.Unlock()

	// environment overrides are deliberately not written back
	cfg, err := config.FromFile(fsr.configPath, config.Default())
	if err != nil {
		return err
	}

	// mutate in-memory representation of config
	c(cfg)

	b, err := config.Encode(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(fsr.configPath, b, 0644)
}
