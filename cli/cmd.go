package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
	"go.opencensus.io/stats/view"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-address"

	"github.com/badgerdao/harvest-forwarder/forwarder"
	"github.com/badgerdao/harvest-forwarder/journal"
	"github.com/badgerdao/harvest-forwarder/journal/fsjournal"
	"github.com/badgerdao/harvest-forwarder/ledger"
	"github.com/badgerdao/harvest-forwarder/lib/fwdlog"
	"github.com/badgerdao/harvest-forwarder/metrics"
	"github.com/badgerdao/harvest-forwarder/node/config"
	"github.com/badgerdao/harvest-forwarder/node/repo"
)

var log = logging.Logger("cli")

const metadataContext = "context"

// Node is an opened repo together with the ledger and forwarder it holds.
type Node struct {
	Repo    repo.LockedRepo
	Config  *config.Root
	Ledger  *ledger.Ledger
	Journal journal.Journal
}

// Close closes the journal and releases the repo lock.
func (n *Node) Close() error {
	if err := n.Journal.Close(); err != nil {
		log.Warnw("closing journal", "error", err)
	}
	return n.Repo.Close()
}

// Forwarder opens the forwarder initialized in this repo.
func (n *Node) Forwarder(ctx context.Context) (*forwarder.Forwarder, error) {
	self, err := address.NewFromString(n.Config.Forwarder.Address)
	if err != nil {
		return nil, xerrors.Errorf("parsing forwarder address from config: %w", err)
	}

	ds, err := n.Repo.Datastore(ctx)
	if err != nil {
		return nil, err
	}

	return forwarder.Open(ctx, self, n.Ledger, forwarder.WithDatastore(ds), forwarder.WithJournal(n.Journal))
}

// GetNode locks the repo selected by --repo and opens its datastore and
// journal. The caller must Close the returned node.
func GetNode(ctx context.Context, cctx *cli.Context) (*Node, error) {
	r, err := repo.NewFS(cctx.String("repo"))
	if err != nil {
		return nil, xerrors.Errorf("opening fs repo: %w", err)
	}

	lr, err := r.Lock()
	if err != nil {
		return nil, xerrors.Errorf("locking repo: %w", err)
	}

	n, err := openNode(ctx, lr)
	if err != nil {
		_ = lr.Close()
		return nil, err
	}
	return n, nil
}

func openNode(ctx context.Context, lr repo.LockedRepo) (*Node, error) {
	cfg, err := lr.Config()
	if err != nil {
		return nil, xerrors.Errorf("loading config: %w", err)
	}

	if err := fwdlog.ApplyConfig(cfg.Logging); err != nil {
		return nil, err
	}

	if err := view.Register(metrics.DefaultViews...); err != nil {
		return nil, xerrors.Errorf("registering metric views: %w", err)
	}
	if cfg.Metrics.ReportingPeriod > 0 {
		view.SetReportingPeriod(time.Duration(cfg.Metrics.ReportingPeriod))
	}
	if err := metrics.RecordInfo(ctx); err != nil {
		log.Warnw("recording build info", "error", err)
	}

	ds, err := lr.Datastore(ctx)
	if err != nil {
		return nil, err
	}

	j := journal.NilJournal()
	if cfg.Journal.Enabled {
		disabled := journal.EnvDisabledEvents()
		if cfg.Journal.DisabledEvents != "" {
			if disabled, err = journal.ParseDisabledEvents(cfg.Journal.DisabledEvents); err != nil {
				return nil, xerrors.Errorf("parsing disabled journal events: %w", err)
			}
		}

		j, err = fsjournal.OpenFSJournalPath(lr.Path(), disabled, cfg.Journal.MaxFileSize, cfg.Journal.MaxBackups)
		if err != nil {
			return nil, xerrors.Errorf("opening journal: %w", err)
		}
	}
	journal.J = j

	return &Node{
		Repo:    lr,
		Config:  cfg,
		Ledger:  ledger.New(ds),
		Journal: j,
	}, nil
}

// ReqContext returns the context commands run under. It is cancelled on
// SIGINT or SIGTERM and shared by every call within one app run.
func ReqContext(cctx *cli.Context) context.Context {
	if uctx, ok := cctx.App.Metadata[metadataContext]; ok {
		// anything else stored under this key is a programming error
		return uctx.(context.Context)
	}

	ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	if cctx.App.Metadata == nil {
		cctx.App.Metadata = map[string]interface{}{}
	}
	cctx.App.Metadata[metadataContext] = ctx
	return ctx
}
