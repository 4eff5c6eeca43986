package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/badgerdao/harvest-forwarder/forwarder"
	"github.com/badgerdao/harvest-forwarder/node/config"
	"github.com/badgerdao/harvest-forwarder/node/repo"
)

var InitCmd = &cli.Command{
	Name:  "init",
	Usage: "Initialize a forwarder repo",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "address",
			Usage: "address the forwarder holds custody at",
		},
		&cli.StringFlag{
			Name:  "owner",
			Usage: "address allowed to configure the forwarder and sweep tokens",
		},
		&cli.StringFlag{
			Name:  "tree",
			Usage: "address receiving distributed tokens",
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := ReqContext(cctx)

		r, err := repo.NewFS(cctx.String("repo"))
		if err != nil {
			return xerrors.Errorf("opening fs repo: %w", err)
		}

		cfg := config.Default()
		if err := config.ApplyEnv(cfg); err != nil {
			return err
		}
		for flag, field := range map[string]*string{
			"address": &cfg.Forwarder.Address,
			"owner":   &cfg.Forwarder.Owner,
			"tree":    &cfg.Forwarder.Tree,
		} {
			if cctx.IsSet(flag) {
				*field = cctx.String(flag)
			}
		}

		self, err := parseAddr(cctx, "forwarder", cfg.Forwarder.Address)
		if err != nil {
			return err
		}
		owner, err := parseAddr(cctx, "owner", cfg.Forwarder.Owner)
		if err != nil {
			return err
		}
		tree, err := parseAddr(cctx, "tree", cfg.Forwarder.Tree)
		if err != nil {
			return err
		}

		if err := r.Init(cfg); err != nil {
			return xerrors.Errorf("initializing repo: %w", err)
		}

		lr, err := r.Lock()
		if err != nil {
			return xerrors.Errorf("locking repo: %w", err)
		}
		n, err := openNode(ctx, lr)
		if err != nil {
			_ = lr.Close()
			return err
		}
		defer n.Close() //nolint:errcheck

		ds, err := lr.Datastore(ctx)
		if err != nil {
			return err
		}

		if _, err := forwarder.New(ctx, self, owner, tree, n.Ledger, forwarder.WithDatastore(ds), forwarder.WithJournal(n.Journal)); err != nil {
			return xerrors.Errorf("creating forwarder: %w", err)
		}

		fmt.Fprintf(cctx.App.Writer, "initialized forwarder %s at %s\n", self, r.Path()) // nolint:errcheck
		return nil
	},
}
