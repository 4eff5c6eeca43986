package main

import (
	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"

	"github.com/badgerdao/harvest-forwarder/build"
	lcli "github.com/badgerdao/harvest-forwarder/cli"
	"github.com/badgerdao/harvest-forwarder/lib/fwdlog"
)

var log = logging.Logger("main")

func main() {
	fwdlog.SetupLogLevels()

	app := &cli.App{
		Name:                 "harvest-forwarder",
		Usage:                "Custodial token forwarder",
		Version:              build.UserVersion(),
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			lcli.RepoFlag,
		},
		Before: func(cctx *cli.Context) error {
			log.Debugw("starting", "version", build.UserVersion(), "repo", cctx.String("repo"))
			return nil
		},
		Commands: lcli.Commands,
	}

	lcli.RunApp(app)
}
