package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/badgerdao/harvest-forwarder/node/config"
)

var ConfigCmd = &cli.Command{
	Name:  "config",
	Usage: "Manage forwarder config",
	Subcommands: []*cli.Command{
		configDefaultCmd,
	},
}

var configDefaultCmd = &cli.Command{
	Name:  "default",
	Usage: "Print default forwarder config",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "no-comment",
			Usage: "don't comment default values",
		},
	},
	Action: func(cctx *cli.Context) error {
		c := config.Default()

		var (
			cb  []byte
			err error
		)
		if cctx.Bool("no-comment") {
			cb, err = config.Encode(c)
		} else {
			cb, err = config.ConfigComment(c)
		}
		if err != nil {
			return err
		}

		fmt.Fprintln(cctx.App.Writer, string(cb)) // nolint:errcheck
		return nil
	},
}
