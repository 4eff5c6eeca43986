package cli

import (
	"github.com/urfave/cli/v2"
)

var Commands = []*cli.Command{
	InitCmd,
	ConfigCmd,
	InfoCmd,
	SetTreeCmd,
	TransferOwnershipCmd,
	DistributeCmd,
	SweepCmd,
	ReceiptsCmd,
	TokenCmd,
}

var RepoFlag = &cli.StringFlag{
	Name:    "repo",
	EnvVars: []string{"HARVEST_FORWARDER_PATH"},
	Value:   "~/.harvest-forwarder",
}
