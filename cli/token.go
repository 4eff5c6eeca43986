package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/badgerdao/harvest-forwarder/ledger"
)

var TokenCmd = &cli.Command{
	Name:  "token",
	Usage: "Interact with the local token ledger",
	Subcommands: []*cli.Command{
		tokenRegisterCmd,
		tokenMintCmd,
		tokenApproveCmd,
		tokenTransferCmd,
		tokenBalanceCmd,
	},
}

var tokenRegisterCmd = &cli.Command{
	Name:      "register",
	Usage:     "Configure non-standard token behaviour",
	ArgsUsage: "[token address]",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "silent-failure",
			Usage: "rejected transfers return false instead of failing",
		},
		&cli.Uint64Flag{
			Name:  "fee-bps",
			Usage: "basis points burned from every transfer",
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return ShowHelp(cctx, xerrors.New("expected exactly one argument"))
		}
		token, err := parseAddr(cctx, "token", cctx.Args().First())
		if err != nil {
			return err
		}

		ctx := ReqContext(cctx)
		n, err := GetNode(ctx, cctx)
		if err != nil {
			return err
		}
		defer n.Close() //nolint:errcheck

		return n.Ledger.RegisterToken(ctx, token, ledger.TokenConfig{
			SilentFailure:  cctx.Bool("silent-failure"),
			FeeBasisPoints: cctx.Uint64("fee-bps"),
		})
	},
}

var tokenMintCmd = &cli.Command{
	Name:      "mint",
	Usage:     "Create tokens",
	ArgsUsage: "[token address] [recipient address] [amount]",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 3 {
			return ShowHelp(cctx, xerrors.New("expected three arguments"))
		}
		token, err := parseAddr(cctx, "token", cctx.Args().Get(0))
		if err != nil {
			return err
		}
		to, err := parseAddr(cctx, "recipient", cctx.Args().Get(1))
		if err != nil {
			return err
		}
		amount, err := parseAmount(cctx.Args().Get(2))
		if err != nil {
			return err
		}

		ctx := ReqContext(cctx)
		n, err := GetNode(ctx, cctx)
		if err != nil {
			return err
		}
		defer n.Close() //nolint:errcheck

		return n.Ledger.Mint(ctx, token, to, amount)
	},
}

var tokenApproveCmd = &cli.Command{
	Name:      "approve",
	Usage:     "Allow the forwarder to pull tokens from --from",
	ArgsUsage: "[token address] [amount]",
	Flags:     []cli.Flag{fromFlag},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 2 {
			return ShowHelp(cctx, xerrors.New("expected two arguments"))
		}
		owner, err := parseAddr(cctx, "owner", cctx.String("from"))
		if err != nil {
			return err
		}
		token, err := parseAddr(cctx, "token", cctx.Args().Get(0))
		if err != nil {
			return err
		}
		amount, err := parseAmount(cctx.Args().Get(1))
		if err != nil {
			return err
		}

		ctx := ReqContext(cctx)
		n, err := GetNode(ctx, cctx)
		if err != nil {
			return err
		}
		defer n.Close() //nolint:errcheck

		spender, err := parseAddr(cctx, "forwarder", n.Config.Forwarder.Address)
		if err != nil {
			return err
		}
		return n.Ledger.Approve(ctx, token, owner, spender, amount)
	},
}

var tokenTransferCmd = &cli.Command{
	Name:      "transfer",
	Usage:     "Transfer tokens directly, bypassing the forwarder",
	ArgsUsage: "[token address] [recipient address] [amount]",
	Flags:     []cli.Flag{fromFlag},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 3 {
			return ShowHelp(cctx, xerrors.New("expected three arguments"))
		}
		from, err := parseAddr(cctx, "sender", cctx.String("from"))
		if err != nil {
			return err
		}
		token, err := parseAddr(cctx, "token", cctx.Args().Get(0))
		if err != nil {
			return err
		}
		to, err := parseAddr(cctx, "recipient", cctx.Args().Get(1))
		if err != nil {
			return err
		}
		amount, err := parseAmount(cctx.Args().Get(2))
		if err != nil {
			return err
		}

		ctx := ReqContext(cctx)
		n, err := GetNode(ctx, cctx)
		if err != nil {
			return err
		}
		defer n.Close() //nolint:errcheck

		ok, err := n.Ledger.Transfer(ctx, token, from, to, amount)
		if err != nil {
			return err
		}
		if !ok {
			return xerrors.New("token rejected the transfer")
		}
		return nil
	},
}

var tokenBalanceCmd = &cli.Command{
	Name:      "balance",
	Usage:     "Print the token balance of an address",
	ArgsUsage: "[token address] [holder address]",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 2 {
			return ShowHelp(cctx, xerrors.New("expected two arguments"))
		}
		token, err := parseAddr(cctx, "token", cctx.Args().Get(0))
		if err != nil {
			return err
		}
		holder, err := parseAddr(cctx, "holder", cctx.Args().Get(1))
		if err != nil {
			return err
		}

		ctx := ReqContext(cctx)
		n, err := GetNode(ctx, cctx)
		if err != nil {
			return err
		}
		defer n.Close() //nolint:errcheck

		bal, err := n.Ledger.BalanceOf(ctx, token, holder)
		if err != nil {
			return err
		}
		fmt.Fprintln(cctx.App.Writer, bal) // nolint:errcheck
		return nil
	},
}
