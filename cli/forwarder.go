package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-address"
)

var InfoCmd = &cli.Command{
	Name:  "info",
	Usage: "Print forwarder owner and tree",
	Action: func(cctx *cli.Context) error {
		ctx := ReqContext(cctx)

		n, err := GetNode(ctx, cctx)
		if err != nil {
			return err
		}
		defer n.Close() //nolint:errcheck

		fwd, err := n.Forwarder(ctx)
		if err != nil {
			return err
		}

		w := cctx.App.Writer
		fmt.Fprintf(w, "Address: %s\n", fwd.Address()) // nolint:errcheck
		fmt.Fprintf(w, "Owner:   %s\n", fwd.Owner())   // nolint:errcheck
		fmt.Fprintf(w, "Tree:    %s\n", fwd.Tree())    // nolint:errcheck
		return nil
	},
}

var SetTreeCmd = &cli.Command{
	Name:      "set-tree",
	Usage:     "Change the address receiving distributed tokens",
	ArgsUsage: "[tree address]",
	Flags:     []cli.Flag{fromFlag},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return ShowHelp(cctx, xerrors.New("expected exactly one argument"))
		}
		ctx := ReqContext(cctx)

		caller, err := parseAddr(cctx, "caller", cctx.String("from"))
		if err != nil {
			return err
		}
		tree, err := parseAddr(cctx, "tree", cctx.Args().First())
		if err != nil {
			return err
		}

		n, err := GetNode(ctx, cctx)
		if err != nil {
			return err
		}
		defer n.Close() //nolint:errcheck

		fwd, err := n.Forwarder(ctx)
		if err != nil {
			return err
		}
		if err := fwd.SetTree(ctx, caller, tree); err != nil {
			return err
		}

		fmt.Fprintf(cctx.App.Writer, "tree set to %s\n", tree) // nolint:errcheck
		return nil
	},
}

var TransferOwnershipCmd = &cli.Command{
	Name:      "transfer-ownership",
	Usage:     "Hand forwarder ownership to another address",
	ArgsUsage: "[new owner address]",
	Flags:     []cli.Flag{fromFlag},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return ShowHelp(cctx, xerrors.New("expected exactly one argument"))
		}
		ctx := ReqContext(cctx)

		caller, err := parseAddr(cctx, "caller", cctx.String("from"))
		if err != nil {
			return err
		}
		owner, err := parseAddr(cctx, "owner", cctx.Args().First())
		if err != nil {
			return err
		}

		n, err := GetNode(ctx, cctx)
		if err != nil {
			return err
		}
		defer n.Close() //nolint:errcheck

		fwd, err := n.Forwarder(ctx)
		if err != nil {
			return err
		}
		if err := fwd.TransferOwnership(ctx, caller, owner); err != nil {
			return err
		}

		fmt.Fprintf(cctx.App.Writer, "owner set to %s\n", owner) // nolint:errcheck
		return nil
	},
}

var DistributeCmd = &cli.Command{
	Name:      "distribute",
	Usage:     "Forward tokens from the caller to the tree",
	ArgsUsage: "[token address] [amount]",
	Flags: []cli.Flag{
		fromFlag,
		&cli.StringFlag{
			Name:     "beneficiary",
			Usage:    "address the distribution is recorded for",
			Required: true,
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 2 {
			return ShowHelp(cctx, xerrors.New("expected two arguments"))
		}
		ctx := ReqContext(cctx)

		caller, err := parseAddr(cctx, "caller", cctx.String("from"))
		if err != nil {
			return err
		}
		beneficiary, err := parseAddr(cctx, "beneficiary", cctx.String("beneficiary"))
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

		n, err := GetNode(ctx, cctx)
		if err != nil {
			return err
		}
		defer n.Close() //nolint:errcheck

		fwd, err := n.Forwarder(ctx)
		if err != nil {
			return err
		}
		r, err := fwd.Distribute(ctx, caller, token, amount, beneficiary)
		if err != nil {
			return err
		}

		fmt.Fprintf(cctx.App.Writer, "distributed %s to %s (receipt %s)\n", r.Amount, r.Tree, r.ID) // nolint:errcheck
		return nil
	},
}

var SweepCmd = &cli.Command{
	Name:      "sweep",
	Usage:     "Transfer the forwarder's balance of tokens to the owner",
	ArgsUsage: "[token address]...",
	Flags:     []cli.Flag{fromFlag},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() == 0 {
			return ShowHelp(cctx, xerrors.New("expected at least one token"))
		}
		ctx := ReqContext(cctx)

		caller, err := parseAddr(cctx, "caller", cctx.String("from"))
		if err != nil {
			return err
		}
		var tokens []address.Address
		for _, arg := range cctx.Args().Slice() {
			token, err := parseAddr(cctx, "token", arg)
			if err != nil {
				return err
			}
			tokens = append(tokens, token)
		}

		n, err := GetNode(ctx, cctx)
		if err != nil {
			return err
		}
		defer n.Close() //nolint:errcheck

		fwd, err := n.Forwarder(ctx)
		if err != nil {
			return err
		}

		swept, serr := fwd.SweepMany(ctx, caller, tokens)
		for _, token := range tokens {
			if amt, ok := swept[token]; ok {
				fmt.Fprintf(cctx.App.Writer, "%s: swept %s\n", token, amt) // nolint:errcheck
			}
		}
		return serr
	},
}

var ReceiptsCmd = &cli.Command{
	Name:  "receipts",
	Usage: "List distribution receipts",
	Action: func(cctx *cli.Context) error {
		ctx := ReqContext(cctx)

		n, err := GetNode(ctx, cctx)
		if err != nil {
			return err
		}
		defer n.Close() //nolint:errcheck

		fwd, err := n.Forwarder(ctx)
		if err != nil {
			return err
		}
		receipts, err := fwd.Receipts(ctx)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cctx.App.Writer, 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "Seq\tToken\tAmount\tCaller\tBeneficiary\tTree\tTime") // nolint:errcheck
		for _, r := range receipts {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", // nolint:errcheck
				r.Seq, r.Token, r.Amount, r.Caller, r.Beneficiary, r.Tree, humanize.Time(r.Timestamp))
		}
		return tw.Flush()
	},
}
