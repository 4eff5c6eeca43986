package cli

import (
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
)

func parseAddr(cctx *cli.Context, what, s string) (address.Address, error) {
	if s == "" {
		return address.Undef, ShowHelp(cctx, xerrors.Errorf("%s address is required", what))
	}
	a, err := address.NewFromString(s)
	if err != nil {
		return address.Undef, xerrors.Errorf("parsing %s address %q: %w", what, s, err)
	}
	return a, nil
}

func parseAmount(s string) (abi.TokenAmount, error) {
	amt, err := big.FromString(s)
	if err != nil {
		return big.Zero(), xerrors.Errorf("parsing amount %q: %w", s, err)
	}
	return amt, nil
}

var fromFlag = &cli.StringFlag{
	Name:     "from",
	Usage:    "address the operation is performed on behalf of",
	Required: true,
}
