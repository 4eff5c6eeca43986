package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"
)

// UsageErr marks an error caused by bad command-line input. RunApp follows it
// with the usage of the command that failed.
type UsageErr struct {
	cctx *cli.Context
	err  error
}

func (e *UsageErr) Error() string { return e.err.Error() }

func (e *UsageErr) Unwrap() error { return e.err }

// ShowHelp wraps err as a UsageErr of the command cctx belongs to.
func ShowHelp(cctx *cli.Context, err error) error {
	return &UsageErr{cctx: cctx, err: err}
}

// RunApp runs app against the process arguments and exits non-zero if it
// fails. Setting HARVEST_DEV logs the error with its frames instead.
func RunApp(app *cli.App) {
	err := app.Run(os.Args)
	if err == nil {
		return
	}

	w := app.ErrWriter
	if w == nil {
		w = os.Stderr
	}
	os.Exit(reportErr(w, err))
}

// reportErr prints err for the user and returns the process exit code.
func reportErr(w io.Writer, err error) int {
	if os.Getenv("HARVEST_DEV") != "" {
		log.Warnf("%+v", err)
	} else {
		_, _ = fmt.Fprintf(w, "%s %s\n\n", color.RedString("ERROR:"), err)
	}

	var uerr *UsageErr
	if xerrors.As(err, &uerr) {
		_ = cli.ShowCommandHelp(uerr.cctx, uerr.cctx.Command.Name)
	}

	var ec cli.ExitCoder
	if xerrors.As(err, &ec) && ec.ExitCode() != 0 {
		return ec.ExitCode()
	}
	return 1
}
