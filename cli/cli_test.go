package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
	ucli "github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/badgerdao/harvest-forwarder/forwarder"
	"github.com/badgerdao/harvest-forwarder/node/repo"
)

type testApp struct {
	t    *testing.T
	repo string
	buf  *bytes.Buffer
}

func newTestApp(t *testing.T) *testApp {
	return &testApp{
		t:    t,
		repo: filepath.Join(t.TempDir(), "repo"),
		buf:  &bytes.Buffer{},
	}
}

func (a *testApp) run(args ...string) (string, error) {
	app := &ucli.App{
		Name:     "harvest-forwarder",
		Flags:    []ucli.Flag{RepoFlag},
		Commands: Commands,
		Metadata: map[string]interface{}{
			metadataContext: context.Background(),
		},
		Writer:    a.buf,
		ErrWriter: a.buf,
	}

	a.buf.Reset()
	err := app.Run(append([]string{"harvest-forwarder", "--repo", a.repo}, args...))
	return a.buf.String(), err
}

func (a *testApp) mustRun(args ...string) string {
	out, err := a.run(args...)
	require.NoError(a.t, err, "running %v", args)
	return out
}

func TestForwarderFlow(t *testing.T) {
	app := newTestApp(t)

	out := app.mustRun("init", "--address", "f0100", "--owner", "f0101", "--tree", "f0102")
	require.Contains(t, out, "initialized forwarder f0100")

	_, err := app.run("init", "--address", "f0100", "--owner", "f0101", "--tree", "f0102")
	require.ErrorIs(t, err, repo.ErrRepoExists)

	app.mustRun("token", "mint", "f01000", "f0103", "100")
	app.mustRun("token", "approve", "--from", "f0103", "f01000", "60")

	out = app.mustRun("distribute", "--from", "f0103", "--beneficiary", "f0104", "f01000", "60")
	require.Contains(t, out, "distributed 60 to f0102")

	require.Equal(t, "60\n", app.mustRun("token", "balance", "f01000", "f0102"))
	require.Equal(t, "40\n", app.mustRun("token", "balance", "f01000", "f0103"))

	out = app.mustRun("receipts")
	require.Contains(t, out, "f0104")

	// without allowance nothing moves
	_, err = app.run("distribute", "--from", "f0103", "--beneficiary", "f0104", "f01000", "10")
	require.ErrorIs(t, err, forwarder.ErrTransferRejected)
	require.Equal(t, "40\n", app.mustRun("token", "balance", "f01000", "f0103"))

	// stray tokens are recovered by the owner only
	app.mustRun("token", "transfer", "--from", "f0103", "f01000", "f0100", "40")
	_, err = app.run("sweep", "--from", "f0103", "f01000")
	require.ErrorIs(t, err, forwarder.ErrUnauthorized)

	out = app.mustRun("sweep", "--from", "f0101", "f01000")
	require.Contains(t, out, "f01000: swept 40")
	require.Equal(t, "40\n", app.mustRun("token", "balance", "f01000", "f0101"))
	require.Equal(t, "0\n", app.mustRun("token", "balance", "f01000", "f0100"))

	app.mustRun("set-tree", "--from", "f0101", "f0200")
	out = app.mustRun("info")
	require.Contains(t, out, "Tree:    f0200")
	require.Contains(t, out, "Owner:   f0101")

	_, err = app.run("set-tree", "--from", "f0103", "f0300")
	require.ErrorIs(t, err, forwarder.ErrUnauthorized)

	app.mustRun("transfer-ownership", "--from", "f0101", "f0105")
	out = app.mustRun("info")
	require.Contains(t, out, "Owner:   f0105")

	jb, err := os.ReadFile(filepath.Join(app.repo, "journal", "forwarder-journal.ndjson"))
	require.NoError(t, err)
	require.Contains(t, string(jb), "funds_distributed")
	require.Contains(t, string(jb), "funds_swept")
	require.Contains(t, string(jb), "tree_changed")
	require.Contains(t, string(jb), "owner_changed")
}

func TestInitRequiresAddresses(t *testing.T) {
	app := newTestApp(t)

	_, err := app.run("init", "--address", "f0100", "--owner", "f0101")
	require.Error(t, err)
	var uerr *UsageErr
	require.ErrorAs(t, err, &uerr)

	_, err = app.run("info")
	require.ErrorIs(t, err, repo.ErrRepoNotInitialized)
}

func TestConfigDefault(t *testing.T) {
	app := newTestApp(t)

	out := app.mustRun("config", "default")
	require.Contains(t, out, "[Forwarder]")
	require.Contains(t, out, "#Enabled = true")

	out = app.mustRun("config", "default", "--no-comment")
	require.Contains(t, out, "Enabled = true")
	require.NotContains(t, out, "#Enabled")
}

func TestReportErr(t *testing.T) {
	t.Setenv("HARVEST_DEV", "")
	noColor := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = noColor })

	var buf bytes.Buffer
	require.Equal(t, 1, reportErr(&buf, xerrors.New("boom")))
	require.Equal(t, "ERROR: boom\n\n", buf.String())

	buf.Reset()
	require.Equal(t, 3, reportErr(&buf, xerrors.Errorf("wrapped: %w", ucli.Exit("bad state", 3))))
	require.Contains(t, buf.String(), "bad state")
}

func TestReqContextIsShared(t *testing.T) {
	cctx := ucli.NewContext(&ucli.App{}, nil, nil)

	ctx := ReqContext(cctx)
	require.NoError(t, ctx.Err())
	require.True(t, ctx == ReqContext(cctx))
}
