// Package fwdlog configures go-log levels for the forwarder processes.
package fwdlog

import (
	"os"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/badgerdao/harvest-forwarder/node/config"
)

func SetupLogLevels() {
	if _, set := os.LookupEnv("GOLOG_LOG_LEVEL"); !set {
		_ = logging.SetLogLevel("*", "INFO")
		_ = logging.SetLogLevel("ledger", "WARN")
	}
}

// ApplyConfig sets levels from the repo config. GOLOG_LOG_LEVEL, when set,
// still takes precedence over the global level.
func ApplyConfig(cfg config.Logging) error {
	if _, set := os.LookupEnv("GOLOG_LOG_LEVEL"); !set && cfg.Level != "" {
		if err := logging.SetLogLevel("*", cfg.Level); err != nil {
			return xerrors.Errorf("setting log level %q: %w", cfg.Level, err)
		}
	}

	for sys, lvl := range cfg.SubsystemLevels {
		if err := logging.SetLogLevel(sys, lvl); err != nil {
			return xerrors.Errorf("setting log level of %s to %q: %w", sys, lvl, err)
		}
	}
	return nil
}
