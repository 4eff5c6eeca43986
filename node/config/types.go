package config

// // NOTE: ONLY PUT STRUCT DEFINITIONS IN THIS FILE

// Root is the forwarder node config, stored as config.toml in the repo.
type Root struct {
	Forwarder Forwarder
	Journal   Journal
	Datastore Datastore
	Logging   Logging
	Metrics   Metrics
}

// Forwarder holds the addresses the forwarder is created with. They are only
// read by `init`; afterwards the persisted forwarder state is authoritative.
type Forwarder struct {
	// Address the forwarder holds custody at on the token ledger.
	Address string
	// Owner allowed to change the tree and sweep stray tokens.
	Owner string
	// Tree receiving distributed funds.
	Tree string
}

type Journal struct {
	// Enabled writes forwarder events to an ndjson journal in the repo.
	Enabled bool
	// DisabledEvents is a comma separated list of system:event pairs that
	// are not recorded, e.g. "forwarder:funds_swept".
	DisabledEvents string
	// MaxFileSize is the size in bytes at which the journal file is rolled.
	MaxFileSize int64
	// MaxBackups is the number of rolled journal files kept.
	MaxBackups int
}

type Datastore struct {
	// NoSync skips fsync on leveldb writes. Faster, but a crash can lose the
	// most recent state.
	NoSync bool
}

// Logging is the logging system config
type Logging struct {
	// Level applied to every subsystem not listed in SubsystemLevels.
	Level string
	// SubsystemLevels specify per-subsystem log levels
	SubsystemLevels map[string]string
}

type Metrics struct {
	// ReportingPeriod is how often opencensus views are flushed to exporters.
	ReportingPeriod Duration
}
