package config

import (
	"bytes"
	"io"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"github.com/mitchellh/go-homedir"
	"golang.org/x/xerrors"
)

// EnvPrefix prefixes environment overrides, e.g. HARVEST_FORWARDER_TREE.
const EnvPrefix = "HARVEST"

// FromFile loads config from a specified file overriding defaults specified in
// the def parameter. If file does not exist or is empty defaults are assumed.
func FromFile(path string, def *Root) (*Root, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, xerrors.Errorf("expanding config path: %w", err)
	}

	file, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
		if def == nil {
			return nil, xerrors.Errorf("couldn't load config: %w", err)
		}
		cfg := *def
		return &cfg, nil
	case err != nil:
		return nil, err
	}

	defer file.Close() //nolint:errcheck // The file is RO
	return FromReader(file, def)
}

// FromReader loads config from a reader instance, starting from def.
func FromReader(reader io.Reader, def *Root) (*Root, error) {
	cfg := Default()
	if def != nil {
		c := *def
		cfg = &c
	}

	md, err := toml.NewDecoder(reader).Decode(cfg)
	if err != nil {
		return nil, xerrors.Errorf("decoding config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, xerrors.Errorf("unknown config keys: %v", undecoded)
	}

	return cfg, nil
}

// ApplyEnv overrides cfg with HARVEST_<SECTION>_<FIELD> environment variables.
func ApplyEnv(cfg *Root) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return xerrors.Errorf("applying environment overrides: %w", err)
	}
	return nil
}

// Load reads path, falling back to defaults, and applies environment
// overrides on top.
func Load(path string) (*Root, error) {
	cfg, err := FromFile(path, Default())
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Encode renders cfg as TOML.
func Encode(cfg *Root) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := toml.NewEncoder(buf).Encode(cfg); err != nil {
		return nil, xerrors.Errorf("encoding config: %w", err)
	}
	return buf.Bytes(), nil
}

var valueLine = regexp.MustCompile(`(?m)^(\s*)([^\s#\[].*)$`)

// ConfigComment renders cfg as TOML with every value commented out, so the
// file documents the defaults without pinning them.
func ConfigComment(cfg *Root) ([]byte, error) {
	b, err := Encode(cfg)
	if err != nil {
		return nil, err
	}

	b = valueLine.ReplaceAll(b, []byte("$1#$2"))
	return append([]byte("# Default config:\n"), b...), nil
}
