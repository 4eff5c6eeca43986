package config

import (
	"encoding"
	"time"
)

// Default returns the default config
func Default() *Root {
	return &Root{
		Journal: Journal{
			Enabled:     true,
			MaxFileSize: 64 << 20,
			MaxBackups:  3,
		},
		Logging: Logging{
			Level:           "info",
			SubsystemLevels: map[string]string{},
		},
		Metrics: Metrics{
			ReportingPeriod: Duration(10 * time.Second),
		},
	}
}

var _ encoding.TextMarshaler = (*Duration)(nil)
var _ encoding.TextUnmarshaler = (*Duration)(nil)

// Duration is a wrapper type for time.Duration
// for decoding and encoding from/to TOML
type Duration time.Duration

// UnmarshalText implements interface for TOML decoding
func (dur *Duration) UnmarshalText(text []byte) error {
	d, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*dur = Duration(d)
	return err
}

func (dur Duration) MarshalText() ([]byte, error) {
	d := time.Duration(dur)
	return []byte(d.String()), nil
}
