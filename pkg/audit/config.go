package audit

// Config controls what gets recorded and for how long.
type Config struct {
	Enabled       bool `yaml:"enabled"`
	LogDenied     bool `yaml:"log_denied"`
	RetentionDays int  `yaml:"retention_days"`
}

// DefaultConfig keeps ninety days of events and records denied
// attempts alongside successful mutations.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		LogDenied:     true,
		RetentionDays: 90,
	}
}
