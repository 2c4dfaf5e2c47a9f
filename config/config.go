// Package config decodes the pagepackd TOML configuration file, in the
// style of aptutil's cacher.Config.
package config

const (
	defaultAddress      = ":8142"
	defaultLockTimeoutS = 15
	defaultLockPollMs   = 100
	defaultTimeoutS     = 30
	defaultLogLevel     = "info"
)

// Config is a struct to read TOML configuration.
//
// Use https://github.com/BurntSushi/toml as follows:
//
//	var config config.Config
//	md, err := toml.DecodeFile("/path/to/config.toml", &config)
//	if err != nil {
//	    ...
//	}
type Config struct {
	// Addr is the HTTP listen address. Default is ":8142".
	Addr string `toml:"addr"`

	// StateDir is the directory holding the metadata, pack and lock
	// subdirectories. Required, must be absolute.
	StateDir string `toml:"state_dir"`

	// LockTimeoutS bounds how long a rebuilder waits to acquire the
	// per-domain lock, in seconds. Default is 15.
	LockTimeoutS int `toml:"lock_timeout_s"`

	// LockPollMs is the poll interval while waiting for the domain
	// lock, in milliseconds. Default is 100.
	LockPollMs int `toml:"lock_poll_ms"`

	// DefaultTimeoutS is decoded and defaulted to 30, but pagepackd does
	// not read it: a client request that does not specify timeout_s
	// gets coordinator.DefaultTimeoutSeconds.
	DefaultTimeoutS int `toml:"default_timeout_s"`

	// LogLevel is one of critical/error/warning/info/debug.
	LogLevel string `toml:"log_level"`
}

// SetDefaults fills in zero-valued fields with their defaults.
func (c *Config) SetDefaults() {
	if c.Addr == "" {
		c.Addr = defaultAddress
	}
	if c.LockTimeoutS == 0 {
		c.LockTimeoutS = defaultLockTimeoutS
	}
	if c.LockPollMs == 0 {
		c.LockPollMs = defaultLockPollMs
	}
	if c.DefaultTimeoutS == 0 {
		c.DefaultTimeoutS = defaultTimeoutS
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
}
