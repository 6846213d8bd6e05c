package config

// Log configures structured logging.
type Log struct {
	Level string `toml:"Level"`
	// File enables rotated file output in addition to stdout.
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// RPC configures the node HTTP API.
type RPC struct {
	Address               string  `toml:"Address"`
	RequestsPerSecond     float64 `toml:"RequestsPerSecond"`
	Burst                 int     `toml:"Burst"`
	ReadHeaderTimeoutSecs int     `toml:"ReadHeaderTimeoutSecs"`
	WriteTimeoutSecs      int     `toml:"WriteTimeoutSecs"`
	MaxBodyBytes          int64   `toml:"MaxBodyBytes"`
	// AdminSecretEnv names the environment variable holding the HMAC secret
	// for admin bearer tokens. Admin routes are disabled when it is unset.
	AdminSecretEnv string `toml:"AdminSecretEnv"`
	AdminIssuer    string `toml:"AdminIssuer"`
}

// Telemetry configures OpenTelemetry export. An empty endpoint disables it.
type Telemetry struct {
	OTLPEndpoint string `toml:"OTLPEndpoint"`
	Insecure     bool   `toml:"Insecure"`
	Metrics      bool   `toml:"Metrics"`
}

// Indexer configures the off-chain order index. An empty driver disables it.
type Indexer struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}
