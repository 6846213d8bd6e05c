package config

import (
	"fmt"
	"strings"
)

var (
	knownBackends = map[string]bool{"": true, "memory": true, "leveldb": true, "bolt": true}
	knownDrivers  = map[string]bool{"": true, "sqlite": true, "postgres": true}
	knownLevels   = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}
)

// Validate rejects configurations the node cannot start with.
func Validate(c *Config) error {
	if c.ChainID == 0 {
		return fmt.Errorf("config: ChainID must be non-zero")
	}
	if !knownBackends[c.StorageBackend] {
		return fmt.Errorf("config: unknown StorageBackend %q", c.StorageBackend)
	}
	if c.StorageBackend != "" && c.StorageBackend != "memory" && strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir required for %s backend", c.StorageBackend)
	}
	if !knownLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	if strings.TrimSpace(c.RPC.Address) == "" {
		return fmt.Errorf("rpc: Address required")
	}
	if c.RPC.RequestsPerSecond < 0 || c.RPC.Burst < 0 {
		return fmt.Errorf("rpc: rate limits must be non-negative")
	}
	if c.RPC.RequestsPerSecond > 0 && c.RPC.Burst == 0 {
		return fmt.Errorf("rpc: Burst required when RequestsPerSecond is set")
	}
	if !knownDrivers[c.Indexer.Driver] {
		return fmt.Errorf("indexer: unknown Driver %q", c.Indexer.Driver)
	}
	if c.Indexer.Driver != "" && strings.TrimSpace(c.Indexer.DSN) == "" {
		return fmt.Errorf("indexer: DSN required for %s", c.Indexer.Driver)
	}
	return nil
}
