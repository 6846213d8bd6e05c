package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ChainID        uint64   `toml:"ChainID"`
	Environment    string   `toml:"Environment"`
	DataDir        string   `toml:"DataDir"`
	StorageBackend string   `toml:"StorageBackend"`
	GenesisFile    string   `toml:"GenesisFile"`
	Pauses         []string `toml:"Pauses"`

	Log       Log       `toml:"log"`
	RPC       RPC       `toml:"rpc"`
	Telemetry Telemetry `toml:"telemetry"`
	Indexer   Indexer   `toml:"indexer"`
}

// Default returns the configuration written on first start.
func Default() *Config {
	return &Config{
		ChainID:        1337,
		Environment:    "local",
		DataDir:        "./market-data",
		StorageBackend: "leveldb",
		GenesisFile:    "genesis.yaml",
		Pauses:         []string{},
		Log: Log{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		RPC: RPC{
			Address:               ":8080",
			RequestsPerSecond:     20,
			Burst:                 40,
			ReadHeaderTimeoutSecs: 5,
			WriteTimeoutSecs:      15,
			MaxBodyBytes:          1 << 20,
			AdminSecretEnv:        "MARKET_ADMIN_SECRET",
		},
		Indexer: Indexer{},
	}
}

// Load loads the configuration from the given path. A missing file is created
// with defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := persist(path, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.StorageBackend = strings.ToLower(strings.TrimSpace(c.StorageBackend))
	c.Indexer.Driver = strings.ToLower(strings.TrimSpace(c.Indexer.Driver))
	if c.Pauses == nil {
		c.Pauses = []string{}
	}
	for i, p := range c.Pauses {
		c.Pauses[i] = strings.ToLower(strings.TrimSpace(p))
	}
}

// PauseMap returns the paused modules keyed by name.
func (c *Config) PauseMap() map[string]bool {
	out := make(map[string]bool, len(c.Pauses))
	for _, p := range c.Pauses {
		if p != "" {
			out[p] = true
		}
	}
	return out
}

// StatePath is where the persistent backend keeps its files.
func (c *Config) StatePath() string {
	switch c.StorageBackend {
	case "bolt":
		return filepath.Join(c.DataDir, "state.db")
	default:
		return filepath.Join(c.DataDir, "state")
	}
}

// ResolveGenesis returns the genesis path relative to the config file.
func (c *Config) ResolveGenesis(configPath string) string {
	if c.GenesisFile == "" || filepath.IsAbs(c.GenesisFile) {
		return c.GenesisFile
	}
	return filepath.Join(filepath.Dir(configPath), c.GenesisFile)
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
