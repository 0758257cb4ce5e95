package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/tolelom/kombat/core"
	"github.com/tolelom/kombat/crypto"
)

// GenesisConfig describes the chain's initial state. When Admin is set the
// global settlement config is bootstrapped at genesis and the initialize
// transaction can no longer succeed.
type GenesisConfig struct {
	ChainID string              `json:"chain_id" env:"KOMBAT_CHAIN_ID"`
	Alloc   map[string]uint64   `json:"alloc"` // pubkey hex → initial balance
	Admin   string              `json:"admin,omitempty" env:"KOMBAT_GENESIS_ADMIN"`
	Hasher  string              `json:"hasher,omitempty" env:"KOMBAT_HASHER"`
	Mode    core.SettlementMode `json:"settlement_mode,omitempty" env:"KOMBAT_SETTLEMENT_MODE"`
}

// Duration is a time.Duration that reads and writes as "2s" in JSON and env.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Config holds all node configuration. Values come from DefaultConfig, then
// the JSON file, then KOMBAT_* environment variables.
type Config struct {
	NodeID        string        `json:"node_id" env:"KOMBAT_NODE_ID"`
	DataDir       string        `json:"data_dir" env:"KOMBAT_DATA_DIR"`
	RPCPort       int           `json:"rpc_port" env:"KOMBAT_RPC_PORT"`
	RPCAuthToken  string        `json:"rpc_auth_token,omitempty" env:"KOMBAT_RPC_AUTH_TOKEN"`
	CORSOrigins   []string      `json:"cors_origins,omitempty" env:"KOMBAT_CORS_ORIGINS" envSeparator:","`
	BlockInterval Duration      `json:"block_interval" env:"KOMBAT_BLOCK_INTERVAL"`
	MaxBlockTxs   int           `json:"max_block_txs" env:"KOMBAT_MAX_BLOCK_TXS"` // max transactions per block; 0 → 500
	LogLevel      string        `json:"log_level" env:"KOMBAT_LOG_LEVEL"`
	Validators    []string      `json:"validators" env:"KOMBAT_VALIDATORS" envSeparator:","` // authorised proposer pubkey hexes
	Genesis       GenesisConfig `json:"genesis"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:        "node0",
		DataDir:       "./data",
		RPCPort:       8545,
		BlockInterval: Duration{2 * time.Second},
		MaxBlockTxs:   500,
		LogLevel:      "info",
		Genesis: GenesisConfig{
			ChainID: "kombat-dev",
			Alloc:   map[string]uint64{},
			Hasher:  crypto.HasherXORFold,
			Mode:    core.ModeCompat,
		},
	}
}

// LoadDotEnv loads KEY=VALUE pairs from files into the process environment
// without overriding variables already set. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load builds the config from defaults, the JSON file at path (skipped if it
// does not exist) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, err
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the node cannot run with.
func (c *Config) Validate() error {
	if c.Genesis.ChainID == "" {
		return errors.New("config: genesis chain_id is required")
	}
	if c.BlockInterval.Duration <= 0 {
		return fmt.Errorf("config: block_interval must be positive, got %s", c.BlockInterval)
	}
	if _, err := crypto.HasherByName(c.Genesis.Hasher); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if !c.Genesis.Mode.Valid() {
		return fmt.Errorf("config: unknown settlement_mode %q", c.Genesis.Mode)
	}
	if c.Genesis.Admin != "" {
		if _, err := crypto.PubKeyFromHex(c.Genesis.Admin); err != nil {
			return fmt.Errorf("config: genesis admin: %w", err)
		}
	}
	for addr := range c.Genesis.Alloc {
		if crypto.IsDerivedAddress(addr) {
			return fmt.Errorf("config: alloc to derived address %s", addr)
		}
	}
	for _, v := range c.Validators {
		if _, err := crypto.PubKeyFromHex(v); err != nil {
			return fmt.Errorf("config: validator %s: %w", v, err)
		}
	}
	return nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
