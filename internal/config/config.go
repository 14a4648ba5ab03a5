package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/thanhnp/wallet-ledger/internal/currency"
)

// Config represents the application configuration
type Config struct {
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
	Wallet WalletConfig `yaml:"wallet"`
	Chain  ChainConfig  `yaml:"chain"`
	Assets AssetsConfig `yaml:"assets"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// StoreConfig selects the durable store backend
type StoreConfig struct {
	Backend string `yaml:"backend"` // pebble or badger
	Path    string `yaml:"path"`    // empty keeps data in memory
}

// WalletConfig holds the seed and the hardened path prefix
type WalletConfig struct {
	Mnemonic   string `yaml:"mnemonic"`
	Passphrase string `yaml:"passphrase"`
	Purpose    uint32 `yaml:"purpose"`
	CoinType   uint32 `yaml:"coin_type"`
	Account    uint32 `yaml:"account"`
}

// ChainConfig represents the indexer connection
type ChainConfig struct {
	IndexerRPC        string  `yaml:"indexer_rpc"`
	IndexerWS         string  `yaml:"indexer_ws"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	MaxRetries        int     `yaml:"max_retries"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
}

// AssetsConfig lists the base asset and its token sub-ledgers
type AssetsConfig struct {
	Base   currency.Unit `yaml:"base"`
	Tokens []TokenConfig `yaml:"tokens"`
}

// TokenConfig describes one token sub-ledger
type TokenConfig struct {
	currency.Unit `yaml:",inline"`
	Contract      string `yaml:"contract"`
}

// LogConfig sets the log level
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from a YAML file and environment variables
func Load(path string) (*Config, error) {
	cfg := Default()

	// Load from YAML file if it exists
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables
	cfg.loadEnv()

	return cfg, nil
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Store: StoreConfig{
			Backend: "pebble",
			Path:    "./data/ledger",
		},
		Wallet: WalletConfig{
			Purpose:  44,
			CoinType: 60,
		},
		Chain: ChainConfig{
			RequestsPerSecond: 10,
			MaxRetries:        3,
			TimeoutSecs:       30,
		},
		Assets: AssetsConfig{
			Base: currency.Unit{Name: "eth", BaseName: "wei", Decimals: 18},
		},
		Log: LogConfig{Level: "info"},
	}
}

func (c *Config) loadEnv() {
	// Server config
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}

	// Store config
	if backend := os.Getenv("STORE_BACKEND"); backend != "" {
		c.Store.Backend = backend
	}
	if path, ok := os.LookupEnv("STORE_PATH"); ok {
		c.Store.Path = path
	}

	// Wallet config
	if mnemonic := os.Getenv("WALLET_MNEMONIC"); mnemonic != "" {
		c.Wallet.Mnemonic = mnemonic
	}
	if pass := os.Getenv("WALLET_PASSPHRASE"); pass != "" {
		c.Wallet.Passphrase = pass
	}

	// Chain config
	if rpc := os.Getenv("INDEXER_RPC"); rpc != "" {
		c.Chain.IndexerRPC = rpc
	}
	if ws := os.Getenv("INDEXER_WS"); ws != "" {
		c.Chain.IndexerWS = ws
	}
	if rps := os.Getenv("INDEXER_RPS"); rps != "" {
		if r, err := strconv.ParseFloat(rps, 64); err == nil {
			c.Chain.RequestsPerSecond = r
		}
	}
	if retries := os.Getenv("INDEXER_MAX_RETRIES"); retries != "" {
		if r, err := strconv.Atoi(retries); err == nil {
			c.Chain.MaxRetries = r
		}
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

// Validate rejects configurations the server cannot start with
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Wallet.Mnemonic) == "" {
		errs = append(errs, errors.New("wallet.mnemonic is required"))
	}
	if c.Chain.IndexerRPC == "" {
		errs = append(errs, errors.New("chain.indexer_rpc is required"))
	}
	switch strings.ToLower(c.Store.Backend) {
	case "pebble", "badger":
	default:
		errs = append(errs, fmt.Errorf("store.backend %q is not one of pebble, badger", c.Store.Backend))
	}
	if c.Assets.Base.Name == "" {
		errs = append(errs, errors.New("assets.base.name is required"))
	}

	seen := map[string]bool{strings.ToLower(c.Assets.Base.Name): true}
	for _, t := range c.Assets.Tokens {
		name := strings.ToLower(t.Name)
		switch {
		case name == "":
			errs = append(errs, errors.New("assets.tokens: name is required"))
		case seen[name]:
			errs = append(errs, fmt.Errorf("assets.tokens: duplicate asset %q", t.Name))
		case t.Contract == "":
			errs = append(errs, fmt.Errorf("assets.tokens: %s has no contract", t.Name))
		}
		seen[name] = true
	}

	return errors.Join(errs...)
}
