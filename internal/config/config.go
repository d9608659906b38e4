package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Networks the monitor can point at.
const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"
	NetworkLocal   = "local"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL          string
	ContractAddress string
	Network         string
	PGDSN           string
	StartBlock      uint64
	BatchSize       uint64
	LiveBuffer      int
	MaxRetries      int
	RetryDelay      time.Duration
	MetricsAddr     string
	AuditPath       string
	Currency        string
	LogLevel        string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AGROMART")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("batch-size", uint64(2000))
	v.SetDefault("live-buffer", 1024)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-delay", 5*time.Second)
	v.SetDefault("metrics-addr", ":9090")
	v.SetDefault("audit", "./data/events.jsonl")
	v.SetDefault("currency", "USD")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:          v.GetString("rpc"),
		ContractAddress: v.GetString("contract-address"),
		Network:         v.GetString("network"),
		PGDSN:           v.GetString("pg-dsn"),
		StartBlock:      v.GetUint64("start-block"),
		BatchSize:       v.GetUint64("batch-size"),
		LiveBuffer:      v.GetInt("live-buffer"),
		MaxRetries:      v.GetInt("max-retries"),
		RetryDelay:      v.GetDuration("retry-delay"),
		MetricsAddr:     v.GetString("metrics-addr"),
		AuditPath:       v.GetString("audit"),
		Currency:        v.GetString("currency"),
		LogLevel:        v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate rejects a startup with missing required values. There are no
// silent defaults for the chain endpoint, the contract, the network, or
// the database.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if c.ContractAddress == "" {
		return fmt.Errorf("contract address is required")
	}
	switch c.Network {
	case NetworkMainnet, NetworkTestnet, NetworkLocal:
	case "":
		return fmt.Errorf("network is required")
	default:
		return fmt.Errorf("unknown network %q (want %s, %s, or %s)", c.Network, NetworkMainnet, NetworkTestnet, NetworkLocal)
	}
	if c.PGDSN == "" {
		return fmt.Errorf("pg-dsn is required")
	}
	return nil
}
