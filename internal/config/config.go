package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// defaultGenesisBlock is the deployment block of the staking contract;
// nothing relevant exists before it.
const defaultGenesisBlock uint64 = 19191172

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL         string
	Contract       string
	GenesisBlock   uint64
	BatchSize      uint64
	Confirmations  uint64
	ConfirmPoll    time.Duration
	ConfirmTimeout time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	PGDSN          string
	Archive        string
	PrivateKey     string
	LogLevel       string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STAKING")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("genesis-block", defaultGenesisBlock)
	v.SetDefault("batch-size", uint64(2000))
	v.SetDefault("confirmations", uint64(1))
	v.SetDefault("confirm-poll", 2*time.Second)
	v.SetDefault("confirm-timeout", 2*time.Minute)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
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
		RPCURL:         v.GetString("rpc"),
		Contract:       v.GetString("contract"),
		GenesisBlock:   v.GetUint64("genesis-block"),
		BatchSize:      v.GetUint64("batch-size"),
		Confirmations:  v.GetUint64("confirmations"),
		ConfirmPoll:    v.GetDuration("confirm-poll"),
		ConfirmTimeout: v.GetDuration("confirm-timeout"),
		MaxRetries:     v.GetInt("max-retries"),
		RetryBackoff:   v.GetDuration("retry-backoff"),
		PGDSN:          v.GetString("pg-dsn"),
		Archive:        v.GetString("archive"),
		PrivateKey:     v.GetString("private-key"),
		LogLevel:       v.GetString("log-level"),
	}

	return cfg, nil
}
