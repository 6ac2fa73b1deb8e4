package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"crypto-checkout/pkg/store"
)

// Config holds the application configuration
type Config struct {
	HermesBaseURL    string
	SolanaRPCURL     string
	Commitment       string
	PriceMaxAge      time.Duration
	PriceCacheTTL    time.Duration
	PollInterval     time.Duration
	StorePath        string
	ListenAddr       string
	WebhookURL       string
	WalletPrivateKey string
}

var globalConfig *Config

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	viper.SetConfigName(".crypto-checkout")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")

	// Set default values
	viper.SetDefault("hermes_base_url", "https://hermes.pyth.network/api")
	viper.SetDefault("solana_rpc_url", "https://api.mainnet-beta.solana.com")
	viper.SetDefault("commitment", "confirmed")
	viper.SetDefault("price_max_age", "60s")
	viper.SetDefault("price_cache_ttl", "10s")
	viper.SetDefault("poll_interval", "2s")
	viper.SetDefault("store_path", defaultStorePath())
	viper.SetDefault("listen_addr", ":8080")

	// Read from environment variables
	viper.SetEnvPrefix("CHECKOUT")
	viper.AutomaticEnv()

	// Read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		HermesBaseURL:    viper.GetString("hermes_base_url"),
		SolanaRPCURL:     viper.GetString("solana_rpc_url"),
		Commitment:       viper.GetString("commitment"),
		PriceMaxAge:      viper.GetDuration("price_max_age"),
		PriceCacheTTL:    viper.GetDuration("price_cache_ttl"),
		PollInterval:     viper.GetDuration("poll_interval"),
		StorePath:        viper.GetString("store_path"),
		ListenAddr:       viper.GetString("listen_addr"),
		WebhookURL:       viper.GetString("webhook_url"),
		WalletPrivateKey: viper.GetString("wallet_private_key"),
	}

	if cfg.PriceMaxAge <= 0 {
		return nil, fmt.Errorf("price_max_age must be positive")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll_interval must be positive")
	}

	globalConfig = cfg
	return cfg, nil
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return store.DefaultFileName
	}
	return filepath.Join(home, store.DefaultFileName)
}

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		return cfg
	}
	return globalConfig
}

// Set updates the global configuration
func Set(cfg *Config) {
	globalConfig = cfg
}
