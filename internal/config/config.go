// Package config defines the top-level configuration for the simulated
// exchange backend and provides validation helpers.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SIMEX_* environment variables.
type Config struct {
	Chain     ChainConfig     `toml:"chain"`
	Deployer  DeployerConfig  `toml:"deployer"`
	MarketAPI MarketAPIConfig `toml:"market_api"`
	Wizard    WizardConfig    `toml:"wizard"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ChainConfig holds the JSON-RPC endpoint of the simulation chain.
type ChainConfig struct {
	RPCURL      string   `toml:"rpc_url"`
	ChainID     int64    `toml:"chain_id"`
	ReceiptPoll duration `toml:"receipt_poll"`
	CallTimeout duration `toml:"call_timeout"`
}

// DeployerConfig holds the key that signs deployment and collateral
// transactions, and the compiled contract used for deployments.
type DeployerConfig struct {
	PrivateKey       string   `toml:"private_key"`
	EncryptedKeyPath string   `toml:"encrypted_key_path"`
	KeyPassword      string   `toml:"key_password"`
	BytecodePath     string   `toml:"bytecode_path"`
	ABIPath          string   `toml:"abi_path"`
	GasLimit         uint64   `toml:"gas_limit"`
	DeployTimeout    duration `toml:"deploy_timeout"`
}

// MarketAPIConfig holds the order book / oracle REST API endpoint and its
// credentials.
type MarketAPIConfig struct {
	BaseURL    string   `toml:"base_url"`
	ApiKey     string   `toml:"api_key"`
	Secret     string   `toml:"secret"`
	Passphrase string   `toml:"passphrase"`
	Timeout    duration `toml:"timeout"`
}

// WizardConfig holds deployment wizard session parameters.
type WizardConfig struct {
	SessionTTL     duration `toml:"session_ttl"`
	LockTTL        duration `toml:"lock_ttl"`
	SuggestionTTL  duration `toml:"suggestion_ttl"`
	OrderbookTTL   duration `toml:"orderbook_ttl"`
	WalletPoll     duration `toml:"wallet_poll"`
	DefaultAddress string   `toml:"default_wallet_address"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	ApiKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:      "http://localhost:8545",
			ChainID:     1337,
			ReceiptPoll: duration{time.Second},
			CallTimeout: duration{15 * time.Second},
		},
		Deployer: DeployerConfig{
			GasLimit:      6_000_000,
			DeployTimeout: duration{2 * time.Minute},
		},
		MarketAPI: MarketAPIConfig{
			BaseURL: "http://localhost:8080",
			Timeout: duration{10 * time.Second},
		},
		Wizard: WizardConfig{
			SessionTTL:    duration{24 * time.Hour},
			LockTTL:       duration{10 * time.Second},
			SuggestionTTL: duration{5 * time.Minute},
			OrderbookTTL:  duration{5 * time.Second},
			WalletPoll:    duration{15 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "simex",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "simex-contracts",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"deploy_succeeded", "deploy_failed", "collateral_moved", "error"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":  true,
	"deploy": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var hexKey = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{64}$`)

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, deploy)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chain
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	if c.Chain.ReceiptPoll.Duration <= 0 {
		errs = append(errs, "chain: receipt_poll must be > 0")
	}

	// Deployer: one key source is required to sign anything.
	if c.Deployer.PrivateKey == "" && c.Deployer.EncryptedKeyPath == "" {
		errs = append(errs, "deployer: either private_key or encrypted_key_path must be set")
	}
	if c.Deployer.PrivateKey != "" && !hexKey.MatchString(c.Deployer.PrivateKey) {
		errs = append(errs, "deployer: private_key must be 32 bytes of hex")
	}
	if c.Deployer.EncryptedKeyPath != "" && c.Deployer.KeyPassword == "" {
		errs = append(errs, "deployer: key_password is required when encrypted_key_path is set")
	}
	if c.Deployer.BytecodePath == "" {
		errs = append(errs, "deployer: bytecode_path must not be empty")
	}
	if c.Deployer.GasLimit == 0 {
		errs = append(errs, "deployer: gas_limit must be > 0")
	}

	// Market API: key, secret and passphrase must be set together, or all empty.
	if c.MarketAPI.BaseURL == "" {
		errs = append(errs, "market_api: base_url must not be empty")
	}
	mk := c.MarketAPI.ApiKey != ""
	ms := c.MarketAPI.Secret != ""
	mp := c.MarketAPI.Passphrase != ""
	if (mk || ms || mp) && !(mk && ms && mp) {
		errs = append(errs, "market_api: api_key, secret, and passphrase must all be set together")
	}

	// Wizard
	if c.Wizard.SessionTTL.Duration <= 0 {
		errs = append(errs, "wizard: session_ttl must be > 0")
	}
	if c.Wizard.LockTTL.Duration <= 0 {
		errs = append(errs, "wizard: lock_ttl must be > 0")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
