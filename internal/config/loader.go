package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SIMEX_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SIMEX_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "SIMEX_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "SIMEX_CHAIN_ID")
	setDuration(&cfg.Chain.ReceiptPoll, "SIMEX_CHAIN_RECEIPT_POLL")
	setDuration(&cfg.Chain.CallTimeout, "SIMEX_CHAIN_CALL_TIMEOUT")

	// ── Deployer ──
	setStr(&cfg.Deployer.PrivateKey, "SIMEX_DEPLOYER_PRIVATE_KEY")
	setStr(&cfg.Deployer.EncryptedKeyPath, "SIMEX_DEPLOYER_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Deployer.KeyPassword, "SIMEX_DEPLOYER_KEY_PASSWORD")
	setStr(&cfg.Deployer.BytecodePath, "SIMEX_DEPLOYER_BYTECODE_PATH")
	setStr(&cfg.Deployer.ABIPath, "SIMEX_DEPLOYER_ABI_PATH")
	setUint64(&cfg.Deployer.GasLimit, "SIMEX_DEPLOYER_GAS_LIMIT")
	setDuration(&cfg.Deployer.DeployTimeout, "SIMEX_DEPLOYER_DEPLOY_TIMEOUT")

	// ── Market API ──
	setStr(&cfg.MarketAPI.BaseURL, "SIMEX_MARKET_API_BASE_URL")
	setStr(&cfg.MarketAPI.ApiKey, "SIMEX_MARKET_API_KEY")
	setStr(&cfg.MarketAPI.Secret, "SIMEX_MARKET_API_SECRET")
	setStr(&cfg.MarketAPI.Passphrase, "SIMEX_MARKET_API_PASSPHRASE")
	setDuration(&cfg.MarketAPI.Timeout, "SIMEX_MARKET_API_TIMEOUT")

	// ── Wizard ──
	setDuration(&cfg.Wizard.SessionTTL, "SIMEX_WIZARD_SESSION_TTL")
	setDuration(&cfg.Wizard.LockTTL, "SIMEX_WIZARD_LOCK_TTL")
	setDuration(&cfg.Wizard.SuggestionTTL, "SIMEX_WIZARD_SUGGESTION_TTL")
	setDuration(&cfg.Wizard.OrderbookTTL, "SIMEX_WIZARD_ORDERBOOK_TTL")
	setDuration(&cfg.Wizard.WalletPoll, "SIMEX_WIZARD_WALLET_POLL")
	setStr(&cfg.Wizard.DefaultAddress, "SIMEX_WIZARD_DEFAULT_WALLET_ADDRESS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SIMEX_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "SIMEX_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SIMEX_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SIMEX_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SIMEX_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SIMEX_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SIMEX_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SIMEX_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SIMEX_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SIMEX_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SIMEX_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SIMEX_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SIMEX_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SIMEX_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SIMEX_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SIMEX_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "SIMEX_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SIMEX_S3_REGION")
	setStr(&cfg.S3.Bucket, "SIMEX_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SIMEX_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SIMEX_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SIMEX_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SIMEX_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SIMEX_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SIMEX_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SIMEX_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.ApiKey, "SIMEX_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "SIMEX_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "SIMEX_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SIMEX_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SIMEX_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SIMEX_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SIMEX_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SIMEX_MODE")
	setStr(&cfg.LogLevel, "SIMEX_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
