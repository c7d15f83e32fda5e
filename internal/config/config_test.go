package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestDefaultsNeedDeployer(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deployer: either private_key or encrypted_key_path must be set")
	assert.Contains(t, err.Error(), "deployer: bytecode_path must not be empty")

	cfg.Deployer.PrivateKey = testKey
	cfg.Deployer.BytecodePath = "contracts/MarketContract.bin"
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.LogLevel = "loud"
	cfg.Deployer.PrivateKey = "nothex"
	cfg.Deployer.BytecodePath = "x.bin"
	cfg.MarketAPI.ApiKey = "k"
	cfg.Postgres.PoolMinConns = 50

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown mode "trade"`,
		`unknown log_level "loud"`,
		"private_key must be 32 bytes of hex",
		"market_api: api_key, secret, and passphrase must all be set together",
		"pool_min_conns must not exceed pool_max_conns",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadAppliesFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "simex.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "deploy"

[chain]
rpc_url = "http://chain:8545"
chain_id = 31337

[wizard]
session_ttl = "2h"

[server]
port = 9100
`), 0o600))

	t.Setenv("SIMEX_SERVER_PORT", "9200")
	t.Setenv("SIMEX_DEPLOYER_GAS_LIMIT", "7000000")
	t.Setenv("SIMEX_SERVER_CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("SIMEX_WIZARD_LOCK_TTL", "3s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "deploy", cfg.Mode)
	assert.Equal(t, "http://chain:8545", cfg.Chain.RPCURL)
	assert.Equal(t, int64(31337), cfg.Chain.ChainID)
	assert.Equal(t, 2*time.Hour, cfg.Wizard.SessionTTL.Duration)
	assert.Equal(t, 3*time.Second, cfg.Wizard.LockTTL.Duration)
	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, uint64(7_000_000), cfg.Deployer.GasLimit)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("mode = "), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Deployer.PrivateKey = testKey
	cfg.MarketAPI.Secret = "s3cret"
	cfg.Postgres.Password = ""

	out := RedactedConfig(&cfg)
	assert.Equal(t, redacted, out.Deployer.PrivateKey)
	assert.Equal(t, redacted, out.MarketAPI.Secret)
	assert.Empty(t, out.Postgres.Password)
	assert.Equal(t, testKey, cfg.Deployer.PrivateKey)

	out.Server.CORSOrigins[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
}
