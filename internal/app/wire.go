package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/simexchange/internal/blob/s3"
	"github.com/alanyoungcy/simexchange/internal/cache/redis"
	"github.com/alanyoungcy/simexchange/internal/chain"
	"github.com/alanyoungcy/simexchange/internal/config"
	"github.com/alanyoungcy/simexchange/internal/crypto"
	"github.com/alanyoungcy/simexchange/internal/domain"
	"github.com/alanyoungcy/simexchange/internal/metrics"
	"github.com/alanyoungcy/simexchange/internal/notify"
	"github.com/alanyoungcy/simexchange/internal/platform/marketapi"
	"github.com/alanyoungcy/simexchange/internal/server/handler"
	"github.com/alanyoungcy/simexchange/internal/store/postgres"
)

// metricsNamespace prefixes every exported Prometheus series.
const metricsNamespace = "simex"

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	DeploymentStore domain.DeploymentStore
	AuditStore      domain.AuditStore

	// Caches
	SessionStore    domain.SessionStore
	BookCache       domain.OrderbookCache
	SuggestionCache domain.SuggestionCache
	RateLimiter     domain.RateLimiter
	LockManager     domain.LockManager
	SignalBus       domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.DeploymentArchiver

	// Chain and market API
	Signer     *crypto.Signer
	Gateway    domain.DeploymentGateway
	Collateral domain.CollateralGateway
	Market     domain.MarketData

	// Notifications and metrics
	Notifier *notify.Notifier
	Metrics  *metrics.Metrics

	// HealthChecks probe every external dependency for GET /api/health.
	HealthChecks map[string]handler.HealthCheck
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{
		Metrics:      metrics.PrometheusMetrics(metricsNamespace),
		HealthChecks: map[string]handler.HealthCheck{},
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		return fail("postgres", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			return fail("postgres migrations", err)
		}
	}

	pool := pgClient.Pool()
	deps.DeploymentStore = postgres.NewDeploymentStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)
	deps.HealthChecks["postgres"] = pgClient.Ping

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		return fail("redis", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.SessionStore = redis.NewSessionStore(redisClient, cfg.Wizard.SessionTTL.Duration)
	deps.BookCache = redis.NewOrderbookCache(redisClient, cfg.Wizard.OrderbookTTL.Duration)
	deps.SuggestionCache = redis.NewSuggestionCache(redisClient, cfg.Wizard.SuggestionTTL.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.HealthChecks["redis"] = redisClient.Ping

	// --- Deployer key ---
	keyHex, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Deployer.PrivateKey,
		EncryptedKeyPath: cfg.Deployer.EncryptedKeyPath,
		KeyPassword:      cfg.Deployer.KeyPassword,
	})
	if err != nil {
		return fail("deployer key", err)
	}
	signer, err := crypto.NewSigner(keyHex, cfg.Chain.ChainID)
	if err != nil {
		return fail("signer", err)
	}
	deps.Signer = signer

	// --- S3 blob storage ---
	s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       cfg.S3.Endpoint,
		Region:         cfg.S3.Region,
		Bucket:         cfg.S3.Bucket,
		AccessKey:      cfg.S3.AccessKey,
		SecretKey:      cfg.S3.SecretKey,
		UseSSL:         cfg.S3.UseSSL,
		ForcePathStyle: cfg.S3.ForcePathStyle,
	})
	if err != nil {
		return fail("s3", err)
	}
	writer := s3blob.NewWriter(s3Client)
	reader := s3blob.NewReader(s3Client)
	deps.BlobWriter = writer
	deps.BlobReader = reader
	deps.Archiver = s3blob.NewArchiver(writer, reader, signer, signer.Address().Hex())
	deps.HealthChecks["s3"] = s3Client.Health

	// --- Chain ---
	chainClient, closeChain, err := chain.Dial(ctx, cfg.Chain.RPCURL, signer, chain.ClientConfig{
		GasLimit:    cfg.Deployer.GasLimit,
		ReceiptPoll: cfg.Chain.ReceiptPoll.Duration,
		CallTimeout: cfg.Chain.CallTimeout.Duration,
	}, logger)
	if err != nil {
		return fail("chain", err)
	}
	closers = append(closers, closeChain)

	marketABI, err := chain.LoadMarketABI(cfg.Deployer.ABIPath)
	if err != nil {
		return fail("market abi", err)
	}
	bytecode, err := chain.LoadBytecode(cfg.Deployer.BytecodePath)
	if err != nil {
		return fail("bytecode", err)
	}
	deps.Gateway = chain.NewEthGateway(chainClient, marketABI, bytecode)
	deps.Collateral = chain.NewCollateral(chainClient)

	// --- Market API ---
	var opts []marketapi.Option
	auth := &crypto.HMACAuth{
		Key:        cfg.MarketAPI.ApiKey,
		Secret:     cfg.MarketAPI.Secret,
		Passphrase: cfg.MarketAPI.Passphrase,
	}
	if auth.Enabled() {
		opts = append(opts, marketapi.WithAuth(auth))
	}
	deps.Market = marketapi.NewClient(cfg.MarketAPI.BaseURL, cfg.MarketAPI.Timeout.Duration, opts...)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	logger.InfoContext(ctx, "dependencies wired",
		slog.String("deployer", signer.Address().Hex()),
		slog.Int("notifiers", len(senders)),
		slog.Duration("session_ttl", cfg.Wizard.SessionTTL.Duration),
	)
	return deps, cleanup, nil
}

// shutdownTimeout bounds graceful shutdown of the HTTP server.
const shutdownTimeout = 5 * time.Second
