package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/simexchange/internal/domain"
	"github.com/alanyoungcy/simexchange/internal/server"
	"github.com/alanyoungcy/simexchange/internal/server/handler"
	"github.com/alanyoungcy/simexchange/internal/server/ws"
	"github.com/alanyoungcy/simexchange/internal/service"
	"github.com/alanyoungcy/simexchange/internal/wizard"
)

// newWizardService builds the WizardService shared by both modes.
func (a *App) newWizardService(deps *Dependencies) *service.WizardService {
	return service.NewWizardService(service.WizardDeps{
		Validator:   wizard.NewValidator(time.Now),
		Gateway:     deps.Gateway,
		Sessions:    deps.SessionStore,
		Locks:       deps.LockManager,
		Deployments: deps.DeploymentStore,
		Audit:       deps.AuditStore,
		Archiver:    deps.Archiver,
		Bus:         deps.SignalBus,
		Notifier:    deps.Notifier,
		Metrics:     deps.Metrics,
	}, service.WizardConfig{
		LockTTL:       a.cfg.Wizard.LockTTL.Duration,
		DeployTimeout: a.cfg.Deployer.DeployTimeout.Duration,
	}, a.logger)
}

// ServeMode starts the HTTP API, the WebSocket hub and the wallet balance
// watcher, and blocks until ctx is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "serve mode starting")
	g, ctx := errgroup.WithContext(ctx)

	wizardSvc := a.newWizardService(deps)
	defer wizardSvc.Shutdown()

	oracleSvc := service.NewOracleService(deps.Market, deps.SuggestionCache, a.logger)
	contractSvc := service.NewContractService(deps.DeploymentStore, deps.Market)
	bookSvc := service.NewOrderBookService(deps.Market, deps.BookCache, deps.Metrics, a.logger)
	defer bookSvc.Close()

	walletSvc := service.NewWalletService(deps.Market, deps.Collateral, deps.Metrics, a.logger,
		a.publishWallet(ctx, deps.SignalBus))
	defer walletSvc.Close()

	collateralSvc := service.NewCollateralService(deps.Market, deps.Collateral, walletSvc,
		deps.AuditStore, deps.SignalBus, deps.Notifier, deps.Metrics, a.logger)

	if addr := a.cfg.Wizard.DefaultAddress; addr != "" {
		if err := walletSvc.Select(addr); err != nil {
			a.logger.WarnContext(ctx, "default contract not selected",
				slog.String("contract", addr),
				slog.String("error", err.Error()),
			)
		}
		_ = bookSvc.Select(addr)
	}

	g.Go(func() error {
		return walletSvc.Run(ctx, a.cfg.Wizard.WalletPoll.Duration)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, server.Handlers{
			Health: handler.NewHealthHandler(deps.HealthChecks, a.logger),
			Wizard: handler.NewWizardHandler(wizardSvc, a.logger),
			Market: handler.NewMarketHandler(oracleSvc, contractSvc, bookSvc, a.logger),
			Wallet: handler.NewWalletHandler(walletSvc, collateralSvc, a.logger, bookSvc),
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// publishWallet returns a wallet update hook that pushes every balance
// refresh to dashboards on the collateral channel.
func (a *App) publishWallet(ctx context.Context, bus domain.SignalBus) func(service.WalletView) {
	return func(v service.WalletView) {
		payload, err := json.Marshal(struct {
			Type string `json:"type"`
			service.WalletView
		}{Type: "wallet", WalletView: v})
		if err != nil {
			return
		}
		if err := bus.Publish(ctx, domain.ChannelCollateral, payload); err != nil && ctx.Err() == nil {
			a.logger.Warn("failed to publish wallet update",
				slog.String("contract", v.Contract),
				slog.String("error", err.Error()),
			)
		}
	}
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, handlers server.Handlers) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:           a.cfg.Mode,
		StartedAt:      time.Now().UTC(),
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.ApiKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, deps.Metrics, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// DeployMode submits the draft at draftPath through a wizard session, waits
// for the deployment to resolve and reports the outcome.
func (a *App) DeployMode(ctx context.Context, deps *Dependencies, draftPath string) error {
	fields, err := LoadDraft(draftPath)
	if err != nil {
		return fmt.Errorf("deploy mode: %w", err)
	}
	svc := a.newWizardService(deps)
	defer svc.Shutdown()

	outcome, err := SubmitDraft(ctx, svc, fields)
	if err != nil {
		return fmt.Errorf("deploy mode: %w", err)
	}
	if outcome.Status != domain.DeploymentSuccess || outcome.Contract == nil {
		return fmt.Errorf("deploy mode: %s", outcome.Error)
	}
	a.logger.InfoContext(ctx, "contract deployed",
		slog.String("address", outcome.Contract.Address),
		slog.String("tx_hash", outcome.Contract.TxHash),
		slog.Int("attempt", outcome.Attempt),
	)
	return nil
}

// LoadDraft reads a contract draft from a TOML file whose keys are the
// wizard field names. A TOML datetime is accepted for the expiration.
func LoadDraft(path string) (wizard.RawFields, error) {
	if path == "" {
		return nil, errors.New("draft path is required")
	}
	raw := map[string]any{}
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("decode draft %s: %w", path, err)
	}
	for k, v := range raw {
		if t, ok := v.(time.Time); ok {
			raw[k] = t.Unix()
		}
	}
	return wizard.RawFields(raw), nil
}

// DraftSubmitter is the part of the WizardService used to submit a draft.
type DraftSubmitter interface {
	Create(ctx context.Context) (service.WizardState, error)
	Next(ctx context.Context, id string, raw wizard.RawFields) (service.TransitionResult, error)
	Wait(ctx context.Context, id string) (domain.DeploymentOutcome, error)
	Close(ctx context.Context, id string) error
}

// SubmitDraft walks a new session through every form step with the
// matching subset of fields and waits for the resulting deployment.
func SubmitDraft(ctx context.Context, svc DraftSubmitter, fields wizard.RawFields) (domain.DeploymentOutcome, error) {
	st, err := svc.Create(ctx)
	if err != nil {
		return domain.DeploymentOutcome{}, err
	}
	defer svc.Close(context.WithoutCancel(ctx), st.SessionID)

	for step := domain.StepNaming; step < domain.StepDeploying; step++ {
		raw := wizard.RawFields{}
		for _, f := range domain.StepFields(step) {
			if v, ok := fields[f]; ok {
				raw[f] = v
			}
		}
		res, err := svc.Next(ctx, st.SessionID, raw)
		if err != nil {
			return domain.DeploymentOutcome{}, fmt.Errorf("step %s: %w", step, err)
		}
		if len(res.Errors) > 0 {
			return domain.DeploymentOutcome{}, fmt.Errorf("step %s: %w", step, res.Errors)
		}
	}
	return svc.Wait(ctx, st.SessionID)
}
