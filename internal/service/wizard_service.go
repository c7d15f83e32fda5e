package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/simexchange/internal/domain"
	"github.com/alanyoungcy/simexchange/internal/metrics"
	"github.com/alanyoungcy/simexchange/internal/notify"
	"github.com/alanyoungcy/simexchange/internal/wizard"
)

// sideEffectTimeout bounds the persistence and fan-out work done when a
// deployment resolves.
const sideEffectTimeout = 30 * time.Second

// WizardConfig holds the session parameters of the WizardService.
type WizardConfig struct {
	LockTTL       time.Duration
	DeployTimeout time.Duration
}

// WizardDeps bundles the collaborators of the WizardService. Only Validator
// and Gateway are required; a nil store, bus or notifier disables the side
// effect it serves.
type WizardDeps struct {
	Validator   *wizard.Validator
	Gateway     domain.DeploymentGateway
	Sessions    domain.SessionStore
	Locks       domain.LockManager
	Deployments domain.DeploymentStore
	Audit       domain.AuditStore
	Archiver    domain.DeploymentArchiver
	Bus         domain.SignalBus
	Notifier    *notify.Notifier
	Metrics     *metrics.Metrics
}

// WizardState is what a client needs to render a wizard session.
type WizardState struct {
	SessionID     string                    `json:"sessionId"`
	Step          domain.StepID             `json:"step"`
	Fields        []string                  `json:"fields"`
	Draft         domain.ContractDraft      `json:"draft"`
	InitialValues map[string]any            `json:"initialValues"`
	Outcome       *domain.DeploymentOutcome `json:"outcome,omitempty"`
	Deploy        *wizard.DeployView        `json:"deploy,omitempty"`
	Complete      bool                      `json:"complete"`
}

// TransitionResult is the state after a Next or Back together with what the
// event did.
type TransitionResult struct {
	WizardState
	Advanced  bool               `json:"advanced"`
	Ignored   bool               `json:"ignored,omitempty"`
	Submitted bool               `json:"submitted,omitempty"`
	Errors    domain.FieldErrors `json:"errors,omitempty"`
}

// DeploymentEvent is published on domain.ChannelDeploy and appended to
// domain.StreamDeployments when a submission resolves.
type DeploymentEvent struct {
	SessionID   string                  `json:"sessionId"`
	RecordID    string                  `json:"recordId"`
	Status      domain.DeploymentStatus `json:"status"`
	Attempt     int                     `json:"attempt"`
	Name        string                  `json:"name"`
	Address     string                  `json:"address,omitempty"`
	TxHash      string                  `json:"txHash,omitempty"`
	Error       string                  `json:"error,omitempty"`
	ArchivePath string                  `json:"archivePath,omitempty"`
	ResolvedAt  time.Time               `json:"resolvedAt"`
}

// WizardService hosts server-side wizard sessions. Each session is driven
// by its own wizard.Controller; events for one session are serialised with
// a distributed lock and every transition is snapshotted so another
// instance, or this one after a restart, can pick the session up.
type WizardService struct {
	deps   WizardDeps
	cfg    WizardConfig
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	live map[string]*wizard.Controller

	// saveMu orders snapshot writes so a resolved outcome is never
	// overwritten by an older snapshot of the same session.
	saveMu sync.Mutex
}

// NewWizardService creates a WizardService.
func NewWizardService(deps WizardDeps, cfg WizardConfig, logger *slog.Logger) *WizardService {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NopMetrics()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Second
	}
	return &WizardService{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "wizard_service")),
		now:    time.Now,
		live:   make(map[string]*wizard.Controller),
	}
}

// Create starts a new session on the first step.
func (s *WizardService) Create(ctx context.Context) (WizardState, error) {
	id := uuid.NewString()
	ctrl := s.newController(id, nil)

	s.mu.Lock()
	s.live[id] = ctrl
	s.mu.Unlock()

	s.save(ctx, id, ctrl)
	s.logger.InfoContext(ctx, "wizard session created", slog.String("session_id", id))
	return stateOf(id, ctrl), nil
}

// Get returns the current state of session id.
func (s *WizardService) Get(ctx context.Context, id string) (WizardState, error) {
	ctrl, err := s.controller(ctx, id)
	if err != nil {
		return WizardState{}, err
	}
	return stateOf(id, ctrl), nil
}

// Next submits the current step's fields. Validation failures are returned
// in TransitionResult.Errors with a nil error.
func (s *WizardService) Next(ctx context.Context, id string, raw wizard.RawFields) (TransitionResult, error) {
	return s.transition(ctx, id, func(ctrl *wizard.Controller) (wizard.Transition, error) {
		return ctrl.Next(ctx, raw)
	})
}

// Back returns session id to the previous step.
func (s *WizardService) Back(ctx context.Context, id string) (TransitionResult, error) {
	return s.transition(ctx, id, func(ctrl *wizard.Controller) (wizard.Transition, error) {
		return ctrl.Back(ctx)
	})
}

func (s *WizardService) transition(ctx context.Context, id string, event func(*wizard.Controller) (wizard.Transition, error)) (TransitionResult, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return TransitionResult{}, err
	}
	defer unlock()

	ctrl, err := s.controller(ctx, id)
	if err != nil {
		return TransitionResult{}, err
	}

	tr, err := event(ctrl)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("wizard_service: session %s: %w", id, err)
	}
	s.countTransition(tr)
	s.save(ctx, id, ctrl)

	return TransitionResult{
		WizardState: stateOf(id, ctrl),
		Advanced:    tr.Advanced,
		Ignored:     tr.Ignored,
		Submitted:   tr.Submitted,
		Errors:      tr.Errors,
	}, nil
}

// Wait blocks until the latest deployment of session id resolves.
func (s *WizardService) Wait(ctx context.Context, id string) (domain.DeploymentOutcome, error) {
	ctrl, err := s.controller(ctx, id)
	if err != nil {
		return domain.DeploymentOutcome{}, err
	}
	out, err := ctrl.Wait(ctx)
	if err != nil {
		return domain.DeploymentOutcome{}, fmt.Errorf("wizard_service: wait %s: %w", id, err)
	}
	return out, nil
}

// Close tears session id down and forgets its snapshot. A deployment still
// outstanding keeps running on chain but its result is discarded.
func (s *WizardService) Close(ctx context.Context, id string) error {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	ctrl, err := s.controller(ctx, id)
	if err != nil {
		return err
	}
	ctrl.Close()

	s.mu.Lock()
	delete(s.live, id)
	s.mu.Unlock()

	if s.deps.Sessions != nil {
		if err := s.deps.Sessions.Delete(ctx, id); err != nil {
			s.logger.WarnContext(ctx, "failed to delete session snapshot",
				slog.String("session_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	s.audit(ctx, domain.AuditSessionClosed, map[string]any{
		"session_id": id,
		"step":       ctrl.Step().String(),
	})
	s.logger.InfoContext(ctx, "wizard session closed", slog.String("session_id", id))
	return nil
}

// Shutdown closes every live controller without deleting snapshots.
func (s *WizardService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ctrl := range s.live {
		ctrl.Close()
		delete(s.live, id)
	}
}

// controller returns the live controller for id, rebuilding it from its
// snapshot when this instance does not host it yet.
func (s *WizardService) controller(ctx context.Context, id string) (*wizard.Controller, error) {
	s.mu.Lock()
	ctrl, ok := s.live[id]
	s.mu.Unlock()
	if ok {
		return ctrl, nil
	}

	if s.deps.Sessions == nil {
		return nil, fmt.Errorf("wizard_service: session %s: %w", id, domain.ErrNotFound)
	}
	snap, err := s.deps.Sessions.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("wizard_service: session %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ctrl, ok := s.live[id]; ok {
		return ctrl, nil
	}
	ctrl = s.newController(id, &snap)
	s.live[id] = ctrl
	s.logger.InfoContext(ctx, "wizard session restored",
		slog.String("session_id", id),
		slog.String("step", snap.Step.String()),
	)
	return ctrl, nil
}

func (s *WizardService) newController(id string, snap *domain.WizardSnapshot) *wizard.Controller {
	opts := []wizard.Option{
		wizard.WithLogger(s.logger.With(slog.String("session_id", id))),
		wizard.WithDeployTimeout(s.cfg.DeployTimeout),
		wizard.WithHooks(wizard.Hooks{
			OnSubmit: func(domain.DeploymentOutcome, domain.ContractDraft) {
				s.deps.Metrics.WizardTransitions.With("kind", "submit").Add(1)
			},
			OnOutcome: func(outcome domain.DeploymentOutcome, draft domain.ContractDraft) {
				s.resolved(id, outcome, draft)
			},
		}),
	}
	if snap != nil {
		opts = append(opts, wizard.WithSnapshot(*snap))
	}
	return wizard.NewController(s.deps.Validator, s.deps.Gateway, opts...)
}

func (s *WizardService) lock(ctx context.Context, id string) (func(), error) {
	if s.deps.Locks == nil {
		return func() {}, nil
	}
	unlock, err := s.deps.Locks.Acquire(ctx, "wizard:"+id, s.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("wizard_service: session %s: %w", id, err)
	}
	return unlock, nil
}

func (s *WizardService) save(ctx context.Context, id string, ctrl *wizard.Controller) {
	if s.deps.Sessions == nil {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if err := s.deps.Sessions.Save(ctx, ctrl.Snapshot(id)); err != nil {
		s.logger.WarnContext(ctx, "failed to save session snapshot",
			slog.String("session_id", id),
			slog.String("error", err.Error()),
		)
	}
}

func (s *WizardService) countTransition(tr wizard.Transition) {
	m := s.deps.Metrics
	switch {
	case tr.Ignored:
		m.WizardTransitions.With("kind", "ignored").Add(1)
	case len(tr.Errors) > 0:
		m.WizardTransitions.With("kind", "invalid").Add(1)
		m.ValidationFailures.With("step", tr.From.String()).Add(1)
	case tr.To < tr.From:
		m.WizardTransitions.With("kind", "back").Add(1)
	case tr.Advanced:
		m.WizardTransitions.With("kind", "advance").Add(1)
	}
}

// resolved runs on the deployment goroutine once a submission resolves.
// None of its side effects can change the outcome; failures are logged.
func (s *WizardService) resolved(id string, outcome domain.DeploymentOutcome, draft domain.ContractDraft) {
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	rec := recordFor(id, outcome, draft, s.now())
	s.deps.Metrics.Deployments.With("status", string(rec.Status)).Add(1)
	s.deps.Metrics.DeployDuration.Observe(rec.ResolvedAt.Sub(rec.CreatedAt).Seconds())

	s.mu.Lock()
	ctrl, ok := s.live[id]
	s.mu.Unlock()
	if ok {
		s.save(ctx, id, ctrl)
	}

	if s.deps.Deployments != nil {
		if err := s.deps.Deployments.Create(ctx, rec); err != nil {
			s.logError(ctx, "failed to persist deployment", rec, err)
		}
	}

	event := domain.AuditDeployFailed
	if rec.Status == domain.DeploymentSuccess {
		event = domain.AuditDeploySucceeded
	}
	s.audit(ctx, event, map[string]any{
		"record_id":  rec.ID,
		"session_id": id,
		"name":       draft.Name,
		"attempt":    rec.Attempt,
		"address":    rec.Address,
		"tx_hash":    rec.TxHash,
		"error":      rec.Error,
	})

	var archivePath string
	if s.deps.Archiver != nil {
		path, err := s.deps.Archiver.Archive(ctx, rec)
		if err != nil {
			s.logError(ctx, "failed to archive deployment", rec, err)
		}
		archivePath = path
	}

	s.publish(ctx, DeploymentEvent{
		SessionID:   id,
		RecordID:    rec.ID,
		Status:      rec.Status,
		Attempt:     rec.Attempt,
		Name:        draft.Name,
		Address:     rec.Address,
		TxHash:      rec.TxHash,
		Error:       rec.Error,
		ArchivePath: archivePath,
		ResolvedAt:  rec.ResolvedAt,
	})
	s.notify(ctx, rec, draft)
}

func recordFor(id string, outcome domain.DeploymentOutcome, draft domain.ContractDraft, now time.Time) domain.DeploymentRecord {
	rec := domain.DeploymentRecord{
		ID:        uuid.NewString(),
		SessionID: id,
		Draft:     draft,
		Status:    outcome.Status,
		Error:     outcome.Error,
		Attempt:   outcome.Attempt,
		CreatedAt: outcome.SubmittedAt.UTC(),
	}
	if outcome.ResolvedAt != nil {
		rec.ResolvedAt = outcome.ResolvedAt.UTC()
	} else {
		rec.ResolvedAt = now.UTC()
	}
	if c := outcome.Contract; c != nil {
		rec.Address = c.Address
		rec.TxHash = c.TxHash
		rec.Deployer = c.Deployer
	}
	return rec
}

func (s *WizardService) publish(ctx context.Context, ev DeploymentEvent) {
	if s.deps.Bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to encode deployment event", slog.String("error", err.Error()))
		return
	}
	if err := s.deps.Bus.Publish(ctx, domain.ChannelDeploy, payload); err != nil {
		s.logger.WarnContext(ctx, "failed to publish deployment event",
			slog.String("record_id", ev.RecordID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.deps.Bus.StreamAppend(ctx, domain.StreamDeployments, payload); err != nil {
		s.logger.WarnContext(ctx, "failed to append deployment event",
			slog.String("record_id", ev.RecordID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *WizardService) notify(ctx context.Context, rec domain.DeploymentRecord, draft domain.ContractDraft) {
	event, title, msg := notify.EventDeployFailed, "Deployment failed",
		fmt.Sprintf("%s (attempt %d): %s", draft.Name, rec.Attempt, rec.Error)
	if rec.Status == domain.DeploymentSuccess {
		event, title = notify.EventDeploySucceeded, "Contract deployed"
		msg = fmt.Sprintf("%s deployed at %s (tx %s)", draft.Name, rec.Address, rec.TxHash)
	}
	if !s.deps.Notifier.Enabled(event) {
		return
	}
	if err := s.deps.Notifier.Notify(ctx, event, title, msg); err != nil {
		s.logError(ctx, "failed to send deployment notification", rec, err)
	}
}

func (s *WizardService) audit(ctx context.Context, event string, detail map[string]any) {
	if s.deps.Audit == nil {
		return
	}
	if err := s.deps.Audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "failed to write audit entry",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *WizardService) logError(ctx context.Context, msg string, rec domain.DeploymentRecord, err error) {
	level := slog.LevelError
	if errors.Is(err, domain.ErrAlreadyExists) {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, msg,
		slog.String("record_id", rec.ID),
		slog.String("session_id", rec.SessionID),
		slog.String("error", err.Error()),
	)
}

func stateOf(id string, ctrl *wizard.Controller) WizardState {
	snap := ctrl.Snapshot(id)
	st := WizardState{
		SessionID:     id,
		Step:          snap.Step,
		Fields:        domain.StepFields(snap.Step),
		Draft:         snap.Draft,
		InitialValues: ctrl.InitialValues(),
		Outcome:       snap.Outcome,
		Complete:      snap.Complete,
	}
	if snap.Step == domain.StepDeploying {
		view := wizard.RenderDeploy(wizard.PropsFor(snap.Outcome))
		st.Deploy = &view
	}
	return st
}
