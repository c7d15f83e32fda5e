package wizard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/simexchange/internal/domain"
)

// interruptedMsg is the failure recorded for a deployment that was pending
// when its session snapshot was restored elsewhere.
const interruptedMsg = "deployment interrupted before a result was received; submit again"

// Hooks observe controller events. They run after the controller's lock is
// released, so they may call back into the controller.
type Hooks struct {
	// OnMerge fires after a validated step was merged into the draft.
	OnMerge func(step domain.StepID, draft domain.ContractDraft)
	// OnAdvance fires once per successful Next.
	OnAdvance func(from, to domain.StepID)
	// OnBack fires once per successful Back.
	OnBack func(from, to domain.StepID)
	// OnSubmit fires when a draft is handed to the gateway.
	OnSubmit func(outcome domain.DeploymentOutcome, draft domain.ContractDraft)
	// OnOutcome fires when a submission resolves. It does not fire for
	// results that arrive after Close.
	OnOutcome func(outcome domain.DeploymentOutcome, draft domain.ContractDraft)
}

// Transition reports what a Next or Back event did.
type Transition struct {
	From      domain.StepID      `json:"from"`
	To        domain.StepID      `json:"to"`
	Advanced  bool               `json:"advanced"`
	Ignored   bool               `json:"ignored,omitempty"`
	Submitted bool               `json:"submitted,omitempty"`
	Errors    domain.FieldErrors `json:"errors,omitempty"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithHooks installs event hooks.
func WithHooks(h Hooks) Option {
	return func(c *Controller) { c.hooks = h }
}

// WithLogger sets the controller logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithClock overrides the clock used for outcome timestamps.
func WithClock(now Clock) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithDeployTimeout bounds each gateway call. Zero means no bound.
func WithDeployTimeout(d time.Duration) Option {
	return func(c *Controller) { c.deployTimeout = d }
}

// WithSnapshot restores step, draft and outcome from a snapshot. A pending
// outcome cannot be resumed and is restored as a failure so the draft can
// be submitted again.
func WithSnapshot(snap domain.WizardSnapshot) Option {
	return func(c *Controller) {
		if snap.Step.Valid() {
			c.step = snap.Step
		}
		c.draft = snap.Draft
		if snap.Outcome != nil {
			out := *snap.Outcome
			if out.Status == domain.DeploymentPending {
				resolved := c.now()
				out.Status = domain.DeploymentFailure
				out.Error = interruptedMsg
				out.ResolvedAt = &resolved
			}
			c.outcome = &out
			c.attempts = out.Attempt
		}
	}
}

// Controller drives one wizard session. It owns the draft: the only
// mutation point is a Next whose validation passed. Events are serialised;
// while a deployment is outstanding Next and Back fail with domain.ErrBusy.
type Controller struct {
	validator     *Validator
	gateway       domain.DeploymentGateway
	hooks         Hooks
	logger        *slog.Logger
	now           Clock
	deployTimeout time.Duration

	mu       sync.Mutex
	step     domain.StepID
	draft    domain.ContractDraft
	outcome  *domain.DeploymentOutcome
	attempts int
	closed   bool
	done     chan struct{}
	inflight sync.WaitGroup
}

// NewController creates a Controller positioned on the first step.
func NewController(v *Validator, gateway domain.DeploymentGateway, opts ...Option) *Controller {
	c := &Controller{
		validator: v,
		gateway:   gateway,
		logger:    slog.Default(),
		now:       time.Now,
		step:      domain.StepNaming,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "wizard"))
	return c
}

// Next validates raw against the current step. On success the fields are
// merged, the step advances by one and, when the deploying step is entered,
// the draft is submitted. On the deploying step itself Next resubmits after
// a failure. Validation failures are reported in Transition.Errors, not as
// an error.
func (c *Controller) Next(ctx context.Context, raw RawFields) (Transition, error) {
	c.mu.Lock()

	if err := c.guardLocked(); err != nil {
		tr := Transition{From: c.step, To: c.step}
		c.mu.Unlock()
		return tr, err
	}
	if c.completeLocked() {
		tr := Transition{From: c.step, To: c.step, Ignored: true}
		c.mu.Unlock()
		return tr, nil
	}

	from := c.step
	if from == domain.StepDeploying {
		// Only reachable with no outcome or a failed one.
		outcome, draft := c.submitLocked(ctx)
		c.mu.Unlock()
		c.fireSubmit(outcome, draft)
		return Transition{From: from, To: from, Submitted: true}, nil
	}

	res := c.validator.Validate(from, raw)
	if !res.Valid() {
		c.mu.Unlock()
		c.logger.DebugContext(ctx, "step validation failed",
			slog.String("step", from.String()),
			slog.String("error", res.Errors.Error()),
		)
		return Transition{From: from, To: from, Errors: res.Errors}, nil
	}

	c.draft.Merge(from, res.Fields)
	c.step = from + 1
	merged := c.draft
	tr := Transition{From: from, To: c.step, Advanced: true}

	var (
		outcome domain.DeploymentOutcome
		draft   domain.ContractDraft
	)
	if c.step == domain.StepDeploying && c.shouldSubmitLocked() {
		outcome, draft = c.submitLocked(ctx)
		tr.Submitted = true
	}
	c.mu.Unlock()

	if c.hooks.OnMerge != nil {
		c.hooks.OnMerge(from, merged)
	}
	if c.hooks.OnAdvance != nil {
		c.hooks.OnAdvance(from, tr.To)
	}
	if tr.Submitted {
		c.fireSubmit(outcome, draft)
	}
	return tr, nil
}

// Back moves to the previous step. The draft is never modified.
func (c *Controller) Back(ctx context.Context) (Transition, error) {
	c.mu.Lock()

	if err := c.guardLocked(); err != nil {
		tr := Transition{From: c.step, To: c.step}
		c.mu.Unlock()
		return tr, err
	}
	if c.completeLocked() {
		tr := Transition{From: c.step, To: c.step, Ignored: true}
		c.mu.Unlock()
		return tr, nil
	}
	if c.step == domain.StepNaming {
		c.mu.Unlock()
		return Transition{From: domain.StepNaming, To: domain.StepNaming}, domain.ErrFirstStep
	}

	from := c.step
	c.step = from - 1
	tr := Transition{From: from, To: c.step}
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "step back",
		slog.String("from", from.String()),
		slog.String("to", tr.To.String()),
	)
	if c.hooks.OnBack != nil {
		c.hooks.OnBack(from, tr.To)
	}
	return tr, nil
}

// guardLocked rejects events on a closed controller or while a deployment
// is outstanding.
func (c *Controller) guardLocked() error {
	if c.closed {
		return domain.ErrSessionClosed
	}
	if c.outcome != nil && c.outcome.Status == domain.DeploymentPending {
		return domain.ErrBusy
	}
	return nil
}

func (c *Controller) completeLocked() bool {
	return c.outcome != nil && c.outcome.Status == domain.DeploymentSuccess
}

func (c *Controller) shouldSubmitLocked() bool {
	return c.outcome == nil || c.outcome.Status == domain.DeploymentFailure
}

// submitLocked records a new pending outcome and starts the gateway call.
// The call runs on a context detached from ctx: once submitted, a
// deployment is never cancelled.
func (c *Controller) submitLocked(ctx context.Context) (domain.DeploymentOutcome, domain.ContractDraft) {
	c.attempts++
	outcome := domain.DeploymentOutcome{
		Status:      domain.DeploymentPending,
		Attempt:     c.attempts,
		SubmittedAt: c.now(),
	}
	c.outcome = &outcome
	draft := c.draft

	done := make(chan struct{})
	c.done = done
	c.inflight.Add(1)
	go c.deploy(context.WithoutCancel(ctx), outcome.Attempt, draft, done)

	return outcome, draft
}

func (c *Controller) fireSubmit(outcome domain.DeploymentOutcome, draft domain.ContractDraft) {
	c.logger.Info("deployment submitted",
		slog.Int("attempt", outcome.Attempt),
		slog.String("contract_name", draft.Name),
	)
	if c.hooks.OnSubmit != nil {
		c.hooks.OnSubmit(outcome, draft)
	}
}

// deploy calls the gateway and records the result unless the controller
// was closed or a newer submission exists.
func (c *Controller) deploy(ctx context.Context, attempt int, draft domain.ContractDraft, done chan struct{}) {
	defer c.inflight.Done()
	defer close(done)

	if c.deployTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.deployTimeout)
		defer cancel()
	}

	contract, err := c.callGateway(ctx, draft)

	c.mu.Lock()
	if c.closed || c.outcome == nil || c.outcome.Attempt != attempt {
		c.mu.Unlock()
		c.logger.Debug("discarding deployment result",
			slog.Int("attempt", attempt),
		)
		return
	}
	resolved := c.now()
	c.outcome.ResolvedAt = &resolved
	if err != nil {
		c.outcome.Status = domain.DeploymentFailure
		c.outcome.Error = err.Error()
	} else {
		c.outcome.Status = domain.DeploymentSuccess
		c.outcome.Contract = &contract
	}
	outcome := *c.outcome
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("deployment failed",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	} else {
		c.logger.Info("deployment succeeded",
			slog.Int("attempt", attempt),
			slog.String("address", contract.Address),
		)
	}
	if c.hooks.OnOutcome != nil {
		c.hooks.OnOutcome(outcome, draft)
	}
}

// callGateway shields the controller from gateway panics so a faulty
// gateway surfaces as a failed outcome.
func (c *Controller) callGateway(ctx context.Context, draft domain.ContractDraft) (contract domain.DeployedContract, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &domain.DeploymentError{Err: fmt.Errorf("gateway panic: %v", r)}
		}
	}()
	if c.gateway == nil {
		return domain.DeployedContract{}, &domain.DeploymentError{Err: fmt.Errorf("no deployment gateway configured")}
	}
	return c.gateway.Deploy(ctx, draft)
}

// Wait blocks until the latest submission resolves or ctx ends and returns
// the outcome at that point.
func (c *Controller) Wait(ctx context.Context) (domain.DeploymentOutcome, error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return domain.DeploymentOutcome{}, domain.ErrNoDeployment
	}

	select {
	case <-done:
	case <-ctx.Done():
		return domain.DeploymentOutcome{}, ctx.Err()
	}

	out := c.Outcome()
	if out == nil {
		return domain.DeploymentOutcome{}, domain.ErrNoDeployment
	}
	return *out, nil
}

// Close tears the controller down. Later events fail with
// domain.ErrSessionClosed and an outstanding deployment result is dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Step returns the current step.
func (c *Controller) Step() domain.StepID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

// Draft returns a copy of the accumulated draft.
func (c *Controller) Draft() domain.ContractDraft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Outcome returns a copy of the latest deployment outcome, or nil if the
// draft was never submitted.
func (c *Controller) Outcome() *domain.DeploymentOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcome == nil {
		return nil
	}
	out := *c.outcome
	return &out
}

// Complete reports whether the wizard reached a successful deployment.
func (c *Controller) Complete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completeLocked()
}

// InitialValues returns the values the current step's form starts with:
// whatever was merged for it earlier, plus defaults.
func (c *Controller) InitialValues() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	values := c.draft.Values(c.step)
	if c.step == domain.StepSourcingData {
		if _, ok := values[domain.FieldOracleDataSource]; !ok {
			values[domain.FieldOracleDataSource] = domain.DefaultOracleDataSource
		}
	}
	return values
}

// Snapshot captures the controller state for persistence.
func (c *Controller) Snapshot(sessionID string) domain.WizardSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := domain.WizardSnapshot{
		SessionID: sessionID,
		Step:      c.step,
		Draft:     c.draft,
		Complete:  c.completeLocked(),
		UpdatedAt: c.now().UTC(),
	}
	if c.outcome != nil {
		out := *c.outcome
		snap.Outcome = &out
	}
	return snap
}
