package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrLockHeld            = errors.New("lock already held")
	ErrBusy                = errors.New("wizard busy: deployment outstanding")
	ErrSessionClosed       = errors.New("wizard session closed")
	ErrInvalidStep         = errors.New("invalid wizard step")
	ErrFirstStep           = errors.New("already at first wizard step")
	ErrNoDeployment        = errors.New("no deployment submitted")
	ErrDraftIncomplete     = errors.New("contract draft incomplete")
	ErrInvalidAmount       = errors.New("invalid collateral amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNoContractSelected  = errors.New("no contract selected")
)

// DeploymentError wraps a failure reported by the deployment gateway. It is
// surfaced to the user as an error banner and can be recovered from by
// submitting the draft again.
type DeploymentError struct {
	Err error
}

func (e *DeploymentError) Error() string {
	if e.Err == nil {
		return "deployment failed"
	}
	return "deployment failed: " + e.Err.Error()
}

func (e *DeploymentError) Unwrap() error { return e.Err }
