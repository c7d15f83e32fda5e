package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/simexchange/internal/service"
	"github.com/alanyoungcy/simexchange/internal/wizard"
)

// WizardService defines the methods that the wizard handler requires from
// the service layer.
type WizardService interface {
	Create(ctx context.Context) (service.WizardState, error)
	Get(ctx context.Context, id string) (service.WizardState, error)
	Next(ctx context.Context, id string, raw wizard.RawFields) (service.TransitionResult, error)
	Back(ctx context.Context, id string) (service.TransitionResult, error)
	Close(ctx context.Context, id string) error
}

// WizardHandler serves the contract deployment wizard endpoints.
type WizardHandler struct {
	wizard WizardService
	logger *slog.Logger
}

// NewWizardHandler creates a WizardHandler.
func NewWizardHandler(svc WizardService, logger *slog.Logger) *WizardHandler {
	return &WizardHandler{wizard: svc, logger: logHandler(logger, "wizard")}
}

// Create starts a session.
// POST /api/wizard/sessions
func (h *WizardHandler) Create(w http.ResponseWriter, r *http.Request) {
	st, err := h.wizard.Create(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "create session", err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

// Get returns a session's state.
// GET /api/wizard/sessions/{id}
func (h *WizardHandler) Get(w http.ResponseWriter, r *http.Request) {
	st, err := h.wizard.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get session", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Next submits the current step's fields. The body is a JSON object of
// field values; numbers are decoded as json.Number. Validation
// failures answer 422 with the field errors.
// POST /api/wizard/sessions/{id}/next
func (h *WizardHandler) Next(w http.ResponseWriter, r *http.Request) {
	raw := map[string]any{}
	if err := decodeBody(r, &raw); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.wizard.Next(r.Context(), pathParam(r, "id"), wizard.RawFields(raw))
	if err != nil {
		writeServiceError(w, r, h.logger, "next step", err)
		return
	}
	if len(res.Errors) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Back returns to the previous step.
// POST /api/wizard/sessions/{id}/back
func (h *WizardHandler) Back(w http.ResponseWriter, r *http.Request) {
	res, err := h.wizard.Back(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "previous step", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Close ends a session.
// DELETE /api/wizard/sessions/{id}
func (h *WizardHandler) Close(w http.ResponseWriter, r *http.Request) {
	if err := h.wizard.Close(r.Context(), pathParam(r, "id")); err != nil {
		writeServiceError(w, r, h.logger, "close session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
