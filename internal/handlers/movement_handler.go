package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fondfamilial/backend/internal/models"
	"github.com/fondfamilial/backend/internal/services"
)

type MovementHandler struct {
	ledger    *services.LedgerService
	validator *services.ValidationHelper
}

func NewMovementHandler(ledger *services.LedgerService) *MovementHandler {
	return &MovementHandler{
		ledger:    ledger,
		validator: services.NewValidationHelper(),
	}
}

type movementRequest struct {
	MemberID  string `json:"member_id" validate:"required,uuid4"`
	Type      string `json:"type" validate:"required"`
	Amount    int64  `json:"amount" validate:"required"`
	Reason    string `json:"reason" validate:"max=500"`
	SessionID string `json:"session_id" validate:"omitempty,uuid4"`
}

// Create records a movement in the journal
// @Summary Record movement
// @Description Append a signed movement to the fund journal
// @Tags Mouvements
// @Accept json
// @Produce json
// @Param request body movementRequest true "Movement to record"
// @Success 201 {object} models.Movement
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /mouvements [post]
func (h *MovementHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var sessionID *string
	if req.SessionID != "" {
		sessionID = &req.SessionID
	}

	mv, err := h.ledger.AppendMovement(r.Context(), req.MemberID, models.MovementType(req.Type), req.Amount, req.Reason, sessionID)
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mv)
}

// List returns the full journal
// @Summary List movements
// @Tags Mouvements
// @Produce json
// @Success 200 {array} models.Movement
// @Router /mouvements [get]
func (h *MovementHandler) List(w http.ResponseWriter, r *http.Request) {
	movements, err := h.ledger.ListMovements(r.Context())
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, movements)
}

// Get returns one movement
// @Summary Get movement
// @Tags Mouvements
// @Produce json
// @Param id path string true "Movement ID"
// @Success 200 {object} models.Movement
// @Failure 404 {object} services.ErrorResponse
// @Router /mouvements/{id} [get]
func (h *MovementHandler) Get(w http.ResponseWriter, r *http.Request) {
	mv, err := h.ledger.GetMovement(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mv)
}

type movementUpdateRequest struct {
	Type   string `json:"type" validate:"required"`
	Amount int64  `json:"amount" validate:"required"`
	Reason string `json:"reason" validate:"max=500"`
}

// Update edits a historical movement
// @Summary Update movement
// @Description Corrective edit; movements consumed by a cassation are frozen
// @Tags Mouvements
// @Accept json
// @Produce json
// @Param id path string true "Movement ID"
// @Param request body movementUpdateRequest true "New values"
// @Success 200 {object} models.Movement
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /mouvements/{id} [put]
func (h *MovementHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req movementUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	mv, err := h.ledger.UpdateMovement(r.Context(), chi.URLParam(r, "id"), models.MovementType(req.Type), req.Amount, req.Reason)
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mv)
}

// Delete removes a movement
// @Summary Delete movement
// @Tags Mouvements
// @Produce json
// @Param id path string true "Movement ID"
// @Success 200 {object} object{success=bool}
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /mouvements/{id} [delete]
func (h *MovementHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.DeleteMovement(r.Context(), chi.URLParam(r, "id")); err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// FundBalance returns the aggregate fund read model
// @Summary Fund balance
// @Description Net balance and aggregate totals projected from the journal
// @Tags Fonds
// @Produce json
// @Success 200 {object} services.FundBalance
// @Router /fonds/solde [get]
func (h *MovementHandler) FundBalance(w http.ResponseWriter, r *http.Request) {
	fb, err := h.ledger.ProjectFundBalance(r.Context())
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fb)
}
