package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fondfamilial/backend/internal/services"
)

type CreditHandler struct {
	credits   *services.CreditService
	validator *services.ValidationHelper
}

func NewCreditHandler(credits *services.CreditService) *CreditHandler {
	return &CreditHandler{
		credits:   credits,
		validator: services.NewValidationHelper(),
	}
}

type grantRequest struct {
	MemberID  string `json:"member_id" validate:"required,uuid4"`
	Principal int64  `json:"principal" validate:"required,gt=0"`
	DueDate   string `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
}

// Grant creates a credit
// @Summary Grant credit
// @Description Grant a credit with fixed +20% interest; due date defaults to the next August 31
// @Tags Credits
// @Accept json
// @Produce json
// @Param request body grantRequest true "Credit to grant"
// @Success 201 {object} models.Credit
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /credits [post]
func (h *CreditHandler) Grant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var dueDate time.Time
	if req.DueDate != "" {
		dueDate, _ = time.Parse("2006-01-02", req.DueDate)
	}

	credit, err := h.credits.Grant(r.Context(), req.MemberID, req.Principal, dueDate)
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, credit)
}

// List returns all credits
// @Summary List credits
// @Tags Credits
// @Produce json
// @Success 200 {array} models.Credit
// @Router /credits [get]
func (h *CreditHandler) List(w http.ResponseWriter, r *http.Request) {
	credits, err := h.credits.List(r.Context())
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, credits)
}

// Get returns one credit
// @Summary Get credit
// @Tags Credits
// @Produce json
// @Param id path string true "Credit ID"
// @Success 200 {object} models.Credit
// @Failure 404 {object} services.ErrorResponse
// @Router /credits/{id} [get]
func (h *CreditHandler) Get(w http.ResponseWriter, r *http.Request) {
	credit, err := h.credits.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, credit)
}

type repayRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

// Repay records a repayment
// @Summary Record repayment
// @Description Settle accumulated penalty first, then principal; over-payment is rejected
// @Tags Credits
// @Accept json
// @Produce json
// @Param id path string true "Credit ID"
// @Param request body repayRequest true "Repayment amount"
// @Success 200 {object} models.Credit
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /credits/{id}/remboursements [post]
func (h *CreditHandler) Repay(w http.ResponseWriter, r *http.Request) {
	var req repayRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	credit, err := h.credits.Repay(r.Context(), chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, credit)
}

// Repayments returns the payment history of a credit
// @Summary List repayments
// @Tags Credits
// @Produce json
// @Param id path string true "Credit ID"
// @Success 200 {array} models.Repayment
// @Failure 404 {object} services.ErrorResponse
// @Router /credits/{id}/remboursements [get]
func (h *CreditHandler) Repayments(w http.ResponseWriter, r *http.Request) {
	repayments, err := h.credits.Repayments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repayments)
}

// Delete removes a credit and its linked history
// @Summary Delete credit
// @Tags Credits
// @Produce json
// @Param id path string true "Credit ID"
// @Success 200 {object} object{success=bool}
// @Failure 404 {object} services.ErrorResponse
// @Router /credits/{id} [delete]
func (h *CreditHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.credits.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
