package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fondfamilial/backend/internal/services"
)

type MemberHandler struct {
	members   *services.MemberService
	ledger    *services.LedgerService
	validator *services.ValidationHelper
}

func NewMemberHandler(members *services.MemberService, ledger *services.LedgerService) *MemberHandler {
	return &MemberHandler{
		members:   members,
		ledger:    ledger,
		validator: services.NewValidationHelper(),
	}
}

type memberRequest struct {
	Nom       string `json:"nom" validate:"required,min=2,max=100"`
	Telephone string `json:"telephone" validate:"omitempty,min=6,max=20"`
	Caution   int64  `json:"caution" validate:"gte=0"`
}

// Create registers a member
// @Summary Register member
// @Tags Membres
// @Accept json
// @Produce json
// @Param request body memberRequest true "Member to register"
// @Success 201 {object} models.Member
// @Failure 400 {object} services.ErrorResponse
// @Router /membres [post]
func (h *MemberHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	member, err := h.members.Create(r.Context(), req.Nom, req.Telephone, req.Caution)
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

// List returns the roster
// @Summary List members
// @Tags Membres
// @Produce json
// @Success 200 {array} models.Member
// @Router /membres [get]
func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	members, err := h.members.List(r.Context())
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

// Get returns one member
// @Summary Get member
// @Tags Membres
// @Produce json
// @Param id path string true "Member ID"
// @Success 200 {object} models.Member
// @Failure 404 {object} services.ErrorResponse
// @Router /membres/{id} [get]
func (h *MemberHandler) Get(w http.ResponseWriter, r *http.Request) {
	member, err := h.members.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

// Movements returns one member's journal slice
// @Summary Member movements
// @Tags Membres
// @Produce json
// @Param id path string true "Member ID"
// @Success 200 {array} models.Movement
// @Failure 404 {object} services.ErrorResponse
// @Router /membres/{id}/mouvements [get]
func (h *MemberHandler) Movements(w http.ResponseWriter, r *http.Request) {
	movements, err := h.members.Movements(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, movements)
}

// Credits returns one member's credit history
// @Summary Member credits
// @Tags Membres
// @Produce json
// @Param id path string true "Member ID"
// @Success 200 {array} models.Credit
// @Failure 404 {object} services.ErrorResponse
// @Router /membres/{id}/credits [get]
func (h *MemberHandler) Credits(w http.ResponseWriter, r *http.Request) {
	credits, err := h.members.Credits(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, credits)
}

// Savings returns the projected savings balance of a member
// @Summary Member savings
// @Description Authoritative savings balance projected from the journal since the last cassation
// @Tags Membres
// @Produce json
// @Param id path string true "Member ID"
// @Success 200 {object} object{member_id=string,solde_epargne=int64}
// @Failure 404 {object} services.ErrorResponse
// @Router /membres/{id}/epargne [get]
func (h *MemberHandler) Savings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	solde, err := h.ledger.ProjectMemberSavings(r.Context(), id)
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"member_id": id, "solde_epargne": solde})
}

// Delete removes a member and their history
// @Summary Delete member
// @Tags Membres
// @Produce json
// @Param id path string true "Member ID"
// @Success 200 {object} object{success=bool}
// @Failure 404 {object} services.ErrorResponse
// @Router /membres/{id} [delete]
func (h *MemberHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.members.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
