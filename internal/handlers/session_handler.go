package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fondfamilial/backend/internal/services"
)

type SessionHandler struct {
	sessions  *services.SessionService
	validator *services.ValidationHelper
}

func NewSessionHandler(sessions *services.SessionService) *SessionHandler {
	return &SessionHandler{
		sessions:  sessions,
		validator: services.NewValidationHelper(),
	}
}

// Create opens the next session
// @Summary Open session
// @Description Close the active session if any, open the next one and run the overdue-credit penalty sweep
// @Tags Sessions
// @Produce json
// @Success 201 {object} services.CreateResult
// @Failure 409 {object} services.ErrorResponse
// @Router /sessions [post]
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	result, err := h.sessions.Create(r.Context())
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// List returns all sessions
// @Summary List sessions
// @Tags Sessions
// @Produce json
// @Success 200 {array} models.Session
// @Router /sessions [get]
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.List(r.Context())
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// Get returns one session
// @Summary Get session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.Session
// @Failure 404 {object} services.ErrorResponse
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type renameRequest struct {
	Nom string `json:"nom" validate:"required,max=100"`
}

// Rename sets a session's display name
// @Summary Rename session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body renameRequest true "New name"
// @Success 200 {object} models.Session
// @Failure 400 {object} services.ErrorResponse
// @Router /sessions/{id}/nom [put]
func (h *SessionHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	sess, err := h.sessions.Rename(r.Context(), chi.URLParam(r, "id"), req.Nom)
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// End closes a session without opening a successor
// @Summary End session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.Session
// @Failure 409 {object} services.ErrorResponse
// @Router /sessions/{id}/terminer [post]
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.End(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Delete soft-deletes a non-active session
// @Summary Delete session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} object{success=bool}
// @Failure 409 {object} services.ErrorResponse
// @Router /sessions/{id} [delete]
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Members rebuilds and returns the per-member rollups of a session
// @Summary Session member rollups
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {array} models.SessionMember
// @Failure 404 {object} services.ErrorResponse
// @Router /sessions/{id}/membres [get]
func (h *SessionHandler) Members(w http.ResponseWriter, r *http.Request) {
	rollups, err := h.sessions.RecomputeSessionMembers(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rollups)
}
