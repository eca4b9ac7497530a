package handlers

import (
	"net/http"

	"github.com/fondfamilial/backend/internal/services"
)

type CassationHandler struct {
	cassation *services.CassationService
}

func NewCassationHandler(cassation *services.CassationService) *CassationHandler {
	return &CassationHandler{cassation: cassation}
}

// Simulate dry-runs the distribution
// @Summary Simulate cassation
// @Description Compute the proportional distribution without writing anything
// @Tags Cassation
// @Produce json
// @Success 200 {object} services.Simulation
// @Router /cassation/simulation [get]
func (h *CassationHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	sim, err := h.cassation.Simulate(r.Context())
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sim)
}

// Apply commits the distribution
// @Summary Apply cassation
// @Description Distribute the full available fund proportionally to net contributions and reset savings bases
// @Tags Cassation
// @Produce json
// @Success 200 {object} services.ApplyResult
// @Failure 409 {object} services.ErrorResponse
// @Router /cassation/application [post]
func (h *CassationHandler) Apply(w http.ResponseWriter, r *http.Request) {
	result, err := h.cassation.Apply(r.Context())
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Etat returns the post-cassation state
// @Summary Post-cassation state
// @Tags Cassation
// @Produce json
// @Success 200 {object} services.Etat
// @Failure 404 {object} services.ErrorResponse
// @Router /cassation/etat [get]
func (h *CassationHandler) Etat(w http.ResponseWriter, r *http.Request) {
	etat, err := h.cassation.Etat(r.Context())
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, etat)
}

// NouveauCycle finalizes the zeroed state and reports readiness
// @Summary Prepare new cycle
// @Tags Cassation
// @Produce json
// @Success 200 {object} services.CycleReadiness
// @Failure 404 {object} services.ErrorResponse
// @Router /cassation/nouveau-cycle [post]
func (h *CassationHandler) NouveauCycle(w http.ResponseWriter, r *http.Request) {
	readiness, err := h.cassation.PreparerNouveauCycle(r.Context())
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, readiness)
}
