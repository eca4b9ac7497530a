package handlers

import (
	"net/http"

	"github.com/fondfamilial/backend/internal/services"
)

type MaintenanceHandler struct {
	ledger *services.LedgerService
}

func NewMaintenanceHandler(ledger *services.LedgerService) *MaintenanceHandler {
	return &MaintenanceHandler{ledger: ledger}
}

// ResyncBalances recomputes every cached member balance from the journal
// @Summary Resync member balances
// @Description Idempotent repair of cached savings balances against the journal projection
// @Tags Maintenance
// @Produce json
// @Success 200 {object} object{repaired=int}
// @Router /maintenance/resync-soldes [post]
func (h *MaintenanceHandler) ResyncBalances(w http.ResponseWriter, r *http.Request) {
	repaired, err := h.ledger.ResyncMemberBalances(r.Context())
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"repaired": repaired})
}

// BackfillSessions assigns the earliest session to untagged movements
// @Summary Backfill movement sessions
// @Tags Maintenance
// @Produce json
// @Success 200 {object} object{repaired=int64}
// @Failure 404 {object} services.ErrorResponse
// @Router /maintenance/backfill-sessions [post]
func (h *MaintenanceHandler) BackfillSessions(w http.ResponseWriter, r *http.Request) {
	repaired, err := h.ledger.BackfillSessionIDs(r.Context())
	if err != nil {
		sendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"repaired": repaired})
}
