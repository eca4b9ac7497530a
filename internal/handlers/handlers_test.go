package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fondfamilial/backend/internal/models"
	"github.com/fondfamilial/backend/internal/services"
	"github.com/fondfamilial/backend/internal/store"
)

func newTestRouter(t *testing.T) (chi.Router, *services.MemberService, *services.CreditService) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	st := store.NewMemoryStore()
	ledger := services.NewLedgerService(st, nil, nil, log)
	credits := services.NewCreditService(st, ledger, log)
	sessions := services.NewSessionService(st, credits, ledger, log)
	cassation := services.NewCassationService(st, ledger, sessions, log)
	members := services.NewMemberService(st, ledger, log)

	movementHandler := NewMovementHandler(ledger)
	creditHandler := NewCreditHandler(credits)
	sessionHandler := NewSessionHandler(sessions)
	cassationHandler := NewCassationHandler(cassation)
	memberHandler := NewMemberHandler(members, ledger)

	r := chi.NewRouter()
	r.Get("/fonds/solde", movementHandler.FundBalance)
	r.Post("/mouvements", movementHandler.Create)
	r.Get("/mouvements", movementHandler.List)
	r.Post("/credits", creditHandler.Grant)
	r.Post("/credits/{id}/remboursements", creditHandler.Repay)
	r.Post("/sessions", sessionHandler.Create)
	r.Get("/cassation/simulation", cassationHandler.Simulate)
	r.Get("/cassation/etat", cassationHandler.Etat)
	r.Post("/membres", memberHandler.Create)
	r.Get("/membres/{id}/epargne", memberHandler.Savings)
	return r, members, credits
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateMemberEndpoint(t *testing.T) {
	r, _, _ := newTestRouter(t)

	t.Run("creates a member", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/membres", map[string]any{"nom": "Alice", "caution": 5000})
		require.Equal(t, http.StatusCreated, w.Code)

		var member models.Member
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &member))
		assert.Equal(t, "Alice", member.Nom)
		assert.NotEmpty(t, member.ID)
	})

	t.Run("rejects a short name", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/membres", map[string]any{"nom": "A"})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp services.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Contains(t, resp.Details, "Nom")
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/membres", map[string]any{"nom": "Alice", "surnom": "Al"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestMovementEndpoints(t *testing.T) {
	r, members, _ := newTestRouter(t)
	alice, err := members.Create(context.Background(), "Alice", "", 0)
	require.NoError(t, err)

	t.Run("records a movement", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/mouvements", map[string]any{
			"member_id": alice.ID, "type": "epargne", "amount": 10_000, "reason": "mensuel",
		})
		require.Equal(t, http.StatusCreated, w.Code)

		var mv models.Movement
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &mv))
		assert.Equal(t, models.MovementEpargne, mv.Type)
	})

	t.Run("unknown member maps to 404", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/mouvements", map[string]any{
			"member_id": "11111111-2222-4333-8444-555555555555", "type": "epargne", "amount": 100,
		})
		assert.Equal(t, http.StatusNotFound, w.Code)

		var resp services.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "UNKNOWN_MEMBER", resp.Code)
	})

	t.Run("sign mismatch maps to 400", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/mouvements", map[string]any{
			"member_id": alice.ID, "type": "epargne", "amount": -100,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("fund balance reflects the journal", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/fonds/solde", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var fb services.FundBalance
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fb))
		assert.Equal(t, int64(10_000), fb.Solde)
	})

	t.Run("member savings endpoint", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, fmt.Sprintf("/membres/%s/epargne", alice.ID), nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			SoldeEpargne int64 `json:"solde_epargne"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, int64(10_000), resp.SoldeEpargne)
	})
}

func TestCreditEndpoints(t *testing.T) {
	r, members, _ := newTestRouter(t)
	alice, err := members.Create(context.Background(), "Alice", "", 0)
	require.NoError(t, err)

	var credit models.Credit
	t.Run("grants a credit", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/credits", map[string]any{
			"member_id": alice.ID, "principal": 10_000,
		})
		require.Equal(t, http.StatusCreated, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &credit))
		assert.Equal(t, int64(12_000), credit.TotalDue)
	})

	t.Run("excess repayment maps to 409", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/credits/%s/remboursements", credit.ID), map[string]any{
			"amount": 50_000,
		})
		assert.Equal(t, http.StatusConflict, w.Code)

		var resp services.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "EXCESS_REPAYMENT", resp.Code)
	})

	t.Run("repays", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/credits/%s/remboursements", credit.ID), map[string]any{
			"amount": 12_000,
		})
		require.Equal(t, http.StatusOK, w.Code)

		var updated models.Credit
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
		assert.Equal(t, models.CreditRepaid, updated.Status)
	})
}

func TestCassationEndpoints(t *testing.T) {
	r, _, _ := newTestRouter(t)

	t.Run("etat before any cassation maps to 404", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/cassation/etat", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		var resp services.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "NO_CASSATION_YET", resp.Code)
	})

	t.Run("simulation on an empty fund", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/cassation/simulation", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var sim services.Simulation
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sim))
		assert.Equal(t, int64(0), sim.FondsDisponible)
	})
}
