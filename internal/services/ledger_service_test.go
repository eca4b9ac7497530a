package services

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fondfamilial/backend/internal/models"
	"github.com/fondfamilial/backend/internal/store"
)

type testEnv struct {
	store     *store.MemoryStore
	ledger    *LedgerService
	credits   *CreditService
	sessions  *SessionService
	cassation *CassationService
	members   *MemberService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	st := store.NewMemoryStore()
	ledger := NewLedgerService(st, nil, nil, log)
	credits := NewCreditService(st, ledger, log)
	sessions := NewSessionService(st, credits, ledger, log)
	cassation := NewCassationService(st, ledger, sessions, log)
	members := NewMemberService(st, ledger, log)
	return &testEnv{
		store:     st,
		ledger:    ledger,
		credits:   credits,
		sessions:  sessions,
		cassation: cassation,
		members:   members,
	}
}

func (e *testEnv) addMember(t *testing.T, nom string) *models.Member {
	t.Helper()
	member, err := e.members.Create(context.Background(), nom, "", 0)
	require.NoError(t, err)
	return member
}

func TestAppendMovementValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.addMember(t, "Alice")

	t.Run("unknown type", func(t *testing.T) {
		_, err := env.ledger.AppendMovement(ctx, alice.ID, "virement", 100, "", nil)
		assert.ErrorIs(t, err, models.ErrInvalidType)
	})

	t.Run("zero amount", func(t *testing.T) {
		_, err := env.ledger.AppendMovement(ctx, alice.ID, models.MovementEpargne, 0, "", nil)
		assert.ErrorIs(t, err, models.ErrInvalidAmount)
	})

	t.Run("sign mismatch", func(t *testing.T) {
		_, err := env.ledger.AppendMovement(ctx, alice.ID, models.MovementEpargne, -100, "", nil)
		assert.ErrorIs(t, err, models.ErrInvalidAmount)

		_, err = env.ledger.AppendMovement(ctx, alice.ID, models.MovementCassation, 100, "", nil)
		assert.ErrorIs(t, err, models.ErrInvalidAmount)
	})

	t.Run("unknown member", func(t *testing.T) {
		_, err := env.ledger.AppendMovement(ctx, "nobody", models.MovementEpargne, 100, "", nil)
		assert.ErrorIs(t, err, models.ErrUnknownMember)
	})

	t.Run("reglement accepts both signs", func(t *testing.T) {
		_, err := env.ledger.AppendMovement(ctx, alice.ID, models.MovementReglement, -50, "ajustement", nil)
		assert.NoError(t, err)
		_, err = env.ledger.AppendMovement(ctx, alice.ID, models.MovementReglement, 50, "ajustement", nil)
		assert.NoError(t, err)
	})
}

func TestAppendMovementTagsActiveSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.addMember(t, "Alice")

	mv, err := env.ledger.AppendMovement(ctx, alice.ID, models.MovementEpargne, 1000, "", nil)
	require.NoError(t, err)
	assert.Nil(t, mv.SessionID, "no active session, tag stays empty")

	result, err := env.sessions.Create(ctx)
	require.NoError(t, err)

	mv, err = env.ledger.AppendMovement(ctx, alice.ID, models.MovementEpargne, 2000, "", nil)
	require.NoError(t, err)
	require.NotNil(t, mv.SessionID)
	assert.Equal(t, result.Session.ID, *mv.SessionID)
}

func TestAppendMovementResyncsSavings(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.addMember(t, "Alice")

	_, err := env.ledger.AppendMovement(ctx, alice.ID, models.MovementEpargne, 5000, "", nil)
	require.NoError(t, err)
	_, err = env.ledger.AppendMovement(ctx, alice.ID, models.MovementDepenseCommuneEpargne, -1000, "", nil)
	require.NoError(t, err)
	// Contributions to the common pot do not touch the savings base.
	_, err = env.ledger.AppendMovement(ctx, alice.ID, models.MovementCotisationAnnuelle, 2000, "", nil)
	require.NoError(t, err)

	member, err := env.members.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), member.SoldeEpargne)

	projected, err := env.ledger.ProjectMemberSavings(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), projected)
}

func TestUpdateAndDeleteMovement(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.addMember(t, "Alice")

	mv, err := env.ledger.AppendMovement(ctx, alice.ID, models.MovementEpargne, 5000, "", nil)
	require.NoError(t, err)

	t.Run("update re-projects the balance", func(t *testing.T) {
		updated, err := env.ledger.UpdateMovement(ctx, mv.ID, models.MovementEpargne, 3000, "corrige")
		require.NoError(t, err)
		assert.Equal(t, int64(3000), updated.Amount)

		member, err := env.members.Get(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3000), member.SoldeEpargne)
	})

	t.Run("update enforces the type's sign", func(t *testing.T) {
		_, err := env.ledger.UpdateMovement(ctx, mv.ID, models.MovementEpargne, -3000, "")
		assert.ErrorIs(t, err, models.ErrInvalidAmount)

		_, err = env.ledger.UpdateMovement(ctx, mv.ID, models.MovementCreditAccorde, 3000, "")
		assert.ErrorIs(t, err, models.ErrInvalidAmount)

		// The rejected edits left the movement untouched.
		current, err := env.ledger.GetMovement(ctx, mv.ID)
		require.NoError(t, err)
		assert.Equal(t, models.MovementEpargne, current.Type)
		assert.Equal(t, int64(3000), current.Amount)
	})

	t.Run("delete re-projects the balance", func(t *testing.T) {
		require.NoError(t, env.ledger.DeleteMovement(ctx, mv.ID))

		member, err := env.members.Get(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), member.SoldeEpargne)

		_, err = env.ledger.GetMovement(ctx, mv.ID)
		assert.ErrorIs(t, err, models.ErrMovementNotFound)
	})
}

func TestProjectFundBalance(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.addMember(t, "Alice")
	bob := env.addMember(t, "Bob")

	_, err := env.ledger.AppendMovement(ctx, alice.ID, models.MovementEpargne, 80_000, "", nil)
	require.NoError(t, err)
	_, err = env.ledger.AppendMovement(ctx, bob.ID, models.MovementEpargne, 20_000, "", nil)
	require.NoError(t, err)

	credit, err := env.credits.Grant(ctx, bob.ID, 10_000, time.Time{})
	require.NoError(t, err)

	fb, err := env.ledger.ProjectFundBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(90_000), fb.Solde, "disbursement left the fund")
	assert.Equal(t, int64(100_000), fb.TotalEpargnesNettes)
	assert.Equal(t, int64(10_000), fb.TotalCreditsAccordes)
	assert.Equal(t, int64(12_000), fb.TotalCreditsRestants)
	assert.Equal(t, int64(102_000), fb.SoldeFictif)

	_, err = env.credits.Repay(ctx, credit.ID, 12_000)
	require.NoError(t, err)

	fb, err = env.ledger.ProjectFundBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(102_000), fb.Solde)
	assert.Equal(t, int64(12_000), fb.TotalRemboursements)
	assert.Equal(t, int64(0), fb.TotalCreditsRestants)
	assert.Equal(t, fb.Solde, fb.SoldeFictif, "nothing outstanding")
}

func TestFundBalanceRedisCache(t *testing.T) {
	ctx := context.Background()
	log := logrus.New()
	log.SetOutput(io.Discard)

	t.Run("cache hit skips recomputation", func(t *testing.T) {
		rdb, rmock := redismock.NewClientMock()
		svc := NewLedgerService(store.NewMemoryStore(), rdb, nil, log)

		cached, err := json.Marshal(FundBalance{Solde: 42})
		require.NoError(t, err)
		rmock.ExpectGet(fundBalanceCacheKey).SetVal(string(cached))

		fb, err := svc.ProjectFundBalance(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(42), fb.Solde)
		assert.NoError(t, rmock.ExpectationsWereMet())
	})

	t.Run("cache miss stores the projection", func(t *testing.T) {
		rdb, rmock := redismock.NewClientMock()
		svc := NewLedgerService(store.NewMemoryStore(), rdb, nil, log)

		raw, err := json.Marshal(&FundBalance{})
		require.NoError(t, err)
		rmock.ExpectGet(fundBalanceCacheKey).RedisNil()
		rmock.ExpectSet(fundBalanceCacheKey, raw, fundBalanceCacheTTL).SetVal("OK")

		fb, err := svc.ProjectFundBalance(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), fb.Solde)
		assert.NoError(t, rmock.ExpectationsWereMet())
	})
}

func TestResyncMemberBalances(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.addMember(t, "Alice")

	_, err := env.ledger.AppendMovement(ctx, alice.ID, models.MovementEpargne, 5000, "", nil)
	require.NoError(t, err)

	// Corrupt the cached balance behind the service's back.
	require.NoError(t, env.store.UpdateMemberSavings(ctx, alice.ID, 999))

	repaired, err := env.ledger.ResyncMemberBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)

	member, err := env.members.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), member.SoldeEpargne)

	repaired, err = env.ledger.ResyncMemberBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, repaired, "second run is a no-op")
}

func TestBackfillSessionIDs(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.addMember(t, "Alice")

	t.Run("no session yet", func(t *testing.T) {
		_, err := env.ledger.BackfillSessionIDs(ctx)
		assert.ErrorIs(t, err, models.ErrSessionNotFound)
	})

	_, err := env.ledger.AppendMovement(ctx, alice.ID, models.MovementEpargne, 1000, "", nil)
	require.NoError(t, err)

	result, err := env.sessions.Create(ctx)
	require.NoError(t, err)

	repaired, err := env.ledger.BackfillSessionIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), repaired)

	movements, err := env.ledger.ListMovements(ctx)
	require.NoError(t, err)
	require.NotNil(t, movements[0].SessionID)
	assert.Equal(t, result.Session.ID, *movements[0].SessionID)
}
