package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fondfamilial/backend/internal/models"
)

func TestGrantCredit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.addMember(t, "Alice")

	t.Run("rejects non-positive principal", func(t *testing.T) {
		_, err := env.credits.Grant(ctx, alice.ID, 0, time.Time{})
		assert.ErrorIs(t, err, models.ErrInvalidPrincipal)
		_, err = env.credits.Grant(ctx, alice.ID, -500, time.Time{})
		assert.ErrorIs(t, err, models.ErrInvalidPrincipal)
	})

	t.Run("rejects unknown member", func(t *testing.T) {
		_, err := env.credits.Grant(ctx, "nobody", 1000, time.Time{})
		assert.ErrorIs(t, err, models.ErrUnknownMember)
	})

	t.Run("applies 20 percent interest and disburses", func(t *testing.T) {
		credit, err := env.credits.Grant(ctx, alice.ID, 1_000_000, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, int64(1_000_000), credit.Principal)
		assert.Equal(t, int64(1_200_000), credit.TotalDue)
		assert.Equal(t, int64(1_200_000), credit.Remaining)
		assert.Equal(t, models.CreditActive, credit.Status)
		assert.Equal(t, models.DefaultDueDate(credit.GrantedAt), credit.DueDate)

		movements, err := env.ledger.ListMovements(ctx)
		require.NoError(t, err)
		require.Len(t, movements, 1)
		assert.Equal(t, models.MovementCreditAccorde, movements[0].Type)
		assert.Equal(t, int64(-1_000_000), movements[0].Amount)
		require.NotNil(t, movements[0].CreditID)
		assert.Equal(t, credit.ID, *movements[0].CreditID)

		fb, err := env.ledger.ProjectFundBalance(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(-1_000_000), fb.Solde)
		assert.Equal(t, int64(200_000), fb.SoldeFictif)
	})
}

func TestRepayCredit(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects over-payment instead of truncating", func(t *testing.T) {
		env := newTestEnv(t)
		alice := env.addMember(t, "Alice")
		credit, err := env.credits.Grant(ctx, alice.ID, 10_000, time.Time{})
		require.NoError(t, err)

		_, err = env.credits.Repay(ctx, credit.ID, 12_001)
		assert.ErrorIs(t, err, models.ErrExcessRepayment)

		_, err = env.credits.Repay(ctx, credit.ID, 0)
		assert.ErrorIs(t, err, models.ErrInvalidAmount)
	})

	t.Run("partial then full repayment", func(t *testing.T) {
		env := newTestEnv(t)
		alice := env.addMember(t, "Alice")
		credit, err := env.credits.Grant(ctx, alice.ID, 10_000, time.Time{})
		require.NoError(t, err)

		credit, err = env.credits.Repay(ctx, credit.ID, 5_000)
		require.NoError(t, err)
		assert.Equal(t, int64(7_000), credit.Remaining)
		assert.Equal(t, models.CreditActive, credit.Status)

		credit, err = env.credits.Repay(ctx, credit.ID, 7_000)
		require.NoError(t, err)
		assert.Equal(t, int64(0), credit.Remaining)
		assert.Equal(t, models.CreditRepaid, credit.Status)

		repayments, err := env.credits.Repayments(ctx, credit.ID)
		require.NoError(t, err)
		require.Len(t, repayments, 2)
		assert.Equal(t, models.RepaymentPrincipal, repayments[0].Type)
		assert.Equal(t, models.RepaymentPrincipal, repayments[1].Type)
	})

	t.Run("penalty settles first", func(t *testing.T) {
		env := newTestEnv(t)
		alice := env.addMember(t, "Alice")
		overdue := time.Now().AddDate(0, -1, 0)
		credit, err := env.credits.Grant(ctx, alice.ID, 1_000_000, overdue)
		require.NoError(t, err)

		// Opening a session sweeps the overdue credit: 1,200,000 -> 1,440,000.
		result, err := env.sessions.Create(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, result.PenaltiesApplied)

		credit, err = env.credits.Get(ctx, credit.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1_440_000), credit.Remaining)
		assert.Equal(t, int64(240_000), credit.PenaltyDue)
		assert.Equal(t, models.CreditLate, credit.Status)

		credit, err = env.credits.Repay(ctx, credit.ID, 300_000)
		require.NoError(t, err)
		assert.Equal(t, int64(1_140_000), credit.Remaining)
		assert.Equal(t, int64(0), credit.PenaltyDue)
		assert.Equal(t, models.CreditActive, credit.Status, "partial repayment lifts the late flag")

		repayments, err := env.credits.Repayments(ctx, credit.ID)
		require.NoError(t, err)
		require.Len(t, repayments, 2)
		assert.Equal(t, models.RepaymentPenalty, repayments[0].Type)
		assert.Equal(t, int64(240_000), repayments[0].Amount)
		assert.Equal(t, models.RepaymentPrincipal, repayments[1].Type)
		assert.Equal(t, int64(60_000), repayments[1].Amount)
	})
}

func TestPenaltySweep(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.addMember(t, "Alice")
	overdue := time.Now().AddDate(0, -1, 0)
	credit, err := env.credits.Grant(ctx, alice.ID, 1_000_000, overdue)
	require.NoError(t, err)

	result, err := env.sessions.Create(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.PenaltiesApplied)

	t.Run("idempotent per session", func(t *testing.T) {
		applied, err := env.credits.PenaltySweep(ctx, env.store, result.Session.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, applied)

		c, err := env.credits.Get(ctx, credit.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1_440_000), c.Remaining)
	})

	t.Run("records the interest movement", func(t *testing.T) {
		movements, err := env.ledger.ListMovements(ctx)
		require.NoError(t, err)

		var interest *models.Movement
		for i := range movements {
			if movements[i].Type == models.MovementInteret {
				interest = &movements[i]
			}
		}
		require.NotNil(t, interest)
		assert.Equal(t, int64(240_000), interest.Amount)
		require.NotNil(t, interest.SessionID)
		assert.Equal(t, result.Session.ID, *interest.SessionID)
	})

	t.Run("compounds on the next session", func(t *testing.T) {
		_, err := env.sessions.Create(ctx)
		require.NoError(t, err)

		c, err := env.credits.Get(ctx, credit.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1_728_000), c.Remaining)
		assert.Equal(t, int64(528_000), c.PenaltyDue)
	})
}

func TestDeleteCredit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.addMember(t, "Alice")

	credit, err := env.credits.Grant(ctx, alice.ID, 10_000, time.Time{})
	require.NoError(t, err)
	_, err = env.credits.Repay(ctx, credit.ID, 5_000)
	require.NoError(t, err)

	require.NoError(t, env.credits.Delete(ctx, credit.ID))

	_, err = env.credits.Get(ctx, credit.ID)
	assert.ErrorIs(t, err, models.ErrCreditNotFound)

	movements, err := env.ledger.ListMovements(ctx)
	require.NoError(t, err)
	assert.Empty(t, movements, "credit-linked movements are cleaned up")

	fb, err := env.ledger.ProjectFundBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), fb.Solde)
}
