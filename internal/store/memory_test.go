package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fondfamilial/backend/internal/models"
)

func TestMemoryStoreAtomically(t *testing.T) {
	ctx := context.Background()

	t.Run("commit keeps writes", func(t *testing.T) {
		m := NewMemoryStore()
		err := m.Atomically(ctx, func(tx Store) error {
			return tx.CreateMember(ctx, &models.Member{ID: "m1", Nom: "Alice"})
		})
		require.NoError(t, err)

		member, err := m.GetMember(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, "Alice", member.Nom)
	})

	t.Run("error rolls everything back", func(t *testing.T) {
		m := NewMemoryStore()
		require.NoError(t, m.CreateMember(ctx, &models.Member{ID: "m1", Nom: "Alice"}))

		boom := errors.New("boom")
		err := m.Atomically(ctx, func(tx Store) error {
			if err := tx.InsertMovement(ctx, &models.Movement{ID: "mv1", MemberID: "m1", Type: models.MovementEpargne, Amount: 100}); err != nil {
				return err
			}
			if err := tx.UpdateMemberSavings(ctx, "m1", 100); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		movements, err := m.ListMovements(ctx)
		require.NoError(t, err)
		assert.Empty(t, movements)

		member, err := m.GetMember(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, int64(0), member.SoldeEpargne)
	})

	t.Run("nested calls reuse the transaction", func(t *testing.T) {
		m := NewMemoryStore()
		err := m.Atomically(ctx, func(tx Store) error {
			return tx.Atomically(ctx, func(inner Store) error {
				return inner.CreateMember(ctx, &models.Member{ID: "m1", Nom: "Alice"})
			})
		})
		require.NoError(t, err)

		_, err = m.GetMember(ctx, "m1")
		assert.NoError(t, err)
	})
}

func TestMemoryStoreSessions(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects a second active session", func(t *testing.T) {
		m := NewMemoryStore()
		require.NoError(t, m.InsertSession(ctx, &models.Session{ID: "s1", Numero: 1, Status: models.SessionActive}))

		err := m.InsertSession(ctx, &models.Session{ID: "s2", Numero: 2, Status: models.SessionActive})
		assert.ErrorIs(t, err, models.ErrSessionAlreadyActive)
	})

	t.Run("active lookup returns nil when none", func(t *testing.T) {
		m := NewMemoryStore()
		active, err := m.GetActiveSession(ctx)
		require.NoError(t, err)
		assert.Nil(t, active)
	})

	t.Run("numero sequence", func(t *testing.T) {
		m := NewMemoryStore()
		n, err := m.NextSessionNumero(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		require.NoError(t, m.InsertSession(ctx, &models.Session{ID: "s1", Numero: 1, Status: models.SessionTerminee}))
		require.NoError(t, m.InsertSession(ctx, &models.Session{ID: "s2", Numero: 2, Status: models.SessionTerminee}))

		n, err = m.NextSessionNumero(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})
}

func TestMemoryStoreMovementOrdering(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.CreateMember(ctx, &models.Member{ID: "m1", Nom: "Alice"}))

	now := time.Now()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, m.InsertMovement(ctx, &models.Movement{
			ID: id, MemberID: "m1", Type: models.MovementEpargne, Amount: 10, Date: now, CreatedAt: now,
		}))
	}

	movements, err := m.ListMovements(ctx)
	require.NoError(t, err)
	require.Len(t, movements, 3)
	assert.Equal(t, "a", movements[0].ID)
	assert.Equal(t, "b", movements[1].ID)
	assert.Equal(t, "c", movements[2].ID)
}
