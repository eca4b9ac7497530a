package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fondfamilial/backend/internal/models"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresStoreGetMember(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		store, mock := newMockStore(t)
		now := time.Now()
		mock.ExpectQuery("SELECT id, nom, telephone, caution, solde_epargne, created_at").
			WithArgs("m1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "nom", "telephone", "caution", "solde_epargne", "created_at"}).
				AddRow("m1", "Alice", "0600000000", int64(5000), int64(80_000), now))

		member, err := store.GetMember(context.Background(), "m1")
		require.NoError(t, err)
		assert.Equal(t, "Alice", member.Nom)
		assert.Equal(t, int64(80_000), member.SoldeEpargne)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT id, nom, telephone, caution, solde_epargne, created_at").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"id", "nom", "telephone", "caution", "solde_epargne", "created_at"}))

		_, err := store.GetMember(context.Background(), "missing")
		assert.ErrorIs(t, err, models.ErrUnknownMember)
	})
}

func TestPostgresStoreGetActiveSession(t *testing.T) {
	t.Run("no active session returns nil", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT id, numero, nom, date_debut").
			WillReturnRows(sqlmock.NewRows([]string{"id", "numero", "nom", "date_debut", "date_fin", "total_epargne", "total_interets", "fonds_disponible", "status"}))

		sess, err := store.GetActiveSession(context.Background())
		require.NoError(t, err)
		assert.Nil(t, sess)
	})

	t.Run("active session", func(t *testing.T) {
		store, mock := newMockStore(t)
		now := time.Now()
		mock.ExpectQuery("SELECT id, numero, nom, date_debut").
			WillReturnRows(sqlmock.NewRows([]string{"id", "numero", "nom", "date_debut", "date_fin", "total_epargne", "total_interets", "fonds_disponible", "status"}).
				AddRow("s1", 3, "Session 3", now, nil, int64(0), int64(0), int64(0), "active"))

		sess, err := store.GetActiveSession(context.Background())
		require.NoError(t, err)
		require.NotNil(t, sess)
		assert.Equal(t, 3, sess.Numero)
		assert.Equal(t, models.SessionActive, sess.Status)
	})
}

func TestPostgresStoreUpdateMemberSavings(t *testing.T) {
	t.Run("missing member maps to domain error", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("UPDATE membres SET solde_epargne").
			WithArgs(int64(100), "missing").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.UpdateMemberSavings(context.Background(), "missing", 100)
		assert.ErrorIs(t, err, models.ErrUnknownMember)
	})
}

func TestPostgresStoreAtomically(t *testing.T) {
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO mouvements").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store.Atomically(ctx, func(tx Store) error {
			return tx.InsertMovement(ctx, &models.Movement{
				ID: "mv1", MemberID: "m1", Type: models.MovementEpargne, Amount: 100,
				Date: time.Now(), CreatedAt: time.Now(),
			})
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err := store.Atomically(ctx, func(tx Store) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nested calls reuse the transaction", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM mouvements").
			WithArgs("c1").
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		err := store.Atomically(ctx, func(tx Store) error {
			return tx.Atomically(ctx, func(inner Store) error {
				return inner.DeleteCreditMovements(ctx, "c1")
			})
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStoreBackfillMovementSessions(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE mouvements SET session_id").
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := store.BackfillMovementSessions(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}
