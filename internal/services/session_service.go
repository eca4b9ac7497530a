package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fondfamilial/backend/internal/models"
	"github.com/fondfamilial/backend/internal/store"
)

// SessionService opens and closes accounting periods and chains their
// totals. Opening a session is the only trigger of the credit penalty sweep.
type SessionService struct {
	store   store.Store
	credits *CreditService
	ledger  *LedgerService
	log     *logrus.Logger
}

func NewSessionService(st store.Store, credits *CreditService, ledger *LedgerService, log *logrus.Logger) *SessionService {
	return &SessionService{store: st, credits: credits, ledger: ledger, log: log}
}

// CreateResult reports what a session opening did.
type CreateResult struct {
	Session          *models.Session `json:"session"`
	PenaltiesApplied int             `json:"penalties_applied"`
}

// Create closes the active session (if any), opens the next one and runs the
// penalty sweep against it, all in one transaction: a crash mid-sweep leaves
// no session half-opened and no credit half-penalized.
func (s *SessionService) Create(ctx context.Context) (*CreateResult, error) {
	var result CreateResult
	err := s.store.Atomically(ctx, func(tx store.Store) error {
		active, err := tx.GetActiveSession(ctx)
		if err != nil {
			return err
		}
		if active != nil {
			if err := s.close(ctx, tx, active); err != nil {
				return err
			}
		}

		// The close above must have cleared the active slot; anything else
		// means a concurrent opener won.
		if still, err := tx.GetActiveSession(ctx); err != nil {
			return err
		} else if still != nil {
			return models.ErrSessionAlreadyActive
		}

		numero, err := tx.NextSessionNumero(ctx)
		if err != nil {
			return err
		}
		sess := &models.Session{
			ID:        uuid.NewString(),
			Numero:    numero,
			Nom:       fmt.Sprintf("Session %d", numero),
			DateDebut: time.Now(),
			Status:    models.SessionActive,
		}
		if err := tx.InsertSession(ctx, sess); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}

		// Sweep before any other movement can be tagged with the new
		// session, which is what makes it once-per-session.
		penalties, err := s.credits.PenaltySweep(ctx, tx, sess.ID)
		if err != nil {
			return err
		}

		result = CreateResult{Session: sess, PenaltiesApplied: penalties}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"session": result.Session.ID, "numero": result.Session.Numero, "penalties": result.PenaltiesApplied}).
		Info("[SESSION] Session opened")
	s.ledger.afterMutation(ctx, "session.opened", map[string]interface{}{
		"session_id": result.Session.ID,
		"numero":     result.Session.Numero,
	})
	return &result, nil
}

// Get returns one session by id.
func (s *SessionService) Get(ctx context.Context, id string) (*models.Session, error) {
	return s.store.GetSession(ctx, id)
}

// List returns all sessions in numero order.
func (s *SessionService) List(ctx context.Context) ([]models.Session, error) {
	return s.store.ListSessions(ctx)
}

// Rename sets a session's display name.
func (s *SessionService) Rename(ctx context.Context, id, nom string) (*models.Session, error) {
	var sess *models.Session
	err := s.store.Atomically(ctx, func(tx store.Store) error {
		var err error
		sess, err = tx.GetSession(ctx, id)
		if err != nil {
			return err
		}
		sess.Nom = nom
		return tx.UpdateSession(ctx, sess)
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// End closes a session without opening a successor, the step taken right
// before a cassation.
func (s *SessionService) End(ctx context.Context, id string) (*models.Session, error) {
	var sess *models.Session
	err := s.store.Atomically(ctx, func(tx store.Store) error {
		var err error
		sess, err = tx.GetSession(ctx, id)
		if err != nil {
			return err
		}
		if sess.Status != models.SessionActive {
			return models.ErrSessionNotActive
		}
		return s.close(ctx, tx, sess)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"session": id, "numero": sess.Numero}).Info("[SESSION] Session closed")
	s.ledger.afterMutation(ctx, "session.closed", map[string]interface{}{"session_id": id})
	return sess, nil
}

// Delete soft-deletes a non-active session. Rows are kept so session numbers
// stay immutable.
func (s *SessionService) Delete(ctx context.Context, id string) error {
	err := s.store.Atomically(ctx, func(tx store.Store) error {
		sess, err := tx.GetSession(ctx, id)
		if err != nil {
			return err
		}
		if sess.Status == models.SessionActive {
			return models.ErrCannotDeleteActiveSession
		}
		sess.Status = models.SessionSupprimee
		return tx.UpdateSession(ctx, sess)
	})
	if err != nil {
		return err
	}

	s.log.WithField("session", id).Info("[SESSION] Session deleted")
	return nil
}

// RecomputeSessionMembers rebuilds the per-member rollups of a session from
// the journal. Rollups are projections and may be recomputed at any time.
func (s *SessionService) RecomputeSessionMembers(ctx context.Context, sessionID string) ([]models.SessionMember, error) {
	var rollups []models.SessionMember
	err := s.store.Atomically(ctx, func(tx store.Store) error {
		if _, err := tx.GetSession(ctx, sessionID); err != nil {
			return err
		}
		if err := s.recomputeRollups(ctx, tx, sessionID); err != nil {
			return err
		}
		var err error
		rollups, err = tx.ListSessionMembers(ctx, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rollups, nil
}

// close stamps the end of a session and folds its totals. Runs inside the
// caller's transaction.
func (s *SessionService) close(ctx context.Context, tx store.Store, sess *models.Session) error {
	movements, err := tx.ListMovements(ctx)
	if err != nil {
		return err
	}
	credits, err := tx.ListCredits(ctx)
	if err != nil {
		return err
	}
	sessions, err := tx.ListSessions(ctx)
	if err != nil {
		return err
	}

	var totalEpargne, totalInterets int64
	for _, mv := range movements {
		if mv.SessionID == nil || *mv.SessionID != sess.ID {
			continue
		}
		switch mv.Type {
		case models.MovementEpargne:
			totalEpargne += mv.Amount
		case models.MovementInteret:
			totalInterets += mv.Amount
		}
	}

	now := time.Now()
	sess.DateFin = &now
	sess.Status = models.SessionTerminee
	// Chained totals: the closing session accumulates what the period
	// produced on top of the snapshot of the whole fund.
	sess.TotalEpargne = totalEpargne
	sess.TotalInterets = totalInterets
	sess.FondsDisponible = computeFundBalance(movements, credits, sessions).Solde
	if err := tx.UpdateSession(ctx, sess); err != nil {
		return err
	}

	return s.recomputeRollups(ctx, tx, sess.ID)
}

func (s *SessionService) recomputeRollups(ctx context.Context, tx store.Store, sessionID string) error {
	movements, err := tx.ListMovements(ctx)
	if err != nil {
		return err
	}

	type rollup struct{ epargne, interets, part int64 }
	byMember := map[string]*rollup{}
	for _, mv := range movements {
		if mv.SessionID == nil || *mv.SessionID != sessionID {
			continue
		}
		r := byMember[mv.MemberID]
		if r == nil {
			r = &rollup{}
			byMember[mv.MemberID] = r
		}
		switch mv.Type {
		case models.MovementEpargne, models.MovementDepenseCommuneEpargne:
			r.epargne += mv.Amount
		case models.MovementInteret:
			r.interets += mv.Amount
		case models.MovementCassation:
			r.part += -mv.Amount
		}
	}

	for memberID, r := range byMember {
		sm := &models.SessionMember{
			SessionID:       sessionID,
			MemberID:        memberID,
			EpargneSession:  r.epargne,
			InteretsSession: r.interets,
			PartSession:     r.part,
		}
		if err := tx.UpsertSessionMember(ctx, sm); err != nil {
			return err
		}
	}
	return nil
}
