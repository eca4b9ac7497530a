package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fondfamilial/backend/internal/models"
	"github.com/fondfamilial/backend/internal/store"
)

// MemberService manages the membership roster.
type MemberService struct {
	store  store.Store
	ledger *LedgerService
	log    *logrus.Logger
}

func NewMemberService(st store.Store, ledger *LedgerService, log *logrus.Logger) *MemberService {
	return &MemberService{store: st, ledger: ledger, log: log}
}

// Create registers a member. The deposit (caution) is held aside and recorded
// as a caution_depot movement so the journal stays complete.
func (s *MemberService) Create(ctx context.Context, nom, telephone string, caution int64) (*models.Member, error) {
	now := time.Now()
	member := &models.Member{
		ID:        uuid.NewString(),
		Nom:       nom,
		Telephone: telephone,
		Caution:   caution,
		CreatedAt: now,
	}

	err := s.store.Atomically(ctx, func(tx store.Store) error {
		if err := tx.CreateMember(ctx, member); err != nil {
			return err
		}
		if caution <= 0 {
			return nil
		}

		var sessionID *string
		active, err := tx.GetActiveSession(ctx)
		if err != nil {
			return err
		}
		if active != nil {
			sessionID = &active.ID
		}
		mv := &models.Movement{
			ID:        uuid.NewString(),
			MemberID:  member.ID,
			Type:      models.MovementCautionDepot,
			Amount:    caution,
			Reason:    "Caution d'adhesion",
			Date:      now,
			SessionID: sessionID,
			CreatedAt: now,
		}
		return tx.InsertMovement(ctx, mv)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"member": member.ID, "nom": nom}).Info("[MEMBER] Member registered")
	s.ledger.afterMutation(ctx, "member.created", map[string]interface{}{"member_id": member.ID})
	return member, nil
}

// Get returns one member by id.
func (s *MemberService) Get(ctx context.Context, id string) (*models.Member, error) {
	return s.store.GetMember(ctx, id)
}

// List returns the roster in registration order.
func (s *MemberService) List(ctx context.Context) ([]models.Member, error) {
	return s.store.ListMembers(ctx)
}

// Movements returns one member's slice of the journal.
func (s *MemberService) Movements(ctx context.Context, memberID string) ([]models.Movement, error) {
	if _, err := s.store.GetMember(ctx, memberID); err != nil {
		return nil, err
	}
	return s.store.ListMemberMovements(ctx, memberID)
}

// Credits returns one member's credit history.
func (s *MemberService) Credits(ctx context.Context, memberID string) ([]models.Credit, error) {
	if _, err := s.store.GetMember(ctx, memberID); err != nil {
		return nil, err
	}
	return s.store.ListMemberCredits(ctx, memberID)
}

// Delete removes a member with explicit cleanup: their credits (with
// repayments and linked movements) and remaining movements go first, in one
// transaction. Nothing is left dangling for a later garbage pass.
func (s *MemberService) Delete(ctx context.Context, id string) error {
	err := s.store.Atomically(ctx, func(tx store.Store) error {
		if _, err := tx.GetMember(ctx, id); err != nil {
			return err
		}

		credits, err := tx.ListMemberCredits(ctx, id)
		if err != nil {
			return err
		}
		for _, c := range credits {
			if err := tx.DeleteCreditRepayments(ctx, c.ID); err != nil {
				return err
			}
			if err := tx.DeleteCreditMovements(ctx, c.ID); err != nil {
				return err
			}
			if err := tx.DeleteCredit(ctx, c.ID); err != nil {
				return err
			}
		}
		if err := tx.DeleteMemberMovements(ctx, id); err != nil {
			return err
		}
		return tx.DeleteMember(ctx, id)
	})
	if err != nil {
		return err
	}

	s.log.WithField("member", id).Info("[MEMBER] Member deleted")
	s.ledger.afterMutation(ctx, "member.deleted", map[string]interface{}{"member_id": id})
	return nil
}
