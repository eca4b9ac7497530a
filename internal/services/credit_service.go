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

// CreditService manages the credit lifecycle: grant, repayments, the
// session-open penalty sweep, and explicit deletion cleanup.
type CreditService struct {
	store  store.Store
	ledger *LedgerService
	log    *logrus.Logger
}

func NewCreditService(st store.Store, ledger *LedgerService, log *logrus.Logger) *CreditService {
	return &CreditService{store: st, ledger: ledger, log: log}
}

// Grant creates a credit with a fixed +20% interest and appends the
// disbursement movement in the same transaction, so the fund balance
// reflects the cash leaving immediately. A zero dueDate defaults to the next
// August 31 strictly after the grant date.
func (s *CreditService) Grant(ctx context.Context, memberID string, principal int64, dueDate time.Time) (*models.Credit, error) {
	if principal <= 0 {
		return nil, fmt.Errorf("%w: %d", models.ErrInvalidPrincipal, principal)
	}

	now := time.Now()
	if dueDate.IsZero() {
		dueDate = models.DefaultDueDate(now)
	}

	totalDue := models.RoundRate(principal, models.InterestRateNum, models.InterestRateDen)
	credit := &models.Credit{
		ID:        uuid.NewString(),
		MemberID:  memberID,
		Principal: principal,
		TotalDue:  totalDue,
		Remaining: totalDue,
		GrantedAt: now,
		DueDate:   dueDate,
		Status:    models.CreditActive,
	}

	err := s.store.Atomically(ctx, func(tx store.Store) error {
		if _, err := tx.GetMember(ctx, memberID); err != nil {
			return err
		}
		if err := tx.InsertCredit(ctx, credit); err != nil {
			return fmt.Errorf("insert credit: %w", err)
		}
		return s.appendCreditMovement(ctx, tx, credit, models.MovementCreditAccorde,
			-principal, fmt.Sprintf("Credit accorde (%d du au %s)", totalDue, dueDate.Format("2006-01-02")))
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"credit": credit.ID, "member": memberID, "principal": principal, "total_due": totalDue}).
		Info("[CREDIT] Credit granted")
	s.ledger.afterMutation(ctx, "fund.updated", map[string]interface{}{"credit_id": credit.ID})
	return credit, nil
}

// Get returns one credit by id.
func (s *CreditService) Get(ctx context.Context, id string) (*models.Credit, error) {
	return s.store.GetCredit(ctx, id)
}

// List returns all credits in grant order.
func (s *CreditService) List(ctx context.Context) ([]models.Credit, error) {
	return s.store.ListCredits(ctx)
}

// Repayments returns the payment history of a credit.
func (s *CreditService) Repayments(ctx context.Context, creditID string) ([]models.Repayment, error) {
	if _, err := s.store.GetCredit(ctx, creditID); err != nil {
		return nil, err
	}
	return s.store.ListCreditRepayments(ctx, creditID)
}

// Repay records a payment against a credit. Over-payment beyond the
// remaining balance is rejected, never truncated. Accumulated penalty is
// settled first; the remainder reduces the principal part. Remaining
// reaching zero makes the credit repaid.
func (s *CreditService) Repay(ctx context.Context, creditID string, amount int64) (*models.Credit, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: repayment must be positive", models.ErrInvalidAmount)
	}

	var credit *models.Credit
	err := s.store.Atomically(ctx, func(tx store.Store) error {
		var err error
		credit, err = tx.GetCredit(ctx, creditID)
		if err != nil {
			return err
		}
		if amount > credit.Remaining {
			return fmt.Errorf("%w: %d > %d", models.ErrExcessRepayment, amount, credit.Remaining)
		}

		now := time.Now()
		penaltyPart := amount
		if penaltyPart > credit.PenaltyDue {
			penaltyPart = credit.PenaltyDue
		}
		principalPart := amount - penaltyPart

		for _, part := range []struct {
			amount int64
			rtype  models.RepaymentType
		}{
			{penaltyPart, models.RepaymentPenalty},
			{principalPart, models.RepaymentPrincipal},
		} {
			if part.amount == 0 {
				continue
			}
			r := &models.Repayment{
				ID:       uuid.NewString(),
				CreditID: creditID,
				Amount:   part.amount,
				Type:     part.rtype,
				Date:     now,
			}
			if err := tx.InsertRepayment(ctx, r); err != nil {
				return fmt.Errorf("insert repayment: %w", err)
			}
		}

		// The single authoritative update path for the outstanding balance.
		credit.Remaining -= amount
		credit.PenaltyDue -= penaltyPart
		switch {
		case credit.Remaining == 0:
			credit.Status = models.CreditRepaid
		case credit.Status == models.CreditLate:
			credit.Status = models.CreditActive
		}
		if err := tx.UpdateCredit(ctx, credit); err != nil {
			return err
		}

		return s.appendCreditMovement(ctx, tx, credit, models.MovementRemboursement,
			amount, fmt.Sprintf("Remboursement credit (reste %d)", credit.Remaining))
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"credit": creditID, "amount": amount, "remaining": credit.Remaining, "status": credit.Status}).
		Info("[CREDIT] Repayment recorded")
	s.ledger.afterMutation(ctx, "fund.updated", map[string]interface{}{"credit_id": creditID})
	return credit, nil
}

// PenaltySweep applies the flat 20% reconduction to every unpaid credit past
// its due date. Invoked by the session manager inside the session-creation
// transaction, never directly by users. LastPenaltySessionID makes a second
// sweep for the same session a no-op.
func (s *CreditService) PenaltySweep(ctx context.Context, tx store.Store, sessionID string) (int, error) {
	credits, err := tx.ListUnpaidCredits(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	applied := 0
	for i := range credits {
		c := &credits[i]
		if !c.DueDate.Before(now) {
			continue
		}
		if c.LastPenaltySessionID != nil && *c.LastPenaltySessionID == sessionID {
			continue
		}

		penalized := models.RoundRate(c.Remaining, models.InterestRateNum, models.InterestRateDen)
		delta := penalized - c.Remaining
		c.Remaining = penalized
		c.PenaltyDue += delta
		c.Status = models.CreditLate
		sid := sessionID
		c.LastPenaltySessionID = &sid
		if err := tx.UpdateCredit(ctx, c); err != nil {
			return 0, err
		}

		mv := &models.Movement{
			ID:        uuid.NewString(),
			MemberID:  c.MemberID,
			CreditID:  &c.ID,
			Type:      models.MovementInteret,
			Amount:    delta,
			Reason:    fmt.Sprintf("Penalite 20%% credit en retard (reste %d)", c.Remaining),
			Date:      now,
			SessionID: &sid,
			CreatedAt: now,
		}
		if err := tx.InsertMovement(ctx, mv); err != nil {
			return 0, err
		}
		applied++
	}

	if applied > 0 {
		s.log.WithFields(logrus.Fields{"session": sessionID, "penalized": applied}).
			Info("[CREDIT] Penalty sweep applied")
	}
	return applied, nil
}

// Delete removes a credit with explicit cleanup: its repayments and every
// credit-linked movement go with it, and the owner's cached balance is
// re-projected, all in one transaction.
func (s *CreditService) Delete(ctx context.Context, creditID string) error {
	var memberID string
	err := s.store.Atomically(ctx, func(tx store.Store) error {
		credit, err := tx.GetCredit(ctx, creditID)
		if err != nil {
			return err
		}
		memberID = credit.MemberID

		if err := tx.DeleteCreditRepayments(ctx, creditID); err != nil {
			return err
		}
		if err := tx.DeleteCreditMovements(ctx, creditID); err != nil {
			return err
		}
		if err := tx.DeleteCredit(ctx, creditID); err != nil {
			return err
		}
		return s.ledger.resyncMemberSavings(ctx, tx, memberID)
	})
	if err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{"credit": creditID, "member": memberID}).Info("[CREDIT] Credit deleted")
	s.ledger.afterMutation(ctx, "fund.updated", map[string]interface{}{"credit_id": creditID, "deleted": true})
	return nil
}

// appendCreditMovement writes a credit-linked movement tagged with the
// active session, inside the caller's transaction.
func (s *CreditService) appendCreditMovement(ctx context.Context, tx store.Store, credit *models.Credit, mtype models.MovementType, amount int64, reason string) error {
	var sessionID *string
	active, err := tx.GetActiveSession(ctx)
	if err != nil {
		return err
	}
	if active != nil {
		sessionID = &active.ID
	}

	now := time.Now()
	mv := &models.Movement{
		ID:        uuid.NewString(),
		MemberID:  credit.MemberID,
		CreditID:  &credit.ID,
		Type:      mtype,
		Amount:    amount,
		Reason:    reason,
		Date:      now,
		SessionID: sessionID,
		CreatedAt: now,
	}
	if err := tx.InsertMovement(ctx, mv); err != nil {
		return fmt.Errorf("insert %s movement: %w", mtype, err)
	}
	return nil
}
