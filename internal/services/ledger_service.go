package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fondfamilial/backend/internal/events"
	"github.com/fondfamilial/backend/internal/models"
	"github.com/fondfamilial/backend/internal/store"
)

// fundBalanceCacheKey holds the serialized FundBalance read model; it is
// invalidated after every committed mutation.
const fundBalanceCacheKey = "fonds:solde"

const fundBalanceCacheTTL = 30 * time.Second

// FundBalance is the aggregate read model consumed by the dashboard and the
// cassation engine. Solde is only ever the net sum of all signed movements.
type FundBalance struct {
	Solde                    int64 `json:"solde"`
	SoldeFictif              int64 `json:"solde_fictif"`
	TotalEpargnesNettes      int64 `json:"total_epargnes_nettes"`
	TotalCreditsAccordes     int64 `json:"total_credits_accordes"`
	TotalCreditsRestants     int64 `json:"total_credits_restants"`
	TotalRemboursements      int64 `json:"total_remboursements"`
	TotalInterets            int64 `json:"total_interets"`
	TotalDepensesCommunes    int64 `json:"total_depenses_communes"`
	TotalCassationDistribuee int64 `json:"total_cassation_distribuee"`
}

// LedgerService owns the movement journal and the balance projections
// derived from it.
type LedgerService struct {
	store  store.Store
	redis  *redis.Client
	events events.Publisher
	log    *logrus.Logger
}

func NewLedgerService(st store.Store, rdb *redis.Client, pub events.Publisher, log *logrus.Logger) *LedgerService {
	return &LedgerService{store: st, redis: rdb, events: pub, log: log}
}

// AppendMovement records one movement. The insert and the owning member's
// cached savings refresh happen in a single transaction. Movements recorded
// while a session is active are tagged with it; with no active session the
// tag stays empty until the backfill repair runs.
func (s *LedgerService) AppendMovement(ctx context.Context, memberID string, mtype models.MovementType, amount int64, reason string, sessionID *string) (*models.Movement, error) {
	if !mtype.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidType, mtype)
	}
	if amount == 0 {
		return nil, fmt.Errorf("%w: zero amount", models.ErrInvalidAmount)
	}
	if sign := mtype.Sign(); (sign > 0 && amount < 0) || (sign < 0 && amount > 0) {
		return nil, fmt.Errorf("%w: %q movements must have %s amounts",
			models.ErrInvalidAmount, mtype, signWord(sign))
	}

	var mv *models.Movement
	err := s.store.Atomically(ctx, func(tx store.Store) error {
		if _, err := tx.GetMember(ctx, memberID); err != nil {
			return err
		}

		if sessionID == nil {
			active, err := tx.GetActiveSession(ctx)
			if err != nil {
				return err
			}
			if active != nil {
				sessionID = &active.ID
			}
		}

		now := time.Now()
		mv = &models.Movement{
			ID:        uuid.NewString(),
			MemberID:  memberID,
			Type:      mtype,
			Amount:    amount,
			Reason:    reason,
			Date:      now,
			SessionID: sessionID,
			CreatedAt: now,
		}
		if err := tx.InsertMovement(ctx, mv); err != nil {
			return fmt.Errorf("insert movement: %w", err)
		}
		return s.resyncMemberSavings(ctx, tx, memberID)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"movement": mv.ID, "type": mtype, "amount": amount}).
		Info("[LEDGER] Movement recorded")
	s.afterMutation(ctx, "fund.updated", map[string]interface{}{"movement_id": mv.ID})
	return mv, nil
}

// GetMovement returns one movement by id.
func (s *LedgerService) GetMovement(ctx context.Context, id string) (*models.Movement, error) {
	return s.store.GetMovement(ctx, id)
}

// ListMovements returns the full journal in recording order.
func (s *LedgerService) ListMovements(ctx context.Context) ([]models.Movement, error) {
	return s.store.ListMovements(ctx)
}

// UpdateMovement applies a corrective edit to a historical movement and
// re-projects the owner's cached balance. Movements already consumed by a
// committed cassation are immutable.
func (s *LedgerService) UpdateMovement(ctx context.Context, id string, mtype models.MovementType, amount int64, reason string) (*models.Movement, error) {
	if !mtype.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidType, mtype)
	}
	if amount == 0 {
		return nil, fmt.Errorf("%w: zero amount", models.ErrInvalidAmount)
	}
	if sign := mtype.Sign(); (sign > 0 && amount < 0) || (sign < 0 && amount > 0) {
		return nil, fmt.Errorf("%w: %q movements must have %s amounts",
			models.ErrInvalidAmount, mtype, signWord(sign))
	}

	var mv *models.Movement
	err := s.store.Atomically(ctx, func(tx store.Store) error {
		existing, err := tx.GetMovement(ctx, id)
		if err != nil {
			return err
		}
		if err := s.requireMutable(ctx, tx, existing); err != nil {
			return err
		}
		mv = existing
		mv.Type = mtype
		mv.Amount = amount
		mv.Reason = reason
		if err := tx.UpdateMovement(ctx, mv); err != nil {
			return err
		}
		return s.resyncMemberSavings(ctx, tx, mv.MemberID)
	})
	if err != nil {
		return nil, err
	}

	s.afterMutation(ctx, "fund.updated", map[string]interface{}{"movement_id": id})
	return mv, nil
}

// DeleteMovement removes a movement outside the cassation boundary and
// re-projects the owner's cached balance.
func (s *LedgerService) DeleteMovement(ctx context.Context, id string) error {
	var memberID string
	err := s.store.Atomically(ctx, func(tx store.Store) error {
		mv, err := tx.GetMovement(ctx, id)
		if err != nil {
			return err
		}
		if err := s.requireMutable(ctx, tx, mv); err != nil {
			return err
		}
		memberID = mv.MemberID
		if err := tx.DeleteMovement(ctx, id); err != nil {
			return err
		}
		return s.resyncMemberSavings(ctx, tx, memberID)
	})
	if err != nil {
		return err
	}

	s.afterMutation(ctx, "fund.updated", map[string]interface{}{"movement_id": id, "deleted": true})
	return nil
}

func (s *LedgerService) requireMutable(ctx context.Context, tx store.Store, mv *models.Movement) error {
	if mv.SessionID == nil {
		return nil
	}
	sess, err := tx.GetSession(ctx, *mv.SessionID)
	if err != nil {
		return err
	}
	if sess.Status == models.SessionCassation {
		return models.ErrMovementFrozen
	}
	return nil
}

// ProjectMemberSavings is the authoritative definition of a member's savings
// balance: the sum of savings-contributing movements recorded after the last
// cassation. Movements not yet tagged with a session count as current-period.
func (s *LedgerService) ProjectMemberSavings(ctx context.Context, memberID string) (int64, error) {
	if _, err := s.store.GetMember(ctx, memberID); err != nil {
		return 0, err
	}
	movements, err := s.store.ListMemberMovements(ctx, memberID)
	if err != nil {
		return 0, err
	}
	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		return 0, err
	}
	return projectSavings(movements, sessions), nil
}

// projectSavings sums savings deltas for movements belonging to sessions
// opened after the most recent cassation. Marking the consumed session with
// status cassation is what resets every member's base at once.
func projectSavings(movements []models.Movement, sessions []models.Session) int64 {
	numeroByID := make(map[string]int, len(sessions))
	cutoff := 0
	for _, sess := range sessions {
		numeroByID[sess.ID] = sess.Numero
		if sess.Status == models.SessionCassation && sess.Numero > cutoff {
			cutoff = sess.Numero
		}
	}

	var total int64
	for _, mv := range movements {
		if mv.SessionID != nil && numeroByID[*mv.SessionID] <= cutoff {
			continue
		}
		total += mv.Type.SavingsDelta(mv.Amount)
	}
	return total
}

// ProjectFundBalance computes the fund read model. It is side-effect free
// and safe to retry; results are cached briefly in redis.
func (s *LedgerService) ProjectFundBalance(ctx context.Context) (*FundBalance, error) {
	if cached := s.cachedFundBalance(ctx); cached != nil {
		return cached, nil
	}

	movements, err := s.store.ListMovements(ctx)
	if err != nil {
		return nil, err
	}
	credits, err := s.store.ListCredits(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	fb := computeFundBalance(movements, credits, sessions)
	s.cacheFundBalance(ctx, fb)
	return fb, nil
}

func computeFundBalance(movements []models.Movement, credits []models.Credit, sessions []models.Session) *FundBalance {
	fb := &FundBalance{}
	for _, mv := range movements {
		fb.Solde += mv.Amount
		switch mv.Type {
		case models.MovementRemboursement:
			fb.TotalRemboursements += mv.Amount
		case models.MovementInteret:
			fb.TotalInterets += mv.Amount
		case models.MovementDepenseCommuneFonds, models.MovementDepenseCommuneEpargne:
			fb.TotalDepensesCommunes += -mv.Amount
		case models.MovementCassation:
			fb.TotalCassationDistribuee += -mv.Amount
		}
	}
	for _, c := range credits {
		fb.TotalCreditsAccordes += c.Principal
		if c.Status != models.CreditRepaid {
			fb.TotalCreditsRestants += c.Remaining
		}
	}

	byMember := map[string][]models.Movement{}
	for _, mv := range movements {
		byMember[mv.MemberID] = append(byMember[mv.MemberID], mv)
	}
	for _, mvs := range byMember {
		fb.TotalEpargnesNettes += projectSavings(mvs, sessions)
	}

	// Hypothetical balance if every outstanding credit were repaid today;
	// used for planning only, never for distribution.
	fb.SoldeFictif = fb.Solde + fb.TotalCreditsRestants
	return fb
}

// ResyncMemberBalances recomputes every member's cached savings balance from
// the journal. Idempotent repair, safe to run repeatedly.
func (s *LedgerService) ResyncMemberBalances(ctx context.Context) (int, error) {
	var repaired int
	err := s.store.Atomically(ctx, func(tx store.Store) error {
		repaired = 0
		members, err := tx.ListMembers(ctx)
		if err != nil {
			return err
		}
		sessions, err := tx.ListSessions(ctx)
		if err != nil {
			return err
		}
		for _, m := range members {
			movements, err := tx.ListMemberMovements(ctx, m.ID)
			if err != nil {
				return err
			}
			projected := projectSavings(movements, sessions)
			if projected == m.SoldeEpargne {
				continue
			}
			if err := tx.UpdateMemberSavings(ctx, m.ID, projected); err != nil {
				return err
			}
			repaired++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if repaired > 0 {
		s.log.WithField("repaired", repaired).Warn("[LEDGER] Cached balances drifted from projection")
		s.invalidateCache(ctx)
	}
	return repaired, nil
}

// BackfillSessionIDs assigns the earliest session to movements missing one.
// One-time repair for journals that predate session tagging.
func (s *LedgerService) BackfillSessionIDs(ctx context.Context) (int64, error) {
	var repaired int64
	err := s.store.Atomically(ctx, func(tx store.Store) error {
		sessions, err := tx.ListSessions(ctx)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			return models.ErrSessionNotFound
		}
		repaired, err = tx.BackfillMovementSessions(ctx, sessions[0].ID)
		return err
	})
	if err != nil {
		return 0, err
	}
	if repaired > 0 {
		s.log.WithField("repaired", repaired).Info("[LEDGER] Backfilled session ids")
	}
	return repaired, nil
}

// resyncMemberSavings refreshes one member's cached balance inside the
// caller's transaction.
func (s *LedgerService) resyncMemberSavings(ctx context.Context, tx store.Store, memberID string) error {
	movements, err := tx.ListMemberMovements(ctx, memberID)
	if err != nil {
		return err
	}
	sessions, err := tx.ListSessions(ctx)
	if err != nil {
		return err
	}
	return tx.UpdateMemberSavings(ctx, memberID, projectSavings(movements, sessions))
}

func (s *LedgerService) cachedFundBalance(ctx context.Context) *FundBalance {
	if s.redis == nil {
		return nil
	}
	raw, err := s.redis.Get(ctx, fundBalanceCacheKey).Bytes()
	if err != nil {
		return nil
	}
	var fb FundBalance
	if err := json.Unmarshal(raw, &fb); err != nil {
		return nil
	}
	return &fb
}

func (s *LedgerService) cacheFundBalance(ctx context.Context, fb *FundBalance) {
	if s.redis == nil {
		return
	}
	raw, err := json.Marshal(fb)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, fundBalanceCacheKey, raw, fundBalanceCacheTTL).Err(); err != nil {
		s.log.WithError(err).Warn("[LEDGER] Failed to cache fund balance")
	}
}

func (s *LedgerService) invalidateCache(ctx context.Context) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, fundBalanceCacheKey).Err(); err != nil {
		s.log.WithError(err).Warn("[LEDGER] Failed to invalidate fund balance cache")
	}
}

// afterMutation runs the post-commit bookkeeping shared by every write path:
// drop the cached read model and notify subscribers.
func (s *LedgerService) afterMutation(ctx context.Context, event string, payload map[string]interface{}) {
	s.invalidateCache(ctx)
	if s.events != nil {
		if err := s.events.Publish(ctx, event, payload); err != nil {
			s.log.WithError(err).WithField("event", event).Warn("[LEDGER] Failed to publish event")
		}
	}
}

func signWord(sign int) string {
	if sign > 0 {
		return "positive"
	}
	return "negative"
}
