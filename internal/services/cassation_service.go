package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fondfamilial/backend/internal/models"
	"github.com/fondfamilial/backend/internal/store"
)

// CassationService computes and applies the periodic full redistribution of
// the available fund, proportionally to each member's net contribution.
type CassationService struct {
	store   store.Store
	ledger  *LedgerService
	session *SessionService
	log     *logrus.Logger
}

func NewCassationService(st store.Store, ledger *LedgerService, session *SessionService, log *logrus.Logger) *CassationService {
	return &CassationService{store: st, ledger: ledger, session: session, log: log}
}

// MemberShare is one member's line in a cassation simulation or application.
type MemberShare struct {
	MemberID          string `json:"member_id"`
	Nom               string `json:"nom"`
	EpargneActuelle   int64  `json:"epargne_actuelle"`
	CreditRestant     int64  `json:"credit_restant"`
	ContributionNette int64  `json:"contribution_nette"`
	PartEpargne       int64  `json:"part_epargne"`
	PartInterets      int64  `json:"part_interets"`
	PartCassation     int64  `json:"part_cassation"`
}

// Simulation is the full dry-run result. Sum of PartCassation over members
// equals FondsDisponible exactly once the rounding residual is reconciled.
type Simulation struct {
	FondsDisponible          int64         `json:"fonds_disponible"`
	TotalContributionsNettes int64         `json:"total_contributions_nettes"`
	Step                     int64         `json:"step"`
	Membres                  []MemberShare `json:"membres"`
}

// ApplyResult reports a committed cassation.
type ApplyResult struct {
	SessionID        string        `json:"session_id"`
	TotalDistributed int64         `json:"total_distributed"`
	MembersCount     int           `json:"members_count"`
	Membres          []MemberShare `json:"membres"`
}

// EtatMember is one member's post-cassation position.
type EtatMember struct {
	MemberID     string `json:"member_id"`
	Nom          string `json:"nom"`
	AncienSolde  int64  `json:"ancien_solde"`
	PartRecue    int64  `json:"part_recue"`
	NouveauSolde int64  `json:"nouveau_solde"`
}

// Etat is the read-only post-cassation state.
type Etat struct {
	SessionID  string       `json:"session_id"`
	AppliedAt  *time.Time   `json:"applied_at,omitempty"`
	FondsApres int64        `json:"fonds_apres"`
	Membres    []EtatMember `json:"membres"`
}

// CycleReadiness summarizes the fund after a cassation, before a new cycle.
type CycleReadiness struct {
	MembresServis    int   `json:"membres_servis"`
	MembresDebiteurs int   `json:"membres_debiteurs"`
	DettesRestantes  int64 `json:"dettes_restantes"`
	SoldesRepares    int   `json:"soldes_repares"`
}

// Simulate computes the distribution against current state without touching
// anything. Safe to retry freely.
func (s *CassationService) Simulate(ctx context.Context) (*Simulation, error) {
	return s.simulate(ctx, s.store)
}

func (s *CassationService) simulate(ctx context.Context, st store.Store) (*Simulation, error) {
	members, err := st.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	movements, err := st.ListMovements(ctx)
	if err != nil {
		return nil, err
	}
	credits, err := st.ListCredits(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := st.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	// The distributable fund is the real ledger balance, never the
	// hypothetical solde fictif.
	fonds := computeFundBalance(movements, credits, sessions).Solde

	movementsByMember := map[string][]models.Movement{}
	for _, mv := range movements {
		movementsByMember[mv.MemberID] = append(movementsByMember[mv.MemberID], mv)
	}
	remainingByMember := map[string]int64{}
	for _, c := range credits {
		if c.Status != models.CreditRepaid {
			remainingByMember[c.MemberID] += c.Remaining
		}
	}

	sim := &Simulation{FondsDisponible: fonds, Step: models.StepFor(fonds)}
	for _, m := range members {
		epargne := projectSavings(movementsByMember[m.ID], sessions)
		restant := remainingByMember[m.ID]
		sim.Membres = append(sim.Membres, MemberShare{
			MemberID:          m.ID,
			Nom:               m.Nom,
			EpargneActuelle:   epargne,
			CreditRestant:     restant,
			ContributionNette: epargne - restant,
		})
		if nette := epargne - restant; nette > 0 {
			sim.TotalContributionsNettes += nette
		}
	}

	if fonds <= 0 || sim.TotalContributionsNettes <= 0 {
		return sim, nil
	}

	// Proportional raw shares for positive contributors. Over-indebted
	// members receive nothing but keep their debt.
	var distributed int64
	for i := range sim.Membres {
		ms := &sim.Membres[i]
		if ms.ContributionNette <= 0 {
			continue
		}
		partBrute := fonds * ms.ContributionNette / sim.TotalContributionsNettes
		ms.PartCassation = models.RoundToStep(partBrute, sim.Step)
		ms.PartEpargne = ms.PartCassation
		if ms.PartEpargne > ms.ContributionNette {
			ms.PartEpargne = ms.ContributionNette
		}
		ms.PartInterets = ms.PartCassation - ms.PartEpargne
		distributed += ms.PartCassation
	}

	// Per-member rounding can leave a residual. Reconcile it so the fund is
	// exhausted exactly and no share goes negative: a surplus tops up the
	// largest contributor; a deficit is peeled off contributors in order
	// (largest contribution first, ties by member id), flooring each share
	// at zero. On small funds the rounding step can exceed a member's raw
	// share, so the deficit may swallow whole shares.
	if residual := fonds - distributed; residual != 0 {
		order := make([]int, 0, len(sim.Membres))
		for i := range sim.Membres {
			if sim.Membres[i].ContributionNette > 0 {
				order = append(order, i)
			}
		}
		sort.Slice(order, func(a, b int) bool {
			ma, mb := &sim.Membres[order[a]], &sim.Membres[order[b]]
			if ma.ContributionNette != mb.ContributionNette {
				return ma.ContributionNette > mb.ContributionNette
			}
			return ma.MemberID < mb.MemberID
		})

		if residual > 0 && len(order) > 0 {
			adjustShare(&sim.Membres[order[0]], residual)
		} else {
			for _, i := range order {
				ms := &sim.Membres[i]
				take := ms.PartCassation
				if take > -residual {
					take = -residual
				}
				if take <= 0 {
					continue
				}
				adjustShare(ms, -take)
				residual += take
				if residual == 0 {
					break
				}
			}
		}
	}

	return sim, nil
}

// adjustShare moves a member's part by delta and re-splits it between the
// savings-backed portion and interest income.
func adjustShare(ms *MemberShare, delta int64) {
	ms.PartCassation += delta
	ms.PartEpargne = ms.PartCassation
	if ms.PartEpargne > ms.ContributionNette {
		ms.PartEpargne = ms.ContributionNette
	}
	ms.PartInterets = ms.PartCassation - ms.PartEpargne
}

// Apply commits the distribution in one transaction: it re-runs the
// simulation against live state (a stale client-side simulation is never
// trusted), writes one cassation movement per served member, records the
// rollups on the consumed session and zeroes every member's savings base.
// Credits are untouched: debts survive cassation.
//
// Double-application policy: re-invoking with no movement recorded since the
// last cassation is rejected with ErrCassationAlreadyApplied.
func (s *CassationService) Apply(ctx context.Context) (*ApplyResult, error) {
	var result *ApplyResult
	err := s.store.Atomically(ctx, func(tx store.Store) error {
		if err := s.requireNewActivity(ctx, tx); err != nil {
			return err
		}

		sim, err := s.simulate(ctx, tx)
		if err != nil {
			return err
		}
		if sim.FondsDisponible <= 0 || sim.TotalContributionsNettes <= 0 {
			return models.ErrNothingToDistribute
		}

		// The distribution must exhaust the fund exactly; anything else
		// would commit a discrepancy into the journal.
		var total int64
		for _, ms := range sim.Membres {
			if ms.PartCassation < 0 {
				return fmt.Errorf("cassation: negative part %d for member %s", ms.PartCassation, ms.MemberID)
			}
			total += ms.PartCassation
		}
		if total != sim.FondsDisponible {
			return fmt.Errorf("cassation: distribution %d does not exhaust fund of %d", total, sim.FondsDisponible)
		}

		target, err := s.targetSession(ctx, tx)
		if err != nil {
			return err
		}

		// An open session is folded first so its chained totals are final
		// before the distribution consumes it.
		if target.Status == models.SessionActive {
			if err := s.session.close(ctx, tx, target); err != nil {
				return err
			}
		}

		now := time.Now()
		if target.DateFin == nil {
			target.DateFin = &now
		}
		target.Status = models.SessionCassation
		target.FondsDisponible = sim.FondsDisponible
		if err := tx.UpdateSession(ctx, target); err != nil {
			return err
		}

		result = &ApplyResult{SessionID: target.ID, Membres: sim.Membres}
		for _, ms := range sim.Membres {
			sm := &models.SessionMember{
				SessionID:       target.ID,
				MemberID:        ms.MemberID,
				EpargneSession:  ms.EpargneActuelle,
				InteretsSession: ms.PartInterets,
				PartSession:     ms.PartCassation,
			}
			if err := tx.UpsertSessionMember(ctx, sm); err != nil {
				return err
			}

			if ms.PartCassation <= 0 {
				continue
			}
			mv := &models.Movement{
				ID:        uuid.NewString(),
				MemberID:  ms.MemberID,
				Type:      models.MovementCassation,
				Amount:    -ms.PartCassation,
				Reason:    fmt.Sprintf("Cassation session %d", target.Numero),
				Date:      now,
				SessionID: &target.ID,
				CreatedAt: now,
			}
			if err := tx.InsertMovement(ctx, mv); err != nil {
				return err
			}
			result.TotalDistributed += ms.PartCassation
			result.MembersCount++
		}

		// The consumed session now carries status cassation, so every
		// member's savings projection is zero; align the caches.
		for _, ms := range sim.Membres {
			if err := tx.UpdateMemberSavings(ctx, ms.MemberID, 0); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"session": result.SessionID, "distributed": result.TotalDistributed, "members": result.MembersCount}).
		Info("[CASSATION] Cassation applied")
	s.ledger.afterMutation(ctx, "cassation.applied", map[string]interface{}{
		"session_id":        result.SessionID,
		"total_distributed": result.TotalDistributed,
	})
	return result, nil
}

// Etat returns the read-only post-cassation state of the latest cassation.
func (s *CassationService) Etat(ctx context.Context) (*Etat, error) {
	last, err := s.lastCassationSession(ctx, s.store)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, models.ErrNoCassationYet
	}

	rollups, err := s.store.ListSessionMembers(ctx, last.ID)
	if err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m.ID] = m.Nom
	}

	fb, err := s.ledger.ProjectFundBalance(ctx)
	if err != nil {
		return nil, err
	}

	etat := &Etat{SessionID: last.ID, AppliedAt: last.DateFin, FondsApres: fb.Solde}
	for _, sm := range rollups {
		etat.Membres = append(etat.Membres, EtatMember{
			MemberID:     sm.MemberID,
			Nom:          names[sm.MemberID],
			AncienSolde:  sm.EpargneSession,
			PartRecue:    sm.PartSession,
			NouveauSolde: sm.EpargneSession + sm.PartSession,
		})
	}
	return etat, nil
}

// PreparerNouveauCycle finalizes the zeroed state after a cassation: it runs
// the balance resync repair and returns readiness statistics. No money moves.
func (s *CassationService) PreparerNouveauCycle(ctx context.Context) (*CycleReadiness, error) {
	last, err := s.lastCassationSession(ctx, s.store)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, models.ErrNoCassationYet
	}

	repaired, err := s.ledger.ResyncMemberBalances(ctx)
	if err != nil {
		return nil, err
	}

	rollups, err := s.store.ListSessionMembers(ctx, last.ID)
	if err != nil {
		return nil, err
	}
	credits, err := s.store.ListUnpaidCredits(ctx)
	if err != nil {
		return nil, err
	}

	readiness := &CycleReadiness{SoldesRepares: repaired}
	for _, sm := range rollups {
		if sm.PartSession > 0 {
			readiness.MembresServis++
		}
	}
	debtors := map[string]bool{}
	for _, c := range credits {
		debtors[c.MemberID] = true
		readiness.DettesRestantes += c.Remaining
	}
	readiness.MembresDebiteurs = len(debtors)

	if s.ledger.events != nil {
		if err := s.ledger.events.Publish(ctx, "cycle.prepared", readiness); err != nil {
			s.log.WithError(err).Warn("[CASSATION] Failed to publish cycle.prepared")
		}
	}
	return readiness, nil
}

// requireNewActivity enforces the double-application policy: at least one
// movement must have been recorded since the last cassation.
func (s *CassationService) requireNewActivity(ctx context.Context, tx store.Store) error {
	last, err := s.lastCassationSession(ctx, tx)
	if err != nil {
		return err
	}
	if last == nil {
		return nil
	}

	movements, err := tx.ListMovements(ctx)
	if err != nil {
		return err
	}
	sessions, err := tx.ListSessions(ctx)
	if err != nil {
		return err
	}
	numeroByID := make(map[string]int, len(sessions))
	for _, sess := range sessions {
		numeroByID[sess.ID] = sess.Numero
	}

	for _, mv := range movements {
		if mv.SessionID == nil || numeroByID[*mv.SessionID] > last.Numero {
			return nil
		}
	}
	return models.ErrCassationAlreadyApplied
}

// targetSession picks the session a cassation consumes: the active one when
// a session is open, otherwise the most recent terminated one.
func (s *CassationService) targetSession(ctx context.Context, tx store.Store) (*models.Session, error) {
	active, err := tx.GetActiveSession(ctx)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return active, nil
	}

	sessions, err := tx.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Numero > sessions[j].Numero })
	for i := range sessions {
		if sessions[i].Status == models.SessionTerminee {
			return &sessions[i], nil
		}
	}
	return nil, models.ErrSessionNotFound
}

func (s *CassationService) lastCassationSession(ctx context.Context, st store.Store) (*models.Session, error) {
	sessions, err := st.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	var last *models.Session
	for i := range sessions {
		if sessions[i].Status != models.SessionCassation {
			continue
		}
		if last == nil || sessions[i].Numero > last.Numero {
			last = &sessions[i]
		}
	}
	return last, nil
}
