package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fondfamilial/backend/internal/models"
)

// MemoryStore is an in-memory Store used by tests. Atomically takes a
// snapshot of the whole state and restores it when fn fails, mirroring the
// rollback semantics of the Postgres implementation.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData
	// inTx disables locking on the transactional view handed to Atomically
	// callbacks; the parent holds the lock for the whole transaction.
	inTx bool
	seq  int
}

type memData struct {
	members        map[string]models.Member
	movements      map[string]models.Movement
	credits        map[string]models.Credit
	repayments     map[string]models.Repayment
	sessions       map[string]models.Session
	sessionMembers map[string]models.SessionMember // key sessionID+"/"+memberID
	order          map[string]int                  // insertion order per movement/credit/repayment id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: &memData{
		members:        map[string]models.Member{},
		movements:      map[string]models.Movement{},
		credits:        map[string]models.Credit{},
		repayments:     map[string]models.Repayment{},
		sessions:       map[string]models.Session{},
		sessionMembers: map[string]models.SessionMember{},
		order:          map[string]int{},
	}}
}

func (d *memData) clone() *memData {
	c := &memData{
		members:        make(map[string]models.Member, len(d.members)),
		movements:      make(map[string]models.Movement, len(d.movements)),
		credits:        make(map[string]models.Credit, len(d.credits)),
		repayments:     make(map[string]models.Repayment, len(d.repayments)),
		sessions:       make(map[string]models.Session, len(d.sessions)),
		sessionMembers: make(map[string]models.SessionMember, len(d.sessionMembers)),
		order:          make(map[string]int, len(d.order)),
	}
	for k, v := range d.members {
		c.members[k] = v
	}
	for k, v := range d.movements {
		c.movements[k] = v
	}
	for k, v := range d.credits {
		c.credits[k] = v
	}
	for k, v := range d.repayments {
		c.repayments[k] = v
	}
	for k, v := range d.sessions {
		c.sessions[k] = v
	}
	for k, v := range d.sessionMembers {
		c.sessionMembers[k] = v
	}
	for k, v := range d.order {
		c.order[k] = v
	}
	return c
}

func (m *MemoryStore) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *MemoryStore) Atomically(ctx context.Context, fn func(Store) error) error {
	if m.inTx {
		return fn(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	seq := m.seq
	tx := &MemoryStore{data: m.data, inTx: true, seq: m.seq}
	if err := fn(tx); err != nil {
		m.data = snapshot
		m.seq = seq
		return err
	}
	m.seq = tx.seq
	return nil
}

func (m *MemoryStore) note(id string) {
	m.seq++
	m.data.order[id] = m.seq
}

// Members

func (m *MemoryStore) CreateMember(ctx context.Context, mb *models.Member) error {
	defer m.lock()()
	if _, ok := m.data.members[mb.ID]; ok {
		return fmt.Errorf("member %s already exists", mb.ID)
	}
	m.data.members[mb.ID] = *mb
	return nil
}

func (m *MemoryStore) GetMember(ctx context.Context, id string) (*models.Member, error) {
	defer m.lock()()
	mb, ok := m.data.members[id]
	if !ok {
		return nil, models.ErrUnknownMember
	}
	return &mb, nil
}

func (m *MemoryStore) ListMembers(ctx context.Context) ([]models.Member, error) {
	defer m.lock()()
	members := make([]models.Member, 0, len(m.data.members))
	for _, mb := range m.data.members {
		members = append(members, mb)
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Nom != members[j].Nom {
			return members[i].Nom < members[j].Nom
		}
		return members[i].ID < members[j].ID
	})
	return members, nil
}

func (m *MemoryStore) UpdateMemberSavings(ctx context.Context, id string, solde int64) error {
	defer m.lock()()
	mb, ok := m.data.members[id]
	if !ok {
		return models.ErrUnknownMember
	}
	mb.SoldeEpargne = solde
	m.data.members[id] = mb
	return nil
}

func (m *MemoryStore) DeleteMember(ctx context.Context, id string) error {
	defer m.lock()()
	if _, ok := m.data.members[id]; !ok {
		return models.ErrUnknownMember
	}
	delete(m.data.members, id)
	return nil
}

// Movements

func (m *MemoryStore) InsertMovement(ctx context.Context, mv *models.Movement) error {
	defer m.lock()()
	m.data.movements[mv.ID] = *mv
	m.note(mv.ID)
	return nil
}

func (m *MemoryStore) GetMovement(ctx context.Context, id string) (*models.Movement, error) {
	defer m.lock()()
	mv, ok := m.data.movements[id]
	if !ok {
		return nil, models.ErrMovementNotFound
	}
	return &mv, nil
}

func (m *MemoryStore) sortedMovements(filter func(models.Movement) bool) []models.Movement {
	var movements []models.Movement
	for _, mv := range m.data.movements {
		if filter == nil || filter(mv) {
			movements = append(movements, mv)
		}
	}
	sort.Slice(movements, func(i, j int) bool {
		return m.data.order[movements[i].ID] < m.data.order[movements[j].ID]
	})
	return movements
}

func (m *MemoryStore) ListMovements(ctx context.Context) ([]models.Movement, error) {
	defer m.lock()()
	return m.sortedMovements(nil), nil
}

func (m *MemoryStore) ListMemberMovements(ctx context.Context, memberID string) ([]models.Movement, error) {
	defer m.lock()()
	return m.sortedMovements(func(mv models.Movement) bool { return mv.MemberID == memberID }), nil
}

func (m *MemoryStore) UpdateMovement(ctx context.Context, mv *models.Movement) error {
	defer m.lock()()
	existing, ok := m.data.movements[mv.ID]
	if !ok {
		return models.ErrMovementNotFound
	}
	updated := existing
	updated.Type = mv.Type
	updated.Amount = mv.Amount
	updated.Reason = mv.Reason
	updated.Date = mv.Date
	updated.SessionID = mv.SessionID
	m.data.movements[mv.ID] = updated
	return nil
}

func (m *MemoryStore) DeleteMovement(ctx context.Context, id string) error {
	defer m.lock()()
	if _, ok := m.data.movements[id]; !ok {
		return models.ErrMovementNotFound
	}
	delete(m.data.movements, id)
	return nil
}

func (m *MemoryStore) DeleteCreditMovements(ctx context.Context, creditID string) error {
	defer m.lock()()
	for id, mv := range m.data.movements {
		if mv.CreditID != nil && *mv.CreditID == creditID {
			delete(m.data.movements, id)
		}
	}
	return nil
}

func (m *MemoryStore) DeleteMemberMovements(ctx context.Context, memberID string) error {
	defer m.lock()()
	for id, mv := range m.data.movements {
		if mv.MemberID == memberID {
			delete(m.data.movements, id)
		}
	}
	return nil
}

func (m *MemoryStore) BackfillMovementSessions(ctx context.Context, sessionID string) (int64, error) {
	defer m.lock()()
	var n int64
	for id, mv := range m.data.movements {
		if mv.SessionID == nil {
			sid := sessionID
			mv.SessionID = &sid
			m.data.movements[id] = mv
			n++
		}
	}
	return n, nil
}

// Credits

func (m *MemoryStore) InsertCredit(ctx context.Context, c *models.Credit) error {
	defer m.lock()()
	m.data.credits[c.ID] = *c
	m.note(c.ID)
	return nil
}

func (m *MemoryStore) GetCredit(ctx context.Context, id string) (*models.Credit, error) {
	defer m.lock()()
	c, ok := m.data.credits[id]
	if !ok {
		return nil, models.ErrCreditNotFound
	}
	return &c, nil
}

func (m *MemoryStore) sortedCredits(filter func(models.Credit) bool) []models.Credit {
	var credits []models.Credit
	for _, c := range m.data.credits {
		if filter == nil || filter(c) {
			credits = append(credits, c)
		}
	}
	sort.Slice(credits, func(i, j int) bool {
		return m.data.order[credits[i].ID] < m.data.order[credits[j].ID]
	})
	return credits
}

func (m *MemoryStore) ListCredits(ctx context.Context) ([]models.Credit, error) {
	defer m.lock()()
	return m.sortedCredits(nil), nil
}

func (m *MemoryStore) ListMemberCredits(ctx context.Context, memberID string) ([]models.Credit, error) {
	defer m.lock()()
	return m.sortedCredits(func(c models.Credit) bool { return c.MemberID == memberID }), nil
}

func (m *MemoryStore) ListUnpaidCredits(ctx context.Context) ([]models.Credit, error) {
	defer m.lock()()
	return m.sortedCredits(func(c models.Credit) bool { return c.Status != models.CreditRepaid }), nil
}

func (m *MemoryStore) UpdateCredit(ctx context.Context, c *models.Credit) error {
	defer m.lock()()
	existing, ok := m.data.credits[c.ID]
	if !ok {
		return models.ErrCreditNotFound
	}
	updated := existing
	updated.Remaining = c.Remaining
	updated.PenaltyDue = c.PenaltyDue
	updated.DueDate = c.DueDate
	updated.Status = c.Status
	updated.LastPenaltySessionID = c.LastPenaltySessionID
	m.data.credits[c.ID] = updated
	return nil
}

func (m *MemoryStore) DeleteCredit(ctx context.Context, id string) error {
	defer m.lock()()
	if _, ok := m.data.credits[id]; !ok {
		return models.ErrCreditNotFound
	}
	delete(m.data.credits, id)
	return nil
}

// Repayments

func (m *MemoryStore) InsertRepayment(ctx context.Context, r *models.Repayment) error {
	defer m.lock()()
	m.data.repayments[r.ID] = *r
	m.note(r.ID)
	return nil
}

func (m *MemoryStore) ListCreditRepayments(ctx context.Context, creditID string) ([]models.Repayment, error) {
	defer m.lock()()
	var repayments []models.Repayment
	for _, r := range m.data.repayments {
		if r.CreditID == creditID {
			repayments = append(repayments, r)
		}
	}
	sort.Slice(repayments, func(i, j int) bool {
		return m.data.order[repayments[i].ID] < m.data.order[repayments[j].ID]
	})
	return repayments, nil
}

func (m *MemoryStore) DeleteCreditRepayments(ctx context.Context, creditID string) error {
	defer m.lock()()
	for id, r := range m.data.repayments {
		if r.CreditID == creditID {
			delete(m.data.repayments, id)
		}
	}
	return nil
}

// Sessions

func (m *MemoryStore) InsertSession(ctx context.Context, s *models.Session) error {
	defer m.lock()()
	if s.Status == models.SessionActive {
		for _, existing := range m.data.sessions {
			if existing.Status == models.SessionActive {
				return models.ErrSessionAlreadyActive
			}
		}
	}
	m.data.sessions[s.ID] = *s
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	defer m.lock()()
	s, ok := m.data.sessions[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	return &s, nil
}

func (m *MemoryStore) GetActiveSession(ctx context.Context) (*models.Session, error) {
	defer m.lock()()
	for _, s := range m.data.sessions {
		if s.Status == models.SessionActive {
			active := s
			return &active, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) ListSessions(ctx context.Context) ([]models.Session, error) {
	defer m.lock()()
	sessions := make([]models.Session, 0, len(m.data.sessions))
	for _, s := range m.data.sessions {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Numero < sessions[j].Numero })
	return sessions, nil
}

func (m *MemoryStore) UpdateSession(ctx context.Context, s *models.Session) error {
	defer m.lock()()
	existing, ok := m.data.sessions[s.ID]
	if !ok {
		return models.ErrSessionNotFound
	}
	updated := existing
	updated.Nom = s.Nom
	updated.DateFin = s.DateFin
	updated.TotalEpargne = s.TotalEpargne
	updated.TotalInterets = s.TotalInterets
	updated.FondsDisponible = s.FondsDisponible
	updated.Status = s.Status
	m.data.sessions[s.ID] = updated
	return nil
}

func (m *MemoryStore) NextSessionNumero(ctx context.Context) (int, error) {
	defer m.lock()()
	max := 0
	for _, s := range m.data.sessions {
		if s.Numero > max {
			max = s.Numero
		}
	}
	return max + 1, nil
}

// Session member rollups

func (m *MemoryStore) UpsertSessionMember(ctx context.Context, sm *models.SessionMember) error {
	defer m.lock()()
	m.data.sessionMembers[sm.SessionID+"/"+sm.MemberID] = *sm
	return nil
}

func (m *MemoryStore) ListSessionMembers(ctx context.Context, sessionID string) ([]models.SessionMember, error) {
	defer m.lock()()
	var rollups []models.SessionMember
	for _, sm := range m.data.sessionMembers {
		if sm.SessionID == sessionID {
			rollups = append(rollups, sm)
		}
	}
	sort.Slice(rollups, func(i, j int) bool { return rollups[i].MemberID < rollups[j].MemberID })
	return rollups, nil
}
