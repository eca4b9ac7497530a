package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fondfamilial/backend/internal/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx so every query below can
// run inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// PostgresStore implements Store on top of lib/pq.
type PostgresStore struct {
	db *sql.DB // nil inside a transaction
	q  querier
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, q: db}
}

// Atomically runs fn against a *sql.Tx-backed view. Nested calls reuse the
// surrounding transaction.
func (s *PostgresStore) Atomically(ctx context.Context, fn func(Store) error) error {
	if s.db == nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&PostgresStore{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Members

func (s *PostgresStore) CreateMember(ctx context.Context, m *models.Member) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO membres (id, nom, telephone, caution, solde_epargne, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.Nom, m.Telephone, m.Caution, m.SoldeEpargne, m.CreatedAt)
	return err
}

func (s *PostgresStore) GetMember(ctx context.Context, id string) (*models.Member, error) {
	var m models.Member
	err := s.q.QueryRowContext(ctx, `
		SELECT id, nom, telephone, caution, solde_epargne, created_at
		FROM membres WHERE id = $1`, id).
		Scan(&m.ID, &m.Nom, &m.Telephone, &m.Caution, &m.SoldeEpargne, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrUnknownMember
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) ListMembers(ctx context.Context) ([]models.Member, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, nom, telephone, caution, solde_epargne, created_at
		FROM membres ORDER BY nom, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.ID, &m.Nom, &m.Telephone, &m.Caution, &m.SoldeEpargne, &m.CreatedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *PostgresStore) UpdateMemberSavings(ctx context.Context, id string, solde int64) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE membres SET solde_epargne = $1 WHERE id = $2`, solde, id)
	if err != nil {
		return err
	}
	return requireRow(res, models.ErrUnknownMember)
}

func (s *PostgresStore) DeleteMember(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM membres WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res, models.ErrUnknownMember)
}

// Movements

const movementColumns = `id, member_id, credit_id, type, amount, reason, date, session_id, created_at`

func (s *PostgresStore) InsertMovement(ctx context.Context, mv *models.Movement) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO mouvements (id, member_id, credit_id, type, amount, reason, date, session_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		mv.ID, mv.MemberID, mv.CreditID, string(mv.Type), mv.Amount, mv.Reason, mv.Date, mv.SessionID, mv.CreatedAt)
	return err
}

func scanMovement(sc interface{ Scan(...interface{}) error }) (models.Movement, error) {
	var mv models.Movement
	var mtype string
	err := sc.Scan(&mv.ID, &mv.MemberID, &mv.CreditID, &mtype, &mv.Amount, &mv.Reason, &mv.Date, &mv.SessionID, &mv.CreatedAt)
	mv.Type = models.MovementType(mtype)
	return mv, err
}

func (s *PostgresStore) GetMovement(ctx context.Context, id string) (*models.Movement, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+movementColumns+` FROM mouvements WHERE id = $1`, id)
	mv, err := scanMovement(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrMovementNotFound
	}
	if err != nil {
		return nil, err
	}
	return &mv, nil
}

func (s *PostgresStore) listMovements(ctx context.Context, query string, args ...interface{}) ([]models.Movement, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []models.Movement
	for rows.Next() {
		mv, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, mv)
	}
	return movements, rows.Err()
}

func (s *PostgresStore) ListMovements(ctx context.Context) ([]models.Movement, error) {
	return s.listMovements(ctx,
		`SELECT `+movementColumns+` FROM mouvements ORDER BY created_at, id`)
}

func (s *PostgresStore) ListMemberMovements(ctx context.Context, memberID string) ([]models.Movement, error) {
	return s.listMovements(ctx,
		`SELECT `+movementColumns+` FROM mouvements WHERE member_id = $1 ORDER BY created_at, id`, memberID)
}

func (s *PostgresStore) UpdateMovement(ctx context.Context, mv *models.Movement) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE mouvements
		SET type = $1, amount = $2, reason = $3, date = $4, session_id = $5
		WHERE id = $6`,
		string(mv.Type), mv.Amount, mv.Reason, mv.Date, mv.SessionID, mv.ID)
	if err != nil {
		return err
	}
	return requireRow(res, models.ErrMovementNotFound)
}

func (s *PostgresStore) DeleteMovement(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM mouvements WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res, models.ErrMovementNotFound)
}

func (s *PostgresStore) DeleteCreditMovements(ctx context.Context, creditID string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM mouvements WHERE credit_id = $1`, creditID)
	return err
}

func (s *PostgresStore) DeleteMemberMovements(ctx context.Context, memberID string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM mouvements WHERE member_id = $1`, memberID)
	return err
}

func (s *PostgresStore) BackfillMovementSessions(ctx context.Context, sessionID string) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		`UPDATE mouvements SET session_id = $1 WHERE session_id IS NULL`, sessionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Credits

const creditColumns = `id, member_id, principal, total_due, remaining, penalty_due, granted_at, due_date, status, last_penalty_session_id`

func (s *PostgresStore) InsertCredit(ctx context.Context, c *models.Credit) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO credits (id, member_id, principal, total_due, remaining, penalty_due, granted_at, due_date, status, last_penalty_session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.MemberID, c.Principal, c.TotalDue, c.Remaining, c.PenaltyDue,
		c.GrantedAt, c.DueDate, string(c.Status), c.LastPenaltySessionID)
	return err
}

func scanCredit(sc interface{ Scan(...interface{}) error }) (models.Credit, error) {
	var c models.Credit
	var status string
	err := sc.Scan(&c.ID, &c.MemberID, &c.Principal, &c.TotalDue, &c.Remaining, &c.PenaltyDue,
		&c.GrantedAt, &c.DueDate, &status, &c.LastPenaltySessionID)
	c.Status = models.CreditStatus(status)
	return c, err
}

func (s *PostgresStore) GetCredit(ctx context.Context, id string) (*models.Credit, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+creditColumns+` FROM credits WHERE id = $1`, id)
	c, err := scanCredit(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrCreditNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) listCredits(ctx context.Context, query string, args ...interface{}) ([]models.Credit, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var credits []models.Credit
	for rows.Next() {
		c, err := scanCredit(rows)
		if err != nil {
			return nil, err
		}
		credits = append(credits, c)
	}
	return credits, rows.Err()
}

func (s *PostgresStore) ListCredits(ctx context.Context) ([]models.Credit, error) {
	return s.listCredits(ctx,
		`SELECT `+creditColumns+` FROM credits ORDER BY granted_at, id`)
}

func (s *PostgresStore) ListMemberCredits(ctx context.Context, memberID string) ([]models.Credit, error) {
	return s.listCredits(ctx,
		`SELECT `+creditColumns+` FROM credits WHERE member_id = $1 ORDER BY granted_at, id`, memberID)
}

func (s *PostgresStore) ListUnpaidCredits(ctx context.Context) ([]models.Credit, error) {
	return s.listCredits(ctx,
		`SELECT `+creditColumns+` FROM credits WHERE status <> 'repaid' ORDER BY granted_at, id`)
}

func (s *PostgresStore) UpdateCredit(ctx context.Context, c *models.Credit) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE credits
		SET remaining = $1, penalty_due = $2, due_date = $3, status = $4, last_penalty_session_id = $5
		WHERE id = $6`,
		c.Remaining, c.PenaltyDue, c.DueDate, string(c.Status), c.LastPenaltySessionID, c.ID)
	if err != nil {
		return err
	}
	return requireRow(res, models.ErrCreditNotFound)
}

func (s *PostgresStore) DeleteCredit(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM credits WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res, models.ErrCreditNotFound)
}

// Repayments

func (s *PostgresStore) InsertRepayment(ctx context.Context, r *models.Repayment) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO remboursements (id, credit_id, amount, type, date)
		VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.CreditID, r.Amount, string(r.Type), r.Date)
	return err
}

func (s *PostgresStore) ListCreditRepayments(ctx context.Context, creditID string) ([]models.Repayment, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, credit_id, amount, type, date
		FROM remboursements WHERE credit_id = $1 ORDER BY date, id`, creditID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var repayments []models.Repayment
	for rows.Next() {
		var r models.Repayment
		var rtype string
		if err := rows.Scan(&r.ID, &r.CreditID, &r.Amount, &rtype, &r.Date); err != nil {
			return nil, err
		}
		r.Type = models.RepaymentType(rtype)
		repayments = append(repayments, r)
	}
	return repayments, rows.Err()
}

func (s *PostgresStore) DeleteCreditRepayments(ctx context.Context, creditID string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM remboursements WHERE credit_id = $1`, creditID)
	return err
}

// Sessions

const sessionColumns = `id, numero, nom, date_debut, date_fin, total_epargne, total_interets, fonds_disponible, status`

func (s *PostgresStore) InsertSession(ctx context.Context, sess *models.Session) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO sessions (id, numero, nom, date_debut, date_fin, total_epargne, total_interets, fonds_disponible, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sess.ID, sess.Numero, sess.Nom, sess.DateDebut, sess.DateFin,
		sess.TotalEpargne, sess.TotalInterets, sess.FondsDisponible, string(sess.Status))
	return err
}

func scanSession(sc interface{ Scan(...interface{}) error }) (models.Session, error) {
	var sess models.Session
	var status string
	err := sc.Scan(&sess.ID, &sess.Numero, &sess.Nom, &sess.DateDebut, &sess.DateFin,
		&sess.TotalEpargne, &sess.TotalInterets, &sess.FondsDisponible, &status)
	sess.Status = models.SessionStatus(status)
	return sess, err
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *PostgresStore) GetActiveSession(ctx context.Context) (*models.Session, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE status = 'active'`)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context) ([]models.Session, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY numero`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *PostgresStore) UpdateSession(ctx context.Context, sess *models.Session) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE sessions
		SET nom = $1, date_fin = $2, total_epargne = $3, total_interets = $4, fonds_disponible = $5, status = $6
		WHERE id = $7`,
		sess.Nom, sess.DateFin, sess.TotalEpargne, sess.TotalInterets,
		sess.FondsDisponible, string(sess.Status), sess.ID)
	if err != nil {
		return err
	}
	return requireRow(res, models.ErrSessionNotFound)
}

func (s *PostgresStore) NextSessionNumero(ctx context.Context) (int, error) {
	var numero int
	err := s.q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(numero), 0) + 1 FROM sessions`).Scan(&numero)
	return numero, err
}

// Session member rollups

func (s *PostgresStore) UpsertSessionMember(ctx context.Context, sm *models.SessionMember) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO session_membres (session_id, member_id, epargne_session, interets_session, part_session)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, member_id) DO UPDATE
		SET epargne_session = EXCLUDED.epargne_session,
		    interets_session = EXCLUDED.interets_session,
		    part_session = EXCLUDED.part_session`,
		sm.SessionID, sm.MemberID, sm.EpargneSession, sm.InteretsSession, sm.PartSession)
	return err
}

func (s *PostgresStore) ListSessionMembers(ctx context.Context, sessionID string) ([]models.SessionMember, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT session_id, member_id, epargne_session, interets_session, part_session
		FROM session_membres WHERE session_id = $1 ORDER BY member_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rollups []models.SessionMember
	for rows.Next() {
		var sm models.SessionMember
		if err := rows.Scan(&sm.SessionID, &sm.MemberID, &sm.EpargneSession, &sm.InteretsSession, &sm.PartSession); err != nil {
			return nil, err
		}
		rollups = append(rollups, sm)
	}
	return rollups, rows.Err()
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
