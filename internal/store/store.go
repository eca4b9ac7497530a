package store

import (
	"context"

	"github.com/fondfamilial/backend/internal/models"
)

// Store is the persistence interface the core components are written
// against. Production uses PostgresStore; tests use MemoryStore. Atomically
// runs fn against a transactional view of the store: either every write in
// fn is durable or none is.
type Store interface {
	Atomically(ctx context.Context, fn func(Store) error) error

	// Members
	CreateMember(ctx context.Context, m *models.Member) error
	GetMember(ctx context.Context, id string) (*models.Member, error)
	ListMembers(ctx context.Context) ([]models.Member, error)
	UpdateMemberSavings(ctx context.Context, id string, solde int64) error
	DeleteMember(ctx context.Context, id string) error

	// Movements
	InsertMovement(ctx context.Context, mv *models.Movement) error
	GetMovement(ctx context.Context, id string) (*models.Movement, error)
	ListMovements(ctx context.Context) ([]models.Movement, error)
	ListMemberMovements(ctx context.Context, memberID string) ([]models.Movement, error)
	UpdateMovement(ctx context.Context, mv *models.Movement) error
	DeleteMovement(ctx context.Context, id string) error
	DeleteCreditMovements(ctx context.Context, creditID string) error
	DeleteMemberMovements(ctx context.Context, memberID string) error
	// BackfillMovementSessions assigns sessionID to every movement that has
	// none and returns how many rows were repaired.
	BackfillMovementSessions(ctx context.Context, sessionID string) (int64, error)

	// Credits
	InsertCredit(ctx context.Context, c *models.Credit) error
	GetCredit(ctx context.Context, id string) (*models.Credit, error)
	ListCredits(ctx context.Context) ([]models.Credit, error)
	ListMemberCredits(ctx context.Context, memberID string) ([]models.Credit, error)
	ListUnpaidCredits(ctx context.Context) ([]models.Credit, error)
	UpdateCredit(ctx context.Context, c *models.Credit) error
	DeleteCredit(ctx context.Context, id string) error

	// Repayments
	InsertRepayment(ctx context.Context, r *models.Repayment) error
	ListCreditRepayments(ctx context.Context, creditID string) ([]models.Repayment, error)
	DeleteCreditRepayments(ctx context.Context, creditID string) error

	// Sessions
	InsertSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	// GetActiveSession returns (nil, nil) when no session is active.
	GetActiveSession(ctx context.Context) (*models.Session, error)
	ListSessions(ctx context.Context) ([]models.Session, error)
	UpdateSession(ctx context.Context, s *models.Session) error
	NextSessionNumero(ctx context.Context) (int, error)

	// Session member rollups
	UpsertSessionMember(ctx context.Context, sm *models.SessionMember) error
	ListSessionMembers(ctx context.Context, sessionID string) ([]models.SessionMember, error)
}
