package models

import "errors"

// Validation errors: rejected before any write, safe to retry after correction.
var (
	ErrUnknownMember    = errors.New("unknown member")
	ErrInvalidType      = errors.New("invalid movement type")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidPrincipal = errors.New("invalid principal")
	ErrCreditNotFound   = errors.New("credit not found")
	ErrMovementNotFound = errors.New("movement not found")
	ErrSessionNotFound  = errors.New("session not found")
)

// State-conflict errors: the current state is left untouched, caller must
// re-fetch before retrying.
var (
	ErrExcessRepayment           = errors.New("repayment exceeds remaining balance")
	ErrSessionAlreadyActive      = errors.New("a session is already active")
	ErrSessionNotActive          = errors.New("session is not active")
	ErrCannotDeleteActiveSession = errors.New("cannot delete the active session")
	ErrCassationAlreadyApplied   = errors.New("cassation already applied with no new activity")
	ErrNothingToDistribute       = errors.New("nothing to distribute")
	ErrNoCassationYet            = errors.New("no cassation has been applied yet")
	ErrMovementFrozen            = errors.New("movement belongs to a cassation-consumed session")
)

// ErrorCode returns the stable machine-readable code reported across the API
// boundary for a domain error, or empty when err is not a domain error.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownMember):
		return "UNKNOWN_MEMBER"
	case errors.Is(err, ErrInvalidType):
		return "INVALID_TYPE"
	case errors.Is(err, ErrInvalidAmount):
		return "INVALID_AMOUNT"
	case errors.Is(err, ErrInvalidPrincipal):
		return "INVALID_PRINCIPAL"
	case errors.Is(err, ErrCreditNotFound):
		return "CREDIT_NOT_FOUND"
	case errors.Is(err, ErrMovementNotFound):
		return "MOVEMENT_NOT_FOUND"
	case errors.Is(err, ErrSessionNotFound):
		return "SESSION_NOT_FOUND"
	case errors.Is(err, ErrExcessRepayment):
		return "EXCESS_REPAYMENT"
	case errors.Is(err, ErrSessionAlreadyActive):
		return "SESSION_ALREADY_ACTIVE"
	case errors.Is(err, ErrSessionNotActive):
		return "SESSION_NOT_ACTIVE"
	case errors.Is(err, ErrCannotDeleteActiveSession):
		return "CANNOT_DELETE_ACTIVE_SESSION"
	case errors.Is(err, ErrCassationAlreadyApplied):
		return "CASSATION_ALREADY_APPLIED"
	case errors.Is(err, ErrNothingToDistribute):
		return "NOTHING_TO_DISTRIBUTE"
	case errors.Is(err, ErrNoCassationYet):
		return "NO_CASSATION_YET"
	case errors.Is(err, ErrMovementFrozen):
		return "MOVEMENT_FROZEN"
	}
	return ""
}
