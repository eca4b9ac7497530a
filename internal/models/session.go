package models

import (
	"time"
)

// SessionStatus is the closed session lifecycle enumeration. A deleted
// session keeps its row (status supprimee) so session numbers stay immutable.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionTerminee  SessionStatus = "terminee"
	SessionCassation SessionStatus = "cassation"
	SessionSupprimee SessionStatus = "supprimee"
)

// Session is one chained accounting period. At most one session is active at
// any time; Numero is monotonically increasing and immutable once assigned.
type Session struct {
	ID              string        `json:"id" db:"id"`
	Numero          int           `json:"numero" db:"numero"`
	Nom             string        `json:"nom,omitempty" db:"nom"`
	DateDebut       time.Time     `json:"date_debut" db:"date_debut"`
	DateFin         *time.Time    `json:"date_fin,omitempty" db:"date_fin"`
	TotalEpargne    int64         `json:"total_epargne" db:"total_epargne"`
	TotalInterets   int64         `json:"total_interets" db:"total_interets"`
	FondsDisponible int64         `json:"fonds_disponible" db:"fonds_disponible"`
	Status          SessionStatus `json:"status" db:"status"`
}

// SessionMember is the per-(session, member) rollup. It is a projection of
// movements and credits, never an independent source of truth, and may be
// recomputed at any time.
type SessionMember struct {
	SessionID       string `json:"session_id" db:"session_id"`
	MemberID        string `json:"member_id" db:"member_id"`
	EpargneSession  int64  `json:"epargne_session" db:"epargne_session"`
	InteretsSession int64  `json:"interets_session" db:"interets_session"`
	PartSession     int64  `json:"part_session" db:"part_session"`
}
