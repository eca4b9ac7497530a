package models

import (
	"time"
)

// Member is a fund member. SoldeEpargne is a denormalized projection of the
// ledger: it must always equal the sum the balance projector derives, and is
// refreshed inside the same transaction as any movement that touches it.
type Member struct {
	ID           string    `json:"id" db:"id"`
	Nom          string    `json:"nom" db:"nom"`
	Telephone    string    `json:"telephone,omitempty" db:"telephone"`
	Caution      int64     `json:"caution" db:"caution"`
	SoldeEpargne int64     `json:"solde_epargne" db:"solde_epargne"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
