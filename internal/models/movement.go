package models

import (
	"time"
)

// MovementType is the closed enumeration of ledger movement kinds. The same
// list is enforced by a CHECK constraint on the mouvements table; adding a
// type requires a migration, never an ad-hoc string.
type MovementType string

const (
	MovementEpargne               MovementType = "epargne"
	MovementCotisationAnnuelle    MovementType = "cotisation_annuelle"
	MovementCotisationPonctuelle  MovementType = "cotisation_ponctuelle"
	MovementCautionDepot          MovementType = "caution_depot"
	MovementCautionRetour         MovementType = "caution_retour"
	MovementCreditAccorde         MovementType = "credit_accorde"
	MovementRemboursement         MovementType = "remboursement"
	MovementInteret               MovementType = "interet"
	MovementDepenseCommuneFonds   MovementType = "depense_commune_fonds"
	MovementDepenseCommuneEpargne MovementType = "depense_commune_epargne"
	MovementCassation             MovementType = "cassation"
	MovementReglement             MovementType = "reglement"
)

// AllMovementTypes lists every valid movement type, in migration order.
var AllMovementTypes = []MovementType{
	MovementEpargne,
	MovementCotisationAnnuelle,
	MovementCotisationPonctuelle,
	MovementCautionDepot,
	MovementCautionRetour,
	MovementCreditAccorde,
	MovementRemboursement,
	MovementInteret,
	MovementDepenseCommuneFonds,
	MovementDepenseCommuneEpargne,
	MovementCassation,
	MovementReglement,
}

// Valid reports whether t belongs to the closed enumeration.
func (t MovementType) Valid() bool {
	for _, mt := range AllMovementTypes {
		if t == mt {
			return true
		}
	}
	return false
}

// Sign returns the expected sign of amounts for this type: +1 for inflows to
// the fund, -1 for outflows, 0 when either direction is allowed.
func (t MovementType) Sign() int {
	switch t {
	case MovementEpargne, MovementCotisationAnnuelle, MovementCotisationPonctuelle,
		MovementCautionDepot, MovementRemboursement, MovementInteret:
		return 1
	case MovementCautionRetour, MovementCreditAccorde,
		MovementDepenseCommuneFonds, MovementDepenseCommuneEpargne, MovementCassation:
		return -1
	}
	return 0
}

// SavingsDelta returns by how much a movement of this type and amount moves
// the owning member's savings balance. Only plain savings deposits and
// savings-funded common expenses touch it.
func (t MovementType) SavingsDelta(amount int64) int64 {
	switch t {
	case MovementEpargne, MovementDepenseCommuneEpargne:
		return amount
	}
	return 0
}

// Movement is one row of the append-mostly money journal, the single source
// of truth for money flow. Amount is signed: positive inflow, negative
// outflow. CreditID links movements produced by the credit lifecycle so that
// deleting a credit can clean them up explicitly.
type Movement struct {
	ID        string       `json:"id" db:"id"`
	MemberID  string       `json:"member_id" db:"member_id"`
	CreditID  *string      `json:"credit_id,omitempty" db:"credit_id"`
	Type      MovementType `json:"type" db:"type"`
	Amount    int64        `json:"amount" db:"amount"`
	Reason    string       `json:"reason" db:"reason"`
	Date      time.Time    `json:"date" db:"date"`
	SessionID *string      `json:"session_id,omitempty" db:"session_id"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}
