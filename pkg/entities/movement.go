package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementType is the ledger's classification of a movement
type MovementType string

const (
	MovementAddCredits      MovementType = "Add Credits"
	MovementWithdrawCredits MovementType = "Withdraw Credits"
	MovementRemoveCredits   MovementType = "Remove Credits"
)

// Bucket is the side of the expected delta a movement contributes to
type Bucket int

const (
	BucketNone Bucket = iota
	BucketCredit
	BucketDebit
)

// Bucket classifies the movement type. Unknown types land in BucketNone.
func (t MovementType) Bucket() Bucket {
	switch t {
	case MovementAddCredits:
		return BucketCredit
	case MovementWithdrawCredits, MovementRemoveCredits:
		return BucketDebit
	default:
		return BucketNone
	}
}

// MovementStatus is the approval state of a movement
type MovementStatus string

const (
	StatusApproved MovementStatus = "Approved"
	StatusPending  MovementStatus = "Pending"
	StatusRejected MovementStatus = "Rejected"
)

// Movement is one ledger entry moving credits for a company on a platform
type Movement struct {
	ID          string          `json:"id"`
	GameName    string          `json:"game_name"` // platform
	Company     string          `json:"company"`
	Type        MovementType    `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Status      MovementStatus  `json:"status"`
	EffectiveAt time.Time       `json:"effective_at"` // ledger wall clock
}

// Clone returns a copy of the movement
func (m *Movement) Clone() *Movement {
	c := *m
	return &c
}
