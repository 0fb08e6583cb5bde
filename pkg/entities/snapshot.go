package entities

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrAlreadyConsumed is returned when a consumed snapshot is consumed again
var ErrAlreadyConsumed = errors.New("snapshot already consumed")

// ConsumptionState tracks whether a snapshot has served as the earlier half
// of a reconciled pair
type ConsumptionState int

const (
	StateUnconsumed ConsumptionState = iota
	StateConsumed
)

// String returns the state name
func (s ConsumptionState) String() string {
	if s == StateConsumed {
		return "consumed"
	}
	return "unconsumed"
}

// BalanceSnapshot is one observed balance of an account on a platform
type BalanceSnapshot struct {
	ID         string              `json:"id"`
	Platform   string              `json:"platform"`    // stored as observed, normalized at pairing time
	Account    string              `json:"account"`     // platform username
	Group      string              `json:"group"`       // operator group, may be empty
	RecordedAt string              `json:"recorded_at"` // canonical layout, see TimestampLayout
	Balance    decimal.NullDecimal `json:"balance"`     // invalid when the scraper could not read a balance
	State      ConsumptionState    `json:"state"`
	ConsumedAt *time.Time          `json:"consumed_at,omitempty"`
}

// IsConsumed reports whether the snapshot has left the candidate set
func (s *BalanceSnapshot) IsConsumed() bool {
	return s.State == StateConsumed
}

// Consume performs the one-way Unconsumed -> Consumed transition
func (s *BalanceSnapshot) Consume(at time.Time) error {
	if s.State == StateConsumed {
		return ErrAlreadyConsumed
	}
	s.State = StateConsumed
	s.ConsumedAt = &at
	return nil
}

// Time parses RecordedAt
func (s *BalanceSnapshot) Time() (time.Time, error) {
	return ParseTimestamp(s.RecordedAt)
}

// SeriesKey identifies the (platform, account) series a snapshot belongs to
func (s *BalanceSnapshot) SeriesKey() SeriesKey {
	return SeriesKey{Platform: NormalizePlatform(s.Platform), Account: s.Account}
}

// Clone returns a deep copy
func (s *BalanceSnapshot) Clone() *BalanceSnapshot {
	c := *s
	if s.ConsumedAt != nil {
		at := *s.ConsumedAt
		c.ConsumedAt = &at
	}
	return &c
}

// SeriesKey is a normalized platform plus account
type SeriesKey struct {
	Platform string
	Account  string
}
