package ingest

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/fadedpez/balancewatch/pkg/entities"
)

// SnapshotDocument is a balance reading as written by the scrapers
type SnapshotDocument struct {
	ID       string           `json:"_id"`
	Website  string           `json:"website" validate:"required"`
	Username string           `json:"username" validate:"required"`
	Grupo    string           `json:"grupo"`
	Fecha    string           `json:"fecha" validate:"required,timestamp"`
	Balance  *decimal.Decimal `json:"balance"`
}

// MovementDocument is a ledger entry as exported by the back office.
// UpdatedAt is UTC.
type MovementDocument struct {
	ID        string           `json:"_id" validate:"required"`
	GameName  string           `json:"gameName" validate:"required"`
	Company   string           `json:"company" validate:"required"`
	Type      string           `json:"type" validate:"required"`
	Amount    *decimal.Decimal `json:"amount" validate:"required"`
	Status    string           `json:"status" validate:"required"`
	UpdatedAt string           `json:"updatedAt" validate:"required,timestamp"`
}

// GroupDocument lists the companies of one operator group
type GroupDocument struct {
	Grupo     string   `json:"grupo" validate:"required"`
	Companias []string `json:"companias" validate:"min=1,dive,required"`
}

// newValidator reports field errors under their json names and knows the
// timestamp tag
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("timestamp", func(fl validator.FieldLevel) bool {
		_, err := entities.ParseTimestamp(fl.Field().String())
		return err == nil
	})
	return v
}

// ToSnapshot builds an unconsumed snapshot with a title-cased platform and
// a canonical timestamp
func (d *SnapshotDocument) ToSnapshot() *entities.BalanceSnapshot {
	snap := &entities.BalanceSnapshot{
		ID:         strings.TrimSpace(d.ID),
		Platform:   entities.NormalizePlatform(d.Website),
		Account:    strings.TrimSpace(d.Username),
		Group:      strings.TrimSpace(d.Grupo),
		RecordedAt: entities.CanonicalTimestamp(d.Fecha),
		State:      entities.StateUnconsumed,
	}
	if d.Balance != nil {
		snap.Balance = decimal.NewNullDecimal(*d.Balance)
	}
	return snap
}

// ToMovement builds a movement whose effective time is UpdatedAt shifted by
// offset into the ledger's wall clock
func (d *MovementDocument) ToMovement(offset time.Duration) (*entities.Movement, error) {
	updated, err := entities.ParseTimestamp(d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	local := updated.UTC().Add(offset)

	return &entities.Movement{
		ID:          strings.TrimSpace(d.ID),
		GameName:    strings.TrimSpace(d.GameName),
		Company:     strings.TrimSpace(d.Company),
		Type:        entities.MovementType(strings.TrimSpace(d.Type)),
		Amount:      *d.Amount,
		Status:      entities.MovementStatus(strings.TrimSpace(d.Status)),
		EffectiveAt: local,
	}, nil
}

// ToMembership builds a membership with trimmed, de-duplicated companies
func (d *GroupDocument) ToMembership() *entities.GroupMembership {
	seen := make(map[string]bool, len(d.Companias))
	companies := make([]string, 0, len(d.Companias))
	for _, c := range d.Companias {
		c = strings.TrimSpace(c)
		key := entities.MatchKey(c)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		companies = append(companies, c)
	}
	return &entities.GroupMembership{
		Group:     strings.TrimSpace(d.Grupo),
		Companies: companies,
	}
}
