package movement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fadedpez/balancewatch/pkg/entities"
)

// movementRow is the gorm model for movements
type movementRow struct {
	ID          string          `gorm:"primaryKey;size:64"`
	GameName    string          `gorm:"size:128"`
	GameKey     string          `gorm:"size:128;index:idx_movements_lookup,priority:2"`
	Company     string          `gorm:"size:128"`
	CompanyKey  string          `gorm:"size:128;index"`
	Type        string          `gorm:"size:32"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,8)"`
	Status      string          `gorm:"size:32;index:idx_movements_lookup,priority:1"`
	EffectiveAt string          `gorm:"size:32;index:idx_movements_lookup,priority:3"`
	UpdatedAt   time.Time
}

func (movementRow) TableName() string {
	return "movements"
}

func toMovementRow(m *entities.Movement) *movementRow {
	return &movementRow{
		ID:          m.ID,
		GameName:    m.GameName,
		GameKey:     entities.MatchKey(m.GameName),
		Company:     m.Company,
		CompanyKey:  entities.MatchKey(m.Company),
		Type:        string(m.Type),
		Amount:      m.Amount,
		Status:      string(m.Status),
		EffectiveAt: entities.FormatTimestamp(m.EffectiveAt),
	}
}

func (row *movementRow) toEntity() (*entities.Movement, error) {
	at, err := entities.ParseTimestamp(row.EffectiveAt)
	if err != nil {
		return nil, err
	}
	return &entities.Movement{
		ID:          row.ID,
		GameName:    row.GameName,
		Company:     row.Company,
		Type:        entities.MovementType(row.Type),
		Amount:      row.Amount,
		Status:      entities.MovementStatus(row.Status),
		EffectiveAt: at,
	}, nil
}

// GormRepository implements Repository on Postgres or MySQL through gorm
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a gorm-backed movement ledger
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Migrate creates or updates the movements table
func (r *GormRepository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&movementRow{})
}

// Upsert inserts or replaces a movement by ID
func (r *GormRepository) Upsert(ctx context.Context, movement *entities.Movement) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(toMovementRow(movement)).Error
	if err != nil {
		return fmt.Errorf("error upserting movement: %w", err)
	}
	return nil
}

// Get retrieves a movement by ID
func (r *GormRepository) Get(ctx context.Context, id string) (*entities.Movement, error) {
	var row movementRow
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMovementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting movement: %w", err)
	}
	return row.toEntity()
}

// ListApproved returns approved movements for the platform and companies in [from, to]
func (r *GormRepository) ListApproved(ctx context.Context, platform string, companies []string, from, to time.Time) ([]*entities.Movement, error) {
	keys := companyKeys(companies)
	if len(keys) == 0 {
		return nil, nil
	}

	var rows []movementRow
	err := r.db.WithContext(ctx).
		Where("status = ? AND game_key = ?", string(entities.StatusApproved), entities.MatchKey(platform)).
		Where("effective_at >= ? AND effective_at <= ?", entities.FormatTimestamp(from), entities.FormatTimestamp(to)).
		Where("company_key IN ?", keys).
		Order("effective_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error querying movements: %w", err)
	}

	movements := make([]*entities.Movement, 0, len(rows))
	for i := range rows {
		m, err := rows[i].toEntity()
		if err != nil {
			return nil, fmt.Errorf("error decoding movement %s: %w", rows[i].ID, err)
		}
		movements = append(movements, m)
	}
	return movements, nil
}

// Close closes the underlying connection pool
func (r *GormRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
