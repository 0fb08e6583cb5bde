package group

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fadedpez/balancewatch/pkg/entities"
)

type membershipRow struct {
	Grp       string `gorm:"column:grp;primaryKey;size:128"`
	Companies string `gorm:"type:text"`
	UpdatedAt time.Time
}

func (membershipRow) TableName() string {
	return "group_memberships"
}

// GormRepository implements Repository on Postgres or MySQL through gorm
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a gorm-backed group repository
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Migrate creates or updates the group_memberships table
func (r *GormRepository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&membershipRow{})
}

func (r *GormRepository) Get(ctx context.Context, group string) (*entities.GroupMembership, error) {
	var row membershipRow
	err := r.db.WithContext(ctx).Where("grp = ?", group).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting group: %w", err)
	}
	return decodeMembership(row.Grp, row.Companies)
}

func (r *GormRepository) Save(ctx context.Context, membership *entities.GroupMembership) error {
	row, err := toMembershipRow(membership)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error; err != nil {
		return fmt.Errorf("error saving group: %w", err)
	}
	return nil
}

func (r *GormRepository) List(ctx context.Context) ([]*entities.GroupMembership, error) {
	var rows []membershipRow
	if err := r.db.WithContext(ctx).Order("grp").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("error listing groups: %w", err)
	}

	out := make([]*entities.GroupMembership, 0, len(rows))
	for _, row := range rows {
		g, err := decodeMembership(row.Grp, row.Companies)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (r *GormRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toMembershipRow(membership *entities.GroupMembership) (*membershipRow, error) {
	companies := membership.Companies
	if companies == nil {
		companies = []string{}
	}
	raw, err := json.Marshal(companies)
	if err != nil {
		return nil, fmt.Errorf("error encoding companies: %w", err)
	}
	return &membershipRow{Grp: membership.Group, Companies: string(raw)}, nil
}
