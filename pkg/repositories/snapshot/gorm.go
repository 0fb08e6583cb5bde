package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fadedpez/balancewatch/pkg/entities"
)

// snapshotRow is the gorm model for balance_snapshots
type snapshotRow struct {
	ID         string              `gorm:"primaryKey;size:64"`
	Platform   string              `gorm:"size:128;index:idx_snapshots_group_pending,priority:3"`
	Account    string              `gorm:"size:128;index:idx_snapshots_group_pending,priority:4;index:idx_snapshots_account_window,priority:1"`
	Grp        string              `gorm:"column:grp;size:128;index:idx_snapshots_group_pending,priority:1"`
	RecordedAt string              `gorm:"size:32;index:idx_snapshots_group_pending,priority:5;index:idx_snapshots_account_window,priority:3"`
	Balance    decimal.NullDecimal `gorm:"type:decimal(20,8)"`
	Consumed   bool                `gorm:"default:false;index:idx_snapshots_group_pending,priority:2;index:idx_snapshots_account_window,priority:2"`
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// savedColumns are overwritten when Save hits an existing id
var savedColumns = []string{"platform", "account", "grp", "recorded_at", "balance"}

func (snapshotRow) TableName() string {
	return "balance_snapshots"
}

func toSnapshotRow(s *entities.BalanceSnapshot) *snapshotRow {
	return &snapshotRow{
		ID:         s.ID,
		Platform:   s.Platform,
		Account:    s.Account,
		Grp:        s.Group,
		RecordedAt: entities.CanonicalTimestamp(s.RecordedAt),
		Balance:    s.Balance,
		Consumed:   s.IsConsumed(),
		ConsumedAt: s.ConsumedAt,
	}
}

func (row *snapshotRow) toEntity() *entities.BalanceSnapshot {
	snap := &entities.BalanceSnapshot{
		ID:         row.ID,
		Platform:   row.Platform,
		Account:    row.Account,
		Group:      row.Grp,
		RecordedAt: row.RecordedAt,
		Balance:    row.Balance,
		ConsumedAt: row.ConsumedAt,
	}
	if row.Consumed {
		snap.State = entities.StateConsumed
	}
	return snap
}

// GormRepository implements Repository on Postgres or MySQL through gorm
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a gorm-backed snapshot repository
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Migrate creates or updates the balance_snapshots table
func (r *GormRepository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&snapshotRow{})
}

// Save inserts a snapshot or replaces its observed fields, keeping the
// stored consumption state
func (r *GormRepository) Save(ctx context.Context, snapshot *entities.BalanceSnapshot) error {
	if snapshot.ID == "" {
		snapshot.ID = uuid.New().String()
	}
	row := toSnapshotRow(snapshot)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(savedColumns),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("error saving snapshot: %w", err)
	}
	return nil
}

// Get retrieves a snapshot by ID
func (r *GormRepository) Get(ctx context.Context, id string) (*entities.BalanceSnapshot, error) {
	var row snapshotRow
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting snapshot: %w", err)
	}
	return row.toEntity(), nil
}

// ListUnconsumed returns unconsumed snapshots of a group
func (r *GormRepository) ListUnconsumed(ctx context.Context, group string, cutoff *time.Time) ([]*entities.BalanceSnapshot, error) {
	q := r.db.WithContext(ctx).Where("consumed = ? AND grp = ?", false, group)
	if cutoff != nil {
		q = q.Where("recorded_at <= ?", entities.FormatTimestamp(*cutoff))
	}

	var rows []snapshotRow
	if err := q.Order("platform, account, recorded_at DESC, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("error querying snapshots: %w", err)
	}
	return toEntities(rows), nil
}

// ListGroups returns distinct groups with unconsumed snapshots
func (r *GormRepository) ListGroups(ctx context.Context, cutoff *time.Time) ([]string, error) {
	q := r.db.WithContext(ctx).Model(&snapshotRow{}).Where("consumed = ? AND grp <> ''", false)
	if cutoff != nil {
		q = q.Where("recorded_at <= ?", entities.FormatTimestamp(*cutoff))
	}

	var groups []string
	if err := q.Distinct("grp").Order("grp").Pluck("grp", &groups).Error; err != nil {
		return nil, fmt.Errorf("error listing groups: %w", err)
	}
	return groups, nil
}

// ListUnconsumedInWindow returns the account's unconsumed snapshots in [from, to)
func (r *GormRepository) ListUnconsumedInWindow(ctx context.Context, account string, from, to time.Time) ([]*entities.BalanceSnapshot, error) {
	var rows []snapshotRow
	err := r.db.WithContext(ctx).
		Where("consumed = ? AND account = ? AND recorded_at >= ? AND recorded_at < ?",
			false, account, entities.FormatTimestamp(from), entities.FormatTimestamp(to)).
		Order("recorded_at").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error querying snapshots: %w", err)
	}
	return toEntities(rows), nil
}

// MarkConsumed flips consumed inside one transaction, chunking the id list
func (r *GormRepository) MarkConsumed(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	var updated int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(ids); start += markChunkSize {
			end := start + markChunkSize
			if end > len(ids) {
				end = len(ids)
			}
			result := tx.Model(&snapshotRow{}).
				Where("consumed = ? AND id IN ?", false, ids[start:end]).
				Updates(map[string]interface{}{"consumed": true, "consumed_at": now})
			if result.Error != nil {
				return result.Error
			}
			updated += result.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("error marking snapshots consumed: %w", err)
	}
	return updated, nil
}

// Close closes the underlying connection pool
func (r *GormRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toEntities(rows []snapshotRow) []*entities.BalanceSnapshot {
	out := make([]*entities.BalanceSnapshot, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toEntity())
	}
	return out
}
