package movement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fadedpez/balancewatch/pkg/entities"
)

const movementColumns = "id, game_name, company, type, amount, status, effective_at"

// SQLiteRepository implements Repository on a migrated SQLite database
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository wraps an open database, see db.OpenSQLite
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Upsert inserts or replaces a movement by ID
func (r *SQLiteRepository) Upsert(ctx context.Context, movement *entities.Movement) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO movements (id, game_name, game_key, company, company_key, type, amount, status, effective_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			game_name = excluded.game_name,
			game_key = excluded.game_key,
			company = excluded.company,
			company_key = excluded.company_key,
			type = excluded.type,
			amount = excluded.amount,
			status = excluded.status,
			effective_at = excluded.effective_at,
			updated_at = CURRENT_TIMESTAMP`,
		movement.ID,
		movement.GameName,
		entities.MatchKey(movement.GameName),
		movement.Company,
		entities.MatchKey(movement.Company),
		string(movement.Type),
		movement.Amount.String(),
		string(movement.Status),
		entities.FormatTimestamp(movement.EffectiveAt),
	)
	if err != nil {
		return fmt.Errorf("error upserting movement: %w", err)
	}
	return nil
}

// Get retrieves a movement by ID
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*entities.Movement, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+movementColumns+" FROM movements WHERE id = ?", id)
	m, err := scanMovement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMovementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting movement: %w", err)
	}
	return m, nil
}

// ListApproved returns approved movements for the platform and companies in [from, to]
func (r *SQLiteRepository) ListApproved(ctx context.Context, platform string, companies []string, from, to time.Time) ([]*entities.Movement, error) {
	keys := companyKeys(companies)
	if len(keys) == 0 {
		return nil, nil
	}

	args := []interface{}{
		string(entities.StatusApproved),
		entities.MatchKey(platform),
		entities.FormatTimestamp(from),
		entities.FormatTimestamp(to),
	}
	for _, k := range keys {
		args = append(args, k)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+movementColumns+` FROM movements
		WHERE status = ? AND game_key = ? AND effective_at >= ? AND effective_at <= ?
		AND company_key IN (`+placeholders+`)
		ORDER BY effective_at, id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("error querying movements: %w", err)
	}
	defer rows.Close()

	var movements []*entities.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning movement: %w", err)
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMovement(row rowScanner) (*entities.Movement, error) {
	var m entities.Movement
	var movementType, status, effectiveAt string

	if err := row.Scan(&m.ID, &m.GameName, &m.Company, &movementType, &m.Amount, &status, &effectiveAt); err != nil {
		return nil, err
	}
	m.Type = entities.MovementType(movementType)
	m.Status = entities.MovementStatus(status)

	at, err := entities.ParseTimestamp(effectiveAt)
	if err != nil {
		return nil, err
	}
	m.EffectiveAt = at
	return &m, nil
}
