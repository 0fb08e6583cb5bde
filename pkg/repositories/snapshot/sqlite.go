package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fadedpez/balancewatch/pkg/entities"
)

const snapshotColumns = "id, platform, account, grp, recorded_at, balance, consumed, consumed_at"

// SQLiteRepository implements Repository on a migrated SQLite database
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository wraps an open database, see db.OpenSQLite
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save inserts a snapshot or replaces its observed fields, keeping the
// stored consumption state
func (r *SQLiteRepository) Save(ctx context.Context, snapshot *entities.BalanceSnapshot) error {
	if snapshot.ID == "" {
		snapshot.ID = uuid.New().String()
	}

	var consumedAt sql.NullString
	if snapshot.ConsumedAt != nil {
		consumedAt = sql.NullString{String: entities.FormatTimestamp(snapshot.ConsumedAt.UTC()), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO balance_snapshots (`+snapshotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			platform = excluded.platform,
			account = excluded.account,
			grp = excluded.grp,
			recorded_at = excluded.recorded_at,
			balance = excluded.balance`,
		snapshot.ID,
		snapshot.Platform,
		snapshot.Account,
		snapshot.Group,
		entities.CanonicalTimestamp(snapshot.RecordedAt),
		snapshot.Balance,
		snapshot.IsConsumed(),
		consumedAt,
	)
	if err != nil {
		return fmt.Errorf("error saving snapshot: %w", err)
	}
	return nil
}

// Get retrieves a snapshot by ID
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*entities.BalanceSnapshot, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+snapshotColumns+" FROM balance_snapshots WHERE id = ?", id)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting snapshot: %w", err)
	}
	return snap, nil
}

// ListUnconsumed returns unconsumed snapshots of a group
func (r *SQLiteRepository) ListUnconsumed(ctx context.Context, group string, cutoff *time.Time) ([]*entities.BalanceSnapshot, error) {
	query := "SELECT " + snapshotColumns + " FROM balance_snapshots WHERE consumed = 0 AND grp = ?"
	args := []interface{}{group}
	if cutoff != nil {
		query += " AND recorded_at <= ?"
		args = append(args, entities.FormatTimestamp(*cutoff))
	}
	query += " ORDER BY platform, account, recorded_at DESC, id"

	return r.query(ctx, query, args...)
}

// ListGroups returns distinct groups with unconsumed snapshots
func (r *SQLiteRepository) ListGroups(ctx context.Context, cutoff *time.Time) ([]string, error) {
	query := "SELECT DISTINCT grp FROM balance_snapshots WHERE consumed = 0 AND grp <> ''"
	var args []interface{}
	if cutoff != nil {
		query += " AND recorded_at <= ?"
		args = append(args, entities.FormatTimestamp(*cutoff))
	}
	query += " ORDER BY grp"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing groups: %w", err)
	}
	defer rows.Close()

	var groups []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("error scanning group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// ListUnconsumedInWindow returns the account's unconsumed snapshots in [from, to)
func (r *SQLiteRepository) ListUnconsumedInWindow(ctx context.Context, account string, from, to time.Time) ([]*entities.BalanceSnapshot, error) {
	return r.query(ctx,
		"SELECT "+snapshotColumns+` FROM balance_snapshots
		WHERE consumed = 0 AND account = ? AND recorded_at >= ? AND recorded_at < ?
		ORDER BY recorded_at`,
		account, entities.FormatTimestamp(from), entities.FormatTimestamp(to),
	)
}

// MarkConsumed flips consumed in a single transaction, chunking the id list.
// Rows already consumed are left untouched and not counted.
func (r *SQLiteRepository) MarkConsumed(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	consumedAt := entities.FormatTimestamp(time.Now().UTC())
	var updated int64
	for start := 0; start < len(ids); start += markChunkSize {
		end := start + markChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		args := make([]interface{}, 0, len(chunk)+1)
		args = append(args, consumedAt)
		for _, id := range chunk {
			args = append(args, id)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")

		result, err := tx.ExecContext(ctx,
			"UPDATE balance_snapshots SET consumed = 1, consumed_at = ? WHERE consumed = 0 AND id IN ("+placeholders+")",
			args...,
		)
		if err != nil {
			return 0, fmt.Errorf("error marking snapshots consumed: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("error getting rows affected: %w", err)
		}
		updated += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing mark: %w", err)
	}
	return updated, nil
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entities.BalanceSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*entities.BalanceSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning snapshot: %w", err)
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner) (*entities.BalanceSnapshot, error) {
	var snap entities.BalanceSnapshot
	var consumed bool
	var consumedAt sql.NullString

	if err := row.Scan(
		&snap.ID,
		&snap.Platform,
		&snap.Account,
		&snap.Group,
		&snap.RecordedAt,
		&snap.Balance,
		&consumed,
		&consumedAt,
	); err != nil {
		return nil, err
	}

	if consumed {
		snap.State = entities.StateConsumed
		if consumedAt.Valid {
			if at, err := entities.ParseTimestamp(consumedAt.String); err == nil {
				snap.ConsumedAt = &at
			}
		}
	}
	return &snap, nil
}
