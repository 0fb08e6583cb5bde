package group

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fadedpez/balancewatch/pkg/entities"
)

// SQLiteRepository implements Repository on a migrated SQLite database.
// Companies are stored as a JSON array per group.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository wraps an open database, see db.OpenSQLite
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, group string) (*entities.GroupMembership, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, "SELECT companies FROM group_memberships WHERE grp = ?", group).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting group: %w", err)
	}
	return decodeMembership(group, raw)
}

func (r *SQLiteRepository) Save(ctx context.Context, membership *entities.GroupMembership) error {
	companies := membership.Companies
	if companies == nil {
		companies = []string{}
	}
	raw, err := json.Marshal(companies)
	if err != nil {
		return fmt.Errorf("error encoding companies: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO group_memberships (grp, companies, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(grp) DO UPDATE SET companies = excluded.companies, updated_at = CURRENT_TIMESTAMP`,
		membership.Group, string(raw),
	)
	if err != nil {
		return fmt.Errorf("error saving group: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*entities.GroupMembership, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT grp, companies FROM group_memberships ORDER BY grp")
	if err != nil {
		return nil, fmt.Errorf("error listing groups: %w", err)
	}
	defer rows.Close()

	var out []*entities.GroupMembership
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, fmt.Errorf("error scanning group: %w", err)
		}
		g, err := decodeMembership(name, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func decodeMembership(group, raw string) (*entities.GroupMembership, error) {
	g := &entities.GroupMembership{Group: group}
	if err := json.Unmarshal([]byte(raw), &g.Companies); err != nil {
		return nil, fmt.Errorf("error decoding companies for group %s: %w", group, err)
	}
	return g, nil
}
