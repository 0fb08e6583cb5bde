package snapshot

//go:generate mockgen -destination=mock/mock.go -package=mock github.com/fadedpez/balancewatch/pkg/repositories/snapshot Repository

import (
	"context"
	"errors"
	"time"

	"github.com/fadedpez/balancewatch/pkg/entities"
)

// ErrSnapshotNotFound is returned when a snapshot id is unknown
var ErrSnapshotNotFound = errors.New("snapshot not found")

// markChunkSize bounds the number of ids per UPDATE statement
const markChunkSize = 500

// Repository defines the snapshot store used by the reconciliation engine
type Repository interface {
	// Save inserts or replaces a snapshot. An empty ID is assigned. Replacing
	// never changes the stored consumption state; only MarkConsumed does.
	Save(ctx context.Context, snapshot *entities.BalanceSnapshot) error

	// Get retrieves a snapshot by ID
	Get(ctx context.Context, id string) (*entities.BalanceSnapshot, error)

	// ListUnconsumed returns the group's unconsumed snapshots recorded at or
	// before cutoff (nil for no bound), ordered by platform, account and
	// recorded_at descending
	ListUnconsumed(ctx context.Context, group string, cutoff *time.Time) ([]*entities.BalanceSnapshot, error)

	// ListGroups returns the distinct non-empty groups that have unconsumed
	// snapshots at or before cutoff, sorted
	ListGroups(ctx context.Context, cutoff *time.Time) ([]string, error)

	// ListUnconsumedInWindow returns the account's unconsumed snapshots with
	// from <= recorded_at < to, across platforms
	ListUnconsumedInWindow(ctx context.Context, account string, from, to time.Time) ([]*entities.BalanceSnapshot, error)

	// MarkConsumed transitions the given unconsumed snapshots to consumed in
	// one unit of work and returns how many rows actually changed
	MarkConsumed(ctx context.Context, ids []string) (int64, error)

	// Close releases resources held by the repository
	Close() error
}
