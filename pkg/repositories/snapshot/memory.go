package snapshot

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fadedpez/balancewatch/pkg/entities"
)

// MemoryRepository implements Repository in memory
type MemoryRepository struct {
	snapshots map[string]*entities.BalanceSnapshot
	mutex     sync.RWMutex
	now       func() time.Time
}

// NewMemoryRepository creates a new in-memory snapshot repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		snapshots: make(map[string]*entities.BalanceSnapshot),
		now:       time.Now,
	}
}

// Save inserts or replaces a snapshot, keeping the stored consumption state
func (r *MemoryRepository) Save(ctx context.Context, snapshot *entities.BalanceSnapshot) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if snapshot.ID == "" {
		snapshot.ID = uuid.New().String()
	}
	stored := snapshot.Clone()
	stored.RecordedAt = entities.CanonicalTimestamp(stored.RecordedAt)
	if existing, ok := r.snapshots[stored.ID]; ok {
		stored.State = existing.State
		stored.ConsumedAt = existing.ConsumedAt
	}
	r.snapshots[stored.ID] = stored
	return nil
}

// Get retrieves a snapshot by ID
func (r *MemoryRepository) Get(ctx context.Context, id string) (*entities.BalanceSnapshot, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	snap, ok := r.snapshots[id]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return snap.Clone(), nil
}

// ListUnconsumed returns unconsumed snapshots of a group
func (r *MemoryRepository) ListUnconsumed(ctx context.Context, group string, cutoff *time.Time) ([]*entities.BalanceSnapshot, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var bound string
	if cutoff != nil {
		bound = entities.FormatTimestamp(*cutoff)
	}

	var out []*entities.BalanceSnapshot
	for _, snap := range r.snapshots {
		if snap.IsConsumed() || snap.Group != group {
			continue
		}
		if cutoff != nil && snap.RecordedAt > bound {
			continue
		}
		out = append(out, snap.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Platform != b.Platform {
			return a.Platform < b.Platform
		}
		if a.Account != b.Account {
			return a.Account < b.Account
		}
		if a.RecordedAt != b.RecordedAt {
			return a.RecordedAt > b.RecordedAt
		}
		return a.ID < b.ID
	})
	return out, nil
}

// ListGroups returns distinct groups with unconsumed snapshots
func (r *MemoryRepository) ListGroups(ctx context.Context, cutoff *time.Time) ([]string, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var bound string
	if cutoff != nil {
		bound = entities.FormatTimestamp(*cutoff)
	}

	seen := make(map[string]struct{})
	for _, snap := range r.snapshots {
		if snap.IsConsumed() || snap.Group == "" {
			continue
		}
		if cutoff != nil && snap.RecordedAt > bound {
			continue
		}
		seen[snap.Group] = struct{}{}
	}

	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups, nil
}

// ListUnconsumedInWindow returns the account's unconsumed snapshots in [from, to)
func (r *MemoryRepository) ListUnconsumedInWindow(ctx context.Context, account string, from, to time.Time) ([]*entities.BalanceSnapshot, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	lo, hi := entities.FormatTimestamp(from), entities.FormatTimestamp(to)

	var out []*entities.BalanceSnapshot
	for _, snap := range r.snapshots {
		if snap.IsConsumed() || snap.Account != account {
			continue
		}
		if snap.RecordedAt >= lo && snap.RecordedAt < hi {
			out = append(out, snap.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt < out[j].RecordedAt })
	return out, nil
}

// MarkConsumed transitions unconsumed snapshots under one lock
func (r *MemoryRepository) MarkConsumed(ctx context.Context, ids []string) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	at := r.now().UTC()
	var updated int64
	for _, id := range ids {
		snap, ok := r.snapshots[id]
		if !ok {
			continue
		}
		if err := snap.Consume(at); err == nil {
			updated++
		}
	}
	return updated, nil
}

// Close is a no-op for the memory repository
func (r *MemoryRepository) Close() error {
	return nil
}
