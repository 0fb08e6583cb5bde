package movement

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fadedpez/balancewatch/pkg/entities"
)

// MemoryRepository implements Repository in memory
type MemoryRepository struct {
	movements map[string]*entities.Movement
	mutex     sync.RWMutex
}

// NewMemoryRepository creates a new in-memory movement ledger
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		movements: make(map[string]*entities.Movement),
	}
}

// Upsert inserts or replaces a movement
func (r *MemoryRepository) Upsert(ctx context.Context, movement *entities.Movement) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.movements[movement.ID] = movement.Clone()
	return nil
}

// Get retrieves a movement by ID
func (r *MemoryRepository) Get(ctx context.Context, id string) (*entities.Movement, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	m, ok := r.movements[id]
	if !ok {
		return nil, ErrMovementNotFound
	}
	return m.Clone(), nil
}

// ListApproved returns approved movements for the platform and companies in [from, to]
func (r *MemoryRepository) ListApproved(ctx context.Context, platform string, companies []string, from, to time.Time) ([]*entities.Movement, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	members := entities.CompanySet(companies)
	if len(members) == 0 {
		return nil, nil
	}
	platformKey := entities.MatchKey(platform)

	var out []*entities.Movement
	for _, m := range r.movements {
		if m.Status != entities.StatusApproved || entities.MatchKey(m.GameName) != platformKey {
			continue
		}
		if _, ok := members[entities.MatchKey(m.Company)]; !ok {
			continue
		}
		if m.EffectiveAt.Before(from) || m.EffectiveAt.After(to) {
			continue
		}
		out = append(out, m.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].EffectiveAt.Equal(out[j].EffectiveAt) {
			return out[i].EffectiveAt.Before(out[j].EffectiveAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Close is a no-op for the memory repository
func (r *MemoryRepository) Close() error {
	return nil
}
