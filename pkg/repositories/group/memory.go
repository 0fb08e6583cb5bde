package group

import (
	"context"
	"sort"
	"sync"

	"github.com/fadedpez/balancewatch/pkg/entities"
)

// MemoryRepository implements Repository in memory
type MemoryRepository struct {
	groups map[string]*entities.GroupMembership
	mutex  sync.RWMutex
}

// NewMemoryRepository creates a new in-memory group repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{groups: make(map[string]*entities.GroupMembership)}
}

func (r *MemoryRepository) Get(ctx context.Context, group string) (*entities.GroupMembership, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	g, ok := r.groups[group]
	if !ok {
		return nil, ErrGroupNotFound
	}
	return g.Clone(), nil
}

func (r *MemoryRepository) Save(ctx context.Context, membership *entities.GroupMembership) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.groups[membership.Group] = membership.Clone()
	return nil
}

func (r *MemoryRepository) List(ctx context.Context) ([]*entities.GroupMembership, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]*entities.GroupMembership, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, g.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Group < out[j].Group })
	return out, nil
}

func (r *MemoryRepository) Close() error {
	return nil
}
