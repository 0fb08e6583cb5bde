package groups

import (
	"context"
	"errors"
	"sync"

	"github.com/fadedpez/balancewatch/internal/types"
	"github.com/fadedpez/balancewatch/pkg/repositories/group"
)

// Registry is a read-through cache over the group repository. Entries live
// until Invalidate, which the batch runner calls before every batch.
type Registry struct {
	repo  group.Repository
	mutex sync.RWMutex
	cache map[string][]string
}

// NewRegistry creates a registry over repo
func NewRegistry(repo group.Repository) *Registry {
	return &Registry{
		repo:  repo,
		cache: make(map[string][]string),
	}
}

// Companies returns the companies of a group. An unregistered group yields an
// empty list and an ErrGroupNotFound ReconError so callers can warn and carry on.
func (r *Registry) Companies(ctx context.Context, name string) ([]string, error) {
	r.mutex.RLock()
	companies, ok := r.cache[name]
	r.mutex.RUnlock()
	if ok {
		if companies == nil {
			return nil, notFound(name)
		}
		return companies, nil
	}

	membership, err := r.repo.Get(ctx, name)
	if errors.Is(err, group.ErrGroupNotFound) {
		r.store(name, nil)
		return nil, notFound(name)
	}
	if err != nil {
		return nil, types.WrapError(types.ErrStoreUnavailable, "load group membership", err)
	}

	companies = membership.Companies
	if companies == nil {
		companies = []string{}
	}
	r.store(name, companies)
	return companies, nil
}

// Invalidate drops every cached entry
func (r *Registry) Invalidate() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.cache = make(map[string][]string)
}

func (r *Registry) store(name string, companies []string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.cache[name] = companies
}

func notFound(name string) error {
	return types.WrapError(types.ErrGroupNotFound, "no membership registered for group "+name, group.ErrGroupNotFound)
}
