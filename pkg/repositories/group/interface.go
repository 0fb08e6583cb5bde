package group

import (
	"context"
	"errors"

	"github.com/fadedpez/balancewatch/pkg/entities"
)

// ErrGroupNotFound is returned when no membership is registered for a group
var ErrGroupNotFound = errors.New("group not found")

// Repository stores group -> companies membership
type Repository interface {
	// Get returns the membership of a group
	Get(ctx context.Context, group string) (*entities.GroupMembership, error)

	// Save creates or replaces a group's membership
	Save(ctx context.Context, membership *entities.GroupMembership) error

	// List returns every membership sorted by group
	List(ctx context.Context) ([]*entities.GroupMembership, error)

	// Close releases resources held by the repository
	Close() error
}
