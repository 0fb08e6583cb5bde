package movement

import (
	"context"
	"errors"
	"time"

	"github.com/fadedpez/balancewatch/pkg/entities"
)

// ErrMovementNotFound is returned when a movement id is unknown
var ErrMovementNotFound = errors.New("movement not found")

// Repository defines the movement ledger. The engine only reads it.
type Repository interface {
	// Upsert inserts a movement or overwrites the stored one with the same ID
	Upsert(ctx context.Context, movement *entities.Movement) error

	// Get retrieves a movement by ID
	Get(ctx context.Context, id string) (*entities.Movement, error)

	// ListApproved returns approved movements for the platform whose company
	// is one of companies and whose effective time lies in [from, to].
	// Platform and company names are compared by entities.MatchKey.
	ListApproved(ctx context.Context, platform string, companies []string, from, to time.Time) ([]*entities.Movement, error)

	// Close releases resources held by the repository
	Close() error
}

func companyKeys(companies []string) []string {
	set := entities.CompanySet(companies)
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	return keys
}
