package reconciliation

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fadedpez/balancewatch/pkg/entities"
)

// Emission is the reportable part of a batch
type Emission struct {
	Flagged  []*entities.FlaggedResult
	PerGroup map[string]int
}

// Emit keeps results with a defined variance of at least epsilon, gives each
// a fresh id and orders them by group, platform and account.
func Emit(results []*entities.ReconciliationResult, epsilon decimal.Decimal) *Emission {
	emission := &Emission{PerGroup: make(map[string]int)}

	for _, r := range results {
		if !r.Flagged(epsilon) {
			continue
		}
		emission.Flagged = append(emission.Flagged, &entities.FlaggedResult{
			ID:     strings.ReplaceAll(uuid.New().String(), "-", ""),
			Result: r,
		})
		emission.PerGroup[r.Group]++
	}

	sort.SliceStable(emission.Flagged, func(i, j int) bool {
		a, b := emission.Flagged[i].Result, emission.Flagged[j].Result
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		if a.Platform != b.Platform {
			return a.Platform < b.Platform
		}
		return a.Account < b.Account
	})
	return emission
}
