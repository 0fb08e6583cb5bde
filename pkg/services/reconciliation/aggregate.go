package reconciliation

import (
	"github.com/shopspring/decimal"

	"github.com/fadedpez/balancewatch/pkg/entities"
)

// Sums are the movement totals attributed to one pair
type Sums struct {
	Credit  decimal.Decimal
	Debit   decimal.Decimal
	Matched int
}

// Aggregate totals the approved movements of the pair's platform, booked by
// one of the group's companies, inside the closed window [prev, curr].
// Movements of an unclassified type count as matched but add to neither side.
func Aggregate(pair *entities.ReconciliationPair, companies []string, movements []*entities.Movement) Sums {
	sums := Sums{Credit: decimal.Zero, Debit: decimal.Zero}

	members := entities.CompanySet(companies)
	if len(members) == 0 {
		return sums
	}
	platformKey := entities.MatchKey(pair.Platform)

	for _, m := range movements {
		if m.Status != entities.StatusApproved {
			continue
		}
		if entities.MatchKey(m.GameName) != platformKey {
			continue
		}
		if _, ok := members[entities.MatchKey(m.Company)]; !ok {
			continue
		}
		if m.EffectiveAt.Before(pair.PrevAt) || m.EffectiveAt.After(pair.CurrAt) {
			continue
		}

		sums.Matched++
		switch m.Type.Bucket() {
		case entities.BucketCredit:
			sums.Credit = sums.Credit.Add(m.Amount)
		case entities.BucketDebit:
			sums.Debit = sums.Debit.Add(m.Amount)
		}
	}
	return sums
}
