package reconciliation

import (
	"github.com/shopspring/decimal"

	"github.com/fadedpez/balancewatch/pkg/entities"
)

// ComputeVariance derives expected, observed and variance for a pair.
//
//	expected = debit - credit, or 0 when no movement matched
//	observed = curr - prev, undefined if either balance is missing
//	variance = observed - expected, undefined with observed
func ComputeVariance(pair *entities.ReconciliationPair, sums Sums) *entities.ReconciliationResult {
	result := &entities.ReconciliationResult{
		Group:            pair.Group,
		Platform:         pair.Platform,
		Account:          pair.Account,
		PrevRecordedAt:   pair.Prev.RecordedAt,
		CurrRecordedAt:   pair.Curr.RecordedAt,
		PrevBalance:      pair.Prev.Balance,
		CurrBalance:      pair.Curr.Balance,
		SumCredit:        sums.Credit,
		SumDebit:         sums.Debit,
		MatchedMovements: sums.Matched,
		ExpectedDelta:    decimal.Zero,
	}

	if sums.Matched > 0 {
		result.ExpectedDelta = sums.Debit.Sub(sums.Credit)
	}

	if pair.Prev.Balance.Valid && pair.Curr.Balance.Valid {
		observed := pair.Curr.Balance.Decimal.Sub(pair.Prev.Balance.Decimal)
		result.ObservedDelta = decimal.NewNullDecimal(observed)
		result.Variance = decimal.NewNullDecimal(observed.Sub(result.ExpectedDelta))
	}

	return result
}
