package reconciliation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/fadedpez/balancewatch/pkg/entities"
)

type PipelineTestSuite struct {
	suite.Suite
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineTestSuite))
}

func snap(id, platform, account, at string, balance ...float64) *entities.BalanceSnapshot {
	s := &entities.BalanceSnapshot{
		ID:         id,
		Platform:   platform,
		Account:    account,
		Group:      "G1",
		RecordedAt: at,
	}
	if len(balance) > 0 {
		s.Balance = decimal.NewNullDecimal(decimal.NewFromFloat(balance[0]))
	}
	return s
}

func move(id, game, company string, typ entities.MovementType, amount float64, at string) *entities.Movement {
	t, err := entities.ParseTimestamp(at)
	if err != nil {
		panic(err)
	}
	return &entities.Movement{
		ID:          id,
		GameName:    game,
		Company:     company,
		Type:        typ,
		Amount:      decimal.NewFromFloat(amount),
		Status:      entities.StatusApproved,
		EffectiveAt: t,
	}
}

func (s *PipelineTestSuite) pair(prev, curr *entities.BalanceSnapshot) *entities.ReconciliationPair {
	pairing := BuildPairs("G1", []*entities.BalanceSnapshot{prev, curr}, nil)
	s.Require().Len(pairing.Pairs, 1)
	return pairing.Pairs[0]
}

func (s *PipelineTestSuite) TestBuildPairsTakesTwoMostRecent() {
	pairing := BuildPairs("G1", []*entities.BalanceSnapshot{
		snap("1", "Foo", "A", "2024-01-01 10:00:00", 100),
		snap("3", "Foo", "A", "2024-01-01 12:00:00", 70),
		snap("2", "Foo", "A", "2024-01-01 11:00:00", 80),
	}, nil)

	s.Require().Len(pairing.Pairs, 1)
	p := pairing.Pairs[0]
	s.Equal("2", p.Prev.ID)
	s.Equal("3", p.Curr.ID)
	s.True(p.PrevAt.Before(p.CurrAt))
}

func (s *PipelineTestSuite) TestBuildPairsNormalizesPlatform() {
	pairing := BuildPairs("G1", []*entities.BalanceSnapshot{
		snap("1", "  orion   stars ", "A", "2024-01-01 10:00:00", 1),
		snap("2", "ORION STARS", "A", "2024-01-01 11:00:00", 2),
	}, nil)

	s.Require().Len(pairing.Pairs, 1)
	s.Equal("Orion Stars", pairing.Pairs[0].Platform)
}

func (s *PipelineTestSuite) TestBuildPairsSkipsSingletonsAndConsumed() {
	consumed := snap("3", "Foo", "B", "2024-01-01 09:00:00", 5)
	s.Require().NoError(consumed.Consume(time.Now()))

	pairing := BuildPairs("G1", []*entities.BalanceSnapshot{
		snap("1", "Foo", "A", "2024-01-01 10:00:00", 100),
		snap("2", "Foo", "B", "2024-01-01 10:00:00", 100),
		consumed,
	}, nil)

	s.Empty(pairing.Pairs)
	s.Zero(pairing.Dropped)
}

func (s *PipelineTestSuite) TestBuildPairsDropsMalformedTimestamp() {
	pairing := BuildPairs("G1", []*entities.BalanceSnapshot{
		snap("1", "Foo", "A", "yesterday", 100),
		snap("2", "Foo", "A", "2024-01-01 11:00:00", 80),
		snap("3", "Bar", "A", "2024-01-01 10:00:00", 1),
		snap("4", "Bar", "A", "2024-01-01 11:00:00", 2),
	}, nil)

	s.Equal(1, pairing.Dropped)
	s.Require().Len(pairing.Pairs, 1)
	s.Equal("Bar", pairing.Pairs[0].Platform)
}

func (s *PipelineTestSuite) TestBuildPairsSortedByPlatformAndAccount() {
	pairing := BuildPairs("G1", []*entities.BalanceSnapshot{
		snap("1", "Zed", "A", "2024-01-01 10:00:00", 1),
		snap("2", "Zed", "A", "2024-01-01 11:00:00", 1),
		snap("3", "Alpha", "B", "2024-01-01 10:00:00", 1),
		snap("4", "Alpha", "B", "2024-01-01 11:00:00", 1),
		snap("5", "Alpha", "A", "2024-01-01 10:00:00", 1),
		snap("6", "Alpha", "A", "2024-01-01 11:00:00", 1),
	}, nil)

	s.Require().Len(pairing.Pairs, 3)
	s.Equal([]string{"Alpha/A", "Alpha/B", "Zed/A"}, []string{
		pairing.Pairs[0].Platform + "/" + pairing.Pairs[0].Account,
		pairing.Pairs[1].Platform + "/" + pairing.Pairs[1].Account,
		pairing.Pairs[2].Platform + "/" + pairing.Pairs[2].Account,
	})
}

func (s *PipelineTestSuite) TestAggregateBuckets() {
	p := s.pair(snap("1", "Foo", "A", "2024-01-01 10:00:00", 100), snap("2", "Foo", "A", "2024-01-01 11:00:00", 80))

	sums := Aggregate(p, []string{"CompX"}, []*entities.Movement{
		move("m1", "Foo", "CompX", entities.MovementAddCredits, 20, "2024-01-01 10:30:00"),
		move("m2", "Foo", "CompX", entities.MovementWithdrawCredits, 5, "2024-01-01 10:31:00"),
		move("m3", "Foo", "CompX", entities.MovementRemoveCredits, 2.5, "2024-01-01 10:32:00"),
		move("m4", "Foo", "CompX", "Bonus", 99, "2024-01-01 10:33:00"),
	})

	s.True(sums.Credit.Equal(decimal.NewFromInt(20)))
	s.True(sums.Debit.Equal(decimal.NewFromFloat(7.5)))
	s.Equal(4, sums.Matched)
}

func (s *PipelineTestSuite) TestAggregateFilters() {
	p := s.pair(snap("1", "Foo", "A", "2024-01-01 10:00:00", 100), snap("2", "Foo", "A", "2024-01-01 11:00:00", 80))

	pending := move("m1", "Foo", "CompX", entities.MovementAddCredits, 1, "2024-01-01 10:30:00")
	pending.Status = entities.StatusPending

	sums := Aggregate(p, []string{"CompX"}, []*entities.Movement{
		pending,
		move("m2", "Bar", "CompX", entities.MovementAddCredits, 1, "2024-01-01 10:30:00"),
		move("m3", "Foo", "CompY", entities.MovementAddCredits, 1, "2024-01-01 10:30:00"),
		move("m4", "Foo", "CompX", entities.MovementAddCredits, 1, "2024-01-01 09:59:59"),
		move("m5", "Foo", "CompX", entities.MovementAddCredits, 1, "2024-01-01 11:00:01"),
	})

	s.Zero(sums.Matched)
	s.True(sums.Credit.IsZero())
}

func (s *PipelineTestSuite) TestAggregateClosedWindowAndCaseInsensitive() {
	p := s.pair(snap("1", "Foo", "A", "2024-01-01 10:00:00", 100), snap("2", "Foo", "A", "2024-01-01 11:00:00", 80))

	sums := Aggregate(p, []string{" compx "}, []*entities.Movement{
		move("m1", "FOO", "COMPX", entities.MovementAddCredits, 3, "2024-01-01 10:00:00"),
		move("m2", "foo ", "CompX", entities.MovementAddCredits, 4, "2024-01-01 11:00:00"),
	})

	s.Equal(2, sums.Matched)
	s.True(sums.Credit.Equal(decimal.NewFromInt(7)))
}

func (s *PipelineTestSuite) TestAggregateNoCompanies() {
	p := s.pair(snap("1", "Foo", "A", "2024-01-01 10:00:00", 100), snap("2", "Foo", "A", "2024-01-01 11:00:00", 80))

	sums := Aggregate(p, nil, []*entities.Movement{
		move("m1", "Foo", "CompX", entities.MovementAddCredits, 3, "2024-01-01 10:30:00"),
	})
	s.Zero(sums.Matched)
}

func (s *PipelineTestSuite) TestVarianceBalanced() {
	p := s.pair(snap("1", "Foo", "A", "2024-01-01 10:00:00", 100), snap("2", "Foo", "A", "2024-01-01 11:00:00", 80))

	result := ComputeVariance(p, Sums{Credit: decimal.NewFromInt(20), Debit: decimal.Zero, Matched: 1})

	s.True(result.ExpectedDelta.Equal(decimal.NewFromInt(-20)))
	s.Require().True(result.ObservedDelta.Valid)
	s.True(result.ObservedDelta.Decimal.Equal(decimal.NewFromInt(-20)))
	s.Require().True(result.Variance.Valid)
	s.True(result.Variance.Decimal.IsZero())
	s.False(result.Flagged(entities.DefaultEpsilon))
}

func (s *PipelineTestSuite) TestVarianceWithoutMovements() {
	p := s.pair(snap("1", "Foo", "A", "2024-01-01 10:00:00", 100), snap("2", "Foo", "A", "2024-01-01 11:00:00", 80))

	result := ComputeVariance(p, Sums{Credit: decimal.Zero, Debit: decimal.Zero})

	s.True(result.ExpectedDelta.IsZero())
	s.True(result.Variance.Decimal.Equal(decimal.NewFromInt(-20)))
	s.True(result.Flagged(entities.DefaultEpsilon))
}

func (s *PipelineTestSuite) TestVarianceNullBalance() {
	p := s.pair(snap("1", "Foo", "A", "2024-01-01 10:00:00"), snap("2", "Foo", "A", "2024-01-01 11:00:00", 80))

	result := ComputeVariance(p, Sums{Credit: decimal.NewFromInt(5), Debit: decimal.Zero, Matched: 1})

	s.True(result.ExpectedDelta.Equal(decimal.NewFromInt(-5)))
	s.False(result.ObservedDelta.Valid)
	s.False(result.Variance.Valid)
	s.False(result.Flagged(entities.DefaultEpsilon))
}

func (s *PipelineTestSuite) TestEmitFiltersAndOrders() {
	variance := func(v float64) decimal.NullDecimal { return decimal.NewNullDecimal(decimal.NewFromFloat(v)) }
	results := []*entities.ReconciliationResult{
		{Group: "G2", Platform: "Foo", Account: "A", Variance: variance(3)},
		{Group: "G1", Platform: "Foo", Account: "B", Variance: variance(-1)},
		{Group: "G1", Platform: "Bar", Account: "A", Variance: variance(0)},
		{Group: "G1", Platform: "Bar", Account: "Z"},
		{Group: "G1", Platform: "Bar", Account: "C", Variance: variance(0.5)},
	}

	emission := Emit(results, entities.DefaultEpsilon)

	s.Require().Len(emission.Flagged, 3)
	s.Equal("C", emission.Flagged[0].Result.Account)
	s.Equal("B", emission.Flagged[1].Result.Account)
	s.Equal("G2", emission.Flagged[2].Result.Group)
	s.Equal(map[string]int{"G1": 2, "G2": 1}, emission.PerGroup)

	ids := map[string]struct{}{}
	for _, f := range emission.Flagged {
		s.Len(f.ID, 32)
		ids[f.ID] = struct{}{}
	}
	s.Len(ids, 3)
}

func (s *PipelineTestSuite) TestEmitRespectsEpsilon() {
	results := []*entities.ReconciliationResult{
		{Group: "G1", Variance: decimal.NewNullDecimal(decimal.RequireFromString("0.004"))},
	}
	s.Empty(Emit(results, decimal.RequireFromString("0.01")).Flagged)
	s.Len(Emit(results, entities.DefaultEpsilon).Flagged, 1)
}
