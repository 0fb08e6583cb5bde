package discord

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/fadedpez/balancewatch/internal/types"
	"github.com/fadedpez/balancewatch/pkg/entities"
)

type ResponseTestSuite struct {
	suite.Suite
}

func TestResponseSuite(t *testing.T) {
	suite.Run(t, new(ResponseTestSuite))
}

func flagged(id, account string, variance int64) *entities.FlaggedResult {
	v := decimal.NewNullDecimal(decimal.NewFromInt(variance))
	return &entities.FlaggedResult{
		ID: id,
		Result: &entities.ReconciliationResult{
			Group:         "G1",
			Platform:      "Foo",
			Account:       account,
			ExpectedDelta: decimal.Zero,
			ObservedDelta: v,
			Variance:      v,
		},
	}
}

func (s *ResponseTestSuite) TestFormatError() {
	s.Equal("🔒 group busy", FormatError(types.NewReconError(types.ErrLockNotObtained, "group busy")))
	s.Equal("❌ An error occurred: boom", FormatError(errors.New("boom")))
}

func (s *ResponseTestSuite) TestTopFlaggedOrdersByMagnitude() {
	top := TopFlagged([]*entities.FlaggedResult{
		flagged("1", "A", 5),
		flagged("2", "B", -50),
		flagged("3", "C", 20),
	}, 2)

	s.Require().Len(top, 2)
	s.Equal("2", top[0].ID)
	s.Equal("3", top[1].ID)
}

func (s *ResponseTestSuite) TestBatchEmbedFlagged() {
	batch := &entities.Batch{
		ID:          "b1",
		TriggeredBy: "scheduler",
		FinishedAt:  time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Flagged:     []*entities.FlaggedResult{flagged("1", "A", -20)},
		Summary:     entities.BatchSummary{GroupsAttempted: 1, GroupsSucceeded: 1, ResultsFlagged: 1},
	}

	embed := BatchEmbed(batch, 10)

	s.Equal(ColorFlagged, embed.Color)
	s.Equal("Reconciliation b1", embed.Title)
	s.Require().Len(embed.Fields, 1)
	s.Equal("G1 / Foo / A", embed.Fields[0].Name)
	s.Contains(embed.Fields[0].Value, "-20.00")
	s.Equal("2024-03-01T10:00:00Z", embed.Timestamp)
}

func (s *ResponseTestSuite) TestBatchEmbedFailed() {
	batch := &entities.Batch{
		ID: "b2",
		Groups: []*entities.GroupOutcome{
			{Group: "G1", Status: entities.GroupFailed, Error: "STORE_UNAVAILABLE: down"},
		},
		Summary: entities.BatchSummary{GroupsAttempted: 1, GroupsFailed: 1},
	}

	embed := BatchEmbed(batch, 10)

	s.Equal(ColorFailed, embed.Color)
	s.Contains(embed.Title, "b2")
	s.Require().Len(embed.Fields, 1)
	s.Equal("Failed groups", embed.Fields[0].Name)
	s.Contains(embed.Fields[0].Value, "G1: STORE_UNAVAILABLE")
}
