package discord

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	discordmock "github.com/fadedpez/balancewatch/internal/discord/mock"
	"github.com/fadedpez/balancewatch/pkg/entities"
)

type SinkTestSuite struct {
	suite.Suite
	session *discordmock.SessionHandler
	sink    *Sink
}

func TestSinkSuite(t *testing.T) {
	suite.Run(t, new(SinkTestSuite))
}

func (s *SinkTestSuite) SetupTest() {
	s.session = &discordmock.SessionHandler{}
	s.session.Test(s.T())
	s.sink = NewSink(s.session, "chan", 0, nil)
}

func flaggedBatch() *entities.Batch {
	v := decimal.NewNullDecimal(decimal.NewFromInt(7))
	return &entities.Batch{
		ID: "b1",
		Flagged: []*entities.FlaggedResult{{
			ID:     "r1",
			Result: &entities.ReconciliationResult{Group: "G1", Platform: "Foo", Account: "A", Variance: v, ObservedDelta: v},
		}},
		Summary: entities.BatchSummary{GroupsAttempted: 1, GroupsSucceeded: 1, ResultsFlagged: 1},
	}
}

func (s *SinkTestSuite) TestQuietBatchSendsNothing() {
	batch := &entities.Batch{ID: "b0", Summary: entities.BatchSummary{GroupsAttempted: 1, GroupsSucceeded: 1}}

	s.NoError(s.sink.Publish(context.Background(), batch))
	s.session.AssertNotCalled(s.T(), "ChannelMessageSendEmbed", mock.Anything, mock.Anything)
}

func (s *SinkTestSuite) TestFlaggedBatchSendsEmbed() {
	s.session.On("ChannelMessageSendEmbed", "chan", mock.MatchedBy(func(e *discordgo.MessageEmbed) bool {
		return len(e.Fields) == 1 && e.Fields[0].Name == "G1 / Foo / A"
	})).Return(&discordgo.Message{ID: "m1"}, nil).Once()

	s.NoError(s.sink.Publish(context.Background(), flaggedBatch()))
	s.session.AssertExpectations(s.T())
}

func (s *SinkTestSuite) TestFailedBatchSendsEmbed() {
	batch := &entities.Batch{ID: "b2", Summary: entities.BatchSummary{GroupsAttempted: 2, GroupsFailed: 2}}
	s.session.On("ChannelMessageSendEmbed", "chan", mock.Anything).Return(&discordgo.Message{}, nil).Once()

	s.NoError(s.sink.Publish(context.Background(), batch))
	s.session.AssertExpectations(s.T())
}

func (s *SinkTestSuite) TestSendErrorIsReturned() {
	s.session.On("ChannelMessageSendEmbed", "chan", mock.Anything).Return(nil, errors.New("rate limited")).Once()

	err := s.sink.Publish(context.Background(), flaggedBatch())
	s.Require().Error(err)
	s.Contains(err.Error(), "rate limited")
}
