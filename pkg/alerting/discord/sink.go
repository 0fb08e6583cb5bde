package discord

import (
	"context"
	"fmt"

	"github.com/fadedpez/balancewatch/internal/discord"
	"github.com/fadedpez/balancewatch/internal/logging"
	"github.com/fadedpez/balancewatch/pkg/entities"
)

const defaultTop = 10

// Sink posts a batch summary to a Discord channel when a batch flagged
// something or failed. Quiet batches post nothing.
type Sink struct {
	session   discord.SessionHandler
	channelID string
	top       int
	log       *logging.Logger
}

// NewSink creates a Discord alert sink. top bounds the listed variances.
func NewSink(session discord.SessionHandler, channelID string, top int, log *logging.Logger) *Sink {
	if top <= 0 {
		top = defaultTop
	}
	if log == nil {
		log = logging.Default
	}
	return &Sink{session: session, channelID: channelID, top: top, log: log}
}

// Name implements reconciliation.Sink
func (s *Sink) Name() string {
	return "discord"
}

// Publish implements reconciliation.Sink
func (s *Sink) Publish(ctx context.Context, batch *entities.Batch) error {
	if len(batch.Flagged) == 0 && !batch.Failed() {
		s.log.Debug("Nothing to alert for batch %s", batch.ID)
		return nil
	}

	if _, err := s.session.ChannelMessageSendEmbed(s.channelID, discord.BatchEmbed(batch, s.top)); err != nil {
		return fmt.Errorf("error sending alert to channel %s: %w", s.channelID, err)
	}
	return nil
}
