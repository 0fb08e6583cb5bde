package discord

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/fadedpez/balancewatch/internal/types"
	"github.com/fadedpez/balancewatch/pkg/entities"
)

// Embed colors
const (
	ColorOK      = 0x2ecc71
	ColorFlagged = 0xf1c40f
	ColorFailed  = 0xe74c3c
)

// maxEmbedFields is Discord's limit on fields per embed
const maxEmbedFields = 25

// ResponseEmoji maps error codes to the emoji shown next to them
var ResponseEmoji = map[types.ErrorCode]string{
	types.ErrStoreUnavailable: "💾",
	types.ErrMalformedData:    "🧩",
	types.ErrPartialMark:      "⚠️",
	types.ErrGroupNotFound:    "🔍",
	types.ErrLockNotObtained:  "🔒",
	types.ErrBatchFailed:      "💥",
	types.ErrSinkFailed:       "📭",
	types.ErrInvalidArgument:  "❗",
	types.ErrInternalError:    "💥",
}

// FormatError renders an error for a channel message
func FormatError(err error) string {
	var reconErr *types.ReconError
	if types.As(err, &reconErr) {
		emoji := ResponseEmoji[reconErr.Code]
		if emoji == "" {
			emoji = "❌"
		}
		return fmt.Sprintf("%s %s", emoji, reconErr.Message)
	}
	return fmt.Sprintf("❌ An error occurred: %v", err)
}

// BatchEmbed summarizes a batch and lists up to top flagged variances,
// largest magnitude first
func BatchEmbed(batch *entities.Batch, top int) *discordgo.MessageEmbed {
	sum := batch.Summary
	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("Reconciliation %s", batch.ID),
		Description: fmt.Sprintf("Groups %d/%d ok, %d failed, %d skipped\nPairs %d, marked %d, flagged %d",
			sum.GroupsSucceeded, sum.GroupsAttempted, sum.GroupsFailed, sum.GroupsSkipped,
			sum.PairsProcessed, sum.SnapshotsMarked, sum.ResultsFlagged),
		Color:     ColorOK,
		Timestamp: batch.FinishedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Footer:    &discordgo.MessageEmbedFooter{Text: "triggered by " + batch.TriggeredBy},
	}

	switch {
	case batch.Failed():
		embed.Color = ColorFailed
		embed.Title = ResponseEmoji[types.ErrBatchFailed] + " " + embed.Title
	case sum.ResultsFlagged > 0:
		embed.Color = ColorFlagged
	}

	if top > maxEmbedFields {
		top = maxEmbedFields
	}
	for _, f := range TopFlagged(batch.Flagged, top) {
		r := f.Result
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("%s / %s / %s", r.Group, r.Platform, r.Account),
			Value: fmt.Sprintf("variance **%s** (expected %s, observed %s)", r.Variance.Decimal.StringFixed(2), r.ExpectedDelta.StringFixed(2), r.ObservedDelta.Decimal.StringFixed(2)),
		})
	}

	var failed []string
	for _, g := range batch.Groups {
		if g.Status == entities.GroupFailed {
			failed = append(failed, fmt.Sprintf("%s: %s", g.Group, g.Error))
		}
	}
	if len(failed) > 0 && len(embed.Fields) < maxEmbedFields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Failed groups",
			Value: truncate(strings.Join(failed, "\n"), 1024),
		})
	}
	return embed
}

// TopFlagged returns at most n flagged results ordered by |variance| descending
func TopFlagged(flagged []*entities.FlaggedResult, n int) []*entities.FlaggedResult {
	out := make([]*entities.FlaggedResult, len(flagged))
	copy(out, flagged)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Result.Variance.Decimal.Abs().GreaterThan(out[j].Result.Variance.Decimal.Abs())
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
