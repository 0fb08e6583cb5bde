package reconciliation

import (
	"sort"

	"github.com/fadedpez/balancewatch/internal/logging"
	"github.com/fadedpez/balancewatch/internal/types"
	"github.com/fadedpez/balancewatch/pkg/entities"
)

// Pairing is the output of BuildPairs
type Pairing struct {
	Pairs   []*entities.ReconciliationPair
	Dropped int // series whose top two snapshots had an unparseable timestamp
}

// BuildPairs groups unconsumed snapshots by (normalized platform, account)
// and pairs the most recent snapshot of each series with the one before it.
// Series with a single snapshot are left for a later batch.
func BuildPairs(group string, snapshots []*entities.BalanceSnapshot, log *logging.Logger) Pairing {
	if log == nil {
		log = logging.Default
	}

	series := make(map[entities.SeriesKey][]*entities.BalanceSnapshot)
	for _, snap := range snapshots {
		if snap.IsConsumed() {
			continue
		}
		key := snap.SeriesKey()
		series[key] = append(series[key], snap)
	}

	var out Pairing
	for key, snaps := range series {
		if len(snaps) < 2 {
			continue
		}
		sort.SliceStable(snaps, func(i, j int) bool {
			if snaps[i].RecordedAt != snaps[j].RecordedAt {
				return snaps[i].RecordedAt > snaps[j].RecordedAt
			}
			return snaps[i].ID > snaps[j].ID
		})
		curr, prev := snaps[0], snaps[1]

		pair, err := newPair(group, key, prev, curr)
		if err != nil {
			out.Dropped++
			log.WithFields(map[string]interface{}{
				"code":     string(types.ErrMalformedData),
				"group":    group,
				"platform": key.Platform,
				"account":  key.Account,
			}).Warn("Dropping pair (%q, %q): %v", prev.RecordedAt, curr.RecordedAt, err)
			continue
		}
		out.Pairs = append(out.Pairs, pair)
	}

	sort.Slice(out.Pairs, func(i, j int) bool {
		if out.Pairs[i].Platform != out.Pairs[j].Platform {
			return out.Pairs[i].Platform < out.Pairs[j].Platform
		}
		return out.Pairs[i].Account < out.Pairs[j].Account
	})
	return out
}

func newPair(group string, key entities.SeriesKey, prev, curr *entities.BalanceSnapshot) (*entities.ReconciliationPair, error) {
	prevAt, err := prev.Time()
	if err != nil {
		return nil, err
	}
	currAt, err := curr.Time()
	if err != nil {
		return nil, err
	}
	return &entities.ReconciliationPair{
		Group:    group,
		Platform: key.Platform,
		Account:  key.Account,
		Prev:     prev,
		Curr:     curr,
		PrevAt:   prevAt,
		CurrAt:   currAt,
	}, nil
}
