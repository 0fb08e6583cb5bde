package reconciliation

import (
	"context"

	"github.com/fadedpez/balancewatch/internal/logging"
	"github.com/fadedpez/balancewatch/internal/types"
	"github.com/fadedpez/balancewatch/pkg/entities"
	"github.com/fadedpez/balancewatch/pkg/repositories/snapshot"
)

// MarkReport is what the marker asked for and what the store changed
type MarkReport struct {
	Requested int
	Updated   int64
}

// Partial reports whether fewer rows changed than were requested
func (r MarkReport) Partial() bool {
	return int64(r.Requested) != r.Updated
}

// Marker consumes the snapshots that a group's pairs have reconciled
type Marker struct {
	snapshots snapshot.Repository
	log       *logging.Logger
}

// NewMarker creates a marker over the snapshot store
func NewMarker(snapshots snapshot.Repository, log *logging.Logger) *Marker {
	if log == nil {
		log = logging.Default
	}
	return &Marker{snapshots: snapshots, log: log}
}

// Mark consumes, for every pair, the unconsumed snapshots of the same
// platform and account in the half-open window [prev, curr). That window is
// empty when prev and curr share an instant, so prev is then added by id and
// the pair cannot come back. curr stays unconsumed and becomes the next
// pair's prev. All ids of the group go to the store in a single call.
func (m *Marker) Mark(ctx context.Context, group string, pairs []*entities.ReconciliationPair) (MarkReport, error) {
	var ids []string
	seen := make(map[string]struct{})
	add := func(id string) {
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	for _, pair := range pairs {
		window, err := m.snapshots.ListUnconsumedInWindow(ctx, pair.Account, pair.PrevAt, pair.CurrAt)
		if err != nil {
			return MarkReport{}, types.WrapError(types.ErrStoreUnavailable, "list snapshots to mark", err)
		}
		for _, snap := range window {
			if entities.NormalizePlatform(snap.Platform) != pair.Platform {
				continue
			}
			add(snap.ID)
		}
		if !pair.PrevAt.Before(pair.CurrAt) && pair.Prev != nil {
			add(pair.Prev.ID)
		}
	}

	report := MarkReport{Requested: len(ids)}
	if len(ids) == 0 {
		return report, nil
	}

	updated, err := m.snapshots.MarkConsumed(ctx, ids)
	if err != nil {
		return MarkReport{}, types.WrapError(types.ErrStoreUnavailable, "mark snapshots consumed", err)
	}
	report.Updated = updated

	if report.Partial() {
		m.log.WithFields(map[string]interface{}{
			"code":      string(types.ErrPartialMark),
			"group":     group,
			"requested": report.Requested,
			"updated":   report.Updated,
		}).Warn("Marked %d of %d snapshots for group %s", report.Updated, report.Requested, group)
	}
	return report, nil
}
