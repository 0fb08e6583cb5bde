package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/fadedpez/balancewatch/internal/logging"
	"github.com/fadedpez/balancewatch/internal/types"
	"github.com/fadedpez/balancewatch/pkg/entities"
	"github.com/fadedpez/balancewatch/pkg/locking"
	"github.com/fadedpez/balancewatch/pkg/repositories/movement"
	"github.com/fadedpez/balancewatch/pkg/repositories/snapshot"
	"github.com/fadedpez/balancewatch/pkg/services/groups"
)

const (
	defaultWorkers = 4
	defaultLockTTL = 10 * time.Minute
	lockKeyPrefix  = "group:"
)

// Options tune a Service. Zero values fall back to defaults.
type Options struct {
	Workers int
	Epsilon decimal.Decimal
	Locker  locking.Locker
	LockTTL time.Duration
	Logger  *logging.Logger
}

// Service reconciles balance snapshots against the movement ledger
type Service struct {
	snapshots snapshot.Repository
	movements movement.Repository
	registry  *groups.Registry
	locker    locking.Locker
	marker    *Marker
	workers   int
	epsilon   decimal.Decimal
	lockTTL   time.Duration
	log       *logging.Logger
	now       func() time.Time
}

// NewService creates a new reconciliation service
func NewService(snapshots snapshot.Repository, movements movement.Repository, registry *groups.Registry, opts Options) *Service {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if !opts.Epsilon.IsPositive() {
		opts.Epsilon = entities.DefaultEpsilon
	}
	if opts.Locker == nil {
		opts.Locker = locking.NewLocalLocker()
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default
	}

	return &Service{
		snapshots: snapshots,
		movements: movements,
		registry:  registry,
		locker:    opts.Locker,
		marker:    NewMarker(snapshots, opts.Logger),
		workers:   opts.Workers,
		epsilon:   opts.Epsilon,
		lockTTL:   opts.LockTTL,
		log:       opts.Logger,
		now:       time.Now,
	}
}

// Epsilon is the flagging threshold in use
func (s *Service) Epsilon() decimal.Decimal {
	return s.epsilon
}

// GroupReport is the outcome of reconciling one group
type GroupReport struct {
	Outcome *entities.GroupOutcome
	Results []*entities.ReconciliationResult
}

// ReconcileGroup pairs, aggregates, computes and marks one group. Marking
// happens only after every pair has been computed, and any store error
// aborts the group with no results.
func (s *Service) ReconcileGroup(ctx context.Context, group string, cutoff *time.Time) (*GroupReport, error) {
	log := s.log.WithField("group", group)
	outcome := &entities.GroupOutcome{Group: group}
	report := &GroupReport{Outcome: outcome}

	snaps, err := s.snapshots.ListUnconsumed(ctx, group, cutoff)
	if err != nil {
		return report, types.WrapError(types.ErrStoreUnavailable, "list unconsumed snapshots", err)
	}

	pairing := BuildPairs(group, snaps, log)
	outcome.Pairs = len(pairing.Pairs)
	outcome.PairsDropped = pairing.Dropped
	if len(pairing.Pairs) == 0 {
		log.Debug("No pairs for group %s", group)
		return report, nil
	}

	companies, err := s.registry.Companies(ctx, group)
	if types.IsReconError(err, types.ErrGroupNotFound) {
		log.WithField("code", string(types.ErrGroupNotFound)).Warn("No companies registered for group %s, no movement can match", group)
		companies = nil
	} else if err != nil {
		return report, err
	}

	results := make([]*entities.ReconciliationResult, 0, len(pairing.Pairs))
	for _, pair := range pairing.Pairs {
		var moves []*entities.Movement
		if len(companies) > 0 {
			moves, err = s.movements.ListApproved(ctx, pair.Platform, companies, pair.PrevAt, pair.CurrAt)
			if err != nil {
				return report, types.WrapError(types.ErrStoreUnavailable, "list approved movements", err)
			}
		}
		results = append(results, ComputeVariance(pair, Aggregate(pair, companies, moves)))
	}

	mark, err := s.marker.Mark(ctx, group, pairing.Pairs)
	if err != nil {
		return report, err
	}
	outcome.MarkRequested = mark.Requested
	outcome.SnapshotsMarked = mark.Updated
	report.Results = results

	log.Debug("Reconciled %d pairs, marked %d snapshots", len(results), mark.Updated)
	return report, nil
}

// BatchRequest selects what a batch reconciles
type BatchRequest struct {
	Groups      []string   // empty means every group with unconsumed snapshots
	Cutoff      *time.Time // only snapshots recorded at or before this instant
	TriggeredBy string
}

// RunBatch reconciles every requested group in parallel. A failing group is
// recorded in its outcome and never stops the others. The returned error is
// reserved for failures before any group could start.
func (s *Service) RunBatch(ctx context.Context, req BatchRequest) (*entities.Batch, error) {
	batch := &entities.Batch{
		ID:          strings.ReplaceAll(uuid.New().String(), "-", ""),
		TriggeredBy: req.TriggeredBy,
		StartedAt:   s.now(),
	}
	if req.Cutoff != nil {
		batch.Cutoff = entities.FormatTimestamp(*req.Cutoff)
	}
	log := s.log.WithFields(map[string]interface{}{"batch": batch.ID, "triggered_by": req.TriggeredBy})

	s.registry.Invalidate()

	names, err := s.resolveGroups(ctx, req)
	if err != nil {
		return nil, err
	}
	log.Info("Starting batch over %d groups", len(names))

	reports := make([]*GroupReport, len(names))
	var eg errgroup.Group
	eg.SetLimit(s.workers)
	for i, name := range names {
		i, name := i, name
		eg.Go(func() error {
			reports[i] = s.runGroup(ctx, name, req.Cutoff, log)
			return nil
		})
	}
	_ = eg.Wait()

	var results []*entities.ReconciliationResult
	for _, r := range reports {
		outcome := r.Outcome
		batch.Groups = append(batch.Groups, outcome)
		batch.Summary.PairsDropped += outcome.PairsDropped

		switch outcome.Status {
		case entities.GroupSkipped:
			batch.Summary.GroupsSkipped++
			continue
		case entities.GroupFailed:
			batch.Summary.GroupsFailed++
		case entities.GroupSucceeded:
			batch.Summary.GroupsSucceeded++
			batch.Summary.PairsProcessed += len(r.Results)
			batch.Summary.SnapshotsMarked += outcome.SnapshotsMarked
			results = append(results, r.Results...)
		}
		batch.Summary.GroupsAttempted++
	}

	emission := Emit(results, s.epsilon)
	batch.Results = results
	batch.Flagged = emission.Flagged
	batch.Summary.ResultsFlagged = len(emission.Flagged)
	for _, outcome := range batch.Groups {
		outcome.Flagged = emission.PerGroup[outcome.Group]
	}
	batch.FinishedAt = s.now()

	log.WithFields(map[string]interface{}{
		"attempted": batch.Summary.GroupsAttempted,
		"succeeded": batch.Summary.GroupsSucceeded,
		"failed":    batch.Summary.GroupsFailed,
		"skipped":   batch.Summary.GroupsSkipped,
		"pairs":     batch.Summary.PairsProcessed,
		"marked":    batch.Summary.SnapshotsMarked,
		"flagged":   batch.Summary.ResultsFlagged,
	}).Info("Batch finished in %v", batch.Duration())

	return batch, nil
}

func (s *Service) resolveGroups(ctx context.Context, req BatchRequest) ([]string, error) {
	names := req.Groups
	if len(names) == 0 {
		discovered, err := s.snapshots.ListGroups(ctx, req.Cutoff)
		if err != nil {
			return nil, types.WrapError(types.ErrStoreUnavailable, "discover groups", err)
		}
		names = discovered
	}

	seen := make(map[string]struct{}, len(names))
	unique := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		unique = append(unique, name)
	}
	sort.Strings(unique)
	return unique, nil
}

// runGroup wraps ReconcileGroup with the group lock and turns every failure,
// panics included, into an outcome.
func (s *Service) runGroup(ctx context.Context, group string, cutoff *time.Time, log *logging.Logger) (report *GroupReport) {
	start := s.now()
	log = log.WithField("group", group)

	defer func() {
		if r := recover(); r != nil {
			err := types.NewReconError(types.ErrInternalError, fmt.Sprintf("panic: %v", r))
			log.LogError(err)
			report = failedReport(group, report, err)
		}
		report.Outcome.Duration = s.now().Sub(start)
	}()

	lock, err := s.locker.Obtain(ctx, lockKeyPrefix+group, s.lockTTL)
	if errors.Is(err, locking.ErrNotObtained) {
		log.WithField("code", string(types.ErrLockNotObtained)).Warn("Group %s is being reconciled elsewhere, skipping", group)
		return &GroupReport{Outcome: &entities.GroupOutcome{Group: group, Status: entities.GroupSkipped}}
	}
	if err != nil {
		err = types.WrapError(types.ErrLockNotObtained, "obtain group lock", err)
		log.LogError(err)
		return failedReport(group, nil, err)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Failed to release lock for group %s: %v", group, err)
		}
	}()

	report, err = s.ReconcileGroup(ctx, group, cutoff)
	if err != nil {
		log.LogError(err)
		return failedReport(group, report, err)
	}
	report.Outcome.Status = entities.GroupSucceeded
	return report
}

func failedReport(group string, report *GroupReport, err error) *GroupReport {
	outcome := &entities.GroupOutcome{Group: group}
	if report != nil && report.Outcome != nil {
		outcome = report.Outcome
	}
	outcome.Status = entities.GroupFailed
	outcome.Error = err.Error()
	outcome.MarkRequested = 0
	outcome.SnapshotsMarked = 0
	return &GroupReport{Outcome: outcome}
}
