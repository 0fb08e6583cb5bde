package scheduler

import (
	"context"
	"time"

	"github.com/fadedpez/balancewatch/internal/logging"
	"github.com/fadedpez/balancewatch/internal/types"
	"github.com/fadedpez/balancewatch/pkg/entities"
	"github.com/fadedpez/balancewatch/pkg/services/reconciliation"
)

// Task names
const (
	TaskReconcile      = "reconcile_balances"
	TaskHistoryCleanup = "history_cleanup"
	TaskIndexPruning   = "index_pruning"
)

const (
	historyCleanupInterval = 24 * time.Hour
	indexPruningInterval   = 7 * 24 * time.Hour
)

// BatchRunner runs one reconciliation batch
type BatchRunner interface {
	Run(ctx context.Context, req reconciliation.BatchRequest) (*entities.Batch, error)
}

// HistoryCleaner drops old execution records
type HistoryCleaner interface {
	CleanupOldExecutions(ctx context.Context, maxAge time.Duration) (int, error)
}

// IndexPruner drops expired result indices
type IndexPruner interface {
	PruneOldIndices(ctx context.Context) ([]string, error)
}

// ReconcileConfig configures the reconciliation schedule
type ReconcileConfig struct {
	Interval         time.Duration
	Groups           []string
	Cutoff           *time.Time
	HistoryRetention time.Duration
}

// ReconcileScheduler drives batches and housekeeping on a Scheduler
type ReconcileScheduler struct {
	scheduler *Scheduler
	runner    BatchRunner
	history   HistoryCleaner
	indices   IndexPruner
	config    ReconcileConfig
	log       *logging.Logger
}

// NewReconcileScheduler creates the scheduler. history and indices may be nil.
func NewReconcileScheduler(runner BatchRunner, history HistoryCleaner, indices IndexPruner, config ReconcileConfig, log *logging.Logger) *ReconcileScheduler {
	if log == nil {
		log = logging.Default
	}
	s := &ReconcileScheduler{
		scheduler: NewScheduler(log),
		runner:    runner,
		history:   history,
		indices:   indices,
		config:    config,
		log:       log,
	}

	s.scheduler.AddTask(TaskReconcile, config.Interval, s.reconcile)
	if history != nil && config.HistoryRetention > 0 {
		s.scheduler.AddTask(TaskHistoryCleanup, historyCleanupInterval, s.cleanupHistory)
	}
	if indices != nil {
		s.scheduler.AddTask(TaskIndexPruning, indexPruningInterval, s.pruneIndices)
	}
	return s
}

// Start starts every task
func (s *ReconcileScheduler) Start(ctx context.Context) {
	s.scheduler.Start(ctx)
}

// Stop stops every task and waits for running batches
func (s *ReconcileScheduler) Stop() {
	s.scheduler.Stop()
}

// Tasks returns the registered task names
func (s *ReconcileScheduler) Tasks() []string {
	return s.scheduler.Tasks()
}

func (s *ReconcileScheduler) reconcile(ctx context.Context) error {
	batch, err := s.runner.Run(ctx, reconciliation.BatchRequest{
		Groups:      s.config.Groups,
		Cutoff:      s.config.Cutoff,
		TriggeredBy: "scheduler",
	})
	if types.IsReconError(err, types.ErrBatchFailed) {
		// Already logged by the runner; the next tick retries
		return nil
	}
	if err != nil {
		return err
	}
	s.log.Info("Scheduled batch %s flagged %d results", batch.ID, batch.Summary.ResultsFlagged)
	return nil
}

func (s *ReconcileScheduler) cleanupHistory(ctx context.Context) error {
	removed, err := s.history.CleanupOldExecutions(ctx, s.config.HistoryRetention)
	if err != nil {
		return err
	}
	if removed > 0 {
		s.log.Info("Removed %d executions older than %v", removed, s.config.HistoryRetention)
	}
	return nil
}

func (s *ReconcileScheduler) pruneIndices(ctx context.Context) error {
	deleted, err := s.indices.PruneOldIndices(ctx)
	if err != nil {
		return err
	}
	if len(deleted) > 0 {
		s.log.Info("Pruned %d result indices", len(deleted))
	}
	return nil
}
