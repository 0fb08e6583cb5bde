package reconciliation

import (
	"context"

	"github.com/fadedpez/balancewatch/internal/logging"
	"github.com/fadedpez/balancewatch/internal/types"
	"github.com/fadedpez/balancewatch/pkg/entities"
	"github.com/fadedpez/balancewatch/pkg/storage"
)

// Sink receives every finished batch. Exports, alerts and indexes are sinks.
type Sink interface {
	Name() string
	Publish(ctx context.Context, batch *entities.Batch) error
}

// Runner runs a batch, fans it out to the sinks and records it in history
type Runner struct {
	service *Service
	sinks   []Sink
	history storage.Storage
	log     *logging.Logger
}

// NewRunner creates a runner. history may be nil.
func NewRunner(service *Service, history storage.Storage, log *logging.Logger, sinks ...Sink) *Runner {
	if log == nil {
		log = logging.Default
	}
	return &Runner{
		service: service,
		sinks:   sinks,
		history: history,
		log:     log,
	}
}

// Run executes one batch end to end. A failed batch is still published and
// recorded, and is returned together with an ErrBatchFailed ReconError.
func (r *Runner) Run(ctx context.Context, req BatchRequest) (*entities.Batch, error) {
	batch, err := r.service.RunBatch(ctx, req)
	if err != nil {
		r.log.LogError(err)
		return nil, err
	}

	execution := storage.NewExecution(batch)
	for _, sink := range r.sinks {
		if err := sink.Publish(ctx, batch); err != nil {
			err = types.WrapError(types.ErrSinkFailed, "publish to "+sink.Name(), err)
			r.log.WithFields(map[string]interface{}{"batch": batch.ID, "sink": sink.Name()}).LogError(err)
			execution.Sinks[sink.Name()] = err.Error()
			continue
		}
		execution.Sinks[sink.Name()] = ""
	}

	if r.history != nil {
		if err := r.history.SaveExecution(ctx, execution); err != nil {
			r.log.Error("Failed to save execution %s: %v", batch.ID, err)
		}
	}

	if batch.Failed() {
		err := types.NewReconError(types.ErrBatchFailed, "no group succeeded in batch "+batch.ID)
		r.log.LogError(err)
		return batch, err
	}
	return batch, nil
}
