package storage

import (
	"context"
	"errors"
	"time"

	"github.com/fadedpez/balancewatch/pkg/entities"
)

// Common storage errors
var (
	ErrExecutionNotFound = errors.New("execution not found")
)

// Execution statuses
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Execution is the persisted record of one reconciliation batch
type Execution struct {
	ID          string                    `json:"id"`
	TriggeredBy string                    `json:"triggered_by"`
	Status      string                    `json:"status"`
	Cutoff      string                    `json:"cutoff,omitempty"`
	StartedAt   time.Time                 `json:"started_at"`
	FinishedAt  time.Time                 `json:"finished_at"`
	Summary     entities.BatchSummary     `json:"summary"`
	Groups      []*entities.GroupOutcome  `json:"groups"`
	Flagged     []*entities.FlaggedResult `json:"flagged"`
	Sinks       map[string]string         `json:"sinks,omitempty"` // sink name -> error, empty on success
	CreatedAt   time.Time                 `json:"created_at"`
}

// NewExecution builds the history record of a finished batch
func NewExecution(batch *entities.Batch) *Execution {
	status := StatusSucceeded
	if batch.Failed() {
		status = StatusFailed
	}
	return &Execution{
		ID:          batch.ID,
		TriggeredBy: batch.TriggeredBy,
		Status:      status,
		Cutoff:      batch.Cutoff,
		StartedAt:   batch.StartedAt,
		FinishedAt:  batch.FinishedAt,
		Summary:     batch.Summary,
		Groups:      batch.Groups,
		Flagged:     batch.Flagged,
		Sinks:       make(map[string]string),
	}
}

// Storage defines the interface for execution history persistence
type Storage interface {
	// SaveExecution saves or updates an execution record
	SaveExecution(ctx context.Context, execution *Execution) error

	// LoadExecution loads an execution by ID
	LoadExecution(ctx context.Context, id string) (*Execution, error)

	// ListExecutions lists the most recent executions first, up to limit (0 for all)
	ListExecutions(ctx context.Context, limit int) ([]*Execution, error)

	// DeleteExecution deletes an execution record
	DeleteExecution(ctx context.Context, id string) error

	// CleanupOldExecutions removes executions older than maxAge and returns how many
	CleanupOldExecutions(ctx context.Context, maxAge time.Duration) (int, error)
}

// Options represents storage configuration options
type Options struct {
	Path        string
	MaxAge      time.Duration
	AutoCleanup bool
}

// NewOptions creates a new Options with default values
func NewOptions() *Options {
	return &Options{
		Path:        "executions.json",
		MaxAge:      30 * 24 * time.Hour,
		AutoCleanup: false,
	}
}
