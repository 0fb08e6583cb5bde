package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultEpsilon is the variance magnitude below which a result is not reported
var DefaultEpsilon = decimal.New(1, -9)

// ReconciliationPair is the two most recent unconsumed snapshots of a series
type ReconciliationPair struct {
	Group    string
	Platform string // normalized
	Account  string
	Prev     *BalanceSnapshot
	Curr     *BalanceSnapshot
	PrevAt   time.Time
	CurrAt   time.Time
}

// ReconciliationResult is the computed outcome of one pair
type ReconciliationResult struct {
	Group            string              `json:"group"`
	Platform         string              `json:"platform"`
	Account          string              `json:"account"`
	PrevRecordedAt   string              `json:"prev_recorded_at"`
	CurrRecordedAt   string              `json:"curr_recorded_at"`
	PrevBalance      decimal.NullDecimal `json:"prev_balance"`
	CurrBalance      decimal.NullDecimal `json:"curr_balance"`
	SumCredit        decimal.Decimal     `json:"sum_credit"`
	SumDebit         decimal.Decimal     `json:"sum_debit"`
	MatchedMovements int                 `json:"matched_movements"`
	ExpectedDelta    decimal.Decimal     `json:"expected_delta"`
	ObservedDelta    decimal.NullDecimal `json:"observed_delta"`
	Variance         decimal.NullDecimal `json:"variance"`
}

// Flagged reports whether the variance is defined and at least epsilon in magnitude
func (r *ReconciliationResult) Flagged(epsilon decimal.Decimal) bool {
	if !r.Variance.Valid {
		return false
	}
	return r.Variance.Decimal.Abs().GreaterThanOrEqual(epsilon)
}

// FlaggedResult is a reported discrepancy with a batch-unique identifier
type FlaggedResult struct {
	ID     string                `json:"id"`
	Result *ReconciliationResult `json:"result"`
}

// GroupStatus is the terminal state of one group within a batch
type GroupStatus string

const (
	GroupSucceeded GroupStatus = "succeeded"
	GroupFailed    GroupStatus = "failed"
	GroupSkipped   GroupStatus = "skipped"
)

// GroupOutcome summarizes one group's run
type GroupOutcome struct {
	Group           string        `json:"group"`
	Status          GroupStatus   `json:"status"`
	Pairs           int           `json:"pairs"`
	PairsDropped    int           `json:"pairs_dropped"`
	MarkRequested   int           `json:"mark_requested"`
	SnapshotsMarked int64         `json:"snapshots_marked"`
	Flagged         int           `json:"flagged"`
	Error           string        `json:"error,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// BatchSummary carries the counts reported at the end of a batch
type BatchSummary struct {
	GroupsAttempted int   `json:"groups_attempted"`
	GroupsSucceeded int   `json:"groups_succeeded"`
	GroupsFailed    int   `json:"groups_failed"`
	GroupsSkipped   int   `json:"groups_skipped"`
	PairsProcessed  int   `json:"pairs_processed"`
	PairsDropped    int   `json:"pairs_dropped"`
	SnapshotsMarked int64 `json:"snapshots_marked"`
	ResultsFlagged  int   `json:"results_flagged"`
}

// Batch is one reconciliation run across groups
type Batch struct {
	ID          string                  `json:"id"`
	TriggeredBy string                  `json:"triggered_by"`
	Cutoff      string                  `json:"cutoff,omitempty"`
	StartedAt   time.Time               `json:"started_at"`
	FinishedAt  time.Time               `json:"finished_at"`
	Groups      []*GroupOutcome         `json:"groups"`
	Results     []*ReconciliationResult `json:"results"`
	Flagged     []*FlaggedResult        `json:"flagged"`
	Summary     BatchSummary            `json:"summary"`
}

// Failed reports a batch where groups were attempted but none succeeded
func (b *Batch) Failed() bool {
	return b.Summary.GroupsAttempted > 0 && b.Summary.GroupsSucceeded == 0
}

// Duration is the wall time of the batch
func (b *Batch) Duration() time.Duration {
	return b.FinishedAt.Sub(b.StartedAt)
}

// ResultsByGroup buckets every result by group in output order
func (b *Batch) ResultsByGroup() ([]string, map[string][]*ReconciliationResult) {
	var order []string
	byGroup := make(map[string][]*ReconciliationResult)
	for _, r := range b.Results {
		if _, ok := byGroup[r.Group]; !ok {
			order = append(order, r.Group)
		}
		byGroup[r.Group] = append(byGroup[r.Group], r)
	}
	return order, byGroup
}
