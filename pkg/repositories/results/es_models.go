package results

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fadedpez/balancewatch/pkg/entities"
)

// ESResult represents a flagged result document in Elasticsearch
type ESResult struct {
	ID               string    `json:"id"`
	BatchID          string    `json:"batch_id"`
	Group            string    `json:"group"`
	Platform         string    `json:"platform"`
	Account          string    `json:"account"`
	PrevRecordedAt   string    `json:"prev_recorded_at"`
	CurrRecordedAt   string    `json:"curr_recorded_at"`
	PrevBalance      *float64  `json:"prev_balance"`
	CurrBalance      *float64  `json:"curr_balance"`
	SumCredit        float64   `json:"sum_credit"`
	SumDebit         float64   `json:"sum_debit"`
	MatchedMovements int       `json:"matched_movements"`
	ExpectedDelta    float64   `json:"expected_delta"`
	ObservedDelta    *float64  `json:"observed_delta"`
	Variance         *float64  `json:"variance"`
	FlaggedAt        time.Time `json:"flagged_at"`
}

// ESBatch represents a batch summary document in Elasticsearch
type ESBatch struct {
	BatchID         string    `json:"batch_id"`
	TriggeredBy     string    `json:"triggered_by"`
	Cutoff          string    `json:"cutoff,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	DurationMS      int64     `json:"duration_ms"`
	GroupsAttempted int       `json:"groups_attempted"`
	GroupsSucceeded int       `json:"groups_succeeded"`
	GroupsFailed    int       `json:"groups_failed"`
	GroupsSkipped   int       `json:"groups_skipped"`
	PairsProcessed  int       `json:"pairs_processed"`
	PairsDropped    int       `json:"pairs_dropped"`
	SnapshotsMarked int64     `json:"snapshots_marked"`
	ResultsFlagged  int       `json:"results_flagged"`
}

func newResultDocument(batch *entities.Batch, flagged *entities.FlaggedResult) *ESResult {
	r := flagged.Result
	return &ESResult{
		ID:               flagged.ID,
		BatchID:          batch.ID,
		Group:            r.Group,
		Platform:         r.Platform,
		Account:          r.Account,
		PrevRecordedAt:   r.PrevRecordedAt,
		CurrRecordedAt:   r.CurrRecordedAt,
		PrevBalance:      nullFloat(r.PrevBalance),
		CurrBalance:      nullFloat(r.CurrBalance),
		SumCredit:        r.SumCredit.InexactFloat64(),
		SumDebit:         r.SumDebit.InexactFloat64(),
		MatchedMovements: r.MatchedMovements,
		ExpectedDelta:    r.ExpectedDelta.InexactFloat64(),
		ObservedDelta:    nullFloat(r.ObservedDelta),
		Variance:         nullFloat(r.Variance),
		FlaggedAt:        batch.FinishedAt,
	}
}

func newBatchDocument(batch *entities.Batch) *ESBatch {
	return &ESBatch{
		BatchID:         batch.ID,
		TriggeredBy:     batch.TriggeredBy,
		Cutoff:          batch.Cutoff,
		StartedAt:       batch.StartedAt,
		FinishedAt:      batch.FinishedAt,
		DurationMS:      batch.Duration().Milliseconds(),
		GroupsAttempted: batch.Summary.GroupsAttempted,
		GroupsSucceeded: batch.Summary.GroupsSucceeded,
		GroupsFailed:    batch.Summary.GroupsFailed,
		GroupsSkipped:   batch.Summary.GroupsSkipped,
		PairsProcessed:  batch.Summary.PairsProcessed,
		PairsDropped:    batch.Summary.PairsDropped,
		SnapshotsMarked: batch.Summary.SnapshotsMarked,
		ResultsFlagged:  batch.Summary.ResultsFlagged,
	}
}

func nullFloat(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	f := d.Decimal.InexactFloat64()
	return &f
}
