package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fadedpez/balancewatch/internal/logging"
	"github.com/fadedpez/balancewatch/pkg/entities"
)

const defaultTimeout = 30 * time.Second

// Record is one flagged variance in the monitor's wire format. Amounts are
// JSON numbers.
type Record struct {
	ID                  string  `json:"_id"`
	Grupo               string  `json:"grupo"`
	Website             string  `json:"website"`
	Username            string  `json:"username"`
	FechaAnterior       string  `json:"fechaAnterior"`
	FechaActual         string  `json:"fechaActual"`
	BalanceAnterior     float64 `json:"balanceAnterior"`
	BalanceActual       float64 `json:"balanceActual"`
	TotalSumAdd         float64 `json:"totalSumAdd"`
	TotalSumWithdraw    float64 `json:"totalSumWithdraw"`
	VariacionEsperada   float64 `json:"variacionEsperada"`
	VariacionReal       float64 `json:"variacionReal"`
	DiferenciaVariacion float64 `json:"diferenciaVariacion"`
}

// Metadata describes the run that produced the records
type Metadata struct {
	TriggeredBy string  `json:"triggeredBy"`
	Duration    float64 `json:"duration"` // seconds, millisecond precision
	Notes       string  `json:"notes"`
}

// Payload is the body of POST /api/executions
type Payload struct {
	Records  []Record `json:"records"`
	Metadata Metadata `json:"metadata"`
}

// Receipt is the data the monitor returns for a stored execution
type Receipt struct {
	ExecutionID     json.Number `json:"executionId"`
	TotalRecords    int         `json:"totalRecords"`
	RecordsWithDiff int         `json:"recordsWithDiff"`
	Groups          []string    `json:"groups"`
}

// Client submits flagged variances to the balance monitor backend
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logging.Logger
}

// NewClient creates a monitor client for baseURL
func NewClient(baseURL string, httpClient *http.Client, log *logging.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if log == nil {
		log = logging.Default
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		log:        log,
	}
}

// Name implements reconciliation.Sink
func (c *Client) Name() string {
	return "monitor"
}

// Publish implements reconciliation.Sink. Batches without flagged results
// are not sent.
func (c *Client) Publish(ctx context.Context, batch *entities.Batch) error {
	if len(batch.Flagged) == 0 {
		c.log.Debug("No flagged results to send to the monitor for batch %s", batch.ID)
		return nil
	}

	receipt, err := c.Submit(ctx, NewPayload(batch))
	if err != nil {
		return err
	}
	c.log.WithFields(map[string]interface{}{
		"batch":     batch.ID,
		"execution": receipt.ExecutionID.String(),
		"records":   receipt.TotalRecords,
	}).Info("Monitor stored execution for groups %s", strings.Join(receipt.Groups, ", "))
	return nil
}

// Submit posts a payload and expects 201 Created
func (c *Client) Submit(ctx context.Context, payload *Payload) (*Receipt, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error marshaling monitor payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/executions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating monitor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error contacting monitor at %s: %w", c.baseURL, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusCreated {
		text, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return nil, fmt.Errorf("monitor returned %d: %s", res.StatusCode, strings.TrimSpace(string(text)))
	}

	var envelope struct {
		Data Receipt `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("error parsing monitor response: %w", err)
	}
	return &envelope.Data, nil
}

// NewPayload converts a batch's flagged results. Missing balances are sent as 0.
func NewPayload(batch *entities.Batch) *Payload {
	records := make([]Record, 0, len(batch.Flagged))
	for _, f := range batch.Flagged {
		r := f.Result
		records = append(records, Record{
			ID:                  f.ID,
			Grupo:               r.Group,
			Website:             r.Platform,
			Username:            r.Account,
			FechaAnterior:       r.PrevRecordedAt,
			FechaActual:         r.CurrRecordedAt,
			BalanceAnterior:     r.PrevBalance.Decimal.InexactFloat64(),
			BalanceActual:       r.CurrBalance.Decimal.InexactFloat64(),
			TotalSumAdd:         r.SumCredit.InexactFloat64(),
			TotalSumWithdraw:    r.SumDebit.InexactFloat64(),
			VariacionEsperada:   r.ExpectedDelta.InexactFloat64(),
			VariacionReal:       r.ObservedDelta.Decimal.InexactFloat64(),
			DiferenciaVariacion: r.Variance.Decimal.InexactFloat64(),
		})
	}

	return &Payload{
		Records: records,
		Metadata: Metadata{
			TriggeredBy: batch.TriggeredBy,
			Duration:    durationSeconds(batch.Duration()),
			Notes:       "Batch " + batch.ID + " - " + batch.FinishedAt.Format(entities.TimestampLayout),
		},
	}
}

func durationSeconds(d time.Duration) float64 {
	return decimal.NewFromInt(d.Milliseconds()).Shift(-3).InexactFloat64()
}
