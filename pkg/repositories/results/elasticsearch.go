package results

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/fadedpez/balancewatch/internal/logging"
	"github.com/fadedpez/balancewatch/pkg/entities"
)

// monthLayout is the suffix of every time-based index
const monthLayout = "2006-01"

// Config holds configuration options for the Elasticsearch results index
type Config struct {
	URL             string
	Username        string
	Password        string
	IndexPrefix     string
	RetentionPeriod time.Duration // How long monthly indices are kept, 0 keeps them forever
}

// DefaultConfig returns a default configuration for Elasticsearch
func DefaultConfig() *Config {
	return &Config{
		URL:             "http://localhost:9200",
		IndexPrefix:     "balancewatch",
		RetentionPeriod: 365 * 24 * time.Hour,
	}
}

const resultMapping = `{
	"mappings": {
		"properties": {
			"id": { "type": "keyword" },
			"batch_id": { "type": "keyword" },
			"group": { "type": "keyword" },
			"platform": { "type": "keyword" },
			"account": { "type": "keyword" },
			"prev_recorded_at": { "type": "keyword" },
			"curr_recorded_at": { "type": "keyword" },
			"prev_balance": { "type": "double" },
			"curr_balance": { "type": "double" },
			"sum_credit": { "type": "double" },
			"sum_debit": { "type": "double" },
			"matched_movements": { "type": "integer" },
			"expected_delta": { "type": "double" },
			"observed_delta": { "type": "double" },
			"variance": { "type": "double" },
			"flagged_at": { "type": "date" }
		}
	}
}`

const batchMapping = `{
	"mappings": {
		"properties": {
			"batch_id": { "type": "keyword" },
			"triggered_by": { "type": "keyword" },
			"cutoff": { "type": "keyword" },
			"started_at": { "type": "date" },
			"finished_at": { "type": "date" },
			"duration_ms": { "type": "long" },
			"groups_attempted": { "type": "integer" },
			"groups_succeeded": { "type": "integer" },
			"groups_failed": { "type": "integer" },
			"groups_skipped": { "type": "integer" },
			"pairs_processed": { "type": "integer" },
			"pairs_dropped": { "type": "integer" },
			"snapshots_marked": { "type": "long" },
			"results_flagged": { "type": "integer" }
		}
	}
}`

// ElasticsearchRepository indexes flagged results and batch summaries into
// monthly indices named <prefix>_results_YYYY-MM and <prefix>_batches_YYYY-MM
type ElasticsearchRepository struct {
	client  *elasticsearch.Client
	config  *Config
	log     *logging.Logger
	mu      sync.Mutex
	ensured map[string]bool
	now     func() time.Time
}

// NewElasticsearchRepository creates a new Elasticsearch results repository
func NewElasticsearchRepository(config *Config, log *logging.Logger) (*ElasticsearchRepository, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = logging.Default
	}

	cfg := elasticsearch.Config{
		Addresses: []string{config.URL},
	}
	if config.Username != "" && config.Password != "" {
		cfg.Username = config.Username
		cfg.Password = config.Password
	}

	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating Elasticsearch client: %w", err)
	}

	if config.IndexPrefix == "" {
		config.IndexPrefix = "balancewatch"
	}

	return &ElasticsearchRepository{
		client:  client,
		config:  config,
		log:     log,
		ensured: make(map[string]bool),
		now:     time.Now,
	}, nil
}

// Name implements reconciliation.Sink
func (r *ElasticsearchRepository) Name() string {
	return "elasticsearch"
}

// Publish indexes every flagged result and the batch summary in one bulk request
func (r *ElasticsearchRepository) Publish(ctx context.Context, batch *entities.Batch) error {
	month := r.now().UTC().Format(monthLayout)
	resultIndex := r.indexName("results", month)
	batchIndex := r.indexName("batches", month)

	if err := r.ensureIndex(ctx, resultIndex, resultMapping); err != nil {
		return err
	}
	if err := r.ensureIndex(ctx, batchIndex, batchMapping); err != nil {
		return err
	}

	var body bytes.Buffer
	for _, flagged := range batch.Flagged {
		if err := writeBulkItem(&body, resultIndex, flagged.ID, newResultDocument(batch, flagged)); err != nil {
			return err
		}
	}
	if err := writeBulkItem(&body, batchIndex, batch.ID, newBatchDocument(batch)); err != nil {
		return err
	}

	res, err := r.client.Bulk(
		bytes.NewReader(body.Bytes()),
		r.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("error indexing batch %s: %w", batch.ID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing batch %s: %s", batch.ID, res.String())
	}

	var bulk bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulk); err != nil {
		return fmt.Errorf("error parsing bulk response: %w", err)
	}
	if bulk.Errors {
		return fmt.Errorf("error indexing batch %s: %d of %d documents rejected", batch.ID, bulk.failed(), len(bulk.Items))
	}

	r.log.Debug("Indexed %d flagged results of batch %s into %s", len(batch.Flagged), batch.ID, resultIndex)
	return nil
}

// PruneOldIndices deletes monthly indices whose month ended before the
// retention period. It returns the names of the deleted indices.
func (r *ElasticsearchRepository) PruneOldIndices(ctx context.Context) ([]string, error) {
	if r.config.RetentionPeriod <= 0 {
		return nil, nil
	}

	indices, err := r.GetIndices(ctx, r.config.IndexPrefix+"_*")
	if err != nil {
		return nil, err
	}
	sort.Strings(indices)

	cutoff := r.now().Add(-r.config.RetentionPeriod)
	var deleted []string
	for _, name := range indices {
		month, ok := r.indexMonth(name)
		if !ok {
			continue
		}
		if !month.AddDate(0, 1, 0).Before(cutoff) {
			continue
		}

		req := esapi.IndicesDeleteRequest{Index: []string{name}}
		res, err := req.Do(ctx, r.client)
		if err != nil {
			return deleted, fmt.Errorf("error deleting index %s: %w", name, err)
		}
		res.Body.Close()
		if res.IsError() {
			r.log.Warn("Error deleting index %s: %s", name, res.String())
			continue
		}

		r.mu.Lock()
		delete(r.ensured, name)
		r.mu.Unlock()
		deleted = append(deleted, name)
		r.log.Info("Deleted index %s (older than retention period of %v)", name, r.config.RetentionPeriod)
	}
	return deleted, nil
}

// GetIndices returns the names of the open indices matching pattern
func (r *ElasticsearchRepository) GetIndices(ctx context.Context, pattern string) ([]string, error) {
	res, err := r.client.Indices.Get(
		[]string{pattern},
		r.client.Indices.Get.WithContext(ctx),
		r.client.Indices.Get.WithExpandWildcards("open"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get indices: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("error getting indices: %s", res.String())
	}

	var indices map[string]json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&indices); err != nil {
		return nil, fmt.Errorf("error parsing indices response: %w", err)
	}

	names := make([]string, 0, len(indices))
	for name := range indices {
		names = append(names, name)
	}
	return names, nil
}

// Close is a no-op, the HTTP transport needs no teardown
func (r *ElasticsearchRepository) Close() error {
	return nil
}

func (r *ElasticsearchRepository) indexName(kind, month string) string {
	return r.config.IndexPrefix + "_" + kind + "_" + month
}

func (r *ElasticsearchRepository) indexMonth(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, r.config.IndexPrefix+"_") {
		return time.Time{}, false
	}
	i := strings.LastIndex(name, "_")
	month, err := time.Parse(monthLayout, name[i+1:])
	if err != nil {
		return time.Time{}, false
	}
	return month, true
}

// ensureIndex creates the index with its mapping the first time it is used
func (r *ElasticsearchRepository) ensureIndex(ctx context.Context, name, mapping string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ensured[name] {
		return nil
	}

	res, err := r.client.Indices.Exists([]string{name}, r.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("error checking if index %s exists: %w", name, err)
	}
	res.Body.Close()

	if res.StatusCode == 404 {
		req := esapi.IndicesCreateRequest{
			Index: name,
			Body:  strings.NewReader(mapping),
		}
		res, err := req.Do(ctx, r.client)
		if err != nil {
			return fmt.Errorf("error creating index %s: %w", name, err)
		}
		defer res.Body.Close()

		if res.IsError() {
			return fmt.Errorf("error creating index %s: %s", name, res.String())
		}
		r.log.Info("Created index %s", name)
	}

	r.ensured[name] = true
	return nil
}

func writeBulkItem(buf *bytes.Buffer, index, id string, doc interface{}) error {
	meta := map[string]map[string]string{"index": {"_index": index, "_id": id}}
	if err := json.NewEncoder(buf).Encode(meta); err != nil {
		return fmt.Errorf("error encoding bulk metadata: %w", err)
	}
	if err := json.NewEncoder(buf).Encode(doc); err != nil {
		return fmt.Errorf("error encoding document %s: %w", id, err)
	}
	return nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
	} `json:"items"`
}

func (b bulkResponse) failed() int {
	n := 0
	for _, item := range b.Items {
		for _, op := range item {
			if op.Status >= 300 {
				n++
			}
		}
	}
	return n
}
