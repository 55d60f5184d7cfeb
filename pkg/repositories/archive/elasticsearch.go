package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/fadedpez/stemverse/internal/logging"
	"github.com/fadedpez/stemverse/pkg/entities"
)

// indexDateFormat is the suffix of every monthly transaction index
const indexDateFormat = "2006-01"

const transactionMapping = `{
	"mappings": {
		"properties": {
			"transaction_id": { "type": "keyword" },
			"user_id": { "type": "keyword" },
			"amount": { "type": "long" },
			"reason": { "type": "text", "fields": { "raw": { "type": "keyword" } } },
			"dedupe_key": { "type": "keyword" },
			"balance_after": { "type": "long" },
			"timestamp": { "type": "date" }
		}
	},
	"settings": {
		"number_of_shards": 1,
		"number_of_replicas": 1,
		"refresh_interval": "1s"
	}
}`

// Config holds configuration options for the Elasticsearch archive
type Config struct {
	URL             string
	Username        string
	Password        string
	IndexPrefix     string
	RetentionPeriod time.Duration // How long monthly indices stay searchable
	ArchivePath     string        // Where pruned indices are exported; empty skips export
	RotationPeriod  time.Duration // How often the maintenance scheduler rotates
	PrunePeriod     time.Duration // How often the maintenance scheduler prunes
}

// DefaultConfig returns a default configuration for the archive
func DefaultConfig() *Config {
	return &Config{
		URL:             "http://localhost:9200",
		IndexPrefix:     "stemverse",
		RetentionPeriod: 90 * 24 * time.Hour,
		ArchivePath:     "./archives",
		RotationPeriod:  24 * time.Hour,
		PrunePeriod:     7 * 24 * time.Hour,
	}
}

// TransactionDocument is a granted transaction as stored in Elasticsearch
type TransactionDocument struct {
	TransactionID string    `json:"transaction_id"`
	UserID        string    `json:"user_id"`
	Amount        int64     `json:"amount"`
	Reason        string    `json:"reason"`
	DedupeKey     string    `json:"dedupe_key,omitempty"`
	BalanceAfter  int64     `json:"balance_after"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewTransactionDocument converts a ledger transaction for indexing
func NewTransactionDocument(tx *entities.Transaction) *TransactionDocument {
	return &TransactionDocument{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Amount:        tx.Amount,
		Reason:        tx.Reason,
		DedupeKey:     tx.DedupeKey,
		BalanceAfter:  tx.BalanceAfter,
		Timestamp:     tx.Timestamp,
	}
}

// ElasticsearchArchive copies granted transactions into monthly indices for
// search and reporting. The SQLite ledger stays the source of truth.
type ElasticsearchArchive struct {
	client       *elasticsearch.Client
	config       *Config
	logger       *logging.Logger
	now          func() time.Time
	mu           sync.Mutex
	currentIndex string
}

// NewElasticsearchArchive creates an archive client. No request is made until
// the first rotation or grant.
func NewElasticsearchArchive(config *Config, logger *logging.Logger) (*ElasticsearchArchive, error) {
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
		config.IndexPrefix = "stemverse"
	}
	defaults := DefaultConfig()
	if config.RetentionPeriod <= 0 {
		config.RetentionPeriod = defaults.RetentionPeriod
	}
	if config.RotationPeriod <= 0 {
		config.RotationPeriod = defaults.RotationPeriod
	}
	if config.PrunePeriod <= 0 {
		config.PrunePeriod = defaults.PrunePeriod
	}
	if logger == nil {
		logger = logging.Default
	}

	return &ElasticsearchArchive{
		client: client,
		config: config,
		logger: logger,
		now:    time.Now,
	}, nil
}

// AliasName is the write alias covering every monthly index
func (a *ElasticsearchArchive) AliasName() string {
	return a.config.IndexPrefix + "_transactions"
}

// IndexName returns the monthly index holding transactions from t
func (a *ElasticsearchArchive) IndexName(t time.Time) string {
	return a.AliasName() + "_" + t.UTC().Format(indexDateFormat)
}

// OnGrant indexes a granted transaction. The transaction ID is the document ID
// so a retried notification overwrites instead of duplicating.
func (a *ElasticsearchArchive) OnGrant(ctx context.Context, tx *entities.Transaction) error {
	index, err := a.writeIndex(ctx)
	if err != nil {
		return err
	}

	jsonData, err := json.Marshal(NewTransactionDocument(tx))
	if err != nil {
		return fmt.Errorf("error marshaling transaction: %w", err)
	}

	res, err := a.client.Index(
		index,
		bytes.NewReader(jsonData),
		a.client.Index.WithContext(ctx),
		a.client.Index.WithDocumentID(tx.ID),
	)
	if err != nil {
		return fmt.Errorf("error indexing transaction: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing transaction: %s", res.String())
	}

	return nil
}

// writeIndex returns this month's index, rotating first when the month changed
func (a *ElasticsearchArchive) writeIndex(ctx context.Context) (string, error) {
	a.mu.Lock()
	current := a.currentIndex
	a.mu.Unlock()

	if current == a.IndexName(a.now()) {
		return current, nil
	}

	if err := a.RotateIndices(ctx); err != nil {
		return "", fmt.Errorf("error rotating indices: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentIndex, nil
}

// RotateIndices creates this month's index if needed and makes it the write
// index behind the alias.
func (a *ElasticsearchArchive) RotateIndices(ctx context.Context) error {
	monthIndex := a.IndexName(a.now())

	res, err := a.client.Indices.Exists([]string{monthIndex}, a.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("error checking if index exists: %w", err)
	}
	res.Body.Close()

	if res.StatusCode == 404 {
		req := esapi.IndicesCreateRequest{
			Index: monthIndex,
			Body:  strings.NewReader(transactionMapping),
		}

		res, err := req.Do(ctx, a.client)
		if err != nil {
			return fmt.Errorf("error creating monthly index: %w", err)
		}
		defer res.Body.Close()

		// A concurrent rotation may have created it first
		if res.IsError() && !strings.Contains(res.String(), "resource_already_exists_exception") {
			return fmt.Errorf("error creating monthly index: %s", res.String())
		}

		a.logger.WithField("index", monthIndex).Info("Created monthly transaction index")
	}

	existing, err := a.GetIndices(ctx, a.AliasName()+"_*")
	if err != nil {
		return err
	}

	actions := []map[string]interface{}{
		{
			"add": map[string]interface{}{
				"index":          monthIndex,
				"alias":          a.AliasName(),
				"is_write_index": true,
			},
		},
	}
	for _, index := range existing {
		if index == monthIndex {
			continue
		}
		actions = append(actions, map[string]interface{}{
			"add": map[string]interface{}{
				"index":          index,
				"alias":          a.AliasName(),
				"is_write_index": false,
			},
		})
	}

	aliasJSON, err := json.Marshal(map[string]interface{}{"actions": actions})
	if err != nil {
		return fmt.Errorf("error marshaling alias actions: %w", err)
	}

	req := esapi.IndicesUpdateAliasesRequest{
		Body: bytes.NewReader(aliasJSON),
	}

	aliasRes, err := req.Do(ctx, a.client)
	if err != nil {
		return fmt.Errorf("error updating alias: %w", err)
	}
	defer aliasRes.Body.Close()

	if aliasRes.IsError() {
		return fmt.Errorf("error updating alias: %s", aliasRes.String())
	}

	a.mu.Lock()
	a.currentIndex = monthIndex
	a.mu.Unlock()

	return nil
}

// PruneOldIndices exports and deletes monthly indices whose whole month is
// older than the retention period. The current write index is never pruned.
func (a *ElasticsearchArchive) PruneOldIndices(ctx context.Context) ([]string, error) {
	indices, err := a.GetIndices(ctx, a.AliasName()+"_*")
	if err != nil {
		return nil, err
	}

	now := a.now()
	current := a.IndexName(now)
	cutoff := now.Add(-a.config.RetentionPeriod)

	var pruned []string
	for _, indexName := range indices {
		if indexName == current {
			continue
		}

		month, ok := a.indexMonth(indexName)
		if !ok {
			a.logger.WithField("index", indexName).Warn("Skipping index with unexpected name")
			continue
		}

		if !month.AddDate(0, 1, 0).Before(cutoff) {
			continue
		}

		fields := logging.Fields{"index": indexName, "retention": a.config.RetentionPeriod.String()}

		if a.config.ArchivePath != "" {
			if err := a.exportIndex(ctx, indexName); err != nil {
				// Keep the data rather than lose it
				a.logger.WithFields(fields).WithError(err).Error("Skipping deletion after failed export")
				continue
			}
		}

		req := esapi.IndicesDeleteRequest{
			Index: []string{indexName},
		}

		res, err := req.Do(ctx, a.client)
		if err != nil {
			a.logger.WithFields(fields).WithError(err).Error("Error deleting index")
			continue
		}
		res.Body.Close()

		if res.IsError() {
			a.logger.WithFields(fields).WithField("response", res.String()).Error("Error deleting index")
			continue
		}

		a.logger.WithFields(fields).Info("Pruned index older than retention period")
		pruned = append(pruned, indexName)
	}

	return pruned, nil
}

// GetIndices returns the sorted names of open indices matching pattern
func (a *ElasticsearchArchive) GetIndices(ctx context.Context, pattern string) ([]string, error) {
	res, err := a.client.Indices.Get(
		[]string{pattern},
		a.client.Indices.Get.WithContext(ctx),
		a.client.Indices.Get.WithExpandWildcards("open"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get indices: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return []string{}, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("error getting indices: %s", res.String())
	}

	var indices map[string]json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&indices); err != nil {
		return nil, fmt.Errorf("error parsing indices response: %w", err)
	}

	indexNames := make([]string, 0, len(indices))
	for name := range indices {
		indexNames = append(indexNames, name)
	}
	sort.Strings(indexNames)

	return indexNames, nil
}

// Config returns a copy of the archive configuration
func (a *ElasticsearchArchive) Config() Config {
	return *a.config
}

func (a *ElasticsearchArchive) indexMonth(indexName string) (time.Time, bool) {
	prefix := a.AliasName() + "_"
	if !strings.HasPrefix(indexName, prefix) {
		return time.Time{}, false
	}
	month, err := time.Parse(indexDateFormat, strings.TrimPrefix(indexName, prefix))
	if err != nil {
		return time.Time{}, false
	}
	return month, true
}

type searchResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []struct {
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// exportIndex writes every document of an index to <ArchivePath>/<index>.jsonl.gz
func (a *ElasticsearchArchive) exportIndex(ctx context.Context, indexName string) (err error) {
	if err := os.MkdirAll(a.config.ArchivePath, 0755); err != nil {
		return fmt.Errorf("error creating archive directory: %w", err)
	}

	file, err := os.Create(filepath.Join(a.config.ArchivePath, indexName+".jsonl.gz"))
	if err != nil {
		return fmt.Errorf("error creating archive file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("error closing archive file: %w", closeErr)
		}
	}()

	gzipWriter := gzip.NewWriter(file)
	defer func() {
		if closeErr := gzipWriter.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("error flushing archive file: %w", closeErr)
		}
	}()

	scrollDuration := time.Minute
	req := esapi.SearchRequest{
		Index:  []string{indexName},
		Body:   strings.NewReader(`{"query": {"match_all": {}}, "sort": ["_doc"]}`),
		Scroll: scrollDuration,
		Size:   esapi.IntPtr(500),
	}

	res, err := req.Do(ctx, a.client)
	if err != nil {
		return fmt.Errorf("error searching for documents: %w", err)
	}
	page, err := decodeSearch(res)
	if err != nil {
		return err
	}

	defer func() {
		if page.ScrollID == "" {
			return
		}
		clearReq := esapi.ClearScrollRequest{ScrollID: []string{page.ScrollID}}
		clearRes, clearErr := clearReq.Do(ctx, a.client)
		if clearErr != nil {
			a.logger.WithError(clearErr).Warn("Error clearing scroll")
			return
		}
		clearRes.Body.Close()
	}()

	for len(page.Hits.Hits) > 0 {
		for _, hit := range page.Hits.Hits {
			if _, err := gzipWriter.Write(append(hit.Source, '\n')); err != nil {
				return fmt.Errorf("error writing archive file: %w", err)
			}
		}

		scrollReq := esapi.ScrollRequest{
			ScrollID: page.ScrollID,
			Scroll:   scrollDuration,
		}
		res, err := scrollReq.Do(ctx, a.client)
		if err != nil {
			return fmt.Errorf("error scrolling: %w", err)
		}
		next, err := decodeSearch(res)
		if err != nil {
			return err
		}
		page = next
	}

	return nil
}

func decodeSearch(res *esapi.Response) (*searchResponse, error) {
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("error searching for documents: %s", res.String())
	}

	var page searchResponse
	if err := json.NewDecoder(res.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("error parsing search response: %w", err)
	}
	return &page, nil
}
