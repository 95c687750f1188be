// pkg/ingest/elasticsearch_client.go

package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/orgoj/crogger/pkg/record"
)

// ElasticsearchConfig configures an ElasticsearchClient.
type ElasticsearchConfig struct {
	Name      string
	Addresses []string
	Username  string
	Password  string
	APIKey    string
}

// ElasticsearchClient indexes a batch with one _bulk request. The dataset
// is used as the index name.
type ElasticsearchClient struct {
	name string
	es   *elasticsearch.Client
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
		Error  struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// NewElasticsearchClient creates a client for the given cluster addresses.
func NewElasticsearchClient(cfg ElasticsearchConfig) (*ElasticsearchClient, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("elasticsearch client requires at least one address")
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	name := cfg.Name
	if name == "" {
		name = "elasticsearch"
	}
	return &ElasticsearchClient{name: name, es: es}, nil
}

// Ingest bulk-indexes the records into the dataset index.
func (c *ElasticsearchClient) Ingest(ctx context.Context, dataset string, records []record.Fields, _ Options) error {
	var buf bytes.Buffer
	meta := []byte(`{"index":{}}`)
	for _, rec := range records {
		doc, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("error marshaling record to bulk index: %w", err)
		}
		buf.Write(meta)
		buf.WriteByte('\n')
		buf.Write(doc)
		buf.WriteByte('\n')
	}

	res, err := c.es.Bulk(
		bytes.NewReader(buf.Bytes()),
		c.es.Bulk.WithIndex(dataset),
		c.es.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("error bulk indexing: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk index error: %s", res.String())
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("error decoding bulk response: %w", err)
	}
	if !parsed.Errors {
		return nil
	}

	failed := 0
	reason := ""
	for _, item := range parsed.Items {
		for _, result := range item {
			if result.Status >= 300 {
				failed++
				if reason == "" {
					reason = result.Error.Type + ": " + result.Error.Reason
				}
			}
		}
	}
	return fmt.Errorf("%w: %d of %d failed (first: %s)", ErrRejected, failed, len(records), reason)
}

// Close is a no-op; the transport has no resources to release.
func (c *ElasticsearchClient) Close() error {
	return nil
}

// Name returns the name of the client.
func (c *ElasticsearchClient) Name() string {
	return c.name
}

var _ Client = (*ElasticsearchClient)(nil)
