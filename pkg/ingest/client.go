// pkg/ingest/client.go

package ingest

import (
	"context"
	"errors"

	"github.com/orgoj/crogger/pkg/record"
)

// Client defines the interface for all ingestion backends.
// Each backend type (http, gelf, file, elasticsearch) implements it.
type Client interface {
	// Ingest submits records into dataset as one unit. The records are
	// the wire mappings produced by record.Record.Map and must not be
	// modified by the implementation.
	Ingest(ctx context.Context, dataset string, records []record.Fields, opts Options) error

	// Close releases files or connections held by the client.
	Close() error

	// Name returns the name of the client instance.
	Name() string
}

// Options are passed through to the backend untouched by crogger.
// Only the HTTP ingest API interprets them.
type Options struct {
	TimestampField  string `yaml:"timestamp_field,omitempty"`
	TimestampFormat string `yaml:"timestamp_format,omitempty"`
	CSVDelimiter    string `yaml:"csv_delimiter,omitempty"`
}

// ErrRejected is returned when the backend accepted the request but
// refused some of the records.
var ErrRejected = errors.New("records rejected by backend")

// datasetField is added to every record by backends without a native
// notion of datasets.
const datasetField = "_dataset"

// withDataset copies rec and tags the copy with the dataset name.
func withDataset(rec record.Fields, dataset string) record.Fields {
	out := rec.Clone()
	out[datasetField] = dataset
	return out
}
