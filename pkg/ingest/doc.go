// Package ingest holds the ingestion backends crogger dispatches batches to.
//
// Every backend implements Client. HTTPClient talks to an Axiom-compatible
// ingest API and is the default; GelfClient, FileClient and
// ElasticsearchClient let the same records go to Graylog, a local JSON
// Lines file or an Elasticsearch index.
package ingest
