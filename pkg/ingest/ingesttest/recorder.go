// Package ingesttest provides an in-memory ingest.Client for tests.
package ingesttest

import (
	"context"
	"sync"

	"github.com/orgoj/crogger/pkg/ingest"
	"github.com/orgoj/crogger/pkg/record"
)

// Call is one recorded Ingest invocation.
type Call struct {
	Dataset string
	Records []record.Fields
	Options ingest.Options
}

// Recorder records every Ingest call. Setting Err makes Ingest fail after
// recording the call.
type Recorder struct {
	mu     sync.Mutex
	calls  []Call
	closed bool

	Err error
}

// Ingest records the call.
func (r *Recorder) Ingest(_ context.Context, dataset string, records []record.Fields, opts ingest.Options) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := make([]record.Fields, len(records))
	for i, rec := range records {
		copied[i] = rec.Clone()
	}
	r.calls = append(r.calls, Call{Dataset: dataset, Records: copied, Options: opts})
	return r.Err
}

// Calls returns the recorded calls in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Closed reports whether Close was called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close marks the recorder closed.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Name returns "recorder".
func (r *Recorder) Name() string {
	return "recorder"
}

var _ ingest.Client = (*Recorder)(nil)
