// Package redact removes sensitive fields from records before they are
// shipped.
package redact

import (
	"context"
	"fmt"

	"github.com/gobwas/glob"

	"github.com/orgoj/crogger/pkg/crogger"
	"github.com/orgoj/crogger/pkg/record"
)

// Redactor deletes extension fields whose names match any of its patterns.
// Recognized fields (level, message, ...) are never removed.
type Redactor struct {
	patterns []glob.Glob
}

// New compiles the glob patterns. Matching is case-sensitive.
func New(patterns []string) (*Redactor, error) {
	compiled := make([]glob.Glob, 0, len(patterns))
	for i, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("redact pattern %d: invalid glob '%s': %w", i, pattern, err)
		}
		compiled = append(compiled, g)
	}
	return &Redactor{patterns: compiled}, nil
}

// Match reports whether key matches any pattern.
func (r *Redactor) Match(key string) bool {
	for _, g := range r.patterns {
		if g.Match(key) {
			return true
		}
	}
	return false
}

// Apply returns rec without the matching extension fields. rec itself is
// left untouched.
func (r *Redactor) Apply(rec record.Record) record.Record {
	if len(r.patterns) == 0 || len(rec.Fields) == 0 {
		return rec
	}

	kept := make(record.Fields, len(rec.Fields))
	for k, v := range rec.Fields {
		if !r.Match(k) {
			kept[k] = v
		}
	}
	if len(kept) == 0 {
		kept = nil
	}
	rec.Fields = kept
	return rec
}

// Transform adapts the redactor to a crogger.Transform. It never drops.
func (r *Redactor) Transform() crogger.Transform {
	return func(_ context.Context, rec record.Record) (crogger.Result, error) {
		return crogger.Keep(r.Apply(rec)), nil
	}
}
