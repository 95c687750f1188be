package crogger

import (
	"context"
	"fmt"

	"github.com/orgoj/crogger/pkg/record"
)

// Transform rewrites or rejects a normalized record before it is shipped.
// It runs after default fields and the timestamp are applied and is the
// last thing to touch the record. Returning an error, or panicking, counts
// as a delivery failure for that record.
type Transform func(ctx context.Context, rec record.Record) (Result, error)

// Result is the outcome of a Transform. The zero Result drops the record.
type Result struct {
	rec  record.Record
	kept bool
}

// Keep ships rec in place of the original record.
func Keep(rec record.Record) Result {
	return Result{rec: rec, kept: true}
}

// Drop discards the record without reporting an error.
func Drop() Result {
	return Result{}
}

// Record returns the kept record and reports whether there is one.
func (r Result) Record() (record.Record, bool) {
	return r.rec, r.kept
}

// Chain runs transforms in order, stopping at the first drop or error.
func Chain(transforms ...Transform) Transform {
	return func(ctx context.Context, rec record.Record) (Result, error) {
		for _, t := range transforms {
			if t == nil {
				continue
			}
			res, err := t(ctx, rec)
			if err != nil {
				return Result{}, err
			}
			next, ok := res.Record()
			if !ok {
				return Drop(), nil
			}
			rec = next
		}
		return Keep(rec), nil
	}
}

// runTransform applies t to rec. A nil t keeps the record unchanged.
func runTransform(ctx context.Context, t Transform, rec record.Record) (res Result, err error) {
	if t == nil {
		return Keep(rec), nil
	}

	defer func() {
		if r := recover(); r != nil {
			res = Result{}
			err = fmt.Errorf("transform hook: %w: %v", ErrHookPanic, r)
		}
	}()

	res, err = t(ctx, rec)
	if err != nil {
		return Result{}, fmt.Errorf("transform hook: %w", err)
	}
	return res, nil
}
