// Package intake decodes records sent to the relay or piped to the CLI.
package intake

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/valyala/fastjson"

	"github.com/orgoj/crogger/pkg/record"
)

var (
	// ErrEmptyBody is returned when the input holds no JSON value.
	ErrEmptyBody = errors.New("empty body")
	// ErrNotObject is returned when a record is not a JSON object.
	ErrNotObject = errors.New("record must be a JSON object")
)

// Decoder turns JSON input into records. It is safe for concurrent use.
type Decoder struct {
	parsers fastjson.ParserPool
}

// DecodeOne decodes a body holding exactly one JSON object.
func (d *Decoder) DecodeOne(body []byte) (record.Record, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return record.Record{}, ErrEmptyBody
	}

	p := d.parsers.Get()
	defer d.parsers.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		return record.Record{}, fmt.Errorf("invalid JSON: %w", err)
	}
	return toRecord(v)
}

// DecodeBatch decodes either a JSON array of objects or a stream of
// whitespace separated objects (NDJSON). Records keep their input order.
func (d *Decoder) DecodeBatch(body []byte) ([]record.Record, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, ErrEmptyBody
	}

	if trimmed[0] == '[' {
		p := d.parsers.Get()
		defer d.parsers.Put(p)

		v, err := p.ParseBytes(trimmed)
		if err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		items, _ := v.Array()
		recs := make([]record.Record, 0, len(items))
		for i, item := range items {
			rec, err := toRecord(item)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			recs = append(recs, rec)
		}
		return recs, nil
	}

	var sc fastjson.Scanner
	sc.InitBytes(trimmed)

	var recs []record.Record
	for sc.Next() {
		// Scanner values are only valid until the next call
		rec, err := toRecord(sc.Value())
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(recs), err)
		}
		recs = append(recs, rec)
	}
	if err := sc.Error(); err != nil {
		return nil, fmt.Errorf("record %d: invalid JSON: %w", len(recs), err)
	}
	return recs, nil
}

func toRecord(v *fastjson.Value) (record.Record, error) {
	obj, err := v.Object()
	if err != nil {
		return record.Record{}, fmt.Errorf("%w, got %s", ErrNotObject, v.Type())
	}
	return record.FromFields(objectToMap(obj)), nil
}

func objectToMap(obj *fastjson.Object) record.Fields {
	out := make(record.Fields, obj.Len())
	obj.Visit(func(key []byte, v *fastjson.Value) {
		out[string(key)] = toInterface(v)
	})
	return out
}

// toInterface converts a parsed value into the types encoding/json would
// produce, copying strings out of the parser's buffer.
func toInterface(v *fastjson.Value) interface{} {
	switch v.Type() {
	case fastjson.TypeObject:
		obj, _ := v.Object()
		return map[string]interface{}(objectToMap(obj))
	case fastjson.TypeArray:
		items, _ := v.Array()
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = toInterface(item)
		}
		return out
	case fastjson.TypeString:
		b, _ := v.StringBytes()
		return string(b)
	case fastjson.TypeNumber:
		f, _ := v.Float64()
		return f
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	default:
		return nil
	}
}
