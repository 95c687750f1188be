package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/orgoj/crogger/pkg/record"
)

const (
	DefaultMaxStringLength = 32 * 1024
	DefaultMaxDepth        = 10
	DefaultMaxKeyLength    = 128
)

// ErrMaxDepthExceeded indicates the nested structure exceeds the maximum allowed depth.
var ErrMaxDepthExceeded = errors.New("maximum nesting depth exceeded")

// Limits bounds what the relay accepts from untrusted senders.
type Limits struct {
	MaxDepth        int
	MaxKeyLength    int
	MaxStringLength int
}

// DefaultLimits returns the limits the relay uses.
func DefaultLimits() Limits {
	return Limits{
		MaxDepth:        DefaultMaxDepth,
		MaxKeyLength:    DefaultMaxKeyLength,
		MaxStringLength: DefaultMaxStringLength,
	}
}

// SanitizeString removes control characters other than newline and tab,
// trims surrounding whitespace and truncates to maxLength bytes without
// splitting a UTF-8 sequence.
func SanitizeString(s string, maxLength int) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || (unicode.IsPrint(r) && r != utf8.RuneError) {
			return r
		}
		return -1
	}, s)
	s = strings.TrimSpace(s)

	if maxLength > 0 && len(s) > maxLength {
		cut := maxLength
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}

// SanitizeRecord sanitizes every key and string value of rec, including
// nested maps and slices. A record nested deeper than l.MaxDepth is rejected.
func SanitizeRecord(rec record.Record, l Limits) (record.Record, error) {
	clean, err := sanitizeMap(rec.Map(), l, 1)
	if err != nil {
		return record.Record{}, err
	}
	return record.FromFields(clean), nil
}

func sanitizeMap(data map[string]interface{}, l Limits, depth int) (map[string]interface{}, error) {
	if depth > l.MaxDepth {
		return nil, ErrMaxDepthExceeded
	}
	if data == nil {
		return nil, nil
	}

	out := make(map[string]interface{}, len(data))
	for key, value := range data {
		cleanKey := SanitizeString(key, l.MaxKeyLength)
		if cleanKey == "" {
			continue
		}

		cleanValue, err := sanitizeValue(value, l, depth)
		if err != nil {
			return nil, fmt.Errorf("field '%s': %w", cleanKey, err)
		}
		out[cleanKey] = cleanValue
	}
	return out, nil
}

func sanitizeSlice(data []interface{}, l Limits, depth int) ([]interface{}, error) {
	if depth > l.MaxDepth {
		return nil, ErrMaxDepthExceeded
	}

	out := make([]interface{}, len(data))
	for i, item := range data {
		cleanItem, err := sanitizeValue(item, l, depth)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		out[i] = cleanItem
	}
	return out, nil
}

func sanitizeValue(value interface{}, l Limits, depth int) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return SanitizeString(v, l.MaxStringLength), nil
	case record.Level:
		return record.Level(SanitizeString(string(v), l.MaxStringLength)), nil
	case record.Fields:
		return sanitizeMap(v, l, depth+1)
	case map[string]interface{}:
		return sanitizeMap(v, l, depth+1)
	case []interface{}:
		return sanitizeSlice(v, l, depth+1)
	default:
		// numbers, booleans, timestamps and nulls pass through
		return v, nil
	}
}
