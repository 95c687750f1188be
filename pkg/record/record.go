// pkg/record/record.go

package record

import (
	"fmt"
	"strings"
	"time"
)

// Level is the severity of a log record.
type Level string

const (
	LevelTrace   Level = "trace"
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarn    Level = "warn"
	LevelError   Level = "error"
	LevelFatal   Level = "fatal"
)

// DefaultLevel is applied when neither the caller nor the defaults set a level.
const DefaultLevel = LevelInfo

var knownLevels = map[string]Level{
	"trace":   LevelTrace,
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"success": LevelSuccess,
	"warn":    LevelWarn,
	"error":   LevelError,
	"fatal":   LevelFatal,
}

// ParseLevel maps a case-insensitive level name to a Level.
func ParseLevel(name string) (Level, error) {
	lvl, ok := knownLevels[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("invalid log level: %s", name)
	}
	return lvl, nil
}

// Wire keys of the recognized fields.
const (
	KeyLevel      = "level"
	KeyMessage    = "message"
	KeyTimestamp  = "timestamp"
	KeyCategory   = "category"
	KeyMethod     = "method"
	KeyStatusCode = "statusCode"
	KeyHost       = "host"
	KeyPath       = "path"
	KeyUserAgent  = "userAgent"
	KeyUserID     = "userId"
	KeySessionID  = "sessionId"
	KeyRequestID  = "requestId"
	KeyDuration   = "duration"

	KeyStack     = "stack"
	KeyErrorName = "errorName"
)

// Fields is an open mapping of field names to values.
type Fields map[string]interface{}

// Clone returns a shallow copy. A nil receiver yields an empty map.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Record is a log entry: the recognized fields as typed members plus an
// extension map for everything else. Zero-valued members are absent.
type Record struct {
	Level      Level
	Message    string
	Timestamp  time.Time
	Category   string
	Method     string
	StatusCode int
	Host       string
	Path       string
	UserAgent  string
	UserID     string
	SessionID  string
	RequestID  string
	Duration   float64 // milliseconds

	// Fields holds caller-defined keys. Keys that collide with a
	// recognized field are overridden by a non-zero typed member in Map,
	// so a zero value for a recognized key is shipped by setting it here.
	Fields Fields
}

// Map returns the wire mapping of the record. Zero members are omitted
// unless Fields carries the key.
func (r Record) Map() Fields {
	out := make(Fields, len(r.Fields)+4)
	for k, v := range r.Fields {
		out[k] = v
	}

	putString(out, KeyLevel, string(r.Level))
	putString(out, KeyMessage, r.Message)
	if !r.Timestamp.IsZero() {
		out[KeyTimestamp] = r.Timestamp
	}
	putString(out, KeyCategory, r.Category)
	putString(out, KeyMethod, r.Method)
	if r.StatusCode != 0 {
		out[KeyStatusCode] = r.StatusCode
	}
	putString(out, KeyHost, r.Host)
	putString(out, KeyPath, r.Path)
	putString(out, KeyUserAgent, r.UserAgent)
	putString(out, KeyUserID, r.UserID)
	putString(out, KeySessionID, r.SessionID)
	putString(out, KeyRequestID, r.RequestID)
	if r.Duration != 0 {
		out[KeyDuration] = r.Duration
	}
	return out
}

func putString(m Fields, key, value string) {
	if value != "" {
		m[key] = value
	}
}

// FromFields lifts a mapping into a Record. Recognized keys holding a value
// of an unexpected type, or a zero value, are also kept in the extension map
// unchanged so that Map reproduces every key of f.
func FromFields(f Fields) Record {
	var r Record
	extra := make(Fields)

	for k, v := range f {
		if !r.assign(k, v) {
			extra[k] = v
		}
	}
	typed := r.Map()
	for k, v := range f {
		if _, ok := typed[k]; !ok {
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		r.Fields = extra
	}
	return r
}

// assign stores v in the typed member for key and reports whether it did.
func (r *Record) assign(key string, v interface{}) bool {
	switch key {
	case KeyLevel:
		switch lv := v.(type) {
		case Level:
			r.Level = lv
			return true
		case string:
			r.Level = Level(lv)
			return true
		}
	case KeyMessage:
		return assignString(&r.Message, v)
	case KeyTimestamp:
		switch tv := v.(type) {
		case time.Time:
			r.Timestamp = tv
			return true
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, tv)
			if err != nil {
				return false
			}
			r.Timestamp = parsed
			return true
		}
	case KeyCategory:
		return assignString(&r.Category, v)
	case KeyMethod:
		return assignString(&r.Method, v)
	case KeyStatusCode:
		switch n := v.(type) {
		case int:
			r.StatusCode = n
			return true
		case int64:
			r.StatusCode = int(n)
			return true
		case float64:
			// JSON numbers decode as float64
			if n == float64(int(n)) {
				r.StatusCode = int(n)
				return true
			}
		}
	case KeyHost:
		return assignString(&r.Host, v)
	case KeyPath:
		return assignString(&r.Path, v)
	case KeyUserAgent:
		return assignString(&r.UserAgent, v)
	case KeyUserID:
		return assignString(&r.UserID, v)
	case KeySessionID:
		return assignString(&r.SessionID, v)
	case KeyRequestID:
		return assignString(&r.RequestID, v)
	case KeyDuration:
		switch n := v.(type) {
		case float64:
			r.Duration = n
			return true
		case int:
			r.Duration = float64(n)
			return true
		case int64:
			r.Duration = float64(n)
			return true
		case time.Duration:
			r.Duration = float64(n) / float64(time.Millisecond)
			return true
		}
	}
	return false
}

func assignString(dst *string, v interface{}) bool {
	s, ok := v.(string)
	if ok {
		*dst = s
	}
	return ok
}
