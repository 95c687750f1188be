// pkg/ingest/file_client.go

package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/orgoj/crogger/pkg/record"
)

// Rotation holds lumberjack rotation limits. All zero disables rotation.
type Rotation struct {
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Compress   bool
}

func (r Rotation) enabled() bool {
	return r.MaxSizeMB > 0 || r.MaxAgeDays > 0 || r.MaxBackups > 0
}

// FileConfig configures a FileClient.
type FileConfig struct {
	Name     string
	Path     string
	Format   string // "json" (default) or "text"
	Rotation Rotation
}

// FileClient appends records to a local file, one line per record.
type FileClient struct {
	mu     sync.Mutex
	writer io.WriteCloser // *os.File or *lumberjack.Logger
	format string
	name   string
}

// NewFileClient creates a new FileClient instance.
func NewFileClient(cfg FileConfig) (*FileClient, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("file client requires a path")
	}
	format := cfg.Format
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "text" {
		return nil, fmt.Errorf("invalid file client format: %s", cfg.Format)
	}

	var writer io.WriteCloser
	if cfg.Rotation.enabled() {
		writer = &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.Rotation.MaxSizeMB,
			MaxBackups: cfg.Rotation.MaxBackups,
			MaxAge:     cfg.Rotation.MaxAgeDays,
			Compress:   cfg.Rotation.Compress,
			LocalTime:  false,
		}
	} else {
		file, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", cfg.Path, err)
		}
		writer = file
	}

	name := cfg.Name
	if name == "" {
		name = "file"
	}

	return &FileClient{
		writer: writer,
		format: format,
		name:   name,
	}, nil
}

// Ingest formats the whole batch first and writes it with a single call,
// so a marshalling failure writes nothing.
func (l *FileClient) Ingest(ctx context.Context, dataset string, records []record.Fields, _ Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf strings.Builder
	for _, rec := range records {
		tagged := withDataset(rec, dataset)
		if l.format == "json" {
			line, err := json.Marshal(tagged)
			if err != nil {
				return fmt.Errorf("failed to marshal record to JSON: %w", err)
			}
			buf.Write(line)
		} else {
			buf.WriteString(formatText(tagged))
		}
		buf.WriteByte('\n')
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := io.WriteString(l.writer, buf.String()); err != nil {
		return fmt.Errorf("failed to write batch: %w", err)
	}
	return nil
}

// formatText renders a record as
// [TIME] LEVEL: message key=value key2=value2 ...
func formatText(rec record.Fields) string {
	var sb strings.Builder

	timestamp := time.Now().UTC()
	if ts, ok := rec[record.KeyTimestamp].(time.Time); ok {
		timestamp = ts.UTC()
	}
	sb.WriteString("[")
	sb.WriteString(timestamp.Format("2006-01-02T15:04:05.000Z"))
	sb.WriteString("] ")

	level := strings.ToUpper(getString(rec, record.KeyLevel, string(record.DefaultLevel)))
	sb.WriteString(level)
	sb.WriteString(": ")
	sb.WriteString(getString(rec, record.KeyMessage, "-"))

	keys := make([]string, 0, len(rec))
	for k := range rec {
		if k == record.KeyTimestamp || k == record.KeyLevel || k == record.KeyMessage {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		sb.WriteString(" ")
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(formatValue(rec[k]))
	}
	return sb.String()
}

// formatValue converts different types to string for text output.
func formatValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		if strings.ContainsAny(v, " \n\t\"") {
			return strconv.Quote(v)
		}
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case nil:
		return "<nil>"
	default:
		jsonBytes, err := json.Marshal(v)
		if err == nil {
			return string(jsonBytes)
		}
		return fmt.Sprintf("%v", v)
	}
}

// Close closes the underlying file writer.
func (l *FileClient) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer != nil {
		return l.writer.Close()
	}
	return nil
}

// Name returns the name of the client.
func (l *FileClient) Name() string {
	return l.name
}

var _ Client = (*FileClient)(nil)
