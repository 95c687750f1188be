// pkg/ingest/gelf_client.go

package ingest

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/Graylog2/go-gelf.v2/gelf"

	"github.com/orgoj/crogger/pkg/record"
)

// Variables for factories to allow mocking in tests
var gelfUDPWriterFactory = gelf.NewUDPWriter
var gelfTCPWriterFactory = gelf.NewTCPWriter

// Function to set compression, can be mocked in tests
var setUDPCompression = func(writer *gelf.UDPWriter, compType gelf.CompressType) {
	writer.CompressionType = compType
}

// GelfConfig configures a GelfClient.
type GelfConfig struct {
	Name            string
	Host            string
	Port            int
	Protocol        string // udp (default) or tcp
	CompressionType string // gzip, zlib or none (default)
}

// GelfClient ships records to a Graylog input. The dataset becomes the
// _dataset additional field.
type GelfClient struct {
	name     string
	writer   gelf.Writer
	hostName string
}

// NewGelfClient creates a new GELF client
func NewGelfClient(cfg GelfConfig) (*GelfClient, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required for GELF client")
	}
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("valid port is required for GELF client")
	}

	hostName, err := os.Hostname()
	if err != nil {
		hostName = "unknown"
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var writer gelf.Writer
	if cfg.Protocol == "tcp" {
		tcpWriter, err := gelfTCPWriterFactory(addr)
		if err != nil {
			return nil, fmt.Errorf("failed to create GELF TCP writer: %w", err)
		}
		writer = tcpWriter
	} else {
		udpWriter, err := gelfUDPWriterFactory(addr)
		if err != nil {
			return nil, fmt.Errorf("failed to create GELF UDP writer: %w", err)
		}

		switch cfg.CompressionType {
		case "gzip":
			setUDPCompression(udpWriter, gelf.CompressGzip)
		case "zlib":
			setUDPCompression(udpWriter, gelf.CompressZlib)
		default:
			setUDPCompression(udpWriter, gelf.CompressNone)
		}

		writer = udpWriter
	}

	name := cfg.Name
	if name == "" {
		name = "gelf"
	}

	return &GelfClient{
		name:     name,
		writer:   writer,
		hostName: hostName,
	}, nil
}

// Ingest writes one GELF message per record and stops at the first failure.
func (g *GelfClient) Ingest(ctx context.Context, dataset string, records []record.Fields, _ Options) error {
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := g.writer.WriteMessage(g.toMessage(dataset, rec)); err != nil {
			return fmt.Errorf("record %d of %d: %w", i+1, len(records), err)
		}
	}
	return nil
}

func (g *GelfClient) toMessage(dataset string, rec record.Fields) *gelf.Message {
	msg := &gelf.Message{
		Version:  "1.1",
		Host:     g.hostName,
		Short:    getString(rec, record.KeyMessage, "No message"),
		TimeUnix: getTimestamp(rec),
		Level:    getLevel(rec),
		Extra:    map[string]interface{}{datasetField: dataset},
	}

	if stack, ok := rec[record.KeyStack].(string); ok {
		msg.Full = stack
	}

	for k, v := range rec {
		if k == "" || k == record.KeyMessage || k == record.KeyTimestamp || k == record.KeyLevel {
			continue
		}

		// GELF requires additional fields to start with an underscore
		extraKey := k
		if extraKey[0] != '_' {
			extraKey = "_" + extraKey
		}

		switch v := v.(type) {
		case string, float64, float32, int, int32, int64, uint, uint32, uint64:
			msg.Extra[extraKey] = v
		default:
			msg.Extra[extraKey] = fmt.Sprintf("%v", v)
		}
	}
	return msg
}

// Close closes the GELF writer
func (g *GelfClient) Close() error {
	return g.writer.Close()
}

// Name returns the name of the client
func (g *GelfClient) Name() string {
	return g.name
}

func getString(rec record.Fields, key, defaultValue string) string {
	if val, ok := rec[key]; ok {
		if strVal, ok := val.(string); ok {
			return strVal
		}
		return fmt.Sprintf("%v", val)
	}
	return defaultValue
}

func getTimestamp(rec record.Fields) float64 {
	if ts, ok := rec[record.KeyTimestamp].(time.Time); ok {
		return float64(ts.UnixNano()) / 1e9
	}
	return float64(time.Now().UnixNano()) / 1e9
}

// getLevel maps a record level to a syslog severity.
func getLevel(rec record.Fields) int32 {
	var lvl string
	switch v := rec[record.KeyLevel].(type) {
	case string:
		lvl = v
	case record.Level:
		lvl = string(v)
	}

	switch record.Level(lvl) {
	case record.LevelFatal:
		return 2 // critical
	case record.LevelError:
		return 3
	case record.LevelWarn:
		return 4
	case record.LevelSuccess:
		return 5 // notice
	case record.LevelInfo:
		return 6
	case record.LevelDebug, record.LevelTrace:
		return 7
	}
	return 6
}

var _ Client = (*GelfClient)(nil)
