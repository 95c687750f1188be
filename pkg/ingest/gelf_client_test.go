package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"gopkg.in/Graylog2/go-gelf.v2/gelf"

	"github.com/orgoj/crogger/pkg/record"
)

// mockGelfWriter is a mock gelf.Writer for testing
type mockGelfWriter struct {
	messages    []*gelf.Message
	closeCalled bool
	failAfter   int // WriteMessage fails once this many messages were written; 0 disables
}

func (m *mockGelfWriter) WriteMessage(msg *gelf.Message) error {
	if m.failAfter > 0 && len(m.messages) >= m.failAfter {
		return errors.New("connection refused")
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockGelfWriter) Write(p []byte) (n int, err error) {
	return len(p), nil
}

func (m *mockGelfWriter) Close() error {
	m.closeCalled = true
	return nil
}

func TestGelfClient_Name(t *testing.T) {
	client := &GelfClient{name: "test-gelf"}

	if client.Name() != "test-gelf" {
		t.Errorf("Expected name to be 'test-gelf', got '%s'", client.Name())
	}
}

func TestNewGelfClient_ValidationErrors(t *testing.T) {
	if _, err := NewGelfClient(GelfConfig{Name: "test-gelf", Port: 12201}); err == nil {
		t.Error("Expected error for missing host, got nil")
	}

	if _, err := NewGelfClient(GelfConfig{Name: "test-gelf", Host: "localhost"}); err == nil {
		t.Error("Expected error for invalid port, got nil")
	}
}

func TestGelfCompression(t *testing.T) {
	origNewUDPWriter := gelfUDPWriterFactory
	origNewTCPWriter := gelfTCPWriterFactory
	origSetUDPCompression := setUDPCompression

	defer func() {
		gelfUDPWriterFactory = origNewUDPWriter
		gelfTCPWriterFactory = origNewTCPWriter
		setUDPCompression = origSetUDPCompression
	}()

	var capturedCompressionType gelf.CompressType
	setUDPCompression = func(writer *gelf.UDPWriter, compType gelf.CompressType) {
		capturedCompressionType = compType
	}
	gelfUDPWriterFactory = func(addr string) (*gelf.UDPWriter, error) {
		return &gelf.UDPWriter{}, nil
	}
	gelfTCPWriterFactory = func(addr string) (*gelf.TCPWriter, error) {
		return &gelf.TCPWriter{}, nil
	}

	tests := []struct {
		name           string
		compressionCfg string
		expectedType   gelf.CompressType
		protocol       string
	}{
		{"Gzip compression", "gzip", gelf.CompressGzip, "udp"},
		{"Zlib compression", "zlib", gelf.CompressZlib, "udp"},
		{"No compression", "none", gelf.CompressNone, "udp"},
		{"Default compression (empty)", "", gelf.CompressNone, "udp"},
		{"TCP protocol (compression not used)", "gzip", 99, "tcp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capturedCompressionType = 99

			_, err := NewGelfClient(GelfConfig{
				Name:            "test-gelf",
				Host:            "localhost",
				Port:            12201,
				Protocol:        tt.protocol,
				CompressionType: tt.compressionCfg,
			})
			if err != nil {
				t.Fatalf("Failed to create GELF client: %v", err)
			}

			if capturedCompressionType != tt.expectedType {
				t.Errorf("Expected compression type %v, got %v", tt.expectedType, capturedCompressionType)
			}
		})
	}
}

func TestGelfClient_Ingest(t *testing.T) {
	writer := &mockGelfWriter{}
	client := &GelfClient{name: "g", writer: writer, hostName: "box-1"}
	ts := time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)

	records := []record.Fields{
		{"level": "error", "message": "db down", "timestamp": ts, "stack": "at conn.go:12", "statusCode": 503, "_raw": "x"},
		{"level": "success", "message": "recovered", "meta": map[string]interface{}{"tries": 3}},
	}

	if err := client.Ingest(context.Background(), "prod-logs", records, Options{}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if len(writer.messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(writer.messages))
	}

	first := writer.messages[0]
	if first.Short != "db down" || first.Level != 3 || first.Host != "box-1" {
		t.Errorf("Unexpected first message: %+v", first)
	}
	if first.Full != "at conn.go:12" {
		t.Errorf("Expected stack as full message, got %q", first.Full)
	}
	if first.TimeUnix != float64(ts.UnixNano())/1e9 {
		t.Errorf("Unexpected TimeUnix %v", first.TimeUnix)
	}
	if first.Extra["_dataset"] != "prod-logs" {
		t.Errorf("Expected _dataset extra, got %v", first.Extra["_dataset"])
	}
	if first.Extra["_statusCode"] != 503 {
		t.Errorf("Expected _statusCode extra 503, got %v", first.Extra["_statusCode"])
	}
	if first.Extra["_raw"] != "x" {
		t.Errorf("Expected underscore key kept as-is, got %v", first.Extra)
	}

	second := writer.messages[1]
	if second.Level != 5 {
		t.Errorf("Expected success to map to notice (5), got %d", second.Level)
	}
	if second.Extra["_meta"] != "map[tries:3]" {
		t.Errorf("Expected complex value stringified, got %v", second.Extra["_meta"])
	}
}

func TestGelfClient_IngestStopsAtFirstFailure(t *testing.T) {
	writer := &mockGelfWriter{failAfter: 1}
	client := &GelfClient{name: "g", writer: writer}

	err := client.Ingest(context.Background(), "d", []record.Fields{{"message": "a"}, {"message": "b"}, {"message": "c"}}, Options{})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if len(writer.messages) != 1 {
		t.Errorf("Expected 1 delivered message, got %d", len(writer.messages))
	}
}

func TestGetLevel(t *testing.T) {
	tests := []struct {
		name     string
		rec      record.Fields
		expected int32
	}{
		{"No level", record.Fields{}, 6},
		{"Trace", record.Fields{"level": "trace"}, 7},
		{"Debug", record.Fields{"level": "debug"}, 7},
		{"Info", record.Fields{"level": "info"}, 6},
		{"Warn", record.Fields{"level": "warn"}, 4},
		{"Error", record.Fields{"level": "error"}, 3},
		{"Fatal", record.Fields{"level": "fatal"}, 2},
		{"Typed level", record.Fields{"level": record.LevelWarn}, 4},
		{"Unknown string level", record.Fields{"level": "verbose"}, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if level := getLevel(tt.rec); level != tt.expected {
				t.Errorf("getLevel() = %v, want %v", level, tt.expected)
			}
		})
	}
}

func TestGelfClient_Close(t *testing.T) {
	writer := &mockGelfWriter{}
	client := &GelfClient{writer: writer}

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !writer.closeCalled {
		t.Error("Expected writer to be closed")
	}
}
