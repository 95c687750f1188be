package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		args    func(t *testing.T) []string
		code    int
		message string
	}{
		{
			name:    "missing argument",
			args:    func(*testing.T) []string { return nil },
			code:    1,
			message: "Config file path is required",
		},
		{
			name: "valid with default destination",
			args: func(t *testing.T) []string {
				return []string{writeFile(t, "ingest:\n  token: t\n  dataset: d\n")}
			},
			code:    0,
			message: "Configuration is valid! dataset=d destinations=1 rules=0",
		},
		{
			name: "load error",
			args: func(t *testing.T) []string {
				return []string{writeFile(t, "ingest:\n  dataset: d\n")}
			},
			code:    1,
			message: "Error: configuration validation failed",
		},
		{
			name: "bad rule glob",
			args: func(t *testing.T) []string {
				return []string{writeFile(t, "ingest:\n  token: t\n  dataset: d\nrules:\n  - enabled: true\n    condition:\n      paths: [\"/api/[x\"]\n")}
			},
			code:    1,
			message: "Validation error: rules",
		},
		{
			name: "bad redact glob",
			args: func(t *testing.T) []string {
				return []string{writeFile(t, "ingest:\n  token: t\n  dataset: d\n  redact: [\"[a\"]\n")}
			},
			code:    1,
			message: "Validation error: ingest.redact",
		},
		{
			name: "all destinations disabled",
			args: func(t *testing.T) []string {
				return []string{writeFile(t, "ingest:\n  token: t\n  dataset: d\nlog_destinations:\n  - name: f\n    type: file\n    path: /tmp/x.log\n")}
			},
			code:    1,
			message: "at least one log destination must be enabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			code := validate(tt.args(t), &out)
			assert.Equal(t, tt.code, code)
			assert.Contains(t, out.String(), tt.message)
		})
	}
}

func TestValidate_Example(t *testing.T) {
	var out bytes.Buffer
	code := validate([]string{filepath.Join("..", "..", "config", "example.yaml")}, &out)
	assert.Equal(t, 0, code, out.String())
	assert.Contains(t, out.String(), "dataset=")
}
