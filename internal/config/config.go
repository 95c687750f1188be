package config

import (
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/orgoj/crogger/pkg/ingest"
	"github.com/orgoj/crogger/pkg/record"
)

// Destination types
const (
	DestinationHTTP          = "http"
	DestinationGelf          = "gelf"
	DestinationFile          = "file"
	DestinationElasticsearch = "elasticsearch"
)

// Default values applied by LoadConfig before unmarshalling.
const (
	DefaultAppLogLevel = "WARN"
	DefaultHost        = "0.0.0.0"
	DefaultPort        = 8080
	DefaultMode        = "release"
	DefaultMaxBodySize = 1 << 20 // 1 MiB
)

// AddFieldSpec defines how the relay adds a field to incoming records.
type AddFieldSpec struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"` // static, header, query, body
	Value  string `yaml:"value"`  // Static value or key/name for header/query/body
}

// LogRotation defines parameters for log file rotation.
type LogRotation struct {
	MaxSize    string `yaml:"max_size,omitempty"`    // e.g., "100MB", "50k"
	MaxAge     string `yaml:"max_age,omitempty"`     // e.g., "7d", "48h"
	MaxBackups int    `yaml:"max_backups,omitempty"` // Still int
	Compress   bool   `yaml:"compress,omitempty"`
}

// IngestConfig holds the target dataset and what is applied to every record.
type IngestConfig struct {
	Token    string         `yaml:"token" validate:"required"`
	Dataset  string         `yaml:"dataset" validate:"required"`
	Endpoint string         `yaml:"endpoint,omitempty" validate:"omitempty,url"`
	Timeout  string         `yaml:"timeout,omitempty"` // e.g. "10s"
	Options  ingest.Options `yaml:"options,omitempty"`

	DefaultFields map[string]interface{} `yaml:"default_fields,omitempty"`
	Redact        []string               `yaml:"redact,omitempty"` // glob patterns of field names
}

// Config represents the application configuration
type Config struct {
	AppLog struct {
		Level string `yaml:"level" validate:"omitempty,oneof=TRACE DEBUG INFO WARN ERROR FATAL trace debug info warn error fatal"`
	} `yaml:"app_log"`

	Ingest IngestConfig `yaml:"ingest"`

	Server struct {
		Host           string         `yaml:"host"`
		Port           int            `yaml:"port"`
		Mode           string         `yaml:"mode"` // release or debug
		MaxBodySize    int64          `yaml:"max_body_size"`
		TrustedProxies []string       `yaml:"trusted_proxies"`
		ClientIPHeader string         `yaml:"client_ip_header"`
		AddFields      []AddFieldSpec `yaml:"add_fields"`
		Token          struct {
			Secret     string `yaml:"secret"`
			Expiration string `yaml:"expiration"` // e.g. "10m", "1h"
		} `yaml:"token"`
	} `yaml:"server"`

	LogDestinations []LogDestination `yaml:"log_destinations" validate:"dive"`
	Rules           []Rule           `yaml:"rules"`
}

// LogDestination represents an ingestion backend
type LogDestination struct {
	Name    string `yaml:"name" validate:"required"`
	Type    string `yaml:"type" validate:"required"` // http, gelf, file, elasticsearch
	Enabled bool   `yaml:"enabled"`

	// HTTP specific
	Endpoint    string `yaml:"endpoint,omitempty"`    // Optional, defaults to ingest.endpoint
	Compression string `yaml:"compression,omitempty"` // none, gzip, zstd

	// File specific
	Path     string      `yaml:"path,omitempty"`   // Mandatory for type: file
	Format   string      `yaml:"format,omitempty"` // json (default) or text
	Rotation LogRotation `yaml:"rotation,omitempty"`

	// GELF specific
	Host            string `yaml:"host,omitempty"`             // Mandatory for type: gelf
	Port            int    `yaml:"port,omitempty"`             // Mandatory for type: gelf
	Protocol        string `yaml:"protocol,omitempty"`         // udp (default) or tcp
	CompressionType string `yaml:"compression_type,omitempty"` // gzip, zlib, none (default)

	// Elasticsearch specific
	Addresses []string `yaml:"addresses,omitempty" validate:"omitempty,dive,url"`
	Username  string   `yaml:"username,omitempty"`
	Password  string   `yaml:"password,omitempty"`
	APIKey    string   `yaml:"api_key,omitempty"`
}

// RuleCondition specifies criteria for matching records. Empty fields
// match everything.
type RuleCondition struct {
	Levels     []string               `yaml:"levels,omitempty"`
	Categories []string               `yaml:"categories,omitempty"`
	Paths      []string               `yaml:"paths,omitempty"`       // glob patterns
	UserAgents []string               `yaml:"user_agents,omitempty"` // glob patterns
	IPs        []string               `yaml:"ips,omitempty"`         // matched against the clientIp field
	Fields     map[string]interface{} `yaml:"fields,omitempty"`      // value, or true/false for present/absent
}

// Rule adds fields to or drops matching records.
type Rule struct {
	Condition RuleCondition          `yaml:"condition"`
	Enabled   bool                   `yaml:"enabled"`
	Continue  bool                   `yaml:"continue,omitempty"` // Default: false
	Drop      bool                   `yaml:"drop,omitempty"`
	AddFields map[string]interface{} `yaml:"add_fields,omitempty"`
}

// LoadConfig loads and validates the configuration from a file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	var cfg Config
	cfg.AppLog.Level = DefaultAppLogLevel
	cfg.Server.Host = DefaultHost
	cfg.Server.Port = DefaultPort
	cfg.Server.Mode = DefaultMode
	cfg.Server.MaxBodySize = DefaultMaxBodySize

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file '%s': %w", path, err)
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// IngestTimeout returns the parsed ingest.timeout, or the client default.
func (c *Config) IngestTimeout() time.Duration {
	if c.Ingest.Timeout == "" {
		return ingest.DefaultTimeout
	}
	d, err := ParseDuration(c.Ingest.Timeout)
	if err != nil {
		return ingest.DefaultTimeout
	}
	return d
}

// validateConfig performs semantic validation of the configuration
func validateConfig(cfg *Config) error {
	if cfg.Ingest.Endpoint != "" {
		if _, err := url.ParseRequestURI(cfg.Ingest.Endpoint); err != nil {
			return fmt.Errorf("invalid ingest.endpoint: %w", err)
		}
	}
	if cfg.Ingest.Timeout != "" {
		if _, err := ParseDuration(cfg.Ingest.Timeout); err != nil {
			return fmt.Errorf("invalid ingest.timeout: %w", err)
		}
	}
	if len(cfg.Ingest.Options.CSVDelimiter) > 1 {
		return fmt.Errorf("invalid ingest.options.csv_delimiter '%s', must be a single character", cfg.Ingest.Options.CSVDelimiter)
	}
	for i, pattern := range cfg.Ingest.Redact {
		if strings.TrimSpace(pattern) == "" {
			return fmt.Errorf("ingest.redact[%d]: pattern cannot be empty", i)
		}
	}

	// Server validation
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", cfg.Server.Port)
	}
	if cfg.Server.Mode != "release" && cfg.Server.Mode != "debug" {
		return fmt.Errorf("invalid server.mode: '%s', must be 'release' or 'debug'", cfg.Server.Mode)
	}
	if cfg.Server.MaxBodySize <= 0 {
		return errors.New("server.max_body_size must be positive")
	}
	for i, proxy := range cfg.Server.TrustedProxies {
		if !isIPOrCIDR(proxy) {
			return fmt.Errorf("server.trusted_proxies[%d]: invalid IP/CIDR '%s'", i, proxy)
		}
	}
	if cfg.Server.Token.Secret != "" {
		if _, err := ParseDuration(cfg.Server.Token.Expiration); err != nil {
			return fmt.Errorf("invalid server.token.expiration: %w", err)
		}
	}
	if err := validateAddFieldSpecs(cfg.Server.AddFields, "server.add_fields"); err != nil {
		return err
	}

	// Log Destinations validation
	destinationNames := make(map[string]bool)
	for i, dest := range cfg.LogDestinations {
		if dest.Name == "" {
			return fmt.Errorf("log_destinations[%d]: name is required", i)
		}
		if destinationNames[dest.Name] {
			return fmt.Errorf("log_destinations: duplicate name '%s' found", dest.Name)
		}
		destinationNames[dest.Name] = true

		switch dest.Type {
		case DestinationHTTP:
			if dest.Endpoint != "" {
				if _, err := url.ParseRequestURI(dest.Endpoint); err != nil {
					return fmt.Errorf("log_destinations[%s]: invalid endpoint: %w", dest.Name, err)
				}
			}
			switch dest.Compression {
			case "", ingest.CompressionNone, ingest.CompressionGzip, ingest.CompressionZstd:
			default:
				return fmt.Errorf("log_destinations[%s]: invalid compression '%s', must be 'none', 'gzip' or 'zstd' for type 'http'", dest.Name, dest.Compression)
			}
			if dest.Compression == "" {
				cfg.LogDestinations[i].Compression = ingest.CompressionNone
			}
		case DestinationFile:
			if dest.Path == "" {
				return fmt.Errorf("log_destinations[%s]: path is required for type 'file'", dest.Name)
			}
			if dest.Format == "" {
				cfg.LogDestinations[i].Format = "json"
			} else if dest.Format != "json" && dest.Format != "text" {
				return fmt.Errorf("log_destinations[%s]: invalid format '%s', must be 'json' or 'text' for type 'file'", dest.Name, dest.Format)
			}
			if dest.Rotation.MaxSize != "" {
				if _, err := ParseSize(dest.Rotation.MaxSize); err != nil {
					return fmt.Errorf("log_destinations[%s]: invalid rotation.max_size: %w", dest.Name, err)
				}
			}
			if dest.Rotation.MaxAge != "" {
				if _, err := ParseDuration(dest.Rotation.MaxAge); err != nil {
					return fmt.Errorf("log_destinations[%s]: invalid rotation.max_age: %w", dest.Name, err)
				}
			}
			if dest.Rotation.MaxBackups < 0 {
				return fmt.Errorf("log_destinations[%s]: rotation.max_backups cannot be negative", dest.Name)
			}
		case DestinationGelf:
			if dest.Host == "" {
				return fmt.Errorf("log_destinations[%s]: host is required for type 'gelf'", dest.Name)
			}
			if dest.Port <= 0 || dest.Port > 65535 {
				return fmt.Errorf("log_destinations[%s]: invalid port %d for type 'gelf'", dest.Name, dest.Port)
			}
			if dest.Protocol != "" && dest.Protocol != "udp" && dest.Protocol != "tcp" {
				return fmt.Errorf("log_destinations[%s]: invalid protocol '%s', must be 'udp' or 'tcp' for type 'gelf'", dest.Name, dest.Protocol)
			}
			if dest.Protocol == "" {
				cfg.LogDestinations[i].Protocol = "udp"
			}
			if dest.CompressionType != "" && dest.CompressionType != "gzip" && dest.CompressionType != "zlib" && dest.CompressionType != "none" {
				return fmt.Errorf("log_destinations[%s]: invalid compression_type '%s', must be 'gzip', 'zlib', or 'none' for type 'gelf'", dest.Name, dest.CompressionType)
			}
			if dest.CompressionType == "" {
				cfg.LogDestinations[i].CompressionType = "none"
			}
		case DestinationElasticsearch:
			if len(dest.Addresses) == 0 {
				return fmt.Errorf("log_destinations[%s]: addresses are required for type 'elasticsearch'", dest.Name)
			}
			if dest.APIKey != "" && dest.Username != "" {
				return fmt.Errorf("log_destinations[%s]: api_key and username are mutually exclusive", dest.Name)
			}
		default:
			return fmt.Errorf("log_destinations[%s]: unknown type '%s'", dest.Name, dest.Type)
		}
	}

	// Rules validation
	for i, rule := range cfg.Rules {
		rulePath := fmt.Sprintf("rules[%d]", i)
		for _, lvl := range rule.Condition.Levels {
			if _, err := record.ParseLevel(lvl); err != nil {
				return fmt.Errorf("%s.condition.levels: %w", rulePath, err)
			}
		}
		for _, ip := range rule.Condition.IPs {
			if !isIPOrCIDR(ip) {
				return fmt.Errorf("%s.condition.ips: invalid IP/CIDR '%s'", rulePath, ip)
			}
		}
		if rule.Drop && len(rule.AddFields) > 0 {
			return fmt.Errorf("%s: add_fields has no effect on a drop rule", rulePath)
		}
		if rule.Drop && rule.Continue {
			return fmt.Errorf("%s: a drop rule cannot continue", rulePath)
		}
	}

	return nil
}

// validateAddFieldSpecs validates a slice of AddFieldSpec
func validateAddFieldSpecs(specs []AddFieldSpec, path string) error {
	validSources := map[string]bool{"static": true, "header": true, "query": true, "body": true}
	for j, spec := range specs {
		specPath := fmt.Sprintf("%s[%d]", path, j)
		if spec.Name == "" {
			return fmt.Errorf("%s: name is required", specPath)
		}
		if !validSources[spec.Source] {
			return fmt.Errorf("%s: invalid source '%s', must be one of static, header, query, body", specPath, spec.Source)
		}
		if spec.Value == "" {
			return fmt.Errorf("%s: value is required", specPath)
		}
	}
	return nil
}

func isIPOrCIDR(s string) bool {
	if net.ParseIP(s) != nil {
		return true
	}
	_, _, err := net.ParseCIDR(s)
	return err == nil
}

// ValidateConfig uses go-playground/validator for struct-level validation.
// It complements the semantic validation in validateConfig.
func ValidateConfig(cfg *Config) error {
	validate := validator.New()

	err := validate.Struct(cfg)
	if err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return err
		}
		messages := make([]string, 0, len(validationErrors))
		for _, fe := range validationErrors {
			messages = append(messages, fmt.Sprintf("Field validation for '%s' failed on the '%s' tag", fe.Namespace(), fe.Tag()))
		}
		return errors.New(strings.Join(messages, "; "))
	}

	return validateConfig(cfg)
}

// ParseDuration parses a duration string (e.g., "10m", "1h30m", "7d").
// Supports standard time.ParseDuration units plus 'd' for days.
// Returns an error if the format is invalid or the duration is non-positive.
func ParseDuration(durationStr string) (time.Duration, error) {
	durationStr = strings.TrimSpace(durationStr)
	if durationStr == "" {
		return 0, errors.New("duration string cannot be empty")
	}

	// Handle 'd' suffix manually
	if strings.HasSuffix(strings.ToLower(durationStr), "d") {
		numStr := strings.TrimSuffix(strings.ToLower(durationStr), "d")
		days, err := strconv.ParseInt(numStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number format for days in '%s': %w", durationStr, err)
		}
		if days <= 0 {
			return 0, fmt.Errorf("duration must be positive: '%s'", durationStr)
		}
		d := time.Duration(days) * 24 * time.Hour
		if d <= 0 {
			return 0, fmt.Errorf("duration %dd results in overflow", days)
		}
		return d, nil
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return 0, fmt.Errorf("invalid duration format '%s': %w", durationStr, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive: '%s'", durationStr)
	}
	return d, nil
}

// ParseSize parses a size string (e.g., "10MB", "5k", "1G") into bytes.
// Supports K, M, G suffixes (case-insensitive), optionally followed by B.
func ParseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(strings.ToUpper(sizeStr))
	if sizeStr == "" {
		return 0, errors.New("size string cannot be empty")
	}

	units := []struct {
		suffix     string
		multiplier int64
	}{
		{"KB", 1 << 10}, {"K", 1 << 10},
		{"MB", 1 << 20}, {"M", 1 << 20},
		{"GB", 1 << 30}, {"G", 1 << 30},
	}

	var multiplier int64 = 1
	numStr := sizeStr
	suffix := ""
	for _, u := range units {
		if strings.HasSuffix(sizeStr, u.suffix) {
			multiplier = u.multiplier
			suffix = u.suffix
			numStr = strings.TrimSpace(strings.TrimSuffix(sizeStr, u.suffix))
			break
		}
	}

	// big.Int catches invalid formats, negatives and overflow in one place
	numBig := new(big.Int)
	if _, ok := numBig.SetString(numStr, 10); !ok {
		return 0, fmt.Errorf("invalid number format in size string '%s'", sizeStr)
	}
	if numBig.Sign() < 0 {
		return 0, fmt.Errorf("size cannot be negative: %s", numBig.String())
	}

	resultBig := new(big.Int).Mul(numBig, big.NewInt(multiplier))
	if !resultBig.IsInt64() {
		return 0, fmt.Errorf("size value %s%s results in overflow (exceeds max int64)", numBig.String(), suffix)
	}
	return resultBig.Int64(), nil
}
