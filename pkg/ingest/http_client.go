// pkg/ingest/http_client.go

package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/valyala/fasthttp"

	"github.com/orgoj/crogger/pkg/record"
)

// DefaultEndpoint is the Axiom cloud API.
const DefaultEndpoint = "https://api.axiom.co"

// DefaultTimeout bounds a single ingest request when the context has no deadline.
const DefaultTimeout = 10 * time.Second

// Supported request body encodings
const (
	CompressionNone = "none"
	CompressionGzip = "gzip"
	CompressionZstd = "zstd"
)

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	Name        string
	Endpoint    string
	Token       string
	Compression string
	Timeout     time.Duration
	UserAgent   string
}

// HTTPClient ships batches to an Axiom-compatible ingest API:
// POST {endpoint}/v1/datasets/{dataset}/ingest with a JSON array body.
type HTTPClient struct {
	name        string
	endpoint    string
	token       string
	compression string
	timeout     time.Duration
	userAgent   string
	client      *fasthttp.Client
}

// ingestStatus is the response body of the ingest API.
type ingestStatus struct {
	Ingested int `json:"ingested"`
	Failed   int `json:"failed"`
	Failures []struct {
		Timestamp string `json:"timestamp"`
		Error     string `json:"error"`
	} `json:"failures"`
}

// NewHTTPClient creates a new HTTP ingest client.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("http ingest client requires a token")
	}

	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", cfg.Endpoint, err)
	}

	compression := cfg.Compression
	switch compression {
	case "":
		compression = CompressionNone
	case CompressionNone, CompressionGzip, CompressionZstd:
	default:
		return nil, fmt.Errorf("invalid compression %q, must be 'none', 'gzip' or 'zstd'", cfg.Compression)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	name := cfg.Name
	if name == "" {
		name = "http"
	}

	return &HTTPClient{
		name:        name,
		endpoint:    endpoint,
		token:       cfg.Token,
		compression: compression,
		timeout:     timeout,
		userAgent:   cfg.UserAgent,
		client: &fasthttp.Client{
			MaxConnsPerHost:     10,
			MaxIdleConnDuration: 10 * time.Second,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
		},
	}, nil
}

// Ingest sends the whole batch in one request. There is no retry.
func (c *HTTPClient) Ingest(ctx context.Context, dataset string, records []record.Fields, opts Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal batch to JSON: %w", err)
	}
	body, err = c.encode(body)
	if err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.ingestURL(dataset, opts))
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if c.compression != CompressionNone {
		req.Header.Set("Content-Encoding", c.compression)
	}
	if c.userAgent != "" {
		req.Header.SetUserAgent(c.userAgent)
	}
	req.SetBody(body)

	if deadline, ok := ctx.Deadline(); ok {
		err = c.client.DoDeadline(req, resp, deadline)
	} else {
		err = c.client.DoTimeout(req, resp, c.timeout)
	}
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		return fmt.Errorf("server returned status %d: %s", status, bytes.TrimSpace(resp.Body()))
	}

	var result ingestStatus
	if len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), &result); err != nil {
			// A 2xx without a status body still counts as delivered
			return nil
		}
	}
	if result.Failed > 0 {
		reason := "unknown"
		if len(result.Failures) > 0 {
			reason = result.Failures[0].Error
		}
		return fmt.Errorf("%w: %d of %d failed (first: %s)", ErrRejected, result.Failed, result.Failed+result.Ingested, reason)
	}
	return nil
}

func (c *HTTPClient) ingestURL(dataset string, opts Options) string {
	u := c.endpoint + "/v1/datasets/" + url.PathEscape(dataset) + "/ingest"

	q := url.Values{}
	if opts.TimestampField != "" {
		q.Set("timestamp-field", opts.TimestampField)
	}
	if opts.TimestampFormat != "" {
		q.Set("timestamp-format", opts.TimestampFormat)
	}
	if opts.CSVDelimiter != "" {
		q.Set("csv-delimiter", opts.CSVDelimiter)
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *HTTPClient) encode(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	switch c.compression {
	case CompressionGzip:
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(body); err != nil {
			return nil, fmt.Errorf("gzip batch: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("gzip batch: %w", err)
		}
	case CompressionZstd:
		zw, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, fmt.Errorf("zstd batch: %w", err)
		}
		if _, err := zw.Write(body); err != nil {
			zw.Close()
			return nil, fmt.Errorf("zstd batch: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("zstd batch: %w", err)
		}
	default:
		return body, nil
	}
	return buf.Bytes(), nil
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// Name returns the name of the client
func (c *HTTPClient) Name() string {
	return c.name
}

var _ Client = (*HTTPClient)(nil)
