// internal/enricher/enricher.go

package enricher

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/orgoj/crogger/internal/config"
	"github.com/orgoj/crogger/internal/iputil"
	"github.com/orgoj/crogger/pkg/record"
)

// ClientIPField carries the resolved address of the client that sent a
// record to the relay.
const ClientIPField = "clientIp"

// removeValue as a static add_fields value deletes the field.
const removeValue = "false"

// Enricher completes records received by the relay with request context.
type Enricher struct {
	trustedProxies []*net.IPNet
	clientIPHeader string
	addFields      []config.AddFieldSpec
	newID          func() string
}

// New creates an Enricher from the server section of cfg.
func New(cfg *config.Config) (*Enricher, error) {
	proxies, err := iputil.ParseCIDRs(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	return &Enricher{
		trustedProxies: proxies,
		clientIPHeader: cfg.Server.ClientIPHeader,
		addFields:      cfg.Server.AddFields,
		newID:          uuid.NewString,
	}, nil
}

// ClientIP resolves the client address of r.
func (e *Enricher) ClientIP(r *http.Request) string {
	return iputil.GetClientIP(r, e.trustedProxies, e.clientIPHeader)
}

// Enrich stamps the resolved client IP, fills the user agent and request ID
// when the sender did not provide them, and then applies the configured
// add_fields, which always win. The input record is not modified.
func (e *Enricher) Enrich(rec record.Record, r *http.Request) (record.Record, error) {
	body := rec.Map()
	out := rec.Map()

	// SECURITY: the sender cannot choose its own client IP
	if r != nil {
		out[ClientIPField] = e.ClientIP(r)
	}
	if rec.UserAgent == "" && r != nil {
		if ua := r.UserAgent(); ua != "" {
			out[record.KeyUserAgent] = ua
		}
	}
	if rec.RequestID == "" {
		out[record.KeyRequestID] = e.newID()
	}

	for _, add := range e.addFields {
		if err := applyAddField(add, out, r, body); err != nil {
			return record.Record{}, err
		}
	}

	return record.FromFields(out), nil
}

// applyAddField applies a single AddFieldSpec to fields.
func applyAddField(add config.AddFieldSpec, fields record.Fields, r *http.Request, body record.Fields) error {
	var value interface{}
	var found bool

	switch add.Source {
	case "static":
		if add.Value == removeValue {
			delete(fields, add.Name)
			return nil
		}
		value, found = add.Value, true
	case "header":
		if r != nil {
			value = r.Header.Get(add.Value)
			found = value != ""
		}
	case "query":
		if r != nil {
			value = r.URL.Query().Get(add.Value)
			found = value != ""
		}
	case "body":
		value, found = getValueFromMap(body, add.Value)
	default:
		return fmt.Errorf("add field '%s': unknown source type: %s", add.Name, add.Source)
	}

	if found {
		fields[add.Name] = value
	}
	return nil
}

// getValueFromMap retrieves a value from a nested map using dot notation
func getValueFromMap(data map[string]interface{}, key string) (interface{}, bool) {
	var current interface{} = data

	for _, part := range strings.Split(key, ".") {
		var m map[string]interface{}
		switch c := current.(type) {
		case map[string]interface{}:
			m = c
		case record.Fields:
			m = c
		default:
			return nil, false
		}

		value, exists := m[part]
		if !exists {
			return nil, false
		}
		current = value
	}

	return current, true
}
