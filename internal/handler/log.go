// internal/handler/log.go

package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orgoj/crogger/internal/enricher"
	"github.com/orgoj/crogger/internal/intake"
	"github.com/orgoj/crogger/internal/logger"
	"github.com/orgoj/crogger/internal/security"
	"github.com/orgoj/crogger/internal/validation"
	"github.com/orgoj/crogger/pkg/record"
)

// TokenHeader carries the relay token when server.token.secret is set.
const TokenHeader = "X-Crogger-Token"

// Forwarder receives the records accepted by the relay. *crogger.Logger
// satisfies it.
type Forwarder interface {
	Log(ctx context.Context, rec record.Record)
	LogBatch(ctx context.Context, recs []record.Record)
}

// LogHandlerDependencies holds dependencies for the log handlers
type LogHandlerDependencies struct {
	Forwarder   Forwarder
	Enricher    *enricher.Enricher
	Decoder     *intake.Decoder
	Limits      validation.Limits
	MaxBodySize int64
	TokenSecret string
	Dataset     string
	AppLogger   *logger.AppLogger
}

func (deps LogHandlerDependencies) mustValidate() {
	if deps.Forwarder == nil {
		panic("log handler requires a non-nil Forwarder")
	}
	if deps.Enricher == nil {
		panic("log handler requires a non-nil Enricher")
	}
	if deps.Decoder == nil {
		panic("log handler requires a non-nil Decoder")
	}
	if deps.AppLogger == nil {
		panic("log handler requires a non-nil AppLogger")
	}
}

// NewLogHandler creates a Gin handler for POST /log. The body is a single
// JSON object.
func NewLogHandler(deps LogHandlerDependencies) gin.HandlerFunc {
	deps.mustValidate()

	return func(c *gin.Context) {
		body, ok := readBody(c, deps)
		if !ok {
			return
		}

		rec, err := deps.Decoder.DecodeOne(body)
		if err != nil {
			deps.AppLogger.Debug("Log Handler: bad body from %s: %v", deps.Enricher.ClientIP(c.Request), err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		rec, ok = prepareRecord(c, deps, rec)
		if !ok {
			return
		}

		deps.Forwarder.Log(context.WithoutCancel(c.Request.Context()), rec)
		c.JSON(http.StatusAccepted, gin.H{"accepted": 1})
	}
}

// NewBulkHandler creates a Gin handler for POST /log/bulk. The body is a
// JSON array of objects or NDJSON.
func NewBulkHandler(deps LogHandlerDependencies) gin.HandlerFunc {
	deps.mustValidate()

	return func(c *gin.Context) {
		body, ok := readBody(c, deps)
		if !ok {
			return
		}

		recs, err := deps.Decoder.DecodeBatch(body)
		if err != nil {
			deps.AppLogger.Debug("Bulk Handler: bad body from %s: %v", deps.Enricher.ClientIP(c.Request), err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		for i := range recs {
			if recs[i], ok = prepareRecord(c, deps, recs[i]); !ok {
				return
			}
		}

		if len(recs) > 0 {
			deps.Forwarder.LogBatch(context.WithoutCancel(c.Request.Context()), recs)
		}
		c.JSON(http.StatusAccepted, gin.H{"accepted": len(recs)})
	}
}

// readBody authorizes the request and reads its body within the size
// limit. On failure the response is already written.
func readBody(c *gin.Context, deps LogHandlerDependencies) ([]byte, bool) {
	if deps.TokenSecret != "" {
		if err := security.ValidateToken(deps.TokenSecret, deps.Dataset, c.GetHeader(TokenHeader)); err != nil {
			deps.AppLogger.Warn("Log Handler: rejected token from %s: %v", deps.Enricher.ClientIP(c.Request), err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return nil, false
		}
	}

	if deps.MaxBodySize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, deps.MaxBodySize)
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			deps.AppLogger.Warn("Log Handler: body from %s exceeds %d bytes", deps.Enricher.ClientIP(c.Request), tooLarge.Limit)
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return nil, false
	}
	return body, true
}

// prepareRecord sanitizes sender data and then adds request context, so
// relay-added values are never altered by the sanitizer limits.
func prepareRecord(c *gin.Context, deps LogHandlerDependencies, rec record.Record) (record.Record, bool) {
	clean, err := validation.SanitizeRecord(rec, deps.Limits)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return record.Record{}, false
	}

	enriched, err := deps.Enricher.Enrich(clean, c.Request)
	if err != nil {
		deps.AppLogger.Error("Log Handler: enrichment failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return record.Record{}, false
	}
	return enriched, true
}
