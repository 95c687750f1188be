package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgoj/crogger/internal/config"
	"github.com/orgoj/crogger/internal/enricher"
	"github.com/orgoj/crogger/internal/intake"
	"github.com/orgoj/crogger/internal/logger"
	"github.com/orgoj/crogger/internal/security"
	"github.com/orgoj/crogger/internal/validation"
	"github.com/orgoj/crogger/pkg/record"
)

type fakeForwarder struct {
	mu      sync.Mutex
	single  []record.Record
	batches [][]record.Record
}

func (f *fakeForwarder) Log(_ context.Context, rec record.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.single = append(f.single, rec)
}

func (f *fakeForwarder) LogBatch(_ context.Context, recs []record.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, recs)
}

func newTestRouter(t *testing.T, mutate func(deps *LogHandlerDependencies)) (*gin.Engine, *fakeForwarder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	enr, err := enricher.New(&config.Config{})
	require.NoError(t, err)

	fwd := &fakeForwarder{}
	deps := LogHandlerDependencies{
		Forwarder:   fwd,
		Enricher:    enr,
		Decoder:     &intake.Decoder{},
		Limits:      validation.DefaultLimits(),
		MaxBodySize: 1024,
		Dataset:     "web",
		AppLogger:   logger.GetAppLogger(),
	}
	if mutate != nil {
		mutate(&deps)
	}

	router := gin.New()
	router.POST("/log", NewLogHandler(deps))
	router.POST("/log/bulk", NewBulkHandler(deps))
	router.GET("/version", VersionHandler)
	return router, fwd
}

func post(router http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.RemoteAddr = "203.0.113.7:5000"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestNewLogHandler_PanicsOnMissingDependencies(t *testing.T) {
	assert.Panics(t, func() { NewLogHandler(LogHandlerDependencies{}) })
	assert.Panics(t, func() { NewBulkHandler(LogHandlerDependencies{Forwarder: &fakeForwarder{}}) })
}

func TestLogHandler_Accepts(t *testing.T) {
	router, fwd := newTestRouter(t, nil)

	w := post(router, "/log", `{"level":"error","message":"checkout\u0000 failed","orderId":"o-1"}`,
		map[string]string{"User-Agent": "shop-frontend/2.1"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"accepted":1}`, w.Body.String())

	require.Len(t, fwd.single, 1)
	rec := fwd.single[0]
	assert.Equal(t, record.LevelError, rec.Level)
	assert.Equal(t, "checkout failed", rec.Message, "control characters are stripped")
	assert.Equal(t, "shop-frontend/2.1", rec.UserAgent)
	assert.NotEmpty(t, rec.RequestID)
	assert.Equal(t, "o-1", rec.Fields["orderId"])
	assert.Equal(t, "203.0.113.7", rec.Fields[enricher.ClientIPField])
}

func TestLogHandler_BadBodies(t *testing.T) {
	router, fwd := newTestRouter(t, nil)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"empty", "", http.StatusBadRequest},
		{"broken json", `{"message":`, http.StatusBadRequest},
		{"array instead of object", `[{"message":"a"}]`, http.StatusBadRequest},
		{"too large", `{"message":"` + strings.Repeat("x", 2048) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(router, "/log", tt.body, nil)
			assert.Equal(t, tt.code, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
	assert.Empty(t, fwd.single)
}

func TestLogHandler_TooDeep(t *testing.T) {
	router, fwd := newTestRouter(t, func(deps *LogHandlerDependencies) {
		deps.Limits.MaxDepth = 2
	})

	w := post(router, "/log", `{"a":{"b":{"c":1}}}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "maximum nesting depth exceeded")
	assert.Empty(t, fwd.single)
}

func TestBulkHandler(t *testing.T) {
	router, fwd := newTestRouter(t, nil)

	w := post(router, "/log/bulk", `[{"message":"a"},{"message":"b"},{"message":"c"}]`, nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"accepted":3}`, w.Body.String())

	w = post(router, "/log/bulk", "{\"message\":\"d\"}\n{\"message\":\"e\"}\n", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"accepted":2}`, w.Body.String())

	w = post(router, "/log/bulk", `[]`, nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"accepted":0}`, w.Body.String())

	require.Len(t, fwd.batches, 2, "an empty batch is not forwarded")
	var messages []string
	for _, batch := range fwd.batches {
		for _, rec := range batch {
			messages = append(messages, rec.Message)
			assert.Equal(t, "203.0.113.7", rec.Fields[enricher.ClientIPField])
		}
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, messages)
}

func TestBulkHandler_OneBadRecordRejectsAll(t *testing.T) {
	router, fwd := newTestRouter(t, nil)

	w := post(router, "/log/bulk", `[{"message":"a"}, "nope"]`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "record 1")
	assert.Empty(t, fwd.batches)
}

func TestHandlers_Token(t *testing.T) {
	router, fwd := newTestRouter(t, func(deps *LogHandlerDependencies) {
		deps.TokenSecret = "s3cret"
	})
	var logs bytes.Buffer
	appLogger := logger.GetAppLogger()
	prev := appLogger.SetOutput(&logs)
	t.Cleanup(func() { appLogger.SetOutput(prev) })

	valid, err := security.GenerateToken("s3cret", "web", time.Hour)
	require.NoError(t, err)
	otherDataset, err := security.GenerateToken("s3cret", "billing", time.Hour)
	require.NoError(t, err)

	w := post(router, "/log", `{"message":"m"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = post(router, "/log/bulk", `[{"message":"m"}]`, map[string]string{TokenHeader: otherDataset})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Empty(t, fwd.single)
	assert.Empty(t, fwd.batches)
	assert.Contains(t, logs.String(), "rejected token from 203.0.113.7")

	w = post(router, "/log", `{"message":"m"}`, map[string]string{TokenHeader: valid})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Len(t, fwd.single, 1)
}

func TestVersionHandler(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version"`)
	assert.Contains(t, w.Body.String(), `"user_agent":"crogger/`)
}
