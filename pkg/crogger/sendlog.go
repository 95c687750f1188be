package crogger

import (
	"context"

	"github.com/orgoj/crogger/internal/logger"
	"github.com/orgoj/crogger/pkg/record"
)

// sendLogEndpoint overrides the ingest endpoint used by SendLog.
var sendLogEndpoint string

// SendLog ships one record to dataset with a Logger built for this call
// alone: default HTTP client, no default fields, no transform. Errors are
// written to the diagnostic log.
func SendLog(ctx context.Context, token, dataset string, rec record.Record) {
	l, err := New(Config{Token: token, Dataset: dataset, Endpoint: sendLogEndpoint})
	if err != nil {
		logger.GetAppLogger().Error("[crogger] log delivery failed: %v", err)
		return
	}
	defer l.Close()

	l.Log(ctx, rec)
}
