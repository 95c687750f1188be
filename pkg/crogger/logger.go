package crogger

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/orgoj/crogger/internal/logger"
	"github.com/orgoj/crogger/internal/version"
	"github.com/orgoj/crogger/pkg/ingest"
	"github.com/orgoj/crogger/pkg/record"
)

// ErrorHandler receives every failure of a logging call.
type ErrorHandler func(err error)

// Config configures a Logger. It is copied by New.
type Config struct {
	// Token authenticates against the ingest API. Required.
	Token string
	// Dataset receives every record. Required.
	Dataset string
	// Endpoint overrides ingest.DefaultEndpoint for the default client.
	Endpoint string
	// IngestOptions are handed to the client untouched.
	IngestOptions ingest.Options

	// DefaultFields are merged into every record before caller fields.
	DefaultFields record.Fields
	// Transform, if set, runs on every normalized record.
	Transform Transform
	// OnError, if set, replaces the diagnostic log as the error sink.
	OnError ErrorHandler

	// Client replaces the default HTTP ingest client.
	Client ingest.Client
}

// Logger ships records to one dataset. It is safe for concurrent use.
type Logger struct {
	cfg    Config
	client ingest.Client
	now    func() time.Time
}

// New validates cfg and returns a Logger. Unless cfg.Client is set, an
// HTTP ingest client is built from Token and Endpoint.
func New(cfg Config) (*Logger, error) {
	if cfg.Token == "" {
		return nil, ErrMissingToken
	}
	if cfg.Dataset == "" {
		return nil, ErrMissingDataset
	}

	client := cfg.Client
	if client == nil {
		httpClient, err := ingest.NewHTTPClient(ingest.HTTPConfig{
			Endpoint:  cfg.Endpoint,
			Token:     cfg.Token,
			UserAgent: version.UserAgent(),
		})
		if err != nil {
			return nil, fmt.Errorf("crogger: create ingest client: %w", err)
		}
		client = httpClient
	}

	cfg.DefaultFields = cfg.DefaultFields.Clone()
	cfg.Client = client

	return &Logger{cfg: cfg, client: client, now: time.Now}, nil
}

// Dataset returns the dataset records are shipped to.
func (l *Logger) Dataset() string {
	return l.cfg.Dataset
}

// Close closes the ingest client.
func (l *Logger) Close() error {
	return l.client.Close()
}

// Log normalizes, transforms and ships a single record.
func (l *Logger) Log(ctx context.Context, rec record.Record) {
	res, err := l.prepare(ctx, rec)
	if err != nil {
		l.handleError(err)
		return
	}
	kept, ok := res.Record()
	if !ok {
		return
	}
	l.dispatch(ctx, []record.Fields{kept.Map()})
}

// LogBatch prepares every record concurrently and ships the survivors, in
// input order, with one ingest call. Nothing is shipped if no record
// survives or if any transform fails.
func (l *Logger) LogBatch(ctx context.Context, recs []record.Record) {
	if len(recs) == 0 {
		return
	}

	results := make([]Result, len(recs))
	g, gctx := errgroup.WithContext(ctx)
	for i, rec := range recs {
		i, rec := i, rec
		g.Go(func() error {
			res, err := l.prepare(gctx, rec)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		l.handleError(err)
		return
	}

	batch := make([]record.Fields, 0, len(recs))
	for _, res := range results {
		if kept, ok := res.Record(); ok {
			batch = append(batch, kept.Map())
		}
	}
	if len(batch) == 0 {
		return
	}
	l.dispatch(ctx, batch)
}

func (l *Logger) prepare(ctx context.Context, rec record.Record) (Result, error) {
	normalized := record.Normalize(l.cfg.DefaultFields, rec.Map(), l.now())
	return runTransform(ctx, l.cfg.Transform, normalized)
}

func (l *Logger) dispatch(ctx context.Context, batch []record.Fields) {
	defer func() {
		if r := recover(); r != nil {
			l.handleError(fmt.Errorf("ingest into dataset %q: client panicked: %v", l.cfg.Dataset, r))
		}
	}()

	if err := l.client.Ingest(ctx, l.cfg.Dataset, batch, l.cfg.IngestOptions); err != nil {
		l.handleError(fmt.Errorf("ingest into dataset %q: %w", l.cfg.Dataset, err))
	}
}

func (l *Logger) handleError(err error) {
	if l.cfg.OnError != nil {
		l.cfg.OnError(err)
		return
	}
	logger.GetAppLogger().Error("[crogger] log delivery failed: %v", err)
}

func (l *Logger) logLevel(ctx context.Context, level record.Level, msg string, extras []record.Fields) {
	merged := record.Fields{
		record.KeyLevel:   level,
		record.KeyMessage: msg,
	}
	for _, f := range extras {
		for k, v := range f {
			merged[k] = v
		}
	}
	l.Log(ctx, record.FromFields(merged))
}

// Trace logs msg at trace level.
func (l *Logger) Trace(ctx context.Context, msg string, fields ...record.Fields) {
	l.logLevel(ctx, record.LevelTrace, msg, fields)
}

// Debug logs msg at debug level.
func (l *Logger) Debug(ctx context.Context, msg string, fields ...record.Fields) {
	l.logLevel(ctx, record.LevelDebug, msg, fields)
}

// Info logs msg at info level.
func (l *Logger) Info(ctx context.Context, msg string, fields ...record.Fields) {
	l.logLevel(ctx, record.LevelInfo, msg, fields)
}

// Success logs msg at success level.
func (l *Logger) Success(ctx context.Context, msg string, fields ...record.Fields) {
	l.logLevel(ctx, record.LevelSuccess, msg, fields)
}

// Warn logs msg at warn level.
func (l *Logger) Warn(ctx context.Context, msg string, fields ...record.Fields) {
	l.logLevel(ctx, record.LevelWarn, msg, fields)
}

// Error logs msg at error level.
func (l *Logger) Error(ctx context.Context, msg string, fields ...record.Fields) {
	l.logLevel(ctx, record.LevelError, msg, fields)
}

// Fatal logs msg at fatal level. It does not exit the process.
func (l *Logger) Fatal(ctx context.Context, msg string, fields ...record.Fields) {
	l.logLevel(ctx, record.LevelFatal, msg, fields)
}

// Err logs err at error level with its message, stack and type name. These
// three win over the same keys in fields. A nil err is ignored.
func (l *Logger) Err(ctx context.Context, err error, fields ...record.Fields) {
	if err == nil {
		return
	}
	// Drop the frame of Err itself.
	captured := pkgerrors.WithStack(err).(stackTracer).StackTrace()[1:]

	rec, ok := l.errorRecord(err, captured, fields)
	if !ok {
		return
	}
	l.Log(ctx, rec)
}

// errorRecord builds the record logged by Err. A panic from one of err's
// methods is reported to the error sink.
func (l *Logger) errorRecord(err error, captured pkgerrors.StackTrace, fields []record.Fields) (rec record.Record, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			l.handleError(fmt.Errorf("describe %T: %w: %v", err, ErrErrorPanic, r))
			rec, ok = record.Record{}, false
		}
	}()

	merged := record.Fields{record.KeyLevel: record.LevelError}
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}
	merged[record.KeyMessage] = err.Error()
	merged[record.KeyStack] = errorStack(err, captured)
	merged[record.KeyErrorName] = errorName(err)
	return record.FromFields(merged), true
}
