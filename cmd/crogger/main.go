package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/orgoj/crogger/internal/config"
	"github.com/orgoj/crogger/internal/destination"
	"github.com/orgoj/crogger/internal/intake"
	"github.com/orgoj/crogger/internal/logger"
	"github.com/orgoj/crogger/internal/redact"
	"github.com/orgoj/crogger/internal/rules"
	"github.com/orgoj/crogger/internal/security"
	"github.com/orgoj/crogger/internal/server"
	"github.com/orgoj/crogger/internal/version"
	"github.com/orgoj/crogger/pkg/crogger"
	"github.com/orgoj/crogger/pkg/record"
)

const usage = `Usage: crogger [-config path] [-t|-test] [-version] <command> [args]

Commands:
  serve                       run the HTTP relay until SIGINT/SIGTERM
  send [-level L] [-message M] send one record, or NDJSON / a JSON array from stdin
  token [-ttl D]              print a relay token for the configured dataset
`

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("crogger", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() { fmt.Fprint(stderr, usage) }

	configPath := flags.String("config", "config/config.yaml", "Path to the configuration file")
	testConfigShort := flags.Bool("t", false, "Test configuration and exit (nginx style)")
	testConfigLong := flags.Bool("test", false, "Test configuration and exit (nginx style)")
	showVersion := flags.Bool("version", false, "Show version information and exit")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Fprintln(stdout, version.VersionInfo())
		return 0
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "[CRITICAL] Failed to load configuration from '%s': %v\n", *configPath, err)
		return 1
	}

	if *testConfigShort || *testConfigLong {
		fmt.Fprintf(stdout, "Configuration '%s' is valid.\n", *configPath)
		return 0
	}

	appLogger := logger.GetAppLogger()
	if err := appLogger.SetLogLevelFromString(cfg.AppLog.Level); err != nil {
		fmt.Fprintf(stderr, "[WARN] Invalid log level '%s', using default: %v\n", cfg.AppLog.Level, err)
	}

	command, cmdArgs := "serve", []string(nil)
	if flags.NArg() > 0 {
		command, cmdArgs = flags.Arg(0), flags.Args()[1:]
	}

	switch command {
	case "serve":
		return runServe(ctx, cfg, stderr)
	case "send":
		return runSend(ctx, cfg, cmdArgs, stdin, stdout, stderr)
	case "token":
		return runToken(cfg, cmdArgs, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", command, usage)
		return 2
	}
}

// newLogger wires the destinations, rules and redaction into a Logger.
// The returned Logger owns the destination clients.
func newLogger(cfg *config.Config, onError crogger.ErrorHandler) (*crogger.Logger, error) {
	processor, err := rules.NewProcessor(cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}
	redactor, err := redact.New(cfg.Ingest.Redact)
	if err != nil {
		return nil, fmt.Errorf("ingest.redact: %w", err)
	}

	manager := destination.NewManager()
	if err := manager.InitClients(cfg); err != nil {
		if len(manager.Names()) == 0 {
			return nil, err
		}
		// Partial start: the working destinations keep receiving records
		logger.GetAppLogger().Warn("Continuing with destinations %v: %v", manager.Names(), err)
	}

	l, err := crogger.Init(crogger.Config{
		Token:         cfg.Ingest.Token,
		Dataset:       cfg.Ingest.Dataset,
		Endpoint:      cfg.Ingest.Endpoint,
		IngestOptions: cfg.Ingest.Options,
		DefaultFields: cfg.Ingest.DefaultFields,
		Transform:     crogger.Chain(processor.Transform(), redactor.Transform()),
		OnError:       onError,
		Client:        manager,
	})
	if err != nil {
		manager.CloseAll()
		return nil, err
	}
	return l, nil
}

func runServe(ctx context.Context, cfg *config.Config, stderr io.Writer) int {
	appLogger := logger.GetAppLogger()
	appLogger.Warn("%s", version.VersionInfo())

	l, err := newLogger(cfg, nil)
	if err != nil {
		fmt.Fprintf(stderr, "[CRITICAL] %v\n", err)
		return 1
	}
	defer l.Close()

	srv, err := server.NewServer(server.Dependencies{Config: cfg, Forwarder: l, AppLogger: appLogger})
	if err != nil {
		fmt.Fprintf(stderr, "[CRITICAL] %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start() }()

	select {
	case err := <-serveErr:
		if err != nil {
			fmt.Fprintf(stderr, "[CRITICAL] Server error: %v\n", err)
			return 1
		}
		return 0
	case <-ctx.Done():
		appLogger.Info("Received shutdown signal.")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown: %v", err)
	}
	<-serveErr

	appLogger.Info("crogger relay shut down gracefully.")
	return 0
}

func runSend(ctx context.Context, cfg *config.Config, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("send", flag.ContinueOnError)
	flags.SetOutput(stderr)
	level := flags.String("level", string(record.LevelInfo), "Level of the record sent with -message")
	message := flags.String("message", "", "Message to send; stdin is read when empty")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	var recs []record.Record
	if *message != "" {
		lvl, err := record.ParseLevel(*level)
		if err != nil {
			fmt.Fprintf(stderr, "send: %v\n", err)
			return 2
		}
		recs = []record.Record{{Level: lvl, Message: *message}}
	} else {
		body, err := io.ReadAll(stdin)
		if err != nil {
			fmt.Fprintf(stderr, "send: read stdin: %v\n", err)
			return 1
		}
		var decoder intake.Decoder
		if recs, err = decoder.DecodeBatch(body); err != nil {
			fmt.Fprintf(stderr, "send: %v\n", err)
			return 1
		}
	}

	var (
		mu       sync.Mutex
		failures []error
	)
	l, err := newLogger(cfg, func(err error) {
		mu.Lock()
		defer mu.Unlock()
		failures = append(failures, err)
	})
	if err != nil {
		fmt.Fprintf(stderr, "[CRITICAL] %v\n", err)
		return 1
	}

	if len(recs) == 1 {
		l.Log(ctx, recs[0])
	} else {
		l.LogBatch(ctx, recs)
	}
	if err := l.Close(); err != nil {
		failures = append(failures, fmt.Errorf("close: %w", err))
	}

	if len(failures) > 0 {
		fmt.Fprintf(stderr, "send: %v\n", errors.Join(failures...))
		return 1
	}
	fmt.Fprintf(stdout, "sent %d record(s) to dataset %q\n", len(recs), cfg.Ingest.Dataset)
	return 0
}

func runToken(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("token", flag.ContinueOnError)
	flags.SetOutput(stderr)
	ttlFlag := flags.String("ttl", cfg.Server.Token.Expiration, "Token lifetime, e.g. 30m, 24h, 7d")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	ttl, err := config.ParseDuration(*ttlFlag)
	if err != nil {
		fmt.Fprintf(stderr, "token: invalid ttl: %v\n", err)
		return 2
	}
	token, err := security.GenerateToken(cfg.Server.Token.Secret, cfg.Ingest.Dataset, ttl)
	if err != nil {
		fmt.Fprintf(stderr, "token: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}
