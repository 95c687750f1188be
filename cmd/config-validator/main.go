package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/orgoj/crogger/internal/config"
	"github.com/orgoj/crogger/internal/redact"
	"github.com/orgoj/crogger/internal/rules"
)

func main() {
	flag.Parse()
	os.Exit(validate(flag.Args(), os.Stdout))
}

func validate(args []string, out io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(out, "Error: Config file path is required")
		fmt.Fprintln(out, "Usage: config-validator <config-file>")
		return 1
	}
	configPath := args[0]

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return 1
	}

	// Compile what LoadConfig only checks syntactically
	if _, err := rules.NewProcessor(cfg.Rules); err != nil {
		fmt.Fprintf(out, "Validation error: rules: %v\n", err)
		return 1
	}
	if _, err := redact.New(cfg.Ingest.Redact); err != nil {
		fmt.Fprintf(out, "Validation error: ingest.redact: %v\n", err)
		return 1
	}

	enabled := 0
	for _, dest := range cfg.LogDestinations {
		if dest.Enabled {
			enabled++
		}
	}
	if len(cfg.LogDestinations) > 0 && enabled == 0 {
		fmt.Fprintln(out, "Validation error: at least one log destination must be enabled")
		return 1
	}

	fmt.Fprintf(out, "Configuration is valid! dataset=%s destinations=%d rules=%d\n", cfg.Ingest.Dataset, max(enabled, 1), len(cfg.Rules))
	return 0
}
