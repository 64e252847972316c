// Command tracing runs an executable under ptrace and reports every child
// process the executable caused to run, with its path and argument vector,
// in pre-order of the process tree: a parent before its children, siblings
// in creation order.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/soenkehahn/tracing/internal/config"
	"github.com/soenkehahn/tracing/internal/report"
	"github.com/soenkehahn/tracing/internal/tracer"
)

const usage = "usage: tracing [flags] <executable>"

func main() {
	configPath := flag.String("config", "", "path to an optional YAML configuration file")
	jsonOut := flag.Bool("json", false, "print the full process tree as JSON instead of the flat command list")
	logLevel := flag.String("log-level", "", "override the configured log level (debug, info, warn, error)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "tracing: %v\n", err)
			os.Exit(1)
		}
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *jsonOut {
		cfg.Output = "json"
	}

	// Every run gets a session id so log lines and the JSON report can be
	// correlated.
	traceID := uuid.NewString()
	logger := newLogger(cfg.LogLevel).With(slog.String("trace_id", traceID))
	slog.SetDefault(logger)

	tr := tracer.New(tracer.WithLogger(logger))
	tree, err := tr.Run(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "tracing: %v\n", err)
		os.Exit(1)
	}

	switch cfg.Output {
	case "json":
		out, err := report.JSON(tree, traceID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "tracing: rendering report: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(out))
	default:
		fmt.Print(report.Format(tree.Commands()))
	}
}

// newLogger constructs a *slog.Logger that writes text log records to stderr
// at the requested minimum level. Unknown levels fall back to info.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
