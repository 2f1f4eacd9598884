package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/kirillkom/docling-console/internal/bootstrap"
	"github.com/kirillkom/docling-console/internal/config"
	"github.com/kirillkom/docling-console/internal/observability/logging"
)

const serviceName = "docctl"

const (
	exitOK         = 0
	exitError      = 1
	exitUsage      = 2
	exitTaskFailed = 3
)

type command struct {
	summary string
	run     func(ctx context.Context, env *cliEnv, args []string) int
}

var commands = map[string]command{
	"ingest":    {"upload a PDF and follow it to a terminal state", runIngest},
	"submit":    {"upload a PDF (or start a backend path/URL) and print the task id", runSubmit},
	"status":    {"query the current status of a task once", runStatus},
	"watch":     {"follow an existing task to a terminal state", runWatch},
	"revoke":    {"ask the backend to terminate a task", runRevoke},
	"chunks":    {"page through ingested chunks", runChunks},
	"search":    {"semantic search over ingested chunks", runSearch},
	"documents": {"list ingested documents", runDocuments},
	"history":   {"show recently journaled tasks", runHistory},
	"health":    {"probe the backend health endpoint", runHealth},
	"mcp":       {"serve search and task tools over MCP stdio", runMCP},
}

// cliEnv carries what every subcommand needs.
type cliEnv struct {
	app    *bootstrap.App
	stdout io.Writer
	stderr io.Writer
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		usage(os.Stderr)
		return exitUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "docctl: unknown command %q\n\n", args[0])
		usage(os.Stderr)
		return exitUsage
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "docctl: %v\n", err)
		return exitError
	}
	if os.Getenv("LOG_FORMAT") == "" {
		cfg.LogFormat = "text"
	}
	if os.Getenv("LOG_LEVEL") == "" {
		cfg.LogLevel = "warn"
	}
	logger := logging.NewLogger(os.Stderr, serviceName, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, serviceName, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "docctl: %v\n", err)
		return exitError
	}
	defer app.Close()

	return cmd.run(ctx, &cliEnv{app: app, stdout: os.Stdout, stderr: os.Stderr}, args[1:])
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: docctl <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-10s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "configuration comes from .env, CONSOLE_CONFIG (yaml) and environment variables;")
	fmt.Fprintln(w, "DOCLING_BACKEND_URL selects the backend.")
}

func fail(env *cliEnv, err error) int {
	fmt.Fprintf(env.stderr, "docctl: %s\n", strings.TrimSpace(describeError(err)))
	return exitError
}
