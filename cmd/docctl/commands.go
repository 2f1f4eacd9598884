package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	mcpadapter "github.com/kirillkom/docling-console/internal/adapters/mcp"
	"github.com/kirillkom/docling-console/internal/adapters/tui"
	"github.com/kirillkom/docling-console/internal/core/domain"
	"github.com/kirillkom/docling-console/internal/core/usecase"
)

func newFlagSet(env *cliEnv, name, argsUsage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(env.stderr)
	fs.Usage = func() {
		fmt.Fprintf(env.stderr, "usage: docctl %s [flags] %s\n", name, argsUsage)
		fs.PrintDefaults()
	}
	return fs
}

func runIngest(ctx context.Context, env *cliEnv, args []string) int {
	fs := newFlagSet(env, "ingest", "<file.pdf>")
	category := fs.String("category", "", "document category (required)")
	subcategory := fs.String("subcategory", "", "document subcategory")
	useTUI := fs.Bool("tui", false, "render a live progress view")
	asJSON := fs.Bool("json", false, "print events and outcome as JSON lines")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		fs.Usage()
		return exitUsage
	}

	req, err := env.app.Files.Load(ctx, fs.Arg(0), *category, *subcategory)
	if err != nil {
		return fail(env, err)
	}
	return follow(ctx, env, "", req.FileName, *useTUI, *asJSON, func(ctx context.Context, onEvent func(domain.TaskEvent)) (usecase.PollOutcome, error) {
		return env.app.Ingest.Ingest(ctx, req, onEvent)
	})
}

func runWatch(ctx context.Context, env *cliEnv, args []string) int {
	fs := newFlagSet(env, "watch", "<task-id>")
	useTUI := fs.Bool("tui", false, "render a live progress view")
	asJSON := fs.Bool("json", false, "print events and outcome as JSON lines")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		fs.Usage()
		return exitUsage
	}
	taskID := fs.Arg(0)
	return follow(ctx, env, taskID, taskID, *useTUI, *asJSON, func(ctx context.Context, onEvent func(domain.TaskEvent)) (usecase.PollOutcome, error) {
		return env.app.Ingest.Watch(ctx, taskID, onEvent)
	})
}

type followFunc func(ctx context.Context, onEvent func(domain.TaskEvent)) (usecase.PollOutcome, error)

// follow runs fn either behind the progress TUI or printing one line per
// event, and maps the terminal state to an exit code.
func follow(ctx context.Context, env *cliEnv, taskID, label string, useTUI, asJSON bool, fn followFunc) int {
	if !useTUI {
		outcome, err := fn(ctx, func(event domain.TaskEvent) {
			printEvent(env.stdout, event, asJSON)
		})
		if err != nil && outcome.State == "" {
			return fail(env, err)
		}
		printOutcome(env.stdout, outcome, asJSON)
		return exitCodeFor(outcome)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := make(chan domain.TaskEvent, 16)
	type result struct {
		outcome usecase.PollOutcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		defer close(events)
		outcome, err := fn(runCtx, func(event domain.TaskEvent) {
			select {
			case events <- event:
			case <-runCtx.Done():
			}
		})
		done <- result{outcome: outcome, err: err}
	}()

	program := tea.NewProgram(tui.NewProgressModel(taskID, label, events, cancel), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		cancel()
		fmt.Fprintf(env.stderr, "docctl: progress view: %v\n", err)
	}
	res := <-done
	if res.err != nil && res.outcome.State == "" {
		return fail(env, res.err)
	}
	return exitCodeFor(res.outcome)
}

func runSubmit(ctx context.Context, env *cliEnv, args []string) int {
	fs := newFlagSet(env, "submit", "<file.pdf | backend-path | url>")
	category := fs.String("category", "", "document category (required)")
	subcategory := fs.String("subcategory", "", "document subcategory")
	remote := fs.Bool("remote", false, "treat the argument as a backend path or URL instead of a local file")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		fs.Usage()
		return exitUsage
	}

	target := fs.Arg(0)
	var (
		taskID string
		err    error
	)
	if *remote || isURL(target) {
		taskID, err = env.app.Ingest.SubmitPath(ctx, target, *category, *subcategory)
	} else {
		req, loadErr := env.app.Files.Load(ctx, target, *category, *subcategory)
		if loadErr != nil {
			return fail(env, loadErr)
		}
		taskID, err = env.app.Ingest.Submit(ctx, req)
	}
	if taskID == "" {
		return fail(env, err)
	}
	if err != nil {
		fmt.Fprintf(env.stderr, "docctl: task submitted but tracking is unavailable: %s\n", describeError(err))
	}
	fmt.Fprintln(env.stdout, taskID)
	return exitOK
}

func runStatus(ctx context.Context, env *cliEnv, args []string) int {
	fs := newFlagSet(env, "status", "<task-id>")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		fs.Usage()
		return exitUsage
	}
	task, err := env.app.Gateway.GetTaskStatus(ctx, fs.Arg(0))
	if err != nil {
		return fail(env, err)
	}
	if *asJSON {
		return writeJSONLine(env, task)
	}
	fmt.Fprintln(env.stdout, formatTask(task))
	return exitOK
}

func runRevoke(ctx context.Context, env *cliEnv, args []string) int {
	fs := newFlagSet(env, "revoke", "<task-id>")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		fs.Usage()
		return exitUsage
	}
	if err := env.app.Tracker.Revoke(ctx, fs.Arg(0)); err != nil {
		return fail(env, err)
	}
	fmt.Fprintf(env.stdout, "revoke requested for %s\n", fs.Arg(0))
	return exitOK
}

func runChunks(ctx context.Context, env *cliEnv, args []string) int {
	fs := newFlagSet(env, "chunks", "")
	documentID := fs.String("document", "", "only chunks of this document id")
	page := fs.Int("page", 0, "zero-based page index")
	size := fs.Int("size", env.app.Config.ChunkPageSize, "chunks per page")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil || fs.NArg() != 0 {
		fs.Usage()
		return exitUsage
	}

	result, err := env.app.Chunks.List(ctx, domain.PageRequest{DocumentIDFilter: *documentID, PageSize: *size, PageIndex: *page})
	if err != nil {
		return fail(env, err)
	}
	if *asJSON {
		return writeJSONLine(env, result)
	}
	printChunkPage(env.stdout, result)
	return exitOK
}

func runSearch(ctx context.Context, env *cliEnv, args []string) int {
	fs := newFlagSet(env, "search", "<query...>")
	n := fs.Int("n", domain.DefaultSearchResults, "number of results (1-50)")
	imagesOnly := fs.Bool("images", false, "only chunks with images")
	tablesOnly := fs.Bool("tables", false, "only chunks with tables")
	category := fs.String("category", "", "category filter")
	subcategory := fs.String("subcategory", "", "subcategory filter")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil || fs.NArg() == 0 {
		fs.Usage()
		return exitUsage
	}

	query := strings.Join(fs.Args(), " ")
	results, err := env.app.Search.Search(ctx, query, domain.SearchFilters{
		MaxResults:  *n,
		ImagesOnly:  *imagesOnly,
		TablesOnly:  *tablesOnly,
		Category:    *category,
		Subcategory: *subcategory,
	})
	if err != nil {
		return fail(env, err)
	}
	if *asJSON {
		return writeJSONLine(env, results)
	}
	printSearchResults(env.stdout, query, results)
	return exitOK
}

func runDocuments(ctx context.Context, env *cliEnv, args []string) int {
	fs := newFlagSet(env, "documents", "")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	docs, err := env.app.Chunks.Documents(ctx)
	if err != nil {
		return fail(env, err)
	}
	if *asJSON {
		return writeJSONLine(env, docs)
	}
	printDocuments(env.stdout, docs)
	return exitOK
}

func runHistory(ctx context.Context, env *cliEnv, args []string) int {
	fs := newFlagSet(env, "history", "")
	limit := fs.Int("n", 20, "number of tasks")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if env.app.Journal == nil {
		fmt.Fprintln(env.stderr, "docctl: no task journal configured (JOURNAL_DRIVER=none)")
		return exitError
	}
	records, err := env.app.Journal.ListRecent(ctx, *limit)
	if err != nil {
		return fail(env, err)
	}
	if *asJSON {
		return writeJSONLine(env, records)
	}
	printHistory(env.stdout, records)
	return exitOK
}

func runHealth(ctx context.Context, env *cliEnv, args []string) int {
	fs := newFlagSet(env, "health", "")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	health, err := env.app.Gateway.Health(ctx)
	if err != nil {
		return fail(env, err)
	}
	fmt.Fprintf(env.stdout, "%s %s %s (%s)\n", health.Status, health.Service, health.Version, env.app.Config.BackendURL)
	return exitOK
}

func runMCP(_ context.Context, env *cliEnv, args []string) int {
	fs := newFlagSet(env, "mcp", "")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	server := mcpadapter.NewServer("docling-console", "0.1.0", mcpadapter.Services{
		Submitter: env.app.Ingest,
		Tasks:     env.app.Tracker,
		Chunks:    env.app.Chunks,
		Search:    env.app.Search,
		Logger:    env.app.Logger,
	})
	if err := server.ServeStdio(); err != nil {
		return fail(env, err)
	}
	return exitOK
}

func isURL(target string) bool {
	return strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://")
}
