package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/kirillkom/docling-console/internal/core/domain"
	"github.com/kirillkom/docling-console/internal/core/usecase"
)

const snippetWidth = 96

func writeJSONLine(env *cliEnv, v any) int {
	if err := json.NewEncoder(env.stdout).Encode(v); err != nil {
		return fail(env, err)
	}
	return exitOK
}

func exitCodeFor(outcome usecase.PollOutcome) int {
	switch outcome.State {
	case domain.PollerSucceeded:
		return exitOK
	case domain.PollerFailed, domain.PollerTimedOut, domain.PollerCancelled:
		return exitTaskFailed
	default:
		return exitError
	}
}

// describeError renders an error with the backend detail when there is one.
func describeError(err error) string {
	if err == nil {
		return ""
	}
	var remote *domain.RemoteError
	if errors.As(err, &remote) {
		if remote.Detail != "" {
			return fmt.Sprintf("backend rejected %s (%d): %s", remote.Operation, remote.StatusCode, remote.Detail)
		}
		return fmt.Sprintf("backend rejected %s (%d)", remote.Operation, remote.StatusCode)
	}
	return err.Error()
}

func formatTask(task domain.IngestionTask) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", task.TaskID, task.Status)
	if task.Progress != nil {
		fmt.Fprintf(&b, " %3d%%", task.Progress.Percent)
		if task.Progress.Stage != "" {
			fmt.Fprintf(&b, " %s", task.Progress.Stage)
		}
	}
	if task.Result != nil {
		fmt.Fprintf(&b, " document=%s chunks=%d", task.Result.DocumentID, task.Result.ChunksProcessed)
	}
	if task.ErrorMessage != "" {
		fmt.Fprintf(&b, " error=%q", task.ErrorMessage)
	}
	return b.String()
}

func printEvent(w io.Writer, event domain.TaskEvent, asJSON bool) {
	if asJSON {
		_ = json.NewEncoder(w).Encode(event)
		return
	}
	line := fmt.Sprintf("%s [%s] %s", event.At.Format(time.TimeOnly), event.State, formatTask(event.Task))
	if event.Error != "" {
		line += " (" + event.Error + ")"
	}
	fmt.Fprintln(w, line)
}

func printOutcome(w io.Writer, outcome usecase.PollOutcome, asJSON bool) {
	if asJSON {
		_ = json.NewEncoder(w).Encode(outcome)
		return
	}
	switch outcome.State {
	case domain.PollerSucceeded:
		result := outcome.Task.Result
		if result == nil {
			result = &domain.TaskResult{}
		}
		fmt.Fprintf(w, "done: document %s, %d chunks (%d polls)\n", result.DocumentID, result.ChunksProcessed, outcome.Attempts)
	case domain.PollerFailed:
		fmt.Fprintf(w, "failed: %s\n", outcome.Task.ErrorMessage)
	case domain.PollerTimedOut:
		fmt.Fprintf(w, "gave up after %d polls; task %s may still be running\n", outcome.Attempts, outcome.TaskID)
	case domain.PollerCancelled:
		fmt.Fprintf(w, "stopped watching %s\n", outcome.TaskID)
	default:
		fmt.Fprintf(w, "%s: %s\n", outcome.State, describeError(outcome.Err))
	}
}

func printChunkPage(w io.Writer, page domain.ChunkPage) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHUNK\tDOCUMENT\tFILE\tPAGES\tTEXT")
	for _, chunk := range page.Chunks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			chunk.ChunkID, chunk.Metadata.DocumentID, chunk.Metadata.Filename, chunk.Metadata.PageNumbers, snippet(chunk.Text))
	}
	_ = tw.Flush()

	footer := fmt.Sprintf("page %d", page.PageIndex+1)
	if page.TotalPages != nil {
		footer += fmt.Sprintf(" of %d", *page.TotalPages)
	}
	if page.Total != nil {
		footer += fmt.Sprintf(", %d chunks total", *page.Total)
	}
	if page.HasMore {
		footer += fmt.Sprintf("; next: -page %d", page.PageIndex+1)
	}
	fmt.Fprintln(w, footer)
}

func printSearchResults(w io.Writer, query string, results []domain.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintf(w, "no results for %q\n", query)
		return
	}
	for i, result := range results {
		meta := result.Metadata
		fmt.Fprintf(w, "%2d. %.4f  %s", i+1, result.Distance, meta.Filename)
		if meta.PageNumbers != "" {
			fmt.Fprintf(w, " p.%s", meta.PageNumbers)
		}
		if meta.TableCount > 0 {
			fmt.Fprintf(w, " [%d tables]", meta.TableCount)
		}
		if meta.HasImages || meta.ImageCount > 0 {
			fmt.Fprintf(w, " [%d images]", meta.ImageCount)
		}
		fmt.Fprintf(w, "\n    %s\n", snippet(result.DocumentText))
	}
}

func printDocuments(w io.Writer, docs []domain.DocumentSummary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DOCUMENT\tFILE\tCATEGORY\tSUBCATEGORY")
	for _, doc := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", doc.DocumentID, doc.Filename, doc.Category, doc.Subcategory)
	}
	_ = tw.Flush()
}

func printHistory(w io.Writer, records []domain.TaskRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tFILE\tSTATUS\tSTATE\tDOCUMENT\tCHUNKS\tUPDATED")
	for _, record := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			record.TaskID, record.FileName, record.Status, record.State,
			record.DocumentID, record.ChunksProcessed, record.UpdatedAt.Local().Format(time.DateTime))
	}
	_ = tw.Flush()
}

func snippet(text string) string {
	flat := strings.Join(strings.Fields(text), " ")
	runes := []rune(flat)
	if len(runes) <= snippetWidth {
		return flat
	}
	return string(runes[:snippetWidth-3]) + "..."
}
