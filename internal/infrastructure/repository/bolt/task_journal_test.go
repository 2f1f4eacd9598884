package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kirillkom/docling-console/internal/core/domain"
)

func openTestJournal(t *testing.T) *TaskJournal {
	t.Helper()
	journal, err := Open(filepath.Join(t.TempDir(), "state", "tasks.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = journal.Close() })
	return journal
}

func TestSubmissionThenEventsFoldIntoRecord(t *testing.T) {
	journal := openTestJournal(t)
	ctx := context.Background()
	at := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

	if err := journal.RecordSubmission(ctx, domain.Submission{TaskID: "t-1", FileName: "a.pdf", Category: "manuals", SubmittedAt: at}); err != nil {
		t.Fatalf("RecordSubmission() error = %v", err)
	}
	if err := journal.ApplyEvent(ctx, domain.TaskEvent{
		TaskID: "t-1",
		State:  domain.PollerPolling,
		Task:   domain.IngestionTask{TaskID: "t-1", Status: domain.TaskStarted},
		At:     at.Add(time.Second),
	}); err != nil {
		t.Fatalf("ApplyEvent() error = %v", err)
	}
	if err := journal.ApplyEvent(ctx, domain.TaskEvent{
		TaskID: "t-1",
		State:  domain.PollerSucceeded,
		Task: domain.IngestionTask{
			TaskID: "t-1",
			Status: domain.TaskSuccess,
			Result: &domain.TaskResult{ChunksProcessed: 12, DocumentID: "d-1"},
		},
		At: at.Add(2 * time.Second),
	}); err != nil {
		t.Fatalf("ApplyEvent() error = %v", err)
	}

	record, err := journal.GetTask(ctx, "t-1")
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if record.FileName != "a.pdf" || record.Status != domain.TaskSuccess || record.State != domain.PollerSucceeded {
		t.Fatalf("unexpected record: %+v", record)
	}
	if record.DocumentID != "d-1" || record.ChunksProcessed != 12 || !record.UpdatedAt.Equal(at.Add(2*time.Second)) {
		t.Fatalf("unexpected result fields: %+v", record)
	}
}

func TestEventWithoutSubmissionCreatesRecord(t *testing.T) {
	journal := openTestJournal(t)
	ctx := context.Background()

	err := journal.ApplyEvent(ctx, domain.TaskEvent{
		TaskID: "t-2",
		State:  domain.PollerFailed,
		Task:   domain.IngestionTask{TaskID: "t-2", Status: domain.TaskFailure, ErrorMessage: "no text layer"},
	})
	if err != nil {
		t.Fatalf("ApplyEvent() error = %v", err)
	}
	record, err := journal.GetTask(ctx, "t-2")
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if record.ErrorMessage != "no text layer" || record.State != domain.PollerFailed {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestGetTaskUnknownIsNotFound(t *testing.T) {
	journal := openTestJournal(t)

	_, err := journal.GetTask(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListRecentOrdersByUpdate(t *testing.T) {
	journal := openTestJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		if err := journal.RecordSubmission(ctx, domain.Submission{TaskID: id, SubmittedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("RecordSubmission(%s) error = %v", id, err)
		}
	}
	if err := journal.ApplyEvent(ctx, domain.TaskEvent{TaskID: "a", State: domain.PollerPolling, At: base.Add(time.Hour)}); err != nil {
		t.Fatalf("ApplyEvent() error = %v", err)
	}

	records, err := journal.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(records) != 2 || records[0].TaskID != "a" || records[1].TaskID != "c" {
		t.Fatalf("unexpected order: %+v", records)
	}
}

func TestJournalSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.db")
	journal, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := journal.RecordSubmission(context.Background(), domain.Submission{TaskID: "kept"}); err != nil {
		t.Fatalf("RecordSubmission() error = %v", err)
	}
	if err := journal.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()
	if _, err := reopened.GetTask(context.Background(), "kept"); err != nil {
		t.Fatalf("GetTask() after reopen error = %v", err)
	}
}
