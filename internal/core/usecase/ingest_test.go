package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/docling-console/internal/core/domain"
)

type submissionQueueFake struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (q *submissionQueueFake) PublishTaskSubmitted(_ context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.published = append(q.published, taskID)
	return nil
}

func (q *submissionQueueFake) SubscribeTaskSubmitted(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

func newIngestFixture(gw *gatewayFake, journal *journalFake) *IngestUseCase {
	tracker := NewTaskTracker(gw, TrackerOptions{
		Poller:  PollerConfig{Interval: time.Millisecond},
		Journal: journal,
	})
	return NewIngestUseCase(NewUploadCoordinator(gw, nil), tracker, nil, nil)
}

func TestIngestRunsToSuccess(t *testing.T) {
	gw := &gatewayFake{
		stored:  domain.StoredFile{FilePath: "/uploads/report.pdf"},
		taskID:  "t-1",
		replies: []statusReply{pending(), started("parsing", 40), succeeded(7, "d-1")},
	}
	journal := newJournalFake()
	uc := newIngestFixture(gw, journal)

	var mu sync.Mutex
	var events []domain.TaskEvent
	outcome, err := uc.Ingest(context.Background(), pdfRequest(), func(e domain.TaskEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if outcome.State != domain.PollerSucceeded || outcome.Task.Result.DocumentID != "d-1" || outcome.Task.Result.ChunksProcessed != 7 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	record, err := journal.GetTask(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	if record.FileName != "Annual Report.pdf" || record.Category != "finance" || record.State != domain.PollerSucceeded {
		t.Fatalf("unexpected journal record: %+v", record)
	}
}

func TestIngestValidationFailureMakesNoCalls(t *testing.T) {
	gw := &gatewayFake{}
	uc := newIngestFixture(gw, newJournalFake())

	req := pdfRequest()
	req.MimeType = "image/png"
	if _, err := uc.Ingest(context.Background(), req, nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	uploads, processed, status, _, _ := gw.calls()
	if uploads+processed+status != 0 {
		t.Fatalf("expected zero calls, got upload=%d process=%d status=%d", uploads, processed, status)
	}
}

func TestIngestFailedTaskIsNotAnError(t *testing.T) {
	gw := &gatewayFake{
		stored:  domain.StoredFile{FilePath: "/uploads/report.pdf"},
		taskID:  "t-2",
		replies: []statusReply{failed("no text layer")},
	}
	uc := newIngestFixture(gw, newJournalFake())

	outcome, err := uc.Ingest(context.Background(), pdfRequest(), nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if outcome.State != domain.PollerFailed || outcome.Task.ErrorMessage != "no text layer" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestIngestContextCancelCancelsPolling(t *testing.T) {
	gw := &gatewayFake{
		stored:  domain.StoredFile{FilePath: "/uploads/report.pdf"},
		taskID:  "t-3",
		replies: []statusReply{pending()},
	}
	uc := NewIngestUseCase(NewUploadCoordinator(gw, nil),
		NewTaskTracker(gw, TrackerOptions{Poller: PollerConfig{Interval: time.Hour}}), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan struct{}, 1)
	go func() {
		<-first
		cancel()
	}()

	outcome, _ := uc.Ingest(ctx, pdfRequest(), func(domain.TaskEvent) {
		select {
		case first <- struct{}{}:
		default:
		}
	})
	if outcome.State != domain.PollerCancelled {
		t.Fatalf("expected cancelled outcome, got %+v", outcome)
	}
}

func TestSubmitTracksInProcess(t *testing.T) {
	gw := &gatewayFake{
		stored:  domain.StoredFile{FilePath: "/uploads/report.pdf"},
		taskID:  "t-4",
		replies: []statusReply{pending()},
	}
	tracker := NewTaskTracker(gw, TrackerOptions{Poller: PollerConfig{Interval: time.Hour}})
	defer tracker.Close()
	uc := NewIngestUseCase(NewUploadCoordinator(gw, nil), tracker, nil, nil)

	taskID, err := uc.Submit(context.Background(), pdfRequest())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if taskID != "t-4" {
		t.Fatalf("unexpected task id %q", taskID)
	}
	if active := tracker.Active(); len(active) != 1 || active[0].TaskID != "t-4" {
		t.Fatalf("expected t-4 to be tracked, got %+v", active)
	}
}

func TestSubmitHandsTrackingToQueue(t *testing.T) {
	gw := &gatewayFake{taskID: "t-5"}
	queue := &submissionQueueFake{}
	tracker := NewTaskTracker(gw, TrackerOptions{})
	uc := NewIngestUseCase(NewUploadCoordinator(gw, nil), tracker, queue, nil)

	taskID, err := uc.SubmitPath(context.Background(), "/srv/docs/manual.pdf", "manuals", "")
	if err != nil {
		t.Fatalf("submit path: %v", err)
	}
	if len(queue.published) != 1 || queue.published[0] != taskID {
		t.Fatalf("expected task to be queued, got %v", queue.published)
	}
	if len(tracker.Active()) != 0 {
		t.Fatal("queued task must not be tracked in-process")
	}
	if _, _, status, _, _ := gw.calls(); status != 0 {
		t.Fatalf("expected no status queries, got %d", status)
	}
}

func TestSubmitQueueFailureStillReturnsTaskID(t *testing.T) {
	gw := &gatewayFake{taskID: "t-6"}
	queue := &submissionQueueFake{err: errors.New("nats: no responders")}
	uc := NewIngestUseCase(NewUploadCoordinator(gw, nil), NewTaskTracker(gw, TrackerOptions{}), queue, nil)

	taskID, err := uc.SubmitPath(context.Background(), "/srv/docs/manual.pdf", "manuals", "")
	if err == nil {
		t.Fatal("expected queue error")
	}
	if taskID != "t-6" {
		t.Fatalf("task id must survive a tracking failure, got %q", taskID)
	}
}

func TestWatchReceivesEventsFromBackgroundPoller(t *testing.T) {
	release := make(chan struct{})
	gw := blockedFirstReply(release, "d-10")
	tracker := NewTaskTracker(gw, TrackerOptions{Poller: PollerConfig{Interval: time.Millisecond}})
	defer tracker.Close()
	uc := NewIngestUseCase(NewUploadCoordinator(gw, nil), tracker, nil, nil)

	if err := tracker.Track(context.Background(), "t-10"); err != nil {
		t.Fatalf("track: %v", err)
	}
	waitEntered(t, gw.entered)

	type result struct {
		outcome PollOutcome
		err     error
	}
	var mu sync.Mutex
	var events []domain.TaskEvent
	done := make(chan result, 1)
	go func() {
		outcome, err := uc.Watch(context.Background(), "t-10", func(e domain.TaskEvent) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		})
		done <- result{outcome: outcome, err: err}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for observerCount(tracker, "t-10") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("watch did not attach to the running poller")
		}
		time.Sleep(time.Millisecond)
	}
	close(release)

	var res result
	select {
	case res = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not return")
	}
	if res.err != nil || res.outcome.State != domain.PollerSucceeded || res.outcome.Task.Result.DocumentID != "d-10" {
		t.Fatalf("unexpected outcome: %+v err=%v", res.outcome, res.err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("expected 2 events for the watcher, got %d", len(events))
	}
}

func TestWatchCancelLeavesSharedPollerRunning(t *testing.T) {
	gw := &gatewayFake{replies: []statusReply{pending()}}
	tracker := NewTaskTracker(gw, TrackerOptions{Poller: PollerConfig{Interval: time.Hour}})
	defer tracker.Close()
	uc := NewIngestUseCase(NewUploadCoordinator(gw, nil), tracker, nil, nil)

	shared, err := tracker.TrackWithUpdates(context.Background(), "t-11", nil)
	if err != nil {
		t.Fatalf("track: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome, err := uc.Watch(ctx, "t-11", func(domain.TaskEvent) {})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if outcome.State != domain.PollerCancelled || outcome.TaskID != "t-11" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if shared.State() != domain.PollerPolling {
		t.Fatalf("shared poller must keep polling, got %s", shared.State())
	}
	if n := observerCount(tracker, "t-11"); n != 0 {
		t.Fatalf("watcher must detach, %d observers left", n)
	}
}
