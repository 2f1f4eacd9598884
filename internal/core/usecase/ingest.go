package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/docling-console/internal/core/domain"
	"github.com/kirillkom/docling-console/internal/core/ports"
)

// IngestUseCase runs the whole upload -> process -> poll flow for one file.
// With a non-nil queue, background tracking is handed to a tracker worker
// instead of running in-process.
type IngestUseCase struct {
	uploads *UploadCoordinator
	tracker *TaskTracker
	queue   ports.SubmissionQueue
	logger  *slog.Logger
}

func NewIngestUseCase(uploads *UploadCoordinator, tracker *TaskTracker, queue ports.SubmissionQueue, logger *slog.Logger) *IngestUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestUseCase{uploads: uploads, tracker: tracker, queue: queue, logger: logger}
}

// Submit uploads the file, starts processing and begins tracking the task
// in the background. It returns as soon as the backend assigned a task id.
func (uc *IngestUseCase) Submit(ctx context.Context, req domain.UploadRequest) (string, error) {
	taskID, err := uc.uploads.Submit(ctx, req)
	if err != nil {
		return "", err
	}
	uc.register(ctx, taskID, req.FileName, "", req.Category, req.Subcategory)
	return taskID, uc.trackInBackground(ctx, taskID)
}

// SubmitPath is Submit for a file the backend reads by path or URL.
func (uc *IngestUseCase) SubmitPath(ctx context.Context, pathOrURL, category, subcategory string) (string, error) {
	taskID, err := uc.uploads.SubmitPath(ctx, pathOrURL, category, subcategory)
	if err != nil {
		return "", err
	}
	uc.register(ctx, taskID, "", pathOrURL, category, subcategory)
	return taskID, uc.trackInBackground(ctx, taskID)
}

// Ingest submits the file and blocks until the task is terminal. Cancelling
// ctx cancels polling; the outcome then reports the Cancelled state.
func (uc *IngestUseCase) Ingest(ctx context.Context, req domain.UploadRequest, onEvent func(domain.TaskEvent)) (PollOutcome, error) {
	taskID, err := uc.uploads.Submit(ctx, req)
	if err != nil {
		return PollOutcome{}, err
	}
	uc.register(ctx, taskID, req.FileName, "", req.Category, req.Subcategory)
	return uc.follow(ctx, taskID, onEvent)
}

// Watch follows an already submitted task until it is terminal.
func (uc *IngestUseCase) Watch(ctx context.Context, taskID string, onEvent func(domain.TaskEvent)) (PollOutcome, error) {
	return uc.follow(ctx, taskID, onEvent)
}

// follow blocks until the task is terminal. Cancelling ctx cancels a poller
// that follow started; a poller already tracked by someone else keeps
// running and only this watch ends, reporting Cancelled.
func (uc *IngestUseCase) follow(ctx context.Context, taskID string, onEvent func(domain.TaskEvent)) (PollOutcome, error) {
	sub, err := uc.tracker.Subscribe(ctx, taskID, onEvent)
	if err != nil {
		return PollOutcome{}, err
	}
	defer sub.Detach()
	poller := sub.Poller

	if sub.Started {
		stop := context.AfterFunc(ctx, poller.Cancel)
		defer stop()
		<-poller.Done()
	} else {
		select {
		case <-poller.Done():
		case <-ctx.Done():
			return PollOutcome{TaskID: poller.TaskID(), State: domain.PollerCancelled, Task: poller.Last()}, nil
		}
	}

	outcome, err := poller.Wait(context.WithoutCancel(ctx))
	if err != nil {
		return outcome, err
	}
	return outcome, outcome.Err
}

func (uc *IngestUseCase) trackInBackground(ctx context.Context, taskID string) error {
	if uc.queue != nil {
		if err := uc.queue.PublishTaskSubmitted(ctx, taskID); err != nil {
			return fmt.Errorf("publish task submitted: %w", err)
		}
		return nil
	}
	if err := uc.tracker.Track(ctx, taskID); err != nil {
		return fmt.Errorf("track task: %w", err)
	}
	return nil
}

func (uc *IngestUseCase) register(ctx context.Context, taskID, fileName, sourcePath, category, subcategory string) {
	err := uc.tracker.Register(ctx, domain.Submission{
		TaskID:      taskID,
		FileName:    fileName,
		SourcePath:  sourcePath,
		Category:    strings.TrimSpace(category),
		Subcategory: strings.TrimSpace(subcategory),
	})
	if err != nil {
		uc.logger.Warn("submission_journal_failed", "task_id", taskID, "error", err)
	}
}
