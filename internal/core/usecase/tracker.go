package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/docling-console/internal/core/domain"
	"github.com/kirillkom/docling-console/internal/core/ports"
)

const defaultRetainFinished = 256

type TrackerOptions struct {
	Poller PollerConfig
	// Sinks receive every TaskEvent. Publish failures are logged, never fatal.
	Sinks   []ports.TaskEventSink
	Journal ports.TaskJournal
	Logger  *slog.Logger
	// RetainFinished bounds how many finished tasks stay answerable from memory.
	RetainFinished int
	Gauge          ActivePollerGauge
}

// ActivePollerGauge counts pollers between start and their terminal state.
type ActivePollerGauge interface {
	PollerStarted()
	PollerStopped()
}

type trackedTask struct {
	poller    *TaskPoller
	last      domain.TaskEvent
	observers []taskObserver
}

type taskObserver struct {
	id     uint64
	notify func(domain.TaskEvent)
}

// Subscription is one observer attached to the poller of a tracked task.
type Subscription struct {
	Poller *TaskPoller
	// Started is true when the subscribing call created the poller.
	Started bool

	detach func()
}

// Detach stops delivery to the observer. The poller keeps running.
func (s *Subscription) Detach() {
	if s.detach != nil {
		s.detach()
	}
}

// TaskTracker owns one TaskPoller per tracked task and fans their
// transitions out to sinks and the journal. Pollers share no state.
type TaskTracker struct {
	gateway ports.BackendGateway
	opts    TrackerOptions
	logger  *slog.Logger
	now     func() time.Time

	mu           sync.Mutex
	tasks        map[string]*trackedTask
	finished     []string
	closed       bool
	nextObserver uint64
}

func NewTaskTracker(gateway ports.BackendGateway, opts TrackerOptions) *TaskTracker {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.RetainFinished <= 0 {
		opts.RetainFinished = defaultRetainFinished
	}
	if opts.Poller.Logger == nil {
		opts.Poller.Logger = logger
	}
	return &TaskTracker{
		gateway: gateway,
		opts:    opts,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		tasks:   make(map[string]*trackedTask),
	}
}

// Register journals a fresh submission before its task is tracked.
func (t *TaskTracker) Register(ctx context.Context, submission domain.Submission) error {
	if t.opts.Journal == nil {
		return nil
	}
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = t.now()
	}
	if err := t.opts.Journal.RecordSubmission(ctx, submission); err != nil {
		return fmt.Errorf("journal submission: %w", err)
	}
	return nil
}

func (t *TaskTracker) Track(ctx context.Context, taskID string) error {
	_, err := t.TrackWithUpdates(ctx, taskID, nil)
	return err
}

// TrackWithUpdates starts polling taskID unless a poller for it is already
// active, and attaches onEvent to whichever poller tracks the task. Polling
// outlives ctx cancellation; use Stop or Close to end it.
func (t *TaskTracker) TrackWithUpdates(ctx context.Context, taskID string, onEvent func(domain.TaskEvent)) (*TaskPoller, error) {
	sub, err := t.Subscribe(ctx, taskID, onEvent)
	if err != nil {
		return nil, err
	}
	return sub.Poller, nil
}

// Subscribe is TrackWithUpdates for callers that need to know whether they
// started the poller and to detach their observer before it finishes. A late
// subscriber sees transitions from the next delivered snapshot on.
func (t *TaskTracker) Subscribe(ctx context.Context, taskID string, onEvent func(domain.TaskEvent)) (*Subscription, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, domain.ValidationError("task id required")
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("track task %s: tracker closed", taskID)
	}
	if existing, ok := t.tasks[taskID]; ok && !existing.last.State.Terminal() {
		detach := t.attachLocked(existing, onEvent)
		t.mu.Unlock()
		return &Subscription{Poller: existing.poller, detach: detach}, nil
	}
	poller := NewTaskPoller(t.gateway, t.opts.Poller)
	tracked := &trackedTask{
		poller: poller,
		last: domain.TaskEvent{
			TaskID: taskID,
			State:  domain.PollerPolling,
			Task:   domain.IngestionTask{TaskID: taskID},
			At:     t.now(),
		},
	}
	detach := t.attachLocked(tracked, onEvent)
	t.tasks[taskID] = tracked
	t.removeFinishedLocked(taskID)
	t.mu.Unlock()

	pollCtx := context.WithoutCancel(ctx)
	err := poller.Start(pollCtx, taskID, func(task domain.IngestionTask, err error) {
		event := domain.TaskEvent{
			TaskID: taskID,
			State:  poller.State(),
			Task:   task,
			At:     t.now(),
		}
		if err != nil {
			event.Error = err.Error()
		}
		observers := t.record(poller, event)
		t.fanOut(pollCtx, event)
		for _, observer := range observers {
			observer.notify(event)
		}
	})
	if err != nil {
		t.mu.Lock()
		delete(t.tasks, taskID)
		t.mu.Unlock()
		return nil, err
	}

	if t.opts.Gauge != nil {
		t.opts.Gauge.PollerStarted()
	}
	go t.reap(taskID, poller)
	return &Subscription{Poller: poller, Started: true, detach: detach}, nil
}

func (t *TaskTracker) attachLocked(tracked *trackedTask, onEvent func(domain.TaskEvent)) func() {
	if onEvent == nil {
		return nil
	}
	t.nextObserver++
	id := t.nextObserver
	tracked.observers = append(tracked.observers, taskObserver{id: id, notify: onEvent})
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		tracked.observers = slices.DeleteFunc(tracked.observers, func(o taskObserver) bool { return o.id == id })
	}
}

// Snapshot returns the latest event for a task, falling back to the journal
// for tasks no longer held in memory.
func (t *TaskTracker) Snapshot(taskID string) (domain.TaskEvent, error) {
	t.mu.Lock()
	tracked, ok := t.tasks[taskID]
	var last domain.TaskEvent
	if ok {
		last = tracked.last
	}
	t.mu.Unlock()
	if ok {
		return last, nil
	}

	if t.opts.Journal != nil {
		record, err := t.opts.Journal.GetTask(context.Background(), taskID)
		if err == nil && record != nil {
			return domain.TaskEvent{
				TaskID: record.TaskID,
				State:  record.State,
				Task: domain.IngestionTask{
					TaskID:       record.TaskID,
					Status:       record.Status,
					Result:       resultFromRecord(*record),
					ErrorMessage: record.ErrorMessage,
				}.Normalize(),
				At: record.UpdatedAt,
			}, nil
		}
	}
	return domain.TaskEvent{}, domain.WrapError(domain.ErrNotFound, "snapshot", fmt.Errorf("task %s is not tracked", taskID))
}

// Stop cancels local polling for a task. The backend job keeps running.
func (t *TaskTracker) Stop(taskID string) error {
	t.mu.Lock()
	tracked, ok := t.tasks[taskID]
	t.mu.Unlock()
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "stop", fmt.Errorf("task %s is not tracked", taskID))
	}
	tracked.poller.Cancel()
	return nil
}

// Revoke asks the backend to terminate the job. A tracked poller observes
// the resulting FAILURE on its next tick.
func (t *TaskTracker) Revoke(ctx context.Context, taskID string) error {
	if strings.TrimSpace(taskID) == "" {
		return domain.ValidationError("task id required")
	}
	if err := t.gateway.RevokeTask(ctx, taskID); err != nil {
		return fmt.Errorf("revoke task: %w", err)
	}
	t.logger.Info("task_revoked", "task_id", taskID)
	return nil
}

// Active lists the latest event of every task still being polled.
func (t *TaskTracker) Active() []domain.TaskEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.TaskEvent, 0, len(t.tasks))
	for _, tracked := range t.tasks {
		if !tracked.last.State.Terminal() {
			out = append(out, tracked.last)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

// Close cancels every active poller. Further Track calls fail.
func (t *TaskTracker) Close() {
	t.mu.Lock()
	t.closed = true
	pollers := make([]*TaskPoller, 0, len(t.tasks))
	for _, tracked := range t.tasks {
		pollers = append(pollers, tracked.poller)
	}
	t.mu.Unlock()

	for _, poller := range pollers {
		poller.Cancel()
	}
}

// record stores event as the latest for its task and returns the observers
// to notify. Both happen under one lock so a subscriber never misses the
// event that made the task terminal.
func (t *TaskTracker) record(poller *TaskPoller, event domain.TaskEvent) []taskObserver {
	t.mu.Lock()
	defer t.mu.Unlock()
	tracked, ok := t.tasks[event.TaskID]
	if !ok || tracked.poller != poller {
		return nil
	}
	tracked.last = event
	return slices.Clone(tracked.observers)
}

func (t *TaskTracker) fanOut(ctx context.Context, event domain.TaskEvent) {
	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	for _, sink := range t.opts.Sinks {
		if err := sink.PublishTaskEvent(publishCtx, event); err != nil {
			t.logger.Warn("task_event_publish_failed", "task_id", event.TaskID, "state", event.State, "error", err)
		}
	}
	if t.opts.Journal != nil {
		if err := t.opts.Journal.ApplyEvent(publishCtx, event); err != nil {
			t.logger.Warn("task_journal_update_failed", "task_id", event.TaskID, "state", event.State, "error", err)
		}
	}
}

// reap marks the task finished once its poller is terminal and prunes the
// oldest finished entries past the retention bound.
func (t *TaskTracker) reap(taskID string, poller *TaskPoller) {
	<-poller.Done()
	outcome, _ := poller.Wait(context.Background())
	if t.opts.Gauge != nil {
		t.opts.Gauge.PollerStopped()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	tracked, ok := t.tasks[taskID]
	if !ok || tracked.poller != poller {
		return
	}
	if !tracked.last.State.Terminal() {
		// Cancelled before any callback fired.
		tracked.last.State = outcome.State
		tracked.last.At = t.now()
	}
	t.finished = append(t.finished, taskID)
	for len(t.finished) > t.opts.RetainFinished {
		oldest := t.finished[0]
		t.finished = t.finished[1:]
		if old, ok := t.tasks[oldest]; ok && old.last.State.Terminal() {
			delete(t.tasks, oldest)
		}
	}
}

func (t *TaskTracker) removeFinishedLocked(taskID string) {
	for i, id := range t.finished {
		if id == taskID {
			t.finished = append(t.finished[:i], t.finished[i+1:]...)
			return
		}
	}
}

func resultFromRecord(record domain.TaskRecord) *domain.TaskResult {
	if record.Status != domain.TaskSuccess {
		return nil
	}
	return &domain.TaskResult{ChunksProcessed: record.ChunksProcessed, DocumentID: record.DocumentID}
}
