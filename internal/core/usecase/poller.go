package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/docling-console/internal/core/domain"
	"github.com/kirillkom/docling-console/internal/core/ports"
)

const (
	DefaultPollInterval    = 2 * time.Second
	DefaultPollMaxAttempts = 900
)

// UpdateFunc receives every delivered snapshot, or an error that ended polling.
// Calls for one poller never overlap.
type UpdateFunc func(task domain.IngestionTask, err error)

// PollMetrics observes poller activity. Implementations must be safe for concurrent use.
type PollMetrics interface {
	ObservePollTick(status domain.TaskStatus, err error)
	ObservePollFinished(state domain.PollerState, attempts int)
}

type PollerConfig struct {
	Interval time.Duration
	// MaxAttempts bounds the number of status queries; 0 keeps the default.
	MaxAttempts int
	Metrics     PollMetrics
	Logger      *slog.Logger
}

func (c PollerConfig) normalize() PollerConfig {
	out := c
	if out.Interval <= 0 {
		out.Interval = DefaultPollInterval
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = DefaultPollMaxAttempts
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// PollOutcome is the terminal result of one poller.
type PollOutcome struct {
	TaskID   string               `json:"task_id"`
	State    domain.PollerState   `json:"state"`
	Task     domain.IngestionTask `json:"task"`
	Attempts int                  `json:"attempts"`
	Err      error                `json:"-"`
}

// TaskPoller drives a single ingestion task to a terminal state. The delay
// between queries is a cancellable timer handle; every scheduled callback
// carries the generation it was armed for and is a no-op once the
// generation moved on.
type TaskPoller struct {
	source ports.TaskStatusSource
	cfg    PollerConfig

	mu        sync.Mutex
	state     domain.PollerState
	taskID    string
	onUpdate  UpdateFunc
	baseCtx   context.Context
	stopWatch func() bool
	gen       uint64
	timer     *time.Timer
	inflight  context.CancelFunc
	attempts  int
	last      domain.IngestionTask
	outcome   PollOutcome

	done     chan struct{}
	doneOnce sync.Once
}

func NewTaskPoller(source ports.TaskStatusSource, cfg PollerConfig) *TaskPoller {
	return &TaskPoller{
		source: source,
		cfg:    cfg.normalize(),
		state:  domain.PollerIdle,
		done:   make(chan struct{}),
	}
}

// Start moves the poller from Idle to Polling and issues the first status
// query right away. Cancelling ctx has the same effect as Cancel.
func (p *TaskPoller) Start(ctx context.Context, taskID string, onUpdate UpdateFunc) error {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return domain.ValidationError("task id required")
	}

	p.mu.Lock()
	if p.state != domain.PollerIdle {
		state := p.state
		p.mu.Unlock()
		return fmt.Errorf("start poller: already %s", state)
	}
	p.state = domain.PollerPolling
	p.taskID = taskID
	p.onUpdate = onUpdate
	p.baseCtx = context.WithoutCancel(ctx)
	p.last = domain.IngestionTask{TaskID: taskID}
	p.outcome = PollOutcome{TaskID: taskID, State: domain.PollerPolling}
	p.stopWatch = context.AfterFunc(ctx, p.Cancel)
	gen := p.gen
	p.mu.Unlock()

	go p.poll(gen)
	return nil
}

// Cancel stops polling from any non-terminal state. It is idempotent and safe
// to call from inside the update callback. A query already in flight is not
// interrupted at the backend, but its response is discarded and
// ErrPollingAborted is delivered instead.
func (p *TaskPoller) Cancel() {
	p.mu.Lock()
	if p.state.Terminal() {
		p.mu.Unlock()
		return
	}

	p.gen++
	p.state = domain.PollerCancelled
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.outcome = PollOutcome{
		TaskID:   p.taskID,
		State:    domain.PollerCancelled,
		Task:     p.last,
		Attempts: p.attempts,
	}
	inflight := p.inflight
	p.mu.Unlock()

	if inflight != nil {
		// The polling goroutine owns completion once it sees the stale response.
		inflight()
		return
	}
	p.finish()
}

// Wait blocks until the poller reaches a terminal state or ctx is done.
func (p *TaskPoller) Wait(ctx context.Context) (PollOutcome, error) {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.outcome, nil
	case <-ctx.Done():
		return PollOutcome{}, ctx.Err()
	}
}

// Done is closed once the poller reaches a terminal state.
func (p *TaskPoller) Done() <-chan struct{} {
	return p.done
}

func (p *TaskPoller) State() domain.PollerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Last returns the most recent delivered snapshot.
func (p *TaskPoller) Last() domain.IngestionTask {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func (p *TaskPoller) TaskID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.taskID
}

func (p *TaskPoller) poll(gen uint64) {
	p.mu.Lock()
	if p.gen != gen || p.state != domain.PollerPolling {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	reqCtx, cancel := context.WithCancel(p.baseCtx)
	p.inflight = cancel
	p.attempts++
	attempt := p.attempts
	taskID := p.taskID
	p.mu.Unlock()

	task, err := p.source.GetTaskStatus(reqCtx, taskID)
	cancel()

	p.mu.Lock()
	p.inflight = nil
	if p.gen != gen {
		p.outcome.Err = domain.WrapError(domain.ErrPollingAborted, "poll task "+taskID, context.Canceled)
		last, abortErr, onUpdate := p.last, p.outcome.Err, p.onUpdate
		p.mu.Unlock()

		p.cfg.Logger.Info("poll_aborted", "task_id", taskID, "attempt", attempt)
		deliver(onUpdate, last, abortErr)
		p.finish()
		return
	}

	if p.cfg.Metrics != nil {
		p.cfg.Metrics.ObservePollTick(task.Status, err)
	}

	if err == nil && task.Status.Rank() < 0 {
		err = domain.WrapError(domain.ErrRemote, "poll task "+taskID, fmt.Errorf("unknown task status %q", task.Status))
	}
	if err != nil {
		p.gen++
		p.state = domain.PollerErrored
		p.outcome = PollOutcome{TaskID: taskID, State: domain.PollerErrored, Task: p.last, Attempts: attempt, Err: err}
		onUpdate := p.onUpdate
		p.mu.Unlock()

		p.cfg.Logger.Warn("poll_failed", "task_id", taskID, "attempt", attempt, "error", err)
		deliver(onUpdate, domain.IngestionTask{TaskID: taskID}, err)
		p.finish()
		return
	}

	task.TaskID = taskID
	task = task.Normalize()
	if p.last.Status != "" && task.Status.Rank() < p.last.Status.Rank() {
		// A regression is never delivered; the next tick re-reads the task.
		p.cfg.Logger.Debug("poll_regression_ignored", "task_id", taskID, "status", task.Status, "last_status", p.last.Status)
		p.continueLocked(gen, attempt)
		return
	}

	p.last = task
	onUpdate := p.onUpdate
	if task.Status.Terminal() {
		state := domain.PollerSucceeded
		if task.Status == domain.TaskFailure {
			state = domain.PollerFailed
		}
		p.gen++
		p.state = state
		p.outcome = PollOutcome{TaskID: taskID, State: state, Task: task, Attempts: attempt}
		p.mu.Unlock()

		p.cfg.Logger.Info("task_terminal", "task_id", taskID, "state", state, "attempts", attempt)
		deliver(onUpdate, task, nil)
		p.finish()
		return
	}
	p.mu.Unlock()

	p.cfg.Logger.Debug("poll_tick", "task_id", taskID, "status", task.Status, "attempt", attempt)
	deliver(onUpdate, task, nil)

	p.mu.Lock()
	if p.gen != gen || p.state != domain.PollerPolling {
		p.mu.Unlock()
		return
	}
	p.continueLocked(gen, attempt)
}

// continueLocked arms the next tick, or ends polling once the attempt bound
// is reached. It is called with p.mu held and releases it.
func (p *TaskPoller) continueLocked(gen uint64, attempt int) {
	if attempt < p.cfg.MaxAttempts {
		p.timer = time.AfterFunc(p.cfg.Interval, func() { p.poll(gen) })
		p.mu.Unlock()
		return
	}

	p.gen++
	p.state = domain.PollerTimedOut
	timeoutErr := domain.WrapError(domain.ErrPollTimeout, "poll task "+p.taskID,
		fmt.Errorf("still %s after %d attempts", p.last.Status, attempt))
	p.outcome = PollOutcome{TaskID: p.taskID, State: domain.PollerTimedOut, Task: p.last, Attempts: attempt, Err: timeoutErr}
	taskID, last, onUpdate := p.taskID, p.last, p.onUpdate
	p.mu.Unlock()

	p.cfg.Logger.Warn("poll_timeout", "task_id", taskID, "attempts", attempt)
	deliver(onUpdate, last, timeoutErr)
	p.finish()
}

func (p *TaskPoller) finish() {
	p.doneOnce.Do(func() {
		p.mu.Lock()
		stopWatch := p.stopWatch
		p.stopWatch = nil
		outcome := p.outcome
		p.mu.Unlock()

		if stopWatch != nil {
			stopWatch()
		}
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.ObservePollFinished(outcome.State, outcome.Attempts)
		}
		close(p.done)
	})
}

func deliver(onUpdate UpdateFunc, task domain.IngestionTask, err error) {
	if onUpdate == nil {
		return
	}
	onUpdate(task, err)
}

// IsAborted reports whether err came from a poller cancelled mid-query.
func IsAborted(err error) bool {
	return errors.Is(err, domain.ErrPollingAborted)
}
