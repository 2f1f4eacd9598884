package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/docling-console/internal/core/domain"
	"github.com/kirillkom/docling-console/internal/infrastructure/resilience"
)

const (
	DefaultSubmissionsSubject = "docling.tasks.submitted"
	DefaultEventsSubject      = "docling.tasks.events"
	trackerQueueGroup         = "trackers"
)

// Queue hands submitted task ids to tracker workers and publishes task
// state transitions. Events go to <events subject>.<task id>.
type Queue struct {
	conn               *nats.Conn
	submissionsSubject string
	eventsSubject      string
	executor           *resilience.Executor
	logger             *slog.Logger
}

type Options struct {
	Name                 string
	SubmissionsSubject   string
	EventsSubject        string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	name := options.Name
	if name == "" {
		name = "docling-console"
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return newQueue(conn, options, logger), nil
}

func newQueue(conn *nats.Conn, options Options, logger *slog.Logger) *Queue {
	submissions := strings.TrimSpace(options.SubmissionsSubject)
	if submissions == "" {
		submissions = DefaultSubmissionsSubject
	}
	events := strings.TrimSpace(options.EventsSubject)
	if events == "" {
		events = DefaultEventsSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		conn:               conn,
		submissionsSubject: submissions,
		eventsSubject:      events,
		executor:           options.ResilienceExecutor,
		logger:             logger,
	}
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// EventSubject is the subject a task's transitions are published on.
func (q *Queue) EventSubject(taskID string) string {
	return q.eventsSubject + "." + sanitizeToken(taskID)
}

func (q *Queue) PublishTaskEvent(ctx context.Context, event domain.TaskEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal task event: %w", err)
	}
	return q.publish(ctx, "nats.publish_event", q.EventSubject(event.TaskID), payload)
}

func (q *Queue) PublishTaskSubmitted(ctx context.Context, taskID string) error {
	return q.publish(ctx, "nats.publish_submitted", q.submissionsSubject, []byte(taskID))
}

// SubscribeTaskSubmitted delivers each submitted task id to exactly one
// tracker in the queue group and blocks until ctx is done.
func (q *Queue) SubscribeTaskSubmitted(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.submissionsSubject, trackerQueueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		taskID := strings.TrimSpace(string(msg.Data))
		if taskID == "" {
			q.logger.Warn("nats_empty_submission", "subject", msg.Subject)
			return
		}
		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, taskID); err != nil {
			q.logger.Error("tracker_handler_failed", "task_id", taskID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// SubscribeTaskEvents streams decoded events of one task (or all tasks for
// an empty id) until ctx is done.
func (q *Queue) SubscribeTaskEvents(ctx context.Context, taskID string, handler func(domain.TaskEvent)) error {
	subject := q.eventsSubject + ".>"
	if strings.TrimSpace(taskID) != "" {
		subject = q.EventSubject(taskID)
	}
	sub, err := q.conn.Subscribe(subject, func(msg *nats.Msg) {
		var event domain.TaskEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			q.logger.Warn("nats_bad_task_event", "subject", msg.Subject, "error", err)
			return
		}
		handler(event)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe events: %w", err)
	}
	<-ctx.Done()
	return sub.Unsubscribe()
}

func (q *Queue) publish(ctx context.Context, operation, subject string, payload []byte) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, operation, call, recordsNATSFailure)
	} else {
		err = call(ctx)
	}
	return wrapTransport(operation, err)
}

// sanitizeToken keeps a task id usable as a single subject token.
func sanitizeToken(taskID string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		default:
			return r
		}
	}, strings.TrimSpace(taskID))
}
