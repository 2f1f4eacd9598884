package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/docling-console/internal/core/domain"
)

const schemaLockID int64 = 2026101601

// TaskJournal keeps one row per ingestion task: what was submitted and the
// latest observed outcome.
type TaskJournal struct {
	db  *sql.DB
	now func() time.Time
}

func NewTaskJournal(db *sql.DB) *TaskJournal {
	return &TaskJournal{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (j *TaskJournal) EnsureSchema(ctx context.Context) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across console/tracker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS ingestion_tasks (
	task_id TEXT PRIMARY KEY,
	file_name TEXT NOT NULL DEFAULT '',
	source_path TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	subcategory TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'PENDING',
	state TEXT NOT NULL DEFAULT 'idle',
	document_id TEXT NOT NULL DEFAULT '',
	chunks_processed INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	submitted_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ingestion_tasks_updated_at ON ingestion_tasks(updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_ingestion_tasks_state ON ingestion_tasks(state);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (j *TaskJournal) RecordSubmission(ctx context.Context, submission domain.Submission) error {
	submittedAt := submission.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = j.now()
	}
	_, err := j.db.ExecContext(ctx, `
INSERT INTO ingestion_tasks (task_id, file_name, source_path, category, subcategory, submitted_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$6)
ON CONFLICT (task_id) DO UPDATE SET
	file_name = EXCLUDED.file_name,
	source_path = EXCLUDED.source_path,
	category = EXCLUDED.category,
	subcategory = EXCLUDED.subcategory,
	submitted_at = EXCLUDED.submitted_at
`, submission.TaskID, submission.FileName, submission.SourcePath, submission.Category, submission.Subcategory, submittedAt)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// ApplyEvent folds an event into the row, creating it for tasks that were
// tracked without a recorded submission.
func (j *TaskJournal) ApplyEvent(ctx context.Context, event domain.TaskEvent) error {
	at := event.At
	if at.IsZero() {
		at = j.now()
	}
	folded := domain.TaskRecord{}.Apply(event)
	hasResult := event.Task.Result != nil

	_, err := j.db.ExecContext(ctx, `
INSERT INTO ingestion_tasks (task_id, status, state, document_id, chunks_processed, error_message, submitted_at, updated_at)
VALUES ($1, COALESCE(NULLIF($2, ''), 'PENDING'), $3, $4, $5, $6, $7, $7)
ON CONFLICT (task_id) DO UPDATE SET
	status = CASE WHEN $2 <> '' THEN $2 ELSE ingestion_tasks.status END,
	state = EXCLUDED.state,
	document_id = CASE WHEN $8 THEN EXCLUDED.document_id ELSE ingestion_tasks.document_id END,
	chunks_processed = CASE WHEN $8 THEN EXCLUDED.chunks_processed ELSE ingestion_tasks.chunks_processed END,
	error_message = CASE WHEN EXCLUDED.error_message <> '' THEN EXCLUDED.error_message ELSE ingestion_tasks.error_message END,
	updated_at = EXCLUDED.updated_at
`, event.TaskID, string(folded.Status), string(folded.State), folded.DocumentID, folded.ChunksProcessed, folded.ErrorMessage, at, hasResult)
	if err != nil {
		return fmt.Errorf("apply task event: %w", err)
	}
	return nil
}

func (j *TaskJournal) GetTask(ctx context.Context, taskID string) (*domain.TaskRecord, error) {
	row := j.db.QueryRowContext(ctx, `
SELECT task_id, file_name, source_path, category, subcategory, status, state, document_id, chunks_processed, error_message, submitted_at, updated_at
FROM ingestion_tasks
WHERE task_id = $1
`, taskID)

	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get task", fmt.Errorf("task %s", taskID))
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	return &record, nil
}

func (j *TaskJournal) ListRecent(ctx context.Context, limit int) ([]domain.TaskRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT task_id, file_name, source_path, category, subcategory, status, state, document_id, chunks_processed, error_message, submitted_at, updated_at
FROM ingestion_tasks
ORDER BY updated_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	out := make([]domain.TaskRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return out, nil
}

type recordScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row recordScanner) (domain.TaskRecord, error) {
	var record domain.TaskRecord
	var status, state string
	err := row.Scan(
		&record.TaskID,
		&record.FileName,
		&record.SourcePath,
		&record.Category,
		&record.Subcategory,
		&status,
		&state,
		&record.DocumentID,
		&record.ChunksProcessed,
		&record.ErrorMessage,
		&record.SubmittedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return domain.TaskRecord{}, err
	}
	record.Status = domain.TaskStatus(status)
	record.State = domain.PollerState(state)
	return record, nil
}
