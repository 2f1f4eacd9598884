package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/kirillkom/docling-console/internal/core/domain"
)

var bucketTasks = []byte("tasks")

// TaskJournal is a single-file journal for the local CLI. Records are stored
// as JSON under their task id.
type TaskJournal struct {
	db  *bbolt.DB
	now func() time.Time
}

func Open(path string) (*TaskJournal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTasks)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tasks bucket: %w", err)
	}

	return &TaskJournal{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (j *TaskJournal) Close() error {
	return j.db.Close()
}

func (j *TaskJournal) RecordSubmission(_ context.Context, submission domain.Submission) error {
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = j.now()
	}
	return j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		record, ok, err := getRecord(b, submission.TaskID)
		if err != nil {
			return err
		}
		if !ok {
			record = domain.TaskRecord{
				Status:    domain.TaskPending,
				State:     domain.PollerIdle,
				UpdatedAt: submission.SubmittedAt,
			}
		}
		record.Submission = submission
		return putRecord(b, record)
	})
}

func (j *TaskJournal) ApplyEvent(_ context.Context, event domain.TaskEvent) error {
	if event.At.IsZero() {
		event.At = j.now()
	}
	return j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		record, ok, err := getRecord(b, event.TaskID)
		if err != nil {
			return err
		}
		if !ok {
			record = domain.TaskRecord{
				Submission: domain.Submission{TaskID: event.TaskID, SubmittedAt: event.At},
				Status:     domain.TaskPending,
			}
		}
		return putRecord(b, record.Apply(event))
	})
}

func (j *TaskJournal) GetTask(_ context.Context, taskID string) (*domain.TaskRecord, error) {
	var out *domain.TaskRecord
	err := j.db.View(func(tx *bbolt.Tx) error {
		record, ok, err := getRecord(tx.Bucket(bucketTasks), taskID)
		if err != nil {
			return err
		}
		if ok {
			out = &record
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, domain.WrapError(domain.ErrNotFound, "get task", fmt.Errorf("task %s", taskID))
	}
	return out, nil
}

// ListRecent returns up to limit records, most recently updated first.
func (j *TaskJournal) ListRecent(_ context.Context, limit int) ([]domain.TaskRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	out := make([]domain.TaskRecord, 0)
	err := j.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTasks).ForEach(func(_, data []byte) error {
			var record domain.TaskRecord
			if err := json.Unmarshal(data, &record); err != nil {
				return fmt.Errorf("decode task record: %w", err)
			}
			out = append(out, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(a, b int) bool {
		if !out[a].UpdatedAt.Equal(out[b].UpdatedAt) {
			return out[a].UpdatedAt.After(out[b].UpdatedAt)
		}
		return out[a].TaskID < out[b].TaskID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func getRecord(b *bbolt.Bucket, taskID string) (domain.TaskRecord, bool, error) {
	data := b.Get([]byte(taskID))
	if data == nil {
		return domain.TaskRecord{}, false, nil
	}
	var record domain.TaskRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return domain.TaskRecord{}, false, fmt.Errorf("decode task record %s: %w", taskID, err)
	}
	return record, true, nil
}

func putRecord(b *bbolt.Bucket, record domain.TaskRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode task record: %w", err)
	}
	return b.Put([]byte(record.TaskID), data)
}
