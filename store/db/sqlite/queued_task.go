package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/skyroute/store"
)

const queuedTaskFields = "id, user_id, dedup_key, user_message, context_summary, task_description, strategy, queued_ts, duplicate_count"

// UpsertQueuedTask inserts a queued task, or collapses it into the existing
// row with the same dedup key: duplicate_count is bumped and the longer of
// the two context summaries wins. Returns the stored row and whether it was
// newly created.
func (d *DB) UpsertQueuedTask(ctx context.Context, task *store.QueuedTask) (*store.QueuedTask, bool, error) {
	if task.QueuedAt.IsZero() {
		task.QueuedAt = time.Now()
	}
	if task.DuplicateCount <= 0 {
		task.DuplicateCount = 1
	}

	stmt := `
		INSERT INTO queued_task (` + queuedTaskFields + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (dedup_key) DO UPDATE SET
			duplicate_count = duplicate_count + 1,
			context_summary = CASE
				WHEN length(excluded.context_summary) > length(context_summary) THEN excluded.context_summary
				ELSE context_summary
			END
		RETURNING ` + queuedTaskFields + `
	`
	var stored store.QueuedTask
	var queuedTs int64
	err := d.db.QueryRowContext(ctx, stmt,
		task.ID,
		task.UserID,
		task.DedupKey,
		task.UserMessage,
		task.ContextSummary,
		task.TaskDescription,
		task.Strategy,
		task.QueuedAt.Unix(),
		task.DuplicateCount,
	).Scan(
		&stored.ID,
		&stored.UserID,
		&stored.DedupKey,
		&stored.UserMessage,
		&stored.ContextSummary,
		&stored.TaskDescription,
		&stored.Strategy,
		&queuedTs,
		&stored.DuplicateCount,
	)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to upsert queued task")
	}
	stored.QueuedAt = time.Unix(queuedTs, 0)

	created := stored.ID == task.ID && stored.DuplicateCount == task.DuplicateCount
	return &stored, created, nil
}

// ListQueuedTasks lists queued tasks, oldest first. An empty userID lists
// the whole queue.
func (d *DB) ListQueuedTasks(ctx context.Context, userID string) ([]*store.QueuedTask, error) {
	where, args := []string{"1 = 1"}, []any{}
	if userID != "" {
		where, args = append(where, "user_id = ?"), append(args, userID)
	}

	stmt := "SELECT " + queuedTaskFields + " FROM queued_task WHERE " + strings.Join(where, " AND ") + " ORDER BY queued_ts ASC"
	rows, err := d.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list queued tasks")
	}
	defer rows.Close()

	var list []*store.QueuedTask
	for rows.Next() {
		var task store.QueuedTask
		var queuedTs int64
		if err := rows.Scan(
			&task.ID,
			&task.UserID,
			&task.DedupKey,
			&task.UserMessage,
			&task.ContextSummary,
			&task.TaskDescription,
			&task.Strategy,
			&queuedTs,
			&task.DuplicateCount,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan queued task")
		}
		task.QueuedAt = time.Unix(queuedTs, 0)
		list = append(list, &task)
	}
	return list, rows.Err()
}

// DeleteQueuedTask removes a task by id.
func (d *DB) DeleteQueuedTask(ctx context.Context, id string) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM queued_task WHERE id = ?", id); err != nil {
		return errors.Wrap(err, "failed to delete queued task")
	}
	return nil
}

// ClearQueuedTasks removes all tasks for a user, or the whole queue when
// userID is empty.
func (d *DB) ClearQueuedTasks(ctx context.Context, userID string) (int64, error) {
	var res interface{ RowsAffected() (int64, error) }
	var err error
	if userID == "" {
		res, err = d.db.ExecContext(ctx, "DELETE FROM queued_task")
	} else {
		res, err = d.db.ExecContext(ctx, "DELETE FROM queued_task WHERE user_id = ?", userID)
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to clear queued tasks")
	}
	return res.RowsAffected()
}
