package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/meetpipe/meetpipe/internal/task"
)

// ErrNotFound is returned when no task record exists for an id.
var ErrNotFound = errors.New("task not found")

const tasksSchema = `
CREATE TABLE IF NOT EXISTS meeting_tasks (
    id             uuid PRIMARY KEY,
    remote_task_id text NOT NULL DEFAULT '',
    audio_path     text NOT NULL,
    object_url     text NOT NULL DEFAULT '',
    status         text NOT NULL,
    resume_status  text NOT NULL DEFAULT '',
    last_error     text NOT NULL DEFAULT '',
    title          text NOT NULL DEFAULT '',
    created_at     timestamptz NOT NULL,
    result         jsonb
);
CREATE INDEX IF NOT EXISTS idx_meeting_tasks_status ON meeting_tasks (status);
CREATE INDEX IF NOT EXISTS idx_meeting_tasks_created ON meeting_tasks (created_at DESC);
`

// InitSchema applies the task schema. Idempotent; safe on every startup.
func (db *DB) InitSchema(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, tasksSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	db.log.Debug().Msg("task schema ready")
	return nil
}

// Save upserts the full task record in one statement, so every status
// transition is durable before the stage operation returns. Distinct
// records may be written concurrently.
func (db *DB) Save(ctx context.Context, t *task.MeetingTask) error {
	var result []byte
	if t.Result != nil {
		var err error
		result, err = json.Marshal(t.Result)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO meeting_tasks
			(id, remote_task_id, audio_path, object_url, status, resume_status, last_error, title, created_at, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			remote_task_id = EXCLUDED.remote_task_id,
			audio_path     = EXCLUDED.audio_path,
			object_url     = EXCLUDED.object_url,
			status         = EXCLUDED.status,
			resume_status  = EXCLUDED.resume_status,
			last_error     = EXCLUDED.last_error,
			title          = EXCLUDED.title,
			result         = EXCLUDED.result`,
		t.ID, t.RemoteTaskID, t.AudioPath, t.ObjectURL, string(t.Status),
		string(t.ResumeStatus), t.LastError, t.Title, t.CreatedAt, result)
	if err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	return nil
}

// Get loads one task record.
func (db *DB) Get(ctx context.Context, id uuid.UUID) (*task.MeetingTask, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, remote_task_id, audio_path, object_url, status, resume_status, last_error, title, created_at, result
		FROM meeting_tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// List returns all task records, newest first.
func (db *DB) List(ctx context.Context) ([]*task.MeetingTask, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, remote_task_id, audio_path, object_url, status, resume_status, last_error, title, created_at, result
		FROM meeting_tasks ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.MeetingTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanTask(row pgx.Row) (*task.MeetingTask, error) {
	var (
		t      task.MeetingTask
		status string
		resume string
		result []byte
	)
	err := row.Scan(&t.ID, &t.RemoteTaskID, &t.AudioPath, &t.ObjectURL,
		&status, &resume, &t.LastError, &t.Title, &t.CreatedAt, &result)
	if err != nil {
		return nil, err
	}
	t.Status = task.Status(status)
	t.ResumeStatus = task.Status(resume)
	if len(result) > 0 {
		t.Result = &task.CanonicalResult{}
		if err := json.Unmarshal(result, t.Result); err != nil {
			return nil, fmt.Errorf("decode result for %s: %w", t.ID, err)
		}
	}
	return &t, nil
}
