package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meetpipe/meetpipe/internal/task"
)

// Transcoder converts a recording into the provider's target audio format.
// Opaque: input path in, output path (or error) out.
type Transcoder interface {
	Transcode(ctx context.Context, inputPath string) (string, error)
}

// Uploader puts a local file into object storage under a key and returns
// its public URL.
type Uploader interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
}

// Store is the persistence collaborator. Save must write the full record
// atomically; distinct records may be written concurrently.
type Store interface {
	Save(ctx context.Context, t *task.MeetingTask) error
	Get(ctx context.Context, id uuid.UUID) (*task.MeetingTask, error)
	List(ctx context.Context) ([]*task.MeetingTask, error)
}

// ObjectKey builds the storage key for a task's uploaded audio:
// {prefix}{yyyy}/{MM}/{dd}/{taskId}/mixed.m4a
func ObjectKey(prefix string, createdAt time.Time, id uuid.UUID) string {
	return fmt.Sprintf("%s%s/%s/mixed.m4a", prefix, createdAt.UTC().Format("2006/01/02"), id)
}
