package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meetpipe/meetpipe/internal/normalize"
	"github.com/meetpipe/meetpipe/internal/provider"
	"github.com/meetpipe/meetpipe/internal/task"
)

// Controller owns a task's lifecycle: it sequences
// transcode → upload → submit → poll and persists every transition.
//
// Each stage operation is manually triggered and idempotent: invoking an
// operation whose guard does not match the task's current status is a
// no-op, so callers can re-invoke the current action without tracking
// state themselves. Operations catch collaborator errors and translate
// them into a failed transition carrying a message; the only errors they
// return are persistence failures.
//
// The controller is not internally serialized. Busy is an advisory gate:
// callers must not run two stage operations on the same task at once.
// Distinct tasks are independent.
type Controller struct {
	store      Store
	transcoder Transcoder
	uploader   Uploader
	adapter    provider.Adapter
	normalizer *normalize.Normalizer
	taskOpts   provider.TaskOptions
	keyPrefix  string
	log        zerolog.Logger

	busy sync.Map // uuid.UUID -> struct{}
}

// Options configures a pipeline controller.
type Options struct {
	Store      Store
	Transcoder Transcoder
	Uploader   Uploader
	Adapter    provider.Adapter
	TaskOpts   provider.TaskOptions
	KeyPrefix  string
	Log        zerolog.Logger
}

// NewController creates a pipeline controller.
func NewController(opts Options) *Controller {
	return &Controller{
		store:      opts.Store,
		transcoder: opts.Transcoder,
		uploader:   opts.Uploader,
		adapter:    opts.Adapter,
		normalizer: normalize.New(opts.Adapter, opts.Log.With().Str("component", "normalize").Logger()),
		taskOpts:   opts.TaskOpts,
		keyPrefix:  opts.KeyPrefix,
		log:        opts.Log,
	}
}

// Create registers a new task for a recording or imported file and
// persists it in the recorded state.
func (c *Controller) Create(ctx context.Context, audioPath, title string) (*task.MeetingTask, error) {
	t := task.New(audioPath, title)
	if err := c.store.Save(ctx, t); err != nil {
		return nil, fmt.Errorf("save task: %w", err)
	}
	c.log.Info().Stringer("task", t.ID).Str("audio", audioPath).Msg("task created")
	return t, nil
}

// Busy reports whether a stage operation is in flight for the task.
// Advisory only — callers must honor it; the controller does not reject
// concurrent invocations itself.
func (c *Controller) Busy(id uuid.UUID) bool {
	_, ok := c.busy.Load(id)
	return ok
}

// Transcode runs the external transcoder. recorded → transcoded; the
// produced artifact replaces the task's local audio path.
func (c *Controller) Transcode(ctx context.Context, t *task.MeetingTask) error {
	if !guard(t, task.StatusRecorded) {
		return nil
	}
	defer c.mark(t.ID)()

	t.Status = task.StatusTranscoding
	out, err := c.transcoder.Transcode(ctx, t.AudioPath)
	if err != nil {
		return c.fail(ctx, t, task.StatusRecorded, fmt.Errorf("transcode: %w", err))
	}
	t.AudioPath = out
	return c.advance(ctx, t, task.StatusTranscoded)
}

// Upload puts the transcoded audio into object storage.
// transcoded → uploaded; the object URL is set once.
func (c *Controller) Upload(ctx context.Context, t *task.MeetingTask) error {
	if !guard(t, task.StatusTranscoded) {
		return nil
	}
	defer c.mark(t.ID)()

	t.Status = task.StatusUploading
	key := ObjectKey(c.keyPrefix, t.CreatedAt, t.ID)
	url, err := c.uploader.Upload(ctx, t.AudioPath, key)
	if err != nil {
		return c.fail(ctx, t, task.StatusTranscoded, fmt.Errorf("upload: %w", err))
	}
	t.ObjectURL = url
	return c.advance(ctx, t, task.StatusUploaded)
}

// Submit creates the remote transcription task. uploaded → polling; the
// provider-assigned id is immutable once set. The submitting status is
// strictly transient and never persisted as a rest state.
func (c *Controller) Submit(ctx context.Context, t *task.MeetingTask) error {
	if !guard(t, task.StatusUploaded) {
		return nil
	}
	defer c.mark(t.ID)()

	t.Status = task.StatusSubmitting
	remoteID, err := c.adapter.CreateTask(ctx, t.ObjectURL, c.taskOpts)
	if err != nil {
		return c.fail(ctx, t, task.StatusUploaded, fmt.Errorf("submit: %w", err))
	}
	t.RemoteTaskID = remoteID
	c.log.Info().Stringer("task", t.ID).Str("remote_task", remoteID).
		Str("provider", c.adapter.Name()).Msg("remote task created")
	return c.advance(ctx, t, task.StatusPolling)
}

// Poll performs exactly one remote status check. A running remote task
// leaves the status at polling untouched; repeated polling is the
// caller's responsibility. On success the raw payload is normalized and
// the canonical result stored with the completed transition.
func (c *Controller) Poll(ctx context.Context, t *task.MeetingTask) error {
	if !guard(t, task.StatusPolling) {
		return nil
	}
	defer c.mark(t.ID)()

	status, raw, err := c.adapter.GetTaskStatus(ctx, t.RemoteTaskID)
	if err != nil {
		return c.fail(ctx, t, task.StatusPolling, fmt.Errorf("poll: %w", err))
	}

	switch status {
	case provider.StatusRunning:
		if t.Status == task.StatusFailed {
			// A retried poll found the remote task alive again.
			return c.advance(ctx, t, task.StatusPolling)
		}
		return nil
	case provider.StatusSuccess:
		t.Result = c.normalizer.Normalize(ctx, raw)
		c.log.Info().Stringer("task", t.ID).
			Int("utterances", len(t.Result.Utterances)).
			Bool("summary", t.Result.SummaryBody != "").
			Msg("result normalized")
		return c.advance(ctx, t, task.StatusCompleted)
	default:
		return c.fail(ctx, t, task.StatusPolling, fmt.Errorf("poll: remote reported failure"))
	}
}

// Advance runs whichever stage operation the task's current status (or,
// for failed tasks, its resume point) calls for. Completed tasks are
// left alone.
func (c *Controller) Advance(ctx context.Context, t *task.MeetingTask) error {
	switch effective(t) {
	case task.StatusRecorded:
		return c.Transcode(ctx, t)
	case task.StatusTranscoded:
		return c.Upload(ctx, t)
	case task.StatusUploaded:
		return c.Submit(ctx, t)
	case task.StatusPolling:
		return c.Poll(ctx, t)
	default:
		return nil
	}
}

// guard checks a stage operation's entry condition: the matching rest
// state, or a failure whose resume point is that rest state.
func guard(t *task.MeetingTask, from task.Status) bool {
	return effective(t) == from
}

// effective resolves the failed state to the rest state it resumes from,
// so a retry re-enters the stage that failed rather than starting over.
func effective(t *task.MeetingTask) task.Status {
	if t.Status == task.StatusFailed {
		if t.ResumeStatus != "" {
			return t.ResumeStatus
		}
		return task.StatusRecorded
	}
	return t.Status
}

// mark sets the advisory busy flag, returning its release func.
func (c *Controller) mark(id uuid.UUID) func() {
	c.busy.Store(id, struct{}{})
	return func() { c.busy.Delete(id) }
}

// advance records a successful transition: the new rest state is
// persisted, and any previous failure context is cleared, before the
// stage operation returns.
func (c *Controller) advance(ctx context.Context, t *task.MeetingTask, to task.Status) error {
	t.Status = to
	t.ResumeStatus = ""
	t.LastError = ""
	if err := c.store.Save(ctx, t); err != nil {
		return fmt.Errorf("persist %s: %w", to, err)
	}
	c.log.Debug().Stringer("task", t.ID).Str("status", string(to)).Msg("transition")
	return nil
}

// fail records a failed transition. The resume point and everything the
// task obtained so far (path, URL, remote id) are retained so a retry
// resumes at the stage that failed. The operation error is captured on
// the task, not returned.
func (c *Controller) fail(ctx context.Context, t *task.MeetingTask, resume task.Status, opErr error) error {
	t.Status = task.StatusFailed
	t.ResumeStatus = resume
	t.LastError = opErr.Error()
	c.log.Warn().Stringer("task", t.ID).Str("resume", string(resume)).Err(opErr).Msg("stage failed")
	if err := c.store.Save(ctx, t); err != nil {
		return fmt.Errorf("persist failure: %w", err)
	}
	return nil
}
