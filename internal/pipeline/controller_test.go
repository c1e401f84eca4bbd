package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meetpipe/meetpipe/internal/provider"
	"github.com/meetpipe/meetpipe/internal/task"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]task.MeetingTask
	saves int
	fail  bool
}

func newMemStore() *memStore {
	return &memStore{tasks: make(map[uuid.UUID]task.MeetingTask)}
}

func (s *memStore) Save(ctx context.Context, t *task.MeetingTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store unavailable")
	}
	s.saves++
	s.tasks[t.ID] = *t
	return nil
}

func (s *memStore) Get(ctx context.Context, id uuid.UUID) (*task.MeetingTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := t
	return &cp, nil
}

func (s *memStore) List(ctx context.Context) ([]*task.MeetingTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*task.MeetingTask
	for _, t := range s.tasks {
		cp := t
		out = append(out, &cp)
	}
	return out, nil
}

type fakeTranscoder struct {
	out   string
	err   error
	calls int
}

func (f *fakeTranscoder) Transcode(ctx context.Context, in string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.out, nil
}

type fakeUploader struct {
	url   string
	err   error
	key   string
	calls int
}

func (f *fakeUploader) Upload(ctx context.Context, localPath, key string) (string, error) {
	f.calls++
	f.key = key
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

type fakeAdapter struct {
	remoteID    string
	createErr   error
	status      provider.NormalizedStatus
	statusErr   error
	raw         json.RawMessage
	createCalls int
	pollCalls   int
}

func (f *fakeAdapter) CreateTask(ctx context.Context, url string, opts provider.TaskOptions) (string, error) {
	f.createCalls++
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.remoteID, nil
}

func (f *fakeAdapter) GetTaskStatus(ctx context.Context, id string) (provider.NormalizedStatus, json.RawMessage, error) {
	f.pollCalls++
	if f.statusErr != nil {
		return provider.StatusFailed, nil, f.statusErr
	}
	return f.status, f.raw, nil
}

func (f *fakeAdapter) FetchDocument(ctx context.Context, url string) (map[string]any, error) {
	return nil, errors.New("no documents")
}

func (f *fakeAdapter) Name() string { return "fake" }

type fixture struct {
	ctrl       *Controller
	store      *memStore
	transcoder *fakeTranscoder
	uploader   *fakeUploader
	adapter    *fakeAdapter
}

func newFixture() *fixture {
	store := newMemStore()
	tr := &fakeTranscoder{out: "/work/mixed.m4a"}
	up := &fakeUploader{url: "https://bucket.example.com/key/mixed.m4a"}
	ad := &fakeAdapter{remoteID: "remote-123", status: provider.StatusRunning}
	ctrl := NewController(Options{
		Store:      store,
		Transcoder: tr,
		Uploader:   up,
		Adapter:    ad,
		KeyPrefix:  "meetings/",
		Log:        zerolog.Nop(),
	})
	return &fixture{ctrl: ctrl, store: store, transcoder: tr, uploader: up, adapter: ad}
}

func (f *fixture) newTask(t *testing.T) *task.MeetingTask {
	t.Helper()
	mt, err := f.ctrl.Create(context.Background(), "/rec/raw.wav", "Standup")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return mt
}

func (f *fixture) persisted(t *testing.T, id uuid.UUID) *task.MeetingTask {
	t.Helper()
	mt, err := f.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return mt
}

func TestCreate(t *testing.T) {
	f := newFixture()
	mt := f.newTask(t)

	if mt.Status != task.StatusRecorded {
		t.Errorf("Status = %q, want recorded", mt.Status)
	}
	p := f.persisted(t, mt.ID)
	if p.Status != task.StatusRecorded {
		t.Errorf("persisted Status = %q, want recorded", p.Status)
	}
	if p.AudioPath != "/rec/raw.wav" {
		t.Errorf("AudioPath = %q", p.AudioPath)
	}
}

func TestTranscode(t *testing.T) {
	ctx := context.Background()

	t.Run("success_advances_and_replaces_path", func(t *testing.T) {
		f := newFixture()
		mt := f.newTask(t)

		if err := f.ctrl.Transcode(ctx, mt); err != nil {
			t.Fatalf("Transcode: %v", err)
		}
		if mt.Status != task.StatusTranscoded {
			t.Errorf("Status = %q, want transcoded", mt.Status)
		}
		if mt.AudioPath != "/work/mixed.m4a" {
			t.Errorf("AudioPath = %q, want transcoded artifact", mt.AudioPath)
		}
		if p := f.persisted(t, mt.ID); p.Status != task.StatusTranscoded {
			t.Errorf("persisted Status = %q, want transcoded", p.Status)
		}
	})

	t.Run("failure_records_error_and_resume_point", func(t *testing.T) {
		f := newFixture()
		f.transcoder.err = errors.New("codec exploded")
		mt := f.newTask(t)

		if err := f.ctrl.Transcode(ctx, mt); err != nil {
			t.Fatalf("Transcode: %v", err)
		}
		if mt.Status != task.StatusFailed {
			t.Errorf("Status = %q, want failed", mt.Status)
		}
		if mt.ResumeStatus != task.StatusRecorded {
			t.Errorf("ResumeStatus = %q, want recorded", mt.ResumeStatus)
		}
		if mt.LastError == "" {
			t.Error("LastError empty, want transcode error message")
		}
		if mt.AudioPath != "/rec/raw.wav" {
			t.Errorf("AudioPath = %q, original must be retained", mt.AudioPath)
		}
	})

	t.Run("retry_from_failed_resumes_stage", func(t *testing.T) {
		f := newFixture()
		f.transcoder.err = errors.New("flake")
		mt := f.newTask(t)
		f.ctrl.Transcode(ctx, mt)

		f.transcoder.err = nil
		if err := f.ctrl.Transcode(ctx, mt); err != nil {
			t.Fatalf("retry Transcode: %v", err)
		}
		if mt.Status != task.StatusTranscoded {
			t.Errorf("Status = %q, want transcoded", mt.Status)
		}
		if mt.LastError != "" {
			t.Errorf("LastError = %q, want cleared on success", mt.LastError)
		}
	})

	t.Run("guard_mismatch_is_noop", func(t *testing.T) {
		f := newFixture()
		mt := f.newTask(t)
		mt.Status = task.StatusPolling
		mt.RemoteTaskID = "remote-123"

		if err := f.ctrl.Transcode(ctx, mt); err != nil {
			t.Fatalf("Transcode: %v", err)
		}
		if mt.Status != task.StatusPolling {
			t.Errorf("Status = %q, guard mismatch must not change state", mt.Status)
		}
		if f.transcoder.calls != 0 {
			t.Errorf("transcoder invoked %d times, want 0", f.transcoder.calls)
		}
	})
}

func TestUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("success_sets_object_url", func(t *testing.T) {
		f := newFixture()
		mt := f.newTask(t)
		f.ctrl.Transcode(ctx, mt)

		if err := f.ctrl.Upload(ctx, mt); err != nil {
			t.Fatalf("Upload: %v", err)
		}
		if mt.Status != task.StatusUploaded {
			t.Errorf("Status = %q, want uploaded", mt.Status)
		}
		if mt.ObjectURL == "" {
			t.Error("ObjectURL not set")
		}
		wantKey := ObjectKey("meetings/", mt.CreatedAt, mt.ID)
		if f.uploader.key != wantKey {
			t.Errorf("upload key = %q, want %q", f.uploader.key, wantKey)
		}
	})

	t.Run("failure_keeps_transcoded_artifact", func(t *testing.T) {
		f := newFixture()
		mt := f.newTask(t)
		f.ctrl.Transcode(ctx, mt)
		f.uploader.err = errors.New("bucket gone")

		f.ctrl.Upload(ctx, mt)
		if mt.Status != task.StatusFailed {
			t.Errorf("Status = %q, want failed", mt.Status)
		}
		if mt.ResumeStatus != task.StatusTranscoded {
			t.Errorf("ResumeStatus = %q, want transcoded", mt.ResumeStatus)
		}
		if f.transcoder.calls != 1 {
			t.Errorf("transcoder calls = %d, retry must not re-transcode", f.transcoder.calls)
		}
	})
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("success_assigns_remote_id_and_polls", func(t *testing.T) {
		f := newFixture()
		mt := f.newTask(t)
		f.ctrl.Transcode(ctx, mt)
		f.ctrl.Upload(ctx, mt)

		if err := f.ctrl.Submit(ctx, mt); err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if mt.Status != task.StatusPolling {
			t.Errorf("Status = %q, want polling", mt.Status)
		}
		if mt.RemoteTaskID != "remote-123" {
			t.Errorf("RemoteTaskID = %q", mt.RemoteTaskID)
		}
	})

	t.Run("failure_resumes_from_uploaded", func(t *testing.T) {
		f := newFixture()
		f.adapter.createErr = &provider.AuthError{Reason: "no key"}
		mt := f.newTask(t)
		f.ctrl.Transcode(ctx, mt)
		f.ctrl.Upload(ctx, mt)

		f.ctrl.Submit(ctx, mt)
		if mt.Status != task.StatusFailed {
			t.Errorf("Status = %q, want failed", mt.Status)
		}
		if mt.ResumeStatus != task.StatusUploaded {
			t.Errorf("ResumeStatus = %q, want uploaded", mt.ResumeStatus)
		}
		if mt.ObjectURL == "" {
			t.Error("ObjectURL lost; retry must not re-upload")
		}

		// Retry resubmits without touching earlier stages.
		f.adapter.createErr = nil
		f.ctrl.Submit(ctx, mt)
		if mt.Status != task.StatusPolling {
			t.Errorf("Status = %q after retry, want polling", mt.Status)
		}
		if f.uploader.calls != 1 {
			t.Errorf("uploader calls = %d, want 1", f.uploader.calls)
		}
	})
}

func TestPoll(t *testing.T) {
	ctx := context.Background()

	toPolling := func(t *testing.T, f *fixture) *task.MeetingTask {
		t.Helper()
		mt := f.newTask(t)
		f.ctrl.Transcode(ctx, mt)
		f.ctrl.Upload(ctx, mt)
		f.ctrl.Submit(ctx, mt)
		if mt.Status != task.StatusPolling {
			t.Fatalf("setup: Status = %q, want polling", mt.Status)
		}
		return mt
	}

	t.Run("running_leaves_state_unchanged", func(t *testing.T) {
		f := newFixture()
		mt := toPolling(t, f)
		saves := f.store.saves

		if err := f.ctrl.Poll(ctx, mt); err != nil {
			t.Fatalf("Poll: %v", err)
		}
		if mt.Status != task.StatusPolling {
			t.Errorf("Status = %q, want polling", mt.Status)
		}
		if mt.Result != nil {
			t.Error("Result set on a running poll")
		}
		if f.store.saves != saves {
			t.Errorf("saves = %d, a running poll must not persist", f.store.saves)
		}
		if f.ctrl.Busy(mt.ID) {
			t.Error("busy flag not cleared after poll")
		}
	})

	t.Run("success_normalizes_and_completes", func(t *testing.T) {
		f := newFixture()
		mt := toPolling(t, f)
		f.adapter.status = provider.StatusSuccess
		f.adapter.raw = json.RawMessage(`{"text": "Full transcript text here."}`)

		if err := f.ctrl.Poll(ctx, mt); err != nil {
			t.Fatalf("Poll: %v", err)
		}
		if mt.Status != task.StatusCompleted {
			t.Errorf("Status = %q, want completed", mt.Status)
		}
		if mt.Result == nil {
			t.Fatal("Result not populated")
		}
		if got := mt.Result.Transcript(); got != "Full transcript text here." {
			t.Errorf("Transcript = %q", got)
		}
		if p := f.persisted(t, mt.ID); p.Status != task.StatusCompleted {
			t.Errorf("persisted Status = %q, want completed", p.Status)
		}
	})

	t.Run("remote_failure_fails_task", func(t *testing.T) {
		f := newFixture()
		mt := toPolling(t, f)
		f.adapter.statusErr = &provider.RemoteTaskError{TaskID: "remote-123", Message: "bad audio"}

		f.ctrl.Poll(ctx, mt)
		if mt.Status != task.StatusFailed {
			t.Errorf("Status = %q, want failed", mt.Status)
		}
		if mt.ResumeStatus != task.StatusPolling {
			t.Errorf("ResumeStatus = %q, want polling", mt.ResumeStatus)
		}
		if mt.RemoteTaskID == "" {
			t.Error("RemoteTaskID lost; retry must not resubmit")
		}
	})

	t.Run("retry_after_failure_repolls_only", func(t *testing.T) {
		f := newFixture()
		mt := toPolling(t, f)
		f.adapter.statusErr = errors.New("connection reset")
		f.ctrl.Poll(ctx, mt)

		f.adapter.statusErr = nil
		f.adapter.status = provider.StatusRunning
		if err := f.ctrl.Poll(ctx, mt); err != nil {
			t.Fatalf("retry Poll: %v", err)
		}
		if mt.Status != task.StatusPolling {
			t.Errorf("Status = %q, want polling restored", mt.Status)
		}
		if mt.LastError != "" {
			t.Errorf("LastError = %q, want cleared", mt.LastError)
		}
		if f.adapter.createCalls != 1 {
			t.Errorf("createCalls = %d, retry must not resubmit", f.adapter.createCalls)
		}
	})
}

func TestAdvanceWalksFullPipeline(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.adapter.status = provider.StatusSuccess
	f.adapter.raw = json.RawMessage(`{"text": "hi"}`)
	mt := f.newTask(t)

	want := []task.Status{
		task.StatusTranscoded,
		task.StatusUploaded,
		task.StatusPolling,
		task.StatusCompleted,
	}
	for i, w := range want {
		if err := f.ctrl.Advance(ctx, mt); err != nil {
			t.Fatalf("Advance %d: %v", i, err)
		}
		if mt.Status != w {
			t.Fatalf("Advance %d: Status = %q, want %q", i, mt.Status, w)
		}
	}

	// Advancing a completed task is a no-op.
	if err := f.ctrl.Advance(ctx, mt); err != nil {
		t.Fatalf("Advance terminal: %v", err)
	}
	if mt.Status != task.StatusCompleted {
		t.Errorf("Status = %q, terminal state must not change", mt.Status)
	}
}

func TestPersistenceErrorSurfaces(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	mt := f.newTask(t)
	f.store.fail = true

	if err := f.ctrl.Transcode(ctx, mt); err == nil {
		t.Error("Transcode returned nil, want persistence error")
	}
}

func TestObjectKey(t *testing.T) {
	id := uuid.MustParse("a2e49e03-59ce-47e1-9b34-1b16dd1bde3f")
	created, err := time.Parse(time.RFC3339, "2026-03-15T10:30:00Z")
	if err != nil {
		t.Fatal(err)
	}

	got := ObjectKey("meetings/", created, id)
	want := fmt.Sprintf("meetings/2026/03/15/%s/mixed.m4a", id)
	if got != want {
		t.Errorf("ObjectKey = %q, want %q", got, want)
	}
}
