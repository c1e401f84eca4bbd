package task

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is a meeting task's position in the pipeline.
type Status string

const (
	StatusRecorded    Status = "recorded"
	StatusTranscoding Status = "transcoding"
	StatusTranscoded  Status = "transcoded"
	StatusUploading   Status = "uploading"
	StatusUploaded    Status = "uploaded"
	StatusSubmitting  Status = "submitting"
	StatusPolling     Status = "polling"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// Terminal reports whether no further stage operation applies.
func (s Status) Terminal() bool { return s == StatusCompleted }

// Transient reports whether s marks an operation in flight. Transient
// statuses are never written to the store as rest states.
func (s Status) Transient() bool {
	return s == StatusTranscoding || s == StatusUploading || s == StatusSubmitting
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusRecorded, StatusTranscoding, StatusTranscoded, StatusUploading,
		StatusUploaded, StatusSubmitting, StatusPolling, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// MeetingTask is the unit of work driven through the pipeline.
type MeetingTask struct {
	ID           uuid.UUID        `json:"id"`
	RemoteTaskID string           `json:"remote_task_id,omitempty"` // provider-assigned, immutable once set
	AudioPath    string           `json:"audio_path"`               // local file; replaced when transcoding produces a new artifact
	ObjectURL    string           `json:"object_url,omitempty"`     // set once, after upload
	Status       Status           `json:"status"`
	ResumeStatus Status           `json:"resume_status,omitempty"` // rest state to resume from after a failure
	LastError    string           `json:"last_error,omitempty"`
	Title        string           `json:"title,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	Result       *CanonicalResult `json:"result,omitempty"`
}

// New creates a task for a finished recording or an imported audio file.
func New(audioPath, title string) *MeetingTask {
	return &MeetingTask{
		ID:        uuid.New(),
		AudioPath: audioPath,
		Status:    StatusRecorded,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
}

// Utterance is one attributed line of transcript.
type Utterance struct {
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text"`
}

// CanonicalResult is the provider-agnostic transcript/summary model.
// Absent fields mean the provider did not supply that artifact.
type CanonicalResult struct {
	Utterances      []Utterance     `json:"utterances,omitempty"`
	SummaryHeadline string          `json:"summary_headline,omitempty"`
	SummaryBody     string          `json:"summary_body,omitempty"`
	KeyPoints       []string        `json:"key_points,omitempty"`
	ActionItems     []string        `json:"action_items,omitempty"`
	Raw             json.RawMessage `json:"raw,omitempty"` // provider payload retained for audit
}

// Transcript renders the utterances as newline-joined lines,
// prefixing "{speaker}: " where a speaker was attributed.
func (r *CanonicalResult) Transcript() string {
	if r == nil || len(r.Utterances) == 0 {
		return ""
	}
	out := make([]byte, 0, 256)
	for i, u := range r.Utterances {
		if i > 0 {
			out = append(out, '\n')
		}
		if u.Speaker != "" {
			out = append(out, u.Speaker...)
			out = append(out, ':', ' ')
		}
		out = append(out, u.Text...)
	}
	return string(out)
}

// Empty reports whether normalization extracted nothing at all.
func (r *CanonicalResult) Empty() bool {
	return r == nil || (len(r.Utterances) == 0 && r.SummaryHeadline == "" &&
		r.SummaryBody == "" && len(r.KeyPoints) == 0 && len(r.ActionItems) == 0)
}
