package provider

import (
	"context"
	"encoding/json"
)

// NormalizedStatus is the 3-way lattice every provider's native status
// vocabulary maps onto.
type NormalizedStatus int

const (
	StatusRunning NormalizedStatus = iota
	StatusSuccess
	StatusFailed
)

func (s NormalizedStatus) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// TaskOptions are per-submission knobs passed through to the provider.
type TaskOptions struct {
	SourceLanguage string
	AudioFormat    string
	Summarization  bool
	AutoChapters   bool
	SpeakerInfo    bool
}

// Adapter is the uniform contract over one ASR provider's wire protocol.
type Adapter interface {
	// CreateTask submits a remote audio URL for offline transcription and
	// returns the provider-assigned task id.
	CreateTask(ctx context.Context, remoteFileURL string, opts TaskOptions) (string, error)

	// GetTaskStatus checks a remote task. The raw payload is non-nil only
	// when the provider returned a result body worth keeping (typically on
	// success), and is handed unparsed to the normalizer.
	GetTaskStatus(ctx context.Context, remoteTaskID string) (NormalizedStatus, json.RawMessage, error)

	// FetchDocument resolves one auxiliary document pointer (a URL embedded
	// in the main result) into its JSON object.
	FetchDocument(ctx context.Context, url string) (map[string]any, error)

	// Name identifies the provider for logs and task records.
	Name() string
}
