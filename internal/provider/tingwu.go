package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// TingwuClient drives the Aliyun-style HMAC-signed offline transcription
// API. Implements the Adapter interface.
type TingwuClient struct {
	scheme   string
	host     string
	basePath string
	appKey   string
	signer   *Signer
	client   *http.Client
}

// TingwuConfig configures the HMAC provider client.
type TingwuConfig struct {
	Host            string // e.g. "tingwu.cn-beijing.aliyuncs.com"
	BasePath        string // e.g. "/openapi/tingwu/v2"
	AppKey          string
	AccessKeyID     string
	AccessKeySecret string
	APIVersion      string
	Timeout         time.Duration
}

// NewTingwuClient creates a new HMAC provider client.
func NewTingwuClient(cfg TingwuConfig) *TingwuClient {
	version := cfg.APIVersion
	if version == "" {
		version = "2023-09-30"
	}
	return &TingwuClient{
		scheme:   "https",
		host:     cfg.Host,
		basePath: cfg.BasePath,
		appKey:   cfg.AppKey,
		signer: &Signer{
			KeyID:   cfg.AccessKeyID,
			Secret:  cfg.AccessKeySecret,
			Host:    cfg.Host,
			Version: version,
		},
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider name.
func (t *TingwuClient) Name() string { return "tingwu" }

// tingwuEnvelope is the outer response shape shared by all endpoints.
type tingwuEnvelope struct {
	Code    string          `json:"Code"`
	Message string          `json:"Message"`
	Data    json.RawMessage `json:"Data"`
}

// CreateTask submits an offline transcription task for an uploaded audio URL.
func (t *TingwuClient) CreateTask(ctx context.Context, remoteFileURL string, opts TaskOptions) (string, error) {
	if remoteFileURL == "" {
		return "", &ValidationError{Reason: "remote file url is empty"}
	}
	if t.appKey == "" {
		return "", &AuthError{Reason: "app key not configured"}
	}

	format := opts.AudioFormat
	if format == "" {
		format = "aac"
	}
	payload := map[string]any{
		"AppKey": t.appKey,
		"Input": map[string]any{
			"FileUrl":        remoteFileURL,
			"SourceLanguage": opts.SourceLanguage,
		},
		"Parameters": map[string]any{
			"AutoChaptersEnabled":  opts.AutoChapters,
			"SummarizationEnabled": opts.Summarization,
			"Transcoding": map[string]any{
				"TargetAudioFormat": format,
				"SpectrumEnabled":   false,
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	query := url.Values{"type": []string{"offline"}}
	env, err := t.call(ctx, http.MethodPut, t.basePath+"/tasks", query, body)
	if err != nil {
		return "", err
	}

	var data struct {
		TaskID string `json:"TaskId"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.TaskID == "" {
		return "", fmt.Errorf("create task: no task id in response (code %s: %s)", env.Code, env.Message)
	}
	return data.TaskID, nil
}

// GetTaskStatus performs one status check. On success the raw Data object
// (which carries the result-document pointers) is returned for normalization.
func (t *TingwuClient) GetTaskStatus(ctx context.Context, remoteTaskID string) (NormalizedStatus, json.RawMessage, error) {
	if remoteTaskID == "" {
		return StatusFailed, nil, &ValidationError{Reason: "remote task id is empty"}
	}

	env, err := t.call(ctx, http.MethodGet, t.basePath+"/tasks/"+remoteTaskID, nil, nil)
	if err != nil {
		return StatusFailed, nil, err
	}

	var data struct {
		TaskStatus   string `json:"TaskStatus"`
		ErrorMessage string `json:"ErrorMessage"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return StatusFailed, nil, fmt.Errorf("decode task status: %w", err)
	}

	switch data.TaskStatus {
	case "ONGOING":
		return StatusRunning, nil, nil
	case "SUCCESS", "COMPLETED":
		return StatusSuccess, env.Data, nil
	case "FAILED":
		msg := data.ErrorMessage
		if msg == "" {
			msg = env.Message
		}
		return StatusFailed, nil, &RemoteTaskError{TaskID: remoteTaskID, Message: msg}
	default:
		return StatusFailed, nil, &RemoteTaskError{TaskID: remoteTaskID,
			Message: fmt.Sprintf("unknown task status %q", data.TaskStatus)}
	}
}

// FetchDocument resolves one result-document pointer. The pointers are
// presigned URLs and need no request signing.
func (t *TingwuClient) FetchDocument(ctx context.Context, docURL string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// call signs and executes one API request, decoding the common envelope.
func (t *TingwuClient) call(ctx context.Context, method, path string, query url.Values, body []byte) (*tingwuEnvelope, error) {
	signed, err := t.signer.Sign(method, path, query, body)
	if err != nil {
		return nil, err
	}

	u := url.URL{Scheme: t.scheme, Host: t.host, Path: path, RawQuery: query.Encode()}
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range signed.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tingwu request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var env tingwuEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &env, nil
}
