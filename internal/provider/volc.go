package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// VolcClient drives the ByteDance-style token-authenticated submit/query
// API. Implements the Adapter interface.
type VolcClient struct {
	baseURL string
	appID   string
	token   string
	cluster string
	uid     string
	client  *http.Client
}

// VolcConfig configures the token provider client.
type VolcConfig struct {
	BaseURL string // e.g. "https://openspeech.bytedance.com/api/v1/auc"
	AppID   string
	Token   string
	Cluster string
	UID     string
	Timeout time.Duration
}

// NewVolcClient creates a new token provider client.
func NewVolcClient(cfg VolcConfig) *VolcClient {
	return &VolcClient{
		baseURL: cfg.BaseURL,
		appID:   cfg.AppID,
		token:   cfg.Token,
		cluster: cfg.Cluster,
		uid:     cfg.UID,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider name.
func (v *VolcClient) Name() string { return "volc" }

// volcResp is the inner "resp" object common to submit and query responses.
// Code arrives as a number or a string depending on API version.
type volcResp struct {
	Code    json.RawMessage `json:"code"`
	ID      string          `json:"id"`
	Message string          `json:"message"`
}

// submitOK is the success code for both submit and query.
const submitOK = 1000

// CreateTask submits a remote audio URL for offline transcription.
func (v *VolcClient) CreateTask(ctx context.Context, remoteFileURL string, opts TaskOptions) (string, error) {
	if err := v.checkCredentials(); err != nil {
		return "", err
	}
	if remoteFileURL == "" {
		return "", &ValidationError{Reason: "remote file url is empty"}
	}

	format := opts.AudioFormat
	if format == "" {
		format = "m4a"
	}
	payload := map[string]any{
		"app": map[string]any{
			"appid":   v.appID,
			"token":   v.token,
			"cluster": v.cluster,
		},
		"user": map[string]any{
			"uid": v.uid,
		},
		"audio": map[string]any{
			"url":    remoteFileURL,
			"format": format,
		},
		"additions": map[string]any{
			"with_speaker_info": strconv.FormatBool(opts.SpeakerInfo),
			"use_itn":           "True",
			"use_punc":          "True",
		},
	}

	resp, _, err := v.post(ctx, "/submit", payload)
	if err != nil {
		return "", err
	}

	code, ok := parseCode(resp.Code)
	if !ok || code != submitOK {
		return "", fmt.Errorf("submit rejected (code %s): %s", string(resp.Code), resp.Message)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("submit accepted but no task id returned")
	}
	return resp.ID, nil
}

// GetTaskStatus performs one status check. The provider's numeric code
// lattice maps onto the 3-way status: 1000 success, (1000,2000) still
// running, anything else failed.
func (v *VolcClient) GetTaskStatus(ctx context.Context, remoteTaskID string) (NormalizedStatus, json.RawMessage, error) {
	if err := v.checkCredentials(); err != nil {
		return StatusFailed, nil, err
	}
	if remoteTaskID == "" {
		return StatusFailed, nil, &ValidationError{Reason: "remote task id is empty"}
	}

	payload := map[string]any{
		"appid":   v.appID,
		"token":   v.token,
		"cluster": v.cluster,
		"id":      remoteTaskID,
	}
	resp, raw, err := v.post(ctx, "/query", payload)
	if err != nil {
		return StatusFailed, nil, err
	}

	code, ok := parseCode(resp.Code)
	switch {
	case ok && code == submitOK:
		return StatusSuccess, raw, nil
	case ok && code > submitOK && code < 2000:
		return StatusRunning, nil, nil
	default:
		return StatusFailed, nil, &RemoteTaskError{TaskID: remoteTaskID, Message: resp.Message}
	}
}

// FetchDocument resolves an auxiliary document pointer. The token provider
// returns results inline, but the contract is honored for payloads that
// carry external links.
func (v *VolcClient) FetchDocument(ctx context.Context, docURL string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := v.client.Do(req)
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

func (v *VolcClient) checkCredentials() error {
	if v.appID == "" || v.token == "" || v.cluster == "" {
		return &AuthError{Reason: "appid/token/cluster not configured"}
	}
	return nil
}

// post executes one API call and decodes the outer {"resp": ...} envelope,
// returning both the parsed resp and its raw JSON for the normalizer.
func (v *VolcClient) post(ctx context.Context, path string, payload map[string]any) (*volcResp, json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// Bearer token with the provider's nonstandard semicolon separator.
	req.Header.Set("Authorization", "Bearer; "+v.token)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("volc request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var env struct {
		Resp json.RawMessage `json:"resp"`
	}
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, nil, fmt.Errorf("decode response: %w", err)
	}
	if len(env.Resp) == 0 {
		return nil, nil, fmt.Errorf("response has no resp object")
	}

	var r volcResp
	if err := json.Unmarshal(env.Resp, &r); err != nil {
		return nil, nil, fmt.Errorf("decode resp: %w", err)
	}
	return &r, env.Resp, nil
}

// parseCode accepts the provider's numeric-or-string status code.
func parseCode(raw json.RawMessage) (int64, bool) {
	// json.Unmarshal treats null as a no-op, so reject it up front.
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}
