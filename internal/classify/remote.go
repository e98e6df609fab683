package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/linuxmatters/sonogram/internal/config"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 1 << 20

// Remote posts uploads to an inference service exposing POST /analyze
// (multipart field "audio") and GET /health.
type Remote struct {
	baseURL    string
	httpClient *http.Client
}

// RemoteOption customises a Remote.
type RemoteOption func(*Remote)

// WithTimeout bounds each request. Zero keeps the default.
func WithTimeout(d time.Duration) RemoteOption {
	return func(r *Remote) {
		if d > 0 {
			r.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *Remote) { r.httpClient = c }
}

// NewRemote returns a client for the service at baseURL.
func NewRemote(baseURL string, opts ...RemoteOption) (*Remote, error) {
	if baseURL == "" {
		return nil, errors.New("classify: remote URL is empty")
	}
	r := &Remote{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: config.DefaultClassifyTimeout},
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Classify uploads data and decodes the verdict.
func (r *Remote) Classify(ctx context.Context, fileName string, data []byte) (*Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("audio", fileName)
	if err != nil {
		return nil, fmt.Errorf("classify: create form file: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, fmt.Errorf("classify: write audio data: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("classify: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/analyze", &body)
	if err != nil {
		return nil, fmt.Errorf("classify: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classify: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("classify: read response body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, remoteError(resp.StatusCode, raw)
	}

	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("classify: parse JSON response: %w", err)
	}
	stamp(&result, data)
	return &result, nil
}

// Health calls GET /health.
func (r *Remote) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("classify: create request: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("classify: health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		return remoteError(resp.StatusCode, raw)
	}
	return nil
}

// RemoteError is a non-2xx answer from the inference service.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("classify: server returned HTTP %d: %s", e.StatusCode, e.Message)
}

func remoteError(status int, raw []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	msg := "Analysis failed"
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &RemoteError{StatusCode: status, Message: msg}
}
