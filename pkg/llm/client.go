// Package llm talks to a local Ollama-compatible chat runtime.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/nutriempower/nutriempower/pkg/config"
	"github.com/nutriempower/nutriempower/pkg/models"
)

var (
	// ErrBackendUnavailable means nothing is listening at the backend URL.
	ErrBackendUnavailable = errors.New("llm backend unavailable")
	// ErrTimeout means the call did not finish before its deadline.
	ErrTimeout = errors.New("llm backend timed out")
)

// APIError is a non-200 reply from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm backend returned %d: %s", e.StatusCode, e.Message)
}

// Client calls the backend's /api/chat endpoint without streaming.
type Client struct {
	baseURL   string
	model     string
	maxTokens int
	http      *http.Client
}

// New creates a Client for the configured backend. Deadlines come from the
// caller's context, not from the http.Client.
func New(cfg config.BackendConfig) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend URL: %q", cfg.URL)
	}
	return &Client{
		baseURL:   strings.TrimRight(u.String(), "/"),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		http:      &http.Client{},
	}, nil
}

// Model returns the model name sent with every request.
func (c *Client) Model() string { return c.model }

// Chat sends a system instruction and one user turn and returns the
// backend's reply.
func (c *Client) Chat(ctx context.Context, system, user string) (*models.BackendChatResponse, error) {
	req := models.BackendChatRequest{
		Model: c.model,
		Messages: []models.ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Stream: false,
	}
	if c.maxTokens > 0 {
		req.Options = &models.GenerateOptions{NumPredict: c.maxTokens}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	respBody, status, err := c.post(ctx, "/api/chat", body)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		return nil, &APIError{StatusCode: status, Message: errorMessage(respBody, status)}
	}

	var out models.BackendChatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if out.Error != "" {
		return nil, &APIError{StatusCode: status, Message: out.Error}
	}
	return &out, nil
}

// Ping checks that the backend answers on /api/tags.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return classify(ctx, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, classify(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, classify(ctx, fmt.Errorf("read response: %w", err))
	}
	return respBody, resp.StatusCode, nil
}

// classify maps transport failures onto the package sentinels.
func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("llm request: %w", err)
}

const maxErrorBody = 200

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// errorMessage extracts {"error": "..."} from a failed reply.
func errorMessage(body []byte, status int) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return truncate(msg, maxErrorBody)
	}
	return http.StatusText(status)
}
