// Package chat answers nutrition questions: it retrieves USDA context,
// consults the response cache and calls the LLM backend through the limiter.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nutriempower/nutriempower/pkg/audit"
	"github.com/nutriempower/nutriempower/pkg/cache/memory"
	"github.com/nutriempower/nutriempower/pkg/limiter"
	"github.com/nutriempower/nutriempower/pkg/llm"
	"github.com/nutriempower/nutriempower/pkg/metrics"
	"github.com/nutriempower/nutriempower/pkg/models"
	"github.com/nutriempower/nutriempower/pkg/retrieval"
	"github.com/nutriempower/nutriempower/pkg/tracker"
)

const (
	// FallbackResponse replaces an empty answer from the backend.
	FallbackResponse = "Sorry, I couldn't generate a response right now."

	unavailableMessage = "LLM backend is not running. Start it with `ollama serve` and try again."
	timeoutMessage     = "LLM backend timed out"
)

// ErrEmptyMessage is returned for a blank question.
var ErrEmptyMessage = errors.New("message is required")

// BackendError is a failed backend call. Message is safe to show to users.
type BackendError struct {
	Message string
	Err     error
}

func (e *BackendError) Error() string { return e.Message }

func (e *BackendError) Unwrap() error { return e.Err }

// Backend generates a reply for one system instruction and one user turn.
type Backend interface {
	Chat(ctx context.Context, system, user string) (*models.BackendChatResponse, error)
	Model() string
}

// Auditor persists chat exchanges.
type Auditor interface {
	Log(ctx context.Context, entry models.AuditEntry) error
}

// Options tune a Service.
type Options struct {
	TopK         int
	SystemPrompt string
	// Timeout bounds each backend call once it holds a limiter slot.
	Timeout time.Duration
}

// Deps are the collaborators of a Service. Cache, Tracker, Auditor and
// Metrics may be nil.
type Deps struct {
	Scorer  *retrieval.Scorer
	Cache   *memory.Cache
	Limiter *limiter.Limiter
	Backend Backend
	Tracker tracker.Tracker
	Auditor Auditor
	Metrics *metrics.Metrics
	Log     zerolog.Logger
}

// Result is a successful reply.
type Result struct {
	Response string
	Cached   bool
	Elapsed  time.Duration
}

// Service is the long-lived chat pipeline shared by all requests.
type Service struct {
	opts Options
	deps Deps
	log  zerolog.Logger

	pending sync.WaitGroup
}

// New creates a Service.
func New(opts Options, deps Deps) *Service {
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if deps.Limiter == nil {
		deps.Limiter = limiter.New(1)
	}
	return &Service{opts: opts, deps: deps, log: deps.Log}
}

// BuildPrompt renders the user turn sent to the backend.
func BuildPrompt(contextJSON, message string) string {
	return "Context:\n" + contextJSON + "\n\nQuestion: " + message
}

// Reply answers one question.
func (s *Service) Reply(ctx context.Context, message string) (Result, error) {
	start := time.Now()
	if strings.TrimSpace(message) == "" {
		return Result{}, ErrEmptyMessage
	}

	records := s.deps.Scorer.Search(message, s.opts.TopK)
	ctxBytes, err := json.Marshal(records)
	if err != nil {
		return Result{}, fmt.Errorf("encode context: %w", err)
	}
	contextJSON := string(ctxBytes)
	key := memory.Key(message, contextJSON)

	entry := models.AuditEntry{
		RequestID:   audit.NewRequestID(),
		Model:       s.deps.Backend.Model(),
		MessageHash: audit.HashMessage(message),
		Message:     message,
		Context:     contextJSON,
	}

	if s.deps.Cache != nil {
		if cached, ok := s.deps.Cache.Get(key); ok {
			res := Result{Response: cached, Cached: true, Elapsed: time.Since(start)}
			entry.Response = cached
			entry.Cached = true
			entry.StatusCode = http.StatusOK
			s.record(entry, nil, res.Elapsed)
			return res, nil
		}
	}

	var resp *models.BackendChatResponse
	callStart := time.Now()
	err = s.deps.Limiter.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
		r, err := s.deps.Backend.Chat(callCtx, s.opts.SystemPrompt, BuildPrompt(contextJSON, message))
		resp = r
		return err
	})
	s.observeCall(err, time.Since(callStart))

	if err != nil {
		berr := backendError(err)
		s.log.Error().Err(err).Str("request_id", entry.RequestID).Msg("backend call failed")
		entry.Error = berr.Message
		entry.StatusCode = http.StatusInternalServerError
		s.record(entry, nil, time.Since(start))
		return Result{}, berr
	}

	text := ""
	if resp.Message != nil {
		text = resp.Message.Content
	}
	if strings.TrimSpace(text) == "" {
		text = FallbackResponse
	}

	if s.deps.Cache != nil {
		s.deps.Cache.Set(key, text)
	}

	res := Result{Response: text, Elapsed: time.Since(start)}
	usage := resp.Usage()
	if resp.Model != "" {
		entry.Model = resp.Model
	}
	entry.Response = text
	entry.StatusCode = http.StatusOK
	s.record(entry, &usage, res.Elapsed)
	return res, nil
}

// backendError turns a backend failure into a user-facing error.
func backendError(err error) *BackendError {
	var apiErr *llm.APIError
	switch {
	case errors.Is(err, llm.ErrBackendUnavailable):
		return &BackendError{Message: unavailableMessage, Err: err}
	case errors.Is(err, llm.ErrTimeout):
		return &BackendError{Message: timeoutMessage, Err: err}
	case errors.As(err, &apiErr):
		return &BackendError{Message: apiErr.Message, Err: err}
	case errors.Is(err, context.Canceled):
		return &BackendError{Message: "request cancelled", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &BackendError{Message: timeoutMessage, Err: err}
	}
	return &BackendError{Message: err.Error(), Err: err}
}

func (s *Service) observeCall(err error, d time.Duration) {
	m := s.deps.Metrics
	if m == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, llm.ErrBackendUnavailable):
		outcome = "unavailable"
	case errors.Is(err, llm.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	m.BackendCalls.WithLabelValues(outcome).Inc()
	m.BackendDuration.Observe(d.Seconds())
}

// record writes usage and the audit entry in the background. Failures are
// logged and never reach the caller.
func (s *Service) record(entry models.AuditEntry, usage *models.Usage, elapsed time.Duration) {
	entry.LatencyMs = elapsed.Milliseconds()
	entry.CreatedAt = time.Now().UTC()
	if usage != nil {
		entry.PromptTokens = usage.PromptTokens
		entry.CompletionTokens = usage.CompletionTokens
		entry.TotalTokens = usage.TotalTokens
	}

	if s.deps.Tracker == nil && s.deps.Auditor == nil {
		return
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx := context.Background()
		if usage != nil && s.deps.Tracker != nil {
			err := s.deps.Tracker.Record(ctx, models.UsageRecord{
				Model:            entry.Model,
				PromptTokens:     usage.PromptTokens,
				CompletionTokens: usage.CompletionTokens,
				TotalTokens:      usage.TotalTokens,
				LatencyMs:        entry.LatencyMs,
				CreatedAt:        entry.CreatedAt,
			})
			if err != nil {
				s.log.Warn().Err(err).Msg("usage record failed")
			}
		}
		if s.deps.Auditor != nil {
			if err := s.deps.Auditor.Log(ctx, entry); err != nil {
				s.log.Warn().Err(err).Str("request_id", entry.RequestID).Msg("audit log failed")
			}
		}
	}()
}

// Wait blocks until background usage and audit writes have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}
