package chat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutriempower/nutriempower/pkg/cache/memory"
	"github.com/nutriempower/nutriempower/pkg/config"
	"github.com/nutriempower/nutriempower/pkg/limiter"
	"github.com/nutriempower/nutriempower/pkg/llm"
	"github.com/nutriempower/nutriempower/pkg/models"
	"github.com/nutriempower/nutriempower/pkg/retrieval"
)

type staticSource []models.FoodRecord

func (s staticSource) Records() []models.FoodRecord { return s }

func strPtr(s string) *string { return &s }

var foods = staticSource{
	{ID: strPtr("1"), Description: "Apples, raw, with skin", Category: strPtr("Fruits and Fruit Juices")},
	{ID: strPtr("2"), Description: "Lentils, mature seeds, cooked", Category: strPtr("Legumes and Legume Products")},
	{ID: strPtr("3"), Description: "Rice, brown, long-grain, cooked", Category: strPtr("Cereal Grains and Pasta")},
}

type fakeBackend struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	reply   func(ctx context.Context, call int) (*models.BackendChatResponse, error)
}

func (f *fakeBackend) Chat(ctx context.Context, system, user string) (*models.BackendChatResponse, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.prompts = append(f.prompts, user)
	f.mu.Unlock()
	if f.reply != nil {
		return f.reply(ctx, call)
	}
	return answer("Apples are a good source of fiber."), nil
}

func (f *fakeBackend) Model() string { return "llama3.2:1b" }

func (f *fakeBackend) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func answer(text string) *models.BackendChatResponse {
	return &models.BackendChatResponse{
		Model:           "llama3.2:1b",
		Message:         &models.ChatMessage{Role: "assistant", Content: text},
		Done:            true,
		PromptEvalCount: 30,
		EvalCount:       10,
	}
}

type fakeTracker struct {
	mu      sync.Mutex
	records []models.UsageRecord
}

func (f *fakeTracker) Record(_ context.Context, rec models.UsageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeTracker) Query(context.Context, time.Time, int) ([]models.UsageRecord, error) {
	return nil, nil
}
func (f *fakeTracker) Total(context.Context, time.Time) (int64, error) { return 0, nil }
func (f *fakeTracker) Summary(context.Context, string) ([]models.UsageSummary, error) {
	return nil, nil
}
func (f *fakeTracker) Close() error { return nil }

type fakeAuditor struct {
	mu      sync.Mutex
	entries []models.AuditEntry
}

func (f *fakeAuditor) Log(_ context.Context, e models.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func newService(t *testing.T, source retrieval.Source, backend Backend, cache *memory.Cache) *Service {
	t.Helper()
	return New(Options{TopK: 3, SystemPrompt: config.DefaultSystemPrompt, Timeout: time.Second}, Deps{
		Scorer:  retrieval.New(source, retrieval.DefaultMaxTokens),
		Cache:   cache,
		Limiter: limiter.New(1),
		Backend: backend,
		Log:     zerolog.Nop(),
	})
}

func TestReplyEmptyMessage(t *testing.T) {
	backend := &fakeBackend{}
	cache := memory.New(10, time.Minute)
	svc := newService(t, foods, backend, cache)

	for _, msg := range []string{"", "   \n\t"} {
		_, err := svc.Reply(context.Background(), msg)
		assert.ErrorIs(t, err, ErrEmptyMessage)
	}
	assert.Equal(t, 0, backend.Calls())
	assert.Equal(t, 0, cache.Len())
}

func TestReplyCachesSecondCall(t *testing.T) {
	backend := &fakeBackend{}
	svc := newService(t, foods, backend, memory.New(10, time.Minute))

	first, err := svc.Reply(context.Background(), "are apples healthy?")
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, "Apples are a good source of fiber.", first.Response)

	second, err := svc.Reply(context.Background(), "are apples healthy?")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Response, second.Response)
	assert.Equal(t, 1, backend.Calls())
}

func TestReplyPromptCarriesContext(t *testing.T) {
	backend := &fakeBackend{}
	svc := newService(t, foods, backend, nil)

	_, err := svc.Reply(context.Background(), "lentils protein")
	require.NoError(t, err)

	require.Len(t, backend.prompts, 1)
	prompt := backend.prompts[0]
	assert.True(t, strings.HasPrefix(prompt, "Context:\n["))
	assert.Contains(t, prompt, "Lentils, mature seeds, cooked")
	assert.NotContains(t, prompt, "Apples")
	assert.True(t, strings.HasSuffix(prompt, "\n\nQuestion: lentils protein"))
}

func TestReplyWithoutDataset(t *testing.T) {
	backend := &fakeBackend{}
	svc := newService(t, staticSource(nil), backend, nil)

	res, err := svc.Reply(context.Background(), "what should I eat?")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Response)
	assert.Equal(t, "Context:\n[]\n\nQuestion: what should I eat?", backend.prompts[0])
}

func TestReplyFallbackOnEmptyContent(t *testing.T) {
	backend := &fakeBackend{reply: func(context.Context, int) (*models.BackendChatResponse, error) {
		return &models.BackendChatResponse{Done: true}, nil
	}}
	svc := newService(t, foods, backend, nil)

	res, err := svc.Reply(context.Background(), "rice")
	require.NoError(t, err)
	assert.Equal(t, FallbackResponse, res.Response)
}

func TestReplyFailureNotCached(t *testing.T) {
	backend := &fakeBackend{reply: func(_ context.Context, call int) (*models.BackendChatResponse, error) {
		if call == 1 {
			return nil, &llm.APIError{StatusCode: 500, Message: "model failed to load"}
		}
		return answer("Brown rice is a whole grain."), nil
	}}
	cache := memory.New(10, time.Minute)
	svc := newService(t, foods, backend, cache)

	_, err := svc.Reply(context.Background(), "rice")
	var berr *BackendError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, "model failed to load", berr.Message)
	assert.Equal(t, 0, cache.Len())

	res, err := svc.Reply(context.Background(), "rice")
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, 2, backend.Calls(), "failures must not be retried or cached")
}

func TestReplyBackendNotRunning(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	url := upstream.URL
	upstream.Close()

	client, err := llm.New(config.BackendConfig{URL: url, Model: "llama3.2:1b"})
	require.NoError(t, err)
	svc := newService(t, foods, client, nil)

	_, err = svc.Reply(context.Background(), "apples")
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrBackendUnavailable)
	assert.Equal(t, "LLM backend is not running. Start it with `ollama serve` and try again.", err.Error())
}

func TestReplyTimeout(t *testing.T) {
	backend := &fakeBackend{reply: func(ctx context.Context, _ int) (*models.BackendChatResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	svc := New(Options{TopK: 3, Timeout: 20 * time.Millisecond}, Deps{
		Scorer:  retrieval.New(foods, retrieval.DefaultMaxTokens),
		Backend: backend,
		Log:     zerolog.Nop(),
	})

	_, err := svc.Reply(context.Background(), "apples")
	require.Error(t, err)
	assert.Equal(t, "LLM backend timed out", err.Error())
}

func TestReplyRecordsUsageAndAudit(t *testing.T) {
	tr := &fakeTracker{}
	au := &fakeAuditor{}
	svc := New(Options{TopK: 3}, Deps{
		Scorer:  retrieval.New(foods, retrieval.DefaultMaxTokens),
		Cache:   memory.New(10, time.Minute),
		Backend: &fakeBackend{},
		Tracker: tr,
		Auditor: au,
		Log:     zerolog.Nop(),
	})

	_, err := svc.Reply(context.Background(), "apples")
	require.NoError(t, err)
	_, err = svc.Reply(context.Background(), "apples")
	require.NoError(t, err)
	svc.Wait()

	require.Len(t, tr.records, 1, "cache hits do not use backend tokens")
	assert.Equal(t, 40, tr.records[0].TotalTokens)

	require.Len(t, au.entries, 2)
	hits := 0
	for _, e := range au.entries {
		assert.Equal(t, http.StatusOK, e.StatusCode)
		assert.Equal(t, "Apples are a good source of fiber.", e.Response)
		if e.Cached {
			hits++
		}
	}
	assert.Equal(t, 1, hits)
	assert.NotEqual(t, au.entries[0].RequestID, au.entries[1].RequestID)
}

func TestBackendErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unavailable", llm.ErrBackendUnavailable, unavailableMessage},
		{"timeout", llm.ErrTimeout, timeoutMessage},
		{"deadline", context.DeadlineExceeded, timeoutMessage},
		{"api", &llm.APIError{StatusCode: 404, Message: "model not found"}, "model not found"},
		{"other", errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			berr := backendError(tt.err)
			assert.Equal(t, tt.want, berr.Message)
			assert.ErrorIs(t, berr, tt.err)
		})
	}
}
