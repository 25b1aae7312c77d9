package models

// ChatRequest is the body accepted by the chat endpoint.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the body of a successful chat reply. Ms is always sent,
// including 0 for sub-millisecond cache hits.
type ChatResponse struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
	Cached   bool   `json:"cached,omitempty"`
	Ms       int64  `json:"ms"`
}

// ChatError is the body of a failed chat request.
type ChatError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// ChatMessage represents a single message in a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateOptions carries model runtime options for a backend call.
type GenerateOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

// BackendChatRequest is an Ollama-compatible /api/chat request.
type BackendChatRequest struct {
	Model    string           `json:"model"`
	Messages []ChatMessage    `json:"messages"`
	Stream   bool             `json:"stream"`
	Options  *GenerateOptions `json:"options,omitempty"`
}

// BackendChatResponse is an Ollama-compatible /api/chat response.
type BackendChatResponse struct {
	Model           string       `json:"model"`
	Message         *ChatMessage `json:"message,omitempty"`
	Done            bool         `json:"done"`
	PromptEvalCount int          `json:"prompt_eval_count"`
	EvalCount       int          `json:"eval_count"`
	Error           string       `json:"error,omitempty"`
}

// Usage converts the backend's eval counters to token usage.
func (r *BackendChatResponse) Usage() Usage {
	return Usage{
		PromptTokens:     r.PromptEvalCount,
		CompletionTokens: r.EvalCount,
		TotalTokens:      r.PromptEvalCount + r.EvalCount,
	}
}
