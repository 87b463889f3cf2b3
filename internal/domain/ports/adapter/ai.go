package adapter

import "context"

// Message is one entry of the prompt sent to a completion backend.
// Role is "system", "user" or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage is what the backend reported for one call. All zero means unknown.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// AIServiceAdapter is the completion collaborator.
type AIServiceAdapter interface {
	// ChatWithUsage completes messages and returns the reply with reported usage.
	ChatWithUsage(ctx context.Context, model string, messages []Message) (string, Usage, error)

	// CountTokens estimates prompt tokens locally. Estimates are for logging only.
	CountTokens(ctx context.Context, model string, messages []Message) (int, error)

	ListModels(ctx context.Context) ([]string, error)
}
