package ai

import "time"

const defaultMetisBaseURL = "https://api.metisai.ir/openai/v1"

// NewMetisOpenAIAdapter targets Metis's OpenAI-compatible gateway.
// Chat completions path and Bearer auth are the same as OpenAI.
func NewMetisOpenAIAdapter(apiKey, model, base string, timeout time.Duration) (*OpenAIAdapter, error) {
	if base == "" {
		base = defaultMetisBaseURL
	}
	return newOpenAICompatible("metis", apiKey, base, model, timeout)
}
