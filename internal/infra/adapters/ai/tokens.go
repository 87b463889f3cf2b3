package ai

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"telegram-voice-assistant/internal/domain/ports/adapter"
)

// perMessageOverhead approximates the role/separator tokens chat formats add.
const perMessageOverhead = 4

var (
	encMu    sync.Mutex
	encCache = map[string]*tiktoken.Tiktoken{}
)

func encodingFor(model string) *tiktoken.Tiktoken {
	encMu.Lock()
	defer encMu.Unlock()
	if tk, ok := encCache[model]; ok {
		return tk
	}
	tk, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// cl100k_base is used by GPT-3.5 Turbo and GPT-4 class models
		tk, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		tk = nil
	}
	encCache[model] = tk
	return tk
}

// estimateTokens is a best-effort local prompt-size estimate.
// Falls back to a rune heuristic when no BPE table can be loaded.
func estimateTokens(model string, messages []adapter.Message) int {
	tk := encodingFor(model)
	total := 0
	for _, m := range messages {
		total += perMessageOverhead
		if tk != nil {
			total += len(tk.Encode(m.Content, nil, nil))
			continue
		}
		total += roughTokens(m.Content)
	}
	return total
}

func roughTokens(s string) int {
	ascii, other := 0, 0
	for _, r := range s {
		if r < utf8.RuneSelf {
			ascii++
		} else {
			other++
		}
	}
	return (ascii+3)/4 + other
}
