package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/openai/openai-go/v2/option"

	"telegram-voice-assistant/internal/domain/ports/adapter"
)

func TestOpenAIAdapter_ChatWithUsage(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "Hi there!"}}],
			"usage": {"prompt_tokens": 30, "completion_tokens": 10, "total_tokens": 40}
		}`))
	}))
	defer srv.Close()

	a, err := NewOpenAIAdapter("test-key", srv.URL, "gpt-4o-mini", 5*time.Second, option.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("NewOpenAIAdapter: %v", err)
	}
	reply, usage, err := a.ChatWithUsage(context.Background(), "", []adapter.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hello"},
	})
	if err != nil {
		t.Fatalf("ChatWithUsage: %v", err)
	}
	if reply != "Hi there!" || usage.TotalTokens != 40 || usage.PromptTokens != 30 {
		t.Fatalf("reply=%q usage=%+v", reply, usage)
	}
	if got.Model != "gpt-4o-mini" || len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "hello" {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestOpenAIAdapter_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "quota", "type": "insufficient_quota"}}`))
	}))
	defer srv.Close()

	a, err := newOpenAICompatible("metis", "k", srv.URL, "gpt-4o-mini", time.Second, option.WithMaxRetries(0))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := a.ChatWithUsage(context.Background(), "", []adapter.Message{{Role: "user", Content: "x"}}); err == nil {
		t.Fatal("expected error on 429")
	}
}

func TestNewOpenAIAdapterRequiresKey(t *testing.T) {
	if _, err := NewOpenAIAdapter("", "", "", 0); err == nil {
		t.Fatal("expected error for empty key")
	}
}

type slowAI struct {
	mu      sync.Mutex
	active  int
	maxSeen int
}

func (s *slowAI) ListModels(context.Context) ([]string, error) { return nil, nil }
func (s *slowAI) CountTokens(context.Context, string, []adapter.Message) (int, error) {
	return 0, nil
}
func (s *slowAI) ChatWithUsage(ctx context.Context, _ string, _ []adapter.Message) (string, adapter.Usage, error) {
	s.mu.Lock()
	s.active++
	if s.active > s.maxSeen {
		s.maxSeen = s.active
	}
	s.mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	s.mu.Lock()
	s.active--
	s.mu.Unlock()
	return "ok", adapter.Usage{}, nil
}

func TestLimitedAI_CapsConcurrency(t *testing.T) {
	inner := &slowAI{}
	l := NewLimitedAI(inner, 2)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = l.ChatWithUsage(context.Background(), "", nil)
		}()
	}
	wg.Wait()
	if inner.maxSeen > 2 {
		t.Fatalf("concurrency cap exceeded: %d", inner.maxSeen)
	}
}

func TestLimitedAI_RespectsContext(t *testing.T) {
	l := NewLimitedAI(&slowAI{}, 1).(*limitedAI)
	l.sem <- struct{}{} // saturate
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := l.ChatWithUsage(ctx, "", nil); err == nil {
		t.Fatal("expected context error while saturated")
	}
}

func TestNoopAIAdapter(t *testing.T) {
	a := NewNoopAIAdapter(nil)
	a.delay = 0
	reply, usage, err := a.ChatWithUsage(context.Background(), "", []adapter.Message{{Role: "user", Content: "hello"}})
	if err != nil || reply != "You said: hello" {
		t.Fatalf("reply=%q err=%v", reply, err)
	}
	if usage.TotalTokens <= 0 || usage.TotalTokens != usage.PromptTokens+usage.CompletionTokens {
		t.Fatalf("usage = %+v", usage)
	}
}

func TestRoughTokens(t *testing.T) {
	if got := roughTokens("abcdefgh"); got != 2 {
		t.Errorf("roughTokens ascii = %d", got)
	}
	if got := roughTokens("你好"); got != 2 {
		t.Errorf("roughTokens cjk = %d", got)
	}
}
