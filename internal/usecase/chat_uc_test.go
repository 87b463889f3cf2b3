package usecase

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"telegram-voice-assistant/internal/config"
	"telegram-voice-assistant/internal/domain"
	"telegram-voice-assistant/internal/domain/model"
	"telegram-voice-assistant/internal/domain/ports/adapter"
	"telegram-voice-assistant/internal/domain/ports/repository"
	derror "telegram-voice-assistant/internal/error"
	"telegram-voice-assistant/internal/infra/i18n"
	red "telegram-voice-assistant/internal/infra/redis"
)

// ---- Fakes ----

type fakeAI struct {
	mu       sync.Mutex
	reply    string
	total    int
	err      error
	delay    time.Duration
	calls    int
	lastMsgs []adapter.Message
	counted  int

	active, maxActive int
}

func (f *fakeAI) ListModels(ctx context.Context) ([]string, error) {
	return []string{"gpt-4o-mini"}, nil
}
func (f *fakeAI) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counted++
	return len(messages) * 10, nil
}
func (f *fakeAI) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	f.mu.Lock()
	f.calls++
	f.lastMsgs = append([]adapter.Message(nil), messages...)
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	reply, total, err, delay := f.reply, f.total, f.err, f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	f.mu.Lock()
	f.active--
	f.mu.Unlock()
	if err != nil {
		return "", adapter.Usage{}, err
	}
	return reply, adapter.Usage{TotalTokens: total}, nil
}

type memSessionRepo struct {
	mu      sync.Mutex
	data    map[model.SessionKey][]model.ChatMessage
	saves   int
	failPut bool
}

var _ repository.ChatSessionRepository = (*memSessionRepo)(nil)

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{data: map[model.SessionKey][]model.ChatMessage{}}
}

func (m *memSessionRepo) Load(ctx context.Context, key model.SessionKey) ([]model.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return model.CloneMessages(m.data[key]), nil
}
func (m *memSessionRepo) Save(ctx context.Context, key model.SessionKey, msgs []model.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut {
		return &domain.StorageError{Op: "save", Key: key.Name, Err: errors.New("disk full")}
	}
	m.saves++
	m.data[key] = model.CloneMessages(msgs)
	return nil
}
func (m *memSessionRepo) ReplaceActive(ctx context.Context, userID string, msgs []model.ChatMessage) error {
	return m.Save(ctx, model.NewSessionKey(userID, ""), msgs)
}
func (m *memSessionRepo) Exists(ctx context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[model.NewSessionKey(userID, "")]
	return ok, nil
}
func (m *memSessionRepo) get(userID, name string) []model.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[model.NewSessionKey(userID, name)]
}

func newTestTranslator(t *testing.T) *i18n.Translator {
	t.Helper()
	tr, err := i18n.NewTranslator(i18n.LocalesFS, "en")
	if err != nil {
		t.Fatalf("translator: %v", err)
	}
	return tr
}

func newTestUC(t *testing.T, repo repository.ChatSessionRepository, ai adapter.AIServiceAdapter, opts ChatOptions) *chatUC {
	t.Helper()
	if opts.StripLabels == nil {
		opts.StripLabels = config.DefaultStripLabels
	}
	return NewChatUseCase(repo, ai, nil, newTestTranslator(t), opts, nil)
}

// ---- Tests ----

func TestHandleTurn_HelloScenario(t *testing.T) {
	repo := newMemSessionRepo()
	ai := &fakeAI{reply: "Hi there!", total: 40}
	uc := newTestUC(t, repo, ai, ChatOptions{})

	res, err := uc.HandleTurn(context.Background(), "42", "", "hello")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if res.Reply != "Hi there!" {
		t.Errorf("reply = %q", res.Reply)
	}
	if res.Annotation != "\n[ Chat used:0.98% ]" {
		t.Errorf("annotation = %q", res.Annotation)
	}
	if res.Quota.ShouldReset {
		t.Error("unexpected reset")
	}
	want := []model.ChatMessage{
		{Role: model.RoleUser, Content: "hello"},
		{Role: model.RoleAssistant, Content: "Hi there!"},
	}
	if got := repo.get("42", ""); !reflect.DeepEqual(got, want) {
		t.Fatalf("stored = %v, want %v", got, want)
	}
	if res.Text() != "Hi there!\n[ Chat used:0.98% ]" {
		t.Errorf("Text() = %q", res.Text())
	}
}

func TestHandleTurn_ResetAtBudget(t *testing.T) {
	repo := newMemSessionRepo()
	prior := []model.ChatMessage{
		{Role: model.RoleUser, Content: "long"},
		{Role: model.RoleAssistant, Content: "history"},
	}
	_ = repo.Save(context.Background(), model.NewSessionKey("7", ""), prior)
	ai := &fakeAI{reply: "final answer", total: 4096}
	uc := newTestUC(t, repo, ai, ChatOptions{})

	res, err := uc.HandleTurn(context.Background(), "7", "", "one more")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if res.Reply != "final answer" {
		t.Errorf("reply must still be returned, got %q", res.Reply)
	}
	if !res.Quota.ShouldReset {
		t.Fatal("expected reset")
	}
	if !strings.Contains(res.Annotation, "[ Chat used:100.00% ]") || !strings.HasSuffix(res.Annotation, "The chat has been reset") {
		t.Errorf("annotation = %q", res.Annotation)
	}
	if got := repo.get("7", ""); got == nil || len(got) != 0 {
		t.Fatalf("expected empty stored history, got %v", got)
	}
}

func TestHandleTurn_JustBelowBudgetKeepsHistory(t *testing.T) {
	repo := newMemSessionRepo()
	uc := newTestUC(t, repo, &fakeAI{reply: "ok", total: 4095}, ChatOptions{})
	res, err := uc.HandleTurn(context.Background(), "8", "", "hi")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if res.Quota.ShouldReset || len(repo.get("8", "")) != 2 {
		t.Fatalf("4095 tokens must not reset: %+v", res.Quota)
	}
}

func TestHandleTurn_CompletionFailureDoesNotPersist(t *testing.T) {
	repo := newMemSessionRepo()
	prior := []model.ChatMessage{{Role: model.RoleUser, Content: "a"}, {Role: model.RoleAssistant, Content: "b"}}
	_ = repo.Save(context.Background(), model.NewSessionKey("9", "work"), prior)
	savesBefore := repo.saves

	uc := newTestUC(t, repo, &fakeAI{err: errors.New("timeout")}, ChatOptions{})
	_, err := uc.HandleTurn(context.Background(), "9", "work", "lost")

	var se *domain.ServiceError
	if !errors.As(err, &se) || se.Collaborator != "completion" {
		t.Fatalf("expected completion ServiceError, got %v", err)
	}
	if !errors.Is(err, domain.ErrService) {
		t.Error("ServiceError must match ErrService")
	}
	if repo.saves != savesBefore {
		t.Error("failed turn must not write")
	}
	if got := repo.get("9", "work"); !reflect.DeepEqual(got, prior) {
		t.Fatalf("stored history changed: %v", got)
	}
}

func TestHandleTurn_SaveFailure(t *testing.T) {
	repo := newMemSessionRepo()
	repo.failPut = true
	uc := newTestUC(t, repo, &fakeAI{reply: "x", total: 10}, ChatOptions{})
	if _, err := uc.HandleTurn(context.Background(), "10", "", "hi"); !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}

func TestHandleTurn_UnknownUsageNeverResets(t *testing.T) {
	repo := newMemSessionRepo()
	ai := &fakeAI{reply: "Bot: sure", total: 0}
	uc := newTestUC(t, repo, ai, ChatOptions{})

	res, err := uc.HandleTurn(context.Background(), "11", "", "hi")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if res.Quota.Known || res.Quota.ShouldReset {
		t.Fatalf("quota = %+v", res.Quota)
	}
	if res.Annotation != "\n[ Chat used: unknown ]" {
		t.Errorf("annotation = %q", res.Annotation)
	}
	if res.Reply != "sure" {
		t.Errorf("label not stripped: %q", res.Reply)
	}
	if ai.counted != 1 {
		t.Errorf("expected a local token estimate, got %d", ai.counted)
	}
	if len(repo.get("11", "")) != 2 {
		t.Error("history must be kept when usage is unknown")
	}
}

func TestHandleTurn_SystemPromptNotStored(t *testing.T) {
	repo := newMemSessionRepo()
	ai := &fakeAI{reply: "fine", total: 20}
	uc := newTestUC(t, repo, ai, ChatOptions{SystemPrompt: "You are terse."})

	if _, err := uc.HandleTurn(context.Background(), "12", "", "hi"); err != nil {
		t.Fatal(err)
	}
	if len(ai.lastMsgs) != 2 || ai.lastMsgs[0].Role != "system" || ai.lastMsgs[1].Content != "hi" {
		t.Fatalf("request = %+v", ai.lastMsgs)
	}
	for _, m := range repo.get("12", "") {
		if m.Role == model.RoleSystem {
			t.Fatal("system prompt leaked into history")
		}
	}
}

func TestHandleTurn_EmptyUtterance(t *testing.T) {
	uc := newTestUC(t, newMemSessionRepo(), &fakeAI{}, ChatOptions{})
	if _, err := uc.HandleTurn(context.Background(), "13", "", "   "); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestStripLabel(t *testing.T) {
	labels := config.DefaultStripLabels
	cases := []struct {
		name, in, want string
	}{
		{"no label", "  plain reply ", "plain reply"},
		{"leading label", "AI: hello", "hello"},
		{"first list entry wins", "Bot: one AI: two", "two"},
		{"only first occurrence", "Robot: a Robot: b", "a Robot: b"},
		{"case sensitive", "ai: hello", "ai: hello"},
		{"mid-text label truncates", "Note the Computer: stuff", "stuff"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripLabel(tc.in, labels); got != tc.want {
				t.Errorf("StripLabel(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
	if got := StripLabel("AI: x", nil); got != "AI: x" {
		t.Errorf("empty label list must not strip, got %q", got)
	}
}

func TestHandleTurn_SerializesPerUser(t *testing.T) {
	repo := newMemSessionRepo()
	ai := &fakeAI{reply: "r", total: 10, delay: 5 * time.Millisecond}
	uc := newTestUC(t, repo, ai, ChatOptions{})

	const K = 16
	var wg sync.WaitGroup
	wg.Add(K)
	for i := 0; i < K; i++ {
		go func() {
			defer wg.Done()
			if _, err := uc.HandleTurn(context.Background(), "u1", "", "msg"); err != nil {
				t.Errorf("HandleTurn: %v", err)
			}
		}()
	}
	wg.Wait()

	if ai.maxActive != 1 {
		t.Errorf("turns for one user overlapped: max active %d", ai.maxActive)
	}
	if got := len(repo.get("u1", "")); got != 2*K {
		t.Fatalf("lost update: history has %d messages, want %d", got, 2*K)
	}
}

type gateAI struct {
	fakeAI
	gate chan struct{}
}

func (g *gateAI) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	if messages[len(messages)-1].Content == "block" {
		<-g.gate
	}
	return "ok", adapter.Usage{TotalTokens: 5}, nil
}

func TestHandleTurn_UsersDoNotBlockEachOther(t *testing.T) {
	ai := &gateAI{gate: make(chan struct{})}
	uc := newTestUC(t, newMemSessionRepo(), ai, ChatOptions{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = uc.HandleTurn(context.Background(), "slow", "", "block")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := uc.HandleTurn(ctx, "fast", "", "hi"); err != nil {
		t.Fatalf("other user's turn was blocked: %v", err)
	}
	close(ai.gate)
	<-done
}

func TestAsk_DoesNotTouchSessions(t *testing.T) {
	repo := newMemSessionRepo()
	uc := newTestUC(t, repo, &fakeAI{reply: "Chatbot: 4", total: 2048}, ChatOptions{})

	res, err := uc.Ask(context.Background(), []model.ChatMessage{{Role: model.RoleUser, Content: "2+2?"}})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Reply != "4" || res.Quota.UtilizationPct != 50 {
		t.Fatalf("res = %+v", res)
	}
	if repo.saves != 0 {
		t.Error("Ask must not write sessions")
	}
	if _, err := uc.Ask(context.Background(), nil); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestTurnExecutor_ContextCancelWhileWaiting(t *testing.T) {
	e := NewTurnExecutor()
	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = e.Run(context.Background(), "u", func(context.Context) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := e.Run(ctx, "u", func(context.Context) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	close(hold)
}

type refusingLocker struct{}

func (refusingLocker) TryLock(context.Context, string, time.Duration) (string, error) {
	return "", derror.ErrTurnInProgress
}
func (refusingLocker) Unlock(context.Context, string, string) error { return nil }

func TestTurnExecutor_RemoteLockRefused(t *testing.T) {
	e := NewTurnExecutor().WithRemoteLock(refusingLocker{}, time.Minute, red.TurnLockKey)
	ran := false
	err := e.Run(context.Background(), "u", func(context.Context) error { ran = true; return nil })
	if !errors.Is(err, derror.ErrTurnInProgress) || ran {
		t.Fatalf("err=%v ran=%v", err, ran)
	}
}

func TestHandleTurn_RedisLockConcurrent(t *testing.T) {
	ctx := context.Background()

	cfg := config.RedisConfig{URL: "localhost:6379", DB: 1}
	cli, err := red.NewClient(ctx, &cfg)
	if err != nil {
		t.Skip("redis not available:", err)
	}
	defer cli.Close()

	repo := newMemSessionRepo()
	ai := &fakeAI{reply: "r", total: 10, delay: 2 * time.Millisecond}
	exec := NewTurnExecutor().WithRemoteLock(red.NewLocker(cli), time.Minute, red.TurnLockKey)
	uc := NewChatUseCase(repo, ai, exec, newTestTranslator(t), ChatOptions{}, nil)

	userID := uuid.NewString()
	const K = 8
	var wg sync.WaitGroup
	wg.Add(K)
	for i := 0; i < K; i++ {
		go func() {
			defer wg.Done()
			if _, err := uc.HandleTurn(ctx, userID, "", "hi"); err != nil {
				t.Errorf("HandleTurn: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := len(repo.get(userID, "")); got != 2*K {
		t.Fatalf("history has %d messages, want %d", got, 2*K)
	}
}
