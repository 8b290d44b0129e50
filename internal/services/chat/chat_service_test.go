package chat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/suadeo/internal/common"
	"github.com/ternarybob/suadeo/internal/interfaces"
	"github.com/ternarybob/suadeo/internal/models"
	"github.com/ternarybob/suadeo/internal/services/conversations"
	"github.com/ternarybob/suadeo/internal/storage/badger"
)

type mockRetriever struct {
	mu         sync.Mutex
	lastK      int
	searchFunc func(ctx context.Context, query string, k int) ([]models.RetrievedPassage, error)
}

func (m *mockRetriever) Search(ctx context.Context, query string, k int) ([]models.RetrievedPassage, error) {
	m.mu.Lock()
	m.lastK = k
	m.mu.Unlock()
	if m.searchFunc != nil {
		return m.searchFunc(ctx, query, k)
	}
	return nil, nil
}

func (m *mockRetriever) TopK() int                             { return 3 }
func (m *mockRetriever) HealthCheck(ctx context.Context) error { return nil }

type mockLLM struct {
	mu           sync.Mutex
	prompts      [][]models.Message
	generateFunc func(ctx context.Context, messages []models.Message, opts *interfaces.GenerateOptions) (string, error)
}

func (m *mockLLM) Generate(ctx context.Context, messages []models.Message, opts *interfaces.GenerateOptions) (string, error) {
	m.mu.Lock()
	recorded := make([]models.Message, len(messages))
	copy(recorded, messages)
	m.prompts = append(m.prompts, recorded)
	m.mu.Unlock()

	if m.generateFunc != nil {
		return m.generateFunc(ctx, messages, opts)
	}
	return "mock response", nil
}

func (m *mockLLM) lastPrompt() []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return nil
	}
	return m.prompts[len(m.prompts)-1]
}

func (m *mockLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("mock llm does not embed")
}
func (m *mockLLM) EmbeddingDimension() int               { return 0 }
func (m *mockLLM) EmbeddingModel() string                { return "" }
func (m *mockLLM) Provider() string                      { return "mock" }
func (m *mockLLM) HealthCheck(ctx context.Context) error { return nil }
func (m *mockLLM) Close() error                          { return nil }

func reviewPassages() []models.RetrievedPassage {
	return []models.RetrievedPassage{
		{
			Review: &models.Review{
				ID:           "rev_1",
				ProductTitle: "Lumen Desk Lamp",
				ReviewText:   "Bright, warm light and the dimmer is smooth.",
				Metadata:     map[string]string{"rating": "5"},
			},
			Score: 0.92,
		},
		{
			Review: &models.Review{
				ID:           "rev_2",
				ProductTitle: "GlowMate Clip Light",
				ReviewText:   "Handy but the clip feels flimsy.",
			},
			Score: 0.81,
		},
	}
}

func newTestChat(t *testing.T, retriever *mockRetriever, gen *mockLLM) (*Service, interfaces.ConversationStore) {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := badger.NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("Failed to open badger store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	threads := badger.NewThreadStorage(db, logger)
	store := conversations.NewStore(threads, gen, &common.ConversationConfig{
		SummarizeAfter: 10,
		RetainTail:     4,
	}, logger)

	service, err := NewService(retriever, store, gen, &common.ChatConfig{}, logger)
	if err != nil {
		t.Fatalf("Failed to create chat service: %v", err)
	}
	return service, store
}

func TestHandleTurnGroundsResponseInReviews(t *testing.T) {
	retriever := &mockRetriever{
		searchFunc: func(ctx context.Context, query string, k int) ([]models.RetrievedPassage, error) {
			return reviewPassages(), nil
		},
	}
	gen := &mockLLM{
		generateFunc: func(ctx context.Context, messages []models.Message, opts *interfaces.GenerateOptions) (string, error) {
			return "The Lumen Desk Lamp reviews best.", nil
		},
	}
	service, store := newTestChat(t, retriever, gen)
	ctx := context.Background()

	resp, err := service.HandleTurn(ctx, &interfaces.ChatRequest{
		ThreadID: "thr_1",
		Message:  "Any good desk lamps?",
		TopK:     7,
	})
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}

	if resp.Message != "The Lumen Desk Lamp reviews best." {
		t.Errorf("Unexpected response message: %q", resp.Message)
	}
	if resp.ThreadID != "thr_1" {
		t.Errorf("Expected thread id thr_1, got %q", resp.ThreadID)
	}
	if len(resp.Passages) != 2 {
		t.Errorf("Expected 2 passages, got %d", len(resp.Passages))
	}
	if resp.Degraded || resp.Fallback {
		t.Errorf("Expected clean turn, got degraded=%v fallback=%v", resp.Degraded, resp.Fallback)
	}
	if resp.Provider != "mock" {
		t.Errorf("Expected provider mock, got %q", resp.Provider)
	}
	if retriever.lastK != 7 {
		t.Errorf("Expected per-turn top_k override to reach the retriever, got %d", retriever.lastK)
	}

	// Prompt carries the persona, the reviews, and the user message once
	prompt := gen.lastPrompt()
	if len(prompt) != 2 {
		t.Fatalf("Expected system + user prompt, got %d messages", len(prompt))
	}
	system := prompt[0]
	if system.Role != models.RoleSystem {
		t.Errorf("Expected leading system message, got role %s", system.Role)
	}
	if !strings.Contains(system.Content, "product recommendation assistant") {
		t.Error("Expected persona in the system prompt")
	}
	if !strings.Contains(system.Content, "Review 1:") || !strings.Contains(system.Content, "Lumen Desk Lamp") {
		t.Error("Expected formatted reviews in the system prompt")
	}
	if !strings.Contains(system.Content, "Rating: 5") {
		t.Error("Expected review rating metadata in the system prompt")
	}
	if prompt[1].Role != models.RoleUser || prompt[1].Content != "Any good desk lamps?" {
		t.Errorf("Expected trailing user message, got role=%s content=%q", prompt[1].Role, prompt[1].Content)
	}

	// Both sides of the turn are remembered
	thread, err := store.Thread(ctx, "thr_1")
	if err != nil {
		t.Fatalf("Failed to get thread: %v", err)
	}
	if len(thread.Messages) != 2 {
		t.Fatalf("Expected user + assistant messages recorded, got %d", len(thread.Messages))
	}
	if thread.Messages[0].Role != models.RoleUser || thread.Messages[1].Role != models.RoleAssistant {
		t.Errorf("Unexpected recorded roles: %s, %s", thread.Messages[0].Role, thread.Messages[1].Role)
	}
}

func TestHandleTurnTruncatesLongReviews(t *testing.T) {
	longBody := strings.Repeat("The hinge squeaks a little. ", 40)
	retriever := &mockRetriever{
		searchFunc: func(ctx context.Context, query string, k int) ([]models.RetrievedPassage, error) {
			return []models.RetrievedPassage{
				{Review: &models.Review{ID: "rev_long", ProductTitle: "Laptop Stand", ReviewText: longBody}, Score: 0.9},
			}, nil
		},
	}
	gen := &mockLLM{}

	logger := arbor.NewLogger()
	db, err := badger.NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("Failed to open badger store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store := conversations.NewStore(badger.NewThreadStorage(db, logger), gen, &common.ConversationConfig{
		SummarizeAfter: 10,
		RetainTail:     4,
	}, logger)

	service, err := NewService(retriever, store, gen, &common.ChatConfig{MaxPassageChars: 60}, logger)
	if err != nil {
		t.Fatalf("Failed to create chat service: %v", err)
	}

	if _, err := service.HandleTurn(context.Background(), &interfaces.ChatRequest{ThreadID: "thr_1", Message: "laptop stand?"}); err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}

	system := gen.lastPrompt()[0].Content
	if strings.Contains(system, longBody) {
		t.Error("Expected long review body truncated in the prompt")
	}
	if !strings.Contains(system, longBody[:60]+"...") {
		t.Error("Expected truncated review body with ellipsis in the prompt")
	}
}

func TestHandleTurnCarriesConversationContext(t *testing.T) {
	retriever := &mockRetriever{}
	gen := &mockLLM{}
	service, _ := newTestChat(t, retriever, gen)
	ctx := context.Background()

	if _, err := service.HandleTurn(ctx, &interfaces.ChatRequest{ThreadID: "thr_1", Message: "I need headphones"}); err != nil {
		t.Fatalf("First turn failed: %v", err)
	}
	if _, err := service.HandleTurn(ctx, &interfaces.ChatRequest{ThreadID: "thr_1", Message: "Under $100 please"}); err != nil {
		t.Fatalf("Second turn failed: %v", err)
	}

	// Second prompt: system, then the first turn verbatim, then the new message
	prompt := gen.lastPrompt()
	if len(prompt) != 4 {
		t.Fatalf("Expected 4 prompt messages on second turn, got %d", len(prompt))
	}
	if prompt[1].Content != "I need headphones" || prompt[1].Role != models.RoleUser {
		t.Errorf("Expected prior user turn in context, got %q", prompt[1].Content)
	}
	if prompt[2].Role != models.RoleAssistant {
		t.Errorf("Expected prior assistant turn in context, got role %s", prompt[2].Role)
	}
	if prompt[3].Content != "Under $100 please" {
		t.Errorf("Expected current message last, got %q", prompt[3].Content)
	}
}

func TestHandleTurnDegradesWhenRetrievalUnavailable(t *testing.T) {
	retriever := &mockRetriever{
		searchFunc: func(ctx context.Context, query string, k int) ([]models.RetrievedPassage, error) {
			return nil, &models.RetrievalUnavailableError{Err: fmt.Errorf("index unreachable")}
		},
	}
	gen := &mockLLM{
		generateFunc: func(ctx context.Context, messages []models.Message, opts *interfaces.GenerateOptions) (string, error) {
			return "I can't check reviews right now, but tell me more about what you need.", nil
		},
	}
	service, store := newTestChat(t, retriever, gen)
	ctx := context.Background()

	resp, err := service.HandleTurn(ctx, &interfaces.ChatRequest{ThreadID: "thr_1", Message: "Best budget monitor?"})
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}

	if !resp.Degraded {
		t.Error("Expected degraded turn when retrieval is unavailable")
	}
	if resp.Fallback {
		t.Error("Expected a generated response, not the fallback")
	}
	if len(resp.Passages) != 0 {
		t.Errorf("Expected no passages, got %d", len(resp.Passages))
	}

	// Prompt flags the missing context instead of fabricating reviews
	system := gen.lastPrompt()[0]
	if !strings.Contains(system.Content, "No customer reviews could be retrieved") {
		t.Error("Expected no-context note in the system prompt")
	}
	if strings.Contains(system.Content, "CUSTOMER REVIEWS:") {
		t.Error("Expected no review block on a degraded turn")
	}

	// The turn still completes and is remembered
	thread, err := store.Thread(ctx, "thr_1")
	if err != nil {
		t.Fatalf("Failed to get thread: %v", err)
	}
	if len(thread.Messages) != 2 {
		t.Errorf("Expected both messages recorded on a degraded turn, got %d", len(thread.Messages))
	}
}

func TestHandleTurnFallbackOnGenerationFailure(t *testing.T) {
	retriever := &mockRetriever{
		searchFunc: func(ctx context.Context, query string, k int) ([]models.RetrievedPassage, error) {
			return reviewPassages(), nil
		},
	}
	failing := true
	gen := &mockLLM{}
	gen.generateFunc = func(ctx context.Context, messages []models.Message, opts *interfaces.GenerateOptions) (string, error) {
		if failing {
			return "", fmt.Errorf("model overloaded")
		}
		return "The GlowMate is a solid pick.", nil
	}
	service, store := newTestChat(t, retriever, gen)
	ctx := context.Background()

	resp, err := service.HandleTurn(ctx, &interfaces.ChatRequest{ThreadID: "thr_1", Message: "Which clip light?"})
	if err != nil {
		t.Fatalf("Expected fallback response, not error: %v", err)
	}
	if !resp.Fallback {
		t.Error("Expected fallback flag on generation failure")
	}
	if resp.Message != defaultFallbackMessage {
		t.Errorf("Expected fixed fallback text, got %q", resp.Message)
	}

	// The failed turn keeps the user message but records no assistant
	// message, so the retried question sees a consistent history
	thread, err := store.Thread(ctx, "thr_1")
	if err != nil {
		t.Fatalf("Failed to get thread: %v", err)
	}
	if len(thread.Messages) != 1 {
		t.Fatalf("Expected only the user message after a failed turn, got %d", len(thread.Messages))
	}
	if thread.Messages[0].Role != models.RoleUser {
		t.Errorf("Expected user message, got role %s", thread.Messages[0].Role)
	}

	failing = false
	resp, err = service.HandleTurn(ctx, &interfaces.ChatRequest{ThreadID: "thr_1", Message: "Try again?"})
	if err != nil {
		t.Fatalf("Retry turn failed: %v", err)
	}
	if resp.Fallback {
		t.Error("Expected recovered turn")
	}

	thread, err = store.Thread(ctx, "thr_1")
	if err != nil {
		t.Fatalf("Failed to get thread: %v", err)
	}
	if len(thread.Messages) != 3 {
		t.Errorf("Expected user, user, assistant after recovery, got %d messages", len(thread.Messages))
	}
}

func TestHandleTurnCancelledMidGeneration(t *testing.T) {
	retriever := &mockRetriever{}
	ctx, cancel := context.WithCancel(context.Background())
	gen := &mockLLM{
		generateFunc: func(ctx context.Context, messages []models.Message, opts *interfaces.GenerateOptions) (string, error) {
			cancel()
			return "", ctx.Err()
		},
	}
	service, store := newTestChat(t, retriever, gen)

	_, err := service.HandleTurn(ctx, &interfaces.ChatRequest{ThreadID: "thr_1", Message: "hello"})
	if err == nil {
		t.Fatal("Expected error for cancelled turn")
	}

	// User message stays, no assistant message, no fallback recorded
	thread, err := store.Thread(context.Background(), "thr_1")
	if err != nil {
		t.Fatalf("Failed to get thread: %v", err)
	}
	if len(thread.Messages) != 1 {
		t.Errorf("Expected only the user message after cancellation, got %d", len(thread.Messages))
	}
}

func TestHandleTurnTriggersSummarization(t *testing.T) {
	retriever := &mockRetriever{}
	gen := &mockLLM{}
	gen.generateFunc = func(ctx context.Context, messages []models.Message, opts *interfaces.GenerateOptions) (string, error) {
		if strings.Contains(messages[0].Content, "condense chat history") {
			return "Shopper wants office gear; lamp already recommended.", nil
		}
		return "Noted.", nil
	}
	service, store := newTestChat(t, retriever, gen)
	ctx := context.Background()

	// Five turns produce ten stored messages, crossing the threshold
	for i := 0; i < 5; i++ {
		req := &interfaces.ChatRequest{ThreadID: "thr_1", Message: fmt.Sprintf("question %d", i+1)}
		if _, err := service.HandleTurn(ctx, req); err != nil {
			t.Fatalf("Turn %d failed: %v", i+1, err)
		}
	}

	thread, err := store.Thread(ctx, "thr_1")
	if err != nil {
		t.Fatalf("Failed to get thread: %v", err)
	}
	if thread.Summary == "" {
		t.Fatal("Expected rolling summary after ten messages")
	}
	if thread.SummarizedThrough != 6 {
		t.Errorf("Expected SummarizedThrough=6, got %d", thread.SummarizedThrough)
	}

	// The next turn's prompt carries the summary alongside the persona
	if _, err := service.HandleTurn(ctx, &interfaces.ChatRequest{ThreadID: "thr_1", Message: "question 6"}); err != nil {
		t.Fatalf("Post-summary turn failed: %v", err)
	}
	prompt := gen.lastPrompt()
	if prompt[0].Role != models.RoleSystem || !strings.Contains(prompt[0].Content, "product recommendation assistant") {
		t.Error("Expected persona system message first")
	}
	if prompt[1].Role != models.RoleSystem || !strings.Contains(prompt[1].Content, "Summary of the conversation so far") {
		t.Errorf("Expected thread summary as the second system message, got role=%s content=%q", prompt[1].Role, prompt[1].Content)
	}
}

func TestHandleTurnValidatesRequest(t *testing.T) {
	service, _ := newTestChat(t, &mockRetriever{}, &mockLLM{})
	ctx := context.Background()

	if _, err := service.HandleTurn(ctx, nil); err == nil {
		t.Error("Expected error for nil request")
	}
	if _, err := service.HandleTurn(ctx, &interfaces.ChatRequest{Message: "hi"}); err == nil {
		t.Error("Expected error for missing thread id")
	}
	if _, err := service.HandleTurn(ctx, &interfaces.ChatRequest{ThreadID: "thr_1", Message: "   "}); err == nil {
		t.Error("Expected error for blank message")
	}
}

func TestLoadPersonaOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.yaml")
	content := "system_prompt: You are a terse gadget expert.\nfallback_message: Back shortly.\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write persona file: %v", err)
	}

	persona, err := LoadPersona(path)
	if err != nil {
		t.Fatalf("LoadPersona failed: %v", err)
	}
	if persona.SystemPrompt != "You are a terse gadget expert." {
		t.Errorf("Expected overridden system prompt, got %q", persona.SystemPrompt)
	}
	if persona.FallbackMessage != "Back shortly." {
		t.Errorf("Expected overridden fallback, got %q", persona.FallbackMessage)
	}
}

func TestLoadPersonaDefaults(t *testing.T) {
	persona, err := LoadPersona("")
	if err != nil {
		t.Fatalf("LoadPersona failed: %v", err)
	}
	if !strings.Contains(persona.SystemPrompt, "product recommendation assistant") {
		t.Error("Expected built-in persona")
	}
	if persona.FallbackMessage != defaultFallbackMessage {
		t.Error("Expected built-in fallback message")
	}
}

func TestLoadPersonaMissingFile(t *testing.T) {
	if _, err := LoadPersona(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Expected error for missing persona file")
	}
}
