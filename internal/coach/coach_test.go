package coach_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hmori/gamecoach/internal/coach"
	"github.com/hmori/gamecoach/internal/guide"
	guidemock "github.com/hmori/gamecoach/internal/guide/mock"
	"github.com/hmori/gamecoach/pkg/provider/llm"
	llmmock "github.com/hmori/gamecoach/pkg/provider/llm/mock"
	"github.com/hmori/gamecoach/pkg/types"
)

type staticStats struct {
	summary string
	err     error
}

func (s *staticStats) Summary(context.Context, string, string) (string, error) {
	return s.summary, s.err
}

func newProvider() *llmmock.Provider {
	return &llmmock.Provider{
		CompleteResponse:  &llm.CompletionResponse{Content: "スモークを先に焚いてから入ろう。"},
		ModelCapabilities: types.ModelCapabilities{ContextWindow: 128_000},
	}
}

func TestAsk_GroundsReplyOnGuidePassages(t *testing.T) {
	t.Parallel()

	provider := newProvider()
	retriever := &guidemock.Retriever{
		RetrieveResults: []guide.PassageResult{
			{Passage: guide.Passage{Content: "サイト進行前にスモークを焚く。"}, Distance: 0.1},
		},
	}
	engine := coach.NewEngine(provider, retriever)
	sess := coach.NewSession("player-1", "valorant")

	reply, err := engine.Ask(context.Background(), sess, "アセントAサイトの攻め方は？")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if reply.Text == "" {
		t.Error("reply text must not be empty")
	}
	if len(reply.Passages) != 1 {
		t.Errorf("got %d passages, want 1", len(reply.Passages))
	}

	if len(provider.CompleteCalls) != 1 {
		t.Fatalf("Complete called %d times, want 1", len(provider.CompleteCalls))
	}
	req := provider.CompleteCalls[0].Req
	if !strings.Contains(req.SystemPrompt, "サイト進行前にスモークを焚く。") {
		t.Error("system prompt must contain the retrieved passage")
	}
	if !strings.Contains(req.SystemPrompt, "コーチ") {
		t.Error("system prompt must contain the coaching persona")
	}

	if len(retriever.RetrieveCalls) != 1 {
		t.Fatalf("Retrieve called %d times, want 1", len(retriever.RetrieveCalls))
	}
	if call := retriever.RetrieveCalls[0]; call.GameID != "valorant" {
		t.Errorf("Retrieve GameID = %q, want valorant", call.GameID)
	}
}

func TestAsk_AppendsHistory(t *testing.T) {
	t.Parallel()

	engine := coach.NewEngine(newProvider(), nil)
	sess := coach.NewSession("player-1", "valorant")

	if _, err := engine.Ask(context.Background(), sess, "エコラウンドの立ち回りは？"); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	history := sess.History()
	if len(history) != 2 {
		t.Fatalf("history has %d messages, want 2", len(history))
	}
	if history[0].Role != "user" || history[1].Role != "assistant" {
		t.Errorf("history roles = %q, %q", history[0].Role, history[1].Role)
	}
}

func TestAsk_RetrievalFailureDegradesGracefully(t *testing.T) {
	t.Parallel()

	retriever := &guidemock.Retriever{RetrieveErr: errors.New("index offline")}
	engine := coach.NewEngine(newProvider(), retriever)
	sess := coach.NewSession("player-1", "valorant")

	reply, err := engine.Ask(context.Background(), sess, "どう立ち回る？")
	if err != nil {
		t.Fatalf("Ask must not fail on retrieval errors: %v", err)
	}
	if len(reply.Passages) != 0 {
		t.Errorf("got %d passages, want 0", len(reply.Passages))
	}
}

func TestAsk_InjectsStatsSummary(t *testing.T) {
	t.Parallel()

	provider := newProvider()
	engine := coach.NewEngine(provider, nil,
		coach.WithStats(&staticStats{summary: "直近10試合の勝率は40%。"}))
	sess := coach.NewSession("player-1", "valorant")

	if _, err := engine.Ask(context.Background(), sess, "最近勝てないのはなぜ？"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !strings.Contains(provider.CompleteCalls[0].Req.SystemPrompt, "勝率は40%") {
		t.Error("system prompt must contain the stats summary")
	}
}

func TestAsk_StatsFailureDegradesGracefully(t *testing.T) {
	t.Parallel()

	engine := coach.NewEngine(newProvider(), nil,
		coach.WithStats(&staticStats{err: errors.New("tracker down")}))
	sess := coach.NewSession("player-1", "valorant")

	if _, err := engine.Ask(context.Background(), sess, "どう立ち回る？"); err != nil {
		t.Fatalf("Ask must not fail on stats errors: %v", err)
	}
}

func TestAsk_FailedCompletionLeavesHistoryClean(t *testing.T) {
	t.Parallel()

	provider := newProvider()
	provider.CompleteErr = errors.New("backend down")
	engine := coach.NewEngine(provider, nil)
	sess := coach.NewSession("player-1", "valorant")

	if _, err := engine.Ask(context.Background(), sess, "どう立ち回る？"); err == nil {
		t.Fatal("Ask should surface the provider error")
	}
	// The unanswered question must not linger and skew the next prompt.
	if got := sess.Len(); got != 0 {
		t.Fatalf("history has %d messages after a failed Ask, want 0", got)
	}

	provider.CompleteErr = nil
	if _, err := engine.Ask(context.Background(), sess, "どう立ち回る？"); err != nil {
		t.Fatalf("retry after recovery: %v", err)
	}
	if got := sess.Len(); got != 2 {
		t.Errorf("history has %d messages after the retry, want 2", got)
	}
}

func TestAsk_TrimsHistoryToContextBudget(t *testing.T) {
	t.Parallel()

	provider := newProvider()
	// Tiny context window with an always-over-budget token count forces the
	// trimmer down to the single newest message.
	provider.ModelCapabilities = types.ModelCapabilities{ContextWindow: 10}
	provider.TokenCount = 100

	engine := coach.NewEngine(provider, nil)
	sess := coach.NewSession("player-1", "valorant")
	sess.Append(types.Message{Role: "user", Content: "古い質問"})
	sess.Append(types.Message{Role: "assistant", Content: "古い回答"})

	if _, err := engine.Ask(context.Background(), sess, "新しい質問"); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	sent := provider.CompleteCalls[0].Req.Messages
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
	if sent[0].Content != "新しい質問" {
		t.Errorf("kept message = %q, want the newest question", sent[0].Content)
	}
}

func TestAsk_EmptyQuestion(t *testing.T) {
	t.Parallel()

	engine := coach.NewEngine(newProvider(), nil)
	if _, err := engine.Ask(context.Background(), coach.NewSession("p", "g"), "  "); err == nil {
		t.Fatal("empty question must be rejected")
	}
}

func TestAskStream_EmitsFragmentsAndRecordsReply(t *testing.T) {
	t.Parallel()

	provider := newProvider()
	provider.StreamChunks = []llm.Chunk{
		{Text: "スモークを"},
		{Text: "先に焚こう。", FinishReason: "stop"},
	}
	engine := coach.NewEngine(provider, nil)
	sess := coach.NewSession("player-1", "valorant")

	out, err := engine.AskStream(context.Background(), sess, "Aサイトの入り方は？")
	if err != nil {
		t.Fatalf("AskStream: %v", err)
	}

	var full strings.Builder
	for fragment := range out {
		full.WriteString(fragment)
	}
	if full.String() != "スモークを先に焚こう。" {
		t.Errorf("streamed reply = %q", full.String())
	}

	history := sess.History()
	if len(history) != 2 {
		t.Fatalf("history has %d messages, want 2", len(history))
	}
	if history[1].Role != "assistant" || history[1].Content != "スモークを先に焚こう。" {
		t.Errorf("assistant message = %+v", history[1])
	}
}

func TestAskStream_SetupFailureLeavesHistoryClean(t *testing.T) {
	t.Parallel()

	provider := newProvider()
	provider.StreamErr = errors.New("backend down")
	engine := coach.NewEngine(provider, nil)
	sess := coach.NewSession("player-1", "valorant")

	if _, err := engine.AskStream(context.Background(), sess, "Aサイトの入り方は？"); err == nil {
		t.Fatal("AskStream should surface the setup error")
	}
	if got := sess.Len(); got != 0 {
		t.Errorf("history has %d messages after a failed setup, want 0", got)
	}
}

func TestAskStream_MidStreamFailureLeavesHistoryClean(t *testing.T) {
	t.Parallel()

	provider := newProvider()
	provider.StreamChunks = []llm.Chunk{
		{Text: "スモークを"},
		{FinishReason: "error", Text: "upstream reset"},
	}
	engine := coach.NewEngine(provider, nil)
	sess := coach.NewSession("player-1", "valorant")

	out, err := engine.AskStream(context.Background(), sess, "Aサイトの入り方は？")
	if err != nil {
		t.Fatalf("AskStream: %v", err)
	}
	for range out {
	}

	if got := sess.Len(); got != 0 {
		t.Errorf("history has %d messages after a broken stream, want 0", got)
	}
}
