// Package coach turns cleaned player utterances into grounded coaching
// replies.
//
// The [Engine] wraps an LLM provider and, for every question, assembles a
// system prompt from three sources: a fixed coaching persona, the most
// relevant strategy-guide passages (retrieved by embedding similarity), and an
// optional summary of the player's recent match statistics. Conversation
// history is kept per player in a [Session] and trimmed from the front
// against the model's context window before each request.
package coach

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hmori/gamecoach/internal/guide"
	"github.com/hmori/gamecoach/pkg/provider/llm"
	"github.com/hmori/gamecoach/pkg/types"
)

const (
	defaultTopK        = 4
	defaultTemperature = 0.7
	defaultMaxTokens   = 512

	// historyBudgetFraction is the share of the model's context window the
	// conversation history may occupy; the rest is reserved for the system
	// prompt, guide passages, and the reply.
	historyBudgetFraction = 0.5
)

// defaultPersona is the coaching instruction used when none is configured.
const defaultPersona = `あなたは対戦ゲームの専属コーチです。プレイヤーの質問に、簡潔で実行可能なアドバイスを日本語で返してください。攻略ガイドの抜粋が与えられた場合は、その内容を根拠にしてください。わからないことは推測せず、わからないと答えてください。`

// StatsSource supplies a short natural-language summary of a player's recent
// match statistics for prompt injection. Implementations should return an
// empty string (not an error) when no stats are available.
type StatsSource interface {
	Summary(ctx context.Context, playerID, gameID string) (string, error)
}

// Reply is the engine's answer to one question.
type Reply struct {
	// Text is the coach's reply.
	Text string

	// Passages are the guide passages that were injected into the prompt,
	// most relevant first. Useful for showing sources in the client.
	Passages []guide.PassageResult

	// Usage is the token accounting reported by the LLM backend.
	Usage llm.Usage
}

// Option is a functional option for configuring an [Engine].
type Option func(*Engine)

// WithPersona replaces the default coaching persona in the system prompt.
func WithPersona(persona string) Option {
	return func(e *Engine) { e.persona = persona }
}

// WithTopK sets how many guide passages are retrieved per question. Default: 4.
func WithTopK(k int) Option {
	return func(e *Engine) { e.topK = k }
}

// WithTemperature sets the sampling temperature for completions. Default: 0.7.
func WithTemperature(t float64) Option {
	return func(e *Engine) { e.temperature = t }
}

// WithMaxTokens caps the reply length in tokens. Default: 512.
func WithMaxTokens(n int) Option {
	return func(e *Engine) { e.maxTokens = n }
}

// WithStats attaches a match-statistics source whose summary is injected into
// the system prompt. Without it, replies are grounded on the guide alone.
func WithStats(src StatsSource) Option {
	return func(e *Engine) { e.stats = src }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// Engine produces coaching replies. Safe for concurrent use; per-player state
// lives in [Session], not in the Engine.
type Engine struct {
	provider    llm.Provider
	retriever   guide.Retriever
	stats       StatsSource
	logger      *slog.Logger
	persona     string
	topK        int
	temperature float64
	maxTokens   int
}

// NewEngine creates an Engine over the given LLM provider and guide
// retriever. retriever may be nil, in which case replies are not grounded on
// guide passages.
func NewEngine(provider llm.Provider, retriever guide.Retriever, opts ...Option) *Engine {
	e := &Engine{
		provider:    provider,
		retriever:   retriever,
		logger:      slog.Default(),
		persona:     defaultPersona,
		topK:        defaultTopK,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Ask answers question within the session's conversation. The question and
// reply enter the session history only once the completion succeeds; a
// failed question leaves the history untouched so it cannot skew later
// prompts.
func (e *Engine) Ask(ctx context.Context, sess *Session, question string) (*Reply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("coach: question must not be empty")
	}

	passages := e.retrieve(ctx, sess, question)
	system := e.systemPrompt(ctx, sess, passages)

	userMsg := types.Message{Role: "user", Content: question}
	history, err := e.trimHistory(append(sess.History(), userMsg))
	if err != nil {
		return nil, err
	}

	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		Messages:     history,
		SystemPrompt: system,
		Temperature:  e.temperature,
		MaxTokens:    e.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("coach: completion: %w", err)
	}

	sess.Append(userMsg)
	sess.Append(types.Message{Role: "assistant", Content: resp.Content})
	return &Reply{Text: resp.Content, Passages: passages, Usage: resp.Usage}, nil
}

// AskStream answers question as a stream of text fragments, for piping into
// TTS synthesis or a live transcript view. The exchange is appended to the
// session history once the stream completes; a setup or mid-stream failure
// leaves the history untouched. The returned channel is closed when
// generation finishes or ctx is cancelled.
func (e *Engine) AskStream(ctx context.Context, sess *Session, question string) (<-chan string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("coach: question must not be empty")
	}

	passages := e.retrieve(ctx, sess, question)
	system := e.systemPrompt(ctx, sess, passages)

	userMsg := types.Message{Role: "user", Content: question}
	history, err := e.trimHistory(append(sess.History(), userMsg))
	if err != nil {
		return nil, err
	}

	chunks, err := e.provider.StreamCompletion(ctx, llm.CompletionRequest{
		Messages:     history,
		SystemPrompt: system,
		Temperature:  e.temperature,
		MaxTokens:    e.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("coach: start stream: %w", err)
	}

	out := make(chan string, 16)
	go func() {
		defer close(out)
		var full strings.Builder
		for chunk := range chunks {
			if chunk.FinishReason == "error" {
				e.logger.Error("coach stream failed", "error", chunk.Text)
				return
			}
			if chunk.Text == "" {
				continue
			}
			full.WriteString(chunk.Text)
			select {
			case out <- chunk.Text:
			case <-ctx.Done():
				return
			}
		}
		if reply := full.String(); reply != "" {
			sess.Append(userMsg)
			sess.Append(types.Message{Role: "assistant", Content: reply})
		}
	}()
	return out, nil
}

// retrieve fetches guide passages for the question. Retrieval failures are
// logged and degrade to an ungrounded reply rather than failing the question.
func (e *Engine) retrieve(ctx context.Context, sess *Session, question string) []guide.PassageResult {
	if e.retriever == nil {
		return nil
	}
	passages, err := e.retriever.Retrieve(ctx, sess.GameID, question, e.topK)
	if err != nil {
		e.logger.Warn("guide retrieval failed, answering without passages",
			"game_id", sess.GameID, "error", err)
		return nil
	}
	return passages
}

// systemPrompt assembles the persona, guide passages, and stats summary.
func (e *Engine) systemPrompt(ctx context.Context, sess *Session, passages []guide.PassageResult) string {
	var b strings.Builder
	b.WriteString(e.persona)

	if len(passages) > 0 {
		b.WriteString("\n\n## 攻略ガイド抜粋\n")
		for _, p := range passages {
			b.WriteString("\n- ")
			b.WriteString(p.Passage.Content)
		}
	}

	if e.stats != nil {
		summary, err := e.stats.Summary(ctx, sess.PlayerID, sess.GameID)
		switch {
		case err != nil:
			e.logger.Warn("stats summary failed, answering without stats",
				"player_id", sess.PlayerID, "error", err)
		case summary != "":
			b.WriteString("\n\n## 最近の戦績\n")
			b.WriteString(summary)
		}
	}
	return b.String()
}

// trimHistory drops the oldest messages until the history fits within the
// model's context budget. The newest message (the current question) is always
// kept.
func (e *Engine) trimHistory(history []types.Message) ([]types.Message, error) {
	caps := e.provider.Capabilities()
	budget := int(float64(caps.ContextWindow) * historyBudgetFraction)
	if budget <= 0 {
		return history, nil
	}

	for len(history) > 1 {
		n, err := e.provider.CountTokens(history)
		if err != nil {
			return nil, fmt.Errorf("coach: count tokens: %w", err)
		}
		if n <= budget {
			break
		}
		history = history[1:]
	}
	return history, nil
}
