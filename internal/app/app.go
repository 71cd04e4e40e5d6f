// Package app wires all coaching-server subsystems into a running
// application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithRetriever, WithStats, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hmori/gamecoach/internal/auth"
	"github.com/hmori/gamecoach/internal/coach"
	"github.com/hmori/gamecoach/internal/config"
	"github.com/hmori/gamecoach/internal/guide"
	guidepg "github.com/hmori/gamecoach/internal/guide/postgres"
	"github.com/hmori/gamecoach/internal/observe"
	"github.com/hmori/gamecoach/internal/stats"
	"github.com/hmori/gamecoach/internal/transcript"
	"github.com/hmori/gamecoach/internal/transcript/glossary"
	"github.com/hmori/gamecoach/pkg/provider/embeddings"
	"github.com/hmori/gamecoach/pkg/provider/llm"
	"github.com/hmori/gamecoach/pkg/provider/stt"
	"github.com/hmori/gamecoach/pkg/provider/tts"
)

// defaultEmbeddingDimensions matches OpenAI text-embedding-3-small.
const defaultEmbeddingDimensions = 1536

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	STT        stt.Provider
	LLM        llm.Provider
	TTS        tts.Provider
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes for the coaching server.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	cleaner   *Cleaner
	recorder  *SessionManager
	guide     *guide.Service
	retriever guide.Retriever
	statsSrc  coach.StatsSource
	verifier  *auth.Verifier
	coaches   map[string]*coach.Engine
	voices    map[string]tts.VoiceProfile
	metrics   *observe.Metrics

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRetriever injects a guide retriever instead of creating one from config.
func WithRetriever(r guide.Retriever) Option {
	return func(a *App) { a.retriever = r }
}

// WithStats injects a match-stats source instead of creating one from config.
func WithStats(s coach.StatsSource) Option {
	return func(a *App) { a.statsSrc = s }
}

// WithVerifier injects a token verifier instead of creating one from config.
func WithVerifier(v *auth.Verifier) Option {
	return func(a *App) { a.verifier = v }
}

// WithMetrics injects a metrics instance instead of using the package default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: profile and glossary
// loading, strategy-guide store connection, stats and auth client
// construction, and per-game coach assembly.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		coaches:   make(map[string]*coach.Engine, len(cfg.Games)),
		voices:    make(map[string]tts.VoiceProfile, len(cfg.Games)),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Transcript cleanup chain ──────────────────────────────────────
	if err := a.initTranscript(); err != nil {
		return nil, fmt.Errorf("app: init transcript: %w", err)
	}

	// ── 2. Strategy guide ────────────────────────────────────────────────
	if err := a.initGuide(ctx); err != nil {
		return nil, fmt.Errorf("app: init guide: %w", err)
	}

	// ── 3. Match stats ───────────────────────────────────────────────────
	if err := a.initStats(); err != nil {
		return nil, fmt.Errorf("app: init stats: %w", err)
	}

	// ── 4. Auth ──────────────────────────────────────────────────────────
	if err := a.initAuth(); err != nil {
		return nil, fmt.Errorf("app: init auth: %w", err)
	}

	// ── 5. Per-game coaches ──────────────────────────────────────────────
	if err := a.initCoaches(); err != nil {
		return nil, fmt.Errorf("app: init coaches: %w", err)
	}

	// ── 6. Recording sessions ────────────────────────────────────────────
	a.recorder = NewSessionManager(providers.STT, a.cleaner, a.metrics)

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initTranscript loads the language profile and glossary and builds the
// cleanup chain.
func (a *App) initTranscript() error {
	profile := transcript.DefaultJapanese()
	if path := a.cfg.Transcript.ProfilePath; path != "" {
		p, err := transcript.LoadProfile(path)
		if err != nil {
			return err
		}
		profile = p
		slog.Info("loaded language profile", "path", path)
	}

	var gloss *glossary.Glossary
	if path := a.cfg.Transcript.GlossaryPath; path != "" {
		terms, err := glossary.LoadTerms(path)
		if err != nil {
			return err
		}
		gloss = glossary.New(terms)
		slog.Info("loaded glossary", "path", path, "terms", gloss.Len())
	}

	cleaner, err := NewCleaner(profile, gloss, a.metrics)
	if err != nil {
		return err
	}
	a.cleaner = cleaner
	return nil
}

// initGuide sets up the pgvector strategy-guide store or uses an injected
// retriever.
func (a *App) initGuide(ctx context.Context) error {
	if a.retriever != nil {
		return nil // injected
	}

	dsn := a.cfg.Guide.PostgresDSN
	if dsn == "" || a.providers.Embeddings == nil {
		slog.Warn("strategy guide disabled",
			"dsn_set", dsn != "",
			"embeddings_set", a.providers.Embeddings != nil,
		)
		return nil
	}

	dims := a.cfg.Guide.EmbeddingDimensions
	if dims == 0 {
		dims = defaultEmbeddingDimensions
	}

	store, err := guidepg.NewStore(ctx, dsn, dims)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})

	a.guide = guide.NewService(store, a.providers.Embeddings)
	a.retriever = a.guide
	return nil
}

// initStats creates the tracker API client unless one was injected.
func (a *App) initStats() error {
	if a.statsSrc != nil {
		return nil // injected
	}
	if a.cfg.Stats.BaseURL == "" {
		return nil
	}

	var opts []stats.Option
	if a.cfg.Stats.APIKey != "" {
		opts = append(opts, stats.WithAPIKey(a.cfg.Stats.APIKey))
	}
	if a.cfg.Stats.MatchLimit > 0 {
		opts = append(opts, stats.WithMatchLimit(a.cfg.Stats.MatchLimit))
	}
	client, err := stats.NewClient(a.cfg.Stats.BaseURL, opts...)
	if err != nil {
		return err
	}
	a.statsSrc = client
	return nil
}

// initAuth creates the token verifier unless one was injected. An empty auth
// base URL leaves the verifier nil; the HTTP layer then skips authentication.
func (a *App) initAuth() error {
	if a.verifier != nil {
		return nil // injected
	}
	if a.cfg.Auth.BaseURL == "" {
		return nil
	}

	var opts []auth.Option
	if a.cfg.Auth.AnonKey != "" {
		opts = append(opts, auth.WithAnonKey(a.cfg.Auth.AnonKey))
	}
	if a.cfg.Auth.CacheTTL > 0 {
		opts = append(opts, auth.WithCacheTTL(a.cfg.Auth.CacheTTL))
	}
	verifier, err := auth.NewVerifier(a.cfg.Auth.BaseURL, opts...)
	if err != nil {
		return err
	}
	a.verifier = verifier
	return nil
}

// initCoaches builds one coaching engine per configured game.
func (a *App) initCoaches() error {
	if len(a.cfg.Games) == 0 {
		slog.Warn("no games configured")
		return nil
	}
	if a.providers.LLM == nil {
		return fmt.Errorf("coaching requires an LLM provider but providers.llm is not configured")
	}

	for _, game := range a.cfg.Games {
		var opts []coach.Option
		if game.Persona != "" {
			opts = append(opts, coach.WithPersona(game.Persona))
		}
		if a.cfg.Guide.TopK > 0 {
			opts = append(opts, coach.WithTopK(a.cfg.Guide.TopK))
		}
		if a.statsSrc != nil {
			opts = append(opts, coach.WithStats(a.statsSrc))
		}

		a.coaches[game.ID] = coach.NewEngine(a.providers.LLM, a.retriever, opts...)
		a.voices[game.ID] = configVoiceProfile(game.Voice)
		slog.Info("loaded coach", "game_id", game.ID, "name", game.Name)
	}
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Recorder returns the recording session manager.
func (a *App) Recorder() *SessionManager { return a.recorder }

// Cleaner returns the transcript cleanup chain.
func (a *App) Cleaner() *Cleaner { return a.cleaner }

// Coach returns the coaching engine for gameID.
func (a *App) Coach(gameID string) (*coach.Engine, bool) {
	e, ok := a.coaches[gameID]
	return e, ok
}

// Voice returns the configured TTS voice profile for gameID.
func (a *App) Voice(gameID string) (tts.VoiceProfile, bool) {
	v, ok := a.voices[gameID]
	return v, ok
}

// Guide returns the strategy-guide service, or nil when the guide store is
// not configured. The retriever side may still be set via WithRetriever.
func (a *App) Guide() *guide.Service { return a.guide }

// Verifier returns the token verifier, or nil when authentication is
// disabled.
func (a *App) Verifier() *auth.Verifier { return a.verifier }

// TTS returns the text-to-speech provider, or nil when not configured.
func (a *App) TTS() tts.Provider { return a.providers.TTS }

// Metrics returns the metrics instance used by all subsystems.
func (a *App) Metrics() *observe.Metrics { return a.metrics }

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// configVoiceProfile converts a config.VoiceConfig to tts.VoiceProfile.
func configVoiceProfile(vc config.VoiceConfig) tts.VoiceProfile {
	return tts.VoiceProfile{
		ID:          vc.VoiceID,
		Provider:    vc.Provider,
		PitchShift:  vc.PitchShift,
		SpeedFactor: vc.SpeedFactor,
	}
}
