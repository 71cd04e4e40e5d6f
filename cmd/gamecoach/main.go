// Command gamecoach runs the game coaching companion server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/hmori/gamecoach/internal/app"
	"github.com/hmori/gamecoach/internal/config"
	"github.com/hmori/gamecoach/internal/observe"
	"github.com/hmori/gamecoach/internal/resilience"
	"github.com/hmori/gamecoach/internal/server"
	"github.com/hmori/gamecoach/pkg/provider/embeddings"
	ollamaembed "github.com/hmori/gamecoach/pkg/provider/embeddings/ollama"
	oaembed "github.com/hmori/gamecoach/pkg/provider/embeddings/openai"
	"github.com/hmori/gamecoach/pkg/provider/llm"
	"github.com/hmori/gamecoach/pkg/provider/llm/anyllm"
	oallm "github.com/hmori/gamecoach/pkg/provider/llm/openai"
	"github.com/hmori/gamecoach/pkg/provider/stt"
	"github.com/hmori/gamecoach/pkg/provider/stt/whisper"
	"github.com/hmori/gamecoach/pkg/provider/tts"
	"github.com/hmori/gamecoach/pkg/provider/tts/voicevox"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "gamecoach: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "gamecoach: %v\n", err)
		}
		return 1
	}

	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("gamecoach starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "gamecoach",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("telemetry init failed", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	reg := config.NewRegistry()
	registerBackends(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("provider setup failed", "err", err)
		return 1
	}
	logStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("application init failed", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	srv := server.New(application, cfg.Server)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBackends wires every built-in provider implementation into the
// registry, keyed by the names the config file uses.
func registerBackends(reg *config.Registry) {
	// Hosted and local chat backends all ride through any-llm. The hosted
	// ones take an optional key and base URL; ollama is addressed by base
	// URL alone.
	hosted := []string{"openai", "anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp"}
	for _, name := range hosted {
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			return anyllm.New(name, entry.Model, llmOptions(entry, true)...)
		})
	}
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		return anyllm.New("ollama", entry.Model, llmOptions(entry, false)...)
	})
	// openai-direct talks to the OpenAI API through its own SDK client,
	// bypassing the any-llm shim. Select it when a deployment needs
	// SDK-level options, such as the organization header.
	reg.RegisterLLM("openai-direct", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})
	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterTTS("voicevox", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []voicevox.Option
		if rate := optInt(entry.Options, "output_sample_rate"); rate > 0 {
			opts = append(opts, voicevox.WithOutputSampleRate(rate))
		}
		return voicevox.New(entry.BaseURL, opts...)
	})

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})
	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		return ollamaembed.New(entry.BaseURL, entry.Model)
	})
}

func llmOptions(entry config.ProviderEntry, allowKey bool) []anyllmlib.Option {
	var opts []anyllmlib.Option
	if allowKey && entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	return opts
}

// resolved is a provider chain built from one config entry: the primary
// plus any instantiated fallbacks, in config order.
type resolved[T any] struct {
	primary   T
	fallbacks []struct {
		name     string
		provider T
	}
}

// resolveChain instantiates the entry's primary provider and each of its
// fallbacks through create.
func resolveChain[T any](kind string, entry config.ProviderEntry, create func(config.ProviderEntry) (T, error)) (*resolved[T], error) {
	primary, err := create(entry)
	if err != nil {
		return nil, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}
	r := &resolved[T]{primary: primary}
	for _, fb := range entry.Fallbacks {
		p, err := create(fb)
		if err != nil {
			return nil, fmt.Errorf("create %s fallback %q: %w", kind, fb.Name, err)
		}
		r.fallbacks = append(r.fallbacks, struct {
			name     string
			provider T
		}{fb.Name, p})
	}
	slog.Info("provider created", "kind", kind, "name", entry.Name, "fallbacks", len(entry.Fallbacks))
	return r, nil
}

// buildProviders turns the config's provider entries into live providers.
// Entries with fallbacks get wrapped in circuit-breaking failover chains.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if entry := cfg.Providers.STT; entry.Name != "" {
		r, err := resolveChain("stt", entry, reg.CreateSTT)
		if err != nil {
			return nil, err
		}
		ps.STT = r.primary
		if len(r.fallbacks) > 0 {
			group := resilience.NewSTTFallback(r.primary, entry.Name, resilience.FallbackConfig{})
			for _, fb := range r.fallbacks {
				group.AddFallback(fb.name, fb.provider)
			}
			ps.STT = group
		}
	}

	if entry := cfg.Providers.LLM; entry.Name != "" {
		r, err := resolveChain("llm", entry, reg.CreateLLM)
		if err != nil {
			return nil, err
		}
		ps.LLM = r.primary
		if len(r.fallbacks) > 0 {
			group := resilience.NewLLMFallback(r.primary, entry.Name, resilience.FallbackConfig{})
			for _, fb := range r.fallbacks {
				group.AddFallback(fb.name, fb.provider)
			}
			ps.LLM = group
		}
	}

	if entry := cfg.Providers.TTS; entry.Name != "" {
		r, err := resolveChain("tts", entry, reg.CreateTTS)
		if err != nil {
			return nil, err
		}
		ps.TTS = r.primary
		if len(r.fallbacks) > 0 {
			group := resilience.NewTTSFallback(r.primary, entry.Name, resilience.FallbackConfig{})
			for _, fb := range r.fallbacks {
				group.AddFallback(fb.name, fb.provider)
			}
			ps.TTS = group
		}
	}

	if entry := cfg.Providers.Embeddings; entry.Name != "" {
		p, err := reg.CreateEmbeddings(entry)
		if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", entry.Name, err)
		}
		if len(entry.Fallbacks) > 0 {
			// Vectors from a different model would not match the existing
			// pgvector index, so embeddings get no failover.
			slog.Warn("embeddings fallbacks are not supported — ignoring", "count", len(entry.Fallbacks))
		}
		ps.Embeddings = p
		slog.Info("provider created", "kind", "embeddings", "name", entry.Name)
	}

	return ps, nil
}

// logStartupSummary gives operators one glance at what this instance will
// actually do.
func logStartupSummary(cfg *config.Config) {
	enabled := func(on bool) string {
		if on {
			return "enabled"
		}
		return "disabled"
	}
	slog.Info("configuration summary",
		"stt", providerLabel(cfg.Providers.STT),
		"llm", providerLabel(cfg.Providers.LLM),
		"tts", providerLabel(cfg.Providers.TTS),
		"embeddings", providerLabel(cfg.Providers.Embeddings),
		"strategy_guide", enabled(cfg.Guide.PostgresDSN != ""),
		"match_stats", enabled(cfg.Stats.BaseURL != ""),
		"auth", enabled(cfg.Auth.BaseURL != ""),
		"games", len(cfg.Games),
	)
}

func providerLabel(entry config.ProviderEntry) string {
	switch {
	case entry.Name == "":
		return "none"
	case entry.Model != "":
		return entry.Name + "/" + entry.Model
	default:
		return entry.Name
	}
}

func newLogger(level config.LogLevel) *slog.Logger {
	lvl := slog.LevelInfo
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// optString reads a string out of a provider's free-form options map.
func optString(opts map[string]any, key string) string {
	if s, ok := opts[key].(string); ok {
		return s
	}
	return ""
}

// optInt reads an int out of a provider's free-form options map. YAML
// decodes whole numbers as int.
func optInt(opts map[string]any, key string) int {
	if n, ok := opts[key].(int); ok {
		return n
	}
	return 0
}
