package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":        {"whisper", "whisper-native"},
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp"},
	"tts":        {"voicevox"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Environment references of the form ${VAR} are expanded before decoding, so
// secrets (API keys, DSNs) can stay out of the file itself.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(raw))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderEntry("stt", cfg.Providers.STT)
	validateProviderEntry("llm", cfg.Providers.LLM)
	validateProviderEntry("tts", cfg.Providers.TTS)
	validateProviderEntry("embeddings", cfg.Providers.Embeddings)

	// Fallbacks without a primary cannot take effect.
	for kind, entry := range map[string]ProviderEntry{
		"stt": cfg.Providers.STT, "llm": cfg.Providers.LLM,
		"tts": cfg.Providers.TTS, "embeddings": cfg.Providers.Embeddings,
	} {
		if entry.Name == "" && len(entry.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("providers.%s.fallbacks set without a primary provider name", kind))
		}
	}

	// Provider availability warnings
	if cfg.Providers.STT.Name == "" {
		slog.Warn("no STT provider configured; voice recordings cannot be transcribed")
	}
	if cfg.Providers.LLM.Name == "" && len(cfg.Games) > 0 {
		slog.Warn("no LLM provider configured; coaching replies cannot be generated")
	}

	// Embeddings ↔ guide dimensions
	if cfg.Providers.Embeddings.Name != "" && cfg.Guide.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but guide.embedding_dimensions is not set; defaulting to 1536")
	}

	// Guide availability
	if cfg.Guide.PostgresDSN == "" && len(cfg.Games) > 0 {
		slog.Warn("guide.postgres_dsn is empty; strategy-guide retrieval will not be available")
	}
	if cfg.Guide.TopK < 0 {
		errs = append(errs, fmt.Errorf("guide.top_k %d must not be negative", cfg.Guide.TopK))
	}

	// Stats
	if cfg.Stats.MatchLimit < 0 {
		errs = append(errs, fmt.Errorf("stats.match_limit %d must not be negative", cfg.Stats.MatchLimit))
	}
	if cfg.Stats.BaseURL == "" && len(cfg.Games) > 0 {
		slog.Warn("stats.base_url is empty; coaching replies will not include match statistics")
	}

	// Auth
	if cfg.Auth.BaseURL == "" {
		slog.Warn("auth.base_url is empty; requests will not be authenticated")
	}
	if cfg.Auth.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("auth.cache_ttl %s must not be negative", cfg.Auth.CacheTTL))
	}

	// Game duplicate ID detection
	gameIDsSeen := make(map[string]int, len(cfg.Games))

	// Games
	for i, game := range cfg.Games {
		prefix := fmt.Sprintf("games[%d]", i)
		if game.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else {
			if prev, ok := gameIDsSeen[game.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of games[%d]", prefix, game.ID, prev))
			}
			gameIDsSeen[game.ID] = i
		}
		if game.Voice.SpeedFactor != 0 {
			if game.Voice.SpeedFactor < 0.5 || game.Voice.SpeedFactor > 2.0 {
				errs = append(errs, fmt.Errorf("%s.voice.speed_factor %.2f is out of range [0.5, 2.0]", prefix, game.Voice.SpeedFactor))
			}
		}
		if game.Voice.PitchShift < -10 || game.Voice.PitchShift > 10 {
			errs = append(errs, fmt.Errorf("%s.voice.pitch_shift %.2f is out of range [-10, 10]", prefix, game.Voice.PitchShift))
		}

		// Voice provider ↔ TTS provider cross-validation
		if game.Voice.Provider != "" && cfg.Providers.TTS.Name != "" && game.Voice.Provider != cfg.Providers.TTS.Name {
			slog.Warn("game voice provider does not match configured TTS provider",
				"game", game.ID,
				"voice_provider", game.Voice.Provider,
				"tts_provider", cfg.Providers.TTS.Name,
			)
		}
	}

	return errors.Join(errs...)
}

// validateProviderEntry warns about unrecognised provider names in an entry
// and its fallbacks.
func validateProviderEntry(kind string, entry ProviderEntry) {
	validateProviderName(kind, entry.Name)
	for _, fb := range entry.Fallbacks {
		validateProviderName(kind, fb.Name)
	}
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
