// Package server exposes the coaching pipeline over HTTP and WebSocket.
//
// Routes:
//
//   - POST /v1/recordings      — one-shot voice clip: PCM in, cleaned transcript out.
//   - POST /v1/coach           — text question in, coaching reply (optionally spoken) out.
//   - GET  /v1/stream          — WebSocket voice loop: Opus audio in, transcript,
//     reply fragments, and synthesized audio out.
//   - POST /v1/guide/{game}    — ingest strategy-guide text for a game.
//   - GET  /v1/voices          — list available TTS voices.
//   - GET  /healthz, /readyz   — probes.
//   - GET  /metrics            — Prometheus scrape endpoint.
//
// All /v1/ routes pass through token authentication when a verifier is
// configured, and through the observability middleware always.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hmori/gamecoach/internal/app"
	"github.com/hmori/gamecoach/internal/auth"
	"github.com/hmori/gamecoach/internal/coach"
	"github.com/hmori/gamecoach/internal/config"
	"github.com/hmori/gamecoach/internal/health"
	"github.com/hmori/gamecoach/internal/observe"
)

// shutdownTimeout bounds the graceful-drain window when Run's context ends.
const shutdownTimeout = 10 * time.Second

// maxClipBytes caps the request body of one-shot recordings. 10 MB covers
// roughly five minutes of 16 kHz mono PCM, far beyond any sane clip.
const maxClipBytes = 10 << 20

// Server serves the coaching API on top of an [app.App].
type Server struct {
	app     *app.App
	cfg     config.ServerConfig
	metrics *observe.Metrics
	logger  *slog.Logger

	// convs holds one conversation session per (player, game) pair.
	mu    sync.Mutex
	convs map[sessionKey]*coach.Session
}

type sessionKey struct {
	playerID string
	gameID   string
}

// New creates a Server around the given application.
func New(a *app.App, cfg config.ServerConfig) *Server {
	return &Server{
		app:     a,
		cfg:     cfg,
		metrics: a.Metrics(),
		logger:  slog.Default(),
		convs:   make(map[sessionKey]*coach.Session),
	}
}

// Handler builds the full route tree, including auth and observability
// middleware. Exposed separately from Run for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Probes and metrics are served outside the auth boundary.
	health.New(s.checkers()...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	api := http.NewServeMux()
	api.HandleFunc("POST /v1/recordings", s.handleRecording)
	api.HandleFunc("POST /v1/coach", s.handleCoach)
	api.HandleFunc("GET /v1/stream", s.handleStream)
	api.HandleFunc("POST /v1/guide/{game}", s.handleGuideIngest)
	api.HandleFunc("GET /v1/voices", s.handleVoices)

	var protected http.Handler = api
	if v := s.app.Verifier(); v != nil {
		protected = auth.Middleware(v, s.logger)(api)
	}
	mux.Handle("/v1/", protected)

	return observe.Middleware(s.metrics)(mux)
}

// Run serves HTTP (or HTTPS when TLS is configured) until ctx is cancelled,
// then drains in-flight requests for up to [shutdownTimeout].
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.ListenAddr
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := s.cfg.TLS; tls != nil {
			slog.Info("listening", "addr", addr, "tls", true)
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			slog.Info("listening", "addr", addr, "tls", false)
			err = srv.ListenAndServe()
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// checkers builds the readiness checks. The TTS and guide checks report
// configuration presence; liveness of the backing services surfaces through
// request errors and metrics instead of probe traffic.
func (s *Server) checkers() []health.Checker {
	return []health.Checker{
		{
			Name: "recorder",
			Check: func(context.Context) error {
				if s.app.Recorder() == nil {
					return errors.New("recording sessions not initialised")
				}
				return nil
			},
		},
	}
}

// session returns the conversation session for a (player, game) pair,
// creating it on first use.
func (s *Server) session(playerID, gameID string) *coach.Session {
	key := sessionKey{playerID: playerID, gameID: gameID}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.convs[key]
	if !ok {
		sess = coach.NewSession(playerID, gameID)
		s.convs[key] = sess
	}
	return sess
}

// playerID resolves the acting player: the authenticated user when present,
// otherwise an explicit player_id query parameter (development without auth),
// otherwise "anonymous".
func (s *Server) playerID(r *http.Request) string {
	if u, ok := auth.FromContext(r.Context()); ok {
		return u.ID
	}
	if id := r.URL.Query().Get("player_id"); id != "" {
		return id
	}
	return "anonymous"
}
