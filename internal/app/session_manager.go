package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hmori/gamecoach/internal/observe"
	"github.com/hmori/gamecoach/pkg/provider/stt"
)

// Utterance is the cleaned outcome of one completed recording.
type Utterance struct {
	// PlayerID identifies the player who recorded the clip.
	PlayerID string

	// GameID is the game the recording belongs to, as given at Start.
	GameID string

	// Raw is the engine's transcription before any cleanup. Empty when the
	// recording contained no audio.
	Raw string

	// Text is the cleaned transcript: hallucinations filtered, duplicate
	// segments collapsed, disfluencies normalized, glossary applied. Empty
	// when Suppressed is true or the recording contained no speech.
	Text string

	// Suppressed is true when the hallucination filter dropped the whole
	// result.
	Suppressed bool

	// Recorded is the wall-clock span of the recording session.
	Recorded time.Duration
}

// SessionManager manages the lifecycle of per-player recording sessions. A
// player holds the record button in the browser; audio chunks stream in while
// the button is held, and the accumulated clip is transcribed once on
// release.
//
// At most one recording can be active per player. All exported methods are
// safe for concurrent use.
type SessionManager struct {
	stt     stt.Provider
	cleaner *Cleaner
	metrics *observe.Metrics

	mu   sync.Mutex
	recs map[string]*recording
}

// recording accumulates PCM audio for one in-progress clip.
type recording struct {
	gameID    string
	startedAt time.Time
	pcm       []byte
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(provider stt.Provider, cleaner *Cleaner, metrics *observe.Metrics) *SessionManager {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &SessionManager{
		stt:     provider,
		cleaner: cleaner,
		metrics: metrics,
		recs:    make(map[string]*recording),
	}
}

// Start begins a new recording for playerID. Starting while a recording is
// already in progress for the same player is a no-op — the existing recording
// keeps accumulating. started reports whether a new recording actually began.
func (sm *SessionManager) Start(playerID, gameID string) (started bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, ok := sm.recs[playerID]; ok {
		return false
	}
	sm.recs[playerID] = &recording{
		gameID:    gameID,
		startedAt: time.Now(),
	}
	sm.metrics.ActiveSessions.Add(context.Background(), 1)
	slog.Debug("recording started", "player_id", playerID, "game_id", gameID)
	return true
}

// Append adds a chunk of raw PCM audio to the player's active recording.
// Chunks arriving while no recording is active are discarded; ok reports
// whether the chunk was kept.
func (sm *SessionManager) Append(playerID string, pcm []byte) (ok bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	rec, active := sm.recs[playerID]
	if !active {
		return false
	}
	rec.pcm = append(rec.pcm, pcm...)
	return true
}

// Stop ends the player's recording, transcribes the accumulated audio exactly
// once, and runs transcript cleanup on the result. Stopping when no recording
// is active is a no-op and returns (nil, nil).
//
// The recording is removed from the active set before transcription begins,
// so a concurrent Stop for the same player cannot submit the clip twice.
func (sm *SessionManager) Stop(ctx context.Context, playerID string) (*Utterance, error) {
	sm.mu.Lock()
	rec, active := sm.recs[playerID]
	if !active {
		sm.mu.Unlock()
		return nil, nil
	}
	delete(sm.recs, playerID)
	sm.mu.Unlock()

	sm.metrics.ActiveSessions.Add(ctx, -1)

	utt := &Utterance{
		PlayerID: playerID,
		GameID:   rec.gameID,
		Recorded: time.Since(rec.startedAt),
	}
	if len(rec.pcm) == 0 {
		slog.Debug("recording stopped with no audio", "player_id", playerID)
		return utt, nil
	}

	start := time.Now()
	res, err := sm.stt.Transcribe(ctx, rec.pcm)
	sm.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("session: transcribe recording for %q: %w", playerID, err)
	}

	utt.Raw = res.Text
	utt.Text, utt.Suppressed = sm.cleaner.Clean(ctx, res)

	slog.Info("recording transcribed",
		"player_id", playerID,
		"game_id", rec.gameID,
		"bytes", len(rec.pcm),
		"suppressed", utt.Suppressed,
	)
	return utt, nil
}

// Abort discards the player's in-progress recording without transcribing
// it, for when the client disconnects mid-recording and nobody is left to
// read the result. Aborting when no recording is active is a no-op; aborted
// reports whether a recording was discarded.
func (sm *SessionManager) Abort(playerID string) (aborted bool) {
	sm.mu.Lock()
	rec, active := sm.recs[playerID]
	if !active {
		sm.mu.Unlock()
		return false
	}
	delete(sm.recs, playerID)
	sm.mu.Unlock()

	sm.metrics.ActiveSessions.Add(context.Background(), -1)
	slog.Debug("recording aborted", "player_id", playerID, "bytes", len(rec.pcm))
	return true
}

// Active reports the number of recordings currently in progress.
func (sm *SessionManager) Active() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.recs)
}
