package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hmori/gamecoach/internal/observe"
)

// recordingResponse is the JSON body returned by POST /v1/recordings.
type recordingResponse struct {
	PlayerID   string `json:"player_id"`
	GameID     string `json:"game_id"`
	Raw        string `json:"raw,omitempty"`
	Text       string `json:"text"`
	Suppressed bool   `json:"suppressed"`
}

// handleRecording accepts a complete voice clip as raw 16 kHz mono PCM in the
// request body, transcribes it, and returns the cleaned transcript.
func (s *Server) handleRecording(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("game_id")
	if gameID == "" {
		httpError(w, http.StatusBadRequest, "game_id query parameter is required")
		return
	}

	pcm, err := io.ReadAll(io.LimitReader(r.Body, maxClipBytes+1))
	if err != nil {
		httpError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if len(pcm) > maxClipBytes {
		httpError(w, http.StatusRequestEntityTooLarge, "clip exceeds size limit")
		return
	}

	playerID := s.playerID(r)
	rec := s.app.Recorder()

	rec.Start(playerID, gameID)
	rec.Append(playerID, pcm)
	utt, err := rec.Stop(r.Context(), playerID)
	if err != nil {
		s.metrics.RecordProviderError(r.Context(), "stt", "stt")
		httpError(w, http.StatusBadGateway, "transcription failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, recordingResponse{
		PlayerID:   utt.PlayerID,
		GameID:     utt.GameID,
		Raw:        utt.Raw,
		Text:       utt.Text,
		Suppressed: utt.Suppressed,
	})
}

// coachRequest is the JSON body accepted by POST /v1/coach.
type coachRequest struct {
	GameID   string `json:"game_id"`
	Question string `json:"question"`

	// Speak requests a synthesized spoken reply alongside the text.
	Speak bool `json:"speak"`
}

// coachPassage is one grounding passage echoed back to the client.
type coachPassage struct {
	Section  string  `json:"section"`
	Content  string  `json:"content"`
	Distance float64 `json:"distance"`
}

// coachResponse is the JSON body returned by POST /v1/coach. Audio is
// base64-encoded 16-bit PCM when Speak was requested.
type coachResponse struct {
	Text     string         `json:"text"`
	Passages []coachPassage `json:"passages,omitempty"`
	Audio    []byte         `json:"audio,omitempty"`
}

// handleCoach answers a typed question with the game's coaching engine.
func (s *Server) handleCoach(w http.ResponseWriter, r *http.Request) {
	var req coachRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "decode body: "+err.Error())
		return
	}

	engine, ok := s.app.Coach(req.GameID)
	if !ok {
		httpError(w, http.StatusNotFound, "unknown game "+req.GameID)
		return
	}

	playerID := s.playerID(r)
	sess := s.session(playerID, req.GameID)

	start := time.Now()
	reply, err := engine.Ask(r.Context(), sess, req.Question)
	s.metrics.LLMDuration.Record(r.Context(), time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(r.Context(), "llm", "llm")
		httpError(w, http.StatusBadGateway, "coaching failed: "+err.Error())
		return
	}
	s.metrics.RecordCoachReply(r.Context(), req.GameID)

	resp := coachResponse{Text: reply.Text}
	for _, p := range reply.Passages {
		resp.Passages = append(resp.Passages, coachPassage{
			Section:  p.Passage.Section,
			Content:  p.Passage.Content,
			Distance: p.Distance,
		})
	}

	if req.Speak {
		resp.Audio = s.speak(r, req.GameID, reply.Text)
	}

	writeJSON(w, http.StatusOK, resp)
}

// speak synthesizes text with the game's configured voice. Synthesis failures
// degrade to a text-only reply.
func (s *Server) speak(r *http.Request, gameID, text string) []byte {
	prov := s.app.TTS()
	if prov == nil {
		return nil
	}
	voice, ok := s.app.Voice(gameID)
	if !ok {
		return nil
	}

	start := time.Now()
	pcm, err := prov.Synthesize(r.Context(), text, voice)
	s.metrics.TTSDuration.Record(r.Context(), time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(r.Context(), "tts", "tts")
		observe.Logger(r.Context()).Warn("synthesis failed, returning text only",
			"game_id", gameID, "err", err)
		return nil
	}
	return pcm
}

// guideIngestRequest is the JSON body accepted by POST /v1/guide/{game}.
type guideIngestRequest struct {
	Section string `json:"section"`
	Content string `json:"content"`
}

// handleGuideIngest chunks, embeds, and indexes strategy-guide text.
func (s *Server) handleGuideIngest(w http.ResponseWriter, r *http.Request) {
	svc := s.app.Guide()
	if svc == nil {
		httpError(w, http.StatusServiceUnavailable, "strategy guide is not configured")
		return
	}

	gameID := r.PathValue("game")
	var req guideIngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "decode body: "+err.Error())
		return
	}
	if req.Content == "" {
		httpError(w, http.StatusBadRequest, "content is required")
		return
	}

	n, err := svc.Ingest(r.Context(), gameID, req.Section, req.Content)
	if err != nil {
		httpError(w, http.StatusBadGateway, "ingest failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"passages": n})
}

// handleVoices lists the TTS voices available for coach replies.
func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	prov := s.app.TTS()
	if prov == nil {
		httpError(w, http.StatusServiceUnavailable, "text-to-speech is not configured")
		return
	}

	voices, err := prov.ListVoices(r.Context())
	if err != nil {
		httpError(w, http.StatusBadGateway, "list voices: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, voices)
}

// httpError writes a JSON error body with the given status.
func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already written; nothing more to do than log.
		slog.Warn("encode response", "err", err)
	}
}
