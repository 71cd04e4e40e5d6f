package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/hmori/gamecoach/internal/observe"
	"github.com/hmori/gamecoach/pkg/audio"
)

// sttSampleRate is the PCM format transcription engines expect.
const sttSampleRate = 16000

// controlMessage is the JSON envelope for text frames in both directions.
//
// Client → server types: "start" (begin a recording; GameID required) and
// "stop" (end the recording and run a coaching round).
//
// Server → client types: "transcript" (the cleaned utterance), "reply" (one
// streamed coach fragment), "reply_done" (the full reply text), and "error".
// Synthesized speech arrives as binary frames of 16-bit PCM between "reply"
// and "reply_done".
type controlMessage struct {
	Type       string `json:"type"`
	GameID     string `json:"game_id,omitempty"`
	Text       string `json:"text,omitempty"`
	Suppressed bool   `json:"suppressed,omitempty"`
}

// handleStream runs the WebSocket voice loop for one client: Opus packets
// accumulate into a recording between "start" and "stop" control messages;
// each "stop" triggers transcription, cleanup, and a streamed coaching reply.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	ctx := r.Context()
	playerID := s.playerID(r)
	logger := observe.Logger(ctx).With("player_id", playerID)

	s.metrics.ActiveStreams.Add(ctx, 1)
	defer s.metrics.ActiveStreams.Add(ctx, -1)

	dec, err := audio.NewOpusDecoder()
	if err != nil {
		logger.Error("create opus decoder", "err", err)
		conn.Close(websocket.StatusInternalError, "audio setup failed")
		return
	}
	conv := audio.FormatConverter{
		Target: audio.Format{SampleRate: sttSampleRate, Channels: 1},
	}

	rec := s.app.Recorder()
	gameID := ""

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			// Normal closure or client gone; discard any half-recorded clip
			// without spending an inference on audio nobody will read.
			if rec.Abort(playerID) {
				logger.Debug("discarded partial recording")
			}
			logger.Debug("stream ended", "err", err)
			return
		}

		switch typ {
		case websocket.MessageBinary:
			pcm, err := dec.Decode(data)
			if err != nil {
				logger.Warn("dropping undecodable audio packet", "err", err)
				continue
			}
			frame := conv.Convert(audio.AudioFrame{
				Data:       pcm,
				SampleRate: audio.OpusSampleRate,
				Channels:   audio.OpusChannels,
			})
			rec.Append(playerID, frame.Data)

		case websocket.MessageText:
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				s.writeControl(ctx, conn, controlMessage{Type: "error", Text: "malformed control message"})
				continue
			}
			switch msg.Type {
			case "start":
				if msg.GameID == "" {
					s.writeControl(ctx, conn, controlMessage{Type: "error", Text: "game_id is required"})
					continue
				}
				gameID = msg.GameID
				rec.Start(playerID, gameID)
			case "stop":
				s.coachingRound(ctx, conn, playerID, gameID)
			default:
				s.writeControl(ctx, conn, controlMessage{Type: "error", Text: "unknown message type " + msg.Type})
			}
		}
	}
}

// coachingRound finishes the player's recording and, when it produced usable
// speech, streams a coaching reply back over the connection: text fragments
// as they are generated, synthesized audio as binary frames, then the full
// reply text.
func (s *Server) coachingRound(ctx context.Context, conn *websocket.Conn, playerID, gameID string) {
	logger := observe.Logger(ctx).With("player_id", playerID, "game_id", gameID)
	start := time.Now()

	utt, err := s.app.Recorder().Stop(ctx, playerID)
	if err != nil {
		s.metrics.RecordProviderError(ctx, "stt", "stt")
		logger.Warn("transcription failed", "err", err)
		s.writeControl(ctx, conn, controlMessage{Type: "error", Text: "transcription failed"})
		return
	}
	if utt == nil {
		// Stop without a matching start.
		return
	}

	s.writeControl(ctx, conn, controlMessage{
		Type:       "transcript",
		GameID:     utt.GameID,
		Text:       utt.Text,
		Suppressed: utt.Suppressed,
	})
	if utt.Suppressed || utt.Text == "" {
		return
	}

	engine, ok := s.app.Coach(utt.GameID)
	if !ok {
		s.writeControl(ctx, conn, controlMessage{Type: "error", Text: "unknown game " + utt.GameID})
		return
	}

	sess := s.session(playerID, utt.GameID)
	fragments, err := engine.AskStream(ctx, sess, utt.Text)
	if err != nil {
		s.metrics.RecordProviderError(ctx, "llm", "llm")
		logger.Warn("coaching failed", "err", err)
		s.writeControl(ctx, conn, controlMessage{Type: "error", Text: "coaching failed"})
		return
	}

	// Tee reply fragments into TTS synthesis when a voice is configured.
	var (
		ttsIn   chan string
		audioWG sync.WaitGroup
	)
	if prov := s.app.TTS(); prov != nil {
		if voice, ok := s.app.Voice(utt.GameID); ok {
			ttsIn = make(chan string, 16)
			audioCh, err := prov.SynthesizeStream(ctx, ttsIn, voice)
			if err != nil {
				s.metrics.RecordProviderError(ctx, "tts", "tts")
				logger.Warn("synthesis unavailable, streaming text only", "err", err)
				ttsIn = nil
			} else {
				audioWG.Add(1)
				go func() {
					defer audioWG.Done()
					for chunk := range audioCh {
						if err := conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
							logger.Debug("audio write failed", "err", err)
							// Keep draining so the synthesis pipeline can finish.
							for range audioCh {
							}
							return
						}
					}
				}()
			}
		}
	}

	var full strings.Builder
	for frag := range fragments {
		full.WriteString(frag)
		s.writeControl(ctx, conn, controlMessage{Type: "reply", Text: frag})
		if ttsIn != nil {
			select {
			case ttsIn <- frag:
			case <-ctx.Done():
			}
		}
	}
	if ttsIn != nil {
		close(ttsIn)
		audioWG.Wait()
	}

	s.metrics.CoachingDuration.Record(ctx, time.Since(start).Seconds())
	s.metrics.RecordCoachReply(ctx, utt.GameID)
	s.writeControl(ctx, conn, controlMessage{Type: "reply_done", Text: full.String()})
}

// writeControl sends a JSON control message; write failures are logged and
// otherwise ignored, the read loop will observe the broken connection.
func (s *Server) writeControl(ctx context.Context, conn *websocket.Conn, msg controlMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		observe.Logger(ctx).Warn("marshal control message", "err", err)
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		observe.Logger(ctx).Debug("control write failed", "type", msg.Type, "err", err)
	}
}
