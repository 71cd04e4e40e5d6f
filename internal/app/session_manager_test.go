package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/hmori/gamecoach/internal/app"
	"github.com/hmori/gamecoach/internal/transcript"
	"github.com/hmori/gamecoach/pkg/provider/stt"
	sttmock "github.com/hmori/gamecoach/pkg/provider/stt/mock"
)

// newTestRecorder builds a SessionManager around a mock STT provider and the
// built-in Japanese cleanup chain.
func newTestRecorder(t *testing.T, provider *sttmock.Provider) *app.SessionManager {
	t.Helper()
	cleaner, err := app.NewCleaner(transcript.DefaultJapanese(), nil, nil)
	if err != nil {
		t.Fatalf("NewCleaner: %v", err)
	}
	return app.NewSessionManager(provider, cleaner, nil)
}

func TestSessionManager_StartAppendStop(t *testing.T) {
	t.Parallel()

	provider := &sttmock.Provider{
		Result: &stt.Result{Text: "よし行くぞ"},
	}
	sm := newTestRecorder(t, provider)

	if !sm.Start("player-1", "valorant") {
		t.Fatal("Start should begin a new recording")
	}
	if sm.Active() != 1 {
		t.Fatalf("Active() = %d, want 1", sm.Active())
	}
	if !sm.Append("player-1", []byte{0x01, 0x02}) {
		t.Fatal("Append should accept audio for an active recording")
	}
	if !sm.Append("player-1", []byte{0x03, 0x04}) {
		t.Fatal("Append should accept a second chunk")
	}

	utt, err := sm.Stop(context.Background(), "player-1")
	if err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if utt == nil {
		t.Fatal("Stop() returned nil utterance for an active recording")
	}
	if utt.PlayerID != "player-1" || utt.GameID != "valorant" {
		t.Errorf("utterance identity = %q/%q, want player-1/valorant", utt.PlayerID, utt.GameID)
	}
	if utt.Text != "よし行くぞ" {
		t.Errorf("Text = %q, want よし行くぞ", utt.Text)
	}
	if utt.Suppressed {
		t.Error("utterance should not be suppressed")
	}
	if sm.Active() != 0 {
		t.Errorf("Active() after Stop = %d, want 0", sm.Active())
	}

	// The full accumulated clip must be submitted in one Transcribe call.
	if got := provider.TranscribeCallCount(); got != 1 {
		t.Fatalf("Transcribe calls = %d, want 1", got)
	}
	if got := provider.TranscribeCalls[0].PCM; len(got) != 4 {
		t.Errorf("submitted PCM = %d bytes, want 4", len(got))
	}
}

func TestSessionManager_StartIsReentrant(t *testing.T) {
	t.Parallel()

	provider := &sttmock.Provider{
		Result: &stt.Result{Text: "テスト"},
	}
	sm := newTestRecorder(t, provider)

	if !sm.Start("player-1", "valorant") {
		t.Fatal("first Start should begin a recording")
	}
	sm.Append("player-1", []byte{0x01})

	// A second press of the record button must not reset the clip.
	if sm.Start("player-1", "valorant") {
		t.Fatal("second Start should be a no-op")
	}
	sm.Append("player-1", []byte{0x02})

	utt, err := sm.Stop(context.Background(), "player-1")
	if err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if utt == nil {
		t.Fatal("Stop() returned nil utterance")
	}
	if got := provider.TranscribeCallCount(); got != 1 {
		t.Fatalf("Transcribe calls = %d, want 1", got)
	}
	if got := provider.TranscribeCalls[0].PCM; len(got) != 2 {
		t.Errorf("submitted PCM = %d bytes, want both chunks (2)", len(got))
	}
}

func TestSessionManager_StopWhenIdleIsNoop(t *testing.T) {
	t.Parallel()

	provider := &sttmock.Provider{}
	sm := newTestRecorder(t, provider)

	utt, err := sm.Stop(context.Background(), "player-1")
	if err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if utt != nil {
		t.Fatalf("Stop() without an active recording should return nil, got %+v", utt)
	}
	if got := provider.TranscribeCallCount(); got != 0 {
		t.Errorf("Transcribe calls = %d, want 0", got)
	}
}

func TestSessionManager_DoubleStopTranscribesOnce(t *testing.T) {
	t.Parallel()

	provider := &sttmock.Provider{
		Result: &stt.Result{Text: "テスト"},
	}
	sm := newTestRecorder(t, provider)

	sm.Start("player-1", "valorant")
	sm.Append("player-1", []byte{0x01})

	if utt, err := sm.Stop(context.Background(), "player-1"); err != nil || utt == nil {
		t.Fatalf("first Stop: utt=%v err=%v", utt, err)
	}
	if utt, err := sm.Stop(context.Background(), "player-1"); err != nil || utt != nil {
		t.Fatalf("second Stop should be a no-op: utt=%v err=%v", utt, err)
	}
	if got := provider.TranscribeCallCount(); got != 1 {
		t.Errorf("Transcribe calls = %d, want 1", got)
	}
}

func TestSessionManager_AppendWhenIdleIsDiscarded(t *testing.T) {
	t.Parallel()

	sm := newTestRecorder(t, &sttmock.Provider{})

	if sm.Append("player-1", []byte{0x01}) {
		t.Error("Append without an active recording should be discarded")
	}
}

func TestSessionManager_StopWithNoAudio(t *testing.T) {
	t.Parallel()

	provider := &sttmock.Provider{}
	sm := newTestRecorder(t, provider)

	sm.Start("player-1", "valorant")
	utt, err := sm.Stop(context.Background(), "player-1")
	if err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if utt == nil {
		t.Fatal("Stop() should return an (empty) utterance for a silent recording")
	}
	if utt.Text != "" || utt.Suppressed {
		t.Errorf("empty recording: Text=%q Suppressed=%v, want empty/false", utt.Text, utt.Suppressed)
	}
	if got := provider.TranscribeCallCount(); got != 0 {
		t.Errorf("Transcribe calls = %d, want 0", got)
	}
}

func TestSessionManager_TranscribeError(t *testing.T) {
	t.Parallel()

	provider := &sttmock.Provider{TranscribeErr: errors.New("engine down")}
	sm := newTestRecorder(t, provider)

	sm.Start("player-1", "valorant")
	sm.Append("player-1", []byte{0x01})

	if _, err := sm.Stop(context.Background(), "player-1"); err == nil {
		t.Fatal("Stop() should surface the transcription error")
	}
	// The failed recording is gone; the player can simply record again.
	if sm.Active() != 0 {
		t.Errorf("Active() after failed Stop = %d, want 0", sm.Active())
	}
}

func TestSessionManager_AbortSkipsTranscription(t *testing.T) {
	t.Parallel()

	provider := &sttmock.Provider{
		Result: &stt.Result{Text: "聞こえないはず"},
	}
	sm := newTestRecorder(t, provider)

	sm.Start("player-1", "valorant")
	sm.Append("player-1", []byte{0x01, 0x02})

	if !sm.Abort("player-1") {
		t.Fatal("Abort should discard the active recording")
	}
	if sm.Active() != 0 {
		t.Errorf("Active() after Abort = %d, want 0", sm.Active())
	}
	// The abandoned clip must never reach the engine.
	if got := provider.TranscribeCallCount(); got != 0 {
		t.Errorf("Transcribe calls = %d, want 0", got)
	}

	// The recording is gone, so a late Stop is a no-op.
	if utt, err := sm.Stop(context.Background(), "player-1"); err != nil || utt != nil {
		t.Errorf("Stop after Abort: utt=%v err=%v, want nil/nil", utt, err)
	}
}

func TestSessionManager_AbortWhenIdleIsNoop(t *testing.T) {
	t.Parallel()

	sm := newTestRecorder(t, &sttmock.Provider{})
	if sm.Abort("player-1") {
		t.Error("Abort without an active recording should report false")
	}
}

func TestSessionManager_SuppressesHallucinatedResult(t *testing.T) {
	t.Parallel()

	provider := &sttmock.Provider{
		Result: &stt.Result{
			Segments: []stt.Segment{
				{ID: 0, Text: "ご視聴ありがとうございました", NoSpeechProb: 0.9},
			},
		},
	}
	sm := newTestRecorder(t, provider)

	sm.Start("player-1", "valorant")
	sm.Append("player-1", []byte{0x01})

	utt, err := sm.Stop(context.Background(), "player-1")
	if err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if !utt.Suppressed {
		t.Error("high no-speech result should be suppressed")
	}
	if utt.Text != "" {
		t.Errorf("suppressed utterance Text = %q, want empty", utt.Text)
	}
}

func TestSessionManager_CollapsesDuplicateSegments(t *testing.T) {
	t.Parallel()

	provider := &sttmock.Provider{
		Result: &stt.Result{
			Segments: []stt.Segment{
				{ID: 0, Text: "今日は晴れ"},
				{ID: 1, Text: "今日は晴れ"},
			},
		},
	}
	sm := newTestRecorder(t, provider)

	sm.Start("player-1", "valorant")
	sm.Append("player-1", []byte{0x01})

	utt, err := sm.Stop(context.Background(), "player-1")
	if err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if utt.Text != "今日は晴れ" {
		t.Errorf("Text = %q, want 今日は晴れ", utt.Text)
	}
}
