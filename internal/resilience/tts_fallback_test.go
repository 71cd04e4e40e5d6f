package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/hmori/gamecoach/pkg/provider/tts"
	ttsmock "github.com/hmori/gamecoach/pkg/provider/tts/mock"
)

func newTTSChain(primary, secondary tts.Provider) *TTSFallback {
	fb := NewTTSFallback(primary, "voicevox", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("openai-tts", secondary)
	return fb
}

func replyText(t *testing.T, fragments ...string) <-chan string {
	t.Helper()
	ch := make(chan string, len(fragments))
	for _, f := range fragments {
		ch <- f
	}
	close(ch)
	return ch
}

func drain(ch <-chan []byte) [][]byte {
	var out [][]byte
	for b := range ch {
		out = append(out, b)
	}
	return out
}

func TestTTSFallback_StreamFromPrimary(t *testing.T) {
	t.Parallel()
	primary := &ttsmock.Provider{
		SynthesizeChunks: [][]byte{[]byte("wav-a"), []byte("wav-b")},
	}
	secondary := &ttsmock.Provider{
		SynthesizeChunks: [][]byte{[]byte("backup-wav")},
	}
	fb := newTTSChain(primary, secondary)

	zundamon := tts.VoiceProfile{ID: "3", Name: "ずんだもん ノーマル", Provider: "voicevox"}
	audio, err := fb.SynthesizeStream(context.Background(), replyText(t, "まずミッドを取ろう。"), zundamon)
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}

	chunks := drain(audio)
	if len(chunks) != 2 || string(chunks[0]) != "wav-a" {
		t.Fatalf("chunks = %q, want the primary's two chunks", chunks)
	}
	if len(primary.SynthesizeStreamCalls) != 1 {
		t.Fatalf("primary called %d times, want 1", len(primary.SynthesizeStreamCalls))
	}
	if got := primary.SynthesizeStreamCalls[0].Voice; got.ID != "3" {
		t.Errorf("voice ID = %q, want the requested speaker", got.ID)
	}
	if len(secondary.SynthesizeStreamCalls) != 0 {
		t.Error("fallback should stay idle while the primary is healthy")
	}
}

func TestTTSFallback_StreamFailsOverOnSetup(t *testing.T) {
	t.Parallel()
	primary := &ttsmock.Provider{SynthesizeErr: errors.New("engine not running")}
	secondary := &ttsmock.Provider{
		SynthesizeChunks: [][]byte{[]byte("backup-wav")},
	}
	fb := newTTSChain(primary, secondary)

	audio, err := fb.SynthesizeStream(context.Background(), replyText(t, "裏を警戒して。"), tts.VoiceProfile{})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}

	chunks := drain(audio)
	if len(chunks) != 1 || string(chunks[0]) != "backup-wav" {
		t.Fatalf("chunks = %q, want the fallback's audio", chunks)
	}
}

func TestTTSFallback_StreamWholeChainDown(t *testing.T) {
	t.Parallel()
	fb := newTTSChain(
		&ttsmock.Provider{SynthesizeErr: errors.New("engine not running")},
		&ttsmock.Provider{SynthesizeErr: errors.New("api: 503")},
	)

	_, err := fb.SynthesizeStream(context.Background(), replyText(t), tts.VoiceProfile{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestTTSFallback_Synthesize_FailsOver(t *testing.T) {
	t.Parallel()
	primary := &ttsmock.Provider{SynthesizeErr: errors.New("engine not running")}
	secondary := &ttsmock.Provider{
		SynthesizeChunks: [][]byte{[]byte("backup-wav")},
	}
	fb := newTTSChain(primary, secondary)

	pcm, err := fb.Synthesize(context.Background(), "よし、行こう。", tts.VoiceProfile{ID: "3"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(pcm) != "backup-wav" {
		t.Errorf("pcm = %q, want the fallback's audio", pcm)
	}
	if len(secondary.SynthesizeCalls) != 1 {
		t.Errorf("fallback called %d times, want 1", len(secondary.SynthesizeCalls))
	}
	if secondary.SynthesizeCalls[0].Text != "よし、行こう。" {
		t.Errorf("fallback received %q", secondary.SynthesizeCalls[0].Text)
	}
}

func TestTTSFallback_ListVoices_FailsOver(t *testing.T) {
	t.Parallel()
	fb := newTTSChain(
		&ttsmock.Provider{ListVoicesErr: errors.New("engine not running")},
		&ttsmock.Provider{
			ListVoicesResult: []tts.VoiceProfile{
				{ID: "3", Name: "ずんだもん ノーマル"},
				{ID: "2", Name: "四国めたん ノーマル"},
			},
		},
	)

	voices, err := fb.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 || voices[0].Name != "ずんだもん ノーマル" {
		t.Fatalf("voices = %+v, want the fallback's two speakers", voices)
	}
}
