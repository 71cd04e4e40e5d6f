package transcript_test

import (
	"testing"

	"github.com/hmori/gamecoach/internal/transcript"
	"github.com/hmori/gamecoach/pkg/provider/stt"
)

func segs(probs ...float64) []stt.Segment {
	out := make([]stt.Segment, len(probs))
	for i, p := range probs {
		out[i] = stt.Segment{ID: i, Text: "…", NoSpeechProb: p}
	}
	return out
}

func TestShouldSuppress(t *testing.T) {
	t.Parallel()
	f := transcript.NewFilter(transcript.DefaultJapanese())

	tests := []struct {
		name string
		res  *stt.Result
		want bool
	}{
		{
			name: "high average no-speech suppresses outright",
			res:  &stt.Result{Text: "なんでもいい", Segments: segs(0.6, 0.7)},
			want: true,
		},
		{
			name: "denylist phrase with corroborating signal suppresses",
			res: &stt.Result{
				Text:     "ご視聴ありがとうございました",
				Segments: []stt.Segment{{Text: "ご視聴ありがとうございました", NoSpeechProb: 0.4}},
			},
			want: true,
		},
		{
			name: "denylist phrase without corroborating signal passes",
			res: &stt.Result{
				Text: "ご視聴ありがとうございましたって言ってた",
				Segments: []stt.Segment{
					{Text: "ご視聴ありがとうございましたって言ってた", NoSpeechProb: 0.25},
				},
			},
			want: false,
		},
		{
			name: "phrase split across segments is caught after the join",
			res: &stt.Result{
				// The engine's own text field breaks the phrase; the joined
				// segments restore it.
				Text: "ご視聴ありがとう ございました",
				Segments: []stt.Segment{
					{Text: "ご視聴ありがとう", NoSpeechProb: 0.4},
					{Text: "ございました", NoSpeechProb: 0.4},
				},
			},
			want: true,
		},
		{
			name: "genuine short phrase passes",
			res: &stt.Result{
				Text:     "エイムが悪い",
				Segments: []stt.Segment{{Text: "エイムが悪い", NoSpeechProb: 0.05}},
			},
			want: false,
		},
		{
			name: "no segments never suppresses on phrase alone",
			res:  &stt.Result{Text: "ご視聴ありがとうございました"},
			want: false,
		},
		{
			name: "nil result passes",
			res:  nil,
			want: false,
		},
		{
			name: "boundary average exactly at threshold passes",
			res:  &stt.Result{Text: "そうだね", Segments: segs(0.5, 0.5)},
			want: false,
		},
		{
			name: "duplicate segments collapse before the denylist scan",
			res: &stt.Result{
				Segments: []stt.Segment{
					{Text: "チャンネル登録", NoSpeechProb: 0.45},
					{Text: "チャンネル登録", NoSpeechProb: 0.45},
				},
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := f.ShouldSuppress(tt.res); got != tt.want {
				t.Errorf("ShouldSuppress = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldSuppress_CustomThresholds(t *testing.T) {
	t.Parallel()

	f := transcript.NewFilter(transcript.DefaultJapanese(),
		transcript.WithSuppressThreshold(0.9),
		transcript.WithCorroborationThreshold(0.8),
	)

	// 0.6 average would suppress under the defaults but not here.
	res := &stt.Result{
		Segments: []stt.Segment{{Text: "ご視聴ありがとうございました", NoSpeechProb: 0.6}},
	}
	if f.ShouldSuppress(res) {
		t.Error("expected no suppression with raised thresholds")
	}
}
