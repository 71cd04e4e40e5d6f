package transcript_test

import (
	"testing"

	"github.com/hmori/gamecoach/internal/transcript"
)

func newNormalizer(t *testing.T) *transcript.Normalizer {
	t.Helper()
	n, err := transcript.NewNormalizer(transcript.DefaultJapanese())
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}
	return n
}

func TestCorrect_Examples(t *testing.T) {
	t.Parallel()
	n := newNormalizer(t)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "phrase repetition collapse",
			in:   "今日は今日は学校に行く",
			want: "今日は学校に行く",
		},
		{
			name: "punctuation-separated phrase repetition",
			in:   "今日は、今日は学校に行く",
			want: "今日は学校に行く",
		},
		{
			name: "stutter collapse triple",
			in:   "ぼぼぼくは",
			want: "ぼくは",
		},
		{
			name: "stutter collapse double before different kana",
			in:   "ぼぼくは",
			want: "ぼくは",
		},
		{
			name: "long sound normalization",
			in:   "あーーーそうなんだ",
			want: "あーそうなんだ",
		},
		{
			name: "small tsu run",
			in:   "まっっって",
			want: "まって",
		},
		{
			name: "ellipsis run",
			in:   "そう………だね",
			want: "そう…だね",
		},
		{
			name: "leading filler strip",
			in:   "えっと、今日は学校に行った",
			want: "今日は学校に行った",
		},
		{
			name: "leading elongated filler strip",
			in:   "あのー、それで勝てた",
			want: "それで勝てた",
		},
		{
			name: "filler run collapses then strips from start",
			in:   "えっと、あの、今日は天気がいい",
			want: "今日は天気がいい",
		},
		{
			name: "mid-sentence filler run keeps one filler",
			in:   "今日は、えっと、あの、いい天気",
			want: "今日は、えっと、いい天気",
		},
		{
			name: "comma-separated short unit false start",
			in:   "お、お、おにぎり",
			want: "おにぎり",
		},
		{
			name: "separated repeat keeps following punctuation",
			in:   "よし、よし、行くぞ",
			want: "よし、行くぞ",
		},
		{
			name: "kana false start before kanji",
			in:   "わ、私は学生です",
			want: "私は学生です",
		},
		{
			name: "elision exposes phrase repeat for second pass",
			in:   "今日は、わ、今日は",
			want: "今日は",
		},
		{
			name: "tidy strips surrounding space and punctuation",
			in:   "　今日は学校に行く。",
			want: "今日は学校に行く",
		},
		{
			name: "legitimate double before kanji is kept",
			in:   "いい天気",
			want: "いい天気",
		},
		{
			name: "lone double at end of string is kept",
			in:   "ここ",
			want: "ここ",
		},
		{
			name: "latin phrase repetition",
			in:   "today is today is nice",
			want: "today is nice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := n.Correct(tt.in)
			if got != tt.want {
				t.Errorf("Correct(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCorrect_Idempotent(t *testing.T) {
	t.Parallel()
	n := newNormalizer(t)

	inputs := []string{
		"今日は今日は学校に行く",
		"今日は、今日は学校に行く",
		"ぼぼぼくは",
		"ぼぼくは",
		"あーーーそうなんだ",
		"えっと、今日は学校に行った",
		"えっと、あの、今日は天気がいい",
		"今日は、えっと、あの、いい天気",
		"お、お、おにぎり",
		"よし、よし、行くぞ",
		"わ、私は学生です",
		"今日は、わ、今日は",
		"エイムが悪い",
		"いい天気",
		"",
		"、、、",
		"today is today is nice",
	}

	for _, in := range inputs {
		once := n.Correct(in)
		twice := n.Correct(once)
		if once != twice {
			t.Errorf("Correct not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestCorrect_Total(t *testing.T) {
	t.Parallel()
	n := newNormalizer(t)

	// None of these may panic, and rule-free input must come back unchanged.
	inputs := []string{
		"",
		"   ",
		"　　　",
		"、。、。",
		"...",
		"abc",
		"123",
		"🎮🎮🎮",
		"エイムが悪い",
		string([]byte{0xff, 0xfe}), // invalid UTF-8
	}
	for _, in := range inputs {
		_ = n.Correct(in)
	}

	if got := n.Correct("abc"); got != "abc" {
		t.Errorf("Correct(%q) = %q, want unchanged", "abc", got)
	}
	if got := n.Correct("エイムが悪い"); got != "エイムが悪い" {
		t.Errorf("Correct(%q) = %q, want unchanged", "エイムが悪い", got)
	}
}

func TestCorrectTraced(t *testing.T) {
	t.Parallel()
	n := newNormalizer(t)

	got, traces := n.CorrectTraced("えっと、今日は今日は学校に行った")
	if got != "今日は学校に行った" {
		t.Fatalf("CorrectTraced text = %q, want %q", got, "今日は学校に行った")
	}
	if len(traces) == 0 {
		t.Fatal("expected at least one trace entry for corrected input")
	}
	for _, tr := range traces {
		if tr.Before == tr.After {
			t.Errorf("trace %q records no change (%q)", tr.Rule, tr.Before)
		}
	}

	if _, traces := n.CorrectTraced("学校に行く"); len(traces) != 0 {
		t.Errorf("expected no traces for clean input, got %d", len(traces))
	}
}

func TestNewNormalizer_InvalidProfile(t *testing.T) {
	t.Parallel()

	p := transcript.DefaultJapanese()
	p.Syllabary = `[` // does not compile as a character class
	if _, err := transcript.NewNormalizer(p); err == nil {
		t.Fatal("expected error for invalid syllabary class, got nil")
	}
}
