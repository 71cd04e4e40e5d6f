package transcript

import (
	"strings"

	"github.com/hmori/gamecoach/pkg/provider/stt"
)

const (
	// defaultSuppressThreshold is the mean no-speech probability above which a
	// result is suppressed outright.
	defaultSuppressThreshold = 0.5

	// defaultCorroborationThreshold is the lower bar applied when a denylisted
	// boilerplate phrase is also present: the textual evidence corroborates
	// the noisy no-speech signal, so less of it is needed.
	defaultCorroborationThreshold = 0.3
)

// FilterOption is a functional option for configuring a [Filter].
type FilterOption func(*Filter)

// WithSuppressThreshold overrides the mean no-speech probability above which
// a result is always suppressed. Default: 0.5.
func WithSuppressThreshold(v float64) FilterOption {
	return func(f *Filter) {
		f.suppressThreshold = v
	}
}

// WithCorroborationThreshold overrides the mean no-speech probability above
// which a denylist phrase match suppresses the result. Default: 0.3.
func WithCorroborationThreshold(v float64) FilterOption {
	return func(f *Filter) {
		f.corroborationThreshold = v
	}
}

// Filter decides whether a transcription result is real speech or a known
// artifact of low-confidence transcription. Whisper-class engines emit
// confident-looking boilerplate ("ご視聴ありがとうございました" and friends)
// when fed silence or noise; the per-segment no-speech probability alone is a
// noisy signal, so the filter pairs it with a denylist phrase scan as a
// second, independent check.
//
// Filter is stateless after construction and safe for concurrent use.
type Filter struct {
	denylist               []string
	suppressThreshold      float64
	corroborationThreshold float64
}

// NewFilter constructs a Filter using the profile's denylist.
func NewFilter(p Profile, opts ...FilterOption) *Filter {
	f := &Filter{
		denylist:               p.Denylist,
		suppressThreshold:      defaultSuppressThreshold,
		corroborationThreshold: defaultCorroborationThreshold,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// ShouldSuppress reports whether the whole result must be treated as "no
// speech detected". The decision procedure:
//
//  1. With segments present, compute the mean no-speech probability. Above
//     the suppress threshold the result is suppressed unconditionally.
//  2. Otherwise the deduplicated text (consecutive duplicate segments
//     collapsed, see [JoinSegments]) is scanned against the denylist; a
//     substring hit suppresses when the mean no-speech probability is still
//     above the corroboration threshold.
//  3. Without segments there is no corroborating signal, so the result is
//     never suppressed on a phrase match alone. This is deliberate policy:
//     a user legitimately quoting a denylisted phrase must not be silenced
//     by text evidence only.
//
// When ShouldSuppress returns true the caller must not forward the result to
// the normalizer.
func (f *Filter) ShouldSuppress(res *stt.Result) bool {
	suppress, _ := f.Evaluate(res)
	return suppress
}

// Evaluate is [Filter.ShouldSuppress] plus the reason for the decision:
// "no_speech" when the mean no-speech probability alone crossed the suppress
// threshold, "denylist" when a denylist phrase corroborated a weaker signal.
// The reason is empty when the result is kept.
func (f *Filter) Evaluate(res *stt.Result) (suppress bool, reason string) {
	if res == nil || len(res.Segments) == 0 {
		return false, ""
	}

	var sum float64
	for _, seg := range res.Segments {
		sum += seg.NoSpeechProb
	}
	avgNoSpeech := sum / float64(len(res.Segments))

	if avgNoSpeech > f.suppressThreshold {
		return true, "no_speech"
	}

	if avgNoSpeech > f.corroborationThreshold && f.matchesDenylist(f.text(res)) {
		return true, "denylist"
	}

	return false, ""
}

// text returns the text scanned against the denylist: the segment texts
// with consecutive duplicates collapsed (see [JoinSegments]). Scanning the
// deduplicated join also catches a boilerplate phrase the engine split
// across segment boundaries.
func (f *Filter) text(res *stt.Result) string {
	texts := make([]string, 0, len(res.Segments))
	for _, seg := range res.Segments {
		texts = append(texts, seg.Text)
	}
	return JoinSegments(texts)
}

// matchesDenylist reports whether any denylisted phrase is a substring of
// text.
func (f *Filter) matchesDenylist(text string) bool {
	for _, phrase := range f.denylist {
		if phrase != "" && strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
