// Package transcript cleans raw speech-to-text output before it reaches the
// coach and the UI.
//
// Speech recognition of spontaneous speech is littered with disfluencies —
// stutters ("ぼぼぼくは"), repeated phrases ("今日は今日は"), fillers
// ("えっと、あの、"), and stretched sounds ("あーーー") — plus outright
// hallucinations the engine emits on silence. The package provides three
// cooperating pieces:
//
//   - [Normalizer] — a deterministic, ordered pipeline of rewrite rules that
//     collapses disfluencies without touching meaning-bearing content.
//   - [Filter] — decides whether a transcription result is real speech or a
//     known silence artifact, and suppresses it.
//   - [JoinSegments] — collapses consecutive duplicate segments the engine
//     re-emits across chunk boundaries.
//
// The cleanup is best-effort and lossy by design: it is biased toward
// precision on common disfluency shapes and accepts that an occasional
// legitimate doubled word (intentional emphasis, reduplicated dictionary
// words) will be collapsed. That is a product trade-off, not a bug.
//
// All types are pure and free of shared mutable state, so they are safe for
// concurrent use.
package transcript

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// minPhraseRunes and maxPhraseRunes bound the phrase length considered by
	// the repetition-collapse rules. Phrases shorter than two runes are the
	// stutter rule's territory; phrases longer than ten runes are too unlikely
	// to be disfluent repeats to be worth the scan.
	minPhraseRunes = 2
	maxPhraseRunes = 10

	// maxUnitRunes bounds the fragment length considered by the
	// separated-false-start rule.
	maxUnitRunes = 3
)

// rule is one named rewrite step of the pipeline. Each rule must be
// idempotent when applied immediately after itself; the ordered list of rules
// IS the algorithm, and later rules assume earlier passes already collapsed
// simple repeats.
type rule struct {
	name string
	fn   func(string) string
}

// Trace records the effect of a single rule during a Correct call. Only rules
// that changed the text are traced.
type Trace struct {
	// Rule is the name of the rewrite rule.
	Rule string

	// Before and After are the text on either side of the rule.
	Before string
	After  string
}

// Normalizer applies the ordered disfluency-correction pipeline to utterance
// text. Construct it once with [NewNormalizer] and share it; Correct is pure
// and safe for concurrent use.
type Normalizer struct {
	profile Profile
	rules   []rule

	syllRe *regexp.Regexp
	sepRe  *regexp.Regexp

	elisionRe     *regexp.Regexp
	elongationRes []*regexp.Regexp
	fillerDupRe   *regexp.Regexp
	leadFillerRe  *regexp.Regexp
	commaRunRe    *regexp.Regexp
	spaceRunRe    *regexp.Regexp
	trimRe        *regexp.Regexp
}

// NewNormalizer compiles the rule pipeline for the given profile. It returns
// an error only when the profile is invalid; a valid profile always yields a
// total Correct function.
func NewNormalizer(p Profile) (*Normalizer, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("transcript: %w", err)
	}

	n := &Normalizer{profile: p}

	var err error
	compile := func(expr string) *regexp.Regexp {
		if err != nil {
			return nil
		}
		var re *regexp.Regexp
		re, err = regexp.Compile(expr)
		return re
	}

	syll := "[" + p.Syllabary + "]"
	sep := "[" + p.Separators + "]"

	n.syllRe = compile("^" + syll + "$")
	n.sepRe = compile("^" + sep + "$")

	// Rule 5: a bare mora (not preceded by another syllabary character)
	// followed by punctuation and a logograph is a false-start onset.
	n.elisionRe = compile("(^|[^" + p.Syllabary + "])" + syll + sep + "+([" + p.Logographs + "])")

	// Rule 6: runs of the same elongation mark.
	for _, m := range p.Elongations {
		n.elongationRes = append(n.elongationRes, compile("(?:"+regexp.QuoteMeta(m)+"){2,}"))
	}

	// Rules 7 and 8: filler runs and leading fillers.
	if len(p.Fillers) > 0 {
		alt := fillerAlternation(p.Fillers)
		elong := ""
		if len(p.Elongations) > 0 {
			var marks []string
			for _, m := range p.Elongations {
				marks = append(marks, regexp.QuoteMeta(m))
			}
			elong = "(?:" + strings.Join(marks, "|") + ")*"
		}
		n.fillerDupRe = compile("(" + alt + ")" + sep + "+(?:" + alt + ")")
		n.leadFillerRe = compile("^(?:" + alt + ")" + elong + sep + "+")
	}

	// Rule 9: tidy-up.
	n.commaRunRe = compile("[、，,]{2,}")
	n.spaceRunRe = compile(`[\s　]{2,}`)
	n.trimRe = compile("^" + sep + "+|" + sep + "+$")

	if err != nil {
		return nil, fmt.Errorf("transcript: compile rules: %w", err)
	}

	n.rules = []rule{
		{"phrase-repeat", n.collapseAdjacentRepeats},
		{"separated-phrase-repeat", n.collapseSeparatedRepeats},
		{"stutter", n.collapseStutters},
		{"separated-false-start", n.collapseSeparatedFalseStarts},
		{"mora-before-logograph", n.elideFalseStartMora},
		{"elongation", n.collapseElongations},
		{"filler-run", n.dedupeFillers},
		{"leading-filler", n.stripLeadingFiller},
		{"tidy", n.tidy},
	}

	return n, nil
}

// Profile returns the profile the normalizer was built with.
func (n *Normalizer) Profile() Profile { return n.profile }

// Correct applies the full rule pipeline to text and returns the cleaned
// utterance. It is pure, deterministic, and total: it never fails, and input
// that matches no rule is returned unchanged (modulo harmless tidy-up).
// Correct is idempotent — applying it to its own output is a no-op.
//
// The pipeline runs until a fixed point is reached. A single pass almost
// always suffices, but a late rule can expose a new match for an earlier one
// (eliding a false-start mora may bring two copies of a phrase together), and
// every rule strictly shrinks the text when it fires, so iterating to the
// fixed point terminates and makes idempotence unconditional.
func (n *Normalizer) Correct(text string) string {
	for {
		out := n.pass(text)
		if out == text {
			return out
		}
		text = out
	}
}

// CorrectTraced is Correct with an audit trail of every rule application that
// modified the text. Useful for debug logging and for surfacing corrections
// in the UI.
func (n *Normalizer) CorrectTraced(text string) (string, []Trace) {
	var traces []Trace
	for {
		before := text
		for _, r := range n.rules {
			out := r.fn(text)
			if out != text {
				traces = append(traces, Trace{Rule: r.name, Before: text, After: out})
			}
			text = out
		}
		if text == before {
			return text, traces
		}
	}
}

// pass applies each rule once, in order.
func (n *Normalizer) pass(text string) string {
	for _, r := range n.rules {
		text = r.fn(text)
	}
	return text
}

// ---- rune classification ----------------------------------------------------

func (n *Normalizer) isSyllabary(r rune) bool { return n.syllRe.MatchString(string(r)) }
func (n *Normalizer) isSeparator(r rune) bool { return n.sepRe.MatchString(string(r)) }

// ---- rule 1: phrase-level repetition collapse --------------------------------

// collapseAdjacentRepeats removes immediate exact repetitions of any 2–10 rune
// phrase, longest phrase first, until a fixed point is reached. "今日は今日は"
// becomes "今日は".
func (n *Normalizer) collapseAdjacentRepeats(s string) string {
	r := []rune(s)
	for changed := true; changed; {
		changed = false
		for l := maxPhraseRunes; l >= minPhraseRunes; l-- {
			for i := 0; i+2*l <= len(r); i++ {
				if runesEqual(r[i:i+l], r[i+l:i+2*l]) {
					r = append(r[:i+l], r[i+2*l:]...)
					changed = true
					i-- // re-check the same offset for further repeats
				}
			}
		}
	}
	return string(r)
}

// ---- rule 2: punctuation-tolerant phrase repetition collapse -----------------

// collapseSeparatedRepeats is rule 1 with light punctuation or whitespace
// tolerated between the occurrences: "今日は、今日は" becomes "今日は".
// The separator run and the second occurrence are dropped.
func (n *Normalizer) collapseSeparatedRepeats(s string) string {
	r := []rune(s)
	for changed := true; changed; {
		changed = false
		for l := maxPhraseRunes; l >= minPhraseRunes; l-- {
			for i := 0; i+l <= len(r); i++ {
				j := i + l
				k := j
				for k < len(r) && n.isSeparator(r[k]) {
					k++
				}
				if k == j || k+l > len(r) {
					continue
				}
				if runesEqual(r[i:i+l], r[k:k+l]) {
					r = append(r[:j], r[k+l:]...)
					changed = true
					i--
				}
			}
		}
	}
	return string(r)
}

// ---- rule 3: single-syllabary stutter collapse -------------------------------

// collapseStutters handles onset stutters on a single syllabary character:
// three or more consecutive identical characters always collapse to one
// ("ぼぼぼくは" → "ぼくは"), and an exact double collapses when it resolves
// into a different syllabary character ("ぼぼくは" → "ぼくは"). Doubles
// followed by anything else — punctuation, logographs, end of string — are
// left alone, since legitimate reduplications usually end the word there.
func (n *Normalizer) collapseStutters(s string) string {
	r := []rune(s)
	out := make([]rune, 0, len(r))
	for i := 0; i < len(r); {
		c := r[i]
		if !n.isSyllabary(c) {
			out = append(out, c)
			i++
			continue
		}
		run := 1
		for i+run < len(r) && r[i+run] == c {
			run++
		}
		switch {
		case run >= 3:
			out = append(out, c)
		case run == 2:
			next := i + 2
			if next < len(r) && r[next] != c && n.isSyllabary(r[next]) {
				out = append(out, c)
			} else {
				out = append(out, c, c)
			}
		default:
			out = append(out, c)
		}
		i += run
	}
	return string(out)
}

// ---- rule 4: separated short-unit false starts -------------------------------

// collapseSeparatedFalseStarts drops 1–3 rune fragments that are repeated
// across light punctuation and resolve into the following text:
// "お、お、おにぎり" → "おにぎり". The fragment before the separator is
// removed, keeping the occurrence that continues into the real word.
func (n *Normalizer) collapseSeparatedFalseStarts(s string) string {
	r := []rune(s)
	for changed := true; changed; {
		changed = false
		for i := 0; i < len(r); i++ {
			for l := maxUnitRunes; l >= 1; l-- {
				if i+l > len(r) || containsSeparator(n, r[i:i+l]) {
					continue
				}
				j := i + l
				k := j
				for k < len(r) && n.isSeparator(r[k]) {
					k++
				}
				if k == j || k+l > len(r) {
					continue
				}
				if runesEqual(r[i:i+l], r[k:k+l]) {
					r = append(r[:i], r[k:]...)
					changed = true
					i--
					break
				}
			}
		}
	}
	return string(r)
}

// ---- rule 5: word-initial mora before a logograph ----------------------------

// elideFalseStartMora drops a lone syllabary character that sits between a
// non-syllabary boundary and punctuation followed by a logograph — the
// "わ、私は" restart shape where the bare mora is a false start for the word
// that follows.
func (n *Normalizer) elideFalseStartMora(s string) string {
	for {
		out := n.elisionRe.ReplaceAllString(s, "${1}${2}")
		if out == s {
			return out
		}
		s = out
	}
}

// ---- rule 6: long-sound normalization ----------------------------------------

// collapseElongations reduces runs of the same elongation mark to a single
// mark: "あーーー" → "あー".
func (n *Normalizer) collapseElongations(s string) string {
	for i, re := range n.elongationRes {
		s = re.ReplaceAllString(s, n.profile.Elongations[i])
	}
	return s
}

// ---- rule 7: filler-word deduplication ---------------------------------------

// dedupeFillers collapses a filler token followed by punctuation and another
// filler token (same or different) into a single filler plus a comma:
// "えっと、あの、" → "えっと、".
func (n *Normalizer) dedupeFillers(s string) string {
	if n.fillerDupRe == nil {
		return s
	}
	for {
		out := n.fillerDupRe.ReplaceAllString(s, "${1}"+n.profile.FillerComma)
		if out == s {
			return out
		}
		s = out
	}
}

// ---- rule 8: leading filler strip --------------------------------------------

// stripLeadingFiller removes a filler token (optionally elongated) and its
// trailing punctuation from the start of the string only. Mid-sentence
// fillers are left where they are.
func (n *Normalizer) stripLeadingFiller(s string) string {
	if n.leadFillerRe == nil {
		return s
	}
	for {
		out := n.leadFillerRe.ReplaceAllString(s, "")
		if out == s {
			return out
		}
		s = out
	}
}

// ---- rule 9: tidy-up ---------------------------------------------------------

// tidy collapses comma and whitespace runs and strips leading/trailing
// punctuation and whitespace.
func (n *Normalizer) tidy(s string) string {
	comma := n.profile.FillerComma
	if comma == "" {
		comma = ","
	}
	s = n.commaRunRe.ReplaceAllString(s, comma)
	s = n.spaceRunRe.ReplaceAllString(s, " ")
	s = n.trimRe.ReplaceAllString(s, "")
	return s
}

// ---- helpers -----------------------------------------------------------------

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func containsSeparator(n *Normalizer, rs []rune) bool {
	for _, r := range rs {
		if n.isSeparator(r) {
			return true
		}
	}
	return false
}

// fillerAlternation builds a regexp alternation of the filler tokens, longest
// token first so that "えっとー" wins over its prefix "えっと".
func fillerAlternation(fillers []string) string {
	sorted := make([]string, len(fillers))
	copy(sorted, fillers)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && len(sorted[j]) > len(sorted[j-1]); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	quoted := make([]string, len(sorted))
	for i, f := range sorted {
		quoted[i] = regexp.QuoteMeta(f)
	}
	return strings.Join(quoted, "|")
}
