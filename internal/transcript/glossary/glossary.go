// Package glossary restores garbled game vocabulary in cleaned transcripts.
//
// Speech engines rarely get game jargon right: agent names, ability names,
// and loanword slang ("ウルト", "エコラウンド") come back misspelled or in
// unexpected script. The [Glossary] holds the canonical spellings and swaps a
// close-enough token in the transcript for its canonical form.
//
// Matching proceeds in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     the token and for each term. Overlapping codes make the term a
//     candidate. This only fires for Latin-script vocabulary — metaphone
//     yields nothing useful for kana — and uses a permissive similarity
//     threshold because the phonetic agreement is corroborating evidence.
//
//  2. Jaro-Winkler fallback: when no phonetic candidate exists (the usual
//     case for katakana terms), the term with the highest Jaro-Winkler
//     similarity wins, provided it clears a stricter fuzzy threshold.
//
// Only contiguous katakana or Latin/digit runs are considered as candidate
// tokens; hiragana and kanji text is never touched. The Glossary is read-only
// after construction and safe for concurrent use.
package glossary

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// tokenRe matches the text runs worth checking against the glossary:
// katakana words (with the prolonged sound mark) and Latin/digit words.
var tokenRe = regexp.MustCompile(`[ァ-ヺー]+|[A-Za-z][A-Za-z0-9]*`)

// Option is a functional option for configuring a [Glossary].
type Option func(*Glossary)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched term to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(g *Glossary) {
		g.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found and the matcher falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(g *Glossary) {
		g.fuzzyThreshold = threshold
	}
}

// Replacement records a single glossary substitution made by Apply.
type Replacement struct {
	// Original is the token as it appeared in the transcript.
	Original string

	// Term is the canonical glossary term that replaced it.
	Term string

	// Score is the similarity score that justified the substitution (0.0–1.0).
	Score float64
}

// Glossary matches transcript tokens against a closed set of canonical game
// terms.
type Glossary struct {
	terms             []string
	termCodes         []map[string]struct{}
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Glossary] over the given canonical terms. Phonetic codes are
// precomputed once so Apply stays cheap on the per-utterance hot path.
func New(terms []string, opts ...Option) *Glossary {
	g := &Glossary{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		g.terms = append(g.terms, t)
		g.termCodes = append(g.termCodes, metaphoneCodes(t))
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Len returns the number of terms in the glossary.
func (g *Glossary) Len() int { return len(g.terms) }

// Match attempts to find the canonical term most similar to token. When
// matched is false, term equals token unchanged and score is 0.
func (g *Glossary) Match(token string) (term string, score float64, matched bool) {
	token = strings.TrimSpace(token)
	if token == "" || len(g.terms) == 0 {
		return token, 0, false
	}

	tokenLower := strings.ToLower(token)
	tokenCodes := metaphoneCodes(tokenLower)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)

	for i, t := range g.terms {
		// An exact hit needs no correction.
		if strings.EqualFold(token, t) {
			return t, 1, token != t
		}

		jw := matchr.JaroWinkler(tokenLower, strings.ToLower(t), false)
		phonetic := codesOverlap(tokenCodes, g.termCodes[i])

		switch {
		case phonetic && jw >= g.phoneticThreshold:
			if !bestPhonetic || jw > bestScore {
				best, bestScore, bestPhonetic = t, jw, true
			}
		case !phonetic && !bestPhonetic && jw >= g.fuzzyThreshold && jw > bestScore:
			best, bestScore = t, jw
		}
	}

	if best != "" {
		return best, bestScore, true
	}
	return token, 0, false
}

// Apply replaces every matchable katakana or Latin token in text with its
// canonical glossary form and reports the substitutions made. Text outside
// those token runs is passed through untouched.
func (g *Glossary) Apply(text string) (string, []Replacement) {
	if len(g.terms) == 0 {
		return text, nil
	}

	var replacements []Replacement
	out := tokenRe.ReplaceAllStringFunc(text, func(token string) string {
		term, score, matched := g.Match(token)
		if !matched || term == token {
			return token
		}
		replacements = append(replacements, Replacement{
			Original: token,
			Term:     term,
			Score:    score,
		})
		return term
	})
	return out, replacements
}

// metaphoneCodes returns the Double Metaphone code set for s, split on
// whitespace for multi-word terms. Empty codes (kana input, no consonants)
// are excluded.
func metaphoneCodes(s string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		p, sec := matchr.DoubleMetaphone(w)
		if p != "" {
			codes[p] = struct{}{}
		}
		if sec != "" {
			codes[sec] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
