package transcript

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Profile holds the language-specific closed vocabularies used by the
// normalizer and the hallucination filter. The rule pipeline itself is
// language-agnostic; everything that ties it to one language — which
// characters form the syllabary, which tokens are fillers, which marks
// indicate elongation — lives here so it can be swapped or loaded from
// configuration.
type Profile struct {
	// Name identifies the profile in logs and config (e.g., "japanese").
	Name string `yaml:"name"`

	// Syllabary is a regexp character-class body matching one syllabary
	// character (for Japanese: hiragana and katakana, excluding the prolonged
	// sound mark). Used by the stutter-collapse and false-start rules.
	Syllabary string `yaml:"syllabary"`

	// Logographs is a regexp character-class body matching one logographic
	// character (for Japanese: kanji). Used by the kana-before-kanji elision
	// rule.
	Logographs string `yaml:"logographs"`

	// Separators is a regexp character-class body matching light punctuation
	// and whitespace that may appear between repeated fragments.
	Separators string `yaml:"separators"`

	// Elongations lists marks that speakers stretch (prolonged sound mark,
	// small tsu, ellipsis). Runs of 2+ of the same mark collapse to one.
	Elongations []string `yaml:"elongations"`

	// Fillers is the closed set of filler tokens ("えっと", "あの", …) carrying
	// no propositional content. Longer tokens should be listed before their
	// prefixes; the loader enforces the ordering either way.
	Fillers []string `yaml:"fillers"`

	// FillerComma is the punctuation inserted when a run of fillers collapses
	// to one (for Japanese: "、").
	FillerComma string `yaml:"filler_comma"`

	// Denylist holds boilerplate phrases the speech engine emits on silence
	// ("thank you for watching"-class closings). A transcription whose text
	// contains one of these is suppressed when the no-speech signal agrees;
	// see Filter.
	Denylist []string `yaml:"denylist"`
}

// DefaultJapanese returns the built-in profile for Japanese speech, covering
// the kana ranges, common spoken fillers, and the closing phrases Whisper
// models are known to hallucinate on silent input.
func DefaultJapanese() Profile {
	return Profile{
		Name:       "japanese",
		Syllabary:  `ぁ-ゖァ-ヺ`,
		Logographs: `一-鿿々`,
		Separators: `、。，．,.\s　`,
		Elongations: []string{
			"ー", "っ", "ッ", "…",
		},
		Fillers: []string{
			"えっとー", "えっと", "えーっと", "えーと",
			"あのー", "あの", "そのー", "その",
			"うーん", "ええと", "えー", "あー", "うー",
			"まあ", "なんか", "こう",
		},
		FillerComma: "、",
		Denylist: []string{
			"ご視聴ありがとうございました",
			"ご視聴ありがとうございます",
			"チャンネル登録",
			"高評価",
			"最後までご覧いただき",
			"おやすみなさい",
			"また次の動画でお会いしましょう",
		},
	}
}

// Validate reports whether the profile is internally consistent. All regexp
// character-class bodies must compile and the token sets must be non-empty
// for the rules that depend on them to be meaningful.
func (p Profile) Validate() error {
	var errs []error

	if p.Name == "" {
		errs = append(errs, errors.New("profile: name must not be empty"))
	}
	for _, f := range []struct{ name, class string }{
		{"syllabary", p.Syllabary},
		{"logographs", p.Logographs},
		{"separators", p.Separators},
	} {
		if f.class == "" {
			errs = append(errs, fmt.Errorf("profile: %s character class must not be empty", f.name))
			continue
		}
		if _, err := regexp.Compile("[" + f.class + "]"); err != nil {
			errs = append(errs, fmt.Errorf("profile: %s character class: %w", f.name, err))
		}
	}
	for i, f := range p.Fillers {
		if f == "" {
			errs = append(errs, fmt.Errorf("profile: fillers[%d] must not be empty", i))
		}
	}
	for i, e := range p.Elongations {
		if e == "" {
			errs = append(errs, fmt.Errorf("profile: elongations[%d] must not be empty", i))
		}
	}

	return errors.Join(errs...)
}

// LoadProfile reads a YAML profile from path. Unknown fields are rejected so
// typos in hand-edited profiles fail loudly instead of silently disabling a
// rule.
func LoadProfile(path string) (Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return Profile{}, fmt.Errorf("profile: open %q: %w", path, err)
	}
	defer f.Close()
	return LoadProfileFromReader(f)
}

// LoadProfileFromReader decodes a YAML profile from r and validates it.
func LoadProfileFromReader(r io.Reader) (Profile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var p Profile
	if err := dec.Decode(&p); err != nil {
		return Profile{}, fmt.Errorf("profile: decode: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}
