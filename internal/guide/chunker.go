package guide

import "strings"

const (
	// defaultMaxChunkRunes caps passage size so each one fits comfortably in
	// the coaching prompt alongside the conversation history.
	defaultMaxChunkRunes = 600

	// defaultMinChunkRunes drops fragments too short to carry useful strategy
	// content on their own.
	defaultMinChunkRunes = 20
)

// Chunker splits raw guide text into indexable passages.
//
// Splitting is paragraph-first: blank lines delimit passages. Paragraphs
// longer than the maximum are further split on sentence boundaries, packing
// consecutive sentences until the cap is reached. Oversized sentences are
// emitted whole rather than cut mid-sentence.
type Chunker struct {
	maxRunes int
	minRunes int
}

// ChunkerOption is a functional option for configuring a [Chunker].
type ChunkerOption func(*Chunker)

// WithMaxChunkRunes sets the passage size cap in runes. Default: 600.
func WithMaxChunkRunes(n int) ChunkerOption {
	return func(c *Chunker) { c.maxRunes = n }
}

// WithMinChunkRunes sets the minimum passage size in runes; shorter fragments
// are dropped. Default: 20.
func WithMinChunkRunes(n int) ChunkerOption {
	return func(c *Chunker) { c.minRunes = n }
}

// NewChunker returns a Chunker with the default size limits.
func NewChunker(opts ...ChunkerOption) *Chunker {
	c := &Chunker{
		maxRunes: defaultMaxChunkRunes,
		minRunes: defaultMinChunkRunes,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Split breaks text into passages.
func (c *Chunker) Split(text string) []string {
	var chunks []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len([]rune(para)) <= c.maxRunes {
			if len([]rune(para)) >= c.minRunes {
				chunks = append(chunks, para)
			}
			continue
		}
		chunks = append(chunks, c.packSentences(para)...)
	}
	return chunks
}

// packSentences splits an oversized paragraph on sentence boundaries and
// packs consecutive sentences into passages up to the rune cap.
func (c *Chunker) packSentences(para string) []string {
	var (
		chunks []string
		buf    strings.Builder
		count  int
	)
	flush := func() {
		s := strings.TrimSpace(buf.String())
		if len([]rune(s)) >= c.minRunes {
			chunks = append(chunks, s)
		}
		buf.Reset()
		count = 0
	}

	for _, sentence := range splitSentences(para) {
		n := len([]rune(sentence))
		if count > 0 && count+n > c.maxRunes {
			flush()
		}
		buf.WriteString(sentence)
		count += n
	}
	if count > 0 {
		flush()
	}
	return chunks
}

// splitSentences splits s after Japanese (。！？) and ASCII (. ! ?) sentence
// terminators, keeping the terminator with its sentence.
func splitSentences(s string) []string {
	var (
		sentences []string
		start     int
	)
	for i, r := range s {
		switch r {
		case '。', '！', '？', '.', '!', '?':
			end := i + len(string(r))
			sentences = append(sentences, s[start:end])
			start = end
		}
	}
	if start < len(s) {
		sentences = append(sentences, s[start:])
	}
	return sentences
}
