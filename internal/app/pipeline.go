package app

import (
	"context"
	"fmt"

	"github.com/hmori/gamecoach/internal/observe"
	"github.com/hmori/gamecoach/internal/transcript"
	"github.com/hmori/gamecoach/internal/transcript/glossary"
	"github.com/hmori/gamecoach/pkg/provider/stt"
)

// Cleaner runs the transcript cleanup chain on raw transcription results:
// hallucination filtering, duplicate-segment collapse, disfluency
// normalization, and glossary term replacement.
//
// Cleaner is stateless after construction and safe for concurrent use.
type Cleaner struct {
	filter  *transcript.Filter
	norm    *transcript.Normalizer
	gloss   *glossary.Glossary // nil disables glossary replacement
	metrics *observe.Metrics
}

// NewCleaner builds the cleanup chain from a language profile and an optional
// glossary.
func NewCleaner(p transcript.Profile, gloss *glossary.Glossary, metrics *observe.Metrics) (*Cleaner, error) {
	norm, err := transcript.NewNormalizer(p)
	if err != nil {
		return nil, fmt.Errorf("app: build normalizer: %w", err)
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Cleaner{
		filter:  transcript.NewFilter(p),
		norm:    norm,
		gloss:   gloss,
		metrics: metrics,
	}, nil
}

// Clean returns the cleaned utterance text for one transcription result.
// suppressed is true when the hallucination filter dropped the whole result;
// text is empty in that case.
func (c *Cleaner) Clean(ctx context.Context, res *stt.Result) (text string, suppressed bool) {
	if res == nil {
		return "", false
	}

	if drop, reason := c.filter.Evaluate(res); drop {
		c.metrics.RecordSuppression(ctx, reason)
		return "", true
	}

	raw := res.Text
	if len(res.Segments) > 0 {
		texts := make([]string, 0, len(res.Segments))
		for _, seg := range res.Segments {
			texts = append(texts, seg.Text)
		}
		raw = transcript.JoinSegments(texts)
	}

	cleaned, traces := c.norm.CorrectTraced(raw)
	for _, tr := range traces {
		c.metrics.RecordCorrection(ctx, tr.Rule)
	}

	if c.gloss != nil {
		cleaned, _ = c.gloss.Apply(cleaned)
	}
	return cleaned, false
}
