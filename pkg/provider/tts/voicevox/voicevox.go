// Package voicevox provides a tts.Provider backed by a locally-running
// VOICEVOX engine via its REST API.
//
// Synthesis is a two-step protocol: POST /audio_query builds a synthesis
// query (phonemes, prosody, speed and pitch scales) for the text, and
// POST /synthesis renders that query to a WAV clip. The voice catalogue is
// retrieved from GET /speakers, which returns one entry per speaker with one
// style per selectable voice; each style ID maps to one [tts.VoiceProfile].
//
// Because the engine operates in batch mode (one HTTP round trip per
// utterance rather than a streaming socket), SynthesizeStream accumulates
// incoming text fragments into complete sentences and then dispatches
// concurrent HTTP requests with a small lookahead buffer to minimise
// perceived latency.
//
// Typical usage:
//
//	p, err := voicevox.New("http://localhost:50021",
//	    voicevox.WithTimeout(15*time.Second),
//	    voicevox.WithOutputSampleRate(16000),
//	)
//	audio, err := p.SynthesizeStream(ctx, textCh, voiceProfile)
package voicevox

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/hmori/gamecoach/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// ---- constants ----

const (
	defaultTimeout     = 30 * time.Second
	audioQueryEndpoint = "/audio_query"
	synthesisEndpoint  = "/synthesis"
	speakersEndpoint   = "/speakers"

	// sentenceLookaheadBuf controls how many concurrent synthesis round trips
	// may be in-flight simultaneously. Higher values reduce perceived latency
	// at the cost of additional engine load.
	sentenceLookaheadBuf = 4

	// audioChanBuf is the buffer depth of the returned audio channel.
	audioChanBuf = 256

	// pcmChunkSize is the size of each PCM chunk emitted on the audio channel.
	pcmChunkSize = 4096
)

// ---- options ----

// Option is a functional option for configuring a VOICEVOX Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout for calls to the engine.
// Defaults to 30 s if not set.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the default HTTP client, e.g. to route requests
// through a proxy or to share a transport.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithOutputSampleRate configures the provider to resample synthesised PCM to
// the given sample rate. When set to 0 (default), no resampling is performed
// and PCM is emitted at the engine's native rate (24 kHz for most voices).
func WithOutputSampleRate(rate int) Option {
	return func(p *Provider) {
		p.outputRate = rate
	}
}

// ---- Provider ----

// Provider implements tts.Provider backed by a locally-running VOICEVOX engine.
// It is safe for concurrent use; multiple SynthesizeStream calls may run in
// parallel.
type Provider struct {
	serverURL  string
	httpClient *http.Client
	outputRate int // target sample rate; 0 = no resampling
}

// New creates a new VOICEVOX Provider that targets the engine at serverURL
// (e.g., "http://localhost:50021"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("voicevox: serverURL must not be empty")
	}
	p := &Provider{
		serverURL: strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- internal request/response types ----

// audioResult carries a synthesised PCM byte slice or an error from a worker
// goroutine.
type audioResult struct {
	pcm []byte
	err error
}

// speakerEntry is one element of the JSON array returned by GET /speakers.
type speakerEntry struct {
	Name        string `json:"name"`
	SpeakerUUID string `json:"speaker_uuid"`
	Styles      []struct {
		Name string `json:"name"`
		ID   int    `json:"id"`
	} `json:"styles"`
}

// ---- Synthesize ----

// Synthesize renders text to raw 16-bit mono PCM in a single audio_query +
// synthesis round trip. voice.ID must be a VOICEVOX style ID (an integer in
// string form, as returned by ListVoices).
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	styleID, err := styleIDOf(voice)
	if err != nil {
		return nil, err
	}

	query, err := p.audioQuery(ctx, text, styleID)
	if err != nil {
		return nil, err
	}
	applyVoiceScales(query, voice)

	wav, err := p.synthesis(ctx, query, styleID)
	if err != nil {
		return nil, err
	}

	info, err := parseWAV(wav)
	if err != nil {
		return nil, err
	}
	pcm := wav[info.DataOffset:]
	if p.outputRate > 0 && info.SampleRate != p.outputRate && info.Channels == 1 {
		pcm = resampleMono16(pcm, info.SampleRate, p.outputRate)
	}
	return pcm, nil
}

// audioQuery performs POST /audio_query and returns the decoded synthesis
// query. The query is kept as a generic map so that speed and pitch scales can
// be adjusted without modelling the engine's full (and version-dependent)
// query schema.
func (p *Provider) audioQuery(ctx context.Context, text string, styleID int) (map[string]any, error) {
	params := url.Values{}
	params.Set("text", text)
	params.Set("speaker", strconv.Itoa(styleID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+audioQueryEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("voicevox: create audio_query request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voicevox: POST %s: %w", audioQueryEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voicevox: POST %s returned status %d", audioQueryEndpoint, resp.StatusCode)
	}

	var query map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&query); err != nil {
		return nil, fmt.Errorf("voicevox: decode audio query: %w", err)
	}
	return query, nil
}

// synthesis performs POST /synthesis with the given query and returns the WAV
// response bytes.
func (p *Provider) synthesis(ctx context.Context, query map[string]any, styleID int) ([]byte, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("voicevox: marshal audio query: %w", err)
	}

	params := url.Values{}
	params.Set("speaker", strconv.Itoa(styleID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+synthesisEndpoint+"?"+params.Encode(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("voicevox: create synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voicevox: POST %s: %w", synthesisEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voicevox: POST %s returned status %d", synthesisEndpoint, resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("voicevox: read WAV response: %w", err)
	}
	return wav, nil
}

// applyVoiceScales maps the profile's speed and pitch adjustments onto the
// engine's query fields. VOICEVOX expects speedScale around 1.0 and pitchScale
// in roughly [-0.15, 0.15], so PitchShift's [-10, 10] range is scaled down.
func applyVoiceScales(query map[string]any, voice tts.VoiceProfile) {
	if voice.SpeedFactor > 0 {
		query["speedScale"] = voice.SpeedFactor
	}
	if voice.PitchShift != 0 {
		query["pitchScale"] = voice.PitchShift * 0.015
	}
}

// styleIDOf parses voice.ID as a VOICEVOX style ID.
func styleIDOf(voice tts.VoiceProfile) (int, error) {
	if voice.ID == "" {
		return 0, errors.New("voicevox: voice.ID must not be empty")
	}
	id, err := strconv.Atoi(voice.ID)
	if err != nil {
		return 0, fmt.Errorf("voicevox: voice.ID %q is not a style ID: %w", voice.ID, err)
	}
	return id, nil
}

// ---- SynthesizeStream ----

// SynthesizeStream consumes text fragments from the text channel, accumulates
// them into complete sentences, and for each sentence issues a synthesis round
// trip to the engine. WAV responses are stripped of their file headers and the
// raw PCM is emitted on the returned channel in the original sentence order.
//
// Up to sentenceLookaheadBuf round trips may be in-flight concurrently to hide
// network/engine latency while preserving output ordering.
//
// The returned channel is closed when all text has been synthesised or when
// ctx is cancelled. The caller must drain the channel to prevent goroutine
// leaks.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	if _, err := styleIDOf(voice); err != nil {
		return nil, err
	}

	audioCh := make(chan []byte, audioChanBuf)

	go func() {
		defer close(audioCh)

		// sentences carries complete sentences from the accumulator to the dispatcher.
		sentences := make(chan string, sentenceLookaheadBuf)

		// resultQueue carries ordered future channels so the collector can drain in order.
		resultQueue := make(chan chan audioResult, sentenceLookaheadBuf)

		// --- Accumulator goroutine ---
		// Reads text fragments, buffers them, and emits complete sentences.
		go func() {
			defer close(sentences)
			var buf strings.Builder
			for {
				select {
				case fragment, ok := <-text:
					if !ok {
						// Text channel closed: flush any remaining partial sentence.
						if remaining := strings.TrimSpace(buf.String()); remaining != "" {
							select {
							case sentences <- remaining:
							case <-ctx.Done():
							}
						}
						return
					}
					buf.WriteString(fragment)
					// Drain all complete sentences from the buffer.
					for {
						s := buf.String()
						end := sentenceBoundary(s)
						if end < 0 {
							break
						}
						sentence := strings.TrimSpace(s[:end])
						buf.Reset()
						buf.WriteString(s[end:])
						if sentence == "" {
							continue
						}
						select {
						case sentences <- sentence:
						case <-ctx.Done():
							return
						}
					}
				case <-ctx.Done():
					return
				}
			}
		}()

		// --- Dispatcher goroutine ---
		// Reads sentences and launches a concurrent round trip for each, placing
		// an ordered result channel into resultQueue so the collector can drain in order.
		go func() {
			defer close(resultQueue)
			for {
				select {
				case sentence, ok := <-sentences:
					if !ok {
						return
					}
					ch := make(chan audioResult, 1)
					select {
					case resultQueue <- ch:
					case <-ctx.Done():
						return
					}
					go func(s string, out chan<- audioResult) {
						pcm, err := p.Synthesize(ctx, s, voice)
						out <- audioResult{pcm: pcm, err: err}
					}(sentence, ch)
				case <-ctx.Done():
					return
				}
			}
		}()

		// --- Collector ---
		// Drains resultQueue in-order and emits PCM chunks to the audio channel.
		for {
			select {
			case ch, ok := <-resultQueue:
				if !ok {
					return
				}
				select {
				case result := <-ch:
					if result.err != nil {
						// On synthesis error we stop the stream. The caller can
						// inspect ctx.Err() to distinguish cancellation from
						// provider errors.
						return
					}
					// Emit the PCM in fixed-size chunks.
					pcm := result.pcm
					for len(pcm) > 0 {
						end := min(pcmChunkSize, len(pcm))
						select {
						case audioCh <- pcm[:end]:
						case <-ctx.Done():
							return
						}
						pcm = pcm[end:]
					}
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return audioCh, nil
}

// ---- ListVoices ----

// ListVoices retrieves the engine's voice catalogue from GET /speakers and
// returns one VoiceProfile per speaker style. The profile ID is the style ID
// in string form, which is what Synthesize expects back.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+speakersEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("voicevox: create list-voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voicevox: GET %s: %w", speakersEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voicevox: GET %s returned status %d", speakersEndpoint, resp.StatusCode)
	}

	var speakers []speakerEntry
	if err := json.NewDecoder(resp.Body).Decode(&speakers); err != nil {
		return nil, fmt.Errorf("voicevox: decode speakers: %w", err)
	}

	var profiles []tts.VoiceProfile
	for _, spk := range speakers {
		for _, style := range spk.Styles {
			profiles = append(profiles, tts.VoiceProfile{
				ID:       strconv.Itoa(style.ID),
				Name:     spk.Name + " " + style.Name,
				Provider: "voicevox",
				Metadata: map[string]string{
					"speaker_uuid": spk.SpeakerUUID,
					"style":        style.Name,
				},
			})
		}
	}
	return profiles, nil
}

// ---- resampling ----

// resampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. The input must be little-endian int16 samples. If
// srcRate == dstRate, the input is returned unchanged.
func resampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := 0; i < dstSamples; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		var s1 int16
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		} else {
			s1 = s0
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}

// ---- helpers ----

// sentenceBoundary returns the byte index just past the first sentence-ending
// rune in s, or -1 if no complete sentence is present. Japanese terminators
// (。！？) end a sentence unconditionally; ASCII terminators ('.', '!', '?')
// only when at the end of s or followed by whitespace, so that abbreviations
// like "Dr." and decimals like "3.14" are not split.
func sentenceBoundary(s string) int {
	for i, r := range s {
		switch r {
		case '。', '！', '？':
			return i + len(string(r))
		case '.', '!', '?':
			next := i + 1
			if next >= len(s) || unicode.IsSpace(rune(s[next])) {
				return next
			}
		}
	}
	return -1
}

// wavInfo holds the format metadata extracted from a RIFF/WAVE header.
type wavInfo struct {
	DataOffset int // byte offset of the first PCM sample
	SampleRate int // samples per second (e.g., 24000, 44100, 48000)
	Channels   int // 1 = mono, 2 = stereo
}

// parseWAV scans the RIFF/WAVE container in wav and returns the data offset
// and audio format from the "fmt " sub-chunk. This is more robust than
// hardcoding a fixed 44-byte offset because the fmt chunk size may vary.
//
// Returns an error if wav is not a valid RIFF/WAVE container or if the fmt
// or data chunk cannot be located.
func parseWAV(wav []byte) (wavInfo, error) {
	if len(wav) < 12 {
		return wavInfo{}, errors.New("voicevox: WAV response too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return wavInfo{}, errors.New("voicevox: WAV response missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return wavInfo{}, errors.New("voicevox: WAV response missing WAVE identifier")
	}

	var info wavInfo
	foundFmt := false

	// Walk RIFF chunks starting immediately after the 12-byte RIFF/WAVE header.
	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				foundFmt = true
			}
		case "data":
			info.DataOffset = offset + 8
			if !foundFmt {
				// fmt chunk should appear before data in well-formed files.
				info.SampleRate = 24000
				info.Channels = 1
			}
			return info, nil
		}

		// Advance past this chunk (chunks are word-aligned: pad by 1 if odd size).
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return wavInfo{}, errors.New("voicevox: WAV response missing data chunk")
}
