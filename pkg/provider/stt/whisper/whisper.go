// Package whisper provides whisper.cpp-backed STT providers.
//
// Two implementations are available:
//
//   - [Provider] connects to a running whisper-server binary (which exposes a
//     REST API at POST /inference) and submits each completed recording as a
//     single batch inference request, asking for the verbose JSON response so
//     that per-segment no-speech probabilities are preserved.
//   - [NativeProvider] loads the model in-process via the whisper.cpp CGO
//     bindings, eliminating HTTP overhead entirely.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("ja"),
//	)
//	result, err := p.Transcribe(ctx, pcm)
package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/hmori/gamecoach/pkg/provider/stt"
)

const (
	// bitsPerSample is fixed at 16 for the 16-bit signed little-endian PCM
	// audio that whisper.cpp expects.
	bitsPerSample = 16

	// silenceRMSThreshold is the root-mean-square energy level (in 16-bit PCM
	// units) below which a whole recording is considered silent and skipped
	// without calling the engine. The maximum possible value for 16-bit audio
	// is 32 767; 300 corresponds to near-silence.
	silenceRMSThreshold = 300.0

	defaultLanguage    = "ja"
	defaultSampleRate  = 16000
	defaultMaxAttempts = 3
	defaultRetryDelay  = 500 * time.Millisecond
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base", "small"). When empty the server uses whichever model it was
// started with — this is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code sent to the whisper.cpp server
// (e.g., "ja", "en"). Defaults to "ja".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithSampleRate sets the audio sample rate in Hz. This must match the actual
// sample rate of PCM data passed to Transcribe. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithChannels sets the channel count of PCM data passed to Transcribe.
// Defaults to 1 (mono).
func WithChannels(channels int) Option {
	return func(p *Provider) {
		p.channels = channels
	}
}

// WithMaxAttempts sets the total number of inference attempts for a single
// Transcribe call. Attempts after the first are only made for transient
// failures (connection errors and HTTP 5xx responses) and are separated by an
// exponentially growing delay starting at 500 ms. Defaults to 3.
func WithMaxAttempts(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithHTTPClient replaces the default HTTP client (30 s timeout). Useful for
// tests and for callers that need custom transport settings.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
// It is safe for concurrent use; each Transcribe call is independent.
type Provider struct {
	serverURL   string
	model       string
	language    string
	sampleRate  int
	channels    int
	maxAttempts int
	httpClient  *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
// Functional options may be provided to override defaults.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:   serverURL,
		language:    defaultLanguage,
		sampleRate:  defaultSampleRate,
		channels:    1,
		maxAttempts: defaultMaxAttempts,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe encodes pcm as a WAV file, POSTs it to the whisper.cpp
// /inference endpoint, and decodes the verbose JSON response into a
// [stt.Result]. Transient failures (connection errors, HTTP 5xx) are retried
// with exponential backoff up to the configured attempt limit; HTTP 4xx
// responses fail immediately.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte) (*stt.Result, error) {
	// Whisper models hallucinate boilerplate text on silent input, so an
	// all-silent recording is not worth an inference round trip.
	if len(pcm) == 0 || computeRMS(pcm) < silenceRMSThreshold {
		return &stt.Result{}, nil
	}

	wav := encodeWAV(pcm, p.sampleRate, p.channels)

	var lastErr error
	delay := defaultRetryDelay

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("whisper: %w", ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}

		result, retryable, err := p.infer(ctx, wav)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}

	return nil, fmt.Errorf("whisper: inference failed after %d attempts: %w", p.maxAttempts, lastErr)
}

// verboseResponse is the wire shape of whisper-server's verbose JSON output.
// It mirrors the verbose_json response format of the OpenAI transcription API.
type verboseResponse struct {
	Task     string  `json:"task"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
	Segments []struct {
		ID           int     `json:"id"`
		Start        float64 `json:"start"`
		End          float64 `json:"end"`
		Text         string  `json:"text"`
		AvgLogProb   float64 `json:"avg_logprob"`
		NoSpeechProb float64 `json:"no_speech_prob"`
	} `json:"segments"`
}

// infer performs a single inference round trip. The second return value
// reports whether the failure is worth retrying.
func (p *Provider) infer(ctx context.Context, wav []byte) (_ *stt.Result, retryable bool, _ error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, false, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, false, fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := map[string]string{
		"response_format": "verbose_json",
	}
	if p.language != "" {
		fields["language"] = p.language
	}
	if p.model != "" {
		fields["model"] = p.model
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, false, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, false, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	endpoint := p.serverURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, false, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		// Connection-level failures are transient by assumption, unless the
		// caller's context ended.
		if ctx.Err() != nil {
			return nil, false, fmt.Errorf("whisper: %w", ctx.Err())
		}
		return nil, true, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
		return nil, resp.StatusCode >= 500, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("whisper: read response body: %w", err)
	}

	var vr verboseResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, false, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	result := &stt.Result{
		Text:     vr.Text,
		Language: vr.Language,
		Duration: time.Duration(vr.Duration * float64(time.Second)),
	}
	for _, seg := range vr.Segments {
		result.Segments = append(result.Segments, stt.Segment{
			ID:           seg.ID,
			Text:         seg.Text,
			Start:        time.Duration(seg.Start * float64(time.Second)),
			End:          time.Duration(seg.End * float64(time.Second)),
			NoSpeechProb: seg.NoSpeechProb,
			AvgLogProb:   seg.AvgLogProb,
		})
	}

	return result, false, nil
}

// ---- helpers ----------------------------------------------------------------

// encodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container. The returned byte slice is suitable for direct inclusion
// in a multipart form upload. No external dependencies are required.
func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	bps := bitsPerSample
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bps))        // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// computeRMS returns the root-mean-square energy of a 16-bit signed
// little-endian PCM buffer. Returns 0 for buffers shorter than one sample.
// The result is expressed in the same units as PCM sample values (0–32 767).
func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2 // number of 16-bit samples
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		v := float64(sample)
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
