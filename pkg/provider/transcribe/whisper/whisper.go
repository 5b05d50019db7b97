// Package whisper provides a transcribe.Provider backed by a running
// whisper-server binary (whisper.cpp), which exposes a batch REST API at
// POST /inference.
//
// Recordings arrive from the capture layer as raw 16-bit little-endian mono
// PCM files; the provider wraps them in a minimal WAV header and submits them
// as multipart/form-data. With response_format=verbose_json the server
// reports the language it detected alongside the text, which feeds the turn
// router's speaker attribution.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080")
//	res, err := p.Transcribe(ctx, transcribe.Request{Locator: path, AutoDetect: true})
package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/parleylabs/parley/pkg/provider/transcribe"
)

const (
	defaultSampleRate = 16000
	defaultChannels   = 1
	defaultTimeout    = 60 * time.Second

	bitsPerSample = 16
)

// Compile-time assertion that Provider implements transcribe.Provider.
var _ transcribe.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper server
// (e.g. "base", "small"). When empty the server uses whichever model it was
// started with — this is the default.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithSampleRate sets the sample rate of the raw PCM recordings. Must match
// what the capture adapter produces. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithHTTPClient overrides the HTTP client, primarily for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements transcribe.Provider against a whisper-server instance.
type Provider struct {
	serverURL  string
	model      string
	sampleRate int
	channels   int
	httpClient *http.Client
}

// New creates a Provider talking to the whisper server at serverURL
// (e.g. "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  serverURL,
		sampleRate: defaultSampleRate,
		channels:   defaultChannels,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Check reports whether the whisper server is reachable. Any HTTP response
// counts as reachable; only a transport failure fails the check. Serves the
// readiness endpoint.
func (p *Provider) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+"/", nil)
	if err != nil {
		return fmt.Errorf("whisper: build check request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whisper: server unreachable: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

// inferenceResponse is the verbose_json response body from /inference.
type inferenceResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Transcribe reads the raw PCM recording at req.Locator, wraps it as WAV,
// and POSTs it to the whisper server.
func (p *Provider) Transcribe(ctx context.Context, req transcribe.Request) (transcribe.Result, error) {
	pcm, err := os.ReadFile(req.Locator)
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: read recording %q: %w", req.Locator, err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(encodeWAV(pcm, p.sampleRate, p.channels)); err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: write wav data: %w", err)
	}

	lang := req.Language
	if req.AutoDetect {
		lang = "auto"
	}
	if lang != "" {
		if err := mw.WriteField("language", lang); err != nil {
			return transcribe.Result{}, fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if p.model != "" {
		if err := mw.WriteField("model", p.model); err != nil {
			return transcribe.Result{}, fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.WriteField("response_format", "verbose_json"); err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: write response_format field: %w", err)
	}

	if err := mw.Close(); err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	endpoint := p.serverURL + "/inference"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return transcribe.Result{}, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: read response body: %w", err)
	}

	var result inferenceResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	out := transcribe.Result{Text: result.Text}
	if req.AutoDetect {
		out.DetectedLanguage = result.Language
	}
	return out, nil
}

// encodeWAV prepends a canonical 44-byte RIFF/WAVE header to raw 16-bit PCM
// so the server can decode it from a multipart form upload. No external
// dependencies are required.
func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	buf := make([]byte, 0, 44+len(pcm))
	w := bytes.NewBuffer(buf)

	w.WriteString("RIFF")
	binary.Write(w, binary.LittleEndian, uint32(36+len(pcm)))
	w.WriteString("WAVE")

	w.WriteString("fmt ")
	binary.Write(w, binary.LittleEndian, uint32(16))
	binary.Write(w, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(w, binary.LittleEndian, uint16(channels))
	binary.Write(w, binary.LittleEndian, uint32(sampleRate))
	binary.Write(w, binary.LittleEndian, uint32(byteRate))
	binary.Write(w, binary.LittleEndian, uint16(blockAlign))
	binary.Write(w, binary.LittleEndian, uint16(bitsPerSample))

	w.WriteString("data")
	binary.Write(w, binary.LittleEndian, uint32(len(pcm)))
	w.Write(pcm)

	return w.Bytes()
}
