// Package openai provides a TTS provider backed by the OpenAI speech API.
//
// Text fragments are collected until the input channel closes and then sent
// as a single request with the raw PCM response format (24 kHz, 16-bit, mono).
// The response body is forwarded in small chunks while it downloads.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/papo/pkg/audio"
	"github.com/MrWong99/papo/pkg/provider/tts"
)

const (
	defaultModel = oai.SpeechModelTTS1
	defaultVoice = "nova"

	// pcmSampleRate is fixed by the API for response_format=pcm.
	pcmSampleRate = 24000

	// chunkBytes is 100 ms of 24 kHz mono PCM16.
	chunkBytes = pcmSampleRate / 10 * 2
)

// voices is the built-in voice catalogue of the speech endpoint.
var voices = []string{"alloy", "ash", "ballad", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer"}

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithModel sets the speech model (e.g., "tts-1", "gpt-4o-mini-tts").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// Provider implements tts.Provider using the OpenAI speech endpoint.
type Provider struct {
	client  oai.Client
	model   string
	baseURL string
	timeout time.Duration
}

// New constructs a new OpenAI TTS Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	p := &Provider{model: defaultModel, timeout: 30 * time.Second}
	for _, o := range opts {
		o(p)
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: p.timeout}),
	}
	if p.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(p.baseURL))
	}
	p.client = oai.NewClient(reqOpts...)
	return p, nil
}

// Format implements tts.Provider.
func (p *Provider) Format() audio.Format {
	return audio.Format{SampleRate: pcmSampleRate, Channels: 1}
}

// ListVoices implements tts.Provider. The catalogue is static.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]tts.VoiceProfile, 0, len(voices))
	for _, v := range voices {
		out = append(out, tts.VoiceProfile{ID: v, Name: strings.ToUpper(v[:1]) + v[1:], Provider: "openai"})
	}
	return out, nil
}

// SynthesizeStream implements tts.Provider.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("openai tts: %w", err)
	}
	id := voice.ID
	if id == "" {
		id = defaultVoice
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)

		var sb strings.Builder
		for {
			select {
			case <-ctx.Done():
				return
			case frag, ok := <-text:
				if !ok {
					p.speak(ctx, sb.String(), id, voice.SpeedFactor, out)
					return
				}
				sb.WriteString(frag)
			}
		}
	}()
	return out, nil
}

func (p *Provider) speak(ctx context.Context, input, voice string, speed float64, out chan<- []byte) {
	input = strings.TrimSpace(input)
	if input == "" {
		return
	}
	params := oai.AudioSpeechNewParams{
		Input:          input,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if speed > 0 {
		params.Speed = oai.Float(speed)
	}
	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("openai tts: speech request failed", "err", err)
		}
		return
	}
	defer resp.Body.Close()

	buf := make([]byte, chunkBytes)
	var carry []byte
	for {
		n, err := io.ReadFull(resp.Body, buf)
		if n > 0 {
			chunk := append(carry, buf[:n]...)
			// Keep chunks sample-aligned.
			if len(chunk)%2 == 1 {
				carry = []byte{chunk[len(chunk)-1]}
				chunk = chunk[:len(chunk)-1]
			} else {
				carry = nil
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && ctx.Err() == nil {
				slog.Warn("openai tts: read speech body", "err", err)
			}
			return
		}
	}
}
