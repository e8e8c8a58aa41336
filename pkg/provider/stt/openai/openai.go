// Package openai provides a batch STT provider backed by the OpenAI audio
// transcription API (Whisper).
//
// The transcription endpoint is not streaming, so the provider simulates a
// stream the same way a local batch engine would: incoming PCM is buffered,
// an energy-based silence detector segments utterances and each completed
// utterance is uploaded as a WAV file. No partials are produced.
//
// Usage:
//
//	p, err := openai.New(apiKey, openai.WithSilenceThreshold(700*time.Millisecond))
//	handle, err := p.StartStream(ctx, stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "pt-BR"})
//	handle.SendAudio(pcmChunk)
//	transcript := <-handle.Finals()
//	handle.Close()
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/orcaman/writerseeker"

	"github.com/MrWong99/papo/pkg/provider/stt"
)

const (
	// rmsThreshold is the root-mean-square energy (16-bit PCM units) below
	// which a chunk counts as silence.
	rmsThreshold = 300.0

	defaultModel            = oai.AudioModelWhisper1
	defaultSilenceThreshold = 700 * time.Millisecond
	defaultNoSpeechTimeout  = 8 * time.Second
	defaultMaxUtterance     = 15 * time.Second
	flushTimeout            = 30 * time.Second
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the transcription model (default "whisper-1").
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

// WithSilenceThreshold sets how much trailing silence ends an utterance.
func WithSilenceThreshold(d time.Duration) Option {
	return func(p *Provider) {
		p.silenceThreshold = d
	}
}

// WithNoSpeechTimeout sets how much leading silence is tolerated before the
// session fails with [stt.ErrNoSpeech].
func WithNoSpeechTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.noSpeechTimeout = d
	}
}

// Provider implements stt.Provider using the OpenAI transcription endpoint.
type Provider struct {
	client           oai.Client
	model            string
	baseURL          string
	timeout          time.Duration
	silenceThreshold time.Duration
	noSpeechTimeout  time.Duration
	maxUtterance     time.Duration
}

// New constructs a new OpenAI STT Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	p := &Provider{
		model:            defaultModel,
		timeout:          30 * time.Second,
		silenceThreshold: defaultSilenceThreshold,
		noSpeechTimeout:  defaultNoSpeechTimeout,
		maxUtterance:     defaultMaxUtterance,
	}
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

// StartStream opens a new buffered transcription session. No network
// connection is made until the first utterance is complete.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("openai stt: %w: %w", stt.ErrAborted, err)
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = 16000
	}
	ch := cfg.Channels
	if ch <= 0 {
		ch = 1
	}

	s := &session{
		p:          p,
		language:   whisperLanguage(cfg.Language),
		continuous: cfg.Continuous,
		sampleRate: sr,
		channels:   ch,
		audioCh:    make(chan []byte, 256),
		partials:   make(chan stt.Transcript),
		finals:     make(chan stt.Transcript, 16),
		finish:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	s.wg.Add(1)
	go s.processLoop(ctx)
	return s, nil
}

// whisperLanguage reduces a BCP-47 tag to the ISO-639-1 code Whisper expects.
func whisperLanguage(tag string) string {
	lang, _, _ := strings.Cut(tag, "-")
	return strings.ToLower(lang)
}

// ---- session ----------------------------------------------------------------

type session struct {
	p          *Provider
	language   string
	continuous bool
	sampleRate int
	channels   int

	audioCh  chan []byte
	partials chan stt.Transcript
	finals   chan stt.Transcript

	finish     chan struct{}
	finishOnce sync.Once
	done       chan struct{}
	once       sync.Once
	wg         sync.WaitGroup

	mu  sync.Mutex
	err error
}

func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return stt.ErrSessionClosed
	case <-s.finish:
		return stt.ErrSessionClosed
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return stt.ErrSessionClosed
	}
}

func (s *session) Partials() <-chan stt.Transcript { return s.partials }

func (s *session) Finals() <-chan stt.Transcript { return s.finals }

func (s *session) Finish() error {
	s.finishOnce.Do(func() { close(s.finish) })
	return nil
}

func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// processLoop owns all buffering state. It ends the session after the first
// utterance unless the session is continuous.
func (s *session) processLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	var (
		buffer    []byte
		hadSpeech bool
		silence   time.Duration
		leading   time.Duration
	)
	bytesPerSec := s.sampleRate * s.channels * 2

	// flush transcribes the buffered utterance. It reports whether the
	// session should keep running.
	flush := func(fctx context.Context) bool {
		pcm := buffer
		speech := hadSpeech
		buffer, hadSpeech, silence = nil, false, 0
		if !speech || len(pcm) == 0 {
			return true
		}
		text, err := s.transcribe(fctx, pcm)
		if err != nil {
			s.setErr(err)
			return false
		}
		if text != "" {
			select {
			case s.finals <- stt.Transcript{Text: text, IsFinal: true}:
			case <-s.done:
				return false
			}
		}
		return s.continuous
	}

	for {
		select {
		case <-ctx.Done():
			s.setErr(fmt.Errorf("openai stt: %w: %w", stt.ErrAborted, ctx.Err()))
			return

		case <-s.done:
			return

		case <-s.finish:
			// Drain queued audio, then transcribe what is left.
		drain:
			for {
				select {
				case chunk := <-s.audioCh:
					buffer = append(buffer, chunk...)
					if computeRMS(chunk) >= rmsThreshold {
						hadSpeech = true
					}
				default:
					break drain
				}
			}
			fctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			flush(fctx)
			cancel()
			return

		case chunk := <-s.audioCh:
			d := time.Duration(len(chunk)) * time.Second / time.Duration(bytesPerSec)
			if computeRMS(chunk) < rmsThreshold {
				if !hadSpeech {
					leading += d
					if s.p.noSpeechTimeout > 0 && leading >= s.p.noSpeechTimeout {
						s.setErr(fmt.Errorf("openai stt: %w", stt.ErrNoSpeech))
						return
					}
					continue
				}
				silence += d
				buffer = append(buffer, chunk...)
				if silence >= s.p.silenceThreshold && !flush(ctx) {
					return
				}
				continue
			}
			hadSpeech = true
			silence = 0
			buffer = append(buffer, chunk...)
			if time.Duration(len(buffer))*time.Second/time.Duration(bytesPerSec) >= s.p.maxUtterance && !flush(ctx) {
				return
			}
		}
	}
}

// transcribe uploads pcm as a WAV file and returns the recognised text.
func (s *session) transcribe(ctx context.Context, pcm []byte) (string, error) {
	data, err := encodeWAV(pcm, s.sampleRate, s.channels)
	if err != nil {
		return "", fmt.Errorf("openai stt: %w", err)
	}
	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(data), "audio.wav", "audio/wav"),
		Model: oai.AudioModel(s.p.model),
	}
	if s.language != "" {
		params.Language = oai.String(s.language)
	}
	res, err := s.p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai stt: transcribe: %w", classify(err))
	}
	return strings.TrimSpace(res.Text), nil
}

// classify wraps err with the stt sentinel matching the API failure.
func classify(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized,
			apiErr.StatusCode == http.StatusForbidden,
			apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode >= 500:
			return fmt.Errorf("%w: %w", stt.ErrServiceUnavailable, err)
		}
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", stt.ErrAborted, err)
	}
	return fmt.Errorf("%w: %w", stt.ErrNetwork, err)
}

// encodeWAV wraps 16-bit PCM in a RIFF/WAV container.
func encodeWAV(pcm []byte, sampleRate, channels int) ([]byte, error) {
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8))
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}

	out := &writerseeker.WriterSeeker{}
	enc := wav.NewEncoder(out, sampleRate, 16, channels, 1)
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	data, err := io.ReadAll(out.Reader())
	if err != nil {
		return nil, fmt.Errorf("read wav: %w", err)
	}
	return data, nil
}

// computeRMS returns the root-mean-square energy of 16-bit PCM.
func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
