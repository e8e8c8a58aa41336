// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API. It implements the stt.Provider interface.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/MrWong99/papo/pkg/provider/stt"
	"github.com/coder/websocket"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-2"
	defaultLanguage   = "pt-BR"
	defaultSampleRate = 16000
)

// closeStreamMsg asks Deepgram to flush buffered audio and close the socket.
var closeStreamMsg = []byte(`{"type":"CloseStream"}`)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-2", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "pt-BR").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithSampleRate sets the audio sample rate in Hz for the provider-level default.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithEndpoint overrides the streaming endpoint URL. Useful for tests and
// self-hosted deployments.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey     string
	endpoint   string
	model      string
	language   string
	sampleRate int
}

var _ stt.Provider = (*Provider)(nil)

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   deepgramEndpoint,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a streaming transcription session with Deepgram.
// Dial failures are classified: authentication and quota rejections wrap
// [stt.ErrServiceUnavailable], everything else wraps [stt.ErrNetwork].
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w: %w", classifyDial(resp), err)
	}

	sess := &session{
		conn:     conn,
		partials: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 64),
		audio:    make(chan []byte, 256),
		finish:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)

	return sess, nil
}

func classifyDial(resp *http.Response) error {
	if resp == nil {
		return stt.ErrNetwork
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusForbidden,
		http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return stt.ErrServiceUnavailable
	default:
		return stt.ErrNetwork
	}
}

// buildURL constructs the Deepgram streaming endpoint URL for the given config.
func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = p.sampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("interim_results", strconv.FormatBool(cfg.InterimResults))
	q.Set("sample_rate", strconv.Itoa(sr))
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	if !cfg.Continuous {
		// End the utterance quickly so single-shot recognition feels snappy.
		q.Set("endpointing", "300")
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- session ----

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type     string  `json:"type"`
	IsFinal  bool    `json:"is_final"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Channel  struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// session is a live Deepgram streaming session. It implements stt.SessionHandle.
type session struct {
	conn     *websocket.Conn
	partials chan stt.Transcript
	finals   chan stt.Transcript
	audio    chan []byte

	finish     chan struct{}
	finishOnce sync.Once
	done       chan struct{}
	once       sync.Once
	wg         sync.WaitGroup

	mu  sync.Mutex
	err error
}

// SendAudio queues a PCM audio chunk for delivery to Deepgram.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return stt.ErrSessionClosed
	case <-s.finish:
		return stt.ErrSessionClosed
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return stt.ErrSessionClosed
	}
}

// Partials returns the channel of interim transcripts.
func (s *session) Partials() <-chan stt.Transcript { return s.partials }

// Finals returns the channel of final transcripts.
func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// Finish sends queued audio followed by a CloseStream message. Deepgram
// answers with the remaining results and then closes the socket.
func (s *session) Finish() error {
	s.finishOnce.Do(func() { close(s.finish) })
	return nil
}

// Err returns the error that ended the read loop, if any.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close terminates the session without waiting for pending results.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.CloseNow()
		s.wg.Wait()
	})
	return nil
}

// writeLoop reads from the audio channel and sends binary messages to Deepgram.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.finish:
			// Flush whatever is still queued before asking for the close.
			for {
				select {
				case chunk := <-s.audio:
					if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
						return
					}
				default:
					_ = s.conn.Write(ctx, websocket.MessageText, closeStreamMsg)
					return
				}
			}
		case <-s.done:
			return
		}
	}
}

// readLoop receives JSON messages from Deepgram and dispatches them to the
// partials and finals channels.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	start := time.Now()
	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			s.setErr(s.classifyRead(ctx, err))
			return
		}

		t, ok := parseDeepgramResponse(msg)
		if !ok {
			continue
		}
		if t.Timestamp == 0 {
			t.Timestamp = time.Since(start)
		}

		if t.IsFinal {
			select {
			case s.finals <- t:
			case <-s.done:
				return
			}
		} else {
			select {
			case s.partials <- t:
			case <-s.done:
				return
			}
		}
	}
}

// classifyRead maps a read error to nil (normal end) or a stt sentinel.
func (s *session) classifyRead(ctx context.Context, err error) error {
	select {
	case <-s.done:
		return nil
	default:
	}
	if ctx.Err() != nil {
		return fmt.Errorf("deepgram: %w: %w", stt.ErrAborted, ctx.Err())
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure:
		return nil
	case websocket.StatusPolicyViolation, websocket.StatusTryAgainLater:
		return fmt.Errorf("deepgram: %w: %w", stt.ErrServiceUnavailable, err)
	}
	return fmt.Errorf("deepgram: %w: %w", stt.ErrNetwork, err)
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// parseDeepgramResponse parses a raw Deepgram WebSocket message into a Transcript.
// Returns (Transcript, true) on success, or (zero, false) if the message should be
// ignored. Results with an empty transcript (silence) are ignored.
func parseDeepgramResponse(data []byte) (stt.Transcript, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Transcript{}, false
	}
	if resp.Type != "Results" {
		return stt.Transcript{}, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return stt.Transcript{}, false
	}

	alt := resp.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return stt.Transcript{}, false
	}

	return stt.Transcript{
		Text:       alt.Transcript,
		IsFinal:    resp.IsFinal,
		Confidence: alt.Confidence,
		Timestamp:  time.Duration(resp.Start * float64(time.Second)),
		Duration:   time.Duration(resp.Duration * float64(time.Second)),
	}, true
}
