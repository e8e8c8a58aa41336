// Package speech wraps an STT provider and a microphone behind a
// start/stop/abort recording lifecycle with result, end and error callbacks.
//
// A [Controller] runs at most one recognition session at a time. Every
// session that starts ends with exactly one OnEnd callback, whether the
// recognizer finished on its own, was stopped, aborted or failed.
//
// Callbacks run on a goroutine owned by the controller, never on the
// goroutine that called Start, Stop or Abort, so a callback may safely call
// back into code that holds its own lock while calling the controller.
package speech

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/papo/pkg/audio"
	"github.com/MrWong99/papo/pkg/provider/stt"
)

const (
	defaultNoSpeechTimeout = 8 * time.Second
	defaultStopTimeout     = 5 * time.Second
)

// Callbacks receive recognition events. Nil fields are ignored.
type Callbacks struct {
	// OnResult is called for every interim (final=false) and final result.
	OnResult func(text string, final bool)

	// OnEnd is called exactly once per session with the accumulated
	// transcript, which may be empty.
	OnEnd func(transcript string)

	// OnError is called at most once per session, before OnEnd.
	OnError func(kind ErrorKind)
}

// Config tunes a [Controller].
type Config struct {
	// Locale is the BCP-47 recognition language. Default "pt-BR".
	Locale string

	// Continuous keeps recognising after the first final result.
	Continuous bool

	// NoSpeechTimeout ends the session with [ErrNoSpeech] when no result
	// arrives in time. Default 8s. Negative disables it.
	NoSpeechTimeout time.Duration

	// StopTimeout bounds how long Stop waits for the recognizer to flush
	// before the session is closed forcibly. Default 5s.
	StopTimeout time.Duration
}

// Controller drives one recognition session at a time. It is safe for
// concurrent use.
type Controller struct {
	provider stt.Provider
	source   audio.Source
	cfg      Config

	mu       sync.Mutex
	cb       Callbacks
	sess     *session
	closed   bool
	wg       sync.WaitGroup
	lastText string
}

// New creates a controller. A nil provider means the platform cannot
// recognise speech; Start then reports [ErrUnsupportedPlatform].
func New(provider stt.Provider, source audio.Source, cfg Config, cb Callbacks) *Controller {
	if cfg.Locale == "" {
		cfg.Locale = "pt-BR"
	}
	if cfg.NoSpeechTimeout == 0 {
		cfg.NoSpeechTimeout = defaultNoSpeechTimeout
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	return &Controller{provider: provider, source: source, cfg: cfg, cb: cb}
}

// IsRecording reports whether a session is active.
func (c *Controller) IsRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil
}

// Transcript returns the latest final-or-interim text of the current or
// most recent session.
func (c *Controller) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != nil {
		return c.sess.transcript
	}
	return c.lastText
}

// Start begins a recognition session. It is a no-op while a session is
// active or after Close. Failures are reported through the callbacks, not
// the return value.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.sess != nil {
		return
	}
	if c.provider == nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.emitError(ErrUnsupportedPlatform)
		}()
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &session{
		stopped: make(chan struct{}),
		aborted: make(chan struct{}),
		cancel:  cancel,
	}
	c.sess = s
	c.lastText = ""
	c.wg.Add(1)
	go c.run(ctx, s)
}

// Stop asks the recognizer to finish with the audio it already has. OnEnd
// follows once the final result has been delivered.
func (c *Controller) Stop() {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s != nil {
		s.stopOnce.Do(func() { close(s.stopped) })
	}
}

// Abort ends the session immediately, discarding pending audio. The session
// reports [ErrAborted] followed by OnEnd.
func (c *Controller) Abort() {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s != nil {
		s.abortOnce.Do(func() { close(s.aborted) })
	}
}

// Close detaches the callbacks and aborts any active session. Nothing is
// delivered after Close returns. Close does not wait for the session
// goroutines; use [Controller.Wait] for that.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.cb = Callbacks{}
	c.mu.Unlock()
	c.Abort()
}

// Wait blocks until all session goroutines have exited.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// session is the state of one recognition attempt.
type session struct {
	stopped   chan struct{}
	stopOnce  sync.Once
	aborted   chan struct{}
	abortOnce sync.Once
	cancel    context.CancelFunc

	// transcript is guarded by Controller.mu.
	transcript string
}

// run owns one session from resource acquisition to the final OnEnd.
func (c *Controller) run(ctx context.Context, s *session) {
	defer c.wg.Done()
	defer s.cancel()

	kind, failed := c.recognise(ctx, s)

	c.mu.Lock()
	text := s.transcript
	c.lastText = text
	c.sess = nil
	c.mu.Unlock()

	if failed {
		c.emitError(kind)
	}
	c.emitEnd(text)
}

// recognise acquires the microphone and recognizer, pumps audio and
// forwards results until the session ends. All resources are released
// before it returns.
func (c *Controller) recognise(ctx context.Context, s *session) (ErrorKind, bool) {
	log := slog.With("locale", c.cfg.Locale)

	stream, err := c.source.Open(ctx)
	if err != nil {
		log.Warn("speech: open microphone", "err", err)
		return Classify(err), true
	}
	defer stream.Close()

	format := stream.Format()
	handle, err := c.provider.StartStream(ctx, stt.StreamConfig{
		Language:       c.cfg.Locale,
		Continuous:     c.cfg.Continuous,
		InterimResults: true,
		SampleRate:     format.SampleRate,
		Channels:       format.Channels,
	})
	if err != nil {
		log.Warn("speech: start recognizer", "err", err)
		return Classify(err), true
	}
	defer handle.Close()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		pump(stream, handle)
	}()

	var noSpeech <-chan time.Time
	if c.cfg.NoSpeechTimeout > 0 {
		t := time.NewTimer(c.cfg.NoSpeechTimeout)
		defer t.Stop()
		noSpeech = t.C
	}
	var stopDeadline <-chan time.Time

	partials, finals := handle.Partials(), handle.Finals()
	stopped := s.stopped
	for partials != nil || finals != nil {
		select {
		case tr, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			noSpeech = nil
			c.result(s, tr.Text, false)

		case tr, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			noSpeech = nil
			c.result(s, tr.Text, true)
			if !c.cfg.Continuous {
				return "", false
			}

		case <-stopped:
			stopped = nil
			_ = stream.Close()
			_ = handle.Finish()
			t := time.NewTimer(c.cfg.StopTimeout)
			defer t.Stop()
			stopDeadline = t.C

		case <-stopDeadline:
			log.Warn("speech: recognizer did not finish in time, closing")
			return "", false

		case <-noSpeech:
			return ErrNoSpeech, true

		case <-s.aborted:
			return ErrAborted, true

		case <-ctx.Done():
			return ErrAborted, true
		}
	}

	if err := handle.Err(); err != nil {
		log.Warn("speech: recognizer failed", "err", err)
		return Classify(err), true
	}
	return "", false
}

// pump forwards captured audio to the recognizer. When capture ends the
// recognizer is asked to finish.
func pump(stream audio.Stream, handle stt.SessionHandle) {
	for f := range stream.Frames() {
		if err := handle.SendAudio(f.Data); err != nil {
			break
		}
	}
	_ = handle.Finish()
}

func (c *Controller) result(s *session, text string, final bool) {
	c.mu.Lock()
	s.transcript = text
	cb := c.cb.OnResult
	c.mu.Unlock()
	if cb != nil {
		cb(text, final)
	}
}

func (c *Controller) emitError(kind ErrorKind) {
	c.mu.Lock()
	cb := c.cb.OnError
	c.mu.Unlock()
	if cb != nil {
		cb(kind)
	}
}

func (c *Controller) emitEnd(text string) {
	c.mu.Lock()
	cb := c.cb.OnEnd
	c.mu.Unlock()
	if cb != nil {
		cb(text)
	}
}
