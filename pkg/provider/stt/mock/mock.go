// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify that the caller starts sessions with the expected
// StreamConfig. Use Session to feed controlled Transcript values, end the
// session (optionally with an error) and inspect which audio chunks were
// delivered.
//
// Example:
//
//	p := &mock.Provider{}
//	handle, _ := p.StartStream(ctx, cfg)
//	p.Last().Emit(stt.Transcript{Text: "olá", IsFinal: true})
//	p.Last().End(nil)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/papo/pkg/provider/stt"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	// Ctx is the context passed to StartStream.
	Ctx context.Context
	// Cfg is the StreamConfig passed to StartStream.
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the session returned by StartStream. If nil, StartStream
	// returns a fresh [NewSession] for every call.
	Session *Session

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall

	// Sessions holds every session handed out, in order.
	Sessions []*Session
}

// StartStream records the call and returns Session, StartStreamErr.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	s := p.Session
	if s == nil {
		s = NewSession()
	}
	p.Sessions = append(p.Sessions, s)
	return s, nil
}

// CallCount returns the number of StartStream calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StartStreamCalls)
}

// Last returns the most recently started session, or nil. Thread-safe.
func (p *Provider) Last() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Sessions) == 0 {
		return nil
	}
	return p.Sessions[len(p.Sessions)-1]
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = nil
	p.Sessions = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// SendAudioCall records a single invocation of Session.SendAudio.
type SendAudioCall struct {
	// Chunk is a copy of the audio bytes that were passed to SendAudio.
	Chunk []byte
}

// Session is a mock implementation of stt.SessionHandle. Its channels behave
// like a real provider's: they are closed exactly once, by Close, by End, or
// by Finish when EndOnFinish is set.
type Session struct {
	mu       sync.Mutex
	partials chan stt.Transcript
	finals   chan stt.Transcript
	ended    bool
	err      error

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// EndOnFinish makes Finish end the session immediately, as a provider
	// with nothing buffered would.
	EndOnFinish bool

	// --- Call records ---

	// SendAudioCalls records every call to SendAudio in order.
	SendAudioCalls []SendAudioCall

	// FinishCallCount is the number of times Finish was called.
	FinishCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// NewSession returns an open session with buffered channels and
// EndOnFinish set.
func NewSession() *Session {
	return &Session{
		partials:    make(chan stt.Transcript, 16),
		finals:      make(chan stt.Transcript, 16),
		EndOnFinish: true,
	}
}

// SendAudio records the call and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return stt.ErrSessionClosed
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SendAudioCalls = append(s.SendAudioCalls, SendAudioCall{Chunk: cp})
	return s.SendAudioErr
}

// Partials returns the partial transcript channel.
func (s *Session) Partials() <-chan stt.Transcript { return s.partials }

// Finals returns the final transcript channel.
func (s *Session) Finals() <-chan stt.Transcript { return s.finals }

// Finish records the call and ends the session if EndOnFinish is set.
func (s *Session) Finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FinishCallCount++
	if s.EndOnFinish {
		s.endLocked(nil)
	}
	return nil
}

// Err returns the error passed to End.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close records the call and ends the session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	s.endLocked(nil)
	return nil
}

// Emit delivers t on Partials or Finals depending on t.IsFinal. It returns
// false if the session has ended.
func (s *Session) Emit(t stt.Transcript) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false
	}
	if t.IsFinal {
		s.finals <- t
	} else {
		s.partials <- t
	}
	return true
}

// End terminates the session with err (nil for a normal end).
func (s *Session) End(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLocked(err)
}

// Ended reports whether the session channels have been closed.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// SendAudioCallCount returns the number of SendAudio calls. Thread-safe.
func (s *Session) SendAudioCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SendAudioCalls)
}

// Counts returns the Finish and Close call counts. Thread-safe.
func (s *Session) Counts() (finish, close int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FinishCallCount, s.CloseCallCount
}

func (s *Session) endLocked(err error) {
	if s.ended {
		return
	}
	s.ended = true
	s.err = err
	close(s.partials)
	close(s.finals)
}

// Ensure Session implements stt.SessionHandle at compile time.
var _ stt.SessionHandle = (*Session)(nil)
