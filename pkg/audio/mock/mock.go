// Package mock provides in-memory mock implementations of the [audio.Source],
// [audio.Stream], and [audio.Sink] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	src := &mock.Source{}
//	stream, _ := src.Open(ctx)
//	src.Last().Send(audio.Frame{Data: pcm, SampleRate: 16000, Channels: 1})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/papo/pkg/audio"
)

// ─── Stream ───────────────────────────────────────────────────────────────────

// Stream is a mock implementation of [audio.Stream]. Frames are injected with
// [Stream.Send] and the channel is closed on the first Close call.
type Stream struct {
	mu     sync.Mutex
	ch     chan audio.Frame
	format audio.Format
	closed bool

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewStream returns an open stream with the given format and buffer size.
func NewStream(format audio.Format, buffer int) *Stream {
	return &Stream{ch: make(chan audio.Frame, buffer), format: format}
}

// Frames implements [audio.Stream].
func (s *Stream) Frames() <-chan audio.Frame { return s.ch }

// Format implements [audio.Stream].
func (s *Stream) Format() audio.Format { return s.format }

// Close implements [audio.Stream].
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

// Closed reports whether Close has been called at least once.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Send delivers f on the frame channel. It returns false when the stream is
// closed or the buffer is full.
func (s *Stream) Send(f audio.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- f:
		return true
	default:
		return false
	}
}

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock implementation of [audio.Source].
type Source struct {
	mu sync.Mutex

	// OpenError is returned by Open when non-nil.
	OpenError error

	// Format is the format reported by opened streams. Defaults to 16 kHz mono.
	Format audio.Format

	// CallCountOpen records how many times Open was called.
	CallCountOpen int

	// Streams holds every stream handed out by Open, in order.
	Streams []*Stream
}

// Open implements [audio.Source].
func (s *Source) Open(_ context.Context) (audio.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountOpen++
	if s.OpenError != nil {
		return nil, s.OpenError
	}
	f := s.Format
	if f.SampleRate == 0 {
		f = audio.Format{SampleRate: 16000, Channels: 1}
	}
	st := NewStream(f, 64)
	s.Streams = append(s.Streams, st)
	return st, nil
}

// Last returns the most recently opened stream, or nil.
func (s *Source) Last() *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Streams) == 0 {
		return nil
	}
	return s.Streams[len(s.Streams)-1]
}

// OpenStreams returns the number of streams not yet closed.
func (s *Source) OpenStreams() int {
	s.mu.Lock()
	streams := make([]*Stream, len(s.Streams))
	copy(streams, s.Streams)
	s.mu.Unlock()
	n := 0
	for _, st := range streams {
		if !st.Closed() {
			n++
		}
	}
	return n
}

// ─── Sink ─────────────────────────────────────────────────────────────────────

// WriteCall records the arguments of a single [Sink.WriteAudio] invocation.
type WriteCall struct {
	Chunk  []byte
	Format audio.Format
}

// Sink is a mock implementation of [audio.Sink].
type Sink struct {
	mu sync.Mutex

	// WriteError is returned by WriteAudio.
	WriteError error

	// Writes records all WriteAudio invocations.
	Writes []WriteCall
}

// WriteAudio implements [audio.Sink].
func (s *Sink) WriteAudio(chunk []byte, format audio.Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := make([]byte, len(chunk))
	copy(c, chunk)
	s.Writes = append(s.Writes, WriteCall{Chunk: c, Format: format})
	return s.WriteError
}

// Count returns the number of recorded writes.
func (s *Sink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Writes)
}
