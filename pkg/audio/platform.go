// Package audio defines the microphone and playback capabilities used by an
// onboarding session, together with the PCM helpers shared by providers.
//
// The two capability abstractions are:
//
//   - [Source] is the microphone. Every [Source.Open] call returns an
//     independent [Stream] of captured frames, so speech recognition and the
//     level meter can each own (and release) their own stream.
//   - [Sink] is the speaker. Narration audio is written here.
//
// Implementations live next to the transport that carries the audio (see
// [Hub] for the WebSocket-fed microphone). The interfaces are intentionally
// narrow so tests can substitute fakes without a live client.
package audio

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPermissionDenied is returned by [Source.Open] when the user refused
	// microphone access.
	ErrPermissionDenied = errors.New("audio: microphone permission denied")

	// ErrNoMicrophone is returned by [Source.Open] when the client has no
	// capture device.
	ErrNoMicrophone = errors.New("audio: no microphone available")

	// ErrUnsupported is returned when the client cannot capture audio at all.
	ErrUnsupported = errors.New("audio: capture not supported")

	// ErrClosed is returned when operating on a closed source or sink.
	ErrClosed = errors.New("audio: closed")
)

// Format describes the sample rate and channel count of 16-bit PCM audio.
type Format struct {
	SampleRate int
	Channels   int
}

// Frame is a single chunk of little-endian 16-bit PCM audio.
type Frame struct {
	// Data holds interleaved int16 samples.
	Data []byte

	// SampleRate in Hz (e.g., 48000 for Opus input, 16000 for STT).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Format returns the frame's audio format.
func (f Frame) Format() Format {
	return Format{SampleRate: f.SampleRate, Channels: f.Channels}
}

// Stream is an open capture stream. Closing it stops delivery ("stops the
// tracks") and closes the Frames channel. Close is idempotent.
type Stream interface {
	// Frames returns the channel of captured frames. It is closed when the
	// stream is closed or the source shuts down.
	Frames() <-chan Frame

	// Format reports the format of frames delivered on Frames.
	Format() Format

	// Close releases the stream. Calling Close more than once returns nil.
	Close() error
}

// Source is the microphone capability.
//
// Implementations must be safe for concurrent use.
type Source interface {
	// Open requests microphone access and returns a new capture stream.
	// It fails with [ErrPermissionDenied], [ErrNoMicrophone] or
	// [ErrUnsupported] when capture is not possible.
	Open(ctx context.Context) (Stream, error)
}

// Sink is the playback capability. WriteAudio must not block for longer than
// it takes to hand the chunk to the transport.
type Sink interface {
	WriteAudio(chunk []byte, format Format) error
}
