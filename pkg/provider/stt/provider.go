// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g., Deepgram streaming or
// OpenAI Whisper batch) and exposes a uniform streaming interface. The central
// abstraction is SessionHandle: once opened, a session accepts raw PCM audio
// frames and emits two streams of Transcript values: low-latency partials
// (interim results) and authoritative finals.
//
// Implementations must be safe for concurrent use. Audio input and transcript
// output channels are goroutine-safe by construction.
package stt

import (
	"context"
	"errors"
)

// Sentinel errors reported by providers through [SessionHandle.Err] or
// [Provider.StartStream]. Callers classify failures with errors.Is; any error
// that matches none of these is treated as a network failure.
var (
	// ErrNoSpeech means the recognizer heard no speech before giving up.
	ErrNoSpeech = errors.New("stt: no speech detected")

	// ErrNetwork means the provider could not be reached or the connection
	// dropped mid-session.
	ErrNetwork = errors.New("stt: network error")

	// ErrServiceUnavailable means the provider refused service (bad
	// credentials, quota exhausted, upstream outage).
	ErrServiceUnavailable = errors.New("stt: service unavailable")

	// ErrAborted means the session was terminated before a result arrived.
	ErrAborted = errors.New("stt: aborted")

	// ErrSessionClosed is returned by SendAudio after the session ended.
	ErrSessionClosed = errors.New("stt: session closed")
)

// StreamConfig describes the audio format and recognition hints for a new STT
// session. All fields must be compatible with what the underlying provider supports;
// see each provider's documentation for valid ranges.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Common values: 16000 (STT-optimised
	// mono), 48000 (Opus decode output).
	SampleRate int

	// Channels is the number of audio channels. 1 = mono (required by most STT
	// providers). Implementors may downmix stereo internally.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "pt-BR").
	// An empty string lets the provider auto-detect the language, if supported.
	Language string

	// Continuous keeps the session open after the first final result. When
	// false the caller ends the session after one utterance.
	Continuous bool

	// InterimResults requests partial transcripts on the Partials channel.
	// Batch providers that cannot produce partials ignore it.
	InterimResults bool
}

// SessionHandle represents an open STT streaming session. It is an interface so
// that test code can provide mock implementations without requiring a live provider
// connection.
//
// Callers must call Close when the session is no longer needed. Failing to do so
// may leak goroutines and network connections inside the provider implementation.
// All methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM audio bytes to the provider for
	// transcription. The chunk should match the SampleRate, Channels, and bit-depth
	// agreed in StreamConfig. Calling SendAudio after the session ended returns
	// ErrSessionClosed.
	SendAudio(chunk []byte) error

	// Partials returns a read-only channel that emits low-latency interim Transcript
	// values. The channel is closed when the session ends.
	Partials() <-chan Transcript

	// Finals returns a read-only channel that emits authoritative Transcript values
	// once the provider has committed to a recognition result.
	// The channel is closed when the session ends.
	Finals() <-chan Transcript

	// Finish signals that no more audio will be sent. The provider flushes any
	// buffered audio, delivers the remaining results and then closes both
	// channels. Finish returns without waiting for the flush.
	Finish() error

	// Err returns the error that terminated the session, or nil if it ended
	// normally. It is only meaningful after both channels have been closed.
	Err() error

	// Close terminates the session immediately, discarding pending audio, and
	// releases all associated resources. After Close returns, the Partials and
	// Finals channels will be closed. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use. Multiple sessions may be open
// simultaneously (one per connected client).
type Provider interface {
	// StartStream opens a new streaming transcription session with the given audio
	// format and recognition configuration. The returned SessionHandle is ready to
	// accept audio immediately.
	//
	// Returns an error if the provider cannot establish the session (e.g.,
	// authentication failure, unsupported configuration, or ctx already cancelled).
	// The caller owns the SessionHandle and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
