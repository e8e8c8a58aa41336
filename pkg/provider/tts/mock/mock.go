// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled audio chunks to consumers and to verify that
// the correct VoiceProfile and text fragments are passed to the TTS backend.
//
// Example:
//
//	p := &mock.Provider{
//	    SynthesizeChunks: [][]byte{[]byte("audio1"), []byte("audio2")},
//	    ListVoicesResult: []tts.VoiceProfile{{ID: "nova", Name: "Nova"}},
//	}
//	ch, _ := p.SynthesizeStream(ctx, textCh, voice)
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/MrWong99/papo/pkg/audio"
	"github.com/MrWong99/papo/pkg/provider/tts"
)

// SynthesizeStreamCall records a single invocation of SynthesizeStream.
type SynthesizeStreamCall struct {
	// Ctx is the context passed to SynthesizeStream.
	Ctx context.Context
	// Voice is the VoiceProfile passed to SynthesizeStream.
	Voice tts.VoiceProfile
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// SynthesizeChunks is the sequence of audio byte slices emitted on the channel
	// returned by SynthesizeStream.
	SynthesizeChunks [][]byte

	// SynthesizeErr, if non-nil, is returned as the error from SynthesizeStream
	// instead of starting a channel.
	SynthesizeErr error

	// Hold, if non-nil, keeps every stream open after its chunks were emitted
	// until Hold is closed or the stream's context is cancelled. Use it to
	// simulate a long utterance.
	Hold chan struct{}

	// OutputFormat is returned by Format. Defaults to 24 kHz mono.
	OutputFormat audio.Format

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []tts.VoiceProfile

	// ListVoicesErr, if non-nil, is returned as the error from ListVoices.
	ListVoicesErr error

	// --- Call records ---

	// SynthesizeStreamCalls records every call to SynthesizeStream in order.
	SynthesizeStreamCalls []SynthesizeStreamCall

	// Texts holds the text received by each SynthesizeStream call, joined,
	// indexed like SynthesizeStreamCalls.
	Texts []string

	// Cancelled counts streams that ended because their context was cancelled.
	Cancelled int

	// CallCountListVoices records how many times ListVoices was called.
	CallCountListVoices int
}

// SynthesizeStream records the call and, if SynthesizeErr is nil, returns a
// channel that emits SynthesizeChunks then closes.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	p.mu.Lock()
	p.SynthesizeStreamCalls = append(p.SynthesizeStreamCalls, SynthesizeStreamCall{Ctx: ctx, Voice: voice})
	if p.SynthesizeErr != nil {
		err := p.SynthesizeErr
		p.Texts = append(p.Texts, "")
		p.mu.Unlock()
		return nil, err
	}
	idx := len(p.Texts)
	p.Texts = append(p.Texts, "")
	chunks := make([][]byte, len(p.SynthesizeChunks))
	copy(chunks, p.SynthesizeChunks)
	hold := p.Hold
	p.mu.Unlock()

	ch := make(chan []byte, len(chunks))
	go func() {
		defer close(ch)
		var sb strings.Builder
		for frag := range text {
			sb.WriteString(frag)
		}
		p.mu.Lock()
		p.Texts[idx] = sb.String()
		p.mu.Unlock()

		for _, a := range chunks {
			select {
			case <-ctx.Done():
				p.markCancelled()
				return
			case ch <- a:
			}
		}
		if hold != nil {
			select {
			case <-hold:
			case <-ctx.Done():
				p.markCancelled()
			}
		}
	}()
	return ch, nil
}

func (p *Provider) markCancelled() {
	p.mu.Lock()
	p.Cancelled++
	p.mu.Unlock()
}

// Format returns OutputFormat, defaulting to 24 kHz mono.
func (p *Provider) Format() audio.Format {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.OutputFormat.SampleRate == 0 {
		return audio.Format{SampleRate: 24000, Channels: 1}
	}
	return p.OutputFormat
}

// ListVoices records the call and returns ListVoicesResult, ListVoicesErr.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountListVoices++
	return p.ListVoicesResult, p.ListVoicesErr
}

// CallCount returns the number of SynthesizeStream calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeStreamCalls)
}

// TextAt returns the text received by the i-th call. Thread-safe.
func (p *Provider) TextAt(i int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.Texts) {
		return ""
	}
	return p.Texts[i]
}

// CancelledCount returns how many streams were cancelled. Thread-safe.
func (p *Provider) CancelledCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Cancelled
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeStreamCalls = nil
	p.Texts = nil
	p.Cancelled = 0
	p.CallCountListVoices = 0
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
