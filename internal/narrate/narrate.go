// Package narrate speaks onboarding prompts aloud. A [Narrator] plays at
// most one utterance at a time: starting a new prompt cancels the previous
// one before any of the new audio is written.
package narrate

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/MrWong99/papo/pkg/audio"
	"github.com/MrWong99/papo/pkg/provider/tts"
)

// Vars holds the values substituted into a prompt template.
type Vars struct {
	Name  string
	Phone string
}

// Substitute replaces every {name} and {phone} placeholder in prompt.
func Substitute(prompt string, v Vars) string {
	return strings.NewReplacer("{name}", v.Name, "{phone}", v.Phone).Replace(prompt)
}

// Option configures a [Narrator].
type Option func(*Narrator)

// WithVoice selects the synthesis voice.
func WithVoice(v tts.VoiceProfile) Option {
	return func(n *Narrator) { n.voice = v }
}

// WithEnabled turns narration on or off. A disabled narrator ignores every
// call.
func WithEnabled(on bool) Option {
	return func(n *Narrator) { n.enabled = on }
}

// WithLogger sets the logger used for synthesis failures.
func WithLogger(l *slog.Logger) Option {
	return func(n *Narrator) { n.log = l }
}

// Narrator streams synthesised prompts to an audio sink.
type Narrator struct {
	provider tts.Provider
	sink     audio.Sink
	voice    tts.VoiceProfile
	enabled  bool
	log      *slog.Logger

	mu     sync.Mutex
	cur    *utterance
	closed bool
}

type utterance struct {
	key    string
	text   string
	cancel context.CancelFunc
	done   chan struct{}
}

func (u *utterance) playing() bool {
	select {
	case <-u.done:
		return false
	default:
		return true
	}
}

// stop cancels the utterance and waits until it has written its last chunk.
func (u *utterance) stop() {
	u.cancel()
	<-u.done
}

// New creates a narrator. A nil provider or sink yields a narrator on which
// every call is a no-op.
func New(p tts.Provider, sink audio.Sink, opts ...Option) *Narrator {
	n := &Narrator{
		provider: p,
		sink:     sink,
		enabled:  true,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Enabled reports whether Speak does anything.
func (n *Narrator) Enabled() bool {
	return n != nil && n.enabled && n.provider != nil && n.sink != nil
}

// Speak plays prompt with vars substituted, identified by key (usually the
// step ID). The previous utterance is cancelled first unless it is the same
// key and text and still playing, in which case the call is ignored.
func (n *Narrator) Speak(key, prompt string, vars Vars) {
	if !n.Enabled() {
		return
	}
	text := Substitute(prompt, vars)

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	if n.cur != nil {
		if n.cur.key == key && n.cur.text == text && n.cur.playing() {
			return
		}
		n.cur.stop()
		n.cur = nil
	}
	if strings.TrimSpace(text) == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	u := &utterance{key: key, text: text, cancel: cancel, done: make(chan struct{})}
	n.cur = u
	go n.play(ctx, u)
}

func (n *Narrator) play(ctx context.Context, u *utterance) {
	defer close(u.done)
	defer u.cancel()

	textCh := make(chan string, 1)
	textCh <- u.text
	close(textCh)

	chunks, err := n.provider.SynthesizeStream(ctx, textCh, n.voice)
	if err != nil {
		n.log.Warn("narrate: synthesis failed", "key", u.key, "err", err)
		return
	}
	format := n.provider.Format()
	for chunk := range chunks {
		if ctx.Err() != nil {
			go audio.Drain(chunks)
			return
		}
		if err := n.sink.WriteAudio(chunk, format); err != nil {
			n.log.Warn("narrate: write audio", "key", u.key, "err", err)
			go audio.Drain(chunks)
			return
		}
	}
}

// Playing reports whether an utterance is in progress.
func (n *Narrator) Playing() bool {
	if n == nil {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cur != nil && n.cur.playing()
}

// Cancel stops the current utterance, if any. When Cancel returns no more
// audio from it reaches the sink.
func (n *Narrator) Cancel() {
	if n == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cur != nil {
		n.cur.stop()
		n.cur = nil
	}
}

// Close cancels playback and makes every later Speak a no-op.
func (n *Narrator) Close() {
	if n == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	if n.cur != nil {
		n.cur.stop()
		n.cur = nil
	}
}
