package narrate

import (
	"errors"
	"testing"
	"time"

	audiomock "github.com/MrWong99/papo/pkg/audio/mock"
	ttsmock "github.com/MrWong99/papo/pkg/provider/tts/mock"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestSubstitute(t *testing.T) {
	t.Parallel()
	got := Substitute("Olá {name}! Seu número é {phone}. {name}?", Vars{Name: "Ana", Phone: "(11) 99999-9999"})
	want := "Olá Ana! Seu número é (11) 99999-9999. Ana?"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got := Substitute("sem variáveis", Vars{}); got != "sem variáveis" {
		t.Errorf("got %q", got)
	}
}

func TestSpeak_StreamsToSink(t *testing.T) {
	t.Parallel()
	p := &ttsmock.Provider{SynthesizeChunks: [][]byte{{1, 2}, {3, 4}}}
	sink := &audiomock.Sink{}
	n := New(p, sink)
	defer n.Close()

	n.Speak("phone", "Obrigado {name}", Vars{Name: "Ana"})
	waitFor(t, "two chunks", func() bool { return sink.Count() == 2 })
	waitFor(t, "utterance end", func() bool { return !n.Playing() })

	if got := p.TextAt(0); got != "Obrigado Ana" {
		t.Errorf("text = %q", got)
	}
	if sink.Writes[0].Format.SampleRate != 24000 {
		t.Errorf("format = %+v", sink.Writes[0].Format)
	}
}

func TestSpeak_CancelsPrevious(t *testing.T) {
	t.Parallel()
	hold := make(chan struct{})
	defer close(hold)
	p := &ttsmock.Provider{SynthesizeChunks: [][]byte{{1}}, Hold: hold}
	sink := &audiomock.Sink{}
	n := New(p, sink)
	defer n.Close()

	n.Speak("welcome", "Olá", Vars{})
	waitFor(t, "first chunk", func() bool { return sink.Count() == 1 })

	n.Speak("phone", "Telefone", Vars{})
	waitFor(t, "second utterance", func() bool { return p.CallCount() == 2 })
	waitFor(t, "first cancelled", func() bool { return p.CancelledCount() >= 1 })
	if !n.Playing() {
		t.Error("second utterance should be playing")
	}
}

func TestSpeak_SamePromptNotRestarted(t *testing.T) {
	t.Parallel()
	hold := make(chan struct{})
	defer close(hold)
	p := &ttsmock.Provider{Hold: hold}
	n := New(p, &audiomock.Sink{})
	defer n.Close()

	n.Speak("welcome", "Olá {name}", Vars{Name: "Ana"})
	n.Speak("welcome", "Olá {name}", Vars{Name: "Ana"})
	if got := p.CallCount(); got > 1 {
		t.Fatalf("identical prompt restarted: %d calls", got)
	}
	n.Speak("welcome", "Olá {name}", Vars{Name: "Bia"})
	waitFor(t, "new text", func() bool { return p.CallCount() == 2 })
}

func TestCancel_StopsAudioSynchronously(t *testing.T) {
	t.Parallel()
	hold := make(chan struct{})
	defer close(hold)
	p := &ttsmock.Provider{SynthesizeChunks: [][]byte{{1}}, Hold: hold}
	sink := &audiomock.Sink{}
	n := New(p, sink)

	n.Speak("welcome", "Olá", Vars{})
	waitFor(t, "first chunk", func() bool { return sink.Count() == 1 })
	n.Cancel()
	if n.Playing() {
		t.Error("still playing after Cancel")
	}
	n.Cancel()

	n.Close()
	n.Speak("phone", "Telefone", Vars{})
	if got := p.CallCount(); got != 1 {
		t.Errorf("Speak after Close started synthesis (%d calls)", got)
	}
}

func TestDisabledIsNoOp(t *testing.T) {
	t.Parallel()
	p := &ttsmock.Provider{}
	sink := &audiomock.Sink{}

	for _, n := range []*Narrator{
		New(p, sink, WithEnabled(false)),
		New(nil, sink),
		New(p, nil),
		nil,
	} {
		n.Speak("welcome", "Olá", Vars{})
		n.Cancel()
		n.Close()
		if n.Playing() {
			t.Error("disabled narrator playing")
		}
	}
	if p.CallCount() != 0 {
		t.Errorf("provider called %d times", p.CallCount())
	}
}

func TestSynthesisErrorIsSwallowed(t *testing.T) {
	t.Parallel()
	p := &ttsmock.Provider{SynthesizeErr: errors.New("quota")}
	sink := &audiomock.Sink{}
	n := New(p, sink)
	defer n.Close()

	n.Speak("welcome", "Olá", Vars{})
	waitFor(t, "utterance end", func() bool { return !n.Playing() })
	if sink.Count() != 0 {
		t.Error("audio written after synthesis error")
	}
}
