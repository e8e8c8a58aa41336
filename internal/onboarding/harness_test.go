package onboarding

import (
	"sync"
	"testing"
	"time"

	backendmock "github.com/MrWong99/papo/internal/backend/mock"
	"github.com/MrWong99/papo/internal/journal"
	"github.com/MrWong99/papo/internal/narrate"
	"github.com/MrWong99/papo/internal/notify"
	"github.com/MrWong99/papo/internal/speech"
	audiomock "github.com/MrWong99/papo/pkg/audio/mock"
	"github.com/MrWong99/papo/pkg/provider/stt"
	sttmock "github.com/MrWong99/papo/pkg/provider/stt/mock"
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

// ─── fakes ───────────────────────────────────────────────────────────────────

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (ft *fakeTimers) AfterFunc(d time.Duration, f func()) Timer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	ft.timers = append(ft.timers, t)
	return stopper{ft: ft, t: t}
}

type stopper struct {
	ft *fakeTimers
	t  *fakeTimer
}

func (s stopper) Stop() bool {
	s.ft.mu.Lock()
	defer s.ft.mu.Unlock()
	was := !s.t.stopped && !s.t.fired
	s.t.stopped = true
	return was
}

// fire runs every timer that is neither stopped nor fired and returns how
// many ran.
func (ft *fakeTimers) fire() int {
	ft.mu.Lock()
	var due []*fakeTimer
	for _, t := range ft.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	ft.mu.Unlock()
	for _, t := range due {
		t.f()
	}
	return len(due)
}

func (ft *fakeTimers) last() *fakeTimer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if len(ft.timers) == 0 {
		return nil
	}
	return ft.timers[len(ft.timers)-1]
}

type nopScheduler struct{}

func (nopScheduler) Request(func()) func() { return func() {} }

type listener struct {
	mu          sync.Mutex
	steps       []StepID
	recording   []bool
	transcripts []string
	validations []string
	users       []UserData
	navigations []string
}

func (l *listener) StepChanged(s Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps = append(l.steps, s.Step.ID)
}

func (l *listener) RecordingChanged(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recording = append(l.recording, on)
}

func (l *listener) Transcript(text string, _ bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transcripts = append(l.transcripts, text)
}

func (l *listener) Volume(uint8) {}

func (l *listener) Validation(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.validations = append(l.validations, msg)
}

func (l *listener) UserUpdated(u UserData) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.users = append(l.users, u)
}

func (l *listener) Navigate(route string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.navigations = append(l.navigations, route)
}

func (l *listener) stepHistory() []StepID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]StepID(nil), l.steps...)
}

func (l *listener) lastValidation() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.validations) == 0 {
		return ""
	}
	return l.validations[len(l.validations)-1]
}

func (l *listener) navigated() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.navigations...)
}

type narrator struct {
	mu      sync.Mutex
	spoken  []string
	cancels int
	closes  int
}

func (n *narrator) Speak(key, prompt string, vars narrate.Vars) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.spoken = append(n.spoken, key+": "+narrate.Substitute(prompt, vars))
}

func (n *narrator) Cancel() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancels++
}

func (n *narrator) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closes++
}

func (n *narrator) lastSpoken() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.spoken) == 0 {
		return ""
	}
	return n.spoken[len(n.spoken)-1]
}

type metrics struct {
	mu        sync.Mutex
	entered   []StepID
	errs      []speech.ErrorKind
	completed int
}

func (m *metrics) StepEntered(_, to StepID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entered = append(m.entered, to)
}

func (m *metrics) RecognitionError(kind speech.ErrorKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, kind)
}

func (m *metrics) Completed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed++
}

type tokens struct{}

func (tokens) Issue(userID, name, _ string) (string, time.Time, error) {
	return "token-" + userID + "-" + name, time.Unix(1_900_000_000, 0), nil
}

// ─── harness ─────────────────────────────────────────────────────────────────

type harness struct {
	c        *Controller
	stt      *sttmock.Provider
	src      *audiomock.Source
	be       *backendmock.Client
	notes    *notify.Recorder
	l        *listener
	narr     *narrator
	timers   *fakeTimers
	metrics  *metrics
	journal  *journal.MemStore
	complete *completions
}

type completions struct {
	mu  sync.Mutex
	all []Completion
}

func (c *completions) add(x Completion) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.all = append(c.all, x)
}

func (c *completions) list() []Completion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Completion(nil), c.all...)
}

type harnessOpt func(*Deps, *Config)

func withoutOnComplete() harnessOpt {
	return func(d *Deps, _ *Config) { d.OnComplete = nil }
}

func newHarness(t *testing.T, opts ...harnessOpt) *harness {
	t.Helper()
	h := &harness{
		stt:      &sttmock.Provider{},
		src:      &audiomock.Source{},
		be:       &backendmock.Client{},
		notes:    &notify.Recorder{},
		l:        &listener{},
		narr:     &narrator{},
		timers:   &fakeTimers{},
		metrics:  &metrics{},
		journal:  journal.NewMemStore(0),
		complete: &completions{},
	}
	j, err := journal.New(1, h.journal, nil)
	if err != nil {
		t.Fatal(err)
	}
	deps := Deps{
		STT:        h.stt,
		Source:     h.src,
		Backend:    h.be,
		Narrator:   h.narr,
		Notifier:   h.notes,
		Listener:   h.l,
		Journal:    journal.Sessioned{J: j, SessionID: "test"},
		Metrics:    h.metrics,
		Tokens:     tokens{},
		Scheduler:  nopScheduler{},
		AfterFunc:  h.timers.AfterFunc,
		OnComplete: h.complete.add,
	}
	cfg := Config{NoSpeechTimeout: -1}
	for _, o := range opts {
		o(&deps, &cfg)
	}
	c, err := New(cfg, deps)
	if err != nil {
		t.Fatal(err)
	}
	h.c = c
	t.Cleanup(c.Close)
	c.Begin()
	return h
}

// startRecording starts a recording and returns the new recognizer session.
func (h *harness) startRecording(t *testing.T) *sttmock.Session {
	t.Helper()
	n := h.stt.CallCount()
	if err := h.c.StartRecording(); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	waitFor(t, "recognizer", func() bool { return h.stt.CallCount() == n+1 })
	return h.stt.Last()
}

// say records text as the final recognition result. An empty text ends the
// recording without any result.
func (h *harness) say(t *testing.T, text string) {
	t.Helper()
	s := h.startRecording(t)
	if text == "" {
		s.End(nil)
	} else {
		s.Emit(stt.Transcript{Text: text, IsFinal: true})
	}
	waitFor(t, "recording end", func() bool { return !h.c.Snapshot().Recording })
	h.settle()
}

// settle waits until the events of the last observed state change have
// been delivered. Events are dispatched while dispatchMu is held, and it is
// taken before the state lock is released.
func (h *harness) settle() {
	h.c.dispatchMu.Lock()
	h.c.dispatchMu.Unlock() //nolint:staticcheck // used as a barrier
}

func (h *harness) waitStep(t *testing.T, id StepID) {
	t.Helper()
	waitFor(t, "step "+string(id), func() bool { return h.c.Step().ID == id })
	h.settle()
}

// toConfirmation drives the wizard to the confirmation step as Maria.
func (h *harness) toConfirmation(t *testing.T) {
	t.Helper()
	h.say(t, "Olá, me chamo Maria")
	h.waitStep(t, StepPhone)
	if _, err := h.c.SubmitPhone("11999999999"); err != nil {
		t.Fatal(err)
	}
	h.waitStep(t, StepConfirmation)
}
