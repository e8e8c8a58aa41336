// Package onboarding runs the voice sign-up wizard for one client: welcome
// (say your name), phone, confirmation (say yes or no) and success.
//
// A [Controller] owns the step state, the recording lifecycle (speech
// recognition plus the volume sampler) and the three remote calls. All
// state changes happen under one mutex. Results that arrive asynchronously
// (recognition end, backend responses, the success timer) carry the
// generation they were started in and are dropped once the user cancelled,
// the step changed or the controller was closed.
//
// Outbound events are queued while the lock is held and delivered in order
// after it is released. Listener and Notifier implementations must not call
// back into the Controller synchronously.
package onboarding

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/papo/internal/backend"
	"github.com/MrWong99/papo/internal/interpret"
	"github.com/MrWong99/papo/internal/journal"
	"github.com/MrWong99/papo/internal/level"
	"github.com/MrWong99/papo/internal/narrate"
	"github.com/MrWong99/papo/internal/notify"
	"github.com/MrWong99/papo/internal/speech"
	"github.com/MrWong99/papo/pkg/audio"
	"github.com/MrWong99/papo/pkg/provider/stt"
)

var (
	ErrClosed      = errors.New("onboarding: controller closed")
	ErrWrongStep   = errors.New("onboarding: not available on this step")
	ErrBusy        = errors.New("onboarding: request in flight")
	ErrUnknownStep = errors.New("onboarding: unknown step")
	ErrNoBackend   = errors.New("onboarding: backend client required")
)

const (
	DefaultSuccessDelay  = 3 * time.Second
	DefaultXPAward       = 50
	DefaultCompleteRoute = "/dashboard"
	DefaultVoiceMarker   = "voice-onboarding"
	phoneRegion          = "BR"
)

// UserData is what the wizard has learned about the user so far.
type UserData struct {
	Name  string         `json:"name"`
	Phone string         `json:"phone"`
	ID    string         `json:"id,omitempty"`
	Level *backend.Level `json:"level,omitempty"`
}

// Snapshot is a consistent copy of the controller state.
type Snapshot struct {
	Step       Step     `json:"step"`
	Index      int      `json:"index"`
	Total      int      `json:"total"`
	Data       UserData `json:"data"`
	Recording  bool     `json:"recording"`
	Busy       bool     `json:"busy"`
	Transcript string   `json:"transcript"`
	PhoneDraft string   `json:"phone_draft"`
	Completed  bool     `json:"completed"`
}

// Completion is handed to the host once the success step has been shown.
type Completion struct {
	User      UserData  `json:"user"`
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	Route     string    `json:"route"`
}

// Listener receives UI events. Methods are called in order from a single
// goroutine at a time, except Volume which is called from the sampler.
type Listener interface {
	StepChanged(s Snapshot)
	RecordingChanged(on bool)
	Transcript(text string, final bool)
	Volume(level uint8)
	Validation(message string)
	UserUpdated(u UserData)
	Navigate(route string)
}

// NopListener ignores every event.
type NopListener struct{}

func (NopListener) StepChanged(Snapshot) {}
func (NopListener) RecordingChanged(bool) {}
func (NopListener) Transcript(string, bool) {}
func (NopListener) Volume(uint8) {}
func (NopListener) Validation(string) {}
func (NopListener) UserUpdated(UserData) {}
func (NopListener) Navigate(string) {}

// Narrator speaks step prompts. *narrate.Narrator implements it.
type Narrator interface {
	Speak(key, prompt string, vars narrate.Vars)
	Cancel()
	Close()
}

// Journal records session history. journal.Sessioned implements it.
type Journal interface {
	Record(kind journal.Kind, step string, payload any)
}

// Metrics receives onboarding measurements.
type Metrics interface {
	StepEntered(from, to StepID)
	RecognitionError(kind speech.ErrorKind)
	Completed()
}

// TokenIssuer signs the session token handed out on completion.
type TokenIssuer interface {
	Issue(userID, name, phone string) (string, time.Time, error)
}

// Timer is the part of *time.Timer the controller uses.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

// Config tunes the controller. Zero values take defaults.
type Config struct {
	Locale          string
	SuccessDelay    time.Duration
	XPAward         int
	CompleteRoute   string
	VoiceMarker     string
	NoSpeechTimeout time.Duration
	FFTSize         int
}

// Deps are the collaborators of a controller. Only Backend is required.
type Deps struct {
	STT      stt.Provider
	Source   audio.Source
	Backend  backend.Client
	Narrator Narrator
	Notifier notify.Sink
	Listener Listener
	Journal  Journal
	Metrics  Metrics
	Tokens   TokenIssuer

	// Scheduler drives the volume sampler. Default: level.TimerScheduler.
	Scheduler level.Scheduler

	// AfterFunc schedules the success delay. Default: time.AfterFunc.
	AfterFunc AfterFunc

	// OnComplete, when set, receives the completion instead of a Navigate
	// event.
	OnComplete func(Completion)

	Logger *slog.Logger
}

// Controller is the onboarding state machine for one client.
type Controller struct {
	cfg     Config
	deps    Deps
	log     *slog.Logger
	speech  *speech.Controller
	sampler *level.Sampler
	journal *journalQueue

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	shut   atomic.Bool

	dispatchMu sync.Mutex

	mu         sync.Mutex
	pending    []func()
	index      int
	data       UserData
	gen        uint64
	inflight   bool
	creating   bool // create-user in flight; data.Name is provisional
	recording  bool
	discard    bool
	recErr     speech.ErrorKind
	transcript string
	phoneDraft string
	timer      Timer
	completed  bool
	completion *Completion
	token      string
	tokenExp   time.Time
	closed     bool
}

// New creates a controller positioned on the welcome step. Call
// [Controller.Begin] to announce the first step.
func New(cfg Config, deps Deps) (*Controller, error) {
	if deps.Backend == nil {
		return nil, ErrNoBackend
	}
	if cfg.Locale == "" {
		cfg.Locale = "pt-BR"
	}
	if cfg.SuccessDelay <= 0 {
		cfg.SuccessDelay = DefaultSuccessDelay
	}
	if cfg.XPAward <= 0 {
		cfg.XPAward = DefaultXPAward
	}
	if cfg.CompleteRoute == "" {
		cfg.CompleteRoute = DefaultCompleteRoute
	}
	if cfg.VoiceMarker == "" {
		cfg.VoiceMarker = DefaultVoiceMarker
	}
	if deps.Listener == nil {
		deps.Listener = NopListener{}
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Multi(nil)
	}
	if deps.AfterFunc == nil {
		deps.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:    cfg,
		deps:   deps,
		log:    deps.Logger,
		ctx:    ctx,
		cancel: cancel,
	}
	if deps.Journal != nil {
		c.journal = newJournalQueue(deps.Journal, c.log)
	}

	c.speech = speech.New(deps.STT, deps.Source, speech.Config{
		Locale:          cfg.Locale,
		NoSpeechTimeout: cfg.NoSpeechTimeout,
	}, speech.Callbacks{
		OnResult: c.onResult,
		OnEnd:    c.onEnd,
		OnError:  c.onError,
	})

	opts := []level.Option{level.WithFFTSize(cfg.FFTSize)}
	if deps.Scheduler != nil {
		opts = append(opts, level.WithScheduler(deps.Scheduler))
	}
	c.sampler = level.New(deps.Source, c.onLevel, opts...)
	return c, nil
}

// lock acquires the state mutex.
func (c *Controller) lock() { c.mu.Lock() }

// unlock releases the state mutex and delivers the events queued while it
// was held, in order.
func (c *Controller) unlock() {
	queued := c.pending
	c.pending = nil
	c.dispatchMu.Lock()
	c.mu.Unlock()
	defer c.dispatchMu.Unlock()
	for _, f := range queued {
		f()
	}
}

func (c *Controller) emit(f func()) { c.pending = append(c.pending, f) }

func (c *Controller) stale(gen uint64) bool { return c.closed || gen != c.gen }

// Begin announces the current step: listeners receive a snapshot and the
// narrator speaks its prompt.
func (c *Controller) Begin() {
	c.lock()
	defer c.unlock()
	if c.closed {
		return
	}
	c.announce(StepID(""))
}

// Step returns the current step.
func (c *Controller) Step() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return steps[c.index]
}

// Data returns a copy of the collected user data.
func (c *Controller) Data() UserData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}

// Snapshot returns a consistent copy of the state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Step:       steps[c.index],
		Index:      c.index,
		Total:      len(steps),
		Data:       c.data,
		Recording:  c.recording,
		Busy:       c.inflight,
		Transcript: c.transcript,
		PhoneDraft: c.phoneDraft,
		Completed:  c.completed,
	}
}

// ─── Recording ───────────────────────────────────────────────────────────────

// StartRecording begins a recording on a voice step. It is a no-op while a
// recording is already active.
func (c *Controller) StartRecording() error {
	c.lock()
	defer c.unlock()
	if c.closed {
		return ErrClosed
	}
	if !steps[c.index].Voice() {
		return ErrWrongStep
	}
	if c.inflight {
		return ErrBusy
	}
	if c.recording {
		return nil
	}
	if c.deps.STT == nil {
		c.fire(OnRecognitionError, speech.ErrUnsupportedPlatform)
		return nil
	}

	c.recording = true
	c.discard = false
	c.recErr = ""
	c.transcript = ""
	if n := c.deps.Narrator; n != nil {
		c.emit(n.Cancel)
	}
	c.speech.Start(c.ctx)
	if err := c.sampler.Start(c.ctx); err != nil {
		c.log.Debug("onboarding: volume meter unavailable", "err", err)
	}
	l := c.deps.Listener
	c.emit(func() { l.RecordingChanged(true) })
	return nil
}

// StopRecording asks the recognizer to finish. The transcript is processed
// when recognition ends.
func (c *Controller) StopRecording() {
	c.lock()
	defer c.unlock()
	if c.closed || !c.recording {
		return
	}
	c.speech.Stop()
	c.sampler.Stop()
}

// abortRecording discards the active recording, if any. Every path that
// leaves a recording behind (cancel, step change, typed answer, teardown)
// ends here.
func (c *Controller) abortRecording() {
	c.sampler.Stop()
	if !c.recording {
		return
	}
	c.discard = true
	c.speech.Abort()
}

func (c *Controller) onLevel(v uint8) {
	if c.shut.Load() {
		return
	}
	c.deps.Listener.Volume(v)
}

func (c *Controller) onResult(text string, final bool) {
	c.lock()
	defer c.unlock()
	if c.closed || !c.recording || c.discard {
		return
	}
	c.transcript = text
	l := c.deps.Listener
	c.emit(func() { l.Transcript(text, final) })
}

func (c *Controller) onError(kind speech.ErrorKind) {
	c.lock()
	defer c.unlock()
	if c.closed || !c.recording || c.discard {
		return
	}
	c.recErr = kind
}

func (c *Controller) onEnd(text string) {
	c.lock()
	defer c.unlock()
	if c.closed || !c.recording {
		return
	}
	c.recording = false
	c.sampler.Stop()
	l := c.deps.Listener
	c.emit(func() { l.RecordingChanged(false) })

	if c.discard {
		c.discard = false
		c.recErr = ""
		return
	}
	if kind := c.recErr; kind != "" {
		c.recErr = ""
		c.fire(OnRecognitionError, kind)
		return
	}
	c.record(journal.KindTranscript, map[string]string{"text": text})
	c.answer(text)
}

// answer interprets text on the current voice step.
func (c *Controller) answer(text string) {
	text = strings.TrimSpace(text)
	c.transcript = text
	switch steps[c.index].ID {
	case StepWelcome:
		name, ok := interpret.ExtractName(text)
		if !ok {
			c.fire(OnEmptyRecording, nil)
			return
		}
		c.fire(OnNameHeard, nameHeard{transcript: text, name: name})
	case StepConfirmation:
		if text == "" {
			c.fire(OnEmptyRecording, nil)
			return
		}
		switch interpret.ClassifyConfirmation(text) {
		case interpret.Affirmative:
			c.fire(OnAffirmative, nil)
		case interpret.Negative:
			c.fire(OnNegative, nil)
		default:
			c.fire(OnAmbiguous, nil)
		}
	}
}

type nameHeard struct {
	transcript string
	name       string
}

// ─── Typed input ─────────────────────────────────────────────────────────────

// SubmitText answers the current voice step with typed text, exactly as if
// it had been recognised. An active recording is discarded.
func (c *Controller) SubmitText(text string) error {
	c.lock()
	defer c.unlock()
	return c.submitTextLocked(text, "")
}

// Confirm answers the confirmation step with typed text.
func (c *Controller) Confirm(text string) error {
	c.lock()
	defer c.unlock()
	return c.submitTextLocked(text, StepConfirmation)
}

// submitTextLocked answers the current step with text. A non-empty only
// restricts the answer to that step.
func (c *Controller) submitTextLocked(text string, only StepID) error {
	if c.closed {
		return ErrClosed
	}
	if only != "" && steps[c.index].ID != only {
		return ErrWrongStep
	}
	if !steps[c.index].Voice() {
		return ErrWrongStep
	}
	if c.inflight {
		return ErrBusy
	}
	c.abortRecording()
	c.answer(text)
	return nil
}

// PhoneInput formats raw as the user types and returns the display value.
func (c *Controller) PhoneInput(raw string) string {
	formatted := interpret.FormatPhoneAsTyped(raw)
	c.lock()
	defer c.unlock()
	if c.closed || steps[c.index].ID != StepPhone {
		return formatted
	}
	c.phoneDraft = formatted
	l := c.deps.Listener
	c.emit(func() { l.Validation("") })
	return formatted
}

// SubmitPhone validates raw and advances to confirmation when it is a
// complete number.
func (c *Controller) SubmitPhone(raw string) (interpret.PhoneValidation, error) {
	c.lock()
	defer c.unlock()
	if c.closed {
		return interpret.PhoneValidation{}, ErrClosed
	}
	if steps[c.index].ID != StepPhone {
		return interpret.PhoneValidation{}, ErrWrongStep
	}
	formatted := interpret.FormatPhoneAsTyped(raw)
	c.phoneDraft = formatted
	v := interpret.ValidatePhone(formatted)
	if !v.Valid {
		c.fire(OnPhoneInvalid, v)
		return v, nil
	}
	c.data.Phone = formatted
	c.fire(OnPhoneValid, nil)
	return v, nil
}

// ─── Navigation ──────────────────────────────────────────────────────────────

// Cancel aborts any recording and pending request and goes back one step
// (staying on welcome).
func (c *Controller) Cancel() {
	c.lock()
	defer c.unlock()
	if c.closed {
		return
	}
	c.fire(OnCancel, nil)
}

// Retreat goes back one step.
func (c *Controller) Retreat() {
	c.lock()
	defer c.unlock()
	if c.closed {
		return
	}
	c.goTo(max(c.index-1, 0))
}

// Advance moves forward one step without running the step's guard.
func (c *Controller) Advance() error {
	c.lock()
	defer c.unlock()
	if c.closed {
		return ErrClosed
	}
	if c.index >= len(steps)-1 {
		return ErrWrongStep
	}
	c.goTo(c.index + 1)
	return nil
}

// JumpTo moves directly to id.
func (c *Controller) JumpTo(id StepID) error {
	i := indexOf(id)
	if i < 0 {
		return ErrUnknownStep
	}
	c.lock()
	defer c.unlock()
	if c.closed {
		return ErrClosed
	}
	c.goTo(i)
	return nil
}

// Reset clears all data and returns to welcome.
func (c *Controller) Reset() {
	c.lock()
	defer c.unlock()
	if c.closed {
		return
	}
	c.data = UserData{}
	c.phoneDraft = ""
	c.token, c.tokenExp = "", time.Time{}
	c.goTo(0)
	l, d := c.deps.Listener, c.data
	c.emit(func() { l.UserUpdated(d) })
}

// Close tears the controller down: the recording is aborted, narration is
// cancelled, pending requests are cancelled and the success timer stopped.
// Close waits for background work and is safe to call more than once.
func (c *Controller) Close() {
	c.lock()
	if c.closed {
		c.unlock()
		return
	}
	c.closed = true
	c.shut.Store(true)
	c.gen++
	c.speech.Close()
	c.sampler.Stop()
	c.recording = false
	c.stopTimer()
	c.cancel()
	if n := c.deps.Narrator; n != nil {
		c.emit(n.Close)
	}
	c.unlock()

	c.wg.Wait()
	c.speech.Wait()
	if c.journal != nil {
		c.journal.close()
	}
}

// ─── Transitions ─────────────────────────────────────────────────────────────

// fire looks up the transition for trigger on the current step and applies
// it. The caller must hold c.mu.
func (c *Controller) fire(on Trigger, arg any) {
	cur := steps[c.index].ID
	t, ok := Lookup(cur, on)
	if !ok {
		c.log.Debug("onboarding: trigger ignored", "step", cur, "trigger", on)
		return
	}
	c.apply(t.Effect, arg)
	switch t.To {
	case stay:
	case back:
		c.goTo(max(c.index-1, 0))
	default:
		c.goTo(indexOf(t.To))
	}
}

func (c *Controller) apply(e Effect, arg any) {
	switch e {
	case EffectCreateUser:
		c.createUser(arg.(nameHeard))
	case EffectNotifyNoAudio:
		c.notify(notify.NoAudio())
	case EffectNotifyRecognitionError:
		kind := arg.(speech.ErrorKind)
		msg := kind.Message()
		c.notify(notify.Recognition(msg.Title, msg.Text))
		c.record(journal.KindError, map[string]string{"kind": string(kind)})
		if m := c.deps.Metrics; m != nil {
			c.emit(func() { m.RecognitionError(kind) })
		}
	case EffectNotifyCreateFailed:
		c.data.Name = ""
		c.notify(notify.CreateUserFailed())
	case EffectShowValidation:
		msg := arg.(interpret.PhoneValidation).Message()
		l := c.deps.Listener
		c.emit(func() { l.Validation(msg) })
	case EffectConfirm:
		c.confirm()
	case EffectStartOver:
		c.clearIdentity()
		c.notify(notify.StartOver())
	case EffectNotifyNotUnderstood:
		c.notify(notify.NotUnderstood())
	case EffectNotifyAuthFailed:
		c.clearIdentity()
		reason, _ := arg.(string)
		c.notify(notify.AuthFailed(reason))
	case EffectAbortRecording:
		c.abortRecording()
	case EffectComplete:
		c.complete()
	}
}

func (c *Controller) clearIdentity() {
	c.data.Name = ""
	c.data.Phone = ""
	c.phoneDraft = ""
	l, d := c.deps.Listener, c.data
	c.emit(func() { l.UserUpdated(d) })
}

// goTo enters step i. Entering a step always starts a new generation, so
// responses to requests made on the previous entry are dropped.
func (c *Controller) goTo(i int) {
	from := steps[c.index].ID
	c.abortRecording()
	c.stopTimer()
	if c.creating {
		// The name was only provisional until create-user answered.
		c.creating = false
		c.data.Name = ""
		l, d := c.deps.Listener, c.data
		c.emit(func() { l.UserUpdated(d) })
	}
	c.index = i
	c.gen++
	c.inflight = false
	c.transcript = ""
	c.completed = false
	l := c.deps.Listener
	c.emit(func() { l.Validation("") })
	c.announce(from)

	if steps[i].ID == StepSuccess {
		gen := c.gen
		c.timer = c.deps.AfterFunc(c.cfg.SuccessDelay, func() { c.onDelay(gen) })
	}
}

// announce publishes the current step and speaks its prompt.
func (c *Controller) announce(from StepID) {
	step := steps[c.index]
	snap := c.snapshotLocked()
	l := c.deps.Listener
	c.emit(func() { l.StepChanged(snap) })
	if n := c.deps.Narrator; n != nil {
		vars := narrate.Vars{Name: c.data.Name, Phone: c.data.Phone}
		c.emit(func() { n.Speak(string(step.ID), step.VoicePrompt, vars) })
	}
	if m := c.deps.Metrics; m != nil {
		c.emit(func() { m.StepEntered(from, step.ID) })
	}
	c.record(journal.KindStep, map[string]string{"from": string(from), "to": string(step.ID)})
	c.log.Debug("onboarding: step entered", "from", from, "to", step.ID)
}

func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) notify(n notify.Notification) {
	s := c.deps.Notifier
	c.emit(func() { s.Notify(n) })
	c.record(journal.KindNotification, n)
}

func (c *Controller) record(kind journal.Kind, payload any) {
	if c.journal != nil {
		c.journal.push(kind, string(steps[c.index].ID), payload)
	}
}

func (c *Controller) notifyAchievements(list []backend.Achievement) {
	for _, a := range list {
		c.notify(notify.ForAchievement(a.ID))
	}
}

// ─── Remote calls ────────────────────────────────────────────────────────────

// spawn runs fn on a tracked goroutine with the controller's lifetime
// context. The caller must hold c.mu.
func (c *Controller) spawn(fn func(ctx context.Context)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(c.ctx)
	}()
}

func (c *Controller) createUser(h nameHeard) {
	c.data.Name = h.name
	c.inflight = true
	c.creating = true
	gen := c.gen
	be := c.deps.Backend
	c.spawn(func(ctx context.Context) {
		u, err := be.CreateUser(ctx, h.transcript)

		c.lock()
		defer c.unlock()
		if c.stale(gen) {
			c.log.Debug("onboarding: dropping stale create-user response")
			return
		}
		c.inflight = false
		c.creating = false
		if err != nil {
			c.log.Warn("onboarding: create user failed", "err", err)
			c.fire(OnCreateFailed, err)
			return
		}
		c.data.ID = u.ID
		if u.Name != "" {
			c.data.Name = u.Name
		}
		c.data.Level = u.Level
		l, d := c.deps.Listener, c.data
		c.emit(func() { l.UserUpdated(d) })
		c.notify(notify.Welcome(c.data.Name))
		c.notifyAchievements(u.Achievements)
		c.fire(OnUserCreated, nil)
	})
}

// confirm awards XP (failures are only logged) and then authenticates.
func (c *Controller) confirm() {
	c.inflight = true
	gen := c.gen
	data := c.data
	be := c.deps.Backend
	xp := c.cfg.XPAward
	marker := c.cfg.VoiceMarker
	phone, err := interpret.PhoneE164(data.Phone, phoneRegion)
	if err != nil {
		phone = interpret.PhoneDigits(data.Phone)
	}

	c.spawn(func(ctx context.Context) {
		res, err := be.UpdateXP(ctx, data.ID, xp, phone)
		c.lock()
		if c.stale(gen) {
			c.unlock()
			return
		}
		if err != nil {
			c.log.Warn("onboarding: update xp failed", "user", data.ID, "err", err)
		} else {
			if res.Level != nil {
				c.data.Level = res.Level
				l, d := c.deps.Listener, c.data
				c.emit(func() { l.UserUpdated(d) })
			}
			c.notifyAchievements(res.Achievements)
		}
		c.unlock()

		auth, err := be.Authenticate(ctx, data.Name, data.Phone, marker)

		c.lock()
		defer c.unlock()
		if c.stale(gen) {
			c.log.Debug("onboarding: dropping stale authenticate response")
			return
		}
		c.inflight = false
		if err != nil {
			c.log.Warn("onboarding: authenticate failed", "err", err)
			var reason string
			if auth != nil && errors.Is(err, backend.ErrAuthRejected) {
				reason = auth.Error
			}
			c.fire(OnAuthFailed, reason)
			return
		}
		if t := c.deps.Tokens; t != nil && c.data.ID != "" {
			tok, exp, err := t.Issue(c.data.ID, c.data.Name, c.data.Phone)
			if err != nil {
				c.log.Warn("onboarding: issue session token", "err", err)
			} else {
				c.token, c.tokenExp = tok, exp
			}
		}
		c.fire(OnAuthenticated, nil)
	})
}

// ─── Completion ──────────────────────────────────────────────────────────────

func (c *Controller) onDelay(gen uint64) {
	c.lock()
	if c.stale(gen) || c.completed {
		c.unlock()
		return
	}
	c.timer = nil
	c.fire(OnDelayElapsed, nil)
	comp := c.completion
	c.completion = nil
	c.unlock()

	if comp == nil {
		return
	}
	if c.deps.OnComplete != nil {
		c.deps.OnComplete(*comp)
		return
	}
	c.deps.Listener.Navigate(comp.Route)
}

func (c *Controller) complete() {
	c.completed = true
	c.completion = &Completion{
		User:      c.data,
		Token:     c.token,
		ExpiresAt: c.tokenExp,
		Route:     c.cfg.CompleteRoute,
	}
	c.record(journal.KindCompletion, c.completion.User)
	if m := c.deps.Metrics; m != nil {
		c.emit(m.Completed)
	}
}
