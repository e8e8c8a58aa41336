package onboarding

import (
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/papo/internal/backend"
	"github.com/MrWong99/papo/internal/journal"
	"github.com/MrWong99/papo/internal/notify"
	"github.com/MrWong99/papo/internal/speech"
	"github.com/MrWong99/papo/pkg/audio"
	"github.com/MrWong99/papo/pkg/provider/stt"
)

func TestNew_RequiresBackend(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}, Deps{}); !errors.Is(err, ErrNoBackend) {
		t.Fatalf("err = %v, want ErrNoBackend", err)
	}
}

func TestBegin_AnnouncesWelcome(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	if got := h.l.stepHistory(); len(got) != 1 || got[0] != StepWelcome {
		t.Errorf("steps = %v", got)
	}
	if got := h.narr.lastSpoken(); !strings.HasPrefix(got, "welcome: Olá!") {
		t.Errorf("spoken = %q", got)
	}
	snap := h.c.Snapshot()
	if snap.Index != 0 || snap.Total != 4 || snap.Step.Placeholder == "" {
		t.Errorf("snapshot = %+v", snap)
	}
}

// Scenario 1: a spoken name creates the user and advances to phone.
func TestScenario_NameCreatesUser(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.be.User = &backend.User{ID: "u1", Name: "Maria"}

	h.say(t, "Olá, me chamo Maria")
	h.waitStep(t, StepPhone)

	create, _, _ := h.be.Counts()
	if create != 1 || h.be.CreateUserCalls[0].Transcript != "Olá, me chamo Maria" {
		t.Fatalf("create-user calls = %+v", h.be.CreateUserCalls)
	}
	d := h.c.Data()
	if d.Name != "Maria" || d.ID != "u1" {
		t.Errorf("data = %+v", d)
	}
	if got := h.narr.lastSpoken(); !strings.Contains(got, "Maria") {
		t.Errorf("phone prompt not personalised: %q", got)
	}
	if h.notes.Count(notify.Success) != 1 {
		t.Errorf("welcome notification missing: %+v", h.notes.All())
	}
}

// Scenario 2: typing a phone formats it and submitting advances.
func TestScenario_PhoneEntry(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.say(t, "Meu nome é Ana")
	h.waitStep(t, StepPhone)

	if got := h.c.PhoneInput("11999999999"); got != "(11) 99999-9999" {
		t.Fatalf("PhoneInput = %q", got)
	}
	if got := h.c.Snapshot().PhoneDraft; got != "(11) 99999-9999" {
		t.Errorf("draft = %q", got)
	}
	v, err := h.c.SubmitPhone("(11) 99999-9999")
	if err != nil || !v.Valid {
		t.Fatalf("SubmitPhone = %+v, %v", v, err)
	}
	if h.c.Step().ID != StepConfirmation {
		t.Fatalf("step = %s", h.c.Step().ID)
	}
	if got := h.c.Data().Phone; got != "(11) 99999-9999" {
		t.Errorf("phone = %q", got)
	}
	if got := h.narr.lastSpoken(); !strings.Contains(got, "Ana") || !strings.Contains(got, "(11) 99999-9999") {
		t.Errorf("confirmation prompt = %q", got)
	}
}

func TestSubmitPhone_Invalid(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.say(t, "Sou Bia")
	h.waitStep(t, StepPhone)

	for _, raw := range []string{"", "1199999"} {
		v, err := h.c.SubmitPhone(raw)
		if err != nil || v.Valid {
			t.Fatalf("SubmitPhone(%q) = %+v, %v", raw, v, err)
		}
		if h.c.Step().ID != StepPhone {
			t.Fatal("left phone step on invalid input")
		}
		if h.l.lastValidation() != v.Message() || v.Message() == "" {
			t.Errorf("validation = %q, want %q", h.l.lastValidation(), v.Message())
		}
	}
	if h.notes.Count(notify.Error) != 0 {
		t.Error("validation errors must not be toasts")
	}
}

// Scenario 3: "Sim" awards XP, authenticates, shows success and completes
// once after the delay.
func TestScenario_ConfirmAndComplete(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.be.User = &backend.User{ID: "u1", Name: "Maria"}
	h.toConfirmation(t)

	h.say(t, "Sim")
	h.waitStep(t, StepSuccess)

	xp, ok := h.be.LastUpdateXP()
	if !ok || xp.UserID != "u1" || xp.XP != DefaultXPAward || xp.Phone != "+5511999999999" {
		t.Errorf("update-xp = %+v", xp)
	}
	auth, ok := h.be.LastAuthenticate()
	if !ok || auth.Name != "Maria" || auth.Phone != "(11) 99999-9999" || auth.VoiceMarker != DefaultVoiceMarker {
		t.Errorf("authenticate = %+v", auth)
	}

	timer := h.timers.last()
	if timer == nil || timer.d != DefaultSuccessDelay {
		t.Fatalf("success timer = %+v", timer)
	}
	if len(h.complete.list()) != 0 {
		t.Fatal("completed before the delay")
	}
	if n := h.timers.fire(); n != 1 {
		t.Fatalf("fired %d timers", n)
	}
	h.timers.fire()

	got := h.complete.list()
	if len(got) != 1 {
		t.Fatalf("completions = %d, want 1", len(got))
	}
	if got[0].User.ID != "u1" || got[0].Token != "token-u1-Maria" || got[0].Route != DefaultCompleteRoute {
		t.Errorf("completion = %+v", got[0])
	}
	if len(h.l.navigated()) != 0 {
		t.Error("navigate fired although OnComplete is set")
	}
	if !h.c.Snapshot().Completed {
		t.Error("snapshot not completed")
	}
	h.metrics.mu.Lock()
	if h.metrics.completed != 1 {
		t.Errorf("completed metric = %d", h.metrics.completed)
	}
	h.metrics.mu.Unlock()
}

func TestComplete_NavigatesWithoutHost(t *testing.T) {
	t.Parallel()
	h := newHarness(t, withoutOnComplete())
	h.toConfirmation(t)
	if err := h.c.Confirm("sim, está correto"); err != nil {
		t.Fatal(err)
	}
	h.waitStep(t, StepSuccess)
	h.timers.fire()
	h.timers.fire()
	if got := h.l.navigated(); len(got) != 1 || got[0] != "/dashboard" {
		t.Errorf("navigations = %v", got)
	}
}

// Scenario 4: "Não, está errado" clears the data and starts over.
func TestScenario_NegativeStartsOver(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.toConfirmation(t)

	h.say(t, "Não, está errado")
	h.waitStep(t, StepWelcome)

	d := h.c.Data()
	if d.Name != "" || d.Phone != "" {
		t.Errorf("data not cleared: %+v", d)
	}
	if h.notes.Count(notify.Info) != 1 {
		t.Errorf("notifications = %+v", h.notes.All())
	}
	if _, xp, auth := h.be.Counts(); xp != 0 || auth != 0 {
		t.Errorf("xp=%d auth=%d calls after a negative answer", xp, auth)
	}
}

func TestConfirm_Ambiguous(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.toConfirmation(t)

	if err := h.c.Confirm("Talvez, não sei"); err != nil {
		t.Fatal(err)
	}
	if h.c.Step().ID != StepConfirmation {
		t.Errorf("step = %s", h.c.Step().ID)
	}
	last, _ := h.notes.Last()
	if last.Title != notify.NotUnderstood().Title {
		t.Errorf("notification = %+v", last)
	}
}

func TestConfirm_WrongStep(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	if err := h.c.Confirm("sim"); !errors.Is(err, ErrWrongStep) {
		t.Errorf("err = %v", err)
	}
	if _, err := h.c.SubmitPhone("11999999999"); !errors.Is(err, ErrWrongStep) {
		t.Errorf("err = %v", err)
	}
}

func TestWelcome_EmptyRecording(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.say(t, "")

	if h.c.Step().ID != StepWelcome {
		t.Errorf("step = %s", h.c.Step().ID)
	}
	last, _ := h.notes.Last()
	if last.Type != notify.Warning || last.Title != notify.NoAudio().Title {
		t.Errorf("notification = %+v", last)
	}
	if create, _, _ := h.be.Counts(); create != 0 {
		t.Error("create-user called for an empty recording")
	}
}

func TestRecognitionErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		kind speech.ErrorKind
	}{
		{"network", stt.ErrNetwork, speech.ErrNetwork},
		{"no speech", stt.ErrNoSpeech, speech.ErrNoSpeech},
		{"service", stt.ErrServiceUnavailable, speech.ErrServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			s := h.startRecording(t)
			s.End(tt.err)
			waitFor(t, "recording end", func() bool { return !h.c.Snapshot().Recording })

			last, ok := h.notes.Last()
			if !ok || last.Type != notify.Error || last.Title != tt.kind.Message().Title {
				t.Errorf("notification = %+v", last)
			}
			if h.c.Step().ID != StepWelcome {
				t.Errorf("step = %s", h.c.Step().ID)
			}
			h.metrics.mu.Lock()
			defer h.metrics.mu.Unlock()
			if len(h.metrics.errs) != 1 || h.metrics.errs[0] != tt.kind {
				t.Errorf("error metrics = %v", h.metrics.errs)
			}
		})
	}
}

func TestPermissionDenied(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.src.OpenError = audio.ErrPermissionDenied

	if err := h.c.StartRecording(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "error toast", func() bool { return h.notes.Count(notify.Error) == 1 })
	waitFor(t, "recording end", func() bool { return !h.c.Snapshot().Recording })
	last, _ := h.notes.Last()
	if last.Title != speech.ErrPermissionDenied.Message().Title {
		t.Errorf("notification = %+v", last)
	}
	if h.stt.CallCount() != 0 {
		t.Error("recognizer started without a microphone")
	}
}

func TestUnsupportedPlatform(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(d *Deps, _ *Config) { d.STT = nil })

	if err := h.c.StartRecording(); err != nil {
		t.Fatal(err)
	}
	if h.c.Snapshot().Recording {
		t.Error("recording without a recognizer")
	}
	last, _ := h.notes.Last()
	if last.Title != speech.ErrUnsupportedPlatform.Message().Title {
		t.Errorf("notification = %+v", last)
	}
	// The typed fallback still works.
	if err := h.c.SubmitText("me chamo Caio"); err != nil {
		t.Fatal(err)
	}
	h.waitStep(t, StepPhone)
}

func TestCreateUserFails(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.be.CreateUserErr = errors.New("boom")

	h.say(t, "Me chamo Rui")
	waitFor(t, "error toast", func() bool { return h.notes.Count(notify.Error) == 1 })

	if h.c.Step().ID != StepWelcome {
		t.Errorf("step = %s", h.c.Step().ID)
	}
	if d := h.c.Data(); d.Name != "" {
		t.Errorf("name kept after failure: %+v", d)
	}
	if h.c.Snapshot().Busy {
		t.Error("still busy after failure")
	}
}

func TestCreateUser_FireOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.be.Gate = make(chan struct{})

	h.say(t, "Me chamo Lia")
	waitFor(t, "request", func() bool { c, _, _ := h.be.Counts(); return c == 1 })

	if err := h.c.StartRecording(); !errors.Is(err, ErrBusy) {
		t.Errorf("StartRecording while in flight: %v", err)
	}
	if err := h.c.SubmitText("me chamo Lia"); !errors.Is(err, ErrBusy) {
		t.Errorf("SubmitText while in flight: %v", err)
	}
	if !h.c.Snapshot().Busy {
		t.Error("snapshot not busy")
	}

	h.be.Release()
	h.waitStep(t, StepPhone)
	if c, _, _ := h.be.Counts(); c != 1 {
		t.Errorf("create-user calls = %d", c)
	}
}

func TestCancel_DropsStaleResponse(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.be.Gate = make(chan struct{})

	h.say(t, "Me chamo Lia")
	waitFor(t, "request", func() bool { c, _, _ := h.be.Counts(); return c == 1 })
	h.c.Cancel()
	h.be.Release()

	// Give the late response a chance to be applied (it must not be).
	waitFor(t, "not busy", func() bool { return !h.c.Snapshot().Busy })
	h.c.Close()
	if h.c.Step().ID != StepWelcome || h.c.Data().ID != "" {
		t.Errorf("stale response applied: step=%s data=%+v", h.c.Step().ID, h.c.Data())
	}
}

func TestCancel_ClearsProvisionalName(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.be.Gate = make(chan struct{})
	defer h.be.Release()

	h.say(t, "Me chamo Lia")
	waitFor(t, "request", func() bool { c, _, _ := h.be.Counts(); return c == 1 })
	if h.c.Data().Name != "Lia" {
		t.Fatalf("name while creating = %q, want Lia", h.c.Data().Name)
	}

	h.c.Cancel()
	h.settle()
	if snap := h.c.Snapshot(); snap.Data.Name != "" || snap.Busy {
		t.Errorf("snapshot after cancel = %+v, want no name and not busy", snap)
	}
}

func TestAuthFails(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.be.AuthErr = backend.ErrAuthRejected
	h.toConfirmation(t)

	h.say(t, "sim")
	h.waitStep(t, StepWelcome)

	if _, xp, auth := h.be.Counts(); xp != 1 || auth != 1 {
		t.Errorf("xp=%d auth=%d", xp, auth)
	}
	last, _ := h.notes.Last()
	if last != notify.AuthFailed("") {
		t.Errorf("notification = %+v, want the generic auth failure", last)
	}
	if h.timers.last() != nil {
		t.Error("success timer scheduled after auth failure")
	}
}

func TestAuthRejected_ShowsBackendReason(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.be.AuthReason = "Telefone já cadastrado"
	h.toConfirmation(t)

	h.say(t, "sim")
	h.waitStep(t, StepWelcome)

	last, _ := h.notes.Last()
	if last.Title != "Erro de autenticação" || last.Description != "Telefone já cadastrado" {
		t.Errorf("notification = %+v", last)
	}
	if d := h.c.Data(); d.Name != "" || d.Phone != "" {
		t.Errorf("identity not cleared: %+v", d)
	}
}

func TestConfirm_AfterAuthFailureIsNotAName(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.be.AuthReason = "recusado"
	h.toConfirmation(t)
	created, _, _ := h.be.Counts()

	h.say(t, "sim")
	h.waitStep(t, StepWelcome)

	if err := h.c.Confirm("sim"); !errors.Is(err, ErrWrongStep) {
		t.Fatalf("Confirm on welcome = %v, want ErrWrongStep", err)
	}
	if c, _, _ := h.be.Counts(); c != created {
		t.Errorf("create-user calls = %d, want %d", c, created)
	}
	if h.c.Data().Name != "" {
		t.Errorf("name = %q, want empty", h.c.Data().Name)
	}
}

func TestUpdateXPFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.be.UpdateXPErr = errors.New("xp down")
	h.toConfirmation(t)

	h.say(t, "isso mesmo")
	h.waitStep(t, StepSuccess)
	if h.notes.Count(notify.Error) != 0 {
		t.Errorf("update-xp failure surfaced: %+v", h.notes.All())
	}
}

func TestAchievementNotifications(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.be.XPResult = &backend.XPResult{
		Level:        &backend.Level{Level: 2, XP: 50, NextLevelXP: 100},
		Achievements: []backend.Achievement{{ID: "level_2"}, {ID: "primeiro_cadastro"}},
	}
	h.toConfirmation(t)
	h.say(t, "sim")
	h.waitStep(t, StepSuccess)

	var icons []string
	for _, n := range h.notes.All() {
		if n.Icon != "" {
			icons = append(icons, n.Icon)
		}
	}
	joined := strings.Join(icons, "")
	if !strings.Contains(joined, "🎉") || !strings.Contains(joined, "🏆") {
		t.Errorf("icons = %v", icons)
	}
	if lvl := h.c.Data().Level; lvl == nil || lvl.Level != 2 {
		t.Errorf("level = %+v", lvl)
	}
}

func TestStartRecording_Twice(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	s := h.startRecording(t)
	if err := h.c.StartRecording(); err != nil {
		t.Fatal(err)
	}
	if h.stt.CallCount() != 1 {
		t.Errorf("recognizers = %d, want 1", h.stt.CallCount())
	}
	// One stream for the recognizer and one for the volume meter.
	waitFor(t, "streams", func() bool { return h.src.OpenStreams() == 2 })
	if h.src.CallCountOpen != 2 {
		t.Errorf("streams opened = %d, want 2", h.src.CallCountOpen)
	}

	s.Emit(stt.Transcript{Text: "Sou Leo", IsFinal: true})
	waitFor(t, "streams released", func() bool { return h.src.OpenStreams() == 0 })
}

func TestStartRecording_WrongStep(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	if err := h.c.JumpTo(StepPhone); err != nil {
		t.Fatal(err)
	}
	if err := h.c.StartRecording(); !errors.Is(err, ErrWrongStep) {
		t.Errorf("err = %v", err)
	}
	if err := h.c.JumpTo("nope"); !errors.Is(err, ErrUnknownStep) {
		t.Errorf("err = %v", err)
	}
}

func TestStopRecording_ProcessesTranscript(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.be.User = &backend.User{ID: "u9", Name: "Téo"}
	s := h.startRecording(t)
	s.EndOnFinish = false
	s.Emit(stt.Transcript{Text: "meu nome é téo"})
	waitFor(t, "interim", func() bool { return h.c.Snapshot().Transcript == "meu nome é téo" })

	h.c.StopRecording()
	waitFor(t, "finish", func() bool { f, _ := s.Counts(); return f >= 1 })
	s.End(nil)
	h.waitStep(t, StepPhone)
}

func TestCancel_DuringRecording(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.toConfirmation(t)

	s := h.startRecording(t)
	h.c.Cancel()
	waitFor(t, "recognizer closed", s.Ended)
	waitFor(t, "recording end", func() bool { return !h.c.Snapshot().Recording })
	waitFor(t, "streams released", func() bool { return h.src.OpenStreams() == 0 })

	if h.c.Step().ID != StepPhone {
		t.Errorf("step = %s, want phone", h.c.Step().ID)
	}
	if h.notes.Count(notify.Error) != 0 {
		t.Errorf("user abort surfaced as error: %+v", h.notes.All())
	}
}

func TestCancel_FromWelcomeStays(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.c.Cancel()
	if h.c.Step().ID != StepWelcome {
		t.Errorf("step = %s", h.c.Step().ID)
	}
}

func TestCancel_OnSuccessStopsCompletion(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.toConfirmation(t)
	h.say(t, "sim")
	h.waitStep(t, StepSuccess)

	h.c.Cancel()
	if h.c.Step().ID != StepConfirmation {
		t.Errorf("step = %s", h.c.Step().ID)
	}
	if n := h.timers.fire(); n != 0 {
		t.Errorf("%d timers still armed", n)
	}
	if len(h.complete.list()) != 0 {
		t.Error("completed after cancel")
	}
}

func TestAdvanceRetreatReset(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	for range 3 {
		if err := h.c.Advance(); err != nil {
			t.Fatal(err)
		}
	}
	if err := h.c.Advance(); !errors.Is(err, ErrWrongStep) {
		t.Errorf("Advance past the end: %v", err)
	}
	h.c.Retreat()
	if h.c.Step().ID != StepConfirmation {
		t.Errorf("step = %s", h.c.Step().ID)
	}
	h.c.Reset()
	if h.c.Step().ID != StepWelcome || h.c.Data() != (UserData{}) {
		t.Errorf("after reset: %s %+v", h.c.Step().ID, h.c.Data())
	}
	want := []StepID{StepWelcome, StepPhone, StepConfirmation, StepSuccess, StepConfirmation, StepWelcome}
	got := h.l.stepHistory()
	if strings.Join(stepStrings(got), ",") != strings.Join(stepStrings(want), ",") {
		t.Errorf("history = %v, want %v", got, want)
	}
}

func stepStrings(ids []StepID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func TestClose_DuringRecording(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	s := h.startRecording(t)
	waitFor(t, "streams", func() bool { return h.src.OpenStreams() == 2 })

	h.c.Close()
	h.c.Close()

	if !s.Ended() {
		t.Error("recognizer still open after Close")
	}
	if h.src.OpenStreams() != 0 {
		t.Errorf("open streams after Close = %d", h.src.OpenStreams())
	}
	h.narr.mu.Lock()
	closes := h.narr.closes
	h.narr.mu.Unlock()
	if closes != 1 {
		t.Errorf("narrator closes = %d", closes)
	}
	before := len(h.notes.All())
	if err := h.c.StartRecording(); !errors.Is(err, ErrClosed) {
		t.Errorf("StartRecording after Close: %v", err)
	}
	h.c.Cancel()
	h.c.Reset()
	if len(h.notes.All()) != before {
		t.Error("events after Close")
	}
}

func TestJournalRecordsSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.toConfirmation(t)
	h.say(t, "sim")
	h.waitStep(t, StepSuccess)
	h.timers.fire()
	h.c.Close()

	kinds := h.journal.Kinds("test")
	seen := map[journal.Kind]int{}
	for _, k := range kinds {
		seen[k]++
	}
	if seen[journal.KindStep] < 4 || seen[journal.KindTranscript] != 2 || seen[journal.KindCompletion] != 1 {
		t.Errorf("journal kinds = %v", kinds)
	}
}
