package onboarding

// Trigger is an input to the step machine.
type Trigger string

const (
	OnNameHeard        Trigger = "name-heard"
	OnUserCreated      Trigger = "user-created"
	OnCreateFailed     Trigger = "create-failed"
	OnEmptyRecording   Trigger = "empty-recording"
	OnRecognitionError Trigger = "recognition-error"
	OnPhoneValid       Trigger = "phone-valid"
	OnPhoneInvalid     Trigger = "phone-invalid"
	OnAffirmative      Trigger = "affirmative"
	OnNegative         Trigger = "negative"
	OnAmbiguous        Trigger = "ambiguous"
	OnAuthenticated    Trigger = "authenticated"
	OnAuthFailed       Trigger = "auth-failed"
	OnCancel           Trigger = "cancel"
	OnDelayElapsed     Trigger = "delay-elapsed"
)

// Effect is the side effect applied when a transition fires.
type Effect int

const (
	EffectNone Effect = iota
	EffectCreateUser
	EffectNotifyNoAudio
	EffectNotifyRecognitionError
	EffectNotifyCreateFailed
	EffectShowValidation
	EffectConfirm
	EffectStartOver
	EffectNotifyNotUnderstood
	EffectNotifyAuthFailed
	EffectAbortRecording
	EffectComplete
)

// Target values with a special meaning.
const (
	stay StepID = ""
	back StepID = "<back>"
)

// Transition is one row of the step table. From "" matches any step.
type Transition struct {
	From   StepID
	On     Trigger
	To     StepID
	Effect Effect
}

var transitions = []Transition{
	{From: StepWelcome, On: OnNameHeard, To: stay, Effect: EffectCreateUser},
	{From: StepWelcome, On: OnUserCreated, To: StepPhone},
	{From: StepWelcome, On: OnCreateFailed, To: stay, Effect: EffectNotifyCreateFailed},
	{From: StepWelcome, On: OnEmptyRecording, To: stay, Effect: EffectNotifyNoAudio},
	{From: StepWelcome, On: OnRecognitionError, To: stay, Effect: EffectNotifyRecognitionError},

	{From: StepPhone, On: OnPhoneValid, To: StepConfirmation},
	{From: StepPhone, On: OnPhoneInvalid, To: stay, Effect: EffectShowValidation},

	{From: StepConfirmation, On: OnAffirmative, To: stay, Effect: EffectConfirm},
	{From: StepConfirmation, On: OnAuthenticated, To: StepSuccess},
	{From: StepConfirmation, On: OnNegative, To: StepWelcome, Effect: EffectStartOver},
	{From: StepConfirmation, On: OnAmbiguous, To: stay, Effect: EffectNotifyNotUnderstood},
	{From: StepConfirmation, On: OnAuthFailed, To: StepWelcome, Effect: EffectNotifyAuthFailed},
	{From: StepConfirmation, On: OnEmptyRecording, To: stay, Effect: EffectNotifyNoAudio},
	{From: StepConfirmation, On: OnRecognitionError, To: stay, Effect: EffectNotifyRecognitionError},

	{From: StepSuccess, On: OnDelayElapsed, To: stay, Effect: EffectComplete},

	{From: "", On: OnCancel, To: back, Effect: EffectAbortRecording},
}

// Lookup returns the transition for trigger on step from.
func Lookup(from StepID, on Trigger) (Transition, bool) {
	for _, t := range transitions {
		if t.On == on && (t.From == from || t.From == "") {
			return t, true
		}
	}
	return Transition{}, false
}

// Transitions returns a copy of the table.
func Transitions() []Transition {
	out := make([]Transition, len(transitions))
	copy(out, transitions)
	return out
}
