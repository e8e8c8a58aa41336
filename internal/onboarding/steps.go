package onboarding

// StepID names a wizard step.
type StepID string

const (
	StepWelcome      StepID = "welcome"
	StepPhone        StepID = "phone"
	StepConfirmation StepID = "confirmation"
	StepSuccess      StepID = "success"
)

// Input is the kind of answer a step expects.
type Input int

const (
	// InputVoice steps are answered by recording (or typing the same text).
	InputVoice Input = iota
	// InputPhone steps are answered with the phone field.
	InputPhone
	// InputNone steps only display.
	InputNone
)

// Step is the static description of one wizard step.
type Step struct {
	ID          StepID `json:"id"`
	Title       string `json:"title"`
	Instruction string `json:"instruction"`
	// VoicePrompt is spoken on entry. {name} and {phone} are substituted.
	VoicePrompt string `json:"voice_prompt"`
	Placeholder string `json:"placeholder,omitempty"`
	Input       Input  `json:"input"`
}

// Voice reports whether the step accepts a recording.
func (s Step) Voice() bool { return s.Input == InputVoice }

var steps = []Step{
	{
		ID:          StepWelcome,
		Title:       "Bem-vindo ao Papo Social!",
		Instruction: "Toque no microfone e diga seu nome.",
		VoicePrompt: "Olá! Bem-vindo ao Papo Social. Para começar, toque no microfone e diga o seu nome.",
		Placeholder: "Ex: Meu nome é Maria",
		Input:       InputVoice,
	},
	{
		ID:          StepPhone,
		Title:       "Qual é o seu telefone?",
		Instruction: "Digite seu número de celular com DDD.",
		VoicePrompt: "Prazer em conhecer você, {name}! Agora digite o seu número de celular com DDD.",
		Input:       InputPhone,
	},
	{
		ID:          StepConfirmation,
		Title:       "Confirme seus dados",
		Instruction: "Diga \"sim\" se estiver tudo certo ou \"não\" para corrigir.",
		VoicePrompt: "Vamos confirmar. Seu nome é {name} e seu telefone é {phone}. Está correto? Diga sim ou não.",
		Input:       InputVoice,
	},
	{
		ID:          StepSuccess,
		Title:       "Tudo pronto!",
		Instruction: "Sua conta foi criada. Estamos levando você para o painel.",
		VoicePrompt: "Parabéns, {name}! Seu cadastro foi concluído. Bem-vindo ao Papo Social!",
		Input:       InputNone,
	},
}

// Steps returns the ordered wizard steps.
func Steps() []Step {
	out := make([]Step, len(steps))
	copy(out, steps)
	return out
}

// StepByID looks up a step.
func StepByID(id StepID) (Step, bool) {
	i := indexOf(id)
	if i < 0 {
		return Step{}, false
	}
	return steps[i], true
}

func indexOf(id StepID) int {
	for i, s := range steps {
		if s.ID == id {
			return i
		}
	}
	return -1
}
