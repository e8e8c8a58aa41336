package notify

import (
	"strings"
	"time"
)

const defaultDuration = 5 * time.Second

// LevelPrefix marks achievement IDs that represent a level-up.
const LevelPrefix = "level_"

// NoAudio is shown when a recording ended without any transcript.
func NoAudio() Notification {
	return Notification{
		Title:       "Nenhum áudio detectado",
		Description: "Não conseguimos ouvir nada. Toque no microfone e fale novamente.",
		Type:        Warning,
		Duration:    defaultDuration,
	}
}

// NotUnderstood is shown when a confirmation could not be classified.
func NotUnderstood() Notification {
	return Notification{
		Title:       "Não entendi",
		Description: "Responda \"sim\" para confirmar ou \"não\" para corrigir seus dados.",
		Type:        Warning,
		Duration:    defaultDuration,
	}
}

// Recognition wraps a mapped recognition error message.
func Recognition(title, text string) Notification {
	return Notification{Title: title, Description: text, Type: Error, Duration: defaultDuration}
}

// CreateUserFailed is shown when the account could not be created.
func CreateUserFailed() Notification {
	return Notification{
		Title:       "Erro ao criar conta",
		Description: "Não foi possível criar sua conta. Tente novamente.",
		Type:        Error,
		Duration:    defaultDuration,
	}
}

// AuthFailed is shown when sign-in after confirmation fails. reason, when
// non-empty, is the message returned by the backend.
func AuthFailed(reason string) Notification {
	desc := "Não foi possível entrar na sua conta. Vamos começar de novo."
	if reason != "" {
		desc = reason
	}
	return Notification{Title: "Erro de autenticação", Description: desc, Type: Error, Duration: defaultDuration}
}

// StartOver is shown when the user rejects the captured data.
func StartOver() Notification {
	return Notification{
		Title:       "Vamos recomeçar",
		Description: "Sem problemas! Diga seu nome novamente.",
		Type:        Info,
		Duration:    defaultDuration,
	}
}

// Welcome greets a freshly created user.
func Welcome(name string) Notification {
	return Notification{
		Title:       "Olá, " + name + "!",
		Description: "Sua conta foi criada.",
		Type:        Success,
		Icon:        "👋",
		Duration:    defaultDuration,
	}
}

// ForAchievement returns the banner for an unlocked achievement. IDs with
// [LevelPrefix] are level-ups.
func ForAchievement(id string) Notification {
	if strings.HasPrefix(id, LevelPrefix) {
		return Notification{
			Title:       "Subiu de nível!",
			Description: "Você alcançou um novo nível.",
			Type:        Success,
			Icon:        "🎉",
			Duration:    defaultDuration,
		}
	}
	return Notification{
		Title:       "Conquista desbloqueada!",
		Description: id,
		Type:        Success,
		Icon:        "🏆",
		Duration:    defaultDuration,
	}
}
