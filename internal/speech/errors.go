package speech

import (
	"errors"

	"github.com/MrWong99/papo/pkg/audio"
	"github.com/MrWong99/papo/pkg/provider/stt"
)

// ErrorKind classifies why a recognition session failed. The string values
// are part of the client protocol.
type ErrorKind string

const (
	ErrPermissionDenied    ErrorKind = "permission-denied"
	ErrNoMicrophone        ErrorKind = "no-microphone"
	ErrNetwork             ErrorKind = "network"
	ErrNoSpeech            ErrorKind = "no-speech"
	ErrServiceUnavailable  ErrorKind = "service-unavailable"
	ErrAborted             ErrorKind = "aborted"
	ErrUnsupportedPlatform ErrorKind = "unsupported-platform"
)

// Message is the user-facing text for an [ErrorKind].
type Message struct {
	Title string
	Text  string
}

var messages = map[ErrorKind]Message{
	ErrPermissionDenied: {
		Title: "Permissão negada",
		Text:  "Permita o acesso ao microfone nas configurações do navegador e tente novamente.",
	},
	ErrNoMicrophone: {
		Title: "Microfone não encontrado",
		Text:  "Nenhum microfone foi encontrado. Conecte um microfone e tente novamente.",
	},
	ErrNetwork: {
		Title: "Erro de conexão",
		Text:  "Verifique sua conexão com a internet e tente novamente.",
	},
	ErrNoSpeech: {
		Title: "Nenhuma fala detectada",
		Text:  "Não conseguimos ouvir você. Fale mais perto do microfone e tente novamente.",
	},
	ErrServiceUnavailable: {
		Title: "Serviço indisponível",
		Text:  "O reconhecimento de voz está indisponível no momento. Tente novamente em instantes.",
	},
	ErrAborted: {
		Title: "Gravação interrompida",
		Text:  "A gravação foi interrompida. Tente novamente.",
	},
	ErrUnsupportedPlatform: {
		Title: "Navegador não suportado",
		Text:  "Seu navegador não suporta reconhecimento de voz. Use o Chrome ou o Edge.",
	},
}

// Message returns the user-facing title and text for k. Unknown kinds get
// the network message.
func (k ErrorKind) Message() Message {
	if m, ok := messages[k]; ok {
		return m
	}
	return messages[ErrNetwork]
}

// Kinds returns every error kind in a stable order.
func Kinds() []ErrorKind {
	return []ErrorKind{
		ErrPermissionDenied, ErrNoMicrophone, ErrNetwork, ErrNoSpeech,
		ErrServiceUnavailable, ErrAborted, ErrUnsupportedPlatform,
	}
}

// Classify maps a capture or provider error to its [ErrorKind]. Errors that
// match no known sentinel are reported as [ErrNetwork].
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		return ErrPermissionDenied
	case errors.Is(err, audio.ErrNoMicrophone):
		return ErrNoMicrophone
	case errors.Is(err, audio.ErrUnsupported):
		return ErrUnsupportedPlatform
	case errors.Is(err, stt.ErrNoSpeech):
		return ErrNoSpeech
	case errors.Is(err, stt.ErrServiceUnavailable):
		return ErrServiceUnavailable
	case errors.Is(err, stt.ErrAborted):
		return ErrAborted
	default:
		return ErrNetwork
	}
}
