package app

import (
	"fmt"
	"log/slog"

	"github.com/MrWong99/papo/internal/config"
	"github.com/MrWong99/papo/internal/resilience"
)

// BuildProviders instantiates the providers named in cfg using reg. When a
// fallback entry is configured the primary and fallback are wrapped in a
// breaker-guarded fallback group.
func BuildProviders(cfg *config.Config, reg *config.Registry, log *slog.Logger) (*Providers, error) {
	if log == nil {
		log = slog.Default()
	}
	ps := &Providers{}
	pc := cfg.Providers
	fb := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, from, to resilience.State) {
				log.Warn("provider circuit breaker state change", "name", name, "from", from, "to", to)
			},
		},
	}

	if pc.STT.Enabled() {
		p, err := reg.CreateSTT(pc.STT)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", pc.STT.Name, err)
		}
		ps.STT = p
		log.Info("provider created", "kind", "stt", "name", pc.STT.Name)

		if pc.STTFallback.Enabled() {
			alt, err := reg.CreateSTT(pc.STTFallback)
			if err != nil {
				return nil, fmt.Errorf("create stt fallback %q: %w", pc.STTFallback.Name, err)
			}
			group := resilience.NewSTTFallback(p, pc.STT.Name, fb)
			group.AddFallback(pc.STTFallback.Name, alt)
			ps.STT = group
			log.Info("provider created", "kind", "stt_fallback", "name", pc.STTFallback.Name)
		}
	}

	if pc.TTS.Enabled() {
		p, err := reg.CreateTTS(pc.TTS)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", pc.TTS.Name, err)
		}
		ps.TTS = p
		log.Info("provider created", "kind", "tts", "name", pc.TTS.Name)

		if pc.TTSFallback.Enabled() {
			alt, err := reg.CreateTTS(pc.TTSFallback)
			if err != nil {
				return nil, fmt.Errorf("create tts fallback %q: %w", pc.TTSFallback.Name, err)
			}
			group := resilience.NewTTSFallback(p, pc.TTS.Name, fb)
			group.AddFallback(pc.TTSFallback.Name, alt)
			ps.TTS = group
			log.Info("provider created", "kind", "tts_fallback", "name", pc.TTSFallback.Name)
		}
	}

	if ps.STT == nil {
		log.Warn("no stt provider configured, onboarding runs typed-only")
	}
	return ps, nil
}
