package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// OnboardingChanged is set when any hot-reloadable onboarding tunable
	// changed. The new values apply to sessions opened afterwards.
	OnboardingChanged bool
	Onboarding        []string

	// RestartRequired lists changed fields that only take effect after a
	// restart (listen address, providers, journal, secrets).
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	o, n := old.Onboarding, new.Onboarding
	tunable := func(name string, changed bool) {
		if changed {
			d.OnboardingChanged = true
			d.Onboarding = append(d.Onboarding, name)
		}
	}
	tunable("success_delay", o.SuccessDelay != n.SuccessDelay)
	tunable("narration", o.NarrationEnabled() != n.NarrationEnabled())
	tunable("voice", o.Voice != n.Voice)
	tunable("fft_size", o.FFTSize != n.FFTSize)
	tunable("complete_route", o.CompleteRoute != n.CompleteRoute)
	tunable("xp_award", o.XPAward != n.XPAward)
	tunable("no_speech_timeout", o.NoSpeechTimeout != n.NoSpeechTimeout)

	restart := func(name string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, name)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("onboarding.api_base_url", o.APIBaseURL != n.APIBaseURL)
	restart("onboarding.locale", o.Locale != n.Locale)
	restart("onboarding.request_timeout", o.RequestTimeout != n.RequestTimeout)
	restart("auth", old.Auth != new.Auth)
	restart("providers", !sameProviders(old.Providers, new.Providers))
	restart("journal", !sameJournal(old.Journal, new.Journal))

	return d
}

func sameProviders(a, b ProvidersConfig) bool {
	return sameEntry(a.STT, b.STT) && sameEntry(a.STTFallback, b.STTFallback) &&
		sameEntry(a.TTS, b.TTS) && sameEntry(a.TTSFallback, b.TTSFallback)
}

// sameEntry ignores Options, which may hold uncomparable values.
func sameEntry(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL &&
		a.Model == b.Model && len(a.Options) == len(b.Options)
}

func sameJournal(a, b JournalConfig) bool {
	if a.NodeID != b.NodeID || a.MemoryEntries != b.MemoryEntries ||
		a.PostgresDSN != b.PostgresDSN || a.KafkaTopic != b.KafkaTopic {
		return false
	}
	return slices.Equal(a.KafkaBrokers, b.KafkaBrokers)
}

// Empty reports whether nothing tracked changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.OnboardingChanged && len(d.RestartRequired) == 0
}
