package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/papo/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{ListenAddr: ":8080", LogLevel: config.LogInfo},
		Onboarding: config.OnboardingConfig{
			APIBaseURL:    "http://localhost:3001/api",
			SuccessDelay:  3 * time.Second,
			FFTSize:       256,
			CompleteRoute: "/dashboard",
			XPAward:       50,
		},
		Auth:      config.AuthConfig{JWTSecret: "s", TokenTTL: time.Hour},
		Providers: config.ProvidersConfig{STT: config.ProviderEntry{Name: "deepgram"}},
		Journal:   config.JournalConfig{KafkaBrokers: []string{"k1:9092"}},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	d := config.Diff(cfg, baseConfig())
	if d.LogLevelChanged || d.OnboardingChanged || len(d.RestartRequired) != 0 {
		t.Errorf("expected empty diff for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
}

func TestDiff_OnboardingTunables(t *testing.T) {
	t.Parallel()

	off := false
	tests := []struct {
		field  string
		mutate func(*config.OnboardingConfig)
	}{
		{"success_delay", func(o *config.OnboardingConfig) { o.SuccessDelay = time.Second }},
		{"narration", func(o *config.OnboardingConfig) { o.Narration = &off }},
		{"voice", func(o *config.OnboardingConfig) { o.Voice = "nova" }},
		{"fft_size", func(o *config.OnboardingConfig) { o.FFTSize = 512 }},
		{"complete_route", func(o *config.OnboardingConfig) { o.CompleteRoute = "/home" }},
		{"xp_award", func(o *config.OnboardingConfig) { o.XPAward = 10 }},
		{"no_speech_timeout", func(o *config.OnboardingConfig) { o.NoSpeechTimeout = time.Second }},
	}
	for _, tc := range tests {
		t.Run(tc.field, func(t *testing.T) {
			t.Parallel()
			old, new := baseConfig(), baseConfig()
			tc.mutate(&new.Onboarding)

			d := config.Diff(old, new)
			if !d.OnboardingChanged {
				t.Fatal("expected OnboardingChanged=true")
			}
			if !slices.Equal(d.Onboarding, []string{tc.field}) {
				t.Errorf("Onboarding = %v, want [%s]", d.Onboarding, tc.field)
			}
			if len(d.RestartRequired) != 0 {
				t.Errorf("RestartRequired = %v, want none", d.RestartRequired)
			}
		})
	}
}

func TestDiff_NarrationNilMeansEnabled(t *testing.T) {
	t.Parallel()
	on := true
	old, new := baseConfig(), baseConfig()
	new.Onboarding.Narration = &on
	if d := config.Diff(old, new); d.OnboardingChanged {
		t.Errorf("explicit true vs nil should not count as a change: %+v", d)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.ListenAddr = ":9090"
	new.Auth.JWTSecret = "other"
	new.Providers.STT.Model = "nova-3"
	new.Journal.KafkaBrokers = []string{"k2:9092"}

	d := config.Diff(old, new)
	want := []string{"server.listen_addr", "auth", "providers", "journal"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if d.OnboardingChanged {
		t.Error("expected OnboardingChanged=false")
	}
}
