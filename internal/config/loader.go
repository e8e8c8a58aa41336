package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"deepgram", "openai", "mock"},
	"tts": {"openai", "mock"},
}

// Load reads the YAML configuration file at path, applies environment
// overrides and returns a validated [Config].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// parse runs the full pipeline on file contents: decode, defaults,
// environment overrides, validation.
func parse(data []byte) (*Config, error) {
	cfg, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg, nil); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Environment overrides are not applied. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadDotEnv loads KEY=value pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load %q: %w", path, err)
	}
	return nil
}

// envOverrides are the environment variables that take precedence over the
// YAML file. Secrets normally arrive this way.
type envOverrides struct {
	ListenAddr   string   `env:"PAPO_LISTEN_ADDR"`
	LogLevel     string   `env:"PAPO_LOG_LEVEL"`
	APIBaseURL   string   `env:"PAPO_API_URL"`
	Locale       string   `env:"PAPO_LOCALE"`
	JWTSecret    string   `env:"PAPO_JWT_SECRET"`
	STTAPIKey    string   `env:"PAPO_STT_API_KEY"`
	TTSAPIKey    string   `env:"PAPO_TTS_API_KEY"`
	PostgresDSN  string   `env:"PAPO_POSTGRES_DSN"`
	KafkaBrokers []string `env:"PAPO_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"PAPO_KAFKA_TOPIC"`
}

// ApplyEnv overlays the PAPO_* environment variables onto cfg. When environ
// is nil the process environment is used.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	var o envOverrides
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.Parse(&o, opts); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Server.ListenAddr, o.ListenAddr)
	if o.LogLevel != "" {
		cfg.Server.LogLevel = LogLevel(strings.ToLower(o.LogLevel))
	}
	set(&cfg.Onboarding.APIBaseURL, o.APIBaseURL)
	set(&cfg.Onboarding.Locale, o.Locale)
	set(&cfg.Auth.JWTSecret, o.JWTSecret)
	set(&cfg.Providers.STT.APIKey, o.STTAPIKey)
	set(&cfg.Providers.TTS.APIKey, o.TTSAPIKey)
	set(&cfg.Journal.PostgresDSN, o.PostgresDSN)
	if len(o.KafkaBrokers) > 0 {
		cfg.Journal.KafkaBrokers = o.KafkaBrokers
	}
	set(&cfg.Journal.KafkaTopic, o.KafkaTopic)
	cfg.applyDefaults()
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Onboarding
	o := cfg.Onboarding
	if o.APIBaseURL == "" {
		errs = append(errs, errors.New("onboarding.api_base_url is required"))
	} else if u, err := url.Parse(o.APIBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("onboarding.api_base_url %q must be an absolute http(s) URL", o.APIBaseURL))
	}
	if o.SuccessDelay < 0 {
		errs = append(errs, fmt.Errorf("onboarding.success_delay %s must not be negative", o.SuccessDelay))
	}
	if o.FFTSize != 0 && (o.FFTSize < 32 || o.FFTSize > 32768 || o.FFTSize&(o.FFTSize-1) != 0) {
		errs = append(errs, fmt.Errorf("onboarding.fft_size %d must be a power of two in [32, 32768]", o.FFTSize))
	}
	if o.XPAward < 0 {
		errs = append(errs, fmt.Errorf("onboarding.xp_award %d must not be negative", o.XPAward))
	}
	if o.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("onboarding.request_timeout %s must not be negative", o.RequestTimeout))
	}
	if o.CompleteRoute != "" && !strings.HasPrefix(o.CompleteRoute, "/") {
		errs = append(errs, fmt.Errorf("onboarding.complete_route %q must start with /", o.CompleteRoute))
	}

	// Auth
	if cfg.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required (or set PAPO_JWT_SECRET)"))
	} else if len(cfg.Auth.JWTSecret) < 32 {
		slog.Warn("auth.jwt_secret is shorter than 32 bytes")
	}
	if cfg.Auth.TokenTTL < 0 {
		errs = append(errs, fmt.Errorf("auth.token_ttl %s must not be negative", cfg.Auth.TokenTTL))
	}

	// Providers
	p := cfg.Providers
	validateProviderName("stt", p.STT.Name)
	validateProviderName("stt", p.STTFallback.Name)
	validateProviderName("tts", p.TTS.Name)
	validateProviderName("tts", p.TTSFallback.Name)
	if !p.STT.Enabled() {
		slog.Warn("providers.stt is not configured; voice input will report an unsupported platform")
		if p.STTFallback.Enabled() {
			errs = append(errs, errors.New("providers.stt_fallback requires providers.stt"))
		}
	}
	if !p.TTS.Enabled() {
		if o.NarrationEnabled() {
			slog.Warn("providers.tts is not configured; narration disabled")
		}
		if p.TTSFallback.Enabled() {
			errs = append(errs, errors.New("providers.tts_fallback requires providers.tts"))
		}
	}

	// Journal
	j := cfg.Journal
	if j.NodeID < 0 || j.NodeID > 1023 {
		errs = append(errs, fmt.Errorf("journal.node_id %d is out of range [0, 1023]", j.NodeID))
	}
	if j.MemoryEntries < 0 {
		errs = append(errs, fmt.Errorf("journal.memory_entries %d must not be negative", j.MemoryEntries))
	}
	for i, b := range j.KafkaBrokers {
		if strings.TrimSpace(b) == "" {
			errs = append(errs, fmt.Errorf("journal.kafka_brokers[%d] is empty", i))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
