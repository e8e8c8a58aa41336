// Package app wires the Papo onboarding subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context ends, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithBackend,
// WithJournalWriter, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/papo/internal/auth"
	"github.com/MrWong99/papo/internal/backend"
	"github.com/MrWong99/papo/internal/config"
	"github.com/MrWong99/papo/internal/gateway"
	"github.com/MrWong99/papo/internal/health"
	"github.com/MrWong99/papo/internal/journal"
	"github.com/MrWong99/papo/internal/observe"
	"github.com/MrWong99/papo/internal/onboarding"
	"github.com/MrWong99/papo/internal/resilience"
	"github.com/MrWong99/papo/pkg/provider/stt"
	"github.com/MrWong99/papo/pkg/provider/tts"
)

// shutdownGrace bounds how long Run waits for open sessions once its context
// is cancelled.
const shutdownGrace = 10 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by [BuildProviders].
type Providers struct {
	STT stt.Provider
	TTS tts.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	log       *slog.Logger
	level     *slog.LevelVar

	// settings holds the current gateway.Settings; swapped on reload.
	settings atomic.Pointer[gateway.Settings]

	backend backend.Client
	breaker func() resilience.State
	tokens  *auth.Issuer
	metrics *observe.Metrics

	writer  journal.Writer
	mem     *journal.MemStore
	journal *journal.Journal
	checks  []health.Checker

	gateway *gateway.Server
	handler http.Handler
	server  *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithBackend injects the Papo Social API client instead of creating one
// from config.
func WithBackend(c backend.Client) Option {
	return func(a *App) { a.backend = c }
}

// WithJournalWriter replaces the Postgres and Kafka writers built from
// config. The in-memory store is always kept.
func WithJournalWriter(w journal.Writer) Option {
	return func(a *App) { a.writer = w }
}

// WithMetrics injects the metric instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithLevel hands New the level variable behind the logger so reloads can
// change verbosity.
func WithLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via [BuildProviders]).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
		a.level.Set(LevelFor(cfg.Server.LogLevel))
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	s := SettingsFrom(cfg)
	a.settings.Store(&s)

	// ── 1. Backend client ────────────────────────────────────────────────
	if err := a.initBackend(); err != nil {
		return nil, fmt.Errorf("app: init backend: %w", err)
	}

	// ── 2. Token issuer ──────────────────────────────────────────────────
	tokens, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("app: init auth: %w", err)
	}
	a.tokens = tokens

	// ── 3. Journal ───────────────────────────────────────────────────────
	if err := a.initJournal(ctx); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init journal: %w", err)
	}

	// ── 4. Gateway ───────────────────────────────────────────────────────
	gw, err := gateway.NewServer(gateway.Options{
		STT:            providers.STT,
		TTS:            providers.TTS,
		Backend:        a.backend,
		Tokens:         a.tokens,
		Journal:        a.journal,
		Metrics:        a.metrics,
		Settings:       a.Settings,
		OriginPatterns: cfg.Server.AllowedOrigins,
		Logger:         a.log,
	})
	if err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init gateway: %w", err)
	}
	a.gateway = gw

	// ── 5. Routes ────────────────────────────────────────────────────────
	a.handler = a.routes()
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initBackend creates the HTTP client for the Papo Social API unless one was
// injected.
func (a *App) initBackend() error {
	if a.backend != nil {
		if b, ok := a.backend.(interface{ BreakerState() resilience.State }); ok {
			a.breaker = b.BreakerState
		}
		return nil
	}
	c, err := backend.New(a.cfg.Onboarding.APIBaseURL,
		backend.WithTimeout(a.cfg.Onboarding.RequestTimeout),
		backend.WithObserver(a.metrics.BackendObserver()),
		backend.WithLogger(a.log),
	)
	if err != nil {
		return err
	}
	a.backend = c
	a.breaker = c.BreakerState
	return nil
}

// initJournal builds the writer chain: always the in-memory store, plus
// Postgres and Kafka when configured (or the injected writer).
func (a *App) initJournal(ctx context.Context) error {
	jc := a.cfg.Journal
	a.mem = journal.NewMemStore(jc.MemoryEntries)
	writers := journal.Multi{a.mem}

	if a.writer != nil {
		writers = append(writers, a.writer)
	} else {
		if jc.PostgresDSN != "" {
			pg, err := journal.NewPostgresStore(ctx, jc.PostgresDSN)
			if err != nil {
				return err
			}
			writers = append(writers, pg)
			a.checks = append(a.checks, health.Ping("journal", pg.Ping))
			a.closers = append(a.closers, func() error {
				pg.Close()
				return nil
			})
			a.log.Info("journal: postgres store enabled")
		}
		if len(jc.KafkaBrokers) > 0 {
			kp, err := journal.NewKafkaPublisher(journal.KafkaConfig{
				Brokers: jc.KafkaBrokers,
				Topic:   jc.KafkaTopic,
			})
			if err != nil {
				return err
			}
			writers = append(writers, kp)
			a.closers = append(a.closers, kp.Close)
			a.log.Info("journal: kafka publisher enabled", "brokers", jc.KafkaBrokers, "topic", jc.KafkaTopic)
		}
	}

	var w journal.Writer = writers
	if len(writers) == 1 {
		w = a.mem
	}
	j, err := journal.New(jc.NodeID, w, a.log)
	if err != nil {
		return err
	}
	a.journal = j
	return nil
}

// routes assembles the HTTP surface behind the observability middleware.
func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	a.gateway.Register(mux)

	checks := append([]health.Checker(nil), a.checks...)
	if a.breaker != nil {
		checks = append(checks, health.Breaker("backend", a.breaker))
	}
	health.New(checks...).Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/session", a.handleSession)
	return observe.Middleware(a.metrics)(mux)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Settings returns the session tunables currently in effect.
func (a *App) Settings() gateway.Settings { return *a.settings.Load() }

// Journal returns the in-memory journal store.
func (a *App) Journal() *journal.MemStore { return a.mem }

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies a changed configuration. Log level and onboarding tunables
// take effect immediately (tunables for new sessions only); everything else
// is logged as needing a restart. It matches the [config.NewWatcher]
// callback signature.
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged {
		a.level.Set(LevelFor(d.NewLogLevel))
		a.log.Info("config reload: log level changed", "level", d.NewLogLevel)
	}
	if d.OnboardingChanged {
		s := SettingsFrom(new)
		a.settings.Store(&s)
		a.log.Info("config reload: onboarding settings updated", "fields", d.Onboarding)
	}
	if len(d.RestartRequired) > 0 {
		a.log.Warn("config reload: changes need a restart", "fields", d.RestartRequired)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run listens on the configured address and serves until ctx is cancelled.
// Open onboarding sessions are then closed with "going away" and Run returns
// ctx.Err().
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	a.server = &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(a.log.Handler(), slog.LevelWarn),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tlsCfg := a.cfg.Server.TLS; tlsCfg != nil {
			err = a.server.ServeTLS(ln, tlsCfg.CertFile, tlsCfg.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return errors.Join(
			a.gateway.Shutdown(sctx),
			a.server.Shutdown(sctx),
		)
	})

	a.log.Info("app running", "addr", ln.Addr().String(), "stt", a.providers.STT != nil, "tts", a.providers.TTS != nil)
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		if err := a.gateway.Shutdown(ctx); err != nil {
			shutdownErr = err
			return
		}
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}
		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

func (a *App) runClosers() {
	for _, c := range a.closers {
		_ = c()
	}
	a.closers = nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// SettingsFrom derives the per-session tunables from cfg.
func SettingsFrom(cfg *config.Config) gateway.Settings {
	o := cfg.Onboarding
	voice := o.Voice
	if voice == "" {
		voice = cfg.Providers.TTS.StringOption("voice")
	}
	return gateway.Settings{
		Onboarding: onboarding.Config{
			Locale:          o.Locale,
			SuccessDelay:    o.SuccessDelay,
			XPAward:         o.XPAward,
			CompleteRoute:   o.CompleteRoute,
			NoSpeechTimeout: o.NoSpeechTimeout,
			FFTSize:         o.FFTSize,
		},
		Narration: o.NarrationEnabled(),
		Voice:     voice,
	}
}

// LevelFor maps a config log level to slog.
func LevelFor(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
