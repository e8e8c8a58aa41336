// Package gateway serves the onboarding wizard over WebSocket. Each
// connection gets its own onboarding controller fed by the client's
// microphone audio; the controller's UI events go back as JSON text frames
// and narration as binary PCM frames.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/papo/internal/backend"
	"github.com/MrWong99/papo/internal/journal"
	"github.com/MrWong99/papo/internal/level"
	"github.com/MrWong99/papo/internal/narrate"
	"github.com/MrWong99/papo/internal/notify"
	"github.com/MrWong99/papo/internal/observe"
	"github.com/MrWong99/papo/internal/onboarding"
	"github.com/MrWong99/papo/pkg/audio"
	"github.com/MrWong99/papo/pkg/provider/stt"
	"github.com/MrWong99/papo/pkg/provider/tts"
)

// Path is where the onboarding socket is mounted.
const Path = "/v1/onboarding"

// maxMessageSize bounds a single inbound frame. A second of 48 kHz stereo
// PCM fits comfortably.
const maxMessageSize = 1 << 20

var (
	ErrNoBackend    = errors.New("gateway: backend client required")
	ErrShuttingDown = errors.New("gateway: shutting down")

	errPanic = errors.New("gateway: session panicked")
)

// Settings are the per-session tunables. They are read when a session
// starts, so reloaded values apply to new connections only.
type Settings struct {
	Onboarding onboarding.Config
	Narration  bool
	Voice      string
}

// Options configures a [Server]. Only Backend is required.
type Options struct {
	STT     stt.Provider
	TTS     tts.Provider
	Backend backend.Client
	Tokens  onboarding.TokenIssuer
	Journal *journal.Journal
	Metrics *observe.Metrics

	// Settings returns the current session tunables. Nil means defaults
	// with narration on.
	Settings func() Settings

	// OriginPatterns are extra origins allowed to open the socket.
	OriginPatterns []string

	// InputFormat is the PCM format recognition runs on. Default 16 kHz mono.
	InputFormat audio.Format

	// Scheduler overrides the volume sampler clock.
	Scheduler level.Scheduler

	Logger *slog.Logger
}

// Server accepts onboarding connections. It implements [http.Handler].
type Server struct {
	opts Options
	log  *slog.Logger

	wg       sync.WaitGroup
	mu       sync.Mutex
	sessions map[string]context.CancelCauseFunc
	closing  bool
}

var _ http.Handler = (*Server)(nil)

// NewServer validates opts and returns a ready server.
func NewServer(opts Options) (*Server, error) {
	if opts.Backend == nil {
		return nil, ErrNoBackend
	}
	if opts.Settings == nil {
		opts.Settings = func() Settings { return Settings{Narration: true} }
	}
	if opts.InputFormat.SampleRate == 0 {
		opts.InputFormat = audio.Format{SampleRate: defaultInputRate, Channels: 1}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		opts:     opts,
		log:      opts.Logger,
		sessions: make(map[string]context.CancelCauseFunc),
	}, nil
}

// Register mounts the socket on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.Handle("GET "+Path, s)
}

// Active returns the number of open sessions.
func (s *Server) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ServeHTTP upgrades the request and runs one onboarding session until the
// client leaves or the server shuts down.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.opts.OriginPatterns})
	if err != nil {
		s.log.Warn("gateway: accept failed", "err", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	id := uuid.NewString()
	log := observe.SessionLogger(r.Context(), id)

	defer func() {
		if p := recover(); p != nil {
			log.Error("gateway: session panic", "panic", p, "stack", string(debug.Stack()))
			_ = conn.Close(websocket.StatusInternalError, "internal error")
		}
	}()

	err = s.run(r.Context(), id, conn, log)
	switch {
	case err == nil:
		_ = conn.Close(websocket.StatusNormalClosure, "")
	case errors.Is(err, ErrShuttingDown):
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
	case errors.Is(err, errSlowClient):
		_ = conn.Close(websocket.StatusPolicyViolation, "client too slow")
	case errors.Is(err, errPanic):
		_ = conn.Close(websocket.StatusInternalError, "internal error")
	default:
		_ = conn.CloseNow()
	}
}

func (s *Server) run(ctx context.Context, id string, conn *websocket.Conn, log *slog.Logger) error {
	hub := audio.NewHub(s.opts.InputFormat)
	defer hub.Close()

	sess := newSession(ctx, id, conn, hub, log)
	ctrl, err := s.newController(id, sess, hub, log)
	if err != nil {
		sess.cancel(nil)
		return fmt.Errorf("gateway: new controller: %w", err)
	}
	sess.ctrl = ctrl
	defer ctrl.Close()
	// Runs before Close so late events are discarded.
	defer sess.cancel(nil)

	if !s.track(id, sess.cancel) {
		return ErrShuttingDown
	}
	defer s.untrack(id)

	if m := s.opts.Metrics; m != nil {
		m.ActiveSessions.Add(ctx, 1)
		defer m.ActiveSessions.Add(context.WithoutCancel(ctx), -1)
	}
	log.Info("gateway: session opened")

	ready := Ready{SessionID: id}
	if s.opts.TTS != nil {
		f := s.opts.TTS.Format()
		ready.Narration = &f
	}
	sess.send(EvReady, ready, false)

	g, gctx := errgroup.WithContext(sess.ctx)
	g.Go(guard(log, func() error { return sess.readLoop(gctx) }))
	g.Go(guard(log, func() error { return sess.writeLoop(gctx) }))
	err = g.Wait()

	if cause := context.Cause(sess.ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		err = cause
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		err = nil
	}
	log.Info("gateway: session closed", "err", err, "step", ctrl.Step().ID)
	return err
}

// guard turns a panic in fn into an error so one broken session cannot take
// the process down.
func guard(log *slog.Logger, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				log.Error("gateway: session panic", "panic", p, "stack", string(debug.Stack()))
				err = fmt.Errorf("%w: %v", errPanic, p)
			}
		}()
		return fn()
	}
}

func (s *Server) newController(id string, sess *session, hub *audio.Hub, log *slog.Logger) (*onboarding.Controller, error) {
	set := s.opts.Settings()
	deps := onboarding.Deps{
		STT:        s.opts.STT,
		Source:     hub,
		Backend:    s.opts.Backend,
		Notifier:   notify.Multi{sess, notify.LogSink{Logger: log}},
		Listener:   sess,
		Tokens:     s.opts.Tokens,
		Scheduler:  s.opts.Scheduler,
		OnComplete: sess.complete,
		Logger:     log,
	}
	if s.opts.TTS != nil && set.Narration {
		deps.Narrator = narrate.New(s.opts.TTS, sess,
			narrate.WithVoice(tts.VoiceProfile{ID: set.Voice}),
			narrate.WithLogger(log),
		)
	}
	if s.opts.Journal != nil {
		deps.Journal = journal.Sessioned{J: s.opts.Journal, SessionID: id}
	}
	if s.opts.Metrics != nil {
		deps.Metrics = s.opts.Metrics.Flow()
	}
	return onboarding.New(set.Onboarding, deps)
}

func (s *Server) track(id string, cancel context.CancelCauseFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.sessions[id] = cancel
	return true
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Shutdown stops accepting sessions, ends the open ones and waits for their
// handlers to return or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	for _, cancel := range s.sessions {
		cancel(ErrShuttingDown)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("gateway: shutdown: %w", ctx.Err())
	}
}
