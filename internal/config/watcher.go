package config

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher keeps a Papo config file live while the server runs.
//
// Every edit is re-read through the same pipeline as [Load]: PAPO_*
// environment overrides are applied and the result must pass
// [Validate]. A file that fails either step is logged and ignored,
// and [Watcher.Current] keeps returning the last good config.
//
// onChange receives the previous and the new config only when [Diff]
// reports a change. Edits that touch comments, ordering, or fields Diff
// does not track replace the current config silently. The server wires
// onChange to App.Reload, which applies the log level and the onboarding
// tunables to sessions opened afterwards and logs every RestartRequired
// field without applying it. Sessions already running keep their settings.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)
	log      *slog.Logger

	mu      sync.Mutex
	current *Config
	seen    fileState

	done     chan struct{}
	stopOnce sync.Once
}

// fileState is what the poller compares between ticks. The mtime gates the
// read; the digest decides whether the bytes really changed.
type fileState struct {
	mtime  time.Time
	digest [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherLogger sets the logger for reload outcomes. The default is
// [slog.Default].
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWatcher loads path once and fails if that first load is invalid, so a
// server never starts on a broken file. Polling runs until [Watcher.Stop].
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		log:      slog.Default(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, st, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.seen = cfg, st

	go w.run()
	return w, nil
}

// Current returns the last config that passed validation.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) run() {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-t.C:
			w.reload()
		}
	}
}

// reload is one poll: stat, re-read on a new mtime, swap on new bytes, and
// hand the pair to onChange when the swap changed something Diff tracks.
func (w *Watcher) reload() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.log.Warn("config: reload skipped", "path", w.path, "err", err)
		return
	}
	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.seen.mtime)
	w.mu.Unlock()
	if unchanged {
		return
	}

	cfg, st, err := w.read()
	if err != nil {
		w.log.Warn("config: reload rejected, keeping previous config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	if st.digest == w.seen.digest {
		w.seen.mtime = st.mtime
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current, w.seen = cfg, st
	w.mu.Unlock()

	d := Diff(old, cfg)
	if d.Empty() {
		w.log.Debug("config: file changed, nothing to apply", "path", w.path)
		return
	}
	w.log.Info("config: reloaded", "path", w.path,
		"log_level_changed", d.LogLevelChanged,
		"onboarding", d.Onboarding,
		"restart_required", d.RestartRequired)

	// Outside the lock so the callback may call Current.
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// read loads and validates the file and records the state it was read at.
func (w *Watcher) read() (*Config, fileState, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileState{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileState{}, err
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, fileState{}, err
	}
	return cfg, fileState{mtime: info.ModTime(), digest: sha256.Sum256(data)}, nil
}
