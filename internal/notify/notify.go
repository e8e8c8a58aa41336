// Package notify defines the user-facing notification events emitted by the
// onboarding flow and the sinks that deliver them.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Type classifies a notification for display.
type Type string

const (
	Success Type = "success"
	Error   Type = "error"
	Warning Type = "warning"
	Info    Type = "info"
)

// Notification is one toast or banner shown to the user.
type Notification struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Type        Type          `json:"type"`
	Icon        string        `json:"icon,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
}

// Sink receives notifications. Implementations must not block for long; the
// onboarding controller calls Notify outside its lock but on its own
// goroutine.
type Sink interface {
	Notify(n Notification)
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(Notification)

// Notify implements [Sink].
func (f SinkFunc) Notify(n Notification) { f(n) }

// LogSink writes every notification to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

var _ Sink = LogSink{}

// Notify implements [Sink].
func (s LogSink) Notify(n Notification) {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	level := slog.LevelInfo
	switch n.Type {
	case Error:
		level = slog.LevelError
	case Warning:
		level = slog.LevelWarn
	}
	l.Log(context.Background(), level, "notification",
		"type", string(n.Type),
		"title", n.Title,
		"description", n.Description,
	)
}

// Multi delivers to every sink in order. Nil sinks are skipped.
type Multi []Sink

// Notify implements [Sink].
func (m Multi) Notify(n Notification) {
	for _, s := range m {
		if s != nil {
			s.Notify(n)
		}
	}
}

// Recorder keeps every notification in memory. Useful for tests and for
// replaying the history of a session.
type Recorder struct {
	mu  sync.Mutex
	all []Notification
}

// Notify implements [Sink].
func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, n)
}

// All returns a copy of everything recorded so far.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.all))
	copy(out, r.all)
	return out
}

// Last returns the most recent notification and whether there was one.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.all) == 0 {
		return Notification{}, false
	}
	return r.all[len(r.all)-1], true
}

// Count returns the number of notifications of type t, or of any type when
// t is empty.
func (r *Recorder) Count(t Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t == "" {
		return len(r.all)
	}
	n := 0
	for _, x := range r.all {
		if x.Type == t {
			n++
		}
	}
	return n
}
