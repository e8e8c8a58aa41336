package notify

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestForAchievement(t *testing.T) {
	t.Parallel()
	tests := []struct {
		id       string
		wantIcon string
	}{
		{"level_2", "🎉"},
		{"level_", "🎉"},
		{"first_signup", "🏆"},
		{"Level_3", "🏆"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			t.Parallel()
			n := ForAchievement(tt.id)
			if n.Icon != tt.wantIcon {
				t.Errorf("icon = %q, want %q", n.Icon, tt.wantIcon)
			}
			if n.Type != Success {
				t.Errorf("type = %q", n.Type)
			}
		})
	}
}

func TestMultiAndRecorder(t *testing.T) {
	t.Parallel()
	a, b := &Recorder{}, &Recorder{}
	var calls int
	m := Multi{a, nil, b, SinkFunc(func(Notification) { calls++ })}

	m.Notify(NoAudio())
	m.Notify(CreateUserFailed())

	for _, r := range []*Recorder{a, b} {
		if r.Count("") != 2 || r.Count(Warning) != 1 || r.Count(Error) != 1 {
			t.Errorf("counts: all=%d warn=%d err=%d", r.Count(""), r.Count(Warning), r.Count(Error))
		}
		last, ok := r.Last()
		if !ok || last.Title != CreateUserFailed().Title {
			t.Errorf("last = %+v", last)
		}
	}
	if calls != 2 {
		t.Errorf("func sink calls = %d", calls)
	}
}

func TestLogSink(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	s := LogSink{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	s.Notify(AuthFailed("credenciais inválidas"))
	out := buf.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "credenciais inválidas") {
		t.Errorf("log output = %q", out)
	}
}
