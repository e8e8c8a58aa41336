package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/papo/pkg/provider/stt"
	"github.com/coder/websocket"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cfg := stt.StreamConfig{
		SampleRate:     16000,
		Channels:       1,
		InterimResults: true,
	}

	rawURL, err := p.buildURL(cfg)
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-2", q.Get("model"))
	assertEqual(t, "language", "pt-BR", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "interim_results", "true", q.Get("interim_results"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
	assertEqual(t, "endpointing", "300", q.Get("endpointing"))
}

func TestBuildURL_CustomModel(t *testing.T) {
	p, err := New("key", WithModel("base"), WithLanguage("pt-PT"), WithSampleRate(48000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{Continuous: true})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	q := u.Query()

	assertEqual(t, "model", "base", q.Get("model"))
	assertEqual(t, "language", "pt-PT", q.Get("language"))
	assertEqual(t, "sample_rate", "48000", q.Get("sample_rate"))
	assertEqual(t, "interim_results", "false", q.Get("interim_results"))
	if _, ok := q["endpointing"]; ok {
		t.Error("continuous sessions should not set endpointing")
	}
}

func TestBuildURL_LanguageOverridenByCfg(t *testing.T) {
	// cfg.Language should take precedence over the provider-level default.
	p, err := New("key", WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{Language: "pt-BR", SampleRate: 16000})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	assertEqual(t, "language", "pt-BR", u.Query().Get("language"))
}

// ---- JSON parsing tests ----

func TestParseDeepgramResponse_Final(t *testing.T) {
	raw := []byte(`{
		"type": "Results",
		"is_final": true,
		"start": 0.5,
		"duration": 1.25,
		"channel": {
			"alternatives": [{
				"transcript": "Olá, me chamo Maria",
				"confidence": 0.95
			}]
		}
	}`)

	tr, ok := parseDeepgramResponse(raw)
	if !ok {
		t.Fatal("expected ok=true for valid Results message")
	}

	if !tr.IsFinal {
		t.Error("expected IsFinal=true")
	}
	assertEqual(t, "text", "Olá, me chamo Maria", tr.Text)
	if tr.Confidence != 0.95 {
		t.Errorf("expected confidence 0.95, got %f", tr.Confidence)
	}
	if tr.Timestamp != 500*time.Millisecond {
		t.Errorf("unexpected start: %v", tr.Timestamp)
	}
	if tr.Duration != 1250*time.Millisecond {
		t.Errorf("unexpected duration: %v", tr.Duration)
	}
}

func TestParseDeepgramResponse_Partial(t *testing.T) {
	raw := []byte(`{
		"type": "Results",
		"is_final": false,
		"channel": {"alternatives": [{"transcript": "Olá", "confidence": 0.7}]}
	}`)

	tr, ok := parseDeepgramResponse(raw)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if tr.IsFinal {
		t.Error("expected IsFinal=false for partial result")
	}
	assertEqual(t, "text", "Olá", tr.Text)
}

func TestParseDeepgramResponse_Ignored(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"metadata", `{"type":"Metadata","request_id":"abc"}`},
		{"empty alternatives", `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`},
		{"silence", `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":""}]}}`},
		{"invalid json", `{invalid`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := parseDeepgramResponse([]byte(tt.raw)); ok {
				t.Error("expected ok=false")
			}
		})
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	assertEqual(t, "model", defaultModel, p.model)
	assertEqual(t, "language", defaultLanguage, p.language)
	if p.sampleRate != defaultSampleRate {
		t.Errorf("expected sampleRate %d, got %d", defaultSampleRate, p.sampleRate)
	}
}

// ---- Session tests against a fake Deepgram server ----

func fakeDeepgram(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		ctx := r.Context()
		for {
			typ, msg, err := c.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageText && strings.Contains(string(msg), "CloseStream") {
				_ = c.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"sim","confidence":0.9}]}}`))
				_ = c.Close(websocket.StatusNormalClosure, "")
				return
			}
			_ = c.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"si","confidence":0.5}]}}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSession_FinishFlushesAndEnds(t *testing.T) {
	srv := fakeDeepgram(t)
	p, err := New("key", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h, err := p.StartStream(ctx, stt.StreamConfig{SampleRate: 16000, Channels: 1, InterimResults: true})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer h.Close()

	if err := h.SendAudio(make([]byte, 640)); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	select {
	case tr := <-h.Partials():
		assertEqual(t, "partial", "si", tr.Text)
	case <-ctx.Done():
		t.Fatal("timed out waiting for partial")
	}

	if err := h.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	var finals []string
	for tr := range h.Finals() {
		finals = append(finals, tr.Text)
	}
	if len(finals) != 1 || finals[0] != "sim" {
		t.Errorf("finals = %v, want [sim]", finals)
	}
	if err := h.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
	if err := h.SendAudio([]byte{0, 0}); !errors.Is(err, stt.ErrSessionClosed) {
		t.Errorf("SendAudio after finish = %v, want ErrSessionClosed", err)
	}
}

func TestStartStream_Unauthorized(t *testing.T) {
	srv := fakeDeepgram(t)
	p, err := New("wrong", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000})
	if !errors.Is(err, stt.ErrServiceUnavailable) {
		t.Errorf("err = %v, want ErrServiceUnavailable", err)
	}
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	srv := fakeDeepgram(t)
	p, err := New("key", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h, err := p.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, ok := <-h.Finals(); ok {
		t.Error("finals channel still open after Close")
	}
	if err := h.Err(); err != nil {
		t.Errorf("Err() after Close = %v, want nil", err)
	}
}

// ---- helpers ----

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
