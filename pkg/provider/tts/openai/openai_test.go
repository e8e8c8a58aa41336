package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MrWong99/papo/pkg/provider/tts"
)

type speechRequest struct {
	Input          string  `json:"input"`
	Model          string  `json:"model"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed"`
}

func newServer(t *testing.T, body []byte) (*httptest.Server, *[]speechRequest, *sync.Mutex) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []speechRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			http.NotFound(w, r)
			return
		}
		var req speechRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		reqs = append(reqs, req)
		mu.Unlock()
		w.Header().Set("Content-Type", "audio/pcm")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs, &mu
}

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestSynthesizeStream(t *testing.T) {
	t.Parallel()
	body := make([]byte, chunkBytes*2+100)
	srv, reqs, mu := newServer(t, body)

	p, err := New("key", WithBaseURL(srv.URL+"/"), WithModel("tts-1"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text := make(chan string, 2)
	text <- "Olá, "
	text <- "Maria!"
	close(text)

	ch, err := p.SynthesizeStream(context.Background(), text, tts.VoiceProfile{ID: "nova", SpeedFactor: 1.1})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	total := 0
	for c := range ch {
		if len(c)%2 != 0 {
			t.Errorf("chunk not sample aligned: %d bytes", len(c))
		}
		total += len(c)
	}
	if total != len(body) {
		t.Errorf("received %d bytes, want %d", total, len(body))
	}

	mu.Lock()
	defer mu.Unlock()
	if len(*reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(*reqs))
	}
	got := (*reqs)[0]
	if got.Input != "Olá, Maria!" || got.Voice != "nova" || got.ResponseFormat != "pcm" || got.Model != "tts-1" {
		t.Errorf("request = %+v", got)
	}
	if got.Speed != 1.1 {
		t.Errorf("speed = %v, want 1.1", got.Speed)
	}
}

func TestSynthesizeStream_EmptyTextSkipsRequest(t *testing.T) {
	t.Parallel()
	srv, reqs, mu := newServer(t, nil)
	p, _ := New("key", WithBaseURL(srv.URL+"/"))

	text := make(chan string)
	close(text)
	ch, err := p.SynthesizeStream(context.Background(), text, tts.VoiceProfile{})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	for range ch {
	}
	mu.Lock()
	defer mu.Unlock()
	if len(*reqs) != 0 {
		t.Errorf("requests = %d, want 0", len(*reqs))
	}
}

func TestSynthesizeStream_Cancelled(t *testing.T) {
	t.Parallel()
	p, _ := New("key", WithBaseURL("http://127.0.0.1:1/"))
	ctx, cancel := context.WithCancel(context.Background())
	text := make(chan string)
	ch, err := p.SynthesizeStream(ctx, text, tts.VoiceProfile{ID: "nova"})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	cancel()
	for range ch {
	}
}

func TestListVoices(t *testing.T) {
	t.Parallel()
	p, _ := New("key")
	vs, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	found := false
	for _, v := range vs {
		if v.ID == "nova" && v.Name == "Nova" {
			found = true
		}
	}
	if !found {
		t.Errorf("nova missing from %v", vs)
	}
}
