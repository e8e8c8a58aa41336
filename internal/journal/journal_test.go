package journal

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type failingWriter struct{ err error }

func (f failingWriter) Write(context.Context, Entry) error { return f.err }

func TestJournal_Record(t *testing.T) {
	t.Parallel()
	mem := NewMemStore(0)
	j, err := New(1, mem, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := j.Record(ctx, "s1", KindStep, "welcome", map[string]string{"to": "phone"}); err != nil {
		t.Fatal(err)
	}
	if err := j.Record(ctx, "s1", KindCompletion, "success", nil); err != nil {
		t.Fatal(err)
	}
	_ = j.Record(ctx, "s2", KindTranscript, "welcome", "oi")

	got := mem.List("s1")
	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2", len(got))
	}
	if got[0].ID == 0 || got[0].ID >= got[1].ID {
		t.Errorf("ids not increasing: %d, %d", got[0].ID, got[1].ID)
	}
	var payload map[string]string
	if err := json.Unmarshal(got[0].Payload, &payload); err != nil || payload["to"] != "phone" {
		t.Errorf("payload = %s (%v)", got[0].Payload, err)
	}
	if got[1].Payload != nil {
		t.Errorf("nil payload stored as %s", got[1].Payload)
	}
	if kinds := mem.Kinds("s2"); len(kinds) != 1 || kinds[0] != KindTranscript {
		t.Errorf("kinds = %v", kinds)
	}
	mem.Forget("s1")
	if len(mem.List("s1")) != 0 {
		t.Error("Forget kept entries")
	}
}

func TestJournal_NilAndInvalid(t *testing.T) {
	t.Parallel()
	var j *Journal
	if err := j.Record(context.Background(), "s", KindStep, "", nil); err != nil {
		t.Errorf("nil journal: %v", err)
	}
	Sessioned{}.Record(KindStep, "welcome", nil)

	if _, err := New(5000, NewMemStore(0), nil); err == nil {
		t.Error("node id out of range accepted")
	}
	jj, _ := New(1, NewMemStore(0), nil)
	if err := jj.Record(context.Background(), "s", KindStep, "", func() {}); err == nil {
		t.Error("unmarshalable payload accepted")
	}
}

func TestMemStore_Cap(t *testing.T) {
	t.Parallel()
	m := NewMemStore(2)
	for i := range 5 {
		_ = m.Write(context.Background(), Entry{ID: int64(i), SessionID: "s"})
	}
	got := m.List("s")
	if len(got) != 2 || got[0].ID != 3 || got[1].ID != 4 {
		t.Errorf("got %+v", got)
	}
}

func TestMulti_JoinsErrors(t *testing.T) {
	t.Parallel()
	a, b := NewMemStore(0), NewMemStore(0)
	boom := errors.New("boom")
	m := Multi{a, failingWriter{err: boom}, b}

	err := m.Write(context.Background(), Entry{ID: 1, SessionID: "s"})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if len(a.List("s")) != 1 || len(b.List("s")) != 1 {
		t.Error("healthy writers did not receive the entry")
	}
	if err := (Multi{a}).Write(context.Background(), Entry{SessionID: "s"}); err != nil {
		t.Errorf("err = %v", err)
	}
}

type fakeKafka struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (f *fakeKafka) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeKafka) Close() error { return nil }

func TestKafkaPublisher_Write(t *testing.T) {
	t.Parallel()
	fk := &fakeKafka{}
	p := &KafkaPublisher{w: fk, topic: "papo.onboarding"}
	e := Entry{ID: 42, SessionID: "s1", Kind: KindStep, Step: "phone", Time: time.Unix(100, 0).UTC()}

	if err := p.Write(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	if len(fk.msgs) != 1 {
		t.Fatalf("messages = %d", len(fk.msgs))
	}
	msg := fk.msgs[0]
	if string(msg.Key) != "s1" {
		t.Errorf("key = %q", msg.Key)
	}
	var decoded Entry
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.ID != 42 || decoded.Step != "phone" || decoded.Kind != KindStep {
		t.Errorf("decoded = %+v", decoded)
	}

	fk.err = errors.New("broker down")
	if err := p.Write(context.Background(), e); err == nil {
		t.Error("broker error swallowed")
	}
}

func TestNewKafkaPublisher_Validation(t *testing.T) {
	t.Parallel()
	if _, err := NewKafkaPublisher(KafkaConfig{Topic: "t"}); err == nil {
		t.Error("no brokers accepted")
	}
	if _, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}}); err == nil {
		t.Error("empty topic accepted")
	}
	p, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t"})
	if err != nil {
		t.Fatal(err)
	}
	_ = p.Close()
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("PAPO_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PAPO_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration test")
	}
	ctx := context.Background()
	store, err := NewPostgresStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	t.Cleanup(store.Close)
	if _, err := store.pool.Exec(ctx, "DELETE FROM onboarding_journal WHERE session_id = 'pg-test'"); err != nil {
		t.Fatal(err)
	}

	j, _ := New(7, store, nil)
	_ = j.Record(ctx, "pg-test", KindStep, "welcome", map[string]int{"n": 1})
	_ = j.Record(ctx, "pg-test", KindCompletion, "success", nil)

	got, err := store.List(ctx, "pg-test")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Kind != KindStep || got[1].Payload != nil {
		t.Errorf("entries = %+v", got)
	}
	if err := store.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
