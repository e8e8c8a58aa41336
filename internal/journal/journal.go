// Package journal records what happened during each onboarding session:
// step transitions, transcripts, notifications and completion. Entries are
// identified by snowflake IDs and written to one or more [Writer]s (memory,
// PostgreSQL, Kafka).
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/snowflake"
	"golang.org/x/sync/errgroup"
)

// Kind classifies an entry.
type Kind string

const (
	KindStep         Kind = "step"
	KindTranscript   Kind = "transcript"
	KindNotification Kind = "notification"
	KindError        Kind = "error"
	KindCompletion   Kind = "completion"
)

// Entry is one journal record.
type Entry struct {
	ID        int64           `json:"id,string"`
	SessionID string          `json:"session_id"`
	Kind      Kind            `json:"kind"`
	Step      string          `json:"step"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Time      time.Time       `json:"time"`
}

// Writer persists entries. Implementations must be safe for concurrent use.
type Writer interface {
	Write(ctx context.Context, e Entry) error
}

// Multi writes every entry to all writers concurrently and joins their
// errors.
type Multi []Writer

var _ Writer = Multi(nil)

// Write implements [Writer].
func (m Multi) Write(ctx context.Context, e Entry) error {
	var g errgroup.Group
	errs := make([]error, len(m))
	for i, w := range m {
		g.Go(func() error {
			errs[i] = w.Write(ctx, e)
			return nil
		})
	}
	_ = g.Wait()
	var joined []error
	for _, err := range errs {
		if err != nil {
			joined = append(joined, err)
		}
	}
	if len(joined) == 0 {
		return nil
	}
	return fmt.Errorf("journal: %w", errors.Join(joined...))
}

// Journal stamps entries with an ID and time and forwards them to a writer.
// A nil *Journal discards everything.
type Journal struct {
	node *snowflake.Node
	w    Writer
	log  *slog.Logger
	now  func() time.Time
}

// New creates a journal. nodeID distinguishes server instances and must be
// in [0, 1023].
func New(nodeID int64, w Writer, log *slog.Logger) (*Journal, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("journal: snowflake node %d: %w", nodeID, err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Journal{node: node, w: w, log: log, now: time.Now}, nil
}

// Record builds an entry with payload marshalled to JSON and writes it.
// Failures are logged and returned; callers on the hot path usually ignore
// the error.
func (j *Journal) Record(ctx context.Context, sessionID string, kind Kind, step string, payload any) error {
	if j == nil || j.w == nil {
		return nil
	}
	e := Entry{
		ID:        j.node.Generate().Int64(),
		SessionID: sessionID,
		Kind:      kind,
		Step:      step,
		Time:      j.now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("journal: marshal payload: %w", err)
		}
		e.Payload = raw
	}
	if err := j.w.Write(ctx, e); err != nil {
		j.log.Warn("journal: write failed", "session", sessionID, "kind", kind, "err", err)
		return err
	}
	return nil
}

// Sessioned binds a journal to one session ID.
type Sessioned struct {
	J         *Journal
	SessionID string
}

// Record writes an entry for the bound session using a background context
// bounded by a short timeout.
func (s Sessioned) Record(kind Kind, step string, payload any) {
	if s.J == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.J.Record(ctx, s.SessionID, kind, step, payload)
}
