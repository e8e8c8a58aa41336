package onboarding

import (
	"log/slog"
	"sync"

	"github.com/MrWong99/papo/internal/journal"
)

const journalQueueSize = 128

type queuedEntry struct {
	kind    journal.Kind
	step    string
	payload any
}

// journalQueue writes entries on its own goroutine so slow storage never
// holds up the step machine. Entries keep their order; when the queue is
// full new entries are dropped.
type journalQueue struct {
	j    Journal
	log  *slog.Logger
	ch   chan queuedEntry
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func newJournalQueue(j Journal, log *slog.Logger) *journalQueue {
	q := &journalQueue{
		j:    j,
		log:  log,
		ch:   make(chan queuedEntry, journalQueueSize),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *journalQueue) push(kind journal.Kind, step string, payload any) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	select {
	case q.ch <- queuedEntry{kind: kind, step: step, payload: payload}:
	default:
		q.log.Warn("onboarding: journal queue full, dropping entry", "kind", kind)
	}
}

func (q *journalQueue) run() {
	defer close(q.done)
	for e := range q.ch {
		q.j.Record(e.kind, e.step, e.payload)
	}
}

// close flushes the queue and waits for the writer goroutine.
func (q *journalQueue) close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
	<-q.done
}
