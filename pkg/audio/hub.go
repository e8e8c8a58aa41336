package audio

import (
	"context"
	"sync"
)

// Permission is the microphone state reported by a client.
type Permission int

const (
	// PermissionPrompt means the client has not answered yet. Opening a
	// stream is allowed; frames arrive once the user grants access.
	PermissionPrompt Permission = iota
	PermissionGranted
	PermissionDenied
	PermissionAbsent
	PermissionUnsupported
)

// String returns the wire name of the permission state.
func (p Permission) String() string {
	switch p {
	case PermissionPrompt:
		return "prompt"
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	case PermissionAbsent:
		return "absent"
	case PermissionUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// ParsePermission maps a wire name to a Permission. Unknown names map to
// [PermissionPrompt].
func ParsePermission(s string) Permission {
	switch s {
	case "granted":
		return PermissionGranted
	case "denied":
		return PermissionDenied
	case "absent":
		return PermissionAbsent
	case "unsupported":
		return PermissionUnsupported
	default:
		return PermissionPrompt
	}
}

// hubBuffer is the per-stream frame buffer. At 20 ms frames this holds
// roughly one second of audio before frames are dropped.
const hubBuffer = 50

// Hub is a [Source] fed by a transport. The transport calls [Hub.Push] for
// every captured frame and the hub fans it out to every open [Stream].
// Slow consumers lose frames rather than blocking the transport.
//
// Hub is safe for concurrent use.
type Hub struct {
	mu      sync.Mutex
	format  Format
	perm    Permission
	streams map[*hubStream]struct{}
	closed  bool
	dropped uint64
}

var _ Source = (*Hub)(nil)

// NewHub creates a hub whose streams deliver frames in the given format.
// Pushed frames are normalised to it.
func NewHub(format Format) *Hub {
	return &Hub{
		format:  format,
		streams: make(map[*hubStream]struct{}),
	}
}

// SetPermission records the client's microphone state. Revoking access
// closes all open streams.
func (h *Hub) SetPermission(p Permission) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.perm = p
	if p != PermissionPrompt && p != PermissionGranted {
		h.closeStreamsLocked()
	}
}

// Permission returns the last reported microphone state.
func (h *Hub) Permission() Permission {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.perm
}

// Open implements [Source].
func (h *Hub) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	switch h.perm {
	case PermissionDenied:
		return nil, ErrPermissionDenied
	case PermissionAbsent:
		return nil, ErrNoMicrophone
	case PermissionUnsupported:
		return nil, ErrUnsupported
	}
	s := &hubStream{hub: h, ch: make(chan Frame, hubBuffer)}
	h.streams[s] = struct{}{}
	return s, nil
}

// Push delivers f to every open stream after converting it to the hub's
// format. It never blocks.
func (h *Hub) Push(f Frame) {
	if len(f.Data) == 0 {
		return
	}
	f = Normalize(f, h.format.SampleRate)
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.streams {
		select {
		case s.ch <- f:
		default:
			h.dropped++
		}
	}
}

// Active returns the number of open streams.
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.streams)
}

// Dropped returns the number of frames discarded because a stream's buffer
// was full.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Close closes every open stream and rejects further Open calls.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.closeStreamsLocked()
	return nil
}

func (h *Hub) closeStreamsLocked() {
	for s := range h.streams {
		delete(h.streams, s)
		close(s.ch)
	}
}

type hubStream struct {
	hub *Hub
	ch  chan Frame
}

func (s *hubStream) Frames() <-chan Frame { return s.ch }

func (s *hubStream) Format() Format { return s.hub.format }

func (s *hubStream) Close() error {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if _, ok := s.hub.streams[s]; ok {
		delete(s.hub.streams, s)
		close(s.ch)
	}
	return nil
}
