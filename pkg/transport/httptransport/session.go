// Package httptransport implements the streamable HTTP transport: a
// session-scoped JSON-RPC endpoint over POST/GET/DELETE, with responses
// to requests made while no SSE stream is attached buffered per session.
package httptransport

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// sseBufferSize bounds the per-session buffered-response channel;
	// once full, the oldest buffered frame is dropped to make room for
	// the newest one.
	sseBufferSize = 256

	// DefaultIdleTTL is how long a session may see no activity before
	// the cleanup goroutine reclaims it.
	DefaultIdleTTL = 15 * time.Minute

	cleanupInterval = time.Minute
)

type sessionState int

const (
	sessionActive sessionState = iota
	sessionClosed
)

// session holds one Mcp-Session-Id's buffered-response queue and the
// single SSE stream, if any, currently attached to it.
type session struct {
	id string

	mu         sync.Mutex
	state      sessionState
	lastActive time.Time

	queued    [][]byte // JSON frames queued while no SSE stream is attached
	streaming bool
	streamCh  chan []byte // non-nil while a GET stream is attached

	closeOnce   sync.Once
	closeSignal chan struct{} // closed to tell an attached stream to emit "close" and exit
}

func newSession(id string) *session {
	return &session{id: id, state: sessionActive, lastActive: time.Now(), closeSignal: make(chan struct{})}
}

// closedSignal returns the channel a GET stream should select on to learn
// that this session is being torn down.
func (s *session) closedSignal() <-chan struct{} {
	return s.closeSignal
}

// notifyClose wakes any attached stream so it can emit the SSE "close"
// event before the session disappears. Safe to call more than once.
func (s *session) notifyClose() {
	s.closeOnce.Do(func() { close(s.closeSignal) })
}

func (s *session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *session) idleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActive)
}

func (s *session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == sessionClosed
}

// enqueue delivers frame either to the live SSE stream or to the bounded
// backlog, dropping the oldest queued frame on overflow.
func (s *session) enqueue(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streaming && s.streamCh != nil {
		select {
		case s.streamCh <- frame:
			return
		default:
			// Stream's own channel is full; fall through to backlog so the
			// frame is not silently lost before the stream catches up.
		}
	}
	if len(s.queued) >= sseBufferSize {
		s.queued = s.queued[1:]
	}
	s.queued = append(s.queued, frame)
}

// attachStream marks this session as having a live SSE reader and drains
// any backlog into it. Returns false if a stream is already attached:
// a session allows at most one concurrent stream.
func (s *session) attachStream() (chan []byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streaming {
		return nil, false
	}
	ch := make(chan []byte, sseBufferSize)
	for _, frame := range s.queued {
		ch <- frame
	}
	s.queued = nil
	s.streaming = true
	s.streamCh = ch
	return ch, true
}

func (s *session) detachStream() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming = false
	s.streamCh = nil
}

func (s *session) close() {
	s.mu.Lock()
	s.state = sessionClosed
	s.mu.Unlock()
	s.notifyClose()
}

// sessionTable is the mutex-guarded sessionID to session map: lookups,
// inserts, and deletes are all O(1).
type sessionTable struct {
	mu       sync.RWMutex
	sessions map[string]*session
	idleTTL  time.Duration
	stopCh   chan struct{}
}

func newSessionTable(idleTTL time.Duration) *sessionTable {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	t := &sessionTable{sessions: make(map[string]*session), idleTTL: idleTTL, stopCh: make(chan struct{})}
	go t.runCleanup()
	return t
}

func (t *sessionTable) create() *session {
	id := uuid.NewString()
	s := newSession(id)
	t.mu.Lock()
	t.sessions[id] = s
	t.mu.Unlock()
	return s
}

func (t *sessionTable) get(id string) (*session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[id]
	if !ok || s.isClosed() {
		return nil, false
	}
	return s, true
}

func (t *sessionTable) terminate(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return false
	}
	s.close()
	delete(t.sessions, id)
	return true
}

func (t *sessionTable) runCleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.sweepExpired()
		}
	}
}

func (t *sessionTable) sweepExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, s := range t.sessions {
		if s.idleSince() > t.idleTTL {
			s.close()
			delete(t.sessions, id)
		}
	}
}

func (t *sessionTable) stop() {
	close(t.stopCh)
}

// closeAll signals every live session so any attached SSE stream emits a
// "close" event before this table's owning Transport shuts down.
func (t *sessionTable) closeAll() {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.sessions {
		s.notifyClose()
	}
}
