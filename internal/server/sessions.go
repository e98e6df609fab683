package server

import (
	"errors"
	"sync"
	"time"

	"github.com/linuxmatters/sonogram/internal/pipeline"
)

var (
	errStoreClosed     = errors.New("server is shutting down")
	errTooManySessions = errors.New("too many open sessions")
	errSessionClosed   = errors.New("session was closed before the file was accepted")
)

type sessionEntry struct {
	sess     *pipeline.Session
	lastUsed time.Time
}

// sessionStore maps browser session ids to their display state.
type sessionStore struct {
	newSession func() *pipeline.Session
	maxCount   int
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionEntry
	closed   bool

	// closing tracks sessions released in the background
	closing sync.WaitGroup
}

func newSessionStore(maxCount int, newSession func() *pipeline.Session) *sessionStore {
	return &sessionStore{
		newSession: newSession,
		maxCount:   maxCount,
		now:        time.Now,
		sessions:   make(map[string]*sessionEntry),
	}
}

// selectFile starts a run for id, creating the session on first use. The
// store lock is held across Select so a concurrent remove either happens
// before (and the id is created afresh) or after (and cancels the run).
func (s *sessionStore) selectFile(id, name string, data []byte, mediaType string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errStoreClosed
	}
	e, ok := s.sessions[id]
	if !ok {
		if s.maxCount > 0 && len(s.sessions) >= s.maxCount {
			return 0, errTooManySessions
		}
		e = &sessionEntry{sess: s.newSession()}
		s.sessions[id] = e
	}
	e.lastUsed = s.now()

	gen := e.sess.Select(name, data, mediaType)
	if gen == 0 {
		return 0, errSessionClosed
	}
	return gen, nil
}

func (s *sessionStore) get(id string) (*pipeline.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastUsed = s.now()
	return e.sess, true
}

// remove resets the session at once so nothing more is published, then
// waits for its run in the background.
func (s *sessionStore) remove(id string) bool {
	s.mu.Lock()
	e, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return false
	}
	s.release(e.sess)
	return true
}

// expire releases sessions untouched for longer than idle. Sessions with
// a run in flight are kept whatever their age.
func (s *sessionStore) expire(idle time.Duration) int {
	if idle <= 0 {
		return 0
	}
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	var stale []*pipeline.Session
	for id, e := range s.sessions {
		if e.lastUsed.After(cutoff) || e.sess.Snapshot().State == pipeline.StateRunning {
			continue
		}
		stale = append(stale, e.sess)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, sess := range stale {
		s.release(sess)
	}
	return len(stale)
}

func (s *sessionStore) release(sess *pipeline.Session) {
	sess.Reset()
	s.closing.Add(1)
	go func() {
		defer s.closing.Done()
		sess.Close()
	}()
}

func (s *sessionStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// closeAll closes every session, refuses new ones and waits for all runs
// to return.
func (s *sessionStore) closeAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*sessionEntry)
	s.closed = true
	s.mu.Unlock()

	for _, e := range all {
		e.sess.Close()
	}
	s.closing.Wait()
}
