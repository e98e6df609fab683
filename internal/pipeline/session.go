package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/linuxmatters/sonogram/internal/observe"
)

// Runner is the work a Session schedules. *Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, data []byte, mediaType string) (*Result, error)
}

// State is the display state of a session.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// Snapshot is a copy of the session state at one instant.
type Snapshot struct {
	State      State   `json:"state"`
	Generation uint64  `json:"generation"`
	FileName   string  `json:"fileName,omitempty"`
	Result     *Result `json:"result,omitempty"`
	Error      string  `json:"error,omitempty"`

	// Err is the run error behind Error.
	Err error `json:"-"`
}

// Session holds what one user currently sees. Each Select supersedes the
// previous run, and a run publishes its outcome only while its generation
// is still current, so a slow stale run can never overwrite a newer
// selection or a reset.
type Session struct {
	runner  Runner
	metrics *observe.Metrics
	logger  *slog.Logger

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	snap   Snapshot
	closed bool

	wg sync.WaitGroup
}

// SessionOption customises a Session.
type SessionOption func(*Session)

// WithSessionMetrics counts discarded runs and live sessions on m.
func WithSessionMetrics(m *observe.Metrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// WithSessionLogger sets the logger. Defaults to slog.Default.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// NewSession returns an idle session scheduling work on runner.
func NewSession(runner Runner, options ...SessionOption) *Session {
	s := &Session{
		runner: runner,
		snap:   Snapshot{State: StateIdle},
	}
	for _, o := range options {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.metrics.SessionOpened(context.Background())
	return s
}

// Select starts analysing a new file and cancels whatever was running.
// It returns the generation of the new run, or 0 once the session is
// closed.
func (s *Session) Select(fileName string, data []byte, mediaType string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0
	}
	s.supersede()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	gen := s.gen
	s.snap = Snapshot{State: StateRunning, Generation: gen, FileName: fileName}

	s.wg.Add(1)
	go s.run(ctx, gen, data, mediaType)
	return gen
}

// Reset cancels any run and returns the session to idle.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.supersede()
	s.snap = Snapshot{State: StateIdle, Generation: s.gen}
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Wait blocks until every started run has returned.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close cancels any run and waits for it. The session ignores further
// calls afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.supersede()
	s.mu.Unlock()

	s.wg.Wait()
	s.metrics.SessionClosed(context.Background())
}

// supersede invalidates the current generation. Callers hold s.mu.
func (s *Session) supersede() {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Session) run(ctx context.Context, gen uint64, data []byte, mediaType string) {
	defer s.wg.Done()

	res, err := s.runner.Run(ctx, data, mediaType)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		s.metrics.RecordDiscarded(context.Background())
		s.logger.Debug("discarding superseded run", "generation", gen, "current", s.gen)
		return
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	if err != nil {
		s.snap.State = StateFailed
		s.snap.Err = err
		s.snap.Error = err.Error()
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("analysis failed", "file", s.snap.FileName, "error", err)
		}
		return
	}
	s.snap.State = StateDone
	s.snap.Result = res
}
