package server

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/linuxmatters/sonogram/internal/config"
	"github.com/linuxmatters/sonogram/internal/pipeline"
)

// gateRunner blocks every run until release is closed or the run is
// cancelled.
type gateRunner struct {
	release chan struct{}
}

func (r *gateRunner) Run(ctx context.Context, data []byte, mediaType string) (*pipeline.Result, error) {
	select {
	case <-r.release:
		return &pipeline.Result{Image: string(data)}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newGatedStore(t *testing.T, maxCount int) (*sessionStore, *gateRunner) {
	t.Helper()
	r := &gateRunner{release: make(chan struct{})}
	s := newSessionStore(maxCount, func() *pipeline.Session { return pipeline.NewSession(r) })
	t.Cleanup(s.closeAll)
	return s, r
}

func waitDone(t *testing.T, sess *pipeline.Session) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for sess.Snapshot().State == pipeline.StateRunning {
		if time.Now().After(deadline) {
			t.Fatalf("session still running: %+v", sess.Snapshot())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSessionStore_SelectErrors(t *testing.T) {
	testCases := []struct {
		name    string
		setup   func(s *sessionStore)
		id      string
		wantErr error
	}{
		{
			name:  "fresh id",
			setup: func(s *sessionStore) {},
			id:    "a",
		},
		{
			name: "existing id at the cap",
			setup: func(s *sessionStore) {
				s.selectFile("a", "one.wav", []byte("1"), "audio/wav")
				s.selectFile("b", "two.wav", []byte("2"), "audio/wav")
			},
			id: "a",
		},
		{
			name: "new id over the cap",
			setup: func(s *sessionStore) {
				s.selectFile("a", "one.wav", []byte("1"), "audio/wav")
				s.selectFile("b", "two.wav", []byte("2"), "audio/wav")
			},
			id:      "c",
			wantErr: errTooManySessions,
		},
		{
			name:    "store shut down",
			setup:   func(s *sessionStore) { s.closeAll() },
			id:      "a",
			wantErr: errStoreClosed,
		},
		{
			name: "session closed under the store",
			setup: func(s *sessionStore) {
				s.selectFile("a", "one.wav", []byte("1"), "audio/wav")
				sess, _ := s.get("a")
				sess.Close()
			},
			id:      "a",
			wantErr: errSessionClosed,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newGatedStore(t, 2)
			tc.setup(s)

			gen, err := s.selectFile(tc.id, "x.wav", []byte("x"), "audio/wav")
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("selectFile error = %v, want %v", err, tc.wantErr)
			}
			if err == nil && gen == 0 {
				t.Error("accepted select returned generation 0")
			}
			if err != nil && gen != 0 {
				t.Errorf("rejected select returned generation %d", gen)
			}
		})
	}
}

// TestSessionStore_RemoveThenSelect checks that a select after a delete
// always lands on a live session and runs to completion.
func TestSessionStore_RemoveThenSelect(t *testing.T) {
	s, r := newGatedStore(t, 0)

	if _, err := s.selectFile("a", "one.wav", []byte("1"), "audio/wav"); err != nil {
		t.Fatalf("selectFile: %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			s.remove("a")
		}
	}()
	for i := 0; i < 50; i++ {
		if _, err := s.selectFile("a", "again.wav", []byte("2"), "audio/wav"); err != nil {
			t.Fatalf("selectFile %d: %v", i, err)
		}
	}
	<-done

	gen, err := s.selectFile("a", "last.wav", []byte("3"), "audio/wav")
	if err != nil {
		t.Fatalf("final selectFile: %v", err)
	}
	close(r.release)

	sess, ok := s.get("a")
	if !ok {
		t.Fatal("session missing after select")
	}
	waitDone(t, sess)
	snap := sess.Snapshot()
	if snap.State != pipeline.StateDone || snap.Generation != gen {
		t.Errorf("snapshot = %+v, want done at generation %d", snap, gen)
	}
}

func TestSessionStore_Expire(t *testing.T) {
	s, r := newGatedStore(t, 0)
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	// "old" finishes, "busy" is still running when the sweep comes
	s.selectFile("old", "old.wav", []byte("old"), "audio/wav")
	close(r.release)
	old, _ := s.get("old")
	waitDone(t, old)

	r.release = make(chan struct{})
	s.selectFile("busy", "busy.wav", []byte("busy"), "audio/wav")

	now = now.Add(10 * time.Minute)
	s.selectFile("fresh", "fresh.wav", []byte("fresh"), "audio/wav")

	now = now.Add(time.Minute)
	if n := s.expire(5 * time.Minute); n != 1 {
		t.Errorf("expire removed %d sessions, want 1", n)
	}

	for _, tc := range []struct {
		id   string
		kept bool
	}{
		{"old", false},
		{"busy", true},
		{"fresh", true},
	} {
		if _, ok := s.get(tc.id); ok != tc.kept {
			t.Errorf("session %q kept = %v, want %v", tc.id, ok, tc.kept)
		}
	}
	close(r.release)

	if n := s.expire(0); n != 0 {
		t.Errorf("expire(0) removed %d sessions", n)
	}
}

func TestSessionFile_Rejections(t *testing.T) {
	t.Run("too many sessions", func(t *testing.T) {
		s := newTestServer(t, &stubClassifier{}, func(c *config.ServerConfig) { c.MaxSessions = 1 })

		rec := serve(s, uploadRequest(t, "/api/sessions/a/file", "audio", "tone.wav", "audio/wav", toneWAV(t)))
		if rec.Code != http.StatusAccepted {
			t.Fatalf("first select = %d, body %s", rec.Code, rec.Body)
		}
		rec = serve(s, uploadRequest(t, "/api/sessions/b/file", "audio", "tone.wav", "audio/wav", toneWAV(t)))
		if rec.Code != http.StatusTooManyRequests {
			t.Errorf("second id = %d, want 429", rec.Code)
		}
		rec = serve(s, uploadRequest(t, "/api/sessions/a/file", "audio", "tone.wav", "audio/wav", toneWAV(t)))
		if rec.Code != http.StatusAccepted {
			t.Errorf("reselect on existing id = %d, want 202", rec.Code)
		}
	})

	t.Run("after shutdown", func(t *testing.T) {
		s := newTestServer(t, &stubClassifier{})
		s.sessions.closeAll()

		rec := serve(s, uploadRequest(t, "/api/sessions/a/file", "audio", "tone.wav", "audio/wav", toneWAV(t)))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("select after shutdown = %d, want 503", rec.Code)
		}
		if n := s.sessions.count(); n != 0 {
			t.Errorf("sessions created after shutdown = %d", n)
		}
	})

	t.Run("session closed", func(t *testing.T) {
		s := newTestServer(t, &stubClassifier{})
		rec := serve(s, uploadRequest(t, "/api/sessions/a/file", "audio", "tone.wav", "audio/wav", toneWAV(t)))
		if rec.Code != http.StatusAccepted {
			t.Fatalf("first select = %d", rec.Code)
		}
		sess, _ := s.sessions.get("a")
		sess.Close()

		rec = serve(s, uploadRequest(t, "/api/sessions/a/file", "audio", "tone.wav", "audio/wav", toneWAV(t)))
		if rec.Code != http.StatusConflict {
			t.Errorf("select on closed session = %d, want 409", rec.Code)
		}
	})
}
