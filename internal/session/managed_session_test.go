package session

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/opensandbox/msbgateway/pkg/types"
)

func newTestSession(remote RemoteClient, clk clock.Clock) *ManagedSession {
	return newManagedSession("sess-1", types.TemplatePython, types.FlavorSmall, nil, remote, clk, 30*time.Second, 10*time.Second)
}

func TestEnsureStarted_IssuesAtMostOneRemoteStart(t *testing.T) {
	remote := &fakeRemote{}
	clk := clock.NewMock()
	s := newTestSession(remote, clk)

	if err := s.EnsureStarted(context.Background()); err != nil {
		t.Fatalf("first EnsureStarted: %v", err)
	}
	if err := s.EnsureStarted(context.Background()); err != nil {
		t.Fatalf("second EnsureStarted: %v", err)
	}
	if err := s.EnsureStarted(context.Background()); err != nil {
		t.Fatalf("third EnsureStarted: %v", err)
	}

	if got := remote.StartCalls(); got != 1 {
		t.Fatalf("expected exactly 1 remote start, got %d", got)
	}
	if s.Status() != types.StatusReady {
		t.Fatalf("expected status READY after start, got %s", s.Status())
	}
}

func TestEnsureStarted_PropagatesSandboxCreationError(t *testing.T) {
	remote := &fakeRemote{startErr: errBoom}
	clk := clock.NewMock()
	s := newTestSession(remote, clk)

	err := s.EnsureStarted(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if s.Status() != types.StatusError {
		t.Fatalf("expected status ERROR, got %s", s.Status())
	}

	// A later retry should attempt the remote start again since it never
	// succeeded.
	remote.startErr = nil
	if err := s.EnsureStarted(context.Background()); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if got := remote.StartCalls(); got != 2 {
		t.Fatalf("expected 2 start attempts total, got %d", got)
	}
}

func TestRunCode_ReturnsToReadyAfterExecution(t *testing.T) {
	remote := &fakeRemote{}
	clk := clock.NewMock()
	s := newTestSession(remote, clk)

	result, err := s.RunCode(context.Background(), "print(1)", 0)
	if err != nil {
		t.Fatalf("RunCode: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if s.Status() != types.StatusReady {
		t.Fatalf("expected READY after execution, got %s", s.Status())
	}
}

func TestStop_IsIdempotent(t *testing.T) {
	remote := &fakeRemote{}
	clk := clock.NewMock()
	s := newTestSession(remote, clk)

	if err := s.EnsureStarted(context.Background()); err != nil {
		t.Fatalf("EnsureStarted: %v", err)
	}

	s.Stop(context.Background())
	s.Stop(context.Background())
	s.Stop(context.Background())

	if got := remote.StopCalls(); got != 1 {
		t.Fatalf("expected exactly 1 remote stop, got %d", got)
	}
	if s.Status() != types.StatusStopped {
		t.Fatalf("expected STOPPED, got %s", s.Status())
	}
}

func TestIsExpired_RespectsIdleTimeout(t *testing.T) {
	remote := &fakeRemote{}
	clk := clock.NewMock()
	s := newTestSession(remote, clk)

	if s.IsExpired(time.Minute) {
		t.Fatal("freshly created session should not be expired")
	}

	clk.Add(2 * time.Minute)
	if !s.IsExpired(time.Minute) {
		t.Fatal("session idle past timeout should be expired")
	}
}

func TestCanBeEvicted_ProtectsCreatingAndProcessing(t *testing.T) {
	remote := &fakeRemote{runCodeDelay: 0}
	clk := clock.NewMock()
	s := newTestSession(remote, clk)

	// Freshly constructed sessions start in CREATING.
	if s.CanBeEvicted() {
		t.Fatal("CREATING session must not be evictable")
	}

	if err := s.EnsureStarted(context.Background()); err != nil {
		t.Fatalf("EnsureStarted: %v", err)
	}
	if !s.CanBeEvicted() {
		t.Fatal("READY session should be evictable")
	}

	s.status = types.StatusProcessing
	if s.CanBeEvicted() {
		t.Fatal("PROCESSING session must not be evictable")
	}
}
