package session

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/opensandbox/msbgateway/pkg/types"
)

func TestGetOrCreate_ReusesLiveSession(t *testing.T) {
	remote := &fakeRemote{}
	clk := clock.NewMock()
	m := New(remote, clk, time.Minute, time.Minute, 30*time.Second, 10*time.Second)

	s1, created1 := m.GetOrCreate(context.Background(), "fixed-id", types.TemplatePython, types.FlavorSmall, nil)
	if !created1 {
		t.Fatal("expected first call to create a new session")
	}
	s2, created2 := m.GetOrCreate(context.Background(), "fixed-id", types.TemplatePython, types.FlavorSmall, nil)
	if created2 {
		t.Fatal("expected second call to reuse the existing session")
	}
	if s1 != s2 {
		t.Fatal("expected the same *ManagedSession pointer back")
	}
}

func TestGetOrCreate_MintsUUIDWhenEmpty(t *testing.T) {
	remote := &fakeRemote{}
	clk := clock.NewMock()
	m := New(remote, clk, time.Minute, time.Minute, 30*time.Second, 10*time.Second)

	s, created := m.GetOrCreate(context.Background(), "", types.TemplatePython, types.FlavorSmall, nil)
	if !created {
		t.Fatal("expected creation")
	}
	if s.SessionID() == "" {
		t.Fatal("expected a minted session id")
	}
}

func TestGetOrCreate_ReplacesExpiredSession(t *testing.T) {
	remote := &fakeRemote{}
	clk := clock.NewMock()
	m := New(remote, clk, time.Minute, time.Minute, 30*time.Second, 10*time.Second)

	s1, _ := m.GetOrCreate(context.Background(), "fixed-id", types.TemplatePython, types.FlavorSmall, nil)
	clk.Add(2 * time.Minute)

	s2, created := m.GetOrCreate(context.Background(), "fixed-id", types.TemplatePython, types.FlavorSmall, nil)
	if !created {
		t.Fatal("expected a fresh session to replace the expired one")
	}
	if s1 == s2 {
		t.Fatal("expected a distinct *ManagedSession after expiry")
	}
}

func TestStop_IsIdempotentAtManagerLevel(t *testing.T) {
	remote := &fakeRemote{}
	clk := clock.NewMock()
	m := New(remote, clk, time.Minute, time.Minute, 30*time.Second, 10*time.Second)

	m.GetOrCreate(context.Background(), "fixed-id", types.TemplatePython, types.FlavorSmall, nil)

	if ok := m.Stop(context.Background(), "fixed-id"); !ok {
		t.Fatal("expected first stop to report the session was present")
	}
	if ok := m.Stop(context.Background(), "fixed-id"); ok {
		t.Fatal("expected second stop to report absence — already removed")
	}
	if _, ok := m.Get("fixed-id"); ok {
		t.Fatal("expected session to be gone from the registry")
	}
}

func TestReapExpired_RemovesIdleSessionsOnly(t *testing.T) {
	remote := &fakeRemote{}
	clk := clock.NewMock()
	m := New(remote, clk, time.Minute, time.Minute, 30*time.Second, 10*time.Second)

	idle, _ := m.GetOrCreate(context.Background(), "idle", types.TemplatePython, types.FlavorSmall, nil)
	fresh, _ := m.GetOrCreate(context.Background(), "fresh", types.TemplatePython, types.FlavorSmall, nil)
	_ = idle

	clk.Add(2 * time.Minute)
	fresh.Touch()

	m.reapExpired(context.Background())

	if _, ok := m.Get("idle"); ok {
		t.Fatal("expected idle session to be reaped")
	}
	if _, ok := m.Get("fresh"); !ok {
		t.Fatal("expected recently touched session to survive")
	}
}

func TestPauseResumeHealthy(t *testing.T) {
	remote := &fakeRemote{}
	clk := clock.NewMock()
	m := New(remote, clk, time.Minute, time.Minute, 30*time.Second, 10*time.Second)

	m.Start()
	if !m.Healthy() {
		t.Fatal("expected reaper to be healthy after Start")
	}
	m.Pause()
	if m.Healthy() {
		t.Fatal("expected reaper to be unhealthy after Pause")
	}
	m.Resume()
	if !m.Healthy() {
		t.Fatal("expected reaper to be healthy again after Resume")
	}
	m.Pause()
}

func TestGracefulShutdown_StopsAllSessions(t *testing.T) {
	remote := &fakeRemote{}
	clk := clock.NewMock()
	m := New(remote, clk, time.Minute, time.Minute, 30*time.Second, 10*time.Second)

	m.GetOrCreate(context.Background(), "a", types.TemplatePython, types.FlavorSmall, nil)
	m.GetOrCreate(context.Background(), "b", types.TemplatePython, types.FlavorSmall, nil)

	stopped, remaining := m.GracefulShutdown(context.Background(), 5*time.Second)
	if stopped != 2 {
		t.Fatalf("expected 2 stopped, got %d", stopped)
	}
	if remaining != 0 {
		t.Fatalf("expected 0 remaining, got %d", remaining)
	}
	if m.Count() != 0 {
		t.Fatalf("expected empty registry, got %d", m.Count())
	}
}
