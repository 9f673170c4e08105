// Package session owns ManagedSession (a single reusable sandbox handle)
// and Manager (the registry + idle-timeout reaper).
package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/opensandbox/msbgateway/internal/audit"
	"github.com/opensandbox/msbgateway/internal/metrics"
	"github.com/opensandbox/msbgateway/pkg/types"
)

const reaperStopConcurrency = 5

// Manager is the registry of ManagedSessions keyed by session id. The
// registry lock is held only for O(1) lookups/inserts/deletes; it is never
// held across an RPC.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*ManagedSession

	remote RemoteClient
	clock  clock.Clock
	audit  *audit.Log // optional; nil disables audit recording

	sessionTimeout          time.Duration
	cleanupInterval         time.Duration
	sandboxStartTimeout     time.Duration
	defaultExecutionTimeout time.Duration

	reaperMu   sync.Mutex
	reaperDone chan struct{}
	reaperStop context.CancelFunc
}

// New constructs a Manager. It does not start the reaper loop — call Start.
func New(remote RemoteClient, clk clock.Clock, sessionTimeout, cleanupInterval, sandboxStartTimeout, defaultExecutionTimeout time.Duration) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	return &Manager{
		sessions:                make(map[string]*ManagedSession),
		remote:                  remote,
		clock:                   clk,
		sessionTimeout:          sessionTimeout,
		cleanupInterval:         cleanupInterval,
		sandboxStartTimeout:     sandboxStartTimeout,
		defaultExecutionTimeout: defaultExecutionTimeout,
	}
}

// SetAuditLog attaches an optional audit sink. Passing nil disables
// recording; safe to call before Start.
func (m *Manager) SetAuditLog(log *audit.Log) {
	m.audit = log
}

func (m *Manager) recordAudit(sessionID string, event audit.Event) {
	if m.audit == nil {
		return
	}
	_ = m.audit.Record(sessionID, event, "", m.clock.Now())
}

// GetOrCreate reuses a live, unexpired session for sessionID if present;
// otherwise it mints a fresh one unconditionally. Template/flavor mismatch
// against a reused live session is not checked — the existing session is
// reused as-is. Prefer ReserveOrReuse when admission must be enforced.
func (m *Manager) GetOrCreate(ctx context.Context, sessionID string, template types.Template, flavor types.Flavor, volumes []types.VolumeMapping) (sess *ManagedSession, created bool) {
	sess, created, _ = m.ReserveOrReuse(ctx, sessionID, template, flavor, volumes, func(int, int) bool { return true })
	return sess, created
}

// ReserveOrReuse reuses a live, unexpired session for sessionID if present
// (always admitted — reusing a session never grows the registry). Otherwise
// it holds the registry lock across both the admission decision and the
// insertion of the new placeholder session, so admit's view of the active
// count and aggregate memory is authoritative at the moment of insertion:
// no other caller can observe the same pre-insertion snapshot and also be
// admitted. admit receives the count/memory of all non-stopped sessions
// excluding the one being reserved. If admit refuses, nothing is inserted.
func (m *Manager) ReserveOrReuse(ctx context.Context, sessionID string, template types.Template, flavor types.Flavor, volumes []types.VolumeMapping, admit func(activeSessions, totalMemoryMB int) bool) (sess *ManagedSession, created bool, admitted bool) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	m.mu.Lock()
	existing, ok := m.sessions[sessionID]
	if ok {
		if !existing.IsExpired(m.sessionTimeout) {
			m.mu.Unlock()
			existing.Touch()
			return existing, false, true
		}
		delete(m.sessions, sessionID)
		m.mu.Unlock()
		existing.Stop(ctx)
		m.mu.Lock()
	}

	active, totalMemoryMB := m.activeCountAndMemoryLocked()
	if !admit(active, totalMemoryMB) {
		m.mu.Unlock()
		return nil, false, false
	}

	fresh := newManagedSession(sessionID, template, flavor, volumes, m.remote, m.clock, m.sandboxStartTimeout, m.defaultExecutionTimeout)
	m.sessions[sessionID] = fresh
	m.mu.Unlock()

	m.recordAudit(sessionID, audit.EventCreated)
	metrics.SessionsActive.WithLabelValues(string(flavor), string(template)).Inc()

	return fresh, true, true
}

// activeCountAndMemoryLocked computes the non-STOPPED session count and
// aggregate memory. Callers must hold m.mu.
func (m *Manager) activeCountAndMemoryLocked() (active, totalMemoryMB int) {
	for _, s := range m.sessions {
		if s.Status() == types.StatusStopped {
			continue
		}
		active++
		totalMemoryMB += s.Flavor().MemoryMB()
	}
	return active, totalMemoryMB
}

// Get looks up a session by id without creating one.
func (m *Manager) Get(sessionID string) (*ManagedSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// Stop stops and removes a session, reporting whether it was present.
func (m *Manager) Stop(ctx context.Context, sessionID string) bool {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	s.Stop(ctx)
	m.recordAudit(sessionID, audit.EventStopped)
	metrics.SessionsActive.WithLabelValues(string(s.Flavor()), string(s.Template())).Dec()
	return true
}

// remove drops a session from the registry without stopping it (the caller
// has already stopped it). Used by the idle reaper and GracefulShutdown.
func (m *Manager) remove(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

// Snapshot returns immutable SessionInfo copies for all sessions, or just
// the one matching sessionID if non-empty.
func (m *Manager) Snapshot(sessionID string) []types.SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessionID != "" {
		if s, ok := m.sessions[sessionID]; ok {
			return []types.SessionInfo{s.Info()}
		}
		return nil
	}

	out := make([]types.SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Info())
	}
	return out
}

// All returns the live *ManagedSession values, for use by the resource
// manager's admission/eviction logic. Callers must not mutate the slice's
// backing map; they own only the pointers.
func (m *Manager) All() []*ManagedSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ManagedSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Count returns the number of sessions currently in the registry
// (including CREATING placeholders, excluding nothing).
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Start launches the idle-timeout reaper loop.
func (m *Manager) Start() {
	m.reaperMu.Lock()
	defer m.reaperMu.Unlock()
	if m.reaperDone != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.reaperStop = cancel
	done := make(chan struct{})
	m.reaperDone = done
	go m.reapLoop(ctx, done)
}

func (m *Manager) reapLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := m.clock.Ticker(m.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := m.clock.Now()
			m.reapExpired(ctx)
			metrics.ReaperCycleDuration.WithLabelValues("idle").Observe(m.clock.Now().Sub(start).Seconds())
		}
	}
}

func (m *Manager) reapExpired(ctx context.Context) {
	m.mu.Lock()
	expired := make([]*ManagedSession, 0)
	for _, s := range m.sessions {
		if s.IsExpired(m.sessionTimeout) {
			expired = append(expired, s)
		}
	}
	m.mu.Unlock()

	if len(expired) == 0 {
		return
	}

	sem := semaphore.NewWeighted(reaperStopConcurrency)
	var wg sync.WaitGroup
	for _, s := range expired {
		s := s
		wg.Add(1)
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Done()
			continue
		}
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			s.Stop(ctx)
			m.remove(s.sessionID)
			m.recordAudit(s.sessionID, audit.EventStopped)
			metrics.SessionsActive.WithLabelValues(string(s.Flavor()), string(s.Template())).Dec()
		}()
	}
	wg.Wait()
}

// Pause cancels the reaper loop without clearing registered sessions.
func (m *Manager) Pause() {
	m.reaperMu.Lock()
	defer m.reaperMu.Unlock()
	if m.reaperStop != nil {
		m.reaperStop()
	}
	if m.reaperDone != nil {
		<-m.reaperDone
	}
	m.reaperDone = nil
	m.reaperStop = nil
}

// Resume re-spawns the reaper loop if it is not already running.
func (m *Manager) Resume() {
	m.Start()
}

// Healthy reports whether the reaper loop is currently running.
func (m *Manager) Healthy() bool {
	m.reaperMu.Lock()
	defer m.reaperMu.Unlock()
	if m.reaperDone == nil {
		return false
	}
	select {
	case <-m.reaperDone:
		return false
	default:
		return true
	}
}

// RestartIfNeeded respawns the reaper if it has exited non-nominally.
func (m *Manager) RestartIfNeeded() {
	if !m.Healthy() {
		m.reaperMu.Lock()
		m.reaperDone = nil
		m.reaperStop = nil
		m.reaperMu.Unlock()
		m.Start()
	}
}

// GracefulShutdown cancels the reaper, then stops every session
// concurrently under the supplied deadline. After the deadline it forcibly
// clears the registry and reports how many sessions were left unstopped.
func (m *Manager) GracefulShutdown(ctx context.Context, timeout time.Duration) (stopped, remaining int) {
	m.Pause()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	all := m.All()
	sem := semaphore.NewWeighted(reaperStopConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, s := range all {
		s := s
		wg.Add(1)
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Done()
			continue
		}
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			s.Stop(ctx)
			m.remove(s.sessionID)
			metrics.SessionsActive.WithLabelValues(string(s.Flavor()), string(s.Template())).Dec()
			mu.Lock()
			stopped++
			mu.Unlock()
		}()
	}

	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-ctx.Done():
		log.Printf("session: graceful shutdown deadline exceeded, clearing registry forcibly")
	}

	remaining = m.Count()
	if remaining > 0 {
		m.mu.Lock()
		m.sessions = make(map[string]*ManagedSession)
		m.mu.Unlock()
	}
	return stopped, remaining
}
