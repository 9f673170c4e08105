// Package resource is the global admission controller and orphan reaper:
// it enforces session-count and aggregate-memory caps via LRU eviction, and
// periodically reconciles the remote server's running sandboxes against the
// local session registry.
package resource

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/semaphore"

	"github.com/opensandbox/msbgateway/internal/audit"
	"github.com/opensandbox/msbgateway/internal/metrics"
	"github.com/opensandbox/msbgateway/internal/msberrors"
	"github.com/opensandbox/msbgateway/internal/rpcclient"
	"github.com/opensandbox/msbgateway/internal/session"
	"github.com/opensandbox/msbgateway/pkg/types"
)

const orphanStopConcurrency = 5
const statsLogEveryNCycles = 10

// RemoteMetrics is the subset of rpcclient.Client the orphan reaper needs.
type RemoteMetrics interface {
	ListSandboxMetrics(ctx context.Context, namespace string) ([]rpcclient.SandboxMetric, error)
	StopSandbox(ctx context.Context, namespace, name string) error
}

// Manager enforces admission caps and reaps orphaned remote sandboxes.
type Manager struct {
	sessions *session.Manager
	remote   RemoteMetrics
	clock    clock.Clock
	audit    *audit.Log // optional; nil disables audit recording

	maxConcurrentSessions int
	maxTotalMemoryMB      *int
	enableLRUEviction     bool
	orphanCleanupInterval time.Duration

	statsMu sync.Mutex
	stats   types.OrphanStats

	reaperMu   sync.Mutex
	reaperDone chan struct{}
	reaperStop context.CancelFunc
}

func New(sessions *session.Manager, remote RemoteMetrics, clk clock.Clock, maxConcurrentSessions int, maxTotalMemoryMB *int, enableLRUEviction bool, orphanCleanupInterval time.Duration) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	return &Manager{
		sessions:              sessions,
		remote:                remote,
		clock:                 clk,
		maxConcurrentSessions: maxConcurrentSessions,
		maxTotalMemoryMB:      maxTotalMemoryMB,
		enableLRUEviction:     enableLRUEviction,
		orphanCleanupInterval: orphanCleanupInterval,
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

// Stats computes a ResourceStats snapshot on demand from the registry.
// "Active" excludes STOPPED sessions.
func (m *Manager) Stats(startedAt time.Time) types.ResourceStats {
	all := m.sessions.All()
	stats := types.ResourceStats{
		MaxSessions:     m.maxConcurrentSessions,
		PerFlavorCounts: map[types.Flavor]int{},
		UptimeSeconds:   m.clock.Now().Sub(startedAt).Seconds(),
	}
	for _, s := range all {
		if s.Status() == types.StatusStopped {
			continue
		}
		stats.ActiveSessions++
		stats.PerFlavorCounts[s.Flavor()]++
		stats.TotalMemoryMB += s.Flavor().MemoryMB()
		stats.TotalCPUs += s.Flavor().CPUs()
	}
	return stats
}

// admitLocked is the pure admission predicate handed to
// session.Manager.ReserveOrReuse: it sees the registry's active-session
// count and aggregate memory as of the moment of insertion, under the
// registry lock, so two concurrent admits can never both pass at capacity.
func (m *Manager) admitLocked(flavor types.Flavor) func(activeSessions, totalMemoryMB int) bool {
	return func(activeSessions, totalMemoryMB int) bool {
		sessionsOK := activeSessions+1 <= m.maxConcurrentSessions
		memoryOK := m.maxTotalMemoryMB == nil || totalMemoryMB+flavor.MemoryMB() <= *m.maxTotalMemoryMB
		return sessionsOK && memoryOK
	}
}

// AdmitSession is the combined admission-and-reservation call: it performs
// the capacity check and, if it passes, the registry insertion under the
// same session-registry lock (via session.Manager.ReserveOrReuse), so the
// decision and the insertion can never be split by a concurrent caller.
// When the registry is already full, it evicts LRU sessions (if allowed)
// and retries the reservation once before giving up.
func (m *Manager) AdmitSession(ctx context.Context, sessionID string, template types.Template, flavor types.Flavor, volumes []types.VolumeMapping) (*session.ManagedSession, bool, error) {
	sess, created, admitted := m.sessions.ReserveOrReuse(ctx, sessionID, template, flavor, volumes, m.admitLocked(flavor))
	if admitted {
		return sess, created, nil
	}
	if !m.enableLRUEviction {
		return nil, false, m.resourceLimitError(flavor)
	}

	stats := m.Stats(time.Time{})
	sessionsToEvict := stats.ActiveSessions + 1 - m.maxConcurrentSessions
	if sessionsToEvict < 0 {
		sessionsToEvict = 0
	}
	memoryToFree := 0
	if m.maxTotalMemoryMB != nil {
		memoryToFree = stats.TotalMemoryMB + flavor.MemoryMB() - *m.maxTotalMemoryMB
		if memoryToFree < 0 {
			memoryToFree = 0
		}
	}
	m.EvictLRU(ctx, sessionsToEvict, memoryToFree)

	sess, created, admitted = m.sessions.ReserveOrReuse(ctx, sessionID, template, flavor, volumes, m.admitLocked(flavor))
	if !admitted {
		return nil, false, m.resourceLimitError(flavor)
	}
	return sess, created, nil
}

func (m *Manager) resourceLimitError(flavor types.Flavor) error {
	stats := m.Stats(time.Time{})
	if stats.ActiveSessions+1 > m.maxConcurrentSessions {
		metrics.AdmissionDenialsTotal.WithLabelValues("sessions").Inc()
		return &msberrors.ResourceLimitError{
			ResourceType: "sessions",
			Current:      stats.ActiveSessions,
			Limit:        m.maxConcurrentSessions,
		}
	}
	metrics.AdmissionDenialsTotal.WithLabelValues("memory").Inc()
	return &msberrors.ResourceLimitError{
		ResourceType: "memory",
		Current:      stats.TotalMemoryMB,
		Limit:        *m.maxTotalMemoryMB,
	}
}

// EvictLRU stops the least-recently-accessed evictable sessions until both
// minSessions and minMemoryMB targets are met (or evictable sessions run
// out), returning the number evicted.
func (m *Manager) EvictLRU(ctx context.Context, minSessions, minMemoryMB int) int {
	all := m.sessions.All()

	evictable := make([]*session.ManagedSession, 0, len(all))
	for _, s := range all {
		if s.CanBeEvicted() {
			evictable = append(evictable, s)
		}
	}

	sort.SliceStable(evictable, func(i, j int) bool {
		return evictable[i].LastAccessed().Before(evictable[j].LastAccessed())
	})

	evicted := 0
	freedMemoryMB := 0
	for _, s := range evictable {
		if evicted >= minSessions && freedMemoryMB >= minMemoryMB {
			break
		}
		if !m.sessions.Stop(ctx, s.SessionID()) {
			continue
		}
		evicted++
		freedMemoryMB += s.Flavor().MemoryMB()
		m.recordAudit(s.SessionID(), audit.EventEvicted)
		metrics.EvictionsTotal.WithLabelValues("lru").Inc()
	}
	return evicted
}

// Start launches the orphan reaper loop.
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
	ticker := m.clock.Ticker(m.orphanCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := m.clock.Now()
			m.runOrphanCycle(ctx)
			metrics.ReaperCycleDuration.WithLabelValues("orphan").Observe(m.clock.Now().Sub(start).Seconds())
		}
	}
}

func (m *Manager) runOrphanCycle(ctx context.Context) {
	n, err := m.CleanupOrphans(ctx)
	if err != nil {
		log.Printf("resource: orphan cleanup cycle failed: %v", err)
		return
	}

	m.statsMu.Lock()
	cycles := m.stats.Cycles
	orphansTotal := m.stats.OrphansCleanedTotal
	errsTotal := m.stats.CleanupErrorsTotal
	m.statsMu.Unlock()

	if cycles%statsLogEveryNCycles == 0 {
		log.Printf("resource: orphan reaper stats: cycles=%d orphans_cleaned_total=%d cleanup_errors_total=%d last_cycle_cleaned=%d",
			cycles, orphansTotal, errsTotal, n)
	}
}

// CleanupOrphans queries the remote server's running sandboxes, diffs them
// against the local registry's non-STOPPED sessions, and stops any
// sandbox the registry does not know about. Returns the count of orphans
// found (whether or not every stop succeeded).
func (m *Manager) CleanupOrphans(ctx context.Context) (int, error) {
	start := m.clock.Now()

	sandboxMetrics, err := m.remote.ListSandboxMetrics(ctx, "*")
	if err != nil {
		return 0, err
	}

	known := make(map[string]bool)
	for _, s := range m.sessions.All() {
		if s.Status() == types.StatusStopped {
			continue
		}
		ns, name := s.NamespaceAndSandboxName()
		known[ns+"/"+name] = true
	}

	type orphan struct{ namespace, name string }
	var orphans []orphan
	for _, metric := range sandboxMetrics {
		if !metric.Running {
			continue
		}
		if !known[metric.Namespace+"/"+metric.Name] {
			orphans = append(orphans, orphan{metric.Namespace, metric.Name})
		}
	}

	sem := semaphore.NewWeighted(orphanStopConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errCount int64
	for _, o := range orphans {
		o := o
		wg.Add(1)
		if aErr := sem.Acquire(ctx, 1); aErr != nil {
			wg.Done()
			continue
		}
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			if err := m.remote.StopSandbox(ctx, o.namespace, o.name); err != nil {
				log.Printf("resource: failed to stop orphan sandbox %s/%s: %v", o.namespace, o.name, err)
				mu.Lock()
				errCount++
				mu.Unlock()
				return
			}
			m.recordAudit(o.namespace+"/"+o.name, audit.EventOrphanReaped)
			metrics.OrphansReapedTotal.WithLabelValues().Inc()
		}()
	}
	wg.Wait()

	m.statsMu.Lock()
	m.stats.Cycles++
	m.stats.OrphansCleanedTotal += int64(len(orphans)) - errCount
	m.stats.CleanupErrorsTotal += errCount
	m.stats.LastCycleDurationMs = m.clock.Now().Sub(start).Milliseconds()
	m.statsMu.Unlock()

	return len(orphans), nil
}

// OrphanStats returns the rolling orphan-reaper statistics.
func (m *Manager) OrphanStats() types.OrphanStats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.stats
}

// Pause cancels the orphan reaper loop.
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

// Resume re-spawns the orphan reaper loop.
func (m *Manager) Resume() {
	m.Start()
}

// Healthy reports whether the orphan reaper loop is currently running.
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

// RestartIfNeeded respawns the reaper if it exited non-nominally.
func (m *Manager) RestartIfNeeded() {
	if !m.Healthy() {
		m.reaperMu.Lock()
		m.reaperDone = nil
		m.reaperStop = nil
		m.reaperMu.Unlock()
		m.Start()
	}
}

// Stop joins the orphan reaper goroutine. Does not touch any live session —
// ResourceManager never references sessions during its own shutdown beyond
// this cleanup-loop join, per the cyclic-shutdown-avoidance design.
func (m *Manager) Stop() {
	m.Pause()
}
