// Package gateway is the single public facade over the session and
// resource managers: ExecuteCode, ExecuteCommand, GetSessions, StopSession,
// GetStats, CleanupOrphans, plus start/stop and health.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/opensandbox/msbgateway/internal/resource"
	"github.com/opensandbox/msbgateway/internal/session"
	"github.com/opensandbox/msbgateway/pkg/types"
)

// Gateway binds the session manager and resource manager behind one API.
// ExecuteCode and ExecuteCommand are rejected before Start and after
// GracefulShutdown; the query, stop, and cleanup methods are not gated.
type Gateway struct {
	sessions  *session.Manager
	resources *resource.Manager
	clock     clock.Clock

	cfg types.GatewayConfig

	mu        sync.RWMutex
	started   bool
	startedAt time.Time
}

func New(sessions *session.Manager, resources *resource.Manager, clk clock.Clock, cfg types.GatewayConfig) *Gateway {
	if clk == nil {
		clk = clock.New()
	}
	return &Gateway{sessions: sessions, resources: resources, clock: clk, cfg: cfg}
}

var errNotStarted = fmt.Errorf("gateway: not started")

// Start launches both managers' background loops.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return nil
	}
	g.sessions.Start()
	g.resources.Start()
	g.started = true
	g.startedAt = g.clock.Now()
	return nil
}

func (g *Gateway) checkStarted() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.started {
		return errNotStarted
	}
	return nil
}

// ExecuteCode runs a code snippet on a (possibly reused) session.
func (g *Gateway) ExecuteCode(ctx context.Context, code string, template types.Template, sessionID string, flavor types.Flavor, timeout time.Duration) (types.ExecutionResult, error) {
	if err := g.checkStarted(); err != nil {
		return types.ExecutionResult{}, err
	}
	sess, created, err := g.resources.AdmitSession(ctx, sessionID, template, flavor, g.cfg.SharedVolumeMappings)
	if err != nil {
		return types.ExecutionResult{}, err
	}

	result, err := sess.RunCode(ctx, code, timeout)
	if err != nil {
		return types.ExecutionResult{}, err
	}
	result.SessionID = sess.SessionID()
	result.SessionCreated = created
	return result, nil
}

// ExecuteCommand runs a shell command on a (possibly reused) session.
func (g *Gateway) ExecuteCommand(ctx context.Context, command string, args []string, template types.Template, sessionID string, flavor types.Flavor, timeout time.Duration) (types.CommandResult, error) {
	if err := g.checkStarted(); err != nil {
		return types.CommandResult{}, err
	}
	sess, created, err := g.resources.AdmitSession(ctx, sessionID, template, flavor, g.cfg.SharedVolumeMappings)
	if err != nil {
		return types.CommandResult{}, err
	}

	result, err := sess.RunCommand(ctx, command, args, timeout)
	if err != nil {
		return types.CommandResult{}, err
	}
	result.SessionID = sess.SessionID()
	result.SessionCreated = created
	return result, nil
}

// GetSessions returns snapshots of all sessions, or just sessionID if set.
func (g *Gateway) GetSessions(sessionID string) []types.SessionInfo {
	return g.sessions.Snapshot(sessionID)
}

// StopSession stops and removes a session, reporting whether it existed.
func (g *Gateway) StopSession(ctx context.Context, sessionID string) bool {
	return g.sessions.Stop(ctx, sessionID)
}

// GetVolumeMappings returns the configured shared volume mappings.
func (g *Gateway) GetVolumeMappings() []types.VolumeMapping {
	return g.cfg.SharedVolumeMappings
}

// GetStats returns a resource-usage snapshot.
func (g *Gateway) GetStats() types.ResourceStats {
	g.mu.RLock()
	startedAt := g.startedAt
	g.mu.RUnlock()
	return g.resources.Stats(startedAt)
}

// CleanupOrphans forces an immediate orphan-reconciliation cycle.
func (g *Gateway) CleanupOrphans(ctx context.Context) (int, error) {
	return g.resources.CleanupOrphans(ctx)
}

// HealthCheck reports component-level health plus process uptime.
func (g *Gateway) HealthCheck() types.HealthStatus {
	g.mu.RLock()
	startedAt := g.startedAt
	started := g.started
	g.mu.RUnlock()

	components := map[string]string{
		"session_manager":  healthString(g.sessions.Healthy()),
		"resource_manager": healthString(g.resources.Healthy()),
	}
	status := "healthy"
	if !started || components["session_manager"] != "healthy" || components["resource_manager"] != "healthy" {
		status = "degraded"
	}

	uptime := 0.0
	if started {
		uptime = g.clock.Now().Sub(startedAt).Seconds()
	}
	return types.HealthStatus{Status: status, Components: components, UptimeSeconds: uptime}
}

func healthString(ok bool) string {
	if ok {
		return "healthy"
	}
	return "unhealthy"
}

// PauseBackgroundTasks pauses both reapers.
func (g *Gateway) PauseBackgroundTasks() {
	g.sessions.Pause()
	g.resources.Pause()
}

// ResumeBackgroundTasks resumes both reapers.
func (g *Gateway) ResumeBackgroundTasks() {
	g.sessions.Resume()
	g.resources.Resume()
}

// RestartBackgroundTasksIfNeeded replaces any reaper goroutine that exited
// non-nominally.
func (g *Gateway) RestartBackgroundTasksIfNeeded() {
	g.sessions.RestartIfNeeded()
	g.resources.RestartIfNeeded()
}

// GetBackgroundTaskStatus returns a per-reaper health snapshot.
func (g *Gateway) GetBackgroundTaskStatus() map[string]bool {
	return map[string]bool{
		"session_manager_reaper":  g.sessions.Healthy(),
		"resource_manager_reaper": g.resources.Healthy(),
	}
}

// GracefulShutdown stops the resource manager before the session manager
// (avoids the resource manager racing a session teardown it doesn't own),
// bounded by timeout. Returns a partial-success report.
func (g *Gateway) GracefulShutdown(ctx context.Context, timeout time.Duration) (stopped, remaining int) {
	g.mu.Lock()
	g.started = false
	g.mu.Unlock()

	g.resources.Stop()
	return g.sessions.GracefulShutdown(ctx, timeout)
}
