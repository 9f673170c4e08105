package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/opensandbox/msbgateway/internal/metrics"
	"github.com/opensandbox/msbgateway/internal/msberrors"
	"github.com/opensandbox/msbgateway/pkg/types"
)

// ManagedSession is a single reusable sandbox handle. Start, execute, and
// stop are all serialized by mu — at most one sandbox.start is ever in
// flight for a given session.
type ManagedSession struct {
	mu sync.Mutex

	sessionID     string
	sandboxName   string
	namespace     string
	template      types.Template
	flavor        types.Flavor
	volumes       []types.VolumeMapping
	createdAt     time.Time
	lastAccessed  time.Time
	status        types.SessionStatus
	remoteStarted bool

	remote RemoteClient
	clock  clock.Clock

	sandboxStartTimeout     time.Duration
	defaultExecutionTimeout time.Duration
}

func newManagedSession(sessionID string, template types.Template, flavor types.Flavor, volumes []types.VolumeMapping, remote RemoteClient, clk clock.Clock, sandboxStartTimeout, defaultExecTimeout time.Duration) *ManagedSession {
	now := clk.Now()
	return &ManagedSession{
		sessionID:               sessionID,
		sandboxName:             "session-" + shortID(sessionID),
		namespace:               "default",
		template:                template,
		flavor:                  flavor,
		volumes:                 volumes,
		createdAt:               now,
		lastAccessed:            now,
		status:                  types.StatusCreating,
		remote:                  remote,
		clock:                   clk,
		sandboxStartTimeout:     sandboxStartTimeout,
		defaultExecutionTimeout: defaultExecTimeout,
	}
}

func shortID(sessionID string) string {
	if len(sessionID) <= 8 {
		return sessionID
	}
	return sessionID[:8]
}

// Info returns an immutable snapshot for callers — never a live reference.
func (s *ManagedSession) Info() types.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.SessionInfo{
		SessionID:    s.sessionID,
		SandboxName:  s.sandboxName,
		Namespace:    s.namespace,
		Template:     s.template,
		Flavor:       s.flavor,
		Status:       s.status,
		CreatedAt:    s.createdAt,
		LastAccessed: s.lastAccessed,
	}
}

// LastAccessed is read without the lock for LRU sort purposes — the design
// tolerates small skew because eviction's actual stop path is serialized.
func (s *ManagedSession) LastAccessed() time.Time {
	return s.lastAccessed
}

// EnsureStarted is idempotent: issues at most one remote sandbox.start.
func (s *ManagedSession) EnsureStarted(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureStartedLocked(ctx)
}

func (s *ManagedSession) ensureStartedLocked(ctx context.Context) error {
	if s.remoteStarted {
		return nil
	}
	s.status = types.StatusCreating
	start := s.clock.Now()
	err := s.remote.StartSandbox(ctx, s.namespace, s.sandboxName, s.template, s.flavor.MemoryMB(), s.flavor.CPUs(), s.volumes, s.sandboxStartTimeout)
	metrics.SessionCreateDuration.WithLabelValues(string(s.template)).Observe(s.clock.Now().Sub(start).Seconds())
	if err != nil {
		s.status = types.StatusError
		s.remoteStarted = false
		return &msberrors.SandboxCreationError{Template: string(s.template), Flavor: string(s.flavor), Cause: err}
	}
	s.status = types.StatusReady
	s.remoteStarted = true
	return nil
}

// RunCode executes a code snippet, reusing the started sandbox.
func (s *ManagedSession) RunCode(ctx context.Context, code string, timeout time.Duration) (types.ExecutionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureStartedLocked(ctx); err != nil {
		return types.ExecutionResult{}, err
	}

	s.status = types.StatusProcessing
	s.lastAccessed = s.clock.Now()
	if timeout <= 0 {
		timeout = s.defaultExecutionTimeout
	}

	start := s.clock.Now()
	result, err := s.remote.RunCode(ctx, s.namespace, s.sandboxName, code, timeout)
	elapsed := s.clock.Now().Sub(start)
	metrics.ExecDuration.WithLabelValues("code").Observe(elapsed.Seconds())

	if err != nil {
		s.status = types.StatusError
		return types.ExecutionResult{}, &msberrors.CodeExecutionError{
			SessionID: s.sessionID,
			ErrorType: classifyExecError(ctx, err),
			Cause:     err,
		}
	}

	s.status = types.StatusReady
	return types.ExecutionResult{
		SessionID:       s.sessionID,
		Stdout:          result.Stdout,
		Stderr:          result.Stderr,
		Success:         !result.HasError(),
		ExecutionTimeMs: elapsed.Milliseconds(),
		Template:        s.template,
	}, nil
}

// RunCommand executes a shell command, same lifecycle as RunCode.
func (s *ManagedSession) RunCommand(ctx context.Context, command string, args []string, timeout time.Duration) (types.CommandResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureStartedLocked(ctx); err != nil {
		return types.CommandResult{}, err
	}

	s.status = types.StatusProcessing
	s.lastAccessed = s.clock.Now()
	if timeout <= 0 {
		timeout = s.defaultExecutionTimeout
	}

	start := s.clock.Now()
	result, err := s.remote.RunCommand(ctx, s.namespace, s.sandboxName, command, args, timeout)
	elapsed := s.clock.Now().Sub(start)
	metrics.ExecDuration.WithLabelValues("command").Observe(elapsed.Seconds())

	if err != nil {
		s.status = types.StatusError
		return types.CommandResult{}, &msberrors.CommandExecutionError{
			SessionID: s.sessionID,
			ErrorType: classifyExecError(ctx, err),
			Cause:     err,
		}
	}

	s.status = types.StatusReady
	return types.CommandResult{
		SessionID:       s.sessionID,
		Stdout:          result.Stdout,
		Stderr:          result.Stderr,
		ExitCode:        result.ExitCode,
		Success:         result.ExitCode == 0,
		ExecutionTimeMs: elapsed.Milliseconds(),
		Command:         command,
		Args:            args,
	}, nil
}

func classifyExecError(ctx context.Context, err error) msberrors.ExecErrorType {
	if ctx.Err() != nil {
		return msberrors.ExecErrorTimeout
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "syntax") || strings.Contains(msg, "compil") {
		return msberrors.ExecErrorCompilation
	}
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline") {
		return msberrors.ExecErrorTimeout
	}
	return msberrors.ExecErrorRuntime
}

// Stop is idempotent: best-effort remote stop, then marks STOPPED. Second
// and later calls are no-ops.
func (s *ManagedSession) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == types.StatusStopped {
		return
	}
	if s.remoteStarted {
		_ = s.remote.StopSandbox(ctx, s.namespace, s.sandboxName)
	}
	s.status = types.StatusStopped
}

// IsExpired reports whether the session is stopped or has been idle longer
// than timeout.
func (s *ManagedSession) IsExpired(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == types.StatusStopped {
		return true
	}
	return s.clock.Now().Sub(s.lastAccessed) > timeout
}

// CanBeEvicted reports whether an LRU sweep is allowed to stop this session.
func (s *ManagedSession) CanBeEvicted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.status.Protected()
}

// Touch bumps last_accessed; called on every cache hit before handing the
// session back to the caller.
func (s *ManagedSession) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccessed = s.clock.Now()
}

// SessionID returns the session's immutable identifier.
func (s *ManagedSession) SessionID() string {
	return s.sessionID
}

// Flavor returns the session's immutable resource flavor.
func (s *ManagedSession) Flavor() types.Flavor {
	return s.flavor
}

// Template returns the session's immutable runtime template.
func (s *ManagedSession) Template() types.Template {
	return s.template
}

// NamespaceAndSandboxName returns the (namespace, sandbox_name) pair used
// to address the remote sandbox, for orphan-reconciliation comparisons.
func (s *ManagedSession) NamespaceAndSandboxName() (string, string) {
	return s.namespace, s.sandboxName
}

// Status returns the current lifecycle status.
func (s *ManagedSession) Status() types.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
