package types

import "time"

// SessionStatus is the lifecycle state of a ManagedSession.
type SessionStatus string

const (
	StatusCreating   SessionStatus = "creating"
	StatusReady      SessionStatus = "ready"
	StatusProcessing SessionStatus = "processing"
	StatusRunning    SessionStatus = "running"
	StatusError      SessionStatus = "error"
	StatusStopped    SessionStatus = "stopped"
)

// Protected reports whether an LRU evictor must leave a session in this
// status alone.
func (s SessionStatus) Protected() bool {
	return s == StatusCreating || s == StatusProcessing
}

// SessionInfo is an immutable snapshot of a ManagedSession, handed to
// callers in place of a live reference.
type SessionInfo struct {
	SessionID    string
	SandboxName  string
	Namespace    string
	Template     Template
	Flavor       Flavor
	Status       SessionStatus
	CreatedAt    time.Time
	LastAccessed time.Time
}

// ExecutionResult is the outcome of ExecuteCode.
type ExecutionResult struct {
	SessionID       string
	Stdout          string
	Stderr          string
	Success         bool
	ExecutionTimeMs int64
	SessionCreated  bool
	Template        Template
}

// CommandResult is the outcome of ExecuteCommand.
type CommandResult struct {
	SessionID       string
	Stdout          string
	Stderr          string
	ExitCode        int
	Success         bool
	ExecutionTimeMs int64
	SessionCreated  bool
	Command         string
	Args            []string
}

// ResourceStats is a point-in-time snapshot of admission/usage accounting.
type ResourceStats struct {
	ActiveSessions  int
	MaxSessions     int
	PerFlavorCounts map[Flavor]int
	TotalMemoryMB   int
	TotalCPUs       float64
	UptimeSeconds   float64
}

// HealthStatus is the result of Gateway.HealthCheck.
type HealthStatus struct {
	Status        string
	Components    map[string]string
	UptimeSeconds float64
}

// OrphanStats are rolling statistics kept by the orphan reaper.
type OrphanStats struct {
	Cycles              int64
	OrphansCleanedTotal int64
	CleanupErrorsTotal  int64
	LastCycleDurationMs int64
}
