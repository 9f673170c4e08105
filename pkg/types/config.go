package types

import "time"

// GatewayConfig holds every recognized configuration option for the
// gateway. Constructed by internal/config and consumed by the session and
// resource managers.
type GatewayConfig struct {
	ServerURL string
	APIKey    string

	SessionTimeout          time.Duration
	MaxConcurrentSessions   int
	MaxTotalMemoryMB        *int // nil = unbounded
	CleanupInterval         time.Duration
	OrphanCleanupInterval   time.Duration
	DefaultFlavor           Flavor
	DefaultExecutionTimeout time.Duration
	SandboxStartTimeout     time.Duration
	EnableLRUEviction       bool
	SharedVolumeMappings    []VolumeMapping
}
