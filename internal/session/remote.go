package session

import (
	"context"
	"time"

	"github.com/opensandbox/msbgateway/internal/rpcclient"
	"github.com/opensandbox/msbgateway/pkg/types"
)

// RemoteClient is the subset of rpcclient.Client that ManagedSession needs.
// Declared here (not in rpcclient) so tests can supply an in-package fake
// without importing the HTTP machinery.
type RemoteClient interface {
	StartSandbox(ctx context.Context, namespace, name string, template types.Template, memoryMB int, cpus float64, volumes []types.VolumeMapping, startTimeout time.Duration) error
	StopSandbox(ctx context.Context, namespace, name string) error
	RunCode(ctx context.Context, namespace, name, code string, execTimeout time.Duration) (rpcclient.CodeRunResult, error)
	RunCommand(ctx context.Context, namespace, name, command string, args []string, execTimeout time.Duration) (rpcclient.CommandRunResult, error)
}
