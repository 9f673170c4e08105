package resource

import (
	"context"
	"sync"
	"time"

	"github.com/opensandbox/msbgateway/internal/rpcclient"
	"github.com/opensandbox/msbgateway/pkg/types"
)

// fakeRemote is an in-package test double for RemoteMetrics standing in for
// the microsandbox server's metrics/stop RPCs.
type fakeRemote struct {
	mu         sync.Mutex
	metrics    []rpcclient.SandboxMetric
	metricsErr error
	stopErr    error
	stopCalls  []string
}

func (f *fakeRemote) ListSandboxMetrics(ctx context.Context, namespace string) ([]rpcclient.SandboxMetric, error) {
	if f.metricsErr != nil {
		return nil, f.metricsErr
	}
	return f.metrics, nil
}

func (f *fakeRemote) StopSandbox(ctx context.Context, namespace, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls = append(f.stopCalls, namespace+"/"+name)
	return f.stopErr
}

func (f *fakeRemote) StopCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stopCalls)
}

// sessionRemote is a minimal session.RemoteClient fake used to back the
// session.Manager that these resource tests exercise. It never fails — the
// resource package's tests care about admission/eviction/orphan logic, not
// sandbox-start failure handling (covered in the session package's tests).
type sessionRemote struct{}

func (sessionRemote) StartSandbox(ctx context.Context, namespace, name string, template types.Template, memoryMB int, cpus float64, volumes []types.VolumeMapping, startTimeout time.Duration) error {
	return nil
}

func (sessionRemote) StopSandbox(ctx context.Context, namespace, name string) error {
	return nil
}

func (sessionRemote) RunCode(ctx context.Context, namespace, name, code string, execTimeout time.Duration) (rpcclient.CodeRunResult, error) {
	return rpcclient.CodeRunResult{Status: "success"}, nil
}

func (sessionRemote) RunCommand(ctx context.Context, namespace, name, command string, args []string, execTimeout time.Duration) (rpcclient.CommandRunResult, error) {
	return rpcclient.CommandRunResult{}, nil
}
