package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opensandbox/msbgateway/internal/rpcclient"
	"github.com/opensandbox/msbgateway/pkg/types"
)

// fakeRemote is an in-package test double for RemoteClient standing in for
// the microsandbox server.
type fakeRemote struct {
	mu           sync.Mutex
	startCalls   int
	stopCalls    int
	startErr     error
	runCodeErr   error
	runCodeOut   rpcclient.CodeRunResult
	runCmdOut    rpcclient.CommandRunResult
	runCmdErr    error
	runCodeDelay time.Duration
}

func (f *fakeRemote) StartSandbox(ctx context.Context, namespace, name string, template types.Template, memoryMB int, cpus float64, volumes []types.VolumeMapping, startTimeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	return f.startErr
}

func (f *fakeRemote) StopSandbox(ctx context.Context, namespace, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return nil
}

func (f *fakeRemote) RunCode(ctx context.Context, namespace, name, code string, execTimeout time.Duration) (rpcclient.CodeRunResult, error) {
	if f.runCodeDelay > 0 {
		select {
		case <-time.After(f.runCodeDelay):
		case <-ctx.Done():
			return rpcclient.CodeRunResult{}, ctx.Err()
		}
	}
	if f.runCodeErr != nil {
		return rpcclient.CodeRunResult{}, f.runCodeErr
	}
	if f.runCodeOut.Status == "" {
		f.runCodeOut.Status = "success"
	}
	return f.runCodeOut, nil
}

func (f *fakeRemote) RunCommand(ctx context.Context, namespace, name, command string, args []string, execTimeout time.Duration) (rpcclient.CommandRunResult, error) {
	if f.runCmdErr != nil {
		return rpcclient.CommandRunResult{}, f.runCmdErr
	}
	return f.runCmdOut, nil
}

func (f *fakeRemote) StartCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCalls
}

func (f *fakeRemote) StopCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

var errBoom = fmt.Errorf("boom")
