// Package rpcclient is a typed JSON-RPC client for the remote microsandbox
// server. It owns one shared HTTP client and never retries internally —
// retry/backoff, if wanted, is the caller's concern.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/opensandbox/msbgateway/internal/msberrors"
	"github.com/opensandbox/msbgateway/pkg/types"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Client is a stateless wrapper over HTTP JSON-RPC at
// "<server_url>/api/v1/rpc". Safe for concurrent use.
type Client struct {
	serverURL string
	apiKey    string
	http      *http.Client
	nextID    atomic.Int64
}

// New constructs a Client sharing one connection-pooled http.Client across
// the whole process. Per-call deadlines come from context, not a blanket
// client timeout.
func New(serverURL, apiKey string) *Client {
	return &Client{
		serverURL: serverURL,
		apiKey:    apiKey,
		http:      &http.Client{},
	}
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	}
	body, err := json.Marshal(req)
	if err != nil {
		return &msberrors.ConnectionError{Message: "marshal rpc request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/api/v1/rpc", bytes.NewReader(body))
	if err != nil {
		return &msberrors.ConnectionError{Message: "build rpc request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return classifyTransportError(ctx, method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &msberrors.ConnectionError{Message: fmt.Sprintf("read rpc response for %s", method), Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		return &msberrors.ConnectionError{
			Message: fmt.Sprintf("rpc %s returned non-200 status %d", method, resp.StatusCode),
			Ctx:     map[string]any{"status": resp.StatusCode, "method": method},
		}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return &msberrors.ConnectionError{Message: fmt.Sprintf("decode rpc response for %s", method), Cause: err}
	}
	if rpcResp.Error != nil {
		return &msberrors.ConnectionError{
			Message: fmt.Sprintf("rpc %s returned error", method),
			Ctx:     map[string]any{"code": rpcResp.Error.Code, "message": rpcResp.Error.Message},
		}
	}

	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return &msberrors.ConnectionError{Message: fmt.Sprintf("decode rpc result for %s", method), Cause: err}
		}
	}
	return nil
}

// StartSandbox starts a sandbox, bounded by startTimeout. The bound is
// enforced only through the call's context; it is not sent in the RPC params.
func (c *Client) StartSandbox(ctx context.Context, namespace, name string, template types.Template, memoryMB int, cpus float64, volumes []types.VolumeMapping, startTimeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()

	volStrs := make([]string, len(volumes))
	for i, v := range volumes {
		volStrs[i] = v.String()
	}

	params := map[string]any{
		"namespace": namespace,
		"sandbox":   name,
		"image":     string(template),
		"memory":    memoryMB,
		"cpus":      cpus,
		"volumes":   volStrs,
	}
	return c.call(ctx, "sandbox.start", params, nil)
}

// StopSandbox stops a sandbox. Best-effort at the caller's discretion.
func (c *Client) StopSandbox(ctx context.Context, namespace, name string) error {
	params := map[string]any{"namespace": namespace, "sandbox": name}
	return c.call(ctx, "sandbox.stop", params, nil)
}

// CodeRunResult is the raw wire result of sandbox.repl.run.
type CodeRunResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	Status   string `json:"status"` // success | error | exception
	Language string `json:"language"`
}

// HasError reports whether the execution itself failed, independent of
// whether the RPC succeeded.
func (r CodeRunResult) HasError() bool {
	return r.Status != "success" || r.Stderr != ""
}

// RunCode executes a code snippet inside an already-started sandbox. The
// RPC deadline carries a 5s buffer beyond execTimeout so the remote, not
// this client, is the one to report a timeout.
func (c *Client) RunCode(ctx context.Context, namespace, name, code string, execTimeout time.Duration) (CodeRunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, execTimeout+5*time.Second)
	defer cancel()

	params := map[string]any{"namespace": namespace, "sandbox": name, "code": code}
	var result CodeRunResult
	if err := c.call(ctx, "sandbox.repl.run", params, &result); err != nil {
		return CodeRunResult{}, err
	}
	return result, nil
}

// CommandRunResult is the raw wire result of sandbox.command.run.
type CommandRunResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
	Success  bool   `json:"success"`
}

// RunCommand runs a shell command inside an already-started sandbox. The
// RPC deadline carries a 5s buffer beyond execTimeout so the remote, not
// this client, is the one to report a timeout.
func (c *Client) RunCommand(ctx context.Context, namespace, name, command string, args []string, execTimeout time.Duration) (CommandRunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, execTimeout+5*time.Second)
	defer cancel()

	params := map[string]any{"namespace": namespace, "sandbox": name, "command": command, "args": args}
	var result CommandRunResult
	if err := c.call(ctx, "sandbox.command.run", params, &result); err != nil {
		return CommandRunResult{}, err
	}
	return result, nil
}

// SandboxMetric is one entry of ListSandboxMetrics.
type SandboxMetric struct {
	Namespace string  `json:"namespace"`
	Name      string  `json:"name"`
	Running   bool    `json:"running"`
	CPUUsage  float64 `json:"cpu_usage"`
	MemoryMB  float64 `json:"memory_mb"`
	DiskBytes int64   `json:"disk_bytes"`
}

// ListSandboxMetrics lists sandboxes known to the remote server, used by
// the orphan reaper. namespace="*" matches all namespaces.
func (c *Client) ListSandboxMetrics(ctx context.Context, namespace string) ([]SandboxMetric, error) {
	params := map[string]any{"namespace": namespace, "sandbox": nil}
	var metrics []SandboxMetric
	if err := c.call(ctx, "sandbox.metrics.get", params, &metrics); err != nil {
		return nil, err
	}
	return metrics, nil
}
