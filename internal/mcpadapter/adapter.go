// Package mcpadapter is a thin adapter mapping MCP-style tool calls onto
// Gateway operations. It does not implement the MCP protocol surface
// itself (stdio/HTTP/SSE transport framing is out of scope) — just the
// name→operation dispatch a transport layer would sit in front of.
package mcpadapter

import (
	"context"
	"fmt"
	"time"

	"github.com/opensandbox/msbgateway/internal/gateway"
	"github.com/opensandbox/msbgateway/pkg/types"
)

// ToolCall is the minimal shape a transport layer hands to Dispatch.
type ToolCall struct {
	Name      string
	Arguments map[string]any
}

// Dispatch routes a tool call to the matching Gateway method.
func Dispatch(ctx context.Context, gw *gateway.Gateway, call ToolCall) (any, error) {
	switch call.Name {
	case "execute_code":
		template, err := types.ParseTemplate(stringArg(call.Arguments, "template"))
		if err != nil {
			return nil, err
		}
		flavor, err := flavorArg(call.Arguments)
		if err != nil {
			return nil, err
		}
		return gw.ExecuteCode(ctx, stringArg(call.Arguments, "code"), template, stringArg(call.Arguments, "session_id"), flavor, timeoutArg(call.Arguments))

	case "execute_command":
		template, err := types.ParseTemplate(stringArg(call.Arguments, "template"))
		if err != nil {
			return nil, err
		}
		flavor, err := flavorArg(call.Arguments)
		if err != nil {
			return nil, err
		}
		return gw.ExecuteCommand(ctx, stringArg(call.Arguments, "command"), stringSliceArg(call.Arguments, "args"), template, stringArg(call.Arguments, "session_id"), flavor, timeoutArg(call.Arguments))

	case "get_sessions":
		return gw.GetSessions(stringArg(call.Arguments, "session_id")), nil

	case "stop_session":
		return gw.StopSession(ctx, stringArg(call.Arguments, "session_id")), nil

	case "get_volume_mappings":
		return gw.GetVolumeMappings(), nil

	case "get_stats":
		return gw.GetStats(), nil

	case "cleanup_orphans":
		return gw.CleanupOrphans(ctx)

	default:
		return nil, fmt.Errorf("mcpadapter: unknown tool %q", call.Name)
	}
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func timeoutArg(args map[string]any) time.Duration {
	if v, ok := args["timeout_s"].(float64); ok {
		return time.Duration(v) * time.Second
	}
	return 0
}

func flavorArg(args map[string]any) (types.Flavor, error) {
	if s := stringArg(args, "flavor"); s != "" {
		return types.ParseFlavor(s)
	}
	return types.FlavorSmall, nil
}
