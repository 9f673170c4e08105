package rpcclient

import (
	"context"
	"errors"
	"strings"

	"github.com/opensandbox/msbgateway/internal/msberrors"
)

// classifyTransportError turns a raw HTTP transport error (or context
// cancellation) into a ConnectionError carrying a recovery-relevant
// keyword classification.
func classifyTransportError(ctx context.Context, method string, err error) *msberrors.ConnectionError {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &msberrors.ConnectionError{
			Message: "rpc " + method + " timed out",
			Cause:   err,
			Ctx:     map[string]any{"kind": "timeout", "method": method},
		}
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return &msberrors.ConnectionError{
			Message: "rpc " + method + " canceled",
			Cause:   err,
			Ctx:     map[string]any{"kind": "canceled", "method": method},
		}
	}

	msg := strings.ToLower(err.Error())
	kind := "unreachable"
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		kind = "timeout"
	case strings.Contains(msg, "refused"):
		kind = "refused"
	case strings.Contains(msg, "no such host"), strings.Contains(msg, "unreachable"):
		kind = "unreachable"
	}

	return &msberrors.ConnectionError{
		Message: "rpc " + method + " transport failure",
		Cause:   err,
		Ctx:     map[string]any{"kind": kind, "method": method},
	}
}
