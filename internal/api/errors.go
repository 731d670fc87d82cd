package api

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors classifying remote call failures. Use errors.Is for typed
// assertions; the underlying error stays reachable through Unwrap.
var (
	// ErrConnectivity covers transport-level failures: timeouts, resets,
	// DNS failures, unreachable hosts.
	ErrConnectivity = errors.New("connectivity error")

	// ErrRemoteServer covers 5xx-equivalent responses.
	ErrRemoteServer = errors.New("remote server error")

	// ErrRemoteClient covers 4xx-equivalent responses. Retrying an invalid
	// request is never productive, so these are fatal.
	ErrRemoteClient = errors.New("remote client error")
)

// CallError wraps a failed remote call with its classification.
type CallError struct {
	Kind   error // ErrConnectivity, ErrRemoteServer, or ErrRemoteClient
	Op     string
	Status int // HTTP status when Kind is a remote error, else 0
	Err    error
}

func (e *CallError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %v (status %d): %v", e.Op, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

func (e *CallError) Is(target error) bool { return errors.Is(e.Kind, target) }

func classifyStatus(op string, status int, body []byte) error {
	kind := ErrRemoteServer
	if status >= 400 && status < 500 {
		kind = ErrRemoteClient
	}
	return &CallError{
		Kind:   kind,
		Op:     op,
		Status: status,
		Err:    fmt.Errorf("unexpected status: %s", truncate(body, 200)),
	}
}

func classifyTransport(op string, err error) error {
	// A caller-cancelled context is cancellation, not connectivity; let it
	// propagate unclassified so the controller never retries it.
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &CallError{Kind: ErrConnectivity, Op: op, Err: err}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
