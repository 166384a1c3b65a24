package mcp

import (
	"context"
	"encoding/json"
)

// Transport is one server connection. Calls are serialized: one request
// frame is written and exactly one matching response frame is read before
// the next call proceeds.
type Transport interface {
	// Connect establishes the connection.
	Connect(ctx context.Context) error

	// Call sends a request and waits for the matching response.
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)

	// Notify sends a notification; no response follows.
	Notify(ctx context.Context, method string, params any) error

	// Connected reports whether the transport is usable.
	Connected() bool

	// Close terminates the connection and the child process.
	Close() error
}
