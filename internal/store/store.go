// Package store abstracts the remote path-addressed key/value tree the
// service reads sensor data from and publishes predictions to. Two real
// backends exist (an RTDB-style HTTP store and Redis) plus an in-memory
// store for local development and tests; all satisfy the same KV contract.
package store

import (
	"context"
	"encoding/json"
)

// EventType classifies a subscription event.
type EventType string

const (
	EventPut   EventType = "put"
	EventPatch EventType = "patch"
	// EventKeepAlive is delivered by stream-based backends between data
	// events; subscribers ignore it.
	EventKeepAlive EventType = "keep-alive"
)

// Event is one change notification delivered by Subscribe.
type Event struct {
	Type EventType
	Path string
	Data json.RawMessage
}

// KV is the remote store contract: a path-addressed tree supporting full
// reads, full-overwrite writes (last-write-wins, no compare-and-swap), and
// an optional change subscription.
type KV interface {
	// Get reads the value at path. A missing path returns nil data and a
	// nil error (the tree simply has nothing there).
	Get(ctx context.Context, path string) (json.RawMessage, error)

	// Set fully overwrites the value at path. Writing an identical value is
	// a no-op in observable effect, which is what makes publishing
	// idempotent.
	Set(ctx context.Context, path string, value any) error

	// Subscribe streams change events for the subtree at path to fn until
	// ctx is cancelled or the stream fails. It blocks; a non-nil return
	// means the subscription died and the caller decides whether to
	// re-establish it.
	Subscribe(ctx context.Context, path string, fn func(Event)) error

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}
