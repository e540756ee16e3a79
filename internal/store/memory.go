package store

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
)

// Memory is an in-process KV store for local development and tests. It
// mirrors the remote contract: full-overwrite writes, nil for missing
// paths, and put events fanned out to subscribers on every Set.
type Memory struct {
	mu     sync.RWMutex
	values map[string]json.RawMessage
	subs   map[int]memorySub
	nextID int
}

type memorySub struct {
	path string
	ch   chan Event
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		values: make(map[string]json.RawMessage),
		subs:   make(map[int]memorySub),
	}
}

func normalize(path string) string {
	return strings.Trim(path, "/")
}

// Get reads the value at path.
func (m *Memory) Get(_ context.Context, path string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[normalize(path)]
	if !ok {
		return nil, nil
	}
	return v, nil
}

// Set overwrites the value at path and notifies subscribers of that exact
// path with a put event.
func (m *Memory) Set(_ context.Context, path string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}

	p := normalize(path)
	m.mu.Lock()
	m.values[p] = payload
	// Each subscriber sees the write at a path relative to its own
	// subscription root, mirroring the remote stream contract.
	type target struct {
		ch      chan Event
		relPath string
	}
	var targets []target
	for _, sub := range m.subs {
		switch {
		case sub.path == p:
			targets = append(targets, target{sub.ch, "/"})
		case strings.HasPrefix(p, sub.path+"/"):
			targets = append(targets, target{sub.ch, "/" + strings.TrimPrefix(p, sub.path+"/")})
		}
	}
	m.mu.Unlock()

	for _, t := range targets {
		select {
		case t.ch <- Event{Type: EventPut, Path: t.relPath, Data: payload}:
		default:
			// Slow subscriber; drop rather than block the writer.
		}
	}
	return nil
}

// Subscribe delivers put events for path until ctx is cancelled.
func (m *Memory) Subscribe(ctx context.Context, path string, fn func(Event)) error {
	ch := make(chan Event, 16)

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = memorySub{path: normalize(path), ch: ch}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-ch:
			fn(ev)
		}
	}
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error {
	return nil
}

var _ KV = (*Memory)(nil)
