package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cropwise/internal/pipeline"
	"cropwise/internal/store"
	"cropwise/internal/types"
)

// ============================================================
// Mock Implementations
// ============================================================

// mockStream scripts one event batch per Subscribe call. After delivering a
// batch the call returns the batch's error, or blocks until the context is
// cancelled when the error is nil.
type mockStream struct {
	mu         sync.Mutex
	fetchSnap  *types.SensorSnapshot
	fetchErr   error
	batches    []streamBatch
	subscribes int
}

type streamBatch struct {
	events []store.Event
	err    error
}

func (m *mockStream) Fetch(_ context.Context) (*types.SensorSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchSnap, m.fetchErr
}

func (m *mockStream) Subscribe(ctx context.Context, fn func(store.Event)) error {
	m.mu.Lock()
	idx := m.subscribes
	m.subscribes++
	var batch streamBatch
	if idx < len(m.batches) {
		batch = m.batches[idx]
	}
	m.mu.Unlock()

	for _, ev := range batch.events {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fn(ev)
	}
	if batch.err != nil {
		return batch.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockStream) subscribeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribes
}

func snapEvent(path string, h, temp, soil float64) store.Event {
	data := json.RawMessage(fmt.Sprintf(
		`{"humidity":%g,"temperature":%g,"soilMoisture":%g}`, h, temp, soil))
	return store.Event{Type: store.EventPut, Path: path, Data: data}
}

func newTestSubscriber(stream *mockStream, runner *mockRunner, threshold int) (*Subscriber, *pipeline.FailureGovernor) {
	governor := pipeline.NewFailureGovernor(threshold, quietLogger(), nil)
	s := NewSubscriber(SubscriberConfig{
		Stream:   stream,
		Detector: pipeline.NewChangeDetector(),
		Runner:   runner,
		Governor: governor,
		Logger:   quietLogger(),
	})
	s.sleep = func(context.Context, time.Duration) {}
	return s, governor
}

func cancelWhen(cancel context.CancelFunc, cond func() bool) {
	go func() {
		for !cond() {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()
}

// ============================================================
// Tests
// ============================================================

func TestSubscriber_ProcessesInitialSnapshotAndRootEvents(t *testing.T) {
	stream := &mockStream{
		fetchSnap: snap(40, 30, 20),
		batches: []streamBatch{
			{events: []store.Event{snapEvent("/", 50, 31, 22)}},
		},
	}
	runner := &mockRunner{}
	s, _ := newTestSubscriber(stream, runner, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancelWhen(cancel, func() bool { return runner.runCount() >= 2 })

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run returned %v, want nil on cancellation", err)
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.runs) != 2 {
		t.Fatalf("pipeline ran %d times, want 2 (initial fetch plus one event)", len(runner.runs))
	}
	if runner.runs[0] != (types.RawReading{Humidity: 40, Temperature: 30, SoilMoisture: 20}) {
		t.Errorf("first run saw %+v, want the fetched snapshot", runner.runs[0])
	}
	if runner.runs[1] != (types.RawReading{Humidity: 50, Temperature: 31, SoilMoisture: 22}) {
		t.Errorf("second run saw %+v, want the event payload", runner.runs[1])
	}
	for i, src := range runner.sources {
		if src != types.TriggerPush {
			t.Errorf("run %d attributed to %q, want %q", i, src, types.TriggerPush)
		}
	}
}

func TestSubscriber_IgnoresSiblingWritesAndKeepAlives(t *testing.T) {
	predictionWrite := store.Event{
		Type: store.EventPut,
		Path: "/prediction_class",
		Data: json.RawMessage(`2`),
	}
	timestampWrite := store.Event{
		Type: store.EventPut,
		Path: "/last_prediction_time",
		Data: json.RawMessage(`"2026-06-15T13:45:00Z"`),
	}
	keepAlive := store.Event{Type: store.EventKeepAlive}

	stream := &mockStream{
		fetchSnap: snap(40, 30, 20),
		batches: []streamBatch{
			{events: []store.Event{
				predictionWrite,
				timestampWrite,
				keepAlive,
				snapEvent("/", 41, 30, 20),
			}},
		},
	}
	runner := &mockRunner{}
	s, governor := newTestSubscriber(stream, runner, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancelWhen(cancel, func() bool { return runner.runCount() >= 2 })

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run returned %v, want nil on cancellation", err)
	}

	// Only the initial fetch and the root event run; the write-backs must not
	// reach the pipeline or count as failures.
	if got := runner.runCount(); got != 2 {
		t.Errorf("pipeline ran %d times, want 2", got)
	}
	if got := governor.Failures(); got != 0 {
		t.Errorf("governor counted %d failures, want 0", got)
	}
}

func TestSubscriber_ResubscribesAfterStreamDeath(t *testing.T) {
	stream := &mockStream{
		fetchSnap: snap(40, 30, 20),
		batches: []streamBatch{
			{err: errors.New("connection reset")},
			{}, // second subscription blocks until cancelled
		},
	}
	runner := &mockRunner{}
	s, governor := newTestSubscriber(stream, runner, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancelWhen(cancel, func() bool { return stream.subscribeCount() >= 2 })

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run returned %v, want nil on cancellation", err)
	}

	if got := stream.subscribeCount(); got < 2 {
		t.Errorf("subscribed %d times, want a reconnect after the stream died", got)
	}
	if got := governor.Failures(); got != 1 {
		t.Errorf("governor counted %d failures, want 1 for the dead stream", got)
	}
}

func TestSubscriber_HaltsOnRepeatedBadEvents(t *testing.T) {
	badEvent := store.Event{Type: store.EventPut, Path: "/", Data: json.RawMessage(`null`)}
	stream := &mockStream{
		fetchSnap: snap(40, 30, 20),
		batches: []streamBatch{
			{events: []store.Event{badEvent, badEvent, badEvent}},
		},
	}
	runner := &mockRunner{}
	s, governor := newTestSubscriber(stream, runner, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.Run(ctx)
	if !IsHalted(err) {
		t.Fatalf("Run returned %v, want governor halt", err)
	}
	if !governor.Halted() {
		t.Error("governor should report halted")
	}
	if got := runner.runCount(); got != 1 {
		t.Errorf("pipeline ran %d times, want 1 (only the initial fetch)", got)
	}
}
