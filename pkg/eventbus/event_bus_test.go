package eventbus

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflow/agentflow/pkg/channels/gochannel"
	"github.com/agentflow/agentflow/pkg/events"
)

func testBus(t *testing.T) *WatermillEventBus {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	pub, sub := gochannel.CreateTestChannel(watermill.NewSlogLogger(logger))
	bus := NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestPublishSubscribe_RoundTrip(t *testing.T) {
	bus := testBus(t)

	var mu sync.Mutex

	var received []*events.TaskFinished

	require.NoError(t, bus.Handle(events.TaskFinishedEvent, func(_ context.Context, event any) error {
		if finished, ok := event.(*events.TaskFinished); ok {
			mu.Lock()
			received = append(received, finished)
			mu.Unlock()
		}

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, bus.Subscribe(ctx))

	err := bus.Publish(ctx, "exec-1", events.TaskFinished{
		BaseEvent: events.BaseEvent{
			ID:          "ev-1",
			Type:        events.TaskFinishedEvent,
			WorkflowID:  "wf-1",
			ExecutionID: "exec-1",
		},
		TaskID:     "a",
		RetryCount: 1,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "a", received[0].TaskID)
	assert.Equal(t, "exec-1", received[0].ExecutionID)
	assert.Equal(t, 1, received[0].RetryCount)
}

func TestSubscribe_RoutesByEventType(t *testing.T) {
	bus := testBus(t)

	var mu sync.Mutex

	var finishedTasks []string

	require.NoError(t, bus.Handle(events.TaskFinishedEvent, func(_ context.Context, event any) error {
		if finished, ok := event.(*events.TaskFinished); ok {
			mu.Lock()
			finishedTasks = append(finishedTasks, finished.TaskID)
			mu.Unlock()
		}

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "exec-1", events.TaskFailed{
		BaseEvent: events.BaseEvent{ID: "ev-1", Type: events.TaskFailedEvent, ExecutionID: "exec-1"},
		TaskID:    "broken",
		Error:     "boom",
	}))
	require.NoError(t, bus.Publish(ctx, "exec-1", events.TaskFinished{
		BaseEvent: events.BaseEvent{ID: "ev-2", Type: events.TaskFinishedEvent, ExecutionID: "exec-1"},
		TaskID:    "ok",
	}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(finishedTasks) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"ok"}, finishedTasks)
}

func TestStartMonitor_ConsumesLifecycleEvents(t *testing.T) {
	bus := testBus(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, StartMonitor(ctx, bus, logger))
	assert.Len(t, bus.subscriptions, 7)

	// The test channel blocks Publish until the subscriber acks, so a clean
	// return proves the monitor consumed the event.
	err := bus.Publish(ctx, "exec-1", events.ExecutionCompleted{
		BaseEvent: events.BaseEvent{
			ID:          "ev-1",
			Type:        events.ExecutionCompletedEvent,
			WorkflowID:  "wf-1",
			ExecutionID: "exec-1",
		},
		Duration: time.Second,
	})
	require.NoError(t, err)
}
