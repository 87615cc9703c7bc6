package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventType_Constants(t *testing.T) {
	assert.Equal(t, EventType("run.started"), EventRunStarted)
	assert.Equal(t, EventType("task.skipped"), EventTaskSkipped)
	assert.Equal(t, EventType("task.failed"), EventTaskFailed)
}

func TestNewEvent(t *testing.T) {
	event := NewEvent(EventTaskSucceeded, "run-1").
		WithTask("load(table=\"t\")", "load t").
		WithMetadata("table", "t")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "run-1", event.RunID)
	assert.Equal(t, "load t", event.TaskName)
	assert.Equal(t, "t", event.Metadata["table"])
	assert.False(t, event.Timestamp.IsZero())

	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"task.succeeded"`)
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	sent := NewEvent(EventRunStarted, "run-1")
	require.NoError(t, bus.Publish(ctx, sent))

	select {
	case got := <-ch:
		assert.Equal(t, sent.ID, got.ID)
		assert.Equal(t, EventRunStarted, got.Type)
		assert.Equal(t, "run-1", got.RunID)
	case <-time.After(3 * time.Second):
		t.Fatal("未收到事件")
	}
}

func TestBus_Closed(t *testing.T) {
	bus := NewBus()
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.Error(t, bus.Publish(context.Background(), NewEvent(EventRunStarted, "r")))
	_, err := bus.Subscribe(context.Background())
	assert.Error(t, err)
	assert.Error(t, bus.Publish(context.Background(), nil))
}

func TestRecorder_AttachAndEvict(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := NewRecorder(2)
	require.NoError(t, rec.Attach(ctx, bus))

	require.NoError(t, bus.Publish(ctx, NewEvent(EventRunStarted, "run-1")))
	require.NoError(t, bus.Publish(ctx, NewEvent(EventRunFinished, "run-1")))

	require.Eventually(t, func() bool {
		return len(rec.Events("run-1")) == 2
	}, 3*time.Second, 10*time.Millisecond)

	// 直接记录不经过总线
	require.NoError(t, rec.Publish(ctx, NewEvent(EventRunStarted, "run-2")))
	require.NoError(t, rec.Publish(ctx, NewEvent(EventRunStarted, "run-3")))
	assert.Empty(t, rec.Events("run-1"), "超过保留数量的旧运行被淘汰")
	assert.Len(t, rec.Events("run-3"), 1)

	rec.Record(&Event{Type: EventRunStarted})
	assert.Empty(t, rec.Events(""))

	cancel()
	select {
	case <-rec.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("记录器未在ctx结束后退出")
	}
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), NewEvent(EventRunStarted, "r")))
}
