package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/nitrite-automation/internal/model"
	"github.com/t77yq/nitrite-automation/internal/testutil"
)

func TestNATSPublisher_Publish(t *testing.T) {
	_, js, cleanup := testutil.StartJetStream(t)
	defer cleanup()

	p, err := NewPublisher(js, "", zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, testutil.WaitForStream(t, js, DefaultStream, 2*time.Second))

	event := &model.Event{
		Type:      model.EventScriptBlocked,
		ScriptID:  "script_1",
		RiskLevel: model.RiskCritical,
		Warnings:  []string{"[CRITICAL] Forbidden command: format (format C:)"},
	}
	require.NoError(t, p.Publish(context.Background(), event))
	assert.NotEmpty(t, event.ID)
	assert.NotZero(t, event.CreatedAt)

	got := testutil.CollectEvents(t, js, "script.blocked", 1, 2*time.Second)
	require.Len(t, got, 1)
	assert.Equal(t, event.ID, got[0].ID)
	assert.Equal(t, model.RiskCritical, got[0].RiskLevel)
	assert.Equal(t, event.Warnings, got[0].Warnings)
}

func TestNATSPublisher_DeduplicatesByID(t *testing.T) {
	_, js, cleanup := testutil.StartJetStream(t)
	defer cleanup()

	p, err := NewPublisher(js, "EVENTS_TEST", zaptest.NewLogger(t))
	require.NoError(t, err)

	event := &model.Event{ID: "evt-1", Type: model.EventScriptCreated, ScriptID: "script_1"}
	require.NoError(t, p.Publish(context.Background(), event))
	require.NoError(t, p.Publish(context.Background(), event))

	info, err := js.StreamInfo("EVENTS_TEST")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.State.Msgs)
}

func TestNATSPublisher_ExistingStream(t *testing.T) {
	_, js, cleanup := testutil.StartJetStream(t)
	defer cleanup()

	_, err := NewPublisher(js, "", zaptest.NewLogger(t))
	require.NoError(t, err)

	// second publisher reuses the stream
	_, err = NewPublisher(js, "", zaptest.NewLogger(t))
	require.NoError(t, err)
}

func TestNATSPublisher_Subscribe(t *testing.T) {
	_, js, cleanup := testutil.StartJetStream(t)
	defer cleanup()

	p, err := NewPublisher(js, "", zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *model.Event, 1)
	require.NoError(t, p.Subscribe(ctx, "task.*", func(e *model.Event) {
		received <- e
	}))

	require.NoError(t, p.Publish(ctx, &model.Event{Type: model.EventTaskCreated, TaskID: "task_1"}))

	select {
	case e := <-received:
		assert.Equal(t, model.EventTaskCreated, e.Type)
		assert.Equal(t, "task_1", e.TaskID)
	case <-time.After(3 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), &model.Event{Type: model.EventScriptCreated}))
	p.Close()
}
