package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecorderCollectsEvents(t *testing.T) {
	t.Parallel()

	rec := NewRecorder()
	evt := RunCompleted{
		RunID:      "run-1",
		Status:     "success",
		Iterations: 10,
		FinishedAt: time.Now().UTC(),
	}
	id, err := rec.Publish(context.Background(), evt)
	require.NoError(t, err)
	require.Equal(t, "run-1", id)

	events := rec.Events()
	require.Len(t, events, 1)
	require.Equal(t, evt, events[0])

	// The copy is detached from the recorder.
	events[0].Status = "error"
	require.Equal(t, "success", rec.Events()[0].Status)
}

func TestNoopNotifier(t *testing.T) {
	t.Parallel()

	var n Noop
	id, err := n.Publish(context.Background(), RunCompleted{RunID: "x"})
	require.NoError(t, err)
	require.Empty(t, id)
	require.NoError(t, n.Close())
}
