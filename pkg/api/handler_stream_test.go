package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryflow/queryflow/pkg/events"
)

// sseFrame is one parsed server-sent event.
type sseFrame struct {
	name string
	data map[string]any
}

// readSSEFrame parses the next event off the stream, blocking until the
// terminating blank line arrives.
func readSSEFrame(t *testing.T, r *bufio.Reader) sseFrame {
	t.Helper()

	var frame sseFrame
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")

		switch {
		case line == "":
			if frame.name != "" || frame.data != nil {
				return frame
			}
		case strings.HasPrefix(line, "event: "):
			frame.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame.data))
		}
	}
}

// openStream connects to the session's SSE endpoint and returns a reader
// over the response body.
func openStream(t *testing.T, h *apiHarness, sessionID string) (*bufio.Reader, context.CancelFunc) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		h.ts.URL+"/api/v1/sessions/"+sessionID+"/stream", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		resp.Body.Close()
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	return bufio.NewReader(resp.Body), cancel
}

func TestStream_NotFoundBeforeStreaming(t *testing.T) {
	h := newAPIHarness(t, &fakeEngine{})

	resp, err := http.Get(h.ts.URL + "/api/v1/sessions/unknown-id/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStream_ConnectedThenReplayThenLive(t *testing.T) {
	h := newAPIHarness(t, &fakeEngine{})
	sess := h.store.Create()

	// Pre-populate more history than the replay window holds.
	for i := 0; i < 25; i++ {
		h.bus.Broadcast(sess.ID, events.StepEvent{
			SessionID: sess.ID,
			Timestamp: time.Now().UTC(),
			EventType: events.EventTypeStepUpdate,
			Status:    "running",
			Output:    float64(i),
		})
	}

	r, _ := openStream(t, h, sess.ID)

	// First frame is always the synthetic handshake.
	frame := readSSEFrame(t, r)
	assert.Equal(t, events.EventTypeConnected, frame.name)
	assert.Equal(t, sess.ID, frame.data["session_id"])

	// Then the last ReplayLimit stored events, oldest first, tagged
	// historical.
	for i := 0; i < h.cfg.ReplayLimit; i++ {
		frame = readSSEFrame(t, r)
		assert.Equal(t, events.EventTypeStepUpdate, frame.name)
		assert.Equal(t, true, frame.data["is_historical"])
		assert.Equal(t, float64(5+i), frame.data["output"])
	}

	// The handshake was written after the subscription was registered, so a
	// broadcast now must reach this connection live.
	h.bus.Broadcast(sess.ID, events.StepEvent{
		SessionID: sess.ID,
		Timestamp: time.Now().UTC(),
		EventType: events.EventTypeSessionCompleted,
		Status:    "completed",
		Output:    "done",
	})

	// Heartbeats may interleave while the broadcast is in flight.
	for {
		frame = readSSEFrame(t, r)
		if frame.name != events.EventTypeHeartbeat {
			break
		}
	}
	assert.Equal(t, events.EventTypeSessionCompleted, frame.name)
	assert.Equal(t, false, frame.data["is_historical"])
	assert.Equal(t, "done", frame.data["output"])
}

func TestStream_HeartbeatWhileIdle(t *testing.T) {
	h := newAPIHarness(t, &fakeEngine{})
	sess := h.store.Create()

	r, _ := openStream(t, h, sess.ID)

	frame := readSSEFrame(t, r)
	require.Equal(t, events.EventTypeConnected, frame.name)

	// No events flow; the harness heartbeat interval is 100ms.
	frame = readSSEFrame(t, r)
	assert.Equal(t, events.EventTypeHeartbeat, frame.name)
	assert.Equal(t, sess.ID, frame.data["session_id"])
}

func TestStream_DisconnectUnregistersSubscriber(t *testing.T) {
	h := newAPIHarness(t, &fakeEngine{})
	sess := h.store.Create()

	r, cancel := openStream(t, h, sess.ID)
	frame := readSSEFrame(t, r)
	require.Equal(t, events.EventTypeConnected, frame.name)
	require.Equal(t, 1, h.bus.SubscriberCount(sess.ID))

	cancel()

	assert.Eventually(t, func() bool {
		return h.bus.SubscriberCount(sess.ID) == 0
	}, 2*time.Second, 10*time.Millisecond, "subscriber must be unregistered on disconnect")
}

func TestStream_FullLifecycleOverHTTP(t *testing.T) {
	h := newAPIHarness(t, &fakeEngine{})

	resp, body := h.postJSON(t, "/api/v1/sessions", createRequestBody("what is Go?", "chat"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sessionID := body["session_id"].(string)
	h.waitForDrain(t)

	// Connecting after completion replays the whole run as history.
	r, _ := openStream(t, h, sessionID)

	frame := readSSEFrame(t, r)
	require.Equal(t, events.EventTypeConnected, frame.name)

	var names []string
	for i := 0; i < 5; i++ {
		frame = readSSEFrame(t, r)
		assert.Equal(t, true, frame.data["is_historical"])
		names = append(names, frame.name)
	}
	assert.Equal(t, []string{
		events.EventTypeUserMessage,
		events.EventTypeSessionStarted,
		events.EventTypeStepUpdate,
		events.EventTypeStepCompleted,
		events.EventTypeSessionCompleted,
	}, names)
}
