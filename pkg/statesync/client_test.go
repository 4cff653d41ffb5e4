package statesync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

type fakeTimer struct {
	fn      func()
	stopped bool
}

func (f *fakeTimer) Stop() bool {
	wasActive := !f.stopped
	f.stopped = true
	return wasActive
}

type fakeClock struct {
	mutex  sync.Mutex
	timers []*fakeTimer
}

func (f *fakeClock) AfterFunc(d time.Duration, fn func()) stopper {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	timer := &fakeTimer{fn: fn}
	f.timers = append(f.timers, timer)
	return timer
}

func (f *fakeClock) active() []*fakeTimer {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	active := make([]*fakeTimer, 0)
	for _, timer := range f.timers {
		if !timer.stopped {
			active = append(active, timer)
		}
	}
	return active
}

func newTestClient() (*Client, *fakeClock) {
	clock := &fakeClock{}
	client := NewClient("ws://example.invalid/ws")
	client.afterFunc = clock.AfterFunc
	return client, clock
}

func stateMessage(version string, generation int) []byte {
	versionField := ""
	if version != "" {
		versionField = fmt.Sprintf(`,"protocolVersion":%q`, version)
	}
	return []byte(fmt.Sprintf(
		`{"type":"state","data":{"lastCompleted":null,"active":null,"scores":{},"viewerScores":{},"done":false,"isPaused":false,"generation":%d},"totalRounds":10,"viewerCount":4%s}`,
		generation,
		versionField,
	))
}

func drainEvents(client *Client) []Event {
	events := make([]Event, 0)
	for {
		select {
		case event := <-client.Events():
			events = append(events, event)
		default:
			return events
		}
	}
}

func TestReconnectIsSingleShot(t *testing.T) {
	client, clock := newTestClient()

	client.disconnected(errors.New("connection reset"))
	require.Equal(t, StatusReconnecting, client.Status())
	require.Len(t, clock.timers, 1)
	require.Len(t, clock.active(), 1)

	// A second disconnect before the first attempt fires replaces it
	client.disconnected(errors.New("connection reset"))
	require.Len(t, clock.timers, 2)
	require.Len(t, clock.active(), 1)
	require.True(t, clock.timers[0].stopped)

	// Firing the pending attempt asks for exactly one dial
	clock.active()[0].fn()
	select {
	case <-client.dial:
	default:
		t.Fatal("expected a dial request")
	}
	select {
	case <-client.dial:
		t.Fatal("expected only one dial request")
	default:
	}
}

func TestViewerCountLeavesStateAlone(t *testing.T) {
	client, _ := newTestClient()

	require.False(t, client.handleMessage(stateMessage("", 1)))
	snapshot := client.Latest()
	require.NotNil(t, snapshot)
	require.Equal(t, 4, client.ViewerCount())
	require.Equal(t, 10, snapshot.TotalRounds)

	require.False(t, client.handleMessage([]byte(`{"type":"viewerCount","viewerCount":99}`)))
	require.Equal(t, 99, client.ViewerCount())
	require.Same(t, snapshot, client.Latest())
}

func TestMalformedMessagesAreDropped(t *testing.T) {
	client, _ := newTestClient()
	require.False(t, client.handleMessage(stateMessage("", 1)))
	snapshot := client.Latest()

	for _, input := range []string{`nope`, `{"type":"state"}`, `{"type":"mystery"}`} {
		require.False(t, client.handleMessage([]byte(input)))
	}

	require.Same(t, snapshot, client.Latest())
	require.Empty(t, drainEvents(client))
}

func TestStateReplacesWholesale(t *testing.T) {
	client, _ := newTestClient()

	require.False(t, client.handleMessage(stateMessage("", 1)))
	first := client.Latest()
	require.False(t, client.handleMessage(stateMessage("", 2)))
	second := client.Latest()

	require.NotSame(t, first, second)
	require.Equal(t, 1, first.State.Generation)
	require.Equal(t, 2, second.State.Generation)
}

func TestVersionChangeResetsOnce(t *testing.T) {
	client, _ := newTestClient()

	require.False(t, client.handleMessage(stateMessage("v1", 1)))
	require.False(t, client.handleMessage(stateMessage("v1", 1)))
	require.NotNil(t, client.Latest())

	require.True(t, client.handleMessage(stateMessage("v2", 1)))
	require.Nil(t, client.Latest())

	// Anything else on the same connection is ignored
	require.True(t, client.handleMessage(stateMessage("v2", 1)))
	require.True(t, client.handleMessage(stateMessage("v3", 1)))

	events := drainEvents(client)
	require.Len(t, events, 1)
	require.Equal(t, EventReset, events[0].Kind)

	// The next session starts from scratch and adopts the new version
	client.connected()
	require.False(t, client.handleMessage(stateMessage("v2", 1)))
	require.NotNil(t, client.Latest())
	require.False(t, client.handleMessage(stateMessage("v2", 1)))
}

func TestSinceLastUpdate(t *testing.T) {
	client, _ := newTestClient()
	start := time.Unix(1000, 0)
	client.now = func() time.Time { return start }

	require.False(t, client.handleMessage(stateMessage("", 1)))
	require.Equal(t, 5*time.Second, client.SinceLastUpdate(start.Add(5*time.Second)))
	require.Zero(t, client.SinceLastUpdate(start.Add(-time.Second)))

	// Viewer counts do not refresh staleness
	require.False(t, client.handleMessage([]byte(`{"type":"viewerCount","viewerCount":1}`)))
	require.Equal(t, 5*time.Second, client.SinceLastUpdate(start.Add(5*time.Second)))
}

func TestRunReconnects(t *testing.T) {
	var connections atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}

		count := connections.Add(1)
		err = c.Write(r.Context(), websocket.MessageText, stateMessage("v1", int(count)))
		if err != nil {
			return
		}

		// Drop the first connection, keep the second one open
		if count == 1 {
			c.Close(websocket.StatusGoingAway, "restarting")
			return
		}

		<-r.Context().Done()
		c.Close(websocket.StatusNormalClosure, "")
	}))
	defer server.Close()

	client := NewClient("ws" + strings.TrimPrefix(server.URL, "http"))
	client.delay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- client.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		snapshot := client.Latest()
		return connections.Load() >= 2 &&
			client.IsConnected() &&
			snapshot != nil &&
			snapshot.State.Generation == 2
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestURLFromTarget(t *testing.T) {
	for target, want := range map[string]string{
		"http://127.0.0.1:5109":     "ws://127.0.0.1:5109/ws",
		"https://quipslop.example/": "wss://quipslop.example/ws",
		"ws://hub:5109/ws":          "ws://hub:5109/ws",
		"http://hub/broadcast":      "ws://hub/broadcast/ws",
	} {
		got, err := URLFromTarget(target)
		require.NoError(t, err, target)
		require.Equal(t, want, got, target)
	}

	_, err := URLFromTarget("ftp://hub")
	require.Error(t, err)
}
