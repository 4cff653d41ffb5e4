package broadcast

import (
	"context"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quipslop/quipcast/pkg/game"
	"github.com/quipslop/quipcast/pkg/protocol"
	"github.com/quipslop/quipcast/pkg/render"
	"github.com/quipslop/quipcast/pkg/statesync"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

type fakeState struct {
	snapshot  atomic.Pointer[statesync.Snapshot]
	viewers   int
	connected bool
}

func (f *fakeState) Latest() *statesync.Snapshot {
	return f.snapshot.Load()
}

func (f *fakeState) ViewerCount() int {
	return f.viewers
}

func (f *fakeState) IsConnected() bool {
	return f.connected
}

func (f *fakeState) SinceLastUpdate(now time.Time) time.Duration {
	return 3 * time.Second
}

type fakeDrawer struct {
	views  []render.View
	closed bool
}

func (f *fakeDrawer) Render(view render.View, now time.Time) *image.RGBA {
	f.views = append(f.views, view)
	return image.NewRGBA(image.Rect(0, 0, 4, 4))
}

func (f *fakeDrawer) Close() {
	f.closed = true
}

func TestLoopRendersLatestState(t *testing.T) {
	state := &fakeState{viewers: 7, connected: true}
	drawer := &fakeDrawer{}
	surface := NewSurface()

	loop, err := NewLoop(state, surface, 30, func() (Drawer, error) {
		return drawer, nil
	})
	require.NoError(t, err)

	assert.Nil(t, surface.Snapshot())
	loop.Tick()
	require.NotNil(t, surface.Latest())
	assert.Nil(t, drawer.views[0].State)

	first := &game.GameState{Generation: 1}
	second := &game.GameState{Generation: 2}
	state.snapshot.Store(&statesync.Snapshot{State: first, TotalRounds: 5})
	state.snapshot.Store(&statesync.Snapshot{State: second, TotalRounds: 5})
	loop.Tick()

	// Only the most recent snapshot is ever drawn
	view := drawer.views[1]
	assert.Same(t, second, view.State)
	assert.Equal(t, 5, view.TotalRounds)
	assert.Equal(t, 7, view.ViewerCount)
	assert.True(t, view.Connected)
	assert.Equal(t, 3*time.Second, view.SinceUpdate)

	// Redraws even when nothing changed
	loop.Tick()
	assert.Len(t, drawer.views, 3)
	assert.EqualValues(t, 3, surface.Latest().Seq)
}

func TestLoopRebuildsDrawerOnReset(t *testing.T) {
	var built []*fakeDrawer
	loop, err := NewLoop(&fakeState{}, NewSurface(), 30, func() (Drawer, error) {
		drawer := &fakeDrawer{}
		built = append(built, drawer)
		return drawer, nil
	})
	require.NoError(t, err)

	loop.Reset()
	loop.Reset()
	<-loop.resets
	loop.rebuild()

	require.Len(t, built, 2)
	assert.True(t, built[0].closed)
	assert.Same(t, built[1], loop.drawer)
	assert.Empty(t, loop.resets)
}

func TestSessionRendersHubState(t *testing.T) {
	message, err := protocol.EncodeState(&game.GameState{
		Active: &game.RoundState{Num: 1, Phase: game.PhasePrompting},
		Scores: map[string]int{},
	}, 3, 12, "1")
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		err = conn.Write(r.Context(), websocket.MessageText, message)
		if err != nil {
			return
		}
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, err := NewSession(ctx, Options{
		StateURL: "ws" + strings.TrimPrefix(server.URL, "http"),
		Width:    320,
		Height:   180,
		FPS:      30,
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- session.Run()
	}()

	require.Eventually(t, func() bool {
		return session.Client().Latest() != nil && session.Surface().Latest() != nil
	}, 5*time.Second, 10*time.Millisecond)

	frame := session.Surface().Latest()
	assert.Equal(t, image.Rect(0, 0, 320, 180), frame.Image.Bounds())
	assert.Equal(t, "capture disabled", session.CaptureStatus())

	session.Cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop")
	}
}

func TestSessionRebuildsRendererOnVersionChange(t *testing.T) {
	state := &game.GameState{Scores: map[string]int{}}
	before, err := protocol.EncodeState(state, 3, 0, "1")
	require.NoError(t, err)
	after, err := protocol.EncodeState(state, 3, 0, "2")
	require.NoError(t, err)

	var connections atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		// The hub restarts with a new protocol version mid-connection
		messages := [][]byte{after}
		if connections.Add(1) == 1 {
			messages = [][]byte{before, after}
		}

		for _, message := range messages {
			err = conn.Write(r.Context(), websocket.MessageText, message)
			if err != nil {
				return
			}
		}
		<-r.Context().Done()
	}))
	defer server.Close()

	var built atomic.Int32
	session, err := NewSession(context.Background(), Options{
		StateURL: "ws" + strings.TrimPrefix(server.URL, "http"),
		NewDrawer: func() (Drawer, error) {
			built.Add(1)
			return &fakeDrawer{}, nil
		},
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, built.Load())

	done := make(chan error, 1)
	go func() {
		done <- session.Run()
	}()

	require.Eventually(t, func() bool {
		return built.Load() == 2 && connections.Load() >= 2
	}, 5*time.Second, 10*time.Millisecond)

	// The new connection keeps the new version, so nothing resets again
	require.Eventually(t, func() bool {
		return session.Client().Latest() != nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 2, built.Load())

	session.Cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop")
	}
}
