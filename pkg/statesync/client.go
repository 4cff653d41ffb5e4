// Package statesync keeps a viewer's copy of the game state in step with the
// authoritative server.
package statesync

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/quipslop/quipcast/pkg/game"
	"github.com/quipslop/quipcast/pkg/metrics"
	"github.com/quipslop/quipcast/pkg/protocol"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
	"nhooyr.io/websocket"
)

const (
	// The link is expected to heal quickly, so retries are flat and unlimited.
	RECONNECT_DELAY = 1 * time.Second
	READ_LIMIT      = 16 * 1024 * 1024
	EVENT_BUFFER    = 16
)

type Status int32

const (
	StatusConnecting Status = iota
	StatusConnected
	StatusReconnecting
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	}
	return "unknown"
}

type EventKind uint8

const (
	EventConnected EventKind = iota
	EventDisconnected
	// The server restarted with an incompatible protocol version and the
	// local session was discarded.
	EventReset
)

type Event struct {
	Kind EventKind
	Err  error
}

// Snapshot is an immutable copy of the most recent full state push.
type Snapshot struct {
	State       *game.GameState
	TotalRounds int
	ReceivedAt  time.Time
}

type stopper interface {
	Stop() bool
}

var errReset = errors.New("protocol version changed")

type Client struct {
	url    string
	delay  time.Duration
	logger zerolog.Logger

	// Swappable in tests
	afterFunc func(time.Duration, func()) stopper
	now       func() time.Time

	status     atomic.Int32
	latest     atomic.Pointer[Snapshot]
	viewers    atomic.Int64
	lastUpdate atomic.Int64

	mutex      deadlock.Mutex
	timer      stopper
	version    string
	hasVersion bool
	resetting  bool

	dial   chan struct{}
	events chan Event
}

func NewClient(url string) *Client {
	client := &Client{
		url:    url,
		delay:  RECONNECT_DELAY,
		logger: log.With().Str("state", url).Logger(),
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		now:    time.Now,
		dial:   make(chan struct{}, 1),
		events: make(chan Event, EVENT_BUFFER),
	}
	client.lastUpdate.Store(client.now().UnixNano())
	return client
}

func (c *Client) Events() <-chan Event {
	return c.events
}

// Latest returns the most recent snapshot, or nil if there is none.
func (c *Client) Latest() *Snapshot {
	return c.latest.Load()
}

func (c *Client) ViewerCount() int {
	return int(c.viewers.Load())
}

func (c *Client) Status() Status {
	return Status(c.status.Load())
}

func (c *Client) IsConnected() bool {
	return c.Status() == StatusConnected
}

// SinceLastUpdate is the time since the last full state push (or since the
// client was created, if none has arrived).
func (c *Client) SinceLastUpdate(now time.Time) time.Duration {
	since := now.Sub(time.Unix(0, c.lastUpdate.Load()))
	if since < 0 {
		return 0
	}
	return since
}

func (c *Client) SecondsSinceLastUpdate() float64 {
	return c.SinceLastUpdate(c.now()).Seconds()
}

// Run dials the server and keeps reconnecting until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	c.requestDial()

	for {
		select {
		case <-ctx.Done():
			c.stopTimer()
			return ctx.Err()
		case <-c.dial:
		}

		err := c.session(ctx)
		if ctx.Err() != nil {
			c.stopTimer()
			return ctx.Err()
		}

		// Start over right away with a fresh session
		if errors.Is(err, errReset) {
			c.requestDial()
			continue
		}

		c.disconnected(err)
	}
}

func (c *Client) session(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	conn.SetReadLimit(READ_LIMIT)
	c.connected()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		if c.handleMessage(data) {
			return errReset
		}
	}
}

func (c *Client) connected() {
	c.mutex.Lock()
	c.resetting = false
	c.mutex.Unlock()

	c.status.Store(int32(StatusConnected))
	c.logger.Info().Msg("connected")
	c.emit(Event{Kind: EventConnected})
}

func (c *Client) disconnected(err error) {
	c.status.Store(int32(StatusReconnecting))

	if err != nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		c.logger.Warn().Err(err).Msg("disconnected")
	} else {
		c.logger.Info().Msg("disconnected")
	}

	c.emit(Event{Kind: EventDisconnected, Err: err})
	c.scheduleReconnect()
}

// scheduleReconnect arms a single reconnect attempt. Any attempt that is
// still pending is cancelled and replaced.
func (c *Client) scheduleReconnect() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.timer != nil {
		c.timer.Stop()
	}

	metrics.Reconnects.Inc()
	c.timer = c.afterFunc(c.delay, c.requestDial)
}

func (c *Client) stopTimer() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Client) requestDial() {
	select {
	case c.dial <- struct{}{}:
	default:
	}
}

func (c *Client) emit(event Event) {
	select {
	case c.events <- event:
	default:
		c.logger.Debug().Uint8("kind", uint8(event.Kind)).Msg("event dropped, nobody is listening")
	}
}

// handleMessage applies one message from the server. It returns true when
// the session has to be thrown away.
func (c *Client) handleMessage(data []byte) bool {
	message, err := protocol.Decode(data)
	if err != nil {
		// The server sends the full state again soon enough
		c.logger.Debug().Err(err).Msg("dropping message")
		return false
	}

	switch message := message.(type) {
	case *protocol.ViewerCountMessage:
		c.viewers.Store(int64(message.ViewerCount))
	case *protocol.StateMessage:
		if c.checkVersion(message.ProtocolVersion) {
			return true
		}

		previous := c.latest.Load()
		if previous != nil && previous.State.Generation != message.Data.Generation {
			c.logger.Info().
				Int("from", previous.State.Generation).
				Int("to", message.Data.Generation).
				Msg("server state replaced, resynchronizing")
		}

		now := c.now()
		c.latest.Store(&Snapshot{
			State:       message.Data,
			TotalRounds: message.TotalRounds,
			ReceivedAt:  now,
		})
		c.viewers.Store(int64(message.ViewerCount))
		c.lastUpdate.Store(now.UnixNano())
	}

	return false
}

// checkVersion records the first protocol version it sees and reports
// whether a later one differs. The session is reset only once; anything
// arriving on the same connection afterwards is ignored.
func (c *Client) checkVersion(version string) bool {
	c.mutex.Lock()

	if c.resetting {
		c.mutex.Unlock()
		return true
	}

	if version == "" {
		c.mutex.Unlock()
		return false
	}

	if !c.hasVersion {
		c.version = version
		c.hasVersion = true
		c.mutex.Unlock()
		return false
	}

	if version == c.version {
		c.mutex.Unlock()
		return false
	}

	c.logger.Warn().
		Str("expected", c.version).
		Str("got", version).
		Msg("protocol version changed, starting over")

	c.resetting = true
	c.hasVersion = false
	c.version = ""
	c.mutex.Unlock()

	c.latest.Store(nil)
	metrics.SessionResets.Inc()
	c.emit(Event{Kind: EventReset})
	return true
}

// URLFromTarget turns the hub's HTTP address into the websocket endpoint
// viewers connect to.
func URLFromTarget(target string) (string, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return "", err
	}

	switch parsed.Scheme {
	case "http", "ws":
		parsed.Scheme = "ws"
	case "https", "wss":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported target scheme %q", parsed.Scheme)
	}

	if !strings.HasSuffix(parsed.Path, "/ws") {
		parsed.Path = strings.TrimRight(parsed.Path, "/") + "/ws"
	}
	return parsed.String(), nil
}
