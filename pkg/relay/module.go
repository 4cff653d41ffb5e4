// Package relay accepts the capture stream from the headless render session
// and forwards it to the encoder.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/quipslop/quipcast/pkg/metrics"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
	"nhooyr.io/websocket"
)

const (
	PATH = "/capture"
	// A 250ms MJPEG chunk at high bit rates stays well under this.
	READ_LIMIT = 32 * 1024 * 1024
)

var ErrForward = errors.New("could not forward chunk to encoder")

// Relay owns the encoder's input for its whole lifetime. Only one capture
// connection is served at a time.
type Relay struct {
	session string
	output  io.Writer
	logger  zerolog.Logger

	listener net.Listener
	server   *http.Server

	active    atomic.Bool
	chunks    atomic.Int64
	firstOnce sync.Once
	first     chan struct{}
	failures  chan error

	mutex   deadlock.Mutex
	current *websocket.Conn
}

func New(session string, output io.Writer) *Relay {
	return &Relay{
		session:  session,
		output:   output,
		logger:   log.With().Str("relay", session).Logger(),
		first:    make(chan struct{}),
		failures: make(chan error, 1),
	}
}

// Listen binds the relay to addr, for example 127.0.0.1:0, and starts
// serving.
func (r *Relay) Listen(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("could not listen for capture on %s: %w", addr, err)
	}
	r.listener = listener

	mux := http.NewServeMux()
	mux.Handle(PATH, r)
	r.server = &http.Server{Handler: mux}

	go func() {
		err := r.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error().Err(err).Msg("relay server failed")
		}
	}()

	r.logger.Info().Str("addr", listener.Addr().String()).Msg("waiting for capture")
	return nil
}

// URL is the websocket address the capture session should dial.
func (r *Relay) URL() string {
	return fmt.Sprintf("ws://%s%s", r.listener.Addr().String(), PATH)
}

// FirstChunk is closed once the first chunk has been forwarded.
func (r *Relay) FirstChunk() <-chan struct{} {
	return r.first
}

// Errors reports the first forwarding failure.
func (r *Relay) Errors() <-chan error {
	return r.failures
}

func (r *Relay) Chunks() int64 {
	return r.chunks.Load()
}

// Close stops accepting connections and drops the capture if one is
// connected.
func (r *Relay) Close() error {
	if r.server == nil {
		return nil
	}

	err := r.server.Close()

	r.mutex.Lock()
	if r.current != nil {
		r.current.Close(websocket.StatusGoingAway, "relay shutting down")
	}
	r.mutex.Unlock()

	return err
}

func (r *Relay) setCurrent(conn *websocket.Conn) {
	r.mutex.Lock()
	r.current = conn
	r.mutex.Unlock()
}

func (r *Relay) fail(err error) {
	select {
	case r.failures <- err:
	default:
	}
}

func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.URL.Query().Get("session") != r.session {
		r.logger.Warn().Str("remote", req.RemoteAddr).Msg("rejected capture with the wrong session")
		http.Error(w, "unknown session", http.StatusForbidden)
		return
	}

	if !r.active.CompareAndSwap(false, true) {
		http.Error(w, "capture already connected", http.StatusConflict)
		return
	}
	defer r.active.Store(false)

	conn, err := websocket.Accept(w, req, nil)
	if err != nil {
		r.logger.Error().Err(err).Msg("could not accept capture")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "relay closed")
	conn.SetReadLimit(READ_LIMIT)

	r.setCurrent(conn)
	defer r.setCurrent(nil)

	r.logger.Info().Msg("capture connected")
	err = r.forward(req.Context(), conn)
	status := websocket.CloseStatus(err)
	if errors.Is(err, context.Canceled) ||
		status == websocket.StatusNormalClosure ||
		status == websocket.StatusGoingAway {
		r.logger.Info().Int64("chunks", r.Chunks()).Msg("capture disconnected")
		return
	}
	if errors.Is(err, ErrForward) {
		r.fail(err)
		conn.Close(websocket.StatusInternalError, "encoder unavailable")
	}
	r.logger.Warn().Err(err).Msg("capture ended")
}

func (r *Relay) forward(ctx context.Context, conn *websocket.Conn) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		if typ != websocket.MessageBinary || len(data) == 0 {
			continue
		}

		_, err = r.output.Write(data)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrForward, err)
		}

		r.chunks.Add(1)
		metrics.RelayChunks.Inc()
		metrics.RelayBytes.Add(float64(len(data)))
		r.firstOnce.Do(func() {
			close(r.first)
		})
	}
}
