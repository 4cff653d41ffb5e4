package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sasha-s/go-deadlock"
	"nhooyr.io/websocket"
)

const (
	SEND_QUEUE    = 256
	WRITE_TIMEOUT = 5 * time.Second
)

var ErrQueueFull = errors.New("capture send queue full")

// WSTransport writes chunks to the relay as binary websocket messages from
// a single writer goroutine.
type WSTransport struct {
	conn     *websocket.Conn
	queue    chan []byte
	buffered atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
	mutex     deadlock.Mutex
	err       error
}

func DialTransport(ctx context.Context, url string) (*WSTransport, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	transport := &WSTransport{
		conn:  conn,
		queue: make(chan []byte, SEND_QUEUE),
		done:  make(chan struct{}),
	}

	// The relay never sends anything back; reading only tells us when it
	// hangs up.
	closed := conn.CloseRead(context.Background())
	go func() {
		select {
		case <-closed.Done():
			transport.fail(ErrTransportClosed)
		case <-transport.done:
		}
	}()
	go transport.write()

	return transport, nil
}

func (t *WSTransport) write() {
	for {
		select {
		case <-t.done:
			return
		case chunk := <-t.queue:
			ctx, cancel := context.WithTimeout(context.Background(), WRITE_TIMEOUT)
			err := t.conn.Write(ctx, websocket.MessageBinary, chunk)
			cancel()
			t.buffered.Add(-int64(len(chunk)))
			if err != nil {
				t.fail(err)
				return
			}
		}
	}
}

func (t *WSTransport) fail(err error) {
	t.closeOnce.Do(func() {
		t.mutex.Lock()
		t.err = err
		t.mutex.Unlock()
		close(t.done)
		t.conn.Close(websocket.StatusNormalClosure, "")
	})
}

func (t *WSTransport) Err() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.err
}

func (t *WSTransport) Send(ctx context.Context, chunk []byte) error {
	select {
	case <-t.done:
		return ErrTransportClosed
	default:
	}

	t.buffered.Add(int64(len(chunk)))
	select {
	case t.queue <- chunk:
		return nil
	default:
		t.buffered.Add(-int64(len(chunk)))
		return ErrQueueFull
	}
}

func (t *WSTransport) Buffered() int {
	return int(t.buffered.Load())
}

func (t *WSTransport) Done() <-chan struct{} {
	return t.done
}

func (t *WSTransport) Close() error {
	t.fail(ErrTransportClosed)
	return nil
}
