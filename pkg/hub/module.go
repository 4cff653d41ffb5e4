// Package hub mirrors the authoritative game state and pushes it to every
// connected viewer.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/quipslop/quipcast/pkg/game"
	"github.com/quipslop/quipcast/pkg/metrics"
	"github.com/quipslop/quipcast/pkg/protocol"
	"github.com/quipslop/quipcast/pkg/utils"

	"github.com/mileusna/useragent"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
	"nhooyr.io/websocket"
)

const (
	WRITE_TIMEOUT = 5 * time.Second
	// Largest state update accepted from the game engine
	MAX_INGEST = 8 * 1024 * 1024
)

var ErrNoState = errors.New("update has no state")

type Archiver interface {
	Append(ctx context.Context, round *game.RoundState) error
}

// Update is what the game engine posts to /api/state.
type Update struct {
	State       *game.GameState `json:"state"`
	TotalRounds int             `json:"totalRounds"`
}

type viewer struct {
	subscriber *utils.Subscriber[[]byte]
	closeSlow  func()
}

type Hub struct {
	version  string
	archive  Archiver
	started  time.Time
	messages *utils.Topic[[]byte]

	mutex        deadlock.Mutex
	state        *game.GameState
	totalRounds  int
	lastArchived int
	viewers      map[*utils.Subscriber[[]byte]]*viewer
}

// New makes a hub that tags state pushes with version. archive may be nil.
func New(version string, buffer int, archive Archiver) *Hub {
	return &Hub{
		version:  version,
		archive:  archive,
		started:  time.Now(),
		messages: utils.NewTopic[[]byte](buffer),
		viewers:  make(map[*utils.Subscriber[[]byte]]*viewer),
	}
}

func (h *Hub) ViewerCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.viewers)
}

func (h *Hub) State() (*game.GameState, int) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.state, h.totalRounds
}

// publish must be called with the mutex held so every viewer sees messages
// in the same order.
func (h *Hub) publish(message []byte) {
	for _, subscriber := range h.messages.Publish(message) {
		if slow, ok := h.viewers[subscriber]; ok {
			go slow.closeSlow()
		}
	}
}

func (h *Hub) stateMessage() ([]byte, error) {
	if h.state == nil {
		return nil, nil
	}
	return protocol.EncodeState(h.state, h.totalRounds, len(h.viewers), h.version)
}

// Update replaces the state wholesale and pushes it to every viewer.
func (h *Hub) Update(ctx context.Context, state *game.GameState, totalRounds int) error {
	if state == nil {
		return ErrNoState
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.state != nil && h.state.Generation != state.Generation {
		log.Info().
			Int("from", h.state.Generation).
			Int("to", state.Generation).
			Msg("game state replaced")
	}

	h.state = state
	h.totalRounds = totalRounds

	completed := state.LastCompleted
	if completed != nil && completed.Num != h.lastArchived && h.archive != nil {
		err := h.archive.Append(ctx, completed)
		if err != nil {
			log.Error().Err(err).Int("round", completed.Num).Msg("could not archive round")
		} else {
			h.lastArchived = completed.Num
		}
	}

	message, err := h.stateMessage()
	if err != nil {
		return err
	}
	h.publish(message)
	return nil
}

func (h *Hub) join(closeSlow func()) (*viewer, []byte, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	joined := &viewer{
		subscriber: h.messages.Subscribe(),
		closeSlow:  closeSlow,
	}
	h.viewers[joined.subscriber] = joined
	metrics.Viewers.Set(float64(len(h.viewers)))

	h.publishCount()

	initial, err := h.stateMessage()
	return joined, initial, err
}

func (h *Hub) leave(left *viewer) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	left.subscriber.Done()
	delete(h.viewers, left.subscriber)
	metrics.Viewers.Set(float64(len(h.viewers)))

	h.publishCount()
}

func (h *Hub) publishCount() {
	message, err := protocol.EncodeViewerCount(len(h.viewers))
	if err != nil {
		log.Error().Err(err).Msg("could not encode viewer count")
		return
	}
	h.publish(message)
}

func writeTimeout(ctx context.Context, c *websocket.Conn, message []byte) error {
	ctx, cancel := context.WithTimeout(ctx, WRITE_TIMEOUT)
	defer cancel()
	return c.Write(ctx, websocket.MessageText, message)
}

func (h *Hub) serveViewer(ctx context.Context, c *websocket.Conn) error {
	ctx = c.CloseRead(ctx)

	joined, initial, err := h.join(func() {
		c.Close(websocket.StatusPolicyViolation, "connection too slow to keep up with messages")
	})
	defer h.leave(joined)
	if err != nil {
		return err
	}

	if initial != nil {
		err := writeTimeout(ctx, c, initial)
		if err != nil {
			return err
		}
	}

	for {
		select {
		case message := <-joined.subscriber.Recv():
			err := writeTimeout(ctx, c, message)
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *Hub) handleViewer(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Error().Err(err).Msg("could not accept viewer")
		return
	}
	defer c.Close(websocket.StatusInternalError, "operational fault during relay")

	agent := useragent.Parse(r.UserAgent())
	logger := log.With().
		Str("remote", r.RemoteAddr).
		Str("browser", agent.Name).
		Str("os", agent.OS).
		Bool("mobile", agent.Mobile).
		Bool("bot", agent.Bot).
		Logger()
	logger.Debug().Msg("viewer joined")

	err = h.serveViewer(r.Context(), c)
	if errors.Is(err, context.Canceled) {
		logger.Debug().Msg("viewer left")
		return
	}
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
		websocket.CloseStatus(err) == websocket.StatusGoingAway {
		logger.Debug().Msg("viewer left")
		return
	}
	if err != nil {
		logger.Debug().Err(err).Msg("viewer dropped")
	}
}

func (h *Hub) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var update Update
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, MAX_INGEST))
	err := decoder.Decode(&update)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid update: %s", err), http.StatusBadRequest)
		return
	}

	err = h.Update(r.Context(), update.State, update.TotalRounds)
	if errors.Is(err, ErrNoState) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("could not apply update")
		http.Error(w, "could not apply update", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Hub) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	state, totalRounds := h.State()
	status := "waiting for game state"
	if state != nil {
		round := 0
		if state.Active != nil {
			round = state.Active.Num
		} else if state.LastCompleted != nil {
			round = state.LastCompleted.Num
		}
		status = fmt.Sprintf("round %d of %d", round, totalRounds)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(
		w,
		"quipcast hub\n%s\n%d watching\nup %s\n",
		status,
		h.ViewerCount(),
		time.Since(h.started).Round(time.Second),
	)
}

// Routes wires the hub's endpoints. history may be nil.
func (h *Hub) Routes(history http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.handleStatus)
	mux.HandleFunc("/ws", h.handleViewer)
	mux.HandleFunc("/api/state", h.handleUpdate)
	mux.Handle("/metrics", metrics.Handler())
	if history != nil {
		mux.Handle("/api/history", history)
	}
	return mux
}
