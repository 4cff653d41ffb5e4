package assets

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"time"

	opt "github.com/repeale/fp-go/option"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
	_ "golang.org/x/image/webp"
)

type State uint8

const (
	StateLoading State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

type entry struct {
	state State
	image image.Image
}

// ImageCache loads images by URL in the background. Lookups never block: an
// image that is not ready yet simply is not there, and the caller is expected
// to ask again on a later frame.
type ImageCache struct {
	ctx     context.Context
	store   Store
	client  *http.Client
	mutex   deadlock.Mutex
	entries map[string]*entry
}

func NewImageCache(ctx context.Context, store Store) *ImageCache {
	if store == nil {
		store = NoStore{}
	}

	return &ImageCache{
		ctx:   ctx,
		store: store,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		entries: make(map[string]*entry),
	}
}

// Get returns the image for url if it has finished loading. The first lookup
// of a URL starts the load; later lookups, including after a failure, never
// start another.
func (c *ImageCache) Get(url string) opt.Option[image.Image] {
	if url == "" {
		return opt.None[image.Image]()
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	existing, ok := c.entries[url]
	if !ok {
		c.entries[url] = &entry{state: StateLoading}
		go c.load(url)
		return opt.None[image.Image]()
	}

	if existing.state != StateReady {
		return opt.None[image.Image]()
	}

	return opt.Some(existing.image)
}

// State reports where url is in its lifecycle, if it has been requested.
func (c *ImageCache) State(url string) (State, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	existing, ok := c.entries[url]
	if !ok {
		return StateLoading, false
	}
	return existing.state, true
}

func (c *ImageCache) fetch(url string) ([]byte, error) {
	key := Key(url)
	data, err := c.store.Get(c.ctx, key)
	if err == nil {
		return data, nil
	}
	if err != Missing {
		log.Warn().Err(err).Str("url", url).Msg("asset store lookup failed")
	}

	data, err = DownloadBytes(c.ctx, c.client, url)
	if err != nil {
		return nil, err
	}

	err = c.store.Set(c.ctx, key, data)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("could not store asset")
	}

	return data, nil
}

func (c *ImageCache) load(url string) {
	logger := log.With().Str("url", url).Logger()

	var decoded image.Image
	data, err := c.fetch(url)
	if err == nil {
		decoded, _, err = image.Decode(bytes.NewReader(data))
	}

	c.mutex.Lock()
	target := c.entries[url]
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load image")
		target.state = StateFailed
	} else {
		logger.Debug().Msg("image loaded")
		target.state = StateReady
		target.image = decoded
	}
	c.mutex.Unlock()
}
